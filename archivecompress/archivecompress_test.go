package archivecompress

import (
	"bytes"
	"errors"
	"testing"

	"github.com/bpfs/barfs/barerrors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func compressAll(t *testing.T, alg Algorithm, plain []byte, blockLength int) []byte {
	t.Helper()
	enc, err := New(ModeCompress, alg, blockLength)
	require.NoError(t, err)
	require.NoError(t, enc.Deflate(plain))
	require.NoError(t, enc.Flush())
	require.NoError(t, enc.Close())

	var out bytes.Buffer
	buf := make([]byte, blockLength)
	for enc.AvailableBytes() > 0 {
		n, err := enc.GetBlock(buf)
		require.NoError(t, err)
		out.Write(buf[:n])
	}
	return out.Bytes()
}

func decompressAll(t *testing.T, alg Algorithm, compressed []byte, blockLength int) []byte {
	t.Helper()
	dec, err := New(ModeDecompress, alg, blockLength)
	require.NoError(t, err)

	var out bytes.Buffer
	buf := make([]byte, blockLength)
	fed := 0
	for {
		n, err := dec.Inflate(buf)
		out.Write(buf[:n])
		if err == nil {
			continue
		}
		if errors.Is(err, barerrors.ErrNeedMoreInput) {
			if fed >= len(compressed) {
				dec.CloseInput()
				continue
			}
			end := fed + blockLength
			if end > len(compressed) {
				end = len(compressed)
			}
			require.NoError(t, dec.PutBlock(compressed[fed:end]))
			fed = end
			if fed >= len(compressed) {
				dec.CloseInput()
			}
			continue
		}
		if errors.Is(err, barerrors.ErrCompressEof) {
			break
		}
		require.NoError(t, err)
	}
	return out.Bytes()
}

func TestCompressRoundTrip(t *testing.T) {
	plain := bytes.Repeat([]byte("the quick brown fox jumps over the lazy dog. "), 500)
	for _, alg := range []Algorithm{AlgorithmNone, AlgorithmDeflate, AlgorithmZstdBzip2, AlgorithmZstdLzma} {
		compressed := compressAll(t, alg, plain, 256)
		got := decompressAll(t, alg, compressed, 256)
		assert.Equal(t, plain, got, "round trip mismatch for %s", alg)
	}
}

func TestDeflateActuallyCompresses(t *testing.T) {
	plain := bytes.Repeat([]byte("aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"), 1000)
	compressed := compressAll(t, AlgorithmDeflate, plain, 256)
	assert.Less(t, len(compressed), len(plain))
}

func TestAvailableBlocksFullVsAny(t *testing.T) {
	enc, err := New(ModeCompress, AlgorithmNone, 16)
	require.NoError(t, err)
	require.NoError(t, enc.Deflate([]byte("12345")))
	assert.Equal(t, 0, enc.AvailableBlocks(AvailFull))
	assert.Equal(t, 1, enc.AvailableBlocks(AvailAny))
}
