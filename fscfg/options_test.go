package fscfg

import (
	"testing"

	"github.com/bpfs/barfs/archivecompress"
	"github.com/bpfs/barfs/archivecrypt"
	"github.com/bpfs/barfs/passwords"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultOptions(t *testing.T) {
	o := DefaultOptions()
	assert.Equal(t, uint64(0), o.GetArchivePartSize())
	assert.Equal(t, uint64(1), o.GetElementSize())
	assert.Equal(t, CryptTypeNone, o.GetCryptType())
	assert.False(t, o.GetStrictUnknownChunks())
}

func TestApplyOptionsOverridesDefaults(t *testing.T) {
	o := DefaultOptions()
	require.NoError(t, o.ApplyOptions(
		WithArchivePartSize(1<<20),
		WithElementSize(4096),
		WithCompressAlgorithm(archivecompress.AlgorithmDeflate),
		WithSymmetricCrypt(archivecrypt.AlgorithmAES256, passwords.ModeConfig, []byte("secret")),
		WithStrictUnknownChunks(true),
	))

	assert.Equal(t, uint64(1<<20), o.GetArchivePartSize())
	assert.Equal(t, uint64(4096), o.GetElementSize())
	assert.Equal(t, archivecompress.AlgorithmDeflate, o.GetCompressAlgorithm())
	assert.Equal(t, CryptTypeSymmetric, o.GetCryptType())
	assert.Equal(t, archivecrypt.AlgorithmAES256, o.GetCryptAlgorithm())
	assert.Equal(t, "secret", string(o.GetCryptPassword()))
	assert.True(t, o.GetStrictUnknownChunks())
}

func TestWithElementSizeZeroFallsBackToOne(t *testing.T) {
	o := DefaultOptions()
	require.NoError(t, o.ApplyOptions(WithElementSize(0)))
	assert.Equal(t, uint64(1), o.GetElementSize())
}
