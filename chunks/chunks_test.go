package chunks

import (
	"testing"

	"github.com/bpfs/barfs/barerrors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memIO is a minimal in-memory ioref.ByteIO used only by this package's tests
type memIO struct {
	buf    []byte
	offset uint64
	eof    bool
}

func (m *memIO) EOF() bool { return m.eof }

func (m *memIO) Read(buf []byte) (int, error) {
	if m.offset >= uint64(len(m.buf)) {
		m.eof = true
		return 0, nil
	}
	n := copy(buf, m.buf[m.offset:])
	m.offset += uint64(n)
	if n < len(buf) {
		m.eof = true
	}
	return n, nil
}

func (m *memIO) Write(buf []byte) error {
	end := m.offset + uint64(len(buf))
	if end > uint64(len(m.buf)) {
		grown := make([]byte, end)
		copy(grown, m.buf)
		m.buf = grown
	}
	copy(m.buf[m.offset:end], buf)
	m.offset = end
	m.eof = false
	return nil
}

func (m *memIO) Tell() (uint64, error) { return m.offset, nil }

func (m *memIO) Seek(offset uint64) error {
	m.offset = offset
	m.eof = false
	return nil
}

func (m *memIO) Size() (uint64, error) { return uint64(len(m.buf)), nil }

type fixedMeta struct {
	Kind uint8
	Name string
	CRC  uint32 `chunk:"crc32"`
}

func TestHeaderRoundTrip(t *testing.T) {
	io := &memIO{}
	require.NoError(t, writeHeader(io, Header{ID: IDFile, Size: 42}))
	require.NoError(t, io.Seek(0))
	h, err := readHeader(io)
	require.NoError(t, err)
	assert.Equal(t, IDFile, h.ID)
	assert.Equal(t, uint64(42), h.Size)
}

func TestEncodeDecodeFieldsWithCRC(t *testing.T) {
	in := &fixedMeta{Kind: 3, Name: "hello"}
	buf, err := EncodeFields(in)
	require.NoError(t, err)

	out := &fixedMeta{}
	require.NoError(t, DecodeFields(buf, out))
	assert.Equal(t, in.Kind, out.Kind)
	assert.Equal(t, in.Name, out.Name)
	assert.NotZero(t, out.CRC)

	// 破坏一个字节应当让 CRC 校验失败
	buf[3] ^= 0xFF
	err = DecodeFields(buf, &fixedMeta{})
	assert.ErrorIs(t, err, barerrors.ErrCorruptData)
}

func TestInfoCreateOpenRoundTrip(t *testing.T) {
	io := &memIO{}
	w := NewInfo(nil, io, IDFile, nil)
	require.NoError(t, w.Create())
	require.NoError(t, w.WriteFixed(&fixedMeta{Kind: 7, Name: "a.txt"}))
	require.NoError(t, w.WriteData([]byte("payload-bytes")))
	require.NoError(t, w.Close())

	require.NoError(t, io.Seek(0))
	h, err := Next(io)
	require.NoError(t, err)
	assert.Equal(t, IDFile, h.ID)

	r := NewInfo(nil, io, IDFile, nil)
	require.NoError(t, r.Open(h))
	fixedSize, err := SizeOfFields(&fixedMeta{Kind: 7, Name: "a.txt"})
	require.NoError(t, err)
	fixed, err := r.ReadFixed(fixedSize)
	require.NoError(t, err)
	got := &fixedMeta{}
	require.NoError(t, DecodeFields(fixed, got))
	assert.Equal(t, uint8(7), got.Kind)
	assert.Equal(t, "a.txt", got.Name)

	data := make([]byte, len("payload-bytes"))
	n, err := r.ReadData(data)
	require.NoError(t, err)
	assert.Equal(t, "payload-bytes", string(data[:n]))
	assert.True(t, r.EOF())
}

func TestSkipUnknownTopLevelChunk(t *testing.T) {
	io := &memIO{}
	w := NewInfo(nil, io, ID{'X', 'X', 'X', 'X'}, nil)
	require.NoError(t, w.Create())
	require.NoError(t, w.WriteData([]byte("ignored")))
	require.NoError(t, w.Close())

	w2 := NewInfo(nil, io, IDFile, nil)
	require.NoError(t, w2.Create())
	require.NoError(t, w2.WriteData([]byte("kept")))
	require.NoError(t, w2.Close())

	require.NoError(t, io.Seek(0))
	h1, err := Next(io)
	require.NoError(t, err)
	assert.Error(t, Check(h1.ID, []ID{IDFile}, true))
	require.NoError(t, Skip(io, h1))

	h2, err := Next(io)
	require.NoError(t, err)
	assert.NoError(t, Check(h2.ID, []ID{IDFile}, true))
	assert.Equal(t, IDFile, h2.ID)
}
