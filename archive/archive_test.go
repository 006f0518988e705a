package archive

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/bpfs/barfs/archivecompress"
	"github.com/bpfs/barfs/archivecrypt"
	"github.com/bpfs/barfs/chunks"
	"github.com/bpfs/barfs/fscfg"
	"github.com/bpfs/barfs/ioref"
	"github.com/bpfs/barfs/passwords"
	"github.com/stretchr/testify/require"
)

// openerFor 返回一个按 LocalPartOwner 命名规则顺序打开 part 文件的
// PartOpener
func openerFor(dir, baseName string) PartOpener {
	return func(partNumber int) (ioref.ByteIO, bool, error) {
		path := filepath.Join(dir, fmt.Sprintf("%s.bar.%03d", baseName, partNumber))
		if _, err := os.Stat(path); err != nil {
			return nil, false, nil
		}
		f, err := ioref.NewFileIO(path, false)
		if err != nil {
			return nil, false, err
		}
		return f, true, nil
	}
}

func readAll(t *testing.T, r *Reader) []byte {
	t.Helper()
	var out bytes.Buffer
	buf := make([]byte, 37)
	for {
		n, err := r.ReadData(buf)
		if n > 0 {
			out.Write(buf[:n])
		}
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
	}
	return out.Bytes()
}

func TestWriteReadSingleFileRoundTrip(t *testing.T) {
	dir := t.TempDir()
	opts := fscfg.DefaultOptions()
	require.NoError(t, opts.ApplyOptions(fscfg.WithCompressAlgorithm(archivecompress.AlgorithmDeflate)))

	owner := NewLocalPartOwner(dir, "arch")
	w, err := NewWriter(&opts, owner)
	require.NoError(t, err)

	content := []byte("hello, this is a small file used to exercise the round trip")
	require.NoError(t, w.NewFileEntry(FileMeta{Name: "a.txt", Size: uint64(len(content)), Permission: 0o644}))
	require.NoError(t, w.Write(content))
	require.NoError(t, w.CloseEntry())
	require.NoError(t, w.Close())

	r, err := NewReader(&opts, openerFor(dir, "arch"), nil, nil)
	require.NoError(t, err)

	typ, meta, err := r.NextEntry()
	require.NoError(t, err)
	require.Equal(t, EntryFile, typ)
	fm := meta.(*FileMeta)
	require.Equal(t, "a.txt", fm.Name)
	require.Equal(t, uint64(len(content)), fm.Size)

	got := readAll(t, r)
	require.Equal(t, content, got)

	_, _, err = r.NextEntry()
	require.Error(t, err, "归档耗尽之后 NextEntry 应当报错而不是返回零值条目")
}

func TestTwoPartSplitRoundTrip(t *testing.T) {
	dir := t.TempDir()
	opts := fscfg.DefaultOptions()
	require.NoError(t, opts.ApplyOptions(
		fscfg.WithArchivePartSize(160),
		fscfg.WithBufferSize(16),
		fscfg.WithElementSize(1),
	))

	owner := NewLocalPartOwner(dir, "split")
	w, err := NewWriter(&opts, owner)
	require.NoError(t, err)

	content := bytes.Repeat([]byte{0x41}, 200)
	require.NoError(t, w.NewFileEntry(FileMeta{Name: "big.bin", Size: uint64(len(content))}))
	require.NoError(t, w.Write(content))
	require.NoError(t, w.CloseEntry())
	require.NoError(t, w.Close())

	_, err = os.Stat(filepath.Join(dir, "split.bar.000"))
	require.NoError(t, err)
	_, err = os.Stat(filepath.Join(dir, "split.bar.001"))
	require.NoError(t, err, "200 字节内容在 160 字节的 part 上限下应当裂成至少两个 part")

	r, err := NewReader(&opts, openerFor(dir, "split"), nil, nil)
	require.NoError(t, err)
	typ, meta, err := r.NextEntry()
	require.NoError(t, err)
	require.Equal(t, EntryFile, typ)
	require.Equal(t, uint64(200), meta.(*FileMeta).Size)

	got := readAll(t, r)
	require.Equal(t, content, got)
}

func TestSymmetricCryptMultiPasswordTrial(t *testing.T) {
	dir := t.TempDir()
	wopts := fscfg.DefaultOptions()
	require.NoError(t, wopts.ApplyOptions(
		fscfg.WithSymmetricCrypt(archivecrypt.AlgorithmAES256, passwords.ModeConfig, []byte("correct horse battery staple")),
	))

	owner := NewLocalPartOwner(dir, "locked")
	w, err := NewWriter(&wopts, owner)
	require.NoError(t, err)
	content := []byte("top secret payload")
	require.NoError(t, w.NewFileEntry(FileMeta{Name: "s.bin", Size: uint64(len(content))}))
	require.NoError(t, w.Write(content))
	require.NoError(t, w.CloseEntry())
	require.NoError(t, w.Close())

	// 读取端只知道密码模式是 Ask，手上有一批候选密码，其中只有一个是真的
	ropts := fscfg.DefaultOptions()
	require.NoError(t, ropts.ApplyOptions(
		fscfg.WithSymmetricCrypt(archivecrypt.AlgorithmAES256, passwords.ModeAsk, nil),
	))
	pwList := passwords.NewList()
	pwList.Add([]byte("wrong guess one"))
	pwList.Add([]byte("wrong guess two"))
	pwList.Add([]byte("correct horse battery staple"))

	r, err := NewReader(&ropts, openerFor(dir, "locked"), pwList, nil)
	require.NoError(t, err)
	_, meta, err := r.NextEntry()
	require.NoError(t, err)
	require.Equal(t, "s.bin", meta.(*FileMeta).Name)
	got := readAll(t, r)
	require.Equal(t, content, got)
}

func TestAsymmetricCryptRoundTrip(t *testing.T) {
	dir := t.TempDir()
	kp, err := archivecrypt.CreateKeyPair(2048)
	require.NoError(t, err)

	wopts := fscfg.DefaultOptions()
	require.NoError(t, wopts.ApplyOptions(
		fscfg.WithAsymmetricCrypt(archivecrypt.AlgorithmAES256, kp.Public),
	))

	owner := NewLocalPartOwner(dir, "rsa")
	w, err := NewWriter(&wopts, owner)
	require.NoError(t, err)
	content := []byte("asymmetrically protected content")
	require.NoError(t, w.NewFileEntry(FileMeta{Name: "r.bin", Size: uint64(len(content))}))
	require.NoError(t, w.Write(content))
	require.NoError(t, w.CloseEntry())
	require.NoError(t, w.Close())

	ropts := fscfg.DefaultOptions()
	require.NoError(t, ropts.ApplyOptions(
		fscfg.WithAsymmetricCrypt(archivecrypt.AlgorithmAES256, kp.Public, kp.Private),
	))
	r, err := NewReader(&ropts, openerFor(dir, "rsa"), nil, nil)
	require.NoError(t, err)
	_, meta, err := r.NextEntry()
	require.NoError(t, err)
	require.Equal(t, "r.bin", meta.(*FileMeta).Name)
	got := readAll(t, r)
	require.Equal(t, content, got)
}

func TestHardlinkThreeNames(t *testing.T) {
	dir := t.TempDir()
	opts := fscfg.DefaultOptions()
	owner := NewLocalPartOwner(dir, "hl")
	w, err := NewWriter(&opts, owner)
	require.NoError(t, err)
	require.NoError(t, w.NewHardlinkEntry(HardlinkMeta{Names: []string{"a", "b", "c"}}))
	require.NoError(t, w.Close())

	r, err := NewReader(&opts, openerFor(dir, "hl"), nil, nil)
	require.NoError(t, err)
	typ, meta, err := r.NextEntry()
	require.NoError(t, err)
	require.Equal(t, EntryHardlink, typ)
	require.Equal(t, []string{"a", "b", "c"}, meta.(*HardlinkMeta).Names)
}

func TestUnknownTopLevelChunkSkippedUnlessStrict(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "mixed.bar.000")
	f, err := ioref.NewFileIO(path, true)
	require.NoError(t, err)

	bar := chunks.NewInfo(nil, f, chunks.IDHeader, nil)
	require.NoError(t, bar.Create())
	require.NoError(t, bar.WriteFixed(&BarMeta{Version: 1}))
	require.NoError(t, bar.Close())

	unknown := chunks.NewInfo(nil, f, chunks.ID{'Z', 'Z', 'Z', 'Z'}, nil)
	require.NoError(t, unknown.Create())
	require.NoError(t, unknown.WriteData([]byte("future feature payload")))
	require.NoError(t, unknown.Close())

	dirTop := chunks.NewInfo(nil, f, chunks.IDDirectory, nil)
	require.NoError(t, dirTop.Create())
	require.NoError(t, writeEntryAlgoMeta(dirTop, archivecompress.AlgorithmNone, archivecrypt.AlgorithmNone))
	entr := chunks.NewInfo(dirTop, f, chunks.IDEntryMeta, nil)
	require.NoError(t, entr.Create())
	require.NoError(t, entr.WriteFixed(&DirectoryMeta{Name: "etc"}))
	require.NoError(t, entr.Close())
	require.NoError(t, dirTop.Close())
	require.NoError(t, f.Close())

	opts := fscfg.DefaultOptions()
	r, err := NewReader(&opts, openerFor(dir, "mixed"), nil, nil)
	require.NoError(t, err)
	typ, meta, err := r.NextEntry()
	require.NoError(t, err)
	require.Equal(t, EntryDirectory, typ)
	require.Equal(t, "etc", meta.(*DirectoryMeta).Name)

	strict := fscfg.DefaultOptions()
	require.NoError(t, strict.ApplyOptions(fscfg.WithStrictUnknownChunks(true)))
	r2, err := NewReader(&strict, openerFor(dir, "mixed"), nil, nil)
	require.NoError(t, err)
	_, _, err = r2.NextEntry()
	require.Error(t, err)
}
