package ioref

import (
	"errors"
	"io"
	"os"

	logging "github.com/dep2p/log"
)

var logger = logging.Logger("ioref")

// FileIO 是 ByteIO 在本地普通文件上的实现，对应 spec 中的 "local file"
// 具体实现；归档的每一个 part 在写入阶段都绑定到一个 FileIO 实例
type FileIO struct {
	file *os.File
	eof  bool
}

// NewFileIO 打开（或创建）一个文件并返回绑定到它的 FileIO
//
// 参数:
//   - name: 文件路径
//   - write: true 表示以创建/截断方式打开用于写入，false 表示只读打开
//
// 返回值:
//   - *FileIO: 绑定到该文件的 ByteIO 实现
//   - error: 打开失败时的错误
func NewFileIO(name string, write bool) (*FileIO, error) {
	var (
		f   *os.File
		err error
	)
	if write {
		f, err = os.OpenFile(name, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o644)
	} else {
		f, err = os.Open(name)
	}
	if err != nil {
		logger.Errorf("打开文件 %s 失败: %v", name, err)
		return nil, err
	}
	return &FileIO{file: f}, nil
}

// NewFileIOFromHandle 包装一个已经打开的 *os.File
func NewFileIOFromHandle(f *os.File) *FileIO {
	return &FileIO{file: f}
}

// EOF 报告是否已经到达文件末尾
func (f *FileIO) EOF() bool {
	return f.eof
}

// Read 从当前位置读取数据
func (f *FileIO) Read(buf []byte) (int, error) {
	n, err := f.file.Read(buf)
	if errors.Is(err, io.EOF) {
		f.eof = true
		return n, nil
	}
	if err != nil {
		return n, err
	}
	if n < len(buf) {
		// 短读同样意味着已经碰到文件尾
		f.eof = true
	}
	return n, nil
}

// Write 在当前位置写入数据
func (f *FileIO) Write(buf []byte) error {
	f.eof = false
	_, err := f.file.Write(buf)
	return err
}

// Tell 返回当前读写位置
func (f *FileIO) Tell() (uint64, error) {
	offset, err := f.file.Seek(0, io.SeekCurrent)
	return uint64(offset), err
}

// Seek 将读写位置移动到 offset
func (f *FileIO) Seek(offset uint64) error {
	f.eof = false
	_, err := f.file.Seek(int64(offset), io.SeekStart)
	return err
}

// Size 返回文件的总字节数
func (f *FileIO) Size() (uint64, error) {
	info, err := f.file.Stat()
	if err != nil {
		return 0, err
	}
	return uint64(info.Size()), nil
}

// Close 关闭底层文件句柄
func (f *FileIO) Close() error {
	return f.file.Close()
}

// Sync 把缓冲的数据刷到磁盘，part 关闭前调用
func (f *FileIO) Sync() error {
	return f.file.Sync()
}
