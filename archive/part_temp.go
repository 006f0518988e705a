package archive

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/bpfs/barfs/ioref"
)

// PartOwner 决定归档写入器在需要新的物理 part 时把数据写到哪里，以及
// 一个 part 写完之后如何"认领"它（通常是从临时文件改名成最终的归档
// part 文件名）。写入器本身不关心这些文件系统细节，只通过这个接口
// 和具体的存储策略打交道。
type PartOwner interface {
	// NewPart 为第 partNumber 个 part（从 0 开始）打开一个新的可写 ByteIO
	NewPart(partNumber int) (ioref.ByteIO, error)
	// ClosePart 在一个 part 写完并关闭底层句柄之后调用，last 表示这是
	// 不是整个归档的最后一个 part
	ClosePart(partNumber int, last bool) error
}

// LocalPartOwner 把每个 part 先写到一个带 uuid 的临时文件，完成后再
// 原子改名成形如 "<baseName>.bar.NNN" 的最终文件名；这是对 tempfile/
// filestore 那套"先写临时文件再提交"模式的推广，不再绑定某一个具体的
// 父目录层级关系，而是直接面向一个输出目录
type LocalPartOwner struct {
	dir      string
	baseName string

	current  *os.File
	tempPath string
	partNum  int
}

// NewLocalPartOwner 构造一个把 part 写进 dir 目录、文件名前缀为
// baseName 的 PartOwner
func NewLocalPartOwner(dir, baseName string) *LocalPartOwner {
	return &LocalPartOwner{dir: dir, baseName: baseName}
}

// NewPart 创建一个带 uuid 的临时文件并返回绑定到它的 ByteIO
func (o *LocalPartOwner) NewPart(partNumber int) (ioref.ByteIO, error) {
	tempPath := filepath.Join(o.dir, fmt.Sprintf(".%s.%s.tmp", o.baseName, uuid.NewString()))
	f, err := os.OpenFile(tempPath, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, err
	}
	o.current = f
	o.tempPath = tempPath
	o.partNum = partNumber
	return ioref.NewFileIOFromHandle(f), nil
}

// finalPartName 返回第 partNumber 个 part 的最终文件名
func (o *LocalPartOwner) finalPartName(partNumber int) string {
	return filepath.Join(o.dir, fmt.Sprintf("%s.bar.%03d", o.baseName, partNumber))
}

// ClosePart 把当前临时文件 fsync 后原子改名到最终文件名
func (o *LocalPartOwner) ClosePart(partNumber int, last bool) error {
	if o.current == nil {
		return nil
	}
	if err := o.current.Sync(); err != nil {
		o.current.Close()
		return err
	}
	if err := o.current.Close(); err != nil {
		return err
	}
	final := o.finalPartName(partNumber)
	if err := os.Rename(o.tempPath, final); err != nil {
		return fmt.Errorf("提交 part %d 失败: %w", partNumber, err)
	}
	o.current = nil
	o.tempPath = ""
	return nil
}
