// Package chunks 实现归档容器的通用分块编解码层（C2）
//
// 一个 chunk 是带标签、长度前缀的二进制记录：12 字节头部
// {id[4], size:u64 大端} 后跟 size 字节的负载；负载内部可以再嵌套
// 子 chunk。读者只凭 size 字段就能跳过任何不认识的 chunk —— 这是整个
// 归档格式能够向前兼容演进的关键不变式（spec §3）。
package chunks

import (
	"encoding/binary"
	"fmt"

	"github.com/bpfs/barfs/barerrors"
	"github.com/bpfs/barfs/ioref"
	logging "github.com/dep2p/log"
)

var logger = logging.Logger("chunks")

// HeaderSize 是 chunk 头部在磁盘上的固定大小：4 字节 id + 8 字节大端 size
const HeaderSize = 4 + 8

// ID 是 chunk 的 4 字节标签。顶层 chunk 的 id 严格是 4 个 ASCII 字符
// （spec §6）；子 chunk 的 id 在各自父 chunk 的上下文内部解释，不需要
// 全局唯一，这里同样用 4 字节短码表示。
type ID [4]byte

// String 以可读形式返回 chunk id，便于日志和错误信息
func (id ID) String() string {
	b := make([]byte, 0, 4)
	for _, c := range id {
		if c == 0 {
			break
		}
		b = append(b, c)
	}
	return string(b)
}

// 顶层 chunk 标签
var (
	IDHeader    = ID{'B', 'A', 'R', '0'}
	IDKey       = ID{'K', 'E', 'Y', '0'}
	IDFile      = ID{'F', 'I', 'L', 'E'}
	IDImage     = ID{'I', 'M', 'A', 'G'}
	IDDirectory = ID{'D', 'I', 'R', '0'}
	IDLink      = ID{'L', 'I', 'N', 'K'}
	IDHardlink  = ID{'H', 'L', 'N', 'K'}
	IDSpecial   = ID{'S', 'P', 'E', 'C'}
)

// 子 chunk 标签（在各自父 chunk 内解释）
var (
	IDEntryMeta = ID{'E', 'N', 'T', 'R'}
	IDDataMeta  = ID{'D', 'A', 'T', 'A'}
	IDName      = ID{'N', 'A', 'M', 'E'}
)

// Header 是一个 chunk 的头部信息，外加其在底层流中的起始偏移量
// （偏移量不上磁盘，只在内存中用于 skip/seek 计算）
type Header struct {
	ID     ID
	Size   uint64
	Offset uint64
}

// End 返回紧跟在本 chunk 之后的偏移量：Offset + 头部大小 + Size
func (h Header) End() uint64 {
	return h.Offset + HeaderSize + h.Size
}

// readFull 循环调用 bio.Read 直到填满 buf 或者确认遇到了文件尾
func readFull(bio ioref.ByteIO, buf []byte) error {
	total := 0
	for total < len(buf) {
		n, err := bio.Read(buf[total:])
		if err != nil {
			return err
		}
		total += n
		if n == 0 {
			if bio.EOF() {
				return barerrors.ErrEndOfArchive
			}
			return fmt.Errorf("%w: short read", barerrors.ErrIO)
		}
	}
	return nil
}

// writeHeader 在 bio 的当前位置写出 12 字节的 chunk 头部
func writeHeader(bio ioref.ByteIO, h Header) error {
	buf := make([]byte, HeaderSize)
	copy(buf[0:4], h.ID[:])
	binary.BigEndian.PutUint64(buf[4:12], h.Size)
	return bio.Write(buf)
}

// readHeader 在 bio 的当前位置读取一个 12 字节的 chunk 头部
func readHeader(bio ioref.ByteIO) (Header, error) {
	offset, err := bio.Tell()
	if err != nil {
		return Header{}, err
	}
	buf := make([]byte, HeaderSize)
	if err := readFull(bio, buf); err != nil {
		return Header{}, err
	}
	var h Header
	copy(h.ID[:], buf[0:4])
	h.Size = binary.BigEndian.Uint64(buf[4:12])
	h.Offset = offset
	return h, nil
}

// Next 读取 bio 当前位置的下一个顶层 chunk 头部
func Next(bio ioref.ByteIO) (Header, error) {
	return readHeader(bio)
}

// Skip 跳过一个顶层 chunk：把读写位置移动到 header.Offset+12+header.Size，
// 不管负载内部有什么结构——这正是 size 字段存在的意义
func Skip(bio ioref.ByteIO, h Header) error {
	return bio.Seek(h.End())
}

// Unget 把一个已经读出的头部"放回去"：一槽的前看缓冲，通过把读写位置
// 重新定位到该头部的起始偏移实现（见 spec §4.7 的一槽前看状态机）
func Unget(bio ioref.ByteIO, h Header) error {
	return bio.Seek(h.Offset)
}

// EOF 报告 bio 是否已经没有更多顶层 chunk 可读
func EOF(bio ioref.ByteIO) (bool, error) {
	offset, err := bio.Tell()
	if err != nil {
		return false, err
	}
	size, err := bio.Size()
	if err != nil {
		return false, err
	}
	return offset >= size, nil
}
