package chunks

import (
	"fmt"

	"github.com/bpfs/barfs/barerrors"
	"github.com/bpfs/barfs/ioref"
)

// Cipher is the minimal capability chunk needs from a crypt state in order
// to encrypt/decrypt the fixed-field area of a chunk. archivecrypt.State
// implements this; chunks never imports archivecrypt directly, which keeps
// the dependency pointed one way (crypt knows about chunk headers, chunk
// does not need to know about cipher suites).
type Cipher interface {
	// BlockLength 返回密码算法的块长度（字节）；1 表示不分块（即未加密）
	BlockLength() int
	// Reset 用给定的种子重新派生该 chunk 专属的 IV
	Reset(seed uint64)
	// Encrypt 原地加密 buf，任意长度（>0）均可：长于一个块但非整数倍时
	// 内部用密文窃取（CTS）处理，短于一个块时用单块密钥流异或，不改变
	// buf 的长度
	Encrypt(buf []byte) error
	// Decrypt 原地解密 buf，语义同 Encrypt
	Decrypt(buf []byte) error
}

// Mode 标记一个 Info 是绑定到写入路径还是读取路径
type Mode int

const (
	ModeRead Mode = iota
	ModeWrite
)

// Info 是单个 chunk 的读写句柄：绑定一段共享的 ByteIO 流、一个可选的父
// chunk 指针、以及一个可选的 Cipher（用于加密固定字段区）。写入中的
// 归档 part 内所有 Info 共享同一个底层 ByteIO，因此不需要父子互相委托
// I/O。父指针只被保存下来，Info 自己不读取它，也不做越界检查；子 chunk
// 的可读范围由 NextSub/EOFSub 按父 Info 的 PayloadEnd 界定
// （这是对 spec §9 "子 chunk 如何解析当前位置" 这一设计笔记的简化处理）。
type Info struct {
	io     ioref.ByteIO
	parent *Info
	id     ID
	mode   Mode
	cipher Cipher

	headerOffset uint64
	payloadStart uint64
	size         uint64
	index        uint64
}

// NewInfo 构造一个未绑定到具体 chunk 的 Info；随后调用 Create 或 Open
func NewInfo(parent *Info, bio ioref.ByteIO, id ID, cipher Cipher) *Info {
	return &Info{io: bio, parent: parent, id: id, cipher: cipher}
}

// Create 在底层流的当前位置写出一个占位头部，准备接收负载
func (c *Info) Create() error {
	c.mode = ModeWrite
	offset, err := c.io.Tell()
	if err != nil {
		return err
	}
	c.headerOffset = offset
	if err := writeHeader(c.io, Header{ID: c.id, Size: 0}); err != nil {
		return err
	}
	c.payloadStart = offset + HeaderSize
	c.size = 0
	c.index = 0
	return nil
}

// Open 绑定一个已经读出的头部，为随后的 ReadFixed/ReadData 做准备
func (c *Info) Open(h Header) error {
	c.mode = ModeRead
	c.id = h.ID
	c.headerOffset = h.Offset
	c.payloadStart = h.Offset + HeaderSize
	c.size = h.Size
	c.index = 0
	return nil
}

// ID 返回该 chunk 的标签
func (c *Info) ID() ID { return c.id }

// Size 返回该 chunk 声明的负载大小（只读模式下来自磁盘；写入模式下
// Close 之前恒为 0，Close 之后是回填进头部的最终大小）
func (c *Info) Size() uint64 { return c.size }

// Cipher 返回绑定到该 chunk 的密码状态，nil 表示未加密
func (c *Info) Cipher() Cipher { return c.cipher }

// SetCipher 替换绑定的密码状态，用于 UpdateFixed 前临时换上一个 seed
// 重置过的独立 Cipher 实例，而不影响该 chunk 负载部分正在使用的那一个
// （归档写入器在回填 fragmentSize 时依赖这个方法，见 archive 包）
func (c *Info) SetCipher(cipher Cipher) { c.cipher = cipher }

// WriteFixed 编码并写出固定字段区；有 cipher 时原地加密（CBC+CTS 不
// 改变明文长度，见 archivecrypt 包，这里不需要做任何块对齐的填充）
func (c *Info) WriteFixed(v interface{}) error {
	buf, err := EncodeFields(v)
	if err != nil {
		return err
	}
	return c.writeFixedBytes(buf)
}

func (c *Info) writeFixedBytes(buf []byte) error {
	if c.cipher != nil && c.cipher.BlockLength() > 1 && len(buf) > 0 {
		if err := c.cipher.Encrypt(buf); err != nil {
			return err
		}
	}
	if err := c.io.Write(buf); err != nil {
		return err
	}
	c.index += uint64(len(buf))
	return nil
}

// ReadFixed 读取并解密（如果有 cipher）固定字段区，返回明文给调用方
// 自行 DecodeFields；fixedSize 是该结构体编码后的精确字节数
func (c *Info) ReadFixed(fixedSize int) ([]byte, error) {
	buf := make([]byte, fixedSize)
	if err := readFull(c.io, buf); err != nil {
		return nil, err
	}
	if c.cipher != nil && c.cipher.BlockLength() > 1 && len(buf) > 0 {
		if err := c.cipher.Decrypt(buf); err != nil {
			return nil, err
		}
	}
	c.index += uint64(fixedSize)
	return buf, nil
}

// UpdateFixed 原地改写已经写出的固定字段区（比如分片关闭前回填
// fragmentSize），不改变当前读写游标。调用方需要在调用前把 cipher
// reset 回与首次写出时相同的种子，这里不重复做这件事，因为 Info 本身
// 不知道"首次种子"是什么——这是归档层的职责。
func (c *Info) UpdateFixed(v interface{}) error {
	save, err := c.io.Tell()
	if err != nil {
		return err
	}
	if err := c.io.Seek(c.payloadStart); err != nil {
		return err
	}
	buf, err := EncodeFields(v)
	if err != nil {
		return err
	}
	if c.cipher != nil && c.cipher.BlockLength() > 1 && len(buf) > 0 {
		if err := c.cipher.Encrypt(buf); err != nil {
			return err
		}
	}
	if err := c.io.Write(buf); err != nil {
		return err
	}
	return c.io.Seek(save)
}

// WriteData 在固定字段区之后写出原始负载字节（比如密文数据块）
func (c *Info) WriteData(buf []byte) error {
	if err := c.io.Write(buf); err != nil {
		return err
	}
	c.index += uint64(len(buf))
	return nil
}

// ReadData 从固定字段区之后的位置读取最多 len(buf) 字节，不超过该
// chunk 声明的剩余负载
func (c *Info) ReadData(buf []byte) (int, error) {
	remaining := c.size - c.index
	if remaining == 0 {
		return 0, barerrors.ErrEndOfArchive
	}
	if uint64(len(buf)) > remaining {
		buf = buf[:remaining]
	}
	n, err := c.io.Read(buf)
	c.index += uint64(n)
	return n, err
}

// Close 回填头部的最终 size 并把读写游标留在紧随负载之后
func (c *Info) Close() error {
	end, err := c.io.Tell()
	if err != nil {
		return err
	}
	c.size = end - c.payloadStart
	if err := c.io.Seek(c.headerOffset); err != nil {
		return err
	}
	if err := writeHeader(c.io, Header{ID: c.id, Size: c.size}); err != nil {
		return err
	}
	return c.io.Seek(end)
}

// Tell 返回该 chunk 内部的相对读写位置（0..Size）
func (c *Info) Tell() uint64 { return c.index }

// Seek 把该 chunk 内部的读写位置移动到 offset（0..Size）
func (c *Info) Seek(offset uint64) error {
	if offset > c.size && c.mode == ModeRead {
		return barerrors.ErrCorruptData
	}
	c.index = offset
	return c.io.Seek(c.payloadStart + offset)
}

// EOF 报告该 chunk 的负载是否已经读完
func (c *Info) EOF() bool {
	return c.index >= c.size
}

// PayloadEnd 返回紧随该 chunk 负载之后的绝对偏移量，用于界定子 chunk
func (c *Info) PayloadEnd() uint64 {
	if c.mode == ModeWrite {
		end, _ := c.io.Tell()
		return end
	}
	return c.payloadStart + c.size
}

// NextSub 在 parent 的负载范围内读取下一个子 chunk 头部
func NextSub(parent *Info) (Header, error) {
	if done, err := EOFSub(parent); err != nil {
		return Header{}, err
	} else if done {
		return Header{}, barerrors.ErrEndOfArchive
	}
	return readHeader(parent.io)
}

// SkipSub 跳过一个子 chunk 并让 parent 的内部游标追上新的位置
func SkipSub(parent *Info, h Header) error {
	if err := Skip(parent.io, h); err != nil {
		return err
	}
	parent.index = h.End() - parent.payloadStart
	return nil
}

// EOFSub 报告 parent 的负载范围内是否已经没有更多子 chunk
func EOFSub(parent *Info) (bool, error) {
	offset, err := parent.io.Tell()
	if err != nil {
		return false, err
	}
	return offset >= parent.PayloadEnd(), nil
}

// UngetSub 把一个已经读出的子 chunk 头部放回去，供一槽前看使用
func UngetSub(parent *Info, h Header) error {
	if err := parent.io.Seek(h.Offset); err != nil {
		return err
	}
	parent.index = h.Offset - parent.payloadStart
	return nil
}

// Check 在严格模式下，对未知的顶层 chunk id 返回 ErrUnknownChunk；
// 非严格模式下调用方应当直接 Skip 而不调用 Check
func Check(id ID, known []ID, strict bool) error {
	if !strict {
		return nil
	}
	for _, k := range known {
		if k == id {
			return nil
		}
	}
	return fmt.Errorf("%w: %s", barerrors.ErrUnknownChunk, id)
}
