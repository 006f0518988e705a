// Package archivecompress 实现归档数据分片的流式压缩/解压引擎（C4）
//
// 归档写入路径需要按块而不是按整条流驱动压缩器：每压满一个
// blockLength 大小的输出块就要能立刻取走喂给加密层，这样才能在不缓冲
// 整个分片的前提下完成"压缩→加密→写盘"的流水线（spec §2）。标准库
// compress/flate 的 Writer.Flush 刚好能在任意位置切出一个同步点，
// 这里把它和 klauspost/compress 的 zstd 实现包进同一个按块读写的状态机。
//
// 解压方向不用 klauspost/pgzip：pgzip.NewReader 和标准库 gzip.NewReader
// 一样，构造时就要同步读出并校验 10 字节的 gzip 头部；但这里的 State
// 在构造时还没有任何密文字节可读（ReadData 循环先构造 State 再逐块
// PutBlock），对着一个既未关闭又读不到字节的 pullSource 做头部校验会
// 死循环等待。raw deflate（compress/flate）完全没有头部，NewReader 不
// 做任何 I/O，天然适配这种"先有读者、后有字节"的惰性喂入模型。
package archivecompress

import (
	"bytes"
	"fmt"
	"io"

	"github.com/klauspost/compress/zstd"

	"compress/flate"

	"github.com/bpfs/barfs/barerrors"
	logging "github.com/dep2p/log"
)

var logger = logging.Logger("archivecompress")

// Algorithm 标识一种压缩算法
type Algorithm string

const (
	AlgorithmNone Algorithm = "none"
	// AlgorithmDeflate 是标准的 zip/deflate 算法
	AlgorithmDeflate Algorithm = "deflate"
	// AlgorithmZstdBzip2 用 zstd 在高压缩比层级上替代 bzip2——样例仓库里
	// 没有现成的 bzip2 压缩器实现，这里记录为明确的替代选择而不是假造依赖
	// （见 DESIGN.md）
	AlgorithmZstdBzip2 Algorithm = "zstd-bzip2"
	// AlgorithmZstdLzma 同上，在更高压缩比层级上替代 lzma
	AlgorithmZstdLzma Algorithm = "zstd-lzma"
)

// Mode 标记一个 State 是压缩方向还是解压方向
type Mode int

const (
	ModeCompress Mode = iota
	ModeDecompress
)

// AvailKind 控制 AvailableBlocks 的统计口径
type AvailKind int

const (
	// AvailFull 只统计已经攒够 blockLength 字节的完整块数
	AvailFull AvailKind = iota
	// AvailAny 只要有任何已产出的字节就算一块，收尾时用它排空残余数据
	AvailAny
)

// pullSource 把一个只支持"追加→读取"的缓冲区适配成 io.Reader：
// Read 在缓冲区为空但还没有被标记 EOF 时返回 (0, nil)，调用方据此判断
// 需要再调用一次 PutBlock 补充输入（而不是真的遇到了流末尾）
type pullSource struct {
	buf    bytes.Buffer
	closed bool
}

func (p *pullSource) Read(out []byte) (int, error) {
	if p.buf.Len() == 0 {
		if p.closed {
			return 0, io.EOF
		}
		return 0, nil
	}
	return p.buf.Read(out)
}

// State 是单个分片专属的压缩/解压状态；分片边界处重新 New 一个 State，
// 不跨分片复用压缩字典，这样分片可以被独立地打开和解密
type State struct {
	mode        Mode
	alg         Algorithm
	blockLength int

	outBuf bytes.Buffer // 压缩方向：已产出、等待 GetBlock 取走的压缩字节

	source      *pullSource // 解压方向：PutBlock 喂入的压缩字节暂存区
	flateWriter *flate.Writer
	flateReader io.ReadCloser
	zstdEncoder *zstd.Encoder
	zstdDecoder *zstd.Decoder

	totalIn uint64
}

// New 构造一个绑定到给定算法和方向的压缩/解压状态
//
// 参数:
//   - mode: ModeCompress 或 ModeDecompress
//   - alg: 压缩算法
//   - blockLength: GetBlock/PutBlock 的建议块大小（字节）
func New(mode Mode, alg Algorithm, blockLength int) (*State, error) {
	s := &State{mode: mode, alg: alg, blockLength: blockLength}

	if alg == AlgorithmNone {
		if mode == ModeDecompress {
			s.source = &pullSource{}
		}
		return s, nil
	}

	switch mode {
	case ModeCompress:
		if err := s.initWriter(); err != nil {
			return nil, err
		}
	case ModeDecompress:
		s.source = &pullSource{}
		if err := s.initReader(); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func (s *State) initWriter() error {
	switch s.alg {
	case AlgorithmDeflate:
		w, err := flate.NewWriter(&s.outBuf, flate.DefaultCompression)
		if err != nil {
			return err
		}
		s.flateWriter = w
	case AlgorithmZstdBzip2, AlgorithmZstdLzma:
		level := zstd.SpeedBetterCompression
		if s.alg == AlgorithmZstdLzma {
			level = zstd.SpeedBestCompression
		}
		enc, err := zstd.NewWriter(&s.outBuf, zstd.WithEncoderLevel(level))
		if err != nil {
			return err
		}
		s.zstdEncoder = enc
	default:
		return fmt.Errorf("%w: 未知压缩算法 %s", barerrors.ErrUnsupportedBlockSize, s.alg)
	}
	return nil
}

func (s *State) initReader() error {
	switch s.alg {
	case AlgorithmDeflate:
		s.flateReader = flate.NewReader(s.source)
	case AlgorithmZstdBzip2, AlgorithmZstdLzma:
		dec, err := zstd.NewReader(s.source)
		if err != nil {
			return err
		}
		s.zstdDecoder = dec
	default:
		return fmt.Errorf("%w: 未知压缩算法 %s", barerrors.ErrUnsupportedBlockSize, s.alg)
	}
	return nil
}

// Deflate 把明文喂给压缩器；产出的压缩字节累积在内部缓冲区，通过
// GetBlock 取走
func (s *State) Deflate(data []byte) error {
	s.totalIn += uint64(len(data))
	if s.alg == AlgorithmNone {
		s.outBuf.Write(data)
		return nil
	}
	switch s.alg {
	case AlgorithmDeflate:
		_, err := s.flateWriter.Write(data)
		return err
	case AlgorithmZstdBzip2, AlgorithmZstdLzma:
		_, err := s.zstdEncoder.Write(data)
		return err
	default:
		return fmt.Errorf("%w: %s", barerrors.ErrUnsupportedBlockSize, s.alg)
	}
}

// Flush 在当前位置切出一个同步点，确保此前 Deflate 的数据全部进入
// outBuf，分片关闭前必须调用一次
func (s *State) Flush() error {
	switch s.alg {
	case AlgorithmNone:
		return nil
	case AlgorithmDeflate:
		return s.flateWriter.Flush()
	case AlgorithmZstdBzip2, AlgorithmZstdLzma:
		return s.zstdEncoder.Flush()
	default:
		return fmt.Errorf("%w: %s", barerrors.ErrUnsupportedBlockSize, s.alg)
	}
}

// Close 结束压缩流，写出算法要求的收尾字节（比如 deflate 的最终块标记）
func (s *State) Close() error {
	switch s.alg {
	case AlgorithmNone:
		return nil
	case AlgorithmDeflate:
		return s.flateWriter.Close()
	case AlgorithmZstdBzip2, AlgorithmZstdLzma:
		return s.zstdEncoder.Close()
	default:
		return nil
	}
}

// GetBlock 从已产出的压缩字节里取走最多 len(buf) 字节
func (s *State) GetBlock(buf []byte) (int, error) {
	return s.outBuf.Read(buf)
}

// PutBlock 喂入一段压缩字节（解压方向），供 Inflate 消费
func (s *State) PutBlock(compressed []byte) error {
	if s.source == nil {
		return fmt.Errorf("%w: state 未处于解压模式", barerrors.ErrIO)
	}
	_, err := s.source.buf.Write(compressed)
	return err
}

// CloseInput 告诉解压器不会再有更多的 PutBlock 调用；Inflate 在消费完
// 剩余的已缓冲字节后会返回 barerrors.ErrCompressEof 而不是
// ErrNeedMoreInput
func (s *State) CloseInput() {
	if s.source != nil {
		s.source.closed = true
	}
}

// Inflate 把解压后的明文写入 out，返回实际写入的字节数。如果内部已缓
// 冲的压缩字节不够产出哪怕一个字节，返回 barerrors.ErrNeedMoreInput，
// 调用方应当再 PutBlock 一段密文后重试；如果 CloseInput 之后压缩流真
// 正耗尽，返回 barerrors.ErrCompressEof
func (s *State) Inflate(out []byte) (int, error) {
	if s.source.buf.Len() == 0 && !s.source.closed {
		return 0, barerrors.ErrNeedMoreInput
	}
	var (
		n   int
		err error
	)
	switch s.alg {
	case AlgorithmNone:
		n, err = s.source.Read(out)
	case AlgorithmDeflate:
		n, err = s.flateReader.Read(out)
	case AlgorithmZstdBzip2, AlgorithmZstdLzma:
		n, err = s.zstdDecoder.Read(out)
	default:
		return 0, fmt.Errorf("%w: %s", barerrors.ErrUnsupportedBlockSize, s.alg)
	}
	if err == io.EOF {
		return n, barerrors.ErrCompressEof
	}
	if n == 0 && err == nil {
		return 0, barerrors.ErrNeedMoreInput
	}
	return n, err
}

// AvailableBlocks 按 kind 指定的口径返回已产出、可供 GetBlock 取走的
// 压缩块数量
func (s *State) AvailableBlocks(kind AvailKind) int {
	n := s.outBuf.Len()
	if kind == AvailAny {
		if n > 0 {
			return 1
		}
		return 0
	}
	if s.blockLength <= 0 {
		return 0
	}
	return n / s.blockLength
}

// AvailableBytes 返回已产出、尚未被 GetBlock 取走的压缩字节总数
func (s *State) AvailableBytes() int {
	return s.outBuf.Len()
}

// InputLength 返回目前为止喂给 Deflate 的明文总字节数
func (s *State) InputLength() uint64 {
	return s.totalIn
}

// Reset 丢弃当前状态，为新的分片重新准备一个干净的压缩/解压状态机；
// 分片之间故意不共享压缩字典，这样每个分片都能独立地被解密和解压
func (s *State) Reset() error {
	if s.flateWriter != nil {
		if err := s.flateWriter.Close(); err != nil {
			return err
		}
	}
	if s.zstdEncoder != nil {
		_ = s.zstdEncoder.Close()
	}
	if s.zstdDecoder != nil {
		s.zstdDecoder.Close()
	}
	s.outBuf.Reset()
	s.totalIn = 0
	if s.source != nil {
		s.source = &pullSource{}
	}
	if s.mode == ModeCompress && s.alg != AlgorithmNone {
		return s.initWriter()
	}
	if s.mode == ModeDecompress && s.alg != AlgorithmNone {
		return s.initReader()
	}
	return nil
}
