// Package barerrors 定义归档引擎在各层之间传递的哨兵错误
//
// 所有底层包（chunks、archivecrypt、archivecompress）把原始错误直接上抛给
// archive 层；archive 层负责把"在某个候选密码下解析失败"解释成
// "换下一个密码重试"，IoError 除外，它总是致命的（见 spec §7）。
package barerrors

import "errors"

// I/O 类
var (
	// ErrEndOfArchive 表示已经到达归档的末尾，不是真正的失败
	ErrEndOfArchive = errors.New("end of archive")
	// ErrIO 包装底层存储/文件句柄返回的错误，在密码重试循环中总是致命的
	ErrIO = errors.New("i/o error")
	// ErrAborted 表示调用方通过取消令牌中止了操作
	ErrAborted = errors.New("aborted")
	// ErrEndOfStream 表示队列/流已经被标记结束，不会再接受新的消息
	ErrEndOfStream = errors.New("end of stream")
)

// 格式类
var (
	// ErrCorruptData 表示尺寸不匹配、字段被截断、数组长度非法或 CRC 校验失败
	ErrCorruptData = errors.New("corrupt data")
	// ErrUnknownChunk 仅在调用方要求严格模式时才会被上抛
	ErrUnknownChunk = errors.New("unknown chunk")
	// ErrUnsupportedBlockSize 表示压缩/加密算法要求的块大小超出实现支持范围
	ErrUnsupportedBlockSize = errors.New("unsupported block size")
	// ErrInvalidBlockLength 表示传入 Encrypt/Decrypt 的缓冲区长度不是块长度的整数倍
	ErrInvalidBlockLength = errors.New("invalid block length")
)

// 加密类
var (
	ErrNoCryptPassword  = errors.New("no crypt password given")
	ErrInvalidPassword  = errors.New("invalid password")
	ErrNoPublicKey      = errors.New("no public key available")
	ErrNoPrivateKey     = errors.New("no private key available")
	ErrInvalidKey       = errors.New("invalid key")
	ErrWrongPrivateKey  = errors.New("wrong private key")
	ErrInvalidKeyLength = errors.New("invalid key length")
	ErrEncryptFail      = errors.New("encryption failed")
	ErrDecryptFail      = errors.New("decryption failed")
	ErrCreateKeyFail    = errors.New("key pair generation failed")
)

// 条目类
var (
	ErrNoFileEntry      = errors.New("no file entry found")
	ErrNoFileData       = errors.New("no file data found")
	ErrNoImageEntry     = errors.New("no image entry found")
	ErrNoImageData      = errors.New("no image data found")
	ErrNoDirectoryEntry = errors.New("no directory entry found")
	ErrNoLinkEntry      = errors.New("no link entry found")
	ErrNoHardlinkEntry  = errors.New("no hardlink entry found")
	ErrNoHardlinkData   = errors.New("no hardlink data found")
	ErrNoSpecialEntry   = errors.New("no special entry found")
	// ErrCompressEof is the internal sentinel used by the read-data loop
	// to mean "this fragment's compressed stream is exhausted"; it never
	// escapes to callers of archive.Reader.ReadData, who get io.EOF at the
	// end of an entry instead.
	ErrCompressEof = errors.New("compress eof")
)

// 压缩类
var (
	// ErrNeedMoreInput 表示解压状态机已经消费完当前已提交的压缩字节，
	// 调用方需要再调用一次 PutBlock 喂入下一段密文才能继续 Inflate
	ErrNeedMoreInput = errors.New("need more compressed input")
)

// 资源类
var (
	// ErrInsufficientMemory 是致命错误：和原始实现一致，调用方应当终止进程
	ErrInsufficientMemory = errors.New("insufficient memory")
)
