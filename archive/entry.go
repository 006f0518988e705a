// Package archive 实现归档的条目读写路径（C6 写入器 + C7 读取器）
//
// 一个条目在磁盘上是一个顶层 chunk（IDFile/IDImage/IDDirectory/...），
// 里面嵌套一个 ENTR 元数据子 chunk 和零或多个 DATA 数据子 chunk。entry
// 的内容如果因为 part 大小限制被裂成多段，后续段落是一个不带 ENTR、
// 只带 DATA 的同类型顶层 chunk——读取器靠"第一个子 chunk 是不是 ENTR"
// 来判断这是新条目还是上一个条目的延续。
package archive

import (
	"github.com/bpfs/barfs/archivecompress"
	"github.com/bpfs/barfs/archivecrypt"
	"github.com/bpfs/barfs/chunks"
)

// EntryType 标识条目的种类
type EntryType int

const (
	EntryFile EntryType = iota
	EntryImage
	EntryDirectory
	EntryLink
	EntryHardlink
	EntrySpecial
)

func (t EntryType) chunkID() chunks.ID {
	switch t {
	case EntryFile:
		return chunks.IDFile
	case EntryImage:
		return chunks.IDImage
	case EntryDirectory:
		return chunks.IDDirectory
	case EntryLink:
		return chunks.IDLink
	case EntryHardlink:
		return chunks.IDHardlink
	case EntrySpecial:
		return chunks.IDSpecial
	default:
		return chunks.ID{}
	}
}

func entryTypeFromChunkID(id chunks.ID) (EntryType, bool) {
	switch id {
	case chunks.IDFile:
		return EntryFile, true
	case chunks.IDImage:
		return EntryImage, true
	case chunks.IDDirectory:
		return EntryDirectory, true
	case chunks.IDLink:
		return EntryLink, true
	case chunks.IDHardlink:
		return EntryHardlink, true
	case chunks.IDSpecial:
		return EntrySpecial, true
	default:
		return 0, false
	}
}

// FileMeta 是 FILE/IMAGE 条目的固定字段区，编码/解码都走 chunks.EncodeFields
type FileMeta struct {
	Name           string
	Size           uint64
	Permission     uint32
	UserID         uint32
	GroupID        uint32
	ModTime        uint64
	FragmentOffset uint64
	FragmentSize   uint64
	CRC            uint32 `chunk:"crc32"`
}

// EntryAlgoMeta 是每个顶层条目 chunk（新条目或分片延续）开头、紧跟在
// chunk 头部之后、未加密写出的固定字段区：记录该条目下面所有子 chunk
// 用到的压缩/加密算法代号。读取器靠这两个字段选出正确的 Cipher 和解压
// 算法，不再信任外部传入的 Options——格式因此是自描述的，脱离原始
// Options 也能正确解出来。
type EntryAlgoMeta struct {
	CompressAlgo uint16
	CryptAlgo    uint16
	CRC          uint32 `chunk:"crc32"`
}

// DirectoryMeta 是 DIRECTORY 条目的固定字段区
type DirectoryMeta struct {
	Name       string
	Permission uint32
	UserID     uint32
	GroupID    uint32
	ModTime    uint64
	CRC        uint32 `chunk:"crc32"`
}

// LinkMeta 是符号链接条目的固定字段区
type LinkMeta struct {
	Name        string
	Destination string
	Permission  uint32
	UserID      uint32
	GroupID     uint32
	CRC         uint32 `chunk:"crc32"`
}

// HardlinkMeta 是硬链接条目的固定字段区；Names 按 spec §8 场景 6 的
// 要求可以携带两个以上的别名
type HardlinkMeta struct {
	Names []string
	CRC   uint32 `chunk:"crc32"`
}

// SpecialMeta 是设备文件/FIFO 等特殊条目的固定字段区
type SpecialMeta struct {
	Name         string
	SpecialType  uint8
	Permission   uint32
	DeviceMajor  uint32
	DeviceMinor  uint32
	CRC          uint32 `chunk:"crc32"`
}

// DataMeta 是每个 DATA 子 chunk 的固定字段区；FragmentSize 在数据写完
// 之前是占位值 0，随后用 Info.UpdateFixed 原地回填真实长度
type DataMeta struct {
	FragmentOffset uint64
	FragmentSize   uint64
	CRC            uint32 `chunk:"crc32"`
}

func fieldSize(v interface{}) int {
	n, err := chunks.SizeOfFields(v)
	if err != nil {
		panic(err) // 固定结构体的编码不应当在运行时失败
	}
	return n
}

// compressAlgoCode/cryptAlgoCode 把算法标识压成 EntryAlgoMeta 里的一个
// u16 代号，读取端用同一张表反查
var compressAlgoTable = []archivecompress.Algorithm{
	archivecompress.AlgorithmNone,
	archivecompress.AlgorithmDeflate,
	archivecompress.AlgorithmZstdBzip2,
	archivecompress.AlgorithmZstdLzma,
}

var cryptAlgoTable = []archivecrypt.Algorithm{
	archivecrypt.AlgorithmNone,
	archivecrypt.Algorithm3DES,
	archivecrypt.AlgorithmCAST5,
	archivecrypt.AlgorithmBlowfish,
	archivecrypt.AlgorithmAES128,
	archivecrypt.AlgorithmAES192,
	archivecrypt.AlgorithmAES256,
	archivecrypt.AlgorithmTwofish128,
	archivecrypt.AlgorithmTwofish256,
}

func compressAlgoCode(alg archivecompress.Algorithm) uint16 {
	for i, a := range compressAlgoTable {
		if a == alg {
			return uint16(i)
		}
	}
	return 0
}

func compressAlgoFromCode(code uint16) archivecompress.Algorithm {
	if int(code) < len(compressAlgoTable) {
		return compressAlgoTable[code]
	}
	return archivecompress.AlgorithmNone
}

func cryptAlgoCode(alg archivecrypt.Algorithm) uint16 {
	for i, a := range cryptAlgoTable {
		if a == alg {
			return uint16(i)
		}
	}
	return 0
}

func cryptAlgoFromCode(code uint16) archivecrypt.Algorithm {
	if int(code) < len(cryptAlgoTable) {
		return cryptAlgoTable[code]
	}
	return archivecrypt.AlgorithmNone
}
