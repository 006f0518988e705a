package archive

import (
	"fmt"

	logging "github.com/dep2p/log"

	"github.com/bpfs/barfs/archivecompress"
	"github.com/bpfs/barfs/archivecrypt"
	"github.com/bpfs/barfs/chunks"
	"github.com/bpfs/barfs/fscfg"
	"github.com/bpfs/barfs/ioref"
)

var logger = logging.Logger("archive")

// BarMeta 是每个 part 开头 IDHeader chunk 的固定字段区
type BarMeta struct {
	Version uint32
	CRC     uint32 `chunk:"crc32"`
}

// KeyMeta 是 IDKey chunk 的固定字段区：RSA 封装后的会话密钥
type KeyMeta struct {
	Wrapped []byte `chunk:"data"`
	CRC     uint32 `chunk:"crc32"`
}

const barFormatVersion = 1

// entryState 跟踪一个仍在写入中的条目：已经打开的顶层 chunk、当前分片
// 以及该分片用到的压缩/加密状态
type entryState struct {
	typ       EntryType
	topInfo   *chunks.Info
	totalSize uint64 // File/Image 条目声明的总长度，非 File/Image 恒为 0

	compressAlg archivecompress.Algorithm // 整个条目固定不变，分片延续时复用
	cryptAlg    archivecrypt.Algorithm

	dataInfo        *chunks.Info
	dataCipher      chunks.Cipher
	dataSeed        uint64
	compress        *archivecompress.State
	fragmentLogical uint64 // 当前分片已经接收的原始字节数
	totalWritten    uint64 // 整个条目已经接收的原始字节数
}

// Writer 是归档的写入端（C6）：把一串条目编码成一个或多个 part 文件
type Writer struct {
	opts  *fscfg.Options
	owner PartOwner

	partNumber int
	bio        ioref.ByteIO

	symmetricKey      []byte // 对称模式下直接来自密码；非对称模式下是随机会话密钥
	wrappedSessionKey []byte // 非对称模式下 RSA 封装后写进 IDKey chunk 的内容

	entry *entryState
}

// NewWriter 构造一个写入器并立即开出第 0 个 part
func NewWriter(opts *fscfg.Options, owner PartOwner) (*Writer, error) {
	w := &Writer{opts: opts, owner: owner}

	switch opts.GetCryptType() {
	case fscfg.CryptTypeSymmetric:
		w.symmetricKey = opts.GetCryptPassword()
	case fscfg.CryptTypeAsymmetric:
		keyLen, err := archivecrypt.KeyLength(opts.GetCryptAlgorithm())
		if err != nil {
			return nil, err
		}
		sessionKey, err := archivecrypt.GenerateSessionKey(keyLen)
		if err != nil {
			return nil, err
		}
		wrapped, err := archivecrypt.WrapSessionKey(opts.GetPublicKey(), sessionKey)
		if err != nil {
			return nil, err
		}
		w.symmetricKey = sessionKey
		w.wrappedSessionKey = wrapped
	}

	if err := w.openPart(0); err != nil {
		return nil, err
	}
	return w, nil
}

func (w *Writer) openPart(partNumber int) error {
	bio, err := w.owner.NewPart(partNumber)
	if err != nil {
		return err
	}
	w.bio = bio
	w.partNumber = partNumber
	logger.Infof("开出 part %d", partNumber)

	bar := chunks.NewInfo(nil, w.bio, chunks.IDHeader, nil)
	if err := bar.Create(); err != nil {
		return err
	}
	if err := bar.WriteFixed(&BarMeta{Version: barFormatVersion}); err != nil {
		return err
	}
	if err := bar.Close(); err != nil {
		return err
	}

	if w.opts.GetCryptType() == fscfg.CryptTypeAsymmetric && len(w.wrappedSessionKey) > 0 {
		key := chunks.NewInfo(nil, w.bio, chunks.IDKey, nil)
		if err := key.Create(); err != nil {
			return err
		}
		if err := key.WriteFixed(&KeyMeta{Wrapped: w.wrappedSessionKey}); err != nil {
			return err
		}
		if err := key.Close(); err != nil {
			return err
		}
	}
	return nil
}

// newEntryCipher 为种子 seed、指定算法 alg 构造一个新鲜的 Cipher 实例；
// alg 为 AlgorithmNone 时返回 nil（未加密）
func (w *Writer) newEntryCipher(alg archivecrypt.Algorithm, seed uint64) (chunks.Cipher, error) {
	if alg == archivecrypt.AlgorithmNone {
		return nil, nil
	}
	st, err := archivecrypt.Init(alg, w.symmetricKey)
	if err != nil {
		return nil, err
	}
	st.Reset(seed)
	return st, nil
}

// entryCryptAlgorithm 返回本次写入实际使用的加密算法；未启用加密时是
// AlgorithmNone，这个值会被原样写进顶层 chunk 的 EntryAlgoMeta
func (w *Writer) entryCryptAlgorithm() archivecrypt.Algorithm {
	if w.opts.GetCryptType() == fscfg.CryptTypeNone {
		return archivecrypt.AlgorithmNone
	}
	return w.opts.GetCryptAlgorithm()
}

// writeEntryAlgoMeta 在刚 Create 出来、还没有任何子 chunk 的顶层 chunk
// 上写出未加密的 EntryAlgoMeta，让这个条目自描述它下面子 chunk 用到的
// 压缩/加密算法
func writeEntryAlgoMeta(top *chunks.Info, compressAlg archivecompress.Algorithm, cryptAlg archivecrypt.Algorithm) error {
	return top.WriteFixed(&EntryAlgoMeta{
		CompressAlgo: compressAlgoCode(compressAlg),
		CryptAlgo:    cryptAlgoCode(cryptAlg),
	})
}

// writeSimpleEntry 写出一个不带数据分片的条目（目录/链接/硬链接/特殊
// 文件）：顶层 chunk 先写出未加密的 EntryAlgoMeta，再包含一个 ENTR 子
// chunk，写完立即关闭
func (w *Writer) writeSimpleEntry(typ EntryType, writeMeta func(*chunks.Info) error) error {
	if w.entry != nil {
		return fmt.Errorf("archive: 上一个条目还没有关闭")
	}
	cryptAlg := w.entryCryptAlgorithm()

	top := chunks.NewInfo(nil, w.bio, typ.chunkID(), nil)
	if err := top.Create(); err != nil {
		return err
	}
	if err := writeEntryAlgoMeta(top, archivecompress.AlgorithmNone, cryptAlg); err != nil {
		return err
	}
	cipher, err := w.newEntryCipher(cryptAlg, 0)
	if err != nil {
		return err
	}
	entr := chunks.NewInfo(top, w.bio, chunks.IDEntryMeta, cipher)
	if err := entr.Create(); err != nil {
		return err
	}
	if err := writeMeta(entr); err != nil {
		return err
	}
	if err := entr.Close(); err != nil {
		return err
	}
	return top.Close()
}

// NewDirectoryEntry 写出一个目录条目
func (w *Writer) NewDirectoryEntry(meta DirectoryMeta) error {
	return w.writeSimpleEntry(EntryDirectory, func(info *chunks.Info) error {
		return info.WriteFixed(&meta)
	})
}

// NewLinkEntry 写出一个符号链接条目
func (w *Writer) NewLinkEntry(meta LinkMeta) error {
	return w.writeSimpleEntry(EntryLink, func(info *chunks.Info) error {
		return info.WriteFixed(&meta)
	})
}

// NewHardlinkEntry 写出一个硬链接条目，meta.Names 可以携带两个以上别名
func (w *Writer) NewHardlinkEntry(meta HardlinkMeta) error {
	return w.writeSimpleEntry(EntryHardlink, func(info *chunks.Info) error {
		return info.WriteFixed(&meta)
	})
}

// NewSpecialEntry 写出一个设备文件/FIFO 等特殊条目
func (w *Writer) NewSpecialEntry(meta SpecialMeta) error {
	return w.writeSimpleEntry(EntrySpecial, func(info *chunks.Info) error {
		return info.WriteFixed(&meta)
	})
}

// newFragmentedEntry 打开一个带数据分片的条目（普通文件或磁盘映像），
// 写出 ENTR 之后立即开出第一个 DATA 分片，等待后续的 Write 调用
func (w *Writer) newFragmentedEntry(typ EntryType, meta *FileMeta) error {
	if w.entry != nil {
		return fmt.Errorf("archive: 上一个条目还没有关闭")
	}
	compressAlg := w.opts.GetCompressAlgorithm()
	cryptAlg := w.entryCryptAlgorithm()

	top := chunks.NewInfo(nil, w.bio, typ.chunkID(), nil)
	if err := top.Create(); err != nil {
		return err
	}
	if err := writeEntryAlgoMeta(top, compressAlg, cryptAlg); err != nil {
		return err
	}
	cipher, err := w.newEntryCipher(cryptAlg, 0)
	if err != nil {
		return err
	}
	entr := chunks.NewInfo(top, w.bio, chunks.IDEntryMeta, cipher)
	if err := entr.Create(); err != nil {
		return err
	}
	if err := entr.WriteFixed(meta); err != nil {
		return err
	}
	if err := entr.Close(); err != nil {
		return err
	}

	w.entry = &entryState{typ: typ, topInfo: top, totalSize: meta.Size, compressAlg: compressAlg, cryptAlg: cryptAlg}
	return w.openFragment()
}

// NewFileEntry 写出一个普通文件条目，随后用 Write/CloseEntry 喂数据
func (w *Writer) NewFileEntry(meta FileMeta) error {
	return w.newFragmentedEntry(EntryFile, &meta)
}

// NewImageEntry 写出一个磁盘映像条目，语义与 NewFileEntry 相同
func (w *Writer) NewImageEntry(meta FileMeta) error {
	return w.newFragmentedEntry(EntryImage, &meta)
}

// openFragment 在当前条目的顶层 chunk 下开出一个新的 DATA 子 chunk 和
// 与之绑定的全新压缩状态
func (w *Writer) openFragment() error {
	e := w.entry
	seed := e.totalWritten

	cipher, err := w.newEntryCipher(e.cryptAlg, seed)
	if err != nil {
		return err
	}

	// DataMeta 用一个独立的同种子 Cipher 加密，负载部分的 IV 链因此不依赖
	// DataMeta 的密文（closeFragmentMeta 回填 FragmentSize 后密文会变）
	fixedCipher, err := w.newEntryCipher(e.cryptAlg, seed)
	if err != nil {
		return err
	}
	info := chunks.NewInfo(e.topInfo, w.bio, chunks.IDDataMeta, fixedCipher)
	if err := info.Create(); err != nil {
		return err
	}
	if err := info.WriteFixed(&DataMeta{FragmentOffset: seed, FragmentSize: 0}); err != nil {
		return err
	}

	compress, err := archivecompress.New(archivecompress.ModeCompress, e.compressAlg, w.opts.GetBufferSize())
	if err != nil {
		return err
	}

	e.dataInfo = info
	e.dataCipher = cipher
	e.dataSeed = seed
	e.compress = compress
	e.fragmentLogical = 0
	return nil
}

// closeFragmentMeta 回填当前分片的 FragmentSize 并关闭它的 DATA chunk。
// fixedSize 区用一个重新 seed 过的独立 Cipher 重新加密，不借用分片负
// 载部分那个已经把 IV 链推进了很远的 Cipher
func (w *Writer) closeFragmentMeta() error {
	e := w.entry
	meta := DataMeta{FragmentOffset: e.dataSeed, FragmentSize: e.fragmentLogical}

	if e.dataCipher != nil {
		fixedCipher, err := archivecrypt.Init(e.cryptAlg, w.symmetricKey)
		if err != nil {
			return err
		}
		fixedCipher.Reset(e.dataSeed)
		e.dataInfo.SetCipher(fixedCipher)
	}
	if err := e.dataInfo.UpdateFixed(&meta); err != nil {
		return err
	}
	if e.dataCipher != nil {
		e.dataInfo.SetCipher(e.dataCipher)
	}
	return e.dataInfo.Close()
}

// needsRoll 报告当前 part 的写入位置是否已经越过 ArchivePartSize 上限；
// 不启用分片（ArchivePartSize==0）时永远不滚动
func (w *Writer) needsRoll() (bool, error) {
	limit := w.opts.GetArchivePartSize()
	if limit == 0 {
		return false, nil
	}
	cur, err := w.bio.Tell()
	if err != nil {
		return false, err
	}
	return cur >= limit, nil
}

// finishFragmentAndRoll 彻底结束当前分片（flush、close 压缩器、排空
// 剩余字节、回填 FragmentSize），提交当前 part，然后在下一个 part 里
// 开一个不带 ENTR、只有一个 DATA 子 chunk 的延续顶层 chunk，并为它配
// 一个全新的压缩状态。每个分片因此始终是一段独立、完整、可以单独解压
// 的压缩流——不会在压缩器内部状态的中途被拦腰截断
func (w *Writer) finishFragmentAndRoll() error {
	e := w.entry
	if err := e.compress.Flush(); err != nil {
		return err
	}
	if err := e.compress.Close(); err != nil {
		return err
	}
	if err := w.drain(true); err != nil {
		return err
	}
	if err := w.closeFragmentMeta(); err != nil {
		return err
	}
	if err := e.topInfo.Close(); err != nil {
		return err
	}
	if err := w.owner.ClosePart(w.partNumber, false); err != nil {
		return err
	}
	if err := w.openPart(w.partNumber + 1); err != nil {
		return err
	}

	top := chunks.NewInfo(nil, w.bio, e.typ.chunkID(), nil)
	if err := top.Create(); err != nil {
		return err
	}
	if err := writeEntryAlgoMeta(top, e.compressAlg, e.cryptAlg); err != nil {
		return err
	}
	e.topInfo = top
	return w.openFragment()
}

// drain 把压缩器里积压的输出块加密后写进当前分片；finishing 为 true 时
// 排空所有剩余字节，否则只搬运已经攒够一整块的输出
func (w *Writer) drain(finishing bool) error {
	e := w.entry
	kind := archivecompress.AvailFull
	if finishing {
		kind = archivecompress.AvailAny
	}
	buf := make([]byte, w.opts.GetBufferSize())
	for e.compress.AvailableBlocks(kind) > 0 {
		n, err := e.compress.GetBlock(buf)
		if err != nil {
			return err
		}
		if n == 0 {
			break
		}
		block := buf[:n]
		if e.dataCipher != nil {
			if err := e.dataCipher.Encrypt(block); err != nil {
				return err
			}
		}
		if err := e.dataInfo.WriteData(block); err != nil {
			return err
		}
	}
	return nil
}

// Write 把一段原始文件内容喂给当前打开的文件/映像条目。内部按缓冲区
// 大小切成小段逐段处理，每段开始前检查是否需要滚动 part——这样滚动
// 总是发生在某个分片彻底结束之后，不会打断一个还在写的压缩流
func (w *Writer) Write(data []byte) error {
	if w.entry == nil {
		return fmt.Errorf("archive: 没有正在写入的条目")
	}
	grain := w.opts.GetBufferSize()
	if grain <= 0 {
		grain = len(data)
	}
	// 有 ElementSize 时把每段长度对齐到元素大小（从本次 Write 的起点算
	// 起），part 滚动因此只落在元素边界上
	if es := int(w.opts.GetElementSize()); es > 1 && grain > 0 {
		if grain < es {
			grain = es
		} else {
			grain -= grain % es
		}
	}
	for len(data) > 0 {
		n := grain
		if n > len(data) || n == 0 {
			n = len(data)
		}
		chunk := data[:n]
		data = data[n:]

		roll, err := w.needsRoll()
		if err != nil {
			return err
		}
		if roll {
			if err := w.finishFragmentAndRoll(); err != nil {
				return err
			}
		}

		e := w.entry
		if err := e.compress.Deflate(chunk); err != nil {
			return err
		}
		e.fragmentLogical += uint64(len(chunk))
		e.totalWritten += uint64(len(chunk))
		if err := w.drain(false); err != nil {
			return err
		}
	}
	return nil
}

// CloseEntry 排空压缩器、回填分片大小并关闭当前条目的顶层 chunk
func (w *Writer) CloseEntry() error {
	e := w.entry
	if e == nil {
		return nil
	}
	if err := e.compress.Flush(); err != nil {
		return err
	}
	if err := e.compress.Close(); err != nil {
		return err
	}
	if err := w.drain(true); err != nil {
		return err
	}
	if err := w.closeFragmentMeta(); err != nil {
		return err
	}
	if err := w.entry.topInfo.Close(); err != nil {
		return err
	}
	w.entry = nil
	return nil
}

// Close 提交当前 part 并标记它是整个归档的最后一个 part
func (w *Writer) Close() error {
	if w.entry != nil {
		return fmt.Errorf("archive: 还有未关闭的条目")
	}
	return w.owner.ClosePart(w.partNumber, true)
}

// Tell 返回当前 part 内部的绝对写入位置，主要供测试和上层统计使用
func (w *Writer) Tell() (uint64, error) { return w.bio.Tell() }
