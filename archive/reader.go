package archive

import (
	"errors"
	"fmt"
	"io"

	"github.com/sirupsen/logrus"

	"github.com/bpfs/barfs/archivecompress"
	"github.com/bpfs/barfs/archivecrypt"
	"github.com/bpfs/barfs/barerrors"
	"github.com/bpfs/barfs/chunks"
	"github.com/bpfs/barfs/debug"
	"github.com/bpfs/barfs/fscfg"
	"github.com/bpfs/barfs/ioref"
	"github.com/bpfs/barfs/passwords"
)

// corrupt 记一条诊断日志后返回 ErrCorruptData，方便从日志定位到具体是
// 哪一处结构性假设被打破的
func corrupt(format string, args ...interface{}) error {
	err := fmt.Errorf("%w: "+format, append([]interface{}{barerrors.ErrCorruptData}, args...)...)
	logrus.Errorf("[%s]: %v", debug.WhereAmI(2), err)
	return err
}

// PartOpener 按序打开归档的第 partNumber 个 part；ok 为 false 表示归档
// 到此为止，没有更多 part 了
type PartOpener func(partNumber int) (bio ioref.ByteIO, ok bool, err error)

// readEntryState 跟踪正在被读出的一个条目
type readEntryState struct {
	typ       EntryType
	meta      interface{}
	totalSize uint64 // File/Image 的声明总长度，其余类型恒为 0

	compressAlg archivecompress.Algorithm // 来自条目顶层 chunk 的 EntryAlgoMeta，分片延续时重新读取
	cryptAlg    archivecrypt.Algorithm

	receivedLogical uint64
	dataInfo        *chunks.Info
	dataCipher      chunks.Cipher
	decompress      *archivecompress.State
}

// Reader 是归档的读取端（C7）
type Reader struct {
	opts   *fscfg.Options
	opener PartOpener

	partNumber int
	bio        ioref.ByteIO
	pending    *chunks.Header

	symmetricKey []byte // 对称模式下解析出的密码，非对称模式下解出的会话密钥

	pwList   *passwords.List
	promptFn passwords.PromptFunc

	currentEntry *readEntryState
}

// NewReader 构造一个读取器并打开第 0 个 part；pwList/prompt 用于对称
// 加密下的多密码候选尝试，两者都可以是 nil
func NewReader(opts *fscfg.Options, opener PartOpener, pwList *passwords.List, prompt passwords.PromptFunc) (*Reader, error) {
	r := &Reader{opts: opts, opener: opener, pwList: pwList, promptFn: prompt}
	if opts.GetCryptType() == fscfg.CryptTypeSymmetric && len(opts.GetCryptPassword()) > 0 {
		r.symmetricKey = opts.GetCryptPassword()
	}
	if err := r.openPart(0); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *Reader) openPart(n int) error {
	bio, ok, err := r.opener(n)
	if err != nil {
		return err
	}
	if !ok {
		return barerrors.ErrEndOfArchive
	}
	r.bio = bio
	r.partNumber = n
	return nil
}

func (r *Reader) advancePart() error {
	return r.openPart(r.partNumber + 1)
}

func (r *Reader) nextTopLevelHeader() (chunks.Header, error) {
	if r.pending != nil {
		h := *r.pending
		r.pending = nil
		return h, nil
	}
	done, err := chunks.EOF(r.bio)
	if err != nil {
		return chunks.Header{}, err
	}
	if done {
		return chunks.Header{}, barerrors.ErrEndOfArchive
	}
	return chunks.Next(r.bio)
}

// newEntryCipher 按 alg（来自条目顶层 chunk 的 EntryAlgoMeta，而不是
// r.opts）构造 Cipher；alg 为 AlgorithmNone 时返回 nil
func (r *Reader) newEntryCipher(alg archivecrypt.Algorithm, password []byte, seed uint64) (chunks.Cipher, error) {
	if alg == archivecrypt.AlgorithmNone {
		return nil, nil
	}
	st, err := archivecrypt.Init(alg, password)
	if err != nil {
		return nil, err
	}
	st.Reset(seed)
	return st, nil
}

// readEntryAlgoMeta 读出紧跟在顶层 chunk 头部之后、未加密的 EntryAlgoMeta；
// 必须在打开任何子 chunk 之前调用
func readEntryAlgoMeta(top *chunks.Info) (EntryAlgoMeta, error) {
	fixed, err := top.ReadFixed(fieldSize(&EntryAlgoMeta{}))
	if err != nil {
		return EntryAlgoMeta{}, err
	}
	var am EntryAlgoMeta
	if err := chunks.DecodeFields(fixed, &am); err != nil {
		return EntryAlgoMeta{}, err
	}
	return am, nil
}

// handleKeyChunk 解析一个 IDKey chunk，依次用候选私钥尝试解开封装的
// 会话密钥；解不开不算错误，等真正需要解密数据时才会报错
func (r *Reader) handleKeyChunk(h chunks.Header) error {
	info := chunks.NewInfo(nil, r.bio, h.ID, nil)
	if err := info.Open(h); err != nil {
		return err
	}
	fixed, err := info.ReadFixed(int(h.Size))
	if err != nil {
		return err
	}
	var km KeyMeta
	if err := chunks.DecodeFields(fixed, &km); err != nil {
		return err
	}
	for _, priv := range r.opts.GetPrivateKeys() {
		sk, err := archivecrypt.UnwrapSessionKey(priv, km.Wrapped)
		if err == nil {
			r.symmetricKey = sk
			return nil
		}
	}
	return nil
}

func decodeEntryMeta(fixed []byte, typ EntryType) (interface{}, error) {
	switch typ {
	case EntryFile, EntryImage:
		m := &FileMeta{}
		if err := chunks.DecodeFields(fixed, m); err != nil {
			return nil, err
		}
		return m, nil
	case EntryDirectory:
		m := &DirectoryMeta{}
		if err := chunks.DecodeFields(fixed, m); err != nil {
			return nil, err
		}
		return m, nil
	case EntryLink:
		m := &LinkMeta{}
		if err := chunks.DecodeFields(fixed, m); err != nil {
			return nil, err
		}
		return m, nil
	case EntryHardlink:
		m := &HardlinkMeta{}
		if err := chunks.DecodeFields(fixed, m); err != nil {
			return nil, err
		}
		return m, nil
	case EntrySpecial:
		m := &SpecialMeta{}
		if err := chunks.DecodeFields(fixed, m); err != nil {
			return nil, err
		}
		return m, nil
	default:
		return nil, fmt.Errorf("archive: 未知的条目类型 %d", typ)
	}
}

// readEntryMeta 读出 ENTR 子 chunk 的内容；对称加密且密码尚未确定时，
// 依次尝试候选密码直到 CRC 校验通过为止，并把命中的密码记为整个归档
// 的密码
func (r *Reader) readEntryMeta(top *chunks.Info, sub chunks.Header, typ EntryType, cryptAlg archivecrypt.Algorithm) (interface{}, error) {
	if r.opts.GetCryptType() != fscfg.CryptTypeSymmetric || r.symmetricKey != nil {
		cipher, err := r.newEntryCipher(cryptAlg, r.symmetricKey, 0)
		if err != nil {
			return nil, err
		}
		info := chunks.NewInfo(top, r.bio, sub.ID, cipher)
		if err := info.Open(sub); err != nil {
			return nil, err
		}
		fixed, err := info.ReadFixed(int(sub.Size))
		if err != nil {
			return nil, err
		}
		return decodeEntryMeta(fixed, typ)
	}

	resolver := passwords.NewResolver("", r.opts.GetCryptPasswordMode(), r.opts.GetCryptPassword(), r.opts.GetGlobalCryptPassword(), r.promptFn, r.pwList)
	for pw, ok := resolver.First(); ok; pw, ok = resolver.Next() {
		if err := r.bio.Seek(sub.Offset + chunks.HeaderSize); err != nil {
			return nil, err
		}
		cipher, err := r.newEntryCipher(cryptAlg, pw, 0)
		if err != nil {
			return nil, err
		}
		info := chunks.NewInfo(top, r.bio, sub.ID, cipher)
		if err := info.Open(sub); err != nil {
			return nil, err
		}
		fixed, err := info.ReadFixed(int(sub.Size))
		if err != nil {
			return nil, err
		}
		meta, err := decodeEntryMeta(fixed, typ)
		if err != nil {
			logger.Debugf("候选密码校验未通过，尝试下一个: %v", err)
			continue
		}
		resolver.Accept(pw)
		r.symmetricKey = pw
		return meta, nil
	}
	return nil, barerrors.ErrInvalidPassword
}

// openFragment 打开 sub 指向的 DATA 子 chunk 作为当前条目的活跃分片
func (r *Reader) openFragment(top *chunks.Info, sub chunks.Header) error {
	e := r.currentEntry
	seed := e.receivedLogical

	cipher, err := r.newEntryCipher(e.cryptAlg, r.symmetricKey, seed)
	if err != nil {
		return err
	}
	info := chunks.NewInfo(top, r.bio, sub.ID, cipher)
	if err := info.Open(sub); err != nil {
		return err
	}

	fixedSize := fieldSize(&DataMeta{})
	fixed, err := info.ReadFixed(fixedSize)
	if err != nil {
		return err
	}
	var dm DataMeta
	if err := chunks.DecodeFields(fixed, &dm); err != nil {
		return err
	}
	// 负载部分用一个重新 seed 过的 Cipher 解密，与写入端的做法对应
	payloadCipher, err := r.newEntryCipher(e.cryptAlg, r.symmetricKey, seed)
	if err != nil {
		return err
	}

	decompress, err := archivecompress.New(archivecompress.ModeDecompress, e.compressAlg, r.opts.GetBufferSize())
	if err != nil {
		return err
	}

	e.dataInfo = info
	e.dataCipher = payloadCipher
	e.decompress = decompress
	return nil
}

// openFragmentContinuation 定位属于当前条目的下一个延续 chunk（同类型、
// 只带一个 DATA 子 chunk 的顶层 chunk），跨 part 边界也照常工作
func (r *Reader) openFragmentContinuation() error {
	h, err := r.locateNextTopLevel()
	if err != nil {
		return err
	}
	if h.ID != r.currentEntry.typ.chunkID() {
		return corrupt("条目分片延续链断裂")
	}
	top := chunks.NewInfo(nil, r.bio, h.ID, nil)
	if err := top.Open(h); err != nil {
		return err
	}
	algoMeta, err := readEntryAlgoMeta(top)
	if err != nil {
		return err
	}
	r.currentEntry.compressAlg = compressAlgoFromCode(algoMeta.CompressAlgo)
	r.currentEntry.cryptAlg = cryptAlgoFromCode(algoMeta.CryptAlgo)

	sub, err := chunks.NextSub(top)
	if err != nil {
		return err
	}
	if sub.ID != chunks.IDDataMeta {
		return corrupt("延续 chunk 第一个子 chunk 不是 DATA")
	}
	return r.openFragment(top, sub)
}

// locateNextTopLevel 读出下一个顶层 chunk 头部，自动跨 part 边界、并
// 就地消化掉 BAR/KEY chunk（它们不是条目，只是每个 part 开头的元信息）
func (r *Reader) locateNextTopLevel() (chunks.Header, error) {
	for {
		h, err := r.nextTopLevelHeader()
		if errors.Is(err, barerrors.ErrEndOfArchive) {
			if aerr := r.advancePart(); aerr != nil {
				return chunks.Header{}, aerr
			}
			continue
		}
		if err != nil {
			return chunks.Header{}, err
		}
		switch h.ID {
		case chunks.IDHeader:
			if err := chunks.Skip(r.bio, h); err != nil {
				return chunks.Header{}, err
			}
			continue
		case chunks.IDKey:
			if err := r.handleKeyChunk(h); err != nil {
				return chunks.Header{}, err
			}
			continue
		default:
			return h, nil
		}
	}
}

// NextEntry 定位归档里的下一个条目，返回它的类型和解码后的元数据；
// 元数据的具体 Go 类型随条目类型变化（见 decodeEntryMeta）
func (r *Reader) NextEntry() (EntryType, interface{}, error) {
	if r.currentEntry != nil {
		return 0, nil, fmt.Errorf("archive: 上一个条目还没有读完")
	}
	for {
		h, err := r.locateNextTopLevel()
		if err != nil {
			return 0, nil, err
		}
		typ, ok := entryTypeFromChunkID(h.ID)
		if !ok {
			if err := chunks.Check(h.ID, nil, r.opts.GetStrictUnknownChunks()); err != nil {
				return 0, nil, err
			}
			if err := chunks.Skip(r.bio, h); err != nil {
				return 0, nil, err
			}
			continue
		}

		top := chunks.NewInfo(nil, r.bio, h.ID, nil)
		if err := top.Open(h); err != nil {
			return 0, nil, err
		}
		algoMeta, err := readEntryAlgoMeta(top)
		if err != nil {
			return 0, nil, err
		}
		compressAlg := compressAlgoFromCode(algoMeta.CompressAlgo)
		cryptAlg := cryptAlgoFromCode(algoMeta.CryptAlgo)

		sub, err := chunks.NextSub(top)
		if err != nil {
			return 0, nil, err
		}
		if sub.ID != chunks.IDEntryMeta {
			return 0, nil, corrupt("期待条目元数据，读到了 %s", sub.ID)
		}

		meta, err := r.readEntryMeta(top, sub, typ, cryptAlg)
		if err != nil {
			return 0, nil, err
		}

		e := &readEntryState{typ: typ, meta: meta, compressAlg: compressAlg, cryptAlg: cryptAlg}
		if fm, ok := meta.(*FileMeta); ok {
			e.totalSize = fm.Size
		}
		r.currentEntry = e

		if e.totalSize > 0 {
			done, err := chunks.EOFSub(top)
			if err != nil {
				return 0, nil, err
			}
			if !done {
				dataSub, err := chunks.NextSub(top)
				if err != nil {
					return 0, nil, err
				}
				if dataSub.ID == chunks.IDDataMeta {
					if err := r.openFragment(top, dataSub); err != nil {
						return 0, nil, err
					}
				}
			}
		}
		return typ, meta, nil
	}
}

// ReadData 读出当前条目的下一段解压后的原始字节，读到条目末尾返回
// io.EOF 风格的 (0, barerrors.ErrEndOfArchive) 之外的正常 io.EOF —— 这
// 里统一用标准库 io.EOF 表示"这个条目没有更多数据了"
func (r *Reader) ReadData(buf []byte) (int, error) {
	e := r.currentEntry
	if e == nil {
		return 0, fmt.Errorf("archive: 没有正在读取的条目")
	}
	if e.dataInfo == nil {
		r.currentEntry = nil
		return 0, io.EOF
	}

	pull := make([]byte, r.opts.GetBufferSize())
	for {
		n, err := e.decompress.Inflate(buf)
		if n > 0 {
			e.receivedLogical += uint64(n)
			return n, nil
		}
		if errors.Is(err, barerrors.ErrNeedMoreInput) {
			m, rerr := e.dataInfo.ReadData(pull)
			if m > 0 {
				block := append([]byte(nil), pull[:m]...)
				if e.dataCipher != nil {
					if derr := e.dataCipher.Decrypt(block); derr != nil {
						return 0, derr
					}
				}
				if perr := e.decompress.PutBlock(block); perr != nil {
					return 0, perr
				}
			}
			if rerr != nil {
				if errors.Is(rerr, barerrors.ErrEndOfArchive) {
					e.decompress.CloseInput()
				} else {
					return 0, rerr
				}
			}
			continue
		}
		if errors.Is(err, barerrors.ErrCompressEof) {
			e.dataInfo = nil
			if e.receivedLogical >= e.totalSize {
				r.currentEntry = nil
				return 0, io.EOF
			}
			if cerr := r.openFragmentContinuation(); cerr != nil {
				return 0, cerr
			}
			continue
		}
		return n, err
	}
}
