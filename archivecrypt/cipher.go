package archivecrypt

import (
	"crypto/cipher"
	"crypto/sha256"
	"encoding/binary"

	"github.com/bpfs/barfs/barerrors"
)

// State 是绑定到单个算法/密码的对称加密状态，chunks.Info 通过
// chunks.Cipher 接口使用它。每次 Reset 都会从一个 64 位种子重新派生
// 链接初始向量，chunk 的固定字段区和数据分片各自在打开/关闭时调用。
type State struct {
	alg   Algorithm
	block cipher.Block
	bs    int
	iv    []byte
}

// Init 用密码为给定算法派生密钥并构造底层分组密码；AlgorithmNone 返回
// 一个 BlockLength()==1 的空状态，chunks 层据此跳过加解密
func Init(alg Algorithm, password []byte) (*State, error) {
	if alg == AlgorithmNone {
		return &State{alg: alg, bs: 1}, nil
	}
	keyLen, err := KeyLength(alg)
	if err != nil {
		return nil, err
	}
	if len(password) == 0 {
		return nil, barerrors.ErrNoCryptPassword
	}
	key := deriveKey(password, keyLen)
	block, err := newBlockCipher(alg, key)
	if err != nil {
		return nil, err
	}
	return &State{alg: alg, block: block, bs: block.BlockSize()}, nil
}

// BlockLength 实现 chunks.Cipher
func (s *State) BlockLength() int { return s.bs }

// Reset 从种子派生新的链接初始向量；IV 只取决于种子，同一个种子总是
// 得到同一个 IV。归档层用分片在条目内的逻辑起始偏移作种子，ENTR 子
// chunk 固定用 0
func (s *State) Reset(seed uint64) {
	if s.bs <= 1 {
		return
	}
	seedBytes := make([]byte, 8)
	binary.BigEndian.PutUint64(seedBytes, seed)
	h := sha256.Sum256(append([]byte("barfs-iv"), seedBytes...))
	s.iv = append([]byte(nil), h[:s.bs]...)
}

func xorInto(dst, a, b []byte) {
	for i := range dst {
		dst[i] = a[i] ^ b[i]
	}
}

// Encrypt 原地加密 buf：长度为块长度整数倍时走普通 CBC 链接；长于一个
// 块但不是整数倍时用密文窃取（CTS）处理末尾的不完整块；短于一个块时
// 交给 xorShort。密文长度始终等于明文长度
func (s *State) Encrypt(buf []byte) error {
	if s.bs <= 1 || len(buf) == 0 {
		return nil
	}
	n := len(buf)
	bs := s.bs

	if n < bs {
		return s.xorShort(buf)
	}

	full := (n / bs) * bs
	rem := n - full
	prev := s.iv
	tmp := make([]byte, bs)

	cbcThrough := full
	if rem == 0 {
		// 整数倍长度，没有不完整的尾块，普通 CBC 链接即可
		for off := 0; off < cbcThrough; off += bs {
			blk := buf[off : off+bs]
			xorInto(tmp, blk, prev)
			s.block.Encrypt(blk, tmp)
			prev = blk
		}
		s.iv = append([]byte(nil), prev...)
		return nil
	}

	// 窃取最后两个逻辑块：倒数第二个满块 P(n-1) 和末尾不完整块 P(n)
	penultimateOff := full - bs
	for off := 0; off < penultimateOff; off += bs {
		blk := buf[off : off+bs]
		xorInto(tmp, blk, prev)
		s.block.Encrypt(blk, tmp)
		prev = blk
	}

	pPenultimate := append([]byte(nil), buf[penultimateOff:penultimateOff+bs]...)
	pLast := append([]byte(nil), buf[full:full+rem]...)

	xorInto(tmp, pPenultimate, prev)
	interim := make([]byte, bs)
	s.block.Encrypt(interim, tmp)

	// Cn 是 interim 的前 rem 字节
	copy(buf[full:full+rem], interim[:rem])

	// Dn = Pn || interim 的尾部，再和 prev 异或后加密得到最终的倒数第二块
	dn := make([]byte, bs)
	copy(dn, pLast)
	copy(dn[rem:], interim[rem:])

	xorInto(tmp, dn, prev)
	s.block.Encrypt(buf[penultimateOff:penultimateOff+bs], tmp)

	s.iv = append([]byte(nil), buf[penultimateOff:penultimateOff+bs]...)
	return nil
}

// Decrypt 是 Encrypt 的逆操作
func (s *State) Decrypt(buf []byte) error {
	if s.bs <= 1 || len(buf) == 0 {
		return nil
	}
	n := len(buf)
	bs := s.bs

	if n < bs {
		return s.xorShort(buf)
	}

	full := (n / bs) * bs
	rem := n - full
	prev := s.iv
	tmp := make([]byte, bs)

	if rem == 0 {
		for off := 0; off < full; off += bs {
			blk := buf[off : off+bs]
			cipherBlk := append([]byte(nil), blk...)
			s.block.Decrypt(tmp, blk)
			xorInto(blk, tmp, prev)
			prev = cipherBlk
		}
		s.iv = append([]byte(nil), prev...)
		return nil
	}

	penultimateOff := full - bs
	for off := 0; off < penultimateOff; off += bs {
		blk := buf[off : off+bs]
		cipherBlk := append([]byte(nil), blk...)
		s.block.Decrypt(tmp, blk)
		xorInto(blk, tmp, prev)
		prev = cipherBlk
	}

	cLast2 := append([]byte(nil), buf[penultimateOff:penultimateOff+bs]...) // C(n-1)_new
	cLast := append([]byte(nil), buf[full:full+rem]...)                     // Cn

	// Dn = Decrypt(C(n-1)_new) xor prev
	dn := make([]byte, bs)
	s.block.Decrypt(dn, cLast2)
	xorInto(dn, dn, prev)

	pLast := dn[:rem]
	tail := dn[rem:bs]

	// 重建 interim = Cn || tail，P(n-1) = Decrypt(interim) xor prev
	interim := make([]byte, bs)
	copy(interim[:rem], cLast)
	copy(interim[rem:], tail)

	pPenultimate := make([]byte, bs)
	s.block.Decrypt(pPenultimate, interim)
	xorInto(pPenultimate, pPenultimate, prev)

	copy(buf[penultimateOff:penultimateOff+bs], pPenultimate)
	copy(buf[full:full+rem], pLast)
	s.iv = cLast2
	return nil
}

// xorShort 处理长度小于一个块的缓冲区：用当前 IV 加密一次得到密钥流，
// 和明文/密文做异或，等价于一次性的 OFB 步骤；两个方向是同一个操作
func (s *State) xorShort(buf []byte) error {
	keystream := make([]byte, s.bs)
	s.block.Encrypt(keystream, s.iv)
	for i := range buf {
		buf[i] ^= keystream[i]
	}
	return nil
}
