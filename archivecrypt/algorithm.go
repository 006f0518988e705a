// Package archivecrypt 实现归档负载的对称加密和会话密钥的非对称包装（C3）
//
// 对称加密采用 CBC 链接模式外加密文窃取（CTS），这样加密前后数据长度
// 完全相同，不需要像 PKCS7 那样引入块对齐的填充字节——固定字段区和数据
// 分片都可以是任意长度。算法选择和密钥长度表的写法照搬
// crypto/cbc 包的单算法版本，这里把它推广成一张按算法索引的表；块长度
// 不在表里，取自底层 cipher.Block 的 BlockSize()。
package archivecrypt

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/des"
	"fmt"

	"github.com/bpfs/barfs/barerrors"
	"golang.org/x/crypto/blowfish"
	"golang.org/x/crypto/cast5"
	"golang.org/x/crypto/twofish"
)

// Algorithm 标识一种对称加密算法
type Algorithm string

const (
	AlgorithmNone      Algorithm = "none"
	Algorithm3DES      Algorithm = "3des"
	AlgorithmCAST5     Algorithm = "cast5"
	AlgorithmBlowfish  Algorithm = "blowfish"
	AlgorithmAES128    Algorithm = "aes128"
	AlgorithmAES192    Algorithm = "aes192"
	AlgorithmAES256    Algorithm = "aes256"
	AlgorithmTwofish128 Algorithm = "twofish128"
	AlgorithmTwofish256 Algorithm = "twofish256"
)

// keyLengths 以字节为单位，列出每种算法要求的密钥长度
var keyLengths = map[Algorithm]int{
	AlgorithmNone:       0,
	Algorithm3DES:       24,
	AlgorithmCAST5:      16,
	AlgorithmBlowfish:   16,
	AlgorithmAES128:     16,
	AlgorithmAES192:     24,
	AlgorithmAES256:     32,
	AlgorithmTwofish128: 16,
	AlgorithmTwofish256: 32,
}

// KeyLength 返回算法要求的密钥长度（字节），未加密返回 0
func KeyLength(alg Algorithm) (int, error) {
	n, ok := keyLengths[alg]
	if !ok {
		return 0, fmt.Errorf("%w: 未知加密算法 %s", barerrors.ErrInvalidKey, alg)
	}
	return n, nil
}

// newBlockCipher 按算法构造底层的 cipher.Block 实现
func newBlockCipher(alg Algorithm, key []byte) (cipher.Block, error) {
	switch alg {
	case Algorithm3DES:
		return des.NewTripleDESCipher(key)
	case AlgorithmCAST5:
		return cast5.NewCipher(key)
	case AlgorithmBlowfish:
		return blowfish.NewCipher(key)
	case AlgorithmAES128, AlgorithmAES192, AlgorithmAES256:
		return aes.NewCipher(key)
	case AlgorithmTwofish128, AlgorithmTwofish256:
		return twofish.NewCipher(key)
	default:
		return nil, fmt.Errorf("%w: %s", barerrors.ErrInvalidKey, alg)
	}
}

// deriveKey 从密码派生固定长度的密钥：截断过长的密码，零填充过短的密码，
// 和原始实现里密码直接塞进密钥槽位的做法一致，不额外做 KDF 拉伸
func deriveKey(password []byte, keyLen int) []byte {
	key := make([]byte, keyLen)
	copy(key, password)
	return key
}
