package archivecrypt

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"fmt"

	"github.com/bpfs/barfs/barerrors"
)

// KeyPair 是一组用来包装/解开会话密钥的 RSA 密钥；公钥一侧在写入新
// part 时把随机生成的会话密钥封装进 KEY chunk，私钥一侧在读取时尝试
// 用手上的每一把私钥解开它（spec §4.7 的候选密码/密钥试探循环）
type KeyPair struct {
	Public  *rsa.PublicKey
	Private *rsa.PrivateKey
}

// CreateKeyPair 生成一对新的 RSA 密钥，照搬 sign/rsa 包用标准库
// rsa.GenerateKey 的做法，只是去掉了按种子生成的确定性随机源——归档的
// 每一把密钥都应当是真正随机的
func CreateKeyPair(bits int) (*KeyPair, error) {
	priv, err := rsa.GenerateKey(rand.Reader, bits)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", barerrors.ErrCreateKeyFail, err)
	}
	return &KeyPair{Public: &priv.PublicKey, Private: priv}, nil
}

// WritePublicKey 把公钥编码成 PEM 字节；归档的 KEY chunk 不存放公钥，
// 只存放封装后的会话密钥（见 archive.KeyMeta）
func WritePublicKey(pub *rsa.PublicKey) ([]byte, error) {
	der, err := x509.MarshalPKIXPublicKey(pub)
	if err != nil {
		return nil, err
	}
	return pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der}), nil
}

// ReadPublicKey 解析 PEM 编码的公钥，是 WritePublicKey 的逆操作
func ReadPublicKey(data []byte) (*rsa.PublicKey, error) {
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, barerrors.ErrInvalidKey
	}
	pub, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", barerrors.ErrInvalidKey, err)
	}
	rsaPub, ok := pub.(*rsa.PublicKey)
	if !ok {
		return nil, barerrors.ErrInvalidKey
	}
	return rsaPub, nil
}

// WritePrivateKey 把私钥编码成 PEM，用于保存在用户的密钥环里
func WritePrivateKey(priv *rsa.PrivateKey) []byte {
	der := x509.MarshalPKCS1PrivateKey(priv)
	return pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: der})
}

// ReadPrivateKey 解析 PEM 编码的私钥
func ReadPrivateKey(data []byte) (*rsa.PrivateKey, error) {
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, barerrors.ErrInvalidKey
	}
	priv, err := x509.ParsePKCS1PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", barerrors.ErrInvalidKey, err)
	}
	return priv, nil
}

// WrapSessionKey 用公钥按 PKCS#1 v1.5 type-2 填充封装随机生成的会话
// 密钥；标准库的 EncryptPKCS1v15 已经实现了 0x00 0x02 PS 0x00 K 的
// 填充格式，这里不需要手工拼接
func WrapSessionKey(pub *rsa.PublicKey, sessionKey []byte) ([]byte, error) {
	if pub == nil {
		return nil, barerrors.ErrNoPublicKey
	}
	wrapped, err := rsa.EncryptPKCS1v15(rand.Reader, pub, sessionKey)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", barerrors.ErrEncryptFail, err)
	}
	return wrapped, nil
}

// UnwrapSessionKey 尝试用私钥解开封装的会话密钥；失败时返回
// ErrWrongPrivateKey，调用方据此判断应当换下一把私钥重试而不是放弃
func UnwrapSessionKey(priv *rsa.PrivateKey, wrapped []byte) ([]byte, error) {
	if priv == nil {
		return nil, barerrors.ErrNoPrivateKey
	}
	sessionKey, err := rsa.DecryptPKCS1v15(rand.Reader, priv, wrapped)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", barerrors.ErrWrongPrivateKey, err)
	}
	return sessionKey, nil
}

// GenerateSessionKey 生成指定长度的随机对称会话密钥
func GenerateSessionKey(length int) ([]byte, error) {
	key := make([]byte, length)
	if _, err := rand.Read(key); err != nil {
		return nil, err
	}
	return key, nil
}
