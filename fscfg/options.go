// Package fscfg 用函数选项模式描述一次归档写入/读取会话的配置
//
// 和归档引擎其他层一样，配置对象本身是不可变更的值类型，所有字段都
// 通过 With... 选项函数设置、Get... 访问器读取；调用方组合任意数量的
// Option 传给 ApplyOptions，没有提供的字段保留 DefaultOptions 给出的
// 缺省值。
package fscfg

import (
	"crypto/rsa"

	"github.com/bpfs/barfs/archivecompress"
	"github.com/bpfs/barfs/archivecrypt"
	"github.com/bpfs/barfs/passwords"
)

// CryptType 描述一个归档使用哪一类加密
type CryptType int

const (
	CryptTypeNone CryptType = iota
	CryptTypeSymmetric
	CryptTypeAsymmetric
)

// Options 保存一次归档会话的全部可配置参数
type Options struct {
	archivePartSize uint64 // 0 表示不分片
	elementSize     uint64
	bufferSize      int

	compressAlgorithm archivecompress.Algorithm

	cryptType           CryptType
	cryptAlgorithm      archivecrypt.Algorithm
	cryptPasswordMode   passwords.Mode
	cryptPassword       []byte // 任务级配置密码，ModeConfig 下使用
	globalCryptPassword []byte // 进程级全局密码，ModeDefault/ModeConfig 都会回退到它
	cryptPublicKey      *rsa.PublicKey
	cryptPrivateKeys    []*rsa.PrivateKey

	dryRun              bool
	noStorage           bool
	strictUnknownChunks bool
}

// Option 是配置一个 Options 字段的函数选项
type Option func(*Options) error

// DefaultOptions 返回未加密、不分片、宽松跳过未知 chunk 的缺省配置
func DefaultOptions() Options {
	return Options{
		archivePartSize:     0,
		elementSize:         1,
		bufferSize:          64 * 1024,
		compressAlgorithm:   archivecompress.AlgorithmNone,
		cryptType:           CryptTypeNone,
		cryptAlgorithm:      archivecrypt.AlgorithmNone,
		cryptPasswordMode:   passwords.ModeDefault,
		strictUnknownChunks: false,
	}
}

// ApplyOptions 依次应用给定的选项，nil 选项被跳过
func (o *Options) ApplyOptions(opts ...Option) error {
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(o); err != nil {
			return err
		}
	}
	return nil
}

// WithArchivePartSize 设置单个 part 文件允许写入的最大字节数，0 表示不分片
func WithArchivePartSize(n uint64) Option {
	return func(o *Options) error {
		o.archivePartSize = n
		return nil
	}
}

// WithElementSize 设置裂片时对齐用的元素大小（字节），裂片点不会落在
// 一个逻辑元素中间
func WithElementSize(n uint64) Option {
	return func(o *Options) error {
		if n == 0 {
			n = 1
		}
		o.elementSize = n
		return nil
	}
}

// WithBufferSize 设置压缩/加密流水线内部缓冲区的建议大小
func WithBufferSize(n int) Option {
	return func(o *Options) error {
		o.bufferSize = n
		return nil
	}
}

// WithCompressAlgorithm 设置数据分片使用的压缩算法
func WithCompressAlgorithm(alg archivecompress.Algorithm) Option {
	return func(o *Options) error {
		o.compressAlgorithm = alg
		return nil
	}
}

// WithSymmetricCrypt 启用对称加密，指定算法、密码来源模式和密码本身
func WithSymmetricCrypt(alg archivecrypt.Algorithm, mode passwords.Mode, password []byte) Option {
	return func(o *Options) error {
		o.cryptType = CryptTypeSymmetric
		o.cryptAlgorithm = alg
		o.cryptPasswordMode = mode
		o.cryptPassword = password
		return nil
	}
}

// WithGlobalCryptPassword 设置进程级全局密码：ModeDefault 下第一个被
// 尝试的来源，ModeConfig 下任务配置密码之后、交互式询问之前的回退来源
func WithGlobalCryptPassword(password []byte) Option {
	return func(o *Options) error {
		o.globalCryptPassword = password
		return nil
	}
}

// WithAsymmetricCrypt 启用非对称加密：写入方用公钥封装随机会话密钥，
// 读取方用手上的候选私钥列表逐一尝试解开
func WithAsymmetricCrypt(alg archivecrypt.Algorithm, pub *rsa.PublicKey, privs ...*rsa.PrivateKey) Option {
	return func(o *Options) error {
		o.cryptType = CryptTypeAsymmetric
		o.cryptAlgorithm = alg
		o.cryptPublicKey = pub
		o.cryptPrivateKeys = privs
		return nil
	}
}

// WithDryRun 设置空跑标志；Options 只保存这个值供 GetDryRun 读取，
// archive.Writer 不读取它，照常写出 part
func WithDryRun(v bool) Option {
	return func(o *Options) error {
		o.dryRun = v
		return nil
	}
}

// WithNoStorage 设置禁用存储标志；Options 只保存这个值供 GetNoStorage
// 读取，归档引擎本身不读取它
func WithNoStorage(v bool) Option {
	return func(o *Options) error {
		o.noStorage = v
		return nil
	}
}

// WithStrictUnknownChunks 让读取路径对未知的顶层 chunk 返回
// barerrors.ErrUnknownChunk，而不是静默跳过
func WithStrictUnknownChunks(v bool) Option {
	return func(o *Options) error {
		o.strictUnknownChunks = v
		return nil
	}
}

// GetArchivePartSize 返回单个 part 的最大字节数，0 表示不分片
func (o *Options) GetArchivePartSize() uint64 { return o.archivePartSize }

// GetElementSize 返回裂片对齐用的元素大小
func (o *Options) GetElementSize() uint64 { return o.elementSize }

// GetBufferSize 返回内部缓冲区建议大小
func (o *Options) GetBufferSize() int { return o.bufferSize }

// GetCompressAlgorithm 返回数据分片使用的压缩算法
func (o *Options) GetCompressAlgorithm() archivecompress.Algorithm { return o.compressAlgorithm }

// GetCryptType 返回加密类型
func (o *Options) GetCryptType() CryptType { return o.cryptType }

// GetCryptAlgorithm 返回对称/非对称加密使用的算法标识
func (o *Options) GetCryptAlgorithm() archivecrypt.Algorithm { return o.cryptAlgorithm }

// GetCryptPasswordMode 返回对称加密的密码来源模式
func (o *Options) GetCryptPasswordMode() passwords.Mode { return o.cryptPasswordMode }

// GetCryptPassword 返回配置里显式给出的对称密码
func (o *Options) GetCryptPassword() []byte { return o.cryptPassword }

// GetGlobalCryptPassword 返回进程级全局密码
func (o *Options) GetGlobalCryptPassword() []byte { return o.globalCryptPassword }

// GetPublicKey 返回非对称加密用来封装会话密钥的公钥
func (o *Options) GetPublicKey() *rsa.PublicKey { return o.cryptPublicKey }

// GetPrivateKeys 返回非对称解密时依次尝试的候选私钥列表
func (o *Options) GetPrivateKeys() []*rsa.PrivateKey { return o.cryptPrivateKeys }

// GetDryRun 报告是否启用了空跑模式
func (o *Options) GetDryRun() bool { return o.dryRun }

// GetNoStorage 报告是否禁止了外部存储访问
func (o *Options) GetNoStorage() bool { return o.noStorage }

// GetStrictUnknownChunks 报告读取路径遇到未知顶层 chunk 时是否应当报错
func (o *Options) GetStrictUnknownChunks() bool { return o.strictUnknownChunks }
