// Package passwords 实现对称密码的来源解析与进程级已验证密码缓存（C5）
//
// 归档里每一个加密的分片在读取时都要试出正确的密码；一旦某个密码在
// 某个分片上验证通过，后续的分片和条目应当优先尝试它，而不是重新走
// 一遍"默认/配置/交互询问"的完整顺序——这对同一次运行里解压多个用
// 同一密码加密的归档尤其重要。List 就是这份进程级的"已验证密码"
// 缓存；Resolver 按模式顺序枚举候选密码，每次都先把 List 里的内容过
// 一遍。
package passwords

import (
	"sync"
)

// Mode 决定 Resolver 在耗尽已验证密码缓存之后，下一步去哪里找密码
type Mode int

const (
	// ModeDefault 先尝试全局密码，再交互式询问，不看任何任务级配置密码
	ModeDefault Mode = iota
	// ModeConfig 使用调用方在配置里显式给出的密码
	ModeConfig
	// ModeAsk 通过回调交互式地向用户询问密码，可以被反复调用直到用户放弃
	ModeAsk
)

// PromptFunc 向用户请求一个候选密码；ok 为 false 表示用户放弃了输入
type PromptFunc func(archiveName string) (password []byte, ok bool)

func zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}

// List 是进程范围内的已验证密码缓存，多个 Resolver 可以共享同一个
// List 实例
type List struct {
	mu        sync.Mutex
	passwords [][]byte
}

// NewList 构造一个空的密码缓存
func NewList() *List {
	return &List{}
}

// Add 把一个已验证通过的密码加入缓存；内部保存一份拷贝，调用方可以
// 安全地复用或清零自己手上的那份
func (l *List) Add(password []byte) {
	if len(password) == 0 {
		return
	}
	cp := append([]byte(nil), password...)
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, existing := range l.passwords {
		if string(existing) == string(cp) {
			return
		}
	}
	l.passwords = append(l.passwords, cp)
}

// Snapshot 返回当前缓存内容的一份拷贝，用于迭代时不持有锁
func (l *List) Snapshot() [][]byte {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([][]byte, len(l.passwords))
	for i, pw := range l.passwords {
		out[i] = append([]byte(nil), pw...)
	}
	return out
}

// Clear 清空缓存并把缓存过的密码字节清零，避免明文密码长时间驻留内存
func (l *List) Clear() {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, pw := range l.passwords {
		zero(pw)
	}
	l.passwords = nil
}

// Resolver 按照"已验证密码缓存优先，然后按模式枚举候选来源"的顺序
// 产出候选密码，供归档读取路径在打开一个加密分片时重试
type Resolver struct {
	archiveName    string
	mode           Mode
	configPassword []byte
	globalPassword []byte
	prompt         PromptFunc
	list           *List

	listIdx    int
	usedConfig bool
	usedGlobal bool
}

// NewResolver 构造一个密码解析器
//
// 参数:
//   - archiveName: 当前归档名，传给交互式询问回调用于提示用户
//   - mode: 已验证缓存耗尽之后的候选来源
//   - configPassword: ModeConfig 下使用的密码，其他模式下忽略
//   - globalPassword: 全局密码，ModeConfig 下配置密码之后、ModeDefault
//     下最先尝试的来源（对应 archive.c globalOptions.cryptPassword）
//   - prompt: 前面的来源都耗尽之后用来交互式询问密码的回调，可以为 nil
//   - list: 共享的进程级已验证密码缓存
func NewResolver(archiveName string, mode Mode, configPassword []byte, globalPassword []byte, prompt PromptFunc, list *List) *Resolver {
	if list == nil {
		list = NewList()
	}
	return &Resolver{archiveName: archiveName, mode: mode, configPassword: configPassword, globalPassword: globalPassword, prompt: prompt, list: list}
}

// First 把迭代状态重置到最开始，然后返回第一个候选密码
func (r *Resolver) First() ([]byte, bool) {
	r.listIdx = 0
	r.usedConfig = false
	r.usedGlobal = false
	return r.Next()
}

// Next 返回下一个候选密码；ok 为 false 表示候选来源已经耗尽，调用方
// 应当放弃这个分片（对应 spec §4.7 第 4 步：密码重试循环的终止条件）
//
// 候选顺序和 archive.c 的 getCryptPassword/getNextDecryptPassword 一致：
// 已验证缓存 -> （仅 ModeConfig）配置密码 -> （ModeConfig 和 ModeDefault）
// 全局密码 -> 交互式询问，每种来源最多贡献一次，询问可以被反复调用
func (r *Resolver) Next() ([]byte, bool) {
	snap := r.list.Snapshot()
	if r.listIdx < len(snap) {
		pw := snap[r.listIdx]
		r.listIdx++
		return pw, true
	}

	if r.mode == ModeConfig && !r.usedConfig {
		r.usedConfig = true
		if len(r.configPassword) > 0 {
			return r.configPassword, true
		}
	}

	if (r.mode == ModeConfig || r.mode == ModeDefault) && !r.usedGlobal {
		r.usedGlobal = true
		if len(r.globalPassword) > 0 {
			return r.globalPassword, true
		}
	}

	switch r.mode {
	case ModeConfig, ModeDefault, ModeAsk:
		if r.prompt == nil {
			return nil, false
		}
		return r.prompt(r.archiveName)
	default:
		return nil, false
	}
}

// Accept 记录一个密码在本次运行中已经被验证通过，后续 Resolver（包括
// 其他归档条目用到的 Resolver，只要共享同一个 List）都会优先尝试它
func (r *Resolver) Accept(password []byte) {
	r.list.Add(password)
}
