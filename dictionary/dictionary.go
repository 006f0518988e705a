// Package dictionary 实现归档去重/硬链接检测用的开放寻址字典（C9）
//
// 键是任意字节串（典型用法是文件内容哈希或 dev+inode 组合），每个键
// 绑定一段 value 字节串。字典用开放寻址加单张定长表来控制负载因子，
// 表满到阈值时整体换成 growthLadder 里下一级素数大小的新表，而不是链
// 式哈希——这样可以完全在定长数组里做探测，不需要额外的指针追逐。
package dictionary

import (
	"math/bits"
)

// growthLadder 是子表大小的阶梯，每次某一级子表打满负载因子的阈值就
// 整体升到下一级；用素数做表大小是为了让探测序列更均匀地覆盖整张表
var growthLadder = []uint32{
	1031, 2053, 4099, 8209, 16411,
	32771, 65537, 131101, 262147, 524309,
}

// rehashingCount 是每一级子表允许尝试的探测次数上限
const rehashingCount = 4

// loadFactorThreshold 超过这个占用率就升级到下一级子表
const loadFactorThreshold = 0.75

// entry 是字典里的一个槽位；value 携带和 key 绑定的任意数据（典型用法
// 是增量备份用的文件信息快照：大小/时间戳/属主/属组/权限）
type entry struct {
	used  bool
	hash  uint32
	key   []byte
	value []byte
}

// Dictionary 是开放寻址字典的句柄
type Dictionary struct {
	rung  int // growthLadder 的下标，当前使用的子表级别
	table []entry
	count int
}

// Init 构造一个空字典，从阶梯的第一级子表开始
func Init() *Dictionary {
	d := &Dictionary{}
	d.table = make([]entry, growthLadder[0])
	return d
}

// Done 释放字典占用的底层数组
func (d *Dictionary) Done() {
	d.table = nil
	d.count = 0
}

// Clear 清空字典内容但保留当前子表级别
func (d *Dictionary) Clear() {
	for i := range d.table {
		d.table[i] = entry{}
	}
	d.count = 0
}

// Count 返回字典当前保存的键数量
func (d *Dictionary) Count() int {
	return d.count
}

// Stats 返回字典的占用统计，用于诊断和调优子表级别（spec §9 的补充
// 特性：原始实现里类似的字典调试接口）
type Stats struct {
	Rung        int
	TableSize   uint32
	Count       int
	LoadFactor  float64
}

// Stats 返回当前字典的占用统计
func (d *Dictionary) Stats() Stats {
	size := growthLadder[d.rung]
	return Stats{
		Rung:       d.rung,
		TableSize:  size,
		Count:      d.count,
		LoadFactor: float64(d.count) / float64(size),
	}
}

// hashKey 用 XOR 累加的方式把任意长度的键压成一个 32 位哈希值
func hashKey(key []byte) uint32 {
	var h uint32
	for i, b := range key {
		shift := uint(i%4) * 8
		h ^= uint32(b) << shift
	}
	return h
}

// probe 计算第 rung 级子表、第 i 次尝试（0..rehashingCount-1）的槽位下标
func probe(hash uint32, i int, tableSize uint32) uint32 {
	rotated := bits.RotateLeft32(hash, i)
	return rotated % tableSize
}

// find 在当前子表里查找键，返回槽位下标和是否命中
func (d *Dictionary) find(hash uint32, key []byte) (int, bool) {
	size := uint32(len(d.table))
	for i := 0; i < rehashingCount; i++ {
		idx := probe(hash, i, size)
		slot := &d.table[idx]
		if !slot.used {
			// Remove 会清空槽位，空槽之后的探测位置上仍可能有这个键
			continue
		}
		if slot.hash == hash && string(slot.key) == string(key) {
			return int(idx), true
		}
	}
	return -1, false
}

// grow 把字典升级到阶梯的下一级，把现有条目重新哈希进新表
func (d *Dictionary) grow() bool {
	if d.rung+1 >= len(growthLadder) {
		return false
	}
	old := d.table
	d.rung++
	d.table = make([]entry, growthLadder[d.rung])
	d.count = 0
	for _, slot := range old {
		if slot.used {
			d.insert(slot.hash, slot.key, slot.value)
		}
	}
	return true
}

// insert 把 key/value 插进当前子表；命中一个 hash+key 都相同的已有槽位
// 时原地覆盖它的 value，和 Add 在上一层做的存在性检查共享这个更新路径
func (d *Dictionary) insert(hash uint32, key, value []byte) bool {
	size := uint32(len(d.table))
	for i := 0; i < rehashingCount; i++ {
		idx := probe(hash, i, size)
		slot := &d.table[idx]
		if !slot.used {
			slot.used = true
			slot.hash = hash
			slot.key = append([]byte(nil), key...)
			slot.value = append([]byte(nil), value...)
			d.count++
			return true
		}
		if slot.hash == hash && string(slot.key) == string(key) {
			slot.value = append([]byte(nil), value...)
			return true
		}
	}
	return false
}

// Add 把一个键值对加入字典；键已经存在时覆盖它的 value 并返回 true，
// 否则插入新槽位。当子表负载超过阈值时自动升级到阶梯的下一级。
func (d *Dictionary) Add(key, value []byte) bool {
	hash := hashKey(key)
	if idx, found := d.find(hash, key); found {
		d.table[idx].value = append([]byte(nil), value...)
		return true
	}

	for {
		if d.insert(hash, key, value) {
			if float64(d.count)/float64(len(d.table)) > loadFactorThreshold {
				d.grow()
			}
			return true
		}
		if !d.grow() {
			// 已经到达阶梯顶端还是插不进去：极端情况下直接报告失败
			return false
		}
	}
}

// Contains 报告键是否存在于字典中
func (d *Dictionary) Contains(key []byte) bool {
	hash := hashKey(key)
	_, found := d.find(hash, key)
	return found
}

// Find 查找键对应的 value；键不存在时 ok 为 false
func (d *Dictionary) Find(key []byte) (value []byte, ok bool) {
	hash := hashKey(key)
	idx, found := d.find(hash, key)
	if !found {
		return nil, false
	}
	return d.table[idx].value, true
}

// Remove 从字典里删除一个键，返回它是否存在过
func (d *Dictionary) Remove(key []byte) bool {
	hash := hashKey(key)
	idx, found := d.find(hash, key)
	if !found {
		return false
	}
	d.table[idx] = entry{}
	d.count--
	return true
}

// Iterate 按槽位顺序对字典里的每个键值对调用一次 fn；fn 返回 false 时
// 提前终止遍历
func (d *Dictionary) Iterate(fn func(key, value []byte) bool) {
	for _, slot := range d.table {
		if !slot.used {
			continue
		}
		if !fn(slot.key, slot.value) {
			return
		}
	}
}
