// Package msgqueue 实现一个有界的先进先出消息队列（C8）
//
// 归档写入/读取的生产者和消费者运行在不同 goroutine 时，用它在两者之
// 间传递工作单元：Put 在队列达到上限时阻塞生产者，Get 在队列为空时
// 阻塞消费者，SetEndOfStream 让消费者在排空剩余消息之后能够区分"暂
// 时没有更多消息"和"再也不会有更多消息了"。
package msgqueue

import (
	"container/list"
	"context"
	"sync"
	"time"

	"github.com/bpfs/barfs/barerrors"
)

// Queue 是一个有界的 FIFO 消息队列；maxDepth 为 0 表示不限深度
type Queue struct {
	mu   sync.Mutex
	cond *sync.Cond

	items       *list.List
	maxDepth    int
	endOfStream bool
}

// New 构造一个消息队列
//
// 参数:
//   - maxDepth: 队列允许堆积的最大消息数，0 表示不限
func New(maxDepth int) *Queue {
	q := &Queue{items: list.New(), maxDepth: maxDepth}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// Put 把一条消息加入队尾；如果队列已经达到上限，阻塞直到有空位或者
// ctx 被取消。队列一旦被 SetEndOfStream 标记结束，Put 无条件失败——即
// 使这时候队列里还有空位
func (q *Queue) Put(ctx context.Context, msg interface{}) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.endOfStream {
		return barerrors.ErrEndOfStream
	}

	for q.maxDepth > 0 && q.items.Len() >= q.maxDepth {
		if !q.waitLocked(ctx) {
			return barerrors.ErrAborted
		}
		if q.endOfStream {
			return barerrors.ErrEndOfStream
		}
	}
	q.items.PushBack(msg)
	q.cond.Broadcast()
	return nil
}

// Get 取出队首消息；如果队列为空且还没有结束流，阻塞直到有新消息、
// 队列被标记结束、超时或者 ctx 被取消。timeout<=0 表示不设超时。
//
// 返回值:
//   - msg: 取出的消息，ok 为 false 时无意义
//   - ok: 是否成功取到消息
//   - err: 超时或者 ctx 被取消时返回 barerrors.ErrAborted，end-of-stream
//     不是错误，通过 ok==false 且 err==nil 表示
func (q *Queue) Get(ctx context.Context, timeout time.Duration) (msg interface{}, ok bool, err error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if timeout > 0 {
		timer := time.AfterFunc(timeout, func() {
			q.mu.Lock()
			q.cond.Broadcast()
			q.mu.Unlock()
		})
		defer timer.Stop()
	}

	start := time.Now()
	for q.items.Len() == 0 {
		if q.endOfStream {
			return nil, false, nil
		}
		if timeout > 0 && time.Since(start) >= timeout {
			return nil, false, barerrors.ErrAborted
		}
		if !q.waitLocked(ctx) {
			return nil, false, barerrors.ErrAborted
		}
	}

	front := q.items.Front()
	q.items.Remove(front)
	q.cond.Broadcast()
	return front.Value, true, nil
}

// waitLocked 在持有 q.mu 的前提下等待一次被唤醒；ctx 被取消时返回 false
func (q *Queue) waitLocked(ctx context.Context) bool {
	if ctx == nil {
		q.cond.Wait()
		return true
	}
	if ctx.Err() != nil {
		return false
	}
	woken := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			q.mu.Lock()
			q.cond.Broadcast()
			q.mu.Unlock()
		case <-woken:
		}
	}()
	q.cond.Wait()
	close(woken)
	return ctx.Err() == nil
}

// SetEndOfStream 标记不会再有新消息加入；任何阻塞在 Get 上的消费者
// 在排空剩余消息之后会收到 ok==false
func (q *Queue) SetEndOfStream() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.endOfStream = true
	q.cond.Broadcast()
}

// Count 返回队列当前堆积的消息数
func (q *Queue) Count() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.items.Len()
}

// Clear 清空队列，对每条被丢弃的消息调用一次可选的 freeFn
func (q *Queue) Clear(freeFn func(interface{})) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for e := q.items.Front(); e != nil; e = e.Next() {
		if freeFn != nil {
			freeFn(e.Value)
		}
	}
	q.items.Init()
	q.cond.Broadcast()
}

// Done 释放队列，对仍然堆积的消息调用一次可选的 freeFn；队列释放后
// 不应再被使用
func (q *Queue) Done(freeFn func(interface{})) {
	q.Clear(freeFn)
}
