package msgqueue

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bpfs/barfs/barerrors"
)

func TestPutGetFIFO(t *testing.T) {
	q := New(0)
	ctx := context.Background()
	require.NoError(t, q.Put(ctx, 1))
	require.NoError(t, q.Put(ctx, 2))
	require.NoError(t, q.Put(ctx, 3))

	for _, want := range []int{1, 2, 3} {
		msg, ok, err := q.Get(ctx, 0)
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, want, msg)
	}
}

func TestGetBlocksUntilPut(t *testing.T) {
	q := New(0)
	ctx := context.Background()

	var wg sync.WaitGroup
	wg.Add(1)
	var got interface{}
	go func() {
		defer wg.Done()
		msg, ok, err := q.Get(ctx, 2*time.Second)
		require.NoError(t, err)
		require.True(t, ok)
		got = msg
	}()

	time.Sleep(20 * time.Millisecond)
	require.NoError(t, q.Put(ctx, "hello"))
	wg.Wait()
	assert.Equal(t, "hello", got)
}

func TestBoundedPutBlocksUntilSpace(t *testing.T) {
	q := New(1)
	ctx := context.Background()
	require.NoError(t, q.Put(ctx, "a"))

	putDone := make(chan struct{})
	go func() {
		require.NoError(t, q.Put(ctx, "b"))
		close(putDone)
	}()

	select {
	case <-putDone:
		t.Fatal("second Put should have blocked while queue is full")
	case <-time.After(30 * time.Millisecond):
	}

	_, ok, err := q.Get(ctx, 0)
	require.NoError(t, err)
	require.True(t, ok)

	select {
	case <-putDone:
	case <-time.After(time.Second):
		t.Fatal("second Put should have unblocked after a Get freed space")
	}
}

func TestEndOfStreamDrainsThenReturnsFalse(t *testing.T) {
	q := New(0)
	ctx := context.Background()
	require.NoError(t, q.Put(ctx, "x"))
	q.SetEndOfStream()

	msg, ok, err := q.Get(ctx, 0)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "x", msg)

	_, ok, err = q.Get(ctx, 0)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestPutAfterEndOfStreamFailsEvenWithRoom(t *testing.T) {
	q := New(4)
	ctx := context.Background()
	q.SetEndOfStream()

	err := q.Put(ctx, "late")
	require.Error(t, err)
	assert.True(t, errors.Is(err, barerrors.ErrEndOfStream))
	assert.Equal(t, 0, q.Count())
}

func TestPutBlockedOnCapacityUnblocksToEndOfStream(t *testing.T) {
	q := New(1)
	ctx := context.Background()
	require.NoError(t, q.Put(ctx, "a"))

	putErr := make(chan error, 1)
	go func() {
		putErr <- q.Put(ctx, "b")
	}()

	time.Sleep(20 * time.Millisecond)
	q.SetEndOfStream()

	select {
	case err := <-putErr:
		require.Error(t, err)
		assert.True(t, errors.Is(err, barerrors.ErrEndOfStream))
	case <-time.After(time.Second):
		t.Fatal("Put blocked on capacity should have unblocked once end-of-stream was set")
	}
}

func TestGetTimesOut(t *testing.T) {
	q := New(0)
	ctx := context.Background()
	_, ok, err := q.Get(ctx, 30*time.Millisecond)
	assert.False(t, ok)
	assert.Error(t, err)
}

func TestClearInvokesFreeFn(t *testing.T) {
	q := New(0)
	ctx := context.Background()
	require.NoError(t, q.Put(ctx, "a"))
	require.NoError(t, q.Put(ctx, "b"))

	var freed []interface{}
	q.Clear(func(v interface{}) { freed = append(freed, v) })
	assert.Equal(t, []interface{}{"a", "b"}, freed)
	assert.Equal(t, 0, q.Count())
}
