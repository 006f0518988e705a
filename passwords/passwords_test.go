package passwords

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolverListPriority(t *testing.T) {
	list := NewList()
	list.Add([]byte("cached-secret"))

	r := NewResolver("archive.bar", ModeConfig, []byte("config-secret"), nil, nil, list)
	pw, ok := r.First()
	require.True(t, ok)
	assert.Equal(t, "cached-secret", string(pw))

	pw, ok = r.Next()
	require.True(t, ok)
	assert.Equal(t, "config-secret", string(pw))

	_, ok = r.Next()
	assert.False(t, ok)
}

func TestResolverConfigModeFallsBackToGlobalThenPrompt(t *testing.T) {
	calls := 0
	prompt := func(name string) ([]byte, bool) {
		calls++
		return nil, false
	}
	r := NewResolver("archive.bar", ModeConfig, nil, []byte("global-secret"), prompt, NewList())
	pw, ok := r.First()
	require.True(t, ok)
	assert.Equal(t, "global-secret", string(pw))

	_, ok = r.Next()
	assert.False(t, ok)
	assert.Equal(t, 1, calls)
}

func TestResolverDefaultModeTriesGlobalPasswordThenPrompt(t *testing.T) {
	r := NewResolver("archive.bar", ModeDefault, nil, []byte("global-secret"), nil, NewList())
	pw, ok := r.First()
	require.True(t, ok)
	assert.Equal(t, "global-secret", string(pw))

	_, ok = r.Next()
	assert.False(t, ok)
}

func TestResolverAskModeCallsPromptRepeatedly(t *testing.T) {
	calls := 0
	prompt := func(name string) ([]byte, bool) {
		calls++
		if calls > 2 {
			return nil, false
		}
		return []byte("guess"), true
	}
	r := NewResolver("archive.bar", ModeAsk, nil, nil, prompt, NewList())
	pw, ok := r.First()
	require.True(t, ok)
	assert.Equal(t, "guess", string(pw))

	pw, ok = r.Next()
	require.True(t, ok)
	assert.Equal(t, "guess", string(pw))

	_, ok = r.Next()
	assert.False(t, ok)
	assert.Equal(t, 3, calls)
}

func TestListDedupesAndClears(t *testing.T) {
	list := NewList()
	list.Add([]byte("a"))
	list.Add([]byte("a"))
	list.Add([]byte("b"))
	assert.Len(t, list.Snapshot(), 2)

	list.Clear()
	assert.Empty(t, list.Snapshot())
}
