package dictionary

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddFindRemove(t *testing.T) {
	d := Init()
	defer d.Done()

	assert.True(t, d.Add([]byte("alpha"), []byte("cast-1")))
	assert.True(t, d.Contains([]byte("alpha")))
	assert.False(t, d.Contains([]byte("beta")))
	assert.Equal(t, 1, d.Count())

	value, ok := d.Find([]byte("alpha"))
	require.True(t, ok)
	assert.Equal(t, "cast-1", string(value))

	_, ok = d.Find([]byte("beta"))
	assert.False(t, ok)

	assert.True(t, d.Remove([]byte("alpha")))
	assert.False(t, d.Contains([]byte("alpha")))
	assert.Equal(t, 0, d.Count())
}

func TestAddOverwritesValueForExistingKey(t *testing.T) {
	d := Init()
	defer d.Done()

	assert.True(t, d.Add([]byte("alpha"), []byte("cast-1")))
	assert.True(t, d.Add([]byte("alpha"), []byte("cast-2")), "re-adding an existing key should report true")
	assert.Equal(t, 1, d.Count(), "overwriting must not create a second entry")

	value, ok := d.Find([]byte("alpha"))
	require.True(t, ok)
	assert.Equal(t, "cast-2", string(value))
}

func TestGrowthLadderAdvancesUnderLoad(t *testing.T) {
	d := Init()
	defer d.Done()

	for i := 0; i < 900; i++ {
		d.Add([]byte(fmt.Sprintf("key-%d", i)), []byte(fmt.Sprintf("value-%d", i)))
	}
	assert.Equal(t, 900, d.Count())
	stats := d.Stats()
	assert.Greater(t, stats.Rung, 0, "should have grown past the first rung")
	assert.Less(t, stats.LoadFactor, loadFactorThreshold+0.05)

	for i := 0; i < 900; i++ {
		value, ok := d.Find([]byte(fmt.Sprintf("key-%d", i)))
		require.True(t, ok)
		assert.Equal(t, fmt.Sprintf("value-%d", i), string(value))
	}
}

func TestClearResetsCountButKeepsRung(t *testing.T) {
	d := Init()
	defer d.Done()
	for i := 0; i < 50; i++ {
		d.Add([]byte(fmt.Sprintf("key-%d", i)), []byte("v"))
	}
	d.Clear()
	assert.Equal(t, 0, d.Count())
	assert.False(t, d.Contains([]byte("key-0")))
}

func TestIterateVisitsAllEntriesWithValues(t *testing.T) {
	d := Init()
	defer d.Done()
	want := map[string]string{"a": "1", "b": "2", "c": "3"}
	for k, v := range want {
		d.Add([]byte(k), []byte(v))
	}
	got := map[string]string{}
	d.Iterate(func(key, value []byte) bool {
		got[string(key)] = string(value)
		return true
	})
	assert.Equal(t, want, got)
}
