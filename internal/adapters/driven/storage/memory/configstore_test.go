package memory

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewConfigStore_Seed(t *testing.T) {
	store := NewConfigStore(map[string]any{"indexer.workers": 2}, map[string]any{"repository.root": "/a"})

	assert.Equal(t, 2, store.GetInt("indexer.workers"))
	assert.Equal(t, "/a", store.GetString("repository.root"))
	assert.Equal(t, ":memory:", store.Path())
}

func TestConfigStore_SetAndGet(t *testing.T) {
	store := NewConfigStore()

	require.NoError(t, store.Set("key", "original"))
	require.NoError(t, store.Set("key", "updated"))

	val, ok := store.Get("key")
	assert.True(t, ok)
	assert.Equal(t, "updated", val)

	_, ok = store.Get("missing")
	assert.False(t, ok)

	require.NoError(t, store.Save())
	require.NoError(t, store.Load())
}

func TestConfigStore_TypeAssertions(t *testing.T) {
	store := NewConfigStore()

	_ = store.Set("string", "value")
	_ = store.Set("int", 42)
	_ = store.Set("int64", int64(43))
	_ = store.Set("float", 3.14)
	_ = store.Set("bool", true)
	_ = store.Set("duration", 5*time.Second)
	_ = store.Set("duration_string", "2m")

	tests := []struct {
		name string
		got  any
		want any
	}{
		{"string", store.GetString("string"), "value"},
		{"string wrong type", store.GetString("int"), ""},
		{"int", store.GetInt("int"), 42},
		{"int from int64", store.GetInt("int64"), 43},
		{"int from float", store.GetInt("float"), 3},
		{"int wrong type", store.GetInt("string"), 0},
		{"float", store.GetFloat("float"), 3.14},
		{"float from int", store.GetFloat("int"), 42.0},
		{"float wrong type", store.GetFloat("bool"), 0.0},
		{"bool", store.GetBool("bool"), true},
		{"bool wrong type", store.GetBool("int"), false},
		{"duration", store.GetDuration("duration"), 5 * time.Second},
		{"duration string", store.GetDuration("duration_string"), 2 * time.Minute},
		{"duration invalid", store.GetDuration("string"), time.Duration(0)},
		{"duration wrong type", store.GetDuration("int"), time.Duration(0)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.got)
		})
	}
}

func TestConfigStore_Concurrency(t *testing.T) {
	store := NewConfigStore()

	var wg sync.WaitGroup
	for i := range 50 {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			_ = store.Set("counter", i)
		}(i)
		go func() {
			defer wg.Done()
			_ = store.GetInt("counter")
		}()
	}
	wg.Wait()

	_, ok := store.Get("counter")
	assert.True(t, ok)
}
