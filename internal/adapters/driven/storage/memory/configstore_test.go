package memory

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewConfigStore(t *testing.T) {
	store := NewConfigStore()
	require.NotNil(t, store)
	assert.NotNil(t, store.values)
}

func TestConfigStore_SetAndGet(t *testing.T) {
	store := NewConfigStore()

	store.Set("key1", "value1")

	val, ok := store.Get("key1")
	assert.True(t, ok)
	assert.Equal(t, "value1", val)

	// Updates replace
	store.Set("key1", "updated")
	val, _ = store.Get("key1")
	assert.Equal(t, "updated", val)
}

func TestConfigStore_TypedGetters(t *testing.T) {
	store := NewConfigStore()
	store.Set("str", "hello")
	store.Set("int", 42)
	store.Set("int64", int64(7))
	store.Set("float", 0.55)
	store.Set("bool", true)
	store.Set("slice", []string{"a", "b"})

	assert.Equal(t, "hello", store.GetString("str"))
	assert.Equal(t, 42, store.GetInt("int"))
	assert.Equal(t, 7, store.GetInt("int64"))
	assert.InDelta(t, 0.55, store.GetFloat("float"), 1e-9)
	assert.InDelta(t, 42.0, store.GetFloat("int"), 1e-9)
	assert.True(t, store.GetBool("bool"))
	assert.Equal(t, []string{"a", "b"}, store.GetStringSlice("slice"))
}

func TestConfigStore_MissingAndWrongTypes(t *testing.T) {
	store := NewConfigStore()
	store.Set("str", "not a number")

	assert.Equal(t, "", store.GetString("missing"))
	assert.Equal(t, 0, store.GetInt("str"))
	assert.Zero(t, store.GetFloat("str"))
	assert.False(t, store.GetBool("str"))
	assert.Nil(t, store.GetStringSlice("str"))
	assert.Nil(t, store.Tables("str"))
}

func TestConfigStore_Tables(t *testing.T) {
	store := NewConfigStore()
	store.Set("collections", []map[string]any{
		{"name": "docs", "adapter": "confluence"},
		{"name": "wiki", "adapter": "sharepoint"},
	})

	tables := store.Tables("collections")
	require.Len(t, tables, 2)
	assert.Equal(t, "docs", tables[0]["name"])

	// Also accepts the []any shape produced by TOML decoding
	store.Set("mixed", []any{
		map[string]any{"name": "jira"},
		"not a table",
	})
	tables = store.Tables("mixed")
	require.Len(t, tables, 1)
	assert.Equal(t, "jira", tables[0]["name"])
}

func TestConfigStore_LoadAndPath(t *testing.T) {
	store := NewConfigStore()

	assert.NoError(t, store.Load())
	assert.Equal(t, ":memory:", store.Path())
}

func TestConfigStore_ConcurrentAccess(t *testing.T) {
	store := NewConfigStore()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			store.Set("shared", 1)
		}()
		go func() {
			defer wg.Done()
			_ = store.GetInt("shared")
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, store.GetInt("shared"))
}
