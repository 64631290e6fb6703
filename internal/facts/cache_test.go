package facts

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCacheMergePreservesUnrelatedKeys(t *testing.T) {
	c := New()
	c.Merge("web1", map[string]interface{}{"os": "linux", "port": 22})
	c.Merge("web1", map[string]interface{}{"port": 2222})

	got := c.Get("web1")
	assert.Equal(t, "linux", got["os"])
	assert.Equal(t, 2222, got["port"])
}

func TestCacheGetReturnsDeepCopy(t *testing.T) {
	c := New()
	c.Merge("web1", map[string]interface{}{
		"nested": map[string]interface{}{"a": 1},
	})

	first := c.Get("web1")
	nested, ok := first["nested"].(map[string]interface{})
	require.True(t, ok)
	nested["a"] = 99

	second := c.Get("web1")
	assert.Equal(t, 1, second["nested"].(map[string]interface{})["a"])
}

func TestCacheUnknownHostYieldsEmptyMap(t *testing.T) {
	c := New()
	got := c.Get("nope")
	require.NotNil(t, got)
	assert.Empty(t, got)
	assert.False(t, c.Has("nope"))
}

func TestCacheSetReplacesEntry(t *testing.T) {
	c := New()
	c.Merge("db1", map[string]interface{}{"a": 1, "b": 2})
	c.Set("db1", map[string]interface{}{"c": 3})

	got := c.Get("db1")
	assert.Equal(t, map[string]interface{}{"c": 3}, got)
}

func TestCacheHosts(t *testing.T) {
	c := New()
	c.Merge("a", map[string]interface{}{"x": 1})
	c.Merge("b", map[string]interface{}{"x": 1})

	assert.ElementsMatch(t, []string{"a", "b"}, c.Hosts())
}
