package cache

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPutThenGet(t *testing.T) {
	c := New[[]string](2)
	key := Key{ContentHash: "abc", AnalyzerVersion: "v1", RuleSetVersion: "r1"}
	vs := []string{"eval"}
	c.Put(key, vs)

	got, ok := c.Get(key)
	require.True(t, ok)
	assert.Equal(t, vs, got)
}

func TestMissOnDifferentRuleSetVersion(t *testing.T) {
	c := New[[]string](2)
	c.Put(Key{ContentHash: "abc", AnalyzerVersion: "v1", RuleSetVersion: "r1"}, []string{"eval"})
	_, ok := c.Get(Key{ContentHash: "abc", AnalyzerVersion: "v1", RuleSetVersion: "r2"})
	assert.False(t, ok)
}

func TestEvictsLeastRecentlyUsed(t *testing.T) {
	c := New[[]string](2)
	k1 := Key{ContentHash: "a"}
	k2 := Key{ContentHash: "b"}
	k3 := Key{ContentHash: "c"}
	c.Put(k1, nil)
	c.Put(k2, nil)
	c.Get(k1) // k1 now most recent; k2 is LRU
	c.Put(k3, nil)

	_, ok := c.Get(k2)
	assert.False(t, ok, "k2 should have been evicted")
	_, ok = c.Get(k1)
	assert.True(t, ok)
	_, ok = c.Get(k3)
	assert.True(t, ok)
	assert.Equal(t, 2, c.Len())
}
