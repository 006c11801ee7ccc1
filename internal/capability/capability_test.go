package capability

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHasCapabilityWalksAncestors(t *testing.T) {
	root := NewRoot()
	root.AddCapability("net", Constraints{ResourcePatterns: []string{"https://api.example.com/**"}})
	child := root.Child()
	assert.True(t, child.HasCapability("net"))
	assert.False(t, child.HasCapability("fs"))
}

func TestUseCapabilityPatternMatch(t *testing.T) {
	root := NewRoot()
	root.AddCapability("net", Constraints{
		ResourcePatterns:  []string{"https://api.example.com/**"},
		AllowedOperations: []string{"read"},
	})
	tok, err := root.UseCapability("net", "https://api.example.com/v1/users", "read")
	require.NoError(t, err)
	assert.Equal(t, 1, tok.UsageCount())

	_, err = root.UseCapability("net", "https://evil.example.com/", "read")
	assert.Error(t, err)

	_, err = root.UseCapability("net", "https://api.example.com/v1/users", "write")
	assert.Error(t, err)
}

func TestUseCapabilityUsageExceeded(t *testing.T) {
	root := NewRoot()
	root.AddCapability("fs", Constraints{ResourcePatterns: []string{"/tmp/*"}, MaxUsageCount: 1})
	_, err := root.UseCapability("fs", "/tmp/a", "")
	require.NoError(t, err)
	_, err = root.UseCapability("fs", "/tmp/a", "")
	assert.Error(t, err)
}

func TestUseCapabilityExpired(t *testing.T) {
	root := NewRoot()
	root.AddCapability("fs", Constraints{ResourcePatterns: []string{"/tmp/*"}, ExpiresAt: time.Now().Add(-time.Minute)})
	_, err := root.UseCapability("fs", "/tmp/a", "")
	assert.Error(t, err)
}

func TestGlobCrossSegmentVsWithinSegment(t *testing.T) {
	c := Constraints{ResourcePatterns: []string{"/data/*.txt"}}
	assert.True(t, c.matchesResource("/data/a.txt"))
	assert.False(t, c.matchesResource("/data/sub/a.txt"))

	c2 := Constraints{ResourcePatterns: []string{"/data/**"}}
	assert.True(t, c2.matchesResource("/data/sub/a.txt"))
}

func TestChildCannotWidenParentGrant(t *testing.T) {
	root := NewRoot()
	root.AddCapability("net", Constraints{ResourcePatterns: []string{"https://api.example.com/**"}})
	child := root.Child()
	child.AddCapability("fs", Constraints{ResourcePatterns: []string{"/tmp/*"}})

	assert.True(t, child.HasCapability("net"))
	assert.False(t, root.HasCapability("fs"))
}

func TestGetCapabilityTokenUncheckedDoesNotEnforce(t *testing.T) {
	root := NewRoot()
	root.AddCapability("net", Constraints{ResourcePatterns: []string{"https://api.example.com/**"}, ExpiresAt: time.Now().Add(-time.Minute)})
	tok, ok := root.GetCapabilityTokenUnchecked("net")
	require.True(t, ok)
	assert.Equal(t, 0, tok.UsageCount())

	_, err := root.UseCapability("net", "https://api.example.com/x", "")
	assert.Error(t, err)
}

func TestGetAllCapabilitiesIncludesAncestors(t *testing.T) {
	root := NewRoot()
	root.AddCapability("net", Constraints{ResourcePatterns: []string{"**"}})
	child := root.Child()
	child.AddCapability("fs", Constraints{ResourcePatterns: []string{"/tmp/*"}})

	all := child.GetAllCapabilities()
	assert.Len(t, all, 2)
}

func TestGetAllCapabilitiesExcludesExpiredTokens(t *testing.T) {
	root := NewRoot()
	root.AddCapability("net", Constraints{ResourcePatterns: []string{"**"}})
	root.AddCapability("fs", Constraints{ResourcePatterns: []string{"/tmp/*"}, ExpiresAt: time.Now().Add(-time.Minute)})

	all := root.GetAllCapabilities()
	require.Len(t, all, 1)
	assert.Equal(t, Type("net"), all[0].Type)
}

func TestGetAllCapabilitiesRemovesExpiredTokensLazily(t *testing.T) {
	root := NewRoot()
	root.AddCapability("fs", Constraints{ResourcePatterns: []string{"/tmp/*"}, ExpiresAt: time.Now().Add(-time.Minute)})
	root.AddCapability("net", Constraints{ResourcePatterns: []string{"**"}})

	require.Len(t, root.GetAllCapabilities(), 1)

	root.mu.RLock()
	fsTokens := root.tokens["fs"]
	root.mu.RUnlock()
	assert.Empty(t, fsTokens, "expired token must be removed from the live map after a snapshot")
}

func TestGetAllCapabilitiesAcrossAncestorsRemovesOnlyExpiredInEachContext(t *testing.T) {
	root := NewRoot()
	root.AddCapability("net", Constraints{ResourcePatterns: []string{"**"}, ExpiresAt: time.Now().Add(-time.Minute)})
	child := root.Child()
	child.AddCapability("fs", Constraints{ResourcePatterns: []string{"/tmp/*"}})

	all := child.GetAllCapabilities()
	require.Len(t, all, 1)
	assert.Equal(t, Type("fs"), all[0].Type)

	root.mu.RLock()
	defer root.mu.RUnlock()
	assert.Empty(t, root.tokens["net"])
}
