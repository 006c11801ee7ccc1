package stdlib

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegisterThenLookup(t *testing.T) {
	r := New()
	require.NoError(t, r.Register(Module{Name: "widgets", Symbols: []Symbol{{Name: "make"}}}))

	m, ok := r.Lookup("widgets")
	require.True(t, ok)
	assert.Equal(t, "widgets", m.Name)
}

func TestRegisterDuplicateNameFails(t *testing.T) {
	r := New()
	require.NoError(t, r.Register(Module{Name: "widgets"}))
	assert.Error(t, r.Register(Module{Name: "widgets"}))
}

func TestRegisterAfterFreezeFails(t *testing.T) {
	r := New()
	r.Freeze()
	assert.Error(t, r.Register(Module{Name: "widgets"}))
}

func TestNamesSorted(t *testing.T) {
	r := New()
	require.NoError(t, r.Register(Module{Name: "zeta"}))
	require.NoError(t, r.Register(Module{Name: "alpha"}))
	assert.Equal(t, []string{"alpha", "zeta"}, r.Names())
}

func TestDefaultRegistryIsFrozenAndPopulated(t *testing.T) {
	r := Default()
	assert.Error(t, r.Register(Module{Name: "anything"}))

	_, ok := r.Lookup("net")
	assert.True(t, ok)
	_, ok = r.Lookup("fs")
	assert.True(t, ok)
}

func TestAllSinksAggregatesAcrossModules(t *testing.T) {
	r := Default()
	sinks := r.AllSinks()
	assert.Contains(t, sinks, "fs.write")
	assert.Contains(t, sinks, "process.spawn")
}

func TestAllSourcesAggregatesAcrossModules(t *testing.T) {
	r := Default()
	sources := r.AllSources()
	assert.Contains(t, sources, "net.fetch")
	assert.Contains(t, sources, "fs.read")
}

func TestAllSanitizersAggregatesAcrossModules(t *testing.T) {
	r := Default()
	sanitizers := r.AllSanitizers()
	assert.Contains(t, sanitizers, "text.sanitize")
	assert.Contains(t, sanitizers, "text.escape_html")
}

func TestQualifiedSinksEmptyForModuleWithNoSinks(t *testing.T) {
	m := Module{Name: "json", Symbols: []Symbol{{Name: "parse"}, {Name: "stringify"}}}
	assert.Empty(t, m.QualifiedSinks())
}
