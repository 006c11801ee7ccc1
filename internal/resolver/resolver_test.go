package resolver

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vaultlang/internal/stdlib"
	"vaultlang/internal/verrors"
)

func TestResolveStdlibModule(t *testing.T) {
	r := New(stdlib.Default(), SourceLocator{})
	mv, err := r.Resolve("net", "main.sl")
	require.NoError(t, err)
	assert.True(t, mv.IsStdlib)
	assert.Equal(t, "net_access", mv.DeclaredCapability)
}

func TestResolveLocalSourceFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "helpers.sl"), []byte("x = 1;"), 0o644))

	r := New(stdlib.Default(), SourceLocator{ProjectRoot: dir})
	mv, err := r.Resolve("helpers", "main.sl")
	require.NoError(t, err)
	assert.False(t, mv.IsStdlib)
	assert.Equal(t, filepath.Join(dir, "helpers.sl"), mv.SourcePath)
}

func TestResolveExtensionPathFallback(t *testing.T) {
	projectDir := t.TempDir()
	extDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(extDir, "widgets.sl"), []byte("x = 1;"), 0o644))

	r := New(stdlib.Default(), SourceLocator{ProjectRoot: projectDir, ExtensionPaths: []string{extDir}})
	mv, err := r.Resolve("widgets", "main.sl")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(extDir, "widgets.sl"), mv.SourcePath)
}

func TestResolveUnknownModuleFails(t *testing.T) {
	r := New(stdlib.Default(), SourceLocator{})
	_, err := r.Resolve("nope", "main.sl")
	require.Error(t, err)
	var rerr *verrors.ResolverError
	require.ErrorAs(t, err, &rerr)
	assert.Equal(t, verrors.ResolverUnknownModule, rerr.Kind)
}

func TestSuggestFindsCloseMatch(t *testing.T) {
	r := New(stdlib.Default(), SourceLocator{})
	assert.Equal(t, "net", r.Suggest("nte"))
}

func TestSuggestReturnsEmptyWhenNothingClose(t *testing.T) {
	r := New(stdlib.Default(), SourceLocator{})
	assert.Equal(t, "", r.Suggest("zzzzzzzzzzzzzzzzzzzz"))
}

// staticImports returns an ImportLister backed by a fixed name->imports map,
// standing in for a real front-end parse of each file's import statements.
func staticImports(graph map[string][]string) ImportLister {
	return func(sourcePath string) ([]string, error) {
		name := filepath.Base(sourcePath)
		name = name[:len(name)-len(filepath.Ext(name))]
		return graph[name], nil
	}
}

func TestResolveTransitiveDetectsCycle(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.sl"), []byte("import b;"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.sl"), []byte("import a;"), 0o644))

	r := New(stdlib.Default(), SourceLocator{ProjectRoot: dir})
	lister := staticImports(map[string][]string{"a": {"b"}, "b": {"a"}})

	_, err := r.ResolveTransitive("a", "main.sl", lister)
	require.Error(t, err)

	var rerr *verrors.ResolverError
	require.ErrorAs(t, err, &rerr)
	assert.Equal(t, verrors.ResolverCycle, rerr.Kind)
	assert.Equal(t, []string{"a", "b", "a"}, rerr.Cycle)
}

func TestResolveTransitiveSucceedsOnAcyclicGraph(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.sl"), []byte("import b;"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.sl"), []byte("x = 1;"), 0o644))

	r := New(stdlib.Default(), SourceLocator{ProjectRoot: dir})
	lister := staticImports(map[string][]string{"a": {"b"}, "b": nil})

	mv, err := r.ResolveTransitive("a", "main.sl", lister)
	require.NoError(t, err)
	assert.Equal(t, "a", mv.Name)
}

func TestResolveTransitiveStopsAtStdlibLeaf(t *testing.T) {
	r := New(stdlib.Default(), SourceLocator{})
	lister := staticImports(nil)

	mv, err := r.ResolveTransitive("net", "main.sl", lister)
	require.NoError(t, err)
	assert.True(t, mv.IsStdlib)
}

func TestResolveTransitiveAccumulatesMultipleErrors(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.sl"), []byte("import missing1; import missing2;"), 0o644))

	r := New(stdlib.Default(), SourceLocator{ProjectRoot: dir})
	lister := staticImports(map[string][]string{"a": {"missing1", "missing2"}})

	_, err := r.ResolveTransitive("a", "main.sl", lister)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing1")
	assert.Contains(t, err.Error(), "missing2")
}
