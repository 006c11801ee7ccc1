package analyzer_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vaultlang/internal/analyzer"
	"vaultlang/internal/analyzer/cache"
	"vaultlang/internal/analyzer/dataflow"
	"vaultlang/internal/analyzer/patterns"
	"vaultlang/internal/analyzer/walker"
	"vaultlang/internal/ast"
	"vaultlang/internal/parser"
)

func TestHarnessMergesAllThreeAnalyses(t *testing.T) {
	src := `
x = read_input();
exec(compile(x));
break;
`
	unit := ast.NewSourceUnit("x.sl", src)
	mod, err := parser.Parse(unit)
	require.NoError(t, err)

	h := analyzer.New(
		patterns.NewDetector(),
		func(file string) analyzer.StructuralWalker { return walker.New(file) },
		func(file string) analyzer.TaintTracker { return dataflow.New(file) },
		cache.New[[]analyzer.Violation](16),
	)

	vs, err := h.Analyze(context.Background(), unit, mod)
	require.NoError(t, err)

	var sources []analyzer.Source
	for _, v := range vs {
		sources = append(sources, v.Source)
	}
	assert.Contains(t, sources, analyzer.SourcePattern)
	assert.Contains(t, sources, analyzer.SourceWalker)
	assert.Contains(t, sources, analyzer.SourceDataflow)
}

func TestHarnessCachesRepeatedAnalysis(t *testing.T) {
	src := `x = 1;`
	unit := ast.NewSourceUnit("x.sl", src)
	mod, err := parser.Parse(unit)
	require.NoError(t, err)

	resultCache := cache.New[[]analyzer.Violation](16)
	h := analyzer.New(
		patterns.NewDetector(),
		func(file string) analyzer.StructuralWalker { return walker.New(file) },
		func(file string) analyzer.TaintTracker { return dataflow.New(file) },
		resultCache,
	)

	_, err = h.Analyze(context.Background(), unit, mod)
	require.NoError(t, err)
	assert.Equal(t, 1, resultCache.Len())

	_, err = h.Analyze(context.Background(), unit, mod)
	require.NoError(t, err)
	assert.Equal(t, 1, resultCache.Len())
}

func TestHarnessSequentialFallbackMergesAllThreeAnalyses(t *testing.T) {
	src := `
x = read_input();
exec(compile(x));
break;
`
	unit := ast.NewSourceUnit("x.sl", src)
	mod, err := parser.Parse(unit)
	require.NoError(t, err)

	h := analyzer.NewSequential(
		patterns.NewDetector(),
		func(file string) analyzer.StructuralWalker { return walker.New(file) },
		func(file string) analyzer.TaintTracker { return dataflow.New(file) },
		cache.New[[]analyzer.Violation](16),
	)

	vs, err := h.Analyze(context.Background(), unit, mod)
	require.NoError(t, err)

	var sources []analyzer.Source
	for _, v := range vs {
		sources = append(sources, v.Source)
	}
	assert.Contains(t, sources, analyzer.SourcePattern)
	assert.Contains(t, sources, analyzer.SourceWalker)
	assert.Contains(t, sources, analyzer.SourceDataflow)
}

func TestHarnessSequentialAndParallelAgree(t *testing.T) {
	src := `
x = read_input();
y = sanitize(x);
exec(y);
`
	unit := ast.NewSourceUnit("x.sl", src)
	mod, err := parser.Parse(unit)
	require.NoError(t, err)

	parallel := analyzer.New(
		patterns.NewDetector(),
		func(file string) analyzer.StructuralWalker { return walker.New(file) },
		func(file string) analyzer.TaintTracker { return dataflow.New(file) },
		cache.New[[]analyzer.Violation](16),
	)
	sequential := analyzer.NewSequential(
		patterns.NewDetector(),
		func(file string) analyzer.StructuralWalker { return walker.New(file) },
		func(file string) analyzer.TaintTracker { return dataflow.New(file) },
		cache.New[[]analyzer.Violation](16),
	)

	pResult, err := parallel.Analyze(context.Background(), unit, mod)
	require.NoError(t, err)
	sResult, err := sequential.Analyze(context.Background(), unit, mod)
	require.NoError(t, err)

	assert.Equal(t, pResult, sResult)
}

func TestSortViolationsDeterministic(t *testing.T) {
	vs := []analyzer.Violation{
		{File: "b.sl", Line: 1, Column: 1, Rule: "z"},
		{File: "a.sl", Line: 5, Column: 1, Rule: "a"},
		{File: "a.sl", Line: 1, Column: 2, Rule: "a"},
		{File: "a.sl", Line: 1, Column: 1, Rule: "b"},
	}
	analyzer.SortViolations(vs)
	require.Len(t, vs, 4)
	assert.Equal(t, "a.sl", vs[0].File)
	assert.Equal(t, 1, vs[0].Line)
	assert.Equal(t, 1, vs[0].Column)
	assert.Equal(t, "b", vs[0].Rule)
}
