package walker

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vaultlang/internal/analyzer"
	"vaultlang/internal/ast"
	"vaultlang/internal/parser"
)

func parseOrFail(t *testing.T, src string) *ast.Module {
	t.Helper()
	mod, err := parser.Parse(ast.NewSourceUnit("x.sl", src))
	require.NoError(t, err)
	return mod
}

func ruleNames(vs []analyzer.Violation) []string {
	out := make([]string, len(vs))
	for i, v := range vs {
		out[i] = v.Rule
	}
	return out
}

func TestBreakOutsideLoopFlagged(t *testing.T) {
	mod := parseOrFail(t, `break;`)
	vs := New("x.sl").Analyze(mod)
	require.NotEmpty(t, vs)
	assert.Contains(t, ruleNames(vs), "break-outside-loop")
}

func TestBreakInsideLoopOK(t *testing.T) {
	mod := parseOrFail(t, `while (true) { break; }`)
	vs := New("x.sl").Analyze(mod)
	assert.NotContains(t, ruleNames(vs), "break-outside-loop")
}

func TestReturnOutsideFunctionFlagged(t *testing.T) {
	mod := parseOrFail(t, `return 1;`)
	vs := New("x.sl").Analyze(mod)
	assert.Contains(t, ruleNames(vs), "return-outside-function")
}

func TestReturnInsideFunctionOK(t *testing.T) {
	mod := parseOrFail(t, `function f() { return 1; }`)
	vs := New("x.sl").Analyze(mod)
	assert.NotContains(t, ruleNames(vs), "return-outside-function")
}

func TestNonlocalWithoutEnclosingBindingFlagged(t *testing.T) {
	mod := parseOrFail(t, `
function f() {
  function g() {
    nonlocal counter;
  }
}
`)
	vs := New("x.sl").Analyze(mod)
	assert.Contains(t, ruleNames(vs), "nonlocal-unbound")
}

func TestNonlocalWithEnclosingBindingOK(t *testing.T) {
	mod := parseOrFail(t, `
function f() {
  counter = 0;
  function g() {
    nonlocal counter;
  }
}
`)
	vs := New("x.sl").Analyze(mod)
	assert.NotContains(t, ruleNames(vs), "nonlocal-unbound")
}

func TestDestructureArityMismatchFlagged(t *testing.T) {
	mod := parseOrFail(t, `[a, b, c] = [1, 2];`)
	vs := New("x.sl").Analyze(mod)
	assert.Contains(t, ruleNames(vs), "destructure-arity-mismatch")
}

func TestDestructureArityMatchOK(t *testing.T) {
	mod := parseOrFail(t, `[a, b] = [1, 2];`)
	vs := New("x.sl").Analyze(mod)
	assert.NotContains(t, ruleNames(vs), "destructure-arity-mismatch")
}

func TestUnresolvedIdentifierFlagged(t *testing.T) {
	mod := parseOrFail(t, `y = x + 1;`)
	vs := New("x.sl").Analyze(mod)
	assert.Contains(t, ruleNames(vs), "unresolved-identifier")
}

func TestForLoopVariableResolves(t *testing.T) {
	mod := parseOrFail(t, `
items = [1, 2, 3];
for (item in items) {
  y = item;
}
`)
	vs := New("x.sl").Analyze(mod)
	assert.NotContains(t, ruleNames(vs), "unresolved-identifier")
}
