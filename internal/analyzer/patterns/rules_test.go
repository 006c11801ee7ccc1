package patterns

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vaultlang/internal/analyzer"
)

func TestScanFlagsDangerousEval(t *testing.T) {
	d := NewDetector()
	vs := d.Scan("x.sl", `y = eval(userInput);`)
	require.Len(t, vs, 1)
	assert.Equal(t, "dangerous-eval", vs[0].Rule)
	assert.Equal(t, 1, vs[0].Line)
	assert.Equal(t, analyzer.SeverityCritical, vs[0].Severity)
}

func TestScanFlagsDangerousExecAsCritical(t *testing.T) {
	d := NewDetector()
	vs := d.Scan("x.sl", `exec(cmd);`)
	require.Len(t, vs, 1)
	assert.Equal(t, analyzer.SeverityCritical, vs[0].Severity)
}

func TestScanSafeQualifierSuppressesMatch(t *testing.T) {
	d := NewDetector()
	vs := d.Scan("x.sl", `r = regex.compile(pattern);`)
	assert.Empty(t, vs)
}

func TestScanBareCompileStillFlagged(t *testing.T) {
	d := NewDetector()
	vs := d.Scan("x.sl", `r = compile(pattern);`)
	require.Len(t, vs, 1)
	assert.Equal(t, "dangerous-compile", vs[0].Rule)
}

func TestScanMultipleLinesTracksLineNumbers(t *testing.T) {
	d := NewDetector()
	src := "a = 1;\nb = eval(x);\nc = 3;"
	vs := d.Scan("x.sl", src)
	require.Len(t, vs, 1)
	assert.Equal(t, 2, vs[0].Line)
}

func TestRuleSetVersionStable(t *testing.T) {
	d1 := NewDetector()
	d2 := NewDetector()
	assert.Equal(t, d1.RuleSetVersion(), d2.RuleSetVersion())
}
