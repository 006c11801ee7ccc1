package codegen

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vaultlang/internal/ast"
	"vaultlang/internal/parser"
)

func generate(t *testing.T, src string) (*Result, error) {
	t.Helper()
	mod, err := parser.Parse(ast.NewSourceUnit("x.sl", src))
	require.NoError(t, err)
	return New(Options{}).Generate("x.sl", mod)
}

func TestGenerateSimpleAssignment(t *testing.T) {
	res, err := generate(t, `x = 1 + 2;`)
	require.NoError(t, err)
	assert.Contains(t, res.Code, "x = (1 + 2);")
}

func TestGenerateFunctionAndSourceMapRange(t *testing.T) {
	res, err := generate(t, `
function add(a, b) {
  return a + b;
}
`)
	require.NoError(t, err)
	assert.Contains(t, res.Code, "function add(a, b) {")
	require.Len(t, res.SourceMap.DebugInfo.FunctionRanges, 1)
	assert.Equal(t, "add", res.SourceMap.DebugInfo.FunctionRanges[0].Name)
}

func TestGenerateTryFinallyRunsOnReturn(t *testing.T) {
	res, err := generate(t, `
function f() {
  try {
    return 1;
  } finally {
    cleanup();
  }
}
`)
	require.NoError(t, err)
	assert.Contains(t, res.Code, "} finally {")
	assert.Contains(t, res.Code, "cleanup();")
}

func TestGenerateSafeAttributeReadLowersToRuntimeGate(t *testing.T) {
	res, err := generate(t, `x = arr.length;`)
	require.NoError(t, err)
	assert.Contains(t, res.Code, `safe_attr_access(arr, "length")`)
}

func TestGenerateCustomFieldReadLowersToRuntimeGate(t *testing.T) {
	// Reading an ordinary object field must compile - the Safe-Attribute
	// Registry is consulted by the generated safe_attr_access call at
	// runtime, not by the generator itself.
	res, err := generate(t, `obj = {a: 1}; x = obj.a;`)
	require.NoError(t, err)
	assert.Contains(t, res.Code, `safe_attr_access(obj, "a")`)
}

func TestGenerateRegistersSafeAttrTableAtModuleTop(t *testing.T) {
	res, err := generate(t, `x = 1;`)
	require.NoError(t, err)
	assert.Contains(t, res.Code, "__vaultlang_register_safe_attrs([")
}

func TestGenerateDunderAttributeReadFails(t *testing.T) {
	_, err := generate(t, `x = obj.__proto__;`)
	assert.Error(t, err)
}

func TestGenerateMemberWriteBypassesGate(t *testing.T) {
	// Member *writes* (assignment targets) bypass the safe-attribute gate
	// entirely per spec - only reads are checked.
	res, err := generate(t, `obj.__proto__ = 1;`)
	require.NoError(t, err)
	assert.Contains(t, res.Code, "obj.__proto__ = 1;")
}

func TestGenerateArrowBlockBody(t *testing.T) {
	res, err := generate(t, `
f = (a, b) => {
  return a + b;
};
`)
	require.NoError(t, err)
	assert.Contains(t, res.Code, "=> {")
}

func TestGenerateFloorDivUsesHelper(t *testing.T) {
	res, err := generate(t, `x = a // b;`)
	require.NoError(t, err)
	assert.Contains(t, res.Code, "__vaultlang_floordiv(a, b)")
}

func TestGenerateCapabilityBlockLowersToRegistration(t *testing.T) {
	res, err := generate(t, `
capability net_access {
  resource "https://api.example.com/**";
  allow read "*";
}
`)
	require.NoError(t, err)
	assert.Contains(t, res.Code, "__vaultlang_register_capability(\"net_access\"")
}

func TestGenerateWhitelistBlocksUnlistedHostFacility(t *testing.T) {
	_, err := generate(t, `x = net.unsafe_raw_socket();`)
	assert.Error(t, err)
}

func TestGenerateWhitelistAllowsListedHostFacility(t *testing.T) {
	res, err := generate(t, `x = net.fetch("https://api.example.com");`)
	require.NoError(t, err)
	assert.Contains(t, res.Code, `safe_attr_access(net, "fetch")(`)
}
