package parser

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vaultlang/internal/ast"
)

// astStructurallyEqual reports whether a and b have the same node kinds,
// scalar field values, and child shapes, ignoring Position (and anything
// else carried only for diagnostics). It is the equivalence relation the
// round-trip property is checked against.
func astStructurallyEqual(a, b ast.Node) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if a.NodeKind() != b.NodeKind() {
		return false
	}
	if !scalarFieldsEqual(a, b) {
		return false
	}
	ca, cb := ast.Children(a), ast.Children(b)
	if len(ca) != len(cb) {
		return false
	}
	for i := range ca {
		if !astStructurallyEqual(ca[i], cb[i]) {
			return false
		}
	}
	return true
}

// scalarFieldsEqual compares the fields Children doesn't already walk into:
// names, operators, literal values, and flags.
func scalarFieldsEqual(a, b ast.Node) bool {
	switch x := a.(type) {
	case *ast.FunctionDef:
		y := b.(*ast.FunctionDef)
		return x.Name == y.Name && paramNamesEqual(x.Params, y.Params)
	case *ast.Parameter:
		y := b.(*ast.Parameter)
		return x.Name == y.Name
	case *ast.For:
		y := b.(*ast.For)
		return x.Var == y.Var
	case *ast.Except:
		y := b.(*ast.Except)
		return x.Binding == y.Binding
	case *ast.Import:
		y := b.(*ast.Import)
		return x.Name == y.Name && x.Alias == y.Alias
	case *ast.Nonlocal:
		y := b.(*ast.Nonlocal)
		return x.Name == y.Name
	case *ast.Capability:
		y := b.(*ast.Capability)
		if x.Name != y.Name || len(x.Rules) != len(y.Rules) {
			return false
		}
		for i := range x.Rules {
			if x.Rules[i] != y.Rules[i] {
				return false
			}
		}
		return true
	case *ast.Assign:
		y := b.(*ast.Assign)
		return x.TargetKind == y.TargetKind
	case *ast.DestructureAssign:
		y := b.(*ast.DestructureAssign)
		if x.IsObject != y.IsObject || len(x.Names) != len(y.Names) {
			return false
		}
		for i := range x.Names {
			if x.Names[i] != y.Names[i] {
				return false
			}
		}
		return true
	case *ast.LiteralNumber:
		y := b.(*ast.LiteralNumber)
		return x.Value == y.Value
	case *ast.LiteralString:
		y := b.(*ast.LiteralString)
		return x.Value == y.Value
	case *ast.LiteralBool:
		y := b.(*ast.LiteralBool)
		return x.Value == y.Value
	case *ast.Identifier:
		y := b.(*ast.Identifier)
		return x.Name == y.Name
	case *ast.Member:
		y := b.(*ast.Member)
		return x.Name == y.Name
	case *ast.Object:
		y := b.(*ast.Object)
		if len(x.Properties) != len(y.Properties) {
			return false
		}
		for i := range x.Properties {
			if x.Properties[i].Key != y.Properties[i].Key {
				return false
			}
		}
		return true
	case *ast.Unary:
		y := b.(*ast.Unary)
		return x.Op == y.Op
	case *ast.Binary:
		y := b.(*ast.Binary)
		return x.Op == y.Op
	case *ast.Logical:
		y := b.(*ast.Logical)
		return x.Op == y.Op
	case *ast.Compare:
		y := b.(*ast.Compare)
		return x.Op == y.Op
	case *ast.Arrow:
		y := b.(*ast.Arrow)
		return x.HasBlockBody() == y.HasBlockBody() && paramNamesEqual(x.Params, y.Params)
	default:
		return true
	}
}

func paramNamesEqual(a, b []*ast.Parameter) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].Name != b[i].Name {
			return false
		}
	}
	return true
}

func countNodes(n ast.Node) int {
	total := 0
	ast.Walk(n, func(ast.Node) { total++ })
	return total
}

func TestRoundTripParseFormatReparse(t *testing.T) {
	sources := []string{
		`x = 1 + 2 * 3;`,
		`function add(a, b = 1) { return a + b; }`,
		`
if (x > 0) {
  y = "pos";
} elif (x < 0) {
  y = "neg";
} else {
  y = "zero";
}
`,
		`
for (item in items) {
  if (item == null) { continue; }
  process(item);
}
`,
		`
while (running) {
  x = x - 1;
  if (x == 0) { break; }
}
`,
		`
try {
  risky();
} except (e) {
  handle(e);
} finally {
  cleanup();
}
`,
		`
capability net {
  resource "example.com";
  allow fetch "example.com/*";
}
`,
		`import fs as filesystem;`,
		`[a, b] = pair();`,
		`{a, b} = record();`,
		`
obj = {a: 1, b: [1, 2, 3], c: "text"};
x = obj.a;
y = obj.b[0];
z = obj.b[0:2];
f = (a, b) => a + b;
g = a => a * 2;
h = () => { return 1; };
w = cond ? 1 : 2;
nonlocal x;
throw "boom";
`,
	}

	for i, src := range sources {
		t.Run(fmt.Sprintf("case%d", i), func(t *testing.T) {
			mod, err := Parse(ast.NewSourceUnit("roundtrip.sl", src))
			require.NoError(t, err)

			formatted := Format(mod)
			reparsed, err := Parse(ast.NewSourceUnit("roundtrip.sl", formatted))
			require.NoError(t, err, "formatted output must reparse cleanly:\n%s", formatted)

			require.Equal(t, countNodes(mod), countNodes(reparsed), "node count must match after round trip")
			assert.True(t, astStructurallyEqual(mod, reparsed), "reparsed AST must be structurally equivalent to the original:\n%s", formatted)
		})
	}
}
