package codegen

import (
	"fmt"
	"strconv"
	"strings"

	"vaultlang/internal/ast"
	"vaultlang/internal/verrors"
)

// emitExpr lowers an expression node to its HTL text form. It never
// returns an error directly - failures are recorded on g.err via g.fail
// and an empty placeholder is returned. Once g.err is set every further
// call returns "" at once, so only the first failure is reported.
func (g *Generator) emitExpr(n ast.Node) string {
	if g.err != nil {
		return ""
	}
	switch e := n.(type) {
	case *ast.LiteralNumber:
		return formatNumber(e.Value)
	case *ast.LiteralString:
		return strconv.Quote(e.Value)
	case *ast.LiteralBool:
		if e.Value {
			return "true"
		}
		return "false"
	case *ast.LiteralNull:
		return "null"
	case *ast.Identifier:
		return e.Name
	case *ast.Member:
		return g.emitMember(e)
	case *ast.Index:
		return fmt.Sprintf("%s[%s]", g.emitExpr(e.Object), g.emitExpr(e.Key))
	case *ast.Slice:
		return g.emitSlice(e)
	case *ast.Call:
		return g.emitCall(e)
	case *ast.Unary:
		return g.emitUnary(e)
	case *ast.Binary:
		if e.Op == ast.BinaryFloorDiv {
			return fmt.Sprintf("__vaultlang_floordiv(%s, %s)", g.emitExpr(e.Left), g.emitExpr(e.Right))
		}
		return fmt.Sprintf("(%s %s %s)", g.emitExpr(e.Left), binaryOpText(e.Op), g.emitExpr(e.Right))
	case *ast.Logical:
		op := "&&"
		if e.Op == ast.LogicalOr {
			op = "||"
		}
		return fmt.Sprintf("(%s %s %s)", g.emitExpr(e.Left), op, g.emitExpr(e.Right))
	case *ast.Compare:
		return fmt.Sprintf("(%s %s %s)", g.emitExpr(e.Left), compareOpText(e.Op), g.emitExpr(e.Right))
	case *ast.Ternary:
		return fmt.Sprintf("(%s ? %s : %s)", g.emitExpr(e.Test), g.emitExpr(e.Then), g.emitExpr(e.Else))
	case *ast.Array:
		var parts []string
		for _, el := range e.Elements {
			parts = append(parts, g.emitExpr(el))
		}
		return "[" + strings.Join(parts, ", ") + "]"
	case *ast.Object:
		var parts []string
		for _, prop := range e.Properties {
			parts = append(parts, fmt.Sprintf("%s: %s", strconv.Quote(prop.Key), g.emitExpr(prop.Value)))
		}
		return "{" + strings.Join(parts, ", ") + "}"
	case *ast.Arrow:
		return g.emitArrow(e)
	default:
		g.fail(&verrors.CodegenError{Message: fmt.Sprintf("unsupported expression node %T", n), Position: posOf(n)})
		return ""
	}
}

// emitMember lowers `obj.name` to a safe_attr_access call: the Safe-Attribute
// Registry is a runtime-consulted, process-wide table (the whole registry is
// serialized into the generated module by Generate, see emitSafeAttrRegistration),
// not a transpile-time filter, so codegen does not evaluate IsSafe itself -
// it only rejects the one class of name the generator denies categorically:
// any attribute matching the host's reflection convention
// (double-underscore-bounded, e.g. `__proto__`) is refused at generation
// time regardless of what the registry would say.
func (g *Generator) emitMember(e *ast.Member) string {
	objText := g.emitExpr(e.Object)
	if isDunderName(e.Name) {
		g.fail(&verrors.CapabilityError{Kind: verrors.CapabilityDisallowedAttribute, Resource: e.Name})
		return ""
	}
	return fmt.Sprintf("safe_attr_access(%s, %s)", objText, strconv.Quote(e.Name))
}

// isDunderName reports whether name follows the host's reflection naming
// convention (leading and trailing double underscore), e.g. `__proto__`.
func isDunderName(name string) bool {
	return len(name) >= 4 && strings.HasPrefix(name, "__") && strings.HasSuffix(name, "__")
}

func (g *Generator) emitSlice(e *ast.Slice) string {
	obj := g.emitExpr(e.Object)
	start := "undefined"
	if e.Start != nil {
		start = g.emitExpr(e.Start)
	}
	stop := "undefined"
	if e.Stop != nil {
		stop = g.emitExpr(e.Stop)
	}
	step := "1"
	if e.Step != nil {
		step = g.emitExpr(e.Step)
	}
	return fmt.Sprintf("__vaultlang_slice(%s, %s, %s, %s)", obj, start, stop, step)
}

// emitCall lowers a call, checking the callee against the host whitelist
// when it resolves to a dotted module-qualified name: codegen only ever
// emits references to whitelisted host facilities.
func (g *Generator) emitCall(e *ast.Call) string {
	name := calleeDottedName(e.Callee)
	if name != "" && g.opts.Whitelist != nil && g.opts.Whitelist.IsModuleQualified(name) && !g.opts.Whitelist.Allows(name) {
		g.fail(&verrors.CodegenError{Message: fmt.Sprintf("host facility %q is not in the whitelist", name), Position: posOf(e)})
		return ""
	}
	var args []string
	for _, a := range e.Args {
		args = append(args, g.emitExpr(a))
	}
	return fmt.Sprintf("%s(%s)", g.emitExpr(e.Callee), strings.Join(args, ", "))
}

func calleeDottedName(n ast.Node) string {
	switch c := n.(type) {
	case *ast.Identifier:
		return c.Name
	case *ast.Member:
		base := calleeDottedName(c.Object)
		if base == "" {
			return ""
		}
		return base + "." + c.Name
	default:
		return ""
	}
}

func (g *Generator) emitUnary(e *ast.Unary) string {
	switch e.Op {
	case ast.UnaryNeg:
		return fmt.Sprintf("(-%s)", g.emitExpr(e.Operand))
	case ast.UnaryNot:
		return fmt.Sprintf("(!%s)", g.emitExpr(e.Operand))
	default:
		return g.emitExpr(e.Operand)
	}
}

// emitArrow lowers an arrow function. A block-body arrow lowers to a full
// host function body; an expression-body arrow lowers to the host's own
// concise arrow form. Both forms are fully supported per the Open
// Question decision recorded in SPEC_FULL.md (arrow functions with block
// bodies are implemented, not rejected).
func (g *Generator) emitArrow(e *ast.Arrow) string {
	var params []string
	for _, p := range e.Params {
		params = append(params, g.paramText(p))
	}
	paramList := "(" + strings.Join(params, ", ") + ")"
	if e.HasBlockBody() {
		var sb strings.Builder
		sb.WriteString(paramList)
		sb.WriteString(" => {\n")
		saved := g.buf
		g.buf = strings.Builder{}
		g.emitBlockBody(e.BlockBody, 1)
		body := g.buf.String()
		g.buf = saved
		sb.WriteString(body)
		sb.WriteString("}")
		return sb.String()
	}
	return fmt.Sprintf("%s => %s", paramList, g.emitExpr(e.ExprBody))
}

func formatNumber(v float64) string {
	if v == float64(int64(v)) {
		return strconv.FormatInt(int64(v), 10)
	}
	return strconv.FormatFloat(v, 'g', -1, 64)
}

func binaryOpText(op ast.BinaryOp) string {
	switch op {
	case ast.BinaryAdd:
		return "+"
	case ast.BinarySub:
		return "-"
	case ast.BinaryMul:
		return "*"
	case ast.BinaryDiv:
		return "/"
	case ast.BinaryMod:
		return "%"
	default:
		return "?"
	}
}

func compareOpText(op ast.CompareOp) string {
	switch op {
	case ast.CompareEq:
		return "==="
	case ast.CompareNotEq:
		return "!=="
	case ast.CompareLt:
		return "<"
	case ast.CompareLte:
		return "<="
	case ast.CompareGt:
		return ">"
	case ast.CompareGte:
		return ">="
	default:
		return "?"
	}
}
