package parser

import (
	"strconv"
	"strings"

	"vaultlang/internal/ast"
)

// Format renders mod back to SL source text. It exists to drive the
// round-trip property: parsing Format's output must reproduce a
// structurally equivalent AST to mod, modulo source positions. Format does
// not attempt to reproduce the original formatting (comment placement,
// blank lines, numeric literal spelling) - only the structural content a
// reparse can recover.
func Format(mod *ast.Module) string {
	f := &formatter{}
	for _, stmt := range mod.Body {
		f.writeStmt(0, stmt)
	}
	return f.sb.String()
}

type formatter struct {
	sb strings.Builder
}

func (f *formatter) indent(depth int) {
	f.sb.WriteString(strings.Repeat("  ", depth))
}

func (f *formatter) line(depth int, s string) {
	f.indent(depth)
	f.sb.WriteString(s)
	f.sb.WriteByte('\n')
}

func (f *formatter) writeBlock(depth int, b *ast.Block) {
	f.sb.WriteString("{\n")
	for _, stmt := range b.Statements {
		f.writeStmt(depth+1, stmt)
	}
	f.indent(depth)
	f.sb.WriteString("}")
}

func (f *formatter) writeStmt(depth int, n ast.Node) {
	switch t := n.(type) {
	case *ast.FunctionDef:
		f.indent(depth)
		f.sb.WriteString("function ")
		f.sb.WriteString(t.Name)
		f.sb.WriteString(paramList(t.Params))
		f.sb.WriteString(" ")
		f.writeBlock(depth, t.Body)
		f.sb.WriteString("\n")
	case *ast.If:
		f.indent(depth)
		f.sb.WriteString("if (")
		f.sb.WriteString(f.expr(t.Test))
		f.sb.WriteString(") ")
		f.writeBlock(depth, t.Body)
		for _, elif := range t.Elifs {
			f.sb.WriteString(" elif (")
			f.sb.WriteString(f.expr(elif.Test))
			f.sb.WriteString(") ")
			f.writeBlock(depth, elif.Body)
		}
		if t.Else != nil {
			f.sb.WriteString(" else ")
			f.writeBlock(depth, t.Else.Body)
		}
		f.sb.WriteString("\n")
	case *ast.While:
		f.indent(depth)
		f.sb.WriteString("while (")
		f.sb.WriteString(f.expr(t.Test))
		f.sb.WriteString(") ")
		f.writeBlock(depth, t.Body)
		f.sb.WriteString("\n")
	case *ast.For:
		f.indent(depth)
		f.sb.WriteString("for (")
		f.sb.WriteString(t.Var)
		f.sb.WriteString(" in ")
		f.sb.WriteString(f.expr(t.Iterable))
		f.sb.WriteString(") ")
		f.writeBlock(depth, t.Body)
		f.sb.WriteString("\n")
	case *ast.Break:
		f.line(depth, "break;")
	case *ast.Continue:
		f.line(depth, "continue;")
	case *ast.Return:
		if t.Value != nil {
			f.line(depth, "return "+f.expr(t.Value)+";")
		} else {
			f.line(depth, "return;")
		}
	case *ast.Try:
		f.indent(depth)
		f.sb.WriteString("try ")
		f.writeBlock(depth, t.Body)
		if t.Except != nil {
			f.sb.WriteString(" except")
			if t.Except.Binding != "" {
				f.sb.WriteString("(" + t.Except.Binding + ")")
			}
			f.sb.WriteString(" ")
			f.writeBlock(depth, t.Except.Body)
		}
		if t.Finally != nil {
			f.sb.WriteString(" finally ")
			f.writeBlock(depth, t.Finally.Body)
		}
		f.sb.WriteString("\n")
	case *ast.Throw:
		f.line(depth, "throw "+f.expr(t.Value)+";")
	case *ast.Import:
		if t.Alias != "" {
			f.line(depth, "import "+t.Name+" as "+t.Alias+";")
		} else {
			f.line(depth, "import "+t.Name+";")
		}
	case *ast.Nonlocal:
		f.line(depth, "nonlocal "+t.Name+";")
	case *ast.Capability:
		f.indent(depth)
		f.sb.WriteString("capability " + t.Name + " {\n")
		for _, r := range t.Rules {
			f.indent(depth + 1)
			if r.IsResource {
				f.sb.WriteString("resource " + strconv.Quote(r.Pattern) + ";\n")
			} else {
				f.sb.WriteString("allow " + r.Operation + " " + strconv.Quote(r.Pattern) + ";\n")
			}
		}
		f.indent(depth)
		f.sb.WriteString("}\n")
	case *ast.Assign:
		f.line(depth, f.expr(t.Target)+" = "+f.expr(t.Value)+";")
	case *ast.DestructureAssign:
		open, close := "[", "]"
		if t.IsObject {
			open, close = "{", "}"
		}
		f.line(depth, open+strings.Join(t.Names, ", ")+close+" = "+f.expr(t.Value)+";")
	case *ast.ExprStmt:
		f.line(depth, f.expr(t.Expr)+";")
	case *ast.Block:
		f.indent(depth)
		f.writeBlock(depth, t)
		f.sb.WriteString("\n")
	default:
		// Unreachable for a well-formed Module: every statement kind the
		// parser produces is handled above.
	}
}

func paramList(params []*ast.Parameter) string {
	parts := make([]string, len(params))
	for i, p := range params {
		if p.Default != nil {
			parts[i] = p.Name + " = " + (&formatter{}).expr(p.Default)
		} else {
			parts[i] = p.Name
		}
	}
	return "(" + strings.Join(parts, ", ") + ")"
}

func (f *formatter) expr(n ast.Node) string {
	switch t := n.(type) {
	case *ast.LiteralNumber:
		return strconv.FormatFloat(t.Value, 'f', -1, 64)
	case *ast.LiteralString:
		return strconv.Quote(t.Value)
	case *ast.LiteralBool:
		if t.Value {
			return "true"
		}
		return "false"
	case *ast.LiteralNull:
		return "null"
	case *ast.Identifier:
		return t.Name
	case *ast.Array:
		parts := make([]string, len(t.Elements))
		for i, e := range t.Elements {
			parts[i] = f.expr(e)
		}
		return "[" + strings.Join(parts, ", ") + "]"
	case *ast.Object:
		parts := make([]string, len(t.Properties))
		for i, p := range t.Properties {
			parts[i] = identOrQuoted(p.Key) + ": " + f.expr(p.Value)
		}
		return "{" + strings.Join(parts, ", ") + "}"
	case *ast.Member:
		return f.expr(t.Object) + "." + t.Name
	case *ast.Index:
		return f.expr(t.Object) + "[" + f.expr(t.Key) + "]"
	case *ast.Slice:
		var sb strings.Builder
		sb.WriteString(f.expr(t.Object))
		sb.WriteByte('[')
		if t.Start != nil {
			sb.WriteString(f.expr(t.Start))
		}
		sb.WriteByte(':')
		if t.Stop != nil {
			sb.WriteString(f.expr(t.Stop))
		}
		if t.Step != nil {
			sb.WriteByte(':')
			sb.WriteString(f.expr(t.Step))
		}
		sb.WriteByte(']')
		return sb.String()
	case *ast.Call:
		args := make([]string, len(t.Args))
		for i, a := range t.Args {
			args[i] = f.expr(a)
		}
		return f.expr(t.Callee) + "(" + strings.Join(args, ", ") + ")"
	case *ast.Unary:
		op := "-"
		if t.Op == ast.UnaryNot {
			op = "!"
		}
		return op + "(" + f.expr(t.Operand) + ")"
	case *ast.Binary:
		return "(" + f.expr(t.Left) + " " + binaryOpSym(t.Op) + " " + f.expr(t.Right) + ")"
	case *ast.Logical:
		sym := "&&"
		if t.Op == ast.LogicalOr {
			sym = "||"
		}
		return "(" + f.expr(t.Left) + " " + sym + " " + f.expr(t.Right) + ")"
	case *ast.Compare:
		return "(" + f.expr(t.Left) + " " + compareOpSym(t.Op) + " " + f.expr(t.Right) + ")"
	case *ast.Ternary:
		return "(" + f.expr(t.Test) + " ? " + f.expr(t.Then) + " : " + f.expr(t.Else) + ")"
	case *ast.Arrow:
		body := ""
		if t.HasBlockBody() {
			inner := &formatter{}
			inner.writeBlock(0, t.BlockBody)
			body = inner.sb.String()
		} else {
			body = f.expr(t.ExprBody)
		}
		return paramList(t.Params) + " => " + body
	default:
		return ""
	}
}

func identOrQuoted(key string) string {
	if key == "" {
		return strconv.Quote(key)
	}
	for i, r := range key {
		if r == '_' || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') {
			continue
		}
		if i > 0 && r >= '0' && r <= '9' {
			continue
		}
		return strconv.Quote(key)
	}
	return key
}

func binaryOpSym(op ast.BinaryOp) string {
	switch op {
	case ast.BinaryAdd:
		return "+"
	case ast.BinarySub:
		return "-"
	case ast.BinaryMul:
		return "*"
	case ast.BinaryDiv:
		return "/"
	case ast.BinaryFloorDiv:
		return "//"
	case ast.BinaryMod:
		return "%"
	default:
		return "?"
	}
}

func compareOpSym(op ast.CompareOp) string {
	switch op {
	case ast.CompareEq:
		return "=="
	case ast.CompareNotEq:
		return "!="
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
