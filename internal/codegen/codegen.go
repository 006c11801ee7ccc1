// Package codegen lowers a vaultlang AST into host target language (HTL)
// text: every Member read is gated through the Safe-Attribute Registry,
// every host facility reference is checked against a whitelist, and
// control flow - including try/except/finally - is emitted by walking the
// explicit Block structure rather than splaying statements by count, so
// `finally` is reachable from every exit path out of its paired `try`,
// including an early `return`.
//
// An AST-in/text-out pass pipeline (parse -> transform -> repair ->
// rectify -> serialize).
package codegen

import (
	"fmt"
	"strconv"
	"strings"

	"vaultlang/internal/ast"
	"vaultlang/internal/codegen/sourcemap"
	"vaultlang/internal/obslog"
	"vaultlang/internal/safeattr"
	"vaultlang/internal/verrors"
)

// Options configures a Generator.
type Options struct {
	Registry  *safeattr.Registry
	Whitelist *HostWhitelist
	StrictMode bool // recorded only; Generate stops at the first CodegenError whether or not it is set
}

// Result is the generator's output: the emitted HTL text plus its source
// map.
type Result struct {
	Code      string
	SourceMap *sourcemap.Map
}

// Generator lowers one parsed Module to HTL text.
type Generator struct {
	opts Options
	buf  strings.Builder
	sm   *sourcemap.Builder
	line int // current output line, 1-indexed, tracked as we write
	err  error
}

// New constructs a Generator. A nil Registry/Whitelist falls back to the
// package defaults (safeattr.LoadDefault and the built-in whitelist).
func New(opts Options) *Generator {
	if opts.Registry == nil {
		opts.Registry = safeattr.LoadDefault()
	}
	if opts.Whitelist == nil {
		opts.Whitelist = DefaultWhitelist()
	}
	return &Generator{opts: opts, line: 1}
}

// Generate lowers mod to HTL text and its source map. sourceName is the
// Source Unit's name, recorded in the source map's sources list.
func (g *Generator) Generate(sourceName string, mod *ast.Module) (*Result, error) {
	g.sm = sourcemap.NewBuilder(sourceName)
	g.emitSafeAttrRegistration()
	for _, stmt := range mod.Body {
		g.emitStmt(stmt, 0)
		if g.err != nil {
			return nil, g.err
		}
	}
	obslog.Get(obslog.CategoryCodegen).Debug("generated %d lines of HTL for %s", g.line, sourceName)
	return &Result{Code: g.buf.String(), SourceMap: g.sm.Build()}, nil
}

func (g *Generator) fail(err error) {
	if g.err == nil {
		g.err = err
	}
}

func (g *Generator) indent(depth int) string { return strings.Repeat("  ", depth) }

func (g *Generator) write(s string) {
	g.buf.WriteString(s)
	g.line += strings.Count(s, "\n")
}

func (g *Generator) writeLine(depth int, s string) {
	g.write(g.indent(depth))
	g.write(s)
	g.write("\n")
}

func (g *Generator) mark(pos ast.Position, kind sourcemap.MappingKind) {
	g.sm.Record(g.line, pos.Line, pos.Column, kind)
}

func (g *Generator) emitStmt(n ast.Node, depth int) {
	if g.err != nil {
		return
	}
	switch stmt := n.(type) {
	case *ast.FunctionDef:
		g.mark(stmt.Pos(), sourcemap.MappingFunction)
		var params []string
		for _, p := range stmt.Params {
			params = append(params, g.paramText(p))
		}
		fnStart := g.line
		g.writeLine(depth, fmt.Sprintf("function %s(%s) {", stmt.Name, strings.Join(params, ", ")))
		g.emitBlockBody(stmt.Body, depth+1)
		g.writeLine(depth, "}")
		g.sm.RecordFunctionRange(stmt.Name, fnStart, g.line)
	case *ast.If:
		g.mark(stmt.Pos(), sourcemap.MappingStatement)
		g.writeLine(depth, fmt.Sprintf("if (%s) {", g.emitExpr(stmt.Test)))
		g.emitBlockBody(stmt.Body, depth+1)
		for _, elif := range stmt.Elifs {
			g.writeLine(depth, fmt.Sprintf("} else if (%s) {", g.emitExpr(elif.Test)))
			g.emitBlockBody(elif.Body, depth+1)
		}
		if stmt.Else != nil {
			g.writeLine(depth, "} else {")
			g.emitBlockBody(stmt.Else.Body, depth+1)
		}
		g.writeLine(depth, "}")
	case *ast.While:
		g.mark(stmt.Pos(), sourcemap.MappingStatement)
		g.writeLine(depth, fmt.Sprintf("while (%s) {", g.emitExpr(stmt.Test)))
		g.emitBlockBody(stmt.Body, depth+1)
		g.writeLine(depth, "}")
	case *ast.For:
		g.mark(stmt.Pos(), sourcemap.MappingStatement)
		g.writeLine(depth, fmt.Sprintf("for (const %s of %s) {", stmt.Var, g.emitExpr(stmt.Iterable)))
		g.emitBlockBody(stmt.Body, depth+1)
		g.writeLine(depth, "}")
	case *ast.Break:
		g.mark(stmt.Pos(), sourcemap.MappingStatement)
		g.writeLine(depth, "break;")
	case *ast.Continue:
		g.mark(stmt.Pos(), sourcemap.MappingStatement)
		g.writeLine(depth, "continue;")
	case *ast.Return:
		g.mark(stmt.Pos(), sourcemap.MappingStatement)
		if stmt.Value == nil {
			g.writeLine(depth, "return;")
		} else {
			g.writeLine(depth, fmt.Sprintf("return %s;", g.emitExpr(stmt.Value)))
		}
	case *ast.Try:
		g.emitTry(stmt, depth)
	case *ast.Throw:
		g.mark(stmt.Pos(), sourcemap.MappingStatement)
		g.writeLine(depth, fmt.Sprintf("throw %s;", g.emitExpr(stmt.Value)))
	case *ast.Import:
		g.mark(stmt.Pos(), sourcemap.MappingStatement)
		name := stmt.Name
		if stmt.Alias != "" {
			g.writeLine(depth, fmt.Sprintf("const %s = require(%q);", stmt.Alias, name))
		} else {
			g.writeLine(depth, fmt.Sprintf("const %s = require(%q);", name, name))
		}
	case *ast.Assign:
		g.mark(stmt.Pos(), sourcemap.MappingStatement)
		g.writeLine(depth, fmt.Sprintf("%s = %s;", g.emitAssignTarget(stmt), g.emitExpr(stmt.Value)))
	case *ast.DestructureAssign:
		g.mark(stmt.Pos(), sourcemap.MappingStatement)
		var names string
		if stmt.IsObject {
			names = "{ " + strings.Join(stmt.Names, ", ") + " }"
		} else {
			names = "[" + strings.Join(stmt.Names, ", ") + "]"
		}
		g.writeLine(depth, fmt.Sprintf("%s = %s;", names, g.emitExpr(stmt.Value)))
	case *ast.ExprStmt:
		g.mark(stmt.Pos(), sourcemap.MappingStatement)
		g.writeLine(depth, g.emitExpr(stmt.Expr)+";")
	case *ast.Nonlocal:
		// Nonlocal has no host-language emission of its own: it only
		// affects how the enclosing closure captures the named variable,
		// which host closures do implicitly by reference.
	case *ast.Capability:
		g.emitCapability(stmt, depth)
	default:
		g.fail(&verrors.CodegenError{Message: fmt.Sprintf("unsupported statement node %T", n), Position: posOf(n)})
	}
}

// emitTry lowers try/except/finally by walking the explicit Block
// structure of each clause (never by splitting statements on a count),
// and emits the Finally block only inside the host's native try/finally
// construct - that construct already guarantees `finally` runs on every
// exit including `return`, so no copy of its statements is emitted
// after the try.
func (g *Generator) emitTry(stmt *ast.Try, depth int) {
	g.mark(stmt.Pos(), sourcemap.MappingStatement)
	g.writeLine(depth, "try {")
	g.emitBlockBody(stmt.Body, depth+1)
	if stmt.Except != nil {
		binding := stmt.Except.Binding
		if binding == "" {
			binding = "_err"
		}
		g.writeLine(depth, fmt.Sprintf("} catch (%s) {", binding))
		g.emitBlockBody(stmt.Except.Body, depth+1)
	}
	if stmt.Finally != nil {
		g.writeLine(depth, "} finally {")
		g.emitBlockBody(stmt.Finally.Body, depth+1)
	}
	g.writeLine(depth, "}")
}

// emitCapability lowers a Capability block to a module-load-time
// registration call: the block itself produces no runtime control flow,
// only a side-effecting registration statement.
func (g *Generator) emitCapability(stmt *ast.Capability, depth int) {
	g.mark(stmt.Pos(), sourcemap.MappingStatement)
	var rules []string
	for _, r := range stmt.Rules {
		if r.IsResource {
			rules = append(rules, fmt.Sprintf("{kind: %q, pattern: %q}", "resource", r.Pattern))
		} else {
			rules = append(rules, fmt.Sprintf("{kind: %q, op: %q, pattern: %q}", "allow", r.Operation, r.Pattern))
		}
	}
	g.writeLine(depth, fmt.Sprintf("__vaultlang_register_capability(%q, [%s]);", stmt.Name, strings.Join(rules, ", ")))
}

// emitSafeAttrRegistration emits one module-load-time call that installs
// the whole Safe-Attribute Registry into the HTL runtime, so every
// `safe_attr_access` call emitted by emitMember has a table to consult.
// This is what makes the registry a runtime-consulted, process-wide table
// rather than a transpile-time filter: the Go-side Registry only decides
// what goes into this one call.
func (g *Generator) emitSafeAttrRegistration() {
	var entries []string
	for _, e := range g.opts.Registry.Entries() {
		types := make([]string, len(e.Types))
		for i, t := range e.Types {
			types[i] = strconv.Quote(t)
		}
		caps := make([]string, len(e.CapabilitiesRequired))
		for i, c := range e.CapabilitiesRequired {
			caps[i] = strconv.Quote(c)
		}
		entries = append(entries, fmt.Sprintf(
			"{name: %s, types: [%s], capabilities: [%s]}",
			strconv.Quote(e.Name), strings.Join(types, ", "), strings.Join(caps, ", "),
		))
	}
	g.writeLine(0, fmt.Sprintf("__vaultlang_register_safe_attrs([%s]);", strings.Join(entries, ", ")))
}

func (g *Generator) emitBlockBody(b *ast.Block, depth int) {
	if b == nil {
		return
	}
	for _, stmt := range b.Statements {
		g.emitStmt(stmt, depth)
	}
}

func (g *Generator) paramText(p *ast.Parameter) string {
	if p.Default == nil {
		return p.Name
	}
	return fmt.Sprintf("%s = %s", p.Name, g.emitExpr(p.Default))
}

// emitAssignTarget lowers an assignment target. Member targets deliberately
// bypass emitMember's Safe-Attribute Registry gate: the registry governs
// what generated code may *read* off a value, not what a script may assign
// to one of its own variables, so a write to e.g. `obj.__proto__ = 1` is
// lowered as plain field access rather than rejected - the gate is a
// read-side control.
func (g *Generator) emitAssignTarget(stmt *ast.Assign) string {
	switch stmt.TargetKind {
	case ast.TargetIdentifier:
		return g.emitExpr(stmt.Target)
	case ast.TargetMember:
		m := stmt.Target.(*ast.Member)
		return fmt.Sprintf("%s.%s", g.emitExpr(m.Object), m.Name)
	case ast.TargetIndex:
		return g.emitExpr(stmt.Target)
	default:
		g.fail(&verrors.CodegenError{Message: "unknown assignment target kind", Position: stmt.Pos()})
		return ""
	}
}

func posOf(n ast.Node) verrors.Position {
	p := n.Pos()
	return verrors.Position{Line: p.Line, Column: p.Column, Offset: p.Offset, File: p.File}
}
