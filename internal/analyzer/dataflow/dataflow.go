// Package dataflow implements the interprocedural Data-Flow/Taint Tracker: a
// three-point lattice (none, tainted, sanitized), source/sink/sanitizer
// summaries per function, and a join-at-control-flow merge so a variable
// tainted on only one branch of an if/else is conservatively tainted after
// the join.
package dataflow

import (
	"strconv"

	"vaultlang/internal/analyzer"
	"vaultlang/internal/ast"
	"vaultlang/internal/obslog"
)

// Label is a point in the taint lattice: none < tainted < ... sanitized is
// a distinct absorbing state reached only by passing through a sanitizer
// call, and is treated as equal-or-safer than none for sink checks.
type Label int

const (
	LabelNone Label = iota
	LabelTainted
	LabelSanitized
)

// join implements the lattice join used when merging branches: tainted
// dominates both sanitized and none (a sanitized value merged with a
// tainted one from another branch is still treated as tainted overall,
// since at least one path carries untrusted data), and sanitized
// dominates none.
func join(a, b Label) Label {
	if a == LabelTainted || b == LabelTainted {
		return LabelTainted
	}
	if a == LabelSanitized || b == LabelSanitized {
		return LabelSanitized
	}
	return LabelNone
}

// Summary is what the tracker knows about one function: which parameters
// become tainted sources, and whether its return value is tainted given
// its inputs. Used for interprocedural propagation within one Source Unit -
// taint analysis is scoped to a single compilation unit.
type Summary struct {
	Name           string
	ReturnsTainted bool
	TaintedParams  []string
}

// defaultSources are call names whose return value is always tainted.
var defaultSources = map[string]bool{
	"read_input":    true,
	"read_env":      true,
	"read_request":  true,
	"net.fetch":     true,
}

// defaultSanitizers are call names that launder a tainted value back to
// LabelSanitized.
var defaultSanitizers = map[string]bool{
	"sanitize":      true,
	"escape_html":   true,
	"validate":      true,
}

// defaultSinks are call names where a tainted argument is a Violation.
var defaultSinks = map[string]bool{
	"exec":       true,
	"eval":       true,
	"write_file": true,
	"query":      true,
}

// Tracker runs the taint analysis over one parsed Module.
type Tracker struct {
	file       string
	summaries  map[string]*Summary
	violations []analyzer.Violation

	extraSources    map[string]bool
	extraSanitizers map[string]bool
	extraSinks      map[string]bool
}

// New returns a Tracker for the given Source Unit name, using only the
// built-in source/sink/sanitizer tables.
func New(file string) *Tracker {
	return &Tracker{file: file, summaries: make(map[string]*Summary)}
}

// StdlibTaintProvider supplies the qualified source/sink/sanitizer names
// contributed by registered stdlib modules - any sink declared by a stdlib
// module. internal/stdlib.Registry satisfies this.
type StdlibTaintProvider interface {
	AllSources() []string
	AllSinks() []string
	AllSanitizers() []string
}

// NewWithStdlib returns a Tracker whose source/sink/sanitizer tables are
// the built-ins plus every qualified name the stdlib registry declares, so
// a call like `net.fetch(...)` taints its result the same way the bare
// built-in `read_input` does.
func NewWithStdlib(file string, reg StdlibTaintProvider) *Tracker {
	t := New(file)
	if reg == nil {
		return t
	}
	t.extraSources = toSet(reg.AllSources())
	t.extraSinks = toSet(reg.AllSinks())
	t.extraSanitizers = toSet(reg.AllSanitizers())
	return t
}

func toSet(names []string) map[string]bool {
	out := make(map[string]bool, len(names))
	for _, n := range names {
		out[n] = true
	}
	return out
}

// env maps variable name to its current taint label within one function
// body. A fresh env is created per function (interprocedural summaries
// cross the boundary, but live variable state does not).
type env map[string]Label

func (e env) get(name string) Label { return e[name] }

func (e env) clone() env {
	out := make(env, len(e))
	for k, v := range e {
		out[k] = v
	}
	return out
}

// Analyze walks mod, building per-function summaries first (so calls to a
// function defined later in the Source Unit still resolve), then
// re-walking to flag sink violations using the completed summaries.
func (t *Tracker) Analyze(mod *ast.Module) []analyzer.Violation {
	for _, stmt := range mod.Body {
		if fn, ok := stmt.(*ast.FunctionDef); ok {
			t.buildSummary(fn)
		}
	}
	topEnv := env{}
	for _, stmt := range mod.Body {
		t.walkStmt(stmt, topEnv)
	}
	obslog.Get(obslog.CategoryDataflow).Debug("dataflow analysis of %s found %d violations", t.file, len(t.violations))
	return t.violations
}

func (t *Tracker) buildSummary(fn *ast.FunctionDef) {
	sum := &Summary{Name: fn.Name}
	e := env{}
	for _, p := range fn.Params {
		e[p.Name] = LabelNone
	}
	t.summaries[fn.Name] = sum
	retTaint := t.walkBlockForSummary(fn.Body, e)
	sum.ReturnsTainted = retTaint == LabelTainted
}

// walkBlockForSummary mirrors walkStmt's control-flow handling but only
// tracks the join of all `return` expression labels, used to populate
// function summaries before the main pass.
func (t *Tracker) walkBlockForSummary(b *ast.Block, e env) Label {
	if b == nil {
		return LabelNone
	}
	result := LabelNone
	local := e.clone()
	for _, stmt := range b.Statements {
		switch s := stmt.(type) {
		case *ast.Assign:
			label := t.evalExpr(s.Value, local)
			if id, ok := s.Target.(*ast.Identifier); ok {
				local[id.Name] = label
			}
		case *ast.Return:
			if s.Value != nil {
				result = join(result, t.evalExpr(s.Value, local))
			}
		case *ast.If:
			thenLabel := t.walkBlockForSummary(s.Body, local)
			result = join(result, thenLabel)
			for _, elif := range s.Elifs {
				result = join(result, t.walkBlockForSummary(elif.Body, local))
			}
			if s.Else != nil {
				result = join(result, t.walkBlockForSummary(s.Else.Body, local))
			}
		}
	}
	return result
}

func (t *Tracker) walkStmt(n ast.Node, e env) {
	switch stmt := n.(type) {
	case *ast.FunctionDef:
		fnEnv := env{}
		for _, p := range stmt.Params {
			fnEnv[p.Name] = LabelNone
		}
		t.walkBlock(stmt.Body, fnEnv)
	case *ast.Assign:
		label := t.evalExpr(stmt.Value, e)
		if id, ok := stmt.Target.(*ast.Identifier); ok {
			e[id.Name] = label
		}
	case *ast.ExprStmt:
		t.evalExpr(stmt.Expr, e)
	case *ast.If:
		t.evalExpr(stmt.Test, e)
		thenEnv := e.clone()
		t.walkBlock(stmt.Body, thenEnv)
		branches := []env{thenEnv}
		for _, elif := range stmt.Elifs {
			t.evalExpr(elif.Test, e)
			elifEnv := e.clone()
			t.walkBlock(elif.Body, elifEnv)
			branches = append(branches, elifEnv)
		}
		if stmt.Else != nil {
			elseEnv := e.clone()
			t.walkBlock(stmt.Else.Body, elseEnv)
			branches = append(branches, elseEnv)
		} else {
			branches = append(branches, e.clone())
		}
		mergeBranches(e, branches)
	case *ast.While:
		t.evalExpr(stmt.Test, e)
		t.walkBlock(stmt.Body, e.clone())
	case *ast.For:
		t.evalExpr(stmt.Iterable, e)
		loopEnv := e.clone()
		loopEnv[stmt.Var] = LabelNone
		t.walkBlock(stmt.Body, loopEnv)
	case *ast.Try:
		t.walkBlock(stmt.Body, e.clone())
		if stmt.Except != nil {
			exceptEnv := e.clone()
			if stmt.Except.Binding != "" {
				exceptEnv[stmt.Except.Binding] = LabelTainted
			}
			t.walkBlock(stmt.Except.Body, exceptEnv)
		}
		if stmt.Finally != nil {
			t.walkBlock(stmt.Finally.Body, e.clone())
		}
	case *ast.Throw:
		t.evalExpr(stmt.Value, e)
	case *ast.Return:
		if stmt.Value != nil {
			t.evalExpr(stmt.Value, e)
		}
	case *ast.DestructureAssign:
		label := t.evalExpr(stmt.Value, e)
		for _, name := range stmt.Names {
			e[name] = label
		}
	}
}

func (t *Tracker) walkBlock(b *ast.Block, e env) {
	if b == nil {
		return
	}
	for _, stmt := range b.Statements {
		t.walkStmt(stmt, e)
	}
}

// mergeBranches joins every branch's final label for each variable back
// into base, implementing the control-flow join: a variable tainted on
// only one branch is conservatively tainted after the join.
func mergeBranches(base env, branches []env) {
	seen := make(map[string]bool)
	for _, b := range branches {
		for name := range b {
			seen[name] = true
		}
	}
	for name := range seen {
		label := LabelNone
		first := true
		for _, b := range branches {
			l, ok := b[name]
			if !ok {
				l = base[name]
			}
			if first {
				label = l
				first = false
			} else {
				label = join(label, l)
			}
		}
		base[name] = label
	}
}

// calleeName extracts a dotted call name ("regex.compile") or bare name
// ("eval") from a Call's Callee expression, for source/sink/sanitizer
// lookup.
func calleeName(n ast.Node) string {
	switch c := n.(type) {
	case *ast.Identifier:
		return c.Name
	case *ast.Member:
		return calleeName(c.Object) + "." + c.Name
	default:
		return ""
	}
}

// evalExpr computes the taint label of expr under env e, flagging sink
// violations along the way (a tainted argument reaching a sink call).
func (t *Tracker) evalExpr(n ast.Node, e env) Label {
	if n == nil {
		return LabelNone
	}
	switch expr := n.(type) {
	case *ast.Identifier:
		return e.get(expr.Name)
	case *ast.LiteralString, *ast.LiteralNumber, *ast.LiteralBool, *ast.LiteralNull:
		return LabelNone
	case *ast.Member:
		return t.evalExpr(expr.Object, e)
	case *ast.Index:
		return join(t.evalExpr(expr.Object, e), t.evalExpr(expr.Key, e))
	case *ast.Slice:
		return t.evalExpr(expr.Object, e)
	case *ast.Unary:
		return t.evalExpr(expr.Operand, e)
	case *ast.Binary:
		return join(t.evalExpr(expr.Left, e), t.evalExpr(expr.Right, e))
	case *ast.Logical:
		return join(t.evalExpr(expr.Left, e), t.evalExpr(expr.Right, e))
	case *ast.Compare:
		return join(t.evalExpr(expr.Left, e), t.evalExpr(expr.Right, e))
	case *ast.Ternary:
		t.evalExpr(expr.Test, e)
		return join(t.evalExpr(expr.Then, e), t.evalExpr(expr.Else, e))
	case *ast.Array:
		label := LabelNone
		for _, el := range expr.Elements {
			label = join(label, t.evalExpr(el, e))
		}
		return label
	case *ast.Object:
		label := LabelNone
		for _, prop := range expr.Properties {
			label = join(label, t.evalExpr(prop.Value, e))
		}
		return label
	case *ast.Arrow:
		return LabelNone
	case *ast.Call:
		return t.evalCall(expr, e)
	}
	return LabelNone
}

func (t *Tracker) evalCall(call *ast.Call, e env) Label {
	name := calleeName(call.Callee)
	argLabels := make([]Label, len(call.Args))
	for i, a := range call.Args {
		argLabels[i] = t.evalExpr(a, e)
	}

	if defaultSinks[name] || t.extraSinks[name] {
		for i, label := range argLabels {
			if label == LabelTainted {
				pos := call.Pos()
				t.violations = append(t.violations, analyzer.Violation{
					Source:   analyzer.SourceDataflow,
					Rule:     "tainted-sink",
					Message:  "tainted value reaches sink '" + name + "' argument " + strconv.Itoa(i),
					Severity: analyzer.SeverityCritical,
					File:     pos.File,
					Line:     pos.Line,
					Column:   pos.Column,
					CWE:      "CWE-20",
				})
			}
		}
	}

	if defaultSources[name] || t.extraSources[name] {
		return LabelTainted
	}
	if defaultSanitizers[name] || t.extraSanitizers[name] {
		return LabelSanitized
	}
	if sum, ok := t.summaries[name]; ok && sum.ReturnsTainted {
		return LabelTainted
	}

	result := LabelNone
	for _, l := range argLabels {
		result = join(result, l)
	}
	return result
}
