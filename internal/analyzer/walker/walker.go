// Package walker implements the AST Walker analysis: scope and symbol
// resolution plus structural violation detection (break/continue outside a
// loop, return outside a function, nonlocal with no enclosing binding,
// destructuring arity mismatches against a constant RHS). Uses a
// scope-stack resolution style walked via ast.Walk.
package walker

import (
	"vaultlang/internal/analyzer"
	"vaultlang/internal/ast"
	"vaultlang/internal/obslog"
)

// scope is one lexical scope frame: function or module level. loopDepth
// tracks nested loop nesting so break/continue validity is a simple
// depth check; inFunction tracks whether `return` is currently legal.
type scope struct {
	names      map[string]bool
	loopDepth  int
	inFunction bool
	parent     *scope
}

func newScope(parent *scope) *scope {
	s := &scope{names: make(map[string]bool), parent: parent}
	if parent != nil {
		s.loopDepth = parent.loopDepth
		s.inFunction = parent.inFunction
	}
	return s
}

func (s *scope) declare(name string) { s.names[name] = true }

// resolves reports whether name is bound in s or any ancestor scope.
func (s *scope) resolves(name string) bool {
	for c := s; c != nil; c = c.parent {
		if c.names[name] {
			return true
		}
	}
	return false
}

// Walker runs the structural/scope analysis over one parsed Module.
type Walker struct {
	file       string
	violations []analyzer.Violation
}

// New returns a Walker for the given Source Unit name (used to stamp
// violation positions).
func New(file string) *Walker { return &Walker{file: file} }

// Analyze walks mod and returns the structural violations found.
func (w *Walker) Analyze(mod *ast.Module) []analyzer.Violation {
	root := newScope(nil)
	for _, stmt := range mod.Body {
		w.visitStmt(stmt, root)
	}
	obslog.Get(obslog.CategoryWalker).Debug("walker analysis of %s found %d violations", w.file, len(w.violations))
	return w.violations
}

func (w *Walker) report(rule, message string, severity analyzer.Severity, pos ast.Position) {
	w.violations = append(w.violations, analyzer.Violation{
		Source:   analyzer.SourceWalker,
		Rule:     rule,
		Message:  message,
		Severity: severity,
		File:     pos.File,
		Line:     pos.Line,
		Column:   pos.Column,
	})
}

func (w *Walker) visitBlock(b *ast.Block, s *scope) {
	if b == nil {
		return
	}
	inner := newScope(s)
	for _, stmt := range b.Statements {
		w.visitStmt(stmt, inner)
	}
}

func (w *Walker) visitStmt(n ast.Node, s *scope) {
	switch stmt := n.(type) {
	case *ast.FunctionDef:
		fnScope := newScope(s)
		fnScope.inFunction = true
		fnScope.loopDepth = 0
		for _, p := range stmt.Params {
			fnScope.declare(p.Name)
			if p.Default != nil {
				w.visitExpr(p.Default, s)
			}
		}
		w.visitBlock(stmt.Body, fnScope)
	case *ast.If:
		w.visitExpr(stmt.Test, s)
		w.visitBlock(stmt.Body, s)
		for _, elif := range stmt.Elifs {
			w.visitExpr(elif.Test, s)
			w.visitBlock(elif.Body, s)
		}
		if stmt.Else != nil {
			w.visitBlock(stmt.Else.Body, s)
		}
	case *ast.While:
		w.visitExpr(stmt.Test, s)
		loopScope := newScope(s)
		loopScope.loopDepth++
		w.visitBlock(stmt.Body, loopScope)
	case *ast.For:
		w.visitExpr(stmt.Iterable, s)
		loopScope := newScope(s)
		loopScope.loopDepth++
		loopScope.declare(stmt.Var)
		w.visitBlock(stmt.Body, loopScope)
	case *ast.Break:
		if s.loopDepth == 0 {
			w.report("break-outside-loop", "'break' used outside any loop", analyzer.SeverityError, stmt.Pos())
		}
	case *ast.Continue:
		if s.loopDepth == 0 {
			w.report("continue-outside-loop", "'continue' used outside any loop", analyzer.SeverityError, stmt.Pos())
		}
	case *ast.Return:
		if !s.inFunction {
			w.report("return-outside-function", "'return' used outside any function", analyzer.SeverityError, stmt.Pos())
		}
		if stmt.Value != nil {
			w.visitExpr(stmt.Value, s)
		}
	case *ast.Try:
		w.visitBlock(stmt.Body, s)
		if stmt.Except != nil {
			exceptScope := newScope(s)
			if stmt.Except.Binding != "" {
				exceptScope.declare(stmt.Except.Binding)
			}
			w.visitBlock(stmt.Except.Body, exceptScope)
		}
		if stmt.Finally != nil {
			w.visitBlock(stmt.Finally.Body, s)
		}
	case *ast.Throw:
		w.visitExpr(stmt.Value, s)
	case *ast.Import:
		name := stmt.Name
		if stmt.Alias != "" {
			name = stmt.Alias
		}
		s.declare(name)
	case *ast.Assign:
		w.visitExpr(stmt.Value, s)
		if id, ok := stmt.Target.(*ast.Identifier); ok {
			s.declare(id.Name)
		} else {
			w.visitExpr(stmt.Target, s)
		}
	case *ast.DestructureAssign:
		w.visitExpr(stmt.Value, s)
		if arr, ok := stmt.Value.(*ast.Array); ok && !stmt.IsObject {
			if len(arr.Elements) != len(stmt.Names) {
				w.report("destructure-arity-mismatch",
					"destructuring pattern arity does not match the constant array literal it binds from",
					analyzer.SeverityError, stmt.Pos())
			}
		}
		if obj, ok := stmt.Value.(*ast.Object); ok && stmt.IsObject {
			for _, name := range stmt.Names {
				found := false
				for _, prop := range obj.Properties {
					if prop.Key == name {
						found = true
						break
					}
				}
				if !found {
					w.report("destructure-missing-key",
						"destructuring pattern names a key absent from the constant object literal it binds from",
						analyzer.SeverityError, stmt.Pos())
				}
			}
		}
		for _, name := range stmt.Names {
			s.declare(name)
		}
	case *ast.ExprStmt:
		w.visitExpr(stmt.Expr, s)
	case *ast.Nonlocal:
		if s.parent == nil || !s.parent.resolves(stmt.Name) {
			w.report("nonlocal-unbound", "'nonlocal' names a variable with no enclosing binding", analyzer.SeverityError, stmt.Pos())
		} else {
			s.declare(stmt.Name)
		}
	case *ast.Capability:
		// Capability blocks are module-load-time registrations; no scope
		// effect for the walker beyond visiting nested exprs, of which
		// there are none (rules carry only string literals).
	}
}

func (w *Walker) visitExpr(n ast.Node, s *scope) {
	if n == nil {
		return
	}
	switch expr := n.(type) {
	case *ast.Identifier:
		if !s.resolves(expr.Name) {
			w.report("unresolved-identifier", "identifier '"+expr.Name+"' is not bound in any enclosing scope", analyzer.SeverityWarning, expr.Pos())
		}
	case *ast.Member:
		w.visitExpr(expr.Object, s)
	case *ast.Index:
		w.visitExpr(expr.Object, s)
		w.visitExpr(expr.Key, s)
	case *ast.Slice:
		w.visitExpr(expr.Object, s)
		w.visitExpr(expr.Start, s)
		w.visitExpr(expr.Stop, s)
		w.visitExpr(expr.Step, s)
	case *ast.Call:
		w.visitExpr(expr.Callee, s)
		for _, a := range expr.Args {
			w.visitExpr(a, s)
		}
	case *ast.Unary:
		w.visitExpr(expr.Operand, s)
	case *ast.Binary:
		w.visitExpr(expr.Left, s)
		w.visitExpr(expr.Right, s)
	case *ast.Logical:
		w.visitExpr(expr.Left, s)
		w.visitExpr(expr.Right, s)
	case *ast.Compare:
		w.visitExpr(expr.Left, s)
		w.visitExpr(expr.Right, s)
	case *ast.Ternary:
		w.visitExpr(expr.Test, s)
		w.visitExpr(expr.Then, s)
		w.visitExpr(expr.Else, s)
	case *ast.Array:
		for _, el := range expr.Elements {
			w.visitExpr(el, s)
		}
	case *ast.Object:
		for _, prop := range expr.Properties {
			w.visitExpr(prop.Value, s)
		}
	case *ast.Arrow:
		arrowScope := newScope(s)
		arrowScope.inFunction = true
		arrowScope.loopDepth = 0
		for _, p := range expr.Params {
			arrowScope.declare(p.Name)
		}
		if expr.HasBlockBody() {
			w.visitBlock(expr.BlockBody, arrowScope)
		} else {
			w.visitExpr(expr.ExprBody, arrowScope)
		}
	}
}
