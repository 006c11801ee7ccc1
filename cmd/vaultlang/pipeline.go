package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"vaultlang/internal/analyzer"
	"vaultlang/internal/analyzer/cache"
	"vaultlang/internal/analyzer/dataflow"
	"vaultlang/internal/analyzer/patterns"
	"vaultlang/internal/analyzer/walker"
	"vaultlang/internal/ast"
	"vaultlang/internal/parser"
	"vaultlang/internal/resolver"
	"vaultlang/internal/sandbox"
	"vaultlang/internal/stdlib"
	"vaultlang/internal/verrors"
)

// readSourceUnit loads path and wraps it as a Source Unit, or returns an
// I/O error for the caller to classify.
func readSourceUnit(path string) (*ast.SourceUnit, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return ast.NewSourceUnit(path, string(data)), nil
}

// parseFile reads and parses path into an AST Module.
func parseFile(path string) (*ast.SourceUnit, *ast.Module, error) {
	unit, err := readSourceUnit(path)
	if err != nil {
		return nil, nil, err
	}
	mod, err := parser.Parse(unit)
	if err != nil {
		return unit, nil, err
	}
	return unit, mod, nil
}

// buildHarness wires the Pattern Detector, AST Walker, and Data-Flow
// Tracker behind the shared analysis cache, with the stdlib registry's
// taint declarations merged into the tracker. `workers: 1` (or a
// misconfigured non-positive value) in the config file selects the
// single-threaded fallback harness instead of the default concurrent one.
func buildHarness(reg *stdlib.Registry) *analyzer.Harness {
	patternDetector := patterns.NewDetector()
	walkerFactory := func(file string) analyzer.StructuralWalker { return walker.New(file) }
	trackerFactory := func(file string) analyzer.TaintTracker { return dataflow.NewWithStdlib(file, reg) }
	resultCache := cache.New[[]analyzer.Violation](512)

	if cfg.Workers <= 1 {
		return analyzer.NewSequential(patternDetector, walkerFactory, trackerFactory, resultCache)
	}
	return analyzer.New(patternDetector, walkerFactory, trackerFactory, resultCache)
}

// patternsOnly runs just the Pattern Detector over unit, for the `check`
// command's fast parse-plus-lint pass that skips import resolution and the
// full harness.
func patternsOnly(unit *ast.SourceUnit) []analyzer.Violation {
	return patterns.NewDetector().Scan(unit.Name, unit.Text)
}

// fileImportLister adapts parseFile's import extraction to
// resolver.ImportLister, so ResolveTransitive can walk a local project's
// import graph without owning front-end parsing.
func fileImportLister(sourcePath string) ([]string, error) {
	_, mod, err := parseFile(sourcePath)
	if err != nil {
		return nil, err
	}
	return moduleImports(mod), nil
}

func moduleImports(mod *ast.Module) []string {
	var names []string
	for _, n := range mod.Body {
		if imp, ok := n.(*ast.Import); ok {
			names = append(names, imp.Name)
		}
	}
	return names
}

// resolveImports resolves every top-level import of mod, transitively,
// against the stdlib registry and the project's own source tree rooted at
// the directory containing sourcePath.
func resolveImports(mod *ast.Module, sourcePath string, reg *stdlib.Registry) error {
	r := resolver.New(reg, resolver.SourceLocator{ProjectRoot: filepath.Dir(sourcePath)})
	for _, name := range moduleImports(mod) {
		if _, err := r.ResolveTransitive(name, sourcePath, fileImportLister); err != nil {
			return err
		}
	}
	return nil
}

var errAnalysisBlocked = fmt.Errorf("one or more violations at error severity")

// hasBlockingViolation reports whether vs contains a violation at or
// above SeverityError, which blocks codegen under strict mode.
func hasBlockingViolation(vs []analyzer.Violation) bool {
	for _, v := range vs {
		if v.Severity >= analyzer.SeverityError {
			return true
		}
	}
	return false
}

// printViolations writes every violation in vs to w, one per line, as the
// diagnostics-as-facts projection (analyzer.Violation.ToFact), colorized by
// severity when colorOut is set.
func printViolations(w io.Writer, vs []analyzer.Violation) {
	for _, v := range vs {
		line := v.ToFact()
		if colorOut {
			line = colorForSeverity(v.Severity) + line + "\033[0m"
		}
		fmt.Fprintln(w, line)
	}
}

func colorForSeverity(s analyzer.Severity) string {
	switch s {
	case analyzer.SeverityCritical:
		return "\033[1;31m"
	case analyzer.SeverityError:
		return "\033[31m"
	case analyzer.SeverityWarning:
		return "\033[33m"
	default:
		return "\033[2m"
	}
}

// classifyErr maps err to an exit code: verrors taxonomy errors get their
// natural classification, anything else falls back to fallback (the
// command-specific default, e.g. exitCompileError for the compile/check
// pipeline). parser.Parse's own *parser.ParseError predates the verrors
// taxonomy and is matched explicitly alongside it.
func classifyErr(err error, fallback int) error {
	switch err.(type) {
	case *verrors.ParseError, *verrors.CodegenError, *verrors.ResolverError, *parser.ParseError:
		return cliError{err: err, code: exitCompileError}
	case *verrors.SandboxError, *verrors.CapabilityError:
		return cliError{err: err, code: exitRuntimeOrSandbox}
	}
	if errors.Is(err, os.ErrNotExist) {
		return cliError{err: err, code: exitIOError}
	}
	return cliError{err: err, code: fallback}
}

// cliError pairs an error with the exit code it should produce, so
// main's top-level Execute error path (which only has the error value)
// can still report the right code via exitCodeFor.
type cliError struct {
	err  error
	code int
}

func (e cliError) Error() string { return e.err.Error() }
func (e cliError) Unwrap() error { return e.err }

// grantsFromModule lowers every top-level `capability NAME { ... }` block
// in mod to the wire-form CapabilityGrant the sandboxed child receives over
// IPC. A bare resource clause contributes a resource pattern; an allow
// clause contributes both a resource pattern (its target) and an allowed
// operation.
func grantsFromModule(mod *ast.Module) []sandbox.CapabilityGrant {
	var grants []sandbox.CapabilityGrant
	for _, n := range mod.Body {
		block, ok := n.(*ast.Capability)
		if !ok {
			continue
		}
		g := sandbox.CapabilityGrant{Type: block.Name}
		for _, rule := range block.Rules {
			if rule.IsResource {
				g.ResourcePatterns = append(g.ResourcePatterns, rule.Pattern)
			} else {
				g.ResourcePatterns = append(g.ResourcePatterns, rule.Pattern)
				g.AllowedOperations = append(g.AllowedOperations, rule.Operation)
			}
		}
		grants = append(grants, g)
	}
	return grants
}
