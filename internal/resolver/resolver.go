// Package resolver implements the Module/Import Resolver: resolving an
// `import name` statement to a ModuleValue by consulting, in order, the
// Stdlib Module Registry, the local-project source tree, and
// user-configured extension paths, with circular-import detection that
// reports a precise cycle listing.
//
// Uses a DFS-with-color-marking cycle detector (white/gray/black) over
// import edges, and an "accumulate then report" idiom for multi-error
// surfacing via github.com/hashicorp/go-multierror.
package resolver

import (
	"os"
	"path/filepath"
	"sort"

	"github.com/agext/levenshtein"
	multierror "github.com/hashicorp/go-multierror"

	"vaultlang/internal/obslog"
	"vaultlang/internal/stdlib"
	"vaultlang/internal/verrors"
)

// ModuleValue is what resolve() produces: either a stdlib module's
// metadata or a reference to a source-tree Source Unit awaiting parsing by
// the caller (the resolver itself does not parse - that is the front
// end's job, invoked by the driver once a path is known).
type ModuleValue struct {
	Name                string
	IsStdlib            bool
	StdlibModule        stdlib.Module // valid only if IsStdlib
	SourcePath          string        // valid only if !IsStdlib: resolved filesystem path
	DeclaredCapability  string        // "" if the module declares none
}

// SourceLocator resolves a bare module name to a source-tree path. The
// resolver tries, in order: the local project root, then each configured
// extension path, returning the first existing `<root>/<name>.sl`.
type SourceLocator struct {
	ProjectRoot    string
	ExtensionPaths []string
}

func (s SourceLocator) locate(name string) (string, bool) {
	roots := append([]string{s.ProjectRoot}, s.ExtensionPaths...)
	for _, root := range roots {
		if root == "" {
			continue
		}
		candidate := filepath.Join(root, name+".sl")
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			return candidate, true
		}
	}
	return "", false
}

// Resolver resolves module names for one compile/analyze run. It tracks
// the in-progress import chain to detect cycles across nested resolve
// calls within a single requesting unit's transitive closure.
type Resolver struct {
	stdlibReg *stdlib.Registry
	locator   SourceLocator

	// chain is the stack of module names currently being resolved,
	// in order, used for cycle detection and cycle-path reporting.
	chain []string
	known []string // all module names ever offered, for "did you mean" suggestions
}

// New constructs a Resolver. A nil stdlibReg falls back to stdlib.Default().
func New(stdlibReg *stdlib.Registry, locator SourceLocator) *Resolver {
	if stdlibReg == nil {
		stdlibReg = stdlib.Default()
	}
	r := &Resolver{stdlibReg: stdlibReg, locator: locator}
	r.known = append(r.known, stdlibReg.Names()...)
	sort.Strings(r.known)
	return r
}

// Resolve resolves name as imported by requestingUnit. Resolution order is
// stdlib registry, then local-project source tree, then user-configured
// extension paths. Importing a module already on the current resolution
// chain is a cycle and fails with ResolverError{Kind: ResolverCycle},
// listing the full cycle path.
func (r *Resolver) Resolve(name, requestingUnit string) (*ModuleValue, error) {
	for _, inProgress := range r.chain {
		if inProgress == name {
			cycle := append(append([]string{}, r.chain...), name)
			obslog.Get(obslog.CategoryResolver).Warn("import cycle detected resolving %q from %q: %v", name, requestingUnit, cycle)
			return nil, &verrors.ResolverError{Kind: verrors.ResolverCycle, Module: name, Cycle: cycle}
		}
	}

	if m, ok := r.stdlibReg.Lookup(name); ok {
		obslog.Get(obslog.CategoryResolver).Debug("resolved %q to stdlib module from %q", name, requestingUnit)
		return &ModuleValue{Name: name, IsStdlib: true, StdlibModule: m, DeclaredCapability: m.DeclaredCapability}, nil
	}

	if path, ok := r.locator.locate(name); ok {
		obslog.Get(obslog.CategoryResolver).Debug("resolved %q to source path %s from %q", name, path, requestingUnit)
		return &ModuleValue{Name: name, SourcePath: path}, nil
	}

	err := &verrors.ResolverError{Kind: verrors.ResolverUnknownModule, Module: name}
	if suggestion := r.suggest(name); suggestion != "" {
		obslog.Get(obslog.CategoryResolver).Warn("unknown module %q (did you mean %q?)", name, suggestion)
	}
	return nil, err
}

// suggest returns the closest known module name to name by Levenshtein
// distance, for a ParseError/ResolverError "did you mean" hint. Returns ""
// if nothing is close enough to be a plausible typo.
func (r *Resolver) suggest(name string) string {
	const maxDistance = 3
	best := ""
	bestDist := maxDistance + 1
	for _, known := range r.known {
		d := levenshtein.Distance(name, known, nil)
		if d < bestDist {
			bestDist = d
			best = known
		}
	}
	if bestDist > maxDistance {
		return ""
	}
	return best
}

// Suggest exposes suggest for callers building ResolverError.Suggestion-
// style messages outside this package (e.g. the CLI's error renderer).
func (r *Resolver) Suggest(name string) string { return r.suggest(name) }

// ImportLister returns the list of module names a source file at path
// imports, so ResolveTransitive can walk the whole import graph without
// owning front-end parsing itself.
type ImportLister func(sourcePath string) ([]string, error)

// ResolveTransitive resolves name as imported by requestingUnit and, for a
// local source-tree module, recursively resolves its own imports via
// lister before returning - a DFS over the import graph with gray-marking
// on r.chain, so a cycle anywhere in the transitive closure is caught with
// its full path, not just direct self-imports. Circular imports are
// detected and fail with a precise cycle listing.
//
// stdlib modules are leaves: they declare no further SL-level imports, so
// recursion stops at the first stdlib hit on any path.
func (r *Resolver) ResolveTransitive(name, requestingUnit string, lister ImportLister) (*ModuleValue, error) {
	for _, inProgress := range r.chain {
		if inProgress == name {
			cycle := append(append([]string{}, r.chain...), name)
			obslog.Get(obslog.CategoryResolver).Warn("import cycle detected resolving %q from %q: %v", name, requestingUnit, cycle)
			return nil, &verrors.ResolverError{Kind: verrors.ResolverCycle, Module: name, Cycle: cycle}
		}
	}

	mv, err := r.Resolve(name, requestingUnit)
	if err != nil {
		return nil, err
	}
	if mv.IsStdlib {
		return mv, nil
	}

	r.chain = append(r.chain, name)
	defer func() { r.chain = r.chain[:len(r.chain)-1] }()

	children, err := lister(mv.SourcePath)
	if err != nil {
		return nil, &verrors.ResolverError{Kind: verrors.ResolverIOError, Module: name, Wrapped: err}
	}

	var errs error
	for _, child := range children {
		if _, err := r.ResolveTransitive(child, name, lister); err != nil {
			errs = multierror.Append(errs, err)
		}
	}
	if errs != nil {
		return nil, errs
	}
	return mv, nil
}
