package analyzer

import (
	"context"
	"crypto/sha256"
	"encoding/hex"

	"golang.org/x/sync/errgroup"

	"vaultlang/internal/analyzer/cache"
	"vaultlang/internal/ast"
	"vaultlang/internal/obslog"
)

// AnalyzerVersion is bumped whenever any of the three analyses changes its
// output shape in a way that should invalidate cached results.
const AnalyzerVersion = "v1"

// PatternDetector is satisfied by analyzer/patterns.Detector, kept as a
// narrow interface here so this package does not import patterns
// (avoiding an import cycle, since patterns imports analyzer for
// Violation/Severity).
type PatternDetector interface {
	Scan(file, src string) []Violation
	RuleSetVersion() string
}

// StructuralWalker is satisfied by analyzer/walker.Walker.
type StructuralWalker interface {
	Analyze(mod *ast.Module) []Violation
}

// TaintTracker is satisfied by analyzer/dataflow.Tracker.
type TaintTracker interface {
	Analyze(mod *ast.Module) []Violation
}

// Harness runs the Pattern Detector, AST Walker, and Data-Flow Tracker
// over one Source Unit, merges their findings deterministically, and
// consults/populates the shared analysis cache. The default mode is
// errgroup-based fan-out (golang.org/x/sync/errgroup) rather than
// hand-rolled WaitGroup plumbing; NewSequential builds a Harness that runs
// the same three analyses one after another instead, for environments
// where goroutine fan-out itself is the thing under suspicion (a
// constrained sandbox host, or reproducing a report that only shows up
// single-threaded).
type Harness struct {
	patterns   PatternDetector
	walker     func(file string) StructuralWalker
	tracker    func(file string) TaintTracker
	cache      *cache.LRU[[]Violation]
	sequential bool
}

// New constructs a Harness that runs its three analyses concurrently.
// walkerFactory/trackerFactory produce a fresh analyzer per Source Unit
// because both walker.Walker and dataflow.Tracker carry per-file mutable
// state.
func New(patternDetector PatternDetector, walkerFactory func(file string) StructuralWalker, trackerFactory func(file string) TaintTracker, resultCache *cache.LRU[[]Violation]) *Harness {
	return &Harness{patterns: patternDetector, walker: walkerFactory, tracker: trackerFactory, cache: resultCache}
}

// NewSequential constructs a Harness identical to New except its Analyze
// runs the Pattern Detector, AST Walker, and Data-Flow Tracker one at a
// time on the calling goroutine - the single-threaded fallback path, with
// no errgroup and no fan-out.
func NewSequential(patternDetector PatternDetector, walkerFactory func(file string) StructuralWalker, trackerFactory func(file string) TaintTracker, resultCache *cache.LRU[[]Violation]) *Harness {
	return &Harness{patterns: patternDetector, walker: walkerFactory, tracker: trackerFactory, cache: resultCache, sequential: true}
}

// Analyze runs all three analyses for unit/mod and returns their merged,
// deterministically sorted findings, consulting the cache first.
func (h *Harness) Analyze(ctx context.Context, unit *ast.SourceUnit, mod *ast.Module) ([]Violation, error) {
	key := cache.Key{
		ContentHash:     contentHash(unit.Text),
		AnalyzerVersion: AnalyzerVersion,
		RuleSetVersion:  h.patterns.RuleSetVersion(),
	}
	if h.cache != nil {
		if cached, ok := h.cache.Get(key); ok {
			obslog.Get(obslog.CategoryAnalyzer).Debug("analysis cache hit for %s", unit.Name)
			return cached, nil
		}
	}

	var patternResults, walkerResults, dataflowResults []Violation
	var err error
	if h.sequential {
		patternResults, walkerResults, dataflowResults = h.analyzeSequential(unit, mod)
	} else {
		patternResults, walkerResults, dataflowResults, err = h.analyzeParallel(ctx, unit, mod)
		if err != nil {
			return nil, err
		}
	}

	merged := make([]Violation, 0, len(patternResults)+len(walkerResults)+len(dataflowResults))
	merged = append(merged, patternResults...)
	merged = append(merged, walkerResults...)
	merged = append(merged, dataflowResults...)
	SortViolations(merged)

	if h.cache != nil {
		h.cache.Put(key, merged)
	}
	obslog.Get(obslog.CategoryAnalyzer).Info("analyzed %s: %d violations (%d pattern, %d walker, %d dataflow)",
		unit.Name, len(merged), len(patternResults), len(walkerResults), len(dataflowResults))
	return merged, nil
}

// analyzeParallel runs the three analyses concurrently, bounded by
// errgroup's implicit goroutine-per-call fan-out (three analyses is a
// fixed, small fan-out - no semaphore is needed to bound concurrency
// further).
func (h *Harness) analyzeParallel(ctx context.Context, unit *ast.SourceUnit, mod *ast.Module) (pattern, walker, dataflow []Violation, err error) {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		select {
		case <-gctx.Done():
			return gctx.Err()
		default:
		}
		pattern = h.patterns.Scan(unit.Name, unit.Text)
		return nil
	})
	g.Go(func() error {
		walker = h.walker(unit.Name).Analyze(mod)
		return nil
	})
	g.Go(func() error {
		dataflow = h.tracker(unit.Name).Analyze(mod)
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, nil, nil, err
	}
	return pattern, walker, dataflow, nil
}

// analyzeSequential runs the same three analyses one after another on the
// calling goroutine. No context cancellation check is needed: each call
// already returns before the next begins.
func (h *Harness) analyzeSequential(unit *ast.SourceUnit, mod *ast.Module) (pattern, walker, dataflow []Violation) {
	pattern = h.patterns.Scan(unit.Name, unit.Text)
	walker = h.walker(unit.Name).Analyze(mod)
	dataflow = h.tracker(unit.Name).Analyze(mod)
	return pattern, walker, dataflow
}

func contentHash(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}
