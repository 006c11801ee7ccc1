// Package patterns implements the Pattern Detector. Its rule engine is a
// set of Mangle-style declarative clauses (github.com/google/mangle),
// compiled once at package init: the Detector asserts a call_site-shaped
// fact for every recognized call-site occurrence in a Source Unit's raw
// text, evaluates the compiled rule set to a fixed point, and reads back
// the derived dangerous_call facts as violations. A safe-qualifier
// predicate in Go, applied before a fact is even asserted, keeps a
// dangerous bare call name from being flagged when it is actually a
// member access through a safe qualifier - e.g. `regex.compile(...)` must
// not trip the dangerous-`compile` rule, because `compile` here is scoped
// under the `regex` module, not a call to a host `compile` builtin.
package patterns

import (
	"fmt"
	"regexp"
	"strings"
	"sync"

	"github.com/google/mangle/analysis"
	"github.com/google/mangle/ast"
	_ "github.com/google/mangle/builtin"
	mengine "github.com/google/mangle/engine"
	"github.com/google/mangle/factstore"
	"github.com/google/mangle/parse"

	"vaultlang/internal/analyzer"
	"vaultlang/internal/obslog"
)

// callPattern recognizes one bare-call shape in source text and names the
// Mangle predicate its call sites are asserted under.
type callPattern struct {
	Predicate      string
	Pattern        *regexp.Regexp
	SafeQualifiers []string
}

// defaultPatterns is the baseline call-site recognizer set: dynamic code
// execution, unsafe deserialization, and shell invocation.
var defaultPatterns = []callPattern{
	{Predicate: "compile_call", Pattern: regexp.MustCompile(`\bcompile\s*\(`), SafeQualifiers: []string{"regex"}},
	{Predicate: "eval_call", Pattern: regexp.MustCompile(`\beval\s*\(`)},
	{Predicate: "exec_call", Pattern: regexp.MustCompile(`\bexec\s*\(`), SafeQualifiers: []string{"process"}},
	{Predicate: "deserialize_call", Pattern: regexp.MustCompile(`\bdeserialize\s*\(`), SafeQualifiers: []string{"schema"}},
}

// ruleSchema is the Pattern Detector's rule engine proper: it decides,
// declaratively, which recognized call sites are dangerous and at what
// severity. Adding a new dangerous call shape means adding a call_site
// predicate above and one more clause here, not a new Go branch.
const ruleSchema = `
Decl compile_call(File, Line, Col, Name).
Decl eval_call(File, Line, Col, Name).
Decl exec_call(File, Line, Col, Name).
Decl deserialize_call(File, Line, Col, Name).
Decl dangerous_call(File, Line, Col, Name, Rule, Severity, Cwe, Message).

dangerous_call(File, Line, Col, Name, "dangerous-compile", "error", "CWE-95",
    "dynamic code compilation is disallowed outside a sanctioned module qualifier") :-
  compile_call(File, Line, Col, Name).

dangerous_call(File, Line, Col, Name, "dangerous-eval", "critical", "CWE-95",
    "eval of dynamically constructed code is disallowed") :-
  eval_call(File, Line, Col, Name).

dangerous_call(File, Line, Col, Name, "dangerous-exec", "critical", "CWE-78",
    "process execution is disallowed outside the sandboxed subprocess module") :-
  exec_call(File, Line, Col, Name).

dangerous_call(File, Line, Col, Name, "unsafe-deserialize", "warning", "CWE-502",
    "deserializing untrusted data without a schema is disallowed") :-
  deserialize_call(File, Line, Col, Name).
`

var dangerousCallSym = ast.PredicateSym{Symbol: "dangerous_call", Arity: 8}

var (
	programOnce sync.Once
	program     *analysis.ProgramInfo
	programErr  error
)

// compiledProgram parses and analyzes ruleSchema exactly once per process,
// regardless of how many Detectors or Scan calls follow - the clauses are
// compiled once at startup, evaluation happens fresh per Source Unit.
func compiledProgram() (*analysis.ProgramInfo, error) {
	programOnce.Do(func() {
		unit, err := parse.Unit(strings.NewReader(ruleSchema))
		if err != nil {
			programErr = fmt.Errorf("patterns: parsing rule schema: %w", err)
			return
		}
		info, err := analysis.AnalyzeOneUnit(unit, nil)
		if err != nil {
			programErr = fmt.Errorf("patterns: analyzing rule schema: %w", err)
			return
		}
		program = info
	})
	return program, programErr
}

// Detector runs the compiled rule set against one Source Unit's text.
type Detector struct {
	patterns []callPattern
}

// NewDetector returns a Detector over the baseline call-pattern set.
func NewDetector() *Detector { return &Detector{patterns: defaultPatterns} }

// NewDetectorWithPatterns returns a Detector over a custom call-pattern
// set, used by tests exercising the safe-qualifier predicate in
// isolation.
func NewDetectorWithPatterns(patterns []callPattern) *Detector {
	return &Detector{patterns: patterns}
}

// RuleSetVersion is a stable fingerprint of the active call-pattern
// predicates plus the compiled rule schema, used as part of the analysis
// cache key so a rule-set change invalidates stale cache entries.
func (d *Detector) RuleSetVersion() string {
	var sb strings.Builder
	for _, p := range d.patterns {
		sb.WriteString(p.Predicate)
		sb.WriteByte(';')
	}
	sb.WriteString(ruleSchema)
	return sb.String()
}

// Scan applies every call pattern to src (one line at a time, 1-indexed),
// asserting a call_site fact for each unsuppressed match, evaluates the
// compiled rule set to a fixed point over those facts, and returns the
// derived violations. A match is suppressed before it is ever asserted as
// a fact if the text immediately preceding it (on the same line) ends
// with "<qualifier>." for one of the pattern's SafeQualifiers.
func (d *Detector) Scan(file, src string) []analyzer.Violation {
	info, err := compiledProgram()
	if err != nil {
		obslog.Get(obslog.CategoryPatterns).Error("pattern rule schema failed to compile: %v", err)
		return nil
	}

	store := factstore.NewSimpleInMemoryStore()
	lines := strings.Split(src, "\n")
	for lineIdx, line := range lines {
		for _, p := range d.patterns {
			locs := p.Pattern.FindAllStringIndex(line, -1)
			for _, loc := range locs {
				if isSafeQualified(line, loc[0], p.SafeQualifiers) {
					continue
				}
				name := strings.TrimRight(strings.TrimSpace(line[loc[0]:loc[1]]), "( \t")
				store.Add(ast.NewAtom(p.Predicate,
					ast.String(file), ast.Number(int64(lineIdx+1)), ast.Number(int64(loc[0]+1)), ast.String(name)))
			}
		}
	}

	if _, err := mengine.EvalProgramWithStats(info, store); err != nil {
		obslog.Get(obslog.CategoryPatterns).Error("pattern rule evaluation failed for %s: %v", file, err)
		return nil
	}

	var out []analyzer.Violation
	_ = store.GetFacts(ast.NewQuery(dangerousCallSym), func(atom ast.Atom) error {
		v, verr := violationFromAtom(atom)
		if verr != nil {
			return verr
		}
		out = append(out, v)
		return nil
	})
	obslog.Get(obslog.CategoryPatterns).Debug("pattern scan of %s found %d violations", file, len(out))
	return out
}

// violationFromAtom converts one derived dangerous_call fact, in the fixed
// arg order the schema declares, to an analyzer.Violation.
func violationFromAtom(atom ast.Atom) (analyzer.Violation, error) {
	if len(atom.Args) != 8 {
		return analyzer.Violation{}, fmt.Errorf("patterns: unexpected dangerous_call arity %d", len(atom.Args))
	}
	file, err := constantString(atom.Args[0])
	if err != nil {
		return analyzer.Violation{}, err
	}
	line, err := constantNumber(atom.Args[1])
	if err != nil {
		return analyzer.Violation{}, err
	}
	col, err := constantNumber(atom.Args[2])
	if err != nil {
		return analyzer.Violation{}, err
	}
	rule, err := constantString(atom.Args[4])
	if err != nil {
		return analyzer.Violation{}, err
	}
	severity, err := constantString(atom.Args[5])
	if err != nil {
		return analyzer.Violation{}, err
	}
	cwe, err := constantString(atom.Args[6])
	if err != nil {
		return analyzer.Violation{}, err
	}
	message, err := constantString(atom.Args[7])
	if err != nil {
		return analyzer.Violation{}, err
	}
	return analyzer.Violation{
		Source:   analyzer.SourcePattern,
		Rule:     rule,
		Message:  message,
		Severity: severityFromString(severity),
		File:     file,
		Line:     int(line),
		Column:   int(col),
		CWE:      cwe,
	}, nil
}

func constantString(t ast.BaseTerm) (string, error) {
	c, ok := t.(ast.Constant)
	if !ok {
		return "", fmt.Errorf("patterns: expected constant, got %T", t)
	}
	return c.Symbol, nil
}

func constantNumber(t ast.BaseTerm) (int64, error) {
	c, ok := t.(ast.Constant)
	if !ok {
		return 0, fmt.Errorf("patterns: expected constant, got %T", t)
	}
	return c.NumValue, nil
}

func severityFromString(s string) analyzer.Severity {
	switch s {
	case "critical":
		return analyzer.SeverityCritical
	case "error":
		return analyzer.SeverityError
	case "warning":
		return analyzer.SeverityWarning
	default:
		return analyzer.SeverityInfo
	}
}

// isSafeQualified reports whether the text immediately before matchStart
// ends with "<qualifier>." for one of qualifiers, meaning the match is a
// member access rather than a bare dangerous call.
func isSafeQualified(line string, matchStart int, qualifiers []string) bool {
	if len(qualifiers) == 0 {
		return false
	}
	prefix := line[:matchStart]
	for _, q := range qualifiers {
		if strings.HasSuffix(prefix, q+".") {
			return true
		}
	}
	return false
}
