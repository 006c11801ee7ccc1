// Package sourcemap builds the bidirectional position index and debug info
// emitted alongside generated HTL code: a JSON document with
// version/sources/mappings/names plus a debugInfo block of breakpoint
// lines, function ranges, and variable mappings.
package sourcemap

// MappingKind classifies what an output line corresponds to, used to
// populate debugInfo.breakpointLines (only MappingStatement lines are
// valid breakpoint targets).
type MappingKind int

const (
	MappingStatement MappingKind = iota
	MappingFunction
	MappingExpression
)

// Mapping is one generated-line -> source-position correspondence.
type Mapping struct {
	GeneratedLine int         `json:"generatedLine"`
	SourceLine    int         `json:"sourceLine"`
	SourceColumn  int         `json:"sourceColumn"`
	Kind          MappingKind `json:"kind"`
}

// FunctionRange records the generated-line span of one lowered function,
// for stack-trace remapping and step-over debugging.
type FunctionRange struct {
	Name      string `json:"name"`
	StartLine int    `json:"startLine"`
	EndLine   int    `json:"endLine"`
}

// DebugInfo is the non-standard extension block alongside the mappings
// array, carrying the data a step-debugger needs beyond plain position
// remapping.
type DebugInfo struct {
	BreakpointLines  []int           `json:"breakpointLines"`
	FunctionRanges   []FunctionRange `json:"functionRanges"`
	VariableMappings map[string]string `json:"variableMappings,omitempty"`
}

// Map is the full source map document for one compiled Source Unit.
type Map struct {
	Version   int         `json:"version"`
	Sources   []string    `json:"sources"`
	Mappings  []Mapping   `json:"mappings"`
	Names     []string    `json:"names,omitempty"`
	DebugInfo DebugInfo   `json:"debugInfo"`
}

// Builder accumulates mappings during code generation and finalizes them
// into a Map.
type Builder struct {
	source    string
	mappings  []Mapping
	functions []FunctionRange
}

// NewBuilder starts a Builder for the given Source Unit name.
func NewBuilder(source string) *Builder {
	return &Builder{source: source}
}

// Record appends one generated-line -> source-position mapping.
func (b *Builder) Record(generatedLine, sourceLine, sourceColumn int, kind MappingKind) {
	b.mappings = append(b.mappings, Mapping{
		GeneratedLine: generatedLine,
		SourceLine:    sourceLine,
		SourceColumn:  sourceColumn,
		Kind:          kind,
	})
}

// RecordFunctionRange records the generated-line span of a lowered
// function.
func (b *Builder) RecordFunctionRange(name string, start, end int) {
	b.functions = append(b.functions, FunctionRange{Name: name, StartLine: start, EndLine: end})
}

// Build finalizes the accumulated mappings into a Map, deriving
// breakpointLines from every MappingStatement entry.
func (b *Builder) Build() *Map {
	var breakpoints []int
	for _, m := range b.mappings {
		if m.Kind == MappingStatement {
			breakpoints = append(breakpoints, m.GeneratedLine)
		}
	}
	return &Map{
		Version:  3,
		Sources:  []string{b.source},
		Mappings: b.mappings,
		DebugInfo: DebugInfo{
			BreakpointLines: breakpoints,
			FunctionRanges:  b.functions,
		},
	}
}
