package sourcemap

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBuildDerivesBreakpointLinesFromStatementsOnly(t *testing.T) {
	b := NewBuilder("x.sl")
	b.Record(1, 1, 0, MappingStatement)
	b.Record(2, 2, 0, MappingExpression)
	b.Record(3, 3, 0, MappingFunction)
	b.Record(4, 4, 0, MappingStatement)

	m := b.Build()

	assert.Equal(t, 3, m.Version)
	assert.Equal(t, []string{"x.sl"}, m.Sources)
	assert.Equal(t, []int{1, 4}, m.DebugInfo.BreakpointLines)
	assert.Len(t, m.Mappings, 4)
}

func TestBuildRecordsFunctionRanges(t *testing.T) {
	b := NewBuilder("x.sl")
	b.RecordFunctionRange("add", 2, 5)
	b.RecordFunctionRange("sub", 7, 9)

	m := b.Build()

	assert.Equal(t, []FunctionRange{
		{Name: "add", StartLine: 2, EndLine: 5},
		{Name: "sub", StartLine: 7, EndLine: 9},
	}, m.DebugInfo.FunctionRanges)
}

func TestBuildWithNoMappingsLeavesSlicesNil(t *testing.T) {
	b := NewBuilder("empty.sl")
	m := b.Build()

	assert.Nil(t, m.Mappings)
	assert.Nil(t, m.DebugInfo.BreakpointLines)
	assert.Nil(t, m.DebugInfo.FunctionRanges)
}
