// Package ast defines the typed AST produced by the front end: a closed
// set of node kinds, each carrying a Position, attached to a Source Unit.
package ast

import "fmt"

// Position is a (line, column, offset, file) quadruple attached to every
// AST node and preserved through all downstream passes.
type Position struct {
	Line, Column, Offset int
	File                 string
}

func (p Position) String() string {
	if p.File == "" {
		return fmt.Sprintf("%d:%d", p.Line, p.Column)
	}
	return fmt.Sprintf("%s:%d:%d", p.File, p.Line, p.Column)
}

// Within reports whether the position's offset lies inside text of the
// given length, the data-model invariant every parsed node must satisfy.
func (p Position) Within(textLen int) bool {
	return p.Offset >= 0 && p.Offset <= textLen
}

// SourceUnit is a compilation input: a logical file identity, its text,
// and a content hash used as the analysis-cache key. Immutable once
// created.
type SourceUnit struct {
	Name string
	Text string
	Hash string
}
