package ast

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSourceUnitHashDeterministic(t *testing.T) {
	a := NewSourceUnit("x.sl", "x = 1;")
	b := NewSourceUnit("x.sl", "x = 1;")
	c := NewSourceUnit("x.sl", "x = 2;")

	assert.Equal(t, a.Hash, b.Hash)
	assert.NotEqual(t, a.Hash, c.Hash)
}

func TestWalkCoversAllChildren(t *testing.T) {
	mod := &Module{
		Body: []Node{
			&Assign{
				TargetKind: TargetIdentifier,
				Target:     &Identifier{Name: "x"},
				Value: &Binary{
					Op:    BinaryAdd,
					Left:  &LiteralNumber{Value: 1},
					Right: &LiteralNumber{Value: 2},
				},
			},
		},
	}

	var kinds []Kind
	Walk(mod, func(n Node) { kinds = append(kinds, n.NodeKind()) })

	require.Len(t, kinds, 6)
	assert.Equal(t, KindModule, kinds[0])
	assert.Equal(t, KindAssign, kinds[1])
}

func TestPositionWithin(t *testing.T) {
	p := Position{Offset: 5}
	assert.True(t, p.Within(10))
	assert.False(t, p.Within(4))
}
