// Package sx_test: combinator construction, constant folding and node
// immutability guarantees.
package sx_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/onedigit/casadi/sx"
)

func TestCombinators_Fold(t *testing.T) {
	x := sx.Sym("x")

	cases := []struct {
		name string
		got  *sx.Node
		want *sx.Node
	}{
		{"x+0", sx.Add(x, sx.Zero()), x},
		{"0+x", sx.Add(sx.Zero(), x), x},
		{"x-0", sx.Sub(x, sx.Zero()), x},
		{"x*1", sx.Mul(x, sx.One()), x},
		{"1*x", sx.Mul(sx.One(), x), x},
		{"x/1", sx.Div(x, sx.One()), x},
		{"x^1", sx.Pow(x, sx.One()), x},
		{"--x", sx.Neg(sx.Neg(x)), x},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.Same(t, tc.want, tc.got)
		})
	}
}

func TestCombinators_FoldConstants(t *testing.T) {
	c := sx.Add(sx.Const(2), sx.Const(3))
	require.True(t, c.IsConstant())
	require.Equal(t, 5.0, c.Value())

	z := sx.Mul(sx.Sym("x"), sx.Zero())
	require.True(t, z.IsConstant())
	require.Equal(t, 0.0, z.Value())

	one := sx.Pow(sx.Sym("x"), sx.Zero())
	require.True(t, one.IsConstant())
	require.Equal(t, 1.0, one.Value())
}

func TestCombinators_Structure(t *testing.T) {
	x, y := sx.Sym("x"), sx.Sym("y")
	n := sx.Mul(sx.Add(x, y), x)

	require.Equal(t, sx.OpMul, n.Op())
	require.Equal(t, sx.OpAdd, n.Left().Op())
	require.Same(t, x, n.Right())
	require.Same(t, x, n.Left().Left())
	require.Same(t, y, n.Left().Right())
	require.Equal(t, 2, n.Op().Arity())
	require.Equal(t, 1, sx.OpSin.Arity())
}

func TestSym_DistinctIdentity(t *testing.T) {
	// Binding is by node identity, not by spelling.
	a, b := sx.Sym("x"), sx.Sym("x")
	require.NotSame(t, a, b)
	require.Equal(t, a.Name(), b.Name())
}

func TestString(t *testing.T) {
	x := sx.Sym("x")
	require.Equal(t, "(x+sin(x))", sx.Add(x, sx.Sin(x)).String())
	require.Equal(t, "2", sx.Const(2).String())
}
