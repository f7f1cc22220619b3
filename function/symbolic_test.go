// Package function_test: symbolic evaluation, expansion to scalar form and
// embedding one function inside another's matrix graph.
package function_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/onedigit/casadi/function"
	"github.com/onedigit/casadi/mx"
	"github.com/onedigit/casadi/sparsity"
	"github.com/onedigit/casadi/sx"
)

func TestEvalSymbolicSX_Reproduces(t *testing.T) {
	// Substituting fresh symbols and rebuilding a function from the results
	// must reproduce outputs and both sensitivities exactly.
	fn := buildVector(t)
	y := sx.DenseSymMatrix("y", 4, 1)
	e0, err := sx.ConstMatrix(sparsity.Dense(4, 1), []float64{1, 0, 0, 0})
	require.NoError(t, err)
	e3, err := sx.ConstMatrix(sparsity.Dense(4, 1), []float64{0, 0, 0, 1})
	require.NoError(t, err)

	outs, fsens, asens, err := fn.EvalSymbolicSX(
		[]sx.Matrix{y},
		[][]sx.Matrix{{e0}},
		[][]sx.Matrix{{e3}},
	)
	require.NoError(t, err)
	require.Len(t, outs, 1)

	re, err := function.New("re", []sx.Matrix{y}, []sx.Matrix{outs[0], fsens[0][0], asens[0][0]})
	require.NoError(t, err)
	require.NoError(t, re.Finalize())
	require.NoError(t, re.SetInput(0, point))
	require.NoError(t, re.Evaluate(0, 0))

	require.InDelta(t, 11.78, re.Output(0)[1], 1e-12)
	require.InDelta(t, 7228.534, re.Output(0)[2], 1e-9)
	require.InDeltaSlice(t, []float64{1, 1, 1, 0}, re.Output(1), 1e-12)
	require.InDeltaSlice(t, []float64{0, 0, 0, 1}, re.Output(2), 1e-12)
}

func TestEvalSymbolicSX_Validation(t *testing.T) {
	fn := buildVector(t)
	_, _, _, err := fn.EvalSymbolicSX([]sx.Matrix{sx.DenseSymMatrix("y", 2, 1)}, nil, nil)
	require.ErrorIs(t, err, function.ErrShapeMismatch)

	mxfn := buildQuadraticMX(t)
	_, _, _, err = mxfn.EvalSymbolicSX([]sx.Matrix{sx.DenseSymMatrix("y", 2, 1)}, nil, nil)
	require.ErrorIs(t, err, function.ErrUnsupportedDifferentiation)
}

func TestEvalSymbolicMX_Reproduces(t *testing.T) {
	fn := buildQuadraticMX(t)
	y := mx.DenseSym("y", 2, 1)
	e0, err := mx.DenseConst(2, 1, []float64{1, 0})
	require.NoError(t, err)

	outs, fsens, _, err := fn.EvalSymbolicMX([]*mx.Node{y}, [][]*mx.Node{{e0}}, nil)
	require.NoError(t, err)

	re, err := function.NewMX("re", []*mx.Node{y}, []*mx.Node{outs[0], fsens[0][0]})
	require.NoError(t, err)
	require.NoError(t, re.Finalize())
	require.NoError(t, re.SetInput(0, []float64{5, 7}))
	require.NoError(t, re.Evaluate(0, 0))

	require.InDelta(t, 396, re.Output(0)[0], 1e-12)
	require.InDelta(t, 45, re.Output(1)[0], 1e-12)
}

func TestExpand_RoundTrip(t *testing.T) {
	mxfn := buildQuadraticMX(t)
	ex, err := mxfn.Expand()
	require.NoError(t, err)
	require.NotSame(t, mxfn, ex)

	for _, fn := range []*function.Function{mxfn, ex} {
		require.NoError(t, fn.SetInput(0, []float64{5, 7}))
		require.NoError(t, fn.SetForwardSeed(0, 0, []float64{1, 0}))
		require.NoError(t, fn.Evaluate(1, 0))
		require.InDelta(t, 396, fn.Output(0)[0], 1e-12)
		require.InDelta(t, 45, fn.ForwardSens(0, 0)[0], 1e-12)
	}

	// Expanding a scalar-backed function is the identity.
	again, err := ex.Expand()
	require.NoError(t, err)
	require.Same(t, ex, again)
}

// buildDoubler is the inner function g(u) = 2·u over a dense 2-vector.
func buildDoubler(t *testing.T) *function.Function {
	t.Helper()
	u := sx.DenseSymMatrix("u", 2, 1)
	out, err := sx.NewMatrix(sparsity.Dense(2, 1), []*sx.Node{
		sx.Mul(sx.Const(2), u.Nz(0)),
		sx.Mul(sx.Const(2), u.Nz(1)),
	})
	require.NoError(t, err)
	g, err := function.New("double", []sx.Matrix{u}, []sx.Matrix{out})
	require.NoError(t, err)
	require.NoError(t, g.Finalize())

	return g
}

func TestCallee_Embedding(t *testing.T) {
	// h(y) = ‖g(y)‖² = 4·(y0²+y1²) with g embedded as a call node.
	g := buildDoubler(t)
	y := mx.DenseSym("y", 2, 1)
	gout, err := mx.Call(g, y)
	require.NoError(t, err)
	h, err := mx.Dot(gout[0], gout[0])
	require.NoError(t, err)
	outer, err := function.NewMX("h", []*mx.Node{y}, []*mx.Node{h})
	require.NoError(t, err)
	require.NoError(t, outer.Finalize())

	require.NoError(t, outer.SetInput(0, []float64{3, 4}))
	require.NoError(t, outer.SetForwardSeed(0, 0, []float64{1, 0}))
	require.NoError(t, outer.SetAdjointSeed(0, 0, []float64{1}))
	require.NoError(t, outer.Evaluate(1, 1))
	require.InDelta(t, 100, outer.Output(0)[0], 1e-12)
	require.InDelta(t, 24, outer.ForwardSens(0, 0)[0], 1e-12, "∂h/∂y0 = 8·y0")
	require.InDeltaSlice(t, []float64{24, 32}, outer.AdjointSens(0, 0), 1e-12)

	// Structural dependencies flow through the call site.
	jsp, err := outer.JacSparsity(0, 0)
	require.NoError(t, err)
	require.Equal(t, 2, jsp.NNZ())

	// Symbolic seeding cannot reach through the call node.
	_, err = outer.Jacobian(0, 0)
	require.ErrorIs(t, err, function.ErrUnsupportedDifferentiation)

	// Expansion lowers the call through the callee, restoring every
	// derivative path.
	ex, err := outer.Expand()
	require.NoError(t, err)
	jac, err := ex.Jacobian(0, 0)
	require.NoError(t, err)
	entry := jacEntries(t, jac, []float64{3, 4})
	require.InDelta(t, 24, entry(0, 0), 1e-12)
	require.InDelta(t, 32, entry(0, 1), 1e-12)
}

func TestCallee_NumericInterface(t *testing.T) {
	g := buildDoubler(t)
	res, fsens, asens, err := g.CallNumeric(
		[][]float64{{5, 7}},
		[][][]float64{{{1, 0}}},
		[][][]float64{{{0, 1}}},
	)
	require.NoError(t, err)
	require.InDeltaSlice(t, []float64{10, 14}, res[0], 1e-12)
	require.InDeltaSlice(t, []float64{2, 0}, fsens[0][0], 1e-12)
	require.InDeltaSlice(t, []float64{0, 2}, asens[0][0], 1e-12)

	_, _, _, err = g.CallNumeric([][]float64{{5}}, nil, nil)
	require.ErrorIs(t, err, function.ErrShapeMismatch)

	dep, err := g.CallDepend([][]uint64{{1, 2}}, 1)
	require.NoError(t, err)
	require.Equal(t, []uint64{1, 2}, dep[0], "entrywise doubling keeps the bits apart")
}
