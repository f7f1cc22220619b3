// Package sx_test: scalar-level symbolic matrices.
package sx_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/onedigit/casadi/sparsity"
	"github.com/onedigit/casadi/sx"
)

func TestSymMatrix(t *testing.T) {
	sp, err := sparsity.FromTriplets(3, 1, []int{0, 2}, []int{0, 0})
	require.NoError(t, err)

	m := sx.SymMatrix("v", sp)
	require.Equal(t, 2, m.NNZ())
	require.Equal(t, "v_0", m.Nz(0).Name())
	require.Equal(t, "v_1", m.Nz(1).Name())

	s := sx.SymMatrix("w", sparsity.Scalar())
	require.Equal(t, "w", s.Nz(0).Name(), "single nonzero keeps the bare name")
}

func TestNewMatrix_Validation(t *testing.T) {
	_, err := sx.NewMatrix(sparsity.Dense(2, 2), []*sx.Node{sx.Zero()})
	require.ErrorIs(t, err, sx.ErrShapeMismatch)

	_, err = sx.NewMatrix(sparsity.Dense(1, 2), []*sx.Node{sx.Zero(), nil})
	require.ErrorIs(t, err, sx.ErrShapeMismatch)
}

func TestMatrix_At(t *testing.T) {
	sp, err := sparsity.FromTriplets(2, 2, []int{0, 1}, []int{1, 0})
	require.NoError(t, err)
	x, y := sx.Sym("x"), sx.Sym("y")
	m, err := sx.NewMatrix(sp, []*sx.Node{x, y})
	require.NoError(t, err)

	n, err := m.At(0, 1)
	require.NoError(t, err)
	require.Same(t, x, n)

	n, err = m.At(0, 0) // structural zero reads as constant 0
	require.NoError(t, err)
	require.True(t, n.IsConstant())
	require.Equal(t, 0.0, n.Value())

	_, err = m.At(2, 0)
	require.ErrorIs(t, err, sx.ErrOutOfRange)
}

func TestMatrix_TransposeReshape(t *testing.T) {
	// 2x3 with entries at (0,0)=a, (0,2)=b, (1,1)=c.
	sp, err := sparsity.FromTriplets(2, 3, []int{0, 0, 1}, []int{0, 2, 1})
	require.NoError(t, err)
	a, b, c := sx.Sym("a"), sx.Sym("b"), sx.Sym("c")
	m, err := sx.NewMatrix(sp, []*sx.Node{a, b, c})
	require.NoError(t, err)

	tr := m.Transpose()
	require.Equal(t, 3, tr.Sparsity().Rows())
	got, err := tr.At(2, 0)
	require.NoError(t, err)
	require.Same(t, b, got)
	got, err = tr.At(1, 1)
	require.NoError(t, err)
	require.Same(t, c, got)

	// Flat indices 0,2,4 → reshape 3x2 puts them at (0,0),(1,0),(2,0).
	rs, err := m.Reshape(3, 2)
	require.NoError(t, err)
	got, err = rs.At(1, 0)
	require.NoError(t, err)
	require.Same(t, b, got)

	_, err = m.Reshape(4, 2)
	require.ErrorIs(t, err, sx.ErrShapeMismatch)

	fl := m.Flatten()
	require.True(t, fl.Sparsity().IsColumn())
	require.Equal(t, 3, fl.NNZ())
}

func TestMatrix_Vertcat(t *testing.T) {
	x, y := sx.Sym("x"), sx.Sym("y")
	top := sx.ScalarMatrix(x)
	bottom := sx.ScalarMatrix(y)

	m, err := sx.Vertcat(top, bottom)
	require.NoError(t, err)
	require.Equal(t, 2, m.Sparsity().Rows())
	require.Same(t, x, m.Nz(0))
	require.Same(t, y, m.Nz(1))

	_, err = sx.Vertcat(top, sx.DenseSymMatrix("z", 1, 2))
	require.ErrorIs(t, err, sx.ErrShapeMismatch)
}

func TestConstMatrix(t *testing.T) {
	m, err := sx.ConstMatrix(sparsity.Dense(1, 2), []float64{1.5, -2})
	require.NoError(t, err)
	require.Equal(t, 1.5, m.Nz(0).Value())

	_, err = sx.ConstMatrix(sparsity.Dense(1, 2), []float64{1})
	require.ErrorIs(t, err, sx.ErrShapeMismatch)
}
