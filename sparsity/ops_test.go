// Package sparsity_test: derived-pattern operations. Transpose and Reshape
// must preserve nonzero counts and the strict per-row ordering invariant.
package sparsity_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/onedigit/casadi/sparsity"
)

// mustPattern builds a pattern from triplets or fails the test.
func mustPattern(t *testing.T, rows, cols int, ri, ci []int) *sparsity.Pattern {
	t.Helper()
	p, err := sparsity.FromTriplets(rows, cols, ri, ci)
	require.NoError(t, err)

	return p
}

func TestUnion(t *testing.T) {
	a := mustPattern(t, 2, 3, []int{0, 1}, []int{0, 2})
	b := mustPattern(t, 2, 3, []int{0, 0}, []int{0, 1})

	u, err := sparsity.Union(a, b)
	require.NoError(t, err)
	require.Equal(t, []int{0, 1}, u.Row(0))
	require.Equal(t, []int{2}, u.Row(1))
	require.Equal(t, 3, u.NNZ())

	_, err = sparsity.Union(a, sparsity.Dense(3, 2))
	require.ErrorIs(t, err, sparsity.ErrDimensionMismatch)
}

func TestIntersect(t *testing.T) {
	a := mustPattern(t, 2, 3, []int{0, 0, 1}, []int{0, 2, 1})
	b := mustPattern(t, 2, 3, []int{0, 1, 1}, []int{2, 1, 2})

	n, err := sparsity.Intersect(a, b)
	require.NoError(t, err)
	require.Equal(t, []int{2}, n.Row(0))
	require.Equal(t, []int{1}, n.Row(1))

	_, err = sparsity.Intersect(a, sparsity.Dense(3, 2))
	require.ErrorIs(t, err, sparsity.ErrDimensionMismatch)
}

func TestProduct(t *testing.T) {
	// a (2x3): (0,0),(0,1),(1,2); b (3x2): (0,1),(1,0),(2,1)
	a := mustPattern(t, 2, 3, []int{0, 0, 1}, []int{0, 1, 2})
	b := mustPattern(t, 3, 2, []int{0, 1, 2}, []int{1, 0, 1})

	p, err := sparsity.Product(a, b)
	require.NoError(t, err)
	require.Equal(t, 2, p.Rows())
	require.Equal(t, 2, p.Cols())
	// Row 0 reaches b-rows 0 and 1 → columns {0,1}; row 1 reaches b-row 2 → {1}.
	require.Equal(t, []int{0, 1}, p.Row(0))
	require.Equal(t, []int{1}, p.Row(1))

	_, err = sparsity.Product(a, sparsity.Dense(2, 2))
	require.ErrorIs(t, err, sparsity.ErrDimensionMismatch)
}

func TestProduct_AgainstDense(t *testing.T) {
	// Boolean product of dense patterns is dense.
	p, err := sparsity.Product(sparsity.Dense(3, 4), sparsity.Dense(4, 2))
	require.NoError(t, err)
	require.True(t, p.IsDense())
	require.Equal(t, 3, p.Rows())
	require.Equal(t, 2, p.Cols())
}

func TestTranspose(t *testing.T) {
	p := mustPattern(t, 2, 3, []int{0, 0, 1}, []int{0, 2, 1})
	tr := p.Transpose()
	require.Equal(t, 3, tr.Rows())
	require.Equal(t, 2, tr.Cols())
	require.Equal(t, p.NNZ(), tr.NNZ(), "transpose must preserve nonzero count")
	require.Equal(t, []int{0}, tr.Row(0))
	require.Equal(t, []int{1}, tr.Row(1))
	require.Equal(t, []int{0}, tr.Row(2))

	// Double transpose is the identity.
	require.True(t, p.Equal(tr.Transpose()))
}

func TestReshape(t *testing.T) {
	// 2x3 entries at flat indices 0,2,4 → reshaped 3x2 at (0,0),(1,0),(2,0).
	p := mustPattern(t, 2, 3, []int{0, 0, 1}, []int{0, 2, 1})
	q, err := p.Reshape(3, 2)
	require.NoError(t, err)
	require.Equal(t, p.NNZ(), q.NNZ(), "reshape must preserve nonzero count")
	require.Equal(t, []int{0}, q.Row(0))
	require.Equal(t, []int{0}, q.Row(1))
	require.Equal(t, []int{0}, q.Row(2))

	_, err = p.Reshape(4, 2)
	require.ErrorIs(t, err, sparsity.ErrDimensionMismatch)
}

func TestFlatten(t *testing.T) {
	p := mustPattern(t, 2, 2, []int{0, 1}, []int{1, 0})
	f := p.Flatten()
	require.True(t, f.IsColumn())
	require.Equal(t, 4, f.Rows())
	require.Equal(t, p.NNZ(), f.NNZ())
	// Entry (0,1) → flat 1; entry (1,0) → flat 2.
	_, ok := f.Index(1, 0)
	require.True(t, ok)
	_, ok = f.Index(2, 0)
	require.True(t, ok)
	_, ok = f.Index(0, 0)
	require.False(t, ok)
}

func TestTransposeReshape_InvariantHolds(t *testing.T) {
	// Randomish larger pattern: every derived pattern must still satisfy the
	// constructor invariants, which New re-validates.
	p := mustPattern(t, 4, 5,
		[]int{0, 0, 1, 2, 2, 3, 3, 3},
		[]int{1, 4, 2, 0, 3, 1, 2, 4})

	tr := p.Transpose()
	revalidate(t, tr)
	q, err := p.Reshape(5, 4)
	require.NoError(t, err)
	revalidate(t, q)
	revalidate(t, p.Flatten())
}

// revalidate round-trips a pattern through the validating constructor.
func revalidate(t *testing.T, p *sparsity.Pattern) {
	t.Helper()
	rowptr := make([]int, 0, p.Rows()+1)
	colind := make([]int, 0, p.NNZ())
	rowptr = append(rowptr, 0)
	for i := 0; i < p.Rows(); i++ {
		colind = append(colind, p.Row(i)...)
		rowptr = append(rowptr, len(colind))
	}
	_, err := sparsity.New(p.Rows(), p.Cols(), rowptr, colind)
	require.NoError(t, err)
}
