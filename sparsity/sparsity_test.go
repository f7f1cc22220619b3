// Package sparsity_test validates pattern construction invariants, equality
// semantics and the shape queries used by broadcasting rules.
package sparsity_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/onedigit/casadi/sparsity"
)

func TestNew_Valid(t *testing.T) {
	// 3x4 pattern:
	//   row 0: cols 0,2
	//   row 1: (empty)
	//   row 2: cols 1,2,3
	p, err := sparsity.New(3, 4, []int{0, 2, 2, 5}, []int{0, 2, 1, 2, 3})
	require.NoError(t, err)
	require.Equal(t, 3, p.Rows())
	require.Equal(t, 4, p.Cols())
	require.Equal(t, 5, p.NNZ())
	require.Equal(t, 12, p.Numel())
	require.Equal(t, []int{0, 2}, p.Row(0))
	require.Empty(t, p.Row(1))
	require.Equal(t, []int{1, 2, 3}, p.Row(2))
}

func TestNew_Invalid(t *testing.T) {
	cases := []struct {
		name         string
		rows, cols   int
		rowptr, cols2 []int
	}{
		{"negative dims", -1, 2, []int{0}, nil},
		{"short rowptr", 2, 2, []int{0, 1}, []int{0}},
		{"rowptr not zero-based", 1, 2, []int{1, 1}, nil},
		{"rowptr decreasing", 2, 2, []int{0, 2, 1}, []int{0, 1}},
		{"rowptr tail mismatch", 1, 2, []int{0, 2}, []int{0}},
		{"column out of range", 1, 2, []int{0, 1}, []int{2}},
		{"columns not increasing", 1, 3, []int{0, 2}, []int{1, 1}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := sparsity.New(tc.rows, tc.cols, tc.rowptr, tc.cols2)
			require.ErrorIs(t, err, sparsity.ErrInvalidPattern)
		})
	}
}

func TestNew_CopiesInput(t *testing.T) {
	rowptr := []int{0, 1}
	colind := []int{1}
	p, err := sparsity.New(1, 2, rowptr, colind)
	require.NoError(t, err)
	// Mutating the caller's slices must not affect the pattern.
	colind[0] = 0
	require.Equal(t, []int{1}, p.Row(0))
}

func TestDenseEmptyDiagScalar(t *testing.T) {
	d := sparsity.Dense(2, 3)
	require.Equal(t, 6, d.NNZ())
	require.True(t, d.IsDense())

	e := sparsity.Empty(2, 3)
	require.Equal(t, 0, e.NNZ())
	require.True(t, e.IsEmpty())

	s := sparsity.Scalar()
	require.True(t, s.IsScalar())
	require.True(t, s.IsRow())
	require.True(t, s.IsColumn())

	g := sparsity.Diag(3)
	require.Equal(t, 3, g.NNZ())
	for i := 0; i < 3; i++ {
		k, ok := g.Index(i, i)
		require.True(t, ok)
		require.Equal(t, i, k)
	}
	_, ok := g.Index(0, 1)
	require.False(t, ok)
}

func TestFromTriplets(t *testing.T) {
	// Unordered coordinates must sort into row-major compressed form.
	p, err := sparsity.FromTriplets(3, 3, []int{2, 0, 2, 1}, []int{1, 2, 0, 1})
	require.NoError(t, err)
	require.Equal(t, []int{2}, p.Row(0))
	require.Equal(t, []int{1}, p.Row(1))
	require.Equal(t, []int{0, 1}, p.Row(2))

	_, err = sparsity.FromTriplets(2, 2, []int{0, 0}, []int{1, 1})
	require.ErrorIs(t, err, sparsity.ErrInvalidPattern)

	_, err = sparsity.FromTriplets(2, 2, []int{2}, []int{0})
	require.ErrorIs(t, err, sparsity.ErrInvalidPattern)
}

func TestIndex(t *testing.T) {
	p, err := sparsity.New(2, 4, []int{0, 2, 3}, []int{1, 3, 0})
	require.NoError(t, err)

	k, ok := p.Index(0, 3)
	require.True(t, ok)
	require.Equal(t, 1, k)

	k, ok = p.Index(1, 0)
	require.True(t, ok)
	require.Equal(t, 2, k)

	_, ok = p.Index(0, 0) // structural zero
	require.False(t, ok)
	_, ok = p.Index(5, 0) // out of bounds
	require.False(t, ok)
}

func TestEqual(t *testing.T) {
	a, err := sparsity.New(2, 2, []int{0, 1, 2}, []int{0, 1})
	require.NoError(t, err)
	b, err := sparsity.New(2, 2, []int{0, 1, 2}, []int{0, 1})
	require.NoError(t, err)
	c, err := sparsity.New(2, 2, []int{0, 1, 2}, []int{1, 1})
	require.NoError(t, err)

	require.True(t, a.Equal(b))
	require.True(t, b.Equal(a))
	require.False(t, a.Equal(c))
	require.False(t, a.Equal(sparsity.Dense(2, 2)))
	require.False(t, a.Equal(sparsity.Empty(2, 2)))
}

func TestTriplets(t *testing.T) {
	p, err := sparsity.New(3, 3, []int{0, 1, 1, 3}, []int{2, 0, 2})
	require.NoError(t, err)
	ri, ci := p.Triplets()
	require.Equal(t, []int{0, 2, 2}, ri)
	require.Equal(t, []int{2, 0, 2}, ci)
}
