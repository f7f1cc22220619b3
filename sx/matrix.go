// Package sx: the scalar-level symbolic matrix — a sparsity pattern paired
// with one expression node per structural nonzero.

package sx

import (
	"fmt"

	"github.com/onedigit/casadi/sparsity"
)

// Matrix pairs a sparsity.Pattern with one Node per structural nonzero in
// row-major order. Structural zeros carry no node at all; reading one yields
// a constant zero. Matrices are values: copying the struct shares the pattern
// and the node handles, which is safe because both are immutable.
type Matrix struct {
	sp *sparsity.Pattern
	nz []*Node
}

// NewMatrix pairs a pattern with its nonzero nodes. The node list length must
// equal the pattern's nonzero count (ErrShapeMismatch). The slice is copied.
func NewMatrix(sp *sparsity.Pattern, nz []*Node) (Matrix, error) {
	if len(nz) != sp.NNZ() {
		return Matrix{}, fmt.Errorf("%w: %d nodes for pattern %v", ErrShapeMismatch, len(nz), sp)
	}
	for _, n := range nz {
		if n == nil {
			return Matrix{}, fmt.Errorf("%w: nil node", ErrShapeMismatch)
		}
	}

	return Matrix{sp: sp, nz: append([]*Node(nil), nz...)}, nil
}

// SymMatrix creates a matrix of fresh symbols over the given pattern, one per
// structural nonzero, named name_0, name_1, ... (just name when nnz==1).
func SymMatrix(name string, sp *sparsity.Pattern) Matrix {
	nz := make([]*Node, sp.NNZ())
	for k := range nz {
		if sp.NNZ() == 1 {
			nz[k] = Sym(name)

			continue
		}
		nz[k] = Sym(fmt.Sprintf("%s_%d", name, k))
	}

	return Matrix{sp: sp, nz: nz}
}

// DenseSymMatrix creates a dense rows×cols matrix of fresh symbols.
func DenseSymMatrix(name string, rows, cols int) Matrix {
	return SymMatrix(name, sparsity.Dense(rows, cols))
}

// ScalarMatrix wraps a single node as a dense 1×1 matrix.
func ScalarMatrix(n *Node) Matrix {
	return Matrix{sp: sparsity.Scalar(), nz: []*Node{n}}
}

// ConstMatrix pairs a pattern with constant nodes built from vals, which must
// have one entry per structural nonzero.
func ConstMatrix(sp *sparsity.Pattern, vals []float64) (Matrix, error) {
	if len(vals) != sp.NNZ() {
		return Matrix{}, fmt.Errorf("%w: %d values for pattern %v", ErrShapeMismatch, len(vals), sp)
	}
	nz := make([]*Node, len(vals))
	for k, v := range vals {
		nz[k] = Const(v)
	}

	return Matrix{sp: sp, nz: nz}, nil
}

// Sparsity returns the matrix's pattern.
func (m Matrix) Sparsity() *sparsity.Pattern { return m.sp }

// NNZ returns the structural nonzero count.
func (m Matrix) NNZ() int { return len(m.nz) }

// Nonzeros returns the nonzero nodes in row-major order. The returned slice
// aliases the matrix and must not be modified.
func (m Matrix) Nonzeros() []*Node { return m.nz }

// Nz returns the k-th nonzero node.
func (m Matrix) Nz(k int) *Node { return m.nz[k] }

// At returns the entry at (r,c): the stored node for a structural nonzero, a
// fresh constant zero for a structural zero, ErrOutOfRange outside the matrix.
func (m Matrix) At(r, c int) (*Node, error) {
	if r < 0 || r >= m.sp.Rows() || c < 0 || c >= m.sp.Cols() {
		return nil, fmt.Errorf("%w: (%d,%d) in %v", ErrOutOfRange, r, c, m.sp)
	}
	if k, ok := m.sp.Index(r, c); ok {
		return m.nz[k], nil
	}

	return Zero(), nil
}

// Transpose returns the transposed matrix; nodes are shared, only their
// layout changes. Complexity: O(nnz log nnz(row)).
func (m Matrix) Transpose() Matrix {
	tp := m.sp.Transpose()
	nz := make([]*Node, len(m.nz))
	k := 0
	for i := 0; i < tp.Rows(); i++ {
		for _, j := range tp.Row(i) {
			src, _ := m.sp.Index(j, i) // present by construction of the transpose
			nz[k] = m.nz[src]
			k++
		}
	}

	return Matrix{sp: tp, nz: nz}
}

// Reshape returns the same nonzeros over an r×c pattern in row-major order.
func (m Matrix) Reshape(r, c int) (Matrix, error) {
	sp, err := m.sp.Reshape(r, c)
	if err != nil {
		return Matrix{}, fmt.Errorf("%w: reshape to %dx%d", ErrShapeMismatch, r, c)
	}

	// Row-major nonzero order survives a reshape, so nodes keep their offsets.
	return Matrix{sp: sp, nz: m.nz}, nil
}

// Flatten returns the numel×1 column view of the matrix.
func (m Matrix) Flatten() Matrix {
	return Matrix{sp: m.sp.Flatten(), nz: m.nz}
}

// Vertcat stacks matrices on top of each other; column counts must agree.
func Vertcat(ms ...Matrix) (Matrix, error) {
	ps := make([]*sparsity.Pattern, len(ms))
	total := 0
	for i, m := range ms {
		ps[i] = m.sp
		total += len(m.nz)
	}
	sp, err := sparsity.Vertcat(ps...)
	if err != nil {
		return Matrix{}, fmt.Errorf("%w: vertcat", ErrShapeMismatch)
	}
	nz := make([]*Node, 0, total)
	for _, m := range ms {
		nz = append(nz, m.nz...)
	}

	return Matrix{sp: sp, nz: nz}, nil
}
