// Package sparsity: derived-pattern operations (Union, Intersect, Product,
// Transpose, Reshape, Flatten). Every operation returns a new Pattern and
// leaves its operands untouched.

package sparsity

import "fmt"

// Union returns the pattern occupied wherever a or b is occupied.
// Both operands must have identical dimensions (ErrDimensionMismatch).
// Used as the output pattern of non-zero-preserving element-wise operations.
//
// Complexity: O(nnz(a) + nnz(b)) via a per-row two-pointer merge.
func Union(a, b *Pattern) (*Pattern, error) {
	if a.rows != b.rows || a.cols != b.cols {
		return nil, fmt.Errorf("%w: union of %s and %s", ErrDimensionMismatch, a, b)
	}
	p := &Pattern{rows: a.rows, cols: a.cols}
	p.rowptr = make([]int, a.rows+1)
	p.colind = make([]int, 0, len(a.colind)+len(b.colind))
	for i := 0; i < a.rows; i++ {
		ra, rb := a.Row(i), b.Row(i)
		ka, kb := 0, 0
		// Classic sorted-merge: both rows are strictly increasing.
		for ka < len(ra) || kb < len(rb) {
			switch {
			case kb == len(rb) || (ka < len(ra) && ra[ka] < rb[kb]):
				p.colind = append(p.colind, ra[ka])
				ka++
			case ka == len(ra) || rb[kb] < ra[ka]:
				p.colind = append(p.colind, rb[kb])
				kb++
			default: // equal column in both operands
				p.colind = append(p.colind, ra[ka])
				ka++
				kb++
			}
		}
		p.rowptr[i+1] = len(p.colind)
	}

	return p, nil
}

// Intersect returns the pattern occupied only where both a and b are occupied.
// Both operands must have identical dimensions (ErrDimensionMismatch).
// Used as the output pattern of zero-preserving element-wise operations
// (e.g. multiplication: a structural zero in either operand forces a zero).
//
// Complexity: O(nnz(a) + nnz(b)).
func Intersect(a, b *Pattern) (*Pattern, error) {
	if a.rows != b.rows || a.cols != b.cols {
		return nil, fmt.Errorf("%w: intersect of %s and %s", ErrDimensionMismatch, a, b)
	}
	p := &Pattern{rows: a.rows, cols: a.cols}
	p.rowptr = make([]int, a.rows+1)
	p.colind = make([]int, 0, min(len(a.colind), len(b.colind)))
	for i := 0; i < a.rows; i++ {
		ra, rb := a.Row(i), b.Row(i)
		ka, kb := 0, 0
		for ka < len(ra) && kb < len(rb) {
			switch {
			case ra[ka] < rb[kb]:
				ka++
			case rb[kb] < ra[ka]:
				kb++
			default:
				p.colind = append(p.colind, ra[ka])
				ka++
				kb++
			}
		}
		p.rowptr[i+1] = len(p.colind)
	}

	return p, nil
}

// Product returns the Boolean matrix product of a (r×m) and b (m×c): entry
// (i,k) is occupied iff some j has both a(i,j) and b(j,k) occupied. This is
// the output pattern of a structural matrix multiply.
//
// Returns ErrDimensionMismatch if a.Cols() != b.Rows().
//
// Complexity: O(Σ_{a(i,j) occupied} nnz(b row j)) plus a sort-free column mask
// pass per output row; memory O(c) scratch.
func Product(a, b *Pattern) (*Pattern, error) {
	if a.cols != b.rows {
		return nil, fmt.Errorf("%w: product of %s and %s", ErrDimensionMismatch, a, b)
	}
	p := &Pattern{rows: a.rows, cols: b.cols}
	p.rowptr = make([]int, a.rows+1)
	p.colind = make([]int, 0)
	// mark[c] == i+1 means column c already emitted for output row i.
	mark := make([]int, b.cols)
	for i := 0; i < a.rows; i++ {
		rowStart := len(p.colind)
		for _, j := range a.Row(i) {
			for _, c := range b.Row(j) {
				if mark[c] != i+1 {
					mark[c] = i + 1
					p.colind = append(p.colind, c)
				}
			}
		}
		insertionSort(p.colind[rowStart:])
		p.rowptr[i+1] = len(p.colind)
	}

	return p, nil
}

// Transpose returns the cols×rows pattern with every entry (r,c) mapped to
// (c,r), in valid row-major compressed form. The nonzero count is preserved.
//
// Complexity: O(rows + cols + nnz) via a counting pass over the transposed
// rows followed by a scatter pass.
func (p *Pattern) Transpose() *Pattern {
	t := &Pattern{rows: p.cols, cols: p.rows}
	t.rowptr = make([]int, p.cols+1)
	t.colind = make([]int, len(p.colind))
	// 1) Count entries per transposed row (= original column).
	for _, c := range p.colind {
		t.rowptr[c+1]++
	}
	// 2) Prefix-sum into row pointers.
	for i := 0; i < p.cols; i++ {
		t.rowptr[i+1] += t.rowptr[i]
	}
	// 3) Scatter original entries. Walking original rows in increasing order
	//    guarantees strictly increasing columns within each transposed row.
	next := append([]int(nil), t.rowptr[:p.cols]...)
	for i := 0; i < p.rows; i++ {
		for _, c := range p.Row(i) {
			t.colind[next[c]] = i
			next[c]++
		}
	}

	return t
}

// Reshape returns an r×c pattern over the same elements interpreted in
// row-major order: the entry at flat index f = row*Cols()+col moves to
// (f/c, f%c). Element count must be preserved (ErrDimensionMismatch).
// The nonzero count and the row-major nonzero order are preserved.
//
// Complexity: O(rows + nnz).
func (p *Pattern) Reshape(r, c int) (*Pattern, error) {
	if r < 0 || c < 0 || r*c != p.rows*p.cols {
		return nil, fmt.Errorf("%w: reshape %s to %dx%d", ErrDimensionMismatch, p, r, c)
	}
	q := &Pattern{rows: r, cols: c}
	q.rowptr = make([]int, r+1)
	q.colind = make([]int, 0, len(p.colind))
	prev := -1
	for i := 0; i < p.rows; i++ {
		for _, col := range p.Row(i) {
			f := i*p.cols + col // flat indices arrive strictly increasing
			nr := f / c
			for fill := prev + 1; fill <= nr; fill++ {
				q.rowptr[fill] = len(q.colind)
			}
			q.colind = append(q.colind, f%c)
			prev = nr
		}
	}
	for fill := prev + 1; fill <= r; fill++ {
		q.rowptr[fill] = len(q.colind)
	}

	return q, nil
}

// Flatten returns the Numel()×1 column pattern over the same elements in
// row-major order. Shorthand for Reshape(Numel(), 1); never fails.
func (p *Pattern) Flatten() *Pattern {
	q, _ := p.Reshape(p.rows*p.cols, 1) // same numel by construction

	return q
}

// insertionSort orders a short slice in place. Output rows of Product are
// nearly sorted already; insertion sort keeps the pass allocation-free.
func insertionSort(s []int) {
	for i := 1; i < len(s); i++ {
		for j := i; j > 0 && s[j] < s[j-1]; j-- {
			s[j], s[j-1] = s[j-1], s[j]
		}
	}
}
