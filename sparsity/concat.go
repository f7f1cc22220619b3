// Package sparsity: concatenation and submatrix patterns. These feed the
// matrix-expression layer, which routes values and derivative seeds along the
// nonzero mappings implied by the shapes produced here.

package sparsity

import "fmt"

// Vertcat returns the pattern of stacking the operands on top of each other.
// All operands must share a column count (ErrDimensionMismatch). The row-major
// nonzero order of the result is the concatenation of the operands' orders.
//
// Complexity: O(Σ rows + Σ nnz).
func Vertcat(ps ...*Pattern) (*Pattern, error) {
	if len(ps) == 0 {
		return nil, fmt.Errorf("%w: vertcat of nothing", ErrDimensionMismatch)
	}
	cols := ps[0].cols
	rows, nnz := 0, 0
	for _, p := range ps {
		if p.cols != cols {
			return nil, fmt.Errorf("%w: vertcat %s with %d columns", ErrDimensionMismatch, p, cols)
		}
		rows += p.rows
		nnz += len(p.colind)
	}
	out := &Pattern{rows: rows, cols: cols}
	out.rowptr = make([]int, 1, rows+1)
	out.colind = make([]int, 0, nnz)
	for _, p := range ps {
		for i := 0; i < p.rows; i++ {
			out.colind = append(out.colind, p.Row(i)...)
			out.rowptr = append(out.rowptr, len(out.colind))
		}
	}

	return out, nil
}

// Horzcat returns the pattern of placing the operands side by side.
// All operands must share a row count (ErrDimensionMismatch). Within each
// result row, the operands' entries appear left to right with shifted columns.
//
// Complexity: O(Σ rows + Σ nnz).
func Horzcat(ps ...*Pattern) (*Pattern, error) {
	if len(ps) == 0 {
		return nil, fmt.Errorf("%w: horzcat of nothing", ErrDimensionMismatch)
	}
	rows := ps[0].rows
	cols, nnz := 0, 0
	for _, p := range ps {
		if p.rows != rows {
			return nil, fmt.Errorf("%w: horzcat %s with %d rows", ErrDimensionMismatch, p, rows)
		}
		cols += p.cols
		nnz += len(p.colind)
	}
	out := &Pattern{rows: rows, cols: cols}
	out.rowptr = make([]int, 1, rows+1)
	out.colind = make([]int, 0, nnz)
	for i := 0; i < rows; i++ {
		shift := 0
		for _, p := range ps {
			for _, c := range p.Row(i) {
				out.colind = append(out.colind, c+shift)
			}
			shift += p.cols
		}
		out.rowptr = append(out.rowptr, len(out.colind))
	}

	return out, nil
}

// Sub returns the pattern of the submatrix p(rows, cols) together with, for
// each nonzero of the result, the nonzero offset in p it reads from. Repeated
// indices are permitted (a read may duplicate entries).
//
// Returns ErrDimensionMismatch if any index is out of bounds.
//
// Complexity: O(len(rows)*len(cols)*log nnz(row)).
func (p *Pattern) Sub(rows, cols []int) (*Pattern, []int, error) {
	for _, r := range rows {
		if r < 0 || r >= p.rows {
			return nil, nil, fmt.Errorf("%w: row index %d out of %s", ErrDimensionMismatch, r, p)
		}
	}
	for _, c := range cols {
		if c < 0 || c >= p.cols {
			return nil, nil, fmt.Errorf("%w: column index %d out of %s", ErrDimensionMismatch, c, p)
		}
	}
	out := &Pattern{rows: len(rows), cols: len(cols)}
	out.rowptr = make([]int, 1, len(rows)+1)
	out.colind = make([]int, 0)
	src := make([]int, 0)
	for _, r := range rows {
		for j, c := range cols {
			if k, ok := p.Index(r, c); ok {
				out.colind = append(out.colind, j)
				src = append(src, k)
			}
		}
		out.rowptr = append(out.rowptr, len(out.colind))
	}

	return out, src, nil
}
