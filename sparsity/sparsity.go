// Package sparsity: Pattern type, validating constructors and read-only queries.

package sparsity

import (
	"fmt"
	"sort"
)

// Pattern is an immutable row-major compressed description of the structurally
// nonzero entries of a rows×cols matrix. The zero value is not a valid Pattern;
// use New or one of the shortcut constructors.
type Pattern struct {
	rows, cols int
	rowptr     []int // len rows+1, non-decreasing, rowptr[0]==0
	colind     []int // len nnz, strictly increasing within each row
}

// New builds a Pattern from explicit compressed row storage and validates every
// invariant. The slices are copied; the caller keeps ownership of its arguments.
//
// Returns ErrInvalidPattern if:
//   - rows < 0 or cols < 0,
//   - len(rowptr) != rows+1, rowptr[0] != 0 or rowptr is decreasing,
//   - rowptr[rows] != len(colind),
//   - any column index is out of [0, cols),
//   - column indices within a row are not strictly increasing.
//
// Complexity: O(nnz).
func New(rows, cols int, rowptr, colind []int) (*Pattern, error) {
	// 1) Dimension sanity.
	if rows < 0 || cols < 0 {
		return nil, fmt.Errorf("%w: negative dimensions %dx%d", ErrInvalidPattern, rows, cols)
	}
	// 2) Row pointer shape.
	if len(rowptr) != rows+1 {
		return nil, fmt.Errorf("%w: rowptr length %d, want %d", ErrInvalidPattern, len(rowptr), rows+1)
	}
	if rowptr[0] != 0 {
		return nil, fmt.Errorf("%w: rowptr[0] = %d", ErrInvalidPattern, rowptr[0])
	}
	if rowptr[rows] != len(colind) {
		return nil, fmt.Errorf("%w: rowptr[rows] = %d, want %d", ErrInvalidPattern, rowptr[rows], len(colind))
	}
	// 3) Per-row monotonicity and bounds.
	var i, k int
	for i = 0; i < rows; i++ {
		if rowptr[i+1] < rowptr[i] {
			return nil, fmt.Errorf("%w: rowptr decreases at row %d", ErrInvalidPattern, i)
		}
		for k = rowptr[i]; k < rowptr[i+1]; k++ {
			if colind[k] < 0 || colind[k] >= cols {
				return nil, fmt.Errorf("%w: column %d out of range at row %d", ErrInvalidPattern, colind[k], i)
			}
			if k > rowptr[i] && colind[k] <= colind[k-1] {
				return nil, fmt.Errorf("%w: columns not strictly increasing in row %d", ErrInvalidPattern, i)
			}
		}
	}
	// 4) Copy into an immutable value.
	p := &Pattern{rows: rows, cols: cols}
	p.rowptr = append([]int(nil), rowptr...)
	p.colind = append([]int(nil), colind...)

	return p, nil
}

// Dense returns the all-occupied rows×cols pattern.
// Complexity: O(rows*cols).
func Dense(rows, cols int) *Pattern {
	p := &Pattern{rows: rows, cols: cols}
	p.rowptr = make([]int, rows+1)
	p.colind = make([]int, 0, rows*cols)
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			p.colind = append(p.colind, j)
		}
		p.rowptr[i+1] = len(p.colind)
	}

	return p
}

// Empty returns the rows×cols pattern with no structural nonzeros.
// Complexity: O(rows).
func Empty(rows, cols int) *Pattern {
	return &Pattern{rows: rows, cols: cols, rowptr: make([]int, rows+1)}
}

// Scalar returns the dense 1×1 pattern.
func Scalar() *Pattern { return Dense(1, 1) }

// Diag returns the n×n pattern occupied exactly on the main diagonal.
// Complexity: O(n).
func Diag(n int) *Pattern {
	p := &Pattern{rows: n, cols: n}
	p.rowptr = make([]int, n+1)
	p.colind = make([]int, n)
	for i := 0; i < n; i++ {
		p.colind[i] = i
		p.rowptr[i+1] = i + 1
	}

	return p
}

// FromTriplets builds a Pattern from unordered coordinate lists ri/ci of equal
// length. Entries are sorted into row-major order; a duplicate coordinate or an
// out-of-bounds index yields ErrInvalidPattern.
//
// Complexity: O(nnz log nnz).
func FromTriplets(rows, cols int, ri, ci []int) (*Pattern, error) {
	if len(ri) != len(ci) {
		return nil, fmt.Errorf("%w: triplet lists of different length", ErrInvalidPattern)
	}
	// 1) Sort coordinate order row-major without mutating the caller's slices.
	order := make([]int, len(ri))
	for k := range order {
		order[k] = k
	}
	sort.Slice(order, func(a, b int) bool {
		ka, kb := order[a], order[b]
		if ri[ka] != ri[kb] {
			return ri[ka] < ri[kb]
		}

		return ci[ka] < ci[kb]
	})
	// 2) Emit compressed storage, rejecting duplicates on the fly.
	rowptr := make([]int, rows+1)
	colind := make([]int, 0, len(ri))
	prevR, prevC := -1, -1
	for _, k := range order {
		r, c := ri[k], ci[k]
		if r < 0 || r >= rows || c < 0 || c >= cols {
			return nil, fmt.Errorf("%w: entry (%d,%d) out of %dx%d", ErrInvalidPattern, r, c, rows, cols)
		}
		if r == prevR && c == prevC {
			return nil, fmt.Errorf("%w: duplicate entry (%d,%d)", ErrInvalidPattern, r, c)
		}
		for fill := prevR + 1; fill <= r; fill++ {
			rowptr[fill] = len(colind)
		}
		colind = append(colind, c)
		prevR, prevC = r, c
	}
	for fill := prevR + 1; fill <= rows; fill++ {
		rowptr[fill] = len(colind)
	}

	return &Pattern{rows: rows, cols: cols, rowptr: rowptr, colind: colind}, nil
}

// Rows returns the row count. Complexity: O(1).
func (p *Pattern) Rows() int { return p.rows }

// Cols returns the column count. Complexity: O(1).
func (p *Pattern) Cols() int { return p.cols }

// NNZ returns the structural nonzero count. Complexity: O(1).
func (p *Pattern) NNZ() int { return len(p.colind) }

// Numel returns rows*cols. Complexity: O(1).
func (p *Pattern) Numel() int { return p.rows * p.cols }

// IsScalar reports whether the pattern describes a 1×1 matrix.
func (p *Pattern) IsScalar() bool { return p.rows == 1 && p.cols == 1 }

// IsRow reports whether the pattern describes a single-row matrix.
func (p *Pattern) IsRow() bool { return p.rows == 1 }

// IsColumn reports whether the pattern describes a single-column matrix.
func (p *Pattern) IsColumn() bool { return p.cols == 1 }

// IsDense reports whether every entry is structurally nonzero.
func (p *Pattern) IsDense() bool { return len(p.colind) == p.rows*p.cols }

// IsEmpty reports whether no entry is structurally nonzero.
func (p *Pattern) IsEmpty() bool { return len(p.colind) == 0 }

// Row returns the occupied column indices of row i.
// The returned slice aliases internal storage and must not be modified.
// Complexity: O(1).
func (p *Pattern) Row(i int) []int { return p.colind[p.rowptr[i]:p.rowptr[i+1]] }

// RowStart returns the nonzero offset at which row i begins. Complexity: O(1).
func (p *Pattern) RowStart(i int) int { return p.rowptr[i] }

// Index returns the nonzero offset of entry (r,c) and true, or 0 and false if
// the entry is a structural zero or out of bounds.
// Complexity: O(log nnz(row)).
func (p *Pattern) Index(r, c int) (int, bool) {
	if r < 0 || r >= p.rows || c < 0 || c >= p.cols {
		return 0, false
	}
	lo, hi := p.rowptr[r], p.rowptr[r+1]
	k := lo + sort.SearchInts(p.colind[lo:hi], c)
	if k < hi && p.colind[k] == c {
		return k, true
	}

	return 0, false
}

// Triplets returns freshly allocated row/column coordinate lists in row-major
// nonzero order. Complexity: O(nnz).
func (p *Pattern) Triplets() (ri, ci []int) {
	ri = make([]int, len(p.colind))
	ci = make([]int, len(p.colind))
	k := 0
	for i := 0; i < p.rows; i++ {
		for range p.Row(i) {
			ri[k] = i
			k++
		}
	}
	copy(ci, p.colind)

	return ri, ci
}

// Equal reports structural equality: same dimensions and same occupied set.
// Complexity: O(nnz).
func (p *Pattern) Equal(q *Pattern) bool {
	if p == q {
		return true
	}
	if p.rows != q.rows || p.cols != q.cols || len(p.colind) != len(q.colind) {
		return false
	}
	for i := range p.rowptr {
		if p.rowptr[i] != q.rowptr[i] {
			return false
		}
	}
	for k := range p.colind {
		if p.colind[k] != q.colind[k] {
			return false
		}
	}

	return true
}

// String renders the pattern as "rxc, nnz=n" for diagnostics.
func (p *Pattern) String() string {
	return fmt.Sprintf("%dx%d, nnz=%d", p.rows, p.cols, len(p.colind))
}
