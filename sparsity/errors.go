// Package sparsity: sentinel error set.
// All constructors and operations MUST return these sentinels and tests MUST
// check them via errors.Is. No operation panics on user-triggered conditions.

package sparsity

import "errors"

var (
	// ErrInvalidPattern is returned when a pattern description is malformed:
	// negative dimensions, out-of-bounds column indices, non-monotone rowptr,
	// or column indices that are not strictly increasing within a row.
	ErrInvalidPattern = errors.New("sparsity: invalid pattern")

	// ErrDimensionMismatch indicates incompatible dimensions between operands,
	// e.g. Union/Intersect over different shapes, or Product where
	// a.Cols() != b.Rows(), or Reshape to a different element count.
	ErrDimensionMismatch = errors.New("sparsity: dimension mismatch")
)
