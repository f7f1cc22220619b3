// Package sx: sentinel error set. Matched via errors.Is by callers and tests.

package sx

import "errors"

var (
	// ErrShapeMismatch indicates that a value list disagrees with the declared
	// sparsity pattern, or that matrix operands have incompatible shapes.
	ErrShapeMismatch = errors.New("sx: shape mismatch")

	// ErrOutOfRange indicates an entry or nonzero index outside the matrix.
	ErrOutOfRange = errors.New("sx: index out of range")

	// ErrUnboundSymbol indicates that evaluation reached a symbol the caller
	// provided no binding for.
	ErrUnboundSymbol = errors.New("sx: unbound symbol")
)
