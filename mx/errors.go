// Package mx: sentinel error set. Matched via errors.Is by callers and tests.

package mx

import "errors"

var (
	// ErrShapeMismatch indicates operands with incompatible shapes or
	// patterns, or a value list that disagrees with a declared pattern.
	ErrShapeMismatch = errors.New("mx: shape mismatch")

	// ErrOutOfRange indicates an index list reaching outside the matrix.
	ErrOutOfRange = errors.New("mx: index out of range")

	// ErrUnboundSymbol indicates that evaluation reached an input placeholder
	// the caller provided no binding for.
	ErrUnboundSymbol = errors.New("mx: unbound symbol")

	// ErrUnsupportedDifferentiation indicates a node kind without a
	// differentiation rule in the requested mode (currently: symbolic seeding
	// through a Call node). Numeric propagation and expansion remain available.
	ErrUnsupportedDifferentiation = errors.New("mx: unsupported differentiation")

	// ErrCycle is returned by NewTape if a back edge is encountered.
	// Combinator construction makes cycles structurally impossible; the check
	// protects the finalize contract against hand-assembled nodes.
	ErrCycle = errors.New("mx: cycle detected in expression graph")
)
