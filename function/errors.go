// Package function: sentinel error set. Matched via errors.Is by callers and
// tests.

package function

import "errors"

var (
	// ErrShapeMismatch indicates an index, length or pattern that disagrees
	// with the function's declared signature.
	ErrShapeMismatch = errors.New("function: shape mismatch")

	// ErrCyclicGraph indicates that finalization found a back edge in the
	// output graph. Combinator-built graphs cannot cycle; the check protects
	// the lifecycle contract.
	ErrCyclicGraph = errors.New("function: cyclic expression graph")

	// ErrUnboundInput indicates a free symbol reachable from the outputs that
	// is not part of any declared input.
	ErrUnboundInput = errors.New("function: unbound input symbol")

	// ErrUnsupportedDifferentiation indicates a derivative request the
	// function's backend cannot serve, such as symbolic seeding through an
	// embedded subfunction call or differentiating a finite-difference
	// kernel. Expanding to scalar form lifts the call limitation.
	ErrUnsupportedDifferentiation = errors.New("function: unsupported differentiation")

	// ErrNotFinalized indicates evaluation-stage access to a function still
	// under construction; call Finalize first.
	ErrNotFinalized = errors.New("function: not finalized")

	// ErrFinalized indicates a second Finalize call; the Built to Evaluable
	// transition happens once and cannot be revisited.
	ErrFinalized = errors.New("function: already finalized")
)
