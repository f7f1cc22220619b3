// Package mx: the subfunction interface behind Call nodes. Keeping the
// contract here lets the orchestration layer implement it without an import
// cycle back into this package.

package mx

import (
	"github.com/onedigit/casadi/sparsity"
	"github.com/onedigit/casadi/sx"
)

// Callee is a callable subfunction embeddable in a matrix expression graph
// through Call. It declares its signature as sparsity patterns and supplies
// the three propagation behaviors a host graph needs: numeric evaluation with
// optional seed propagation, structural dependency propagation, and lowering
// to scalar expressions.
type Callee interface {
	// Name identifies the callee in diagnostics.
	Name() string

	// NumInputs and NumOutputs give the arity of the callee.
	NumInputs() int
	NumOutputs() int

	// InputSparsity and OutputSparsity declare the signature patterns.
	InputSparsity(i int) *sparsity.Pattern
	OutputSparsity(i int) *sparsity.Pattern

	// CallNumeric evaluates the callee on nonzero vectors, one per input.
	// fwd, when non-nil, carries forward seeds indexed [direction][input] and
	// requests the matching sensitivities indexed [direction][output].
	// adj, when non-nil, carries adjoint seeds indexed [direction][output]
	// and requests input adjoints indexed [direction][input].
	CallNumeric(args [][]float64, fwd, adj [][][]float64) (res [][]float64, fwdSens, adjSens [][][]float64, err error)

	// CallDepend propagates structural dependency bitsets (nwords words per
	// nonzero) from inputs to outputs.
	CallDepend(args [][]uint64, nwords int) ([][]uint64, error)

	// CallScalar lowers the callee to scalar form: outputs as expressions of
	// the given scalar-matrix arguments.
	CallScalar(args []sx.Matrix) ([]sx.Matrix, error)
}
