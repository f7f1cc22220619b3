// Package function: the callee side of embedding. A finalized Function
// satisfies mx.Callee, so it can sit as a call node inside another function's
// matrix graph: numeric passes drive the tape with caller-supplied buffers,
// dependency bits flow through for sparsity inference, and scalar lowering
// substitutes the caller's expressions straight into the expanded graph.

package function

import (
	"fmt"

	"github.com/onedigit/casadi/mx"
	"github.com/onedigit/casadi/sparsity"
	"github.com/onedigit/casadi/sx"
)

var _ mx.Callee = (*Function)(nil)

// CallNumeric evaluates against caller-owned buffers: argument nonzeros in,
// outputs plus any forward and adjoint sensitivities out. The instance's own
// evaluation storage is not touched, so one Function may serve as callee at
// several call sites of the same graph.
func (f *Function) CallNumeric(args [][]float64, fwd, adj [][][]float64) ([][]float64, [][][]float64, [][][]float64, error) {
	if !f.finalized {
		return nil, nil, nil, ErrNotFinalized
	}
	if err := checkValueSlots(args, f.inSp, "argument"); err != nil {
		return nil, nil, nil, err
	}
	for _, seeds := range fwd {
		if err := checkValueSlots(seeds, f.inSp, "forward seed"); err != nil {
			return nil, nil, nil, err
		}
	}
	for _, seeds := range adj {
		if err := checkValueSlots(seeds, f.outSp, "adjoint seed"); err != nil {
			return nil, nil, nil, err
		}
	}

	return f.evalRaw(args, fwd, adj)
}

// CallDepend propagates structural dependency bitsets through the function,
// nwords words per nonzero, input bits in and output bits out.
func (f *Function) CallDepend(args [][]uint64, nwords int) ([][]uint64, error) {
	if !f.finalized {
		return nil, ErrNotFinalized
	}
	if len(args) != len(f.inSp) {
		return nil, fmt.Errorf("%w: %d dependency arguments for %d inputs", ErrShapeMismatch, len(args), len(f.inSp))
	}
	for i, a := range args {
		if len(a) != f.inSp[i].NNZ()*nwords {
			return nil, fmt.Errorf("%w: dependency argument %d sized %d", ErrShapeMismatch, i, len(a))
		}
	}

	switch f.kind {
	case backendSX:
		dep := make([]uint64, f.sxTape.Len()*nwords)
		for i, idx := range f.sxInIdx {
			for k, ti := range idx {
				if ti < 0 {
					continue
				}
				for w := 0; w < nwords; w++ {
					dep[int(ti)*nwords+w] |= args[i][k*nwords+w]
				}
			}
		}
		if err := f.sxTape.Depend(dep, nwords); err != nil {
			return nil, err
		}
		res := make([][]uint64, len(f.sxOutIdx))
		for o, idx := range f.sxOutIdx {
			out := make([]uint64, len(idx)*nwords)
			for k, ti := range idx {
				copy(out[k*nwords:(k+1)*nwords], dep[int(ti)*nwords:(int(ti)+1)*nwords])
			}
			res[o] = out
		}

		return res, nil
	case backendMX:
		dep := make([][]uint64, f.mxTape.Len())
		for i, ti := range f.mxInIdx {
			if ti >= 0 {
				dep[ti] = append([]uint64(nil), args[i]...)
			}
		}
		if err := f.mxTape.Depend(dep, nwords); err != nil {
			return nil, err
		}
		res := make([][]uint64, len(f.mxOutIdx))
		for o, ti := range f.mxOutIdx {
			res[o] = append([]uint64(nil), dep[ti]...)
		}

		return res, nil
	default:
		return nil, fmt.Errorf("%w: dependency pass through a finite-difference kernel", ErrUnsupportedDifferentiation)
	}
}

// CallScalar lowers the function to scalar expressions over the caller's
// argument matrices. Matrix-backed functions expand first.
func (f *Function) CallScalar(args []sx.Matrix) ([]sx.Matrix, error) {
	if !f.finalized {
		return nil, ErrNotFinalized
	}
	switch f.kind {
	case backendSX:
		outs, _, _, err := f.EvalSymbolicSX(args, nil, nil)

		return outs, err
	case backendMX:
		e, err := f.Expand()
		if err != nil {
			return nil, err
		}

		return e.CallScalar(args)
	default:
		return nil, fmt.Errorf("%w: scalar lowering of a finite-difference kernel", ErrUnsupportedDifferentiation)
	}
}

// checkValueSlots validates one nonzero vector per slot.
func checkValueSlots(vs [][]float64, sps []*sparsity.Pattern, role string) error {
	if len(vs) != len(sps) {
		return fmt.Errorf("%w: %d %s vectors for %d slots", ErrShapeMismatch, len(vs), role, len(sps))
	}
	for i, v := range vs {
		if len(v) != sps[i].NNZ() {
			return fmt.Errorf("%w: %s %d sized %d for %d nonzeros", ErrShapeMismatch, role, i, len(v), sps[i].NNZ())
		}
	}

	return nil
}
