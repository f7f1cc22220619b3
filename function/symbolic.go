// Package function: symbolic evaluation and expansion. Symbolic seeding
// produces derivative expressions instead of numbers, which is how one
// function embeds differentiably inside another; expansion lowers a
// matrix-backed function to its scalar form, one expression per structural
// nonzero.

package function

import (
	"fmt"

	"github.com/onedigit/casadi/mx"
	"github.com/onedigit/casadi/sparsity"
	"github.com/onedigit/casadi/sx"
)

// EvalSymbolicSX substitutes fresh symbolic inputs into a scalar-backed
// function and propagates symbolic forward and adjoint seeds in the same
// pass. Each input and seed matrix must carry the exact pattern of the slot
// it binds. Seeds are indexed [direction][slot]; both may be nil.
func (f *Function) EvalSymbolicSX(inputs []sx.Matrix, fwdSeeds, adjSeeds [][]sx.Matrix) ([]sx.Matrix, [][]sx.Matrix, [][]sx.Matrix, error) {
	if !f.finalized {
		return nil, nil, nil, ErrNotFinalized
	}
	if f.kind != backendSX {
		return nil, nil, nil, fmt.Errorf("%w: symbolic scalar evaluation of a %s-backed function", ErrUnsupportedDifferentiation, f.kindName())
	}
	if err := checkSlots(inputs, f.inSp, "input"); err != nil {
		return nil, nil, nil, err
	}
	for _, seeds := range fwdSeeds {
		if err := checkSlots(seeds, f.inSp, "forward seed"); err != nil {
			return nil, nil, nil, err
		}
	}
	for _, seeds := range adjSeeds {
		if err := checkSlots(seeds, f.outSp, "adjoint seed"); err != nil {
			return nil, nil, nil, err
		}
	}

	tape := f.sxTape
	subs, err := tape.SymbolicValues(func(s *sx.Node) (*sx.Node, error) {
		pos := f.sxSymPos[s]

		return inputs[pos[0]].Nz(pos[1]), nil
	})
	if err != nil {
		return nil, nil, nil, err
	}
	outs, err := f.gatherOutputs(func(ti int32) *sx.Node { return subs[ti] })
	if err != nil {
		return nil, nil, nil, err
	}

	var fwdSens [][]sx.Matrix
	if nfwd := len(fwdSeeds); nfwd > 0 {
		fdot := make([]*sx.Node, tape.Len()*nfwd)
		for d := 0; d < nfwd; d++ {
			for i, idx := range f.sxInIdx {
				for k, ti := range idx {
					if ti >= 0 {
						fdot[int(ti)*nfwd+d] = fwdSeeds[d][i].Nz(k)
					}
				}
			}
		}
		if err := tape.SymbolicForward(subs, fdot, nfwd); err != nil {
			return nil, nil, nil, err
		}
		fwdSens = make([][]sx.Matrix, nfwd)
		for d := 0; d < nfwd; d++ {
			dd := d
			sens, err := f.gatherOutputs(func(ti int32) *sx.Node { return fdot[int(ti)*nfwd+dd] })
			if err != nil {
				return nil, nil, nil, err
			}
			fwdSens[d] = sens
		}
	}

	var adjSens [][]sx.Matrix
	if nadj := len(adjSeeds); nadj > 0 {
		adj := make([]*sx.Node, tape.Len()*nadj)
		for d := 0; d < nadj; d++ {
			for o, idx := range f.sxOutIdx {
				for k, ti := range idx {
					// An output node shared between slots accumulates both
					// seeds.
					slot := int(ti)*nadj + d
					if adj[slot] == nil {
						adj[slot] = adjSeeds[d][o].Nz(k)
					} else {
						adj[slot] = sx.Add(adj[slot], adjSeeds[d][o].Nz(k))
					}
				}
			}
		}
		if err := tape.SymbolicReverse(subs, adj, nadj); err != nil {
			return nil, nil, nil, err
		}
		adjSens = make([][]sx.Matrix, nadj)
		for d := 0; d < nadj; d++ {
			sens := make([]sx.Matrix, len(f.sxInIdx))
			for i, idx := range f.sxInIdx {
				nodes := make([]*sx.Node, len(idx))
				for k, ti := range idx {
					if ti >= 0 {
						nodes[k] = adj[int(ti)*nadj+d]
					} else {
						nodes[k] = sx.Zero()
					}
				}
				m, err := sx.NewMatrix(f.inSp[i], nodes)
				if err != nil {
					return nil, nil, nil, err
				}
				sens[i] = m
			}
			adjSens[d] = sens
		}
	}

	return outs, fwdSens, adjSens, nil
}

// EvalSymbolicMX is EvalSymbolicSX for matrix-backed functions: inputs and
// seeds are matrix nodes carrying the exact slot patterns, and the results
// are matrix expressions. Graphs with embedded calls refuse nonzero seeds.
func (f *Function) EvalSymbolicMX(inputs []*mx.Node, fwdSeeds, adjSeeds [][]*mx.Node) ([]*mx.Node, [][]*mx.Node, [][]*mx.Node, error) {
	if !f.finalized {
		return nil, nil, nil, ErrNotFinalized
	}
	if f.kind != backendMX {
		return nil, nil, nil, fmt.Errorf("%w: symbolic matrix evaluation of a %s-backed function", ErrUnsupportedDifferentiation, f.kindName())
	}
	if err := checkNodeSlots(inputs, f.inSp, "input"); err != nil {
		return nil, nil, nil, err
	}
	for _, seeds := range fwdSeeds {
		if err := checkNodeSlots(seeds, f.inSp, "forward seed"); err != nil {
			return nil, nil, nil, err
		}
	}
	for _, seeds := range adjSeeds {
		if err := checkNodeSlots(seeds, f.outSp, "adjoint seed"); err != nil {
			return nil, nil, nil, err
		}
	}

	tape := f.mxTape
	bound := make(map[*mx.Node]*mx.Node, len(f.mxIn))
	for i, s := range f.mxIn {
		bound[s] = inputs[i]
	}
	subs, err := tape.SymbolicValues(func(s *mx.Node) (*mx.Node, error) {
		return bound[s], nil
	})
	if err != nil {
		return nil, nil, nil, err
	}
	outs := make([]*mx.Node, len(f.mxOutIdx))
	for o, ti := range f.mxOutIdx {
		outs[o] = subs[ti]
	}

	var fwdSens [][]*mx.Node
	if nfwd := len(fwdSeeds); nfwd > 0 {
		fdot := make([]*mx.Node, tape.Len()*nfwd)
		for d := 0; d < nfwd; d++ {
			for i, ti := range f.mxInIdx {
				if ti >= 0 {
					fdot[ti*nfwd+d] = fwdSeeds[d][i]
				}
			}
		}
		if err := tape.SymbolicForward(subs, fdot, nfwd); err != nil {
			return nil, nil, nil, wrapUnsupported(err)
		}
		fwdSens = make([][]*mx.Node, nfwd)
		for d := 0; d < nfwd; d++ {
			sens := make([]*mx.Node, len(f.mxOutIdx))
			for o, ti := range f.mxOutIdx {
				sens[o] = fdot[ti*nfwd+d]
			}
			fwdSens[d] = sens
		}
	}

	var adjSens [][]*mx.Node
	if nadj := len(adjSeeds); nadj > 0 {
		adj := make([]*mx.Node, tape.Len()*nadj)
		for d := 0; d < nadj; d++ {
			for o, ti := range f.mxOutIdx {
				slot := ti*nadj + d
				if adj[slot] == nil {
					adj[slot] = adjSeeds[d][o]
				} else {
					sum, err := mx.Add(adj[slot], adjSeeds[d][o])
					if err != nil {
						return nil, nil, nil, err
					}
					adj[slot] = sum
				}
			}
		}
		if err := tape.SymbolicReverse(subs, adj, nadj); err != nil {
			return nil, nil, nil, wrapUnsupported(err)
		}
		adjSens = make([][]*mx.Node, nadj)
		for d := 0; d < nadj; d++ {
			sens := make([]*mx.Node, len(f.mxInIdx))
			for i, ti := range f.mxInIdx {
				if ti >= 0 {
					sens[i] = adj[ti*nadj+d]
				} else {
					sens[i] = zeroConst(f.inSp[i])
				}
			}
			adjSens[d] = sens
		}
	}

	return outs, fwdSens, adjSens, nil
}

// Expand lowers a matrix-backed function to an equivalent scalar-backed one
// over fresh input symbols: every matrix operation becomes its per-nonzero
// scalar expressions, with embedded calls lowered through their callees.
// Expanding a scalar-backed function is the identity.
func (f *Function) Expand() (*Function, error) {
	if !f.finalized {
		return nil, ErrNotFinalized
	}
	switch f.kind {
	case backendSX:
		return f, nil
	case backendFD:
		return nil, fmt.Errorf("%w: expanding a finite-difference kernel", ErrUnsupportedDifferentiation)
	}

	symMats := make([]sx.Matrix, len(f.mxIn))
	lowered := make(map[*mx.Node]sx.Matrix, len(f.mxIn))
	for i, n := range f.mxIn {
		m := sx.SymMatrix(n.Name(), n.Sparsity())
		symMats[i] = m
		lowered[n] = m
	}
	low, err := f.mxTape.Expand(func(s *mx.Node) (sx.Matrix, error) {
		return lowered[s], nil
	})
	if err != nil {
		return nil, err
	}
	outs := make([]sx.Matrix, len(f.mxOutIdx))
	for o, ti := range f.mxOutIdx {
		outs[o] = low[ti]
	}
	nf, err := New(f.name, symMats, outs)
	if err != nil {
		return nil, err
	}
	nf.opts = f.opts
	if err := nf.Finalize(); err != nil {
		return nil, err
	}

	return nf, nil
}

// gatherOutputs packs one matrix per output from a tape-indexed lookup.
func (f *Function) gatherOutputs(pick func(int32) *sx.Node) ([]sx.Matrix, error) {
	outs := make([]sx.Matrix, len(f.sxOutIdx))
	for o, idx := range f.sxOutIdx {
		nodes := make([]*sx.Node, len(idx))
		for k, ti := range idx {
			nodes[k] = pick(ti)
		}
		m, err := sx.NewMatrix(f.outSp[o], nodes)
		if err != nil {
			return nil, err
		}
		outs[o] = m
	}

	return outs, nil
}

// checkSlots validates one matrix per slot with the slot's exact pattern.
func checkSlots(ms []sx.Matrix, sps []*sparsity.Pattern, role string) error {
	if len(ms) != len(sps) {
		return fmt.Errorf("%w: %d %s matrices for %d slots", ErrShapeMismatch, len(ms), role, len(sps))
	}
	for i, m := range ms {
		if !m.Sparsity().Equal(sps[i]) {
			return fmt.Errorf("%w: %s %d must keep pattern %v", ErrShapeMismatch, role, i, sps[i])
		}
	}

	return nil
}

// checkNodeSlots is checkSlots for matrix nodes.
func checkNodeSlots(ns []*mx.Node, sps []*sparsity.Pattern, role string) error {
	if len(ns) != len(sps) {
		return fmt.Errorf("%w: %d %s nodes for %d slots", ErrShapeMismatch, len(ns), role, len(sps))
	}
	for i, n := range ns {
		if n == nil || !n.Sparsity().Equal(sps[i]) {
			return fmt.Errorf("%w: %s %d must keep pattern %v", ErrShapeMismatch, role, i, sps[i])
		}
	}

	return nil
}

// zeroConst is an explicit zero constant over the full pattern.
func zeroConst(sp *sparsity.Pattern) *mx.Node {
	c, err := mx.Const(sp, make([]float64, sp.NNZ()))
	if err != nil {
		panic(err)
	}

	return c
}

func (f *Function) kindName() string {
	switch f.kind {
	case backendSX:
		return "scalar"
	case backendMX:
		return "matrix"
	default:
		return "finite-difference"
	}
}
