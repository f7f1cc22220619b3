// Package function: Jacobian construction. Graph mode assembles symbolic
// partial expressions by seeding the tape once per input or output nonzero;
// numeric mode wraps the function in a central finite-difference kernel.
// Sparsity inference runs the value-independent bit-parallel pass.

package function

import (
	"errors"
	"fmt"

	"github.com/onedigit/casadi/mx"
	"github.com/onedigit/casadi/sparsity"
	"github.com/onedigit/casadi/sx"
)

// JacSparsity infers the structural pattern of ∂output[iout]/∂input[iin]
// without any values: rows index output elements, columns input elements,
// both row-major. Structural zeros of the endpoints yield empty rows and
// columns.
func (f *Function) JacSparsity(iout, iin int) (*sparsity.Pattern, error) {
	if !f.finalized {
		return nil, ErrNotFinalized
	}
	if err := f.checkIO(iout, iin); err != nil {
		return nil, err
	}
	switch f.kind {
	case backendSX:
		return f.jacSparsitySX(iout, iin)
	case backendMX:
		return f.jacSparsityMX(iout, iin)
	default:
		return nil, fmt.Errorf("%w: sparsity of a finite-difference kernel", ErrUnsupportedDifferentiation)
	}
}

func (f *Function) jacSparsitySX(iout, iin int) (*sparsity.Pattern, error) {
	numelOut, numelIn := f.outSp[iout].Numel(), f.inSp[iin].Numel()
	nseeds := f.inSp[iin].NNZ()
	if nseeds == 0 {
		return sparsity.Empty(numelOut, numelIn), nil
	}
	nwords := (nseeds + 63) / 64
	dep := make([]uint64, f.sxTape.Len()*nwords)
	for j, ti := range f.sxInIdx[iin] {
		if ti >= 0 {
			dep[int(ti)*nwords+j/64] |= 1 << uint(j%64)
		}
	}
	if err := f.sxTape.Depend(dep, nwords); err != nil {
		return nil, err
	}
	inFlat := flatOffsets(f.inSp[iin])
	outFlat := flatOffsets(f.outSp[iout])
	var ri, ci []int
	for k, ti := range f.sxOutIdx[iout] {
		base := int(ti) * nwords
		for j := 0; j < nseeds; j++ {
			if dep[base+j/64]&(1<<uint(j%64)) != 0 {
				ri = append(ri, outFlat[k])
				ci = append(ci, inFlat[j])
			}
		}
	}

	return sparsity.FromTriplets(numelOut, numelIn, ri, ci)
}

func (f *Function) jacSparsityMX(iout, iin int) (*sparsity.Pattern, error) {
	numelOut, numelIn := f.outSp[iout].Numel(), f.inSp[iin].Numel()
	nseeds := f.inSp[iin].NNZ()
	ti := f.mxInIdx[iin]
	if nseeds == 0 || ti < 0 {
		return sparsity.Empty(numelOut, numelIn), nil
	}
	nwords := (nseeds + 63) / 64
	dep := make([][]uint64, f.mxTape.Len())
	seed := make([]uint64, nseeds*nwords)
	for j := 0; j < nseeds; j++ {
		seed[j*nwords+j/64] |= 1 << uint(j%64)
	}
	dep[ti] = seed
	if err := f.mxTape.Depend(dep, nwords); err != nil {
		return nil, err
	}
	inFlat := flatOffsets(f.inSp[iin])
	outFlat := flatOffsets(f.outSp[iout])
	bits := dep[f.mxOutIdx[iout]]
	var ri, ci []int
	for k := 0; k < f.outSp[iout].NNZ(); k++ {
		for j := 0; j < nseeds; j++ {
			if bits[k*nwords+j/64]&(1<<uint(j%64)) != 0 {
				ri = append(ri, outFlat[k])
				ci = append(ci, inFlat[j])
			}
		}
	}

	return sparsity.FromTriplets(numelOut, numelIn, ri, ci)
}

// Jacobian returns a new finalized Function mapping the same inputs to
// ∂output[iout]/∂input[iin], a numel(out)×numel(in) matrix. Graph mode
// assembles symbolic partials, seeding forward per input nonzero or reverse
// per output nonzero according to the AD mode; numeric mode wraps the
// function in a central finite-difference kernel instead.
func (f *Function) Jacobian(iout, iin int) (*Function, error) {
	if !f.finalized {
		return nil, ErrNotFinalized
	}
	if err := f.checkIO(iout, iin); err != nil {
		return nil, err
	}
	if f.opts.JacobianMode == NumericJacobian {
		return newFDKernel(f, iout, iin, false)
	}
	switch f.kind {
	case backendSX:
		jm, err := f.jacobianSX(iout, iin)
		if err != nil {
			return nil, err
		}

		return f.derivedSX(f.name+"_jac", []sx.Matrix{jm})
	case backendMX:
		jn, err := f.jacobianMX(iout, iin)
		if err != nil {
			return nil, err
		}

		return f.derivedMX(f.name+"_jac", []*mx.Node{jn})
	default:
		return nil, fmt.Errorf("%w: differentiating a finite-difference kernel", ErrUnsupportedDifferentiation)
	}
}

// Gradient returns a new finalized Function computing the gradient of the
// scalar output iout with respect to input iin, a numel(in)×1 column.
func (f *Function) Gradient(iout, iin int) (*Function, error) {
	if !f.finalized {
		return nil, ErrNotFinalized
	}
	if err := f.checkIO(iout, iin); err != nil {
		return nil, err
	}
	if f.outSp[iout].Numel() != 1 {
		return nil, fmt.Errorf("%w: gradient of output %v, want scalar", ErrShapeMismatch, f.outSp[iout])
	}
	if f.opts.JacobianMode == NumericJacobian {
		return newFDKernel(f, iout, iin, true)
	}
	switch f.kind {
	case backendSX:
		jm, err := f.jacobianSX(iout, iin)
		if err != nil {
			return nil, err
		}

		return f.derivedSX(f.name+"_grad", []sx.Matrix{jm.Transpose()})
	case backendMX:
		jn, err := f.jacobianMX(iout, iin)
		if err != nil {
			return nil, err
		}

		return f.derivedMX(f.name+"_grad", []*mx.Node{mx.Transpose(jn)})
	default:
		return nil, fmt.Errorf("%w: differentiating a finite-difference kernel", ErrUnsupportedDifferentiation)
	}
}

// jacobianSX assembles the Jacobian entries as scalar expressions over the
// original input symbols, sized by the inferred sparsity.
func (f *Function) jacobianSX(iout, iin int) (sx.Matrix, error) {
	jsp, err := f.jacSparsitySX(iout, iin)
	if err != nil {
		return sx.Matrix{}, err
	}
	tape := f.sxTape
	subs, err := tape.SymbolicValues(func(s *sx.Node) (*sx.Node, error) { return s, nil })
	if err != nil {
		return sx.Matrix{}, err
	}
	inIdx, outIdx := f.sxInIdx[iin], f.sxOutIdx[iout]

	var partial func(k, j int) *sx.Node
	if f.opts.ADMode == ReverseMode {
		ndir := len(outIdx)
		adj := make([]*sx.Node, tape.Len()*ndir)
		for k, ti := range outIdx {
			adj[int(ti)*ndir+k] = sx.One()
		}
		if err := tape.SymbolicReverse(subs, adj, ndir); err != nil {
			return sx.Matrix{}, err
		}
		partial = func(k, j int) *sx.Node {
			if inIdx[j] < 0 {
				return sx.Zero()
			}

			return adj[int(inIdx[j])*ndir+k]
		}
	} else {
		ndir := len(inIdx)
		fdot := make([]*sx.Node, tape.Len()*ndir)
		for j, ti := range inIdx {
			if ti >= 0 {
				fdot[int(ti)*ndir+j] = sx.One()
			}
		}
		if err := tape.SymbolicForward(subs, fdot, ndir); err != nil {
			return sx.Matrix{}, err
		}
		partial = func(k, j int) *sx.Node {
			return fdot[int(outIdx[k])*ndir+j]
		}
	}

	outNz := flatToNz(f.outSp[iout])
	inNz := flatToNz(f.inSp[iin])
	ri, ci := jsp.Triplets()
	nodes := make([]*sx.Node, len(ri))
	for e := range ri {
		nodes[e] = partial(outNz[ri[e]], inNz[ci[e]])
	}

	return sx.NewMatrix(jsp, nodes)
}

// jacobianMX assembles the Jacobian as one matrix expression: flattened
// tangent columns under forward seeding, transposed adjoint rows under
// reverse, projected onto the inferred pattern so the result carries the
// same structure the scalar backend would. Graphs with embedded calls
// cannot be seeded symbolically.
func (f *Function) jacobianMX(iout, iin int) (*mx.Node, error) {
	numelOut, numelIn := f.outSp[iout].Numel(), f.inSp[iin].Numel()
	inSp, outSp := f.inSp[iin], f.outSp[iout]
	inTi, outTi := f.mxInIdx[iin], f.mxOutIdx[iout]
	if inTi < 0 || inSp.NNZ() == 0 || outSp.NNZ() == 0 {
		return mx.Zero(numelOut, numelIn), nil
	}
	jsp, err := f.jacSparsityMX(iout, iin)
	if err != nil {
		return nil, err
	}
	tape := f.mxTape
	subs, err := tape.SymbolicValues(func(s *mx.Node) (*mx.Node, error) { return s, nil })
	if err != nil {
		return nil, err
	}

	if f.opts.ADMode == ReverseMode {
		ndir := outSp.NNZ()
		adj := make([]*mx.Node, tape.Len()*ndir)
		for k := 0; k < ndir; k++ {
			basis := make([]float64, ndir)
			basis[k] = 1
			c, err := mx.Const(outSp, basis)
			if err != nil {
				return nil, err
			}
			adj[outTi*ndir+k] = c
		}
		if err := tape.SymbolicReverse(subs, adj, ndir); err != nil {
			return nil, wrapUnsupported(err)
		}
		rows := make([]*mx.Node, numelOut)
		for r := range rows {
			rows[r] = mx.Zero(1, numelIn)
		}
		for k, fl := range flatOffsets(outSp) {
			rows[fl] = mx.Transpose(mx.Flatten(adj[inTi*ndir+k]))
		}
		stack, err := mx.Vertcat(rows...)
		if err != nil {
			return nil, err
		}

		return mx.Project(stack, jsp)
	}

	ndir := inSp.NNZ()
	fdot := make([]*mx.Node, tape.Len()*ndir)
	for j := 0; j < ndir; j++ {
		basis := make([]float64, ndir)
		basis[j] = 1
		c, err := mx.Const(inSp, basis)
		if err != nil {
			return nil, err
		}
		fdot[inTi*ndir+j] = c
	}
	if err := tape.SymbolicForward(subs, fdot, ndir); err != nil {
		return nil, wrapUnsupported(err)
	}
	cols := make([]*mx.Node, numelIn)
	for c := range cols {
		cols[c] = mx.Zero(numelOut, 1)
	}
	for j, fl := range flatOffsets(inSp) {
		cols[fl] = mx.Flatten(fdot[outTi*ndir+j])
	}
	stack, err := mx.Horzcat(cols...)
	if err != nil {
		return nil, err
	}

	return mx.Project(stack, jsp)
}

// derivedSX builds and finalizes a scalar-backed sibling over the same input
// symbols, inheriting the parent's options.
func (f *Function) derivedSX(name string, outs []sx.Matrix) (*Function, error) {
	nf, err := New(name, f.sxIn, outs)
	if err != nil {
		return nil, err
	}
	nf.opts = f.opts
	if err := nf.Finalize(); err != nil {
		return nil, err
	}

	return nf, nil
}

// derivedMX is derivedSX for the matrix backend.
func (f *Function) derivedMX(name string, outs []*mx.Node) (*Function, error) {
	nf, err := NewMX(name, f.mxIn, outs)
	if err != nil {
		return nil, err
	}
	nf.opts = f.opts
	if err := nf.Finalize(); err != nil {
		return nil, err
	}

	return nf, nil
}

// newFDKernel wraps base in a central finite-difference Jacobian kernel over
// the same inputs. The kernel's single output carries the inferred Jacobian
// pattern, transposed for gradients.
func newFDKernel(base *Function, iout, iin int, grad bool) (*Function, error) {
	jsp, err := base.JacSparsity(iout, iin)
	if err != nil {
		return nil, err
	}
	sp, name := jsp, base.name+"_jac"
	if grad {
		sp, name = jsp.Transpose(), base.name+"_grad"
	}
	outNz := flatToNz(base.outSp[iout])
	inNz := flatToNz(base.inSp[iin])
	ri, ci := sp.Triplets()
	pairs := make([][2]int, len(ri))
	for e := range ri {
		fo, fi := ri[e], ci[e]
		if grad {
			fo, fi = ci[e], ri[e]
		}
		pairs[e] = [2]int{outNz[fo], inNz[fi]}
	}
	nf := &Function{
		name:    name,
		kind:    backendFD,
		opts:    base.opts,
		inSp:    base.inSp,
		outSp:   []*sparsity.Pattern{sp},
		fdBase:  base,
		fdOut:   iout,
		fdIn:    iin,
		fdSp:    sp,
		fdPairs: pairs,
	}
	if err := nf.Finalize(); err != nil {
		return nil, err
	}

	return nf, nil
}

// wrapUnsupported maps the matrix layer's differentiation refusal onto this
// package's sentinel, keeping the cause in the chain.
func wrapUnsupported(err error) error {
	if errors.Is(err, mx.ErrUnsupportedDifferentiation) {
		return fmt.Errorf("%w: %v", ErrUnsupportedDifferentiation, err)
	}

	return err
}
