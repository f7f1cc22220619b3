// Package function: the Function type and its Built to Finalized lifecycle.

package function

import (
	"errors"
	"fmt"

	"github.com/onedigit/casadi/mx"
	"github.com/onedigit/casadi/sparsity"
	"github.com/onedigit/casadi/sx"
)

// backend selects the evaluation engine behind a Function.
type backend uint8

const (
	backendSX backend = iota // scalar expression tape
	backendMX                // matrix expression tape
	backendFD                // finite-difference Jacobian kernel
)

// Function is a named multi-input multi-output mapping with derivative
// support. A Function is constructed from symbolic inputs and output
// expressions, then Finalize freezes the graph, allocates evaluation storage
// and enables the evaluation-stage API. One instance carries one set of
// buffers: concurrent evaluation needs distinct instances.
type Function struct {
	name      string
	kind      backend
	opts      Options
	finalized bool

	inSp  []*sparsity.Pattern
	outSp []*sparsity.Pattern

	// scalar backend
	sxIn     []sx.Matrix
	sxOut    []sx.Matrix
	sxTape   *sx.Tape
	sxSymPos map[*sx.Node][2]int
	sxInIdx  [][]int32 // tape index per input nonzero, -1 when unreachable
	sxOutIdx [][]int32 // tape index per output nonzero

	// matrix backend
	mxIn     []*mx.Node
	mxOut    []*mx.Node
	mxTape   *mx.Tape
	mxInIdx  []int // tape index per input, -1 when unreachable
	mxOutIdx []int

	// finite-difference backend
	fdBase  *Function
	fdOut   int
	fdIn    int
	fdSp    *sparsity.Pattern
	fdPairs [][2]int // per result nonzero: (output nonzero, input nonzero)

	// evaluation storage, allocated once at Finalize
	in    [][]float64
	out   [][]float64
	fseed [][][]float64 // [direction][input][nonzero]
	fsens [][][]float64 // [direction][output][nonzero]
	aseed [][][]float64 // [direction][output][nonzero]
	asens [][][]float64 // [direction][input][nonzero]
}

// New builds a scalar-backed Function mapping inputs to outputs. Every input
// nonzero must be a distinct symbol; outputs are expressions over them.
// The result starts in the Built state: call Finalize before evaluating.
func New(name string, inputs, outputs []sx.Matrix) (*Function, error) {
	f := &Function{
		name:     name,
		kind:     backendSX,
		opts:     DefaultOptions(),
		sxIn:     inputs,
		sxOut:    outputs,
		sxSymPos: make(map[*sx.Node][2]int),
	}
	for i, m := range inputs {
		for k, nz := range m.Nonzeros() {
			if !nz.IsSymbol() {
				return nil, fmt.Errorf("%w: input %d nonzero %d is not a symbol", ErrShapeMismatch, i, k)
			}
			if _, dup := f.sxSymPos[nz]; dup {
				return nil, fmt.Errorf("%w: symbol %q bound to two input positions", ErrShapeMismatch, nz.Name())
			}
			f.sxSymPos[nz] = [2]int{i, k}
		}
		f.inSp = append(f.inSp, m.Sparsity())
	}
	for _, m := range outputs {
		f.outSp = append(f.outSp, m.Sparsity())
	}

	return f, nil
}

// NewMX builds a matrix-backed Function. Every input must be a distinct
// symbol node; outputs are matrix expressions over them.
func NewMX(name string, inputs, outputs []*mx.Node) (*Function, error) {
	f := &Function{
		name:  name,
		kind:  backendMX,
		opts:  DefaultOptions(),
		mxIn:  inputs,
		mxOut: outputs,
	}
	seen := make(map[*mx.Node]bool, len(inputs))
	for i, n := range inputs {
		if n == nil || !n.IsSymbol() {
			return nil, fmt.Errorf("%w: input %d is not a symbol", ErrShapeMismatch, i)
		}
		if seen[n] {
			return nil, fmt.Errorf("%w: symbol %q bound to two input positions", ErrShapeMismatch, n.Name())
		}
		seen[n] = true
		f.inSp = append(f.inSp, n.Sparsity())
	}
	for o, n := range outputs {
		if n == nil {
			return nil, fmt.Errorf("%w: output %d is nil", ErrShapeMismatch, o)
		}
		f.outSp = append(f.outSp, n.Sparsity())
	}

	return f, nil
}

// Finalize freezes the graph and moves the Function to the evaluable state:
// the dependency order is fixed, free symbols are checked against the
// declared inputs and every evaluation buffer is allocated. Options apply on
// top of the current configuration. Finalize happens once per instance.
func (f *Function) Finalize(opts ...Option) error {
	if f.finalized {
		return ErrFinalized
	}
	o := f.opts
	for _, opt := range opts {
		opt(&o)
	}
	if err := o.validate(); err != nil {
		return err
	}
	f.opts = o

	switch f.kind {
	case backendSX:
		if err := f.finalizeSX(); err != nil {
			return err
		}
	case backendMX:
		if err := f.finalizeMX(); err != nil {
			return err
		}
	case backendFD:
		// The kernel drives its base function; no tape of its own.
	}

	f.in = buffers(f.inSp)
	f.out = buffers(f.outSp)
	f.fseed = dirBuffers(o.ForwardDirections, f.inSp)
	f.fsens = dirBuffers(o.ForwardDirections, f.outSp)
	f.aseed = dirBuffers(o.AdjointDirections, f.outSp)
	f.asens = dirBuffers(o.AdjointDirections, f.inSp)
	f.finalized = true

	return nil
}

func (f *Function) finalizeSX() error {
	var roots []*sx.Node
	for _, m := range f.sxOut {
		roots = append(roots, m.Nonzeros()...)
	}
	tape, err := sx.NewTape(roots...)
	if err != nil {
		if errors.Is(err, sx.ErrCycle) {
			return fmt.Errorf("%w: %q", ErrCyclicGraph, f.name)
		}

		return err
	}
	for _, s := range tape.Symbols() {
		if _, ok := f.sxSymPos[s]; !ok {
			return fmt.Errorf("%w: %q", ErrUnboundInput, s.Name())
		}
	}
	f.sxTape = tape
	f.sxInIdx = make([][]int32, len(f.sxIn))
	for i, m := range f.sxIn {
		idx := make([]int32, m.NNZ())
		for k, nz := range m.Nonzeros() {
			if j, ok := tape.Index(nz); ok {
				idx[k] = int32(j)
			} else {
				idx[k] = -1
			}
		}
		f.sxInIdx[i] = idx
	}
	f.sxOutIdx = make([][]int32, len(f.sxOut))
	for o, m := range f.sxOut {
		idx := make([]int32, m.NNZ())
		for k, nz := range m.Nonzeros() {
			j, _ := tape.Index(nz)
			idx[k] = int32(j)
		}
		f.sxOutIdx[o] = idx
	}

	return nil
}

func (f *Function) finalizeMX() error {
	tape, err := mx.NewTape(f.mxOut...)
	if err != nil {
		if errors.Is(err, mx.ErrCycle) {
			return fmt.Errorf("%w: %q", ErrCyclicGraph, f.name)
		}

		return err
	}
	declared := make(map[*mx.Node]bool, len(f.mxIn))
	for _, n := range f.mxIn {
		declared[n] = true
	}
	for _, s := range tape.Symbols() {
		if !declared[s] {
			return fmt.Errorf("%w: %q", ErrUnboundInput, s.Name())
		}
	}
	f.mxTape = tape
	f.mxInIdx = make([]int, len(f.mxIn))
	for i, n := range f.mxIn {
		if j, ok := tape.Index(n); ok {
			f.mxInIdx[i] = j
		} else {
			f.mxInIdx[i] = -1
		}
	}
	f.mxOutIdx = make([]int, len(f.mxOut))
	for o, n := range f.mxOut {
		j, _ := tape.Index(n)
		f.mxOutIdx[o] = j
	}

	return nil
}

// Name returns the function's name.
func (f *Function) Name() string { return f.name }

// Finalized reports whether the evaluation-stage API is available.
func (f *Function) Finalized() bool { return f.finalized }

// NumInputs returns the number of declared inputs.
func (f *Function) NumInputs() int { return len(f.inSp) }

// NumOutputs returns the number of declared outputs.
func (f *Function) NumOutputs() int { return len(f.outSp) }

// InputSparsity returns the pattern of input i.
func (f *Function) InputSparsity(i int) *sparsity.Pattern { return f.inSp[i] }

// OutputSparsity returns the pattern of output i.
func (f *Function) OutputSparsity(i int) *sparsity.Pattern { return f.outSp[i] }

// SetInput stores the nonzero values of input i for the next Evaluate.
func (f *Function) SetInput(i int, vals []float64) error {
	if !f.finalized {
		return ErrNotFinalized
	}
	if i < 0 || i >= len(f.in) {
		return fmt.Errorf("%w: input %d of %d", ErrShapeMismatch, i, len(f.in))
	}
	if len(vals) != len(f.in[i]) {
		return fmt.Errorf("%w: %d values for input %d with %d nonzeros", ErrShapeMismatch, len(vals), i, len(f.in[i]))
	}
	copy(f.in[i], vals)

	return nil
}

// SetForwardSeed stores one tangent direction of input i. dir must be below
// the allocated forward direction count.
func (f *Function) SetForwardSeed(dir, i int, vals []float64) error {
	if !f.finalized {
		return ErrNotFinalized
	}
	if dir < 0 || dir >= len(f.fseed) {
		return fmt.Errorf("%w: forward direction %d of %d", ErrShapeMismatch, dir, len(f.fseed))
	}
	if i < 0 || i >= len(f.fseed[dir]) || len(vals) != len(f.fseed[dir][i]) {
		return fmt.Errorf("%w: forward seed for input %d", ErrShapeMismatch, i)
	}
	copy(f.fseed[dir][i], vals)

	return nil
}

// SetAdjointSeed stores one adjoint direction of output i. dir must be below
// the allocated adjoint direction count.
func (f *Function) SetAdjointSeed(dir, i int, vals []float64) error {
	if !f.finalized {
		return ErrNotFinalized
	}
	if dir < 0 || dir >= len(f.aseed) {
		return fmt.Errorf("%w: adjoint direction %d of %d", ErrShapeMismatch, dir, len(f.aseed))
	}
	if i < 0 || i >= len(f.aseed[dir]) || len(vals) != len(f.aseed[dir][i]) {
		return fmt.Errorf("%w: adjoint seed for output %d", ErrShapeMismatch, i)
	}
	copy(f.aseed[dir][i], vals)

	return nil
}

// Output returns the nonzero values of output i computed by the last
// Evaluate. The slice aliases internal storage.
func (f *Function) Output(i int) []float64 { return f.out[i] }

// ForwardSens returns the tangent of output i in direction dir from the last
// Evaluate. The slice aliases internal storage.
func (f *Function) ForwardSens(dir, i int) []float64 { return f.fsens[dir][i] }

// AdjointSens returns the adjoint of input i in direction dir from the last
// Evaluate. The slice aliases internal storage.
func (f *Function) AdjointSens(dir, i int) []float64 { return f.asens[dir][i] }

// Evaluate runs one pass: outputs always, plus nfwd forward and nadj adjoint
// directions from the stored seeds. Both counts must be within the direction
// slots allocated at Finalize.
func (f *Function) Evaluate(nfwd, nadj int) error {
	if !f.finalized {
		return ErrNotFinalized
	}
	if nfwd < 0 || nfwd > len(f.fseed) || nadj < 0 || nadj > len(f.aseed) {
		return fmt.Errorf("%w: %d forward and %d adjoint directions, %d and %d allocated",
			ErrShapeMismatch, nfwd, nadj, len(f.fseed), len(f.aseed))
	}
	res, fsens, asens, err := f.evalRaw(f.in, f.fseed[:nfwd], f.aseed[:nadj])
	if err != nil {
		return err
	}
	for o := range f.out {
		copy(f.out[o], res[o])
	}
	for d := 0; d < nfwd; d++ {
		for o := range f.fsens[d] {
			copy(f.fsens[d][o], fsens[d][o])
		}
	}
	for d := 0; d < nadj; d++ {
		for i := range f.asens[d] {
			copy(f.asens[d][i], asens[d][i])
		}
	}

	return nil
}

// evalRaw evaluates against caller-supplied buffers, leaving the instance
// storage untouched. Embedded calls enter here.
func (f *Function) evalRaw(args [][]float64, fwd, adj [][][]float64) ([][]float64, [][][]float64, [][][]float64, error) {
	switch f.kind {
	case backendSX:
		return f.evalSX(args, fwd, adj)
	case backendMX:
		return f.evalMX(args, fwd, adj)
	default:
		if len(fwd) > 0 || len(adj) > 0 {
			return nil, nil, nil, fmt.Errorf("%w: seeding a finite-difference kernel", ErrUnsupportedDifferentiation)
		}
		res, err := f.evalFD(args)

		return res, nil, nil, err
	}
}

func (f *Function) evalSX(args [][]float64, fwd, adj [][][]float64) ([][]float64, [][][]float64, [][][]float64, error) {
	bind := func(s *sx.Node) (float64, error) {
		pos := f.sxSymPos[s]

		return args[pos[0]][pos[1]], nil
	}
	vals, err := f.sxTape.Values(bind)
	if err != nil {
		return nil, nil, nil, err
	}
	res := make([][]float64, len(f.sxOutIdx))
	for o, idx := range f.sxOutIdx {
		v := make([]float64, len(idx))
		for k, j := range idx {
			v[k] = vals[j]
		}
		res[o] = v
	}

	var fsens [][][]float64
	if nfwd := len(fwd); nfwd > 0 {
		fdot := make([]float64, f.sxTape.Len()*nfwd)
		for d := 0; d < nfwd; d++ {
			for i, idx := range f.sxInIdx {
				for k, j := range idx {
					if j >= 0 {
						fdot[int(j)*nfwd+d] = fwd[d][i][k]
					}
				}
			}
		}
		if err := f.sxTape.Forward(vals, fdot, nfwd); err != nil {
			return nil, nil, nil, err
		}
		fsens = make([][][]float64, nfwd)
		for d := 0; d < nfwd; d++ {
			fsens[d] = make([][]float64, len(f.sxOutIdx))
			for o, idx := range f.sxOutIdx {
				v := make([]float64, len(idx))
				for k, j := range idx {
					v[k] = fdot[int(j)*nfwd+d]
				}
				fsens[d][o] = v
			}
		}
	}

	var asens [][][]float64
	if nadj := len(adj); nadj > 0 {
		buf := make([]float64, f.sxTape.Len()*nadj)
		for d := 0; d < nadj; d++ {
			for o, idx := range f.sxOutIdx {
				for k, j := range idx {
					buf[int(j)*nadj+d] += adj[d][o][k]
				}
			}
		}
		if err := f.sxTape.Reverse(vals, buf, nadj); err != nil {
			return nil, nil, nil, err
		}
		asens = make([][][]float64, nadj)
		for d := 0; d < nadj; d++ {
			asens[d] = make([][]float64, len(f.sxInIdx))
			for i, idx := range f.sxInIdx {
				v := make([]float64, len(idx))
				for k, j := range idx {
					if j >= 0 {
						v[k] = buf[int(j)*nadj+d]
					}
				}
				asens[d][i] = v
			}
		}
	}

	return res, fsens, asens, nil
}

func (f *Function) evalMX(args [][]float64, fwd, adj [][][]float64) ([][]float64, [][][]float64, [][][]float64, error) {
	bound := make(map[*mx.Node][]float64, len(f.mxIn))
	for i, s := range f.mxIn {
		bound[s] = args[i]
	}
	vals, err := f.mxTape.Values(func(s *mx.Node) ([]float64, error) {
		return bound[s], nil
	})
	if err != nil {
		return nil, nil, nil, err
	}
	res := make([][]float64, len(f.mxOutIdx))
	for o, ti := range f.mxOutIdx {
		res[o] = append([]float64(nil), vals[ti]...)
	}

	var fsens [][][]float64
	if nfwd := len(fwd); nfwd > 0 {
		fdot := make([][]float64, f.mxTape.Len()*nfwd)
		for d := 0; d < nfwd; d++ {
			for i, ti := range f.mxInIdx {
				if ti >= 0 {
					fdot[ti*nfwd+d] = append([]float64(nil), fwd[d][i]...)
				}
			}
		}
		if err := f.mxTape.Forward(vals, fdot, nfwd); err != nil {
			return nil, nil, nil, err
		}
		fsens = make([][][]float64, nfwd)
		for d := 0; d < nfwd; d++ {
			fsens[d] = make([][]float64, len(f.mxOutIdx))
			for o, ti := range f.mxOutIdx {
				fsens[d][o] = append([]float64(nil), fdot[ti*nfwd+d]...)
			}
		}
	}

	var asens [][][]float64
	if nadj := len(adj); nadj > 0 {
		buf := make([][]float64, f.mxTape.Len()*nadj)
		for d := 0; d < nadj; d++ {
			for o, ti := range f.mxOutIdx {
				slot := buf[ti*nadj+d]
				if slot == nil {
					slot = make([]float64, len(adj[d][o]))
					buf[ti*nadj+d] = slot
				}
				for k, v := range adj[d][o] {
					slot[k] += v
				}
			}
		}
		if err := f.mxTape.Reverse(vals, buf, nadj); err != nil {
			return nil, nil, nil, err
		}
		asens = make([][][]float64, nadj)
		for d := 0; d < nadj; d++ {
			asens[d] = make([][]float64, len(f.mxInIdx))
			for i, ti := range f.mxInIdx {
				if ti >= 0 {
					asens[d][i] = append([]float64(nil), buf[ti*nadj+d]...)
				} else {
					asens[d][i] = make([]float64, f.inSp[i].NNZ())
				}
			}
		}
	}

	return res, fsens, asens, nil
}

// evalFD fills the kernel's Jacobian entries by central differences around
// the supplied operating point.
func (f *Function) evalFD(args [][]float64) ([][]float64, error) {
	base, h := f.fdBase, f.opts.FDStep
	nzIn := base.inSp[f.fdIn].NNZ()
	nzOut := base.outSp[f.fdOut].NNZ()

	pert := append([][]float64(nil), args...)
	x := append([]float64(nil), args[f.fdIn]...)
	pert[f.fdIn] = x
	cols := make([][]float64, nzIn)
	for j := 0; j < nzIn; j++ {
		orig := x[j]
		x[j] = orig + h
		rp, _, _, err := base.evalRaw(pert, nil, nil)
		if err != nil {
			return nil, err
		}
		fp := rp[f.fdOut]
		x[j] = orig - h
		rm, _, _, err := base.evalRaw(pert, nil, nil)
		if err != nil {
			return nil, err
		}
		x[j] = orig
		col := make([]float64, nzOut)
		for k := range col {
			col[k] = (fp[k] - rm[f.fdOut][k]) / (2 * h)
		}
		cols[j] = col
	}

	out := make([]float64, f.fdSp.NNZ())
	for e, pr := range f.fdPairs {
		out[e] = cols[pr[1]][pr[0]]
	}

	return [][]float64{out}, nil
}

// checkIO validates an (output, input) index pair.
func (f *Function) checkIO(iout, iin int) error {
	if iout < 0 || iout >= len(f.outSp) || iin < 0 || iin >= len(f.inSp) {
		return fmt.Errorf("%w: output %d input %d for signature %dx%d", ErrShapeMismatch, iout, iin, len(f.outSp), len(f.inSp))
	}

	return nil
}

// buffers allocates one zeroed nonzero vector per pattern.
func buffers(sps []*sparsity.Pattern) [][]float64 {
	out := make([][]float64, len(sps))
	for i, sp := range sps {
		out[i] = make([]float64, sp.NNZ())
	}

	return out
}

// dirBuffers allocates ndir direction slots of one vector per pattern.
func dirBuffers(ndir int, sps []*sparsity.Pattern) [][][]float64 {
	out := make([][][]float64, ndir)
	for d := range out {
		out[d] = buffers(sps)
	}

	return out
}

// flatOffsets maps each structural nonzero of p to its row-major flat
// element index.
func flatOffsets(p *sparsity.Pattern) []int {
	ri, ci := p.Triplets()
	out := make([]int, len(ri))
	for k := range ri {
		out[k] = ri[k]*p.Cols() + ci[k]
	}

	return out
}

// flatToNz inverts flatOffsets.
func flatToNz(p *sparsity.Pattern) map[int]int {
	off := flatOffsets(p)
	out := make(map[int]int, len(off))
	for k, fl := range off {
		out[fl] = k
	}

	return out
}
