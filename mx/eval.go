// Package mx: the Tape (topologically ordered node view) and the numeric
// propagation passes. Buffers hold one nonzero vector per node, so a pass
// touches exactly the structural entries and never materializes zeros.

package mx

import (
	"fmt"

	"github.com/onedigit/casadi/sx"
)

// Tape is a topologically sorted view of every node reachable from a set of
// roots: operands always precede their parents. A Tape holds no evaluation
// state of its own, so one Tape may serve any number of concurrent passes as
// long as each pass brings its own buffers.
type Tape struct {
	order  []*Node
	index  map[*Node]int
	argIdx [][]int32

	groups map[*callGroup]*groupInfo
}

// groupInfo locates one Call invocation on the tape.
type groupInfo struct {
	min  int   // lowest tape index among the group's outputs
	outs []int // tape index per callee output, -1 when that output is unused
}

// NewTape builds the dependency-ordered node list reachable from roots.
//
// Complexity: O(nodes + edges); iterative, so graph depth is not bounded by
// the goroutine stack.
func NewTape(roots ...*Node) (*Tape, error) {
	const (
		onStack = 1
		done    = 2
	)
	t := &Tape{index: make(map[*Node]int), groups: make(map[*callGroup]*groupInfo)}
	state := make(map[*Node]uint8)

	type frame struct {
		n    *Node
		next int // operand cursor; emit once past the last operand
	}
	var stack []frame
	for _, root := range roots {
		if root == nil {
			return nil, fmt.Errorf("%w: nil root", ErrShapeMismatch)
		}
		if state[root] == done {
			continue
		}
		stack = append(stack, frame{n: root})
		state[root] = onStack
		for len(stack) > 0 {
			f := &stack[len(stack)-1]
			if f.next >= len(f.n.args) {
				t.index[f.n] = len(t.order)
				t.order = append(t.order, f.n)
				state[f.n] = done
				stack = stack[:len(stack)-1]

				continue
			}
			child := f.n.args[f.next]
			f.next++
			if state[child] == done {
				continue
			}
			if state[child] == onStack {
				return nil, ErrCycle
			}
			state[child] = onStack
			stack = append(stack, frame{n: child})
		}
	}

	// Precompute operand tape offsets and Call-group positions once; every
	// pass reuses them.
	t.argIdx = make([][]int32, len(t.order))
	for i, n := range t.order {
		idx := make([]int32, len(n.args))
		for a, arg := range n.args {
			idx[a] = int32(t.index[arg])
		}
		t.argIdx[i] = idx
		if n.kind != KindCall {
			continue
		}
		g, ok := t.groups[n.group]
		if !ok {
			g = &groupInfo{min: i, outs: make([]int, n.group.callee.NumOutputs())}
			for o := range g.outs {
				g.outs[o] = -1
			}
			t.groups[n.group] = g
		}
		if i < g.min {
			g.min = i
		}
		g.outs[n.out] = i
	}

	return t, nil
}

// Len returns the number of nodes on the tape.
func (t *Tape) Len() int { return len(t.order) }

// At returns the i-th node in dependency order.
func (t *Tape) At(i int) *Node { return t.order[i] }

// Index returns the tape position of n, if n is on the tape.
func (t *Tape) Index(n *Node) (int, bool) {
	i, ok := t.index[n]

	return i, ok
}

// Symbols returns the input placeholders on the tape in dependency order.
func (t *Tape) Symbols() []*Node {
	var syms []*Node
	for _, n := range t.order {
		if n.kind == KindSym {
			syms = append(syms, n)
		}
	}

	return syms
}

// at reads a routed operand entry, with -1 meaning structural zero.
func at(v []float64, m int32) float64 {
	if m < 0 {
		return 0
	}

	return v[m]
}

// argValues gathers the operand nonzero vectors of node i.
func (t *Tape) argValues(i int, vals [][]float64) [][]float64 {
	out := make([][]float64, len(t.argIdx[i]))
	for a, j := range t.argIdx[i] {
		out[a] = vals[j]
	}

	return out
}

// Values numerically evaluates every node in one pass. bind supplies the
// nonzero vector of each input placeholder; a binding failure aborts the
// pass. Each Call invocation evaluates its callee exactly once, however many
// outputs are in use.
//
// Complexity: O(Σ nnz + Σ contraction terms) plus callee costs.
func (t *Tape) Values(bind func(sym *Node) ([]float64, error)) ([][]float64, error) {
	vals := make([][]float64, len(t.order))
	callRes := make(map[*callGroup][][]float64)
	for i, n := range t.order {
		switch n.kind {
		case KindSym:
			v, err := bind(n)
			if err != nil {
				return nil, err
			}
			if len(v) != n.NNZ() {
				return nil, fmt.Errorf("%w: %d values bound to symbol %q with %v", ErrShapeMismatch, len(v), n.name, n.sp)
			}
			vals[i] = append([]float64(nil), v...)
		case KindConst:
			vals[i] = n.vals
		case KindCall:
			res, ok := callRes[n.group]
			if !ok {
				var err error
				res, _, _, err = n.group.callee.CallNumeric(t.argValues(i, vals), nil, nil)
				if err != nil {
					return nil, err
				}
				callRes[n.group] = res
			}
			vals[i] = res[n.out]
		default:
			vals[i] = t.evalLocal(i, n, vals)
		}
	}

	return vals, nil
}

// evalLocal applies the node's local evaluation rule to its operand vectors.
func (t *Tape) evalLocal(i int, n *Node, vals [][]float64) []float64 {
	out := make([]float64, n.NNZ())
	idx := t.argIdx[i]
	switch n.kind {
	case KindUnary:
		xv := vals[idx[0]]
		for k, m := range n.map1 {
			out[k] = sx.EvalOp(n.op, at(xv, m), 0)
		}
	case KindBinary:
		xv, yv := vals[idx[0]], vals[idx[1]]
		for k := range out {
			out[k] = sx.EvalOp(n.op, at(xv, n.map1[k]), at(yv, n.map2[k]))
		}
	case KindProject:
		xv := vals[idx[0]]
		for k, m := range n.map1 {
			if m >= 0 {
				out[k] = xv[m]
			}
		}
	case KindTranspose, KindReshape, KindSubmatrix:
		xv := vals[idx[0]]
		for k, m := range n.map1 {
			out[k] = xv[m]
		}
	case KindVertcat, KindHorzcat:
		for k := range out {
			out[k] = vals[idx[n.srcArg[k]]][n.map1[k]]
		}
	case KindSetSubmatrix:
		xv, sv := vals[idx[0]], vals[idx[1]]
		for k := range out {
			if n.map1[k] >= 0 {
				out[k] = xv[n.map1[k]]
			} else {
				out[k] = sv[n.map2[k]]
			}
		}
	case KindMatMul:
		xv, yv := vals[idx[0]], vals[idx[1]]
		for _, p := range n.prog {
			out[p[0]] += xv[p[1]] * yv[p[2]]
		}
	case KindDot:
		xv, yv := vals[idx[0]], vals[idx[1]]
		s := 0.0
		for k := range n.map1 {
			s += xv[n.map1[k]] * yv[n.map2[k]]
		}
		out[0] = s
	}

	return out
}

// Forward propagates ndir forward directions in one pass. vals must come
// from Values on the same tape. fdot is node-major (entry i*ndir+d holds
// direction d of node i, one float64 per nonzero); the caller pre-seeds the
// symbol entries and Forward fills in every other node, leaving symbol
// entries untouched.
//
// Complexity: O((Σ nnz + Σ contraction terms) · ndir) plus callee costs.
func (t *Tape) Forward(vals, fdot [][]float64, ndir int) error {
	if len(vals) != len(t.order) || len(fdot) != len(t.order)*ndir {
		return fmt.Errorf("%w: forward buffers sized %d/%d for tape of %d", ErrShapeMismatch, len(vals), len(fdot), len(t.order))
	}
	callSens := make(map[*callGroup][][][]float64)
	for i, n := range t.order {
		switch n.kind {
		case KindSym:
			for d := 0; d < ndir; d++ {
				if fdot[i*ndir+d] == nil {
					fdot[i*ndir+d] = make([]float64, n.NNZ())
				}
			}
		case KindConst:
			for d := 0; d < ndir; d++ {
				fdot[i*ndir+d] = make([]float64, n.NNZ())
			}
		case KindCall:
			sens, ok := callSens[n.group]
			if !ok {
				seeds := make([][][]float64, ndir)
				for d := 0; d < ndir; d++ {
					seeds[d] = make([][]float64, len(t.argIdx[i]))
					for a, j := range t.argIdx[i] {
						seeds[d][a] = fdot[int(j)*ndir+d]
					}
				}
				var err error
				_, sens, _, err = n.group.callee.CallNumeric(t.argValues(i, vals), seeds, nil)
				if err != nil {
					return err
				}
				callSens[n.group] = sens
			}
			for d := 0; d < ndir; d++ {
				fdot[i*ndir+d] = sens[d][n.out]
			}
		default:
			for d := 0; d < ndir; d++ {
				fdot[i*ndir+d] = t.forwardLocal(i, n, vals, fdot, ndir, d)
			}
		}
	}

	return nil
}

// forwardLocal computes one direction of the node's tangent from its operand
// tangents.
func (t *Tape) forwardLocal(i int, n *Node, vals, fdot [][]float64, ndir, d int) []float64 {
	out := make([]float64, n.NNZ())
	idx := t.argIdx[i]
	dot := func(a int32) []float64 { return fdot[int(idx[a])*ndir+d] }
	switch n.kind {
	case KindUnary:
		xv, xd := vals[idx[0]], dot(0)
		for k, m := range n.map1 {
			if m < 0 {
				continue
			}
			dx, _ := sx.Derivative(n.op, xv[m], 0, vals[i][k])
			out[k] = dx * xd[m]
		}
	case KindBinary:
		xv, yv := vals[idx[0]], vals[idx[1]]
		xd, yd := dot(0), dot(1)
		for k := range out {
			m1, m2 := n.map1[k], n.map2[k]
			dx, dy := sx.Derivative(n.op, at(xv, m1), at(yv, m2), vals[i][k])
			v := 0.0
			if m1 >= 0 {
				v += dx * xd[m1]
			}
			if m2 >= 0 {
				v += dy * yd[m2]
			}
			out[k] = v
		}
	case KindProject:
		xd := dot(0)
		for k, m := range n.map1 {
			if m >= 0 {
				out[k] = xd[m]
			}
		}
	case KindTranspose, KindReshape, KindSubmatrix:
		xd := dot(0)
		for k, m := range n.map1 {
			out[k] = xd[m]
		}
	case KindVertcat, KindHorzcat:
		for k := range out {
			out[k] = fdot[int(idx[n.srcArg[k]])*ndir+d][n.map1[k]]
		}
	case KindSetSubmatrix:
		xd, sd := dot(0), dot(1)
		for k := range out {
			if n.map1[k] >= 0 {
				out[k] = xd[n.map1[k]]
			} else {
				out[k] = sd[n.map2[k]]
			}
		}
	case KindMatMul:
		xv, yv := vals[idx[0]], vals[idx[1]]
		xd, yd := dot(0), dot(1)
		// dC = dA·B + A·dB over the fixed contraction program.
		for _, p := range n.prog {
			out[p[0]] += xd[p[1]]*yv[p[2]] + xv[p[1]]*yd[p[2]]
		}
	case KindDot:
		xv, yv := vals[idx[0]], vals[idx[1]]
		xd, yd := dot(0), dot(1)
		s := 0.0
		for k := range n.map1 {
			s += xd[n.map1[k]]*yv[n.map2[k]] + xv[n.map1[k]]*yd[n.map2[k]]
		}
		out[0] = s
	}

	return out
}

// Reverse propagates ndir adjoint directions in one reverse pass. vals must
// come from Values on the same tape. adj is node-major; the caller seeds the
// output entries (nil meaning zero) and on return every entry holds its
// node's adjoint nonzero vector. A Call invocation propagates once, at the
// point where all of its outputs' adjoints have accumulated.
//
// Complexity: O((Σ nnz + Σ contraction terms) · ndir) plus callee costs.
func (t *Tape) Reverse(vals, adj [][]float64, ndir int) error {
	if len(vals) != len(t.order) || len(adj) != len(t.order)*ndir {
		return fmt.Errorf("%w: reverse buffers sized %d/%d for tape of %d", ErrShapeMismatch, len(vals), len(adj), len(t.order))
	}
	// buf lazily materializes an accumulation target.
	buf := func(i, d int) []float64 {
		if adj[i*ndir+d] == nil {
			adj[i*ndir+d] = make([]float64, t.order[i].NNZ())
		}

		return adj[i*ndir+d]
	}
	for i := len(t.order) - 1; i >= 0; i-- {
		n := t.order[i]
		switch n.kind {
		case KindSym, KindConst:
			// Terminal.
		case KindCall:
			g := t.groups[n.group]
			if i != g.min {
				continue // handled at the group's lowest output
			}
			callee := n.group.callee
			seeds := make([][][]float64, ndir)
			for d := 0; d < ndir; d++ {
				seeds[d] = make([][]float64, len(g.outs))
				for o, ti := range g.outs {
					if ti >= 0 && adj[ti*ndir+d] != nil {
						seeds[d][o] = adj[ti*ndir+d]
					} else {
						seeds[d][o] = make([]float64, callee.OutputSparsity(o).NNZ())
					}
				}
			}
			_, _, sens, err := callee.CallNumeric(t.argValues(i, vals), nil, seeds)
			if err != nil {
				return err
			}
			for d := 0; d < ndir; d++ {
				for a, j := range t.argIdx[i] {
					dst := buf(int(j), d)
					for k, v := range sens[d][a] {
						dst[k] += v
					}
				}
			}
		default:
			for d := 0; d < ndir; d++ {
				if adj[i*ndir+d] == nil {
					continue // no seed reached this node in direction d
				}
				t.reverseLocal(i, n, vals, adj, ndir, d, buf)
			}
		}
	}
	// Normalize: nil entries read as explicit zeros.
	for i, n := range t.order {
		for d := 0; d < ndir; d++ {
			if adj[i*ndir+d] == nil {
				adj[i*ndir+d] = make([]float64, n.NNZ())
			}
		}
	}

	return nil
}

// reverseLocal scatters one direction of the node's adjoint back onto its
// operands.
func (t *Tape) reverseLocal(i int, n *Node, vals, adj [][]float64, ndir, d int, buf func(int, int) []float64) {
	w := adj[i*ndir+d]
	idx := t.argIdx[i]
	switch n.kind {
	case KindUnary:
		xv := vals[idx[0]]
		xa := buf(int(idx[0]), d)
		for k, m := range n.map1 {
			if m < 0 || w[k] == 0 {
				continue
			}
			dx, _ := sx.Derivative(n.op, xv[m], 0, vals[i][k])
			xa[m] += dx * w[k]
		}
	case KindBinary:
		xv, yv := vals[idx[0]], vals[idx[1]]
		xa, ya := buf(int(idx[0]), d), buf(int(idx[1]), d)
		for k := range w {
			if w[k] == 0 {
				continue
			}
			m1, m2 := n.map1[k], n.map2[k]
			dx, dy := sx.Derivative(n.op, at(xv, m1), at(yv, m2), vals[i][k])
			if m1 >= 0 {
				xa[m1] += dx * w[k]
			}
			if m2 >= 0 {
				ya[m2] += dy * w[k]
			}
		}
	case KindProject:
		xa := buf(int(idx[0]), d)
		for k, m := range n.map1 {
			if m >= 0 {
				xa[m] += w[k]
			}
		}
	case KindTranspose, KindReshape, KindSubmatrix:
		xa := buf(int(idx[0]), d)
		// Repeated read indices accumulate here, matching the expanded
		// scalar graph.
		for k, m := range n.map1 {
			xa[m] += w[k]
		}
	case KindVertcat, KindHorzcat:
		for k := range w {
			buf(int(idx[n.srcArg[k]]), d)[n.map1[k]] += w[k]
		}
	case KindSetSubmatrix:
		xa, sa := buf(int(idx[0]), d), buf(int(idx[1]), d)
		// Overwritten target entries receive nothing: the write severed them.
		for k := range w {
			if n.map1[k] >= 0 {
				xa[n.map1[k]] += w[k]
			} else {
				sa[n.map2[k]] += w[k]
			}
		}
	case KindMatMul:
		xv, yv := vals[idx[0]], vals[idx[1]]
		xa, ya := buf(int(idx[0]), d), buf(int(idx[1]), d)
		// adj(A) += adj(C)·Bᵀ and adj(B) += Aᵀ·adj(C), term by term.
		for _, p := range n.prog {
			xa[p[1]] += w[p[0]] * yv[p[2]]
			ya[p[2]] += xv[p[1]] * w[p[0]]
		}
	case KindDot:
		xv, yv := vals[idx[0]], vals[idx[1]]
		xa, ya := buf(int(idx[0]), d), buf(int(idx[1]), d)
		for k := range n.map1 {
			xa[n.map1[k]] += w[0] * yv[n.map2[k]]
			ya[n.map2[k]] += w[0] * xv[n.map1[k]]
		}
	}
}
