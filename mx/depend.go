// Package mx: bit-parallel structural dependency propagation, the pass behind
// Jacobian sparsity inference. Value-independent: only the routing tables and
// contraction programs of the nodes are consulted.

package mx

import "fmt"

// Depend propagates structural dependency bitsets (64 seeds per word) forward
// in one pass. dep is node-major: entry i holds nwords words per nonzero of
// node i, pre-seeded at symbol entries (nil meaning no seeds); every other
// node receives the union of the bits its nonzeros structurally read.
//
// Complexity: O((Σ nnz + Σ contraction terms) · nwords) plus callee costs.
func (t *Tape) Depend(dep [][]uint64, nwords int) error {
	if len(dep) != len(t.order) {
		return fmt.Errorf("%w: depend buffer sized %d for tape of %d", ErrShapeMismatch, len(dep), len(t.order))
	}
	callDeps := make(map[*callGroup][][]uint64)
	get := func(j int32) []uint64 { return dep[j] }
	for i, n := range t.order {
		switch n.kind {
		case KindSym:
			if dep[i] == nil {
				dep[i] = make([]uint64, n.NNZ()*nwords)
			}
			if len(dep[i]) != n.NNZ()*nwords {
				return fmt.Errorf("%w: depend seed sized %d for symbol %q", ErrShapeMismatch, len(dep[i]), n.name)
			}
		case KindConst:
			dep[i] = make([]uint64, n.NNZ()*nwords)
		case KindCall:
			res, ok := callDeps[n.group]
			if !ok {
				args := make([][]uint64, len(t.argIdx[i]))
				for a, j := range t.argIdx[i] {
					args[a] = dep[j]
				}
				var err error
				res, err = n.group.callee.CallDepend(args, nwords)
				if err != nil {
					return err
				}
				callDeps[n.group] = res
			}
			dep[i] = res[n.out]
		default:
			dep[i] = t.dependLocal(i, n, get, nwords)
		}
	}

	return nil
}

// dependLocal unions operand bitsets along the node's structural reads.
func (t *Tape) dependLocal(i int, n *Node, get func(int32) []uint64, nwords int) []uint64 {
	out := make([]uint64, n.NNZ()*nwords)
	idx := t.argIdx[i]
	or := func(k int, src []uint64, m int32) {
		if m < 0 {
			return
		}
		for w := 0; w < nwords; w++ {
			out[k*nwords+w] |= src[int(m)*nwords+w]
		}
	}
	switch n.kind {
	case KindUnary, KindProject, KindTranspose, KindReshape, KindSubmatrix:
		src := get(idx[0])
		for k, m := range n.map1 {
			or(k, src, m)
		}
	case KindBinary:
		xs, ys := get(idx[0]), get(idx[1])
		for k := range n.map1 {
			or(k, xs, n.map1[k])
			or(k, ys, n.map2[k])
		}
	case KindVertcat, KindHorzcat:
		for k := range n.map1 {
			or(k, get(idx[n.srcArg[k]]), n.map1[k])
		}
	case KindSetSubmatrix:
		xs, ys := get(idx[0]), get(idx[1])
		for k := range n.map1 {
			or(k, xs, n.map1[k])
			or(k, ys, n.map2[k])
		}
	case KindMatMul:
		xs, ys := get(idx[0]), get(idx[1])
		for _, p := range n.prog {
			or(int(p[0]), xs, p[1])
			or(int(p[0]), ys, p[2])
		}
	case KindDot:
		xs, ys := get(idx[0]), get(idx[1])
		for k := range n.map1 {
			or(0, xs, n.map1[k])
			or(0, ys, n.map2[k])
		}
	}

	return out
}
