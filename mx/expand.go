// Package mx: expansion. Lowers every matrix node to its scalar (package sx)
// form, one expression node per structural nonzero. Sparsity gates the
// lowering: structural zeros never materialize, and a matrix multiply lowers
// to exactly the sum-of-products terms its contraction program names.

package mx

import (
	"fmt"

	"github.com/onedigit/casadi/sx"
)

// Expand lowers every tape node to a scalar matrix. bind supplies the scalar
// form of each input placeholder, which must carry the placeholder's exact
// pattern (ErrShapeMismatch). Constant folding in the sx combinators applies
// during lowering.
//
// Complexity: O(Σ nnz + Σ contraction terms) scalar-node constructions plus
// callee lowering costs.
func (t *Tape) Expand(bind func(sym *Node) (sx.Matrix, error)) ([]sx.Matrix, error) {
	low := make([]sx.Matrix, len(t.order))
	callOuts := make(map[*callGroup][]sx.Matrix)
	for i, n := range t.order {
		switch n.kind {
		case KindSym:
			m, err := bind(n)
			if err != nil {
				return nil, err
			}
			if !m.Sparsity().Equal(n.sp) {
				return nil, fmt.Errorf("%w: scalar form of symbol %q must keep pattern %v", ErrShapeMismatch, n.name, n.sp)
			}
			low[i] = m
		case KindConst:
			m, err := sx.ConstMatrix(n.sp, n.vals)
			if err != nil {
				return nil, err
			}
			low[i] = m
		case KindCall:
			outs, ok := callOuts[n.group]
			if !ok {
				args := make([]sx.Matrix, len(t.argIdx[i]))
				for a, j := range t.argIdx[i] {
					args[a] = low[j]
				}
				var err error
				outs, err = n.group.callee.CallScalar(args)
				if err != nil {
					return nil, err
				}
				if len(outs) != n.group.callee.NumOutputs() {
					return nil, fmt.Errorf("%w: %q lowered to %d outputs", ErrShapeMismatch, n.group.callee.Name(), len(outs))
				}
				callOuts[n.group] = outs
			}
			if !outs[n.out].Sparsity().Equal(n.sp) {
				return nil, fmt.Errorf("%w: scalar form of %q output %d must keep pattern %v", ErrShapeMismatch, n.group.callee.Name(), n.out, n.sp)
			}
			low[i] = outs[n.out]
		default:
			m, err := t.expandLocal(i, n, low)
			if err != nil {
				return nil, err
			}
			low[i] = m
		}
	}

	return low, nil
}

// expandLocal lowers one node from its operands' scalar forms.
func (t *Tape) expandLocal(i int, n *Node, low []sx.Matrix) (sx.Matrix, error) {
	idx := t.argIdx[i]
	// pick reads a routed operand entry, -1 lowering to a constant zero.
	pick := func(a int, m int32) *sx.Node {
		if m < 0 {
			return sx.Zero()
		}

		return low[idx[a]].Nz(int(m))
	}
	nodes := make([]*sx.Node, n.NNZ())
	switch n.kind {
	case KindUnary:
		for k, m := range n.map1 {
			nodes[k] = sx.Apply(n.op, pick(0, m), nil)
		}
	case KindBinary:
		for k := range nodes {
			nodes[k] = sx.Apply(n.op, pick(0, n.map1[k]), pick(1, n.map2[k]))
		}
	case KindProject:
		for k, m := range n.map1 {
			nodes[k] = pick(0, m)
		}
	case KindTranspose, KindReshape, KindSubmatrix:
		for k, m := range n.map1 {
			nodes[k] = pick(0, m)
		}
	case KindVertcat, KindHorzcat:
		for k := range nodes {
			nodes[k] = pick(int(n.srcArg[k]), n.map1[k])
		}
	case KindSetSubmatrix:
		for k := range nodes {
			if n.map1[k] >= 0 {
				nodes[k] = pick(0, n.map1[k])
			} else {
				nodes[k] = pick(1, n.map2[k])
			}
		}
	case KindMatMul:
		for _, p := range n.prog {
			term := sx.Mul(pick(0, p[1]), pick(1, p[2]))
			if nodes[p[0]] == nil {
				nodes[p[0]] = term

				continue
			}
			nodes[p[0]] = sx.Add(nodes[p[0]], term)
		}
		for k, nd := range nodes {
			if nd == nil {
				nodes[k] = sx.Zero()
			}
		}
	case KindDot:
		sum := sx.Zero()
		for k := range n.map1 {
			sum = sx.Add(sum, sx.Mul(pick(0, n.map1[k]), pick(1, n.map2[k])))
		}
		nodes[0] = sum
	default:
		return sx.Matrix{}, fmt.Errorf("%w: expansion of %s node", ErrUnsupportedDifferentiation, n.kind)
	}

	return sx.NewMatrix(n.sp, nodes)
}
