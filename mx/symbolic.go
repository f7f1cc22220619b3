// Package mx: symbolic passes. Substitution rebuilds nodes through the public
// combinators; symbolic seeding produces Node-valued tangents and adjoints,
// which is what makes derivative expressions differentiable again.
//
// Pattern discipline: the tangent and the adjoint of a node always carry that
// node's exact sparsity pattern. Every rule projects its operand seeds and its
// result onto the owning pattern, so the per-operator formulas can rely on
// compatible operand patterns (in particular for Div, whose right operand must
// be scalar, dense or pattern-matching).

package mx

import (
	"fmt"

	"github.com/onedigit/casadi/sparsity"
	"github.com/onedigit/casadi/sx"
)

// zeroLike returns an explicit all-zero constant over sp.
func zeroLike(sp *sparsity.Pattern) *Node {
	return &Node{kind: KindConst, sp: sp, vals: make([]float64, sp.NNZ())}
}

// onesLike returns an all-one constant over sp.
func onesLike(sp *sparsity.Pattern) *Node {
	vals := make([]float64, sp.NNZ())
	for i := range vals {
		vals[i] = 1
	}

	return &Node{kind: KindConst, sp: sp, vals: vals}
}

// isZeroNode reports whether n is a constant with no nonzero values, which is
// how the symbolic passes recognize vanished seeds.
func isZeroNode(n *Node) bool {
	if n == nil {
		return true
	}
	if n.kind != KindConst {
		return false
	}
	for _, v := range n.vals {
		if v != 0 {
			return false
		}
	}

	return true
}

// SymbolicValues rebuilds every node with substituted symbols: bind maps each
// input placeholder to its replacement expression, which must carry the
// placeholder's exact pattern (ErrShapeMismatch).
//
// Complexity: O(len(tape)) constructor calls.
func (t *Tape) SymbolicValues(bind func(sym *Node) (*Node, error)) ([]*Node, error) {
	subs := make([]*Node, len(t.order))
	callOuts := make(map[*callGroup][]*Node)
	for i, n := range t.order {
		switch n.kind {
		case KindSym:
			s, err := bind(n)
			if err != nil {
				return nil, err
			}
			if s == nil || !s.sp.Equal(n.sp) {
				return nil, fmt.Errorf("%w: substitution for symbol %q must keep pattern %v", ErrShapeMismatch, n.name, n.sp)
			}
			subs[i] = s
		case KindConst:
			subs[i] = n
		case KindCall:
			outs, ok := callOuts[n.group]
			if !ok {
				args := make([]*Node, len(t.argIdx[i]))
				for a, j := range t.argIdx[i] {
					args[a] = subs[j]
				}
				var err error
				outs, err = Call(n.group.callee, args...)
				if err != nil {
					return nil, err
				}
				callOuts[n.group] = outs
			}
			subs[i] = outs[n.out]
		default:
			r, err := t.rebuild(i, n, subs)
			if err != nil {
				return nil, err
			}
			subs[i] = r
		}
	}

	return subs, nil
}

// rebuild reconstructs node i from substituted operands.
func (t *Tape) rebuild(i int, n *Node, subs []*Node) (*Node, error) {
	arg := func(a int) *Node { return subs[t.argIdx[i][a]] }
	switch n.kind {
	case KindUnary:
		return unary(n.op, arg(0)), nil
	case KindBinary:
		return binary(n.op, arg(0), arg(1))
	case KindProject:
		return Project(arg(0), n.sp)
	case KindTranspose:
		return Transpose(arg(0)), nil
	case KindReshape:
		return Reshape(arg(0), n.Rows(), n.Cols())
	case KindVertcat, KindHorzcat:
		args := make([]*Node, len(n.args))
		for a := range args {
			args[a] = arg(a)
		}
		if n.kind == KindVertcat {
			return Vertcat(args...)
		}

		return Horzcat(args...)
	case KindSubmatrix:
		return Submatrix(arg(0), n.idxRows, n.idxCols)
	case KindSetSubmatrix:
		return SetSubmatrix(arg(0), arg(1), n.idxRows, n.idxCols)
	case KindMatMul:
		return MatMul(arg(0), arg(1))
	case KindDot:
		return Dot(arg(0), arg(1))
	default:
		return nil, fmt.Errorf("%w: rebuild of %s node", ErrUnsupportedDifferentiation, n.kind)
	}
}

// SymbolicForward is Forward with Node-valued seeds: it produces a symbolic
// directional derivative expression per node and direction. subs must come
// from SymbolicValues on the same tape; fdot is node-major with symbol
// entries seeded (nil meaning zero) and is filled for every other node.
// Seeding through a Call whose arguments carry nonzero tangents reports
// ErrUnsupportedDifferentiation; expand the graph first to differentiate it.
func (t *Tape) SymbolicForward(subs, fdot []*Node, ndir int) error {
	if len(subs) != len(t.order) || len(fdot) != len(t.order)*ndir {
		return fmt.Errorf("%w: symbolic forward buffers sized %d/%d for tape of %d", ErrShapeMismatch, len(subs), len(fdot), len(t.order))
	}
	for i, n := range t.order {
		switch n.kind {
		case KindSym:
			for d := 0; d < ndir; d++ {
				seed := fdot[i*ndir+d]
				if seed == nil {
					fdot[i*ndir+d] = zeroLike(n.sp)

					continue
				}
				p, err := Project(seed, n.sp)
				if err != nil {
					return err
				}
				fdot[i*ndir+d] = p
			}
		case KindConst:
			for d := 0; d < ndir; d++ {
				fdot[i*ndir+d] = zeroLike(n.sp)
			}
		case KindCall:
			for d := 0; d < ndir; d++ {
				for _, j := range t.argIdx[i] {
					if !isZeroNode(fdot[int(j)*ndir+d]) {
						return fmt.Errorf("%w: forward seeding through call to %q", ErrUnsupportedDifferentiation, n.group.callee.Name())
					}
				}
				fdot[i*ndir+d] = zeroLike(n.sp)
			}
		default:
			for d := 0; d < ndir; d++ {
				dot, err := t.tangent(i, n, subs, fdot, ndir, d)
				if err != nil {
					return err
				}
				fdot[i*ndir+d], err = Project(dot, n.sp)
				if err != nil {
					return err
				}
			}
		}
	}

	return nil
}

// tangent applies node i's local forward rule to its operands' tangents.
func (t *Tape) tangent(i int, n *Node, subs, fdot []*Node, ndir, d int) (*Node, error) {
	arg := func(a int) *Node { return subs[t.argIdx[i][a]] }
	dot := func(a int) *Node { return fdot[int(t.argIdx[i][a])*ndir+d] }
	switch n.kind {
	case KindUnary:
		return unaryTangent(n.op, arg(0), dot(0))
	case KindBinary:
		return binaryTangent(n.op, arg(0), arg(1), subs[i], dot(0), dot(1))
	case KindProject:
		return Project(dot(0), n.sp)
	case KindTranspose:
		return Transpose(dot(0)), nil
	case KindReshape:
		return Reshape(dot(0), n.Rows(), n.Cols())
	case KindVertcat, KindHorzcat:
		dots := make([]*Node, len(n.args))
		for a := range dots {
			dots[a] = dot(a)
		}
		if n.kind == KindVertcat {
			return Vertcat(dots...)
		}

		return Horzcat(dots...)
	case KindSubmatrix:
		return Submatrix(dot(0), n.idxRows, n.idxCols)
	case KindSetSubmatrix:
		return SetSubmatrix(dot(0), dot(1), n.idxRows, n.idxCols)
	case KindMatMul:
		// dC = dA·B + A·dB.
		t1, err := MatMul(dot(0), arg(1))
		if err != nil {
			return nil, err
		}
		t2, err := MatMul(arg(0), dot(1))
		if err != nil {
			return nil, err
		}

		return Add(t1, t2)
	case KindDot:
		t1, err := Dot(dot(0), arg(1))
		if err != nil {
			return nil, err
		}
		t2, err := Dot(arg(0), dot(1))
		if err != nil {
			return nil, err
		}

		return Add(t1, t2)
	default:
		return nil, fmt.Errorf("%w: tangent of %s node", ErrUnsupportedDifferentiation, n.kind)
	}
}

// unaryTangent builds d(op(x)) from x and its tangent dx (pattern of x).
func unaryTangent(op sx.Op, x, dx *Node) (*Node, error) {
	switch op {
	case sx.OpNeg:
		return Neg(dx), nil
	case sx.OpSqrt:
		den, err := Mul(Scalar(2), Sqrt(x))
		if err != nil {
			return nil, err
		}

		return Div(dx, den)
	case sx.OpExp:
		return Mul(Exp(x), dx)
	case sx.OpLog:
		return Div(dx, x)
	case sx.OpSin:
		return Mul(Cos(x), dx)
	case sx.OpCos:
		m, err := Mul(Sin(x), dx)
		if err != nil {
			return nil, err
		}

		return Neg(m), nil
	default: // OpTan
		den, err := Mul(Cos(x), Cos(x))
		if err != nil {
			return nil, err
		}

		return Div(dx, den)
	}
}

// binaryTangent builds d(x op y) from the operands, the node's substituted
// value z and the operand tangents.
func binaryTangent(op sx.Op, x, y, z, dx, dy *Node) (*Node, error) {
	switch op {
	case sx.OpAdd:
		return Add(dx, dy)
	case sx.OpSub:
		return Sub(dx, dy)
	case sx.OpMul:
		t1, err := Mul(dx, y)
		if err != nil {
			return nil, err
		}
		t2, err := Mul(x, dy)
		if err != nil {
			return nil, err
		}

		return Add(t1, t2)
	case sx.OpDiv:
		// d(x/y) = (dx - z·dy)/y.
		zdy, err := Mul(z, dy)
		if err != nil {
			return nil, err
		}
		num, err := Sub(dx, zdy)
		if err != nil {
			return nil, err
		}

		return Div(num, y)
	default: // OpPow
		// d(x^y) = y·x^(y-1)·dx + z·log(x)·dy.
		px, err := powPartialX(x, y)
		if err != nil {
			return nil, err
		}
		t1, err := Mul(px, dx)
		if err != nil {
			return nil, err
		}
		py, err := Mul(z, Log(x))
		if err != nil {
			return nil, err
		}
		t2, err := Mul(py, dy)
		if err != nil {
			return nil, err
		}

		return Add(t1, t2)
	}
}

// powPartialX builds y·x^(y-1).
func powPartialX(x, y *Node) (*Node, error) {
	ym1, err := Sub(y, Scalar(1))
	if err != nil {
		return nil, err
	}
	p, err := Pow(x, ym1)
	if err != nil {
		return nil, err
	}

	return Mul(y, p)
}

// SymbolicReverse is Reverse with Node-valued seeds. subs must come from
// SymbolicValues on the same tape; adj is node-major with output entries
// seeded (nil meaning zero) and on return holds the symbolic adjoint of every
// node. A nonzero adjoint reaching a Call output reports
// ErrUnsupportedDifferentiation.
func (t *Tape) SymbolicReverse(subs, adj []*Node, ndir int) error {
	if len(subs) != len(t.order) || len(adj) != len(t.order)*ndir {
		return fmt.Errorf("%w: symbolic reverse buffers sized %d/%d for tape of %d", ErrShapeMismatch, len(subs), len(adj), len(t.order))
	}
	for i := len(t.order) - 1; i >= 0; i-- {
		n := t.order[i]
		for d := 0; d < ndir; d++ {
			seed := adj[i*ndir+d]
			if seed == nil || isZeroNode(seed) {
				continue
			}
			w, err := Project(seed, n.sp)
			if err != nil {
				return err
			}
			adj[i*ndir+d] = w
			switch n.kind {
			case KindSym, KindConst:
				// Terminal.
			case KindCall:
				return fmt.Errorf("%w: adjoint seeding through call to %q", ErrUnsupportedDifferentiation, n.group.callee.Name())
			default:
				if err := t.pullback(i, n, subs, adj, ndir, d, w); err != nil {
					return err
				}
			}
		}
	}
	// Normalize: nil entries read as explicit zeros of the node's pattern.
	for i, n := range t.order {
		for d := 0; d < ndir; d++ {
			if adj[i*ndir+d] == nil {
				adj[i*ndir+d] = zeroLike(n.sp)
			}
		}
	}

	return nil
}

// accumulate adds a contribution (already projected onto the target node's
// pattern) into the adjoint slot of tape node j.
func (t *Tape) accumulate(adj []*Node, j int32, ndir, d int, c *Node) error {
	slot := int(j)*ndir + d
	if adj[slot] == nil || isZeroNode(adj[slot]) {
		adj[slot] = c

		return nil
	}
	s, err := Add(adj[slot], c)
	if err != nil {
		return err
	}
	adj[slot] = s

	return nil
}

// reduceTo shapes a raw adjoint contribution for its target operand: a
// broadcast 1×1 operand collects the total sum, anything else projects onto
// the operand's pattern.
func reduceTo(c, operand *Node) (*Node, error) {
	if operand.sp.IsScalar() && !c.sp.IsScalar() {
		return Dot(c, onesLike(c.sp))
	}

	return Project(c, operand.sp)
}

// pullback scatters the adjoint w of node i back onto its operands.
func (t *Tape) pullback(i int, n *Node, subs, adj []*Node, ndir, d int, w *Node) error {
	arg := func(a int) *Node { return subs[t.argIdx[i][a]] }
	acc := func(a int, c *Node) error {
		r, err := reduceTo(c, arg(a))
		if err != nil {
			return err
		}

		return t.accumulate(adj, t.argIdx[i][a], ndir, d, r)
	}
	switch n.kind {
	case KindUnary:
		wx, err := Project(w, arg(0).sp)
		if err != nil {
			return err
		}
		c, err := unaryTangent(n.op, arg(0), wx)
		if err != nil {
			return err
		}

		return acc(0, c)
	case KindBinary:
		cx, cy, err := binaryPullback(n.op, arg(0), arg(1), subs[i], w)
		if err != nil {
			return err
		}
		if err := acc(0, cx); err != nil {
			return err
		}

		return acc(1, cy)
	case KindProject, KindTranspose, KindReshape:
		var c *Node
		var err error
		switch n.kind {
		case KindProject:
			c, err = Project(w, arg(0).sp)
		case KindTranspose:
			c = Transpose(w)
		default:
			c, err = Reshape(w, arg(0).Rows(), arg(0).Cols())
		}
		if err != nil {
			return err
		}

		return acc(0, c)
	case KindVertcat, KindHorzcat:
		off := 0
		for a := range n.args {
			var rows, cols []int
			if n.kind == KindVertcat {
				rows = intRange(off, arg(a).Rows())
				cols = intRange(0, n.Cols())
				off += arg(a).Rows()
			} else {
				rows = intRange(0, n.Rows())
				cols = intRange(off, arg(a).Cols())
				off += arg(a).Cols()
			}
			c, err := Submatrix(w, rows, cols)
			if err != nil {
				return err
			}
			if err := acc(a, c); err != nil {
				return err
			}
		}

		return nil
	case KindSubmatrix:
		c, err := scatterAdjoint(w, arg(0), n.idxRows, n.idxCols)
		if err != nil {
			return err
		}

		return acc(0, c)
	case KindSetSubmatrix:
		// The write severed the overwritten target region: erase it from the
		// adjoint flowing back to the target.
		ct, err := SetSubmatrix(w, Zero(len(n.idxRows), len(n.idxCols)), n.idxRows, n.idxCols)
		if err != nil {
			return err
		}
		if err := acc(0, ct); err != nil {
			return err
		}
		cs, err := subAdjoint(n, w, arg(1))
		if err != nil {
			return err
		}

		return acc(1, cs)
	case KindMatMul:
		cx, err := MatMul(w, Transpose(arg(1)))
		if err != nil {
			return err
		}
		if err := acc(0, cx); err != nil {
			return err
		}
		cy, err := MatMul(Transpose(arg(0)), w)
		if err != nil {
			return err
		}

		return acc(1, cy)
	case KindDot:
		cx, err := Mul(w, arg(1))
		if err != nil {
			return err
		}
		if err := acc(0, cx); err != nil {
			return err
		}
		cy, err := Mul(w, arg(0))
		if err != nil {
			return err
		}

		return acc(1, cy)
	default:
		return fmt.Errorf("%w: pullback of %s node", ErrUnsupportedDifferentiation, n.kind)
	}
}

// binaryPullback builds the raw (unreduced) adjoint contributions of x op y.
func binaryPullback(op sx.Op, x, y, z, w *Node) (cx, cy *Node, err error) {
	switch op {
	case sx.OpAdd:
		return w, w, nil
	case sx.OpSub:
		return w, Neg(w), nil
	case sx.OpMul:
		if cx, err = Mul(w, y); err != nil {
			return nil, nil, err
		}
		if cy, err = Mul(w, x); err != nil {
			return nil, nil, err
		}

		return cx, cy, nil
	case sx.OpDiv:
		// ∂(x/y)/∂x = 1/y, ∂(x/y)/∂y = -z/y.
		if cx, err = Div(w, y); err != nil {
			return nil, nil, err
		}
		if cy, err = Mul(cx, z); err != nil {
			return nil, nil, err
		}

		return cx, Neg(cy), nil
	default: // OpPow
		px, err := powPartialX(x, y)
		if err != nil {
			return nil, nil, err
		}
		if cx, err = Mul(w, px); err != nil {
			return nil, nil, err
		}
		py, err := Mul(z, Log(x))
		if err != nil {
			return nil, nil, err
		}
		if cy, err = Mul(w, py); err != nil {
			return nil, nil, err
		}

		return cx, cy, nil
	}
}

// scatterAdjoint spreads the adjoint of an indexed read back over the source:
// entry (i,j) of w lands on source position (rows[i], cols[j]). Duplicate read
// positions must sum, which the indexed-write combinator (last write wins)
// cannot express, so duplicates take a per-position path.
func scatterAdjoint(w, src *Node, rows, cols []int) (*Node, error) {
	if !hasDuplicates(rows) && !hasDuplicates(cols) {
		return SetSubmatrix(Zero(src.Rows(), src.Cols()), w, rows, cols)
	}
	// Group read-grid entries by target position and sum each group.
	type entry struct{ i, j int }
	groups := make(map[int][]entry)
	var order []int
	for i, r := range rows {
		for j, c := range cols {
			flat := r*src.Cols() + c
			if _, ok := groups[flat]; !ok {
				order = append(order, flat)
			}
			groups[flat] = append(groups[flat], entry{i, j})
		}
	}
	out := Zero(src.Rows(), src.Cols())
	for _, flat := range order {
		var sum *Node
		for _, e := range groups[flat] {
			cell, err := Submatrix(w, []int{e.i}, []int{e.j})
			if err != nil {
				return nil, err
			}
			if sum == nil {
				sum = cell

				continue
			}
			if sum, err = Add(sum, cell); err != nil {
				return nil, err
			}
		}
		var err error
		out, err = SetSubmatrix(out, sum, []int{flat / src.Cols()}, []int{flat % src.Cols()})
		if err != nil {
			return nil, err
		}
	}

	return out, nil
}

// subAdjoint extracts the adjoint of the written block of a SetSubmatrix
// node: the read of w at the written positions, masked so that sub entries
// overwritten by a later duplicate write contribute nothing.
func subAdjoint(n *Node, w, sub *Node) (*Node, error) {
	read, err := Submatrix(w, n.idxRows, n.idxCols)
	if err != nil {
		return nil, err
	}
	// Surviving sub nonzeros are exactly the ones the result still routes to.
	survive := make(map[int32]bool, len(n.map2))
	for _, s := range n.map2 {
		if s >= 0 {
			survive[s] = true
		}
	}
	var mr, mc []int
	k := 0
	for i := 0; i < sub.Rows(); i++ {
		for _, c := range sub.sp.Row(i) {
			if survive[int32(k)] {
				mr = append(mr, i)
				mc = append(mc, c)
			}
			k++
		}
	}
	msp, err := sparsity.FromTriplets(sub.Rows(), sub.Cols(), mr, mc)
	if err != nil {
		return nil, err
	}

	return Mul(read, onesLike(msp))
}

// hasDuplicates reports whether an index list repeats a value.
func hasDuplicates(xs []int) bool {
	seen := make(map[int]bool, len(xs))
	for _, x := range xs {
		if seen[x] {
			return true
		}
		seen[x] = true
	}

	return false
}

// intRange returns n consecutive integers starting at from.
func intRange(from, n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = from + i
	}

	return out
}
