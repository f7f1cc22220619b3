// Package sx: the Tape (topologically ordered node view) and the numeric,
// symbolic and structural propagation passes that run over it.

package sx

import (
	"errors"
	"fmt"
)

// ErrCycle is returned by NewTape if a back edge is encountered. Combinator
// construction makes cycles structurally impossible; the check protects the
// finalize contract against hand-assembled nodes.
var ErrCycle = errors.New("sx: cycle detected in expression graph")

// Tape is a topologically sorted view of every node reachable from a set of
// roots: operands always precede their parents. A Tape holds no evaluation
// state of its own, so one Tape may serve any number of concurrent passes as
// long as each pass brings its own buffers.
type Tape struct {
	order []*Node
	index map[*Node]int
	argx  []int32 // tape index of the first operand, -1 for leaves
	argy  []int32 // tape index of the second operand, -1 if absent
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
	t := &Tape{index: make(map[*Node]int)}
	state := make(map[*Node]uint8)

	type frame struct {
		n     *Node
		stage uint8 // 0: visit x, 1: visit y, 2: emit
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
			var child *Node
			switch f.stage {
			case 0:
				child = f.n.x
			case 1:
				child = f.n.y
			default:
				// All operands emitted: emit this node.
				t.index[f.n] = len(t.order)
				t.order = append(t.order, f.n)
				state[f.n] = done
				stack = stack[:len(stack)-1]

				continue
			}
			f.stage++
			if child == nil || state[child] == done {
				continue
			}
			if state[child] == onStack {
				return nil, ErrCycle
			}
			state[child] = onStack
			stack = append(stack, frame{n: child})
		}
	}

	// Precompute operand tape offsets once; every pass reuses them.
	t.argx = make([]int32, len(t.order))
	t.argy = make([]int32, len(t.order))
	for i, n := range t.order {
		t.argx[i], t.argy[i] = -1, -1
		if n.x != nil {
			t.argx[i] = int32(t.index[n.x])
		}
		if n.y != nil {
			t.argy[i] = int32(t.index[n.y])
		}
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

// Symbols returns the free symbols on the tape in dependency order.
func (t *Tape) Symbols() []*Node {
	var syms []*Node
	for _, n := range t.order {
		if n.op == OpSym {
			syms = append(syms, n)
		}
	}

	return syms
}

// Values numerically evaluates every node in one pass. bind supplies the value
// of each symbol; a binding failure aborts the pass.
//
// Complexity: O(len(tape)).
func (t *Tape) Values(bind func(sym *Node) (float64, error)) ([]float64, error) {
	vals := make([]float64, len(t.order))
	for i, n := range t.order {
		switch n.op {
		case OpSym:
			v, err := bind(n)
			if err != nil {
				return nil, err
			}
			vals[i] = v
		case OpConst:
			vals[i] = n.val
		default:
			var y float64
			if t.argy[i] >= 0 {
				y = vals[t.argy[i]]
			}
			vals[i] = opTable[n.op].eval(vals[t.argx[i]], y)
		}
	}

	return vals, nil
}

// Forward propagates ndir forward directions in one pass. vals must come from
// Values on the same tape. fdot is node-major (entry i*ndir+d holds direction
// d of node i); the caller pre-seeds the symbol entries and Forward fills in
// every other node, leaving symbol entries untouched.
//
// Complexity: O(len(tape) · ndir).
func (t *Tape) Forward(vals, fdot []float64, ndir int) error {
	if len(vals) != len(t.order) || len(fdot) != len(t.order)*ndir {
		return fmt.Errorf("%w: forward buffers sized %d/%d for tape of %d", ErrShapeMismatch, len(vals), len(fdot), len(t.order))
	}
	for i, n := range t.order {
		switch n.op {
		case OpSym:
			// Seeds stay as provided.
		case OpConst:
			for d := 0; d < ndir; d++ {
				fdot[i*ndir+d] = 0
			}
		default:
			ix, iy := t.argx[i], t.argy[i]
			var yv float64
			if iy >= 0 {
				yv = vals[iy]
			}
			dx, dy := opTable[n.op].der(vals[ix], yv, vals[i])
			for d := 0; d < ndir; d++ {
				dot := dx * fdot[int(ix)*ndir+d]
				if iy >= 0 {
					dot += dy * fdot[int(iy)*ndir+d]
				}
				fdot[i*ndir+d] = dot
			}
		}
	}

	return nil
}

// Reverse propagates ndir adjoint directions in one reverse pass. vals must
// come from Values on the same tape. adj is node-major and must arrive zeroed
// except for the caller's accumulated output seeds; on return every node holds
// its adjoint, with per-edge contributions adj[x] += ∂f/∂x · adj[f].
//
// Complexity: O(len(tape) · ndir).
func (t *Tape) Reverse(vals, adj []float64, ndir int) error {
	if len(vals) != len(t.order) || len(adj) != len(t.order)*ndir {
		return fmt.Errorf("%w: reverse buffers sized %d/%d for tape of %d", ErrShapeMismatch, len(vals), len(adj), len(t.order))
	}
	for i := len(t.order) - 1; i >= 0; i-- {
		n := t.order[i]
		if n.op == OpSym || n.op == OpConst {
			continue
		}
		ix, iy := t.argx[i], t.argy[i]
		var yv float64
		if iy >= 0 {
			yv = vals[iy]
		}
		dx, dy := opTable[n.op].der(vals[ix], yv, vals[i])
		for d := 0; d < ndir; d++ {
			w := adj[i*ndir+d]
			if w == 0 {
				continue
			}
			adj[int(ix)*ndir+d] += dx * w
			if iy >= 0 {
				adj[int(iy)*ndir+d] += dy * w
			}
		}
	}

	return nil
}

// SymbolicValues rebuilds every node with substituted symbols: bind maps each
// symbol to its replacement expression. Constant folding in the combinators
// applies during the rebuild, so the result may be smaller than the source.
//
// Complexity: O(len(tape)).
func (t *Tape) SymbolicValues(bind func(sym *Node) (*Node, error)) ([]*Node, error) {
	subs := make([]*Node, len(t.order))
	for i, n := range t.order {
		switch n.op {
		case OpSym:
			s, err := bind(n)
			if err != nil {
				return nil, err
			}
			subs[i] = s
		case OpConst:
			subs[i] = n
		default:
			var y *Node
			if t.argy[i] >= 0 {
				y = subs[t.argy[i]]
			}
			subs[i] = apply(n.op, subs[t.argx[i]], y)
		}
	}

	return subs, nil
}

// SymbolicForward is Forward with Node-valued seeds: it produces a symbolic
// directional derivative expression per node and direction. subs must come
// from SymbolicValues on the same tape; fdot arrives with symbol entries
// seeded (nil meaning zero) and is filled for every other node.
//
// Complexity: O(len(tape) · ndir) node constructions before folding.
func (t *Tape) SymbolicForward(subs []*Node, fdot []*Node, ndir int) error {
	if len(subs) != len(t.order) || len(fdot) != len(t.order)*ndir {
		return fmt.Errorf("%w: symbolic forward buffers sized %d/%d for tape of %d", ErrShapeMismatch, len(subs), len(fdot), len(t.order))
	}
	for i, n := range t.order {
		switch n.op {
		case OpSym:
			for d := 0; d < ndir; d++ {
				if fdot[i*ndir+d] == nil {
					fdot[i*ndir+d] = Zero()
				}
			}
		case OpConst:
			for d := 0; d < ndir; d++ {
				fdot[i*ndir+d] = Zero()
			}
		default:
			ix, iy := t.argx[i], t.argy[i]
			var y *Node
			if iy >= 0 {
				y = subs[iy]
			}
			dx, dy := opTable[n.op].symDer(subs[ix], y, subs[i])
			for d := 0; d < ndir; d++ {
				dot := Mul(dx, fdot[int(ix)*ndir+d])
				if iy >= 0 {
					dot = Add(dot, Mul(dy, fdot[int(iy)*ndir+d]))
				}
				fdot[i*ndir+d] = dot
			}
		}
	}

	return nil
}

// SymbolicReverse is Reverse with Node-valued seeds. adj arrives with output
// entries seeded (nil meaning zero); on return each entry holds the symbolic
// adjoint of its node. Accumulation builds Add nodes, so repeated parents sum
// exactly as in the numeric pass.
//
// Complexity: O(len(tape) · ndir) node constructions before folding.
func (t *Tape) SymbolicReverse(subs []*Node, adj []*Node, ndir int) error {
	if len(subs) != len(t.order) || len(adj) != len(t.order)*ndir {
		return fmt.Errorf("%w: symbolic reverse buffers sized %d/%d for tape of %d", ErrShapeMismatch, len(subs), len(adj), len(t.order))
	}
	for i := len(t.order) - 1; i >= 0; i-- {
		n := t.order[i]
		if n.op == OpSym || n.op == OpConst {
			continue
		}
		ix, iy := t.argx[i], t.argy[i]
		var y *Node
		if iy >= 0 {
			y = subs[iy]
		}
		dx, dy := opTable[n.op].symDer(subs[ix], y, subs[i])
		for d := 0; d < ndir; d++ {
			seed := adj[i*ndir+d]
			if seed == nil || seed.isConst(0) {
				continue
			}
			accumulate(adj, int(ix)*ndir+d, Mul(dx, seed))
			if iy >= 0 {
				accumulate(adj, int(iy)*ndir+d, Mul(dy, seed))
			}
		}
	}
	// Normalize: nil entries read as explicit zeros.
	for i, a := range adj {
		if a == nil {
			adj[i] = Zero()
		}
	}

	return nil
}

// Depend propagates structural dependency bitsets (64 seeds per word) forward
// in one pass. dep is node-major with nwords words per node, pre-seeded at
// symbol entries; every other node receives the union of its operand sets.
// Value-independent: this is the bit-parallel pass behind Jacobian sparsity
// inference.
//
// Complexity: O(len(tape) · nwords).
func (t *Tape) Depend(dep []uint64, nwords int) error {
	if len(dep) != len(t.order)*nwords {
		return fmt.Errorf("%w: depend buffer sized %d for tape of %d", ErrShapeMismatch, len(dep), len(t.order))
	}
	for i, n := range t.order {
		switch n.op {
		case OpSym:
			// Seeds stay as provided.
		case OpConst:
			for w := 0; w < nwords; w++ {
				dep[i*nwords+w] = 0
			}
		default:
			ix, iy := t.argx[i], t.argy[i]
			for w := 0; w < nwords; w++ {
				bits := dep[int(ix)*nwords+w]
				if iy >= 0 {
					bits |= dep[int(iy)*nwords+w]
				}
				dep[i*nwords+w] = bits
			}
		}
	}

	return nil
}

// apply rebuilds a node through the public combinators so folding applies.
func apply(op Op, x, y *Node) *Node {
	switch op {
	case OpNeg:
		return Neg(x)
	case OpSqrt:
		return Sqrt(x)
	case OpExp:
		return Exp(x)
	case OpLog:
		return Log(x)
	case OpSin:
		return Sin(x)
	case OpCos:
		return Cos(x)
	case OpTan:
		return Tan(x)
	case OpAdd:
		return Add(x, y)
	case OpSub:
		return Sub(x, y)
	case OpMul:
		return Mul(x, y)
	case OpDiv:
		return Div(x, y)
	case OpPow:
		return Pow(x, y)
	default:
		panic("sx: apply on leaf op") // programmer error: leaves are never rebuilt
	}
}

// accumulate adds expr into buf[k], treating nil as zero.
func accumulate(buf []*Node, k int, expr *Node) {
	if buf[k] == nil {
		buf[k] = expr

		return
	}
	buf[k] = Add(buf[k], expr)
}
