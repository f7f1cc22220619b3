// Package sx: node representation and operator combinators.

package sx

// Op tags the variant of a scalar node. The set is closed: every Op has an
// evaluation rule and a differentiation rule registered in the operator table
// (see ops.go), resolved by array lookup rather than dynamic dispatch.
type Op uint8

const (
	// OpSym is a free symbol (a leaf bound to an input at evaluation time).
	OpSym Op = iota
	// OpConst is a numeric constant leaf.
	OpConst
	// Unary operators.
	OpNeg
	OpSqrt
	OpExp
	OpLog
	OpSin
	OpCos
	OpTan
	// Binary operators.
	OpAdd
	OpSub
	OpMul
	OpDiv
	OpPow

	opCount // number of ops; keep last
)

// Node is one vertex of the scalar expression DAG. Nodes are immutable after
// construction; operands always predate their parent, so the graph is acyclic
// by construction. Handles (*Node) share ownership of the subgraph below them.
type Node struct {
	op   Op
	name string  // symbol name (OpSym only)
	val  float64 // constant value (OpConst only)
	x, y *Node   // operands (unary: x; binary: x and y)
}

// Op returns the node's operator tag.
func (n *Node) Op() Op { return n.op }

// Name returns the symbol name; empty for non-symbol nodes.
func (n *Node) Name() string { return n.name }

// Value returns the constant value; zero for non-constant nodes.
func (n *Node) Value() float64 { return n.val }

// Left returns the first operand (nil for leaves).
func (n *Node) Left() *Node { return n.x }

// Right returns the second operand (nil for leaves and unary nodes).
func (n *Node) Right() *Node { return n.y }

// IsSymbol reports whether the node is a free symbol.
func (n *Node) IsSymbol() bool { return n.op == OpSym }

// IsConstant reports whether the node is a numeric constant.
func (n *Node) IsConstant() bool { return n.op == OpConst }

// isConst reports whether n is the constant v. Used by folding rules.
func (n *Node) isConst(v float64) bool { return n.op == OpConst && n.val == v }

// Sym creates a fresh free symbol. Two calls with the same name create two
// distinct nodes; identity, not spelling, is what binds a symbol to an input.
func Sym(name string) *Node { return &Node{op: OpSym, name: name} }

// Const creates a numeric constant node.
func Const(v float64) *Node { return &Node{op: OpConst, val: v} }

// Zero returns a fresh constant 0 node.
func Zero() *Node { return Const(0) }

// One returns a fresh constant 1 node.
func One() *Node { return Const(1) }

// Neg returns -x.
func Neg(x *Node) *Node {
	if x.op == OpConst {
		return Const(-x.val)
	}
	if x.op == OpNeg { // --x = x
		return x.x
	}

	return &Node{op: OpNeg, x: x}
}

// Sqrt returns √x.
func Sqrt(x *Node) *Node { return unary(OpSqrt, x) }

// Exp returns e^x.
func Exp(x *Node) *Node { return unary(OpExp, x) }

// Log returns the natural logarithm of x.
func Log(x *Node) *Node { return unary(OpLog, x) }

// Sin returns sin(x).
func Sin(x *Node) *Node { return unary(OpSin, x) }

// Cos returns cos(x).
func Cos(x *Node) *Node { return unary(OpCos, x) }

// Tan returns tan(x).
func Tan(x *Node) *Node { return unary(OpTan, x) }

// unary builds a unary node, folding constant operands eagerly. Folding is an
// optimization only; a folded and an unfolded graph evaluate identically.
func unary(op Op, x *Node) *Node {
	if x.op == OpConst {
		return Const(opTable[op].eval(x.val, 0))
	}

	return &Node{op: op, x: x}
}

// Add returns x + y.
func Add(x, y *Node) *Node {
	switch {
	case x.isConst(0):
		return y
	case y.isConst(0):
		return x
	case x.op == OpConst && y.op == OpConst:
		return Const(x.val + y.val)
	}

	return &Node{op: OpAdd, x: x, y: y}
}

// Sub returns x - y.
func Sub(x, y *Node) *Node {
	switch {
	case y.isConst(0):
		return x
	case x.op == OpConst && y.op == OpConst:
		return Const(x.val - y.val)
	case x.isConst(0):
		return Neg(y)
	}

	return &Node{op: OpSub, x: x, y: y}
}

// Mul returns x * y.
func Mul(x, y *Node) *Node {
	switch {
	case x.isConst(0) || y.isConst(0):
		return Zero()
	case x.isConst(1):
		return y
	case y.isConst(1):
		return x
	case x.op == OpConst && y.op == OpConst:
		return Const(x.val * y.val)
	}

	return &Node{op: OpMul, x: x, y: y}
}

// Div returns x / y. No folding of y==0: the quotient keeps IEEE semantics.
func Div(x, y *Node) *Node {
	switch {
	case y.isConst(1):
		return x
	case x.op == OpConst && y.op == OpConst && y.val != 0:
		return Const(x.val / y.val)
	}

	return &Node{op: OpDiv, x: x, y: y}
}

// Pow returns x raised to the power y.
func Pow(x, y *Node) *Node {
	switch {
	case y.isConst(1):
		return x
	case y.isConst(0):
		return One()
	case x.op == OpConst && y.op == OpConst:
		return Const(opTable[OpPow].eval(x.val, y.val))
	}

	return &Node{op: OpPow, x: x, y: y}
}

// String renders the expression in infix form for diagnostics. Shared
// subexpressions print repeatedly; the printout is not a serialization format.
func (n *Node) String() string {
	return render(n)
}
