// Package sx: the closed operator table. Each operator binds a numeric
// evaluation rule, a numeric partial-derivative rule and a symbolic
// partial-derivative rule; every propagation pass resolves rules by a single
// array lookup on the Op tag.

package sx

import (
	"fmt"
	"math"
	"strconv"
)

// opInfo bundles the per-operator rules.
//
//   - eval:   result from operand values (unary ops ignore the second operand).
//   - der:    (∂f/∂x, ∂f/∂y) from operand values x, y and result value f.
//     Passing the already-computed f lets rules like exp and sqrt
//     reuse it instead of recomputing.
//   - symDer: the same partials as expression nodes, used by symbolic seeding
//     and graph-mode Jacobians.
type opInfo struct {
	name   string
	arity  int
	eval   func(x, y float64) float64
	der    func(x, y, f float64) (dx, dy float64)
	symDer func(x, y, f *Node) (dx, dy *Node)
}

// opTable is assigned in init rather than initialized in place: the symDer
// rules build their partials through the combinators, and the combinators
// read the table themselves.
var opTable [opCount]opInfo

func init() {
	opTable = [opCount]opInfo{
		OpSym:   {name: "sym", arity: 0},
		OpConst: {name: "const", arity: 0},

		OpNeg: {
			name: "neg", arity: 1,
			eval:   func(x, _ float64) float64 { return -x },
			der:    func(_, _, _ float64) (float64, float64) { return -1, 0 },
			symDer: func(_, _, _ *Node) (*Node, *Node) { return Const(-1), nil },
		},
		OpSqrt: {
			name: "sqrt", arity: 1,
			eval:   func(x, _ float64) float64 { return math.Sqrt(x) },
			der:    func(_, _, f float64) (float64, float64) { return 0.5 / f, 0 },
			symDer: func(_, _, f *Node) (*Node, *Node) { return Div(Const(0.5), f), nil },
		},
		OpExp: {
			name: "exp", arity: 1,
			eval:   func(x, _ float64) float64 { return math.Exp(x) },
			der:    func(_, _, f float64) (float64, float64) { return f, 0 },
			symDer: func(_, _, f *Node) (*Node, *Node) { return f, nil },
		},
		OpLog: {
			name: "log", arity: 1,
			eval:   func(x, _ float64) float64 { return math.Log(x) },
			der:    func(x, _, _ float64) (float64, float64) { return 1 / x, 0 },
			symDer: func(x, _, _ *Node) (*Node, *Node) { return Div(One(), x), nil },
		},
		OpSin: {
			name: "sin", arity: 1,
			eval:   func(x, _ float64) float64 { return math.Sin(x) },
			der:    func(x, _, _ float64) (float64, float64) { return math.Cos(x), 0 },
			symDer: func(x, _, _ *Node) (*Node, *Node) { return Cos(x), nil },
		},
		OpCos: {
			name: "cos", arity: 1,
			eval:   func(x, _ float64) float64 { return math.Cos(x) },
			der:    func(x, _, _ float64) (float64, float64) { return -math.Sin(x), 0 },
			symDer: func(x, _, _ *Node) (*Node, *Node) { return Neg(Sin(x)), nil },
		},
		OpTan: {
			name: "tan", arity: 1,
			eval: func(x, _ float64) float64 { return math.Tan(x) },
			// d tan = 1 + tan²; reuses the computed result.
			der:    func(_, _, f float64) (float64, float64) { return 1 + f*f, 0 },
			symDer: func(_, _, f *Node) (*Node, *Node) { return Add(One(), Mul(f, f)), nil },
		},

		OpAdd: {
			name: "add", arity: 2,
			eval:   func(x, y float64) float64 { return x + y },
			der:    func(_, _, _ float64) (float64, float64) { return 1, 1 },
			symDer: func(_, _, _ *Node) (*Node, *Node) { return One(), One() },
		},
		OpSub: {
			name: "sub", arity: 2,
			eval:   func(x, y float64) float64 { return x - y },
			der:    func(_, _, _ float64) (float64, float64) { return 1, -1 },
			symDer: func(_, _, _ *Node) (*Node, *Node) { return One(), Const(-1) },
		},
		OpMul: {
			name: "mul", arity: 2,
			eval:   func(x, y float64) float64 { return x * y },
			der:    func(x, y, _ float64) (float64, float64) { return y, x },
			symDer: func(x, y, _ *Node) (*Node, *Node) { return y, x },
		},
		OpDiv: {
			name: "div", arity: 2,
			eval: func(x, y float64) float64 { return x / y },
			// ∂(x/y)/∂x = 1/y, ∂(x/y)/∂y = -x/y² = -f/y.
			der:    func(_, y, f float64) (float64, float64) { return 1 / y, -f / y },
			symDer: func(_, y, f *Node) (*Node, *Node) { return Div(One(), y), Neg(Div(f, y)) },
		},
		OpPow: {
			name: "pow", arity: 2,
			eval: func(x, y float64) float64 { return math.Pow(x, y) },
			// ∂(x^y)/∂x = y·x^(y-1), ∂(x^y)/∂y = x^y·log x.
			der: func(x, y, f float64) (float64, float64) {
				return y * math.Pow(x, y-1), f * math.Log(x)
			},
			symDer: func(x, y, f *Node) (*Node, *Node) {
				return Mul(y, Pow(x, Sub(y, One()))), Mul(f, Log(x))
			},
		},
	}
}

// EvalOp applies op's numeric evaluation rule to operand values. Unary
// operators ignore y. Leaves have no rule; calling EvalOp on one panics.
func EvalOp(op Op, x, y float64) float64 { return opTable[op].eval(x, y) }

// Derivative returns op's numeric partials (∂f/∂x, ∂f/∂y) given operand
// values x, y and the already-computed result f. Unary operators yield dy==0.
func Derivative(op Op, x, y, f float64) (dx, dy float64) { return opTable[op].der(x, y, f) }

// Apply rebuilds an operator application through the public combinators, so
// constant folding applies. y is ignored for unary operators.
func Apply(op Op, x, y *Node) *Node { return apply(op, x, y) }

// Arity returns the operand count of the operator (0 for leaves).
func (op Op) Arity() int { return opTable[op].arity }

// String returns the operator's short name.
func (op Op) String() string { return opTable[op].name }

// render produces the infix diagnostic form used by Node.String.
func render(n *Node) string {
	switch n.op {
	case OpSym:
		return n.name
	case OpConst:
		return strconv.FormatFloat(n.val, 'g', -1, 64)
	case OpNeg:
		return "(-" + render(n.x) + ")"
	case OpAdd, OpSub, OpMul, OpDiv, OpPow:
		var sign string
		switch n.op {
		case OpAdd:
			sign = "+"
		case OpSub:
			sign = "-"
		case OpMul:
			sign = "*"
		case OpDiv:
			sign = "/"
		default:
			sign = "^"
		}

		return "(" + render(n.x) + sign + render(n.y) + ")"
	default:
		return fmt.Sprintf("%s(%s)", n.op, render(n.x))
	}
}
