// Package mx: node representation and matrix combinators. Every constructor
// derives the result sparsity pattern and the nonzero routing tables that the
// propagation passes replay.

package mx

import (
	"fmt"

	"github.com/onedigit/casadi/sparsity"
	"github.com/onedigit/casadi/sx"
)

// Kind tags the variant of a matrix node. The set is closed: every Kind has
// an evaluation, propagation, dependency and expansion rule in the tape
// passes, resolved by a single switch on the tag.
type Kind uint8

const (
	// KindSym is an input placeholder carrying only a name and a pattern.
	KindSym Kind = iota
	// KindConst is a sparse numeric constant.
	KindConst
	// KindUnary is an element-wise unary operation (op from package sx).
	KindUnary
	// KindBinary is an element-wise binary operation, scalar-broadcasting.
	KindBinary
	// KindProject re-patterns a matrix: entries present in both patterns are
	// kept, entries only in the new pattern read as zero.
	KindProject
	// KindTranspose and KindReshape relayout nonzeros without touching values.
	KindTranspose
	KindReshape
	// KindVertcat and KindHorzcat concatenate operands.
	KindVertcat
	KindHorzcat
	// KindSubmatrix is an indexed read, KindSetSubmatrix an indexed overwrite.
	KindSubmatrix
	KindSetSubmatrix
	// KindMatMul is a matrix product, KindDot the scalar inner product.
	KindMatMul
	KindDot
	// KindCall embeds one output of a subfunction invocation.
	KindCall
)

var kindNames = [...]string{
	"sym", "const", "unary", "binary", "project", "transpose", "reshape",
	"vertcat", "horzcat", "submatrix", "setsubmatrix", "matmul", "dot", "call",
}

// String returns the kind's short name.
func (k Kind) String() string { return kindNames[k] }

// Node is one vertex of the matrix expression DAG. Nodes are immutable after
// construction; operands always predate their parent, so the graph is acyclic
// by construction. Handles (*Node) share ownership of the subgraph below them.
type Node struct {
	kind Kind
	sp   *sparsity.Pattern
	args []*Node

	op   sx.Op     // KindUnary, KindBinary
	name string    // KindSym
	vals []float64 // KindConst nonzeros, row-major

	// Nonzero routing tables; the meaning depends on the kind.
	//   unary/project/transpose/reshape/submatrix: map1[k] = operand nz, -1 zero
	//   binary:        map1/map2 route both operands, -1 reading as zero
	//   setsubmatrix:  map1 = surviving target nz, map2 = written sub nz
	//   vertcat/horzcat: srcArg[k] picks the operand, map1[k] its local nz
	//   dot:           map1/map2 pair the product terms over the common pattern
	map1, map2 []int32
	srcArg     []int32

	prog [][3]int32 // KindMatMul: (out, left, right) contraction triples

	idxRows, idxCols []int // KindSubmatrix, KindSetSubmatrix: index lists

	group *callGroup // KindCall
	out   int        // KindCall: output slot within the group
}

// callGroup ties the output nodes of one Call invocation together, so the
// passes evaluate the callee once per invocation rather than once per output.
type callGroup struct {
	callee Callee
	args   []*Node
}

// Kind returns the node's variant tag.
func (n *Node) Kind() Kind { return n.kind }

// Sparsity returns the node's output pattern.
func (n *Node) Sparsity() *sparsity.Pattern { return n.sp }

// Rows returns the row count of the node's output.
func (n *Node) Rows() int { return n.sp.Rows() }

// Cols returns the column count of the node's output.
func (n *Node) Cols() int { return n.sp.Cols() }

// NNZ returns the structural nonzero count of the node's output.
func (n *Node) NNZ() int { return n.sp.NNZ() }

// Name returns the symbol name; empty for non-symbol nodes.
func (n *Node) Name() string { return n.name }

// Op returns the element-wise operator for unary and binary nodes.
func (n *Node) Op() sx.Op { return n.op }

// NumArgs returns the operand count.
func (n *Node) NumArgs() int { return len(n.args) }

// Arg returns the i-th operand.
func (n *Node) Arg(i int) *Node { return n.args[i] }

// IsSymbol reports whether the node is an input placeholder.
func (n *Node) IsSymbol() bool { return n.kind == KindSym }

// IsConstant reports whether the node is a numeric constant.
func (n *Node) IsConstant() bool { return n.kind == KindConst }

// Values returns the constant's nonzeros; nil for non-constant nodes. The
// returned slice aliases the node and must not be modified.
func (n *Node) Values() []float64 { return n.vals }

// Callee returns the called subfunction for Call nodes, nil otherwise.
func (n *Node) Callee() Callee {
	if n.group == nil {
		return nil
	}

	return n.group.callee
}

// OutputIndex returns the output slot a Call node represents (0 otherwise).
func (n *Node) OutputIndex() int { return n.out }

// Sym creates a fresh input placeholder over the given pattern. Two calls
// with the same name create two distinct nodes; identity, not spelling, is
// what binds a symbol to an input.
func Sym(name string, sp *sparsity.Pattern) *Node {
	return &Node{kind: KindSym, sp: sp, name: name}
}

// DenseSym creates a dense rows×cols input placeholder.
func DenseSym(name string, rows, cols int) *Node {
	return Sym(name, sparsity.Dense(rows, cols))
}

// Const creates a sparse constant; vals holds one value per structural
// nonzero in row-major order (ErrShapeMismatch on a count mismatch).
func Const(sp *sparsity.Pattern, vals []float64) (*Node, error) {
	if len(vals) != sp.NNZ() {
		return nil, fmt.Errorf("%w: %d values for pattern %v", ErrShapeMismatch, len(vals), sp)
	}

	return &Node{kind: KindConst, sp: sp, vals: append([]float64(nil), vals...)}, nil
}

// DenseConst creates a dense rows×cols constant from row-major values.
func DenseConst(rows, cols int, vals []float64) (*Node, error) {
	return Const(sparsity.Dense(rows, cols), vals)
}

// Scalar creates a dense 1×1 constant.
func Scalar(v float64) *Node {
	return &Node{kind: KindConst, sp: sparsity.Scalar(), vals: []float64{v}}
}

// Zero creates the all-structural-zero rows×cols constant.
func Zero(rows, cols int) *Node {
	return &Node{kind: KindConst, sp: sparsity.Empty(rows, cols)}
}

// Eye creates the n×n identity constant.
func Eye(n int) *Node {
	vals := make([]float64, n)
	for i := range vals {
		vals[i] = 1
	}

	return &Node{kind: KindConst, sp: sparsity.Diag(n), vals: vals}
}

// Neg returns -x element-wise.
func Neg(x *Node) *Node { return unary(sx.OpNeg, x) }

// Sqrt returns the element-wise square root of x.
func Sqrt(x *Node) *Node { return unary(sx.OpSqrt, x) }

// Exp returns the element-wise exponential. exp(0) = 1, so the result
// densifies: structural zeros of x become value entries.
func Exp(x *Node) *Node { return unary(sx.OpExp, x) }

// Log returns the element-wise natural logarithm. The result densifies;
// entries at structural zeros of x evaluate to log(0) under IEEE rules.
func Log(x *Node) *Node { return unary(sx.OpLog, x) }

// Sin returns the element-wise sine of x.
func Sin(x *Node) *Node { return unary(sx.OpSin, x) }

// Cos returns the element-wise cosine. cos(0) = 1, so the result densifies.
func Cos(x *Node) *Node { return unary(sx.OpCos, x) }

// Tan returns the element-wise tangent of x.
func Tan(x *Node) *Node { return unary(sx.OpTan, x) }

// zeroPreserving reports whether op(0) == 0, which lets a unary node keep
// its operand's pattern instead of densifying.
func zeroPreserving(op sx.Op) bool {
	switch op {
	case sx.OpNeg, sx.OpSqrt, sx.OpSin, sx.OpTan:
		return true
	default:
		return false
	}
}

func unary(op sx.Op, x *Node) *Node {
	if zeroPreserving(op) {
		return &Node{kind: KindUnary, sp: x.sp, args: []*Node{x}, op: op, map1: identity32(x.NNZ())}
	}
	sp := sparsity.Dense(x.Rows(), x.Cols())

	return &Node{kind: KindUnary, sp: sp, args: []*Node{x}, op: op, map1: mapOnto(sp, x.sp)}
}

// Add returns x + y element-wise; a 1×1 operand broadcasts.
func Add(x, y *Node) (*Node, error) { return binary(sx.OpAdd, x, y) }

// Sub returns x - y element-wise; a 1×1 operand broadcasts.
func Sub(x, y *Node) (*Node, error) { return binary(sx.OpSub, x, y) }

// Mul returns the element-wise (Hadamard) product; a 1×1 operand broadcasts.
func Mul(x, y *Node) (*Node, error) { return binary(sx.OpMul, x, y) }

// Div returns x / y element-wise. The divisor must be 1×1, dense, or share
// x's exact pattern; anything else would put values on structural zeros.
func Div(x, y *Node) (*Node, error) { return binary(sx.OpDiv, x, y) }

// Pow returns x raised element-wise to y, with the same divisor-style
// restriction on y as Div.
func Pow(x, y *Node) (*Node, error) { return binary(sx.OpPow, x, y) }

func binary(op sx.Op, x, y *Node) (*Node, error) {
	switch {
	case x.Rows() == y.Rows() && x.Cols() == y.Cols():
		return binarySameShape(op, x, y)
	case x.sp.IsScalar():
		return binaryScalarLeft(op, x, y)
	case y.sp.IsScalar():
		return binaryScalarRight(op, x, y)
	default:
		return nil, fmt.Errorf("%w: %s of %v and %v", ErrShapeMismatch, op, x.sp, y.sp)
	}
}

func binarySameShape(op sx.Op, x, y *Node) (*Node, error) {
	var (
		sp  *sparsity.Pattern
		err error
	)
	switch op {
	case sx.OpMul:
		sp, err = sparsity.Intersect(x.sp, y.sp)
	case sx.OpAdd, sx.OpSub:
		sp, err = sparsity.Union(x.sp, y.sp)
	default: // OpDiv, OpPow
		if !y.sp.IsDense() && !y.sp.Equal(x.sp) {
			return nil, fmt.Errorf("%w: %s needs a scalar, dense or pattern-matching right operand", ErrShapeMismatch, op)
		}
		sp = x.sp
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %s of %v and %v", ErrShapeMismatch, op, x.sp, y.sp)
	}

	return &Node{
		kind: KindBinary, sp: sp, args: []*Node{x, y}, op: op,
		map1: mapOnto(sp, x.sp), map2: mapOnto(sp, y.sp),
	}, nil
}

// binaryScalarLeft broadcasts a 1×1 left operand over y.
func binaryScalarLeft(op sx.Op, x, y *Node) (*Node, error) {
	var sp *sparsity.Pattern
	switch op {
	case sx.OpMul:
		sp = y.sp
	case sx.OpAdd, sx.OpSub:
		sp = sparsity.Dense(y.Rows(), y.Cols())
	default: // OpDiv, OpPow: scalar/zero and scalar^zero are nonzero
		if !y.sp.IsDense() {
			return nil, fmt.Errorf("%w: %s needs a dense right operand under a scalar left", ErrShapeMismatch, op)
		}
		sp = y.sp
	}

	return &Node{
		kind: KindBinary, sp: sp, args: []*Node{x, y}, op: op,
		map1: fill32(sp.NNZ(), scalarNz(x.sp)), map2: mapOnto(sp, y.sp),
	}, nil
}

// binaryScalarRight broadcasts a 1×1 right operand over x.
func binaryScalarRight(op sx.Op, x, y *Node) (*Node, error) {
	var sp *sparsity.Pattern
	switch op {
	case sx.OpMul, sx.OpDiv, sx.OpPow:
		// Zero-preserving in x for a fixed scalar right operand.
		sp = x.sp
	default: // OpAdd, OpSub
		sp = sparsity.Dense(x.Rows(), x.Cols())
	}

	return &Node{
		kind: KindBinary, sp: sp, args: []*Node{x, y}, op: op,
		map1: mapOnto(sp, x.sp), map2: fill32(sp.NNZ(), scalarNz(y.sp)),
	}, nil
}

// Project re-patterns x onto sp (same dimensions): entries present in both
// patterns carry over, entries only in sp read as zero, entries only in x are
// dropped. Projecting onto the identical pattern returns x itself.
func Project(x *Node, sp *sparsity.Pattern) (*Node, error) {
	if sp.Rows() != x.Rows() || sp.Cols() != x.Cols() {
		return nil, fmt.Errorf("%w: project %v onto %v", ErrShapeMismatch, x.sp, sp)
	}
	if sp.Equal(x.sp) {
		return x, nil
	}

	return &Node{kind: KindProject, sp: sp, args: []*Node{x}, map1: mapOnto(sp, x.sp)}, nil
}

// Transpose returns xᵀ.
func Transpose(x *Node) *Node {
	tp := x.sp.Transpose()
	m := make([]int32, tp.NNZ())
	k := 0
	for i := 0; i < tp.Rows(); i++ {
		for _, j := range tp.Row(i) {
			src, _ := x.sp.Index(j, i) // present by construction of the transpose
			m[k] = int32(src)
			k++
		}
	}

	return &Node{kind: KindTranspose, sp: tp, args: []*Node{x}, map1: m}
}

// Reshape reinterprets x as rows×cols in row-major order; the element count
// must be preserved. Nonzeros keep their offsets.
func Reshape(x *Node, rows, cols int) (*Node, error) {
	sp, err := x.sp.Reshape(rows, cols)
	if err != nil {
		return nil, fmt.Errorf("%w: reshape %v to %dx%d", ErrShapeMismatch, x.sp, rows, cols)
	}

	return &Node{kind: KindReshape, sp: sp, args: []*Node{x}, map1: identity32(x.NNZ())}, nil
}

// Flatten returns the numel×1 column view of x.
func Flatten(x *Node) *Node {
	n, _ := Reshape(x, x.sp.Numel(), 1) // same numel by construction

	return n
}

// Vertcat stacks the operands on top of each other; column counts must agree.
func Vertcat(xs ...*Node) (*Node, error) {
	ps := make([]*sparsity.Pattern, len(xs))
	nnz := 0
	for i, x := range xs {
		ps[i] = x.sp
		nnz += x.NNZ()
	}
	sp, err := sparsity.Vertcat(ps...)
	if err != nil {
		return nil, fmt.Errorf("%w: vertcat", ErrShapeMismatch)
	}
	srcArg := make([]int32, 0, nnz)
	m := make([]int32, 0, nnz)
	for a, x := range xs {
		for k := 0; k < x.NNZ(); k++ {
			srcArg = append(srcArg, int32(a))
			m = append(m, int32(k))
		}
	}

	return &Node{kind: KindVertcat, sp: sp, args: append([]*Node(nil), xs...), map1: m, srcArg: srcArg}, nil
}

// Horzcat places the operands side by side; row counts must agree.
func Horzcat(xs ...*Node) (*Node, error) {
	ps := make([]*sparsity.Pattern, len(xs))
	nnz := 0
	for i, x := range xs {
		ps[i] = x.sp
		nnz += x.NNZ()
	}
	sp, err := sparsity.Horzcat(ps...)
	if err != nil {
		return nil, fmt.Errorf("%w: horzcat", ErrShapeMismatch)
	}
	srcArg := make([]int32, 0, nnz)
	m := make([]int32, 0, nnz)
	// Result rows interleave the operands left to right, matching the
	// pattern's row-major order.
	for i := 0; i < sp.Rows(); i++ {
		for a, x := range xs {
			start := x.sp.RowStart(i)
			for j := range x.sp.Row(i) {
				srcArg = append(srcArg, int32(a))
				m = append(m, int32(start+j))
			}
		}
	}

	return &Node{kind: KindHorzcat, sp: sp, args: append([]*Node(nil), xs...), map1: m, srcArg: srcArg}, nil
}

// Submatrix returns x(rows, cols): entry (i,j) of the result reads
// x(rows[i], cols[j]). Repeated indices are permitted.
func Submatrix(x *Node, rows, cols []int) (*Node, error) {
	sp, src, err := x.sp.Sub(rows, cols)
	if err != nil {
		return nil, fmt.Errorf("%w: submatrix of %v", ErrOutOfRange, x.sp)
	}

	return &Node{
		kind: KindSubmatrix, sp: sp, args: []*Node{x}, map1: toInt32(src),
		idxRows: append([]int(nil), rows...), idxCols: append([]int(nil), cols...),
	}, nil
}

// SetSubmatrix overwrites the block x(rows, cols) with sub, returning a new
// matrix; x itself is untouched. sub must be len(rows)×len(cols). Structural
// zeros of sub erase the positions they are written to. When the index lists
// repeat a target position, the LAST write wins.
func SetSubmatrix(x, sub *Node, rows, cols []int) (*Node, error) {
	if sub.Rows() != len(rows) || sub.Cols() != len(cols) {
		return nil, fmt.Errorf("%w: %v written to a %dx%d block", ErrShapeMismatch, sub.sp, len(rows), len(cols))
	}
	for _, r := range rows {
		if r < 0 || r >= x.Rows() {
			return nil, fmt.Errorf("%w: row %d in %v", ErrOutOfRange, r, x.sp)
		}
	}
	for _, c := range cols {
		if c < 0 || c >= x.Cols() {
			return nil, fmt.Errorf("%w: column %d in %v", ErrOutOfRange, c, x.sp)
		}
	}

	// written maps a flat target position to the sub nonzero landing there,
	// -1 for a structural-zero write. Grid order is write order, so a later
	// duplicate simply replaces the slot.
	tc := x.Cols()
	written := make(map[int]int32, len(rows)*len(cols))
	for i, r := range rows {
		for j, c := range cols {
			if k, ok := sub.sp.Index(i, j); ok {
				written[r*tc+c] = int32(k)
			} else {
				written[r*tc+c] = -1
			}
		}
	}

	// Result occupancy: surviving target entries plus value writes.
	var tr, tcl []int
	for i := 0; i < x.Rows(); i++ {
		for _, c := range x.sp.Row(i) {
			if _, ok := written[i*tc+c]; !ok {
				tr = append(tr, i)
				tcl = append(tcl, c)
			}
		}
	}
	for flat, w := range written {
		if w >= 0 {
			tr = append(tr, flat/tc)
			tcl = append(tcl, flat%tc)
		}
	}
	sp, err := sparsity.FromTriplets(x.Rows(), tc, tr, tcl)
	if err != nil {
		return nil, err
	}
	map1 := make([]int32, sp.NNZ())
	map2 := make([]int32, sp.NNZ())
	k := 0
	for i := 0; i < sp.Rows(); i++ {
		for _, c := range sp.Row(i) {
			if w, ok := written[i*tc+c]; ok {
				map1[k], map2[k] = -1, w
			} else {
				src, _ := x.sp.Index(i, c)
				map1[k], map2[k] = int32(src), -1
			}
			k++
		}
	}

	return &Node{
		kind: KindSetSubmatrix, sp: sp, args: []*Node{x, sub}, map1: map1, map2: map2,
		idxRows: append([]int(nil), rows...), idxCols: append([]int(nil), cols...),
	}, nil
}

// MatMul returns the matrix product x·y; x.Cols() must equal y.Rows(). The
// result pattern is the Boolean product of the operand patterns, and the
// contraction program pairing operand nonzeros is fixed at construction.
func MatMul(x, y *Node) (*Node, error) {
	sp, err := sparsity.Product(x.sp, y.sp)
	if err != nil {
		return nil, fmt.Errorf("%w: matmul of %v and %v", ErrShapeMismatch, x.sp, y.sp)
	}
	var prog [][3]int32
	for i := 0; i < x.Rows(); i++ {
		xstart := x.sp.RowStart(i)
		for xi, j := range x.sp.Row(i) {
			ystart := y.sp.RowStart(j)
			for yi, c := range y.sp.Row(j) {
				kc, _ := sp.Index(i, c) // present: the pattern is the Boolean product
				prog = append(prog, [3]int32{int32(kc), int32(xstart + xi), int32(ystart + yi)})
			}
		}
	}

	return &Node{kind: KindMatMul, sp: sp, args: []*Node{x, y}, prog: prog}, nil
}

// Dot returns the scalar inner product Σ x(i,j)·y(i,j) over the entries both
// operands structurally share; dimensions must agree.
func Dot(x, y *Node) (*Node, error) {
	if x.Rows() != y.Rows() || x.Cols() != y.Cols() {
		return nil, fmt.Errorf("%w: dot of %v and %v", ErrShapeMismatch, x.sp, y.sp)
	}
	common, err := sparsity.Intersect(x.sp, y.sp)
	if err != nil {
		return nil, fmt.Errorf("%w: dot of %v and %v", ErrShapeMismatch, x.sp, y.sp)
	}

	return &Node{
		kind: KindDot, sp: sparsity.Scalar(), args: []*Node{x, y},
		map1: mapOnto(common, x.sp), map2: mapOnto(common, y.sp),
	}, nil
}

// Call embeds an invocation of callee with the given arguments, returning one
// node per callee output. Argument patterns must match the callee's declared
// input patterns exactly; Project adapts a mismatched argument.
func Call(callee Callee, args ...*Node) ([]*Node, error) {
	if len(args) != callee.NumInputs() {
		return nil, fmt.Errorf("%w: %d arguments for %q with %d inputs", ErrShapeMismatch, len(args), callee.Name(), callee.NumInputs())
	}
	for i, a := range args {
		if !a.sp.Equal(callee.InputSparsity(i)) {
			return nil, fmt.Errorf("%w: argument %d is %v, %q expects %v", ErrShapeMismatch, i, a.sp, callee.Name(), callee.InputSparsity(i))
		}
	}
	g := &callGroup{callee: callee, args: append([]*Node(nil), args...)}
	outs := make([]*Node, callee.NumOutputs())
	for o := range outs {
		outs[o] = &Node{kind: KindCall, sp: callee.OutputSparsity(o), args: g.args, group: g, out: o}
	}

	return outs, nil
}

// mapOnto returns, for each nonzero of res, the nonzero offset of the same
// position in operand, or -1 where operand is structurally zero there.
func mapOnto(res, operand *sparsity.Pattern) []int32 {
	m := make([]int32, res.NNZ())
	k := 0
	for i := 0; i < res.Rows(); i++ {
		for _, c := range res.Row(i) {
			if j, ok := operand.Index(i, c); ok {
				m[k] = int32(j)
			} else {
				m[k] = -1
			}
			k++
		}
	}

	return m
}

func identity32(n int) []int32 {
	m := make([]int32, n)
	for i := range m {
		m[i] = int32(i)
	}

	return m
}

func fill32(n int, v int32) []int32 {
	m := make([]int32, n)
	for i := range m {
		m[i] = v
	}

	return m
}

func toInt32(xs []int) []int32 {
	m := make([]int32, len(xs))
	for i, x := range xs {
		m[i] = int32(x)
	}

	return m
}

// scalarNz returns the nonzero offset of a 1×1 operand: 0 when occupied,
// -1 when the scalar is a structural zero.
func scalarNz(p *sparsity.Pattern) int32 {
	if p.NNZ() == 1 {
		return 0
	}

	return -1
}
