// Package sx_test: tape construction and the numeric/symbolic/structural
// propagation passes. Derivative checks compare against hand-derived
// closed forms; the forward/adjoint duality check v·(Ju) == (Jᵀv)·u pins the
// two passes against each other.
package sx_test

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/onedigit/casadi/sx"
)

// bindTo returns a binder mapping symbol nodes to fixed values by identity.
func bindTo(vals map[*sx.Node]float64) func(*sx.Node) (float64, error) {
	return func(s *sx.Node) (float64, error) {
		v, ok := vals[s]
		if !ok {
			return 0, sx.ErrUnboundSymbol
		}

		return v, nil
	}
}

func TestTape_OrderAndSharing(t *testing.T) {
	x := sx.Sym("x")
	shared := sx.Sin(x)
	root := sx.Mul(shared, shared) // shared subexpression appears once on tape

	tape, err := sx.NewTape(root)
	require.NoError(t, err)
	require.Equal(t, 3, tape.Len(), "x, sin(x), product")

	// Operands precede parents.
	ix, ok := tape.Index(x)
	require.True(t, ok)
	is, ok := tape.Index(shared)
	require.True(t, ok)
	ir, ok := tape.Index(root)
	require.True(t, ok)
	require.Less(t, ix, is)
	require.Less(t, is, ir)

	require.Equal(t, []*sx.Node{x}, tape.Symbols())
}

func TestTape_Values(t *testing.T) {
	x, y := sx.Sym("x"), sx.Sym("y")
	root := sx.Add(sx.Mul(x, y), sx.Exp(x))

	tape, err := sx.NewTape(root)
	require.NoError(t, err)
	vals, err := tape.Values(bindTo(map[*sx.Node]float64{x: 1.5, y: -2}))
	require.NoError(t, err)

	i, _ := tape.Index(root)
	require.InDelta(t, 1.5*(-2)+math.Exp(1.5), vals[i], 1e-15)
}

func TestTape_Values_UnboundSymbol(t *testing.T) {
	x, y := sx.Sym("x"), sx.Sym("y")
	tape, err := sx.NewTape(sx.Add(x, y))
	require.NoError(t, err)
	_, err = tape.Values(bindTo(map[*sx.Node]float64{x: 1}))
	require.ErrorIs(t, err, sx.ErrUnboundSymbol)
}

// buildScalar builds f = sin(x)*y + x/y, whose exact partials are
// df/dx = cos(x)*y + 1/y and df/dy = sin(x) - x/y².
func buildScalar() (x, y, f *sx.Node) {
	x, y = sx.Sym("x"), sx.Sym("y")
	f = sx.Add(sx.Mul(sx.Sin(x), y), sx.Div(x, y))

	return x, y, f
}

func TestForward_MatchesClosedForm(t *testing.T) {
	x, y, f := buildScalar()
	tape, err := sx.NewTape(f)
	require.NoError(t, err)

	xv, yv := 0.7, 1.3
	vals, err := tape.Values(bindTo(map[*sx.Node]float64{x: xv, y: yv}))
	require.NoError(t, err)

	// Two simultaneous directions: d/dx and d/dy.
	const ndir = 2
	fdot := make([]float64, tape.Len()*ndir)
	ix, _ := tape.Index(x)
	iy, _ := tape.Index(y)
	fdot[ix*ndir+0] = 1
	fdot[iy*ndir+1] = 1
	require.NoError(t, tape.Forward(vals, fdot, ndir))

	i, _ := tape.Index(f)
	dfdx := math.Cos(xv)*yv + 1/yv
	dfdy := math.Sin(xv) - xv/(yv*yv)
	require.InDelta(t, dfdx, fdot[i*ndir+0], 1e-14)
	require.InDelta(t, dfdy, fdot[i*ndir+1], 1e-14)
}

func TestReverse_MatchesClosedForm(t *testing.T) {
	x, y, f := buildScalar()
	tape, err := sx.NewTape(f)
	require.NoError(t, err)

	xv, yv := 0.7, 1.3
	vals, err := tape.Values(bindTo(map[*sx.Node]float64{x: xv, y: yv}))
	require.NoError(t, err)

	adj := make([]float64, tape.Len())
	i, _ := tape.Index(f)
	adj[i] = 1 // unit output seed
	require.NoError(t, tape.Reverse(vals, adj, 1))

	ix, _ := tape.Index(x)
	iy, _ := tape.Index(y)
	require.InDelta(t, math.Cos(xv)*yv+1/yv, adj[ix], 1e-14)
	require.InDelta(t, math.Sin(xv)-xv/(yv*yv), adj[iy], 1e-14)
}

func TestForwardReverse_Duality(t *testing.T) {
	// v·(Ju) == (Jᵀv)·u for f: R² → R², f = (x*y, exp(x)+tan(y)).
	x, y := sx.Sym("x"), sx.Sym("y")
	f0 := sx.Mul(x, y)
	f1 := sx.Add(sx.Exp(x), sx.Tan(y))

	tape, err := sx.NewTape(f0, f1)
	require.NoError(t, err)
	vals, err := tape.Values(bindTo(map[*sx.Node]float64{x: 0.3, y: 0.9}))
	require.NoError(t, err)

	u := []float64{1.7, -0.4} // input direction
	v := []float64{0.6, 2.2}  // output direction

	ix, _ := tape.Index(x)
	iy, _ := tape.Index(y)
	i0, _ := tape.Index(f0)
	i1, _ := tape.Index(f1)

	fdot := make([]float64, tape.Len())
	fdot[ix], fdot[iy] = u[0], u[1]
	require.NoError(t, tape.Forward(vals, fdot, 1))
	vJu := v[0]*fdot[i0] + v[1]*fdot[i1]

	adj := make([]float64, tape.Len())
	adj[i0], adj[i1] = v[0], v[1]
	require.NoError(t, tape.Reverse(vals, adj, 1))
	JTvu := adj[ix]*u[0] + adj[iy]*u[1]

	require.InDelta(t, vJu, JTvu, 1e-13)
}

func TestReverse_SharedSubexpressionAccumulates(t *testing.T) {
	// f = s + s with s = sin(x): adjoint of x must be 2*cos(x).
	x := sx.Sym("x")
	s := sx.Sin(x)
	f := sx.Add(s, s)

	tape, err := sx.NewTape(f)
	require.NoError(t, err)
	vals, err := tape.Values(bindTo(map[*sx.Node]float64{x: 0.5}))
	require.NoError(t, err)

	adj := make([]float64, tape.Len())
	i, _ := tape.Index(f)
	adj[i] = 1
	require.NoError(t, tape.Reverse(vals, adj, 1))

	ix, _ := tape.Index(x)
	require.InDelta(t, 2*math.Cos(0.5), adj[ix], 1e-14)
}

func TestSymbolicValues_Substitution(t *testing.T) {
	x := sx.Sym("x")
	f := sx.Add(sx.Mul(x, x), x)
	tape, err := sx.NewTape(f)
	require.NoError(t, err)

	// Substitute x := 3 and expect full folding to the constant 12.
	subs, err := tape.SymbolicValues(func(*sx.Node) (*sx.Node, error) { return sx.Const(3), nil })
	require.NoError(t, err)
	i, _ := tape.Index(f)
	require.True(t, subs[i].IsConstant())
	require.Equal(t, 12.0, subs[i].Value())
}

func TestSymbolicForward_DifferentiableResult(t *testing.T) {
	// Symbolic d(sin(x)*x)/dx = cos(x)*x + sin(x); evaluate the produced
	// expression and compare with the closed form.
	x := sx.Sym("x")
	f := sx.Mul(sx.Sin(x), x)
	tape, err := sx.NewTape(f)
	require.NoError(t, err)

	subs, err := tape.SymbolicValues(func(s *sx.Node) (*sx.Node, error) { return s, nil })
	require.NoError(t, err)

	fdot := make([]*sx.Node, tape.Len())
	ix, _ := tape.Index(x)
	fdot[ix] = sx.One()
	require.NoError(t, tape.SymbolicForward(subs, fdot, 1))

	i, _ := tape.Index(f)
	dtape, err := sx.NewTape(fdot[i])
	require.NoError(t, err)
	vals, err := dtape.Values(bindTo(map[*sx.Node]float64{x: 1.1}))
	require.NoError(t, err)
	id, _ := dtape.Index(fdot[i])
	require.InDelta(t, math.Cos(1.1)*1.1+math.Sin(1.1), vals[id], 1e-14)
}

func TestSymbolicReverse_MatchesForward(t *testing.T) {
	x, y, f := buildScalar()
	tape, err := sx.NewTape(f)
	require.NoError(t, err)
	subs, err := tape.SymbolicValues(func(s *sx.Node) (*sx.Node, error) { return s, nil })
	require.NoError(t, err)

	adj := make([]*sx.Node, tape.Len())
	i, _ := tape.Index(f)
	adj[i] = sx.One()
	require.NoError(t, tape.SymbolicReverse(subs, adj, 1))

	ix, _ := tape.Index(x)
	iy, _ := tape.Index(y)

	// Evaluate the two adjoint expressions numerically.
	gtape, err := sx.NewTape(adj[ix], adj[iy])
	require.NoError(t, err)
	xv, yv := 0.7, 1.3
	vals, err := gtape.Values(bindTo(map[*sx.Node]float64{x: xv, y: yv}))
	require.NoError(t, err)
	gx, _ := gtape.Index(adj[ix])
	gy, _ := gtape.Index(adj[iy])
	require.InDelta(t, math.Cos(xv)*yv+1/yv, vals[gx], 1e-14)
	require.InDelta(t, math.Sin(xv)-xv/(yv*yv), vals[gy], 1e-14)
}

func TestDepend_StructuralOnly(t *testing.T) {
	// f0 depends on x only, f1 on both, f2 on neither (constant).
	x, y := sx.Sym("x"), sx.Sym("y")
	f0 := sx.Sin(x)
	f1 := sx.Mul(x, y)
	f2 := sx.Const(4)

	tape, err := sx.NewTape(f0, f1, f2)
	require.NoError(t, err)

	dep := make([]uint64, tape.Len())
	ix, _ := tape.Index(x)
	iy, _ := tape.Index(y)
	dep[ix] = 1 << 0
	dep[iy] = 1 << 1
	require.NoError(t, tape.Depend(dep, 1))

	i0, _ := tape.Index(f0)
	i1, _ := tape.Index(f1)
	i2, _ := tape.Index(f2)
	require.Equal(t, uint64(1), dep[i0])
	require.Equal(t, uint64(3), dep[i1])
	require.Equal(t, uint64(0), dep[i2])
}
