// Package function_test: benchmarks for seeded evaluation on both backends.
// Each benchmark finalizes its function once and measures repeated Evaluate
// calls against the preallocated slot buffers.
package function_test

import (
	"testing"

	"github.com/onedigit/casadi/function"
	"github.com/onedigit/casadi/mx"
	"github.com/onedigit/casadi/sparsity"
	"github.com/onedigit/casadi/sx"
)

// benchVector is buildVector without the test plumbing: the running
// four-component example over x0..x3.
func benchVector(b *testing.B, opts ...function.Option) *function.Function {
	b.Helper()
	x := sx.DenseSymMatrix("x", 4, 1)
	x0, x1, x2, x3 := x.Nz(0), x.Nz(1), x.Nz(2), x.Nz(3)
	sq := sx.Mul(x1, x1)
	cube := sx.Mul(sq, x1)
	quart := sx.Mul(sx.Mul(x2, x2), sx.Mul(x2, x2))
	out, err := sx.NewMatrix(sparsity.Dense(4, 1), []*sx.Node{
		x0,
		sx.Add(x0, sx.Mul(sx.Const(2), sq)),
		sx.Add(sx.Add(x0, sx.Mul(sx.Const(2), cube)), sx.Mul(sx.Const(3), quart)),
		x3,
	})
	if err != nil {
		b.Fatal(err)
	}
	fn, err := function.New("f", []sx.Matrix{x}, []sx.Matrix{out})
	if err != nil {
		b.Fatal(err)
	}
	if err := fn.Finalize(opts...); err != nil {
		b.Fatal(err)
	}

	return fn
}

func BenchmarkFunction_Evaluate(b *testing.B) {
	fn := benchVector(b)
	if err := fn.SetInput(0, point); err != nil {
		b.Fatal(err)
	}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if err := fn.Evaluate(0, 0); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkFunction_EvaluateForward(b *testing.B) {
	fn := benchVector(b)
	if err := fn.SetInput(0, point); err != nil {
		b.Fatal(err)
	}
	if err := fn.SetForwardSeed(0, 0, []float64{1, 0, 0, 0}); err != nil {
		b.Fatal(err)
	}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if err := fn.Evaluate(1, 0); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkFunction_EvaluateAdjoint(b *testing.B) {
	fn := benchVector(b)
	if err := fn.SetInput(0, point); err != nil {
		b.Fatal(err)
	}
	if err := fn.SetAdjointSeed(0, 0, []float64{0, 0, 1, 0}); err != nil {
		b.Fatal(err)
	}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if err := fn.Evaluate(0, 1); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkFunction_EvaluateMX(b *testing.B) {
	x := mx.DenseSym("x", 8, 1)
	a, err := mx.DenseConst(8, 8, benchMatrixValues(8))
	if err != nil {
		b.Fatal(err)
	}
	ax, err := mx.MatMul(a, x)
	if err != nil {
		b.Fatal(err)
	}
	f, err := mx.Dot(x, ax)
	if err != nil {
		b.Fatal(err)
	}
	fn, err := function.NewMX("quad", []*mx.Node{x}, []*mx.Node{f})
	if err != nil {
		b.Fatal(err)
	}
	if err := fn.Finalize(); err != nil {
		b.Fatal(err)
	}
	at := make([]float64, 8)
	for i := range at {
		at[i] = float64(i + 1)
	}
	if err := fn.SetInput(0, at); err != nil {
		b.Fatal(err)
	}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if err := fn.Evaluate(0, 0); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkFunction_JacobianEvaluate(b *testing.B) {
	jac, err := benchVector(b).Jacobian(0, 0)
	if err != nil {
		b.Fatal(err)
	}
	if err := jac.SetInput(0, point); err != nil {
		b.Fatal(err)
	}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if err := jac.Evaluate(0, 0); err != nil {
			b.Fatal(err)
		}
	}
}

// benchMatrixValues fills an n×n dense value block with a deterministic ramp.
func benchMatrixValues(n int) []float64 {
	vals := make([]float64, n*n)
	for i := range vals {
		vals[i] = float64(i%7) + 0.5
	}

	return vals
}
