package function_test

import (
	"fmt"

	"github.com/onedigit/casadi/function"
	"github.com/onedigit/casadi/sparsity"
	"github.com/onedigit/casadi/sx"
)

// ExampleFunction builds f(x) = (x0·x1, sin(x0)), evaluates it with a
// tangent seed and derives its Jacobian as a second callable function.
func ExampleFunction() {
	x := sx.DenseSymMatrix("x", 2, 1)
	out, err := sx.NewMatrix(sparsity.Dense(2, 1), []*sx.Node{
		sx.Mul(x.Nz(0), x.Nz(1)),
		sx.Sin(x.Nz(0)),
	})
	if err != nil {
		fmt.Println("build:", err)

		return
	}
	f, err := function.New("f", []sx.Matrix{x}, []sx.Matrix{out})
	if err != nil {
		fmt.Println("new:", err)

		return
	}
	if err := f.Finalize(); err != nil {
		fmt.Println("finalize:", err)

		return
	}

	_ = f.SetInput(0, []float64{2, 3})
	_ = f.SetForwardSeed(0, 0, []float64{1, 0})
	if err := f.Evaluate(1, 0); err != nil {
		fmt.Println("evaluate:", err)

		return
	}
	fmt.Printf("f(2,3) = [%.4f %.4f]\n", f.Output(0)[0], f.Output(0)[1])
	fmt.Printf("df/dx0 = [%.4f %.4f]\n", f.ForwardSens(0, 0)[0], f.ForwardSens(0, 0)[1])

	jac, err := f.Jacobian(0, 0)
	if err != nil {
		fmt.Println("jacobian:", err)

		return
	}
	_ = jac.SetInput(0, []float64{2, 3})
	_ = jac.Evaluate(0, 0)
	fmt.Printf("J nonzeros = %v\n", jac.OutputSparsity(0).NNZ())

	// Output:
	// f(2,3) = [6.0000 0.9093]
	// df/dx0 = [3.0000 -0.4161]
	// J nonzeros = 3
}
