package sparsity_test

import (
	"fmt"

	"github.com/onedigit/casadi/sparsity"
)

// ExampleNew builds the structural pattern of a lower-bidiagonal 3x3 matrix
// and queries it.
func ExampleNew() {
	p, err := sparsity.New(3, 3,
		[]int{0, 1, 3, 5},
		[]int{0, 0, 1, 1, 2},
	)
	if err != nil {
		fmt.Println(err)

		return
	}
	fmt.Println(p)
	fmt.Println(p.Row(1))
	// Output:
	// 3x3, nnz=5
	// [0 1]
}

// ExampleProduct infers the structural shape of a matrix multiply.
func ExampleProduct() {
	a, _ := sparsity.FromTriplets(2, 3, []int{0, 1}, []int{1, 2})
	b, _ := sparsity.FromTriplets(3, 2, []int{1, 2}, []int{0, 1})
	p, _ := sparsity.Product(a, b)
	fmt.Println(p)
	// Output:
	// 2x2, nnz=2
}
