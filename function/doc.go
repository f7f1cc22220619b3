// Package function turns symbolic expression graphs into callable,
// differentiable functions.
//
// A Function is built from symbolic inputs and output expressions, either
// scalar-backed (New, over sx matrices whose nonzeros are symbols) or
// matrix-backed (NewMX, over mx symbol nodes). Construction leaves it in the
// Built state; Finalize freezes the dependency order, verifies that every
// free symbol reachable from the outputs is a declared input and allocates
// all evaluation storage once. From then on the instance is evaluable and no
// structural change is possible.
//
// Evaluation follows a slot model: SetInput, SetForwardSeed and
// SetAdjointSeed store nonzero vectors, Evaluate(nfwd, nadj) runs one pass
// computing the outputs plus nfwd tangent and nadj adjoint directions, and
// Output, ForwardSens and AdjointSens read the results. One instance owns
// one set of buffers; concurrent evaluation takes distinct instances.
//
// Derivatives come in three forms:
//
//   - Jacobian and Gradient return new finalized Functions. In graph mode
//     they assemble symbolic partial expressions, seeding forward per input
//     nonzero or reverse per output nonzero according to the AD mode, sized
//     by the inferred sparsity. In numeric mode they wrap the function in a
//     central finite-difference kernel.
//   - JacSparsity infers the structural Jacobian pattern alone, propagating
//     dependency bitsets 64 seeds per machine word without any values.
//   - EvalSymbolicSX and EvalSymbolicMX substitute fresh symbolic inputs and
//     seeds, producing derivative expressions for embedding one function
//     inside another.
//
// A finalized Function also satisfies mx.Callee, so it can sit as a call
// node inside another function's matrix graph. Symbolic seeding does not
// reach through such call sites; Expand lowers the matrix graph (calls
// included) to scalar form, after which every derivative works again.
//
// Complexity: Evaluate is O(graph · (1 + nfwd + nadj)) plus embedded callee
// costs; JacSparsity is O(graph · ⌈nnz(in)/64⌉); a graph-mode Jacobian costs
// one symbolic pass with nnz(in) or nnz(out) directions.
package function
