// Package mx implements the matrix expression graph: a DAG whose nodes are
// whole-matrix operations, avoiding the scalar-node blowup of large
// linear-algebra expressions.
//
// Node kinds: input placeholder (Sym), sparse constant (Const), element-wise
// unary and binary operations, vertical/horizontal concatenation, transpose,
// reshape, pattern projection, indexed read (Submatrix), indexed write
// (SetSubmatrix), matrix multiply (MatMul), inner product (Dot) and
// call-into-subfunction
// (Call). Every node declares its output sparsity pattern, computed from the
// operand patterns by a fixed per-kind rule: zero-preserving element-wise
// operations intersect operand sparsity, non-zero-preserving ones unite or
// densify, and matrix multiply takes the Boolean product of the operand
// patterns.
//
// Nodes are immutable and acyclic by construction, exactly as in package sx.
// Apparent in-place assignment is modeled purely: SetSubmatrix merges a
// sub-block into a value and returns a new node; the original is never
// touched. When one SetSubmatrix writes the same target position more than
// once (duplicate indices), the LAST write wins.
//
// Propagation passes mirror package sx at matrix granularity:
//
//   - Values/Forward/Reverse run numeric evaluation and seed propagation over
//     a topologically sorted Tape, with per-node local rules that are linear
//     operators on matrices (for C = A·B: dC = dA·B + A·dB, and adjoints
//     adj(A) += adj(C)·Bᵀ, adj(B) += Aᵀ·adj(C)). Concatenation and indexing
//     nodes route seed and adjoint blocks by nonzero mapping; SetSubmatrix
//     zeroes the overwritten region of the target adjoint so that
//     differentiating a partial overwrite matches the fully expanded scalar
//     form.
//   - SymbolicValues/SymbolicForward/SymbolicReverse rebuild substituted
//     graphs and Node-valued sensitivities with the same combinators.
//   - Depend propagates structural dependency bitsets for Jacobian sparsity
//     inference, including through Call nodes via the callee.
//   - Expand lowers every node into its scalar (package sx) form, gated by
//     sparsity so structural zeros are never materialized.
//
// Call nodes carry no symbolic differentiation rule: symbolic seeding through
// a Call reports ErrUnsupportedDifferentiation. Numeric seed propagation and
// expansion through a Call are fully supported; differentiating after
// expansion covers the symbolic case.
package mx
