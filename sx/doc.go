// Package sx implements the scalar expression graph: an immutable DAG of
// scalar symbolic nodes (symbols, constants, unary and binary operators)
// together with forward-mode and adjoint-mode derivative propagation.
//
// Construction is the only way to grow the graph. A combinator such as Add or
// Sin allocates a new node referencing already-existing operands, so a node can
// never reach itself and cycles are structurally impossible. Nodes are never
// mutated after construction (referential transparency), which makes shared
// subexpressions safe: the same *Node may appear under any number of parents
// and may be read concurrently. Ownership is shared; a node is reclaimed by
// the garbage collector once no expression handle or tape reaches it.
//
// A Matrix pairs a sparsity.Pattern with one Node per structural nonzero in
// row-major order, forming the scalar-level symbolic matrix used by the
// function layer.
//
// Derivative propagation operates on a Tape — a topologically ordered view of
// the nodes reachable from a set of roots:
//
//   - Forward:  one pass over the tape turns seed values on symbols into a
//     directional derivative for every node (a Jacobian-vector product that
//     never materializes the Jacobian).
//   - Reverse:  one pass in reverse order distributes output adjoints onto
//     operands via adj[x] += ∂f/∂x · adj[f] (a vector-Jacobian product).
//   - Both passes carry a fixed block of ndir simultaneous directions per node
//     so several seeds share a single traversal.
//   - SymbolicForward/SymbolicReverse produce Node-valued sensitivities using
//     the same walks, so a derivative is itself a differentiable expression.
//   - Depend propagates structural dependency bits (64 inputs per machine
//     word) for value-independent Jacobian sparsity inference.
//
// Complexity: every pass is O(len(tape) · ndir); tape construction is
// O(nodes + edges).
package sx
