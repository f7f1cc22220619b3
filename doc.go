// Package casadi is a symbolic expression and automatic-differentiation
// engine for sparse matrix computations.
//
// Everything is organized under four subpackages, each layered on the one
// before it:
//
//	sparsity/ — compressed row-major structural patterns: the shape algebra
//	            (union, intersection, product, transpose, reshape, slicing)
//	            that gates every value computation above it
//	sx/       — scalar expression graphs: immutable nodes, elementary
//	            operations with constant folding, numeric and symbolic
//	            forward/reverse passes over a topologically ordered tape
//	mx/       — matrix expression graphs: one node per matrix operation,
//	            per-kind sparsity propagation, indexed reads and writes,
//	            embedded function calls, and expansion down to sx form
//	function/ — callable, differentiable functions over either graph kind:
//	            finalize-once lifecycle, seeded evaluation, Jacobians and
//	            gradients in graph or finite-difference mode, structural
//	            Jacobian sparsity inference and symbolic embedding
//
// The packages share two conventions throughout: structural zeros are never
// materialized (buffers hold one value per structural nonzero), and every
// user-facing failure is a sentinel error matched with errors.Is.
package casadi
