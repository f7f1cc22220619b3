// Package sparsity provides the compressed structural-nonzero description
// shared by every layer of the expression engine.
//
// A Pattern records which entries of an r×c matrix are structurally nonzero,
// independent of numeric values, in row-major compressed form:
//
//	rowptr — r+1 offsets into colind; row i occupies colind[rowptr[i]:rowptr[i+1]]
//	colind — column indices, strictly increasing within each row
//
// Patterns are immutable after construction and may be shared freely by
// reference across any number of symbolic or numeric matrices. All derived
// patterns (Union, Intersect, Product, Transpose, Reshape) are new values.
//
// Invariants (validated at construction, preserved by every operation):
//
//   - 0 ≤ colind[k] < cols for every k
//   - column indices within a row are strictly increasing
//   - rowptr is non-decreasing with rowptr[0]==0 and rowptr[rows]==len(colind)
//   - two patterns are equal iff dimensions and occupied-index sets are equal
//
// Complexity:
//
//   - Construction/validation: O(nnz)
//   - Union/Intersect:         O(nnz(a) + nnz(b))
//   - Product:                 O(Σ pairwise structural products)
//   - Transpose/Reshape:       O(nnz), nonzero count preserved
//
// See New for the validating constructor and Dense/Empty/Diag for shortcuts.
package sparsity
