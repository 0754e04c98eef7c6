// Package lattice addresses the symmetry-reduced sector of the Z^D lattice.
//
// The automaton starts from a single source at the origin, so every
// generation is invariant under coordinate permutations and sign flips.
// Only one representative per equivalence class is stored, the canonical
// position:
//
//	c[0] >= c[1] >= ... >= c[D-1] >= 0
//
// # Addressing
//
// Canonical positions are laid out in lexicographic order of their
// coordinates. Offset computes a position's index in that order in closed
// form, one binomial per coordinate:
//
//	Offset(c) = sum_i C(c[i] + D-1-i, D-i)
//
// The first term counts the canonical positions whose first coordinate is
// smaller, the remaining terms repeat the count for the trailing
// coordinates, and the last two terms reduce to a triangular number plus
// the last coordinate. Count(D, n) is the size of the prefix of positions
// with c[0] < n. File-backed generations use Offset directly as a record
// index.
//
// # Neighbours
//
// Each canonical cell has 2·D lattice neighbours. Several of them may fold
// onto the same canonical position; Neighbors returns the distinct canonical
// neighbours with their symmetry counts and share multipliers.
//
// Passing a non-canonical position to Offset, SliceOffset or Neighbors is a
// programming error and panics.
package lattice
