// Package grid stores the generations of the automaton.
//
// A Generation holds one value per canonical position with first coordinate
// below its extent; everything beyond the extent reads as zero. A Backend
// owns the committed generation and at most one generation under
// construction. Two backends are provided:
//
//   - MemoryBackend keeps each slice (positions sharing a first coordinate)
//     in its own lazily allocated array and frees slices as the sweep
//     retires them.
//   - FileBackend keeps each generation in a file of fixed-width int64
//     records addressed by lattice.Offset, so grids larger than RAM can be
//     advanced.
package grid

import (
	"github.com/roach88/aether/internal/lattice"
)

// Generation is the store for a single step.
type Generation[T any] interface {
	Dimension() int
	// Extent is the number of slices the generation covers.
	Extent() int
	// Value returns the value at canonical position p, or zero beyond the
	// extent.
	Value(p lattice.Position) (T, error)
	// Add accumulates v into canonical position p. p must lie within the
	// extent.
	Add(p lattice.Position, v T) error
	// Retire signals that slice w will not be read again during this step.
	Retire(w int) error
}

// Backend owns the committed generation and the one being built.
type Backend[T any] interface {
	Dimension() int
	// Current returns the last committed generation.
	Current() Generation[T]
	// Begin allocates an empty generation covering extent slices for step.
	Begin(step int64, extent int) (Generation[T], error)
	// Commit makes the generation started by Begin current and releases the
	// previous one. An error means the new generation did not become current.
	Commit() error
	// Discard drops the generation started by Begin. The current generation
	// is left as it was.
	Discard() error
	// Interruptible reports whether the current generation stays fully
	// readable while the next one is built, so a step may be abandoned
	// midway.
	Interruptible() bool
	Close() error
}

// ForEach calls fn with every canonical position below the extent of g and
// its value, in offset order. The position is reused between calls.
func ForEach[T any](g Generation[T], fn func(p lattice.Position, v T) error) error {
	return lattice.Walk(g.Dimension(), g.Extent(), func(p lattice.Position) error {
		v, err := g.Value(p)
		if err != nil {
			return err
		}
		return fn(p, v)
	})
}
