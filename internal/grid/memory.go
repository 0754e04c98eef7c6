package grid

import (
	"errors"
	"fmt"

	"github.com/roach88/aether/internal/lattice"
	"github.com/roach88/aether/internal/num"
)

// MemoryGeneration is an arena of per-slice arrays. Slice w holds the
// SliceCount(d, w) canonical positions whose first coordinate is w and is
// allocated on the first Add that touches it.
type MemoryGeneration[T any] struct {
	arith   num.Arith[T]
	dim     int
	slices  [][]T
	retired []bool
	keep    bool
}

func newMemoryGeneration[T any](a num.Arith[T], dim, extent int, keep bool) *MemoryGeneration[T] {
	return &MemoryGeneration[T]{
		arith:   a,
		dim:     dim,
		slices:  make([][]T, extent),
		retired: make([]bool, extent),
		keep:    keep,
	}
}

func (g *MemoryGeneration[T]) Dimension() int { return g.dim }
func (g *MemoryGeneration[T]) Extent() int    { return len(g.slices) }

func (g *MemoryGeneration[T]) Value(p lattice.Position) (T, error) {
	w := p[0]
	if w >= len(g.slices) {
		return g.arith.Zero(), nil
	}
	if g.retired[w] {
		panic(fmt.Sprintf("grid: slice %d read after retire", w))
	}
	s := g.slices[w]
	if s == nil {
		return g.arith.Zero(), nil
	}
	return s[lattice.SliceOffset(p)], nil
}

func (g *MemoryGeneration[T]) Add(p lattice.Position, v T) error {
	w := p[0]
	if w >= len(g.slices) {
		return fmt.Errorf("grid: position %v beyond extent %d", p, len(g.slices))
	}
	if g.retired[w] {
		panic(fmt.Sprintf("grid: slice %d written after retire", w))
	}
	s := g.slices[w]
	if s == nil {
		s = make([]T, lattice.SliceCount(g.dim, w))
		zero := g.arith.Zero()
		for i := range s {
			s[i] = zero
		}
		g.slices[w] = s
	}
	i := lattice.SliceOffset(p)
	s[i] = g.arith.Add(s[i], v)
	return nil
}

// Retire frees slice w unless the owning backend keeps previous
// generations intact.
func (g *MemoryGeneration[T]) Retire(w int) error {
	if g.keep || w < 0 || w >= len(g.slices) {
		return nil
	}
	g.slices[w] = nil
	g.retired[w] = true
	return nil
}

// Allocated returns the number of slices currently holding an array.
func (g *MemoryGeneration[T]) Allocated() int {
	n := 0
	for _, s := range g.slices {
		if s != nil {
			n++
		}
	}
	return n
}

// MemoryOption configures a MemoryBackend.
type MemoryOption func(*memoryConfig)

type memoryConfig struct {
	keepPrevious bool
}

// KeepPrevious disables progressive release of the previous generation.
// Peak memory doubles, but a step can then be cancelled at any slice.
func KeepPrevious() MemoryOption {
	return func(c *memoryConfig) { c.keepPrevious = true }
}

// MemoryBackend keeps generations in RAM.
type MemoryBackend[T any] struct {
	arith  num.Arith[T]
	dim    int
	cfg    memoryConfig
	cur    *MemoryGeneration[T]
	next   *MemoryGeneration[T]
	closed bool
}

var _ Backend[int64] = (*MemoryBackend[int64])(nil)

// NewMemoryBackend returns a backend whose current generation is empty.
func NewMemoryBackend[T any](a num.Arith[T], dim int, opts ...MemoryOption) *MemoryBackend[T] {
	b := &MemoryBackend[T]{arith: a, dim: dim}
	for _, opt := range opts {
		opt(&b.cfg)
	}
	b.cur = newMemoryGeneration(a, dim, 0, true)
	return b
}

func (b *MemoryBackend[T]) Dimension() int { return b.dim }

func (b *MemoryBackend[T]) Current() Generation[T] { return b.cur }

func (b *MemoryBackend[T]) Begin(_ int64, extent int) (Generation[T], error) {
	if b.closed {
		return nil, errors.New("grid: backend closed")
	}
	if b.next != nil {
		return nil, errors.New("grid: generation already in progress")
	}
	b.next = newMemoryGeneration(b.arith, b.dim, extent, b.cfg.keepPrevious)
	return b.next, nil
}

func (b *MemoryBackend[T]) Commit() error {
	if b.next == nil {
		return errors.New("grid: no generation in progress")
	}
	b.cur, b.next = b.next, nil
	return nil
}

func (b *MemoryBackend[T]) Discard() error {
	b.next = nil
	return nil
}

func (b *MemoryBackend[T]) Interruptible() bool { return b.cfg.keepPrevious }

func (b *MemoryBackend[T]) Close() error {
	b.closed = true
	b.cur, b.next = nil, nil
	return nil
}
