package harness

import (
	"math/big"

	"github.com/roach88/aether/internal/lattice"
	"github.com/roach88/aether/internal/num"
	"github.com/roach88/aether/internal/topple"
)

// reference simulates the automaton on the unreduced lattice: every cell
// is stored and topples against its 2·D lattice neighbours, each standing
// for itself. It is only practical for small runs.
type reference[T any] struct {
	arith num.Arith[T]
	cells map[string]refCell[T]
}

type refCell[T any] struct {
	pos   lattice.Position
	value T
}

func newReference[T any](a num.Arith[T], dim int, initial T) *reference[T] {
	r := &reference[T]{arith: a, cells: map[string]refCell[T]{}}
	origin := lattice.Origin(dim)
	if a.Sign(initial) != 0 {
		r.cells[origin.String()] = refCell[T]{pos: origin, value: initial}
	}
	return r
}

func (r *reference[T]) value(p lattice.Position) T {
	if c, ok := r.cells[p.String()]; ok {
		return c.value
	}
	return r.arith.Zero()
}

func (r *reference[T]) step() {
	candidates := map[string]lattice.Position{}
	for k, c := range r.cells {
		candidates[k] = c.pos
		for _, q := range adjacent(c.pos) {
			candidates[q.String()] = q
		}
	}

	next := map[string]refCell[T]{}
	add := func(p lattice.Position, v T) {
		k := p.String()
		c, ok := next[k]
		if !ok {
			c = refCell[T]{pos: p, value: r.arith.Zero()}
		}
		c.value = r.arith.Add(c.value, v)
		next[k] = c
	}
	for _, p := range candidates {
		adj := adjacent(p)
		nbs := make([]topple.Neighbor[T], len(adj))
		for i, q := range adj {
			nbs[i] = topple.Neighbor[T]{Value: r.value(q), Symmetry: 1, Share: 1, Target: i}
		}
		res := topple.Topple(r.arith, r.value(p), nbs)
		add(p, res.Remainder)
		for _, tr := range res.Outgoing {
			add(adj[tr.Target], tr.Amount)
		}
	}
	for k, c := range next {
		if r.arith.Sign(c.value) == 0 {
			delete(next, k)
		}
	}
	r.cells = next
}

// snapshot returns the non-zero cells keyed by position.
func (r *reference[T]) snapshot() map[string]*big.Int {
	out := make(map[string]*big.Int, len(r.cells))
	for k, c := range r.cells {
		v, _ := new(big.Int).SetString(r.arith.String(c.value), 10)
		out[k] = v
	}
	return out
}

func adjacent(p lattice.Position) []lattice.Position {
	out := make([]lattice.Position, 0, 2*len(p))
	for axis := range p {
		for _, delta := range []int{-1, 1} {
			q := p.Clone()
			q[axis] += delta
			out = append(out, q)
		}
	}
	return out
}
