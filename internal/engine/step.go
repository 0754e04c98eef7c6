package engine

import (
	"context"
	"fmt"

	"github.com/roach88/aether/internal/grid"
	"github.com/roach88/aether/internal/lattice"
	"github.com/roach88/aether/internal/num"
	"github.com/roach88/aether/internal/topple"
)

// State is the bookkeeping that, together with the committed generation,
// fully describes an automaton between steps.
type State struct {
	Dimension int
	Step      int64
	// Bound is the largest first coordinate that may hold a non-zero value.
	Bound int
	// EvenTurn reports whether positions with an even coordinate sum are
	// expected to topple on the next step.
	EvenTurn bool
	// Changed reports whether the step that produced this state changed any
	// cell. It is false before the first step.
	Changed bool
}

// InitialState returns the state of a single source at the origin.
func InitialState(dim int, nonNegative bool) State {
	return State{Dimension: dim, EvenTurn: nonNegative}
}

// EvenTurnAt recomputes the parity flag for a restored step.
func EvenTurnAt(nonNegative bool, step int64) bool {
	return nonNegative == (step%2 == 0)
}

// Extent returns the number of slices a generation in this state must
// cover to hold every non-zero cell.
func (s State) Extent() int { return s.Bound + 1 }

// Step computes the generation following s. The backend's current
// generation must be the one described by s. On success the new generation
// is committed and its state returned; on failure the partial generation is
// discarded and s is returned unchanged with the error.
func Step[T any](ctx context.Context, a num.Arith[T], b grid.Backend[T], s State, obs Observer) (State, error) {
	if err := ctx.Err(); err != nil {
		return s, fmt.Errorf("engine: step %d not started: %w", s.Step+1, err)
	}
	if obs == nil {
		obs = nopObserver{}
	}
	prev := b.Current()
	next, err := b.Begin(s.Step+1, s.Bound+3)
	if err != nil {
		return s, newStorageError(s.Step+1, err)
	}

	sw := sweep[T]{arith: a, prev: prev, next: next, obs: obs, edge: s.Bound + 1}
	obs.BeginStep(s, s.Bound+3)
	for w := 0; w <= sw.edge; w++ {
		if b.Interruptible() {
			if err := ctx.Err(); err != nil {
				return s, abandon(b, s, fmt.Errorf("engine: step %d cancelled at slice %d: %w", s.Step+1, w, err))
			}
		}
		if err := lattice.WalkSlice(s.Dimension, w, sw.cell); err != nil {
			return s, abandon(b, s, newStorageError(s.Step+1, err))
		}
		if w > 0 {
			if err := prev.Retire(w - 1); err != nil {
				return s, abandon(b, s, newStorageError(s.Step+1, err))
			}
		}
	}
	if err := b.Commit(); err != nil {
		return s, newStorageError(s.Step+1, err)
	}

	out := State{
		Dimension: s.Dimension,
		Step:      s.Step + 1,
		Bound:     s.Bound,
		EvenTurn:  !s.EvenTurn,
		Changed:   sw.changed,
	}
	if sw.grow {
		out.Bound++
	}
	obs.EndStep(out)
	return out, nil
}

// abandon discards the partial generation and returns err, joined with any
// discard failure.
func abandon[T any](b grid.Backend[T], s State, err error) error {
	if derr := b.Discard(); derr != nil {
		return fmt.Errorf("%w (discard step %d: %v)", err, s.Step+1, derr)
	}
	return err
}

// sweep carries the per-step accumulators.
type sweep[T any] struct {
	arith   num.Arith[T]
	prev    grid.Generation[T]
	next    grid.Generation[T]
	obs     Observer
	edge    int
	changed bool
	grow    bool
	nbs     []topple.Neighbor[T]
}

func (sw *sweep[T]) cell(p lattice.Position) error {
	value, err := sw.prev.Value(p)
	if err != nil {
		return err
	}
	descs := lattice.Neighbors(p)
	sw.nbs = sw.nbs[:0]
	for i, d := range descs {
		v, err := sw.prev.Value(d.Pos)
		if err != nil {
			return err
		}
		sw.nbs = append(sw.nbs, topple.Neighbor[T]{Value: v, Symmetry: d.Symmetry, Share: d.Share, Target: i})
	}

	res := topple.Topple(sw.arith, value, sw.nbs)
	if sw.arith.Sign(res.Remainder) != 0 {
		if err := sw.next.Add(p, res.Remainder); err != nil {
			return err
		}
	}
	for _, tr := range res.Outgoing {
		target := descs[tr.Target].Pos
		if err := sw.next.Add(target, tr.Amount); err != nil {
			return err
		}
		if p[0] == sw.edge || target[0] == sw.edge {
			sw.grow = true
		}
	}
	if res.Changed {
		sw.changed = true
	}
	sw.obs.Cell(p, res.Changed)
	return nil
}

// Total returns the sum of g over the whole lattice, each canonical value
// counted once per position of its orbit.
func Total[T any](a num.Arith[T], g grid.Generation[T]) (T, error) {
	sum := a.Zero()
	err := grid.ForEach(g, func(p lattice.Position, v T) error {
		if a.Sign(v) != 0 {
			sum = a.Add(sum, a.MulSmall(v, lattice.OrbitSize(p)))
		}
		return nil
	})
	return sum, err
}
