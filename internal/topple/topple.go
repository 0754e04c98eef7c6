// Package topple implements the exact, conservative redistribution rule
// applied to every cell on every step.
//
// A cell holding more than some of its neighbours levels itself against them
// by peeling: the lower neighbours are visited from the highest value down,
// and at each distinct value the remaining gap is split evenly between the
// cell and every neighbour not yet settled. Integer truncation leaves the
// indivisible remainder with the acting cell, so the total is preserved
// exactly.
package topple

import (
	"sort"

	"github.com/roach88/aether/internal/num"
)

// Neighbor describes one distinct canonical neighbour of the acting cell.
type Neighbor[T any] struct {
	Value T
	// Symmetry is the number of lattice neighbours of the acting cell the
	// descriptor stands for.
	Symmetry int
	// Share scales each unit share before it is credited to Target.
	Share int
	// Target is an opaque handle the caller uses to route the transfer.
	Target int
}

// Transfer is an amount to add to the cell identified by Target.
type Transfer[T any] struct {
	Target int
	Amount T
}

// Result is the outcome of toppling one cell.
type Result[T any] struct {
	Remainder T
	// Outgoing lists the non-zero transfers in the order the neighbours were
	// given.
	Outgoing []Transfer[T]
	// Changed reports whether any share was non-zero.
	Changed bool
}

// Topple applies the peeling rule to a cell holding value.
//
// For a single lower neighbour of value n with symmetry k and share m the
// transfer is ((value-n)/(k+1))·m and the remainder is value minus k times
// the unit share.
func Topple[T any](a num.Arith[T], value T, neighbors []Neighbor[T]) Result[T] {
	lower := make([]int, 0, len(neighbors))
	shareCount := int64(1)
	for i, n := range neighbors {
		if a.Cmp(n.Value, value) < 0 {
			lower = append(lower, i)
			shareCount += int64(n.Symmetry)
		}
	}
	res := Result[T]{Remainder: value}
	if len(lower) == 0 {
		return res
	}
	sort.SliceStable(lower, func(i, j int) bool {
		return a.Cmp(neighbors[lower[i]].Value, neighbors[lower[j]].Value) > 0
	})

	// units[i] is the number of unit shares owed to neighbors[i]: every
	// group's share goes to that group and to all lower groups.
	units := make(map[int]T, len(lower))
	run := value
	cum := a.Zero()
	for g := 0; g < len(lower); {
		level := neighbors[lower[g]].Value
		end := g
		groupSym := int64(0)
		for end < len(lower) && a.Cmp(neighbors[lower[end]].Value, level) == 0 {
			groupSym += int64(neighbors[lower[end]].Symmetry)
			end++
		}
		share, _ := a.QuoRemSmall(a.Sub(run, level), shareCount)
		if a.Sign(share) != 0 {
			res.Changed = true
			cum = a.Add(cum, share)
			run = a.Sub(run, a.MulSmall(share, shareCount-1))
		}
		for _, idx := range lower[g:end] {
			units[idx] = cum
		}
		shareCount -= groupSym
		g = end
	}
	res.Remainder = run
	if !res.Changed {
		return res
	}

	for i, n := range neighbors {
		u, ok := units[i]
		if !ok || a.Sign(u) == 0 {
			continue
		}
		res.Outgoing = append(res.Outgoing, Transfer[T]{
			Target: n.Target,
			Amount: a.MulSmall(u, int64(n.Share)),
		})
	}
	return res
}
