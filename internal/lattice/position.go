package lattice

import (
	"fmt"
	"slices"
	"sort"
	"strconv"
	"strings"
)

// Position is a point of Z^D.
type Position []int

// Origin returns the zero position of dimension d.
func Origin(d int) Position {
	return make(Position, d)
}

// Clone returns a copy of p.
func (p Position) Clone() Position {
	return slices.Clone(p)
}

// Equal reports whether p and q have the same coordinates.
func (p Position) Equal(q Position) bool {
	return slices.Equal(p, q)
}

// Sum returns the sum of the coordinates.
func (p Position) Sum() int {
	s := 0
	for _, c := range p {
		s += c
	}
	return s
}

// IsCanonical reports whether p is sorted descending and non-negative.
func (p Position) IsCanonical() bool {
	if len(p) == 0 {
		return false
	}
	for i, c := range p {
		if c < 0 {
			return false
		}
		if i > 0 && c > p[i-1] {
			return false
		}
	}
	return true
}

func (p Position) String() string {
	parts := make([]string, len(p))
	for i, c := range p {
		parts[i] = strconv.Itoa(c)
	}
	return "(" + strings.Join(parts, ",") + ")"
}

// ParsePosition parses a comma separated coordinate list such as "3,-1,0".
// Surrounding parentheses are accepted.
func ParsePosition(s string) (Position, error) {
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(strings.TrimPrefix(s, "("), ")")
	if s == "" {
		return nil, fmt.Errorf("lattice: empty position")
	}
	fields := strings.Split(s, ",")
	p := make(Position, len(fields))
	for i, f := range fields {
		c, err := strconv.Atoi(strings.TrimSpace(f))
		if err != nil {
			return nil, fmt.Errorf("lattice: coordinate %d of %q: %w", i, s, err)
		}
		p[i] = c
	}
	return p, nil
}

// Transform records how a lattice position was folded onto its canonical
// representative.
type Transform struct {
	// Signs holds the sign (+1 or -1) of each original coordinate. Zero
	// coordinates are reported as +1.
	Signs []int
	// Perm maps canonical index i to the original axis Perm[i].
	Perm []int
}

// Canonicalize maps p to the canonical representative of its class and
// returns the transform that undoes the folding.
func Canonicalize(p Position) (Position, Transform) {
	d := len(p)
	t := Transform{Signs: make([]int, d), Perm: make([]int, d)}
	abs := make([]int, d)
	for i, c := range p {
		t.Signs[i] = 1
		if c < 0 {
			t.Signs[i] = -1
			c = -c
		}
		abs[i] = c
		t.Perm[i] = i
	}
	sort.SliceStable(t.Perm, func(i, j int) bool {
		return abs[t.Perm[i]] > abs[t.Perm[j]]
	})
	canon := make(Position, d)
	for i, axis := range t.Perm {
		canon[i] = abs[axis]
	}
	return canon, t
}

// Restore applies t to a canonical position, yielding the original lattice
// position. Restore(Canonicalize(p)) == p.
func Restore(canon Position, t Transform) Position {
	p := make(Position, len(canon))
	for i, axis := range t.Perm {
		p[axis] = canon[i] * t.Signs[axis]
	}
	return p
}

// canonical folds p without recording the transform.
func canonical(p Position) Position {
	c := make(Position, len(p))
	for i, v := range p {
		if v < 0 {
			v = -v
		}
		c[i] = v
	}
	sort.Sort(sort.Reverse(sort.IntSlice(c)))
	return c
}

// Orbit lists every lattice position equivalent to the canonical position c,
// including c itself. The result has OrbitSize(c) elements.
func Orbit(c Position) []Position {
	mustCanonical(c)
	perm := c.Clone()
	slices.Sort(perm)
	var out []Position
	for {
		out = appendSigned(out, perm)
		if !nextPermutation(perm) {
			break
		}
	}
	return out
}

func appendSigned(out []Position, p Position) []Position {
	var nonZero []int
	for i, v := range p {
		if v != 0 {
			nonZero = append(nonZero, i)
		}
	}
	for mask := 0; mask < 1<<len(nonZero); mask++ {
		q := p.Clone()
		for bit, axis := range nonZero {
			if mask&(1<<bit) != 0 {
				q[axis] = -q[axis]
			}
		}
		out = append(out, q)
	}
	return out
}

// nextPermutation advances p to its next lexicographic permutation and
// reports false once p was the last one.
func nextPermutation(p Position) bool {
	i := len(p) - 2
	for i >= 0 && p[i] >= p[i+1] {
		i--
	}
	if i < 0 {
		return false
	}
	j := len(p) - 1
	for p[j] <= p[i] {
		j--
	}
	p[i], p[j] = p[j], p[i]
	slices.Reverse(p[i+1:])
	return true
}

// OrbitSize returns the number of lattice positions equivalent to the
// canonical position c: D!/prod(m_k!) distinct orderings times 2 per
// non-zero coordinate.
func OrbitSize(c Position) int64 {
	mustCanonical(c)
	size := int64(1)
	run := 0
	for i, v := range c {
		if i > 0 && v == c[i-1] {
			run++
		} else {
			run = 1
		}
		// multiply by (i+1)/run incrementally; exact because the running
		// product is a multinomial coefficient at every step
		size = size * int64(i+1) / int64(run)
		if v != 0 {
			size *= 2
		}
	}
	return size
}

func mustCanonical(p Position) {
	if !p.IsCanonical() {
		panic(fmt.Sprintf("lattice: position %v is not canonical", []int(p)))
	}
}
