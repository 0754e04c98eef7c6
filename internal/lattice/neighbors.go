package lattice

// Neighbor is one distinct canonical neighbour of a canonical cell.
type Neighbor struct {
	Pos Position
	// Symmetry is the number of the cell's lattice neighbours that fold
	// onto Pos.
	Symmetry int
	// Share is the number of Pos's lattice neighbours that fold back onto
	// the cell. A grain moved from the cell to one representative of Pos is
	// moved, by symmetry, from Share equivalent cells into Pos as well.
	Share int
}

// Neighbors returns the distinct canonical neighbours of the canonical cell
// c. The symmetry counts sum to 2·len(c). It panics if c is not canonical.
func Neighbors(c Position) []Neighbor {
	mustCanonical(c)
	var out []Neighbor
	forEachAdjacent(c, func(q Position) {
		for i := range out {
			if out[i].Pos.Equal(q) {
				out[i].Symmetry++
				return
			}
		}
		out = append(out, Neighbor{Pos: q, Symmetry: 1})
	})
	for i := range out {
		forEachAdjacent(out[i].Pos, func(q Position) {
			if q.Equal(c) {
				out[i].Share++
			}
		})
	}
	return out
}

// forEachAdjacent calls fn with the canonical form of each of the 2·D
// lattice neighbours of p.
func forEachAdjacent(p Position, fn func(Position)) {
	q := p.Clone()
	for axis := range p {
		for _, delta := range [...]int{-1, 1} {
			q[axis] = p[axis] + delta
			fn(canonical(q))
		}
		q[axis] = p[axis]
	}
}
