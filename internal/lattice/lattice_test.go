package lattice

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanonicalize(t *testing.T) {
	tests := []struct {
		name string
		in   Position
		want Position
	}{
		{"origin", Position{0, 0}, Position{0, 0}},
		{"already canonical", Position{3, 1}, Position{3, 1}},
		{"swapped", Position{1, 3}, Position{3, 1}},
		{"negative", Position{-2, 5, 0}, Position{5, 2, 0}},
		{"1d negative", Position{-7}, Position{7}},
		{"ties", Position{-1, 1, -1}, Position{1, 1, 1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, tr := Canonicalize(tt.in)
			assert.Equal(t, tt.want, got)
			assert.True(t, got.IsCanonical())
			assert.Equal(t, tt.in, Restore(got, tr))
		})
	}
}

func TestCanonicalizeIdempotent(t *testing.T) {
	err := Walk(3, 4, func(p Position) error {
		got, _ := Canonicalize(p)
		assert.Equal(t, p, got)
		return nil
	})
	require.NoError(t, err)
}

func TestIsCanonical(t *testing.T) {
	assert.True(t, Position{2, 2, 0}.IsCanonical())
	assert.False(t, Position{1, 2}.IsCanonical())
	assert.False(t, Position{1, -1}.IsCanonical())
	assert.False(t, Position{}.IsCanonical())
}

func TestParsePosition(t *testing.T) {
	p, err := ParsePosition("(3, -1,0)")
	require.NoError(t, err)
	assert.Equal(t, Position{3, -1, 0}, p)
	assert.Equal(t, "(3,-1,0)", p.String())

	_, err = ParsePosition("1,x")
	assert.Error(t, err)
	_, err = ParsePosition("  ")
	assert.Error(t, err)
}

func TestOffset2DMatchesTriangularLayout(t *testing.T) {
	for x := 0; x < 20; x++ {
		for y := 0; y <= x; y++ {
			assert.Equal(t, int64(x*(x+1)/2+y), Offset(Position{x, y}), "(%d,%d)", x, y)
		}
	}
}

func TestOffsetIsDenseAndOrdered(t *testing.T) {
	for d := 1; d <= 5; d++ {
		var next int64
		err := Walk(d, 6, func(p Position) error {
			assert.Equal(t, next, Offset(p), "dimension %d position %v", d, p)
			next++
			return nil
		})
		require.NoError(t, err)
		assert.Equal(t, Count(d, 6), next)
	}
}

func TestOffset3D(t *testing.T) {
	assert.Equal(t, int64(0), Offset(Position{0, 0, 0}))
	assert.Equal(t, int64(1), Offset(Position{1, 0, 0}))
	assert.Equal(t, int64(2), Offset(Position{1, 1, 0}))
	assert.Equal(t, int64(3), Offset(Position{1, 1, 1}))
	assert.Equal(t, int64(4), Offset(Position{2, 0, 0}))
	assert.Equal(t, int64(2), SliceOffset(Position{2, 1, 1}))
}

func TestOffsetPanicsOnNonCanonical(t *testing.T) {
	assert.Panics(t, func() { Offset(Position{0, 1}) })
	assert.Panics(t, func() { Neighbors(Position{-1}) })
}

func TestCounts(t *testing.T) {
	assert.Equal(t, int64(0), Count(2, 0))
	assert.Equal(t, int64(6), Count(2, 3))
	assert.Equal(t, int64(10), Count(3, 3))
	assert.Equal(t, int64(5), Count(1, 5))
	assert.Equal(t, int64(1), SliceCount(1, 9))
	assert.Equal(t, int64(4), SliceCount(2, 3))
	assert.Equal(t, int64(10), SliceCount(3, 3))
	for d := 1; d <= 4; d++ {
		for w := 0; w < 8; w++ {
			assert.Equal(t, Count(d, w+1)-Count(d, w), SliceCount(d, w))
		}
	}
}

func TestWalkSliceStopsOnError(t *testing.T) {
	stop := errors.New("stop")
	calls := 0
	err := WalkSlice(2, 5, func(Position) error {
		calls++
		if calls == 2 {
			return stop
		}
		return nil
	})
	assert.ErrorIs(t, err, stop)
	assert.Equal(t, 2, calls)
}

func TestNeighbors(t *testing.T) {
	tests := []struct {
		name string
		cell Position
		want []Neighbor
	}{
		{
			name: "1d origin",
			cell: Position{0},
			want: []Neighbor{{Pos: Position{1}, Symmetry: 2, Share: 1}},
		},
		{
			name: "1d interior",
			cell: Position{1},
			want: []Neighbor{
				{Pos: Position{0}, Symmetry: 1, Share: 2},
				{Pos: Position{2}, Symmetry: 1, Share: 1},
			},
		},
		{
			name: "2d origin",
			cell: Position{0, 0},
			want: []Neighbor{{Pos: Position{1, 0}, Symmetry: 4, Share: 1}},
		},
		{
			name: "2d axis",
			cell: Position{1, 0},
			want: []Neighbor{
				{Pos: Position{0, 0}, Symmetry: 1, Share: 4},
				{Pos: Position{2, 0}, Symmetry: 1, Share: 1},
				{Pos: Position{1, 1}, Symmetry: 2, Share: 2},
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Neighbors(tt.cell))
		})
	}
}

func TestNeighborSymmetryConservesGrains(t *testing.T) {
	// Every lattice edge between two classes is counted once from each side,
	// weighted by the class sizes.
	for d := 1; d <= 4; d++ {
		err := Walk(d, 5, func(p Position) error {
			c := p.Clone()
			total := 0
			for _, n := range Neighbors(c) {
				total += n.Symmetry
				assert.True(t, n.Pos.IsCanonical())
				assert.Equal(t, OrbitSize(c)*int64(n.Symmetry), OrbitSize(n.Pos)*int64(n.Share),
					"cell %v neighbour %v", c, n.Pos)
			}
			assert.Equal(t, 2*d, total)
			return nil
		})
		require.NoError(t, err)
	}
}

func TestOrbit(t *testing.T) {
	assert.Len(t, Orbit(Position{0, 0}), 1)
	assert.ElementsMatch(t, []Position{{1, 0}, {-1, 0}, {0, 1}, {0, -1}}, Orbit(Position{1, 0}))

	for _, c := range []Position{{2, 1, 0}, {1, 1, 0}, {3, 3, 3}, {4, 2, 2, 0}} {
		orbit := Orbit(c)
		assert.Equal(t, OrbitSize(c), int64(len(orbit)), "%v", c)
		seen := map[string]bool{}
		for _, p := range orbit {
			got, _ := Canonicalize(p)
			assert.Equal(t, c, got)
			assert.False(t, seen[p.String()], "duplicate %v", p)
			seen[p.String()] = true
		}
	}
}

func TestOrbitSize(t *testing.T) {
	assert.Equal(t, int64(1), OrbitSize(Position{0, 0, 0}))
	assert.Equal(t, int64(6), OrbitSize(Position{1, 0, 0}))
	assert.Equal(t, int64(12), OrbitSize(Position{1, 1, 0}))
	assert.Equal(t, int64(24), OrbitSize(Position{2, 1, 0}))
	assert.Equal(t, int64(8), OrbitSize(Position{1, 1, 1}))
	assert.Equal(t, int64(2), OrbitSize(Position{5}))
}
