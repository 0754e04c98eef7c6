package engine

import (
	"context"
	"errors"
	"math/big"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/aether/internal/grid"
	"github.com/roach88/aether/internal/lattice"
	"github.com/roach88/aether/internal/num"
	"github.com/roach88/aether/internal/topple"
)

func values64(t *testing.T, m *Automaton[int64]) map[string]int64 {
	t.Helper()
	out := map[string]int64{}
	err := grid.ForEach(m.Current(), func(p lattice.Position, v int64) error {
		if v != 0 {
			out[p.String()] = v
		}
		return nil
	})
	require.NoError(t, err)
	return out
}

func TestAdvance1DSource(t *testing.T) {
	m, err := NewMemory[int64](num.Int64{}, 1, 9)
	require.NoError(t, err)
	defer m.Close()

	assert.Equal(t, State{Dimension: 1, EvenTurn: true}, m.State())

	changed, err := m.Advance(context.Background())
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, State{Dimension: 1, Step: 1, Bound: 1, EvenTurn: false, Changed: true}, m.State())
	assert.Equal(t, map[string]int64{"(0)": 3, "(1)": 3}, values64(t, m))

	changed, err = m.Advance(context.Background())
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, 2, m.State().Bound)
	assert.Equal(t, map[string]int64{"(0)": 3, "(1)": 2, "(2)": 1}, values64(t, m))

	v, err := m.ValueAt(lattice.Position{-2})
	require.NoError(t, err)
	assert.Equal(t, int64(1), v)
}

func TestAdvanceQuiescenceIsIdempotent(t *testing.T) {
	m, err := NewMemory[int64](num.Int64{}, 1, 9)
	require.NoError(t, err)
	defer m.Close()

	ctx := context.Background()
	for i := 0; i < 2; i++ {
		_, err := m.Advance(ctx)
		require.NoError(t, err)
	}
	settled := values64(t, m)
	for i := 0; i < 4; i++ {
		changed, err := m.Advance(ctx)
		require.NoError(t, err)
		assert.False(t, changed)
		assert.Equal(t, 2, m.State().Bound)
		assert.Equal(t, settled, values64(t, m))
	}
	assert.Equal(t, int64(6), m.State().Step)
}

func TestAdvance2D(t *testing.T) {
	tests := []struct {
		name    string
		initial int64
		steps   int
		bound   int
		want    map[string]int64
	}{
		{
			name:    "positive source",
			initial: 100,
			steps:   4,
			bound:   3,
			want: map[string]int64{
				"(0,0)": 8, "(1,0)": 4, "(1,1)": 6, "(2,0)": 4,
				"(2,1)": 2, "(2,2)": 2, "(3,0)": 1, "(3,1)": 1,
			},
		},
		{
			name:    "negative source",
			initial: -77,
			steps:   3,
			bound:   3,
			want: map[string]int64{
				"(0,0)": 19, "(1,0)": -20, "(1,1)": 28, "(2,0)": 13, "(2,1)": -18, "(3,0)": -9,
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := NewMemory[int64](num.Int64{}, 2, tt.initial)
			require.NoError(t, err)
			defer m.Close()
			for i := 0; i < tt.steps; i++ {
				_, err := m.Advance(context.Background())
				require.NoError(t, err)
			}
			assert.Equal(t, tt.bound, m.State().Bound)
			assert.Equal(t, tt.want, values64(t, m))
		})
	}
}

func TestAdvance3DFirstSteps(t *testing.T) {
	m, err := NewMemory[*big.Int](num.Big{}, 3, big.NewInt(12345))
	require.NoError(t, err)
	defer m.Close()

	for i := 0; i < 2; i++ {
		_, err := m.Advance(context.Background())
		require.NoError(t, err)
	}
	for pos, want := range map[string]int64{"0,0,0": 1767, "1,0,0": 298, "1,1,0": 586, "2,0,0": 293, "0,-2,0": 293} {
		p, err := lattice.ParsePosition(pos)
		require.NoError(t, err)
		v, err := m.ValueAt(p)
		require.NoError(t, err)
		assert.Equal(t, want, v.Int64(), pos)
	}
}

// naiveStep advances a full, unfolded lattice stored in a map.
func naiveStep(grid map[[2]int]int64) map[[2]int]int64 {
	cells := map[[2]int]bool{}
	for p := range grid {
		cells[p] = true
		for _, q := range adjacent(p) {
			cells[q] = true
		}
	}
	next := map[[2]int]int64{}
	for p := range cells {
		adj := adjacent(p)
		nbs := make([]topple.Neighbor[int64], len(adj))
		for i, q := range adj {
			nbs[i] = topple.Neighbor[int64]{Value: grid[q], Symmetry: 1, Share: 1, Target: i}
		}
		res := topple.Topple[int64](num.Int64{}, grid[p], nbs)
		next[p] += res.Remainder
		for _, tr := range res.Outgoing {
			next[adj[tr.Target]] += tr.Amount
		}
	}
	for p, v := range next {
		if v == 0 {
			delete(next, p)
		}
	}
	return next
}

func adjacent(p [2]int) [][2]int {
	return [][2]int{{p[0] - 1, p[1]}, {p[0] + 1, p[1]}, {p[0], p[1] - 1}, {p[0], p[1] + 1}}
}

func TestSymmetryReducedMatchesFullLattice(t *testing.T) {
	for _, initial := range []int64{100, -77, 12345, 1} {
		m, err := NewMemory[int64](num.Int64{}, 2, initial)
		require.NoError(t, err)

		full := map[[2]int]int64{{0, 0}: initial}
		for step := 1; step <= 8; step++ {
			_, err := m.Advance(context.Background())
			require.NoError(t, err)
			full = naiveStep(full)

			bound := m.State().Bound
			for x := -bound - 2; x <= bound+2; x++ {
				for y := -bound - 2; y <= bound+2; y++ {
					got, err := m.ValueAt(lattice.Position{x, y})
					require.NoError(t, err)
					require.Equal(t, full[[2]int{x, y}], got, "initial %d step %d at (%d,%d)", initial, step, x, y)
				}
			}
			for p := range full {
				assert.LessOrEqual(t, max(abs(p[0]), abs(p[1])), bound, "value beyond bound")
			}
		}
		m.Close()
	}
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}

func TestConservation(t *testing.T) {
	for d := 1; d <= 4; d++ {
		for _, initial := range []int64{1, 97, -1000} {
			m, err := NewMemory[int64](num.Int64{}, d, initial)
			require.NoError(t, err)
			for i := 0; i < 6; i++ {
				_, err := m.Advance(context.Background())
				require.NoError(t, err)
				total, err := m.Total()
				require.NoError(t, err)
				require.Equal(t, initial, total, "dimension %d initial %d step %d", d, initial, i+1)
			}
			m.Close()
		}
	}
}

func TestNonNegativityPropagates(t *testing.T) {
	m, err := NewMemory[int64](num.Int64{}, 3, 5000)
	require.NoError(t, err)
	defer m.Close()
	for i := 0; i < 8; i++ {
		_, err := m.Advance(context.Background())
		require.NoError(t, err)
		require.NoError(t, grid.ForEach(m.Current(), func(p lattice.Position, v int64) error {
			assert.GreaterOrEqual(t, v, int64(0), "%v at step %d", p, i+1)
			return nil
		}))
	}
}

func TestVariantsAgree(t *testing.T) {
	ctx := context.Background()
	small, err := NewMemory[int64](num.Int64{}, 2, 4321)
	require.NoError(t, err)
	defer small.Close()
	wide, err := NewMemory[*big.Int](num.Big{}, 2, big.NewInt(4321), WithKeepPrevious())
	require.NoError(t, err)
	defer wide.Close()
	file, err := NewFileBacked(2, 4321, WithWorkDir(t.TempDir()))
	require.NoError(t, err)
	defer file.Close()

	for i := 0; i < 10; i++ {
		c1, err := small.Advance(ctx)
		require.NoError(t, err)
		c2, err := wide.Advance(ctx)
		require.NoError(t, err)
		c3, err := file.Advance(ctx)
		require.NoError(t, err)
		assert.Equal(t, c1, c2)
		assert.Equal(t, c1, c3)
		assert.Equal(t, small.State(), wide.State())
		assert.Equal(t, small.State(), file.State())
	}
	err = grid.ForEach(small.Current(), func(p lattice.Position, v int64) error {
		w, err := wide.ValueAt(p)
		require.NoError(t, err)
		f, err := file.ValueAt(p)
		require.NoError(t, err)
		assert.Equal(t, v, w.Int64(), "%v", p)
		assert.Equal(t, v, f, "%v", p)
		return nil
	})
	require.NoError(t, err)
}

func TestInitialRange(t *testing.T) {
	_, err := NewMemory[int64](num.Int64{}, 2, num.MinInt64Initial(2)-1)
	assert.True(t, IsOutOfRange(err))

	m, err := NewMemory[int64](num.Int64{}, 2, num.MinInt64Initial(2))
	require.NoError(t, err)
	m.Close()

	b, err := NewMemory[*big.Int](num.Big{}, 2, new(big.Int).Lsh(big.NewInt(-1), 100))
	require.NoError(t, err)
	b.Close()

	_, err = NewFileBacked(3, num.MinInt64Initial(3)-1, WithWorkDir(t.TempDir()))
	assert.True(t, IsOutOfRange(err))

	_, err = NewMemory[int64](num.Int64{}, 0, 1)
	var ee *Error
	require.ErrorAs(t, err, &ee)
	assert.Equal(t, ErrCodeDimension, ee.Code)
}

func TestValueAtValidatesDimension(t *testing.T) {
	m, err := NewMemory[int64](num.Int64{}, 2, 9)
	require.NoError(t, err)
	defer m.Close()

	_, err = m.ValueAt(lattice.Position{1, 2, 3})
	assert.Error(t, err)

	v, err := m.ValueAt(lattice.Position{100, -100})
	require.NoError(t, err)
	assert.Zero(t, v)
}

func TestClosedAutomaton(t *testing.T) {
	m, err := NewMemory[int64](num.Int64{}, 1, 9)
	require.NoError(t, err)
	require.NoError(t, m.Close())
	require.NoError(t, m.Close())

	_, err = m.Advance(context.Background())
	assert.True(t, IsClosed(err))
	_, err = m.ValueAt(lattice.Position{0})
	assert.True(t, IsClosed(err))
}

func TestResumeRejectsUnusableBackend(t *testing.T) {
	var e *Error

	b := grid.NewMemoryBackend[int64](num.Int64{}, 2)
	_, err := Resume[int64](num.Int64{}, b, 5, InitialState(3, true))
	require.True(t, errors.As(err, &e))
	assert.Equal(t, ErrCodeDimension, e.Code)

	g, _ := b.Current().(*grid.MemoryGeneration[int64])
	assert.Nil(t, g, "backend should be closed")
}

func TestResumeContinuesRun(t *testing.T) {
	ctx := context.Background()
	ref, err := NewMemory[int64](num.Int64{}, 2, 500)
	require.NoError(t, err)
	defer ref.Close()
	src, err := NewMemory[int64](num.Int64{}, 2, 500)
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		_, err = ref.Advance(ctx)
		require.NoError(t, err)
		_, err = src.Advance(ctx)
		require.NoError(t, err)
	}
	resumed, err := Resume[int64](num.Int64{}, src.Backend(), 500, src.State())
	require.NoError(t, err)
	defer resumed.Close()

	for i := 0; i < 3; i++ {
		_, err = ref.Advance(ctx)
		require.NoError(t, err)
		_, err = resumed.Advance(ctx)
		require.NoError(t, err)
	}
	assert.Equal(t, ref.State(), resumed.State())
	assert.Equal(t, values64(t, ref), values64(t, resumed))

	_, err = Resume[int64](num.Int64{}, grid.NewMemoryBackend[int64](num.Int64{}, 3), 500, src.State())
	assert.Error(t, err)
}

func TestEvenTurnAt(t *testing.T) {
	assert.True(t, EvenTurnAt(true, 0))
	assert.False(t, EvenTurnAt(true, 1))
	assert.False(t, EvenTurnAt(false, 0))
	assert.True(t, EvenTurnAt(false, 3))

	m, err := NewMemory[int64](num.Int64{}, 1, -5)
	require.NoError(t, err)
	defer m.Close()
	for i := 0; i < 3; i++ {
		_, err := m.Advance(context.Background())
		require.NoError(t, err)
		assert.Equal(t, EvenTurnAt(false, m.State().Step), m.State().EvenTurn)
	}
}

func TestStepHonoursCancelledContext(t *testing.T) {
	m, err := NewMemory[int64](num.Int64{}, 2, 100)
	require.NoError(t, err)
	defer m.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = m.Advance(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, int64(0), m.State().Step)
}

// cancelAtSlice cancels the step's context when the sweep reaches a slice.
type cancelAtSlice struct {
	nopObserver
	slice  int
	cancel context.CancelFunc
}

func (c *cancelAtSlice) Cell(p lattice.Position, _ bool) {
	if p[0] == c.slice {
		c.cancel()
	}
}

func TestFileStepCancelledMidSweep(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	m, err := NewFileBacked(2, 1000, WithWorkDir(t.TempDir()))
	require.NoError(t, err)
	defer m.Close()
	for i := 0; i < 3; i++ {
		_, err := m.Advance(ctx)
		require.NoError(t, err)
	}
	before := values64(t, m)
	state := m.State()

	fb := m.Backend().(*grid.FileBackend)
	_, err = Step[int64](ctx, num.Int64{}, fb, state, &cancelAtSlice{slice: 1, cancel: cancel})
	assert.ErrorIs(t, err, context.Canceled)

	assert.Equal(t, before, values64(t, m))
	entries, err := os.ReadDir(fb.Dir())
	require.NoError(t, err)
	require.Len(t, entries, 1, "partial generation file must be removed")
	assert.Equal(t, grid.StepFileName(state.Step), entries[0].Name())
}

func TestCancelledStepKeepsCommittedCompliance(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	tracker := NewComplianceTracker(2)
	canceller := &cancelAtSlice{slice: -1, cancel: cancel}
	m, err := NewFileBacked(2, 1000, WithWorkDir(t.TempDir()),
		WithObserver(tracker), WithObserver(canceller))
	require.NoError(t, err)
	defer m.Close()
	for i := 0; i < 3; i++ {
		_, err := m.Advance(ctx)
		require.NoError(t, err)
	}
	flags := tracker.Grid()
	allCompliant := tracker.AllCompliant()
	require.Equal(t, int64(3), tracker.Step())

	canceller.slice = 1
	_, err = m.Advance(ctx)
	require.ErrorIs(t, err, context.Canceled)

	assert.Equal(t, int64(3), m.State().Step)
	assert.Equal(t, int64(3), tracker.Step())
	assert.Equal(t, flags, tracker.Grid())
	assert.Equal(t, allCompliant, tracker.AllCompliant())

	_, err = m.Advance(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(4), tracker.Step())
}

// failingBackend wraps a memory backend and fails writes to one slice.
type failingBackend struct {
	*grid.MemoryBackend[int64]
	failSlice int
	discarded bool
	retired   []int
}

type failingGeneration struct {
	grid.Generation[int64]
	b *failingBackend
}

func (f *failingBackend) Current() grid.Generation[int64] {
	return failingGeneration{f.MemoryBackend.Current(), f}
}

func (f *failingBackend) Begin(step int64, extent int) (grid.Generation[int64], error) {
	g, err := f.MemoryBackend.Begin(step, extent)
	if err != nil {
		return nil, err
	}
	return failingGeneration{g, f}, nil
}

func (f *failingBackend) Discard() error {
	f.discarded = true
	return f.MemoryBackend.Discard()
}

func (g failingGeneration) Add(p lattice.Position, v int64) error {
	if p[0] == g.b.failSlice {
		return errors.New("disk full")
	}
	return g.Generation.Add(p, v)
}

func (g failingGeneration) Retire(w int) error {
	g.b.retired = append(g.b.retired, w)
	return g.Generation.Retire(w)
}

func TestStepStorageFailureDiscardsNextGeneration(t *testing.T) {
	b := &failingBackend{MemoryBackend: grid.NewMemoryBackend[int64](num.Int64{}, 1, grid.KeepPrevious()), failSlice: -1}
	m, err := Resume[int64](num.Int64{}, b, 0, InitialState(1, true))
	require.NoError(t, err)
	seeded, err := b.Begin(0, 1)
	require.NoError(t, err)
	require.NoError(t, seeded.Add(lattice.Position{0}, 90))
	require.NoError(t, b.Commit())

	_, err = m.Advance(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []int{0}, b.retired, "slice w-1 retired after slice w")

	b.failSlice = 2
	_, err = m.Advance(context.Background())
	assert.True(t, IsStorageError(err))
	assert.True(t, b.discarded)
	assert.Equal(t, int64(1), m.State().Step)
}

func TestComplianceTracker1D(t *testing.T) {
	tracker := NewComplianceTracker(1)
	assert.True(t, tracker.AllCompliant())

	m, err := NewMemory[int64](num.Int64{}, 1, 9, WithObserver(tracker))
	require.NoError(t, err)
	defer m.Close()

	ctx := context.Background()
	for i := 0; i < 2; i++ {
		_, err := m.Advance(ctx)
		require.NoError(t, err)
		assert.True(t, tracker.AllCompliant(), "step %d", i+1)
	}

	// the grid is stable from step 3 on, so the origin misses its turn
	_, err = m.Advance(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), tracker.Step())
	assert.False(t, tracker.AllCompliant())
	assert.False(t, tracker.Compliant(lattice.Position{0}))
	assert.True(t, tracker.Compliant(lattice.Position{-1}))
	assert.False(t, tracker.Compliant(lattice.Position{50}), "zero cell missing its turn")
	assert.True(t, tracker.Compliant(lattice.Position{51}))

	restored := NewComplianceTracker(1)
	require.NoError(t, restored.Restore(m.State(), tracker.Grid()))
	assert.Equal(t, tracker.Grid(), restored.Grid())
	assert.Equal(t, int64(3), restored.Step())
	assert.False(t, restored.Compliant(lattice.Position{0}))
	assert.False(t, restored.AllCompliant())

	assert.Error(t, NewComplianceTracker(2).Restore(m.State(), make([]bool, 4)))
}
