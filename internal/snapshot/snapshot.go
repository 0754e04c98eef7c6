package snapshot

import (
	"bytes"
	"context"
	"fmt"
	"math/big"

	"github.com/roach88/aether/internal/engine"
	"github.com/roach88/aether/internal/grid"
	"github.com/roach88/aether/internal/lattice"
	"github.com/roach88/aether/internal/num"
	"github.com/roach88/aether/internal/record"
)

// Save captures the automaton's committed state. When tracker has observed
// the automaton's last step its flags are included.
//
// The grid is held in memory as a single entry. File-backed runs whose grid
// does not fit in memory should use SaveDir, which streams the generation
// file.
func Save[T any](m *engine.Automaton[T], tracker *engine.ComplianceTracker) (Entries, error) {
	a := m.Arith()
	s := m.State()

	gridType := MemoryGridType(a.Kind())
	fb, fileBacked := any(m.Backend()).(*grid.FileBackend)
	if fileBacked {
		gridType = GridOffsetFile
	}
	initial, ok := new(big.Int).SetString(a.String(m.Initial()), 10)
	if !ok {
		return nil, fmt.Errorf("snapshot: initial value %s is not an integer", a.String(m.Initial()))
	}

	e := Entries{}
	scalars := []struct {
		tag string
		v   any
	}{
		{TagModel, ModelAether},
		{TagInitialConfiguration, initial},
		{TagInitialConfigurationType, SingleSourceAtOrigin},
		{TagInitialConfigurationImplementationType, string(a.Kind())},
		{TagGridType, InfiniteRegularGrid},
		{TagGridDimension, s.Dimension},
		{TagGridImplementationType, gridType},
		{TagCoordinateBounds, s.Bound},
		{TagCoordinateBoundsImplementationType, MaxCoordinateInteger},
		{TagStep, s.Step},
		{TagChanged, s.Changed},
	}
	for _, sc := range scalars {
		if err := e.put(sc.tag, sc.v); err != nil {
			return nil, err
		}
	}

	var (
		blob []byte
		err  error
	)
	if fileBacked && fb.CurrentFile() != nil {
		blob, err = copyGeneration(fb.CurrentFile(), s)
	} else {
		blob, err = encodeGrid(a, m.Current(), s)
	}
	if err != nil {
		return nil, fmt.Errorf("snapshot: read grid: %w", err)
	}
	e[TagGrid] = blob
	if err := e.put(TagGridDigest, record.Digest(record.DomainGrid, blob)); err != nil {
		return nil, err
	}

	if tracker != nil && s.Step > 0 && tracker.Step() == s.Step {
		e[TagCompliance] = appendBits(nil, tracker.Grid())
		if err := e.put(TagComplianceImplementationType, OffsetBitset); err != nil {
			return nil, err
		}
	}
	return e, nil
}

func encodeGrid[T any](a num.Arith[T], g grid.Generation[T], s engine.State) ([]byte, error) {
	var blob []byte
	err := lattice.Walk(s.Dimension, s.Extent(), func(p lattice.Position) error {
		v, err := g.Value(p)
		if err != nil {
			return err
		}
		blob = a.AppendBinary(blob, v)
		return nil
	})
	return blob, err
}

// copyGeneration reads a generation file's records in one pass. Its records
// already use the int64 grid encoding; only the slices within the bound are
// kept.
func copyGeneration(g *grid.FileGeneration, s engine.State) ([]byte, error) {
	size := lattice.Count(s.Dimension, s.Extent()) * grid.RecordSize
	buf := bytes.NewBuffer(make([]byte, 0, lattice.Count(g.Dimension(), g.Extent())*grid.RecordSize))
	if _, err := g.WriteTo(buf); err != nil {
		return nil, err
	}
	if int64(buf.Len()) < size {
		return nil, fmt.Errorf("generation file holds %d bytes, need %d", buf.Len(), size)
	}
	return buf.Bytes()[:size], nil
}

// header is the validated scalar part of a snapshot.
type header struct {
	initial    string
	state      engine.State
	hasChanged bool
}

// readHeader checks the identity tags against the variant identified by
// kind and gridType and decodes the scalars.
func readHeader(e Entries, kind num.Kind, gridType string) (header, error) {
	var h header
	checks := []struct{ tag, want string }{
		{TagModel, ModelAether},
		{TagInitialConfigurationType, SingleSourceAtOrigin},
		{TagInitialConfigurationImplementationType, string(kind)},
		{TagGridType, InfiniteRegularGrid},
		{TagGridImplementationType, gridType},
		{TagCoordinateBoundsImplementationType, MaxCoordinateInteger},
	}
	for _, c := range checks {
		if err := e.expect(c.tag, c.want); err != nil {
			return h, err
		}
	}

	dim, err := e.int64(TagGridDimension)
	if err != nil {
		return h, err
	}
	if dim < 1 {
		return h, corrupt(TagGridDimension, fmt.Errorf("dimension %d", dim))
	}
	step, err := e.int64(TagStep)
	if err != nil {
		return h, err
	}
	if step < 0 {
		return h, corrupt(TagStep, fmt.Errorf("negative step %d", step))
	}
	bound, err := e.int64(TagCoordinateBounds)
	if err != nil {
		return h, err
	}
	if bound < 0 {
		return h, corrupt(TagCoordinateBounds, fmt.Errorf("negative bound %d", bound))
	}

	var initial big.Int
	raw, err := e.raw(TagInitialConfiguration)
	if err != nil {
		return h, err
	}
	if _, ok := initial.SetString(string(raw), 10); !ok {
		return h, corrupt(TagInitialConfiguration, fmt.Errorf("not an integer: %q", raw))
	}
	changed, present, err := e.optionalBool(TagChanged)
	if err != nil {
		return h, err
	}

	h.initial = initial.String()
	h.hasChanged = present
	h.state = engine.State{
		Dimension: int(dim),
		Step:      step,
		Bound:     int(bound),
		EvenTurn:  engine.EvenTurnAt(initial.Sign() >= 0, step),
		Changed:   changed || !present,
	}
	return h, nil
}

// decodeGrid verifies the grid digest and returns a fill function adding
// the saved values in offset order.
func decodeGrid[T any](a num.Arith[T], e Entries, s engine.State) (func(grid.Generation[T]) error, error) {
	blob, err := e.raw(TagGrid)
	if err != nil {
		return nil, err
	}
	var digest string
	if err := e.decode(TagGridDigest, &digest); err != nil {
		return nil, err
	}
	if got := record.Digest(record.DomainGrid, blob); got != digest {
		return nil, &Error{Code: ErrCodeCorrupt, Tag: TagGrid, Expected: digest, Actual: got}
	}

	fill := func(g grid.Generation[T]) error {
		rest := blob
		err := lattice.Walk(s.Dimension, s.Extent(), func(p lattice.Position) error {
			v, tail, err := a.DecodeBinary(rest)
			if err != nil {
				return corrupt(TagGrid, fmt.Errorf("value at %v: %w", p, err))
			}
			rest = tail
			if a.Sign(v) == 0 {
				return nil
			}
			return g.Add(p, v)
		})
		if err != nil {
			return err
		}
		if len(rest) != 0 {
			return corrupt(TagGrid, fmt.Errorf("%d trailing bytes", len(rest)))
		}
		return nil
	}
	return fill, nil
}

// Load restores an in-memory automaton from entries written by Save for
// the same arithmetic. If tracker is non-nil it observes the restored
// automaton and receives the saved compliance flags.
//
// Snapshots lacking the changed flag, or the compliance flags when a
// tracker is supplied, are restored and then advanced one step to
// recompute them.
func Load[T any](ctx context.Context, a num.Arith[T], e Entries, tracker *engine.ComplianceTracker, opts ...engine.Option) (*engine.Automaton[T], error) {
	h, err := readHeader(e, a.Kind(), MemoryGridType(a.Kind()))
	if err != nil {
		return nil, err
	}
	initial, err := a.Parse(h.initial)
	if err != nil {
		return nil, corrupt(TagInitialConfiguration, err)
	}
	fill, err := decodeGrid(a, e, h.state)
	if err != nil {
		return nil, err
	}
	if tracker != nil {
		opts = append(opts, engine.WithObserver(tracker))
	}
	m, err := engine.RestoreMemory(a, initial, h.state, fill, opts...)
	if err != nil {
		return nil, err
	}
	return finish(ctx, m, e, h, tracker)
}

// LoadFileBacked restores a file-backed automaton from entries written by
// Save for a file-backed automaton, rewriting the grid into a fresh work
// directory.
func LoadFileBacked(ctx context.Context, e Entries, tracker *engine.ComplianceTracker, opts ...engine.Option) (*engine.Automaton[int64], error) {
	a := num.Int64{}
	h, err := readHeader(e, a.Kind(), GridOffsetFile)
	if err != nil {
		return nil, err
	}
	initial, err := a.Parse(h.initial)
	if err != nil {
		return nil, corrupt(TagInitialConfiguration, err)
	}
	fill, err := decodeGrid[int64](a, e, h.state)
	if err != nil {
		return nil, err
	}
	if tracker != nil {
		opts = append(opts, engine.WithObserver(tracker))
	}
	m, err := engine.RestoreFileBacked(initial, h.state, fill, opts...)
	if err != nil {
		return nil, err
	}
	return finish(ctx, m, e, h, tracker)
}

// finish restores the compliance flags, or advances one step when an
// optional entry has to be recomputed.
func finish[T any](ctx context.Context, m *engine.Automaton[T], e Entries, h header, tracker *engine.ComplianceTracker) (*engine.Automaton[T], error) {
	var flags []bool
	if raw, ok := e[TagCompliance]; ok && tracker != nil {
		if err := e.expect(TagComplianceImplementationType, OffsetBitset); err != nil {
			m.Close()
			return nil, err
		}
		var err error
		if flags, err = decodeBits(raw); err != nil {
			m.Close()
			return nil, corrupt(TagCompliance, err)
		}
	}
	return settle(ctx, m, h, tracker, flags)
}

func settle[T any](ctx context.Context, m *engine.Automaton[T], h header, tracker *engine.ComplianceTracker, flags []bool) (*engine.Automaton[T], error) {
	missingFlags := tracker != nil && flags == nil && h.state.Step > 0
	if h.hasChanged && !missingFlags {
		if flags != nil {
			if err := tracker.Restore(h.state, flags); err != nil {
				m.Close()
				return nil, corrupt(TagCompliance, err)
			}
		}
		return m, nil
	}
	m.Logger().Warn("snapshot lacks optional entries, recomputing one step",
		"step", h.state.Step,
		"changed_present", h.hasChanged,
		"compliance_present", flags != nil)
	if _, err := m.Advance(ctx); err != nil {
		m.Close()
		return nil, fmt.Errorf("snapshot: recompute step %d: %w", h.state.Step+1, err)
	}
	return m, nil
}
