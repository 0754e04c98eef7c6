package cli

import (
	"context"
	"fmt"
	"math/big"

	"github.com/roach88/aether/internal/config"
	"github.com/roach88/aether/internal/engine"
	"github.com/roach88/aether/internal/grid"
	"github.com/roach88/aether/internal/lattice"
	"github.com/roach88/aether/internal/num"
	"github.com/roach88/aether/internal/snapshot"
)

// runner is an automaton with its value type erased, so commands can drive
// every variant through one code path.
type runner interface {
	Advance(ctx context.Context) (bool, error)
	State() engine.State
	Variant() config.Variant
	Initial() string
	Value(p lattice.Position) (string, error)
	Total() (string, error)
	Save(tracker *engine.ComplianceTracker) (snapshot.Entries, error)
	SaveDir(dir string, tracker *engine.ComplianceTracker) (snapshot.Properties, error)
	Close() error
}

type erased[T any] struct {
	m *engine.Automaton[T]
}

func wrap[T any](m *engine.Automaton[T], err error) (runner, error) {
	if err != nil {
		return nil, err
	}
	return erased[T]{m: m}, nil
}

func (e erased[T]) Advance(ctx context.Context) (bool, error) { return e.m.Advance(ctx) }
func (e erased[T]) State() engine.State                       { return e.m.State() }
func (e erased[T]) Initial() string                           { return e.m.Arith().String(e.m.Initial()) }
func (e erased[T]) Close() error                              { return e.m.Close() }

func (e erased[T]) Variant() config.Variant {
	if _, ok := any(e.m.Backend()).(*grid.FileBackend); ok {
		return config.VariantFileInt64
	}
	if e.m.Arith().Kind() == num.KindBig {
		return config.VariantBig
	}
	return config.VariantInt64
}

func (e erased[T]) Value(p lattice.Position) (string, error) {
	v, err := e.m.ValueAt(p)
	if err != nil {
		return "", err
	}
	return e.m.Arith().String(v), nil
}

func (e erased[T]) Total() (string, error) {
	v, err := e.m.Total()
	if err != nil {
		return "", err
	}
	return e.m.Arith().String(v), nil
}

func (e erased[T]) Save(tracker *engine.ComplianceTracker) (snapshot.Entries, error) {
	return snapshot.Save(e.m, tracker)
}

func (e erased[T]) SaveDir(dir string, tracker *engine.ComplianceTracker) (snapshot.Properties, error) {
	m, ok := any(e.m).(*engine.Automaton[int64])
	if !ok {
		return snapshot.Properties{}, fmt.Errorf("directory snapshots need an int64 variant, not %s", e.Variant())
	}
	return snapshot.SaveDir(m, dir, tracker)
}

// newAutomaton starts a run from a validated configuration.
func newAutomaton(cfg config.Run, opts []engine.Option) (runner, error) {
	if cfg.Variant == config.VariantBig {
		m, err := engine.NewMemory[*big.Int](num.Big{}, cfg.Dimension, cfg.Initial, opts...)
		return wrap(m, err)
	}
	if !cfg.Initial.IsInt64() {
		return nil, fmt.Errorf("initial value %s does not fit the %s variant", cfg.Initial, cfg.Variant)
	}
	initial := cfg.Initial.Int64()
	if cfg.Variant == config.VariantFileInt64 {
		m, err := engine.NewFileBacked(cfg.Dimension, initial, opts...)
		return wrap(m, err)
	}
	m, err := engine.NewMemory[int64](num.Int64{}, cfg.Dimension, initial, opts...)
	return wrap(m, err)
}

// loadEntries restores whichever variant wrote the entries.
func loadEntries(ctx context.Context, e snapshot.Entries, tracker *engine.ComplianceTracker, opts []engine.Option) (runner, error) {
	gridType, err := e.GridType()
	if err != nil {
		return nil, err
	}
	switch gridType {
	case snapshot.GridSlicesBigInt:
		m, err := snapshot.Load[*big.Int](ctx, num.Big{}, e, tracker, opts...)
		return wrap(m, err)
	case snapshot.GridSlicesInt64:
		m, err := snapshot.Load[int64](ctx, num.Int64{}, e, tracker, opts...)
		return wrap(m, err)
	case snapshot.GridOffsetFile:
		m, err := snapshot.LoadFileBacked(ctx, e, tracker, opts...)
		return wrap(m, err)
	}
	return nil, fmt.Errorf("unknown grid implementation %q", gridType)
}

func loadDir(ctx context.Context, dir string, tracker *engine.ComplianceTracker, opts []engine.Option) (runner, error) {
	m, err := snapshot.LoadDir(ctx, dir, tracker, opts...)
	return wrap(m, err)
}
