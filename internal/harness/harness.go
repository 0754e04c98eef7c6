package harness

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"

	"github.com/roach88/aether/internal/config"
	"github.com/roach88/aether/internal/engine"
	"github.com/roach88/aether/internal/grid"
	"github.com/roach88/aether/internal/lattice"
	"github.com/roach88/aether/internal/num"
	"github.com/roach88/aether/internal/snapshot"
	"github.com/roach88/aether/internal/store"
	"github.com/roach88/aether/internal/testutil"
)

// Harness holds the per-run resources shared by every variant.
type Harness struct {
	store  *store.Store
	ids    store.IDGenerator
	logger *slog.Logger
}

// variant binds a scenario variant to its constructors.
type variant[T any] struct {
	arith   num.Arith[T]
	create  func(initial T, opts ...engine.Option) (*engine.Automaton[T], error)
	restore func(ctx context.Context, e snapshot.Entries, tr *engine.ComplianceTracker, opts ...engine.Option) (*engine.Automaton[T], error)
}

// Run executes a scenario and returns the result.
func Run(scenario *Scenario) (*Result, error) {
	return RunContext(context.Background(), scenario)
}

// RunContext executes a scenario. Each run gets a fresh in-memory snapshot
// store and deterministic snapshot ids.
//
// Execution flow:
// 1. Create the automaton for the scenario's variant
// 2. Advance step by step, checking per-step assertions
// 3. Snapshot, store and restore at restore_at
// 4. Check step-specific assertions against the trace
func RunContext(ctx context.Context, scenario *Scenario) (*Result, error) {
	initial, ok := scenario.initial()
	if !ok {
		return nil, fmt.Errorf("initial %q is not a decimal integer", scenario.Initial)
	}

	st, err := store.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	h := &Harness{
		store:  st,
		ids:    testutil.NewSequentialIDGenerator(scenario.Name),
		logger: slog.New(slog.DiscardHandler),
	}
	dim := scenario.Dimension

	switch scenario.variant() {
	case config.VariantBig:
		return run(ctx, h, scenario, initial, new(big.Int).Set(initial), variant[*big.Int]{
			arith: num.Big{},
			create: func(v *big.Int, opts ...engine.Option) (*engine.Automaton[*big.Int], error) {
				return engine.NewMemory[*big.Int](num.Big{}, dim, v, opts...)
			},
			restore: func(ctx context.Context, e snapshot.Entries, tr *engine.ComplianceTracker, opts ...engine.Option) (*engine.Automaton[*big.Int], error) {
				return snapshot.Load[*big.Int](ctx, num.Big{}, e, tr, opts...)
			},
		})
	case config.VariantInt64:
		if !initial.IsInt64() {
			return nil, fmt.Errorf("initial %s does not fit int64", initial)
		}
		return run(ctx, h, scenario, initial, initial.Int64(), variant[int64]{
			arith: num.Int64{},
			create: func(v int64, opts ...engine.Option) (*engine.Automaton[int64], error) {
				return engine.NewMemory[int64](num.Int64{}, dim, v, opts...)
			},
			restore: func(ctx context.Context, e snapshot.Entries, tr *engine.ComplianceTracker, opts ...engine.Option) (*engine.Automaton[int64], error) {
				return snapshot.Load[int64](ctx, num.Int64{}, e, tr, opts...)
			},
		})
	case config.VariantFileInt64:
		if !initial.IsInt64() {
			return nil, fmt.Errorf("initial %s does not fit int64", initial)
		}
		return run(ctx, h, scenario, initial, initial.Int64(), variant[int64]{
			arith: num.Int64{},
			create: func(v int64, opts ...engine.Option) (*engine.Automaton[int64], error) {
				return engine.NewFileBacked(dim, v, opts...)
			},
			restore: snapshot.LoadFileBacked,
		})
	}
	return nil, fmt.Errorf("unknown variant %q", scenario.Variant)
}

func run[T any](ctx context.Context, h *Harness, s *Scenario, initialBig *big.Int, initial T, v variant[T]) (*Result, error) {
	opts := []engine.Option{engine.WithLogger(h.logger)}
	var tracker *engine.ComplianceTracker
	if s.Compliance {
		tracker = engine.NewComplianceTracker(s.Dimension)
	}
	createOpts := opts
	if tracker != nil {
		createOpts = []engine.Option{engine.WithLogger(h.logger), engine.WithObserver(tracker)}
	}

	m, err := v.create(initial, createOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create automaton: %w", err)
	}
	defer func() { m.Close() }()

	var ref *reference[T]
	if s.has(AssertSymmetry) {
		ref = newReference(v.arith, s.Dimension, initial)
	}

	result := NewResult()
	record := func() error {
		o, err := observe(m, tracker, ref)
		if err != nil {
			return err
		}
		result.Trace = append(result.Trace, o.trace)
		for _, e := range checkStep(s, initialBig, o) {
			result.AddError(e.Error())
		}
		return nil
	}
	if err := record(); err != nil {
		return nil, err
	}

	for step := int64(1); step <= s.maxSteps(); step++ {
		changed, err := m.Advance(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to advance to step %d: %w", step, err)
		}
		if ref != nil {
			ref.step()
		}
		if err := record(); err != nil {
			return nil, err
		}
		if step == s.RestoreAt {
			restored, id, err := roundTrip(ctx, h, m, tracker, v, opts)
			if err != nil {
				return nil, fmt.Errorf("failed to restore at step %d: %w", step, err)
			}
			m.Close()
			m = restored
			result.Snapshots = append(result.Snapshots, id)
		}
		if s.UntilStable && !changed {
			break
		}
	}

	for _, e := range checkTrace(s, result) {
		result.AddError(e.Error())
	}
	return result, nil
}

// observe records the committed generation of m.
func observe[T any](m *engine.Automaton[T], tracker *engine.ComplianceTracker, ref *reference[T]) (observation, error) {
	a := m.Arith()
	state := m.State()
	st := StepTrace{
		Step:    state.Step,
		Bound:   state.Bound,
		Changed: state.Changed,
		Cells:   map[string]string{},
	}
	err := grid.ForEach(m.Current(), func(p lattice.Position, v T) error {
		if a.Sign(v) != 0 {
			st.Cells[p.String()] = a.String(v)
		}
		return nil
	})
	if err != nil {
		return observation{}, fmt.Errorf("failed to read step %d: %w", state.Step, err)
	}
	if tracker != nil && state.Step > 0 {
		ok := tracker.AllCompliant()
		st.AllCompliant = &ok
	}

	total, err := m.Total()
	if err != nil {
		return observation{}, fmt.Errorf("failed to total step %d: %w", state.Step, err)
	}
	o := observation{trace: st}
	o.total, _ = new(big.Int).SetString(a.String(total), 10)
	if ref != nil {
		o.full = ref.snapshot()
	}
	return o, nil
}

// roundTrip saves m, writes the snapshot to the store, reads it back and
// restores it. The tracker, if any, follows the restored automaton.
func roundTrip[T any](ctx context.Context, h *Harness, m *engine.Automaton[T], tracker *engine.ComplianceTracker, v variant[T], opts []engine.Option) (*engine.Automaton[T], string, error) {
	entries, err := snapshot.Save(m, tracker)
	if err != nil {
		return nil, "", err
	}
	id := h.ids.Generate()
	if _, err := h.store.Put(ctx, id, "harness", m.State().Step, entries); err != nil {
		return nil, "", err
	}
	stored, err := h.store.Get(ctx, id)
	if err != nil {
		return nil, "", err
	}
	restored, err := v.restore(ctx, stored.Entries, tracker, opts...)
	if err != nil {
		return nil, "", err
	}
	return restored, id, nil
}
