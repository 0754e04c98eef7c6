package engine

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/roach88/aether/internal/grid"
	"github.com/roach88/aether/internal/lattice"
	"github.com/roach88/aether/internal/num"
)

// Option configures an Automaton.
type Option func(*options)

type options struct {
	logger       *slog.Logger
	observers    []Observer
	keepPrevious bool
	workDir      string
}

// WithLogger sets the logger used for step summaries. The default discards
// everything.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithObserver registers an observer notified on every step.
func WithObserver(obs Observer) Option {
	return func(o *options) { o.observers = append(o.observers, obs) }
}

// WithKeepPrevious builds in-memory automata on a backend that keeps the
// previous generation for the whole step, making steps cancellable midway.
func WithKeepPrevious() Option {
	return func(o *options) { o.keepPrevious = true }
}

// WithWorkDir sets the parent directory for file-backed work files.
func WithWorkDir(dir string) Option {
	return func(o *options) { o.workDir = dir }
}

func buildOptions(opts []Option) options {
	o := options{logger: slog.New(slog.DiscardHandler)}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Automaton is a running simulation: a backend holding the committed
// generation plus the State describing it.
//
// An Automaton is not safe for concurrent use.
type Automaton[T any] struct {
	arith   num.Arith[T]
	backend grid.Backend[T]
	initial T
	state   State
	obs     Observer
	logger  *slog.Logger
	closed  bool
}

// NewMemory starts an in-memory automaton of dimension dim with initial at
// the origin.
func NewMemory[T any](a num.Arith[T], dim int, initial T, opts ...Option) (*Automaton[T], error) {
	if err := validate(a, dim, initial); err != nil {
		return nil, err
	}
	o := buildOptions(opts)
	var mopts []grid.MemoryOption
	if o.keepPrevious {
		mopts = append(mopts, grid.KeepPrevious())
	}
	return seed[T](a, grid.NewMemoryBackend(a, dim, mopts...), dim, initial, o)
}

// NewFileBacked starts an automaton whose generations live in files under
// a fresh work directory.
func NewFileBacked(dim int, initial int64, opts ...Option) (*Automaton[int64], error) {
	a := num.Int64{}
	if err := validate[int64](a, dim, initial); err != nil {
		return nil, err
	}
	o := buildOptions(opts)
	b, err := grid.NewFileBackend(o.workDir, dim, grid.WithFileLogger(o.logger))
	if err != nil {
		return nil, newStorageError(0, err)
	}
	return seed[int64](a, b, dim, initial, o)
}

func validate[T any](a num.Arith[T], dim int, initial T) error {
	if dim < 1 {
		return newDimensionError("dimension must be at least 1, got %d", dim)
	}
	if a.Kind() == num.KindInt64 {
		if floor := a.FromInt64(num.MinInt64Initial(dim)); a.Cmp(initial, floor) < 0 {
			return &Error{
				Code:    ErrCodeInitialOutOfRange,
				Message: fmt.Sprintf("initial value %s is below %s for dimension %d", a.String(initial), a.String(floor), dim),
			}
		}
	}
	return nil
}

func seed[T any](a num.Arith[T], b grid.Backend[T], dim int, initial T, o options) (*Automaton[T], error) {
	g, err := b.Begin(0, 1)
	if err == nil {
		err = g.Add(lattice.Origin(dim), initial)
	}
	if err == nil {
		err = b.Commit()
	}
	if err != nil {
		b.Close()
		return nil, newStorageError(0, err)
	}
	state := InitialState(dim, a.Sign(initial) >= 0)
	o.logger.Debug("automaton created", "dimension", dim, "initial", a.String(initial), "kind", a.Kind())
	return &Automaton[T]{
		arith:   a,
		backend: b,
		initial: initial,
		state:   state,
		obs:     combine(o.observers),
		logger:  o.logger,
	}, nil
}

// Resume wraps a backend whose current generation was restored elsewhere,
// typically from a snapshot. The backend is owned by the returned
// automaton, and is closed if Resume fails.
func Resume[T any](a num.Arith[T], b grid.Backend[T], initial T, state State, opts ...Option) (*Automaton[T], error) {
	var err error
	switch {
	case b.Dimension() != state.Dimension:
		err = newDimensionError("backend dimension %d does not match state dimension %d", b.Dimension(), state.Dimension)
	case b.Current() == nil:
		err = newStorageError(state.Step, fmt.Errorf("backend holds no generation"))
	default:
		err = validate(a, state.Dimension, initial)
	}
	if err != nil {
		b.Close()
		return nil, err
	}
	o := buildOptions(opts)
	o.logger.Debug("automaton resumed", "dimension", state.Dimension, "step", state.Step, "bound", state.Bound)
	return &Automaton[T]{
		arith:   a,
		backend: b,
		initial: initial,
		state:   state,
		obs:     combine(o.observers),
		logger:  o.logger,
	}, nil
}

// Advance performs exactly one step and reports whether any cell changed.
func (m *Automaton[T]) Advance(ctx context.Context) (bool, error) {
	if m.closed {
		return false, &Error{Code: ErrCodeClosed, Message: "automaton is closed"}
	}
	next, err := Step(ctx, m.arith, m.backend, m.state, m.obs)
	if err != nil {
		return false, err
	}
	if next.Bound != m.state.Bound {
		m.logger.Debug("bound grew", "step", next.Step, "bound", next.Bound)
	}
	m.state = next
	m.logger.Debug("step complete", "step", next.Step, "bound", next.Bound, "changed", next.Changed)
	return next.Changed, nil
}

// State returns the state of the committed generation.
func (m *Automaton[T]) State() State { return m.state }

// Initial returns the value the automaton was started with.
func (m *Automaton[T]) Initial() T { return m.initial }

// Arith returns the value arithmetic.
func (m *Automaton[T]) Arith() num.Arith[T] { return m.arith }

// Backend returns the generation store.
func (m *Automaton[T]) Backend() grid.Backend[T] { return m.backend }

// Current returns the committed generation.
func (m *Automaton[T]) Current() grid.Generation[T] { return m.backend.Current() }

// ValueAt returns the value at any lattice position.
func (m *Automaton[T]) ValueAt(p lattice.Position) (T, error) {
	if m.closed {
		return m.arith.Zero(), &Error{Code: ErrCodeClosed, Message: "automaton is closed"}
	}
	if len(p) != m.state.Dimension {
		return m.arith.Zero(), newDimensionError("position %v has dimension %d, want %d", []int(p), len(p), m.state.Dimension)
	}
	canon, _ := lattice.Canonicalize(p)
	v, err := m.backend.Current().Value(canon)
	if err != nil {
		return m.arith.Zero(), newStorageError(m.state.Step, err)
	}
	return v, nil
}

// Total returns the sum over the whole lattice of the committed generation.
func (m *Automaton[T]) Total() (T, error) {
	return Total(m.arith, m.backend.Current())
}

// Close releases the backend. Further calls fail with ErrCodeClosed.
func (m *Automaton[T]) Close() error {
	if m.closed {
		return nil
	}
	m.closed = true
	return m.backend.Close()
}
