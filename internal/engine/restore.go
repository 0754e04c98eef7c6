package engine

import (
	"log/slog"

	"github.com/roach88/aether/internal/grid"
	"github.com/roach88/aether/internal/num"
)

// RestoreMemory rebuilds an in-memory automaton. fill receives an empty
// generation covering state.Extent() slices and must add the saved values.
func RestoreMemory[T any](a num.Arith[T], initial T, state State, fill func(grid.Generation[T]) error, opts ...Option) (*Automaton[T], error) {
	if err := validate(a, state.Dimension, initial); err != nil {
		return nil, err
	}
	o := buildOptions(opts)
	var mopts []grid.MemoryOption
	if o.keepPrevious {
		mopts = append(mopts, grid.KeepPrevious())
	}
	b := grid.NewMemoryBackend(a, state.Dimension, mopts...)
	if err := refill[T](b, state, fill); err != nil {
		b.Close()
		return nil, err
	}
	return Resume(a, grid.Backend[T](b), initial, state, opts...)
}

// RestoreFileBacked rebuilds a file-backed automaton in a fresh work
// directory, writing the saved values through fill.
func RestoreFileBacked(initial int64, state State, fill func(grid.Generation[int64]) error, opts ...Option) (*Automaton[int64], error) {
	if err := validate[int64](num.Int64{}, state.Dimension, initial); err != nil {
		return nil, err
	}
	b, err := newFileBackend(state.Dimension, opts)
	if err != nil {
		return nil, err
	}
	if err := refill[int64](b, state, fill); err != nil {
		b.Close()
		return nil, err
	}
	return Resume[int64](num.Int64{}, b, initial, state, opts...)
}

// AdoptFile resumes a file-backed automaton directly from a saved
// generation file. The file is only read, and is left in place when the
// automaton moves past it or is closed.
func AdoptFile(path string, initial int64, state State, opts ...Option) (*Automaton[int64], error) {
	if err := validate[int64](num.Int64{}, state.Dimension, initial); err != nil {
		return nil, err
	}
	b, err := newFileBackend(state.Dimension, opts)
	if err != nil {
		return nil, err
	}
	if err := b.Adopt(path, state.Step, state.Extent()); err != nil {
		b.Close()
		return nil, newStorageError(state.Step, err)
	}
	return Resume[int64](num.Int64{}, b, initial, state, opts...)
}

func newFileBackend(dim int, opts []Option) (*grid.FileBackend, error) {
	o := buildOptions(opts)
	b, err := grid.NewFileBackend(o.workDir, dim, grid.WithFileLogger(o.logger))
	if err != nil {
		return nil, newStorageError(0, err)
	}
	return b, nil
}

func refill[T any](b grid.Backend[T], state State, fill func(grid.Generation[T]) error) error {
	g, err := b.Begin(state.Step, state.Extent())
	if err != nil {
		return newStorageError(state.Step, err)
	}
	if err := fill(g); err != nil {
		b.Discard()
		return err
	}
	if err := b.Commit(); err != nil {
		return newStorageError(state.Step, err)
	}
	return nil
}

// Logger returns the logger the automaton reports to.
func (m *Automaton[T]) Logger() *slog.Logger { return m.logger }
