package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/roach88/aether/internal/config"
	"github.com/roach88/aether/internal/engine"
	"github.com/roach88/aether/internal/store"
)

// session drives an automaton and writes its snapshots.
type session struct {
	m           runner
	tracker     *engine.ComplianceTracker
	store       *store.Store
	ids         store.IDGenerator
	label       string
	backupEvery int64
	saveDir     string
	logger      *slog.Logger

	lastSaved    int64
	lastDirSaved int64
	snapshots    []string
}

// RunSummary describes an automaton after a run or resume.
type RunSummary struct {
	Dimension    int      `json:"dimension"`
	Variant      string   `json:"variant"`
	Initial      string   `json:"initial"`
	Step         int64    `json:"step"`
	Bound        int      `json:"bound"`
	Changed      bool     `json:"changed"`
	Stable       bool     `json:"stable"`
	Total        string   `json:"total"`
	Interrupted  bool     `json:"interrupted,omitempty"`
	AllCompliant *bool    `json:"all_compliant,omitempty"`
	Snapshots    []string `json:"snapshots,omitempty"`
	SavedDir     string   `json:"saved_dir,omitempty"`
}

func (r RunSummary) String() string {
	var b strings.Builder
	status := "running"
	switch {
	case r.Interrupted:
		status = "interrupted"
	case r.Stable:
		status = "stable"
	}
	b.WriteString(printer.Sprintf("Aether %dD %s from %s: step %d, bound %d (%s)\n",
		r.Dimension, r.Variant, r.Initial, r.Step, r.Bound, status))
	fmt.Fprintf(&b, "  total: %s\n", r.Total)
	if r.AllCompliant != nil {
		fmt.Fprintf(&b, "  toppling alternation compliant: %t\n", *r.AllCompliant)
	}
	for _, id := range r.Snapshots {
		fmt.Fprintf(&b, "  snapshot: %s\n", id)
	}
	if r.SavedDir != "" {
		fmt.Fprintf(&b, "  saved to: %s\n", r.SavedDir)
	}
	return strings.TrimSuffix(b.String(), "\n")
}

// drive advances until steps more steps are done or, with untilStable, a
// step changes nothing. steps == 0 leaves only the stability limit. It
// reports whether ctx stopped the run first.
func (s *session) drive(ctx context.Context, steps int64, untilStable bool) (bool, error) {
	start := s.m.State().Step
	s.lastSaved = -1
	s.lastDirSaved = -1
	for {
		st := s.m.State()
		if steps > 0 && st.Step-start >= steps {
			return false, nil
		}
		if untilStable && st.Step > start && !st.Changed {
			s.logger.Info("configuration stable", "step", st.Step)
			return false, nil
		}
		if steps == 0 && !untilStable {
			return false, nil
		}

		if _, err := s.m.Advance(ctx); err != nil {
			if ctx.Err() != nil && errors.Is(err, ctx.Err()) {
				s.logger.Info("run interrupted", "step", st.Step)
				return true, nil
			}
			return false, err
		}

		step := s.m.State().Step
		if s.backupEvery > 0 && step%s.backupEvery == 0 {
			if err := s.checkpoint(ctx); err != nil {
				return false, err
			}
		}
	}
}

// streamsToDir reports whether periodic backups go to the save directory.
// File-backed generations are streamed there rather than buffered whole for
// the database.
func (s *session) streamsToDir() bool {
	return s.saveDir != "" && s.m.Variant() == config.VariantFileInt64
}

func (s *session) checkpoint(ctx context.Context) error {
	switch {
	case s.streamsToDir():
		return s.writeDir()
	case s.store != nil:
		return s.backup(ctx)
	}
	return nil
}

func (s *session) writeDir() error {
	st := s.m.State()
	if _, err := s.m.SaveDir(s.saveDir, s.tracker); err != nil {
		return fmt.Errorf("write snapshot directory at step %d: %w", st.Step, err)
	}
	s.lastDirSaved = st.Step
	s.logger.Info("snapshot written", "dir", s.saveDir, "step", st.Step)
	return nil
}

// backup stores the committed generation. Store writes are not cancelled
// with the run, so an interrupt still leaves a complete snapshot.
func (s *session) backup(ctx context.Context) error {
	st := s.m.State()
	entries, err := s.m.Save(s.tracker)
	if err != nil {
		return fmt.Errorf("snapshot step %d: %w", st.Step, err)
	}
	info, err := s.store.Put(context.WithoutCancel(ctx), s.ids.Generate(), s.label, st.Step, entries)
	if err != nil {
		return fmt.Errorf("store snapshot of step %d: %w", st.Step, err)
	}
	s.lastSaved = st.Step
	s.snapshots = append(s.snapshots, info.ID)
	s.logger.Info("snapshot stored", "id", info.ID, "seq", info.Seq, "step", info.Step)
	return nil
}

// finish writes the final snapshots and summarizes the automaton.
func (s *session) finish(ctx context.Context, interrupted bool) (RunSummary, error) {
	st := s.m.State()
	if s.store != nil && !s.streamsToDir() && s.lastSaved != st.Step {
		if err := s.backup(ctx); err != nil {
			return RunSummary{}, err
		}
	}
	if s.saveDir != "" && s.lastDirSaved != st.Step {
		if err := s.writeDir(); err != nil {
			return RunSummary{}, err
		}
	}

	total, err := s.m.Total()
	if err != nil {
		return RunSummary{}, err
	}
	summary := RunSummary{
		Dimension:   st.Dimension,
		Variant:     string(s.m.Variant()),
		Initial:     s.m.Initial(),
		Step:        st.Step,
		Bound:       st.Bound,
		Changed:     st.Changed,
		Stable:      st.Step > 0 && !st.Changed,
		Total:       total,
		Interrupted: interrupted,
		Snapshots:   s.snapshots,
		SavedDir:    s.saveDir,
	}
	if s.tracker != nil && s.tracker.Step() == st.Step && st.Step > 0 {
		all := s.tracker.AllCompliant()
		summary.AllCompliant = &all
	}
	return summary, nil
}

// report prints the summary and maps an interrupted run to ExitFailure.
func report(f *OutputFormatter, summary RunSummary) error {
	if err := f.Success(summary); err != nil {
		return err
	}
	if summary.Interrupted {
		return reportedExitError(ExitFailure, "run interrupted")
	}
	return nil
}

// signalContext cancels the command's context on SIGINT or SIGTERM.
func signalContext(cmd *cobra.Command, logger *slog.Logger) (context.Context, context.CancelFunc) {
	// Use command's context if available (for testing), otherwise create one
	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, cancel := context.WithCancel(parentCtx)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		select {
		case sig := <-sigChan:
			logger.Info("received signal, stopping after the current step", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	return ctx, func() {
		signal.Stop(sigChan) // Prevent signal handler leak
		cancel()
	}
}
