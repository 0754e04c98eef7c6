package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/roach88/aether/internal/engine"
	"github.com/roach88/aether/internal/snapshot"
	"github.com/roach88/aether/internal/store"
)

// ResumeOptions holds flags for the resume command.
type ResumeOptions struct {
	*RootOptions
	Database    string
	Dir         string
	Label       string
	Steps       int64
	UntilStable bool
	BackupEvery int64
	Compliance  bool
	WorkDir     string
	SaveDir     string
}

// NewResumeCommand creates the resume command.
func NewResumeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ResumeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "resume [snapshot-id]",
		Short: "Continue a run from a snapshot",
		Long: `Restore an automaton from a snapshot and keep advancing it.

The snapshot is read from a directory (--dir) or from the database (--db),
where it defaults to the latest snapshot with --label. New snapshots go to
--db when it is given.

Examples:
  aether resume --db ./aether.db --until-stable
  aether resume --db ./aether.db 0192f1c4-... --steps 100
  aether resume --dir ./backup --steps 10 --save-dir ./backup2`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return resumeAutomaton(opts, args, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite snapshot database")
	cmd.Flags().StringVar(&opts.Dir, "dir", "", "directory snapshot to resume from")
	cmd.Flags().StringVar(&opts.Label, "label", "", "label of the snapshots to resume and write")
	cmd.Flags().Int64Var(&opts.Steps, "steps", 0, "further steps to perform (0 = no limit with --until-stable)")
	cmd.Flags().BoolVar(&opts.UntilStable, "until-stable", false, "stop once a step changes nothing")
	cmd.Flags().Int64Var(&opts.BackupEvery, "backup-every", 0, "snapshot every N steps to --db (to --save-dir for file_int64)")
	cmd.Flags().BoolVar(&opts.Compliance, "compliance", false, "track toppling alternation compliance")
	cmd.Flags().StringVar(&opts.WorkDir, "work-dir", "", "parent directory for file_int64 generations")
	cmd.Flags().StringVar(&opts.SaveDir, "save-dir", "", "write a directory snapshot when the run ends")
	cmd.MarkFlagsOneRequired("db", "dir")

	return cmd
}

func resumeAutomaton(opts *ResumeOptions, args []string, cmd *cobra.Command) error {
	if opts.Steps < 0 || opts.BackupEvery < 0 {
		return NewExitError(ExitCommandError, "--steps and --backup-every must not be negative")
	}
	if opts.Dir != "" && len(args) == 1 {
		return NewExitError(ExitCommandError, "a snapshot id cannot be combined with --dir")
	}

	logger := opts.logger(cmd)
	ctx, stop := signalContext(cmd, logger)
	defer stop()

	var st *store.Store
	if opts.Database != "" {
		var err error
		st, err = store.Open(opts.Database)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to open snapshot database", err)
		}
		defer func() {
			if closeErr := st.Close(); closeErr != nil {
				logger.Error("error closing database", "error", closeErr)
			}
		}()
	}

	src := source{store: st, dir: opts.Dir, label: opts.Label, logger: logger}
	if len(args) == 1 {
		src.id = args[0]
	}
	eopts := []engine.Option{engine.WithLogger(logger)}
	if opts.WorkDir != "" {
		eopts = append(eopts, engine.WithWorkDir(opts.WorkDir))
	}
	m, tracker, err := src.open(ctx, opts.Compliance, eopts)
	if err != nil {
		return err
	}
	defer m.Close()

	sess := &session{
		m:           m,
		tracker:     tracker,
		store:       st,
		ids:         store.UUIDv7Generator{},
		label:       opts.Label,
		backupEvery: opts.BackupEvery,
		saveDir:     opts.SaveDir,
		logger:      logger,
	}

	interrupted, err := sess.drive(ctx, opts.Steps, opts.UntilStable)
	if err != nil {
		return WrapExitError(ExitFailure, "run failed", err)
	}
	summary, err := sess.finish(ctx, interrupted)
	if err != nil {
		return WrapExitError(ExitFailure, "failed to save run", err)
	}
	return report(opts.formatter(cmd), summary)
}

// source locates a saved automaton in a directory or a snapshot store.
type source struct {
	store  *store.Store
	dir    string
	id     string
	label  string
	logger *slog.Logger

	// dimension, when non-zero, is the lattice dimension the caller needs
	dimension int
}

// open restores the automaton, with a compliance tracker when track is set.
func (s source) open(ctx context.Context, track bool, opts []engine.Option) (runner, *engine.ComplianceTracker, error) {
	if s.dir != "" {
		props, err := snapshot.ReadProperties(s.dir)
		if err != nil {
			return nil, nil, WrapExitError(ExitCommandError, "failed to read snapshot directory", err)
		}
		if err := s.expect(props.ExpectDimension); err != nil {
			return nil, nil, err
		}
		tracker, opts := observe(track, props.Dimension, opts)
		m, err := loadDir(ctx, s.dir, tracker, opts)
		if err != nil {
			return nil, nil, WrapExitError(ExitCommandError, "failed to restore snapshot", err)
		}
		s.logger.Info("snapshot restored", "dir", s.dir, "step", m.State().Step)
		return m, tracker, nil
	}

	snap, err := s.snapshot(ctx)
	if err != nil {
		return nil, nil, err
	}
	entries := snapshot.Entries(snap.Entries)
	dim, err := entries.Dimension()
	if err != nil {
		return nil, nil, WrapExitError(ExitCommandError, "failed to restore snapshot", err)
	}
	if err := s.expect(entries.ExpectDimension); err != nil {
		return nil, nil, err
	}
	tracker, opts := observe(track, dim, opts)
	m, err := loadEntries(ctx, entries, tracker, opts)
	if err != nil {
		return nil, nil, WrapExitError(ExitCommandError, "failed to restore snapshot", err)
	}
	s.logger.Info("snapshot restored", "id", snap.ID, "step", m.State().Step)
	return m, tracker, nil
}

func (s source) expect(check func(int) error) error {
	if s.dimension == 0 {
		return nil
	}
	if err := check(s.dimension); err != nil {
		return WrapExitError(ExitCommandError, fmt.Sprintf("snapshot is not %dD", s.dimension), err)
	}
	return nil
}

func (s source) snapshot(ctx context.Context) (store.Snapshot, error) {
	if s.store == nil {
		return store.Snapshot{}, NewExitError(ExitCommandError, "--db is required to read stored snapshots")
	}
	var (
		snap store.Snapshot
		err  error
	)
	if s.id != "" {
		snap, err = s.store.Get(ctx, s.id)
	} else {
		snap, err = s.store.Latest(ctx, s.label)
	}
	if errors.Is(err, store.ErrNotFound) {
		what := fmt.Sprintf("snapshot %q", s.id)
		if s.id == "" {
			what = fmt.Sprintf("snapshot with label %q", s.label)
		}
		return store.Snapshot{}, NewExitError(ExitCommandError, what+" not found")
	}
	if err != nil {
		return store.Snapshot{}, WrapExitError(ExitCommandError, "failed to read snapshot", err)
	}
	return snap, nil
}

func observe(track bool, dim int, opts []engine.Option) (*engine.ComplianceTracker, []engine.Option) {
	if !track {
		return nil, opts
	}
	tracker := engine.NewComplianceTracker(dim)
	return tracker, append(opts, engine.WithObserver(tracker))
}
