package cli

import (
	"fmt"
	"math/big"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/roach88/aether/internal/config"
	"github.com/roach88/aether/internal/engine"
	"github.com/roach88/aether/internal/store"
)

// RunOptions holds flags for the run command. Flags override the
// configuration file only when given.
type RunOptions struct {
	*RootOptions
	Dimension   int
	Initial     string
	Variant     string
	Steps       int64
	UntilStable bool
	BackupEvery int64
	Compliance  bool
	WorkDir     string
	Database    string
	Label       string
	SaveDir     string
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run [config.cue]",
		Short: "Run an automaton from a single source",
		Long: `Start an automaton with the initial value at the origin and advance it.

Settings come from an optional CUE configuration file; flags override it.
With --db the run is snapshotted every --backup-every steps and once more
when it ends, including on Ctrl-C. A file_int64 run with --save-dir writes
those backups to the directory instead, streaming the generation file.

Examples:
  aether run --initial 1000 --until-stable
  aether run --dim 3 --initial 12345 --steps 50 --variant int64
  aether run ./run.cue --db ./aether.db --backup-every 100`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAutomaton(opts, args, cmd)
		},
	}

	cmd.Flags().IntVar(&opts.Dimension, "dim", 2, "lattice dimension")
	cmd.Flags().StringVar(&opts.Initial, "initial", "", "value at the origin (any size integer)")
	cmd.Flags().StringVar(&opts.Variant, "variant", string(config.VariantBig), "big_int|int64|file_int64")
	cmd.Flags().Int64Var(&opts.Steps, "steps", 0, "steps to perform (0 = no limit with --until-stable)")
	cmd.Flags().BoolVar(&opts.UntilStable, "until-stable", false, "stop once a step changes nothing")
	cmd.Flags().Int64Var(&opts.BackupEvery, "backup-every", 0, "snapshot every N steps to --db (to --save-dir for file_int64)")
	cmd.Flags().BoolVar(&opts.Compliance, "compliance", false, "track toppling alternation compliance")
	cmd.Flags().StringVar(&opts.WorkDir, "work-dir", "", "parent directory for file_int64 generations")
	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite snapshot database")
	cmd.Flags().StringVar(&opts.Label, "label", "", "label stored with snapshots")
	cmd.Flags().StringVar(&opts.SaveDir, "save-dir", "", "write a directory snapshot when the run ends")

	return cmd
}

// apply copies the flags given on the command line over cfg.
func (o *RunOptions) apply(flags *pflag.FlagSet, cfg *config.Run) error {
	if flags.Changed("dim") {
		cfg.Dimension = o.Dimension
	}
	if flags.Changed("initial") {
		v, ok := new(big.Int).SetString(o.Initial, 10)
		if !ok {
			return fmt.Errorf("initial %q is not a decimal integer", o.Initial)
		}
		cfg.Initial = v
	}
	if flags.Changed("variant") {
		v, err := config.ParseVariant(o.Variant)
		if err != nil {
			return err
		}
		cfg.Variant = v
	}
	if flags.Changed("steps") {
		cfg.Steps = o.Steps
	}
	if flags.Changed("until-stable") {
		cfg.UntilStable = o.UntilStable
	}
	if flags.Changed("backup-every") {
		cfg.BackupEvery = o.BackupEvery
	}
	if flags.Changed("compliance") {
		cfg.Compliance = o.Compliance
	}
	if flags.Changed("work-dir") {
		cfg.WorkDir = o.WorkDir
	}
	if flags.Changed("db") {
		cfg.SnapshotDB = o.Database
	}
	if flags.Changed("label") {
		cfg.Label = o.Label
	}
	return nil
}

func runAutomaton(opts *RunOptions, args []string, cmd *cobra.Command) error {
	cfg := config.Defaults()
	if len(args) == 1 {
		loaded, err := config.Load(args[0])
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to load configuration", err)
		}
		cfg = loaded
	}
	if err := opts.apply(cmd.Flags(), &cfg); err != nil {
		return WrapExitError(ExitCommandError, "invalid flag", err)
	}
	if err := cfg.Validate(); err != nil {
		return WrapExitError(ExitCommandError, "invalid configuration", err)
	}

	logger := opts.logger(cmd)
	ctx, stop := signalContext(cmd, logger)
	defer stop()

	eopts := []engine.Option{engine.WithLogger(logger)}
	if cfg.WorkDir != "" {
		eopts = append(eopts, engine.WithWorkDir(cfg.WorkDir))
	}
	var tracker *engine.ComplianceTracker
	if cfg.Compliance {
		tracker = engine.NewComplianceTracker(cfg.Dimension)
		eopts = append(eopts, engine.WithObserver(tracker))
	}

	m, err := newAutomaton(cfg, eopts)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to start automaton", err)
	}
	defer m.Close()

	sess := &session{
		m:           m,
		tracker:     tracker,
		ids:         store.UUIDv7Generator{},
		label:       cfg.Label,
		backupEvery: cfg.BackupEvery,
		saveDir:     opts.SaveDir,
		logger:      logger,
	}
	if cfg.SnapshotDB != "" {
		st, err := store.Open(cfg.SnapshotDB)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to open snapshot database", err)
		}
		defer func() {
			if closeErr := st.Close(); closeErr != nil {
				logger.Error("error closing database", "error", closeErr)
			}
		}()
		sess.store = st
	}

	logger.Info("run starting",
		"dimension", cfg.Dimension,
		"variant", cfg.Variant,
		"initial", cfg.Initial.String(),
		"steps", cfg.Steps,
		"until_stable", cfg.UntilStable)

	interrupted, err := sess.drive(ctx, cfg.Steps, cfg.UntilStable)
	if err != nil {
		return WrapExitError(ExitFailure, "run failed", err)
	}
	summary, err := sess.finish(ctx, interrupted)
	if err != nil {
		return WrapExitError(ExitFailure, "failed to save run", err)
	}
	return report(opts.formatter(cmd), summary)
}
