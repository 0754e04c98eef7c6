package cli

import (
	"github.com/spf13/cobra"

	"github.com/roach88/aether/internal/engine"
	"github.com/roach88/aether/internal/lattice"
	"github.com/roach88/aether/internal/store"
)

// ValueOptions holds flags for the value command.
type ValueOptions struct {
	*RootOptions
	Database string
	Snapshot string
	Label    string
	Dir      string
}

// ValueResult is the output of the value command.
type ValueResult struct {
	Position  string `json:"position"`
	Canonical string `json:"canonical"`
	Step      int64  `json:"step"`
	Value     string `json:"value"`
}

func (r ValueResult) String() string {
	return printer.Sprintf("%s = %s at step %d (canonical %s)", r.Position, r.Value, r.Step, r.Canonical)
}

// NewValueCommand creates the value command.
func NewValueCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ValueOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "value <position>",
		Short: "Read one cell of a saved automaton",
		Long: `Print the value at a lattice position of a saved automaton.

Any position is accepted; it is folded onto its canonical representative.

Examples:
  aether value 3,-1 --db ./aether.db
  aether value 0,0,2 --db ./aether.db --snapshot 0192f1c4-...
  aether value "(1,1)" --dir ./backup
  aether value --dir ./backup -- -2,1`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return readValue(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite snapshot database")
	cmd.Flags().StringVar(&opts.Snapshot, "snapshot", "", "snapshot id (default: latest)")
	cmd.Flags().StringVar(&opts.Label, "label", "", "label of the latest snapshot to read")
	cmd.Flags().StringVar(&opts.Dir, "dir", "", "directory snapshot to read")
	cmd.MarkFlagsOneRequired("db", "dir")
	cmd.MarkFlagsMutuallyExclusive("db", "dir")

	return cmd
}

func readValue(opts *ValueOptions, arg string, cmd *cobra.Command) error {
	p, err := lattice.ParsePosition(arg)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid position", err)
	}

	logger := opts.logger(cmd)
	src := source{dir: opts.Dir, id: opts.Snapshot, label: opts.Label, logger: logger, dimension: len(p)}
	if opts.Database != "" {
		st, err := store.Open(opts.Database)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to open snapshot database", err)
		}
		defer st.Close()
		src.store = st
	}

	m, _, err := src.open(cmd.Context(), false, []engine.Option{engine.WithLogger(logger)})
	if err != nil {
		return err
	}
	defer m.Close()

	v, err := m.Value(p)
	if err != nil {
		return WrapExitError(ExitFailure, "failed to read value", err)
	}
	canon, _ := lattice.Canonicalize(p)
	return opts.formatter(cmd).Success(ValueResult{
		Position:  p.String(),
		Canonical: canon.String(),
		Step:      m.State().Step,
		Value:     v,
	})
}
