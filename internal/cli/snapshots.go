package cli

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/aether/internal/store"
)

// SnapshotsOptions holds flags for the snapshots command.
type SnapshotsOptions struct {
	*RootOptions
	Database string
	Delete   string
}

// SnapshotInfo is one catalogue entry in command output.
type SnapshotInfo struct {
	ID    string `json:"id"`
	Seq   int64  `json:"seq"`
	Label string `json:"label,omitempty"`
	Step  int64  `json:"step"`
	Tags  int    `json:"tags"`
}

// SnapshotList is the output of the snapshots command.
type SnapshotList struct {
	Snapshots []SnapshotInfo `json:"snapshots"`
	Deleted   string         `json:"deleted,omitempty"`
}

func (l SnapshotList) String() string {
	var b strings.Builder
	if l.Deleted != "" {
		fmt.Fprintf(&b, "Deleted %s\n", l.Deleted)
	}
	if len(l.Snapshots) == 0 {
		b.WriteString("No snapshots.")
		return b.String()
	}
	fmt.Fprintf(&b, "%-4s  %-36s  %-12s  %12s  %s\n", "SEQ", "ID", "LABEL", "STEP", "TAGS")
	for _, s := range l.Snapshots {
		b.WriteString(printer.Sprintf("%-4d  %-36s  %-12s  %12d  %d\n", s.Seq, s.ID, s.Label, s.Step, s.Tags))
	}
	return strings.TrimSuffix(b.String(), "\n")
}

// NewSnapshotsCommand creates the snapshots command.
func NewSnapshotsCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SnapshotsOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "snapshots",
		Short: "List or delete stored snapshots",
		Long: `List the snapshots in a database in sequence order.

Examples:
  aether snapshots --db ./aether.db
  aether snapshots --db ./aether.db --delete 0192f1c4-...
  aether snapshots --db ./aether.db --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return listSnapshots(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite snapshot database (required)")
	cmd.Flags().StringVar(&opts.Delete, "delete", "", "delete the snapshot with this id first")
	_ = cmd.MarkFlagRequired("db")

	return cmd
}

func listSnapshots(opts *SnapshotsOptions, cmd *cobra.Command) error {
	st, err := store.Open(opts.Database)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open snapshot database", err)
	}
	defer st.Close()

	ctx := cmd.Context()
	out := SnapshotList{Snapshots: []SnapshotInfo{}}
	if opts.Delete != "" {
		err := st.Delete(ctx, opts.Delete)
		if errors.Is(err, store.ErrNotFound) {
			return NewExitError(ExitCommandError, fmt.Sprintf("snapshot %q not found", opts.Delete))
		}
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to delete snapshot", err)
		}
		out.Deleted = opts.Delete
	}

	infos, err := st.List(ctx)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to list snapshots", err)
	}
	for _, info := range infos {
		out.Snapshots = append(out.Snapshots, SnapshotInfo{
			ID:    info.ID,
			Seq:   info.Seq,
			Label: info.Label,
			Step:  info.Step,
			Tags:  info.Tags,
		})
	}
	return opts.formatter(cmd).Success(out)
}
