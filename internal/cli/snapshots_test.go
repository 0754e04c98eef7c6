package cli

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSnapshotsEmpty(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "aether.db")

	out, err := execute(t, NewSnapshotsCommand(&RootOptions{Format: "text"}), "--db", dbPath)
	require.NoError(t, err)
	assert.Contains(t, out, "No snapshots.")
}

func TestSnapshotsListAndDelete(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "aether.db")
	run := runJSON(t, "--dim", "1", "--initial", "9", "--steps", "3", "--backup-every", "1",
		"--db", dbPath, "--label", "nine")
	require.Len(t, run.Snapshots, 3)

	out, err := execute(t, NewSnapshotsCommand(&RootOptions{Format: "json"}), "--db", dbPath)
	require.NoError(t, err)
	_, list := decodeData[SnapshotList](t, out)
	require.Len(t, list.Snapshots, 3)
	for i, s := range list.Snapshots {
		assert.Equal(t, run.Snapshots[i], s.ID)
		assert.Equal(t, int64(i+1), s.Step)
		assert.Equal(t, "nine", s.Label)
		assert.Positive(t, s.Tags)
	}
	assert.Less(t, list.Snapshots[0].Seq, list.Snapshots[1].Seq)

	out, err = execute(t, NewSnapshotsCommand(&RootOptions{Format: "json"}), "--db", dbPath, "--delete", run.Snapshots[1])
	require.NoError(t, err)
	_, list = decodeData[SnapshotList](t, out)
	assert.Equal(t, run.Snapshots[1], list.Deleted)
	require.Len(t, list.Snapshots, 2)
	assert.Equal(t, int64(1), list.Snapshots[0].Step)
	assert.Equal(t, int64(3), list.Snapshots[1].Step)
}

func TestSnapshotsTextOutput(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "aether.db")
	run := runJSON(t, "--initial", "5", "--steps", "1", "--db", dbPath, "--label", "five")

	out, err := execute(t, NewSnapshotsCommand(&RootOptions{Format: "text"}), "--db", dbPath)
	require.NoError(t, err)
	assert.Contains(t, out, "SEQ")
	assert.Contains(t, out, run.Snapshots[0])
	assert.Contains(t, out, "five")
}

func TestSnapshotsErrors(t *testing.T) {
	t.Run("missing db flag", func(t *testing.T) {
		_, err := execute(t, NewSnapshotsCommand(&RootOptions{Format: "text"}))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "required flag")
	})

	t.Run("delete unknown", func(t *testing.T) {
		dbPath := filepath.Join(t.TempDir(), "aether.db")
		_, err := execute(t, NewSnapshotsCommand(&RootOptions{Format: "text"}), "--db", dbPath, "--delete", "nope")
		require.Error(t, err)
		assert.Contains(t, err.Error(), `snapshot "nope" not found`)
		assert.Equal(t, ExitCommandError, GetExitCode(err))
	})
}
