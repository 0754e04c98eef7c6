package cli

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func valueJSON(t *testing.T, args ...string) ValueResult {
	t.Helper()
	out, err := execute(t, NewValueCommand(&RootOptions{Format: "json"}), args...)
	require.NoError(t, err)
	status, result := decodeData[ValueResult](t, out)
	require.Equal(t, "ok", status)
	return result
}

func TestValueFromDatabase(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "aether.db")
	runJSON(t, "--initial", "-77", "--steps", "3", "--db", dbPath)

	for _, pos := range []string{"1,1", "-1,1", "(1,-1)"} {
		r := valueJSON(t, "--db", dbPath, "--", pos)
		assert.Equal(t, "28", r.Value, pos)
		assert.Equal(t, "(1,1)", r.Canonical)
		assert.Equal(t, int64(3), r.Step)
	}
}

func TestValueOutsideBoundIsZero(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "aether.db")
	runJSON(t, "--dim", "1", "--initial", "9", "--variant", "int64", "--steps", "2", "--db", dbPath)

	assert.Equal(t, "2", valueJSON(t, "--db", dbPath, "--", "-1").Value)
	assert.Equal(t, "0", valueJSON(t, "40", "--db", dbPath).Value)
}

func TestValueFromDirectory(t *testing.T) {
	base := t.TempDir()
	saved := filepath.Join(base, "saved")
	runJSON(t, "--initial", "100", "--variant", "file_int64", "--steps", "4",
		"--work-dir", base, "--save-dir", saved)

	r := valueJSON(t, "0,-3", "--dir", saved)
	assert.Equal(t, "1", r.Value)
	assert.Equal(t, "(3,0)", r.Canonical)
	assert.Equal(t, "4", valueJSON(t, "1,0", "--dir", saved).Value)
	assert.Equal(t, "8", valueJSON(t, "0,0", "--dir", saved).Value)
}

func TestValueDirectoryOfOtherDimension(t *testing.T) {
	base := t.TempDir()
	saved := filepath.Join(base, "saved")
	runJSON(t, "--initial", "100", "--variant", "file_int64", "--steps", "2",
		"--work-dir", base, "--save-dir", saved)

	_, err := execute(t, NewValueCommand(&RootOptions{Format: "text"}), "1,0,0", "--dir", saved)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "snapshot is not 3D")
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestValueTextOutput(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "aether.db")
	runJSON(t, "--initial", "100", "--steps", "4", "--db", dbPath)

	out, err := execute(t, NewValueCommand(&RootOptions{Format: "text"}), "2,1", "--db", dbPath)
	require.NoError(t, err)
	assert.Contains(t, out, "(2,1) = 2 at step 4 (canonical (2,1))")
}

func TestValueErrors(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "aether.db")
	runJSON(t, "--initial", "100", "--steps", "1", "--db", dbPath)

	tests := []struct {
		name     string
		args     []string
		contains string
		code     int
	}{
		{"invalid position", []string{"a,b", "--db", dbPath}, "invalid position", ExitCommandError},
		{"wrong dimension", []string{"1,2,3", "--db", dbPath}, "snapshot is not 3D", ExitCommandError},
		{"unknown snapshot", []string{"0,0", "--db", dbPath, "--snapshot", "nope"}, "not found", ExitCommandError},
		{"both sources", []string{"0,0", "--db", dbPath, "--dir", t.TempDir()}, "none of the others", ExitFailure},
		{"no source", []string{"0,0"}, "at least one of the flags", ExitFailure},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := execute(t, NewValueCommand(&RootOptions{Format: "text"}), tt.args...)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.contains)
			assert.Equal(t, tt.code, GetExitCode(err))
		})
	}
}
