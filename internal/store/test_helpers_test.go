package store

import (
	"path/filepath"
	"testing"
)

// createTestStore creates a new store in a temporary directory.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// testEntries returns a small tagged payload.
func testEntries(step string) map[string][]byte {
	return map[string][]byte{
		"model": []byte(`"aether"`),
		"step":  []byte(step),
		"grid":  {0, 1, 2, 3},
	}
}
