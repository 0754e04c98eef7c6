package store

import (
	"context"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPutAndGet(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	info, err := s.Put(ctx, "snap-1", "nightly", 42, testEntries("42"))
	require.NoError(t, err)
	assert.Equal(t, Info{ID: "snap-1", Seq: 1, Label: "nightly", Step: 42, Tags: 3}, info)

	snap, err := s.Get(ctx, "snap-1")
	require.NoError(t, err)
	assert.Equal(t, info, snap.Info)
	assert.Equal(t, testEntries("42"), snap.Entries)
}

func TestPutAssignsIncreasingSeq(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	for i := 1; i <= 3; i++ {
		info, err := s.Put(ctx, fmt.Sprintf("snap-%d", i), "", int64(i*10), testEntries("1"))
		require.NoError(t, err)
		assert.Equal(t, int64(i), info.Seq)
	}

	list, err := s.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 3)
	for i, info := range list {
		assert.Equal(t, fmt.Sprintf("snap-%d", i+1), info.ID)
		assert.Equal(t, int64((i+1)*10), info.Step)
	}
}

func TestPutDuplicateIDIsAtomic(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	_, err := s.Put(ctx, "snap-1", "", 1, testEntries("1"))
	require.NoError(t, err)
	_, err = s.Put(ctx, "snap-1", "", 2, testEntries("2"))
	assert.Error(t, err)

	var entries int
	require.NoError(t, s.DB().QueryRow("SELECT COUNT(*) FROM snapshot_entries").Scan(&entries))
	assert.Equal(t, 3, entries, "failed put must not leave entries behind")

	_, err = s.Put(ctx, "", "", 1, nil)
	assert.Error(t, err)
}

func TestPutEmptyValue(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	_, err := s.Put(ctx, "snap-1", "", 0, map[string][]byte{"empty": nil})
	require.NoError(t, err)
	snap, err := s.Get(ctx, "snap-1")
	require.NoError(t, err)
	assert.Contains(t, snap.Entries, "empty")
	assert.Empty(t, snap.Entries["empty"])
}

func TestLatest(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	_, err := s.Latest(ctx, "")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = s.Put(ctx, "a", "run-a", 5, testEntries("5"))
	require.NoError(t, err)
	_, err = s.Put(ctx, "b", "run-b", 3, testEntries("3"))
	require.NoError(t, err)
	_, err = s.Put(ctx, "c", "run-a", 9, testEntries("9"))
	require.NoError(t, err)

	snap, err := s.Latest(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, "c", snap.ID)

	snap, err = s.Latest(ctx, "run-b")
	require.NoError(t, err)
	assert.Equal(t, "b", snap.ID)
	assert.Equal(t, []byte("3"), snap.Entries["step"])

	_, err = s.Latest(ctx, "run-z")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDeleteCascades(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	_, err := s.Put(ctx, "snap-1", "", 1, testEntries("1"))
	require.NoError(t, err)
	require.NoError(t, s.Delete(ctx, "snap-1"))

	_, err = s.Get(ctx, "snap-1")
	assert.ErrorIs(t, err, ErrNotFound)
	var entries int
	require.NoError(t, s.DB().QueryRow("SELECT COUNT(*) FROM snapshot_entries").Scan(&entries))
	assert.Zero(t, entries)

	assert.ErrorIs(t, s.Delete(ctx, "snap-1"), ErrNotFound)
}

func TestUUIDv7Generator(t *testing.T) {
	var gen UUIDv7Generator
	a, b := gen.Generate(), gen.Generate()
	assert.NotEqual(t, a, b)

	parsed, err := uuid.Parse(a)
	require.NoError(t, err)
	assert.Equal(t, uuid.Version(7), parsed.Version())
	assert.Len(t, a, 36)
}
