package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
)

// ErrNotFound is returned when no snapshot matches a lookup.
var ErrNotFound = errors.New("snapshot not found")

// Info is the catalogue entry of a snapshot.
type Info struct {
	ID    string
	Seq   int64
	Label string
	Step  int64
	Tags  int
}

// Snapshot is a catalogue entry together with its tagged payload.
type Snapshot struct {
	Info
	Entries map[string][]byte
}

// Put writes a snapshot and all of its entries in a single transaction and
// returns its catalogue entry. The sequence number is one more than the
// largest already stored.
func (s *Store) Put(ctx context.Context, id, label string, step int64, entries map[string][]byte) (Info, error) {
	if id == "" {
		return Info{}, fmt.Errorf("put snapshot: empty id")
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Info{}, fmt.Errorf("put snapshot: begin: %w", err)
	}
	defer tx.Rollback()

	var seq int64
	if err := tx.QueryRowContext(ctx, `SELECT COALESCE(MAX(seq), 0) + 1 FROM snapshots`).Scan(&seq); err != nil {
		return Info{}, fmt.Errorf("put snapshot: next seq: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO snapshots (id, seq, label, step)
		VALUES (?, ?, ?, ?)
	`, id, seq, label, step); err != nil {
		return Info{}, fmt.Errorf("put snapshot %s: %w", id, err)
	}

	// insert in tag order so the database file is reproducible
	tags := make([]string, 0, len(entries))
	for tag := range entries {
		tags = append(tags, tag)
	}
	sort.Strings(tags)
	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO snapshot_entries (snapshot_id, tag, value)
		VALUES (?, ?, ?)
	`)
	if err != nil {
		return Info{}, fmt.Errorf("put snapshot %s: prepare: %w", id, err)
	}
	defer stmt.Close()
	for _, tag := range tags {
		value := entries[tag]
		if value == nil {
			value = []byte{}
		}
		if _, err := stmt.ExecContext(ctx, id, tag, value); err != nil {
			return Info{}, fmt.Errorf("put snapshot %s: tag %q: %w", id, tag, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return Info{}, fmt.Errorf("put snapshot %s: commit: %w", id, err)
	}
	return Info{ID: id, Seq: seq, Label: label, Step: step, Tags: len(tags)}, nil
}

// Get loads a snapshot by id.
func (s *Store) Get(ctx context.Context, id string) (Snapshot, error) {
	info, err := s.scanInfo(s.db.QueryRowContext(ctx, infoQuery+` WHERE s.id = ? GROUP BY s.id`, id))
	if err != nil {
		return Snapshot{}, fmt.Errorf("get snapshot %s: %w", id, err)
	}
	return s.withEntries(ctx, info)
}

// Latest loads the snapshot with the highest sequence number. A non-empty
// label restricts the lookup to snapshots carrying it.
func (s *Store) Latest(ctx context.Context, label string) (Snapshot, error) {
	var row *sql.Row
	if label == "" {
		row = s.db.QueryRowContext(ctx, infoQuery+` GROUP BY s.id ORDER BY s.seq DESC LIMIT 1`)
	} else {
		row = s.db.QueryRowContext(ctx, infoQuery+` WHERE s.label = ? GROUP BY s.id ORDER BY s.seq DESC LIMIT 1`, label)
	}
	info, err := s.scanInfo(row)
	if err != nil {
		return Snapshot{}, fmt.Errorf("latest snapshot: %w", err)
	}
	return s.withEntries(ctx, info)
}

// List returns every catalogue entry in sequence order.
func (s *Store) List(ctx context.Context) ([]Info, error) {
	rows, err := s.db.QueryContext(ctx, infoQuery+` GROUP BY s.id ORDER BY s.seq ASC, s.id COLLATE BINARY ASC`)
	if err != nil {
		return nil, fmt.Errorf("list snapshots: %w", err)
	}
	defer rows.Close()

	var out []Info
	for rows.Next() {
		var info Info
		if err := rows.Scan(&info.ID, &info.Seq, &info.Label, &info.Step, &info.Tags); err != nil {
			return nil, fmt.Errorf("list snapshots: scan: %w", err)
		}
		out = append(out, info)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list snapshots: %w", err)
	}
	return out, nil
}

// Delete removes a snapshot and its entries.
func (s *Store) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM snapshots WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete snapshot %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete snapshot %s: %w", id, err)
	}
	if n == 0 {
		return fmt.Errorf("delete snapshot %s: %w", id, ErrNotFound)
	}
	return nil
}

const infoQuery = `
	SELECT s.id, s.seq, s.label, s.step, COUNT(e.tag)
	FROM snapshots s
	LEFT JOIN snapshot_entries e ON e.snapshot_id = s.id`

func (s *Store) scanInfo(row *sql.Row) (Info, error) {
	var info Info
	err := row.Scan(&info.ID, &info.Seq, &info.Label, &info.Step, &info.Tags)
	if errors.Is(err, sql.ErrNoRows) {
		return Info{}, ErrNotFound
	}
	return info, err
}

func (s *Store) withEntries(ctx context.Context, info Info) (Snapshot, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT tag, value FROM snapshot_entries
		WHERE snapshot_id = ?
		ORDER BY tag ASC
	`, info.ID)
	if err != nil {
		return Snapshot{}, fmt.Errorf("load entries of %s: %w", info.ID, err)
	}
	defer rows.Close()

	snap := Snapshot{Info: info, Entries: make(map[string][]byte, info.Tags)}
	for rows.Next() {
		var tag string
		var value []byte
		if err := rows.Scan(&tag, &value); err != nil {
			return Snapshot{}, fmt.Errorf("load entries of %s: scan: %w", info.ID, err)
		}
		snap.Entries[tag] = value
	}
	if err := rows.Err(); err != nil {
		return Snapshot{}, fmt.Errorf("load entries of %s: %w", info.ID, err)
	}
	return snap, nil
}
