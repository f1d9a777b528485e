package store

import (
	"context"
	"fmt"

	"github.com/decksync/decksync/internal/types"
)

// UpsertMedia records or updates the bookkeeping row for a media
// asset. Identity is the filename.
func (s *Store) UpsertMedia(ctx context.Context, m *types.MediaEntry) error {
	if err := m.Validate(); err != nil {
		return fmt.Errorf("invalid media entry: %w", err)
	}

	usn, err := s.NextUSN(ctx)
	if err != nil {
		return err
	}

	deleted := 0
	if m.Deleted {
		deleted = 1
	}

	query := `
	INSERT INTO media (filename, hash, deleted, usn)
	VALUES (?, ?, ?, ?)
	ON CONFLICT(filename) DO UPDATE SET
		hash = excluded.hash,
		deleted = excluded.deleted,
		usn = excluded.usn
	`

	if _, err := s.db().ExecContext(ctx, query, m.Filename, m.Hash, deleted, usn); err != nil {
		return fmt.Errorf("failed to upsert media %s: %w", m.Filename, err)
	}
	m.USN = usn
	return nil
}

// ListMedia returns all media bookkeeping rows, in filename order.
func (s *Store) ListMedia(ctx context.Context) ([]*types.MediaEntry, error) {
	rows, err := s.db().QueryContext(ctx,
		"SELECT filename, hash, deleted, usn FROM media ORDER BY filename ASC")
	if err != nil {
		return nil, fmt.Errorf("failed to query media: %w", err)
	}
	defer rows.Close()

	var entries []*types.MediaEntry
	for rows.Next() {
		var m types.MediaEntry
		var deleted int
		if err := rows.Scan(&m.Filename, &m.Hash, &deleted, &m.USN); err != nil {
			return nil, fmt.Errorf("failed to scan media entry: %w", err)
		}
		m.Deleted = deleted != 0
		entries = append(entries, &m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating media: %w", err)
	}
	return entries, nil
}
