package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/decksync/decksync/internal/types"
)

// kindTable maps a record kind to its table name. The kind values are
// a closed set, so the switch guards against query injection from
// malformed wire data.
func kindTable(kind types.Kind) (string, error) {
	switch kind {
	case types.KindNote:
		return "notes", nil
	case types.KindTemplate:
		return "templates", nil
	case types.KindCard:
		return "cards", nil
	default:
		return "", fmt.Errorf("unknown record kind %q", kind)
	}
}

// clearTombstone removes the graveyard entry for a re-added record.
// An undelete retires the tombstone, so a summary never lists the id
// as both added and deleted.
func (s *Store) clearTombstone(ctx context.Context, kind types.Kind, id int64) error {
	_, err := s.db().ExecContext(ctx,
		"DELETE FROM graveyard WHERE kind = ? AND id = ?", string(kind), id)
	if err != nil {
		return fmt.Errorf("failed to clear tombstone for %s %d: %w", kind, id, err)
	}
	return nil
}

// UpsertTemplate inserts or updates a template, stamping it with the
// next USN. The record's Modified stamp is preserved as given; callers
// that author an edit (rather than replay one) should set it to
// Clock() first.
func (s *Store) UpsertTemplate(ctx context.Context, t *types.Template) error {
	if err := t.Validate(); err != nil {
		return fmt.Errorf("invalid template: %w", err)
	}

	usn, err := s.NextUSN(ctx)
	if err != nil {
		return err
	}

	fieldsJSON, err := json.Marshal(t.Fields)
	if err != nil {
		return fmt.Errorf("failed to marshal template fields: %w", err)
	}

	query := `
	INSERT INTO templates (id, name, fields, render, modified, usn)
	VALUES (?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		name = excluded.name,
		fields = excluded.fields,
		render = excluded.render,
		modified = excluded.modified,
		usn = excluded.usn
	`

	_, err = s.db().ExecContext(ctx, query,
		t.ID, t.Name, string(fieldsJSON), t.Render, t.Modified, usn)
	if err != nil {
		return fmt.Errorf("failed to upsert template %d: %w", t.ID, err)
	}
	if err := s.clearTombstone(ctx, types.KindTemplate, t.ID); err != nil {
		return err
	}
	t.USN = usn
	return nil
}

// UpsertNote inserts or updates a note, stamping it with the next USN.
func (s *Store) UpsertNote(ctx context.Context, n *types.Note) error {
	if err := n.Validate(); err != nil {
		return fmt.Errorf("invalid note: %w", err)
	}

	usn, err := s.NextUSN(ctx)
	if err != nil {
		return err
	}

	fieldsJSON, err := json.Marshal(n.Fields)
	if err != nil {
		return fmt.Errorf("failed to marshal note fields: %w", err)
	}
	tags := n.Tags
	if tags == nil {
		tags = []string{}
	}
	tagsJSON, err := json.Marshal(tags)
	if err != nil {
		return fmt.Errorf("failed to marshal note tags: %w", err)
	}

	query := `
	INSERT INTO notes (id, template_id, fields, tags, modified, usn)
	VALUES (?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		template_id = excluded.template_id,
		fields = excluded.fields,
		tags = excluded.tags,
		modified = excluded.modified,
		usn = excluded.usn
	`

	_, err = s.db().ExecContext(ctx, query,
		n.ID, n.TemplateID, string(fieldsJSON), string(tagsJSON), n.Modified, usn)
	if err != nil {
		return fmt.Errorf("failed to upsert note %d: %w", n.ID, err)
	}
	if err := s.clearTombstone(ctx, types.KindNote, n.ID); err != nil {
		return err
	}
	n.USN = usn
	return nil
}

// UpsertCard inserts or updates a card, stamping it with the next USN.
func (s *Store) UpsertCard(ctx context.Context, c *types.Card) error {
	if err := c.Validate(); err != nil {
		return fmt.Errorf("invalid card: %w", err)
	}

	usn, err := s.NextUSN(ctx)
	if err != nil {
		return err
	}

	query := `
	INSERT INTO cards (id, note_id, ordinal, due, interval, modified, usn)
	VALUES (?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		note_id = excluded.note_id,
		ordinal = excluded.ordinal,
		due = excluded.due,
		interval = excluded.interval,
		modified = excluded.modified,
		usn = excluded.usn
	`

	_, err = s.db().ExecContext(ctx, query,
		c.ID, c.NoteID, c.Ordinal, c.Due, c.Interval, c.Modified, usn)
	if err != nil {
		return fmt.Errorf("failed to upsert card %d: %w", c.ID, err)
	}
	if err := s.clearTombstone(ctx, types.KindCard, c.ID); err != nil {
		return err
	}
	c.USN = usn
	return nil
}

// Delete removes a record of the given kind and logs it in the
// graveyard so incremental summaries can report the deletion.
// Returns nil if the record doesn't exist (idempotent); in that case
// no graveyard entry is written.
func (s *Store) Delete(ctx context.Context, kind types.Kind, id int64) error {
	table, err := kindTable(kind)
	if err != nil {
		return err
	}

	res, err := s.db().ExecContext(ctx, "DELETE FROM "+table+" WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete %s %d: %w", kind, id, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check delete of %s %d: %w", kind, id, err)
	}
	if affected == 0 {
		return nil
	}

	usn, err := s.NextUSN(ctx)
	if err != nil {
		return err
	}
	_, err = s.db().ExecContext(ctx, `
	INSERT INTO graveyard (kind, id, usn) VALUES (?, ?, ?)
	ON CONFLICT(kind, id) DO UPDATE SET usn = excluded.usn
	`, string(kind), id, usn)
	if err != nil {
		return fmt.Errorf("failed to log deletion of %s %d: %w", kind, id, err)
	}
	return nil
}

// Exists reports whether a record of the given kind and id is present.
func (s *Store) Exists(ctx context.Context, kind types.Kind, id int64) (bool, error) {
	table, err := kindTable(kind)
	if err != nil {
		return false, err
	}
	var one int
	err = s.db().QueryRowContext(ctx, "SELECT 1 FROM "+table+" WHERE id = ?", id).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check %s %d: %w", kind, id, err)
	}
	return true, nil
}

// Count returns the number of records of the given kind.
func (s *Store) Count(ctx context.Context, kind types.Kind) (int, error) {
	table, err := kindTable(kind)
	if err != nil {
		return 0, err
	}
	var count int
	if err := s.db().QueryRowContext(ctx, "SELECT COUNT(*) FROM "+table).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count %s: %w", kind, err)
	}
	return count, nil
}

// ModifiedSince returns (id, modified) stamps for every record of the
// given kind whose USN is at or after the watermark, in ascending id
// order. A watermark of 0 lists the whole store.
func (s *Store) ModifiedSince(ctx context.Context, kind types.Kind, usn int64) ([]types.Stamp, error) {
	table, err := kindTable(kind)
	if err != nil {
		return nil, err
	}

	rows, err := s.db().QueryContext(ctx,
		"SELECT id, modified FROM "+table+" WHERE usn >= ? ORDER BY id ASC", usn)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s modified since %d: %w", kind, usn, err)
	}
	defer rows.Close()

	var stamps []types.Stamp
	for rows.Next() {
		var st types.Stamp
		if err := rows.Scan(&st.ID, &st.Modified); err != nil {
			return nil, fmt.Errorf("failed to scan %s stamp: %w", kind, err)
		}
		stamps = append(stamps, st)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating %s stamps: %w", kind, err)
	}
	return stamps, nil
}

// GraveyardSince returns the ids of records of the given kind deleted
// at or after the watermark, in ascending id order.
func (s *Store) GraveyardSince(ctx context.Context, kind types.Kind, usn int64) ([]int64, error) {
	if _, err := kindTable(kind); err != nil {
		return nil, err
	}

	rows, err := s.db().QueryContext(ctx,
		"SELECT id FROM graveyard WHERE kind = ? AND usn >= ? ORDER BY id ASC", string(kind), usn)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s graveyard since %d: %w", kind, usn, err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan graveyard id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating graveyard: %w", err)
	}
	return ids, nil
}

// idPlaceholders builds a "(?, ?, ...)" clause and matching args for
// an IN query over record ids.
func idPlaceholders(ids []int64) (string, []interface{}) {
	marks := make([]string, len(ids))
	args := make([]interface{}, len(ids))
	for i, id := range ids {
		marks[i] = "?"
		args[i] = id
	}
	return "(" + strings.Join(marks, ", ") + ")", args
}

// GetTemplate retrieves a single template by id.
// Returns sql.ErrNoRows if the template is not found.
func (s *Store) GetTemplate(ctx context.Context, id int64) (*types.Template, error) {
	ts, err := s.GetTemplates(ctx, []int64{id})
	if err != nil {
		return nil, err
	}
	if len(ts) == 0 {
		return nil, sql.ErrNoRows
	}
	return ts[0], nil
}

// GetTemplates retrieves templates by id, in ascending id order.
// Missing ids are silently omitted.
func (s *Store) GetTemplates(ctx context.Context, ids []int64) ([]*types.Template, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	clause, args := idPlaceholders(ids)

	rows, err := s.db().QueryContext(ctx,
		"SELECT id, name, fields, render, modified, usn FROM templates WHERE id IN "+clause+" ORDER BY id ASC",
		args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query templates: %w", err)
	}
	defer rows.Close()

	var templates []*types.Template
	for rows.Next() {
		var t types.Template
		var fieldsJSON string
		if err := rows.Scan(&t.ID, &t.Name, &fieldsJSON, &t.Render, &t.Modified, &t.USN); err != nil {
			return nil, fmt.Errorf("failed to scan template: %w", err)
		}
		if err := json.Unmarshal([]byte(fieldsJSON), &t.Fields); err != nil {
			return nil, fmt.Errorf("failed to unmarshal template fields: %w", err)
		}
		templates = append(templates, &t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating templates: %w", err)
	}
	return templates, nil
}

// GetNote retrieves a single note by id.
// Returns sql.ErrNoRows if the note is not found.
func (s *Store) GetNote(ctx context.Context, id int64) (*types.Note, error) {
	ns, err := s.GetNotes(ctx, []int64{id})
	if err != nil {
		return nil, err
	}
	if len(ns) == 0 {
		return nil, sql.ErrNoRows
	}
	return ns[0], nil
}

// GetNotes retrieves notes by id, in ascending id order.
// Missing ids are silently omitted.
func (s *Store) GetNotes(ctx context.Context, ids []int64) ([]*types.Note, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	clause, args := idPlaceholders(ids)

	rows, err := s.db().QueryContext(ctx,
		"SELECT id, template_id, fields, tags, modified, usn FROM notes WHERE id IN "+clause+" ORDER BY id ASC",
		args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query notes: %w", err)
	}
	defer rows.Close()

	var notes []*types.Note
	for rows.Next() {
		n, err := scanNote(rows)
		if err != nil {
			return nil, err
		}
		notes = append(notes, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating notes: %w", err)
	}
	return notes, nil
}

// scanNote scans one note row including its JSON columns.
func scanNote(rows *sql.Rows) (*types.Note, error) {
	var n types.Note
	var fieldsJSON, tagsJSON string
	if err := rows.Scan(&n.ID, &n.TemplateID, &fieldsJSON, &tagsJSON, &n.Modified, &n.USN); err != nil {
		return nil, fmt.Errorf("failed to scan note: %w", err)
	}
	if err := json.Unmarshal([]byte(fieldsJSON), &n.Fields); err != nil {
		return nil, fmt.Errorf("failed to unmarshal note fields: %w", err)
	}
	if tagsJSON != "" && tagsJSON != "null" {
		if err := json.Unmarshal([]byte(tagsJSON), &n.Tags); err != nil {
			return nil, fmt.Errorf("failed to unmarshal note tags: %w", err)
		}
	} else {
		n.Tags = []string{}
	}
	return &n, nil
}

// GetCard retrieves a single card by id.
// Returns sql.ErrNoRows if the card is not found.
func (s *Store) GetCard(ctx context.Context, id int64) (*types.Card, error) {
	cs, err := s.GetCards(ctx, []int64{id})
	if err != nil {
		return nil, err
	}
	if len(cs) == 0 {
		return nil, sql.ErrNoRows
	}
	return cs[0], nil
}

// GetCards retrieves cards by id, in ascending id order.
// Missing ids are silently omitted.
func (s *Store) GetCards(ctx context.Context, ids []int64) ([]*types.Card, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	clause, args := idPlaceholders(ids)

	rows, err := s.db().QueryContext(ctx,
		"SELECT id, note_id, ordinal, due, interval, modified, usn FROM cards WHERE id IN "+clause+" ORDER BY id ASC",
		args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query cards: %w", err)
	}
	defer rows.Close()

	var cards []*types.Card
	for rows.Next() {
		var c types.Card
		if err := rows.Scan(&c.ID, &c.NoteID, &c.Ordinal, &c.Due, &c.Interval, &c.Modified, &c.USN); err != nil {
			return nil, fmt.Errorf("failed to scan card: %w", err)
		}
		cards = append(cards, &c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating cards: %w", err)
	}
	return cards, nil
}

// AddNoteTags attaches the given tags to each of the notes, bumping
// their modification stamps. Ids that don't resolve to a note are
// skipped. Purely additive: existing tags are never removed.
func (s *Store) AddNoteTags(ctx context.Context, ids []int64, tags []string) error {
	if len(ids) == 0 || len(tags) == 0 {
		return nil
	}

	notes, err := s.GetNotes(ctx, ids)
	if err != nil {
		return err
	}

	for _, n := range notes {
		if !n.AddTags(tags...) {
			continue
		}
		n.Modified = Clock()
		if err := s.UpsertNote(ctx, n); err != nil {
			return fmt.Errorf("failed to tag note %d: %w", n.ID, err)
		}
	}
	return nil
}

// MarkAllFresh stamps every record in the store as freshly modified
// (modified = 1) at the current USN. The import driver uses this on
// the foreign store so a watermark-0 summary treats the entire foreign
// collection as new regardless of its real history, and so the
// conflict resolver prefers the local version wherever both sides
// carry a record.
func (s *Store) MarkAllFresh(ctx context.Context) error {
	usn, err := s.NextUSN(ctx)
	if err != nil {
		return err
	}
	for _, table := range []string{"templates", "notes", "cards"} {
		if _, err := s.db().ExecContext(ctx,
			"UPDATE "+table+" SET modified = 1, usn = ?", usn); err != nil {
			return fmt.Errorf("failed to mark %s fresh: %w", table, err)
		}
	}
	return nil
}
