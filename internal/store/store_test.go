package store

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/decksync/decksync/internal/types"
)

// setupTestStore creates a temporary collection for testing.
func setupTestStore(t *testing.T) *Store {
	t.Helper()

	path := filepath.Join(t.TempDir(), "test.deck")
	st, err := Open(path)
	if err != nil {
		t.Fatalf("failed to open test store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	if err := st.InitSchema(context.Background()); err != nil {
		t.Fatalf("failed to initialize schema: %v", err)
	}
	return st
}

// addTemplate inserts a minimal template for tests that need one.
func addTemplate(t *testing.T, st *Store, id int64) {
	t.Helper()

	tmpl := &types.Template{
		ID:       id,
		Name:     "Basic",
		Fields:   []string{"Front", "Back"},
		Modified: 100,
	}
	if err := st.UpsertTemplate(context.Background(), tmpl); err != nil {
		t.Fatalf("failed to add template: %v", err)
	}
}

func TestUpsertAndGetNote(t *testing.T) {
	st := setupTestStore(t)
	ctx := context.Background()
	addTemplate(t, st, 1)

	note := &types.Note{
		ID:         10,
		TemplateID: 1,
		Fields:     []string{"hello", "world"},
		Tags:       []string{"greeting"},
		Modified:   200,
	}
	if err := st.UpsertNote(ctx, note); err != nil {
		t.Fatalf("UpsertNote failed: %v", err)
	}

	got, err := st.GetNote(ctx, 10)
	if err != nil {
		t.Fatalf("GetNote failed: %v", err)
	}
	if got.TemplateID != 1 || got.Modified != 200 {
		t.Errorf("unexpected note: %+v", got)
	}
	if len(got.Fields) != 2 || got.Fields[0] != "hello" {
		t.Errorf("unexpected fields: %v", got.Fields)
	}
	if len(got.Tags) != 1 || got.Tags[0] != "greeting" {
		t.Errorf("unexpected tags: %v", got.Tags)
	}
}

func TestUpsertReplacesByID(t *testing.T) {
	st := setupTestStore(t)
	ctx := context.Background()
	addTemplate(t, st, 1)

	note := &types.Note{ID: 10, TemplateID: 1, Fields: []string{"v1"}, Modified: 100}
	if err := st.UpsertNote(ctx, note); err != nil {
		t.Fatalf("first upsert failed: %v", err)
	}
	note.Fields = []string{"v2"}
	note.Modified = 150
	if err := st.UpsertNote(ctx, note); err != nil {
		t.Fatalf("second upsert failed: %v", err)
	}

	count, err := st.Count(ctx, types.KindNote)
	if err != nil {
		t.Fatalf("Count failed: %v", err)
	}
	if count != 1 {
		t.Errorf("expected 1 note after replay, got %d", count)
	}

	got, err := st.GetNote(ctx, 10)
	if err != nil {
		t.Fatalf("GetNote failed: %v", err)
	}
	if got.Fields[0] != "v2" || got.Modified != 150 {
		t.Errorf("upsert did not replace: %+v", got)
	}
}

func TestDeleteRecordsGraveyard(t *testing.T) {
	st := setupTestStore(t)
	ctx := context.Background()
	addTemplate(t, st, 1)

	note := &types.Note{ID: 10, TemplateID: 1, Fields: []string{"x"}, Modified: 100}
	if err := st.UpsertNote(ctx, note); err != nil {
		t.Fatalf("UpsertNote failed: %v", err)
	}

	if err := st.Delete(ctx, types.KindNote, 10); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}

	if _, err := st.GetNote(ctx, 10); err != sql.ErrNoRows {
		t.Errorf("expected ErrNoRows after delete, got %v", err)
	}

	ids, err := st.GraveyardSince(ctx, types.KindNote, 0)
	if err != nil {
		t.Fatalf("GraveyardSince failed: %v", err)
	}
	if len(ids) != 1 || ids[0] != 10 {
		t.Errorf("expected graveyard [10], got %v", ids)
	}
}

func TestReaddClearsTombstone(t *testing.T) {
	st := setupTestStore(t)
	ctx := context.Background()
	addTemplate(t, st, 1)

	note := &types.Note{ID: 10, TemplateID: 1, Fields: []string{"x"}, Modified: 100}
	if err := st.UpsertNote(ctx, note); err != nil {
		t.Fatalf("UpsertNote failed: %v", err)
	}
	if err := st.Delete(ctx, types.KindNote, 10); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}

	// Re-adding the id retires the tombstone, so the record is never
	// reported as both added and deleted.
	note.Modified = 200
	if err := st.UpsertNote(ctx, note); err != nil {
		t.Fatalf("re-add failed: %v", err)
	}

	ids, err := st.GraveyardSince(ctx, types.KindNote, 0)
	if err != nil {
		t.Fatalf("GraveyardSince failed: %v", err)
	}
	if len(ids) != 0 {
		t.Errorf("tombstone survived re-add: %v", ids)
	}

	stamps, err := st.ModifiedSince(ctx, types.KindNote, 0)
	if err != nil {
		t.Fatalf("ModifiedSince failed: %v", err)
	}
	if len(stamps) != 1 || stamps[0].ID != 10 {
		t.Errorf("re-added note not listed: %v", stamps)
	}
}

func TestDeleteMissingIsIdempotent(t *testing.T) {
	st := setupTestStore(t)
	ctx := context.Background()

	if err := st.Delete(ctx, types.KindNote, 99); err != nil {
		t.Fatalf("Delete of missing note failed: %v", err)
	}

	// No graveyard entry for a record that never existed.
	ids, err := st.GraveyardSince(ctx, types.KindNote, 0)
	if err != nil {
		t.Fatalf("GraveyardSince failed: %v", err)
	}
	if len(ids) != 0 {
		t.Errorf("expected empty graveyard, got %v", ids)
	}
}

func TestModifiedSinceWatermark(t *testing.T) {
	st := setupTestStore(t)
	ctx := context.Background()
	addTemplate(t, st, 1)

	for id := int64(1); id <= 3; id++ {
		note := &types.Note{ID: id, TemplateID: 1, Fields: []string{"x"}, Modified: 100 + id}
		if err := st.UpsertNote(ctx, note); err != nil {
			t.Fatalf("UpsertNote %d failed: %v", id, err)
		}
	}

	watermark, err := st.USN(ctx)
	if err != nil {
		t.Fatalf("USN failed: %v", err)
	}

	late := &types.Note{ID: 4, TemplateID: 1, Fields: []string{"x"}, Modified: 500}
	if err := st.UpsertNote(ctx, late); err != nil {
		t.Fatalf("UpsertNote 4 failed: %v", err)
	}

	all, err := st.ModifiedSince(ctx, types.KindNote, 0)
	if err != nil {
		t.Fatalf("ModifiedSince(0) failed: %v", err)
	}
	if len(all) != 4 {
		t.Errorf("expected 4 stamps at watermark 0, got %d", len(all))
	}
	for i := 1; i < len(all); i++ {
		if all[i-1].ID >= all[i].ID {
			t.Errorf("stamps not in ascending id order: %v", all)
		}
	}

	recent, err := st.ModifiedSince(ctx, types.KindNote, watermark+1)
	if err != nil {
		t.Fatalf("ModifiedSince(watermark) failed: %v", err)
	}
	if len(recent) != 1 || recent[0].ID != 4 {
		t.Errorf("expected only note 4 past watermark, got %v", recent)
	}
}

func TestMarkAllFresh(t *testing.T) {
	st := setupTestStore(t)
	ctx := context.Background()
	addTemplate(t, st, 1)

	note := &types.Note{ID: 10, TemplateID: 1, Fields: []string{"x"}, Modified: 99999}
	if err := st.UpsertNote(ctx, note); err != nil {
		t.Fatalf("UpsertNote failed: %v", err)
	}

	if err := st.MarkAllFresh(ctx); err != nil {
		t.Fatalf("MarkAllFresh failed: %v", err)
	}

	got, err := st.GetNote(ctx, 10)
	if err != nil {
		t.Fatalf("GetNote failed: %v", err)
	}
	if got.Modified != 1 {
		t.Errorf("expected modified=1 after MarkAllFresh, got %d", got.Modified)
	}

	tmpl, err := st.GetTemplate(ctx, 1)
	if err != nil {
		t.Fatalf("GetTemplate failed: %v", err)
	}
	if tmpl.Modified != 1 {
		t.Errorf("expected template modified=1, got %d", tmpl.Modified)
	}
}

func TestAddNoteTags(t *testing.T) {
	st := setupTestStore(t)
	ctx := context.Background()
	addTemplate(t, st, 1)

	note := &types.Note{ID: 10, TemplateID: 1, Fields: []string{"x"}, Tags: []string{"old"}, Modified: 100}
	if err := st.UpsertNote(ctx, note); err != nil {
		t.Fatalf("UpsertNote failed: %v", err)
	}

	// Missing id 99 must be skipped, not fail.
	if err := st.AddNoteTags(ctx, []int64{10, 99}, []string{"imported", "old"}); err != nil {
		t.Fatalf("AddNoteTags failed: %v", err)
	}

	got, err := st.GetNote(ctx, 10)
	if err != nil {
		t.Fatalf("GetNote failed: %v", err)
	}
	if len(got.Tags) != 2 {
		t.Fatalf("expected 2 tags, got %v", got.Tags)
	}
	if got.Tags[0] != "imported" || got.Tags[1] != "old" {
		t.Errorf("unexpected tags: %v", got.Tags)
	}
}

func TestRollbackDiscardsChanges(t *testing.T) {
	st := setupTestStore(t)
	ctx := context.Background()
	addTemplate(t, st, 1)

	if err := st.Begin(ctx); err != nil {
		t.Fatalf("Begin failed: %v", err)
	}
	note := &types.Note{ID: 10, TemplateID: 1, Fields: []string{"x"}, Modified: 100}
	if err := st.UpsertNote(ctx, note); err != nil {
		t.Fatalf("UpsertNote in tx failed: %v", err)
	}
	if err := st.Rollback(); err != nil {
		t.Fatalf("Rollback failed: %v", err)
	}

	count, err := st.Count(ctx, types.KindNote)
	if err != nil {
		t.Fatalf("Count failed: %v", err)
	}
	if count != 0 {
		t.Errorf("expected 0 notes after rollback, got %d", count)
	}
}

func TestCommitKeepsChanges(t *testing.T) {
	st := setupTestStore(t)
	ctx := context.Background()
	addTemplate(t, st, 1)

	if err := st.Begin(ctx); err != nil {
		t.Fatalf("Begin failed: %v", err)
	}
	note := &types.Note{ID: 10, TemplateID: 1, Fields: []string{"x"}, Modified: 100}
	if err := st.UpsertNote(ctx, note); err != nil {
		t.Fatalf("UpsertNote in tx failed: %v", err)
	}
	if err := st.Commit(); err != nil {
		t.Fatalf("Commit failed: %v", err)
	}

	count, err := st.Count(ctx, types.KindNote)
	if err != nil {
		t.Fatalf("Count failed: %v", err)
	}
	if count != 1 {
		t.Errorf("expected 1 note after commit, got %d", count)
	}
}

func TestMediaBookkeeping(t *testing.T) {
	st := setupTestStore(t)
	ctx := context.Background()

	entry := &types.MediaEntry{Filename: "audio.mp3", Hash: "abc123"}
	if err := st.UpsertMedia(ctx, entry); err != nil {
		t.Fatalf("UpsertMedia failed: %v", err)
	}

	entries, err := st.ListMedia(ctx)
	if err != nil {
		t.Fatalf("ListMedia failed: %v", err)
	}
	if len(entries) != 1 || entries[0].Filename != "audio.mp3" || entries[0].Hash != "abc123" {
		t.Errorf("unexpected media entries: %+v", entries)
	}
}
