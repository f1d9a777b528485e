package sync

import (
	"context"
	"io"
	"log"
	"path/filepath"
	"testing"

	"github.com/decksync/decksync/internal/store"
	"github.com/decksync/decksync/internal/types"
)

// setupTestStore creates a temporary collection for merge tests.
func setupTestStore(t *testing.T) *store.Store {
	t.Helper()

	path := filepath.Join(t.TempDir(), "test.deck")
	st, err := store.Open(path)
	if err != nil {
		t.Fatalf("failed to open test store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	if err := st.InitSchema(context.Background()); err != nil {
		t.Fatalf("failed to initialize schema: %v", err)
	}
	return st
}

// quietLogger silences merge and apply logging in tests.
func quietLogger() *log.Logger {
	return log.New(io.Discard, "", 0)
}

func addTemplate(t *testing.T, st *store.Store, id, modified int64) {
	t.Helper()
	tmpl := &types.Template{
		ID:       id,
		Name:     "Basic",
		Fields:   []string{"Front", "Back"},
		Modified: modified,
	}
	if err := st.UpsertTemplate(context.Background(), tmpl); err != nil {
		t.Fatalf("failed to add template %d: %v", id, err)
	}
}

func addNote(t *testing.T, st *store.Store, id, templateID, modified int64, front string) {
	t.Helper()
	n := &types.Note{
		ID:         id,
		TemplateID: templateID,
		Fields:     []string{front, "back"},
		Modified:   modified,
	}
	if err := st.UpsertNote(context.Background(), n); err != nil {
		t.Fatalf("failed to add note %d: %v", id, err)
	}
}

func addCard(t *testing.T, st *store.Store, id, noteID, modified int64) {
	t.Helper()
	c := &types.Card{
		ID:       id,
		NoteID:   noteID,
		Ordinal:  0,
		Modified: modified,
	}
	if err := st.UpsertCard(context.Background(), c); err != nil {
		t.Fatalf("failed to add card %d: %v", id, err)
	}
}

func deleteRecord(t *testing.T, st *store.Store, kind types.Kind, id int64) {
	t.Helper()
	if err := st.Delete(context.Background(), kind, id); err != nil {
		t.Fatalf("failed to delete %s %d: %v", kind, id, err)
	}
}
