package media

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"log"
	"os"
	"path/filepath"
	"testing"

	"github.com/decksync/decksync/internal/sync"
)

// setupDirs creates a source and destination media directory pair.
func setupDirs(t *testing.T) (*DirStore, *DirStore) {
	t.Helper()

	src, err := NewDirStore(filepath.Join(t.TempDir(), "src.media"))
	if err != nil {
		t.Fatalf("failed to create source store: %v", err)
	}
	dst, err := NewDirStore(filepath.Join(t.TempDir(), "dst.media"))
	if err != nil {
		t.Fatalf("failed to create destination store: %v", err)
	}
	return src, dst
}

func writeFile(t *testing.T, d *DirStore, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(d.Dir(), name), []byte(content), 0644); err != nil {
		t.Fatalf("failed to write %s: %v", name, err)
	}
}

func readFile(t *testing.T, d *DirStore, name string) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(d.Dir(), name))
	if err != nil {
		t.Fatalf("failed to read %s: %v", name, err)
	}
	return string(data)
}

func quietConfig() *Config {
	return &Config{Retries: 0, Logger: log.New(io.Discard, "", 0)}
}

func TestSyncCopiesMissingFiles(t *testing.T) {
	src, dst := setupDirs(t)
	writeFile(t, src, "audio.mp3", "sound")
	writeFile(t, src, "image.png", "pixels")

	s := NewSyncer(src, dst, quietConfig())
	result, err := s.Sync(context.Background())
	if err != nil {
		t.Fatalf("Sync failed: %v", err)
	}

	if len(result.Copied) != 2 {
		t.Errorf("expected 2 copies, got %v", result.Copied)
	}
	if got := readFile(t, dst, "audio.mp3"); got != "sound" {
		t.Errorf("audio.mp3 = %q", got)
	}
	if s.State() != StateReconciled {
		t.Errorf("expected reconciled state, got %v", s.State())
	}
}

func TestSyncSkipsIdenticalFiles(t *testing.T) {
	src, dst := setupDirs(t)
	writeFile(t, src, "audio.mp3", "sound")
	writeFile(t, dst, "audio.mp3", "sound")

	result, err := NewSyncer(src, dst, quietConfig()).Sync(context.Background())
	if err != nil {
		t.Fatalf("Sync failed: %v", err)
	}
	if result.Skipped != 1 || len(result.Copied) != 0 {
		t.Errorf("expected 1 skip and 0 copies, got %+v", result)
	}
}

func TestSyncKeepsBothConflictingVariants(t *testing.T) {
	src, dst := setupDirs(t)
	writeFile(t, src, "audio.mp3", "source variant")
	writeFile(t, dst, "audio.mp3", "destination variant")

	result, err := NewSyncer(src, dst, quietConfig()).Sync(context.Background())
	if err != nil {
		t.Fatalf("Sync failed: %v", err)
	}

	if len(result.Renamed) != 1 {
		t.Fatalf("expected 1 rename, got %+v", result)
	}

	// The destination's own file is untouched.
	if got := readFile(t, dst, "audio.mp3"); got != "destination variant" {
		t.Errorf("destination file overwritten: %q", got)
	}

	// The source variant lands under the hash-tagged name.
	sum := sha256.Sum256([]byte("source variant"))
	want := "audio." + hex.EncodeToString(sum[:])[:8] + ".mp3"
	if result.Renamed[0] != want {
		t.Errorf("renamed to %q, want %q", result.Renamed[0], want)
	}
	if got := readFile(t, dst, want); got != "source variant" {
		t.Errorf("disambiguated file = %q", got)
	}
}

func TestSyncIsIdempotent(t *testing.T) {
	src, dst := setupDirs(t)
	writeFile(t, src, "audio.mp3", "source variant")
	writeFile(t, dst, "audio.mp3", "destination variant")
	writeFile(t, src, "image.png", "pixels")

	if _, err := NewSyncer(src, dst, quietConfig()).Sync(context.Background()); err != nil {
		t.Fatalf("first pass failed: %v", err)
	}
	result, err := NewSyncer(src, dst, quietConfig()).Sync(context.Background())
	if err != nil {
		t.Fatalf("second pass failed: %v", err)
	}

	// Everything already in place: the conflicting name still differs
	// (the destination kept its variant), so it is re-resolved to the
	// same disambiguated name, which now matches by hash and is skipped
	// on the copy. No new names may appear.
	if len(result.Copied) != 0 {
		t.Errorf("second pass copied files again: %v", result.Copied)
	}

	files, err := dst.List()
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(files) != 3 {
		t.Errorf("expected 3 destination files, got %d: %+v", len(files), files)
	}
}

func TestSyncCancellation(t *testing.T) {
	src, dst := setupDirs(t)
	writeFile(t, src, "audio.mp3", "sound")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	s := NewSyncer(src, dst, quietConfig())
	_, err := s.Sync(ctx)
	if !errors.Is(err, sync.ErrInterrupted) {
		t.Errorf("expected ErrInterrupted, got %v", err)
	}
	if s.State() != StateAborted {
		t.Errorf("expected aborted state, got %v", s.State())
	}
}

func TestSyncRecordsPerFileFailures(t *testing.T) {
	if os.Getuid() == 0 {
		t.Skip("directory permissions are not enforced for root")
	}

	src, dst := setupDirs(t)
	writeFile(t, src, "audio.mp3", "sound")

	// An unwritable destination makes every transfer fail without
	// aborting the pass.
	if err := os.Chmod(dst.Dir(), 0555); err != nil {
		t.Fatalf("chmod failed: %v", err)
	}
	t.Cleanup(func() { _ = os.Chmod(dst.Dir(), 0755) })

	result, err := NewSyncer(src, dst, quietConfig()).Sync(context.Background())
	if err != nil {
		t.Fatalf("Sync failed: %v", err)
	}

	if len(result.Failed) != 1 || result.Failed[0].Name != "audio.mp3" {
		t.Errorf("expected audio.mp3 to fail, got %+v", result.Failed)
	}
	if len(result.Copied) != 0 {
		t.Errorf("nothing should have landed: %v", result.Copied)
	}
}

func TestDisambiguate(t *testing.T) {
	tests := []struct {
		name string
		hash string
		want string
	}{
		{"audio.mp3", "1a2b3c4d5e6f", "audio.1a2b3c4d.mp3"},
		{"noext", "1a2b3c4d5e6f", "noext.1a2b3c4d"},
		{"a.b.c.png", "ffff0000eeee", "a.b.c.ffff0000.png"},
	}
	for _, tt := range tests {
		if got := disambiguate(tt.name, tt.hash); got != tt.want {
			t.Errorf("disambiguate(%q, %q) = %q, want %q", tt.name, tt.hash, got, tt.want)
		}
	}
}
