// Package media implements the bulk, content-addressed reconciliation
// pass for binary media assets.
//
// Media assets have no meaningful modification-timestamp comparison
// model, so this pass is a separate state machine from the record-diff
// protocol: files are compared by name and content hash, and transfer
// is driven by existence rather than history. Two files sharing a name
// but not a hash are both retained under disambiguated names - a file
// is never silently overwritten, mirroring the record protocol's
// undelete-beats-delete policy.
package media

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// File describes one media asset on one side: its name and the hex
// sha256 of its content.
type File struct {
	Name string
	Hash string
}

// DirStore exposes a directory of media files for reconciliation.
// Writes are atomic per file: bytes land in a temp file which is then
// renamed into place, so an interrupted transfer never corrupts an
// already-reconciled file.
type DirStore struct {
	dir string
}

// NewDirStore creates a store over the given directory, creating it if
// needed.
func NewDirStore(dir string) (*DirStore, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create media directory: %w", err)
	}
	return &DirStore{dir: dir}, nil
}

// Dir returns the directory this store wraps.
func (d *DirStore) Dir() string {
	return d.dir
}

// List returns every regular file in the directory with its content
// hash, sorted by name.
func (d *DirStore) List() ([]File, error) {
	entries, err := os.ReadDir(d.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read media directory: %w", err)
	}

	var files []File
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		hash, err := d.hashFile(entry.Name())
		if err != nil {
			return nil, err
		}
		files = append(files, File{Name: entry.Name(), Hash: hash})
	}

	sort.Slice(files, func(i, j int) bool { return files[i].Name < files[j].Name })
	return files, nil
}

// Open opens a media file for reading.
func (d *DirStore) Open(name string) (io.ReadCloser, error) {
	f, err := os.Open(filepath.Join(d.dir, name))
	if err != nil {
		return nil, fmt.Errorf("failed to open media file %s: %w", name, err)
	}
	return f, nil
}

// Write stores a media file atomically: content is written to a temp
// file in the same directory and renamed into place.
func (d *DirStore) Write(name string, r io.Reader) error {
	tmp, err := os.CreateTemp(d.dir, ".transfer-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file for %s: %w", name, err)
	}
	tmpName := tmp.Name()

	if _, err := io.Copy(tmp, r); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to write media file %s: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to finish media file %s: %w", name, err)
	}

	if err := os.Rename(tmpName, filepath.Join(d.dir, name)); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to place media file %s: %w", name, err)
	}
	return nil
}

// hashFile computes the hex sha256 of a file's content.
func (d *DirStore) hashFile(name string) (string, error) {
	f, err := os.Open(filepath.Join(d.dir, name))
	if err != nil {
		return "", fmt.Errorf("failed to open media file %s: %w", name, err)
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("failed to hash media file %s: %w", name, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// disambiguate builds the conflict-copy name for a file whose name
// exists on the destination with different content: the first eight
// hex digits of the source hash are inserted before the extension
// (audio.mp3 -> audio.1a2b3c4d.mp3).
func disambiguate(name, hash string) string {
	tag := hash
	if len(tag) > 8 {
		tag = tag[:8]
	}
	ext := filepath.Ext(name)
	base := strings.TrimSuffix(name, ext)
	return base + "." + tag + ext
}
