// Package types provides the record model shared by the store, the sync
// protocol, and the import driver.
//
// A collection holds three kinds of versioned records: templates (field
// layout and render rules), notes (field values owned by a template),
// and cards (scheduling units referencing a note). Every record carries
// a stable id, a per-edit modification stamp, and the store-wide update
// sequence number (USN) it was last written under. Tags are plain
// strings carried on notes; they have no separate record identity on
// the wire.
package types

import (
	"fmt"
	"sort"
	"strings"
)

// Kind identifies a record kind. The values double as the wire names
// used in summaries and payloads.
type Kind string

const (
	// KindNote is a note record (field values + owning template).
	KindNote Kind = "notes"
	// KindTemplate is a template record (field layout + render rules).
	KindTemplate Kind = "templates"
	// KindCard is a card record (scheduling unit referencing a note).
	KindCard Kind = "cards"
)

// Kinds lists all record kinds in dependency order: templates before
// notes before cards. Additions must be applied in this order, since
// notes reference templates and cards reference notes.
var Kinds = []Kind{KindTemplate, KindNote, KindCard}

// Template describes the field layout and render rules for notes.
type Template struct {
	ID       int64    `json:"id"`
	Name     string   `json:"name"`
	Fields   []string `json:"fields"`
	Render   string   `json:"render,omitempty"`
	Modified int64    `json:"modified"`
	USN      int64    `json:"usn"`
}

// Validate checks that the template has valid field values.
func (t *Template) Validate() error {
	if t.ID == 0 {
		return fmt.Errorf("id is required")
	}
	if t.Name == "" {
		return fmt.Errorf("name is required")
	}
	if len(t.Fields) == 0 {
		return fmt.Errorf("at least one field is required")
	}
	return nil
}

// Note holds field values for a single template.
type Note struct {
	ID         int64    `json:"id"`
	TemplateID int64    `json:"template_id"`
	Fields     []string `json:"fields"`
	Tags       []string `json:"tags,omitempty"`
	Modified   int64    `json:"modified"`
	USN        int64    `json:"usn"`
}

// Validate checks that the note has valid field values.
func (n *Note) Validate() error {
	if n.ID == 0 {
		return fmt.Errorf("id is required")
	}
	if n.TemplateID == 0 {
		return fmt.Errorf("template_id is required")
	}
	return nil
}

// AddTags merges the given tags into the note's tag list. Existing
// tags are never removed; duplicates are dropped. Returns true if the
// tag list changed.
func (n *Note) AddTags(tags ...string) bool {
	seen := make(map[string]bool, len(n.Tags))
	for _, t := range n.Tags {
		seen[t] = true
	}

	changed := false
	for _, t := range tags {
		t = strings.TrimSpace(t)
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		n.Tags = append(n.Tags, t)
		changed = true
	}
	if changed {
		sort.Strings(n.Tags)
	}
	return changed
}

// Card is a scheduling unit referencing a note and a template ordinal.
type Card struct {
	ID       int64 `json:"id"`
	NoteID   int64 `json:"note_id"`
	Ordinal  int   `json:"ordinal"`
	Due      int64 `json:"due,omitempty"`
	Interval int   `json:"interval,omitempty"`
	Modified int64 `json:"modified"`
	USN      int64 `json:"usn"`
}

// Validate checks that the card has valid field values.
func (c *Card) Validate() error {
	if c.ID == 0 {
		return fmt.Errorf("id is required")
	}
	if c.NoteID == 0 {
		return fmt.Errorf("note_id is required")
	}
	if c.Ordinal < 0 {
		return fmt.Errorf("ordinal must not be negative (got %d)", c.Ordinal)
	}
	return nil
}

// MediaEntry is the bookkeeping row for a media asset. Identity is the
// filename; integrity is the content hash. Media assets are reconciled
// by the bulk media pass, not by the record-diff protocol.
type MediaEntry struct {
	Filename string `json:"filename"`
	Hash     string `json:"hash"`
	Deleted  bool   `json:"deleted,omitempty"`
	USN      int64  `json:"usn"`
}

// Validate checks that the media entry has valid field values.
func (m *MediaEntry) Validate() error {
	if m.Filename == "" {
		return fmt.Errorf("filename is required")
	}
	return nil
}

// Stamp pairs a record id with its modification time. Summaries are
// built from stamps so two stores can compare state without shipping
// full records.
type Stamp struct {
	ID       int64 `json:"id"`
	Modified int64 `json:"modified"`
}

// SplitTags splits a space-delimited tag string into individual tags,
// dropping empty entries.
func SplitTags(s string) []string {
	return strings.Fields(s)
}
