package sync

import (
	"context"
	"fmt"

	"github.com/decksync/decksync/internal/types"
)

// Source is the read side of a store, sufficient to build a summary
// and to fetch full records for a payload. Implemented by *store.Store.
type Source interface {
	// ModifiedSince lists (id, modified) stamps for records of the
	// kind written at or after the USN watermark, ascending by id.
	ModifiedSince(ctx context.Context, kind types.Kind, usn int64) ([]types.Stamp, error)

	// GraveyardSince lists ids of records of the kind deleted at or
	// after the USN watermark, ascending.
	GraveyardSince(ctx context.Context, kind types.Kind, usn int64) ([]int64, error)

	GetTemplates(ctx context.Context, ids []int64) ([]*types.Template, error)
	GetNotes(ctx context.Context, ids []int64) ([]*types.Note, error)
	GetCards(ctx context.Context, ids []int64) ([]*types.Card, error)
}

// Destination is the write side of a store a payload is applied to.
// Implemented by *store.Store. The applier does not manage
// transactions; callers are expected to wrap Apply in a transactional
// scope on the destination.
type Destination interface {
	Source

	UpsertTemplate(ctx context.Context, t *types.Template) error
	UpsertNote(ctx context.Context, n *types.Note) error
	UpsertCard(ctx context.Context, c *types.Card) error
	Delete(ctx context.Context, kind types.Kind, id int64) error
	Exists(ctx context.Context, kind types.Kind, id int64) (bool, error)
	AddNoteTags(ctx context.Context, ids []int64, tags []string) error
}

// Summary is the compact description of a store's state since a USN
// watermark: per-kind (id, modified) stamps for everything written,
// and per-kind ids for everything deleted. A summary never carries
// full record content.
type Summary struct {
	Since   int64                       `json:"since"`
	Added   map[types.Kind][]types.Stamp `json:"added"`
	Deleted map[types.Kind][]int64       `json:"deleted"`
}

// NewSummary returns an empty summary with all kind lists initialized.
func NewSummary(since int64) *Summary {
	s := &Summary{
		Since:   since,
		Added:   make(map[types.Kind][]types.Stamp, len(types.Kinds)),
		Deleted: make(map[types.Kind][]int64, len(types.Kinds)),
	}
	for _, k := range types.Kinds {
		s.Added[k] = []types.Stamp{}
		s.Deleted[k] = []int64{}
	}
	return s
}

// Validate checks the summary's structural invariant: an id listed in
// Added for a kind must not also appear in Deleted for the same kind.
// A violation is reported as ErrInvalidState and must abort the merge.
func (s *Summary) Validate() error {
	for _, kind := range types.Kinds {
		deleted := make(map[int64]bool, len(s.Deleted[kind]))
		for _, id := range s.Deleted[kind] {
			deleted[id] = true
		}
		for _, st := range s.Added[kind] {
			if deleted[st.ID] {
				return fmt.Errorf("%w: %s %d in both added and deleted", ErrInvalidState, kind, st.ID)
			}
		}
	}
	return nil
}

// ClearDeletes empties every deletion list. The import driver uses
// this to guarantee that no deletion, from either side, survives into
// the generated payloads.
func (s *Summary) ClearDeletes() {
	for _, k := range types.Kinds {
		s.Deleted[k] = []int64{}
	}
}

// Payload is the computed diff to apply to one side. It carries full
// records for additions and bare ids for deletions, kind-indexed. The
// shape round-trips through encoding/json unchanged.
type Payload struct {
	Added   PayloadRecords `json:"added"`
	Deleted PayloadIDs     `json:"deleted"`
}

// PayloadRecords holds the full records one side must upsert.
type PayloadRecords struct {
	Notes     []*types.Note     `json:"notes"`
	Templates []*types.Template `json:"templates"`
	Cards     []*types.Card     `json:"cards"`
}

// PayloadIDs holds the record ids one side must delete.
type PayloadIDs struct {
	Notes     []int64 `json:"notes"`
	Templates []int64 `json:"templates"`
	Cards     []int64 `json:"cards"`
}

// NewPayload returns an empty payload with all lists initialized, so
// the wire form always carries arrays rather than nulls.
func NewPayload() *Payload {
	return &Payload{
		Added: PayloadRecords{
			Notes:     []*types.Note{},
			Templates: []*types.Template{},
			Cards:     []*types.Card{},
		},
		Deleted: PayloadIDs{
			Notes:     []int64{},
			Templates: []int64{},
			Cards:     []int64{},
		},
	}
}

// Empty reports whether the payload carries no additions and no
// deletions.
func (p *Payload) Empty() bool {
	return len(p.Added.Notes) == 0 && len(p.Added.Templates) == 0 && len(p.Added.Cards) == 0 &&
		len(p.Deleted.Notes) == 0 && len(p.Deleted.Templates) == 0 && len(p.Deleted.Cards) == 0
}

// deletedIDs returns the deletion list for a kind.
func (p *Payload) deletedIDs(kind types.Kind) []int64 {
	switch kind {
	case types.KindNote:
		return p.Deleted.Notes
	case types.KindTemplate:
		return p.Deleted.Templates
	case types.KindCard:
		return p.Deleted.Cards
	}
	return nil
}

// setDeletedIDs replaces the deletion list for a kind.
func (p *Payload) setDeletedIDs(kind types.Kind, ids []int64) {
	switch kind {
	case types.KindNote:
		p.Deleted.Notes = ids
	case types.KindTemplate:
		p.Deleted.Templates = ids
	case types.KindCard:
		p.Deleted.Cards = ids
	}
}

// Diff pairs the two payloads computed from a summary exchange:
// what the local store must receive and what the remote store must
// receive.
type Diff struct {
	ToLocal  *Payload `json:"to_local"`
	ToRemote *Payload `json:"to_remote"`
}
