package sync

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/decksync/decksync/internal/types"
)

// Result names the record ids an apply actually touched. Callers use
// it to act on freshly created records only, e.g. tagging newly
// imported notes without re-tagging pre-existing ones.
type Result struct {
	Added   map[types.Kind][]int64 `json:"added"`
	Updated map[types.Kind][]int64 `json:"updated"`
	Deleted map[types.Kind][]int64 `json:"deleted"`
}

// newResult returns a Result with all kind lists initialized.
func newResult() *Result {
	r := &Result{
		Added:   make(map[types.Kind][]int64, len(types.Kinds)),
		Updated: make(map[types.Kind][]int64, len(types.Kinds)),
		Deleted: make(map[types.Kind][]int64, len(types.Kinds)),
	}
	for _, k := range types.Kinds {
		r.Added[k] = []int64{}
		r.Updated[k] = []int64{}
		r.Deleted[k] = []int64{}
	}
	return r
}

// AddedNotes returns the ids of notes newly created by the apply.
func (r *Result) AddedNotes() []int64 {
	return r.Added[types.KindNote]
}

// Applier writes payloads into a destination store.
type Applier struct {
	dst    Destination
	logger *log.Logger
}

// NewApplier creates an applier for the destination store.
//
// If logger is nil, a default logger writing to stderr is used.
func NewApplier(dst Destination, logger *log.Logger) *Applier {
	if logger == nil {
		logger = log.New(os.Stderr, "[apply] ", log.LstdFlags)
	}
	return &Applier{dst: dst, logger: logger}
}

// Apply writes a payload into the destination store and reports which
// ids were actually added, updated, and deleted.
//
// Additions are upserted by id: an id colliding with an existing
// record replaces it, since the conflict was already resolved
// upstream. Template additions are applied before notes before cards;
// notes reference templates and cards reference notes, so applying out
// of order would create dangling references. Deletions are applied
// last, per the undelete-beats-delete policy. Applying the same
// payload twice does not duplicate records.
//
// After all additions, every note's template reference and every
// card's note reference must resolve in the destination; otherwise the
// whole apply is rejected with ErrDanglingReference. The applier does
// not manage transactions - callers wrap Apply in a transactional
// scope on the destination so a rejected apply leaves no partial
// state.
func (a *Applier) Apply(ctx context.Context, p *Payload) (*Result, error) {
	if err := interrupted(ctx); err != nil {
		return nil, err
	}

	result := newResult()

	for _, t := range p.Added.Templates {
		if err := a.upsert(ctx, types.KindTemplate, t.ID, result, func() error {
			return a.dst.UpsertTemplate(ctx, t)
		}); err != nil {
			return nil, err
		}
	}
	for _, n := range p.Added.Notes {
		if err := a.upsert(ctx, types.KindNote, n.ID, result, func() error {
			return a.dst.UpsertNote(ctx, n)
		}); err != nil {
			return nil, err
		}
	}
	for _, c := range p.Added.Cards {
		if err := a.upsert(ctx, types.KindCard, c.ID, result, func() error {
			return a.dst.UpsertCard(ctx, c)
		}); err != nil {
			return nil, err
		}
	}

	if err := a.checkReferences(ctx, p); err != nil {
		return nil, err
	}

	// Deletions last, children before parents.
	for _, kind := range []types.Kind{types.KindCard, types.KindNote, types.KindTemplate} {
		for _, id := range p.deletedIDs(kind) {
			present, err := a.dst.Exists(ctx, kind, id)
			if err != nil {
				return nil, err
			}
			if !present {
				continue
			}
			if err := a.dst.Delete(ctx, kind, id); err != nil {
				return nil, err
			}
			result.Deleted[kind] = append(result.Deleted[kind], id)
		}
	}

	a.logger.Printf("Applied payload: added %d/%d/%d, updated %d/%d/%d, deleted %d/%d/%d (templates/notes/cards)",
		len(result.Added[types.KindTemplate]), len(result.Added[types.KindNote]), len(result.Added[types.KindCard]),
		len(result.Updated[types.KindTemplate]), len(result.Updated[types.KindNote]), len(result.Updated[types.KindCard]),
		len(result.Deleted[types.KindTemplate]), len(result.Deleted[types.KindNote]), len(result.Deleted[types.KindCard]))

	return result, nil
}

// upsert runs one record upsert, recording whether the id was newly
// created or replaced an existing record.
func (a *Applier) upsert(ctx context.Context, kind types.Kind, id int64, result *Result, write func() error) error {
	if err := interrupted(ctx); err != nil {
		return err
	}
	present, err := a.dst.Exists(ctx, kind, id)
	if err != nil {
		return err
	}
	if err := write(); err != nil {
		return err
	}
	if present {
		result.Updated[kind] = append(result.Updated[kind], id)
	} else {
		result.Added[kind] = append(result.Added[kind], id)
	}
	return nil
}

// checkReferences verifies, after all additions were applied, that
// every incoming note resolves its template and every incoming card
// resolves its note.
func (a *Applier) checkReferences(ctx context.Context, p *Payload) error {
	for _, n := range p.Added.Notes {
		ok, err := a.dst.Exists(ctx, types.KindTemplate, n.TemplateID)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%w: note %d references missing template %d", ErrDanglingReference, n.ID, n.TemplateID)
		}
	}
	for _, c := range p.Added.Cards {
		ok, err := a.dst.Exists(ctx, types.KindNote, c.NoteID)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%w: card %d references missing note %d", ErrDanglingReference, c.ID, c.NoteID)
		}
	}
	return nil
}
