// Package export bridges collections to JSONL, one record envelope
// per line. It is the supported path for dumping a collection and for
// constructing an importable foreign collection from external tooling.
package export

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/decksync/decksync/internal/store"
	"github.com/decksync/decksync/internal/sync"
	"github.com/decksync/decksync/internal/types"
)

// Envelope is one JSONL line: the record kind plus exactly one record
// field populated to match it.
type Envelope struct {
	Kind     types.Kind      `json:"kind"`
	Template *types.Template `json:"template,omitempty"`
	Note     *types.Note     `json:"note,omitempty"`
	Card     *types.Card     `json:"card,omitempty"`
}

// WriteJSONL dumps every record in the source to the writer as JSONL,
// templates first, then notes, then cards, ascending by id within
// each kind.
func WriteJSONL(ctx context.Context, src sync.Source, w io.Writer) error {
	bw := bufio.NewWriter(w)
	enc := json.NewEncoder(bw)

	for _, kind := range types.Kinds {
		stamps, err := src.ModifiedSince(ctx, kind, 0)
		if err != nil {
			return fmt.Errorf("failed to list %s: %w", kind, err)
		}
		ids := make([]int64, len(stamps))
		for i, st := range stamps {
			ids[i] = st.ID
		}

		if err := writeKind(ctx, src, kind, ids, enc); err != nil {
			return err
		}
	}

	if err := bw.Flush(); err != nil {
		return fmt.Errorf("failed to flush JSONL output: %w", err)
	}
	return nil
}

// writeKind encodes all records of one kind as envelopes.
func writeKind(ctx context.Context, src sync.Source, kind types.Kind, ids []int64, enc *json.Encoder) error {
	switch kind {
	case types.KindTemplate:
		records, err := src.GetTemplates(ctx, ids)
		if err != nil {
			return err
		}
		for _, t := range records {
			if err := enc.Encode(Envelope{Kind: kind, Template: t}); err != nil {
				return fmt.Errorf("failed to encode template %d: %w", t.ID, err)
			}
		}
	case types.KindNote:
		records, err := src.GetNotes(ctx, ids)
		if err != nil {
			return err
		}
		for _, n := range records {
			if err := enc.Encode(Envelope{Kind: kind, Note: n}); err != nil {
				return fmt.Errorf("failed to encode note %d: %w", n.ID, err)
			}
		}
	case types.KindCard:
		records, err := src.GetCards(ctx, ids)
		if err != nil {
			return err
		}
		for _, c := range records {
			if err := enc.Encode(Envelope{Kind: kind, Card: c}); err != nil {
				return fmt.Errorf("failed to encode card %d: %w", c.ID, err)
			}
		}
	default:
		return fmt.Errorf("unknown record kind %q", kind)
	}
	return nil
}

// ReadJSONL parses a JSONL stream into record envelopes, validating
// each line.
func ReadJSONL(r io.Reader) ([]Envelope, error) {
	var envelopes []Envelope
	dec := json.NewDecoder(r)
	lineNum := 0

	for {
		var env Envelope
		if err := dec.Decode(&env); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, fmt.Errorf("invalid JSON at line %d: %w", lineNum+1, err)
		}
		lineNum++

		if err := env.validate(); err != nil {
			return nil, fmt.Errorf("invalid envelope at line %d: %w", lineNum, err)
		}
		envelopes = append(envelopes, env)
	}

	return envelopes, nil
}

// validate checks that the envelope's kind matches its populated
// record.
func (e *Envelope) validate() error {
	switch e.Kind {
	case types.KindTemplate:
		if e.Template == nil {
			return fmt.Errorf("kind %s without template record", e.Kind)
		}
		return e.Template.Validate()
	case types.KindNote:
		if e.Note == nil {
			return fmt.Errorf("kind %s without note record", e.Kind)
		}
		return e.Note.Validate()
	case types.KindCard:
		if e.Card == nil {
			return fmt.Errorf("kind %s without card record", e.Kind)
		}
		return e.Card.Validate()
	default:
		return fmt.Errorf("unknown record kind %q", e.Kind)
	}
}

// BuildStore creates a collection file at path and fills it from the
// JSONL stream. The returned store is open; the caller must Close it.
// Envelopes are applied in stream order, so a stream produced by
// WriteJSONL satisfies reference order (templates before notes before
// cards).
func BuildStore(ctx context.Context, r io.Reader, path string) (*store.Store, error) {
	envelopes, err := ReadJSONL(r)
	if err != nil {
		return nil, err
	}

	st, err := store.Open(path)
	if err != nil {
		return nil, err
	}
	if err := st.InitSchema(ctx); err != nil {
		_ = st.Close()
		return nil, err
	}

	for _, env := range envelopes {
		var err error
		switch env.Kind {
		case types.KindTemplate:
			err = st.UpsertTemplate(ctx, env.Template)
		case types.KindNote:
			err = st.UpsertNote(ctx, env.Note)
		case types.KindCard:
			err = st.UpsertCard(ctx, env.Card)
		}
		if err != nil {
			_ = st.Close()
			return nil, err
		}
	}

	return st, nil
}
