// Package importer orchestrates the merge protocol into a
// one-directional "pull everything, push nothing, delete nothing"
// import from a foreign collection file into the local store.
//
// The foreign store is an ephemeral replica: it is opened, mutated
// only inside a transaction that is rolled back on every exit path,
// and never persisted. The local store is mutated all-or-nothing: the
// record apply and the tag pass commit together or not at all, so a
// failed or cancelled import leaves the local store exactly as it was.
package importer

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/decksync/decksync/internal/media"
	"github.com/decksync/decksync/internal/store"
	"github.com/decksync/decksync/internal/sync"
	"github.com/decksync/decksync/internal/types"
)

// Importer merges foreign collections into a local store. At most one
// import may run against a given local store at a time; the store
// serializes concurrent access for the duration.
type Importer struct {
	local  *store.Store
	logger *log.Logger
}

// New creates an importer for the local store.
//
// If logger is nil, a default logger writing to stderr is used.
func New(local *store.Store, logger *log.Logger) *Importer {
	if logger == nil {
		logger = log.New(os.Stderr, "[import] ", log.LstdFlags)
	}
	return &Importer{local: local, logger: logger}
}

// ImportFile opens the collection file at path, merges it into the
// local store, and discards the foreign handle. Returns the number of
// notes newly added. The tags string is space-delimited; the tags are
// attached to newly added notes only.
func (i *Importer) ImportFile(ctx context.Context, path, tags string) (int, error) {
	foreign, err := store.Open(path)
	if err != nil {
		return 0, fmt.Errorf("failed to open foreign collection: %w", err)
	}
	defer foreign.Close()

	if err := foreign.InitSchema(ctx); err != nil {
		return 0, fmt.Errorf("failed to read foreign collection: %w", err)
	}

	return i.ImportStore(ctx, foreign, tags)
}

// ImportStore merges the foreign store into the local store and
// returns the number of notes newly added.
//
// The merge is computed as if bidirectional, then degenerated by
// policy: foreign deletions are suppressed before diffing and the
// to-foreign payload is discarded after generation, so every record in
// the foreign store ends up in the local store and no local record is
// ever deleted. Conflicts resolve toward the local version - the
// foreign store's records are stamped with the minimal modification
// time first, so latest-wins always prefers local work.
//
// The foreign store is mutated in memory only and always rolled back,
// regardless of outcome.
func (i *Importer) ImportStore(ctx context.Context, foreign *store.Store, tags string) (count int, err error) {
	// Ephemeral replica: every foreign mutation below stays inside
	// this transaction and is discarded at the end.
	if err := foreign.Begin(ctx); err != nil {
		return 0, err
	}
	defer func() {
		if rerr := foreign.Rollback(); rerr != nil && err == nil {
			err = rerr
		}
	}()

	if err := foreign.MarkAllFresh(ctx); err != nil {
		return 0, err
	}

	merger := sync.NewMerger(i.local, foreign, sync.NewResolver(sync.LatestWins), sync.MergeOptions{
		SuppressPush:          true,
		SuppressRemoteDeletes: true,
	}, i.logger)

	lsum, rsum, err := merger.BuildSummaries(ctx, 0, 0)
	if err != nil {
		return 0, err
	}

	diff, err := merger.GeneratePayloads(ctx, lsum, rsum)
	if err != nil {
		return 0, err
	}

	result, err := i.applyLocal(ctx, diff.ToLocal, tags)
	if err != nil {
		return 0, err
	}
	added := result.AddedNotes()

	// Media reconciliation runs after the record commit. Per-file
	// failures are recoverable: they are logged, not fatal. The record
	// merge is already committed at this point, so an interrupted
	// media pass reports the count alongside the error.
	if err := i.syncMedia(ctx, foreign); err != nil {
		return len(added), err
	}

	i.logger.Printf("Import complete: %d notes added", len(added))
	return len(added), nil
}

// applyLocal applies the to-local payload and the tag pass inside one
// local transaction. Any failure rolls the whole apply back; a
// partially-applied payload is never a valid outcome.
func (i *Importer) applyLocal(ctx context.Context, payload *sync.Payload, tags string) (result *sync.Result, err error) {
	if err := i.local.Begin(ctx); err != nil {
		return nil, err
	}
	defer func() {
		if err != nil {
			_ = i.local.Rollback()
		}
	}()

	applier := sync.NewApplier(i.local, i.logger)
	result, err = applier.Apply(ctx, payload)
	if err != nil {
		return nil, err
	}

	if err = sync.PropagateTags(ctx, i.local, result.AddedNotes(), tags); err != nil {
		return nil, err
	}

	if err = i.local.Commit(); err != nil {
		return nil, err
	}
	return result, nil
}

// syncMedia runs the bulk media pass from the foreign store's media
// directory into the local one, then refreshes the local bookkeeping
// rows from the reconciled directory.
func (i *Importer) syncMedia(ctx context.Context, foreign *store.Store) error {
	srcDir, err := foreign.MediaDir()
	if err != nil {
		return err
	}
	dstDir, err := i.local.MediaDir()
	if err != nil {
		return err
	}

	src, err := media.NewDirStore(srcDir)
	if err != nil {
		return err
	}
	dst, err := media.NewDirStore(dstDir)
	if err != nil {
		return err
	}

	syncer := media.NewSyncer(src, dst, &media.Config{Logger: i.logger})
	result, err := syncer.Sync(ctx)
	if err != nil {
		return err
	}
	for _, ferr := range result.Failed {
		i.logger.Printf("WARNING: %v", ferr)
	}

	return recordMedia(ctx, i.local, dst)
}

// recordMedia refreshes the store's media bookkeeping rows from the
// reconciled directory, so summaries and status reflect the assets
// actually on disk.
func recordMedia(ctx context.Context, st *store.Store, dir *media.DirStore) error {
	files, err := dir.List()
	if err != nil {
		return err
	}
	for _, f := range files {
		entry := &types.MediaEntry{Filename: f.Name, Hash: f.Hash}
		if err := st.UpsertMedia(ctx, entry); err != nil {
			return err
		}
	}
	return nil
}
