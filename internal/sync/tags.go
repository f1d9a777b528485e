package sync

import (
	"context"
	"fmt"

	"github.com/decksync/decksync/internal/types"
)

// PropagateTags attaches the given space-delimited tags to each of the
// notes. Ids not found in the destination are a no-op; existing tags
// are never removed.
//
// This is a post-merge pass: callers run it with the note ids the
// applier reported as newly added, so only freshly merged notes pick
// up the tags.
func PropagateTags(ctx context.Context, dst Destination, noteIDs []int64, tags string) error {
	if err := interrupted(ctx); err != nil {
		return err
	}

	split := types.SplitTags(tags)
	if len(noteIDs) == 0 || len(split) == 0 {
		return nil
	}

	if err := dst.AddNoteTags(ctx, noteIDs, split); err != nil {
		return fmt.Errorf("failed to propagate tags: %w", err)
	}
	return nil
}
