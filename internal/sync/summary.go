package sync

import (
	"context"
	"fmt"
	"sort"

	"github.com/decksync/decksync/internal/types"
)

// BuildSummary produces a compact description of a store's state since
// the given USN watermark. A watermark of 0 means "everything".
//
// Every record whose USN is at or after the watermark is listed in
// Added; every deletion logged at or after the watermark is listed in
// Deleted. The operation is read-only. Ids deleted after being listed
// for addition cannot occur within one store (a deletion removes the
// row), so the structural invariant is checked and a violation is
// reported rather than repaired.
func BuildSummary(ctx context.Context, src Source, since int64) (*Summary, error) {
	sum := NewSummary(since)

	for _, kind := range types.Kinds {
		stamps, err := src.ModifiedSince(ctx, kind, since)
		if err != nil {
			return nil, fmt.Errorf("failed to summarize %s: %w", kind, err)
		}
		sort.Slice(stamps, func(i, j int) bool { return stamps[i].ID < stamps[j].ID })
		sum.Added[kind] = append(sum.Added[kind], stamps...)

		deleted, err := src.GraveyardSince(ctx, kind, since)
		if err != nil {
			return nil, fmt.Errorf("failed to summarize %s deletions: %w", kind, err)
		}
		sort.Slice(deleted, func(i, j int) bool { return deleted[i] < deleted[j] })
		sum.Deleted[kind] = append(sum.Deleted[kind], deleted...)
	}

	if err := sum.Validate(); err != nil {
		return nil, err
	}
	return sum, nil
}
