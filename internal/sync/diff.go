package sync

import (
	"context"
	"fmt"
	"log"
	"os"
	"sort"

	"github.com/decksync/decksync/internal/types"
)

// MergeOptions configures how the two-directional protocol degenerates
// for asymmetric use cases. The general merge engine and the import
// specialization share one core; the import driver injects both flags.
type MergeOptions struct {
	// SuppressPush discards the to-remote payload after generation:
	// nothing flows from local to remote, neither additions nor
	// deletions.
	SuppressPush bool

	// SuppressRemoteDeletes clears the deletion lists from both
	// summaries before diffing, so no deletion from either side
	// survives into the generated payloads. With this set, a non-empty
	// deletion list in the to-local payload is defended as
	// ErrInvalidState.
	SuppressRemoteDeletes bool
}

// Merger computes payloads from two stores' summaries.
type Merger struct {
	local    Source
	remote   Source
	resolver *Resolver
	opts     MergeOptions
	logger   *log.Logger
}

// NewMerger creates a merge engine over a local and a remote source.
//
// If logger is nil, a default logger writing to stderr is used.
func NewMerger(local, remote Source, resolver *Resolver, opts MergeOptions, logger *log.Logger) *Merger {
	if logger == nil {
		logger = log.New(os.Stderr, "[merge] ", log.LstdFlags)
	}
	return &Merger{
		local:    local,
		remote:   remote,
		resolver: resolver,
		opts:     opts,
		logger:   logger,
	}
}

// BuildSummaries builds both sides' summaries at the given watermarks
// and applies the suppression options.
func (m *Merger) BuildSummaries(ctx context.Context, localSince, remoteSince int64) (lsum, rsum *Summary, err error) {
	if err := interrupted(ctx); err != nil {
		return nil, nil, err
	}

	lsum, err = BuildSummary(ctx, m.local, localSince)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to build local summary: %w", err)
	}
	rsum, err = BuildSummary(ctx, m.remote, remoteSince)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to build remote summary: %w", err)
	}

	if m.opts.SuppressRemoteDeletes {
		lsum.ClearDeletes()
		rsum.ClearDeletes()
	}
	return lsum, rsum, nil
}

// GeneratePayloads compares two summaries and computes the payload
// each side must receive.
//
// For each kind, the ids from both add lists are unioned and processed
// in ascending order: ids present on only one side are scheduled as an
// addition to the other side; ids present on both sides with differing
// modification stamps are escalated to the conflict resolver, and the
// winning version is scheduled to the losing side. Ids in one side's
// deletion list are scheduled as deletions on the other side unless
// that side concurrently re-added the id: a re-add always beats a
// delete.
//
// Processing order is ascending id within each kind, so two runs over
// identical summaries produce byte-identical payloads.
func (m *Merger) GeneratePayloads(ctx context.Context, lsum, rsum *Summary) (*Diff, error) {
	if err := interrupted(ctx); err != nil {
		return nil, err
	}
	if err := lsum.Validate(); err != nil {
		return nil, fmt.Errorf("local %w", err)
	}
	if err := rsum.Validate(); err != nil {
		return nil, fmt.Errorf("remote %w", err)
	}

	diff := &Diff{ToLocal: NewPayload(), ToRemote: NewPayload()}

	for _, kind := range types.Kinds {
		toLocal, toRemote, err := m.planKind(kind, lsum, rsum)
		if err != nil {
			return nil, err
		}

		if err := fetchRecords(ctx, m.remote, kind, toLocal, diff.ToLocal); err != nil {
			return nil, fmt.Errorf("failed to fetch %s for local side: %w", kind, err)
		}
		if err := fetchRecords(ctx, m.local, kind, toRemote, diff.ToRemote); err != nil {
			return nil, fmt.Errorf("failed to fetch %s for remote side: %w", kind, err)
		}

		diff.ToLocal.setDeletedIDs(kind, planDeletes(rsum.Deleted[kind], lsum.Added[kind]))
		diff.ToRemote.setDeletedIDs(kind, planDeletes(lsum.Deleted[kind], rsum.Added[kind]))
	}

	if m.opts.SuppressRemoteDeletes {
		// With deletions suppressed at the summary stage, nothing may
		// schedule a local deletion. A populated list here means a
		// malformed flow, not a mergeable state.
		for _, kind := range types.Kinds {
			if ids := diff.ToLocal.deletedIDs(kind); len(ids) != 0 {
				return nil, fmt.Errorf("%w: %d %s deletions survived suppression", ErrInvalidState, len(ids), kind)
			}
		}
	}

	if m.opts.SuppressPush {
		diff.ToRemote = NewPayload()
	}

	m.logger.Printf("Generated payloads: to-local %d/%d/%d adds, to-remote %d/%d/%d adds",
		len(diff.ToLocal.Added.Templates), len(diff.ToLocal.Added.Notes), len(diff.ToLocal.Added.Cards),
		len(diff.ToRemote.Added.Templates), len(diff.ToRemote.Added.Notes), len(diff.ToRemote.Added.Cards))

	return diff, nil
}

// planKind decides, for one kind, which record ids each side must
// receive as additions.
func (m *Merger) planKind(kind types.Kind, lsum, rsum *Summary) (toLocal, toRemote []int64, err error) {
	localStamps := stampMap(lsum.Added[kind])
	remoteStamps := stampMap(rsum.Added[kind])

	ids := unionIDs(localStamps, remoteStamps)
	for _, id := range ids {
		lst, onLocal := localStamps[id]
		rst, onRemote := remoteStamps[id]

		switch {
		case onLocal && !onRemote:
			toRemote = append(toRemote, id)
		case onRemote && !onLocal:
			toLocal = append(toLocal, id)
		case lst.Modified == rst.Modified:
			// In agreement; nothing to schedule.
		default:
			winner, err := m.resolver.Resolve(lst, rst)
			if err != nil {
				return nil, nil, err
			}
			if winner == WinnerLocal {
				toRemote = append(toRemote, id)
			} else {
				toLocal = append(toLocal, id)
			}
		}
	}
	return toLocal, toRemote, nil
}

// planDeletes schedules deletions from one side's deletion list onto
// the other side, skipping ids the other side concurrently re-added.
// Undelete beats delete: silent data loss is worse than a spurious
// resurrection.
func planDeletes(deleted []int64, otherAdds []types.Stamp) []int64 {
	readded := make(map[int64]bool, len(otherAdds))
	for _, st := range otherAdds {
		readded[st.ID] = true
	}

	out := []int64{}
	for _, id := range deleted {
		if readded[id] {
			continue
		}
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// stampMap indexes a stamp list by record id.
func stampMap(stamps []types.Stamp) map[int64]types.Stamp {
	m := make(map[int64]types.Stamp, len(stamps))
	for _, st := range stamps {
		m[st.ID] = st
	}
	return m
}

// unionIDs returns the sorted union of the ids in both stamp maps.
func unionIDs(a, b map[int64]types.Stamp) []int64 {
	seen := make(map[int64]bool, len(a)+len(b))
	ids := make([]int64, 0, len(a)+len(b))
	for id := range a {
		if !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}
	for id := range b {
		if !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// fetchRecords pulls full records for the scheduled ids from the
// owning source into the payload, preserving ascending id order.
func fetchRecords(ctx context.Context, src Source, kind types.Kind, ids []int64, p *Payload) error {
	if len(ids) == 0 {
		return nil
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	switch kind {
	case types.KindTemplate:
		records, err := src.GetTemplates(ctx, ids)
		if err != nil {
			return err
		}
		p.Added.Templates = append(p.Added.Templates, records...)
	case types.KindNote:
		records, err := src.GetNotes(ctx, ids)
		if err != nil {
			return err
		}
		p.Added.Notes = append(p.Added.Notes, records...)
	case types.KindCard:
		records, err := src.GetCards(ctx, ids)
		if err != nil {
			return err
		}
		p.Added.Cards = append(p.Added.Cards, records...)
	default:
		return fmt.Errorf("unknown record kind %q", kind)
	}
	return nil
}
