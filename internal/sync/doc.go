// Package sync implements the summary/diff/merge protocol that
// reconciles two record stores.
//
// Overview
//
// Two replicas of a collection describe their state compactly as
// summaries, a diff is computed from the two summaries, conflicts are
// resolved by a caller-supplied policy, and the resulting payloads are
// applied back into each store:
//
//	Local Store                    Foreign Store
//	     │                               │
//	     ├── BuildSummary(since) ────────┤
//	     │                               │
//	     └────────► Merger ◄─────────────┘
//	                  │
//	        Diff{ToLocal, ToRemote}
//	                  │
//	               Applier
//	                  │
//	         Result (added/updated/deleted ids)
//
// A summary lists, per record kind, the (id, modified) stamps of every
// record written at or after a USN watermark, plus the ids deleted
// since then. A payload carries full records for one direction; it is
// computed so that applying it brings the destination into agreement
// with the other side.
//
// Guarantees
//
//   - Applying a payload is idempotent: re-applying it to an
//     already-merged store is a no-op (upsert by id, delete by id if
//     present).
//   - Payload generation is deterministic: records are processed in
//     ascending id order within each kind, so repeated runs over
//     identical summaries produce byte-identical payloads.
//   - A concurrent re-add always overrides a concurrent delete of the
//     same record. Silent data loss is worse than a spurious
//     resurrection.
//   - A malformed summary (an id in both the add and delete lists for
//     one kind) aborts the merge with ErrInvalidState. It is never
//     resolved silently.
//
// One-directional reuse
//
// The protocol is reused for a strict "pull everything, push nothing,
// delete nothing" import by injecting MergeOptions rather than by a
// separate code path: SuppressRemoteDeletes clears deletion lists
// before diffing, and SuppressPush discards the to-remote payload
// after generation. See the importer package for the driver.
package sync
