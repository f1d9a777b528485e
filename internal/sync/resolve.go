package sync

import (
	"fmt"

	"github.com/decksync/decksync/internal/types"
)

// Policy selects which version of a record changed on both sides
// survives the merge.
type Policy int

const (
	// LatestWins keeps the version with the larger modification stamp.
	// Ties are broken by preferring the local version, so resolution
	// is deterministic.
	LatestWins Policy = iota
	// LocalWins always keeps the local version.
	LocalWins
	// RemoteWins always keeps the remote version.
	RemoteWins
)

// String returns a human-readable representation of the policy.
func (p Policy) String() string {
	switch p {
	case LatestWins:
		return "latest-wins"
	case LocalWins:
		return "local-wins"
	case RemoteWins:
		return "remote-wins"
	default:
		return "unknown"
	}
}

// ParsePolicy converts a policy name to a Policy value.
func ParsePolicy(s string) (Policy, error) {
	switch s {
	case "latest-wins", "":
		return LatestWins, nil
	case "local-wins":
		return LocalWins, nil
	case "remote-wins":
		return RemoteWins, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrConflictPolicyUndefined, s)
	}
}

// Winner names the side whose version of a record survives.
type Winner int

const (
	// WinnerLocal means the local version survives.
	WinnerLocal Winner = iota
	// WinnerRemote means the remote version survives.
	WinnerRemote
)

// Resolver decides which version of a both-sides-modified record
// survives, according to its policy.
type Resolver struct {
	policy Policy
}

// NewResolver creates a resolver with the given policy.
func NewResolver(policy Policy) *Resolver {
	return &Resolver{policy: policy}
}

// Resolve returns the surviving side for a record present on both
// sides with the given modification stamps. Returns
// ErrConflictPolicyUndefined if the resolver carries a policy it does
// not recognize; that aborts the merge rather than guessing.
func (r *Resolver) Resolve(local, remote types.Stamp) (Winner, error) {
	switch r.policy {
	case LatestWins:
		if remote.Modified > local.Modified {
			return WinnerRemote, nil
		}
		return WinnerLocal, nil
	case LocalWins:
		return WinnerLocal, nil
	case RemoteWins:
		return WinnerRemote, nil
	default:
		return 0, fmt.Errorf("%w: policy %d for record %d", ErrConflictPolicyUndefined, r.policy, local.ID)
	}
}
