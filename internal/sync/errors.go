package sync

import (
	"context"
	"errors"
	"fmt"
)

// Protocol error taxonomy. ErrInvalidState and ErrDanglingReference
// are fatal to the current merge and must abort with no partial
// commit. ErrInterrupted reports caller cancellation. Per-file media
// failures are recoverable and are reported by the media package as a
// partial-success result instead.
var (
	// ErrInvalidState reports a malformed summary or payload, such as
	// an id appearing in both the add and delete lists for one kind.
	ErrInvalidState = errors.New("summary in invalid state")

	// ErrDanglingReference reports an apply-time foreign-key reference
	// that cannot be resolved after all additions were applied.
	ErrDanglingReference = errors.New("dangling record reference")

	// ErrInterrupted reports that the caller cancelled the operation
	// mid-merge.
	ErrInterrupted = errors.New("merge interrupted")

	// ErrConflictPolicyUndefined reports that the resolver was invoked
	// with a policy it does not recognize.
	ErrConflictPolicyUndefined = errors.New("conflict policy undefined")
)

// interrupted converts context cancellation into ErrInterrupted.
// Returns nil while the context is live.
func interrupted(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrInterrupted, err)
	}
	return nil
}
