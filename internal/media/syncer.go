package media

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/decksync/decksync/internal/sync"
)

// State is the media syncer's lifecycle state.
type State int

const (
	// StateIdle means the syncer has not started.
	StateIdle State = iota
	// StateComparing means both sides' file sets are being hashed and
	// compared.
	StateComparing
	// StateTransferring means scheduled files are being copied.
	StateTransferring
	// StateReconciled means the pass completed (possibly with per-file
	// failures, reported in the Result).
	StateReconciled
	// StateAborted means the pass was interrupted before completion.
	StateAborted
)

// String returns a human-readable representation of the state.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateComparing:
		return "comparing"
	case StateTransferring:
		return "transferring"
	case StateReconciled:
		return "reconciled"
	case StateAborted:
		return "aborted"
	default:
		return "unknown"
	}
}

// FileError records one recoverable per-file transfer failure.
type FileError struct {
	Name string
	Err  error
}

// Error implements the error interface.
func (e FileError) Error() string {
	return fmt.Sprintf("media file %s: %v", e.Name, e.Err)
}

// Unwrap returns the underlying transfer error.
func (e FileError) Unwrap() error {
	return e.Err
}

// Result is the partial-success summary of one media pass.
type Result struct {
	// Copied lists files transferred to the destination under their
	// own name.
	Copied []string
	// Renamed lists files transferred under a disambiguated name
	// because the destination held different content under the
	// original name.
	Renamed []string
	// Skipped counts files already identical on both sides.
	Skipped int
	// Failed lists files whose transfer failed after retries. They do
	// not abort the pass.
	Failed []FileError
}

// Config configures a media Syncer.
type Config struct {
	// Retries is how many times a failed per-file copy is retried
	// before being recorded as failed (default: 2).
	Retries int

	// Logger for syncer activity (default: stderr logger).
	Logger *log.Logger
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Retries: 2,
		Logger:  log.New(os.Stderr, "[media] ", log.LstdFlags),
	}
}

// Syncer reconciles one directory of media assets into another, in one
// direction per call. The driver may run it for either direction
// independently of the record-diff direction.
type Syncer struct {
	src    *DirStore
	dst    *DirStore
	config *Config
	state  State
}

// NewSyncer creates a syncer copying from src into dst.
func NewSyncer(src, dst *DirStore, config *Config) *Syncer {
	if config == nil {
		config = DefaultConfig()
	}
	if config.Logger == nil {
		config.Logger = log.New(os.Stderr, "[media] ", log.LstdFlags)
	}
	if config.Retries < 0 {
		config.Retries = 0
	}
	return &Syncer{
		src:    src,
		dst:    dst,
		config: config,
		state:  StateIdle,
	}
}

// State returns the syncer's current lifecycle state.
func (s *Syncer) State() State {
	return s.state
}

// Sync runs one reconciliation pass from source to destination.
//
// Files present only in the source are copied. Files present on both
// sides with matching hash are skipped. Files sharing a name but not a
// hash are treated as a rename conflict: the destination's file is
// left untouched and the source variant is written under a
// disambiguated name, so both variants survive. Per-file failures are
// retried, then recorded in the result; they never abort the pass.
//
// Cancellation leaves already-transferred files valid (each copy is
// independently atomic) and returns ErrInterrupted with the partial
// result.
func (s *Syncer) Sync(ctx context.Context) (*Result, error) {
	result := &Result{}

	s.state = StateComparing
	srcFiles, err := s.src.List()
	if err != nil {
		s.state = StateAborted
		return result, err
	}
	dstFiles, err := s.dst.List()
	if err != nil {
		s.state = StateAborted
		return result, err
	}

	dstByName := make(map[string]string, len(dstFiles))
	for _, f := range dstFiles {
		dstByName[f.Name] = f.Hash
	}

	s.state = StateTransferring
	for _, f := range srcFiles {
		if err := ctx.Err(); err != nil {
			s.state = StateAborted
			return result, fmt.Errorf("%w: %v", sync.ErrInterrupted, err)
		}

		dstHash, present := dstByName[f.Name]
		switch {
		case present && dstHash == f.Hash:
			result.Skipped++
			continue
		case present:
			// Same name, different content. Keep both.
			target := disambiguate(f.Name, f.Hash)
			if ferr := s.copyFile(f.Name, target); ferr != nil {
				result.Failed = append(result.Failed, *ferr)
				continue
			}
			result.Renamed = append(result.Renamed, target)
			s.config.Logger.Printf("Conflicting content for %s, kept both (new variant: %s)", f.Name, target)
		default:
			if ferr := s.copyFile(f.Name, f.Name); ferr != nil {
				result.Failed = append(result.Failed, *ferr)
				continue
			}
			result.Copied = append(result.Copied, f.Name)
		}
	}

	s.state = StateReconciled
	s.config.Logger.Printf("Media pass complete: copied=%d renamed=%d skipped=%d failed=%d",
		len(result.Copied), len(result.Renamed), result.Skipped, len(result.Failed))
	return result, nil
}

// copyFile copies one source file to the destination under the target
// name, retrying per Config.Retries. Returns nil on success.
func (s *Syncer) copyFile(srcName, dstName string) *FileError {
	var lastErr error
	for attempt := 0; attempt <= s.config.Retries; attempt++ {
		lastErr = s.copyOnce(srcName, dstName)
		if lastErr == nil {
			return nil
		}
		s.config.Logger.Printf("WARNING: transfer of %s failed (attempt %d/%d): %v",
			srcName, attempt+1, s.config.Retries+1, lastErr)
	}
	return &FileError{Name: srcName, Err: lastErr}
}

// copyOnce performs a single copy attempt.
func (s *Syncer) copyOnce(srcName, dstName string) error {
	r, err := s.src.Open(srcName)
	if err != nil {
		return err
	}
	defer r.Close()
	return s.dst.Write(dstName, r)
}
