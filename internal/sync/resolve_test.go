package sync

import (
	"errors"
	"testing"

	"github.com/decksync/decksync/internal/types"
)

func TestResolveLatestWins(t *testing.T) {
	r := NewResolver(LatestWins)

	w, err := r.Resolve(types.Stamp{ID: 1, Modified: 100}, types.Stamp{ID: 1, Modified: 200})
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if w != WinnerRemote {
		t.Errorf("expected remote to win with larger stamp, got %v", w)
	}

	w, err = r.Resolve(types.Stamp{ID: 1, Modified: 300}, types.Stamp{ID: 1, Modified: 200})
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if w != WinnerLocal {
		t.Errorf("expected local to win with larger stamp, got %v", w)
	}
}

func TestResolveLatestWinsTiePrefersLocal(t *testing.T) {
	r := NewResolver(LatestWins)

	w, err := r.Resolve(types.Stamp{ID: 1, Modified: 100}, types.Stamp{ID: 1, Modified: 100})
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if w != WinnerLocal {
		t.Errorf("expected local to win on tie, got %v", w)
	}
}

func TestResolveFixedPolicies(t *testing.T) {
	local := types.Stamp{ID: 1, Modified: 100}
	remote := types.Stamp{ID: 1, Modified: 900}

	w, err := NewResolver(LocalWins).Resolve(local, remote)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if w != WinnerLocal {
		t.Errorf("local-wins chose %v", w)
	}

	w, err = NewResolver(RemoteWins).Resolve(types.Stamp{ID: 1, Modified: 900}, types.Stamp{ID: 1, Modified: 100})
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if w != WinnerRemote {
		t.Errorf("remote-wins chose %v", w)
	}
}

func TestResolveUnknownPolicy(t *testing.T) {
	r := NewResolver(Policy(42))

	_, err := r.Resolve(types.Stamp{ID: 1, Modified: 100}, types.Stamp{ID: 1, Modified: 200})
	if !errors.Is(err, ErrConflictPolicyUndefined) {
		t.Errorf("expected ErrConflictPolicyUndefined, got %v", err)
	}
}

func TestParsePolicy(t *testing.T) {
	tests := []struct {
		in      string
		want    Policy
		wantErr bool
	}{
		{"latest-wins", LatestWins, false},
		{"", LatestWins, false},
		{"local-wins", LocalWins, false},
		{"remote-wins", RemoteWins, false},
		{"coin-flip", 0, true},
	}
	for _, tt := range tests {
		got, err := ParsePolicy(tt.in)
		if tt.wantErr {
			if !errors.Is(err, ErrConflictPolicyUndefined) {
				t.Errorf("ParsePolicy(%q): expected ErrConflictPolicyUndefined, got %v", tt.in, err)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParsePolicy(%q) failed: %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ParsePolicy(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
