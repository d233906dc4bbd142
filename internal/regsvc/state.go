package regsvc

import (
	"sync"
	"time"
)

// Step is where a chat's registration flow currently stands.
type Step int

const (
	StepNoSelection Step = iota
	StepPollsChosen
	StepGamesChosen
	StepSubmitting
	StepDone
)

// Selection is the per-chat, in-memory registration flow state. It is
// ephemeral: lost on restart, re-triggerable by the user.
type Selection struct {
	Step          Step
	SelectedPolls map[string]bool
	SelectedGames map[string]bool
	// VoteCounts snapshots game → vote count at the moment winners were
	// computed, for display during game selection.
	VoteCounts map[string]int

	touched time.Time
}

func newSelection() *Selection {
	return &Selection{
		Step:          StepNoSelection,
		SelectedPolls: map[string]bool{},
		SelectedGames: map[string]bool{},
		VoteCounts:    map[string]int{},
	}
}

// StateStore keeps per-chat flow state with TTL eviction, so abandoned flows
// do not pile up for the lifetime of the process. Injected where needed, not
// package-global.
type StateStore struct {
	mu      sync.Mutex
	ttl     time.Duration
	entries map[int64]*Selection
	now     func() time.Time
}

func NewStateStore(ttl time.Duration) *StateStore {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &StateStore{
		ttl:     ttl,
		entries: map[int64]*Selection{},
		now:     time.Now,
	}
}

// Get returns the chat's flow state, creating fresh state when there is none
// or the previous one expired.
func (s *StateStore) Get(chatID int64) *Selection {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.evictLocked()
	sel, ok := s.entries[chatID]
	if !ok {
		sel = newSelection()
		s.entries[chatID] = sel
	}
	sel.touched = s.now()
	return sel
}

// Clear drops the chat's flow state (completion, cancellation, error).
func (s *StateStore) Clear(chatID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, chatID)
}

func (s *StateStore) evictLocked() {
	cutoff := s.now().Add(-s.ttl)
	for chatID, sel := range s.entries {
		if sel.touched.Before(cutoff) {
			delete(s.entries, chatID)
		}
	}
}
