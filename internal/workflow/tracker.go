package workflow

import (
	"errors"
	"sync"
)

// ErrAlreadyExists reports an attempt to initialize iteration state for a
// pull request that already has state recorded.
var ErrAlreadyExists = errors.New("iteration state already exists")

// Key identifies a pull request across repositories.
type Key struct {
	Repo   string
	Number int
}

type iterationState struct {
	mu         sync.Mutex
	count      int
	maxReached bool
}

// Tracker keeps per-pull-request iteration counts. Entries for different
// keys never contend; the map lock is held only to look up or insert an
// entry, all counting happens under that entry's own lock.
type Tracker struct {
	mu      sync.RWMutex
	entries map[Key]*iterationState
}

// NewTracker returns an empty Tracker.
func NewTracker() *Tracker {
	return &Tracker{entries: make(map[Key]*iterationState)}
}

// GetOrInit returns the current iteration count for key, or 0 when no
// state has been recorded yet.
func (t *Tracker) GetOrInit(key Key) int {
	t.mu.RLock()
	st, ok := t.entries[key]
	t.mu.RUnlock()
	if !ok {
		return 0
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.count
}

// Initialize records the starting count for a freshly created pull
// request. It fails with ErrAlreadyExists when state is already present,
// which guards against duplicate deliveries of the same issue event.
func (t *Tracker) Initialize(key Key, startCount int) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.entries[key]; ok {
		return ErrAlreadyExists
	}
	t.entries[key] = &iterationState{count: startCount}
	return nil
}

// IncrementIfActive advances the iteration count for key by one, unless
// the count already stands at maxIterations; then the entry is frozen and
// every subsequent call reports exceeded with the unchanged count. The
// increment and the threshold check happen atomically per key, so two
// racing deliveries can never both slip past the cap. A key with no prior
// state counts from zero.
func (t *Tracker) IncrementIfActive(key Key, maxIterations int) (int, bool) {
	t.mu.Lock()
	st, ok := t.entries[key]
	if !ok {
		st = &iterationState{}
		t.entries[key] = st
	}
	t.mu.Unlock()

	st.mu.Lock()
	defer st.mu.Unlock()
	if st.maxReached {
		return st.count, true
	}
	if st.count >= maxIterations {
		st.maxReached = true
		return st.count, true
	}
	st.count++
	return st.count, false
}
