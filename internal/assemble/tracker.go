package assemble

import (
	"sync"
	"time"
)

// Tracker remembers, for the life of the process, which agents have
// assembled context. Decisions consult it to set assembled_before.
type Tracker struct {
	mu   sync.RWMutex
	last map[string]time.Time
}

// NewTracker creates an empty Tracker.
func NewTracker() *Tracker {
	return &Tracker{last: make(map[string]time.Time)}
}

// Record notes that agentID assembled context now.
func (t *Tracker) Record(agentID string) {
	if agentID == "" {
		agentID = "main"
	}
	t.mu.Lock()
	t.last[agentID] = timeNow()
	t.mu.Unlock()
}

// HasAssembled reports whether agentID has assembled context this session.
func (t *Tracker) HasAssembled(agentID string) bool {
	if agentID == "" {
		agentID = "main"
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	_, ok := t.last[agentID]
	return ok
}

// Last returns when agentID last assembled, if ever.
func (t *Tracker) Last(agentID string) (time.Time, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	at, ok := t.last[agentID]
	return at, ok
}
