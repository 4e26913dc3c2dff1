package server

import (
	"sync"

	"github.com/davidMbrooke/texecom-connect/session"
)

const defaultRingSize = 256

// EventRing keeps a rolling window of recent updates so a newly attached
// stream client can catch up before live events start flowing.
type EventRing struct {
	mu      sync.RWMutex
	entries []session.Update
	max     int
}

func NewEventRing(maxSize int) *EventRing {
	if maxSize <= 0 {
		maxSize = defaultRingSize
	}
	return &EventRing{
		entries: make([]session.Update, 0, maxSize),
		max:     maxSize,
	}
}

func (r *EventRing) Add(u session.Update) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, u)
	if len(r.entries) > r.max {
		excess := len(r.entries) - r.max
		copy(r.entries, r.entries[excess:])
		r.entries = r.entries[:r.max]
	}
}

// Recent returns a copy of the buffered updates, oldest first.
func (r *EventRing) Recent() []session.Update {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]session.Update, len(r.entries))
	copy(out, r.entries)
	return out
}
