// Package presence maintains the last known online/offline flag per user.
package presence

import (
	"sync"
	"time"

	"github.com/heartlink-app/pulse/internal/bus"
)

// Update is the payload for presence.changed bus events.
type Update struct {
	UserID int64
	Online bool
}

// Tracker maps user ids to their last broadcast online flag. Updates for
// users not referenced by any loaded chat are stored anyway; the tracker
// never needs to know the universe of valid ids.
type Tracker struct {
	mu     sync.RWMutex
	online map[int64]bool
	bus    *bus.Bus
}

// New creates an empty tracker. b may be nil.
func New(b *bus.Bus) *Tracker {
	return &Tracker{
		online: make(map[int64]bool),
		bus:    b,
	}
}

// HandlePresence records a broadcast presence change.
func (t *Tracker) HandlePresence(userID int64, online bool) {
	t.mu.Lock()
	changed := t.online[userID] != online
	t.online[userID] = online
	t.mu.Unlock()

	if changed && t.bus != nil {
		t.bus.Publish(bus.Event{
			Kind:      bus.PresenceChanged,
			Timestamp: time.Now(),
			Payload:   Update{UserID: userID, Online: online},
		})
	}
}

// Online reports the last known flag for a user; unknown users are offline.
func (t *Tracker) Online(userID int64) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.online[userID]
}
