package api

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// roomLimiters is a token-bucket cache keyed by room ID, guarding the
// session endpoints against a single room hammering the daemon. Idle
// entries are evicted lazily on lookup.
type roomLimiters struct {
	mu      sync.Mutex
	entries map[string]*limiterEntry
	rps     rate.Limit
	burst   int
	idleTTL time.Duration
}

type limiterEntry struct {
	lim      *rate.Limiter
	lastSeen time.Time
}

// newRoomLimiters creates a limiter cache. rps <= 0 disables limiting.
func newRoomLimiters(rps float64, burst int) *roomLimiters {
	return &roomLimiters{
		entries: make(map[string]*limiterEntry),
		rps:     rate.Limit(rps),
		burst:   burst,
		idleTTL: 15 * time.Minute,
	}
}

// allow reports whether the room may proceed, consuming one token.
func (l *roomLimiters) allow(roomID string) bool {
	if l.rps <= 0 {
		return true
	}

	now := time.Now()

	l.mu.Lock()
	defer l.mu.Unlock()

	ent, ok := l.entries[roomID]
	if !ok {
		l.evictIdle(now)
		ent = &limiterEntry{lim: rate.NewLimiter(l.rps, l.burst)}
		l.entries[roomID] = ent
	}
	ent.lastSeen = now
	return ent.lim.Allow()
}

// evictIdle drops entries unseen for longer than the idle TTL.
// Caller must hold l.mu.
func (l *roomLimiters) evictIdle(now time.Time) {
	cutoff := now.Add(-l.idleTTL)
	for id, ent := range l.entries {
		if ent.lastSeen.Before(cutoff) {
			delete(l.entries, id)
		}
	}
}
