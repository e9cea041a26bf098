package services

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

type typingKey struct {
	userID         uint
	conversationID string
}

type typingEntry struct {
	limiter *rate.Limiter
	seen    time.Time
}

// typingLimiter throttles typing-indicator starts per user and conversation.
type typingLimiter struct {
	limit rate.Limit
	burst int

	mu      sync.Mutex
	entries map[typingKey]*typingEntry
}

func newTypingLimiter(perSecond float64, burst int) *typingLimiter {
	if perSecond <= 0 {
		perSecond = 1
	}
	if burst <= 0 {
		burst = 3
	}
	return &typingLimiter{
		limit:   rate.Limit(perSecond),
		burst:   burst,
		entries: make(map[typingKey]*typingEntry),
	}
}

func (l *typingLimiter) Allow(userID uint, conversationID string) bool {
	now := time.Now()
	k := typingKey{userID, conversationID}

	l.mu.Lock()
	defer l.mu.Unlock()
	e, ok := l.entries[k]
	if !ok {
		if len(l.entries) >= 4096 {
			l.evict(now)
		}
		e = &typingEntry{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.entries[k] = e
	}
	e.seen = now
	return e.limiter.AllowN(now, 1)
}

// evict drops limiters idle for a minute; they would be full again anyway.
func (l *typingLimiter) evict(now time.Time) {
	for k, e := range l.entries {
		if now.Sub(e.seen) > time.Minute {
			delete(l.entries, k)
		}
	}
}
