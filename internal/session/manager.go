package session

import (
	"context"
	"sync"
	"time"
)

// DefaultWindow is the number of turns kept per session.
const DefaultWindow = 10

type entry struct {
	turns          []Turn
	lastActivityAt time.Time
}

// History is the process-lifetime in-memory Store. Appends for one session id
// are serialized under the lock; none are lost.
type History struct {
	mu       sync.RWMutex
	sessions map[string]*entry
	window   int
	ttl      time.Duration
	onExpire func(sessionID string)
	now      func() time.Time
}

// NewHistory creates a store keeping the last window turns per session.
// ttl <= 0 disables idle eviction by the janitor.
func NewHistory(window int, ttl time.Duration) *History {
	if window <= 0 {
		window = DefaultWindow
	}
	return &History{
		sessions: make(map[string]*entry),
		window:   window,
		ttl:      ttl,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (h *History) Window() int { return h.window }

func (h *History) SetExpireHook(hook func(sessionID string)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.onExpire = hook
}

func (h *History) Get(sessionID string) []Turn {
	h.mu.RLock()
	defer h.mu.RUnlock()
	e, ok := h.sessions[sessionID]
	if !ok || len(e.turns) == 0 {
		return nil
	}
	return cloneTurns(e.turns)
}

// LastActivity reports when the session was last appended to.
func (h *History) LastActivity(sessionID string) (time.Time, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	e, ok := h.sessions[sessionID]
	if !ok {
		return time.Time{}, false
	}
	return e.lastActivityAt, true
}

func (h *History) Append(sessionID string, turn Turn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	e, ok := h.sessions[sessionID]
	if !ok {
		e = &entry{}
		h.sessions[sessionID] = e
	}
	e.turns = append(e.turns, turn)
	if over := len(e.turns) - h.window; over > 0 {
		// Copy so the evicted prefix is not pinned by the backing array.
		e.turns = cloneTurns(e.turns[over:])
	}
	e.lastActivityAt = h.now()
}

func (h *History) Evict(sessionID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.sessions, sessionID)
}

// Count returns the number of sessions currently held.
func (h *History) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions)
}

// StartJanitor evicts idle sessions every interval until ctx is done.
// It is a no-op when the store was built without a ttl.
func (h *History) StartJanitor(ctx context.Context, interval time.Duration) {
	if h.ttl <= 0 {
		return
	}
	if interval <= 0 {
		interval = 5 * time.Second
	}
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				h.expireInactive()
			}
		}
	}()
}

func (h *History) expireInactive() {
	now := h.now()
	var expired []string

	h.mu.Lock()
	for id, e := range h.sessions {
		if now.Sub(e.lastActivityAt) < h.ttl {
			continue
		}
		delete(h.sessions, id)
		expired = append(expired, id)
	}
	hook := h.onExpire
	h.mu.Unlock()

	if hook != nil {
		for _, id := range expired {
			hook(id)
		}
	}
}

func cloneTurns(in []Turn) []Turn {
	out := make([]Turn, len(in))
	copy(out, in)
	return out
}
