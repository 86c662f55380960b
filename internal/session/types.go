package session

import "time"

// Turn is one user message paired with the assistant reply.
type Turn struct {
	User string `json:"user"`
	AI   string `json:"ai"`
}

// Store holds the bounded recent-turn window per session id.
type Store interface {
	// Get returns a copy of the session's turns, oldest first. Unknown ids yield nil.
	Get(sessionID string) []Turn
	// Append adds turn to the end of the window and drops the oldest overflow.
	Append(sessionID string, turn Turn)
	// Evict forgets the whole session.
	Evict(sessionID string)
}

// HistoryResponse is returned by the history inspection endpoint.
type HistoryResponse struct {
	SessionID      string    `json:"session_id"`
	Window         int       `json:"window"`
	Turns          []Turn    `json:"turns"`
	LastActivityAt time.Time `json:"last_activity_at,omitempty"`
}
