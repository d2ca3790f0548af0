package realtime

import (
	"context"
	"log/slog"
	"sync"

	"github.com/ahmetcoskunkizilkaya/abuse-engine/internal/metrics"
	"github.com/google/uuid"
)

// Session is one live connection.
type Session interface {
	UserID() uuid.UUID
	// Send queues ev for delivery. It returns false when the session is
	// closed or its buffer is full.
	Send(ev Event) bool
	// Close delivers what is already queued, then closes the connection.
	Close(reason string)
}

// Hub owns the registry of live sessions on this node. All access goes
// through its mutex; sessions are closed outside of it.
type Hub struct {
	mu       sync.Mutex
	sessions map[uuid.UUID]map[Session]struct{}
}

func NewHub() *Hub {
	return &Hub{sessions: make(map[uuid.UUID]map[Session]struct{})}
}

func (h *Hub) Register(s Session) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.sessions[s.UserID()]
	if !ok {
		set = make(map[Session]struct{})
		h.sessions[s.UserID()] = set
	}
	if _, dup := set[s]; !dup {
		set[s] = struct{}{}
		metrics.LiveSessions.Inc()
	}
}

// Unregister forgets s. It is safe to call for sessions already dropped
// by Disconnect.
func (h *Hub) Unregister(s Session) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeLocked(s)
}

func (h *Hub) removeLocked(s Session) bool {
	set, ok := h.sessions[s.UserID()]
	if !ok {
		return false
	}
	if _, ok := set[s]; !ok {
		return false
	}
	delete(set, s)
	if len(set) == 0 {
		delete(h.sessions, s.UserID())
	}
	metrics.LiveSessions.Dec()
	return true
}

// Count returns the number of live sessions for userID.
func (h *Hub) Count(userID uuid.UUID) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.sessions[userID])
}

func (h *Hub) snapshot(userID uuid.UUID) []Session {
	h.mu.Lock()
	defer h.mu.Unlock()
	set := h.sessions[userID]
	out := make([]Session, 0, len(set))
	for s := range set {
		out = append(out, s)
	}
	return out
}

// Push delivers ev to every session of userID on this node. Offline users
// are not an error. Sessions that cannot keep up are dropped.
func (h *Hub) Push(_ context.Context, userID uuid.UUID, ev Event) error {
	for _, s := range h.snapshot(userID) {
		if !s.Send(ev) {
			slog.Warn("dropping slow realtime session", "user_id", userID.String())
			h.Unregister(s)
			s.Close("slow consumer")
		}
	}
	return nil
}

// Disconnect removes and closes every session of userID and returns how
// many there were.
func (h *Hub) Disconnect(_ context.Context, userID uuid.UUID, reason string) error {
	h.disconnect(userID, reason)
	return nil
}

func (h *Hub) disconnect(userID uuid.UUID, reason string) int {
	h.mu.Lock()
	set := h.sessions[userID]
	closing := make([]Session, 0, len(set))
	for s := range set {
		if h.removeLocked(s) {
			closing = append(closing, s)
		}
	}
	h.mu.Unlock()

	for _, s := range closing {
		s.Close(reason)
		metrics.ForcedDisconnects.Inc()
	}
	if len(closing) > 0 {
		slog.Info("realtime sessions terminated", "user_id", userID.String(), "sessions", len(closing), "reason", reason)
	}
	return len(closing)
}
