// Package realtime keeps track of live websocket sessions and delivers
// moderation events to them, including the forced disconnect that follows
// an account block.
package realtime

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

const (
	EventAccountBlocked = "accountBlocked"
	EventNotification   = "notification"
)

// Event is the wire format pushed to clients.
type Event struct {
	RecipientID uuid.UUID       `json:"recipientId"`
	EventType   string          `json:"eventType"`
	Reason      string          `json:"reason,omitempty"`
	ActionTaken string          `json:"actionTaken,omitempty"`
	BlockedAt   *time.Time      `json:"blockedAt,omitempty"`
	ExpiresAt   *time.Time      `json:"expiresAt,omitempty"`
	Data        json.RawMessage `json:"data,omitempty"`
}

// MarshalJSON always writes expiresAt on accountBlocked events; null means
// the block has no end.
func (e Event) MarshalJSON() ([]byte, error) {
	type wire Event
	if e.EventType != EventAccountBlocked {
		return json.Marshal(wire(e))
	}
	return json.Marshal(struct {
		wire
		ExpiresAt *time.Time `json:"expiresAt"`
	}{wire(e), e.ExpiresAt})
}
