package live

import (
	"github.com/furnivision/furnivision/internal/design"
)

// Message types (server -> client). The feed is read-only; anything a
// client sends is discarded.
const (
	TypeHello         = "hello"
	TypeDesignChanged = "design.changed"
	TypeSessionClosed = "session.closed"
)

type Message struct {
	Type        string            `json:"type"`
	SessionID   string            `json:"sessionId"`
	Revision    uint64            `json:"revision,omitempty"`
	Kind        design.ChangeKind `json:"kind,omitempty"`
	FurnitureID int               `json:"furnitureId,omitempty"`
}

func changeMessage(sessionID string, c design.Change) *Message {
	return &Message{
		Type:        TypeDesignChanged,
		SessionID:   sessionID,
		Revision:    c.Revision,
		Kind:        c.Kind,
		FurnitureID: c.FurnitureID,
	}
}
