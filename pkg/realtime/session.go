// Package realtime implements the collaboration session core: the admission
// gate for incoming channels, the registry of live rooms, and the per-room
// message router that relays chat and dispatches assistant replies.
package realtime

import (
	"time"
)

// TriggerMarker is the substring that addresses the assistant. Detection is
// case-sensitive containment, not tokenization.
const TriggerMarker = "@savana"

// Reserved assistant identity. Real user ids are store-assigned UUIDs, so the
// bare word "savana" can never collide with one.
const (
	AssistantID    = "savana"
	AssistantLabel = "SAVANA"
)

// Identity names a message sender on the wire. For real users both fields
// come from verified claims; for the assistant they are the reserved
// constants above.
type Identity struct {
	ID    string `json:"_id"`
	Email string `json:"email"`
}

// AssistantIdentity returns the synthetic sender attached to generated
// replies.
func AssistantIdentity() Identity {
	return Identity{ID: AssistantID, Email: AssistantLabel}
}

// ChatMessage is one unit of room traffic. Assistant replies carry their
// structured payload (text + optional file tree) serialized as JSON in Text.
type ChatMessage struct {
	Text   string    `json:"newmessage"`
	Sender *Identity `json:"sender,omitempty"`
}

// Session is one admitted, room-bound channel. Identity and RoomID are
// immutable after admission.
type Session struct {
	ChannelID   string
	Identity    Identity
	RoomID      string
	ConnectedAt time.Time
}
