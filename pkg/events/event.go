package events

import (
	"github.com/crystal-mush/mushchat/pkg/chat"
	"github.com/crystal-mush/mushchat/pkg/gamedb"
)

// EventType classifies events for transport-specific encoding.
type EventType int

const (
	EvText       EventType = iota // Raw text (universal fallback)
	EvChannel                     // Channel message
	EvPresence                    // Channel join/leave/connect notice
	EvConnect                     // Player connected
	EvDisconnect                  // Player disconnected
)

// String returns a human-readable name for the event type.
func (t EventType) String() string {
	switch t {
	case EvText:
		return "text"
	case EvChannel:
		return "channel"
	case EvPresence:
		return "presence"
	case EvConnect:
		return "connect"
	case EvDisconnect:
		return "disconnect"
	default:
		return "unknown"
	}
}

// Event is a structured chat event that flows through the event bus.
// Per-recipient events carry the recipient in Player; the single
// channel-wide copy of a message has Player set to Nothing.
type Event struct {
	Type     EventType
	Player   gamedb.DBRef     // Recipient (Nothing for broadcast)
	Source   gamedb.DBRef     // Who generated the event
	Channel  string           // Channel name (EvChannel, EvPresence)
	Text     string           // Pre-formatted text
	Interact chat.Interaction // How the recipient should filter it
	Spoof    bool             // Source is not to be shown
	Data     map[string]any   // Structured data for JSON clients
}

// Broadcast reports whether ev is the channel-wide copy of a message.
func (ev Event) Broadcast() bool {
	return ev.Player == gamedb.Nothing
}
