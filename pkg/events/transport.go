package events

import (
	"github.com/crystal-mush/mushchat/pkg/chat"
	"github.com/crystal-mush/mushchat/pkg/gamedb"
)

// Transport adapts the bus to the chat system. Each delivery goes to the
// recipient's subscribers; each finished broadcast goes once to the
// global subscribers.
type Transport struct {
	bus *Bus
}

// NewTransport creates a chat transport on bus.
func NewTransport(bus *Bus) *Transport {
	return &Transport{bus: bus}
}

// Deliver implements chat.Transport.
func (t *Transport) Deliver(to gamedb.DBRef, text string, d chat.Delivery) {
	t.bus.Send(Event{
		Type:     deliveryType(d),
		Player:   to,
		Source:   d.Speaker,
		Channel:  d.Channel,
		Text:     text,
		Interact: d.Interaction,
		Spoof:    d.Spoof,
	})
}

// Notify sends a private line to a player.
func (t *Transport) Notify(to gamedb.DBRef, text string) {
	t.bus.Send(Event{Type: EvText, Player: to, Source: gamedb.Nothing, Text: text})
}

// MessageBroadcast implements chat.Observer.
func (t *Transport) MessageBroadcast(channel string, speaker gamedb.DBRef, text string, delivered int) {
	t.bus.EmitGlobal(Event{
		Type:    EvChannel,
		Player:  gamedb.Nothing,
		Source:  speaker,
		Channel: channel,
		Text:    text,
		Spoof:   speaker == gamedb.Nothing,
		Data:    map[string]any{"delivered": delivered},
	})
}

func deliveryType(d chat.Delivery) EventType {
	switch {
	case d.Channel == "":
		return EvText
	case d.Interaction == chat.InteractPresence:
		return EvPresence
	default:
		return EvChannel
	}
}
