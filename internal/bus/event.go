package bus

import "time"

// Kind identifies an event type. The set of kinds is closed: consumers
// subscribe to the constants below rather than arbitrary strings.
type Kind string

const (
	// Inbound transport events, published by the transport manager.
	InboundMessage  Kind = "ws.new_message"
	InboundPresence Kind = "ws.presence"
	InboundTyping   Kind = "ws.typing"

	// Connection lifecycle, published by the connection state machine.
	ConnStateChanged Kind = "conn.state_changed"

	// Store change notifications, published after a mutation commits.
	MessageAdded    Kind = "chat.message_added"
	ChatListUpdated Kind = "chat.list_updated"
	TypingChanged   Kind = "typing.changed"
	PresenceChanged Kind = "presence.changed"
)

// Event represents a domain event published on the bus.
type Event struct {
	Kind      Kind
	Timestamp time.Time
	Payload   any
}

// Handler consumes a published event.
type Handler func(Event)
