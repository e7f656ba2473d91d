package transport

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/heartlink-app/pulse/internal/bus"
	"github.com/heartlink-app/pulse/internal/state"
)

// inboundFrame is the superset of all server frame shapes; Type
// discriminates which fields are meaningful.
type inboundFrame struct {
	Type       string       `json:"type"`
	ChatID     int64        `json:"chatId"`
	FromUserID int64        `json:"fromUserId"`
	UserID     int64        `json:"userId"`
	Online     bool         `json:"online"`
	Typing     bool         `json:"typing"`
	Message    *wireMessage `json:"message"`
}

type wireMessage struct {
	ID        int64     `json:"id"`
	ChatID    int64     `json:"chatId"`
	SenderID  int64     `json:"senderId"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// outboundFrame is the only frame shape the client ever sends.
type outboundFrame struct {
	Type   string `json:"type"`
	ChatID int64  `json:"chatId"`
	Typing bool   `json:"typing"`
}

// PresenceUpdate is the payload published for ws.presence events.
type PresenceUpdate struct {
	UserID int64
	Online bool
}

// TypingUpdate is the payload published for ws.typing events.
type TypingUpdate struct {
	ChatID     int64
	FromUserID int64
	Typing     bool
}

// decodeFrame parses a raw frame into a bus event kind and payload.
// Unknown frame types and malformed frames return an error; the caller logs
// and drops them without touching the connection.
func decodeFrame(data []byte) (bus.Kind, any, error) {
	var f inboundFrame
	if err := json.Unmarshal(data, &f); err != nil {
		return "", nil, fmt.Errorf("malformed frame: %w", err)
	}

	switch f.Type {
	case "new_message":
		if f.Message == nil {
			return "", nil, fmt.Errorf("new_message frame without message body")
		}
		chatID := f.ChatID
		if chatID == 0 {
			chatID = f.Message.ChatID
		}
		msg := state.Message{
			ID:        f.Message.ID,
			ChatID:    chatID,
			SenderID:  f.Message.SenderID,
			Content:   f.Message.Content,
			Timestamp: f.Message.Timestamp,
		}
		return bus.InboundMessage, msg, nil

	case "presence":
		return bus.InboundPresence, PresenceUpdate{
			UserID: f.UserID,
			Online: f.Online,
		}, nil

	case "typing":
		return bus.InboundTyping, TypingUpdate{
			ChatID:     f.ChatID,
			FromUserID: f.FromUserID,
			Typing:     f.Typing,
		}, nil

	default:
		return "", nil, fmt.Errorf("unknown frame type %q", f.Type)
	}
}
