package api

import (
	"time"

	"github.com/heartlink-app/pulse/internal/state"
)

// ChatPreview is the wire form of a chat-list row.
type ChatPreview struct {
	ID          int64      `json:"id"`
	OtherUserID *int64     `json:"otherUserId"`
	UserName    string     `json:"userName"`
	AvatarURL   *string    `json:"avatarUrl"`
	LastMessage string     `json:"lastMessage"`
	LastTime    *time.Time `json:"lastTime"`
	UnreadCount int        `json:"unreadCount"`
}

// ChatMessage is the wire form of a persisted message.
type ChatMessage struct {
	ID        int64     `json:"id"`
	ChatID    int64     `json:"chatId"`
	SenderID  int64     `json:"senderId"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// MessagePage is one page of backward-paginated history.
type MessagePage struct {
	Messages []ChatMessage `json:"messages"`
	HasMore  bool          `json:"hasMore"`
}

// ToState converts a wire preview to the store's domain type.
func (p ChatPreview) ToState() state.Chat {
	return state.Chat{
		ID:          p.ID,
		OtherUserID: p.OtherUserID,
		UserName:    p.UserName,
		AvatarURL:   p.AvatarURL,
		LastMessage: p.LastMessage,
		LastTime:    p.LastTime,
		UnreadCount: p.UnreadCount,
	}
}

// ToState converts a wire message to the store's domain type.
func (m ChatMessage) ToState() state.Message {
	return state.Message{
		ID:        m.ID,
		ChatID:    m.ChatID,
		SenderID:  m.SenderID,
		Content:   m.Content,
		Timestamp: m.Timestamp,
	}
}
