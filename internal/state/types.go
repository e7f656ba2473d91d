package state

import "time"

// Chat is a chat-list preview row. OtherUserID is nil for system or group
// chats. LastTime is nil until the chat has at least one message.
type Chat struct {
	ID          int64
	OtherUserID *int64
	UserName    string
	AvatarURL   *string
	LastMessage string
	LastTime    *time.Time
	UnreadCount int
}

// Message is a chat message in its authoritative server-assigned form.
// IDs are globally unique; within a chat, messages are kept ordered by
// Timestamp ascending.
type Message struct {
	ID        int64
	ChatID    int64
	SenderID  int64
	Content   string
	Timestamp time.Time
}
