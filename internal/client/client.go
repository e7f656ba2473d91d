// Package client exposes the operations a frontend performs against the
// synchronized chat state: opening chats, sending messages, reporting input
// activity and requesting older history.
package client

import (
	"context"
	"fmt"

	"github.com/heartlink-app/pulse/internal/api"
	"github.com/heartlink-app/pulse/internal/history"
	"github.com/heartlink-app/pulse/internal/state"
	"github.com/heartlink-app/pulse/internal/typing"
	"go.uber.org/zap"
)

// ChatAPI is the slice of the request API the client consumes.
type ChatAPI interface {
	Chats(ctx context.Context) ([]api.ChatPreview, error)
	SendMessage(ctx context.Context, chatID int64, content string) (*api.ChatMessage, error)
}

// Client coordinates user-initiated chat actions across the store, the
// typing coordinator and the paginator.
type Client struct {
	api       ChatAPI
	store     *state.Store
	typing    *typing.Coordinator
	paginator *history.Paginator
	logger    *zap.Logger
}

// New wires the facade. logger may be nil.
func New(a ChatAPI, store *state.Store, tc *typing.Coordinator, pg *history.Paginator, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		api:       a,
		store:     store,
		typing:    tc,
		paginator: pg,
		logger:    logger,
	}
}

// RefreshChats replaces the chat list with the server's current previews.
// Held messages for known chats are unaffected.
func (c *Client) RefreshChats(ctx context.Context) error {
	previews, err := c.api.Chats(ctx)
	if err != nil {
		return fmt.Errorf("refresh chats: %w", err)
	}
	chats := make([]state.Chat, len(previews))
	for i, p := range previews {
		chats[i] = p.ToState()
	}
	c.store.ApplyChatList(chats)
	return nil
}

// OpenChat makes a chat active, clears its unread count and loads its
// newest history page. A page-load failure is returned but the chat stays
// active and marked read.
func (c *Client) OpenChat(ctx context.Context, chatID int64) error {
	c.store.SetActiveChat(chatID)
	c.store.MarkChatOpened(chatID)
	return c.paginator.LoadInitial(ctx, chatID)
}

// CloseChat clears the active chat. Messages arriving afterwards count as
// unread again.
func (c *Client) CloseChat() {
	c.store.SetActiveChat(0)
}

// InputChanged reports the state of the active chat's compose box; the
// typing coordinator debounces the outbound broadcast.
func (c *Client) InputChanged(chatID int64, hasText bool) {
	c.typing.InputChanged(chatID, hasText)
}

// SendMessage submits a message, broadcasting an immediate typing-stop
// first. The server's persisted copy is merged into the store; nothing is
// shown optimistically. On failure the error is returned so the caller can
// keep the composed text.
func (c *Client) SendMessage(ctx context.Context, chatID int64, content string) error {
	c.typing.MessageSent(chatID)

	msg, err := c.api.SendMessage(ctx, chatID, content)
	if err != nil {
		return err
	}
	c.store.ApplyIncoming(msg.ToState())
	return nil
}

// LoadOlder requests the next page of older history for a chat.
func (c *Client) LoadOlder(ctx context.Context, chatID int64) error {
	return c.paginator.LoadOlder(ctx, chatID)
}

// HasMore reports whether older history remains for a chat.
func (c *Client) HasMore(chatID int64) bool {
	return c.paginator.HasMore(chatID)
}
