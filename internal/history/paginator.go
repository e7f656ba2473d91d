// Package history drives backward page loading of chat history. All merged
// results flow through the state store's insertion path, so pagination can
// never violate the dedup or ordering invariants.
package history

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/heartlink-app/pulse/internal/api"
	"github.com/heartlink-app/pulse/internal/state"
	"go.uber.org/zap"
)

// DefaultPageSize matches the reference page size of the message endpoint.
const DefaultPageSize = 20

// MessageFetcher is the slice of the request API the paginator consumes.
type MessageFetcher interface {
	Messages(ctx context.Context, chatID int64, limit int, before *time.Time) (*api.MessagePage, error)
}

// Paginator tracks a per-chat cursor: whether older history remains, with
// the store's oldest held message as the exclusive upper bound of the next
// fetch. One load per chat may be in flight at a time.
type Paginator struct {
	fetcher  MessageFetcher
	store    *state.Store
	logger   *zap.Logger
	pageSize int

	mu       sync.Mutex
	hasMore  map[int64]bool
	inflight map[int64]bool
}

// New creates a paginator reading cursors against the given store.
// logger may be nil.
func New(fetcher MessageFetcher, store *state.Store, logger *zap.Logger) *Paginator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Paginator{
		fetcher:  fetcher,
		store:    store,
		logger:   logger,
		pageSize: DefaultPageSize,
		hasMore:  make(map[int64]bool),
		inflight: make(map[int64]bool),
	}
}

// LoadInitial fetches the newest page for a chat and establishes its
// cursor. Safe to call again for the same chat; the merge is idempotent.
func (p *Paginator) LoadInitial(ctx context.Context, chatID int64) error {
	p.mu.Lock()
	if p.inflight[chatID] {
		p.mu.Unlock()
		return nil
	}
	p.inflight[chatID] = true
	p.mu.Unlock()

	page, err := p.fetcher.Messages(ctx, chatID, p.pageSize, nil)

	p.mu.Lock()
	delete(p.inflight, chatID)
	if err != nil {
		p.mu.Unlock()
		return fmt.Errorf("load messages for chat %d: %w", chatID, err)
	}
	p.hasMore[chatID] = page.HasMore
	p.mu.Unlock()

	p.store.ApplyMessagePage(chatID, toState(page.Messages))
	return nil
}

// LoadOlder fetches the next page of strictly older messages for a chat.
// No-op when no older history remains, when no cursor has been established
// yet, when no messages are loaded to anchor the bound, or while another
// load for the chat is pending. A fetch failure leaves all state untouched
// and is returned to the caller; there is no automatic retry.
func (p *Paginator) LoadOlder(ctx context.Context, chatID int64) error {
	oldest, ok := p.store.OldestTimestamp(chatID)
	if !ok {
		return nil
	}

	p.mu.Lock()
	if !p.hasMore[chatID] || p.inflight[chatID] {
		p.mu.Unlock()
		return nil
	}
	p.inflight[chatID] = true
	p.mu.Unlock()

	page, err := p.fetcher.Messages(ctx, chatID, p.pageSize, &oldest)

	p.mu.Lock()
	delete(p.inflight, chatID)
	if err != nil {
		p.mu.Unlock()
		return fmt.Errorf("load older messages for chat %d: %w", chatID, err)
	}
	p.hasMore[chatID] = page.HasMore
	p.mu.Unlock()

	p.store.ApplyMessagePage(chatID, toState(page.Messages))
	p.logger.Debug("older page merged",
		zap.Int64("chat_id", chatID),
		zap.Int("count", len(page.Messages)),
		zap.Bool("has_more", page.HasMore))
	return nil
}

// HasMore reports whether older history remains for a chat.
func (p *Paginator) HasMore(chatID int64) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.hasMore[chatID]
}

func toState(msgs []api.ChatMessage) []state.Message {
	out := make([]state.Message, len(msgs))
	for i, m := range msgs {
		out[i] = m.ToState()
	}
	return out
}
