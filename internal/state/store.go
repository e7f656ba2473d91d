package state

import (
	"sort"
	"sync"
	"time"

	"github.com/heartlink-app/pulse/internal/bus"
	"go.uber.org/zap"
)

// Store is the authoritative in-memory model of chat previews and per-chat
// message lists. It is the single writer of both collections: REST-fetched
// snapshots and socket-delivered deltas all go through its merge entry
// points, so the dedup and ordering invariants hold for every source.
//
// Mutations publish chat.message_added / chat.list_updated events after the
// lock is released; a mutation either applies fully or not at all.
type Store struct {
	mu       sync.RWMutex
	chats    []Chat
	messages map[int64][]Message
	seen     map[int64]map[int64]struct{}
	active   int64
	selfID   int64
	bus      *bus.Bus
	logger   *zap.Logger
}

// New creates an empty store. b and logger may be nil.
func New(b *bus.Bus, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{
		messages: make(map[int64][]Message),
		seen:     make(map[int64]map[int64]struct{}),
		bus:      b,
		logger:   logger,
	}
}

// SetSelfID records the local user's id, used to classify incoming messages
// as self-authored for unread accounting.
func (s *Store) SetSelfID(id int64) {
	s.mu.Lock()
	s.selfID = id
	s.mu.Unlock()
}

// SelfID returns the local user's id, or 0 if not yet known.
func (s *Store) SelfID() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.selfID
}

// SetActiveChat marks chatID as the currently open chat. The active chat's
// unread counter stays pinned at zero while messages arrive for it. Zero
// means no chat is open.
func (s *Store) SetActiveChat(chatID int64) {
	s.mu.Lock()
	s.active = chatID
	s.mu.Unlock()
}

// ActiveChat returns the currently open chat id, or 0.
func (s *Store) ActiveChat() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.active
}

// ApplyChatList replaces the chat-preview collection with the server's
// snapshot. Message collections are untouched.
func (s *Store) ApplyChatList(chats []Chat) {
	s.mu.Lock()
	s.chats = make([]Chat, len(chats))
	copy(s.chats, chats)
	s.mu.Unlock()

	s.publish(bus.ChatListUpdated, nil)
}

// ApplyMessagePage merges a page of history into a chat. Used for both the
// first page and older-page loads; repeated delivery of the same page is a
// no-op thanks to dedup by message id. Previews and unread counters are not
// touched: history is already-seen conversation.
func (s *Store) ApplyMessagePage(chatID int64, msgs []Message) {
	added := 0
	s.mu.Lock()
	for _, m := range msgs {
		if s.insertLocked(chatID, m) {
			added++
		}
	}
	s.mu.Unlock()

	if added > 0 {
		s.publish(bus.MessageAdded, chatID)
	}
}

// ApplyIncoming reconciles a single live message into the store: socket
// deliveries and the server echo of a locally-sent message both land here.
// Duplicates (by id) are discarded; otherwise the message is inserted in
// timestamp order, the owning preview is updated and the chat list is
// re-sorted most-recent-first.
func (s *Store) ApplyIncoming(msg Message) {
	s.mu.Lock()
	if !s.insertLocked(msg.ChatID, msg) {
		s.mu.Unlock()
		s.logger.Debug("duplicate message discarded",
			zap.Int64("chat_id", msg.ChatID), zap.Int64("msg_id", msg.ID))
		return
	}

	fromSelf := s.selfID != 0 && msg.SenderID == s.selfID
	listChanged := false
	for i := range s.chats {
		c := &s.chats[i]
		if c.ID != msg.ChatID {
			continue
		}
		ts := msg.Timestamp
		c.LastMessage = msg.Content
		c.LastTime = &ts
		if s.active != msg.ChatID && !fromSelf {
			c.UnreadCount++
		}
		listChanged = true
		break
	}
	if listChanged {
		s.resortLocked()
	}
	s.mu.Unlock()

	s.publish(bus.MessageAdded, msg)
	if listChanged {
		s.publish(bus.ChatListUpdated, nil)
	}
}

// MarkChatOpened resets a chat's unread counter to zero.
func (s *Store) MarkChatOpened(chatID int64) {
	changed := false
	s.mu.Lock()
	for i := range s.chats {
		if s.chats[i].ID == chatID {
			changed = s.chats[i].UnreadCount != 0
			s.chats[i].UnreadCount = 0
			break
		}
	}
	s.mu.Unlock()

	if changed {
		s.publish(bus.ChatListUpdated, nil)
	}
}

// MessagesFor returns the timestamp-ordered messages of a chat.
func (s *Store) MessagesFor(chatID int64) []Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	msgs := s.messages[chatID]
	out := make([]Message, len(msgs))
	copy(out, msgs)
	return out
}

// Chats returns the preview list, most recently active first.
func (s *Store) Chats() []Chat {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Chat, len(s.chats))
	copy(out, s.chats)
	return out
}

// Chat returns a single preview by id.
func (s *Store) Chat(chatID int64) (Chat, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, c := range s.chats {
		if c.ID == chatID {
			return c, true
		}
	}
	return Chat{}, false
}

// OldestTimestamp returns the timestamp of the oldest message held for a
// chat, the reference point for backward pagination. ok is false when no
// messages are loaded.
func (s *Store) OldestTimestamp(chatID int64) (time.Time, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	msgs := s.messages[chatID]
	if len(msgs) == 0 {
		return time.Time{}, false
	}
	return msgs[0].Timestamp, true
}

// insertLocked adds a message to its chat preserving ascending timestamp
// order. Returns false if the id is already present. Caller holds s.mu.
func (s *Store) insertLocked(chatID int64, m Message) bool {
	ids := s.seen[chatID]
	if ids == nil {
		ids = make(map[int64]struct{})
		s.seen[chatID] = ids
	}
	if _, dup := ids[m.ID]; dup {
		return false
	}
	ids[m.ID] = struct{}{}

	msgs := s.messages[chatID]
	// Equal timestamps keep arrival order: insert after the last equal one.
	i := sort.Search(len(msgs), func(i int) bool {
		return msgs[i].Timestamp.After(m.Timestamp)
	})
	msgs = append(msgs, Message{})
	copy(msgs[i+1:], msgs[i:])
	msgs[i] = m
	s.messages[chatID] = msgs
	return true
}

// resortLocked re-sorts previews by last message time descending. The sort
// is stable so chats without a timestamp keep their relative order at the
// bottom. Recomputed on every incoming message; at tens of chats a full
// stable sort is cheaper to reason about than incremental reordering.
func (s *Store) resortLocked() {
	sort.SliceStable(s.chats, func(i, j int) bool {
		var ti, tj int64
		if s.chats[i].LastTime != nil {
			ti = s.chats[i].LastTime.UnixMilli()
		}
		if s.chats[j].LastTime != nil {
			tj = s.chats[j].LastTime.UnixMilli()
		}
		return ti > tj
	})
}

func (s *Store) publish(kind bus.Kind, payload any) {
	if s.bus == nil {
		return
	}
	s.bus.Publish(bus.Event{Kind: kind, Timestamp: time.Now(), Payload: payload})
}
