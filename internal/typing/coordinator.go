// Package typing turns local keystroke activity into debounced outbound
// typing frames and inbound typing frames into a per-chat flag that expires
// on its own when the remote side goes quiet.
package typing

import (
	"sync"
	"time"

	"github.com/heartlink-app/pulse/internal/bus"
	"go.uber.org/zap"
)

const (
	defaultDebounce = 300 * time.Millisecond
	defaultExpiry   = 3 * time.Second
)

// FrameSender emits outbound typing frames. Satisfied by the transport
// manager; sends are fire-and-forget.
type FrameSender interface {
	SendTyping(chatID int64, typing bool)
}

// Update is the payload for typing.changed bus events.
type Update struct {
	ChatID int64
	Typing bool
}

// Coordinator owns both typing directions. Outbound: bursts of keystrokes
// collapse into one frame carrying the latest value once the debounce
// window elapses; a pending window is never reset by further keystrokes.
// Inbound: a start flag auto-clears after the expiry window unless
// refreshed; events from the local user never set a flag.
type Coordinator struct {
	sender   FrameSender
	bus      *bus.Bus
	logger   *zap.Logger
	debounce time.Duration
	expiry   time.Duration

	mu     sync.Mutex
	selfID int64

	// Outbound debounce: one shared window, latest chat and value win.
	emitTimer   *time.Timer
	emitChatID  int64
	emitPending bool

	// Inbound flags with per-chat expiry generations. The generation guards
	// against a stale timer clearing a flag that a newer start refreshed.
	typing map[int64]bool
	gens   map[int64]uint64
	timers map[int64]*time.Timer
}

// New creates a coordinator with the default debounce and expiry windows.
// b and logger may be nil.
func New(sender FrameSender, b *bus.Bus, logger *zap.Logger) *Coordinator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Coordinator{
		sender:   sender,
		bus:      b,
		logger:   logger,
		debounce: defaultDebounce,
		expiry:   defaultExpiry,
		typing:   make(map[int64]bool),
		gens:     make(map[int64]uint64),
		timers:   make(map[int64]*time.Timer),
	}
}

// SetSelfID records the local user id so self-authored typing events can be
// ignored.
func (c *Coordinator) SetSelfID(id int64) {
	c.mu.Lock()
	c.selfID = id
	c.mu.Unlock()
}

// InputChanged records local keystroke activity for a chat. hasText is
// whether the input field is currently non-empty. The network emission is
// deferred to the end of the debounce window and carries the latest value.
func (c *Coordinator) InputChanged(chatID int64, hasText bool) {
	c.mu.Lock()
	c.emitChatID = chatID
	c.emitPending = hasText
	if c.emitTimer != nil {
		// Window already open: value updated, timer untouched.
		c.mu.Unlock()
		return
	}
	c.emitTimer = time.AfterFunc(c.debounce, c.emitNow)
	c.mu.Unlock()
}

// MessageSent clears the remote typing indicator promptly after a send:
// typing=false goes out immediately and any pending debounce window is
// discarded so it cannot re-assert a stale value.
func (c *Coordinator) MessageSent(chatID int64) {
	c.mu.Lock()
	if c.emitTimer != nil {
		c.emitTimer.Stop()
		c.emitTimer = nil
	}
	c.mu.Unlock()
	c.sender.SendTyping(chatID, false)
}

func (c *Coordinator) emitNow() {
	c.mu.Lock()
	c.emitTimer = nil
	chatID, val := c.emitChatID, c.emitPending
	c.mu.Unlock()
	c.sender.SendTyping(chatID, val)
}

// HandleTyping processes an inbound typing event.
func (c *Coordinator) HandleTyping(chatID, fromUserID int64, isTyping bool) {
	c.mu.Lock()
	if c.selfID != 0 && fromUserID == c.selfID {
		c.mu.Unlock()
		return
	}

	changed := c.typing[chatID] != isTyping
	c.gens[chatID]++
	if t := c.timers[chatID]; t != nil {
		t.Stop()
		delete(c.timers, chatID)
	}

	if isTyping {
		c.typing[chatID] = true
		gen := c.gens[chatID]
		c.timers[chatID] = time.AfterFunc(c.expiry, func() {
			c.expire(chatID, gen)
		})
	} else {
		delete(c.typing, chatID)
	}
	c.mu.Unlock()

	if changed {
		c.publish(chatID, isTyping)
	}
}

// IsTyping reports whether the counterpart in a chat is currently typing.
func (c *Coordinator) IsTyping(chatID int64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.typing[chatID]
}

// Stop cancels all pending timers.
func (c *Coordinator) Stop() {
	c.mu.Lock()
	if c.emitTimer != nil {
		c.emitTimer.Stop()
		c.emitTimer = nil
	}
	for id, t := range c.timers {
		t.Stop()
		delete(c.timers, id)
	}
	c.mu.Unlock()
}

func (c *Coordinator) expire(chatID int64, gen uint64) {
	c.mu.Lock()
	if c.gens[chatID] != gen || !c.typing[chatID] {
		// Superseded by a newer event; this timer is stale.
		c.mu.Unlock()
		return
	}
	delete(c.typing, chatID)
	delete(c.timers, chatID)
	c.mu.Unlock()

	c.logger.Debug("typing flag expired", zap.Int64("chat_id", chatID))
	c.publish(chatID, false)
}

func (c *Coordinator) publish(chatID int64, isTyping bool) {
	if c.bus == nil {
		return
	}
	c.bus.Publish(bus.Event{
		Kind:      bus.TypingChanged,
		Timestamp: time.Now(),
		Payload:   Update{ChatID: chatID, Typing: isTyping},
	})
}
