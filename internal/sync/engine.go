// Package sync routes decoded socket events into the in-memory state.
// The engine is the only bridge between the transport's "ws.*" events and
// the chat store, the typing coordinator, and the presence tracker.
package sync

import (
	"github.com/heartlink-app/pulse/internal/bus"
	"github.com/heartlink-app/pulse/internal/presence"
	"github.com/heartlink-app/pulse/internal/state"
	"github.com/heartlink-app/pulse/internal/transport"
	"github.com/heartlink-app/pulse/internal/typing"
	"go.uber.org/zap"
)

// Engine subscribes to inbound socket events and applies them.
type Engine struct {
	store    *state.Store
	typing   *typing.Coordinator
	presence *presence.Tracker
	bus      *bus.Bus
	logger   *zap.Logger

	unsubs []func()
}

// NewEngine wires the router. logger may be nil.
func NewEngine(store *state.Store, tc *typing.Coordinator, pt *presence.Tracker, b *bus.Bus, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		store:    store,
		typing:   tc,
		presence: pt,
		bus:      b,
		logger:   logger,
	}
}

// Start subscribes to the inbound event kinds. Events published before
// Start are not replayed.
func (e *Engine) Start() {
	e.unsubs = []func(){
		e.bus.Subscribe(bus.InboundMessage, e.handleMessage),
		e.bus.Subscribe(bus.InboundTyping, e.handleTyping),
		e.bus.Subscribe(bus.InboundPresence, e.handlePresence),
	}
}

// Stop removes the engine's subscriptions. Idempotent.
func (e *Engine) Stop() {
	for _, unsub := range e.unsubs {
		unsub()
	}
	e.unsubs = nil
}

func (e *Engine) handleMessage(evt bus.Event) {
	msg, ok := evt.Payload.(state.Message)
	if !ok {
		e.logger.Warn("unexpected payload for message event")
		return
	}
	e.store.ApplyIncoming(msg)
}

func (e *Engine) handleTyping(evt bus.Event) {
	upd, ok := evt.Payload.(transport.TypingUpdate)
	if !ok {
		e.logger.Warn("unexpected payload for typing event")
		return
	}
	e.typing.HandleTyping(upd.ChatID, upd.FromUserID, upd.Typing)
}

func (e *Engine) handlePresence(evt bus.Event) {
	upd, ok := evt.Payload.(transport.PresenceUpdate)
	if !ok {
		e.logger.Warn("unexpected payload for presence event")
		return
	}
	e.presence.HandlePresence(upd.UserID, upd.Online)
}
