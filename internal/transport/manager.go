// Package transport owns the single persistent WebSocket connection to the
// message server: connect, token handshake, reconnect and frame decoding.
// Decoded frames fan out as typed bus events; the transport never touches
// chat state itself.
package transport

import (
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/heartlink-app/pulse/internal/bus"
	"github.com/heartlink-app/pulse/internal/connstate"
	"go.uber.org/zap"
)

const defaultRetryDelay = 2 * time.Second

// TokenSource provides the stored session credential. An error means no
// credential exists and no connection attempt is made at all.
type TokenSource interface {
	Token() (string, error)
}

// Manager maintains the duplex connection and its reconnect loop. Connect
// is idempotent; a dropped connection is retried unconditionally on a fixed
// delay until Close is called. Transport failures are never surfaced to
// callers, only reflected through the connection state machine.
type Manager struct {
	wsURL      string
	tokens     TokenSource
	machine    *connstate.Machine
	bus        *bus.Bus
	logger     *zap.Logger
	retryDelay time.Duration

	mu         sync.Mutex
	conn       *websocket.Conn
	connecting bool
	closed     bool
	retryTimer *time.Timer
}

// NewManager creates a transport manager. The connection is not opened
// until Connect is called.
func NewManager(wsURL string, tokens TokenSource, machine *connstate.Machine, b *bus.Bus, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		wsURL:      wsURL,
		tokens:     tokens,
		machine:    machine,
		bus:        b,
		logger:     logger,
		retryDelay: defaultRetryDelay,
	}
}

// Connect opens the WebSocket connection. No-op if a connection is already
// open or in progress, or after Close. Fails without attempting a dial when
// no session credential is stored.
func (m *Manager) Connect() error {
	m.mu.Lock()
	if m.closed || m.conn != nil || m.connecting {
		m.mu.Unlock()
		return nil
	}

	token, err := m.tokens.Token()
	if err != nil {
		m.mu.Unlock()
		return fmt.Errorf("connect: %w", err)
	}

	m.connecting = true
	m.mu.Unlock()

	_ = m.machine.Transition(connstate.Connecting)
	m.logger.Info("connecting to message server", zap.String("url", m.wsURL))

	conn, _, err := websocket.DefaultDialer.Dial(m.wsURL+"?token="+url.QueryEscape(token), nil)

	m.mu.Lock()
	m.connecting = false
	if m.closed {
		m.mu.Unlock()
		if conn != nil {
			_ = conn.Close()
		}
		return nil
	}
	if err != nil {
		m.mu.Unlock()
		m.logger.Warn("dial failed, will retry", zap.Error(err), zap.Duration("delay", m.retryDelay))
		_ = m.machine.Transition(connstate.Disconnected)
		m.mu.Lock()
		m.scheduleReconnect()
		m.mu.Unlock()
		return nil
	}
	m.conn = conn
	m.mu.Unlock()

	_ = m.machine.Transition(connstate.Connected)
	m.logger.Info("connected to message server")

	go m.readLoop(conn)
	return nil
}

// SendTyping emits a typing frame for a chat. Fire-and-forget: the frame is
// silently dropped when the connection is not open, never queued.
func (m *Manager) SendTyping(chatID int64, typing bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.conn == nil {
		m.logger.Debug("typing frame dropped, not connected", zap.Int64("chat_id", chatID))
		return
	}
	frame := outboundFrame{Type: "typing", ChatID: chatID, Typing: typing}
	if err := m.conn.WriteJSON(frame); err != nil {
		m.logger.Warn("typing frame write failed", zap.Error(err))
	}
}

// Close tears the connection down permanently. Further Connect calls are
// no-ops and no reconnect is scheduled.
func (m *Manager) Close() {
	m.mu.Lock()
	m.closed = true
	if m.retryTimer != nil {
		m.retryTimer.Stop()
		m.retryTimer = nil
	}
	conn := m.conn
	m.conn = nil
	m.mu.Unlock()

	if conn != nil {
		_ = conn.Close()
	}
	_ = m.machine.Transition(connstate.Closed)
	m.logger.Info("transport closed")
}

func (m *Manager) readLoop(conn *websocket.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			m.handleDisconnect(conn, err)
			return
		}

		kind, payload, err := decodeFrame(data)
		if err != nil {
			// Per-frame isolation: one bad frame never breaks the stream.
			m.logger.Warn("dropping frame", zap.Error(err))
			continue
		}
		m.bus.Publish(bus.Event{Kind: kind, Timestamp: time.Now(), Payload: payload})
	}
}

func (m *Manager) handleDisconnect(conn *websocket.Conn, cause error) {
	_ = conn.Close()

	m.mu.Lock()
	if m.conn != conn {
		// A newer connection replaced this one; nothing to do.
		m.mu.Unlock()
		return
	}
	m.conn = nil
	closed := m.closed
	m.mu.Unlock()

	if closed {
		return
	}

	m.logger.Warn("connection lost, will retry",
		zap.Error(cause), zap.Duration("delay", m.retryDelay))
	_ = m.machine.Transition(connstate.Disconnected)

	m.mu.Lock()
	m.scheduleReconnect()
	m.mu.Unlock()
}

// scheduleReconnect arms the fixed-delay retry timer. Caller holds m.mu.
func (m *Manager) scheduleReconnect() {
	if m.closed {
		return
	}
	m.retryTimer = time.AfterFunc(m.retryDelay, func() {
		if err := m.Connect(); err != nil {
			m.logger.Warn("reconnect attempt failed", zap.Error(err))
		}
	})
}
