package bus

import (
	"sync"

	"go.uber.org/zap"
)

// Bus is an in-process publish/subscribe dispatcher. Handlers for a kind
// run synchronously, in subscription order, on the publishing goroutine.
// A panicking handler does not prevent delivery to the remaining handlers.
type Bus struct {
	mu     sync.Mutex
	subs   map[Kind][]*subscription
	next   int
	logger *zap.Logger
}

type subscription struct {
	id      int
	handler Handler
}

// New creates a new event bus. logger may be nil.
func New(logger *zap.Logger) *Bus {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Bus{
		subs:   make(map[Kind][]*subscription),
		logger: logger,
	}
}

// Subscribe registers a handler for the given kind and returns an
// unsubscribe function. Calling it more than once is a no-op.
func (b *Bus) Subscribe(kind Kind, fn Handler) func() {
	b.mu.Lock()
	id := b.next
	b.next++
	b.subs[kind] = append(b.subs[kind], &subscription{id: id, handler: fn})
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		list := b.subs[kind]
		for i, sub := range list {
			if sub.id == id {
				b.subs[kind] = append(list[:i:i], list[i+1:]...)
				return
			}
		}
		// Already removed: no-op.
	}
}

// Publish delivers the event to every handler subscribed to its kind.
// Handlers run outside the bus lock, so they may subscribe or unsubscribe
// without deadlocking; such changes take effect for the next publish.
func (b *Bus) Publish(evt Event) {
	b.mu.Lock()
	list := b.subs[evt.Kind]
	handlers := make([]Handler, len(list))
	for i, sub := range list {
		handlers[i] = sub.handler
	}
	b.mu.Unlock()

	for _, fn := range handlers {
		b.invoke(fn, evt)
	}
}

func (b *Bus) invoke(fn Handler, evt Event) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("event handler panicked",
				zap.String("kind", string(evt.Kind)),
				zap.Any("panic", r))
		}
	}()
	fn(evt)
}
