// Package events provides the publish/subscribe broker used for engine and
// registry notifications. Multiple observers can subscribe without
// overwriting each other, and events are delivered to each subscriber in
// publish order.
package events

import (
	"log/slog"
	"sync"
	"time"

	"github.com/ensemble-dev/ensemble/internal/logging"
	"github.com/ensemble-dev/ensemble/pkg/domain"
)

// DefaultBuffer is the per-subscriber channel depth.
const DefaultBuffer = 64

// Broker fans published events out to every subscriber. A slow subscriber
// whose buffer is full loses the event rather than blocking the publisher;
// run progress must never stall on an observer.
type Broker struct {
	mu     sync.Mutex
	subs   map[int]chan domain.Event
	next   int
	buffer int
	logger *slog.Logger
}

// Option configures a Broker.
type Option func(*Broker)

// WithBuffer sets the per-subscriber channel depth.
func WithBuffer(n int) Option {
	return func(b *Broker) {
		if n > 0 {
			b.buffer = n
		}
	}
}

// WithLogger configures a logger for dropped events.
func WithLogger(logger *slog.Logger) Option {
	return func(b *Broker) { b.logger = logger }
}

// NewBroker creates an empty broker.
func NewBroker(opts ...Option) *Broker {
	b := &Broker{
		subs:   make(map[int]chan domain.Event),
		buffer: DefaultBuffer,
		logger: logging.NewNop(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Subscribe registers an observer. The returned cancel function removes the
// subscription and closes the channel; it is safe to call more than once.
func (b *Broker) Subscribe() (<-chan domain.Event, func()) {
	b.mu.Lock()
	id := b.next
	b.next++
	ch := make(chan domain.Event, b.buffer)
	b.subs[id] = ch
	b.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			b.mu.Lock()
			if sub, ok := b.subs[id]; ok {
				delete(b.subs, id)
				close(sub)
			}
			b.mu.Unlock()
		})
	}
	return ch, cancel
}

// Publish delivers the event to every subscriber. The event's timestamp is
// set here if the caller left it zero.
func (b *Broker) Publish(ev domain.Event) {
	if ev.Time.IsZero() {
		ev.Time = time.Now()
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	for id, sub := range b.subs {
		select {
		case sub <- ev:
		default:
			b.logger.Warn("dropping event for slow subscriber", "subscriber", id, "type", ev.Type)
		}
	}
}

// Subscribers returns the current subscription count.
func (b *Broker) Subscribers() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}
