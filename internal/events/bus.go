package events

import (
	"context"
	"log"
	"os"
	"sync"
)

// Handler processes a published event. Handlers may block; Publish awaits
// them, PublishSync does not. A handler error is logged and does not stop
// delivery to the remaining handlers.
type Handler func(ctx context.Context, payload any) error

// Subscription is the disposable handle returned by Subscribe. It owns
// exactly one (eventType, handler) registration.
type Subscription struct {
	bus       *Bus
	eventType string
	id        uint64
	handler   Handler
}

// Unsubscribe removes the registration. It is safe to call multiple times
// and from within a handler invoked during the same publish cycle.
func (s *Subscription) Unsubscribe() {
	s.bus.mu.Lock()
	defer s.bus.mu.Unlock()

	subs := s.bus.handlers[s.eventType]
	for i, sub := range subs {
		if sub.id == s.id {
			s.bus.handlers[s.eventType] = append(subs[:i:i], subs[i+1:]...)
			break
		}
	}
	if len(s.bus.handlers[s.eventType]) == 0 {
		delete(s.bus.handlers, s.eventType)
	}
}

// Bus is an in-memory publish/subscribe registry keyed by event-type tag.
//
// The zero value is not usable; construct with NewBus and inject it into
// each component at construction time. There is deliberately no package
// level default instance.
type Bus struct {
	mu       sync.Mutex
	handlers map[string][]*Subscription
	nextID   uint64
	logger   *log.Logger
}

// NewBus creates an event bus. If logger is nil, a default logger writing
// to stderr is used.
func NewBus(logger *log.Logger) *Bus {
	if logger == nil {
		logger = log.New(os.Stderr, "[events] ", log.LstdFlags)
	}
	return &Bus{
		handlers: make(map[string][]*Subscription),
		logger:   logger,
	}
}

// Subscribe registers a handler for the given event type and returns its
// subscription handle.
func (b *Bus) Subscribe(eventType string, handler Handler) *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	sub := &Subscription{
		bus:       b,
		eventType: eventType,
		id:        b.nextID,
		handler:   handler,
	}
	b.handlers[eventType] = append(b.handlers[eventType], sub)
	return sub
}

// Publish delivers the payload to every handler registered for eventType,
// in registration order, waiting for each to complete. A failing handler is
// logged and skipped over; it never aborts the remaining handlers. Publish
// returns an error only when ctx is cancelled mid-dispatch.
func (b *Bus) Publish(ctx context.Context, eventType string, payload any) error {
	for _, sub := range b.snapshot(eventType) {
		if err := ctx.Err(); err != nil {
			return err
		}
		b.invoke(ctx, eventType, sub, payload)
	}
	return nil
}

// PublishSync delivers the payload without waiting for handler completion.
// It is used for invalidation notices where callers don't need to know the
// invalidation finished.
func (b *Bus) PublishSync(eventType string, payload any) {
	subs := b.snapshot(eventType)
	if len(subs) == 0 {
		return
	}
	go func() {
		for _, sub := range subs {
			b.invoke(context.Background(), eventType, sub, payload)
		}
	}()
}

// SubscriptionCount returns the number of handlers registered for the
// given event type.
func (b *Bus) SubscriptionCount(eventType string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.handlers[eventType])
}

// TotalSubscriptions returns the number of handlers registered across all
// event types.
func (b *Bus) TotalSubscriptions() int {
	b.mu.Lock()
	defer b.mu.Unlock()

	total := 0
	for _, subs := range b.handlers {
		total += len(subs)
	}
	return total
}

// snapshot copies the handler list so delivery tolerates subscribers and
// unsubscribers mutating the registry mid-iteration.
func (b *Bus) snapshot(eventType string) []*Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs := b.handlers[eventType]
	if len(subs) == 0 {
		return nil
	}
	out := make([]*Subscription, len(subs))
	copy(out, subs)
	return out
}

// invoke runs a single handler, containing errors and panics. Nothing a
// handler does may crash the host process.
func (b *Bus) invoke(ctx context.Context, eventType string, sub *Subscription, payload any) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Printf("Handler panic for %s: %v", eventType, r)
		}
	}()

	if err := sub.handler(ctx, payload); err != nil {
		b.logger.Printf("Handler error for %s: %v", eventType, err)
	}
}
