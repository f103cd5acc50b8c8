package events

import (
	"context"
	"log/slog"
	"slices"
	"sync"
)

// LocalBus delivers events in-process. Publish runs matching handlers
// synchronously in subscription order, so events for one complaint reach
// every subscriber in the order they were published.
type LocalBus struct {
	mu     sync.RWMutex
	subs   map[uint64]subscription
	nextID uint64
	closed bool
	log    *slog.Logger
}

type subscription struct {
	pattern  string
	consumer string
	handler  Handler
}

func NewLocalBus(log *slog.Logger) *LocalBus {
	return &LocalBus{
		subs: make(map[uint64]subscription),
		log:  log.With("component", "local_bus"),
	}
}

func (b *LocalBus) Publish(ctx context.Context, event Event) error {
	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return nil
	}
	ids := make([]uint64, 0, len(b.subs))
	for id := range b.subs {
		ids = append(ids, id)
	}
	targets := make([]subscription, 0, len(ids))
	slices.Sort(ids)
	for _, id := range ids {
		if s := b.subs[id]; matchesPattern(event.Type, s.pattern) {
			targets = append(targets, s)
		}
	}
	b.mu.RUnlock()

	for _, s := range targets {
		if err := s.handler(ctx, event); err != nil {
			b.log.WarnContext(ctx, "event handler failed",
				slog.String("consumer", s.consumer),
				slog.String("event_type", event.Type),
				slog.String("event_id", event.ID),
				slog.Any("error", err),
			)
		}
	}
	return nil
}

func (b *LocalBus) Subscribe(ctx context.Context, pattern string, consumerName string, handler Handler) error {
	b.mu.Lock()
	b.nextID++
	id := b.nextID
	b.subs[id] = subscription{pattern: pattern, consumer: consumerName, handler: handler}
	b.mu.Unlock()

	go func() {
		<-ctx.Done()
		b.mu.Lock()
		delete(b.subs, id)
		b.mu.Unlock()
	}()
	return nil
}

func (b *LocalBus) Close() {
	b.mu.Lock()
	b.closed = true
	b.subs = make(map[uint64]subscription)
	b.mu.Unlock()
}

func (b *LocalBus) Health() error {
	return nil
}
