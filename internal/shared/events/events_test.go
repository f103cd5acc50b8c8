package events

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/grievancegenie/platform/internal/shared/config"
	"github.com/grievancegenie/platform/internal/shared/logging"
)

func TestMatchesPattern(t *testing.T) {
	t.Parallel()

	tests := []struct {
		eventType string
		pattern   string
		want      bool
	}{
		{"complaint.reported", "*", true},
		{"complaint.reported", "complaint.*", true},
		{"complaint.status.changed", "complaint.*", true},
		{"rewards.credited", "complaint.*", false},
		{"complaint.reported", "complaint.reported", true},
		{"complaint.reported", "complaint.reported.extra", false},
		{"complaint", "complaint.reported", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, matchesPattern(tt.eventType, tt.pattern), "%s ~ %s", tt.eventType, tt.pattern)
	}
}

func TestStreamName(t *testing.T) {
	t.Parallel()

	e := NewEvent("complaint.status_changed", "complaint", nil).WithSubject("GG-2026-00001", 3)
	assert.Equal(t, "gg-complaint-GG-2026-00001", streamName(e))
	assert.Equal(t, "gg-rewards-credited", streamName(NewEvent("rewards.credited", "rewards", nil)))
}

func TestGroupName_SeparatesPatternsOfOneConsumer(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "gg-audit-trail-all", groupName("audit-trail", "*"))
	assert.Equal(t, "gg-notifier-complaint-all", groupName("notifier", "complaint.*"))
	assert.Equal(t, "gg-notifier-evidence-decided", groupName("notifier", "evidence.decided"))
	assert.NotEqual(t, groupName("notifier", "complaint.*"), groupName("timeline-stream", "complaint.*"))
	assert.Equal(t, groupName("notifier", "complaint.*"), groupName("notifier", "complaint.*"))
}

func TestLocalBus_DeliversInOrderToMatchingSubscribers(t *testing.T) {
	t.Parallel()

	bus := NewLocalBus(logging.Discard())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var mu sync.Mutex
	var complaints, all []string

	require.NoError(t, bus.Subscribe(ctx, "complaint.*", "timeline", func(_ context.Context, e Event) error {
		mu.Lock()
		defer mu.Unlock()
		complaints = append(complaints, e.Type)
		return nil
	}))
	require.NoError(t, bus.Subscribe(ctx, "*", "audit", func(_ context.Context, e Event) error {
		mu.Lock()
		defer mu.Unlock()
		all = append(all, e.Type)
		return errors.New("ignored")
	}))

	for _, typ := range []string{"complaint.reported", "rewards.credited", "complaint.status_changed"} {
		require.NoError(t, bus.Publish(ctx, NewEvent(typ, "test", nil)))
	}

	assert.Equal(t, []string{"complaint.reported", "complaint.status_changed"}, complaints)
	assert.Equal(t, []string{"complaint.reported", "rewards.credited", "complaint.status_changed"}, all)
}

func TestLocalBus_UnsubscribesOnCancel(t *testing.T) {
	t.Parallel()

	bus := NewLocalBus(logging.Discard())
	ctx, cancel := context.WithCancel(context.Background())

	calls := 0
	var mu sync.Mutex
	require.NoError(t, bus.Subscribe(ctx, "*", "ws", func(context.Context, Event) error {
		mu.Lock()
		calls++
		mu.Unlock()
		return nil
	}))
	cancel()

	require.Eventually(t, func() bool {
		bus.mu.RLock()
		defer bus.mu.RUnlock()
		return len(bus.subs) == 0
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, bus.Publish(context.Background(), NewEvent("complaint.reported", "test", nil)))
	mu.Lock()
	defer mu.Unlock()
	assert.Zero(t, calls)
}

func TestNewEventBus_LocalWhenDisabled(t *testing.T) {
	t.Parallel()

	bus, transport, err := NewEventBus(context.Background(), config.KurrentDBConfig{Enabled: false}, logging.Discard())
	require.NoError(t, err)
	defer bus.Close()

	assert.Equal(t, "local", transport)
	assert.NoError(t, bus.Health())
}
