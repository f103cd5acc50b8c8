package events

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/grievancegenie/platform/internal/shared/config"
)

// EventBus defines the interface for event publishing and subscription
type EventBus interface {
	// Publish publishes an event to the bus
	Publish(ctx context.Context, event Event) error

	// Subscribe delivers events matching pattern ("complaint.*", "*") to handler
	// until ctx is cancelled.
	Subscribe(ctx context.Context, pattern string, consumerName string, handler Handler) error

	// Close closes the event bus connection
	Close()

	// Health checks the event bus connection
	Health() error
}

// NewEventBus returns a KurrentDB-backed bus when enabled and reachable,
// otherwise an in-process bus. The second return value names the transport.
func NewEventBus(ctx context.Context, cfg config.KurrentDBConfig, log *slog.Logger) (EventBus, string, error) {
	if !cfg.Enabled {
		return NewLocalBus(log), "local", nil
	}

	timeoutCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	bus, err := NewBus(timeoutCtx, cfg, log)
	if err != nil {
		return nil, "", fmt.Errorf("failed to connect to KurrentDB: %w", err)
	}
	if err := bus.Health(); err != nil {
		bus.Close()
		return nil, "", fmt.Errorf("KurrentDB health check failed: %w", err)
	}
	return bus, "kurrentdb", nil
}

// matchesPattern checks if an event type matches a wildcard pattern.
// "complaint.*" matches "complaint.reported" and "complaint.status.changed".
func matchesPattern(eventType, pattern string) bool {
	if pattern == "*" || pattern == ">" {
		return true
	}

	patternParts := strings.Split(pattern, ".")
	typeParts := strings.Split(eventType, ".")

	for i, pp := range patternParts {
		if pp == "*" {
			return true
		}
		if i >= len(typeParts) || pp != typeParts[i] {
			return false
		}
	}

	return len(patternParts) == len(typeParts)
}

var (
	_ EventBus = (*Bus)(nil)
	_ EventBus = (*LocalBus)(nil)
)
