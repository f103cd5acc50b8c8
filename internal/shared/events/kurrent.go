package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/EventStore/EventStore-Client-Go/v4/esdb"
	"github.com/google/uuid"

	"github.com/grievancegenie/platform/internal/shared/config"
)

const streamPrefix = "gg"

// Bus publishes events to KurrentDB. Events with a subject go to one stream
// per complaint so the stream order is the timeline order.
type Bus struct {
	client *esdb.Client
	log    *slog.Logger
}

// NewBus creates a new event bus connected to KurrentDB
func NewBus(ctx context.Context, cfg config.KurrentDBConfig, log *slog.Logger) (*Bus, error) {
	settings, err := esdb.ParseConnectionString(buildConnectionString(cfg))
	if err != nil {
		return nil, fmt.Errorf("failed to parse connection string: %w", err)
	}

	client, err := esdb.NewClient(settings)
	if err != nil {
		return nil, fmt.Errorf("failed to create KurrentDB client: %w", err)
	}

	return &Bus{client: client, log: log.With("component", "kurrentdb_bus")}, nil
}

func buildConnectionString(cfg config.KurrentDBConfig) string {
	var auth string
	if cfg.Username != "" && cfg.Password != "" {
		auth = fmt.Sprintf("%s:%s@", cfg.Username, cfg.Password)
	}

	params := ""
	if cfg.Insecure {
		params = "?tls=false&tlsVerifyCert=false&keepAliveInterval=10000&keepAliveTimeout=10000"
	}

	return fmt.Sprintf("esdb://%s%s:%d%s", auth, cfg.Host, cfg.Port, params)
}

// streamName maps complaint.status_changed for GG-2026-00001 to
// gg-complaint-GG-2026-00001, and subject-less events to gg-<type>.
func streamName(event Event) string {
	if event.Subject != "" {
		return fmt.Sprintf("%s-complaint-%s", streamPrefix, event.Subject)
	}
	return fmt.Sprintf("%s-%s", streamPrefix, strings.ReplaceAll(event.Type, ".", "-"))
}

func (b *Bus) Publish(ctx context.Context, event Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	eventID, err := uuid.Parse(event.ID)
	if err != nil {
		eventID = uuid.New()
	}

	_, err = b.client.AppendToStream(ctx, streamName(event), esdb.AppendToStreamOptions{
		ExpectedRevision: esdb.Any{},
	}, esdb.EventData{
		EventType:   event.Type,
		ContentType: esdb.ContentTypeJson,
		Data:        data,
		EventID:     eventID,
	})
	if err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}

	return nil
}

// Subscribe joins the persistent subscription group on $all named after
// the consumer and pattern, creating it on first use. The server tracks the
// group position, so events appended while the consumer is down are
// delivered when it reconnects.
func (b *Bus) Subscribe(ctx context.Context, pattern string, consumerName string, handler Handler) error {
	group := groupName(consumerName, pattern)

	settings := esdb.SubscriptionSettingsDefault()
	settings.ResolveLinkTos = true

	err := b.client.CreatePersistentSubscriptionToAll(ctx, group, esdb.PersistentAllSubscriptionOptions{
		Settings:  &settings,
		StartFrom: esdb.End{},
	})
	if err != nil {
		esdbErr, ok := esdb.FromError(err)
		if !ok || esdbErr.Code() != esdb.ErrorCodeResourceAlreadyExists {
			return fmt.Errorf("failed to create persistent subscription %q: %w", group, err)
		}
	}

	sub, err := b.client.SubscribeToPersistentSubscriptionToAll(ctx, group, esdb.SubscribeToPersistentSubscriptionOptions{})
	if err != nil {
		return fmt.Errorf("failed to join persistent subscription %q: %w", group, err)
	}

	go b.consume(ctx, sub, pattern, consumerName, handler)
	return nil
}

// groupName maps ("audit-trail", "*") to gg-audit-trail-all and
// ("notifier", "complaint.*") to gg-notifier-complaint-all.
func groupName(consumer, pattern string) string {
	p := strings.NewReplacer(".", "-", "*", "all", ">", "all").Replace(pattern)
	return fmt.Sprintf("%s-%s-%s", streamPrefix, consumer, p)
}

// consume acks handled and foreign events and nacks with retry when the
// handler fails. The server parks an event once its retry count is spent.
func (b *Bus) consume(ctx context.Context, sub *esdb.PersistentSubscription, pattern, consumer string, handler Handler) {
	defer sub.Close()
	log := b.log.With(slog.String("consumer", consumer), slog.String("pattern", pattern))

	for {
		if ctx.Err() != nil {
			return
		}

		subEvent := sub.Recv()
		if subEvent.SubscriptionDropped != nil {
			log.Warn("subscription dropped", slog.Any("error", subEvent.SubscriptionDropped.Error))
			return
		}
		if subEvent.EventAppeared == nil || subEvent.EventAppeared.Event == nil {
			continue
		}

		resolved := subEvent.EventAppeared.Event
		recorded := resolved.Event
		if recorded == nil {
			sub.Ack(resolved)
			continue
		}
		if strings.HasPrefix(recorded.EventType, "$") || !matchesPattern(recorded.EventType, pattern) {
			sub.Ack(resolved)
			continue
		}

		var event Event
		if err := json.Unmarshal(recorded.Data, &event); err != nil {
			// Undecodable data will not improve on retry.
			log.Warn("failed to decode event", slog.String("event_type", recorded.EventType), slog.Any("error", err))
			sub.Nack("undecodable event", esdb.NackActionPark, resolved)
			continue
		}
		if event.ID == "" {
			event.ID = recorded.EventID.String()
		}

		if err := handler(ctx, event); err != nil {
			log.Warn("handler error, retrying", slog.String("event_id", event.ID), slog.Any("error", err))
			sub.Nack("handler error", esdb.NackActionRetry, resolved)
			continue
		}
		sub.Ack(resolved)
	}
}

// Close closes the event bus connection
func (b *Bus) Close() {
	if b.client != nil {
		b.client.Close()
	}
}

// Health reads one event from $streams to verify the connection.
func (b *Bus) Health() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	stream, err := b.client.ReadStream(ctx, "$streams", esdb.ReadStreamOptions{
		From:      esdb.Start{},
		Direction: esdb.Forwards,
	}, 1)
	if err != nil {
		return fmt.Errorf("KurrentDB health check failed: %w", err)
	}
	stream.Close()

	return nil
}
