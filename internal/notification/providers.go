package notification

import (
	"context"
	"log/slog"
)

// Provider delivers a notification over its channel.
type Provider interface {
	Send(ctx context.Context, n *Notification) error
}

// ProviderFunc adapts a function to Provider.
type ProviderFunc func(ctx context.Context, n *Notification) error

func (f ProviderFunc) Send(ctx context.Context, n *Notification) error { return f(ctx, n) }

// LogProvider writes notifications to the structured log. It backs the
// in-app channel until a push gateway is configured.
type LogProvider struct {
	log *slog.Logger
}

func NewLogProvider(log *slog.Logger) *LogProvider {
	return &LogProvider{log: log.With("provider", "log")}
}

func (p *LogProvider) Send(ctx context.Context, n *Notification) error {
	p.log.InfoContext(ctx, "notification delivered",
		slog.String("notification_id", n.ID),
		slog.String("kind", string(n.Kind)),
		slog.String("recipient_id", n.RecipientID),
		slog.String("complaint_id", n.ComplaintID),
		slog.String("subject", n.Subject),
	)
	return nil
}
