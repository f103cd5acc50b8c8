package notification

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/grievancegenie/platform/internal/shared/config"
	"github.com/grievancegenie/platform/internal/shared/metrics"
)

var (
	ErrBufferFull  = errors.New("notification buffer full")
	ErrNotStarted  = errors.New("notification service not started")
	ErrStarted     = errors.New("notification service already started")
	ErrNoRecipient = errors.New("notification has no recipient")
)

const recentPerRecipient = 50

// ServiceConfig sizes the worker pool.
type ServiceConfig struct {
	Workers       int
	BufferSize    int
	RetryAttempts int
	RetryDelay    time.Duration
}

func ConfigFrom(cfg config.NotificationConfig) ServiceConfig {
	return ServiceConfig{
		Workers:       cfg.Workers,
		BufferSize:    cfg.BufferSize,
		RetryAttempts: cfg.RetryAttempts,
		RetryDelay:    cfg.RetryDelay,
	}
}

// Service delivers notifications through a fixed pool of workers. Failed
// deliveries are re-queued after RetryDelay until RetryAttempts is reached.
type Service struct {
	providers map[Channel]Provider
	cfg       ServiceConfig
	log       *slog.Logger

	mu     sync.RWMutex
	recent map[string][]*Notification
	stats  Stats

	queue   chan *Notification
	started bool
	stopCh  chan struct{}
	wg      sync.WaitGroup
}

func NewService(log *slog.Logger, cfg ServiceConfig, providers map[Channel]Provider) *Service {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.RetryAttempts <= 0 {
		cfg.RetryAttempts = 1
	}
	return &Service{
		providers: providers,
		cfg:       cfg,
		log:       log.With("service", "notification"),
		recent:    make(map[string][]*Notification),
		stats:     Stats{ByKind: make(map[Kind]int64)},
		queue:     make(chan *Notification, cfg.BufferSize),
		stopCh:    make(chan struct{}),
	}
}

// Start launches the workers. They exit when ctx is done or Stop is called.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return ErrStarted
	}
	s.started = true

	for i := 0; i < s.cfg.Workers; i++ {
		s.wg.Add(1)
		go s.worker(ctx)
	}
	s.log.Info("notification workers started", slog.Int("workers", s.cfg.Workers))
	return nil
}

// Stop signals the workers and waits for in-flight deliveries.
func (s *Service) Stop() error {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return ErrNotStarted
	}
	s.started = false
	s.mu.Unlock()

	close(s.stopCh)
	s.wg.Wait()
	return nil
}

// Notify queues n for delivery. It never blocks; a full buffer drops n.
// A notification whose ID is already held for the recipient is ignored.
func (s *Service) Notify(n *Notification) error {
	if n.RecipientID == "" {
		return ErrNoRecipient
	}
	now := time.Now().UTC()
	if n.ID == "" {
		n.ID = uuid.New().String()
	}
	if n.Channel == "" {
		n.Channel = ChannelInApp
	}
	n.Status = StatusPending
	n.CreatedAt, n.UpdatedAt = now, now

	s.mu.Lock()
	if s.seen(n) {
		s.mu.Unlock()
		return nil
	}
	s.remember(n)
	s.stats.Queued++
	s.stats.ByKind[n.Kind]++
	s.mu.Unlock()

	select {
	case s.queue <- n:
		return nil
	default:
		s.finish(n, StatusFailed, ErrBufferFull)
		s.mu.Lock()
		s.stats.Dropped++
		s.mu.Unlock()
		return ErrBufferFull
	}
}

func (s *Service) worker(ctx context.Context) {
	defer s.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		case n := <-s.queue:
			s.deliver(ctx, n)
		}
	}
}

func (s *Service) deliver(ctx context.Context, n *Notification) {
	provider, ok := s.providers[n.Channel]
	if !ok {
		s.finish(n, StatusFailed, fmt.Errorf("no provider for channel %s", n.Channel))
		return
	}

	err := provider.Send(ctx, n)
	if err == nil {
		s.finish(n, StatusSent, nil)
		return
	}

	s.mu.Lock()
	n.RetryCount++
	n.ErrorMessage = err.Error()
	n.UpdatedAt = time.Now().UTC()
	attempts := n.RetryCount
	s.mu.Unlock()

	if attempts >= s.cfg.RetryAttempts {
		s.finish(n, StatusFailed, err)
		return
	}

	s.log.Debug("notification delivery failed, retrying",
		slog.String("notification_id", n.ID),
		slog.Int("attempt", attempts),
		slog.Any("error", err),
	)
	time.AfterFunc(s.cfg.RetryDelay, func() {
		select {
		case <-s.stopCh:
		case s.queue <- n:
		default:
			s.finish(n, StatusFailed, ErrBufferFull)
		}
	})
}

func (s *Service) finish(n *Notification, status Status, err error) {
	s.mu.Lock()
	now := time.Now().UTC()
	n.Status = status
	n.UpdatedAt = now
	switch status {
	case StatusSent:
		n.SentAt = &now
		s.stats.Sent++
	case StatusFailed:
		n.ErrorMessage = err.Error()
		s.stats.Failed++
	}
	s.mu.Unlock()

	metrics.RecordNotification(string(n.Kind), string(status))
	if status == StatusFailed {
		s.log.Warn("notification failed",
			slog.String("notification_id", n.ID),
			slog.String("recipient_id", n.RecipientID),
			slog.Any("error", err),
		)
	}
}

// seen reports whether n's ID is already held. Caller holds mu.
func (s *Service) seen(n *Notification) bool {
	for _, old := range s.recent[n.RecipientID] {
		if old.ID == n.ID {
			return true
		}
	}
	return false
}

// remember keeps the newest notifications per recipient. Caller holds mu.
func (s *Service) remember(n *Notification) {
	list := append(s.recent[n.RecipientID], n)
	if len(list) > recentPerRecipient {
		list = list[len(list)-recentPerRecipient:]
	}
	s.recent[n.RecipientID] = list
}

// ForRecipient returns copies of the recipient's recent notifications,
// oldest first.
func (s *Service) ForRecipient(recipientID string) []Notification {
	s.mu.RLock()
	defer s.mu.RUnlock()
	list := s.recent[recipientID]
	out := make([]Notification, len(list))
	for i, n := range list {
		out[i] = *n
	}
	return out
}

// GetStats returns a snapshot of the counters.
func (s *Service) GetStats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := s.stats
	out.ByKind = make(map[Kind]int64, len(s.stats.ByKind))
	for k, v := range s.stats.ByKind {
		out.ByKind[k] = v
	}
	return out
}
