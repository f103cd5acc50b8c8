package audit

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/grievancegenie/platform/internal/shared/events"
	"github.com/grievancegenie/platform/internal/shared/metrics"
)

const verifyPage = 500

// Trail appends every published event to a hash chain and can re-walk the
// chain to prove nothing was altered or dropped.
type Trail struct {
	store Store
	log   *slog.Logger

	mu       sync.Mutex
	loaded   bool
	sequence int64
	lastHash string
}

func NewTrail(log *slog.Logger, store Store) *Trail {
	return &Trail{store: store, log: log.With("component", "audit")}
}

// Initialize loads the chain head. Record calls it lazily.
func (t *Trail) Initialize(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.load(ctx)
}

func (t *Trail) load(ctx context.Context) error {
	if t.loaded {
		return nil
	}
	head, err := t.store.Last(ctx)
	if err != nil {
		return err
	}
	t.sequence, t.lastHash = 0, GenesisHash
	if head != nil {
		t.sequence, t.lastHash = head.Sequence, head.Hash
	}
	t.loaded = true
	return nil
}

// Subscribe attaches the trail to every event on the bus.
func (t *Trail) Subscribe(ctx context.Context, bus events.EventBus) error {
	if err := bus.Subscribe(ctx, "*", "audit-trail", t.Record); err != nil {
		return fmt.Errorf("failed to subscribe audit trail: %w", err)
	}
	return nil
}

// Record links e onto the chain. Redelivered events are skipped.
func (t *Trail) Record(ctx context.Context, e events.Event) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if err := t.load(ctx); err != nil {
		return err
	}

	seen, err := t.store.Has(ctx, e.ID)
	if err != nil {
		return err
	}
	if seen {
		return nil
	}

	entry, err := newEntry(e, t.sequence+1, t.lastHash)
	if err != nil {
		return fmt.Errorf("encode audit payload for %s: %w", e.Type, err)
	}
	if err := t.store.Append(ctx, entry); err != nil {
		// The head may have moved under another writer.
		t.loaded = false
		return err
	}

	t.sequence, t.lastHash = entry.Sequence, entry.Hash
	metrics.RecordAuditEntry()
	return nil
}

// Verify walks the chain from genesis, checking each entry's content hash
// and its link to the previous entry.
func (t *Trail) Verify(ctx context.Context) (*VerifyResult, error) {
	result := &VerifyResult{Valid: true}
	prevHash := GenesisHash
	var prevSeq int64

	for {
		page, err := t.store.List(ctx, prevSeq, verifyPage)
		if err != nil {
			return nil, err
		}
		for _, e := range page {
			result.Checked++

			if !e.VerifyHash() {
				result.ContentInvalid++
				result.Violations = append(result.Violations,
					fmt.Sprintf("entry %d: content hash mismatch", e.Sequence))
			}
			if e.PrevHash != prevHash {
				result.LinkageInvalid++
				result.Violations = append(result.Violations,
					fmt.Sprintf("entry %d: prev_hash does not match entry %d", e.Sequence, prevSeq))
			}
			if e.Sequence != prevSeq+1 {
				result.LinkageInvalid++
				result.Violations = append(result.Violations,
					fmt.Sprintf("entry %d: sequence gap after %d", e.Sequence, prevSeq))
			}

			prevHash, prevSeq = e.Hash, e.Sequence
		}
		if len(page) < verifyPage {
			break
		}
	}

	result.Valid = result.ContentInvalid == 0 && result.LinkageInvalid == 0
	if result.Checked > 0 {
		result.Head = prevHash
	}
	if !result.Valid {
		t.log.Warn("audit chain verification failed",
			slog.Int("checked", result.Checked),
			slog.Int("violations", len(result.Violations)))
	}
	return result, nil
}
