package audit

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"
	"strings"
	"time"

	"github.com/grievancegenie/platform/internal/shared/events"
)

// GenesisHash is the prev_hash of the first entry in the chain.
var GenesisHash = strings.Repeat("0", 64)

// canonicalJSON produces deterministic JSON output with sorted map keys.
// JSONB reorders keys on the way back out, so hashes are always computed
// over the re-encoded form.
func canonicalJSON(v any) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}

	var parsed any
	if err := json.Unmarshal(data, &parsed); err != nil {
		return nil, err
	}

	return canonicalMarshal(parsed)
}

func canonicalMarshal(v any) ([]byte, error) {
	switch val := v.(type) {
	case map[string]any:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		var buf bytes.Buffer
		buf.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				buf.WriteByte(',')
			}
			keyBytes, _ := json.Marshal(k)
			buf.Write(keyBytes)
			buf.WriteByte(':')
			valBytes, err := canonicalMarshal(val[k])
			if err != nil {
				return nil, err
			}
			buf.Write(valBytes)
		}
		buf.WriteByte('}')
		return buf.Bytes(), nil

	case []any:
		var buf bytes.Buffer
		buf.WriteByte('[')
		for i, item := range val {
			if i > 0 {
				buf.WriteByte(',')
			}
			itemBytes, err := canonicalMarshal(item)
			if err != nil {
				return nil, err
			}
			buf.Write(itemBytes)
		}
		buf.WriteByte(']')
		return buf.Bytes(), nil

	default:
		return json.Marshal(val)
	}
}

// Entry is one immutable link of the audit chain. Every event the core
// publishes becomes exactly one entry; ID is the event ID.
type Entry struct {
	Sequence   int64           `json:"sequence"`
	ID         string          `json:"id"`
	OccurredAt time.Time       `json:"occurred_at"`
	EventType  string          `json:"event_type"`
	Subject    string          `json:"subject,omitempty"`
	ActorID    string          `json:"actor_id,omitempty"`
	ActorRole  string          `json:"actor_role,omitempty"`
	Payload    json.RawMessage `json:"payload"`
	PrevHash   string          `json:"prev_hash"`
	Hash       string          `json:"hash"`
}

// newEntry links event e after prevHash at position seq.
func newEntry(e events.Event, seq int64, prevHash string) (*Entry, error) {
	payload, err := canonicalJSON(e.Data)
	if err != nil {
		return nil, err
	}

	entry := &Entry{
		Sequence: seq,
		ID:       e.ID,
		// Truncated to microseconds so the hash survives a TIMESTAMPTZ round trip.
		OccurredAt: e.Timestamp.UTC().Truncate(time.Microsecond),
		EventType:  e.Type,
		Subject:    e.Subject,
		ActorID:    e.ActorID,
		ActorRole:  e.ActorRole,
		Payload:    payload,
		PrevHash:   prevHash,
	}
	entry.Hash = entry.calculateHash()
	return entry, nil
}

func (e *Entry) calculateHash() string {
	data := map[string]any{
		"sequence":    e.Sequence,
		"id":          e.ID,
		"occurred_at": e.OccurredAt.UTC().Format(time.RFC3339Nano),
		"event_type":  e.EventType,
		"subject":     e.Subject,
		"actor_id":    e.ActorID,
		"actor_role":  e.ActorRole,
		"prev_hash":   e.PrevHash,
	}
	if len(e.Payload) > 0 {
		data["payload"] = e.Payload
	}

	jsonData, _ := canonicalJSON(data)
	hash := sha256.Sum256(jsonData)
	return hex.EncodeToString(hash[:])
}

// VerifyHash reports whether the stored hash still matches the content.
func (e *Entry) VerifyHash() bool {
	return e.Hash == e.calculateHash()
}

// VerifyResult is the outcome of walking the chain from genesis.
type VerifyResult struct {
	Valid          bool     `json:"valid"`
	Checked        int      `json:"checked"`
	ContentInvalid int      `json:"content_invalid"`
	LinkageInvalid int      `json:"linkage_invalid"`
	Head           string   `json:"head,omitempty"`
	Violations     []string `json:"violations,omitempty"`
}
