package evidence

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"
)

// RedisIndex keeps the duplicate index in one Redis hash so that every
// instance of the service sees the same fingerprints. Fields are
// "<fingerprint>:<photo id>" and values are the JSON entry.
type RedisIndex struct {
	client *redis.Client
	key    string
}

func NewRedisIndex(client *redis.Client, key string) *RedisIndex {
	return &RedisIndex{client: client, key: key}
}

func (r *RedisIndex) Lookup(ctx context.Context, fp Fingerprint, threshold float64) ([]Match, error) {
	raw, err := r.client.HGetAll(ctx, r.key).Result()
	if err != nil {
		return nil, fmt.Errorf("redis index lookup: %w", err)
	}

	entries := make([]IndexEntry, 0, len(raw))
	for field, value := range raw {
		entry, err := decodeEntry(field, value)
		if err != nil {
			continue
		}
		entries = append(entries, entry)
	}
	return matchEntries(entries, fp, threshold), nil
}

func (r *RedisIndex) Insert(ctx context.Context, entry IndexEntry) error {
	field, value, err := encodeEntry(entry)
	if err != nil {
		return err
	}
	if err := r.client.HSetNX(ctx, r.key, field, value).Err(); err != nil {
		return fmt.Errorf("redis index insert: %w", err)
	}
	return nil
}

// Ping checks the Redis connection.
func (r *RedisIndex) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func encodeEntry(e IndexEntry) (string, string, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return "", "", fmt.Errorf("encode index entry: %w", err)
	}
	return e.Fingerprint.String() + ":" + e.PhotoID, string(data), nil
}

func decodeEntry(field, value string) (IndexEntry, error) {
	hash, _, ok := strings.Cut(field, ":")
	if !ok {
		return IndexEntry{}, fmt.Errorf("malformed index field %q", field)
	}
	fp, err := ParseFingerprint(hash)
	if err != nil {
		return IndexEntry{}, err
	}
	var e IndexEntry
	if err := json.Unmarshal([]byte(value), &e); err != nil {
		return IndexEntry{}, fmt.Errorf("decode index entry: %w", err)
	}
	e.Fingerprint = fp
	return e, nil
}

var (
	_ DuplicateIndex = (*MemoryIndex)(nil)
	_ DuplicateIndex = (*RedisIndex)(nil)
)
