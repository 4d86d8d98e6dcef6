package persistence

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/redis/go-redis/v9"
)

// DefaultRedisKey is the hash holding task snapshots.
const DefaultRedisKey = "smart_tasks"

// RedisMirror keeps task snapshots in one Redis hash, field = task ID.
type RedisMirror struct {
	client *redis.Client
	key    string
}

// NewRedisMirror connects to addr and verifies the connection.
func NewRedisMirror(ctx context.Context, addr, key string) (*RedisMirror, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to reach redis at %s: %w", addr, err)
	}
	return NewRedisMirrorFromClient(client, key), nil
}

// NewRedisMirrorFromClient wraps an existing client.
func NewRedisMirrorFromClient(client *redis.Client, key string) *RedisMirror {
	if key == "" {
		key = DefaultRedisKey
	}
	return &RedisMirror{client: client, key: key}
}

// Put stores value under the task ID.
func (m *RedisMirror) Put(ctx context.Context, key string, value []byte) error {
	if err := m.client.HSet(ctx, m.key, key, value).Err(); err != nil {
		return fmt.Errorf("failed to store %s: %w", key, err)
	}
	return nil
}

// Get returns the snapshot stored under key.
func (m *RedisMirror) Get(ctx context.Context, key string) ([]byte, error) {
	b, err := m.client.HGet(ctx, m.key, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("task %s: %w", key, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load %s: %w", key, err)
	}
	return b, nil
}

// List returns every stored snapshot, ordered by task ID.
func (m *RedisMirror) List(ctx context.Context) ([][]byte, error) {
	all, err := m.client.HGetAll(ctx, m.key).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list snapshots: %w", err)
	}

	ids := make([]string, 0, len(all))
	for id := range all {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	out := make([][]byte, 0, len(ids))
	for _, id := range ids {
		out = append(out, []byte(all[id]))
	}
	return out, nil
}

// Delete removes the snapshot stored under key.
func (m *RedisMirror) Delete(ctx context.Context, key string) error {
	if err := m.client.HDel(ctx, m.key, key).Err(); err != nil {
		return fmt.Errorf("failed to delete %s: %w", key, err)
	}
	return nil
}

// Close closes the underlying client.
func (m *RedisMirror) Close() error {
	return m.client.Close()
}
