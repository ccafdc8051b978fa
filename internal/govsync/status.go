package govsync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

const historyLimit = 50

// StatusStore keeps the latest status per target, a bounded history of
// finished jobs and the last successful sync time per target.
type StatusStore interface {
	Save(ctx context.Context, st Status) error
	Latest(ctx context.Context, target string) (*Status, error)
	History(ctx context.Context, limit int) ([]Status, error)
	LastSuccess(ctx context.Context, target string) (time.Time, error)
	MarkSuccess(ctx context.Context, target string, at time.Time) error
}

func finished(st Status) bool {
	return st.Status == StatusSuccess || st.Status == StatusFailed
}

// RedisStatusStore stores statuses as JSON strings and history as a capped list.
type RedisStatusStore struct {
	client *redis.Client
	prefix string
}

func NewRedisStatusStore(client *redis.Client) *RedisStatusStore {
	return &RedisStatusStore{client: client, prefix: "attendance:sync:"}
}

func (r *RedisStatusStore) Save(ctx context.Context, st Status) error {
	raw, err := json.Marshal(st)
	if err != nil {
		return err
	}
	pipe := r.client.TxPipeline()
	pipe.Set(ctx, r.prefix+"status:"+st.Target, raw, 0)
	if finished(st) {
		pipe.LPush(ctx, r.prefix+"history", raw)
		pipe.LTrim(ctx, r.prefix+"history", 0, historyLimit-1)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("sync status save: %w", err)
	}
	return nil
}

func (r *RedisStatusStore) Latest(ctx context.Context, target string) (*Status, error) {
	raw, err := r.client.Get(ctx, r.prefix+"status:"+target).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("sync status get: %w", err)
	}
	var st Status
	if err := json.Unmarshal(raw, &st); err != nil {
		return nil, err
	}
	return &st, nil
}

func (r *RedisStatusStore) History(ctx context.Context, limit int) ([]Status, error) {
	if limit <= 0 || limit > historyLimit {
		limit = historyLimit
	}
	rows, err := r.client.LRange(ctx, r.prefix+"history", 0, int64(limit-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("sync history: %w", err)
	}
	out := make([]Status, 0, len(rows))
	for _, row := range rows {
		var st Status
		if err := json.Unmarshal([]byte(row), &st); err == nil {
			out = append(out, st)
		}
	}
	return out, nil
}

func (r *RedisStatusStore) LastSuccess(ctx context.Context, target string) (time.Time, error) {
	v, err := r.client.Get(ctx, r.prefix+"last_success:"+target).Result()
	if errors.Is(err, redis.Nil) {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("sync watermark: %w", err)
	}
	return time.Parse(time.RFC3339Nano, v)
}

func (r *RedisStatusStore) MarkSuccess(ctx context.Context, target string, at time.Time) error {
	return r.client.Set(ctx, r.prefix+"last_success:"+target, at.UTC().Format(time.RFC3339Nano), 0).Err()
}

// MemoryStatusStore is a process-local StatusStore.
type MemoryStatusStore struct {
	mu      sync.Mutex
	latest  map[string]Status
	history []Status
	success map[string]time.Time
}

func NewMemoryStatusStore() *MemoryStatusStore {
	return &MemoryStatusStore{latest: map[string]Status{}, success: map[string]time.Time{}}
}

func (m *MemoryStatusStore) Save(_ context.Context, st Status) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.latest[st.Target] = st
	if finished(st) {
		m.history = append([]Status{st}, m.history...)
		if len(m.history) > historyLimit {
			m.history = m.history[:historyLimit]
		}
	}
	return nil
}

func (m *MemoryStatusStore) Latest(_ context.Context, target string) (*Status, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.latest[target]
	if !ok {
		return nil, nil
	}
	return &st, nil
}

func (m *MemoryStatusStore) History(_ context.Context, limit int) ([]Status, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if limit <= 0 || limit > len(m.history) {
		limit = len(m.history)
	}
	out := make([]Status, limit)
	copy(out, m.history[:limit])
	return out, nil
}

func (m *MemoryStatusStore) LastSuccess(_ context.Context, target string) (time.Time, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.success[target], nil
}

func (m *MemoryStatusStore) MarkSuccess(_ context.Context, target string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.success[target] = at
	return nil
}
