package cache

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	json "github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"
	"github.com/tovarich86/calculadora-cidada/pkg/constants"
	"github.com/tovarich86/calculadora-cidada/pkg/series"
)

// Entry is what a Store keeps: the raw provider rows and when they were fetched.
type Entry struct {
	FetchedAt time.Time         `json:"fetchedAt"`
	Points    []series.RawPoint `json:"points"`
}

// Store persists the raw rows between fetches.
type Store interface {
	Load(ctx context.Context) (Entry, bool, error)
	Save(ctx context.Context, entry Entry, ttl time.Duration) error
	Clear(ctx context.Context) error
}

// MemoryStore keeps the entry in process memory.
type MemoryStore struct {
	mu    sync.Mutex
	entry *Entry
}

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// Load implements Store.
func (m *MemoryStore) Load(ctx context.Context) (Entry, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.entry == nil {
		return Entry{}, false, nil
	}
	return Entry{
		FetchedAt: m.entry.FetchedAt,
		Points:    append([]series.RawPoint(nil), m.entry.Points...),
	}, true, nil
}

// Save implements Store. The ttl is enforced by the SeriesCache reading FetchedAt.
func (m *MemoryStore) Save(ctx context.Context, entry Entry, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entry = &Entry{
		FetchedAt: entry.FetchedAt,
		Points:    append([]series.RawPoint(nil), entry.Points...),
	}
	return nil
}

// Clear implements Store.
func (m *MemoryStore) Clear(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entry = nil
	return nil
}

// RedisStore keeps the entry as a JSON document under a single key so that several
// service replicas share one upstream fetch.
type RedisStore struct {
	client redis.Cmdable
	key    string
	closer io.Closer
}

// NewRedisStore connects to addr. The connection is established lazily by go-redis.
func NewRedisStore(addr, password string, db int, key string) *RedisStore {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	store := NewRedisStoreWithClient(rdb, key)
	store.closer = rdb
	return store
}

// NewRedisStoreWithClient wraps an existing client.
func NewRedisStoreWithClient(client redis.Cmdable, key string) *RedisStore {
	if key == "" {
		key = constants.DefaultRedisKey
	}
	return &RedisStore{client: client, key: key}
}

// Load implements Store.
func (r *RedisStore) Load(ctx context.Context) (Entry, bool, error) {
	val, err := r.client.Get(ctx, r.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, fmt.Errorf("redis get %s: %w", r.key, err)
	}

	var entry Entry
	if err := json.Unmarshal(val, &entry); err != nil {
		return Entry{}, false, fmt.Errorf("decode cached series: %w", err)
	}
	return entry, true, nil
}

// Save implements Store.
func (r *RedisStore) Save(ctx context.Context, entry Entry, ttl time.Duration) error {
	payload, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("encode cached series: %w", err)
	}
	if err := r.client.Set(ctx, r.key, payload, ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", r.key, err)
	}
	return nil
}

// Close releases the connection pool when the store owns its client.
func (r *RedisStore) Close() error {
	if r.closer == nil {
		return nil
	}
	return r.closer.Close()
}

// Clear implements Store.
func (r *RedisStore) Clear(ctx context.Context) error {
	if err := r.client.Del(ctx, r.key).Err(); err != nil {
		return fmt.Errorf("redis del %s: %w", r.key, err)
	}
	return nil
}
