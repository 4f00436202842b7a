package tokenstore

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrKeyNotFound is returned by a Backend when the key is absent.
var ErrKeyNotFound = errors.New("tokenstore: key not found")

// Backend is a minimal key-value cache. Any cache abstraction that can get,
// set and delete byte values can be plugged into KV.
type Backend interface {
	// Get returns ErrKeyNotFound if the key does not exist.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores value under key. A zero ttl means no expiry.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete returns nil if the key does not exist.
	Delete(ctx context.Context, key string) error
}

// DefaultNamespace prefixes every key written through KV.
const DefaultNamespace = "fmrest-token"

// KV adapts a Backend to Store. Keys are written as "<namespace>:<key>".
type KV struct {
	backend   Backend
	namespace string
	ttl       time.Duration
}

// KVOption configures a KV adapter.
type KVOption func(*KV)

// WithNamespace overrides DefaultNamespace.
func WithNamespace(ns string) KVOption {
	return func(kv *KV) { kv.namespace = ns }
}

// WithTTL sets the expiry passed to Backend.Set.
func WithTTL(ttl time.Duration) KVOption {
	return func(kv *KV) { kv.ttl = ttl }
}

// NewKV wraps backend. A nil backend uses an in-process MemoryBackend.
func NewKV(backend Backend, opts ...KVOption) *KV {
	if backend == nil {
		backend = NewMemoryBackend()
	}

	kv := &KV{backend: backend, namespace: DefaultNamespace}
	for _, opt := range opts {
		opt(kv)
	}
	return kv
}

func (kv *KV) key(k string) string {
	if kv.namespace == "" {
		return k
	}
	return kv.namespace + ":" + k
}

func (kv *KV) Load(ctx context.Context, key string) (string, bool, error) {
	v, err := kv.backend.Get(ctx, kv.key(key))
	if errors.Is(err, ErrKeyNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return string(v), true, nil
}

func (kv *KV) Store(ctx context.Context, key, token string) error {
	return kv.backend.Set(ctx, kv.key(key), []byte(token), kv.ttl)
}

func (kv *KV) Delete(ctx context.Context, key string) error {
	return kv.backend.Delete(ctx, kv.key(key))
}

// MemoryBackend is a Backend held in process memory, honoring TTLs lazily.
type MemoryBackend struct {
	mu    sync.RWMutex
	items map[string]memoryItem
	now   func() time.Time
}

type memoryItem struct {
	value     []byte
	expiresAt time.Time
}

func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{items: make(map[string]memoryItem), now: time.Now}
}

func (b *MemoryBackend) Get(_ context.Context, key string) ([]byte, error) {
	b.mu.RLock()
	item, ok := b.items[key]
	b.mu.RUnlock()

	if !ok {
		return nil, ErrKeyNotFound
	}
	if b.expired(item) {
		b.removeExpired(key)
		return nil, ErrKeyNotFound
	}
	return item.value, nil
}

func (b *MemoryBackend) expired(item memoryItem) bool {
	return !item.expiresAt.IsZero() && !b.now().Before(item.expiresAt)
}

// removeExpired deletes key only if it is still expired, so a value Set
// after the caller's read survives.
func (b *MemoryBackend) removeExpired(key string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if item, ok := b.items[key]; ok && b.expired(item) {
		delete(b.items, key)
	}
}

func (b *MemoryBackend) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	item := memoryItem{value: append([]byte(nil), value...)}
	if ttl > 0 {
		item.expiresAt = b.now().Add(ttl)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.items[key] = item
	return nil
}

func (b *MemoryBackend) Delete(_ context.Context, key string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.items, key)
	return nil
}
