package persist

import (
	"context"
	"sync"
)

// MemoryBackend is an in-process Backend. It is the default for tests and for
// session-scoped stores that do not need to survive a restart.
type MemoryBackend struct {
	mu       sync.RWMutex
	records  map[string][]byte
	maxBytes int
	used     int
}

// MemoryOption configures a MemoryBackend.
type MemoryOption func(*MemoryBackend)

// WithQuota caps the total number of stored bytes (keys plus values). Writes
// that would exceed it fail with ErrQuotaExceeded.
func WithQuota(maxBytes int) MemoryOption {
	return func(b *MemoryBackend) {
		b.maxBytes = maxBytes
	}
}

func NewMemoryBackend(opts ...MemoryOption) *MemoryBackend {
	b := &MemoryBackend{records: map[string][]byte{}}
	for _, opt := range opts {
		if opt != nil {
			opt(b)
		}
	}
	return b
}

func (b *MemoryBackend) Get(_ context.Context, key string) ([]byte, bool, error) {
	b.mu.RLock()
	value, ok := b.records[key]
	b.mu.RUnlock()
	if !ok {
		return nil, false, nil
	}
	return cloneBytes(value), true, nil
}

func (b *MemoryBackend) Set(ctx context.Context, key string, value []byte) error {
	return b.SetMany(ctx, map[string][]byte{key: value})
}

// SetMany writes all entries or none of them.
func (b *MemoryBackend) SetMany(_ context.Context, entries map[string][]byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	used := b.used
	for key, value := range entries {
		if existing, ok := b.records[key]; ok {
			used -= len(key) + len(existing)
		}
		used += len(key) + len(value)
	}
	if b.maxBytes > 0 && used > b.maxBytes {
		return ErrQuotaExceeded
	}
	for key, value := range entries {
		b.records[key] = cloneBytes(value)
	}
	b.used = used
	return nil
}

func (b *MemoryBackend) Delete(_ context.Context, keys ...string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, key := range keys {
		if existing, ok := b.records[key]; ok {
			b.used -= len(key) + len(existing)
			delete(b.records, key)
		}
	}
	return nil
}

// Keys returns the stored keys. Intended for tests and diagnostics.
func (b *MemoryBackend) Keys() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	keys := make([]string, 0, len(b.records))
	for key := range b.records {
		keys = append(keys, key)
	}
	return keys
}

func cloneBytes(value []byte) []byte {
	if value == nil {
		return nil
	}
	out := make([]byte, len(value))
	copy(out, value)
	return out
}
