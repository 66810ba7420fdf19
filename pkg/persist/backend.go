package persist

import (
	"context"
	"errors"
)

var (
	// ErrQuotaExceeded reports that a backend has no room for a write.
	ErrQuotaExceeded = errors.New("persist: storage quota exceeded")
	// ErrBackendClosed reports use of a closed backend.
	ErrBackendClosed = errors.New("persist: backend closed")
)

// Backend stores raw byte strings under string keys.
type Backend interface {
	Get(ctx context.Context, key string) (value []byte, ok bool, err error)
	Set(ctx context.Context, key string, value []byte) error
	// Delete removes every key in one operation. Missing keys are ignored.
	Delete(ctx context.Context, keys ...string) error
}

// BatchSetter is implemented by backends that can write several keys
// atomically. Adapter uses it to store a value together with its timestamp.
type BatchSetter interface {
	SetMany(ctx context.Context, entries map[string][]byte) error
}
