package persist

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
)

const timestampSuffix = "_timestamp"

// Well-known namespaces and their default TTLs.
const (
	NamespaceState    = "datalayer"
	NamespaceCheckout = "checkout"
	NamespaceTriggers = "triggers"

	StateTTL    = 30 * 24 * time.Hour
	CheckoutTTL = 90 * 24 * time.Hour
	TriggersTTL = 24 * time.Hour
)

// Adapter stores timestamped JSON entries inside one namespace of a Backend.
// Two adapters over the same backend with different namespaces never see
// each other's keys.
type Adapter struct {
	backend   Backend
	namespace string
	ttl       time.Duration
	now       func() time.Time
	logger    *zap.Logger
}

// Option configures an Adapter.
type Option func(*Adapter)

// WithNamespace sets the key prefix for every entry.
func WithNamespace(namespace string) Option {
	return func(a *Adapter) {
		a.namespace = strings.TrimSpace(namespace)
	}
}

// WithTTL sets the default TTL used by Load when it is called with ttl 0.
// A zero TTL disables expiry.
func WithTTL(ttl time.Duration) Option {
	return func(a *Adapter) {
		a.ttl = ttl
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(a *Adapter) {
		if now != nil {
			a.now = now
		}
	}
}

// WithLogger sets the logger used for storage warnings.
func WithLogger(logger *zap.Logger) Option {
	return func(a *Adapter) {
		if logger != nil {
			a.logger = logger
		}
	}
}

// NewAdapter wraps backend. A nil backend falls back to a fresh MemoryBackend.
func NewAdapter(backend Backend, opts ...Option) *Adapter {
	if backend == nil {
		backend = NewMemoryBackend()
	}
	a := &Adapter{
		backend: backend,
		now:     time.Now,
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(a)
		}
	}
	a.logger = a.logger.With(zap.String("namespace", a.namespace))
	return a
}

// Namespace returns the adapter's key prefix.
func (a *Adapter) Namespace() string {
	return a.namespace
}

// TTL returns the adapter's default TTL.
func (a *Adapter) TTL() time.Duration {
	return a.ttl
}

// Backend returns the underlying storage.
func (a *Adapter) Backend() Backend {
	return a.backend
}

// Save serialises value and writes it with the current timestamp. Errors are
// logged and returned; the caller decides whether durability matters.
func (a *Adapter) Save(ctx context.Context, key string, value any) error {
	payload, err := json.Marshal(value)
	if err != nil {
		a.logger.Warn("persist: encode failed", zap.String("op", "save"), zap.String("key", key), zap.Error(err))
		return fmt.Errorf("persist: encode %q: %w", key, err)
	}
	return a.write(ctx, key, map[string][]byte{
		a.valueKey(key):     payload,
		a.timestampKey(key): a.stamp(),
	})
}

// Load returns the decoded value stored under key. ttl overrides the adapter
// default when positive. An entry older than the TTL is deleted and reported
// as absent, as is anything that cannot be read or decoded.
func (a *Adapter) Load(ctx context.Context, key string, ttl time.Duration) (any, bool) {
	if ttl <= 0 {
		ttl = a.ttl
	}
	raw, ok := a.get(ctx, a.valueKey(key))
	if !ok {
		return nil, false
	}

	if ttl > 0 {
		if writtenAt, found := a.writtenAt(ctx, key); found && a.now().Sub(writtenAt) > ttl {
			a.logger.Info("persist: entry expired",
				zap.String("key", key),
				zap.Time("written_at", writtenAt),
				zap.Duration("ttl", ttl),
			)
			a.Remove(ctx, key)
			return nil, false
		}
	}

	return a.decode(key, raw)
}

// Peek returns the value and its write time without applying any TTL.
func (a *Adapter) Peek(ctx context.Context, key string) (any, time.Time, bool) {
	raw, ok := a.get(ctx, a.valueKey(key))
	if !ok {
		return nil, time.Time{}, false
	}
	value, ok := a.decode(key, raw)
	if !ok {
		return nil, time.Time{}, false
	}
	writtenAt, _ := a.writtenAt(ctx, key)
	return value, writtenAt, true
}

// Age reports how long ago key was last written or touched. Entries without
// a readable timestamp report false.
func (a *Adapter) Age(ctx context.Context, key string) (time.Duration, bool) {
	writtenAt, ok := a.writtenAt(ctx, key)
	if !ok {
		return 0, false
	}
	return a.now().Sub(writtenAt), true
}

// Touch refreshes the timestamp of an existing entry, extending its TTL.
func (a *Adapter) Touch(ctx context.Context, key string) error {
	if _, ok := a.get(ctx, a.valueKey(key)); !ok {
		return nil
	}
	return a.write(ctx, key, map[string][]byte{a.timestampKey(key): a.stamp()})
}

// Remove deletes the value and its timestamp together.
func (a *Adapter) Remove(ctx context.Context, key string) {
	if err := a.backend.Delete(ctx, a.valueKey(key), a.timestampKey(key)); err != nil {
		a.logger.Warn("persist: remove failed", zap.String("op", "remove"), zap.String("key", key), zap.Error(err))
	}
}

func (a *Adapter) write(ctx context.Context, key string, entries map[string][]byte) error {
	var err error
	if batch, ok := a.backend.(BatchSetter); ok {
		err = batch.SetMany(ctx, entries)
	} else {
		for k, v := range entries {
			if err = a.backend.Set(ctx, k, v); err != nil {
				break
			}
		}
	}
	if err != nil {
		a.logger.Warn("persist: write failed, continuing without durability",
			zap.String("op", "save"),
			zap.String("key", key),
			zap.Error(err),
		)
		return fmt.Errorf("persist: write %q: %w", key, err)
	}
	return nil
}

func (a *Adapter) get(ctx context.Context, fullKey string) ([]byte, bool) {
	raw, ok, err := a.backend.Get(ctx, fullKey)
	if err != nil {
		a.logger.Warn("persist: read failed", zap.String("op", "load"), zap.String("key", fullKey), zap.Error(err))
		return nil, false
	}
	return raw, ok
}

func (a *Adapter) decode(key string, raw []byte) (any, bool) {
	var value any
	if err := json.Unmarshal(raw, &value); err != nil {
		a.logger.Warn("persist: decode failed, treating as miss", zap.String("op", "load"), zap.String("key", key), zap.Error(err))
		return nil, false
	}
	return value, true
}

func (a *Adapter) writtenAt(ctx context.Context, key string) (time.Time, bool) {
	raw, ok := a.get(ctx, a.timestampKey(key))
	if !ok {
		return time.Time{}, false
	}
	millis, err := strconv.ParseInt(strings.TrimSpace(string(raw)), 10, 64)
	if err != nil {
		a.logger.Warn("persist: bad timestamp", zap.String("key", key), zap.ByteString("raw", raw))
		return time.Time{}, false
	}
	return time.UnixMilli(millis), true
}

func (a *Adapter) stamp() []byte {
	return []byte(strconv.FormatInt(a.now().UnixMilli(), 10))
}

func (a *Adapter) valueKey(key string) string {
	if a.namespace == "" {
		return key
	}
	return a.namespace + "." + key
}

func (a *Adapter) timestampKey(key string) string {
	return a.valueKey(key) + timestampSuffix
}
