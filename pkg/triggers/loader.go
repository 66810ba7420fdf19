package triggers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/goliatone/go-datalayer/internal/hydrate"
	"github.com/goliatone/go-datalayer/pkg/persist"
)

// Cache keys inside the triggers namespace.
const (
	ConfigKey       = "luma_customEventsConfig"
	LastModifiedKey = "luma_customEventsConfig_lastModified"
)

// DefaultPath is where the storefront serves its trigger configuration.
const DefaultPath = "/custom-events.json"

const maxConfigBytes = 1 << 20

// Loader fetches the trigger configuration and caches it. A cached copy
// within its TTL is revalidated with If-Modified-Since; any copy, however
// old, is the fallback when the fetch fails.
type Loader struct {
	url    string
	client *http.Client
	cache  *persist.Adapter
	ttl    time.Duration
	logger *zap.Logger
}

// LoaderOption configures a Loader.
type LoaderOption func(*Loader)

// WithHTTPClient sets the client used for fetches.
func WithHTTPClient(client *http.Client) LoaderOption {
	return func(l *Loader) {
		if client != nil {
			l.client = client
		}
	}
}

// WithCacheTTL sets how long a cached copy may be revalidated instead of
// fetched in full.
func WithCacheTTL(ttl time.Duration) LoaderOption {
	return func(l *Loader) {
		if ttl > 0 {
			l.ttl = ttl
		}
	}
}

// WithLoaderLogger sets the logger.
func WithLoaderLogger(logger *zap.Logger) LoaderOption {
	return func(l *Loader) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// NewLoader builds a loader for url. A nil cache keeps the configuration in
// memory only.
func NewLoader(url string, cache *persist.Adapter, opts ...LoaderOption) *Loader {
	if cache == nil {
		cache = persist.NewAdapter(persist.NewMemoryBackend(),
			persist.WithNamespace(persist.NamespaceTriggers),
			persist.WithTTL(persist.TriggersTTL),
		)
	}
	l := &Loader{
		url:    url,
		client: &http.Client{Timeout: 10 * time.Second},
		cache:  cache,
		ttl:    persist.TriggersTTL,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(l)
		}
	}
	l.logger = l.logger.Named("triggers.loader").With(zap.String("url", url))
	return l
}

// Load returns the current configuration, or false when neither the server
// nor the cache can provide one.
func (l *Loader) Load(ctx context.Context) (*Config, bool) {
	cached, hasCache := l.cached(ctx)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, l.url, nil)
	if err != nil {
		l.logger.Error("bad config request", zap.Error(err))
		return cached, hasCache
	}
	if hasCache {
		if age, ok := l.cache.Age(ctx, ConfigKey); ok && age <= l.ttl {
			if lastModified := l.lastModified(ctx); lastModified != "" {
				req.Header.Set("If-Modified-Since", lastModified)
			}
		}
	}

	resp, err := l.client.Do(req)
	if err != nil {
		return l.fallback("network error", err, cached, hasCache)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotModified {
		if !hasCache {
			return l.fallback("not modified without cache", nil, nil, false)
		}
		if err := l.cache.Touch(ctx, ConfigKey); err != nil {
			l.logger.Warn("could not refresh cache timestamp", zap.Error(err))
		}
		l.logger.Debug("config not modified")
		return cached, true
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return l.fallback(statusClass(resp.StatusCode), fmt.Errorf("HTTP %d", resp.StatusCode), cached, hasCache)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxConfigBytes))
	if err != nil {
		return l.fallback("read error", err, cached, hasCache)
	}
	cfg, err := ParseConfig(body)
	if err != nil {
		return l.fallback("parse error", err, cached, hasCache)
	}

	l.store(ctx, cfg, resp.Header.Get("Last-Modified"))
	l.logger.Info("config loaded", zap.Int("entries", len(cfg.Data)))
	return cfg, true
}

// Cached returns the cached configuration regardless of its age.
func (l *Loader) Cached(ctx context.Context) (*Config, bool) {
	return l.cached(ctx)
}

func (l *Loader) cached(ctx context.Context) (*Config, bool) {
	value, _, ok := l.cache.Peek(ctx, ConfigKey)
	if !ok {
		return nil, false
	}
	doc, _ := value.(map[string]any)
	cfg, err := hydrate.Decode[Config](hydrate.Source{Op: "load", Key: ConfigKey}, doc)
	if err != nil {
		l.logger.Warn("cached config is malformed", zap.Error(err))
		return nil, false
	}
	return &cfg, true
}

func (l *Loader) lastModified(ctx context.Context) string {
	value, _, ok := l.cache.Peek(ctx, LastModifiedKey)
	if !ok {
		return ""
	}
	s, _ := value.(string)
	return strings.TrimSpace(s)
}

// store caches cfg. Failures only cost the next fetch.
func (l *Loader) store(ctx context.Context, cfg *Config, lastModified string) {
	if err := l.cache.Save(ctx, ConfigKey, cfg); err != nil {
		return
	}
	if lastModified == "" {
		l.cache.Remove(ctx, LastModifiedKey)
		return
	}
	_ = l.cache.Save(ctx, LastModifiedKey, lastModified)
}

func (l *Loader) fallback(reason string, err error, cached *Config, ok bool) (*Config, bool) {
	fields := []zap.Field{zap.String("reason", reason), zap.Bool("cached", ok)}
	if err != nil && !errors.Is(err, context.Canceled) {
		fields = append(fields, zap.Error(err))
	}
	if ok {
		l.logger.Warn("config fetch failed, using cached copy", fields...)
		return cached, true
	}
	l.logger.Warn("config fetch failed, no cached copy", fields...)
	return nil, false
}

func statusClass(code int) string {
	switch {
	case code >= 500:
		return "server error"
	case code == http.StatusNotFound:
		return "not found"
	case code >= 400:
		return "client error"
	default:
		return "unexpected status"
	}
}
