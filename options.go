package datalayer

import (
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/goliatone/go-datalayer/merge"
	"github.com/goliatone/go-datalayer/pkg/activity"
	"github.com/goliatone/go-datalayer/pkg/loop"
	"github.com/goliatone/go-datalayer/pkg/persist"
)

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the store logger.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithNotifier replaces the notifier used for change notifications.
func WithNotifier(notifier *activity.Notifier) Option {
	return func(s *Store) {
		if notifier != nil {
			s.notifier = notifier
		}
	}
}

// WithScheduler sets where the initial notification is deferred to.
func WithScheduler(scheduler loop.Scheduler) Option {
	return func(s *Store) {
		if scheduler != nil {
			s.scheduler = scheduler
		}
	}
}

// WithPageTitle sets the current page title. Initialize and Clear write it
// to page.title and its lower-cased form to page.name.
func WithPageTitle(title string) Option {
	return func(s *Store) {
		s.pageTitle = title
		s.hasPageTitle = true
	}
}

// WithDefaults replaces the default skeleton.
func WithDefaults(doc merge.Document) Option {
	return func(s *Store) {
		if doc != nil {
			s.defaults = merge.CloneDocument(doc)
		}
	}
}

// WithStorageKey overrides StateKey.
func WithStorageKey(key string) Option {
	return func(s *Store) {
		if key = strings.TrimSpace(key); key != "" {
			s.storageKey = key
		}
	}
}

// WithTTL overrides persist.StateTTL for restores. Non-positive values defer
// to the adapter's own TTL, so an adapter built without one gives a
// session-style store that never expires.
func WithTTL(ttl time.Duration) Option {
	return func(s *Store) {
		s.ttl = ttl
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

func defaultAdapter() *persist.Adapter {
	return persist.NewAdapter(persist.NewMemoryBackend(),
		persist.WithNamespace(persist.NamespaceState),
		persist.WithTTL(persist.StateTTL),
	)
}
