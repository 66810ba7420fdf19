package activity

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/goliatone/go-datalayer/merge"
)

// Kind tags why a change notification was emitted.
type Kind string

const (
	KindInitialized Kind = "initialized"
	KindRestored    Kind = "restored"
	KindUpdated     Kind = "updated"
)

// DefaultChannel is the channel name carried by store notifications.
const DefaultChannel = "dataLayerUpdated"

// Valid reports whether k is one of the known kinds.
func (k Kind) Valid() bool {
	switch k {
	case KindInitialized, KindRestored, KindUpdated:
		return true
	}
	return false
}

// Event is a store-changed notification. Snapshot is a deep copy of the full
// document at the time of the change.
type Event struct {
	Kind       Kind
	Channel    string
	Snapshot   map[string]any
	Metadata   map[string]any
	OccurredAt time.Time
}

// Hook receives change notifications.
type Hook interface {
	Notify(ctx context.Context, event Event) error
}

// HookFunc allows plain functions to satisfy Hook.
type HookFunc func(ctx context.Context, event Event) error

// Notify dispatches to the underlying function.
func (fn HookFunc) Notify(ctx context.Context, event Event) error {
	if fn == nil {
		return nil
	}
	return fn(ctx, event)
}

// Hooks fans out events to zero or more hooks.
type Hooks []Hook

// Enabled reports whether there are any hooks to notify.
func (h Hooks) Enabled() bool {
	return len(h) > 0
}

// Notify forwards the event to every hook, returning a joined error if any
// fail. Events with an unknown kind are dropped. Each hook gets its own copy
// of the snapshot so one subscriber can never alter what another observes.
func (h Hooks) Notify(ctx context.Context, event Event) error {
	if len(h) == 0 {
		return nil
	}

	normalized := NormalizeEvent(event)
	if !normalized.Kind.Valid() {
		return nil
	}

	if ctx == nil {
		ctx = context.Background()
	}

	var errs []error
	for _, hook := range h {
		if hook == nil {
			continue
		}
		delivered := normalized
		delivered.Snapshot = merge.CloneDocument(normalized.Snapshot)
		delivered.Metadata = cloneMap(normalized.Metadata)
		if err := hook.Notify(ctx, delivered); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) == 0 {
		return nil
	}
	return errors.Join(errs...)
}

// NormalizeEvent trims string fields, clones metadata and ensures a timestamp.
func NormalizeEvent(event Event) Event {
	normalized := event
	normalized.Kind = Kind(strings.TrimSpace(string(event.Kind)))
	normalized.Channel = strings.TrimSpace(event.Channel)
	normalized.Metadata = cloneMap(event.Metadata)
	if normalized.OccurredAt.IsZero() {
		normalized.OccurredAt = time.Now()
	}
	return normalized
}

func cloneMap(src map[string]any) map[string]any {
	if len(src) == 0 {
		return nil
	}
	dst := make(map[string]any, len(src))
	for key, value := range src {
		dst[key] = value
	}
	return dst
}
