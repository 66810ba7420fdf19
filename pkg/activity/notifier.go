package activity

import (
	"context"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/goliatone/go-datalayer/merge"
)

// Notifier broadcasts change notifications to persistent subscribers and to
// one-shot hooks registered with Once.
type Notifier struct {
	mu      sync.Mutex
	hooks   Hooks
	once    Hooks
	// retained is replayed to hooks subscribing after it was delivered,
	// until the next Notify replaces it.
	retained *Event
	channel  string
	now     func() time.Time
	logger  *zap.Logger
}

// NotifierOption configures a Notifier.
type NotifierOption func(*Notifier)

// WithChannel overrides DefaultChannel.
func WithChannel(channel string) NotifierOption {
	return func(n *Notifier) {
		if channel = strings.TrimSpace(channel); channel != "" {
			n.channel = channel
		}
	}
}

// WithHooks registers hooks at construction time.
func WithHooks(hooks ...Hook) NotifierOption {
	return func(n *Notifier) {
		for _, hook := range hooks {
			if hook != nil {
				n.hooks = append(n.hooks, hook)
			}
		}
	}
}

// WithNotifierClock overrides time.Now for OccurredAt.
func WithNotifierClock(now func() time.Time) NotifierOption {
	return func(n *Notifier) {
		if now != nil {
			n.now = now
		}
	}
}

// WithNotifierLogger sets the logger used to report hook failures.
func WithNotifierLogger(logger *zap.Logger) NotifierOption {
	return func(n *Notifier) {
		if logger != nil {
			n.logger = logger
		}
	}
}

// NewNotifier constructs a notifier with no subscribers.
func NewNotifier(opts ...NotifierOption) *Notifier {
	n := &Notifier{
		channel: DefaultChannel,
		now:     time.Now,
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(n)
		}
	}
	return n
}

// Channel returns the channel stamped on every event.
func (n *Notifier) Channel() string {
	return n.channel
}

// Subscribe adds a hook for the notifier's lifetime. If the latest
// notification was sent with NotifyRetained, hook receives it before
// Subscribe returns.
func (n *Notifier) Subscribe(hook Hook) {
	if hook == nil {
		return
	}
	n.mu.Lock()
	n.hooks = append(n.hooks, hook)
	retained := n.retained
	n.mu.Unlock()

	if retained == nil {
		return
	}
	if err := (Hooks{hook}).Notify(context.Background(), *retained); err != nil {
		n.logger.Warn("activity: replay to new subscriber failed",
			zap.String("kind", string(retained.Kind)),
			zap.Error(err),
		)
	}
}

// Once adds a hook that receives only the next notification. Hooks added
// while a notification is being delivered wait for the following one.
func (n *Notifier) Once(hook Hook) {
	if hook == nil {
		return
	}
	n.mu.Lock()
	n.once = append(n.once, hook)
	n.mu.Unlock()
}

// Len returns the number of persistent and pending one-shot hooks.
func (n *Notifier) Len() (subscribers, pendingOnce int) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.hooks), len(n.once)
}

// Notify delivers kind and a copy of snapshot to every subscriber, then to
// the pending one-shot hooks. Hook errors are logged and joined.
func (n *Notifier) Notify(ctx context.Context, kind Kind, snapshot map[string]any) error {
	return n.deliver(ctx, kind, snapshot, false)
}

// NotifyRetained is Notify, and also keeps the event for hooks that
// subscribe before the next notification.
func (n *Notifier) NotifyRetained(ctx context.Context, kind Kind, snapshot map[string]any) error {
	return n.deliver(ctx, kind, snapshot, true)
}

func (n *Notifier) deliver(ctx context.Context, kind Kind, snapshot map[string]any, retain bool) error {
	event := Event{
		Kind:       kind,
		Channel:    n.channel,
		Snapshot:   merge.CloneDocument(snapshot),
		Metadata:   Summarize(snapshot).Metadata(),
		OccurredAt: n.now(),
	}

	n.mu.Lock()
	targets := make(Hooks, 0, len(n.hooks)+len(n.once))
	targets = append(targets, n.hooks...)
	targets = append(targets, n.once...)
	n.once = nil
	n.retained = nil
	if retain {
		kept := event
		kept.Snapshot = merge.CloneDocument(event.Snapshot)
		n.retained = &kept
	}
	n.mu.Unlock()

	if err := targets.Notify(ctx, event); err != nil {
		n.logger.Warn("activity: hook failed",
			zap.String("kind", string(kind)),
			zap.String("channel", n.channel),
			zap.Error(err),
		)
		return err
	}
	return nil
}
