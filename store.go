package datalayer

import (
	"context"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/goliatone/go-datalayer/internal/hydrate"
	"github.com/goliatone/go-datalayer/merge"
	"github.com/goliatone/go-datalayer/pkg/activity"
	"github.com/goliatone/go-datalayer/pkg/loop"
	"github.com/goliatone/go-datalayer/pkg/persist"
)

// MergeMode selects how an update payload combines with the document.
type MergeMode int

const (
	// ModeDeepMerge merges nested documents key by key.
	ModeDeepMerge MergeMode = iota
	// ModeShallowReplace replaces top-level keys wholesale.
	ModeShallowReplace
)

func (m MergeMode) String() string {
	if m == ModeShallowReplace {
		return "shallow"
	}
	return "deep"
}

// DataLayer is the contract page components are written against.
type DataLayer interface {
	Update(ctx context.Context, payload any) error
	UpdateWith(ctx context.Context, payload any, mode MergeMode) error
	Read(path string) (any, bool)
	Clear(ctx context.Context)
	AddToCart(ctx context.Context, item CartItem) error
	Status() QueueStatus
}

// QueueStatus is a diagnostic view of the store lifecycle.
type QueueStatus struct {
	Ready           bool `json:"ready"`
	Updating        bool `json:"updating"`
	QueueLength     int  `json:"queueLength"`
	CartQueueLength int  `json:"cartQueueLength"`
}

type pendingUpdate struct {
	payload merge.Document
	mode    MergeMode
}

// Store owns the application document. Documents installed in doc are never
// mutated in place; every change builds a new top-level map, so a document
// can be persisted or cloned after mu is released.
type Store struct {
	// updateMu serialises mutators so changes apply in call order.
	updateMu sync.Mutex

	mu        sync.Mutex
	doc       merge.Document
	ready     bool
	updating  bool
	restored  bool
	pending   []pendingUpdate
	cartQueue []CartItem

	state        *persist.Adapter
	notifier     *activity.Notifier
	scheduler    loop.Scheduler
	logger       *zap.Logger
	defaults     merge.Document
	pageTitle    string
	hasPageTitle bool
	storageKey   string
	ttl          time.Duration
	now          func() time.Time
}

var _ DataLayer = (*Store)(nil)

// New constructs an uninitialized store. A nil adapter keeps state in memory
// only.
func New(state *persist.Adapter, opts ...Option) *Store {
	if state == nil {
		state = defaultAdapter()
	}
	s := &Store{
		state:      state,
		notifier:   activity.NewNotifier(),
		scheduler:  loop.Go{},
		logger:     zap.NewNop(),
		defaults:   DefaultDocument(),
		storageKey: StateKey,
		ttl:        persist.StateTTL,
		now:        time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	s.logger = s.logger.Named("datalayer")
	return s
}

// Initialize restores or creates the document, marks the store ready, replays
// queued updates and cart operations in arrival order and schedules a single
// initialized or restored notification.
func (s *Store) Initialize(ctx context.Context) error {
	s.updateMu.Lock()
	defer s.updateMu.Unlock()

	s.mu.Lock()
	ready := s.ready
	s.mu.Unlock()
	if ready {
		return s.fail("initialize", nil, ErrAlreadyInitialized)
	}

	doc, restored := s.restore(ctx)
	doc = s.withPage(doc)
	s.persist(ctx, doc)

	s.mu.Lock()
	s.ready = true
	s.restored = restored
	s.updating = true
	pending, cartQueue := s.pending, s.cartQueue
	s.pending, s.cartQueue = nil, nil
	for _, update := range pending {
		doc = combine(doc, update.payload, update.mode)
	}
	for _, item := range cartQueue {
		next, err := applyCartItem(doc, item)
		if err != nil {
			s.logger.Error("queued cart operation failed", zap.String("id", item.ID), zap.Error(err))
			continue
		}
		doc = next
	}
	s.doc = doc
	s.mu.Unlock()

	if len(pending) > 0 || len(cartQueue) > 0 {
		s.logger.Info("drained queued operations",
			zap.Int("updates", len(pending)),
			zap.Int("cart_operations", len(cartQueue)),
		)
		s.persist(ctx, doc)
	}

	s.mu.Lock()
	s.updating = false
	s.mu.Unlock()

	kind := activity.KindInitialized
	if restored {
		kind = activity.KindRestored
	}
	notifyCtx := context.WithoutCancel(ctx)
	s.scheduler.Defer(func() {
		_ = s.notifier.NotifyRetained(notifyCtx, kind, s.Snapshot())
	})
	return nil
}

// Restored reports whether Initialize adopted a persisted document.
func (s *Store) Restored() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.restored
}

// Update deep-merges payload into the document. Payload may be a map or any
// value that encodes to a JSON object.
func (s *Store) Update(ctx context.Context, payload any) error {
	return s.UpdateWith(ctx, payload, ModeDeepMerge)
}

// UpdateWith applies payload with the given merge mode. Before Initialize the
// update is queued and applied later in call order.
func (s *Store) UpdateWith(ctx context.Context, payload any, mode MergeMode) error {
	doc, err := hydrate.NormalizeDocument(payload)
	if err != nil {
		return s.fail("update", payload, invalidPayload(err))
	}
	return s.commit(ctx, "update",
		func() {
			s.pending = append(s.pending, pendingUpdate{payload: doc, mode: mode})
			s.logger.Debug("store not ready, update queued",
				zap.Stringer("mode", mode),
				zap.Int("queue_length", len(s.pending)),
			)
		},
		func(current merge.Document) (merge.Document, error) {
			return combine(current, doc, mode), nil
		},
	)
}

// Read returns a deep copy of the value at the dotted path, or of the whole
// document when path is empty. It reports false when the store is not ready,
// a segment is missing, or the path walks through a non-document.
func (s *Store) Read(path string) (any, bool) {
	s.mu.Lock()
	if !s.ready {
		s.mu.Unlock()
		s.logger.Warn("read before initialize", zap.String("path", path))
		return nil, false
	}
	doc := s.doc
	s.mu.Unlock()

	path = strings.TrimSpace(path)
	if path == "" {
		return merge.CloneDocument(doc), true
	}
	var current any = doc
	for _, segment := range strings.Split(path, ".") {
		node, ok := current.(map[string]any)
		if !ok {
			return nil, false
		}
		if current, ok = node[segment]; !ok {
			return nil, false
		}
	}
	return merge.Clone(current), true
}

// Snapshot returns a deep copy of the full document, or nil before
// Initialize.
func (s *Store) Snapshot() merge.Document {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.ready {
		return nil
	}
	return merge.CloneDocument(s.doc)
}

// Clear resets the document to the default skeleton with an empty cart,
// drops both queues and removes the persisted entry. Checkout data is kept.
func (s *Store) Clear(ctx context.Context) {
	s.updateMu.Lock()

	s.mu.Lock()
	dropped := len(s.pending) + len(s.cartQueue)
	s.pending, s.cartQueue = nil, nil
	ready := s.ready
	if ready {
		doc := s.withPage(merge.CloneDocument(s.defaults))
		doc["cart"] = EmptyCart()
		s.doc = doc
	}
	s.mu.Unlock()

	s.state.Remove(ctx, s.storageKey)
	s.logger.Info("store cleared", zap.Int("dropped_queued", dropped))
	s.updateMu.Unlock()

	if ready {
		s.notify(ctx, activity.KindUpdated, s.Snapshot())
	}
}

// Status reports readiness and queue lengths.
func (s *Store) Status() QueueStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return QueueStatus{
		Ready:           s.ready,
		Updating:        s.updating,
		QueueLength:     len(s.pending),
		CartQueueLength: len(s.cartQueue),
	}
}

// Subscribe registers hook for every future notification. A hook added after
// the initial notification went out, but before any later one, receives the
// initial notification first.
func (s *Store) Subscribe(hook activity.Hook) {
	s.notifier.Subscribe(hook)
}

// WhenStable runs fn once the store is ready, its update queue is empty and
// no update is in flight. If that is already true fn runs before WhenStable
// returns; otherwise the check is repeated after the next notification.
func (s *Store) WhenStable(fn func()) {
	if fn == nil {
		return
	}
	s.mu.Lock()
	if s.ready && len(s.pending) == 0 && !s.updating {
		s.mu.Unlock()
		fn()
		return
	}
	// Registered under mu so a notification cannot slip between the check
	// and the registration.
	s.notifier.Once(activity.HookFunc(func(context.Context, activity.Event) error {
		s.WhenStable(fn)
		return nil
	}))
	s.mu.Unlock()
}

// commit runs change against the current document when ready, persists the
// result and emits an updated notification. Before Initialize it calls
// enqueue instead, or fails with ErrNotReady when enqueue is nil. Both
// callbacks run with mu held.
func (s *Store) commit(ctx context.Context, op string, enqueue func(), change func(merge.Document) (merge.Document, error)) error {
	s.updateMu.Lock()

	s.mu.Lock()
	if !s.ready {
		defer s.updateMu.Unlock()
		defer s.mu.Unlock()
		if enqueue == nil {
			return s.fail(op, nil, ErrNotReady)
		}
		enqueue()
		return nil
	}
	next, err := change(s.doc)
	if err != nil {
		s.mu.Unlock()
		s.updateMu.Unlock()
		return err
	}
	s.updating = true
	s.doc = next
	s.mu.Unlock()

	s.persist(ctx, next)

	s.mu.Lock()
	s.updating = false
	snapshot := merge.CloneDocument(s.doc)
	s.mu.Unlock()
	s.updateMu.Unlock()

	s.notify(ctx, activity.KindUpdated, snapshot)
	return nil
}

func (s *Store) restore(ctx context.Context) (merge.Document, bool) {
	value, ok := s.state.Load(ctx, s.storageKey, s.ttl)
	if !ok {
		return merge.CloneDocument(s.defaults), false
	}
	doc, isDoc := value.(map[string]any)
	if !isDoc || doc == nil {
		s.logger.Warn("persisted state is not a document, using defaults", zap.String("key", s.storageKey))
		return merge.CloneDocument(s.defaults), false
	}
	s.logger.Info("state restored", zap.String("key", s.storageKey))
	return doc, true
}

func (s *Store) withPage(doc merge.Document) merge.Document {
	if !s.hasPageTitle {
		return doc
	}
	return merge.DeepMerge(doc, merge.Document{
		"page": map[string]any{
			"title": s.pageTitle,
			"name":  strings.ToLower(s.pageTitle),
		},
	})
}

// persist is best effort; the adapter already logs failures.
func (s *Store) persist(ctx context.Context, doc merge.Document) {
	_ = s.state.Save(ctx, s.storageKey, doc)
}

func (s *Store) notify(ctx context.Context, kind activity.Kind, snapshot merge.Document) {
	_ = s.notifier.Notify(ctx, kind, snapshot)
}

func (s *Store) fail(op string, payload any, err error) error {
	s.logger.Error("operation failed",
		zap.String("op", op),
		zap.Any("payload", payload),
		zap.Error(err),
	)
	return &OperationError{Op: op, Payload: payload, Err: err}
}

func combine(doc, payload merge.Document, mode MergeMode) merge.Document {
	if mode == ModeShallowReplace {
		return merge.ShallowReplace(doc, payload)
	}
	return merge.DeepMerge(doc, payload)
}
