package triggers

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/goliatone/go-datalayer/pkg/rules"
)

// DefaultReadyTimeout bounds how long Fire waits for a stable data layer.
const DefaultReadyTimeout = 10 * time.Second

var (
	// ErrNotStable is returned when the data layer did not become stable
	// within the ready timeout.
	ErrNotStable = errors.New("triggers: data layer not stable")
	// ErrNoConfig is returned by Start when no configuration is available.
	ErrNoConfig = errors.New("triggers: no configuration available")
)

// StateSource is the data layer as seen by the engine.
type StateSource interface {
	// WhenStable runs fn once the store is ready with no queued or in-flight
	// update.
	WhenStable(fn func())
	Snapshot() map[string]any
}

// Firing describes one dispatched event.
type Firing struct {
	Event   string
	Trigger Kind
	Index   int
	Entry   Entry
	Path    string
	// Target is the matched element for click triggers.
	Target Element
	// Snapshot is the data layer at dispatch time, shared by every sink.
	Snapshot map[string]any
	FiredAt  time.Time
}

// Sink receives fired events.
type Sink interface {
	Fired(ctx context.Context, firing Firing)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, firing Firing)

func (f SinkFunc) Fired(ctx context.Context, firing Firing) {
	if f != nil {
		f(ctx, firing)
	}
}

type handler func(ctx context.Context, index int, entry Entry)

// Engine dispatches configured events for one page.
type Engine struct {
	state        StateSource
	page         Page
	sinks        []Sink
	rules        *rules.Engines
	readyTimeout time.Duration
	logger       *zap.Logger
	now          func() time.Time
	handlers     map[Kind]handler

	mu        sync.Mutex
	listeners map[string]func()
	// loads holds the pending registration per load entry; a callback whose
	// token is no longer current does nothing.
	loads map[string]*struct{}
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithSinks adds sinks that receive every fired event.
func WithSinks(sinks ...Sink) EngineOption {
	return func(e *Engine) {
		for _, sink := range sinks {
			if sink != nil {
				e.sinks = append(e.sinks, sink)
			}
		}
	}
}

// WithRules sets the evaluators used for entry conditions.
func WithRules(engines *rules.Engines) EngineOption {
	return func(e *Engine) {
		if engines != nil {
			e.rules = engines
		}
	}
}

// WithReadyTimeout bounds the wait for a stable data layer. Zero waits until
// the context is done.
func WithReadyTimeout(timeout time.Duration) EngineOption {
	return func(e *Engine) {
		if timeout >= 0 {
			e.readyTimeout = timeout
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) EngineOption {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) EngineOption {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// NewEngine builds an engine firing into page with state as its data layer.
func NewEngine(state StateSource, page Page, opts ...EngineOption) *Engine {
	e := &Engine{
		state:        state,
		page:         page,
		readyTimeout: DefaultReadyTimeout,
		logger:       zap.NewNop(),
		now:          time.Now,
		listeners:    map[string]func(){},
		loads:        map[string]*struct{}{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(e)
		}
	}
	e.logger = e.logger.Named("triggers")
	if e.rules == nil {
		e.rules = rules.NewEngines(rules.WithLogger(e.logger))
	}
	e.handlers = map[Kind]handler{
		KindPageload:         e.fireNow,
		KindDOMContentLoaded: e.fireNow,
		KindLoad:             e.fireOnLoad,
		KindClick:            e.bindClick,
	}
	return e
}

// Start loads the configuration and fires it.
func (e *Engine) Start(ctx context.Context, loader *Loader) error {
	cfg, ok := loader.Load(ctx)
	if !ok {
		e.logger.Warn("custom events not initialized")
		return ErrNoConfig
	}
	return e.Fire(ctx, cfg)
}

// Fire waits until the data layer is stable, then dispatches every entry of
// cfg that matches the current page. It blocks until dispatch, the ready
// timeout or ctx cancellation. Callers driving the store's scheduler on
// the same goroutine must run it before calling Fire.
func (e *Engine) Fire(ctx context.Context, cfg *Config) error {
	if cfg == nil {
		return ErrNoConfig
	}
	if err := e.waitStable(ctx); err != nil {
		e.logger.Warn("data layer not stable, skipping custom events", zap.Error(err))
		return err
	}
	e.dispatch(ctx, cfg)
	return nil
}

func (e *Engine) waitStable(ctx context.Context) error {
	stable := make(chan struct{})
	var once sync.Once
	e.state.WhenStable(func() {
		once.Do(func() { close(stable) })
	})

	var timeout <-chan time.Time
	if e.readyTimeout > 0 {
		timer := time.NewTimer(e.readyTimeout)
		defer timer.Stop()
		timeout = timer.C
	}
	select {
	case <-stable:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-timeout:
		return fmt.Errorf("%w after %s", ErrNotStable, e.readyTimeout)
	}
}

func (e *Engine) dispatch(ctx context.Context, cfg *Config) {
	loc := e.page.Location()
	for index, entry := range cfg.Data {
		if strings.TrimSpace(entry.Event) == "" {
			e.logger.Warn("event name not defined", zap.Int("index", index))
			continue
		}
		if !matches(entry, loc) {
			continue
		}
		kind := entry.Kind()
		h, ok := e.handlers[kind]
		if !ok {
			e.logger.Warn("unknown trigger type", zap.String("trigger", string(kind)), zap.String("event", entry.Event))
			continue
		}
		h(ctx, index, entry)
	}
}

func matches(entry Entry, loc Location) bool {
	return !Excluded(entry.Excludes, loc) && MatchPattern(entry.Page, loc)
}

func (e *Engine) fireNow(ctx context.Context, index int, entry Entry) {
	e.emit(ctx, index, entry, e.page.Location(), nil)
}

func (e *Engine) fireOnLoad(ctx context.Context, index int, entry Entry) {
	if e.page.Loaded() {
		e.emit(ctx, index, entry, e.page.Location(), nil)
		return
	}
	key := fmt.Sprintf("%s_%d", entry.Event, index)
	token := &struct{}{}
	e.mu.Lock()
	e.loads[key] = token
	e.mu.Unlock()

	ctx = context.WithoutCancel(ctx)
	e.page.OnLoad(func() {
		e.mu.Lock()
		current := e.loads[key] == token
		if current {
			delete(e.loads, key)
		}
		e.mu.Unlock()
		if !current {
			return
		}
		if loc := e.page.Location(); matches(entry, loc) {
			e.emit(ctx, index, entry, loc, nil)
		}
	})
}

func (e *Engine) bindClick(ctx context.Context, index int, entry Entry) {
	selector := strings.TrimSpace(entry.Element)
	if selector == "" {
		e.logger.Warn("click trigger requires an element selector", zap.String("event", entry.Event))
		return
	}
	if _, err := ParseSelector(selector); err != nil {
		e.logger.Warn("click trigger selector is not supported", zap.String("event", entry.Event), zap.Error(err))
		return
	}
	key := fmt.Sprintf("%s_%d_%s", entry.Event, index, selector)
	ctx = context.WithoutCancel(ctx)
	remove := e.page.Root().Listen(func(target Element) {
		if target == nil {
			return
		}
		if matched, ok := target.Closest(selector); ok {
			e.emit(ctx, index, entry, e.page.Location(), matched)
		}
	})

	e.mu.Lock()
	previous := e.listeners[key]
	e.listeners[key] = remove
	e.mu.Unlock()
	if previous != nil {
		previous()
	}
}

// Cleanup removes every click listener installed by the engine, cancels
// load triggers still waiting for the page, and returns how many click
// listeners there were.
func (e *Engine) Cleanup() int {
	e.mu.Lock()
	listeners := e.listeners
	e.listeners = map[string]func(){}
	e.loads = map[string]*struct{}{}
	e.mu.Unlock()

	for _, remove := range listeners {
		remove()
	}
	return len(listeners)
}

// Listeners returns the number of installed delegated listeners.
func (e *Engine) Listeners() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.listeners)
}

func (e *Engine) emit(ctx context.Context, index int, entry Entry, loc Location, target Element) {
	snapshot := e.state.Snapshot()
	now := e.now()
	if condition := strings.TrimSpace(entry.Condition); condition != "" {
		ok, err := e.rules.Test(rules.RuleContext{
			Snapshot: snapshot,
			Now:      &now,
			Path:     loc.Path,
			Metadata: map[string]any{"event": entry.Event, "trigger": string(entry.Kind())},
		}, entry.Engine, condition)
		if err != nil || !ok {
			e.logger.Debug("condition not met", zap.String("event", entry.Event), zap.Bool("error", err != nil))
			return
		}
	}

	firing := Firing{
		Event:    entry.Event,
		Trigger:  entry.Kind(),
		Index:    index,
		Entry:    entry,
		Path:     loc.Path,
		Target:   target,
		Snapshot: snapshot,
		FiredAt:  now,
	}
	e.logger.Info("dispatching custom event",
		zap.String("event", firing.Event),
		zap.String("trigger", string(firing.Trigger)),
		zap.String("path", firing.Path),
	)
	for _, sink := range e.sinks {
		sink.Fired(ctx, firing)
	}
}
