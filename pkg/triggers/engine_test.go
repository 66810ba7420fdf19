package triggers

import (
	"context"
	"errors"
	"net/http/httptest"
	"os"
	"sync"
	"testing"
	"time"

	datalayer "github.com/goliatone/go-datalayer"
	"github.com/goliatone/go-datalayer/merge"
	"github.com/goliatone/go-datalayer/pkg/loop"
	"github.com/goliatone/go-datalayer/pkg/persist"
)

type fakeState struct {
	mu       sync.Mutex
	stable   bool
	snapshot map[string]any
	waiting  []func()
}

func (s *fakeState) WhenStable(fn func()) {
	s.mu.Lock()
	if !s.stable {
		s.waiting = append(s.waiting, fn)
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()
	fn()
}

func (s *fakeState) Snapshot() map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	return merge.CloneDocument(s.snapshot)
}

func stableState(snapshot map[string]any) *fakeState {
	return &fakeState{stable: true, snapshot: snapshot}
}

type recorder struct {
	mu      sync.Mutex
	firings []Firing
}

func (r *recorder) Fired(_ context.Context, f Firing) {
	r.mu.Lock()
	r.firings = append(r.firings, f)
	r.mu.Unlock()
}

func (r *recorder) events() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.firings))
	for i, f := range r.firings {
		out[i] = f.Event
	}
	return out
}

func (r *recorder) last() Firing {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.firings[len(r.firings)-1]
}

func fixtureConfig(t *testing.T) *Config {
	t.Helper()
	raw, err := os.ReadFile("testdata/custom-events.json")
	if err != nil {
		t.Fatalf("read fixture: %v", err)
	}
	cfg, err := ParseConfig(raw)
	if err != nil {
		t.Fatalf("parse fixture: %v", err)
	}
	return cfg
}

func loadedDocument(path string) *Document {
	doc := NewDocument(Location{Path: path})
	doc.FinishLoading()
	return doc
}

func cartSnapshot(count float64) map[string]any {
	return map[string]any{"cart": map[string]any{"productCount": count}}
}

func equalEvents(got []string, want ...string) bool {
	if len(got) != len(want) {
		return false
	}
	for i := range got {
		if got[i] != want[i] {
			return false
		}
	}
	return true
}

func TestEngineDispatchesMatchingEntries(t *testing.T) {
	rec := &recorder{}
	doc := loadedDocument("/products/shoes")
	engine := NewEngine(stableState(cartSnapshot(2)), doc, WithSinks(rec))

	if err := engine.Fire(context.Background(), fixtureConfig(t)); err != nil {
		t.Fatalf("fire: %v", err)
	}

	if got := rec.events(); !equalEvents(got, "pageViewed", "productListViewed", "cartNotEmpty") {
		t.Fatalf("unexpected events %v", got)
	}
	if engine.Listeners() != 1 || doc.Listeners() != 1 {
		t.Fatalf("expected one click listener, engine=%d doc=%d", engine.Listeners(), doc.Listeners())
	}
	if f := rec.last(); f.Trigger != KindLoad || f.Snapshot["cart"] == nil || f.Path != "/products/shoes" {
		t.Fatalf("unexpected firing %+v", f)
	}
}

func TestEngineHonoursExcludes(t *testing.T) {
	rec := &recorder{}
	engine := NewEngine(stableState(cartSnapshot(0)), loadedDocument("/checkout"), WithSinks(rec))

	_ = engine.Fire(context.Background(), fixtureConfig(t))

	if got := rec.events(); !equalEvents(got, "checkoutStarted") {
		t.Fatalf("unexpected events %v", got)
	}
}

func TestEngineSkipsInvalidEntries(t *testing.T) {
	rec := &recorder{}
	engine := NewEngine(stableState(nil), loadedDocument("/"), WithSinks(rec))
	cfg := &Config{Data: []Entry{
		{Page: "*"},
		{Page: "*", Event: "hover", Trigger: "mouseover"},
		{Page: "*", Event: "noSelector", Trigger: KindClick},
		{Page: "*", Event: "badSelector", Trigger: KindClick, Element: "div > a"},
		{Page: "*", Event: "ok"},
	}}

	_ = engine.Fire(context.Background(), cfg)

	if got := rec.events(); !equalEvents(got, "ok") {
		t.Fatalf("unexpected events %v", got)
	}
	if engine.Listeners() != 0 {
		t.Fatalf("invalid click entries must not install listeners")
	}
}

func TestEngineDefersLoadTrigger(t *testing.T) {
	cfg := &Config{Data: []Entry{{Page: "/products/*", Event: "late", Trigger: KindLoad}}}

	t.Run("fires after load", func(t *testing.T) {
		rec := &recorder{}
		doc := NewDocument(Location{Path: "/products/bags"})
		engine := NewEngine(stableState(nil), doc, WithSinks(rec))

		_ = engine.Fire(context.Background(), cfg)
		if len(rec.events()) != 0 {
			t.Fatalf("fired before load")
		}
		doc.FinishLoading()
		if got := rec.events(); !equalEvents(got, "late") {
			t.Fatalf("unexpected events %v", got)
		}
	})

	t.Run("rechecks the page", func(t *testing.T) {
		rec := &recorder{}
		doc := NewDocument(Location{Path: "/products/bags"})
		engine := NewEngine(stableState(nil), doc, WithSinks(rec))

		_ = engine.Fire(context.Background(), cfg)
		doc.Navigate(Location{Path: "/cart"})
		doc.FinishLoading()
		if len(rec.events()) != 0 {
			t.Fatalf("fired for a page that no longer matches: %v", rec.events())
		}
	})
	t.Run("re-fire before load keeps one registration", func(t *testing.T) {
		rec := &recorder{}
		doc := NewDocument(Location{Path: "/products/bags"})
		engine := NewEngine(stableState(nil), doc, WithSinks(rec))

		_ = engine.Fire(context.Background(), cfg)
		_ = engine.Fire(context.Background(), cfg)
		doc.FinishLoading()
		if got := rec.events(); !equalEvents(got, "late") {
			t.Fatalf("expected a single load event, got %v", got)
		}
	})

	t.Run("cleanup cancels pending load", func(t *testing.T) {
		rec := &recorder{}
		doc := NewDocument(Location{Path: "/products/bags"})
		engine := NewEngine(stableState(nil), doc, WithSinks(rec))

		_ = engine.Fire(context.Background(), cfg)
		engine.Cleanup()
		doc.FinishLoading()
		if len(rec.events()) != 0 {
			t.Fatalf("fired after cleanup: %v", rec.events())
		}
	})
}

func TestEngineDelegatedClick(t *testing.T) {
	rec := &recorder{}
	doc := loadedDocument("/products/shoes")
	engine := NewEngine(stableState(cartSnapshot(1)), doc, WithSinks(rec))
	cfg := &Config{Data: []Entry{{Page: "/products/*", Event: "addToCartClicked", Trigger: KindClick, Element: "button.add-to-cart"}}}

	if err := engine.Fire(context.Background(), cfg); err != nil {
		t.Fatalf("fire: %v", err)
	}

	// Inserted after the listener was installed.
	label := NewNode("span", map[string]string{"class": "label"})
	button := NewNode("button", map[string]string{"class": "btn add-to-cart"}, label)
	other := NewNode("button", map[string]string{"class": "btn"})
	doc.Body.Append(NewNode("div", nil, button, other))

	doc.Click(label)
	doc.Click(other)
	if got := rec.events(); !equalEvents(got, "addToCartClicked") {
		t.Fatalf("unexpected events %v", got)
	}
	if f := rec.last(); f.Target != Element(button) {
		t.Fatalf("expected the matched button as target, got %v", f.Target)
	}

	// Re-registering the same entry replaces the listener.
	_ = engine.Fire(context.Background(), cfg)
	if doc.Listeners() != 1 {
		t.Fatalf("expected one listener after re-registration, got %d", doc.Listeners())
	}
	doc.Click(button)
	if n := len(rec.events()); n != 2 {
		t.Fatalf("expected a single firing per click, got %d total", n)
	}

	if removed := engine.Cleanup(); removed != 1 {
		t.Fatalf("expected one listener removed, got %d", removed)
	}
	doc.Click(button)
	if doc.Listeners() != 0 || len(rec.events()) != 2 {
		t.Fatalf("listener survived cleanup")
	}
}

func TestEngineConditions(t *testing.T) {
	cases := []struct {
		name      string
		condition string
		engine    string
		want      bool
	}{
		{name: "expr true", condition: "cart.productCount > 1", want: true},
		{name: "expr false", condition: "cart.productCount > 5", want: false},
		{name: "cel", condition: "cart.productCount >= 2.0", engine: "cel", want: true},
		{name: "path binding", condition: `path == "/"`, want: true},
		{name: "compile error", condition: "cart.productCount >", want: false},
		{name: "unknown engine", condition: "true", engine: "lua", want: false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := &recorder{}
			engine := NewEngine(stableState(cartSnapshot(2)), loadedDocument("/"), WithSinks(rec))
			cfg := &Config{Data: []Entry{{Event: "conditional", Condition: tc.condition, Engine: tc.engine}}}

			_ = engine.Fire(context.Background(), cfg)

			if fired := len(rec.events()) == 1; fired != tc.want {
				t.Fatalf("fired=%v, want %v", fired, tc.want)
			}
		})
	}
}

func TestEngineReadyTimeout(t *testing.T) {
	rec := &recorder{}
	state := &fakeState{}
	engine := NewEngine(state, loadedDocument("/"), WithSinks(rec), WithReadyTimeout(20*time.Millisecond))

	err := engine.Fire(context.Background(), &Config{Data: []Entry{{Event: "never"}}})
	if !errors.Is(err, ErrNotStable) {
		t.Fatalf("expected ErrNotStable, got %v", err)
	}
	if len(rec.events()) != 0 {
		t.Fatalf("fired without a stable store")
	}
}

func TestEngineFireHonoursContext(t *testing.T) {
	engine := NewEngine(&fakeState{}, loadedDocument("/"), WithReadyTimeout(0))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := engine.Fire(ctx, &Config{}); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestEngineStart(t *testing.T) {
	ts := httptest.NewServer(&configServer{body: `{"data":[{"page":"*","event":"pageViewed"}]}`})
	defer ts.Close()

	rec := &recorder{}
	engine := NewEngine(stableState(nil), loadedDocument("/"), WithSinks(rec))
	if err := engine.Start(context.Background(), NewLoader(ts.URL, nil)); err != nil {
		t.Fatalf("start: %v", err)
	}
	if got := rec.events(); !equalEvents(got, "pageViewed") {
		t.Fatalf("unexpected events %v", got)
	}

	ts.Close()
	if err := engine.Start(context.Background(), NewLoader(ts.URL, nil)); !errors.Is(err, ErrNoConfig) {
		t.Fatalf("expected ErrNoConfig, got %v", err)
	}
}

// blockingBackend holds writes until released, keeping a store update in
// flight.
type blockingBackend struct {
	*persist.MemoryBackend
	mu      sync.Mutex
	gate    chan struct{}
	entered chan struct{}
}

func (b *blockingBackend) hold() {
	b.mu.Lock()
	b.gate = make(chan struct{})
	b.entered = make(chan struct{}, 1)
	b.mu.Unlock()
}

func (b *blockingBackend) release() {
	b.mu.Lock()
	close(b.gate)
	b.gate = nil
	b.mu.Unlock()
}

func (b *blockingBackend) SetMany(ctx context.Context, entries map[string][]byte) error {
	b.mu.Lock()
	gate, entered := b.gate, b.entered
	b.mu.Unlock()
	if gate != nil {
		entered <- struct{}{}
		<-gate
	}
	return b.MemoryBackend.SetMany(ctx, entries)
}

func TestEngineWaitsForInFlightUpdate(t *testing.T) {
	ctx := context.Background()
	backend := &blockingBackend{MemoryBackend: persist.NewMemoryBackend()}
	sched := loop.New()
	store := datalayer.New(persist.NewAdapter(backend, persist.WithNamespace(persist.NamespaceState)),
		datalayer.WithScheduler(sched))
	if err := store.Initialize(ctx); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	sched.RunPending()

	backend.hold()
	updated := make(chan error, 1)
	go func() {
		updated <- store.Update(ctx, map[string]any{"marker": "after"})
	}()
	<-backend.entered
	if !store.Status().Updating {
		t.Fatalf("expected update in flight")
	}

	fired := make(chan Firing, 1)
	engine := NewEngine(store, loadedDocument("/"), WithSinks(SinkFunc(func(_ context.Context, f Firing) {
		fired <- f
	})))
	done := make(chan error, 1)
	go func() {
		done <- engine.Fire(ctx, &Config{Data: []Entry{{Event: "pageViewed"}}})
	}()

	select {
	case f := <-fired:
		t.Fatalf("fired during an in-flight update: %v", f.Snapshot["marker"])
	case <-time.After(50 * time.Millisecond):
	}

	backend.release()
	if err := <-updated; err != nil {
		t.Fatalf("update: %v", err)
	}
	if err := <-done; err != nil {
		t.Fatalf("fire: %v", err)
	}
	f := <-fired
	if f.Snapshot["marker"] != "after" {
		t.Fatalf("expected the completed update in the snapshot, got %v", f.Snapshot)
	}
}
