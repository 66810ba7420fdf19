package datalayer_test

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	datalayer "github.com/goliatone/go-datalayer"
	"github.com/goliatone/go-datalayer/pkg/activity"
	"github.com/goliatone/go-datalayer/pkg/loop"
)

func mustCart(t *testing.T, store *datalayer.Store) datalayer.Cart {
	t.Helper()
	cart, ok := store.Cart()
	if !ok {
		t.Fatalf("expected a decodable cart")
	}
	return cart
}

func assertCartConsistent(t *testing.T, cart datalayer.Cart) {
	t.Helper()
	count, sub := 0, 0.0
	for id, line := range cart.Products {
		if line.SubTotal != line.Price*float64(line.Quantity) || line.Total != line.SubTotal {
			t.Fatalf("line %s totals out of sync: %+v", id, line)
		}
		count += line.Quantity
		sub += line.SubTotal
	}
	if cart.ProductCount != count || cart.SubTotal != sub || cart.Total != sub {
		t.Fatalf("cart aggregates out of sync: %+v", cart)
	}
}

func TestAddToCartSameProductAccumulates(t *testing.T) {
	store, _ := newReadyStore(t)
	ctx := context.Background()
	item := datalayer.CartItem{ID: "p1", Name: "Tee", Price: 12.5, Quantity: 2}

	for i := 0; i < 2; i++ {
		if err := store.AddToCart(ctx, item); err != nil {
			t.Fatalf("add: %v", err)
		}
	}

	cart := mustCart(t, store)
	if len(cart.Products) != 1 {
		t.Fatalf("expected one line, got %d", len(cart.Products))
	}
	line := cart.Products["p1"]
	if line.Quantity != 4 || line.SubTotal != 50 {
		t.Fatalf("unexpected line %+v", line)
	}
	if cart.ProductCount != 4 || cart.SubTotal != 50 || cart.Total != 50 {
		t.Fatalf("unexpected cart %+v", cart)
	}
}

func TestAddToCartEndToEnd(t *testing.T) {
	store, capture := newReadyStore(t)
	ctx := context.Background()

	if err := store.AddToCart(ctx, datalayer.CartItem{ID: "sku1", Name: "Shoe", Price: 50, Quantity: 1}); err != nil {
		t.Fatalf("first add: %v", err)
	}
	if err := store.AddToCart(ctx, datalayer.CartItem{ID: "sku1", Price: 50, Quantity: 2}); err != nil {
		t.Fatalf("second add: %v", err)
	}

	got := mustRead(t, store, "cart")
	want := map[string]any{
		"productCount": float64(3),
		"subTotal":     float64(150),
		"total":        float64(150),
		"products": map[string]any{
			"sku1": map[string]any{
				"id":       "sku1",
				"name":     "Shoe",
				"quantity": float64(3),
				"price":    float64(50),
				"subTotal": float64(150),
				"total":    float64(150),
			},
		},
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("unexpected cart:\n got %#v\nwant %#v", got, want)
	}

	kinds := capture.Kinds()
	if len(kinds) != 3 || kinds[1] != activity.KindUpdated || kinds[2] != activity.KindUpdated {
		t.Fatalf("expected two updated notifications after init, got %v", kinds)
	}
	event, _ := capture.Last()
	if event.Metadata["cart_product_count"] != float64(3) {
		t.Fatalf("unexpected metadata %v", event.Metadata)
	}
}

func TestAddToCartDefaultsQuantity(t *testing.T) {
	store, _ := newReadyStore(t)
	_ = store.AddToCart(context.Background(), datalayer.CartItem{ID: "p1", Price: 3})
	if line := mustCart(t, store).Products["p1"]; line.Quantity != 1 || line.Total != 3 {
		t.Fatalf("unexpected line %+v", line)
	}
}

func TestAddToCartRequiresID(t *testing.T) {
	store, capture := newReadyStore(t)
	err := store.AddToCart(context.Background(), datalayer.CartItem{ID: "  ", Price: 9})
	if !errors.Is(err, datalayer.ErrMissingItemID) {
		t.Fatalf("expected ErrMissingItemID, got %v", err)
	}
	if !mustCart(t, store).Empty() || len(capture.Kinds()) != 1 {
		t.Fatalf("rejected item changed the store")
	}
}

func TestAddToCartQueuedUntilInitialize(t *testing.T) {
	ctx := context.Background()
	store := datalayer.New(nil, datalayer.WithScheduler(loop.New()))

	_ = store.AddToCart(ctx, datalayer.CartItem{ID: "a", Price: 10})
	_ = store.AddToCart(ctx, datalayer.CartItem{ID: "a", Price: 10, Quantity: 2})
	_ = store.Update(ctx, map[string]any{"cart": map[string]any{"coupon": "WELCOME"}})

	if status := store.Status(); status.CartQueueLength != 2 || status.QueueLength != 1 {
		t.Fatalf("unexpected status %+v", status)
	}
	if err := store.Initialize(ctx); err != nil {
		t.Fatalf("initialize: %v", err)
	}

	cart := mustCart(t, store)
	if cart.Products["a"].Quantity != 3 || cart.Total != 30 {
		t.Fatalf("unexpected replayed cart %+v", cart)
	}
	if status := store.Status(); status.CartQueueLength != 0 {
		t.Fatalf("cart queue not drained: %+v", status)
	}
}

func TestRemoveFromCartRecomputesTotals(t *testing.T) {
	store, _ := newReadyStore(t)
	ctx := context.Background()
	_ = store.AddToCart(ctx, datalayer.CartItem{ID: "a", Price: 10, Quantity: 1})
	_ = store.AddToCart(ctx, datalayer.CartItem{ID: "b", Price: 4.5, Quantity: 2})
	_ = store.AddToCart(ctx, datalayer.CartItem{ID: "c", Price: 7, Quantity: 3})

	if err := store.RemoveFromCart(ctx, "b"); err != nil {
		t.Fatalf("remove: %v", err)
	}

	cart := mustCart(t, store)
	if _, ok := cart.Products["b"]; ok {
		t.Fatalf("line b still present")
	}
	if cart.ProductCount != 4 || cart.SubTotal != 31 || cart.Total != 31 {
		t.Fatalf("unexpected aggregates %+v", cart)
	}
	assertCartConsistent(t, cart)
}

func TestAddToCartOnMalformedCartReportsOperation(t *testing.T) {
	core, logs := observer.New(zap.ErrorLevel)
	store, _ := newReadyStore(t, datalayer.WithLogger(zap.New(core)))
	ctx := context.Background()
	if err := store.Update(ctx, map[string]any{"cart": map[string]any{"products": "broken"}}); err != nil {
		t.Fatalf("update: %v", err)
	}

	err := store.AddToCart(ctx, datalayer.CartItem{ID: "sku1", Price: 5})
	var opErr *datalayer.OperationError
	if !errors.As(err, &opErr) || opErr.Op != "addToCart" {
		t.Fatalf("expected addToCart OperationError, got %#v", err)
	}
	if item, ok := opErr.Payload.(datalayer.CartItem); !ok || item.ID != "sku1" {
		t.Fatalf("expected item payload, got %#v", opErr.Payload)
	}

	entries := logs.FilterField(zap.String("op", "addToCart")).All()
	if len(entries) != 1 {
		t.Fatalf("expected one logged failure, got %d", len(entries))
	}
	if got := mustRead(t, store, "cart.products"); got != "broken" {
		t.Fatalf("failed add must leave the document unchanged, got %v", got)
	}
}

func TestRemoveFromCartUnknownProduct(t *testing.T) {
	store, _ := newReadyStore(t)
	err := store.RemoveFromCart(context.Background(), "ghost")
	if !errors.Is(err, datalayer.ErrUnknownProduct) {
		t.Fatalf("expected ErrUnknownProduct, got %v", err)
	}
	var opErr *datalayer.OperationError
	if !errors.As(err, &opErr) || opErr.Op != "removeFromCart" || opErr.Payload != "ghost" {
		t.Fatalf("unexpected error %#v", err)
	}
}

func TestSetQuantity(t *testing.T) {
	store, _ := newReadyStore(t)
	ctx := context.Background()
	_ = store.AddToCart(ctx, datalayer.CartItem{ID: "a", Price: 10})
	_ = store.AddToCart(ctx, datalayer.CartItem{ID: "b", Price: 1})

	if err := store.SetQuantity(ctx, "a", 5); err != nil {
		t.Fatalf("set quantity: %v", err)
	}
	cart := mustCart(t, store)
	if cart.Products["a"].SubTotal != 50 || cart.ProductCount != 6 {
		t.Fatalf("unexpected cart %+v", cart)
	}
	assertCartConsistent(t, cart)

	if err := store.SetQuantity(ctx, "b", 0); err != nil {
		t.Fatalf("set quantity to zero: %v", err)
	}
	cart = mustCart(t, store)
	if _, ok := cart.Products["b"]; ok || cart.Total != 50 {
		t.Fatalf("expected line removed, got %+v", cart)
	}
}

func TestCartEditsRequireInitialize(t *testing.T) {
	store := datalayer.New(nil)
	ctx := context.Background()
	for name, err := range map[string]error{
		"remove": store.RemoveFromCart(ctx, "a"),
		"set":    store.SetQuantity(ctx, "a", 2),
		"reset":  store.ResetCart(ctx),
	} {
		if !errors.Is(err, datalayer.ErrNotReady) {
			t.Fatalf("%s: expected ErrNotReady, got %v", name, err)
		}
	}
}

func TestResetCartKeepsOtherSections(t *testing.T) {
	store, _ := newReadyStore(t)
	ctx := context.Background()
	_ = store.AddToCart(ctx, datalayer.CartItem{ID: "a", Price: 10})
	_ = store.Update(ctx, map[string]any{"customer": map[string]any{"id": "c1"}})

	if err := store.ResetCart(ctx); err != nil {
		t.Fatalf("reset: %v", err)
	}
	if got := mustRead(t, store, "cart"); !reflect.DeepEqual(got, datalayer.EmptyCart()) {
		t.Fatalf("expected empty cart, got %v", got)
	}
	if got := mustRead(t, store, "customer.id"); got != "c1" {
		t.Fatalf("expected other sections kept, got %v", got)
	}
}

func TestCartLinesWithoutIDUseProductKey(t *testing.T) {
	store, _ := newReadyStore(t)
	ctx := context.Background()
	err := store.Update(ctx, map[string]any{"cart": map[string]any{
		"productCount": 1,
		"products": map[string]any{
			"legacy": map[string]any{"price": 5, "quantity": 1},
		},
	}})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if line := mustCart(t, store).Products["legacy"]; line.ID != "legacy" {
		t.Fatalf("expected id filled from key, got %+v", line)
	}
	if err := store.SetQuantity(ctx, "legacy", 2); err != nil {
		t.Fatalf("set quantity: %v", err)
	}
	assertCartConsistent(t, mustCart(t, store))
}

func TestConcurrentAddToCart(t *testing.T) {
	store, _ := newReadyStore(t)
	ctx := context.Background()

	const workers = 16
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = store.AddToCart(ctx, datalayer.CartItem{ID: "hot", Price: 2})
		}()
	}
	wg.Wait()

	cart := mustCart(t, store)
	if cart.Products["hot"].Quantity != workers || cart.Total != 2*workers {
		t.Fatalf("lost concurrent updates: %+v", cart)
	}
}
