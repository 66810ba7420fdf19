// Package datalayer implements the storefront application state store: a
// persisted, observable JSON document shared by every page component.
//
// A Store is constructed explicitly and handed to collaborators through the
// DataLayer interface. The document itself is never exposed; Read returns deep
// copies and the only write paths are Update, UpdateWith, the cart operations
// and Clear.
//
// Lifecycle:
//
//	store := datalayer.New(adapter, datalayer.WithPageTitle("Cart"))
//	_ = store.Update(ctx, map[string]any{"product": p}) // queued until ready
//	_ = store.Initialize(ctx)                          // restore, drain, notify
//
// Writes made before Initialize are queued in call order and replayed once the
// store is ready. Every applied change is persisted through a persist.Adapter
// and broadcast to subscribers as an activity.Event; the first notification
// (initialized or restored) is deferred on the configured loop.Scheduler so
// subscribers registered right after Initialize still receive it.
//
// Checkout form data lives in a separate CheckoutStore with its own namespace
// and TTL; clearing the store never touches it.
package datalayer
