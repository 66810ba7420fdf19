package datalayer

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// OrderConfirmation is what PlaceOrder hands back to the confirmation page.
type OrderConfirmation struct {
	OrderNumber string       `json:"orderNumber"`
	Cart        Cart         `json:"cart"`
	Checkout    CheckoutData `json:"checkout"`
	PlacedAt    time.Time    `json:"placedAt"`
}

// PlaceOrder checks out the current cart: it requires saved checkout data
// and at least one line, then resets the cart and clears the checkout data.
// The rest of the document is kept.
func PlaceOrder(ctx context.Context, store *Store, checkout *CheckoutStore) (OrderConfirmation, error) {
	cart, ok := store.Cart()
	if !ok {
		return OrderConfirmation{}, store.fail("placeOrder", nil, ErrNotReady)
	}
	if cart.Empty() {
		return OrderConfirmation{}, store.fail("placeOrder", nil, ErrEmptyCart)
	}
	data, ok := checkout.Load(ctx)
	if !ok {
		return OrderConfirmation{}, store.fail("placeOrder", nil, ErrMissingCheckout)
	}

	confirmation := OrderConfirmation{
		OrderNumber: uuid.NewString(),
		Cart:        cart,
		Checkout:    data,
		PlacedAt:    store.now(),
	}
	if err := store.ResetCart(ctx); err != nil {
		return OrderConfirmation{}, err
	}
	checkout.Clear(ctx)
	return confirmation, nil
}
