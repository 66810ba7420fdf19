package datalayer

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidPayload is returned when an update payload is not a document.
	ErrInvalidPayload = errors.New("datalayer: payload must be a document")
	// ErrMissingItemID is returned by AddToCart for items without an id.
	ErrMissingItemID = errors.New("datalayer: cart item id is required")
	// ErrNotReady is returned by operations that need an initialized store.
	ErrNotReady = errors.New("datalayer: store not initialized")
	// ErrAlreadyInitialized is returned by a second Initialize call.
	ErrAlreadyInitialized = errors.New("datalayer: store already initialized")
	// ErrUnknownProduct is returned when a cart line does not exist.
	ErrUnknownProduct = errors.New("datalayer: product not in cart")
	// ErrEmptyCart is returned when placing an order with no lines.
	ErrEmptyCart = errors.New("datalayer: cart is empty")
	// ErrMissingCheckout is returned when placing an order without saved
	// checkout data.
	ErrMissingCheckout = errors.New("datalayer: checkout data not found")
	// ErrInvalidCheckout is returned when checkout data fails validation.
	ErrInvalidCheckout = errors.New("datalayer: invalid checkout data")
)

// OperationError records which operation failed and the payload it was given.
type OperationError struct {
	Op      string
	Payload any
	Err     error
}

func (e *OperationError) Error() string {
	if e == nil {
		return "<nil>"
	}
	return fmt.Sprintf("datalayer: %s: %v", e.Op, e.Err)
}

func (e *OperationError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

func invalidPayload(err error) error {
	return fmt.Errorf("%w: %v", ErrInvalidPayload, err)
}
