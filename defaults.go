package datalayer

import (
	"github.com/goliatone/go-datalayer/merge"
)

// Storage keys used inside the persistence namespaces.
const (
	StateKey    = "luma_dataLayer"
	CheckoutKey = "luma_checkout_data"
)

// DefaultDocument returns the skeleton used when nothing valid is persisted.
func DefaultDocument() merge.Document {
	return merge.Document{
		"projectName": "luma3",
		"project": map[string]any{
			"id":       "luma3",
			"title":    "Luma Website v3",
			"template": "web-modular/empty-website-v2",
			"locale":   "en-US",
			"currency": "USD",
		},
		"page": map[string]any{"name": "home", "title": "HOME"},
		"cart": map[string]any{},
		"partnerData": map[string]any{
			"PartnerID":     "Partner456",
			"BrandLoyalist": float64(88),
			"Seasonality":   "Fall",
		},
	}
}

// EmptyCart returns the cart skeleton written by Clear and ResetCart.
func EmptyCart() map[string]any {
	return map[string]any{
		"productCount": float64(0),
		"products":     map[string]any{},
		"subTotal":     float64(0),
		"total":        float64(0),
	}
}
