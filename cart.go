package datalayer

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/goliatone/go-datalayer/internal/hydrate"
	"github.com/goliatone/go-datalayer/merge"
)

// CartItem is an add-to-cart request. Quantity defaults to 1.
type CartItem struct {
	ID          string  `json:"id"`
	SKU         string  `json:"sku,omitempty"`
	Name        string  `json:"name,omitempty"`
	Images      string  `json:"images,omitempty"`
	Category    string  `json:"category,omitempty"`
	Description string  `json:"description,omitempty"`
	Price       float64 `json:"price"`
	Quantity    int     `json:"quantity,omitempty"`
}

// CartLine is one product in the cart. SubTotal and Total always equal
// Price * Quantity.
type CartLine struct {
	ID          string  `json:"id"`
	SKU         string  `json:"sku,omitempty"`
	Name        string  `json:"name,omitempty"`
	Images      string  `json:"images,omitempty"`
	Category    string  `json:"category,omitempty"`
	Description string  `json:"description,omitempty"`
	Quantity    int     `json:"quantity"`
	Price       float64 `json:"price"`
	SubTotal    float64 `json:"subTotal"`
	Total       float64 `json:"total"`
}

// Cart is the typed view of the cart section.
type Cart struct {
	ProductCount int                 `json:"productCount"`
	Products     map[string]CartLine `json:"products"`
	SubTotal     float64             `json:"subTotal"`
	Total        float64             `json:"total"`
}

// Empty reports whether the cart has no lines.
func (c Cart) Empty() bool {
	return len(c.Products) == 0
}

// AddToCart adds item to the cart, merging with an existing line of the same
// id. Before Initialize the request is queued and replayed in order.
func (s *Store) AddToCart(ctx context.Context, item CartItem) error {
	item.ID = strings.TrimSpace(item.ID)
	if item.ID == "" {
		return s.fail("addToCart", item, ErrMissingItemID)
	}
	if item.Quantity <= 0 {
		item.Quantity = 1
	}
	err := s.commit(ctx, "addToCart",
		func() {
			s.cartQueue = append(s.cartQueue, item)
			s.logger.Debug("store not ready, cart operation queued",
				zap.String("id", item.ID),
				zap.Int("cart_queue_length", len(s.cartQueue)),
			)
		},
		func(doc merge.Document) (merge.Document, error) {
			return applyCartItem(doc, item)
		},
	)
	var opErr *OperationError
	if err != nil && !errors.As(err, &opErr) {
		return s.fail("addToCart", item, err)
	}
	return err
}

// RemoveFromCart deletes the line for id and recomputes the totals.
func (s *Store) RemoveFromCart(ctx context.Context, id string) error {
	return s.editCart(ctx, "removeFromCart", id, func(cart *Cart) error {
		if _, ok := cart.Products[id]; !ok {
			return ErrUnknownProduct
		}
		delete(cart.Products, id)
		return nil
	})
}

// SetQuantity sets the quantity of the line for id. A quantity below 1
// removes the line.
func (s *Store) SetQuantity(ctx context.Context, id string, quantity int) error {
	return s.editCart(ctx, "setQuantity", id, func(cart *Cart) error {
		line, ok := cart.Products[id]
		if !ok {
			return ErrUnknownProduct
		}
		if quantity < 1 {
			delete(cart.Products, id)
			return nil
		}
		line.Quantity = quantity
		cart.Products[id] = line
		return nil
	})
}

// ResetCart replaces the cart with the empty skeleton.
func (s *Store) ResetCart(ctx context.Context) error {
	return s.commit(ctx, "resetCart", nil, func(doc merge.Document) (merge.Document, error) {
		return merge.ShallowReplace(doc, merge.Document{"cart": EmptyCart()}), nil
	})
}

// Cart returns the typed cart view. It reports false before Initialize or
// when the cart section cannot be decoded.
func (s *Store) Cart() (Cart, bool) {
	value, ok := s.Read("cart")
	if !ok {
		return Cart{}, false
	}
	cart, err := decodeCart(value)
	if err != nil {
		s.logger.Warn("cart section is malformed", zap.Error(err))
		return Cart{}, false
	}
	return cart, true
}

func (s *Store) editCart(ctx context.Context, op, id string, edit func(*Cart) error) error {
	err := s.commit(ctx, op, nil, func(doc merge.Document) (merge.Document, error) {
		cart, err := decodeCart(doc["cart"])
		if err != nil {
			return nil, err
		}
		if err := edit(&cart); err != nil {
			return nil, err
		}
		return writeCart(doc, cart)
	})
	if err != nil {
		var opErr *OperationError
		if errors.As(err, &opErr) {
			return err
		}
		return s.fail(op, id, err)
	}
	return nil
}

// applyCartItem is the single add-to-cart routine shared by live calls and
// queue replay.
func applyCartItem(doc merge.Document, item CartItem) (merge.Document, error) {
	cart, err := decodeCart(doc["cart"])
	if err != nil {
		return nil, err
	}
	quantity := item.Quantity
	if quantity <= 0 {
		quantity = 1
	}
	if line, ok := cart.Products[item.ID]; ok {
		line.Quantity += quantity
		cart.Products[item.ID] = line
	} else {
		cart.Products[item.ID] = CartLine{
			ID:          item.ID,
			SKU:         item.SKU,
			Name:        item.Name,
			Images:      item.Images,
			Category:    item.Category,
			Description: item.Description,
			Quantity:    quantity,
			Price:       item.Price,
		}
	}
	return writeCart(doc, cart)
}

// recalculate derives every line total and the cart aggregates.
func recalculate(cart *Cart) {
	cart.ProductCount = 0
	cart.SubTotal = 0
	for id, line := range cart.Products {
		line.SubTotal = line.Price * float64(line.Quantity)
		line.Total = line.SubTotal
		cart.Products[id] = line
		cart.ProductCount += line.Quantity
		cart.SubTotal += line.SubTotal
	}
	cart.Total = cart.SubTotal
}

var cartDecoder = hydrate.NewDecoder(hydrate.WithFixups[Cart](fillLineIDs))

// fillLineIDs keys lines written without an id by their product key.
func fillLineIDs(_ hydrate.Source, section map[string]any) (map[string]any, error) {
	products, _ := section["products"].(map[string]any)
	for key, raw := range products {
		if line, ok := raw.(map[string]any); ok {
			if id, _ := line["id"].(string); id == "" {
				line["id"] = key
			}
		}
	}
	return section, nil
}

func decodeCart(value any) (Cart, error) {
	section, _ := value.(map[string]any)
	if section == nil {
		section = map[string]any{}
	}
	cart, err := cartDecoder.Decode(hydrate.Source{Key: "cart"}, section)
	if err != nil {
		return Cart{}, fmt.Errorf("datalayer: decode cart: %w", err)
	}
	if cart.Products == nil {
		cart.Products = map[string]CartLine{}
	}
	return cart, nil
}

func writeCart(doc merge.Document, cart Cart) (merge.Document, error) {
	recalculate(&cart)
	section, err := hydrate.Encode(cart)
	if err != nil {
		return nil, err
	}
	return merge.ShallowReplace(doc, merge.Document{"cart": section}), nil
}
