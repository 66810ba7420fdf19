package datalayer

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/goliatone/go-datalayer/internal/hydrate"
	"github.com/goliatone/go-datalayer/pkg/persist"
)

// CheckoutData is the personal data captured by the checkout form.
type CheckoutData struct {
	FirstName     string `json:"firstName" validate:"required"`
	LastName      string `json:"lastName" validate:"required"`
	Email         string `json:"email" validate:"required,email"`
	Phone         string `json:"phone" validate:"required"`
	StreetAddress string `json:"streetAddress" validate:"required"`
	City          string `json:"city" validate:"required"`
	PostalCode    string `json:"postalCode" validate:"required"`
	Country       string `json:"country" validate:"required"`
}

func (d CheckoutData) trimmed() CheckoutData {
	return CheckoutData{
		FirstName:     strings.TrimSpace(d.FirstName),
		LastName:      strings.TrimSpace(d.LastName),
		Email:         strings.TrimSpace(d.Email),
		Phone:         strings.TrimSpace(d.Phone),
		StreetAddress: strings.TrimSpace(d.StreetAddress),
		City:          strings.TrimSpace(d.City),
		PostalCode:    strings.TrimSpace(d.PostalCode),
		Country:       strings.TrimSpace(d.Country),
	}
}

var fieldLabels = map[string]string{
	"firstName":     "First name",
	"lastName":      "Last name",
	"email":         "Email",
	"phone":         "Phone number",
	"streetAddress": "Street address",
	"city":          "City",
	"postalCode":    "Postal code",
	"country":       "Country",
}

// ValidationError lists the checkout fields that failed, keyed by JSON name.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	names := make([]string, 0, len(e.Fields))
	for name := range e.Fields {
		names = append(names, name)
	}
	sort.Strings(names)
	return fmt.Sprintf("%v: %s", ErrInvalidCheckout, strings.Join(names, ", "))
}

func (e *ValidationError) Unwrap() error {
	return ErrInvalidCheckout
}

// CheckoutStore persists checkout data in its own namespace, independent of
// the application document.
type CheckoutStore struct {
	state    *persist.Adapter
	key      string
	validate *validator.Validate
	logger   *zap.Logger
}

// CheckoutOption configures a CheckoutStore.
type CheckoutOption func(*CheckoutStore)

// WithCheckoutKey overrides CheckoutKey.
func WithCheckoutKey(key string) CheckoutOption {
	return func(c *CheckoutStore) {
		if key = strings.TrimSpace(key); key != "" {
			c.key = key
		}
	}
}

// WithCheckoutLogger sets the logger.
func WithCheckoutLogger(logger *zap.Logger) CheckoutOption {
	return func(c *CheckoutStore) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// NewCheckoutStore builds a checkout store. A nil adapter keeps data in
// memory under the checkout namespace with its 90-day TTL.
func NewCheckoutStore(state *persist.Adapter, opts ...CheckoutOption) *CheckoutStore {
	if state == nil {
		state = persist.NewAdapter(persist.NewMemoryBackend(),
			persist.WithNamespace(persist.NamespaceCheckout),
			persist.WithTTL(persist.CheckoutTTL),
		)
	}
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name, _, _ := strings.Cut(field.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	c := &CheckoutStore{
		state:    state,
		key:      CheckoutKey,
		validate: v,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	c.logger = c.logger.Named("checkout")
	return c
}

// Validate trims data and checks every field.
func (c *CheckoutStore) Validate(data CheckoutData) (CheckoutData, error) {
	data = data.trimmed()
	err := c.validate.Struct(data)
	if err == nil {
		return data, nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return data, fmt.Errorf("%w: %v", ErrInvalidCheckout, err)
	}
	out := &ValidationError{Fields: map[string]string{}}
	for _, fe := range fieldErrs {
		label := fieldLabels[fe.Field()]
		switch fe.Tag() {
		case "email":
			out.Fields[fe.Field()] = "Please enter a valid email"
		default:
			out.Fields[fe.Field()] = label + " is required"
		}
	}
	return data, out
}

// Save validates and persists data.
func (c *CheckoutStore) Save(ctx context.Context, data CheckoutData) error {
	data, err := c.Validate(data)
	if err != nil {
		c.logger.Warn("checkout data rejected", zap.Error(err))
		return &OperationError{Op: "checkout.save", Payload: data, Err: err}
	}
	if err := c.state.Save(ctx, c.key, data); err != nil {
		return &OperationError{Op: "checkout.save", Err: err}
	}
	return nil
}

// Load returns the saved checkout data, if any and not expired.
func (c *CheckoutStore) Load(ctx context.Context) (CheckoutData, bool) {
	value, ok := c.state.Load(ctx, c.key, 0)
	if !ok {
		return CheckoutData{}, false
	}
	doc, _ := value.(map[string]any)
	data, err := hydrate.Decode[CheckoutData](hydrate.Source{Op: "checkout.load", Key: c.key}, doc)
	if err != nil {
		c.logger.Warn("stored checkout data is malformed", zap.Error(err))
		return CheckoutData{}, false
	}
	return data, true
}

// Clear removes the saved checkout data.
func (c *CheckoutStore) Clear(ctx context.Context) {
	c.state.Remove(ctx, c.key)
}
