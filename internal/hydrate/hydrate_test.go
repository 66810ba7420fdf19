package hydrate

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"slices"
	"strconv"
	"strings"
	"testing"
)

type cartView struct {
	ProductCount float64             `json:"productCount"`
	SubTotal     float64             `json:"subTotal"`
	Total        float64             `json:"total"`
	Products     map[string]lineView `json:"products,omitempty"`
}

type lineView struct {
	ID       string  `json:"id"`
	Name     string  `json:"name,omitempty"`
	Price    float64 `json:"price"`
	Quantity int     `json:"quantity"`
	SubTotal float64 `json:"subTotal,omitempty"`
	Total    float64 `json:"total,omitempty"`
}

type fixture struct {
	Description string        `json:"description"`
	Cases       []fixtureCase `json:"cases"`
}

type fixtureCase struct {
	Name      string         `json:"name"`
	Key       string         `json:"key"`
	Input     map[string]any `json:"input"`
	Expect    cartView       `json:"expect"`
	ExpectErr string         `json:"expectErr"`
	PreHooks  []string       `json:"preHooks"`
	PostHooks []string       `json:"postHooks"`
	Options   []string       `json:"options"`
}

func TestDecoderFromFixtures(t *testing.T) {
	fx := loadFixture(t, "hydrate_cart.json")

	for _, tc := range fx.Cases {
		t.Run(tc.Name, func(t *testing.T) {
			decoder := NewDecoder[cartView](buildOptions(tc)...)
			result, err := decoder.Decode(Source{Op: "read", Key: tc.Key}, tc.Input)

			if tc.ExpectErr != "" {
				if err == nil {
					t.Fatalf("expected error %q, got nil", tc.ExpectErr)
				}
				if !strings.Contains(err.Error(), tc.ExpectErr) {
					t.Fatalf("expected error containing %q, got %v", tc.ExpectErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected decode error: %v", err)
			}
			if !reflect.DeepEqual(tc.Expect, result) {
				t.Fatalf("decoded cart mismatch:\nwant: %#v\n got: %#v", tc.Expect, result)
			}
		})
	}
}

func buildOptions(tc fixtureCase) []DecoderOption[cartView] {
	var options []DecoderOption[cartView]
	if slices.Contains(tc.Options, "disallow_unknown") {
		options = append(options, Strict[cartView]())
	}
	if slices.Contains(tc.PreHooks, "coerce_quantity") {
		options = append(options, WithFixups[cartView](coerceQuantity))
	}
	if slices.Contains(tc.PostHooks, "require_ids") {
		options = append(options, WithChecks[cartView](requireIDs))
	}
	return options
}

func coerceQuantity(_ Source, payload map[string]any) (map[string]any, error) {
	products, _ := payload["products"].(map[string]any)
	for _, raw := range products {
		line, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		if s, ok := line["quantity"].(string); ok {
			qty, err := strconv.Atoi(s)
			if err != nil {
				return nil, err
			}
			line["quantity"] = qty
		}
	}
	return payload, nil
}

func requireIDs(_ Source, cart *cartView) error {
	for key, line := range cart.Products {
		if line.ID == "" {
			return fmt.Errorf("line %q has no id", key)
		}
	}
	return nil
}

func TestDecodeDoesNotMutatePayload(t *testing.T) {
	payload := map[string]any{"products": map[string]any{"a": map[string]any{"id": "a", "quantity": "3"}}}
	_, err := NewDecoder[cartView](WithFixups[cartView](coerceQuantity)).Decode(Source{Key: "cart"}, payload)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	line := payload["products"].(map[string]any)["a"].(map[string]any)
	if line["quantity"] != "3" {
		t.Fatalf("expected caller payload untouched, got %#v", line["quantity"])
	}
}

func TestDecodeNilPayload(t *testing.T) {
	if _, err := Decode[cartView](Source{Op: "cart"}, nil); err == nil {
		t.Fatalf("expected nil payload error")
	}
}

func TestNormalizeDocument(t *testing.T) {
	type item struct {
		ID    string `json:"id"`
		Price int    `json:"price"`
	}

	doc, err := NormalizeDocument(item{ID: "sku1", Price: 50})
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if doc["id"] != "sku1" || doc["price"] != float64(50) {
		t.Fatalf("unexpected normalized doc %#v", doc)
	}

	for _, bad := range []any{nil, "text", []any{1}, 42} {
		if _, err := NormalizeDocument(bad); !errors.Is(err, ErrNotDocument) {
			t.Fatalf("expected ErrNotDocument for %#v, got %v", bad, err)
		}
	}

	if _, err := NormalizeDocument(map[string]any{"ch": make(chan int)}); err == nil {
		t.Fatalf("expected unsupported type error")
	}
}

func TestEncodeRoundTrip(t *testing.T) {
	view := cartView{ProductCount: 1, SubTotal: 9.5, Total: 9.5, Products: map[string]lineView{
		"x": {ID: "x", Price: 9.5, Quantity: 1, SubTotal: 9.5, Total: 9.5},
	}}
	doc, err := Encode(view)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	back, err := Decode[cartView](Source{Key: "cart"}, doc)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !reflect.DeepEqual(view, back) {
		t.Fatalf("round trip mismatch:\nwant %#v\n got %#v", view, back)
	}
}

func loadFixture(t *testing.T, name string) fixture {
	t.Helper()
	raw, err := os.ReadFile(filepath.Join("testdata", name))
	if err != nil {
		t.Fatalf("failed to read hydrate fixture %q: %v", name, err)
	}
	var fx fixture
	if err := json.Unmarshal(raw, &fx); err != nil {
		t.Fatalf("failed to unmarshal hydrate fixture %q: %v", name, err)
	}
	return fx
}
