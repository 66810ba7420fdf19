package triggers

import (
	"errors"
	"os"
	"reflect"
	"testing"
)

func TestParseConfigFixture(t *testing.T) {
	raw, err := os.ReadFile("testdata/custom-events.json")
	if err != nil {
		t.Fatalf("read fixture: %v", err)
	}
	cfg, err := ParseConfig(raw)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(cfg.Data) != 5 {
		t.Fatalf("expected 5 entries, got %d", len(cfg.Data))
	}
	if want := (Excludes{"/checkout", "/order-summary"}); !reflect.DeepEqual(cfg.Data[0].Excludes, want) {
		t.Fatalf("string excludes: got %v", cfg.Data[0].Excludes)
	}
	if want := (Excludes{"/cart"}); !reflect.DeepEqual(cfg.Data[1].Excludes, want) {
		t.Fatalf("array excludes: got %v", cfg.Data[1].Excludes)
	}
	if cfg.Data[0].Kind() != KindPageload {
		t.Fatalf("expected default trigger pageload, got %q", cfg.Data[0].Kind())
	}
	if cfg.Data[2].Kind() != KindClick || cfg.Data[2].Element != "button.add-to-cart" {
		t.Fatalf("unexpected click entry %+v", cfg.Data[2])
	}
}

func TestParseConfigRejectsInvalid(t *testing.T) {
	cases := map[string]string{
		"not json":         `{"data": [`,
		"missing data":     `{"entries": []}`,
		"data not array":   `{"data": "pageload"}`,
		"bad excludes":     `{"data": [{"event": "e", "excludes": 3}]}`,
		"event not string": `{"data": [{"event": 12}]}`,
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := ParseConfig([]byte(raw)); !errors.Is(err, ErrInvalidConfig) {
				t.Fatalf("expected ErrInvalidConfig, got %v", err)
			}
		})
	}
}
