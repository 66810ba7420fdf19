package hydrate

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrNotDocument is returned when a value does not encode to a JSON object.
var ErrNotDocument = errors.New("hydrate: value is not a document")

// Normalize round-trips value through JSON so the result only holds
// map[string]any, []any, float64, string, bool and nil.
func Normalize(value any) (any, error) {
	buffer, err := json.Marshal(value)
	if err != nil {
		return nil, err
	}
	var out any
	if err := json.Unmarshal(buffer, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// NormalizeDocument is Normalize for values that must encode to an object.
// Structs with JSON tags are accepted as well as maps.
func NormalizeDocument(value any) (map[string]any, error) {
	if value == nil {
		return nil, ErrNotDocument
	}
	out, err := Normalize(value)
	if err != nil {
		return nil, err
	}
	doc, ok := out.(map[string]any)
	if !ok || doc == nil {
		return nil, fmt.Errorf("%w: got %T", ErrNotDocument, value)
	}
	return doc, nil
}

// Encode converts a typed view back into a document section.
func Encode(value any) (map[string]any, error) {
	doc, err := NormalizeDocument(value)
	if err != nil {
		return nil, fmt.Errorf("hydrate: encode %T: %w", value, err)
	}
	return doc, nil
}
