package hydrate

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Source names the document section being decoded. It prefixes errors.
type Source struct {
	Op  string
	Key string
}

func (s Source) String() string {
	if s.Op == "" || s.Key == "" {
		return s.Op + s.Key
	}
	return s.Op + ":" + s.Key
}

// Fixup rewrites the raw section before it is decoded. It receives a private
// copy and may return a replacement.
type Fixup func(Source, map[string]any) (map[string]any, error)

// Check inspects the decoded value.
type Check[T any] func(Source, *T) error

// Decoder turns document sections into typed views.
type Decoder[T any] struct {
	fixups []Fixup
	checks []Check[T]
	strict bool
}

// DecoderOption configures a Decoder.
type DecoderOption[T any] func(*Decoder[T])

// WithFixups runs fns in order before decoding.
func WithFixups[T any](fns ...Fixup) DecoderOption[T] {
	return func(d *Decoder[T]) { d.fixups = append(d.fixups, fns...) }
}

// WithChecks runs fns in order after decoding.
func WithChecks[T any](fns ...Check[T]) DecoderOption[T] {
	return func(d *Decoder[T]) { d.checks = append(d.checks, fns...) }
}

// Strict rejects fields T does not declare.
func Strict[T any]() DecoderOption[T] {
	return func(d *Decoder[T]) { d.strict = true }
}

func NewDecoder[T any](opts ...DecoderOption[T]) *Decoder[T] {
	d := &Decoder[T]{}
	for _, opt := range opts {
		if opt != nil {
			opt(d)
		}
	}
	return d
}

// Decode converts section into T. The caller's map is never modified.
func (d *Decoder[T]) Decode(src Source, section map[string]any) (T, error) {
	var out T
	if section == nil {
		return out, fmt.Errorf("hydrate: %s: section is nil", src)
	}

	raw, err := NormalizeDocument(section)
	if err != nil {
		return out, fmt.Errorf("hydrate: %s: copy section: %w", src, err)
	}
	for i, fix := range d.fixups {
		if fix == nil {
			continue
		}
		next, err := fix(src, raw)
		if err != nil {
			return out, fmt.Errorf("hydrate: %s: fixup %d: %w", src, i, err)
		}
		if next != nil {
			raw = next
		}
	}

	encoded, err := json.Marshal(raw)
	if err != nil {
		return out, fmt.Errorf("hydrate: %s: encode: %w", src, err)
	}
	dec := json.NewDecoder(bytes.NewReader(encoded))
	if d.strict {
		dec.DisallowUnknownFields()
	}
	if err := dec.Decode(&out); err != nil {
		var zero T
		return zero, fmt.Errorf("hydrate: %s: %w", src, err)
	}

	for i, check := range d.checks {
		if check == nil {
			continue
		}
		if err := check(src, &out); err != nil {
			var zero T
			return zero, fmt.Errorf("hydrate: %s: check %d: %w", src, i, err)
		}
	}
	return out, nil
}

// Decode converts section into T with no fixups or checks.
func Decode[T any](src Source, section map[string]any) (T, error) {
	return NewDecoder[T]().Decode(src, section)
}
