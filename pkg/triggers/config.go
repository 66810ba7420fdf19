package triggers

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// Kind is the trigger that fires an entry.
type Kind string

const (
	KindPageload         Kind = "pageload"
	KindDOMContentLoaded Kind = "domcontentloaded"
	KindLoad             Kind = "load"
	KindClick            Kind = "click"
)

// ErrInvalidConfig is returned when a configuration body fails to parse or
// validate.
var ErrInvalidConfig = errors.New("triggers: invalid config")

// Excludes lists paths an entry never fires on. It decodes from either a
// comma-separated string or an array of strings.
type Excludes []string

func (e *Excludes) UnmarshalJSON(raw []byte) error {
	var joined string
	if err := json.Unmarshal(raw, &joined); err == nil {
		*e = splitExcludes(strings.Split(joined, ","))
		return nil
	}
	var list []string
	if err := json.Unmarshal(raw, &list); err != nil {
		return fmt.Errorf("excludes must be a string or an array of strings: %w", err)
	}
	*e = splitExcludes(list)
	return nil
}

func splitExcludes(parts []string) Excludes {
	out := make(Excludes, 0, len(parts))
	for _, part := range parts {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// Entry is one configured event.
type Entry struct {
	Page     string   `json:"page,omitempty"`
	Excludes Excludes `json:"excludes,omitempty"`
	Event    string   `json:"event"`
	Trigger  Kind     `json:"trigger,omitempty"`
	// Element is the CSS selector a click trigger listens for.
	Element string `json:"element,omitempty"`
	// Condition is an optional expression evaluated against the data layer
	// snapshot at dispatch time. Engine names the evaluator; empty means
	// the default engine.
	Condition string `json:"condition,omitempty"`
	Engine    string `json:"engine,omitempty"`
}

// Kind returns the normalised trigger, defaulting to pageload.
func (e Entry) Kind() Kind {
	kind := Kind(strings.ToLower(strings.TrimSpace(string(e.Trigger))))
	if kind == "" {
		return KindPageload
	}
	return kind
}

// Config is the document served at the trigger configuration URL.
type Config struct {
	Data []Entry `json:"data"`
}

const configSchema = `{
  "type": "object",
  "required": ["data"],
  "properties": {
    "data": {
      "type": "array",
      "items": {
        "type": "object",
        "properties": {
          "page": {"type": "string"},
          "excludes": {
            "oneOf": [
              {"type": "string"},
              {"type": "array", "items": {"type": "string"}}
            ]
          },
          "event": {"type": "string"},
          "trigger": {"type": "string"},
          "element": {"type": "string"},
          "condition": {"type": "string"},
          "engine": {"type": "string"}
        }
      }
    }
  }
}`

var compiledSchema = sync.OnceValues(func() (*jsonschema.Schema, error) {
	return jsonschema.CompileString("custom-events.schema.json", configSchema)
})

// ParseConfig validates raw against the configuration schema and decodes it.
func ParseConfig(raw []byte) (*Config, error) {
	schema, err := compiledSchema()
	if err != nil {
		return nil, err
	}
	var payload any
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if err := schema.Validate(payload); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	var cfg Config
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return &cfg, nil
}
