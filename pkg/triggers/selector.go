package triggers

import (
	"errors"
	"fmt"
	"strings"
	"sync"
)

// ErrInvalidSelector is returned for selectors outside the supported subset:
// comma lists of compound selectors built from a tag, #id, .class, [attr]
// and [attr=value]. Combinators are not supported.
var ErrInvalidSelector = errors.New("triggers: invalid selector")

// Selector is a parsed selector list. A node matches when any compound
// matches.
type Selector []compound

type compound struct {
	tag     string
	id      string
	classes []string
	attrs   []attrMatch
}

type attrMatch struct {
	name     string
	value    string
	hasValue bool
}

var selectors sync.Map // string -> Selector

// ParseSelector parses s. Results are cached.
func ParseSelector(s string) (Selector, error) {
	if cached, ok := selectors.Load(s); ok {
		return cached.(Selector), nil
	}
	parts, err := splitSelectorList(s)
	if err != nil {
		return nil, err
	}
	sel := make(Selector, 0, len(parts))
	for _, part := range parts {
		c, err := parseCompound(part)
		if err != nil {
			return nil, fmt.Errorf("%w: %q: %v", ErrInvalidSelector, s, err)
		}
		sel = append(sel, c)
	}
	selectors.Store(s, sel)
	return sel, nil
}

// Match reports whether n matches any compound of s.
func (s Selector) Match(n *Node) bool {
	if n == nil {
		return false
	}
	for _, c := range s {
		if c.match(n) {
			return true
		}
	}
	return false
}

func (c compound) match(n *Node) bool {
	if c.tag != "" && c.tag != "*" && !strings.EqualFold(c.tag, n.Tag) {
		return false
	}
	if c.id != "" && n.Attr("id") != c.id {
		return false
	}
	for _, class := range c.classes {
		if !n.HasClass(class) {
			return false
		}
	}
	for _, attr := range c.attrs {
		value, ok := n.Attrs[attr.name]
		if !ok || (attr.hasValue && value != attr.value) {
			return false
		}
	}
	return true
}

func splitSelectorList(s string) ([]string, error) {
	var parts []string
	depth, start := 0, 0
	for i, r := range s {
		switch r {
		case '[':
			depth++
		case ']':
			depth--
		case ',':
			if depth == 0 {
				parts = append(parts, s[start:i])
				start = i + 1
			}
		}
	}
	parts = append(parts, s[start:])
	for i, part := range parts {
		parts[i] = strings.TrimSpace(part)
		if parts[i] == "" {
			return nil, fmt.Errorf("%w: %q: empty selector", ErrInvalidSelector, s)
		}
	}
	return parts, nil
}

func parseCompound(s string) (compound, error) {
	var c compound
	i := 0
	if i < len(s) && (s[i] == '*' || isIdentByte(s[i])) {
		if s[i] == '*' {
			c.tag, i = "*", i+1
		} else {
			c.tag, i = readIdent(s, i)
		}
	}
	for i < len(s) {
		switch s[i] {
		case '#':
			var id string
			id, i = readIdent(s, i+1)
			if id == "" {
				return c, errors.New("empty id")
			}
			c.id = id
		case '.':
			var class string
			class, i = readIdent(s, i+1)
			if class == "" {
				return c, errors.New("empty class")
			}
			c.classes = append(c.classes, class)
		case '[':
			end := strings.IndexByte(s[i:], ']')
			if end < 0 {
				return c, errors.New("unterminated attribute")
			}
			attr, err := parseAttr(s[i+1 : i+end])
			if err != nil {
				return c, err
			}
			c.attrs = append(c.attrs, attr)
			i += end + 1
		default:
			return c, fmt.Errorf("unsupported %q at %d", s[i], i)
		}
	}
	return c, nil
}

func parseAttr(body string) (attrMatch, error) {
	name, value, hasValue := strings.Cut(body, "=")
	name = strings.TrimSpace(name)
	if name == "" {
		return attrMatch{}, errors.New("empty attribute name")
	}
	value = strings.TrimSpace(value)
	if len(value) >= 2 && (value[0] == '"' || value[0] == '\'') && value[len(value)-1] == value[0] {
		value = value[1 : len(value)-1]
	}
	return attrMatch{name: name, value: value, hasValue: hasValue}, nil
}

func readIdent(s string, i int) (string, int) {
	start := i
	for i < len(s) && isIdentByte(s[i]) {
		i++
	}
	return s[start:i], i
}

func isIdentByte(b byte) bool {
	return b == '-' || b == '_' ||
		(b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z') || (b >= '0' && b <= '9')
}
