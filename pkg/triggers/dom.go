package triggers

import (
	"sort"
	"strings"
	"sync"
)

// Page is the environment an Engine fires into.
type Page interface {
	Location() Location
	// Loaded reports whether the page has finished loading.
	Loaded() bool
	// OnLoad runs fn once the page finishes loading.
	OnLoad(fn func())
	Root() Root
}

// Root is where delegated click listeners are installed.
type Root interface {
	// Listen calls handler with the target of every click below the root.
	Listen(handler func(target Element)) (remove func())
}

// Element is a click target.
type Element interface {
	// Closest returns the element itself or its nearest ancestor matching
	// selector.
	Closest(selector string) (Element, bool)
}

// Node is an element of the in-memory Document.
type Node struct {
	Tag      string
	Attrs    map[string]string
	parent   *Node
	children []*Node
}

var _ Element = (*Node)(nil)

// NewNode builds a node and appends children to it.
func NewNode(tag string, attrs map[string]string, children ...*Node) *Node {
	if attrs == nil {
		attrs = map[string]string{}
	}
	n := &Node{Tag: tag, Attrs: attrs}
	return n.Append(children...)
}

// Append adds children to n, detaching them from any previous parent.
func (n *Node) Append(children ...*Node) *Node {
	for _, child := range children {
		if child == nil {
			continue
		}
		if child.parent != nil {
			child.parent.remove(child)
		}
		child.parent = n
		n.children = append(n.children, child)
	}
	return n
}

// Remove detaches n from its parent.
func (n *Node) Remove() {
	if n.parent != nil {
		n.parent.remove(n)
		n.parent = nil
	}
}

func (n *Node) remove(child *Node) {
	for i, c := range n.children {
		if c == child {
			n.children = append(n.children[:i], n.children[i+1:]...)
			return
		}
	}
}

// Parent returns the parent node, or nil for a detached node or the body.
func (n *Node) Parent() *Node { return n.parent }

// Attr returns the named attribute or "".
func (n *Node) Attr(name string) string { return n.Attrs[name] }

// HasClass reports whether class appears in the class attribute.
func (n *Node) HasClass(class string) bool {
	for _, c := range strings.Fields(n.Attrs["class"]) {
		if c == class {
			return true
		}
	}
	return false
}

// Matches reports whether n matches selector. Invalid selectors never match.
func (n *Node) Matches(selector string) bool {
	sel, err := ParseSelector(selector)
	if err != nil {
		return false
	}
	return sel.Match(n)
}

func (n *Node) Closest(selector string) (Element, bool) {
	sel, err := ParseSelector(selector)
	if err != nil {
		return nil, false
	}
	for cur := n; cur != nil; cur = cur.parent {
		if sel.Match(cur) {
			return cur, true
		}
	}
	return nil, false
}

// Find returns the first descendant of n, depth first, matching selector.
func (n *Node) Find(selector string) *Node {
	sel, err := ParseSelector(selector)
	if err != nil {
		return nil
	}
	var walk func(*Node) *Node
	walk = func(cur *Node) *Node {
		for _, child := range cur.children {
			if sel.Match(child) {
				return child
			}
			if found := walk(child); found != nil {
				return found
			}
		}
		return nil
	}
	return walk(n)
}

// Document is an in-memory Page for headless runs and tests. Its Body is
// the root every delegated listener observes.
type Document struct {
	Body *Node

	mu        sync.Mutex
	location  Location
	loaded    bool
	onLoad    []func()
	listeners map[int]func(Element)
	nextID    int
}

var _ Page = (*Document)(nil)

// NewDocument returns an empty, still-loading document at loc.
func NewDocument(loc Location) *Document {
	return &Document{
		Body:      NewNode("body", nil),
		location:  loc,
		listeners: map[int]func(Element){},
	}
}

func (d *Document) Location() Location {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.location
}

// Navigate changes the location without reloading.
func (d *Document) Navigate(loc Location) {
	d.mu.Lock()
	d.location = loc
	d.mu.Unlock()
}

func (d *Document) Loaded() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.loaded
}

// OnLoad runs fn after FinishLoading, or right away if loading already
// finished.
func (d *Document) OnLoad(fn func()) {
	if fn == nil {
		return
	}
	d.mu.Lock()
	if !d.loaded {
		d.onLoad = append(d.onLoad, fn)
		d.mu.Unlock()
		return
	}
	d.mu.Unlock()
	fn()
}

// FinishLoading marks the document loaded and runs the pending load hooks.
func (d *Document) FinishLoading() {
	d.mu.Lock()
	if d.loaded {
		d.mu.Unlock()
		return
	}
	d.loaded = true
	hooks := d.onLoad
	d.onLoad = nil
	d.mu.Unlock()

	for _, fn := range hooks {
		fn()
	}
}

func (d *Document) Root() Root { return d }

func (d *Document) Listen(handler func(Element)) func() {
	d.mu.Lock()
	id := d.nextID
	d.nextID++
	d.listeners[id] = handler
	d.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			d.mu.Lock()
			delete(d.listeners, id)
			d.mu.Unlock()
		})
	}
}

// Listeners returns the number of installed click listeners.
func (d *Document) Listeners() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.listeners)
}

// Click delivers a click on target to every listener in the order they were
// installed. Targets outside Body are ignored.
func (d *Document) Click(target *Node) {
	if target == nil || !d.contains(target) {
		return
	}
	d.mu.Lock()
	ids := make([]int, 0, len(d.listeners))
	for id := range d.listeners {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	handlers := make([]func(Element), 0, len(ids))
	for _, id := range ids {
		handlers = append(handlers, d.listeners[id])
	}
	d.mu.Unlock()

	for _, handler := range handlers {
		handler(target)
	}
}

func (d *Document) contains(n *Node) bool {
	for cur := n; cur != nil; cur = cur.parent {
		if cur == d.Body {
			return true
		}
	}
	return false
}
