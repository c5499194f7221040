// Package capture converts user actions on the rendered page into the
// structured event payloads the remote generator consumes. It filters out
// actions that belong to the native browser environment, derives navigation
// targets, and extracts a bounded semantic ancestry of the interacted
// element.
package capture

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"golang.org/x/net/html"

	"github.com/jamesaudcent/infinidom/vdom"
)

// ErrNativeAction reports an interaction that must be left to native
// handling: no payload is built and the default action is not suppressed.
var ErrNativeAction = errors.New("capture: native action")

// nativeSchemes are URI schemes never intercepted.
var nativeSchemes = map[string]bool{
	"mailto":     true,
	"tel":        true,
	"javascript": true,
}

// DOMEvent is one raw user action as reported by the hosting environment
// (browser view, tests, or an embedding application).
type DOMEvent struct {
	Type   string            // click, input, change, submit
	Target *html.Node        // interacted element inside the rendered tree
	Value  string            // input value, when applicable
	Form   map[string]string // submitted form fields, when applicable
}

// Result is a captured interaction: the payload to send, plus the derived
// navigation path when the action is a navigation ("" otherwise).
type Result struct {
	Event        vdom.Event
	NavigatePath string
}

// Capturer builds event payloads for one page context.
type Capturer struct {
	origin *url.URL
	logger *slog.Logger
}

// New creates a Capturer for the page's own URL; its origin decides which
// links are same-origin.
func New(pageURL string, logger *slog.Logger) (*Capturer, error) {
	if logger == nil {
		logger = slog.Default()
	}
	u, err := url.Parse(pageURL)
	if err != nil {
		return nil, fmt.Errorf("capture: parse page url: %w", err)
	}
	return &Capturer{origin: u, logger: logger}, nil
}

// Capture synthesises the event payload for one action. Returns
// ErrNativeAction when the interaction must not be intercepted.
func (c *Capturer) Capture(ev DOMEvent) (*Result, error) {
	t := ev.Target
	if t == nil || t.Type != html.ElementNode {
		return nil, fmt.Errorf("capture: event without element target")
	}

	href := attr(t, "href")
	if t.Data == "a" {
		if err := c.filterAnchor(t, href); err != nil {
			return nil, err
		}
	}

	e := vdom.Event{
		EventType:        ev.Type,
		TargetSelector:   cssDescriptor(t),
		TargetTag:        t.Data,
		TargetID:         attr(t, "id"),
		TargetClasses:    classes(t),
		TargetText:       excerpt(collapsedText(t)),
		InputValue:       ev.Value,
		Href:             href,
		DataAttributes:   dataAttributes(t),
		FormData:         ev.Form,
		ElementHierarchy: ancestry(t),
	}

	e.Path = c.navigationPath(t, href)
	return &Result{Event: e, NavigatePath: e.Path}, nil
}

// filterAnchor applies the native-handling rules: new-tab targets, special
// schemes, and cross-origin absolute URLs stay with the browser.
func (c *Capturer) filterAnchor(t *html.Node, href string) error {
	if attr(t, "target") == "_blank" {
		return ErrNativeAction
	}
	if href == "" {
		return nil
	}
	u, err := url.Parse(href)
	if err != nil {
		// Unparseable destinations are not ours to interpret.
		return ErrNativeAction
	}
	if nativeSchemes[u.Scheme] {
		return ErrNativeAction
	}
	if u.IsAbs() && !sameOrigin(u, c.origin) {
		return ErrNativeAction
	}
	return nil
}

// navigationPath derives the target path: an explicit data-path attribute
// wins, then a same-origin anchor href.
func (c *Capturer) navigationPath(t *html.Node, href string) string {
	if p := attr(t, vdom.AttrPath); p != "" {
		return normalizePath(p)
	}
	if t.Data != "a" || href == "" {
		return ""
	}
	u, err := c.origin.Parse(href)
	if err != nil {
		return ""
	}
	if !sameOrigin(u, c.origin) {
		return ""
	}
	return normalizePath(u.Path)
}

func normalizePath(p string) string {
	if !strings.HasPrefix(p, "/") {
		return "/" + p
	}
	return p
}

func sameOrigin(u, origin *url.URL) bool {
	if u.Host == "" {
		return true
	}
	return u.Scheme == origin.Scheme && u.Host == origin.Host
}

// cssDescriptor builds a CSS-like descriptor of the element:
// tag#id.class1.class2.
func cssDescriptor(n *html.Node) string {
	var b strings.Builder
	b.WriteString(n.Data)
	if id := attr(n, "id"); id != "" {
		b.WriteString("#")
		b.WriteString(id)
	}
	for _, cls := range classes(n) {
		b.WriteString(".")
		b.WriteString(cls)
	}
	return b.String()
}

// dataAttributes extracts data-* attributes with dataset-style keys (the
// data- prefix stripped). The reserved interactive marker is runtime
// plumbing and is excluded.
func dataAttributes(n *html.Node) map[string]string {
	var out map[string]string
	for _, a := range n.Attr {
		if !strings.HasPrefix(a.Key, "data-") || a.Key == vdom.AttrInteractive {
			continue
		}
		if out == nil {
			out = make(map[string]string)
		}
		out[strings.TrimPrefix(a.Key, "data-")] = a.Val
	}
	return out
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func classes(n *html.Node) []string {
	return strings.Fields(attr(n, "class"))
}
