package render

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"golang.org/x/net/html"

	"github.com/jamesaudcent/infinidom/vdom"
)

// implicitInteractive is the tag set wired for navigation and form capture
// even without an explicit marker.
var implicitInteractive = map[string]bool{
	"a":        true,
	"button":   true,
	"input":    true,
	"select":   true,
	"textarea": true,
}

// boolProps are DOM properties that render as presence attributes.
var boolProps = map[string]bool{
	"checked":  true,
	"disabled": true,
	"selected": true,
	"readonly": true,
	"required": true,
}

// toHTML converts a resolved descriptor into a rendered node, wiring the
// interactive marker where needed. A structural node without a tag after
// resolution violates the descriptor invariant and is discarded (nil).
func toHTML(d *vdom.Node, onInteractive func(*html.Node), logger *slog.Logger) *html.Node {
	if d == nil {
		return nil
	}
	if d.IsText() {
		return &html.Node{Type: html.TextNode, Data: d.Text}
	}
	if d.Tag == "" {
		logger.Warn("render: descriptor without tag discarded", "component", d.Component)
		return nil
	}

	n := elementNode(d.Tag)
	n.Attr = buildAttrs(d)

	if wireInteractive(d, n) && onInteractive != nil {
		onInteractive(n)
	}

	for i := range d.Children {
		if c := toHTML(&d.Children[i], onInteractive, logger); c != nil {
			n.AppendChild(c)
		}
	}
	return n
}

// buildAttrs flattens the property groups into attributes. Keys are sorted
// so identical descriptors always render identical markup — cache-replay
// equality depends on it.
func buildAttrs(d *vdom.Node) []html.Attribute {
	attrs := make(map[string]string, len(d.Props.Attrs)+len(d.Props.Props)+1)
	for k, v := range d.Props.Attrs {
		attrs[k] = v
	}

	if len(d.Props.Style) > 0 {
		keys := make([]string, 0, len(d.Props.Style))
		for k := range d.Props.Style {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		parts := make([]string, 0, len(keys))
		for _, k := range keys {
			parts = append(parts, k+": "+d.Props.Style[k])
		}
		style := strings.Join(parts, "; ")
		if existing := attrs["style"]; existing != "" {
			style = existing + "; " + style
		}
		attrs["style"] = style
	}

	for k, v := range d.Props.Props {
		if boolProps[k] {
			if b, ok := v.(bool); ok && b {
				attrs[k] = ""
			}
			continue
		}
		attrs[k] = fmt.Sprint(v)
	}

	keys := make([]string, 0, len(attrs))
	for k := range attrs {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]html.Attribute, 0, len(keys))
	for _, k := range keys {
		out = append(out, html.Attribute{Key: k, Val: attrs[k]})
	}
	return out
}

// wireInteractive ensures the reserved marker attribute on nodes that must
// capture interactions: explicit markers, event markers, and the implicit
// navigation/form tag set. Reports whether the node is interactive.
func wireInteractive(d *vdom.Node, n *html.Node) bool {
	if !d.Interactive() && !implicitInteractive[d.Tag] {
		return false
	}
	if attr(n, vdom.AttrInteractive) == "" {
		setAttr(n, vdom.AttrInteractive, "true")
	}
	return true
}

// rewire re-applies interactive wiring to an already-rendered subtree. The
// fallback renderer uses it after innerHTML-style injection, where markers
// survive as plain attributes but the wiring pass still has to run.
func rewire(root *html.Node, onInteractive func(*html.Node)) {
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			if attr(n, vdom.AttrInteractive) == "true" || implicitInteractive[n.Data] {
				if attr(n, vdom.AttrInteractive) == "" {
					setAttr(n, vdom.AttrInteractive, "true")
				}
				if onInteractive != nil {
					onInteractive(n)
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(root)
}
