package vdom

import (
	"bytes"
	"encoding/json"
	"strings"
)

// Reserved attributes understood by the runtime. The server marks elements
// interactive and carries explicit navigation targets through these.
const (
	AttrInteractive = "data-infinidom-interactive"
	AttrPath        = "data-path"
)

// Props carries the Snabbdom-compatible property groups of a node.
type Props struct {
	Attrs map[string]string `json:"attrs,omitempty"` // HTML attributes
	Style map[string]string `json:"style,omitempty"` // inline styles
	Props map[string]any    `json:"props,omitempty"` // DOM properties (value, checked, ...)
	On    map[string]bool   `json:"on,omitempty"`    // event markers (click, input, submit)
}

// Node is one virtual node descriptor: either a literal text value or a
// structural node with a tag (or a component reference that resolves to
// one), properties and children. Children are owned exclusively by their
// parent; descriptors are never shared between trees.
type Node struct {
	// Text holds the literal value of a text node. It is set iff the node
	// was decoded from a bare JSON string.
	Text string `json:"-"`

	Tag string `json:"tag,omitempty"`

	// Component reference, expanded by the resolver before rendering.
	Component string `json:"component,omitempty"`
	Variant   string `json:"variant,omitempty"`
	Size      string `json:"size,omitempty"`

	Props    Props  `json:"props,omitzero"`
	Children []Node `json:"children,omitempty"`
}

// TextNode builds a literal text descriptor.
func TextNode(s string) Node { return Node{Text: s} }

// IsText reports whether the node is a literal text value.
func (n *Node) IsText() bool { return n.Tag == "" && n.Component == "" }

// Attr returns an attribute value, "" if absent.
func (n *Node) Attr(name string) string {
	if n.Props.Attrs == nil {
		return ""
	}
	return n.Props.Attrs[name]
}

// SetAttr sets an attribute, allocating the map on first use.
func (n *Node) SetAttr(name, value string) {
	if n.Props.Attrs == nil {
		n.Props.Attrs = make(map[string]string)
	}
	n.Props.Attrs[name] = value
}

// Classes returns the class attribute split into tokens.
func (n *Node) Classes() []string {
	return strings.Fields(n.Attr("class"))
}

// Interactive reports whether the node carries the explicit interactive
// marker or an event marker.
func (n *Node) Interactive() bool {
	if n.Attr(AttrInteractive) == "true" {
		return true
	}
	return len(n.Props.On) > 0
}

// MarshalJSON renders text nodes as bare strings, matching the wire shape.
func (n Node) MarshalJSON() ([]byte, error) {
	if n.IsText() {
		return json.Marshal(n.Text)
	}
	type plain Node // shed methods to avoid recursion
	return json.Marshal(plain(n))
}

// UnmarshalJSON accepts either a bare string (text node) or an object.
func (n *Node) UnmarshalJSON(data []byte) error {
	d := bytes.TrimSpace(data)
	if len(d) > 0 && d[0] == '"' {
		var s string
		if err := json.Unmarshal(d, &s); err != nil {
			return err
		}
		*n = Node{Text: s}
		return nil
	}
	type plain Node
	var p plain
	if err := json.Unmarshal(d, &p); err != nil {
		return err
	}
	*n = Node(p)
	return nil
}

// Clone deep-copies the descriptor. The resolver works on copies so cached
// operations stay immutable.
func (n *Node) Clone() *Node {
	if n == nil {
		return nil
	}
	out := *n
	out.Props.Attrs = cloneMap(n.Props.Attrs)
	out.Props.Style = cloneMap(n.Props.Style)
	out.Props.On = cloneMap(n.Props.On)
	if n.Props.Props != nil {
		out.Props.Props = make(map[string]any, len(n.Props.Props))
		for k, v := range n.Props.Props {
			out.Props.Props[k] = v
		}
	}
	if n.Children != nil {
		out.Children = make([]Node, len(n.Children))
		for i := range n.Children {
			out.Children[i] = *n.Children[i].Clone()
		}
	}
	return &out
}

func cloneMap[V any](m map[string]V) map[string]V {
	if m == nil {
		return nil
	}
	out := make(map[string]V, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
