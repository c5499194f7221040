// Package vdom defines the wire types exchanged with an infinidom server.
// These are the public API contract: the stream of rendering instructions,
// the virtual node model, the component catalog, and the interaction
// payloads. Any consumer (the client runtime, the dev server, custom
// tooling) imports this package to speak the protocol.
package vdom

import (
	"encoding/json"
	"fmt"
)

// Kind discriminates the three operation families in the stream.
type Kind string

const (
	KindStructural Kind = "op"    // mutate the rendered structure
	KindStyle      Kind = "style" // replace the injected stylesheet
	KindMeta       Kind = "meta"  // adopt title and/or navigable path
)

// Action is the structural mutation verb.
type Action string

const (
	ActionReplace Action = "replace"
	ActionAppend  Action = "append"
	ActionPrepend Action = "prepend"
	ActionUpdate  Action = "update" // same semantics as replace-at-target
	ActionClear   Action = "clear"
	ActionRemove  Action = "remove"
)

// Operation is one instruction in the server stream. It is immutable once
// received and is the unit of cache storage and replay.
type Operation struct {
	Kind Kind

	// Structural fields (Kind == KindStructural).
	Action  Action
	Target  string // CSS-ish selector; "" or "body" = page root
	Element *Node

	// Style fields (Kind == KindStyle).
	CSS string

	// Meta fields (Kind == KindMeta). Empty values mean "no change".
	Title string
	Path  string
}

// wireOperation is the JSON shape emitted by the backend.
type wireOperation struct {
	Type    string `json:"type"`
	Op      string `json:"op,omitempty"`
	Target  string `json:"target,omitempty"`
	Element *Node  `json:"element,omitempty"`
	CSS     string `json:"css,omitempty"`
	Title   string `json:"title,omitempty"`
	Path    string `json:"path,omitempty"`
}

// MarshalJSON emits the backend wire format.
func (o Operation) MarshalJSON() ([]byte, error) {
	w := wireOperation{Type: string(o.Kind)}
	switch o.Kind {
	case KindStructural:
		w.Op = string(o.Action)
		w.Target = o.Target
		w.Element = o.Element
	case KindStyle:
		w.CSS = o.CSS
	case KindMeta:
		w.Title = o.Title
		w.Path = o.Path
	default:
		return nil, fmt.Errorf("vdom: marshal operation: unknown kind %q", o.Kind)
	}
	return json.Marshal(w)
}

// UnmarshalJSON decodes the backend wire format. Unknown type discriminators
// (including the retired script capability) are rejected so callers can drop
// the frame; action values are not validated here — the reconciler owns the
// unknown-action arm.
func (o *Operation) UnmarshalJSON(data []byte) error {
	var w wireOperation
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	switch Kind(w.Type) {
	case KindStructural:
		*o = Operation{Kind: KindStructural, Action: Action(w.Op), Target: w.Target, Element: w.Element}
	case KindStyle:
		*o = Operation{Kind: KindStyle, CSS: w.CSS}
	case KindMeta:
		*o = Operation{Kind: KindMeta, Title: w.Title, Path: w.Path}
	default:
		return fmt.Errorf("vdom: unknown operation type %q", w.Type)
	}
	return nil
}

// DecodeOperation parses a single stream frame into an Operation.
func DecodeOperation(data []byte) (Operation, error) {
	var op Operation
	if err := json.Unmarshal(data, &op); err != nil {
		return Operation{}, err
	}
	return op, nil
}

// RootTarget reports whether the selector addresses the implicit page root.
func RootTarget(sel string) bool {
	return sel == "" || sel == "body"
}
