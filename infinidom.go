// Package infinidom is the client runtime for server-generated pages. A
// remote generator streams rendering operations; this package reconciles
// them into a live page, caches completed pages per path, and converts
// user interactions back into structured events for the generator.
//
// The Client is the orchestrator: transport, session identity, component
// resolution, rendering and interaction capture are wired together here.
// An optional View mirrors the reconciled page into a real browser tab.
package infinidom

import (
	"context"
	"fmt"
	"time"

	"github.com/jamesaudcent/infinidom/internal/capture"
	"github.com/jamesaudcent/infinidom/vdom"
)

// View is a live mirror of the reconciled page. browserview provides the
// Chrome-backed implementation; embedders may supply their own.
type View interface {
	// Attach connects the mirror within the given bound. Failure is not
	// fatal to the client: it settles on fallback rendering instead.
	Attach(ctx context.Context, timeout time.Duration) error
	// Render pushes the full rendered document into the mirror.
	Render(ctx context.Context, docHTML string) error
	// Events yields user actions observed in the mirror. The channel
	// closes when the view shuts down.
	Events() <-chan capture.DOMEvent
	Close() error
}

// errorPanel is the descriptor rendered when the initial load fails. The
// retry button carries the failed path so a click re-enters the normal
// navigation flow.
func errorPanel(path string, err error) *vdom.Node {
	return &vdom.Node{
		Tag: "div",
		Props: vdom.Props{Attrs: map[string]string{"class": "infinidom-error", "role": "alert"}},
		Children: []vdom.Node{
			{Tag: "h2", Children: []vdom.Node{vdom.TextNode("Something went wrong")}},
			{Tag: "p", Children: []vdom.Node{vdom.TextNode(fmt.Sprintf("The page could not be loaded: %v", err))}},
			{
				Tag: "button",
				Props: vdom.Props{Attrs: map[string]string{
					"class":       "infinidom-retry",
					vdom.AttrPath: path,
				}},
				Children: []vdom.Node{vdom.TextNode("Retry")},
			},
		},
	}
}
