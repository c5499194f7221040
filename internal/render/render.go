// Package render turns node descriptors into a live HTML document and
// applies the structural, style and meta operations of the stream against
// it. Two Renderer implementations exist: a differential one that patches
// the tree in place, and a fallback that string-renders and re-injects
// sanitised markup. Both behave equivalently for every operation kind; the
// choice is made once at startup.
package render

import (
	"errors"
	"log/slog"

	"golang.org/x/net/html"

	"github.com/jamesaudcent/infinidom/internal/component"
	"github.com/jamesaudcent/infinidom/vdom"
)

// StyleElementID is the id of the single injected stylesheet element.
// Style operations fully supersede its contents; styles never accumulate.
const StyleElementID = "infinidom-styles"

var (
	// ErrTargetNotFound reports a selector matching nothing. The operation
	// is a no-op; the reconciler logs and continues.
	ErrTargetNotFound = errors.New("render: target not found")
	// ErrUnknownAction reports an unrecognised structural action.
	ErrUnknownAction = errors.New("render: unknown action")
)

// Renderer applies structural operations against the live container. The
// interface is identical for both rendering modes so the reconciler never
// branches per call.
type Renderer interface {
	ApplyStructural(action vdom.Action, target string, el *vdom.Node) error
	SetStylesheet(css string)
	SetTitle(title string)

	Title() string
	// Body returns the live page root element.
	Body() *html.Node
	// BodyHTML renders the page root's contents.
	BodyHTML() (string, error)
	// DocumentHTML renders the whole document.
	DocumentHTML() (string, error)
	// Reset discards all rendered state, yielding a fresh empty page.
	Reset()
}

// Hooks are the reconciler's upward signals.
type Hooks struct {
	// OnNavigate receives the navigable path of a meta operation so the
	// orchestrator can update history without a reload.
	OnNavigate func(path string)
	// OnTitle receives an adopted document title.
	OnTitle func(title string)
	// OnInteractive is called for every element wired as interactive.
	OnInteractive func(n *html.Node)
}

// Reconciler resolves descriptors and dispatches operations to a Renderer.
type Reconciler struct {
	resolver *component.Resolver
	renderer Renderer
	hooks    Hooks
	logger   *slog.Logger
}

// NewReconciler wires a resolver and a renderer together.
func NewReconciler(resolver *component.Resolver, renderer Renderer, hooks Hooks, logger *slog.Logger) *Reconciler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reconciler{resolver: resolver, renderer: renderer, hooks: hooks, logger: logger}
}

// Renderer returns the active renderer.
func (rc *Reconciler) Renderer() Renderer { return rc.renderer }

// Apply commits one operation. Malformed or unaddressable operations are
// logged and skipped; nothing here is fatal.
func (rc *Reconciler) Apply(op vdom.Operation) {
	switch op.Kind {
	case vdom.KindStructural:
		el := rc.resolver.Resolve(op.Element)
		if err := rc.renderer.ApplyStructural(op.Action, op.Target, el); err != nil {
			rc.logger.Warn("render: structural operation skipped",
				"action", op.Action, "target", op.Target, "error", err)
		}
	case vdom.KindStyle:
		rc.renderer.SetStylesheet(op.CSS)
	case vdom.KindMeta:
		if op.Title != "" {
			rc.renderer.SetTitle(op.Title)
			if rc.hooks.OnTitle != nil {
				rc.hooks.OnTitle(op.Title)
			}
		}
		if op.Path != "" && rc.hooks.OnNavigate != nil {
			rc.hooks.OnNavigate(op.Path)
		}
	default:
		rc.logger.Warn("render: unknown operation kind dropped", "kind", op.Kind)
	}
}
