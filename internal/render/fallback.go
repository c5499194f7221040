package render

import (
	"bytes"
	"fmt"
	"log/slog"
	"strings"

	"github.com/microcosm-cc/bluemonday"
	"golang.org/x/net/html"

	"github.com/jamesaudcent/infinidom/vdom"
)

// FallbackRenderer is the non-differential implementation used when the
// differential backend is unavailable at startup: every mount string-renders
// the descriptor, sanitises the markup, re-parses it into the target
// (innerHTML semantics) and manually rewires interactive elements
// afterwards. Observable behavior matches TreeRenderer for every operation
// kind.
type FallbackRenderer struct {
	p      *page
	hooks  Hooks
	logger *slog.Logger
	policy *bluemonday.Policy
}

// NewFallback creates a fallback renderer over a fresh empty page.
func NewFallback(hooks Hooks, logger *slog.Logger) *FallbackRenderer {
	if logger == nil {
		logger = slog.Default()
	}
	return &FallbackRenderer{p: newPage(), hooks: hooks, logger: logger, policy: injectionPolicy()}
}

// injectionPolicy is the sanitation applied to server-supplied markup on
// the string-injection path. It keeps the structural and form vocabulary
// the generator emits plus the reserved runtime attributes; URL schemes go
// through bluemonday's standard filtering.
func injectionPolicy() *bluemonday.Policy {
	p := bluemonday.UGCPolicy()
	p.AllowElements("button", "input", "select", "option", "textarea", "label", "form",
		"nav", "header", "footer", "main", "section", "article", "aside",
		"figure", "figcaption", "span")
	p.AllowAttrs("class", "id", "style", "role", "aria-label").Globally()
	p.AllowDataAttributes()
	p.AllowAttrs("type", "name", "value", "placeholder").OnElements("input", "textarea", "select", "option", "button")
	p.AllowAttrs("for").OnElements("label")
	p.AllowAttrs("action", "method").OnElements("form")
	return p
}

func (r *FallbackRenderer) SetStylesheet(css string)      { r.p.setStylesheet(css) }
func (r *FallbackRenderer) SetTitle(title string)         { r.p.setTitle(title) }
func (r *FallbackRenderer) Title() string                 { return r.p.title() }
func (r *FallbackRenderer) Body() *html.Node              { return r.p.body }
func (r *FallbackRenderer) BodyHTML() (string, error)     { return r.p.bodyHTML() }
func (r *FallbackRenderer) DocumentHTML() (string, error) { return r.p.documentHTML() }

func (r *FallbackRenderer) Reset() { r.p = newPage() }

func (r *FallbackRenderer) ApplyStructural(action vdom.Action, target string, el *vdom.Node) error {
	switch action {
	case vdom.ActionReplace, vdom.ActionUpdate:
		return r.mount(target, el, mountReplace)
	case vdom.ActionAppend:
		return r.mount(target, el, mountAppend)
	case vdom.ActionPrepend:
		return r.mount(target, el, mountPrepend)
	case vdom.ActionClear:
		t := r.p.find(target)
		if t == nil {
			return ErrTargetNotFound
		}
		clearChildren(t)
		return nil
	case vdom.ActionRemove:
		t := r.p.find(target)
		if t == nil {
			return ErrTargetNotFound
		}
		if t == r.p.body {
			clearChildren(t)
			return nil
		}
		detach(t)
		return nil
	default:
		return ErrUnknownAction
	}
}

type mountMode int

const (
	mountReplace mountMode = iota
	mountAppend
	mountPrepend
)

func (r *FallbackRenderer) mount(target string, el *vdom.Node, mode mountMode) error {
	t := r.p.find(target)
	if t == nil {
		return ErrTargetNotFound
	}

	markup, err := r.renderString(el)
	if err != nil {
		return err
	}
	if markup == "" {
		return nil
	}

	frag, err := html.ParseFragment(strings.NewReader(markup), t)
	if err != nil {
		return fmt.Errorf("render: reparse markup: %w", err)
	}

	if mode == mountReplace {
		clearChildren(t)
	}
	anchor := t.FirstChild
	for _, n := range frag {
		if mode == mountPrepend {
			t.InsertBefore(n, anchor)
		} else {
			t.AppendChild(n)
		}
		rewire(n, r.hooks.OnInteractive)
	}
	return nil
}

// renderString turns a resolved descriptor into sanitised markup. Wiring
// marker attributes are added before rendering so they survive the string
// round trip; handler rewiring happens after injection.
func (r *FallbackRenderer) renderString(el *vdom.Node) (string, error) {
	n := toHTML(el, nil, r.logger)
	if n == nil {
		return "", nil
	}
	var buf bytes.Buffer
	if err := html.Render(&buf, n); err != nil {
		return "", fmt.Errorf("render: to string: %w", err)
	}
	return r.policy.Sanitize(buf.String()), nil
}
