package render

import (
	"log/slog"

	"golang.org/x/net/html"

	"github.com/jamesaudcent/infinidom/vdom"
)

// TreeRenderer is the differential implementation: it patches the live
// document in place, keeping a minimal previous-render handle so a repeat
// replace at the same target reuses existing nodes instead of remounting.
type TreeRenderer struct {
	p      *page
	hooks  Hooks
	logger *slog.Logger

	// Previous-render handle: the element mounted by the last replace and
	// the selector it was mounted at.
	lastTarget string
	lastMount  *html.Node
}

// NewTree creates a differential renderer over a fresh empty page.
func NewTree(hooks Hooks, logger *slog.Logger) *TreeRenderer {
	if logger == nil {
		logger = slog.Default()
	}
	return &TreeRenderer{p: newPage(), hooks: hooks, logger: logger}
}

func (r *TreeRenderer) SetStylesheet(css string)        { r.p.setStylesheet(css) }
func (r *TreeRenderer) SetTitle(title string)           { r.p.setTitle(title) }
func (r *TreeRenderer) Title() string                   { return r.p.title() }
func (r *TreeRenderer) Body() *html.Node                { return r.p.body }
func (r *TreeRenderer) BodyHTML() (string, error)       { return r.p.bodyHTML() }
func (r *TreeRenderer) DocumentHTML() (string, error)   { return r.p.documentHTML() }

func (r *TreeRenderer) Reset() {
	r.p = newPage()
	r.dropHandle()
}

func (r *TreeRenderer) dropHandle() {
	r.lastTarget = ""
	r.lastMount = nil
}

// ApplyStructural dispatches one structural action against the live tree.
func (r *TreeRenderer) ApplyStructural(action vdom.Action, target string, el *vdom.Node) error {
	switch action {
	case vdom.ActionReplace, vdom.ActionUpdate:
		return r.replace(target, el)
	case vdom.ActionAppend:
		return r.insert(target, el, false)
	case vdom.ActionPrepend:
		return r.insert(target, el, true)
	case vdom.ActionClear:
		return r.clear(target)
	case vdom.ActionRemove:
		return r.remove(target)
	default:
		return ErrUnknownAction
	}
}

func (r *TreeRenderer) replace(target string, el *vdom.Node) error {
	if vdom.RootTarget(target) {
		// Root replace discards the handle and clears fully before
		// mounting: a patch here would drift after a prior page's
		// incremental appends.
		r.dropHandle()
		clearChildren(r.p.body)
		if n := toHTML(el, r.hooks.OnInteractive, r.logger); n != nil {
			r.p.body.AppendChild(n)
			r.lastTarget, r.lastMount = "body", n
		}
		return nil
	}

	t := r.p.find(target)
	if t == nil {
		return ErrTargetNotFound
	}
	n := toHTML(el, r.hooks.OnInteractive, r.logger)
	if n == nil {
		return nil
	}

	if r.lastTarget == target && r.lastMount != nil && contains(t, r.lastMount) {
		r.lastMount = patch(r.lastMount, n)
		return nil
	}

	clearChildren(t)
	t.AppendChild(n)
	r.lastTarget, r.lastMount = target, n
	return nil
}

func (r *TreeRenderer) insert(target string, el *vdom.Node, front bool) error {
	t := r.p.find(target)
	if t == nil {
		return ErrTargetNotFound
	}
	n := toHTML(el, r.hooks.OnInteractive, r.logger)
	if n == nil {
		return nil
	}
	if front {
		t.InsertBefore(n, t.FirstChild)
	} else {
		t.AppendChild(n)
	}
	return nil
}

func (r *TreeRenderer) clear(target string) error {
	t := r.p.find(target)
	if t == nil {
		return ErrTargetNotFound
	}
	if r.lastMount != nil && contains(t, r.lastMount) {
		r.dropHandle()
	}
	clearChildren(t)
	return nil
}

func (r *TreeRenderer) remove(target string) error {
	t := r.p.find(target)
	if t == nil {
		return ErrTargetNotFound
	}
	if t == r.p.body {
		// The page root itself cannot be detached; removing it empties it.
		r.dropHandle()
		clearChildren(t)
		return nil
	}
	if r.lastMount != nil && contains(t, r.lastMount) {
		r.dropHandle()
	}
	detach(t)
	return nil
}

// patch reconciles the previously mounted node against the freshly rendered
// one, reusing the old node where tag and type agree. Returns the node that
// is live after patching.
func patch(old, want *html.Node) *html.Node {
	if old.Type != want.Type || (old.Type == html.ElementNode && old.Data != want.Data) {
		if old.Parent != nil {
			old.Parent.InsertBefore(want, old)
			old.Parent.RemoveChild(old)
		}
		return want
	}
	if old.Type == html.TextNode {
		old.Data = want.Data
		return old
	}
	old.Attr = want.Attr
	patchChildren(old, want)
	return old
}

func patchChildren(old, want *html.Node) {
	var oldKids []*html.Node
	for c := old.FirstChild; c != nil; c = c.NextSibling {
		oldKids = append(oldKids, c)
	}
	var wantKids []*html.Node
	for want.FirstChild != nil {
		c := want.FirstChild
		want.RemoveChild(c)
		wantKids = append(wantKids, c)
	}

	n := len(oldKids)
	if len(wantKids) < n {
		n = len(wantKids)
	}
	for i := 0; i < n; i++ {
		patch(oldKids[i], wantKids[i])
	}
	for _, c := range oldKids[n:] {
		old.RemoveChild(c)
	}
	for _, c := range wantKids[n:] {
		old.AppendChild(c)
	}
}
