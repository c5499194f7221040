// Package browserview mirrors the reconciled page into a real Chrome tab.
// The mirror is display and input only: the in-memory document stays the
// source of truth, the tab shows it and reports user actions back.
package browserview

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/stealth"
	"github.com/ysmood/gson"
	"golang.org/x/net/html"

	"github.com/jamesaudcent/infinidom/internal/capture"
)

// Mirror drives one Chrome tab showing the rendered page.
type Mirror struct {
	logger *slog.Logger

	mu     sync.Mutex
	lnch   *launcher.Launcher
	b      *rod.Browser
	page   *rod.Page
	body   *html.Node // parsed copy of the last pushed document
	closed bool

	events chan capture.DOMEvent
}

// Option configures a Mirror.
type Option func(*Mirror)

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) Option {
	return func(m *Mirror) { m.logger = l }
}

// New creates a detached Mirror. Attach launches the browser.
func New(opts ...Option) *Mirror {
	m := &Mirror{
		logger: slog.Default(),
		events: make(chan capture.DOMEvent, 16),
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// Attach launches Chrome and opens the mirror tab within the given bound.
// A timeout or launch failure leaves the Mirror unusable; the caller falls
// back to rendering without a mirror.
func (m *Mirror) Attach(ctx context.Context, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- m.connect() }()

	select {
	case <-ctx.Done():
		return fmt.Errorf("browserview: attach: %w", ctx.Err())
	case err := <-done:
		return err
	}
}

func (m *Mirror) connect() error {
	l := launcher.New().Headless(true)
	l = l.Set("disable-blink-features", "AutomationControlled")

	wsURL, err := l.Launch()
	if err != nil {
		return fmt.Errorf("browserview: launch: %w", err)
	}

	b := rod.New().ControlURL(wsURL)
	if err := b.Connect(); err != nil {
		l.Cleanup()
		return fmt.Errorf("browserview: connect: %w", err)
	}

	page, err := stealth.Page(b)
	if err != nil {
		b.Close()
		l.Cleanup()
		return fmt.Errorf("browserview: open tab: %w", err)
	}

	if _, err := page.Expose("infinidomEvent", m.onPageEvent); err != nil {
		page.Close()
		b.Close()
		l.Cleanup()
		return fmt.Errorf("browserview: expose binding: %w", err)
	}

	m.mu.Lock()
	m.lnch, m.b, m.page = l, b, page
	m.mu.Unlock()

	m.logger.Info("browserview: attached", "url", wsURL)
	return nil
}

// Render pushes the full document into the tab and rewires the event
// forwarders.
func (m *Mirror) Render(ctx context.Context, docHTML string) error {
	m.mu.Lock()
	page := m.page
	m.mu.Unlock()
	if page == nil {
		return fmt.Errorf("browserview: not attached")
	}

	doc, err := html.Parse(strings.NewReader(docHTML))
	if err != nil {
		return fmt.Errorf("browserview: parse document: %w", err)
	}

	if err := page.Context(ctx).SetDocumentContent(docHTML); err != nil {
		return fmt.Errorf("browserview: set content: %w", err)
	}
	if _, err := page.Context(ctx).Eval(eventWiringJS); err != nil {
		return fmt.Errorf("browserview: wire events: %w", err)
	}

	m.mu.Lock()
	m.body = findBody(doc)
	m.mu.Unlock()
	return nil
}

// Events yields actions observed in the tab. The channel closes on Close.
func (m *Mirror) Events() <-chan capture.DOMEvent {
	return m.events
}

// Close shuts the tab and the browser down.
func (m *Mirror) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil
	}
	m.closed = true
	close(m.events)

	if m.page != nil {
		m.page.Close()
	}
	if m.b != nil {
		m.b.Close()
	}
	if m.lnch != nil {
		m.lnch.Cleanup()
	}
	return nil
}

// pageEvent is the payload the in-page script forwards through the binding.
type pageEvent struct {
	Type  string            `json:"type"`
	Path  []int             `json:"path"` // element child indexes from body
	Value string            `json:"value,omitempty"`
	Form  map[string]string `json:"form,omitempty"`
}

// onPageEvent resolves the reported element against the last pushed
// document and queues a DOMEvent. Full queues drop: the client is busy
// anyway and interactions are drop-not-queue.
func (m *Mirror) onPageEvent(j gson.JSON) (any, error) {
	var pe pageEvent
	if err := json.Unmarshal([]byte(j.Str()), &pe); err != nil {
		return nil, fmt.Errorf("browserview: decode page event: %w", err)
	}

	m.mu.Lock()
	body := m.body
	closed := m.closed
	m.mu.Unlock()
	if closed || body == nil {
		return nil, nil
	}

	target := resolvePath(body, pe.Path)
	if target == nil {
		m.logger.Warn("browserview: event target not found", "type", pe.Type, "path", pe.Path)
		return nil, nil
	}

	ev := capture.DOMEvent{Type: pe.Type, Target: target, Value: pe.Value, Form: pe.Form}
	select {
	case m.events <- ev:
	default:
		m.logger.Debug("browserview: event dropped, queue full", "type", pe.Type)
	}
	return nil, nil
}

// resolvePath walks element child indexes from the body down.
func resolvePath(body *html.Node, path []int) *html.Node {
	n := body
	for _, idx := range path {
		child := firstElement(n)
		for i := 0; child != nil && i < idx; i++ {
			child = nextElement(child)
		}
		if child == nil {
			return nil
		}
		n = child
	}
	return n
}

func firstElement(n *html.Node) *html.Node {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode {
			return c
		}
	}
	return nil
}

func nextElement(n *html.Node) *html.Node {
	for c := n.NextSibling; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode {
			return c
		}
	}
	return nil
}

func findBody(doc *html.Node) *html.Node {
	var body *html.Node
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if body != nil {
			return
		}
		if n.Type == html.ElementNode && n.Data == "body" {
			body = n
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return body
}

// eventWiringJS installs capture-phase listeners that forward clicks,
// input edits and form submits through the exposed binding as an element
// index path from body. Default actions are suppressed so the runtime
// stays in charge of navigation.
const eventWiringJS = `() => {
	const indexPath = (el) => {
		const path = [];
		let n = el;
		while (n && n.nodeType === 1 && n !== document.body) {
			let i = 0, s = n;
			while ((s = s.previousElementSibling)) i++;
			path.unshift(i);
			n = n.parentElement;
		}
		return path;
	};
	const send = (type, el, value, form) => {
		window.infinidomEvent(JSON.stringify({type, path: indexPath(el), value, form}));
	};
	document.addEventListener('click', (e) => {
		const el = e.target.closest('a, button, [data-infinidom-interactive="true"], [data-path]');
		if (!el) return;
		e.preventDefault();
		send('click', el);
	}, true);
	document.addEventListener('change', (e) => {
		send('change', e.target, e.target.value);
	}, true);
	document.addEventListener('submit', (e) => {
		e.preventDefault();
		const form = {};
		for (const f of e.target.elements) {
			if (f.name) form[f.name] = f.value;
		}
		send('submit', e.target, '', form);
	}, true);
}`
