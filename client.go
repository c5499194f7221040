package infinidom

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/jamesaudcent/infinidom/internal/cache"
	"github.com/jamesaudcent/infinidom/internal/capture"
	"github.com/jamesaudcent/infinidom/internal/component"
	"github.com/jamesaudcent/infinidom/internal/render"
	"github.com/jamesaudcent/infinidom/internal/session"
	"github.com/jamesaudcent/infinidom/internal/transport"
	"github.com/jamesaudcent/infinidom/vdom"
)

// ErrBusy reports an operation dropped because a load or interaction is in
// flight. Interactions during a load are dropped, never queued.
var ErrBusy = errors.New("infinidom: busy")

type state int

const (
	stateIdle state = iota
	stateLoading
	stateError
)

// Client is the runtime orchestrator: it owns the transport, the session
// identity, the page cache and the active renderer, and runs the
// load/interact state machine. All methods are safe for concurrent use;
// at most one load or interaction is in flight at a time.
type Client struct {
	cfg      *Config
	sessions session.Store
	server   *transport.Client
	cache    *cache.PageCache
	capturer *capture.Capturer
	view     View
	logger   *slog.Logger

	httpClient *http.Client

	rec *render.Reconciler

	mu          sync.Mutex
	state       state
	loaded      bool // a page has rendered successfully at least once
	currentPath string
	history     []string
	pos         int

	// pendingPath buffers a meta-adopted path while a load or interaction
	// is in flight; it is folded into history when the stream settles.
	pendingPath string
	pendingSet  bool
}

// Option configures a Client.
type Option func(*Client)

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// WithView attaches a live page mirror. In auto renderer mode the view is
// probed once at startup; probe failure settles the client on fallback
// rendering without the mirror.
func WithView(v View) Option {
	return func(c *Client) { c.view = v }
}

// WithSessionStore overrides the session store built from configuration.
func WithSessionStore(s session.Store) Option {
	return func(c *Client) { c.sessions = s }
}

// WithHTTPClient overrides the HTTP client used by the transport.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.httpClient = h }
}

// New creates a Client from configuration. Start must be called before any
// load or interaction.
func New(cfg *Config, opts ...Option) (*Client, error) {
	if cfg == nil {
		cfg = &Config{}
	}
	cfg.applyDefaults()

	c := &Client{cfg: cfg, logger: slog.Default()}
	for _, o := range opts {
		o(c)
	}

	if c.sessions == nil {
		if cfg.SessionDB != "" {
			s, err := session.OpenSQLite(cfg.SessionDB)
			if err != nil {
				return nil, fmt.Errorf("infinidom: open session store: %w", err)
			}
			c.sessions = s
		} else {
			c.sessions = session.NewMemStore()
		}
	}

	topts := []transport.Option{transport.WithLogger(c.logger)}
	if c.httpClient != nil {
		topts = append(topts, transport.WithHTTPClient(c.httpClient))
	}
	c.server = transport.New(cfg.ServerURL, c.sessions, topts...)
	c.cache = cache.NewPageCache()

	cpt, err := capture.New(cfg.PageURL, c.logger)
	if err != nil {
		return nil, err
	}
	c.capturer = cpt

	return c, nil
}

// Start settles the rendering mode, fetches the component catalog and
// wires the reconciler. A catalog fetch failure is not fatal: descriptors
// render unresolved until the next session.
func (c *Client) Start(ctx context.Context) error {
	mode := c.resolveRenderer(ctx)

	hooks := render.Hooks{
		OnNavigate: c.adoptPath,
		OnTitle: func(title string) {
			c.logger.Debug("infinidom: title adopted", "title", title)
		},
	}

	var renderer render.Renderer
	switch mode {
	case RendererFallback:
		renderer = render.NewFallback(hooks, c.logger)
	default:
		renderer = render.NewTree(hooks, c.logger)
	}

	var resolver *component.Resolver
	defs, err := c.server.FetchComponents(ctx)
	if err != nil {
		c.logger.Warn("infinidom: component catalog unavailable, rendering unresolved", "error", err)
		resolver = component.NewResolver(nil, c.logger)
	} else {
		resolver = component.NewResolver(component.NewCatalog(defs, c.logger), c.logger)
	}

	c.rec = render.NewReconciler(resolver, renderer, hooks, c.logger)

	if c.view != nil {
		go c.pumpViewEvents(ctx)
	}

	c.logger.Info("infinidom: client started", "server", c.cfg.ServerURL, "renderer", mode)
	return nil
}

// resolveRenderer settles auto mode: probe the attached view once; a
// failed probe drops the view and flips to fallback for the session.
func (c *Client) resolveRenderer(ctx context.Context) string {
	mode := c.cfg.Renderer
	if mode != RendererAuto {
		return mode
	}
	if c.view == nil {
		return RendererTree
	}
	if err := c.view.Attach(ctx, c.cfg.AttachTimeout); err != nil {
		c.logger.Warn("infinidom: view probe failed, using fallback renderer", "error", err)
		c.view = nil
		return RendererFallback
	}
	return RendererTree
}

// Load navigates to a path. Cached paths replay locally with a single
// navigation notice to the server; uncached paths open the init stream.
// Returns ErrBusy when a load or interaction is already in flight.
func (c *Client) Load(ctx context.Context, path string) error {
	if !c.begin() {
		return ErrBusy
	}
	return c.load(ctx, normalizePath(path), true)
}

// load runs with the busy flag held and releases it. push controls history
// stack growth (Back/Forward replay without pushing).
func (c *Client) load(ctx context.Context, path string, push bool) error {
	start := time.Now()

	if ops := c.cache.Get(path); ops != nil {
		c.rec.Renderer().Reset()
		for _, op := range ops {
			c.rec.Apply(op)
		}
		// Fire-and-forget: the replay must not wait on the server.
		go cache.Notify(context.WithoutCancel(ctx), c.server, path, c.logger)
		c.finishLoad(path, push)
		c.pushView(ctx)
		c.logger.Info("infinidom: page replayed from cache",
			"path", path, "ops", len(ops), "duration", time.Since(start))
		return nil
	}

	s, err := c.server.StreamInit(ctx, path)
	if err != nil {
		return c.failLoad(path, err)
	}
	defer s.Close()

	c.rec.Renderer().Reset()
	var ops []vdom.Operation
	for op := range s.Ops() {
		c.rec.Apply(op)
		ops = append(ops, op)
	}
	if err := s.Err(); err != nil {
		return c.failLoad(path, err)
	}

	c.cache.Put(path, ops)
	c.finishLoad(path, push)
	c.pushView(ctx)
	c.logger.Info("infinidom: page loaded",
		"path", path, "ops", len(ops), "duration", time.Since(start))
	return nil
}

// Dispatch handles one user action. Native actions are left alone,
// navigations enter the load flow, everything else goes to the interaction
// stream. Returns ErrBusy while a load or interaction is in flight: the
// action is dropped, not queued.
func (c *Client) Dispatch(ctx context.Context, ev capture.DOMEvent) error {
	if !c.begin() {
		c.logger.Debug("infinidom: interaction dropped while busy", "event", ev.Type)
		return ErrBusy
	}

	res, err := c.capturer.Capture(ev)
	if err != nil {
		c.settle(stateIdle)
		if errors.Is(err, capture.ErrNativeAction) {
			c.logger.Debug("infinidom: native action left to environment")
			return nil
		}
		return err
	}

	if res.NavigatePath != "" {
		return c.load(ctx, res.NavigatePath, true)
	}
	return c.interact(ctx, res.Event)
}

// interact runs with the busy flag held and releases it. Interaction
// results are never cached: only navigations produce replayable pages.
func (c *Client) interact(ctx context.Context, ev vdom.Event) error {
	start := time.Now()

	dom, err := c.rec.Renderer().BodyHTML()
	if err != nil {
		c.logger.Warn("infinidom: could not snapshot current page", "error", err)
	}

	ir := vdom.InteractionRequest{
		Event:      ev,
		CurrentURL: c.currentURL(),
		Viewport:   &vdom.Viewport{Width: c.cfg.Viewport.Width, Height: c.cfg.Viewport.Height},
		CurrentDOM: dom,
	}

	s, err := c.server.StreamInteract(ctx, ir)
	if err != nil {
		c.settleIdle(false)
		return err
	}
	defer s.Close()

	n := 0
	for op := range s.Ops() {
		c.rec.Apply(op)
		n++
	}
	if err := s.Err(); err != nil {
		// The page keeps whatever was applied before the failure.
		c.settleIdle(false)
		c.logger.Error("infinidom: interaction stream failed", "event", ev.EventType, "error", err)
		return err
	}

	c.settleIdle(true)
	c.pushView(ctx)
	c.logger.Info("infinidom: interaction applied",
		"event", ev.EventType, "ops", n, "duration", time.Since(start))
	return nil
}

// Back moves one entry back in history, replaying the page without adding
// a new entry. No-op at the oldest entry.
func (c *Client) Back(ctx context.Context) error {
	path, ok := c.step(-1)
	if !ok {
		return nil
	}
	return c.load(ctx, path, false)
}

// Forward is the inverse of Back. No-op at the newest entry.
func (c *Client) Forward(ctx context.Context) error {
	path, ok := c.step(+1)
	if !ok {
		return nil
	}
	return c.load(ctx, path, false)
}

// step moves the history position, acquiring the busy flag on success.
func (c *Client) step(delta int) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == stateLoading {
		return "", false
	}
	next := c.pos + delta
	if next < 0 || next >= len(c.history) {
		return "", false
	}
	c.pos = next
	c.state = stateLoading
	return c.history[next], true
}

// Reset drops the session identity and the page cache as a unit, yielding
// a blank page and a fresh remote session on the next load.
func (c *Client) Reset() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.cache.Clear()
	if err := c.sessions.Clear(); err != nil {
		return fmt.Errorf("infinidom: reset session: %w", err)
	}
	if c.rec != nil {
		c.rec.Renderer().Reset()
	}
	c.history = nil
	c.pos = 0
	c.currentPath = ""
	c.pendingSet = false
	c.loaded = false
	c.state = stateIdle
	c.logger.Info("infinidom: session and cache reset")
	return nil
}

// Close releases the view and the session store.
func (c *Client) Close() error {
	if c.view != nil {
		if err := c.view.Close(); err != nil {
			c.logger.Warn("infinidom: close view", "error", err)
		}
	}
	return c.sessions.Close()
}

// CurrentPath returns the path of the page on screen, "" before the first
// load.
func (c *Client) CurrentPath() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.currentPath
}

// Title returns the current document title.
func (c *Client) Title() string {
	return c.rec.Renderer().Title()
}

// HTML renders the current document.
func (c *Client) HTML() (string, error) {
	return c.rec.Renderer().DocumentHTML()
}

// begin acquires the busy flag. False means a load or interaction is
// already in flight.
func (c *Client) begin() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == stateLoading {
		return false
	}
	c.state = stateLoading
	return true
}

func (c *Client) settle(s state) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

// settleIdle returns to idle after an interaction. An interaction rewrites
// the current history entry when the server adopted a path; adopt false
// discards the buffered path on failure.
func (c *Client) settleIdle(adopt bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pendingSet {
		if adopt {
			c.currentPath = c.pendingPath
			if len(c.history) > 0 {
				c.history[c.pos] = c.pendingPath
			}
		}
		c.pendingSet = false
	}
	c.state = stateIdle
}

func (c *Client) finishLoad(path string, push bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	// A meta-adopted path supersedes the requested one for bookkeeping.
	if c.pendingSet {
		path = c.pendingPath
		c.pendingSet = false
	}
	c.currentPath = path
	c.loaded = true
	c.state = stateIdle
	if push {
		// Navigating from mid-history discards the forward entries.
		if len(c.history) > 0 {
			c.history = c.history[:c.pos+1]
		}
		c.history = append(c.history, path)
		c.pos = len(c.history) - 1
	} else if len(c.history) > 0 {
		c.history[c.pos] = path
	}
}

// failLoad renders the error panel on a failed initial load; later
// failures keep the current page and return to idle.
func (c *Client) failLoad(path string, err error) error {
	c.mu.Lock()
	firstLoad := !c.loaded
	c.pendingSet = false
	c.mu.Unlock()

	c.logger.Error("infinidom: load failed", "path", path, "error", err)
	if firstLoad {
		c.rec.Apply(vdom.Operation{
			Kind:    vdom.KindStructural,
			Action:  vdom.ActionReplace,
			Target:  "body",
			Element: errorPanel(path, err),
		})
		c.settle(stateError)
	} else {
		c.settle(stateIdle)
	}
	return fmt.Errorf("infinidom: load %s: %w", path, err)
}

// adoptPath is the meta-operation hook: the server names the canonical
// path of what it just rendered. While a load or interaction is in flight
// the current history entry still belongs to the previous page, so the
// adopted path is buffered and folded in when the stream settles; outside
// a stream the current entry is rewritten in place.
func (c *Client) adoptPath(path string) {
	path = normalizePath(path)
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == stateLoading {
		c.pendingPath = path
		c.pendingSet = true
		return
	}
	c.currentPath = path
	if len(c.history) > 0 {
		c.history[c.pos] = path
	}
}

func (c *Client) currentURL() string {
	c.mu.Lock()
	path := c.currentPath
	c.mu.Unlock()
	return strings.TrimRight(c.cfg.PageURL, "/") + path
}

// pushView mirrors the rendered document, best effort.
func (c *Client) pushView(ctx context.Context) {
	if c.view == nil {
		return
	}
	doc, err := c.rec.Renderer().DocumentHTML()
	if err != nil {
		c.logger.Warn("infinidom: render for view failed", "error", err)
		return
	}
	if err := c.view.Render(ctx, doc); err != nil {
		c.logger.Warn("infinidom: view render failed", "error", err)
	}
}

// pumpViewEvents feeds view-observed actions into Dispatch until the view
// closes or the context ends.
func (c *Client) pumpViewEvents(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-c.view.Events():
			if !ok {
				return
			}
			if err := c.Dispatch(ctx, ev); err != nil && !errors.Is(err, ErrBusy) {
				c.logger.Error("infinidom: dispatch from view failed", "error", err)
			}
		}
	}
}

func normalizePath(p string) string {
	if p == "" {
		return "/"
	}
	if !strings.HasPrefix(p, "/") {
		return "/" + p
	}
	return p
}
