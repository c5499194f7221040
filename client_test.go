package infinidom

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"golang.org/x/net/html"

	"github.com/jamesaudcent/infinidom/internal/capture"
	"github.com/jamesaudcent/infinidom/internal/session"
	"github.com/jamesaudcent/infinidom/vdom"
)

// fakeServer scripts the four endpoints and counts what the client calls.
type fakeServer struct {
	mu        sync.Mutex
	initCalls map[string]int
	navCalls  []string
	interact  int

	// pages maps path to the frames streamed for it (without the
	// session/complete envelope).
	pages map[string][]string
	// interactFrames streamed for any interaction.
	interactFrames []string
	// failInit makes every init stream end with an error frame.
	failInit bool
	// navDelay stalls the navigate endpoint before recording.
	navDelay time.Duration
	// blockInit, when non-nil, holds init streams open until closed.
	blockInit chan struct{}
	// started signals each init request as it arrives.
	started chan struct{}
}

func newFakeServer() *fakeServer {
	return &fakeServer{
		initCalls: make(map[string]int),
		pages:     make(map[string][]string),
		started:   make(chan struct{}, 8),
	}
}

func frame(w io.Writer, payload string) {
	fmt.Fprintf(w, "data: %s\n\n", payload)
	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}
}

func (s *fakeServer) handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/components", func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"_meta": {"tag": "ignored"}}`)
	})

	mux.HandleFunc("GET /api/stream/init", func(w http.ResponseWriter, r *http.Request) {
		path := r.URL.Query().Get("path")
		s.mu.Lock()
		s.initCalls[path]++
		block := s.blockInit
		fail := s.failInit
		frames := s.pages[path]
		s.mu.Unlock()
		s.started <- struct{}{}

		frame(w, `{"type":"session","session_id":"tok-1"}`)
		if block != nil {
			<-block
		}
		if fail {
			frame(w, `{"type":"error","error":"generator unavailable"}`)
			return
		}
		for _, f := range frames {
			frame(w, f)
		}
		frame(w, `{"type":"complete"}`)
	})

	mux.HandleFunc("POST /api/stream/interact", func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		s.interact++
		frames := s.interactFrames
		s.mu.Unlock()
		io.Copy(io.Discard, r.Body)
		for _, f := range frames {
			frame(w, f)
		}
		frame(w, `{"type":"complete"}`)
	})

	mux.HandleFunc("POST /api/navigate", func(w http.ResponseWriter, r *http.Request) {
		var n vdom.NavigateNotice
		json.NewDecoder(r.Body).Decode(&n)
		s.mu.Lock()
		delay := s.navDelay
		s.mu.Unlock()
		time.Sleep(delay)
		s.mu.Lock()
		s.navCalls = append(s.navCalls, n.Path)
		s.mu.Unlock()
	})

	return mux
}

func (s *fakeServer) inits(path string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.initCalls[path]
}

func (s *fakeServer) navigates() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.navCalls...)
}

// waitNavigates polls for the fire-and-forget navigate notices.
func waitNavigates(t *testing.T, s *fakeServer, want int) []string {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if got := s.navigates(); len(got) >= want {
			return got
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("navigate notices: got %v, want %d", s.navigates(), want)
	return nil
}

func newTestClient(t *testing.T, srvURL string) (*Client, *session.MemStore) {
	t.Helper()
	store := session.NewMemStore()
	c, err := New(
		&Config{ServerURL: srvURL, Renderer: RendererTree},
		WithSessionStore(store),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	)
	if err != nil {
		t.Fatal(err)
	}
	if err := c.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	return c, store
}

func TestInitialLoad(t *testing.T) {
	fs := newFakeServer()
	fs.pages["/"] = []string{
		`{"type":"op","op":"replace","target":"body","element":{"tag":"div","children":["Hello"]}}`,
		`{"type":"meta","title":"Home","path":"/"}`,
	}
	srv := httptest.NewServer(fs.handler())
	defer srv.Close()

	c, store := newTestClient(t, srv.URL)
	defer c.Close()

	if err := c.Load(context.Background(), "/"); err != nil {
		t.Fatal(err)
	}

	body, err := c.rec.Renderer().BodyHTML()
	if err != nil {
		t.Fatal(err)
	}
	if body != "<div>Hello</div>" {
		t.Errorf("body: got %q", body)
	}
	if got := c.Title(); got != "Home" {
		t.Errorf("title: got %q, want Home", got)
	}
	if got := c.CurrentPath(); got != "/" {
		t.Errorf("path: got %q, want /", got)
	}
	if got := c.cache.Get("/"); len(got) != 2 {
		t.Errorf("cached ops: got %d, want 2", len(got))
	}
	if store.Token() != "tok-1" {
		t.Errorf("session token not adopted: %q", store.Token())
	}
}

func TestCachedNavigationReplays(t *testing.T) {
	fs := newFakeServer()
	fs.pages["/about"] = []string{
		`{"type":"op","op":"replace","target":"body","element":{"tag":"h1","children":["About"]}}`,
		`{"type":"style","css":"h1{color:red}"}`,
		`{"type":"meta","title":"About","path":"/about"}`,
	}
	srv := httptest.NewServer(fs.handler())
	defer srv.Close()

	c, _ := newTestClient(t, srv.URL)
	defer c.Close()

	if err := c.Load(context.Background(), "/about"); err != nil {
		t.Fatal(err)
	}
	first, _ := c.rec.Renderer().BodyHTML()

	// Second visit must replay locally: no init call, one navigate notice.
	if err := c.Load(context.Background(), "/about"); err != nil {
		t.Fatal(err)
	}
	second, _ := c.rec.Renderer().BodyHTML()

	if first != second {
		t.Errorf("replay mismatch:\n first %q\nsecond %q", first, second)
	}
	if got := c.Title(); got != "About" {
		t.Errorf("title after replay: got %q", got)
	}
	if got := fs.inits("/about"); got != 1 {
		t.Errorf("init calls: got %d, want 1", got)
	}
	if got := waitNavigates(t, fs, 1); len(got) != 1 || got[0] != "/about" {
		t.Errorf("navigate notices: got %v, want [/about]", got)
	}
}

func TestReplayDoesNotWaitForNotify(t *testing.T) {
	fs := newFakeServer()
	fs.navDelay = 500 * time.Millisecond
	fs.pages["/about"] = []string{
		`{"type":"op","op":"replace","target":"body","element":{"tag":"h1","children":["About"]}}`,
	}
	srv := httptest.NewServer(fs.handler())
	defer srv.Close()

	c, _ := newTestClient(t, srv.URL)
	defer c.Close()

	if err := c.Load(context.Background(), "/about"); err != nil {
		t.Fatal(err)
	}

	start := time.Now()
	if err := c.Load(context.Background(), "/about"); err != nil {
		t.Fatal(err)
	}
	if took := time.Since(start); took >= fs.navDelay {
		t.Errorf("replay blocked on the navigate notice: took %v", took)
	}

	// The notice still arrives, just off the replay path.
	if got := waitNavigates(t, fs, 1); got[0] != "/about" {
		t.Errorf("navigate notices: got %v", got)
	}
}

func TestMetaPathAdoption(t *testing.T) {
	fs := newFakeServer()
	fs.pages["/"] = []string{
		`{"type":"op","op":"replace","target":"body","element":{"tag":"div","children":["home"]}}`,
	}
	fs.pages["/about"] = []string{
		`{"type":"op","op":"replace","target":"body","element":{"tag":"div","children":["about"]}}`,
		`{"type":"meta","title":"About","path":"/about-canonical"}`,
	}
	srv := httptest.NewServer(fs.handler())
	defer srv.Close()

	c, _ := newTestClient(t, srv.URL)
	defer c.Close()

	ctx := context.Background()
	if err := c.Load(ctx, "/"); err != nil {
		t.Fatal(err)
	}
	if err := c.Load(ctx, "/about"); err != nil {
		t.Fatal(err)
	}

	// The adopted path wins over the requested one.
	if got := c.CurrentPath(); got != "/about-canonical" {
		t.Errorf("current path: got %q, want /about-canonical", got)
	}
	// The previous page's entry stays untouched.
	if got := c.history[0]; got != "/" {
		t.Errorf("history[0]: got %q, want /", got)
	}
	if got := c.history[1]; got != "/about-canonical" {
		t.Errorf("history[1]: got %q, want /about-canonical", got)
	}

	if err := c.Back(ctx); err != nil {
		t.Fatal(err)
	}
	if got := c.CurrentPath(); got != "/" {
		t.Errorf("after back: got %q, want /", got)
	}
}

func TestInteractionAdoptsMetaPath(t *testing.T) {
	fs := newFakeServer()
	fs.pages["/"] = []string{
		`{"type":"op","op":"replace","target":"body","element":{"tag":"div","children":["home"]}}`,
	}
	fs.interactFrames = []string{
		`{"type":"op","op":"replace","target":"body","element":{"tag":"div","children":["result"]}}`,
		`{"type":"meta","path":"/result"}`,
	}
	srv := httptest.NewServer(fs.handler())
	defer srv.Close()

	c, _ := newTestClient(t, srv.URL)
	defer c.Close()

	if err := c.Load(context.Background(), "/"); err != nil {
		t.Fatal(err)
	}

	btn := parseButton(t, `<button id="b">Go</button>`)
	if err := c.Dispatch(context.Background(), capture.DOMEvent{Type: "click", Target: btn}); err != nil {
		t.Fatal(err)
	}

	if got := c.CurrentPath(); got != "/result" {
		t.Errorf("current path: got %q, want /result", got)
	}
	// An interaction rewrites the current entry, it never grows history.
	if len(c.history) != 1 || c.history[0] != "/result" {
		t.Errorf("history: got %v, want [/result]", c.history)
	}
}

func TestBusyDispatchDropped(t *testing.T) {
	fs := newFakeServer()
	fs.blockInit = make(chan struct{})
	srv := httptest.NewServer(fs.handler())
	defer srv.Close()

	c, _ := newTestClient(t, srv.URL)
	defer c.Close()

	done := make(chan error, 1)
	go func() { done <- c.Load(context.Background(), "/") }()
	<-fs.started // the load is now in flight

	err := c.Dispatch(context.Background(), capture.DOMEvent{Type: "click"})
	if !errors.Is(err, ErrBusy) {
		t.Errorf("dispatch while loading: got %v, want ErrBusy", err)
	}
	if got := fs.interact; got != 0 {
		t.Errorf("interact calls during busy: got %d, want 0", got)
	}

	close(fs.blockInit)
	if err := <-done; err != nil {
		t.Fatal(err)
	}
}

func TestInitialLoadFailureShowsErrorPanel(t *testing.T) {
	fs := newFakeServer()
	fs.failInit = true
	srv := httptest.NewServer(fs.handler())
	defer srv.Close()

	c, _ := newTestClient(t, srv.URL)
	defer c.Close()

	if err := c.Load(context.Background(), "/"); err == nil {
		t.Fatal("load should fail")
	}

	body, _ := c.rec.Renderer().BodyHTML()
	if !strings.Contains(body, "infinidom-error") {
		t.Errorf("error panel missing: %q", body)
	}
	if !strings.Contains(body, `data-path="/"`) {
		t.Errorf("retry button should carry the failed path: %q", body)
	}

	// A later successful load replaces the panel and clears the error state.
	fs.mu.Lock()
	fs.failInit = false
	fs.pages["/"] = []string{
		`{"type":"op","op":"replace","target":"body","element":{"tag":"div","children":["ok"]}}`,
	}
	fs.mu.Unlock()

	if err := c.Load(context.Background(), "/"); err != nil {
		t.Fatal(err)
	}
	body, _ = c.rec.Renderer().BodyHTML()
	if body != "<div>ok</div>" {
		t.Errorf("recovery body: got %q", body)
	}
}

func TestInteractionStream(t *testing.T) {
	fs := newFakeServer()
	fs.pages["/"] = []string{
		`{"type":"op","op":"replace","target":"body","element":{"tag":"div","props":{"attrs":{"id":"list"}},"children":[]}}`,
	}
	fs.interactFrames = []string{
		`{"type":"op","op":"append","target":"#list","element":{"tag":"p","children":["added"]}}`,
	}
	srv := httptest.NewServer(fs.handler())
	defer srv.Close()

	c, _ := newTestClient(t, srv.URL)
	defer c.Close()

	if err := c.Load(context.Background(), "/"); err != nil {
		t.Fatal(err)
	}

	btn := parseButton(t, `<button id="add">Add</button>`)
	if err := c.Dispatch(context.Background(), capture.DOMEvent{Type: "click", Target: btn}); err != nil {
		t.Fatal(err)
	}

	body, _ := c.rec.Renderer().BodyHTML()
	if !strings.Contains(body, "<p>added</p>") {
		t.Errorf("interaction ops not applied: %q", body)
	}
	if got := c.cache.Get("/"); len(got) != 1 {
		t.Errorf("interaction must not grow the page cache: %d ops", len(got))
	}
}

func TestDispatchNavigationUsesLoadFlow(t *testing.T) {
	fs := newFakeServer()
	fs.pages["/"] = []string{
		`{"type":"op","op":"replace","target":"body","element":{"tag":"div","children":["home"]}}`,
	}
	fs.pages["/pricing"] = []string{
		`{"type":"op","op":"replace","target":"body","element":{"tag":"div","children":["pricing"]}}`,
	}
	srv := httptest.NewServer(fs.handler())
	defer srv.Close()

	c, _ := newTestClient(t, srv.URL)
	defer c.Close()

	if err := c.Load(context.Background(), "/"); err != nil {
		t.Fatal(err)
	}

	btn := parseButton(t, `<button id="b" data-path="pricing">See pricing</button>`)
	if err := c.Dispatch(context.Background(), capture.DOMEvent{Type: "click", Target: btn}); err != nil {
		t.Fatal(err)
	}

	if got := c.CurrentPath(); got != "/pricing" {
		t.Errorf("path: got %q, want /pricing", got)
	}
	if fs.interact != 0 {
		t.Errorf("navigation must not hit the interact endpoint: %d calls", fs.interact)
	}
	if got := fs.inits("/pricing"); got != 1 {
		t.Errorf("init calls for /pricing: got %d, want 1", got)
	}
}

func TestBackForward(t *testing.T) {
	fs := newFakeServer()
	fs.pages["/"] = []string{
		`{"type":"op","op":"replace","target":"body","element":{"tag":"div","children":["home"]}}`,
	}
	fs.pages["/about"] = []string{
		`{"type":"op","op":"replace","target":"body","element":{"tag":"div","children":["about"]}}`,
	}
	srv := httptest.NewServer(fs.handler())
	defer srv.Close()

	c, _ := newTestClient(t, srv.URL)
	defer c.Close()

	ctx := context.Background()
	if err := c.Load(ctx, "/"); err != nil {
		t.Fatal(err)
	}
	if err := c.Load(ctx, "/about"); err != nil {
		t.Fatal(err)
	}

	if err := c.Back(ctx); err != nil {
		t.Fatal(err)
	}
	if got := c.CurrentPath(); got != "/" {
		t.Errorf("after back: got %q, want /", got)
	}
	// Back replays from cache: still a single init per path.
	if got := fs.inits("/"); got != 1 {
		t.Errorf("init calls for /: got %d, want 1", got)
	}

	if err := c.Forward(ctx); err != nil {
		t.Fatal(err)
	}
	if got := c.CurrentPath(); got != "/about" {
		t.Errorf("after forward: got %q, want /about", got)
	}

	// Edges are no-ops.
	if err := c.Forward(ctx); err != nil {
		t.Fatal(err)
	}
	if got := c.CurrentPath(); got != "/about" {
		t.Errorf("forward at newest entry moved to %q", got)
	}
}

func TestResetClearsCacheAndSession(t *testing.T) {
	fs := newFakeServer()
	fs.pages["/"] = []string{
		`{"type":"op","op":"replace","target":"body","element":{"tag":"div","children":["home"]}}`,
	}
	srv := httptest.NewServer(fs.handler())
	defer srv.Close()

	c, store := newTestClient(t, srv.URL)
	defer c.Close()

	if err := c.Load(context.Background(), "/"); err != nil {
		t.Fatal(err)
	}
	if err := c.Reset(); err != nil {
		t.Fatal(err)
	}

	if store.Token() != "" {
		t.Error("session token survived reset")
	}
	if c.cache.Len() != 0 {
		t.Error("cache survived reset")
	}
	if got := c.CurrentPath(); got != "" {
		t.Errorf("path after reset: got %q", got)
	}

	// The next load streams again and starts a fresh history.
	if err := c.Load(context.Background(), "/"); err != nil {
		t.Fatal(err)
	}
	if got := fs.inits("/"); got != 2 {
		t.Errorf("init calls after reset: got %d, want 2", got)
	}
}

func TestNativeActionNotDispatched(t *testing.T) {
	fs := newFakeServer()
	fs.pages["/"] = []string{
		`{"type":"op","op":"replace","target":"body","element":{"tag":"div","children":["home"]}}`,
	}
	srv := httptest.NewServer(fs.handler())
	defer srv.Close()

	c, _ := newTestClient(t, srv.URL)
	defer c.Close()

	if err := c.Load(context.Background(), "/"); err != nil {
		t.Fatal(err)
	}

	a := parseButton(t, `<a id="b" href="mailto:x@y.z">mail</a>`)
	if err := c.Dispatch(context.Background(), capture.DOMEvent{Type: "click", Target: a}); err != nil {
		t.Fatalf("native action must be silently released: %v", err)
	}
	if fs.interact != 0 {
		t.Errorf("native action reached the server: %d calls", fs.interact)
	}
}

func TestConfigDefaults(t *testing.T) {
	cfg := &Config{}
	cfg.applyDefaults()
	if cfg.ServerURL == "" || cfg.PageURL != cfg.ServerURL {
		t.Errorf("url defaults: %+v", cfg)
	}
	if cfg.Renderer != RendererAuto {
		t.Errorf("renderer default: got %q", cfg.Renderer)
	}
	if cfg.Viewport.Width != 1280 || cfg.Viewport.Height != 800 {
		t.Errorf("viewport default: %+v", cfg.Viewport)
	}
	if cfg.AttachTimeout != 3*time.Second {
		t.Errorf("attach timeout default: %v", cfg.AttachTimeout)
	}
}

// parseButton parses a fragment and returns the element with id "b" (or
// "add" when present).
func parseButton(t *testing.T, fragment string) *html.Node {
	t.Helper()
	doc, err := html.Parse(strings.NewReader(fragment))
	if err != nil {
		t.Fatal(err)
	}
	var found *html.Node
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if found != nil {
			return
		}
		if n.Type == html.ElementNode {
			for _, a := range n.Attr {
				if a.Key == "id" {
					found = n
					return
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	if found == nil {
		t.Fatalf("no id-carrying element in %q", fragment)
	}
	return found
}
