// Package transport consumes the infinidom streaming endpoints. It opens the
// init and interact streams, decodes `data:` frames into operations, and
// keeps the session identity current: a session control frame updates the
// durable token before any further operation is delivered.
package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/jamesaudcent/infinidom/internal/session"
	"github.com/jamesaudcent/infinidom/vdom"
)

// ServerError is a failure reported by the server inside the stream
// (an `error` control frame), as opposed to a transport-level failure.
type ServerError struct {
	Msg string
}

func (e *ServerError) Error() string { return "transport: server error: " + e.Msg }

// Client talks to one infinidom server.
type Client struct {
	baseURL  string
	http     *http.Client
	sessions session.Store
	logger   *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient overrides the underlying HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// New creates a transport Client. Streaming requests carry no client-side
// timeout: the stream stays open until complete/error or Close.
func New(baseURL string, sessions session.Store, opts ...Option) *Client {
	c := &Client{
		baseURL:  baseURL,
		http:     &http.Client{},
		sessions: sessions,
		logger:   slog.Default(),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// StreamInit opens the initial-load stream for a path. The current session
// token, if any, is attached as a query parameter.
func (c *Client) StreamInit(ctx context.Context, path string) (*Stream, error) {
	q := url.Values{}
	q.Set("path", path)
	if tok := c.sessions.Token(); tok != "" {
		q.Set("session_id", tok)
	}

	req, err := http.NewRequest(http.MethodGet, c.baseURL+"/api/stream/init?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("transport: init request: %w", err)
	}
	req.Header.Set("Accept", "text/event-stream")

	return c.open(ctx, req, lineFraming)
}

// StreamInteract opens an interaction stream. The current session token is
// written into the request body.
func (c *Client) StreamInteract(ctx context.Context, ir vdom.InteractionRequest) (*Stream, error) {
	ir.SessionID = c.sessions.Token()

	body, err := json.Marshal(ir)
	if err != nil {
		return nil, fmt.Errorf("transport: marshal interaction: %w", err)
	}

	req, err := http.NewRequest(http.MethodPost, c.baseURL+"/api/stream/interact", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("transport: interact request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")

	return c.open(ctx, req, chunkFraming)
}

// FetchComponents retrieves the component catalog: a flat name → definition
// map. Reserved keys (prefix "_") are returned as-is; the catalog layer
// filters them.
func (c *Client) FetchComponents(ctx context.Context) (map[string]vdom.ComponentDef, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/components", nil)
	if err != nil {
		return nil, fmt.Errorf("transport: components request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("transport: fetch components: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("transport: fetch components: status %d", resp.StatusCode)
	}

	var defs map[string]vdom.ComponentDef
	if err := json.NewDecoder(resp.Body).Decode(&defs); err != nil {
		return nil, fmt.Errorf("transport: decode components: %w", err)
	}
	return defs, nil
}

// NotifyNavigate tells the server that a path was served from the local
// cache. Best effort: the caller treats any error as log-only.
func (c *Client) NotifyNavigate(ctx context.Context, path string) error {
	body, err := json.Marshal(vdom.NavigateNotice{SessionID: c.sessions.Token(), Path: path})
	if err != nil {
		return fmt.Errorf("transport: marshal notice: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/navigate", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("transport: navigate request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("transport: notify navigate: %w", err)
	}
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("transport: notify navigate: status %d", resp.StatusCode)
	}
	return nil
}

// open performs the request and starts the reader goroutine.
func (c *Client) open(ctx context.Context, req *http.Request, framing framingMode) (*Stream, error) {
	ctx, cancel := context.WithCancel(ctx)
	req = req.WithContext(ctx)

	resp, err := c.http.Do(req)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("transport: open stream: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		cancel()
		return nil, fmt.Errorf("transport: open stream: status %d", resp.StatusCode)
	}

	s := newStream(cancel)
	go s.consume(resp.Body, framing, c.sessions, c.logger)
	return s, nil
}
