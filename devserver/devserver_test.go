package devserver

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http/httptest"
	"testing"

	"github.com/jamesaudcent/infinidom/internal/session"
	"github.com/jamesaudcent/infinidom/internal/transport"
	"github.com/jamesaudcent/infinidom/vdom"
)

const testScript = `
components:
  button:
    tag: button
    base: btn
    variants:
      primary: btn-primary
    default_variant: primary
pages:
  /:
    frames:
      - type: op
        op: replace
        target: body
        element:
          tag: div
          children: ["Hello"]
      - type: meta
        title: Home
        path: /
  /broken:
    frames:
      - type: style
        css: "body{margin:0}"
    error: generator exploded
interactions:
  - match:
      event_type: click
      target_id: add
    frames:
      - type: op
        op: append
        target: "#list"
        element:
          tag: li
          children: ["added"]
`

func newTestServer(t *testing.T) (*Server, *transport.Client, *session.MemStore, func()) {
	t.Helper()
	script, err := ParseScript([]byte(testScript))
	if err != nil {
		t.Fatal(err)
	}
	srv := New(script, slog.New(slog.NewTextHandler(io.Discard, nil)))
	ts := httptest.NewServer(srv.Handler())
	store := session.NewMemStore()
	tc := transport.New(ts.URL, store)
	return srv, tc, store, ts.Close
}

func collect(t *testing.T, s *transport.Stream) []vdom.Operation {
	t.Helper()
	var ops []vdom.Operation
	for op := range s.Ops() {
		ops = append(ops, op)
	}
	return ops
}

func TestInitStream(t *testing.T) {
	_, tc, store, stop := newTestServer(t)
	defer stop()

	s, err := tc.StreamInit(context.Background(), "/")
	if err != nil {
		t.Fatal(err)
	}
	ops := collect(t, s)
	if err := s.Err(); err != nil {
		t.Fatal(err)
	}

	if len(ops) != 2 {
		t.Fatalf("ops: got %d, want 2", len(ops))
	}
	if ops[0].Kind != vdom.KindStructural || ops[0].Action != vdom.ActionReplace {
		t.Errorf("first op: %+v", ops[0])
	}
	if ops[1].Kind != vdom.KindMeta || ops[1].Title != "Home" {
		t.Errorf("second op: %+v", ops[1])
	}
	if store.Token() == "" {
		t.Error("no session id issued")
	}
}

func TestSessionIDReused(t *testing.T) {
	_, tc, store, stop := newTestServer(t)
	defer stop()

	store.SetToken("dev-fixed")
	s, err := tc.StreamInit(context.Background(), "/")
	if err != nil {
		t.Fatal(err)
	}
	collect(t, s)
	if got := store.Token(); got != "dev-fixed" {
		t.Errorf("session id: got %q, want the one the client supplied", got)
	}
}

func TestErrorScript(t *testing.T) {
	_, tc, _, stop := newTestServer(t)
	defer stop()

	s, err := tc.StreamInit(context.Background(), "/broken")
	if err != nil {
		t.Fatal(err)
	}
	ops := collect(t, s)
	if len(ops) != 1 || ops[0].Kind != vdom.KindStyle {
		t.Errorf("pre-error frames should still arrive: %+v", ops)
	}

	var se *transport.ServerError
	if !errors.As(s.Err(), &se) {
		t.Fatalf("err: got %v, want ServerError", s.Err())
	}
	if se.Msg != "generator exploded" {
		t.Errorf("message: got %q", se.Msg)
	}
}

func TestUnscriptedPathErrors(t *testing.T) {
	_, tc, _, stop := newTestServer(t)
	defer stop()

	s, err := tc.StreamInit(context.Background(), "/missing")
	if err != nil {
		t.Fatal(err)
	}
	collect(t, s)
	var se *transport.ServerError
	if !errors.As(s.Err(), &se) {
		t.Fatalf("err: got %v, want ServerError", s.Err())
	}
}

func TestInteractionMatching(t *testing.T) {
	_, tc, _, stop := newTestServer(t)
	defer stop()

	s, err := tc.StreamInteract(context.Background(), vdom.InteractionRequest{
		Event: vdom.Event{EventType: "click", TargetID: "add", TargetTag: "button"},
	})
	if err != nil {
		t.Fatal(err)
	}
	ops := collect(t, s)
	if err := s.Err(); err != nil {
		t.Fatal(err)
	}
	if len(ops) != 1 || ops[0].Action != vdom.ActionAppend || ops[0].Target != "#list" {
		t.Errorf("matched ops: %+v", ops)
	}

	// Unmatched events complete cleanly with zero operations.
	s, err = tc.StreamInteract(context.Background(), vdom.InteractionRequest{
		Event: vdom.Event{EventType: "click", TargetID: "other"},
	})
	if err != nil {
		t.Fatal(err)
	}
	if ops := collect(t, s); len(ops) != 0 {
		t.Errorf("unmatched ops: got %d, want 0", len(ops))
	}
	if err := s.Err(); err != nil {
		t.Fatal(err)
	}
}

func TestComponentsAndNavigate(t *testing.T) {
	srv, tc, _, stop := newTestServer(t)
	defer stop()

	defs, err := tc.FetchComponents(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if d, ok := defs["button"]; !ok || d.Tag != "button" || d.Variants["primary"] != "btn-primary" {
		t.Errorf("catalog: %+v", defs)
	}

	if err := tc.NotifyNavigate(context.Background(), "/about"); err != nil {
		t.Fatal(err)
	}
	if got := srv.Navigates(); len(got) != 1 || got[0] != "/about" {
		t.Errorf("navigates: %v", got)
	}
}
