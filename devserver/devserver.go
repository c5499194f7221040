// Package devserver is a scripted stand-in for the generator backend. It
// speaks the operation-stream wire protocol from a YAML script so the
// client runtime can be developed and tested without the real backend.
package devserver

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"

	"github.com/jamesaudcent/infinidom/internal/idgen"
	"github.com/jamesaudcent/infinidom/vdom"
)

// Server serves one Script over the four stream-protocol endpoints.
type Server struct {
	script *Script
	logger *slog.Logger
	newID  idgen.Generator

	mu        sync.Mutex
	navigates []string
}

// New creates a Server for a script.
func New(script *Script, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		script: script,
		logger: logger,
		newID:  idgen.Prefixed("sess_", idgen.NanoID(16)),
	}
}

// Handler builds the chi router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Get("/api/stream/init", s.handleInit)
	r.Post("/api/stream/interact", s.handleInteract)
	r.Get("/api/components", s.handleComponents)
	r.Post("/api/navigate", s.handleNavigate)
	r.Get("/api/health", s.handleHealth)
	return r
}

// Navigates returns the paths reported through /api/navigate, in order.
func (s *Server) Navigates() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.navigates...)
}

func (s *Server) handleInit(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Query().Get("path")
	if path == "" {
		path = "/"
	}
	sid := r.URL.Query().Get("session_id")
	if sid == "" {
		sid = s.newID()
	}

	e, ok := newEmitter(w)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}
	e.control(map[string]string{"type": "session", "session_id": sid})

	page, found := s.script.Pages[path]
	if !found {
		s.logger.Warn("devserver: unscripted path", "path", path)
		e.control(map[string]string{"type": "error", "error": "no page scripted for " + path})
		return
	}

	s.emitPage(e, page)
	s.logger.Info("devserver: init served", "path", path, "frames", len(page.Frames), "session", sid)
}

func (s *Server) handleInteract(w http.ResponseWriter, r *http.Request) {
	var ir vdom.InteractionRequest
	if err := json.NewDecoder(r.Body).Decode(&ir); err != nil {
		http.Error(w, "bad request: "+err.Error(), http.StatusBadRequest)
		return
	}

	e, ok := newEmitter(w)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	for _, rule := range s.script.Interactions {
		if !rule.Match.matches(ir.Event) {
			continue
		}
		s.emitPage(e, Page{Frames: rule.Frames, Error: rule.Error})
		s.logger.Info("devserver: interaction served",
			"event", ir.Event.EventType, "target", ir.Event.TargetID, "frames", len(rule.Frames))
		return
	}

	// Unmatched interactions complete with no operations.
	e.control(map[string]string{"type": "complete"})
	s.logger.Info("devserver: interaction unmatched",
		"event", ir.Event.EventType, "target", ir.Event.TargetID)
}

func (s *Server) handleComponents(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	defs := s.script.Components
	if defs == nil {
		defs = map[string]vdom.ComponentDef{}
	}
	json.NewEncoder(w).Encode(defs)
}

func (s *Server) handleNavigate(w http.ResponseWriter, r *http.Request) {
	var n vdom.NavigateNotice
	if err := json.NewDecoder(r.Body).Decode(&n); err != nil {
		http.Error(w, "bad request: "+err.Error(), http.StatusBadRequest)
		return
	}
	s.mu.Lock()
	s.navigates = append(s.navigates, n.Path)
	s.mu.Unlock()
	s.logger.Info("devserver: navigate noted", "path", n.Path)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	fmt.Fprintf(w, `{"status":"ok","pages":%d}`, len(s.script.Pages))
}

func (s *Server) emitPage(e *emitter, page Page) {
	for _, f := range page.Frames {
		payload, err := f.JSON()
		if err != nil {
			s.logger.Error("devserver: frame marshal failed", "error", err)
			continue
		}
		e.frame(payload)
	}
	if page.Error != "" {
		e.control(map[string]string{"type": "error", "error": page.Error})
		return
	}
	e.control(map[string]string{"type": "complete"})
}

// emitter writes `data:` framed payloads, flushing each one so streams
// arrive incrementally.
type emitter struct {
	w http.ResponseWriter
	f http.Flusher
}

func newEmitter(w http.ResponseWriter) (*emitter, bool) {
	f, ok := w.(http.Flusher)
	if !ok {
		return nil, false
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	return &emitter{w: w, f: f}, true
}

func (e *emitter) frame(payload []byte) {
	fmt.Fprintf(e.w, "data: %s\n\n", payload)
	e.f.Flush()
}

func (e *emitter) control(v any) {
	payload, err := json.Marshal(v)
	if err != nil {
		return
	}
	e.frame(payload)
}
