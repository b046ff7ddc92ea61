// Package web serves the monitor API: timeline and duration views of a perf
// log, the run journal, and a live WebSocket feed of launcher events.
package web

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"

	"gridrun/internal/journal"
	"gridrun/internal/launch"
	"gridrun/internal/logging"
	"gridrun/internal/timeline"
)

// Server exposes read-only HTTP endpoints plus the live event feed. It
// implements launch.RunObserver so a launcher can be pointed straight at it.
type Server struct {
	mu       sync.RWMutex
	spans    []timeline.Span
	timeline *timeline.Timeline

	journal *journal.Journal
	hub     *wsHub
	server  *http.Server
	log     *logging.Logger
}

// NewServer creates a monitor server on addr. The journal is optional.
func NewServer(addr string, j *journal.Journal, log *logging.Logger) *Server {
	s := &Server{
		journal: j,
		hub:     newHub(log),
		log:     log,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/api/timeline", s.handleTimeline)
	mux.HandleFunc("/api/durations", s.handleDurations)
	mux.HandleFunc("/api/runs", s.handleRuns)
	mux.HandleFunc("/ws", s.hub.handle)

	s.server = &http.Server{Addr: addr, Handler: mux}
	return s
}

// SetSpans loads a parsed event log and derives the timeline view from it.
func (s *Server) SetSpans(spans []timeline.Span) {
	tl := timeline.BuildTimeline(spans)
	s.mu.Lock()
	s.spans = spans
	s.timeline = tl
	s.mu.Unlock()
}

// Observe forwards a launcher event to every connected client.
func (s *Server) Observe(event launch.RunEvent) {
	s.hub.broadcastEvent(event)
}

// Start begins serving in a goroutine.
func (s *Server) Start() {
	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.log.Errorf("monitor server: %v", err)
		}
	}()
}

// Shutdown disconnects every event feed client and stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.hub.close()
	return s.server.Shutdown(ctx)
}

// Handler exposes the mux for tests.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

func (s *Server) handleTimeline(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	s.mu.RLock()
	tl := s.timeline
	s.mu.RUnlock()

	if tl == nil {
		http.Error(w, "No event log loaded", http.StatusNotFound)
		return
	}
	writeJSON(w, tl)
}

func (s *Server) handleDurations(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	event := timeline.EventType(r.URL.Query().Get("event"))
	if event == "" {
		event = timeline.EventWork
	}
	if event != timeline.EventWork && event != timeline.EventNetwork {
		http.Error(w, "Unknown event type", http.StatusBadRequest)
		return
	}

	s.mu.RLock()
	spans := s.spans
	s.mu.RUnlock()

	if spans == nil {
		http.Error(w, "No event log loaded", http.StatusNotFound)
		return
	}
	writeJSON(w, timeline.Durations(spans, event))
}

func (s *Server) handleRuns(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.journal == nil {
		http.Error(w, "Run journal not available", http.StatusServiceUnavailable)
		return
	}

	records, err := s.journal.List()
	if err != nil {
		http.Error(w, "Failed to read run journal", http.StatusInternalServerError)
		return
	}
	if records == nil {
		records = []journal.Record{}
	}
	writeJSON(w, records)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, "Failed to encode response", http.StatusInternalServerError)
	}
}
