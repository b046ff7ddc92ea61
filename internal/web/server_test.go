package web

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"gridrun/internal/journal"
	"gridrun/internal/logging"
	"gridrun/internal/timeline"
)

func testServer(t *testing.T, j *journal.Journal) *Server {
	t.Helper()
	return NewServer("127.0.0.1:0", j, logging.NewWithWriter(io.Discard, logging.LevelError, ""))
}

func get(t *testing.T, s *Server, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rr := httptest.NewRecorder()
	s.Handler().ServeHTTP(rr, req)
	return rr
}

func TestTimeline_NotFoundBeforeLogLoaded(t *testing.T) {
	s := testServer(t, nil)
	if rr := get(t, s, "/api/timeline"); rr.Code != http.StatusNotFound {
		t.Fatalf("status = %d", rr.Code)
	}
}

func TestTimeline_ServesWorkerLanes(t *testing.T) {
	s := testServer(t, nil)
	s.SetSpans([]timeline.Span{
		{Event: timeline.EventWork, Worker: 1, Start: 0, Stop: 5},
		{Event: timeline.EventNetwork, Worker: 0, Start: 5, Stop: 7},
	})

	rr := get(t, s, "/api/timeline")
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	var tl timeline.Timeline
	if err := json.Unmarshal(rr.Body.Bytes(), &tl); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(tl.Workers) != 1 || tl.Workers[0].Worker != 1 {
		t.Fatalf("workers = %+v", tl.Workers)
	}
	if len(tl.Network) != 1 {
		t.Fatalf("network = %+v", tl.Network)
	}
}

func TestDurations_EventFilter(t *testing.T) {
	s := testServer(t, nil)
	s.SetSpans([]timeline.Span{
		{Event: timeline.EventWork, Worker: 1, Start: 0, Stop: 5},
		{Event: timeline.EventNetwork, Worker: 0, Start: 5, Stop: 7},
	})

	rr := get(t, s, "/api/durations?event=network")
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	var points []timeline.DurationPoint
	if err := json.Unmarshal(rr.Body.Bytes(), &points); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(points) != 1 || points[0].Duration != 2 {
		t.Fatalf("points = %v", points)
	}

	if rr := get(t, s, "/api/durations?event=idle"); rr.Code != http.StatusBadRequest {
		t.Fatalf("unknown event type accepted: %d", rr.Code)
	}
}

func TestRuns_ServesJournalRecords(t *testing.T) {
	j, err := journal.Open(filepath.Join(t.TempDir(), "runs.db"))
	if err != nil {
		t.Fatalf("open journal: %v", err)
	}
	defer j.Close()
	if _, err := j.Append(journal.Record{StartedAt: time.Now().UTC(), Peers: 2, Threads: 4}); err != nil {
		t.Fatalf("append: %v", err)
	}

	s := testServer(t, j)
	rr := get(t, s, "/api/runs")
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	var records []journal.Record
	if err := json.Unmarshal(rr.Body.Bytes(), &records); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(records) != 1 || records[0].Peers != 2 {
		t.Fatalf("records = %+v", records)
	}
}

func TestRuns_UnavailableWithoutJournal(t *testing.T) {
	s := testServer(t, nil)
	if rr := get(t, s, "/api/runs"); rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d", rr.Code)
	}
}

func TestShutdown_ClosesEventFeed(t *testing.T) {
	s := testServer(t, nil)
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := s.Shutdown(ctx); err != nil {
		t.Fatalf("shutdown: %v", err)
	}

	// The hub disconnects every client, so the blocked read returns.
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, _, err := conn.ReadMessage(); err == nil {
		t.Fatal("event feed still open after shutdown")
	}
}
