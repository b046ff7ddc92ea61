package timeline

import (
	"reflect"
	"strings"
	"testing"
)

func TestReadLog_TypedVariant(t *testing.T) {
	log := "event,id,start,stop\nwork,1,0,5\nnetwork,0,5,7\nwork,1,5,9\n"
	spans, err := ReadLog(strings.NewReader(log))
	if err != nil {
		t.Fatalf("ReadLog: %v", err)
	}
	want := []Span{
		{Event: EventWork, Worker: 1, Start: 0, Stop: 5},
		{Event: EventNetwork, Worker: 0, Start: 5, Stop: 7},
		{Event: EventWork, Worker: 1, Start: 5, Stop: 9},
	}
	if !reflect.DeepEqual(spans, want) {
		t.Fatalf("spans mismatch:\ngot  %v\nwant %v", spans, want)
	}
}

func TestReadLog_DurationOnlyVariant(t *testing.T) {
	log := "id,start,stop\n3,10,25\n3,25,30\n"
	spans, err := ReadLog(strings.NewReader(log))
	if err != nil {
		t.Fatalf("ReadLog: %v", err)
	}
	want := []Span{
		{Event: EventWork, Worker: 3, Start: 10, Stop: 25},
		{Event: EventWork, Worker: 3, Start: 25, Stop: 30},
	}
	if !reflect.DeepEqual(spans, want) {
		t.Fatalf("spans mismatch:\ngot  %v\nwant %v", spans, want)
	}
}

func TestReadLog_RejectsBadHeader(t *testing.T) {
	if _, err := ReadLog(strings.NewReader("a,b,c\n1,2,3\n")); err == nil {
		t.Fatal("expected header error")
	}
}

func TestReadLog_RejectsUnknownEventType(t *testing.T) {
	if _, err := ReadLog(strings.NewReader("event,id,start,stop\nidle,1,0,5\n")); err == nil {
		t.Fatal("expected event type error")
	}
}

func TestReadLog_RejectsInvertedSpan(t *testing.T) {
	if _, err := ReadLog(strings.NewReader("id,start,stop\n1,9,5\n")); err == nil {
		t.Fatal("expected start/stop ordering error")
	}
}

func TestReadLog_Empty(t *testing.T) {
	if _, err := ReadLog(strings.NewReader("")); err == nil {
		t.Fatal("expected error for empty log")
	}
}

func TestDurations_FiltersByEventType(t *testing.T) {
	spans := []Span{
		{Event: EventWork, Worker: 1, Start: 0, Stop: 5},
		{Event: EventNetwork, Worker: 9, Start: 5, Stop: 7},
		{Event: EventWork, Worker: 2, Start: 5, Stop: 9},
	}

	work := Durations(spans, EventWork)
	if want := []DurationPoint{{0, 5}, {5, 4}}; !reflect.DeepEqual(work, want) {
		t.Fatalf("work durations: got %v want %v", work, want)
	}

	// The network view is independent of worker id.
	network := Durations(spans, EventNetwork)
	if want := []DurationPoint{{5, 2}}; !reflect.DeepEqual(network, want) {
		t.Fatalf("network durations: got %v want %v", network, want)
	}
}

func TestBuildTimeline_PerWorkerOrderedIntervals(t *testing.T) {
	spans := []Span{
		{Event: EventWork, Worker: 1, Start: 0, Stop: 5},
		{Event: EventWork, Worker: 1, Start: 5, Stop: 9},
		{Event: EventNetwork, Worker: 7, Start: 5, Stop: 7},
	}
	tl := BuildTimeline(spans)

	w1 := tl.WorkerByID(1)
	if w1 == nil {
		t.Fatal("worker 1 missing from timeline")
	}
	want := []Interval{{0, 5}, {5, 9}}
	if !reflect.DeepEqual(w1.Intervals, want) {
		t.Fatalf("worker 1 intervals: got %v want %v", w1.Intervals, want)
	}

	if !reflect.DeepEqual(tl.Network, []Interval{{5, 7}}) {
		t.Fatalf("network intervals: got %v", tl.Network)
	}
}

func TestBuildTimeline_LaneAssignment(t *testing.T) {
	spans := []Span{
		{Event: EventWork, Worker: 4, Start: 0, Stop: 1},
		{Event: EventWork, Worker: 2, Start: 1, Stop: 2},
		{Event: EventWork, Worker: 4, Start: 2, Stop: 3},
	}
	tl := BuildTimeline(spans)

	if len(tl.Workers) != 2 {
		t.Fatalf("expected 2 worker lanes, got %d", len(tl.Workers))
	}
	// Lanes follow first appearance and sit above the network baseline.
	if tl.Workers[0].Worker != 4 || tl.Workers[0].Lane != NetworkLane+1 {
		t.Errorf("first lane: %+v", tl.Workers[0])
	}
	if tl.Workers[1].Worker != 2 || tl.Workers[1].Lane != NetworkLane+2 {
		t.Errorf("second lane: %+v", tl.Workers[1])
	}
}

func TestBuildTimeline_PreservesLogOrderWithinWorker(t *testing.T) {
	// Deliberately out of chronological order: the analyzer must not re-sort.
	spans := []Span{
		{Event: EventWork, Worker: 1, Start: 10, Stop: 20},
		{Event: EventWork, Worker: 1, Start: 0, Stop: 5},
	}
	tl := BuildTimeline(spans)
	w := tl.WorkerByID(1)
	want := []Interval{{10, 20}, {0, 5}}
	if !reflect.DeepEqual(w.Intervals, want) {
		t.Fatalf("intervals were re-sorted: got %v want %v", w.Intervals, want)
	}
}
