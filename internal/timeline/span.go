// Package timeline reconstructs per-worker compute and network-wait behavior
// from the event log an instrumented run produces.
//
// The analyzer is a read-only consumer: spans are presented in the order they
// appear in the source log, never re-sorted. Producers must already emit
// spans in chronological order per worker; consumers must not assume global
// chronological ordering across mixed event types beyond the spans' own
// literal timestamps.
package timeline

// EventType discriminates what a span measures.
type EventType string

const (
	// EventWork is time a worker spent doing useful compute.
	EventWork EventType = "work"

	// EventNetwork is time spent blocked waiting on a remote peer. Network
	// spans are a shared resource-contention signal, not attributable to a
	// single worker's row.
	EventNetwork EventType = "network"
)

// Span is one logged interval, Start <= Stop. The time unit is whatever the
// producing log used; it is only required to be consistent within one log.
type Span struct {
	Event  EventType
	Worker int64
	Start  int64
	Stop   int64
}

// Duration returns Stop - Start.
func (s Span) Duration() int64 {
	return s.Stop - s.Start
}
