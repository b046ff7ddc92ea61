package launch

import "sync"

// RunEventKind discriminates launcher lifecycle events.
type RunEventKind string

const (
	EventRankStarted RunEventKind = "RankStarted"
	EventRankExited  RunEventKind = "RankExited"
)

// RunEvent is a single launcher lifecycle observation.
type RunEvent struct {
	Kind     RunEventKind `json:"kind"`
	Rank     int          `json:"rank"`
	Pid      int          `json:"pid,omitempty"`
	ExitCode int          `json:"exit_code"`
}

// RunObserver receives launcher lifecycle events.
//
// Observe must be inert: it must not panic and must not block the launcher.
// The launcher assumes Observe may be a no-op.
type RunObserver interface {
	Observe(event RunEvent)
}

// NopObserver discards all events.
type NopObserver struct{}

func (NopObserver) Observe(RunEvent) {}

// SafeObserve delivers an event and guarantees inertness even if the
// observer is buggy. It intentionally swallows panics.
func SafeObserve(o RunObserver, event RunEvent) {
	if o == nil {
		return
	}
	defer func() {
		_ = recover()
	}()
	o.Observe(event)
}

// RunRecorder is a concurrency-safe in-memory collector of run events, used
// by tests and anything that wants a post-hoc view of a run.
type RunRecorder struct {
	mu     sync.Mutex
	events []RunEvent
}

func NewRunRecorder() *RunRecorder { return &RunRecorder{} }

func (r *RunRecorder) Observe(event RunEvent) {
	if r == nil {
		return
	}
	r.mu.Lock()
	r.events = append(r.events, event)
	r.mu.Unlock()
}

// Snapshot returns a point-in-time copy of all recorded events.
func (r *RunRecorder) Snapshot() []RunEvent {
	if r == nil {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]RunEvent, len(r.events))
	copy(out, r.events)
	return out
}
