package timeline

// DurationPoint is one (start, duration) sample of the aggregate latency
// distribution over time.
type DurationPoint struct {
	Start    int64 `json:"start"`
	Duration int64 `json:"duration"`
}

// Durations returns the duration view for one event type: the (start,
// duration) pairs across all workers, in log order.
func Durations(spans []Span, event EventType) []DurationPoint {
	points := make([]DurationPoint, 0, len(spans))
	for _, s := range spans {
		if s.Event != event {
			continue
		}
		points = append(points, DurationPoint{Start: s.Start, Duration: s.Duration()})
	}
	return points
}

// Interval is one horizontal segment of a timeline lane.
type Interval struct {
	Start int64 `json:"start"`
	Stop  int64 `json:"stop"`
}

// NetworkLane is the fixed baseline lane shared by all network spans.
const NetworkLane = 0

// WorkerTimeline is the ordered sequence of one worker's work intervals,
// rendered at a lane offset unique to that worker.
type WorkerTimeline struct {
	Worker    int64      `json:"worker"`
	Lane      int        `json:"lane"`
	Intervals []Interval `json:"intervals"`
}

// Timeline is the per-worker view: one lane per distinct worker id appearing
// in work spans, interleaved visually with network spans at the shared
// baseline lane.
type Timeline struct {
	Workers []WorkerTimeline `json:"workers"`
	Network []Interval       `json:"network"`
}

// BuildTimeline derives the per-worker timeline view.
//
// Lanes are assigned to workers in order of first appearance in the log,
// starting above NetworkLane. Within a lane, intervals keep log order.
func BuildTimeline(spans []Span) *Timeline {
	tl := &Timeline{}
	laneByWorker := make(map[int64]int)

	for _, s := range spans {
		switch s.Event {
		case EventNetwork:
			tl.Network = append(tl.Network, Interval{Start: s.Start, Stop: s.Stop})
		case EventWork:
			idx, ok := laneByWorker[s.Worker]
			if !ok {
				idx = len(tl.Workers)
				laneByWorker[s.Worker] = idx
				tl.Workers = append(tl.Workers, WorkerTimeline{
					Worker: s.Worker,
					Lane:   NetworkLane + 1 + idx,
				})
			}
			tl.Workers[idx].Intervals = append(tl.Workers[idx].Intervals, Interval{Start: s.Start, Stop: s.Stop})
		}
	}
	return tl
}

// Worker returns the timeline for one worker id, or nil if the worker never
// appears in a work span.
func (t *Timeline) WorkerByID(id int64) *WorkerTimeline {
	for i := range t.Workers {
		if t.Workers[i].Worker == id {
			return &t.Workers[i]
		}
	}
	return nil
}
