package launch

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	// ErrStaleArtifacts marks a refused launch: result artifacts from a
	// previous run are still present in the working directory.
	ErrStaleArtifacts = errors.New("stale results present")

	// ErrRunFailed marks a run in which at least one rank exited abnormally.
	ErrRunFailed = errors.New("run failed")
)

// StaleArtifactsError reports the leftover artifacts that blocked a launch.
type StaleArtifactsError struct {
	Dir     string
	Matches []string
}

func (e *StaleArtifactsError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%v in %s: %s (stitch or remove them before launching)",
		ErrStaleArtifacts, e.Dir, strings.Join(e.Matches, ", "))
}

func (e *StaleArtifactsError) Unwrap() error { return ErrStaleArtifacts }

// RankFailure is one rank's abnormal outcome. ExitCode is -1 when the
// process was terminated by a signal rather than exiting.
type RankFailure struct {
	Rank     int
	ExitCode int
}

func (f RankFailure) String() string {
	if f.ExitCode < 0 {
		return fmt.Sprintf("rank %d terminated abnormally", f.Rank)
	}
	return fmt.Sprintf("rank %d exited with code %d", f.Rank, f.ExitCode)
}

// RunFailure aggregates every failed rank of a run. The launcher never
// short-circuits on the first failure: all ranks are drained before this is
// constructed, so Failed is the complete set.
type RunFailure struct {
	Failed []RankFailure
}

func (e *RunFailure) Error() string {
	if e == nil || len(e.Failed) == 0 {
		return ErrRunFailed.Error()
	}
	parts := make([]string, len(e.Failed))
	for i, f := range e.Failed {
		parts[i] = f.String()
	}
	return fmt.Sprintf("%v: %s", ErrRunFailed, strings.Join(parts, "; "))
}

func (e *RunFailure) Unwrap() error { return ErrRunFailed }

// FailedRanks returns the failed rank indices in ascending order.
func (e *RunFailure) FailedRanks() []int {
	ranks := make([]int, len(e.Failed))
	for i, f := range e.Failed {
		ranks[i] = f.Rank
	}
	sort.Ints(ranks)
	return ranks
}
