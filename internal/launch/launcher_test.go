package launch

import (
	"context"
	"errors"
	"os/exec"
	"reflect"
	"sort"
	"testing"
	"time"

	"gridrun/internal/topology"
)

// shLauncher builds a launcher whose ranks run the given shell snippets
// instead of the simulation binary.
func shLauncher(t *testing.T, scripts map[int]string) *Launcher {
	t.Helper()
	return &Launcher{
		Program: "unused",
		WorkDir: t.TempDir(),
		BuildCommand: func(spec RunSpec, peers []topology.Address, rank int) *exec.Cmd {
			script, ok := scripts[rank]
			if !ok {
				script = "exit 0"
			}
			return exec.Command("sh", "-c", script)
		},
	}
}

func specForPeers(n int) RunSpec {
	s := validSpec()
	s.PeerCount = n
	return s
}

func TestLauncher_AllRanksSucceed(t *testing.T) {
	l := shLauncher(t, map[int]string{})
	spec := specForPeers(3)

	results, err := l.Run(context.Background(), spec, topology.Build(3, 8000))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(results))
	}
	for i, r := range results {
		if r.Rank != i {
			t.Errorf("results not in rank order: %v", results)
		}
		if r.ExitCode != 0 {
			t.Errorf("rank %d exit code %d", r.Rank, r.ExitCode)
		}
	}
}

func TestLauncher_ReportsEveryFailedRank(t *testing.T) {
	// 3 of 5 ranks fail, with staggered sleeps so failures resolve before
	// the slowest success.
	l := shLauncher(t, map[int]string{
		0: "exit 0",
		1: "exit 3",
		2: "sleep 0.1; exit 1",
		3: "sleep 0.4; exit 0",
		4: "exit 2",
	})
	spec := specForPeers(5)

	start := time.Now()
	results, err := l.Run(context.Background(), spec, topology.Build(5, 8000))
	elapsed := time.Since(start)

	if err == nil {
		t.Fatal("expected run failure")
	}
	if !errors.Is(err, ErrRunFailed) {
		t.Fatalf("error not ErrRunFailed: %v", err)
	}
	var failure *RunFailure
	if !errors.As(err, &failure) {
		t.Fatalf("error not *RunFailure: %v", err)
	}
	if got, want := failure.FailedRanks(), []int{1, 2, 4}; !reflect.DeepEqual(got, want) {
		t.Fatalf("failed ranks %v, want %v", got, want)
	}
	for _, f := range failure.Failed {
		if f.Rank == 1 && f.ExitCode != 3 {
			t.Errorf("rank 1 exit code %d, want 3", f.ExitCode)
		}
	}

	// Wait-all semantics: the call must not return before the slowest rank.
	if elapsed < 400*time.Millisecond {
		t.Fatalf("returned after %v, before the slowest rank exited", elapsed)
	}
	if len(results) != 5 {
		t.Fatalf("expected all 5 results despite failures, got %d", len(results))
	}
}

func TestLauncher_ConcurrentStarts(t *testing.T) {
	// Every rank sleeps the same amount; if launches were serialized the run
	// would take n*d instead of ~d.
	const n = 4
	scripts := make(map[int]string, n)
	for i := 0; i < n; i++ {
		scripts[i] = "sleep 0.3"
	}
	l := shLauncher(t, scripts)

	start := time.Now()
	if _, err := l.Run(context.Background(), specForPeers(n), topology.Build(n, 8000)); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if elapsed := time.Since(start); elapsed > 900*time.Millisecond {
		t.Fatalf("run took %v; launches appear serialized", elapsed)
	}
}

func TestLauncher_ObserverSeesStartsAndExits(t *testing.T) {
	rec := NewRunRecorder()
	l := shLauncher(t, map[int]string{1: "exit 7"})
	l.Observer = rec

	_, err := l.Run(context.Background(), specForPeers(2), topology.Build(2, 8000))
	if !errors.Is(err, ErrRunFailed) {
		t.Fatalf("unexpected error: %v", err)
	}

	events := rec.Snapshot()
	var started, exited []int
	exitCodes := map[int]int{}
	for _, e := range events {
		switch e.Kind {
		case EventRankStarted:
			started = append(started, e.Rank)
		case EventRankExited:
			exited = append(exited, e.Rank)
			exitCodes[e.Rank] = e.ExitCode
		}
	}
	sort.Ints(started)
	sort.Ints(exited)
	if !reflect.DeepEqual(started, []int{0, 1}) || !reflect.DeepEqual(exited, []int{0, 1}) {
		t.Fatalf("events incomplete: %v", events)
	}
	if exitCodes[1] != 7 {
		t.Fatalf("rank 1 exit code %d, want 7", exitCodes[1])
	}
}

func TestLauncher_CancellationKillsAndDrains(t *testing.T) {
	l := shLauncher(t, map[int]string{
		0: "sleep 30",
		1: "sleep 30",
	})
	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	start := time.Now()
	results, err := l.Run(ctx, specForPeers(2), topology.Build(2, 8000))
	elapsed := time.Since(start)

	if err == nil {
		t.Fatal("expected cancellation error")
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("error does not carry the cancellation cause: %v", err)
	}
	if elapsed > 5*time.Second {
		t.Fatalf("cancellation did not kill children promptly (%v)", elapsed)
	}
	// All exits were still drained.
	if len(results) != 2 {
		t.Fatalf("expected 2 drained results, got %d", len(results))
	}
}

func TestLauncher_CancellationOverlapsExits(t *testing.T) {
	// One rank exits immediately, so by the time the cancellation lands its
	// wait has resolved (or is resolving) while the other rank is still
	// alive. The kill pass must tolerate both states on every iteration;
	// run under the race detector this also proves the kill pass does not
	// touch wait-owned process state.
	for i := 0; i < 20; i++ {
		l := shLauncher(t, map[int]string{
			0: "exit 0",
			1: "sleep 30",
		})
		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		results, err := l.Run(ctx, specForPeers(2), topology.Build(2, 8000))
		cancel()

		if !errors.Is(err, context.DeadlineExceeded) {
			t.Fatalf("iteration %d: error does not carry the cancellation cause: %v", i, err)
		}
		if len(results) != 2 {
			t.Fatalf("iteration %d: expected 2 drained results, got %d", i, len(results))
		}
	}
}

func TestLauncher_TopologyMismatchRejected(t *testing.T) {
	l := shLauncher(t, nil)
	if _, err := l.Run(context.Background(), specForPeers(3), topology.Build(2, 8000)); err == nil {
		t.Fatal("expected topology mismatch error")
	}
}
