package launch

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sort"
	"syscall"

	"gridrun/internal/logging"
	"gridrun/internal/topology"
)

// RankResult is one rank's resolved outcome.
type RankResult struct {
	Rank     int
	Pid      int
	ExitCode int
}

// Launcher starts one simulation process per rank and supervises the whole
// set. It is the only entity permitted to wait on the child process handles.
type Launcher struct {
	// Program is the simulation binary to invoke.
	Program string

	// WorkDir is the directory every rank runs in and writes artifacts to.
	WorkDir string

	// Observer receives lifecycle events; nil means no observation.
	Observer RunObserver

	// Log receives progress output; nil discards.
	Log *logging.Logger

	// Stdout/Stderr are inherited by every rank. Defaults to the
	// orchestrator's own streams.
	Stdout io.Writer
	Stderr io.Writer

	// BuildCommand overrides process construction. Tests substitute fakes;
	// the default invokes Program with the spec's argument vector.
	BuildCommand func(spec RunSpec, peers []topology.Address, rank int) *exec.Cmd
}

// NewLauncher creates a launcher for the given simulation binary and
// working directory.
func NewLauncher(program, workDir string) *Launcher {
	return &Launcher{Program: program, WorkDir: workDir}
}

func (l *Launcher) buildCommand(spec RunSpec, peers []topology.Address, rank int) *exec.Cmd {
	if l.BuildCommand != nil {
		return l.BuildCommand(spec, peers, rank)
	}
	cmd := exec.Command(l.Program, spec.Args(peers, rank)...)
	cmd.Dir = l.WorkDir
	return cmd
}

type rankExit struct {
	rank int
	err  error
}

// Run launches all peerCount ranks concurrently and blocks until every one
// has exited.
//
// Launches are never serialized: peers that start earlier immediately try to
// connect to peers that have not bound their listening socket yet, and the
// engine's own connect-retry logic is what tolerates that race.
//
// If any rank exits non-zero or abnormally, Run still waits for the
// remaining peers before returning a *RunFailure naming every failed rank.
// A distributed run is not safely abandoned mid-flight: surviving peers may
// be blocked on the failed one, and killing peers asymmetrically can corrupt
// partial output files.
//
// On context cancellation every surviving process group is killed, all exits
// are still drained, and the cancellation cause is returned.
func (l *Launcher) Run(ctx context.Context, spec RunSpec, peers []topology.Address) ([]RankResult, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if err := spec.Validate(); err != nil {
		return nil, fmt.Errorf("invalid run spec: %w", err)
	}
	if len(peers) != spec.PeerCount {
		return nil, fmt.Errorf("topology has %d addresses for %d peers", len(peers), spec.PeerCount)
	}

	stdout := l.Stdout
	if stdout == nil {
		stdout = os.Stdout
	}
	stderr := l.Stderr
	if stderr == nil {
		stderr = os.Stderr
	}

	cmds := make([]*exec.Cmd, spec.PeerCount)
	for rank := 0; rank < spec.PeerCount; rank++ {
		cmd := l.buildCommand(spec, peers, rank)
		cmd.Stdout = stdout
		cmd.Stderr = stderr
		// Each rank gets its own process group so cancellation can kill the
		// whole tree, not just the immediate child.
		cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
		cmds[rank] = cmd
	}

	started := 0
	for rank, cmd := range cmds {
		if err := cmd.Start(); err != nil {
			// A rank that never started can never be waited on; the run can
			// never complete, so the already-started peers are killed and
			// drained before reporting.
			l.killAll(cmds[:started])
			l.drain(cmds[:started])
			return nil, fmt.Errorf("starting rank %d: %w", rank, err)
		}
		started++
		l.Log.Debugf("rank %d started (pid %d)", rank, cmd.Process.Pid)
		SafeObserve(l.Observer, RunEvent{Kind: EventRankStarted, Rank: rank, Pid: cmd.Process.Pid})
	}

	exits := make(chan rankExit, len(cmds))
	for rank, cmd := range cmds {
		go func(rank int, cmd *exec.Cmd) {
			exits <- rankExit{rank: rank, err: cmd.Wait()}
		}(rank, cmd)
	}

	results := make([]RankResult, 0, len(cmds))
	remaining := len(cmds)
	ctxDone := ctx.Done()
	var cancelCause error
	for remaining > 0 {
		select {
		case <-ctxDone:
			cancelCause = ctx.Err()
			l.Log.Warnf("run cancelled, killing %d surviving ranks", remaining)
			l.killAll(cmds)
			// Keep draining; the kills make the pending Waits return.
			ctxDone = nil
		case e := <-exits:
			code := exitCode(e.err)
			results = append(results, RankResult{
				Rank:     e.rank,
				Pid:      cmds[e.rank].Process.Pid,
				ExitCode: code,
			})
			l.Log.Debugf("rank %d exited with code %d", e.rank, code)
			SafeObserve(l.Observer, RunEvent{Kind: EventRankExited, Rank: e.rank, ExitCode: code})
			remaining--
		}
	}

	sort.Slice(results, func(i, j int) bool { return results[i].Rank < results[j].Rank })

	if cancelCause != nil {
		return results, fmt.Errorf("run cancelled: %w", cancelCause)
	}

	var failed []RankFailure
	for _, r := range results {
		if r.ExitCode != 0 {
			failed = append(failed, RankFailure{Rank: r.Rank, ExitCode: r.ExitCode})
		}
	}
	if len(failed) > 0 {
		return results, &RunFailure{Failed: failed}
	}
	return results, nil
}

// killAll kills the process group of every started command. ProcessState
// must not be consulted here: the wait goroutines write it concurrently.
// Signalling an already-exited group reports ESRCH, which is discarded.
func (l *Launcher) killAll(cmds []*exec.Cmd) {
	for _, cmd := range cmds {
		if cmd.Process == nil {
			continue
		}
		// Negative pid addresses the whole process group.
		_ = syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
	}
}

// drain waits for every started command, discarding outcomes.
func (l *Launcher) drain(cmds []*exec.Cmd) {
	for _, cmd := range cmds {
		if cmd.Process != nil {
			_ = cmd.Wait()
		}
	}
}

// exitCode maps a Wait error to a process exit status. Abnormal termination
// (signal) yields -1.
func exitCode(err error) int {
	if err == nil {
		return 0
	}
	if exitErr, ok := err.(*exec.ExitError); ok {
		return exitErr.ExitCode()
	}
	return -1
}
