package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"gridrun/internal/bench"
	"gridrun/internal/journal"
	"gridrun/internal/launch"
	"gridrun/internal/logging"
	"gridrun/internal/stitch"
	"gridrun/internal/timeline"
	"gridrun/internal/topology"
	"gridrun/internal/web"
)

// CLIResult is the semantic outcome of an invocation.
type CLIResult struct {
	ExitCode int
}

func isStitchFailure(err error) bool {
	return errors.Is(err, stitch.ErrDuplicatePatch) || errors.Is(err, stitch.ErrMissingFile)
}

func isCancellation(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

// Execute runs a canonical invocation. Command output (views, reports,
// journal listings) goes to stdout; diagnostics go through the logger to
// stderr.
func Execute(ctx context.Context, inv Invocation, stdout io.Writer) (CLIResult, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if stdout == nil {
		stdout = os.Stdout
	}

	var err error
	switch inv.Command {
	case "run":
		err = executeRun(ctx, inv.Run)
	case "stitch":
		err = executeStitch(inv.Stitch)
	case "timeline":
		err = executeTimeline(inv.Timeline, stdout)
	case "bench":
		err = executeBench(ctx, inv.Bench, stdout)
	case "runs":
		err = executeRuns(inv.Runs, stdout)
	case "serve":
		err = executeServe(ctx, inv.Serve)
	default:
		err = invalidInvocationf("unknown command %q", inv.Command)
	}
	return CLIResult{ExitCode: ExitCodeFor(err)}, err
}

func newLogger(verbose bool) *logging.Logger {
	level := logging.LevelInfo
	if verbose {
		level = logging.LevelDebug
	}
	return logging.New(level, "gridrun ")
}

func openJournal(path string) (*journal.Journal, error) {
	if path == "" {
		return nil, nil
	}
	return journal.Open(path)
}

func executeRun(ctx context.Context, inv *RunInvocation) error {
	log := newLogger(inv.Verbose)

	// The guard must complete before any process is spawned.
	if err := launch.GuardCleanWorkspace(inv.WorkDir, launch.ArtifactGlob); err != nil {
		return err
	}

	jnl, err := openJournal(inv.JournalPath)
	if err != nil {
		return err
	}
	if jnl != nil {
		defer jnl.Close()
	}

	if inv.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, inv.Timeout)
		defer cancel()
	}

	peers := topology.Build(inv.Spec.PeerCount, inv.BasePort)
	launcher := launch.NewLauncher(inv.Program, inv.WorkDir)
	launcher.Log = log

	log.Infof("launching %d peers (%s .. %s)", inv.Spec.PeerCount, peers[0], peers[len(peers)-1])
	startedAt := time.Now()
	results, runErr := launcher.Run(ctx, inv.Spec, peers)
	elapsed := time.Since(startedAt)

	if jnl != nil {
		outcome := journal.OutcomeOK
		switch {
		case isCancellation(runErr):
			outcome = journal.OutcomeCancelled
		case runErr != nil:
			outcome = journal.OutcomeFailed
		}
		codes := make(map[int]int, len(results))
		for _, r := range results {
			codes[r.Rank] = r.ExitCode
		}
		rec := journal.Record{
			StartedAt:   startedAt.UTC(),
			DurationSec: elapsed.Seconds(),
			Peers:       inv.Spec.PeerCount,
			Threads:     inv.Spec.ThreadCount,
			GridSize:    inv.Spec.GridSize,
			BlockSize:   inv.Spec.BlockSize,
			ExitCodes:   codes,
			Outcome:     outcome,
		}
		if _, err := jnl.Append(rec); err != nil {
			log.Warnf("journal append failed: %v", err)
		}
	}

	if runErr != nil {
		return runErr
	}
	log.Infof("all %d peers exited cleanly in %v", inv.Spec.PeerCount, elapsed)
	return nil
}

func executeStitch(inv *StitchInvocation) error {
	log := newLogger(false)

	files := inv.Files
	if len(files) == 0 {
		discovered, err := stitch.DiscoverInputs(inv.WorkDir, inv.Glob)
		if err != nil {
			return err
		}
		if len(discovered) == 0 {
			return invalidInvocationf("no result files matching %q in %s", inv.Glob, inv.WorkDir)
		}
		files = discovered
	}

	// A count mismatch is advisory only; a partial set still merges.
	if inv.ExpectedPeers > 0 && len(files) != inv.ExpectedPeers {
		log.Warnf("found %d result files, expected %d; merging what is present", len(files), inv.ExpectedPeers)
	}

	if err := stitch.Stitch(files, inv.Output); err != nil {
		return err
	}
	log.Infof("stitched %d files into %s", len(files), inv.Output)
	return nil
}

func executeTimeline(inv *TimelineInvocation, stdout io.Writer) error {
	spans, err := timeline.ReadLogFile(inv.Input)
	if err != nil {
		return invalidInvocationf("%v", err)
	}

	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	switch inv.View {
	case "workers":
		return enc.Encode(timeline.BuildTimeline(spans))
	case "durations":
		return enc.Encode(timeline.Durations(spans, timeline.EventType(inv.Event)))
	default:
		return invalidInvocationf("invalid view %q", inv.View)
	}
}

func executeBench(ctx context.Context, inv *BenchInvocation, stdout io.Writer) error {
	log := newLogger(inv.Verbose)

	jnl, err := openJournal(inv.JournalPath)
	if err != nil {
		return err
	}
	if jnl != nil {
		defer jnl.Close()
	}

	launcher := launch.NewLauncher(inv.Program, inv.WorkDir)
	launcher.Log = log

	cells, err := bench.Sweep(ctx, bench.Config{
		PeerCounts:   inv.PeerCounts,
		ThreadCounts: inv.ThreadCounts,
		GridSize:     inv.GridSize,
		BlockSize:    inv.BlockSize,
		FoldCount:    inv.FoldCount,
		FinalTime:    inv.FinalTime,
		Strategy:     inv.Strategy,
		BasePort:     inv.BasePort,
		Launcher:     launcher,
		Journal:      jnl,
		Log:          log,
	})
	if err != nil {
		return err
	}

	out := stdout
	if inv.Output != "" {
		f, err := os.Create(inv.Output)
		if err != nil {
			return fmt.Errorf("creating report %s: %w", inv.Output, err)
		}
		defer f.Close()
		out = f
	}
	return bench.WriteCSV(out, cells)
}

func executeRuns(inv *RunsInvocation, stdout io.Writer) error {
	jnl, err := journal.Open(inv.JournalPath)
	if err != nil {
		return err
	}
	defer jnl.Close()

	records, err := jnl.List()
	if err != nil {
		return err
	}
	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(records)
}

func executeServe(ctx context.Context, inv *ServeInvocation) error {
	log := newLogger(false)

	jnl, err := openJournal(inv.JournalPath)
	if err != nil {
		return err
	}
	if jnl != nil {
		defer jnl.Close()
	}

	server := web.NewServer(inv.Addr, jnl, log)
	if inv.Input != "" {
		spans, err := timeline.ReadLogFile(inv.Input)
		if err != nil {
			return invalidInvocationf("%v", err)
		}
		server.SetSpans(spans)
	}

	log.Infof("monitor listening on %s", inv.Addr)
	server.Start()
	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}
