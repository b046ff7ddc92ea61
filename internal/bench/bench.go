// Package bench sweeps a grid of peer counts and thread counts, timing one
// full distributed run per cell.
package bench

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"time"

	"gridrun/internal/journal"
	"gridrun/internal/launch"
	"gridrun/internal/logging"
	"gridrun/internal/topology"
)

// Config describes one sweep. Every cell shares the grid geometry; only the
// peer and thread counts vary.
type Config struct {
	PeerCounts   []int
	ThreadCounts []int

	GridSize  int
	BlockSize int
	FoldCount int
	FinalTime float64
	Strategy  string

	BasePort     int
	ArtifactGlob string

	Launcher *launch.Launcher
	Journal  *journal.Journal // optional
	Log      *logging.Logger
}

// Cell is one timed (peers, threads) measurement.
type Cell struct {
	Peers    int
	Threads  int
	Duration time.Duration
	Failed   bool
}

// Sweep runs every (peers, threads) cell in order, cleaning rank artifacts
// between cells so each run starts against a clean workspace. A failed cell
// is recorded and the sweep continues; cancellation stops the sweep.
func Sweep(ctx context.Context, cfg Config) ([]Cell, error) {
	if cfg.Launcher == nil {
		return nil, fmt.Errorf("launcher is required")
	}
	if len(cfg.PeerCounts) == 0 || len(cfg.ThreadCounts) == 0 {
		return nil, fmt.Errorf("sweep grid is empty")
	}
	glob := cfg.ArtifactGlob
	if glob == "" {
		glob = launch.ArtifactGlob
	}

	var cells []Cell
	for _, peers := range cfg.PeerCounts {
		for _, threads := range cfg.ThreadCounts {
			if err := ctx.Err(); err != nil {
				return cells, fmt.Errorf("sweep cancelled: %w", err)
			}

			if err := launch.CleanArtifacts(cfg.Launcher.WorkDir, glob); err != nil {
				return cells, err
			}

			spec := launch.RunSpec{
				PeerCount:   peers,
				ThreadCount: threads,
				GridSize:    cfg.GridSize,
				BlockSize:   cfg.BlockSize,
				FoldCount:   cfg.FoldCount,
				FinalTime:   cfg.FinalTime,
				Strategy:    cfg.Strategy,
			}
			addrs := topology.Build(peers, cfg.BasePort)

			cfg.Log.Infof("bench cell peers=%d threads=%d", peers, threads)
			startedAt := time.Now()
			results, err := cfg.Launcher.Run(ctx, spec, addrs)
			elapsed := time.Since(startedAt)

			cell := Cell{Peers: peers, Threads: threads, Duration: elapsed}
			if err != nil {
				if !errors.Is(err, launch.ErrRunFailed) {
					// Cancellation or infrastructure failure ends the sweep.
					return cells, err
				}
				cell.Failed = true
				cfg.Log.Warnf("bench cell peers=%d threads=%d failed: %v", peers, threads, err)
			}
			cells = append(cells, cell)

			if cfg.Journal != nil {
				rec := journal.Record{
					StartedAt:   startedAt.UTC(),
					DurationSec: elapsed.Seconds(),
					Peers:       peers,
					Threads:     threads,
					GridSize:    cfg.GridSize,
					BlockSize:   cfg.BlockSize,
					ExitCodes:   exitCodes(results),
					Outcome:     journal.OutcomeOK,
				}
				if cell.Failed {
					rec.Outcome = journal.OutcomeFailed
				}
				if _, err := cfg.Journal.Append(rec); err != nil {
					cfg.Log.Warnf("journal append failed: %v", err)
				}
			}
		}
	}
	return cells, nil
}

func exitCodes(results []launch.RankResult) map[int]int {
	if len(results) == 0 {
		return nil
	}
	codes := make(map[int]int, len(results))
	for _, r := range results {
		codes[r.Rank] = r.ExitCode
	}
	return codes
}

// WriteCSV renders the sweep in the conventional report shape:
//
//	peers,threads,duration
func WriteCSV(w io.Writer, cells []Cell) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"peers", "threads", "duration"}); err != nil {
		return err
	}
	for _, c := range cells {
		row := []string{
			strconv.Itoa(c.Peers),
			strconv.Itoa(c.Threads),
			strconv.FormatFloat(c.Duration.Seconds(), 'f', -1, 64),
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
