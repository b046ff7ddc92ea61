// Package launch starts and supervises the peer processes of a distributed
// run.
//
// The launcher is the sole owner of every child process handle: it starts all
// ranks concurrently, blocks until every one has exited, and only then
// reports the aggregate outcome. The precondition guard gates it, refusing to
// launch into a working directory that still holds result artifacts from a
// previous run.
package launch

import (
	"fmt"
	"strconv"

	"gridrun/internal/topology"
)

// DefaultStrategy is the engine's parallel execution strategy selector.
const DefaultStrategy = "rayon"

// RunSpec is the immutable description of one distributed run. It is
// constructed from explicit configuration and never mutated while the run is
// in flight.
type RunSpec struct {
	// PeerCount is the number of ranks, each owning one spatial partition.
	PeerCount int

	// ThreadCount is the worker thread count passed to each rank.
	ThreadCount int

	// GridSize is the global grid resolution per axis.
	GridSize int

	// BlockSize is the patch edge length the engine decomposes the grid into.
	BlockSize int

	// FoldCount is the number of iterations folded between control points.
	FoldCount int

	// FinalTime is the simulation time at which the run ends.
	FinalTime float64

	// Strategy selects the engine's execution strategy.
	Strategy string

	// GUIEnabled asks each rank to render its partition while running.
	GUIEnabled bool
}

// Validate rejects spec values the launcher cannot act on.
func (s RunSpec) Validate() error {
	if s.PeerCount < 1 {
		return fmt.Errorf("peer count must be >= 1, got %d", s.PeerCount)
	}
	if s.ThreadCount < 1 {
		return fmt.Errorf("thread count must be >= 1, got %d", s.ThreadCount)
	}
	if s.GridSize < 1 {
		return fmt.Errorf("grid size must be >= 1, got %d", s.GridSize)
	}
	if s.BlockSize < 1 {
		return fmt.Errorf("block size must be >= 1, got %d", s.BlockSize)
	}
	if s.FoldCount < 1 {
		return fmt.Errorf("fold count must be >= 1, got %d", s.FoldCount)
	}
	if s.FinalTime < 0 {
		return fmt.Errorf("final time must be >= 0, got %v", s.FinalTime)
	}
	if s.Strategy == "" {
		return fmt.Errorf("strategy is required")
	}
	return nil
}

// Args builds the argument vector for one rank. The peer list is serialized
// as a single whitespace-joined argument; the rank's own index is last.
func (s RunSpec) Args(peers []topology.Address, rank int) []string {
	args := []string{
		"-t", strconv.Itoa(s.ThreadCount),
		"-n", strconv.Itoa(s.GridSize),
		"-b", strconv.Itoa(s.BlockSize),
		"-f", strconv.Itoa(s.FoldCount),
		"--tfinal", strconv.FormatFloat(s.FinalTime, 'g', -1, 64),
		"--strategy", s.Strategy,
		"--peers", topology.Join(peers),
		"--rank", strconv.Itoa(rank),
	}
	if s.GUIEnabled {
		args = append(args, "--gui")
	}
	return args
}
