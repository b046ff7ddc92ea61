// Package cli canonicalizes invocations and maps engine outcomes to
// semantic exit codes.
package cli

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gridrun/internal/launch"
	"gridrun/internal/topology"
)

// Semantic exit codes. Scripts distinguish precondition failures, child
// failures, and stitch failures by these values.
const (
	ExitSuccess           = 0
	ExitRunFailure        = 1
	ExitInvalidInvocation = 2
	ExitStaleArtifacts    = 3
	ExitStitchFailure     = 4
	ExitInternalError     = 5
)

// InvocationError carries the exit code an invalid invocation maps to.
type InvocationError struct {
	ExitCode int
	Message  string
}

func (e *InvocationError) Error() string {
	if e == nil {
		return ""
	}
	return e.Message
}

func invalidInvocationf(format string, args ...any) error {
	return &InvocationError{ExitCode: ExitInvalidInvocation, Message: fmt.Sprintf(format, args...)}
}

// RunInvocation describes one `gridrun run`.
type RunInvocation struct {
	WorkDir     string
	Program     string
	Spec        launch.RunSpec
	BasePort    int
	Timeout     time.Duration
	JournalPath string
	Verbose     bool
}

// StitchInvocation describes one `gridrun stitch`.
type StitchInvocation struct {
	WorkDir       string
	Files         []string
	Glob          string
	Output        string
	ExpectedPeers int
}

// TimelineInvocation describes one `gridrun timeline`.
type TimelineInvocation struct {
	Input string
	View  string // "workers" or "durations"
	Event string
}

// BenchInvocation describes one `gridrun bench`.
type BenchInvocation struct {
	WorkDir      string
	Program      string
	PeerCounts   []int
	ThreadCounts []int
	GridSize     int
	BlockSize    int
	FoldCount    int
	FinalTime    float64
	Strategy     string
	BasePort     int
	Output       string
	JournalPath  string
	Verbose      bool
}

// RunsInvocation describes one `gridrun runs`.
type RunsInvocation struct {
	JournalPath string
}

// ServeInvocation describes one `gridrun serve`.
type ServeInvocation struct {
	Addr        string
	Input       string
	JournalPath string
}

// Invocation is the fully canonicalized description of one CLI call.
// Exactly one command field is non-nil.
type Invocation struct {
	Command  string
	Run      *RunInvocation
	Stitch   *StitchInvocation
	Timeline *TimelineInvocation
	Bench    *BenchInvocation
	Runs     *RunsInvocation
	Serve    *ServeInvocation
}

// ParseInvocation parses argv (excluding argv[0]) into a canonical
// Invocation. It reads no environment variables and never consults the
// process working directory: the working directory is explicit configuration.
func ParseInvocation(args []string) (Invocation, error) {
	if len(args) == 0 {
		return Invocation{}, invalidInvocationf("usage: gridrun <run|stitch|timeline|bench|runs|serve> [flags]")
	}
	command, rest := args[0], args[1:]
	switch command {
	case "run":
		return parseRun(rest)
	case "stitch":
		return parseStitch(rest)
	case "timeline":
		return parseTimeline(rest)
	case "bench":
		return parseBench(rest)
	case "runs":
		return parseRuns(rest)
	case "serve":
		return parseServe(rest)
	default:
		return Invocation{}, invalidInvocationf("unknown command %q", command)
	}
}

func newFlagSet(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(io.Discard) // parsing errors are returned, not printed
	return fs
}

func requireAbsDir(name, value string) (string, error) {
	value = filepath.Clean(value)
	if value == "" || value == "." {
		return "", invalidInvocationf("--%s is required", name)
	}
	if !filepath.IsAbs(value) {
		return "", invalidInvocationf("--%s must be an absolute path (got %q)", name, value)
	}
	return value, nil
}

// resolveUnder resolves a relative path under an absolute base directory
// without consulting the process CWD.
func resolveUnder(base, p string) string {
	clean := filepath.Clean(p)
	if filepath.IsAbs(clean) {
		return clean
	}
	return filepath.Clean(filepath.Join(base, clean))
}

func parseRun(args []string) (Invocation, error) {
	fs := newFlagSet("gridrun run")

	inv := RunInvocation{}
	fs.StringVar(&inv.WorkDir, "workdir", "", "Absolute working directory for the run. Required.")
	fs.StringVar(&inv.Program, "program", "", "Simulation binary to launch per rank. Required.")
	fs.IntVar(&inv.Spec.PeerCount, "peers", 1, "Number of peer processes.")
	fs.IntVar(&inv.Spec.ThreadCount, "threads", 4, "Worker threads per rank.")
	fs.IntVar(&inv.Spec.GridSize, "grid", 1000, "Grid resolution per axis.")
	fs.IntVar(&inv.Spec.BlockSize, "block", 100, "Patch edge length.")
	fs.IntVar(&inv.Spec.FoldCount, "folds", 1, "Iterations folded between control points.")
	fs.Float64Var(&inv.Spec.FinalTime, "tfinal", 0.1, "Simulation end time.")
	fs.StringVar(&inv.Spec.Strategy, "strategy", launch.DefaultStrategy, "Engine execution strategy.")
	fs.BoolVar(&inv.Spec.GUIEnabled, "gui", false, "Ask each rank to render while running.")
	fs.IntVar(&inv.BasePort, "base-port", topology.DefaultBasePort, "Port assigned to rank 0.")
	fs.DurationVar(&inv.Timeout, "timeout", 0, "Abort the run after this duration (0 = no timeout).")
	fs.StringVar(&inv.JournalPath, "journal", "", "Run journal database path (optional).")
	fs.BoolVar(&inv.Verbose, "v", false, "Verbose logging.")

	if err := fs.Parse(args); err != nil {
		return Invocation{}, invalidInvocationf("%v", err)
	}
	if fs.NArg() != 0 {
		return Invocation{}, invalidInvocationf("unexpected positional arguments: %q", strings.Join(fs.Args(), " "))
	}

	workDir, err := requireAbsDir("workdir", inv.WorkDir)
	if err != nil {
		return Invocation{}, err
	}
	inv.WorkDir = workDir
	if inv.Program == "" {
		return Invocation{}, invalidInvocationf("--program is required")
	}
	if err := inv.Spec.Validate(); err != nil {
		return Invocation{}, invalidInvocationf("%v", err)
	}
	if inv.JournalPath != "" {
		inv.JournalPath = resolveUnder(workDir, inv.JournalPath)
	}

	return Invocation{Command: "run", Run: &inv}, nil
}

func parseStitch(args []string) (Invocation, error) {
	fs := newFlagSet("gridrun stitch")

	inv := StitchInvocation{}
	fs.StringVar(&inv.WorkDir, "workdir", "", "Absolute directory to discover result files in.")
	fs.StringVar(&inv.Glob, "glob", launch.ArtifactGlob, "Result artifact pattern for discovery.")
	fs.StringVar(&inv.Output, "output", "stitched.cbor", "Combined state output path.")
	fs.IntVar(&inv.ExpectedPeers, "peers", 0, "Expected result file count; a mismatch logs a warning (0 = skip).")

	if err := fs.Parse(args); err != nil {
		return Invocation{}, invalidInvocationf("%v", err)
	}
	inv.Files = fs.Args()

	if len(inv.Files) == 0 {
		workDir, err := requireAbsDir("workdir", inv.WorkDir)
		if err != nil {
			return Invocation{}, invalidInvocationf("stitch needs input files or --workdir for discovery")
		}
		inv.WorkDir = workDir
		inv.Output = resolveUnder(workDir, inv.Output)
	} else if inv.WorkDir != "" {
		workDir, err := requireAbsDir("workdir", inv.WorkDir)
		if err != nil {
			return Invocation{}, err
		}
		inv.WorkDir = workDir
		inv.Output = resolveUnder(workDir, inv.Output)
	} else if filepath.IsAbs(inv.Output) {
		inv.Output = filepath.Clean(inv.Output)
	} else {
		// A relative output with no --workdir would silently depend on the
		// process CWD.
		return Invocation{}, invalidInvocationf("--output must be absolute when --workdir is not given")
	}

	return Invocation{Command: "stitch", Stitch: &inv}, nil
}

func parseTimeline(args []string) (Invocation, error) {
	fs := newFlagSet("gridrun timeline")

	inv := TimelineInvocation{}
	fs.StringVar(&inv.Input, "input", "", "Event log CSV path. Required.")
	fs.StringVar(&inv.View, "view", "workers", "View to emit: workers|durations")
	fs.StringVar(&inv.Event, "event", "work", "Event type for the durations view: work|network")

	if err := fs.Parse(args); err != nil {
		return Invocation{}, invalidInvocationf("%v", err)
	}
	if fs.NArg() != 0 {
		return Invocation{}, invalidInvocationf("unexpected positional arguments: %q", strings.Join(fs.Args(), " "))
	}
	if inv.Input == "" {
		return Invocation{}, invalidInvocationf("--input is required")
	}
	switch inv.View {
	case "workers", "durations":
	default:
		return Invocation{}, invalidInvocationf("invalid --view %q (expected workers|durations)", inv.View)
	}
	switch inv.Event {
	case "work", "network":
	default:
		return Invocation{}, invalidInvocationf("invalid --event %q (expected work|network)", inv.Event)
	}

	return Invocation{Command: "timeline", Timeline: &inv}, nil
}

func parseBench(args []string) (Invocation, error) {
	fs := newFlagSet("gridrun bench")

	inv := BenchInvocation{}
	var peerList, threadList string
	fs.StringVar(&inv.WorkDir, "workdir", "", "Absolute working directory for the sweep. Required.")
	fs.StringVar(&inv.Program, "program", "", "Simulation binary to launch per rank. Required.")
	fs.StringVar(&peerList, "peers", "1,2,3,4", "Comma-separated peer counts to sweep.")
	fs.StringVar(&threadList, "threads", "2,3,4,5,6,7,8", "Comma-separated thread counts to sweep.")
	fs.IntVar(&inv.GridSize, "grid", 1000, "Grid resolution per axis.")
	fs.IntVar(&inv.BlockSize, "block", 100, "Patch edge length.")
	fs.IntVar(&inv.FoldCount, "folds", 1, "Iterations folded between control points.")
	fs.Float64Var(&inv.FinalTime, "tfinal", 0.1, "Simulation end time.")
	fs.StringVar(&inv.Strategy, "strategy", launch.DefaultStrategy, "Engine execution strategy.")
	fs.IntVar(&inv.BasePort, "base-port", topology.DefaultBasePort, "Port assigned to rank 0.")
	fs.StringVar(&inv.Output, "output", "", "CSV report path (default: stdout).")
	fs.StringVar(&inv.JournalPath, "journal", "", "Run journal database path (optional).")
	fs.BoolVar(&inv.Verbose, "v", false, "Verbose logging.")

	if err := fs.Parse(args); err != nil {
		return Invocation{}, invalidInvocationf("%v", err)
	}
	if fs.NArg() != 0 {
		return Invocation{}, invalidInvocationf("unexpected positional arguments: %q", strings.Join(fs.Args(), " "))
	}

	workDir, err := requireAbsDir("workdir", inv.WorkDir)
	if err != nil {
		return Invocation{}, err
	}
	inv.WorkDir = workDir
	if inv.Program == "" {
		return Invocation{}, invalidInvocationf("--program is required")
	}
	if inv.PeerCounts, err = parseIntList("peers", peerList); err != nil {
		return Invocation{}, err
	}
	if inv.ThreadCounts, err = parseIntList("threads", threadList); err != nil {
		return Invocation{}, err
	}
	if inv.Output != "" {
		inv.Output = resolveUnder(workDir, inv.Output)
	}
	if inv.JournalPath != "" {
		inv.JournalPath = resolveUnder(workDir, inv.JournalPath)
	}

	return Invocation{Command: "bench", Bench: &inv}, nil
}

func parseRuns(args []string) (Invocation, error) {
	fs := newFlagSet("gridrun runs")

	inv := RunsInvocation{}
	fs.StringVar(&inv.JournalPath, "journal", "", "Run journal database path. Required.")

	if err := fs.Parse(args); err != nil {
		return Invocation{}, invalidInvocationf("%v", err)
	}
	if inv.JournalPath == "" {
		return Invocation{}, invalidInvocationf("--journal is required")
	}
	return Invocation{Command: "runs", Runs: &inv}, nil
}

func parseServe(args []string) (Invocation, error) {
	fs := newFlagSet("gridrun serve")

	inv := ServeInvocation{}
	fs.StringVar(&inv.Addr, "addr", "127.0.0.1:7070", "Listen address for the monitor.")
	fs.StringVar(&inv.Input, "input", "", "Event log CSV to serve (optional).")
	fs.StringVar(&inv.JournalPath, "journal", "", "Run journal database path (optional).")

	if err := fs.Parse(args); err != nil {
		return Invocation{}, invalidInvocationf("%v", err)
	}
	return Invocation{Command: "serve", Serve: &inv}, nil
}

func parseIntList(name, raw string) ([]int, error) {
	parts := strings.Split(raw, ",")
	values := make([]int, 0, len(parts))
	for _, p := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil || n < 1 {
			return nil, invalidInvocationf("invalid --%s entry %q", name, p)
		}
		values = append(values, n)
	}
	return values, nil
}

// ExitCodeFor maps an error to its semantic exit code.
func ExitCodeFor(err error) int {
	if err == nil {
		return ExitSuccess
	}
	var invErr *InvocationError
	if errors.As(err, &invErr) && invErr != nil {
		if invErr.ExitCode != 0 {
			return invErr.ExitCode
		}
		return ExitInvalidInvocation
	}
	switch {
	case errors.Is(err, launch.ErrStaleArtifacts):
		return ExitStaleArtifacts
	case errors.Is(err, launch.ErrRunFailed):
		return ExitRunFailure
	case isStitchFailure(err):
		return ExitStitchFailure
	case isCancellation(err):
		return ExitRunFailure
	default:
		return ExitInternalError
	}
}
