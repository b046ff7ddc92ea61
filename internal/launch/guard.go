package launch

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
)

// ArtifactGlob is the reserved per-rank result artifact pattern. Each rank
// writes its partial state to ArtifactPath(rank); the stitcher discovers
// inputs with the same glob.
const ArtifactGlob = "state.*.cbor"

// ArtifactPath returns the rank-qualified result path under dir. Ranks never
// share an output path, so there is no write contention between peers.
func ArtifactPath(dir string, rank int) string {
	return filepath.Join(dir, fmt.Sprintf("state.%04d.cbor", rank))
}

// GuardCleanWorkspace verifies that dir holds no file matching the reserved
// artifact pattern. Any match fails with a StaleArtifactsError listing every
// offender; the scan always runs to completion before reporting, and the
// caller must not spawn any process on failure. This prevents the stitcher
// from silently blending old and new partial results.
func GuardCleanWorkspace(dir, pattern string) error {
	matches, err := filepath.Glob(filepath.Join(dir, pattern))
	if err != nil {
		return fmt.Errorf("scanning %q for stale artifacts: %w", dir, err)
	}
	if len(matches) == 0 {
		return nil
	}
	names := make([]string, len(matches))
	for i, m := range matches {
		names[i] = filepath.Base(m)
	}
	sort.Strings(names)
	return &StaleArtifactsError{Dir: dir, Matches: names}
}

// CleanArtifacts removes every file in dir matching the artifact pattern.
// The benchmark sweep calls this between cells so each run starts clean.
func CleanArtifacts(dir, pattern string) error {
	matches, err := filepath.Glob(filepath.Join(dir, pattern))
	if err != nil {
		return fmt.Errorf("scanning %q for artifacts: %w", dir, err)
	}
	for _, m := range matches {
		if err := os.Remove(m); err != nil {
			return fmt.Errorf("removing %q: %w", m, err)
		}
	}
	return nil
}
