package stitch

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
)

// DiscoverInputs returns the per-rank result files in dir matching the
// reserved pattern, sorted lexically. The rank-qualified naming makes
// lexical order rank order.
//
// The count of discovered files is not validated against an expected peer
// count here; a partial set merges silently.
func DiscoverInputs(dir, pattern string) ([]string, error) {
	matches, err := filepath.Glob(filepath.Join(dir, pattern))
	if err != nil {
		return nil, fmt.Errorf("discovering result files in %q: %w", dir, err)
	}
	sort.Strings(matches)
	return matches, nil
}

// Load reads and decodes one result file. A missing or unreadable file is a
// MissingFileError, which aborts the whole merge before any output.
func Load(path string) (*State, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &MissingFileError{Path: path, Err: err}
	}
	state, err := DecodeState(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return state, nil
}

// Merge loads every input in order and combines their patch sequences.
//
// The first file is the accumulator base: its non-patch top-level fields are
// carried into the result untouched. Each subsequent file contributes only
// its patch sequence, appended in input order. After merging, the combined
// patch list is validated for duplicate identities; any duplicate rejects
// the merge outright.
func Merge(paths []string) (*State, error) {
	if len(paths) == 0 {
		return nil, fmt.Errorf("no result files to merge")
	}

	combined, err := Load(paths[0])
	if err != nil {
		return nil, err
	}
	sources := make([]string, len(combined.Primitive))
	for i := range sources {
		sources[i] = paths[0]
	}

	for _, path := range paths[1:] {
		additional, err := Load(path)
		if err != nil {
			return nil, err
		}
		combined.Primitive = append(combined.Primitive, additional.Primitive...)
		for range additional.Primitive {
			sources = append(sources, path)
		}
	}

	if err := validate(combined.Primitive, sources); err != nil {
		return nil, err
	}
	return combined, nil
}

// validate rejects the merge when two patches share an identity tuple.
// sources is parallel to patches and names each patch's input file.
func validate(patches []Patch, sources []string) error {
	seen := make(map[Identity]int, len(patches))
	for i, p := range patches {
		id := p.Identity()
		if first, dup := seen[id]; dup {
			return &DuplicatePatchError{
				Identity:   id,
				FirstFile:  sources[first],
				SecondFile: sources[i],
			}
		}
		seen[id] = i
	}
	return nil
}

// Validate checks the state's patch sequence for duplicate identities.
func (s *State) Validate() error {
	return validate(s.Primitive, make([]string, len(s.Primitive)))
}

// WriteFile persists the state atomically: encode, write to a temporary file
// in the same directory, then rename over the destination. No partial merge
// is ever observable at path.
func WriteFile(path string, s *State) error {
	data, err := s.Encode()
	if err != nil {
		return err
	}

	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("writing %s: %w", tmpName, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("closing %s: %w", tmpName, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("renaming into place: %w", err)
	}
	return nil
}

// Stitch merges the inputs and persists the combined state to outPath.
// On any failure nothing is written.
func Stitch(paths []string, outPath string) error {
	combined, err := Merge(paths)
	if err != nil {
		return err
	}
	return WriteFile(outPath, combined)
}
