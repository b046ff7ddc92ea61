package stitch

import (
	"errors"
	"fmt"
)

var (
	// ErrDuplicatePatch marks a rejected merge: two patches share the same
	// spatial identity, indicating overlapping or double-counted partitions.
	ErrDuplicatePatch = errors.New("duplicate patch")

	// ErrMissingFile marks an aborted merge: an input file was missing or
	// unreadable before any output was written.
	ErrMissingFile = errors.New("missing result file")
)

// DuplicatePatchError names the offending identity and the two input files
// that contributed it. A duplicate is a correctness violation, never a
// warning.
type DuplicatePatchError struct {
	Identity   Identity
	FirstFile  string
	SecondFile string
}

func (e *DuplicatePatchError) Error() string {
	if e == nil {
		return ""
	}
	if e.FirstFile == "" && e.SecondFile == "" {
		return fmt.Sprintf("%v: %s appears twice", ErrDuplicatePatch, e.Identity)
	}
	return fmt.Sprintf("%v: %s appears in both %s and %s",
		ErrDuplicatePatch, e.Identity, e.FirstFile, e.SecondFile)
}

func (e *DuplicatePatchError) Unwrap() error { return ErrDuplicatePatch }

// MissingFileError names the unreadable input.
type MissingFileError struct {
	Path string
	Err  error
}

func (e *MissingFileError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%v: %s: %v", ErrMissingFile, e.Path, e.Err)
}

func (e *MissingFileError) Unwrap() error { return ErrMissingFile }
