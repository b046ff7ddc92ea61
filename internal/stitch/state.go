// Package stitch merges per-rank simulation state files into one consistent
// global state.
//
// The merge validates for exact duplicate spatial patches only. It does not
// verify complete domain coverage, and it does not detect non-identical
// overlapping rectangles; callers depend on that permissiveness, so it is
// documented behavior rather than a gap to close.
package stitch

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// PrimitiveKey is the top-level field holding the patch sequence. Every
// other top-level field is opaque to the stitcher and carried through
// byte-for-byte.
const PrimitiveKey = "primitive"

// Range is a half-open index interval along one axis.
type Range struct {
	Start int64 `cbor:"start" json:"start"`
	End   int64 `cbor:"end" json:"end"`
}

// Patch is one rectangular sub-domain's field values.
type Patch struct {
	Rect      [2]Range  `cbor:"rect" json:"rect"`
	NumFields int       `cbor:"num_fields" json:"num_fields"`
	Data      []float64 `cbor:"data" json:"data"`
}

// Identity is the deduplication key for a patch: the rectangle corners
// alone. Field count and data play no part in identity.
type Identity struct {
	I0, I1 int64
	J0, J1 int64
}

// Identity returns the patch's deduplication key.
func (p Patch) Identity() Identity {
	return Identity{
		I0: p.Rect[0].Start, I1: p.Rect[0].End,
		J0: p.Rect[1].Start, J1: p.Rect[1].End,
	}
}

func (id Identity) String() string {
	return fmt.Sprintf("[%d..%d) x [%d..%d)", id.I0, id.I1, id.J0, id.J1)
}

// State is one solution state: the interpreted patch sequence plus every
// other top-level field in raw encoded form.
type State struct {
	Primitive []Patch

	// Extra holds all top-level fields other than PrimitiveKey, untouched.
	Extra map[string]cbor.RawMessage
}

// DecodeState decodes a serialized state, splitting the patch sequence from
// the opaque remainder.
func DecodeState(data []byte) (*State, error) {
	var fields map[string]cbor.RawMessage
	if err := cbor.Unmarshal(data, &fields); err != nil {
		return nil, fmt.Errorf("decoding state: %w", err)
	}

	raw, ok := fields[PrimitiveKey]
	if !ok {
		return nil, fmt.Errorf("state has no %q field", PrimitiveKey)
	}
	var patches []Patch
	if err := cbor.Unmarshal(raw, &patches); err != nil {
		return nil, fmt.Errorf("decoding %q patches: %w", PrimitiveKey, err)
	}
	delete(fields, PrimitiveKey)

	return &State{Primitive: patches, Extra: fields}, nil
}

// Encode serializes the state back to its on-disk form, restoring the
// untouched fields alongside the (possibly merged) patch sequence.
func (s *State) Encode() ([]byte, error) {
	raw, err := cbor.Marshal(s.Primitive)
	if err != nil {
		return nil, fmt.Errorf("encoding %q patches: %w", PrimitiveKey, err)
	}

	fields := make(map[string]cbor.RawMessage, len(s.Extra)+1)
	for k, v := range s.Extra {
		fields[k] = v
	}
	fields[PrimitiveKey] = raw

	data, err := cbor.Marshal(fields)
	if err != nil {
		return nil, fmt.Errorf("encoding state: %w", err)
	}
	return data, nil
}
