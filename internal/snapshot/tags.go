package snapshot

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/roach88/aether/internal/num"
	"github.com/roach88/aether/internal/record"
)

// Entry tags.
const (
	TagModel                                  = "model"
	TagInitialConfiguration                   = "initial_configuration"
	TagInitialConfigurationType               = "initial_configuration_type"
	TagInitialConfigurationImplementationType = "initial_configuration_implementation_type"
	TagGridType                               = "grid_type"
	TagGridDimension                          = "grid_dimension"
	TagGridImplementationType                 = "grid_implementation_type"
	TagGrid                                   = "grid"
	TagGridDigest                             = "grid_digest"
	TagCoordinateBounds                       = "coordinate_bounds"
	TagCoordinateBoundsImplementationType     = "coordinate_bounds_implementation_type"
	TagStep                                   = "step"
	TagChanged                                = "configuration_changed_from_previous_step"
	TagCompliance                             = "toppling_alternation_compliance"
	TagComplianceImplementationType           = "toppling_alternation_compliance_implementation_type"
)

// Tag values.
const (
	ModelAether          = "aether"
	SingleSourceAtOrigin = "single_source_at_origin"
	InfiniteRegularGrid  = "infinite_regular"
	MaxCoordinateInteger = "max_coordinate_integer"
	OffsetBitset         = "offset_bitset"

	GridSlicesInt64  = "asymmetric_slices_int64"
	GridSlicesBigInt = "asymmetric_slices_big_int"
	GridOffsetFile   = "offset_file_int64"
)

// MemoryGridType returns the grid implementation tag written for an
// in-memory automaton of the given kind.
func MemoryGridType(k num.Kind) string {
	if k == num.KindBig {
		return GridSlicesBigInt
	}
	return GridSlicesInt64
}

// Entries is a snapshot payload keyed by tag.
type Entries map[string][]byte

// GridType returns the grid implementation tag, which identifies the
// variant that wrote the entries.
func (e Entries) GridType() (string, error) {
	var t string
	if err := e.decode(TagGridImplementationType, &t); err != nil {
		return "", err
	}
	return t, nil
}

// Dimension returns the lattice dimension recorded in the entries.
func (e Entries) Dimension() (int, error) {
	d, err := e.int64(TagGridDimension)
	if err != nil {
		return 0, err
	}
	return int(d), nil
}

// ExpectDimension rejects entries recorded for a lattice other than dim.
func (e Entries) ExpectDimension(dim int) error {
	got, err := e.Dimension()
	if err != nil {
		return err
	}
	return expectDimension(got, dim)
}

func expectDimension(got, want int) error {
	if got == want {
		return nil
	}
	return &Error{
		Code:     ErrCodeIncompatible,
		Tag:      TagGridDimension,
		Expected: strconv.Itoa(want),
		Actual:   strconv.Itoa(got),
	}
}

func (e Entries) put(tag string, v any) error {
	data, err := record.MarshalCanonical(v)
	if err != nil {
		return fmt.Errorf("snapshot: encode %s: %w", tag, err)
	}
	e[tag] = data
	return nil
}

func (e Entries) raw(tag string) ([]byte, error) {
	data, ok := e[tag]
	if !ok {
		return nil, &Error{Code: ErrCodeMissingTag, Tag: tag}
	}
	return data, nil
}

func (e Entries) decode(tag string, v any) error {
	data, err := e.raw(tag)
	if err != nil {
		return err
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(v); err != nil {
		return corrupt(tag, err)
	}
	return nil
}

// expect checks that a string tag holds exactly want.
func (e Entries) expect(tag, want string) error {
	var got string
	if err := e.decode(tag, &got); err != nil {
		if IsCorrupt(err) {
			return &Error{Code: ErrCodeIncompatible, Tag: tag, Expected: want, Actual: string(e[tag])}
		}
		return err
	}
	if got != want {
		return &Error{Code: ErrCodeIncompatible, Tag: tag, Expected: want, Actual: got}
	}
	return nil
}

func (e Entries) int64(tag string) (int64, error) {
	var n json.Number
	if err := e.decode(tag, &n); err != nil {
		return 0, err
	}
	v, err := n.Int64()
	if err != nil {
		return 0, corrupt(tag, err)
	}
	return v, nil
}

// optionalBool returns the flag and whether the tag was present.
func (e Entries) optionalBool(tag string) (bool, bool, error) {
	if _, ok := e[tag]; !ok {
		return false, false, nil
	}
	var v bool
	if err := e.decode(tag, &v); err != nil {
		return false, true, err
	}
	return v, true, nil
}

// appendBits packs flags after a uvarint count, least significant bit
// first.
func appendBits(dst []byte, flags []bool) []byte {
	dst = binary.AppendUvarint(dst, uint64(len(flags)))
	packed := make([]byte, (len(flags)+7)/8)
	for i, f := range flags {
		if f {
			packed[i/8] |= 1 << (i % 8)
		}
	}
	return append(dst, packed...)
}

func decodeBits(b []byte) ([]bool, error) {
	n, k := binary.Uvarint(b)
	if k <= 0 {
		return nil, errors.New("bad bitset length")
	}
	b = b[k:]
	if uint64(len(b)) != (n+7)/8 {
		return nil, fmt.Errorf("bitset of %d flags has %d bytes", n, len(b))
	}
	flags := make([]bool, n)
	for i := range flags {
		flags[i] = b[i/8]&(1<<(i%8)) != 0
	}
	return flags, nil
}
