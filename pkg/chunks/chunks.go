// Package chunks decodes GVSP trailer chunk metadata: a stream of
// [id: u16_be, reserved: u16, length: u32_be, data: length bytes]
// entries, with known ids mapped to typed little-endian values.
// Grounded on original_source/crates/genicam/src/chunks.rs and
// spec.md §4.5.6.
package chunks

import (
	"encoding/binary"
	"fmt"
	"math"
)

// Known chunk ids (spec.md §4.5.6).
const (
	IDTimestamp    uint16 = 0x0001
	IDExposureTime uint16 = 0x1002
	IDGain         uint16 = 0x1003
	IDLineStatus   uint16 = 0x0201
)

const entryHeaderLen = 2 + 2 + 4

// InvalidLength is returned when a known chunk id's data is the wrong
// length for its decoded type.
type InvalidLength struct {
	ID       uint16
	Expected int
	Actual   int
}

func (e *InvalidLength) Error() string {
	return fmt.Sprintf("chunks: id 0x%04x expected %d bytes, got %d", e.ID, e.Expected, e.Actual)
}

// Timestamp, ExposureTime, Gain and LineStatusAll are the typed
// decodes of the known chunk ids.
type Timestamp uint64
type ExposureTime float64
type Gain float64
type LineStatusAll uint32

// Set is the decoded result of a chunk stream: known ids map to their
// typed Go value, unknown ids map to their raw bytes.
type Set struct {
	Timestamp     *Timestamp
	ExposureTime  *ExposureTime
	Gain          *Gain
	LineStatus    *LineStatusAll
	Unknown       map[uint16][]byte
}

// Decode parses buf as a sequence of chunk entries. A truncated entry
// header is a fatal error; a known-id body cut short by the end of buf
// yields *InvalidLength. A complete known-id entry whose length does
// not fit its type is skipped without aborting the remaining stream.
func Decode(buf []byte) (Set, error) {
	set := Set{Unknown: make(map[uint16][]byte)}
	offset := 0
	for offset < len(buf) {
		if len(buf)-offset < entryHeaderLen {
			return set, fmt.Errorf("chunks: chunk header truncated")
		}
		id := binary.BigEndian.Uint16(buf[offset : offset+2])
		length := binary.BigEndian.Uint32(buf[offset+4 : offset+8])
		offset += entryHeaderLen
		if len(buf)-offset < int(length) {
			switch id {
			case IDTimestamp, IDExposureTime, IDGain, IDLineStatus:
				return set, &InvalidLength{ID: id, Expected: int(length), Actual: len(buf) - offset}
			}
			return set, fmt.Errorf("chunks: chunk header truncated")
		}
		data := buf[offset : offset+int(length)]
		offset += int(length)

		if err := set.apply(id, data); err != nil {
			if _, ok := err.(*InvalidLength); ok {
				continue
			}
			return set, err
		}
	}
	return set, nil
}

func (s *Set) apply(id uint16, data []byte) error {
	switch id {
	case IDTimestamp:
		if len(data) != 8 {
			return &InvalidLength{ID: id, Expected: 8, Actual: len(data)}
		}
		v := Timestamp(binary.LittleEndian.Uint64(data))
		s.Timestamp = &v
	case IDExposureTime:
		if len(data) != 8 {
			return &InvalidLength{ID: id, Expected: 8, Actual: len(data)}
		}
		v := ExposureTime(math.Float64frombits(binary.LittleEndian.Uint64(data)))
		s.ExposureTime = &v
	case IDGain:
		if len(data) != 8 {
			return &InvalidLength{ID: id, Expected: 8, Actual: len(data)}
		}
		v := Gain(math.Float64frombits(binary.LittleEndian.Uint64(data)))
		s.Gain = &v
	case IDLineStatus:
		if len(data) != 4 {
			return &InvalidLength{ID: id, Expected: 4, Actual: len(data)}
		}
		v := LineStatusAll(binary.LittleEndian.Uint32(data))
		s.LineStatus = &v
	default:
		cp := make([]byte, len(data))
		copy(cp, data)
		s.Unknown[id] = cp
	}
	return nil
}
