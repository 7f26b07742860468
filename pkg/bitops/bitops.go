// Package bitops extracts and inserts bitfields inside small byte
// payloads (GenICam register contents). Grounded on
// genapi-core/src/bitops.rs: little- or big-endian composition of a
// payload of 1..=8 bytes into a uint64 intermediate, masked and shifted
// to the declared bit range.
package bitops

import "fmt"

// ByteOrder selects how payload bytes compose into an integer before
// the bitfield is extracted.
type ByteOrder int

const (
	LittleEndian ByteOrder = iota
	BigEndian
)

// Field describes a contiguous bit range inside a register payload.
type Field struct {
	BitOffset uint16
	BitLength uint16
	ByteOrder ByteOrder
}

// Error kinds mirror BitOpsError in bitops.rs.
type ErrorKind int

const (
	ErrUnsupportedWidth ErrorKind = iota
	ErrUnsupportedLength
	ErrOutOfRange
	ErrValueTooWide
)

// Error is the error type returned by Extract/Insert.
type Error struct {
	Kind      ErrorKind
	Len       int
	BitOffset uint16
	BitLength uint16
	Value     uint64
}

func (e *Error) Error() string {
	switch e.Kind {
	case ErrUnsupportedWidth:
		return fmt.Sprintf("bitops: unsupported payload width %d", e.Len)
	case ErrUnsupportedLength:
		return fmt.Sprintf("bitops: unsupported bit length %d", e.BitLength)
	case ErrOutOfRange:
		return fmt.Sprintf("bitops: field offset=%d length=%d out of range for payload len=%d", e.BitOffset, e.BitLength, e.Len)
	case ErrValueTooWide:
		return fmt.Sprintf("bitops: value %d too wide for %d-bit field", e.Value, e.BitLength)
	default:
		return "bitops: error"
	}
}

func validateRange(payload []byte, f Field) error {
	if len(payload) == 0 || len(payload) > 8 {
		return &Error{Kind: ErrUnsupportedWidth, Len: len(payload)}
	}
	if f.BitLength == 0 || f.BitLength > 64 {
		return &Error{Kind: ErrUnsupportedLength, BitLength: f.BitLength}
	}
	totalBits := uint16(len(payload)) * 8
	if uint32(f.BitOffset)+uint32(f.BitLength) > uint32(totalBits) {
		return &Error{Kind: ErrOutOfRange, Len: len(payload), BitOffset: f.BitOffset, BitLength: f.BitLength}
	}
	return nil
}

// maskFor returns a mask of f.BitLength set bits, special-casing 64 to
// avoid an undefined 1<<64 shift.
func maskFor(bitLength uint16) uint64 {
	if bitLength == 64 {
		return ^uint64(0)
	}
	return (uint64(1) << bitLength) - 1
}

func composeLittle(payload []byte) uint64 {
	var v uint64
	for i := len(payload) - 1; i >= 0; i-- {
		v = (v << 8) | uint64(payload[i])
	}
	return v
}

func composeBig(payload []byte) uint64 {
	var v uint64
	for _, b := range payload {
		v = (v << 8) | uint64(b)
	}
	return v
}

// Extract returns the unsigned bitfield value of f within payload.
func Extract(payload []byte, f Field) (uint64, error) {
	if err := validateRange(payload, f); err != nil {
		return 0, err
	}
	mask := maskFor(f.BitLength)
	totalBits := uint16(len(payload)) * 8
	switch f.ByteOrder {
	case LittleEndian:
		composed := composeLittle(payload)
		return (composed >> f.BitOffset) & mask, nil
	case BigEndian:
		composed := composeBig(payload)
		shift := totalBits - f.BitOffset - f.BitLength
		return (composed >> shift) & mask, nil
	default:
		return 0, &Error{Kind: ErrUnsupportedLength, BitLength: f.BitLength}
	}
}

// Insert writes value (already masked to f.BitLength bits by the
// caller's encoding step) into payload in place, preserving bits
// outside the field.
func Insert(payload []byte, f Field, value uint64) error {
	if err := validateRange(payload, f); err != nil {
		return err
	}
	mask := maskFor(f.BitLength)
	if value > mask {
		return &Error{Kind: ErrValueTooWide, BitLength: f.BitLength, Value: value}
	}
	totalBits := uint16(len(payload)) * 8

	switch f.ByteOrder {
	case LittleEndian:
		composed := composeLittle(payload)
		composed = (composed &^ (mask << f.BitOffset)) | (value << f.BitOffset)
		for i := range payload {
			payload[i] = byte(composed >> (8 * uint(i)))
		}
	case BigEndian:
		composed := composeBig(payload)
		shift := totalBits - f.BitOffset - f.BitLength
		composed = (composed &^ (mask << shift)) | (value << shift)
		n := len(payload)
		for i := range payload {
			payload[n-1-i] = byte(composed >> (8 * uint(i)))
		}
	default:
		return &Error{Kind: ErrUnsupportedLength, BitLength: f.BitLength}
	}
	return nil
}
