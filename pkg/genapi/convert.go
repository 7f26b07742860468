package genapi

import "gencam.dev/gencam/pkg/bitops"

// signExtend widens an unsigned value of the given bit width to a
// signed int64, interpreting the top bit as the sign.
func signExtend(value uint64, bits uint16) int64 {
	if bits == 0 || bits >= 64 {
		return int64(value)
	}
	signBit := uint64(1) << (bits - 1)
	if value&signBit != 0 {
		return int64(value) - int64(1<<bits)
	}
	return int64(value)
}

func maskFor(bits uint16) uint64 {
	if bits >= 64 {
		return ^uint64(0)
	}
	return (uint64(1) << bits) - 1
}

// bytesToSignedBE interprets payload as a big-endian signed integer,
// sign-extended to int64 — the non-bitfield integer decode path of
// spec.md §4.3.1 step 6.
func bytesToSignedBE(payload []byte) (int64, error) {
	v, err := bitops.Extract(payload, bitops.Field{BitOffset: 0, BitLength: uint16(len(payload)) * 8, ByteOrder: bitops.BigEndian})
	if err != nil {
		return 0, err
	}
	return signExtend(v, uint16(len(payload))*8), nil
}

// signedToBytesBE is the inverse of bytesToSignedBE, verifying the
// value round-trips exactly within length bytes (spec.md §4.3.2 step 4).
func signedToBytesBE(value int64, length uint32) ([]byte, error) {
	payload := make([]byte, length)
	bits := uint16(length) * 8
	mask := maskFor(bits)
	encoded := uint64(value) & mask
	if err := bitops.Insert(payload, bitops.Field{BitOffset: 0, BitLength: bits, ByteOrder: bitops.BigEndian}, encoded); err != nil {
		return nil, err
	}
	if signExtend(encoded, bits) != value {
		return nil, &Error{Kind: ErrValueTooWide, Msg: "value does not round-trip within declared length"}
	}
	return payload, nil
}
