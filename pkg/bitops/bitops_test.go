package bitops

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractLittleEndianAcrossBytes(t *testing.T) {
	payload := []byte{0xAA, 0xBB, 0xCC, 0xDD}
	v, err := Extract(payload, Field{BitOffset: 8, BitLength: 8, ByteOrder: LittleEndian})
	require.NoError(t, err)
	assert.Equal(t, uint64(0xBB), v)
}

func TestExtractBigEndianHighBits(t *testing.T) {
	payload := []byte{0b1010_0000, 0b0000_0000}
	v, err := Extract(payload, Field{BitOffset: 0, BitLength: 3, ByteOrder: BigEndian})
	require.NoError(t, err)
	assert.Equal(t, uint64(0b101), v)
}

func TestInsertRoundtripLittleEndian(t *testing.T) {
	payload := []byte{0xAA, 0xBB, 0xCC, 0xDD}
	f := Field{BitOffset: 8, BitLength: 8, ByteOrder: LittleEndian}
	require.NoError(t, Insert(payload, f, 0x55))
	assert.Equal(t, []byte{0xAA, 0x55, 0xCC, 0xDD}, payload)
	v, err := Extract(payload, f)
	require.NoError(t, err)
	assert.Equal(t, uint64(0x55), v)
}

func TestInsertRoundtripBigEndian(t *testing.T) {
	payload := []byte{0b1010_0000, 0b0000_0000}
	f := Field{BitOffset: 0, BitLength: 3, ByteOrder: BigEndian}
	require.NoError(t, Insert(payload, f, 0b010))
	assert.Equal(t, []byte{0b0100_0000, 0b0000_0000}, payload)
}

func TestInsertRejectsLargeValue(t *testing.T) {
	payload := []byte{0x00, 0x00}
	err := Insert(payload, Field{BitOffset: 13, BitLength: 3, ByteOrder: BigEndian}, 8)
	require.Error(t, err)
	var be *Error
	require.ErrorAs(t, err, &be)
	assert.Equal(t, ErrValueTooWide, be.Kind)
}

func TestBitfieldRoundtripProperty(t *testing.T) {
	cases := []struct {
		name string
		f    Field
		v    uint64
	}{
		{"le-full-byte", Field{0, 8, LittleEndian}, 0x7F},
		{"be-full-byte", Field{0, 8, BigEndian}, 0x7F},
		{"le-mid-field", Field{4, 4, LittleEndian}, 0x9},
		{"be-single-bit", Field{13, 1, BigEndian}, 1},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			payload := []byte{0x12, 0x34}
			require.NoError(t, Insert(payload, tc.f, tc.v))
			got, err := Extract(payload, tc.f)
			require.NoError(t, err)
			assert.Equal(t, tc.v, got)
		})
	}
}

func TestExtractRejectsOutOfRange(t *testing.T) {
	_, err := Extract([]byte{0x00}, Field{BitOffset: 4, BitLength: 8, ByteOrder: LittleEndian})
	require.Error(t, err)
	var be *Error
	require.ErrorAs(t, err, &be)
	assert.Equal(t, ErrOutOfRange, be.Kind)
}

func TestExtractRejectsUnsupportedWidth(t *testing.T) {
	_, err := Extract(nil, Field{BitOffset: 0, BitLength: 1, ByteOrder: LittleEndian})
	require.Error(t, err)
	var be *Error
	require.ErrorAs(t, err, &be)
	assert.Equal(t, ErrUnsupportedWidth, be.Kind)
}
