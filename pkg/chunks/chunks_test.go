package chunks

import (
	"encoding/binary"
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func entry(id uint16, data []byte) []byte {
	buf := make([]byte, 8+len(data))
	binary.BigEndian.PutUint16(buf[0:2], id)
	binary.BigEndian.PutUint32(buf[4:8], uint32(len(data)))
	copy(buf[8:], data)
	return buf
}

func le64(v uint64) []byte {
	b := make([]byte, 8)
	binary.LittleEndian.PutUint64(b, v)
	return b
}

func leFloat(v float64) []byte {
	return le64(math.Float64bits(v))
}

func TestDecodeKnownChunks(t *testing.T) {
	var buf []byte
	buf = append(buf, entry(IDTimestamp, le64(123456789))...)
	buf = append(buf, entry(IDExposureTime, leFloat(16.5))...)
	buf = append(buf, entry(IDGain, leFloat(2.25))...)
	buf = append(buf, entry(IDLineStatus, []byte{0x01, 0x00, 0x00, 0x00})...)
	buf = append(buf, entry(0x9999, []byte{0xAA, 0xBB})...)

	set, err := Decode(buf)
	require.NoError(t, err)
	require.NotNil(t, set.Timestamp)
	require.EqualValues(t, 123456789, *set.Timestamp)
	require.NotNil(t, set.ExposureTime)
	require.InDelta(t, 16.5, float64(*set.ExposureTime), 1e-9)
	require.NotNil(t, set.Gain)
	require.InDelta(t, 2.25, float64(*set.Gain), 1e-9)
	require.NotNil(t, set.LineStatus)
	require.EqualValues(t, 1, *set.LineStatus)
	require.Equal(t, []byte{0xAA, 0xBB}, set.Unknown[0x9999])
}

func TestDecodeInvalidLengthSkipsEntry(t *testing.T) {
	var buf []byte
	buf = append(buf, entry(IDTimestamp, []byte{0x01, 0x02, 0x03})...) // wrong length
	buf = append(buf, entry(IDGain, leFloat(1.0))...)

	set, err := Decode(buf)
	require.NoError(t, err)
	require.Nil(t, set.Timestamp)
	require.NotNil(t, set.Gain)
}

func TestDecodeTruncatedHeaderIsFatal(t *testing.T) {
	_, err := Decode([]byte{0x00, 0x01, 0x00})
	require.Error(t, err)
}
