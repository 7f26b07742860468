package events

import (
	"encoding/binary"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"gencam.dev/gencam/pkg/timesync"
)

func buildEventDatagram(eventID, notificationID uint16, deviceTime uint64, streamChannel, blockID uint16, payload []byte) []byte {
	body := make([]byte, eventBodyFixedLen+len(payload))
	binary.BigEndian.PutUint16(body[0:2], eventID)
	binary.BigEndian.PutUint16(body[2:4], notificationID)
	binary.BigEndian.PutUint64(body[4:12], deviceTime)
	binary.BigEndian.PutUint16(body[12:14], streamChannel)
	binary.BigEndian.PutUint16(body[14:16], blockID)
	binary.BigEndian.PutUint16(body[16:18], uint16(len(payload)))
	copy(body[eventBodyFixedLen:], payload)

	buf := make([]byte, headerLen+len(body))
	binary.BigEndian.PutUint16(buf[2:4], OpEventCmd)
	binary.BigEndian.PutUint16(buf[4:6], uint16(len(body)))
	copy(buf[headerLen:], body)
	return buf
}

func TestDecodeWellFormedEvent(t *testing.T) {
	s := &EventSocket{}
	datagram := buildEventDatagram(7, 1, 123456, 0, 9, []byte{0xAA, 0xBB})
	ev, ok := s.decode(datagram)
	require.True(t, ok)
	require.EqualValues(t, 7, ev.EventID)
	require.EqualValues(t, 123456, ev.DeviceTime)
	require.EqualValues(t, 9, ev.BlockID)
	require.Equal(t, []byte{0xAA, 0xBB}, ev.Payload)
	require.True(t, ev.HostTime.IsZero())
}

func TestDecodeWithTimeMapper(t *testing.T) {
	m := timesync.NewMapper()
	now := time.Now()
	m.Insert(0, now)
	m.Insert(1_000_000, now.Add(time.Second))

	s := &EventSocket{mapper: m}
	datagram := buildEventDatagram(1, 1, 500_000, 0, 0, nil)
	ev, ok := s.decode(datagram)
	require.True(t, ok)
	require.False(t, ev.HostTime.IsZero())
}

func TestDecodeRejectsWrongOpcode(t *testing.T) {
	s := &EventSocket{}
	datagram := buildEventDatagram(1, 1, 0, 0, 0, nil)
	binary.BigEndian.PutUint16(datagram[2:4], 0x1234)
	_, ok := s.decode(datagram)
	require.False(t, ok)
}

func TestDecodeRejectsTruncated(t *testing.T) {
	s := &EventSocket{}
	_, ok := s.decode(make([]byte, 5))
	require.False(t, ok)
}
