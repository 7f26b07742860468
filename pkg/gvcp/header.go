package gvcp

import (
	"encoding/binary"
	"fmt"
)

// StatusCode is the device-reported status carried in an ack header.
type StatusCode uint16

const (
	StatusSuccess    StatusCode = 0x0000
	StatusDeviceBusy StatusCode = 0x0104
)

func (s StatusCode) String() string {
	switch s {
	case StatusSuccess:
		return "Success"
	case StatusDeviceBusy:
		return "DeviceBusy"
	default:
		return fmt.Sprintf("Status(0x%04x)", uint16(s))
	}
}

// RequestHeader is the 8-byte GVCP request header: flags, command,
// length, request_id, all big-endian (spec.md §4.4).
type RequestHeader struct {
	Flags     uint16
	Command   uint16
	Length    uint16
	RequestID uint16
}

// Encode serializes the header followed by payload.
func (h RequestHeader) Encode(payload []byte) []byte {
	buf := make([]byte, HeaderSize+len(payload))
	binary.BigEndian.PutUint16(buf[0:2], h.Flags)
	binary.BigEndian.PutUint16(buf[2:4], h.Command)
	binary.BigEndian.PutUint16(buf[4:6], h.Length)
	binary.BigEndian.PutUint16(buf[6:8], h.RequestID)
	copy(buf[8:], payload)
	return buf
}

// AckHeader is the 8-byte GVCP acknowledgement header: status in
// place of flags, otherwise the same layout.
type AckHeader struct {
	Status    StatusCode
	Command   uint16
	Length    uint16
	RequestID uint16
}

// DecodeAckHeader parses the first 8 bytes of buf as an AckHeader.
func DecodeAckHeader(buf []byte) (AckHeader, error) {
	if len(buf) < HeaderSize {
		return AckHeader{}, fmt.Errorf("gvcp: ack header truncated (%d bytes)", len(buf))
	}
	return AckHeader{
		Status:    StatusCode(binary.BigEndian.Uint16(buf[0:2])),
		Command:   binary.BigEndian.Uint16(buf[2:4]),
		Length:    binary.BigEndian.Uint16(buf[4:6]),
		RequestID: binary.BigEndian.Uint16(buf[6:8]),
	}, nil
}
