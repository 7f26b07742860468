// Package gvsp implements the GigE Vision Streaming Protocol
// reassembler: a zero-copy block reassembly engine turning
// leader/payload/trailer UDP packets into complete image frames, a
// packet bitmap tracking what's missing, a resend planner coalescing
// gaps into bounded-retry requests, and a backpressure-aware bounded
// completion queue. Grounded on
// original_source/crates/tl-gige/src/gvsp.rs and spec.md §4.5.
package gvsp

import (
	"encoding/binary"
	"fmt"
)

// PacketFormat is the lower byte of the header's status field.
type PacketFormat uint8

const (
	FormatLeader  PacketFormat = 0x01
	FormatPayload PacketFormat = 0x02
	FormatTrailer PacketFormat = 0x03
)

func (f PacketFormat) String() string {
	switch f {
	case FormatLeader:
		return "Leader"
	case FormatPayload:
		return "Payload"
	case FormatTrailer:
		return "Trailer"
	default:
		return fmt.Sprintf("Format(0x%02x)", uint8(f))
	}
}

// PixelFormatImage is the leader payload-type value required by
// spec.md §4.5.1 ("payload type must equal 0x01 (image)").
const PixelFormatImage = 0x01

// HeaderSize is the fixed 8-byte GVSP packet header.
const HeaderSize = 8

// PacketHeader is the common framing of every GVSP datagram.
type PacketHeader struct {
	Status   uint16
	BlockID  uint16
	PacketID uint16
}

func (h PacketHeader) Format() PacketFormat {
	return PacketFormat(h.Status & 0xFF)
}

func (h PacketHeader) PayloadTypeHigh() uint8 {
	return uint8(h.Status >> 8)
}

// ParsePacket splits buf into its header and remaining payload.
func ParsePacket(buf []byte) (PacketHeader, []byte, error) {
	if len(buf) < HeaderSize {
		return PacketHeader{}, nil, fmt.Errorf("gvsp: packet truncated (%d bytes)", len(buf))
	}
	h := PacketHeader{
		Status:   binary.BigEndian.Uint16(buf[0:2]),
		BlockID:  binary.BigEndian.Uint16(buf[2:4]),
		PacketID: binary.BigEndian.Uint16(buf[4:6]),
	}
	return h, buf[HeaderSize:], nil
}

// LeaderPayload carries frame metadata (spec.md §4.5.1).
type LeaderPayload struct {
	Timestamp   uint64
	Width       uint32
	Height      uint32
	PixelFormat uint32
}

const leaderPayloadLen = 8 + 4 + 4 + 4

// ParseLeaderPayload decodes a Leader's body; payloadType must equal
// PixelFormatImage per spec.md §4.5.1.
func ParseLeaderPayload(payloadType uint8, body []byte) (LeaderPayload, error) {
	if payloadType != PixelFormatImage {
		return LeaderPayload{}, fmt.Errorf("gvsp: leader payload type 0x%02x is not image", payloadType)
	}
	if len(body) < leaderPayloadLen {
		return LeaderPayload{}, fmt.Errorf("gvsp: leader payload truncated")
	}
	return LeaderPayload{
		Timestamp:   binary.BigEndian.Uint64(body[0:8]),
		Width:       binary.BigEndian.Uint32(body[8:12]),
		Height:      binary.BigEndian.Uint32(body[12:16]),
		PixelFormat: binary.BigEndian.Uint32(body[16:20]),
	}, nil
}

// TrailerPayload carries the block's final status and any trailing
// chunk bytes (spec.md §4.5.1).
type TrailerPayload struct {
	Status    uint16
	ChunkData []byte
}

// ParseTrailerPayload decodes a Trailer's body.
func ParseTrailerPayload(body []byte) (TrailerPayload, error) {
	if len(body) < 2 {
		return TrailerPayload{}, fmt.Errorf("gvsp: trailer payload truncated")
	}
	return TrailerPayload{
		Status:    binary.BigEndian.Uint16(body[0:2]),
		ChunkData: body[2:],
	}, nil
}
