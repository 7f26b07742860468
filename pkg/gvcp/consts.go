// Package gvcp implements the GigE Vision Control Protocol: a
// reliable request/reply layer over UDP providing discovery, chunked
// register read/write with retry and backoff, stream/message channel
// configuration, packet-resend requests and action-command
// broadcasting. Grounded on
// original_source/crates/tl-gige/src/{gvcp,action}.rs and spec.md §4.4.
package gvcp

import "time"

// Port is the well-known GVCP control port (GigE Vision spec §7.3).
const Port = 3956

// Opcodes used by the control plane (spec.md §4.4, §6).
const (
	OpDiscoveryCommand uint16 = 0x0002
	OpDiscoveryAck     uint16 = 0x0003
	OpPacketResendCmd  uint16 = 0x0040
	OpPacketResendAck  uint16 = 0x0041
	OpActionCommand    uint16 = 0x0080
	OpActionAck        uint16 = 0x0081
)

// GenCP sub-protocol opcodes carrying ReadMem/WriteMem (spec.md §6).
const (
	OpReadMemCmd   uint16 = 0x0084
	OpReadMemAck   uint16 = 0x0085
	OpWriteMemCmd  uint16 = 0x0086
	OpWriteMemAck  uint16 = 0x0087
)

// Request flag bits (spec.md §6's "values are contractual").
const (
	FlagAckRequired uint16 = 0x4000
	FlagBroadcast   uint16 = 0x0080
)

// Register map constants (spec.md §6, verbatim addresses).
const (
	RegMessageDestinationAddress uint64 = 0x0900_0200
	RegMessageDestinationPort    uint64 = 0x0900_0204
	RegEventNotificationBase     uint64 = 0x0900_0300
	RegEventNotificationStride   uint64 = 4

	RegTimestampControl      uint64 = 0x0900_0100
	RegTimestampValue        uint64 = 0x0900_0104
	RegTimestampTickFreq     uint64 = 0x0900_010C
	TimestampResetBit        uint32 = 0x1
	TimestampLatchBit        uint32 = 0x2

	RegStreamChannelBase   uint64 = 0x0900_0400
	RegStreamChannelStride uint64 = 0x40
	OffsetStreamHostIP     uint64 = 0x00
	OffsetStreamHostPort   uint64 = 0x04
	OffsetStreamPacketSize uint64 = 0x24
	OffsetStreamPacketDelay uint64 = 0x28
)

// Chunking limits (spec.md §4.4.2/§4.4.3).
const (
	GenCPMaxBlock       = 512
	GenCPWriteOverhead  = 8
	HeaderSize          = 8
)

// Timeouts and retry tuning (spec.md §4.4.4, §5), overridable per
// device via internal/config.
const (
	DefaultControlTimeout = 500 * time.Millisecond
	DefaultMaxAttempts    = 4
	DefaultBackoffBase    = 20 * time.Millisecond
	DefaultBackoffCap     = 8
	DefaultJitterMax      = 10 * time.Millisecond

	DiscoveryBufferSize = 2048
)
