package gencam

import (
	"time"

	"gencam.dev/gencam/pkg/chunks"
	"gencam.dev/gencam/pkg/gvsp"
	"gencam.dev/gencam/pkg/timesync"
)

// Frame is a fully reassembled image, its decoded chunk metadata, and
// optional device/host timestamps (spec.md §3.4 "Completed frame").
// Payload bytes are handed back raw; pixel-format conversion and
// demosaicing remain out of scope (spec.md §1).
type Frame struct {
	BlockID         uint16
	Width           uint32
	Height          uint32
	PixelFormatCode uint32
	Payload         []byte
	Chunks          *chunks.Set
	DeviceTimestamp uint64
	HostTimestamp   time.Time
}

// newFrame lifts a gvsp.CompletedFrame into the façade's Frame,
// resolving the device timestamp to a host time via mapper when one
// has been calibrated.
func newFrame(cf gvsp.CompletedFrame, mapper *timesync.Mapper) *Frame {
	f := &Frame{
		BlockID:         cf.BlockID,
		Width:           cf.Width,
		Height:          cf.Height,
		PixelFormatCode: cf.PixelFormat,
		Payload:         cf.Data,
		Chunks:          cf.Chunks,
		DeviceTimestamp: cf.Timestamp,
	}
	if mapper != nil && mapper.SampleCount() > 0 {
		f.HostTimestamp = mapper.ToHostTime(cf.Timestamp)
	}
	return f
}
