package gencam

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"gencam.dev/gencam/pkg/gvsp"
	"gencam.dev/gencam/pkg/timesync"
)

func TestNewFrame_CopiesFields(t *testing.T) {
	cf := gvsp.CompletedFrame{
		BlockID:     7,
		Timestamp:   1000,
		Width:       640,
		Height:      480,
		PixelFormat: 0x01080001,
		Data:        []byte{1, 2, 3},
	}

	f := newFrame(cf, nil)

	assert.Equal(t, cf.BlockID, f.BlockID)
	assert.Equal(t, cf.Width, f.Width)
	assert.Equal(t, cf.Height, f.Height)
	assert.Equal(t, cf.PixelFormat, f.PixelFormatCode)
	assert.Equal(t, cf.Data, f.Payload)
	assert.Equal(t, cf.Timestamp, f.DeviceTimestamp)
	assert.True(t, f.HostTimestamp.IsZero(), "no mapper means no host timestamp")
}

func TestNewFrame_ResolvesHostTimestampWhenCalibrated(t *testing.T) {
	mapper := timesync.NewMapper()
	anchor := time.Now()
	mapper.Insert(1000, anchor)
	mapper.Insert(2000, anchor.Add(time.Second))

	cf := gvsp.CompletedFrame{BlockID: 1, Timestamp: 1500}
	f := newFrame(cf, mapper)

	assert.False(t, f.HostTimestamp.IsZero())
	assert.WithinDuration(t, anchor.Add(500*time.Millisecond), f.HostTimestamp, 50*time.Millisecond)
}

func TestNewFrame_SkipsHostTimestampWhenUncalibrated(t *testing.T) {
	mapper := timesync.NewMapper()
	cf := gvsp.CompletedFrame{BlockID: 1, Timestamp: 42}

	f := newFrame(cf, mapper)

	assert.True(t, f.HostTimestamp.IsZero())
}
