// Package stats holds atomic counters for the control, streaming,
// event and time-mapping subsystems, updated with fetch_add and read
// with relaxed snapshots (spec.md §5). Grounded on
// original_source/crates/tl-gige/src/stats.rs.
package stats

import "go.uber.org/atomic"

// StreamStats counts GVSP reassembly outcomes for one stream channel.
type StreamStats struct {
	PacketsReceived   atomic.Uint64
	FramesCompleted   atomic.Uint64
	FramesExpired     atomic.Uint64
	FramesSuperseded  atomic.Uint64
	FramesDropped     atomic.Uint64
	ResendsIssued     atomic.Uint64
	ResendsExhausted  atomic.Uint64
	BackpressureDrops atomic.Uint64
}

// StreamSnapshot is a point-in-time copy of StreamStats.
type StreamSnapshot struct {
	PacketsReceived   uint64
	FramesCompleted   uint64
	FramesExpired     uint64
	FramesSuperseded  uint64
	FramesDropped     uint64
	ResendsIssued     uint64
	ResendsExhausted  uint64
	BackpressureDrops uint64
}

// Snapshot reads every counter with a relaxed load.
func (s *StreamStats) Snapshot() StreamSnapshot {
	return StreamSnapshot{
		PacketsReceived:   s.PacketsReceived.Load(),
		FramesCompleted:   s.FramesCompleted.Load(),
		FramesExpired:     s.FramesExpired.Load(),
		FramesSuperseded:  s.FramesSuperseded.Load(),
		FramesDropped:     s.FramesDropped.Load(),
		ResendsIssued:     s.ResendsIssued.Load(),
		ResendsExhausted:  s.ResendsExhausted.Load(),
		BackpressureDrops: s.BackpressureDrops.Load(),
	}
}

// ControlStats counts GVCP transaction outcomes for one device.
type ControlStats struct {
	Requests   atomic.Uint64
	Retries    atomic.Uint64
	Timeouts   atomic.Uint64
	Failures   atomic.Uint64
	DeviceBusy atomic.Uint64
}

// ControlSnapshot is a point-in-time copy of ControlStats.
type ControlSnapshot struct {
	Requests   uint64
	Retries    uint64
	Timeouts   uint64
	Failures   uint64
	DeviceBusy uint64
}

// Snapshot reads every counter with a relaxed load.
func (s *ControlStats) Snapshot() ControlSnapshot {
	return ControlSnapshot{
		Requests:   s.Requests.Load(),
		Retries:    s.Retries.Load(),
		Timeouts:   s.Timeouts.Load(),
		Failures:   s.Failures.Load(),
		DeviceBusy: s.DeviceBusy.Load(),
	}
}

// EventStats counts event-channel traffic.
type EventStats struct {
	Received  atomic.Uint64
	Malformed atomic.Uint64
}

// ActionStats counts broadcast action-command outcomes.
type ActionStats struct {
	Sent         atomic.Uint64
	AcksReceived atomic.Uint64
}

// TimeStats counts time-mapper calibration activity.
type TimeStats struct {
	Samples   atomic.Uint64
	Dropped   atomic.Uint64
	Clamped   atomic.Uint64
}
