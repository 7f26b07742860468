// Package timesync maps device tick counters onto host wall-clock
// time via a sliding-window linear regression recomputed on each
// calibration sample. Grounded on
// original_source/crates/tl-gige/src/time.rs and spec.md §4.6.
package timesync

import (
	"context"
	"math"
	"time"
)

// WindowSize bounds how many (ticks, host_instant) samples the
// regression considers; the oldest sample is dropped first.
const WindowSize = 32

type sample struct {
	ticks   float64
	instant float64 // seconds since the anchor's host_instant
}

// Mapper maintains the regression state and the anchor pair that
// calibration samples are measured relative to.
type Mapper struct {
	samples []sample

	anchored     bool
	anchorTicks  uint64
	anchorHost   time.Time
	anchorSystem time.Time

	a, b float64 // host_seconds = a*ticks + b, relative to the anchor
}

// NewMapper creates an empty mapper.
func NewMapper() *Mapper {
	return &Mapper{}
}

// Insert adds a (deviceTicks, hostInstant) calibration pair and
// recomputes the linear fit via closed-form least squares. The first
// insertion establishes the anchor.
func (m *Mapper) Insert(deviceTicks uint64, hostInstant time.Time) {
	if !m.anchored {
		m.anchored = true
		m.anchorTicks = deviceTicks
		m.anchorHost = hostInstant
		m.anchorSystem = hostInstant
	}

	s := sample{
		ticks:   float64(deviceTicks - m.anchorTicks),
		instant: hostInstant.Sub(m.anchorHost).Seconds(),
	}
	m.samples = append(m.samples, s)
	if len(m.samples) > WindowSize {
		m.samples = m.samples[1:]
	}
	m.recompute()
}

// recompute fits host_seconds = a*ticks + b over the current window
// using the closed-form least-squares solution.
func (m *Mapper) recompute() {
	n := float64(len(m.samples))
	if n == 0 {
		m.a, m.b = 0, 0
		return
	}
	if n == 1 {
		m.a = 0
		m.b = m.samples[0].instant
		return
	}

	var sumX, sumY, sumXY, sumXX float64
	for _, s := range m.samples {
		sumX += s.ticks
		sumY += s.instant
		sumXY += s.ticks * s.instant
		sumXX += s.ticks * s.ticks
	}
	denom := n*sumXX - sumX*sumX
	if denom == 0 {
		m.a = 0
		m.b = sumY / n
		return
	}
	m.a = (n*sumXY - sumX*sumY) / denom
	m.b = (sumY - m.a*sumX) / n
}

// ToHostTime maps a device tick value to host wall-clock time,
// clamping negative or non-finite results to the anchor (spec.md
// §4.6).
func (m *Mapper) ToHostTime(ticks uint64) time.Time {
	if !m.anchored {
		return time.Time{}
	}
	relTicks := float64(ticks) - float64(m.anchorTicks)
	offsetSeconds := m.a*relTicks + m.b
	if math.IsNaN(offsetSeconds) || math.IsInf(offsetSeconds, 0) || offsetSeconds < 0 {
		return m.anchorSystem
	}
	return m.anchorSystem.Add(time.Duration(offsetSeconds * float64(time.Second)))
}

// Coefficients exposes the current fit, for tests and diagnostics.
func (m *Mapper) Coefficients() (a, b float64) {
	return m.a, m.b
}

// SampleCount reports how many calibration samples are in the window.
func (m *Mapper) SampleCount() int {
	return len(m.samples)
}

// TickSource latches the device's free-running timestamp counter and
// returns its current value, satisfied by *gvcp.Device.
type TickSource interface {
	LatchTimestamp(ctx context.Context) (uint64, error)
}

// CalibrateOnce performs one latch/read/sample/insert cycle against
// src and inserts the result into m (spec.md §4.6).
func CalibrateOnce(ctx context.Context, m *Mapper, src TickSource, now time.Time) error {
	ticks, err := src.LatchTimestamp(ctx)
	if err != nil {
		return err
	}
	m.Insert(ticks, now)
	return nil
}

// Run calls CalibrateOnce on a fixed interval until ctx is cancelled.
func Run(ctx context.Context, m *Mapper, src TickSource, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			_ = CalibrateOnce(ctx, m, src, now)
		}
	}
}
