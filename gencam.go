// Package gencam is the high-level façade over the three core GigE
// Vision subsystems: it opens a device's GVCP control channel, fetches
// and parses its XML register description (spec.md §6 "XML document
// location"), and builds the resulting node map. Stream, TimeMapper,
// and EventStream wrap the remaining subsystems around that handle.
// Grounded on original_source/crates/genicam/src/lib.rs.
package gencam

import (
	"context"
	"fmt"
	"time"

	uuid "github.com/satori/go.uuid"

	"gencam.dev/gencam/internal/config"
	"gencam.dev/gencam/internal/log"
	"gencam.dev/gencam/pkg/genapi"
	"gencam.dev/gencam/pkg/genxml"
	"gencam.dev/gencam/pkg/gvcp"
	"gencam.dev/gencam/pkg/timesync"
)

// Device is a high-level handle to one GigE Vision device: a GVCP
// control channel plus the node map built from its XML register
// description.
type Device struct {
	cfg     config.DeviceConfig
	control *gvcp.Device
	nodes   *genapi.NodeMap
	mapper  *timesync.Mapper
	logger  log.Logger
	id      uuid.UUID
}

// Open dials cfg.Address's control channel, fetches the device's XML
// register description from register 0x0, parses it, and builds the
// node map the caller will drive feature reads/writes through.
func Open(ctx context.Context, cfg config.DeviceConfig) (*Device, error) {
	control, err := gvcp.Open(ctx, cfg.Address,
		gvcp.WithTimeouts(cfg.RequestTimeout, cfg.MaxAttempts, cfg.BackoffBase, cfg.BackoffCap, cfg.JitterMax))
	if err != nil {
		return nil, fmt.Errorf("gencam: open control channel: %w", err)
	}

	id, err := uuid.NewV4()
	if err != nil {
		control.Close()
		return nil, fmt.Errorf("gencam: generate device correlation id: %w", err)
	}
	logger := log.GetLogger().WithField("device_id", id.String()).WithField("address", cfg.Address)

	doc, err := genxml.FetchDocument(ctx, control)
	if err != nil {
		control.Close()
		return nil, fmt.Errorf("gencam: fetch XML register description: %w", err)
	}
	model, err := genxml.Parse(doc)
	if err != nil {
		control.Close()
		return nil, fmt.Errorf("gencam: parse XML register description: %w", err)
	}

	nodes := genapi.New(model, control, logger)
	logger.WithField("node_count", len(model.Nodes)).Debug("gencam: node map built")

	return &Device{
		cfg:     cfg,
		control: control,
		nodes:   nodes,
		mapper:  timesync.NewMapper(),
		logger:  logger,
		id:      id,
	}, nil
}

// Close releases the control channel.
func (d *Device) Close() error {
	return d.control.Close()
}

// ID returns the device's per-session correlation id, threaded through
// every log field this device's subsystems emit.
func (d *Device) ID() string { return d.id.String() }

// Control exposes the underlying GVCP control channel for operations
// the façade does not wrap directly (action broadcast, raw ReadMem/
// WriteMem).
func (d *Device) Control() *gvcp.Device { return d.control }

// Nodes exposes the device's node map for feature reads/writes
// (spec.md §4.3).
func (d *Device) Nodes() *genapi.NodeMap { return d.nodes }

// TimeMapper exposes the device's device-tick-to-host-time mapper
// (spec.md §4.6).
func (d *Device) TimeMapper() *timesync.Mapper { return d.mapper }

// Calibrate drives n latch/read/sample rounds against the device's
// timestamp register, spaced interval apart, inserting each sample
// into the device's TimeMapper (spec.md §4.6's calibration protocol).
func (d *Device) Calibrate(ctx context.Context, n int, interval time.Duration) error {
	for i := 0; i < n; i++ {
		if err := timesync.CalibrateOnce(ctx, d.mapper, d.control, time.Now()); err != nil {
			return fmt.Errorf("gencam: calibrate round %d: %w", i, err)
		}
		if i < n-1 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(interval):
			}
		}
	}
	return nil
}
