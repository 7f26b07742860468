package cmd

import (
	"context"
	"fmt"

	"gencam.dev/gencam"
	"gencam.dev/gencam/internal/config"
)

// deviceConfigFromFlags builds a single DeviceConfig from the root
// command's persistent flags, then runs it through the same
// defaulting pass internal/config.Load applies to file-based configs.
func deviceConfigFromFlags() config.DeviceConfig {
	dev := &config.DeviceConfig{
		Address:        deviceAddress,
		Interface:      ifaceName,
		RequestTimeout: controlTimeout,
	}
	cfg := config.GencamConfig{Devices: []*config.DeviceConfig{dev}}
	config.ApplyDefaults(&cfg)
	return *dev
}

// openDevice opens a control channel and builds the node map for the
// device named by --address, per spec.md §6's device-config flow.
func openDevice(ctx context.Context) (*gencam.Device, error) {
	if deviceAddress == "" {
		return nil, fmt.Errorf("--address is required")
	}
	return gencam.Open(ctx, deviceConfigFromFlags())
}
