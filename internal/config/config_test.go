package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestApplyDefaultsFillsDeviceFromCommon(t *testing.T) {
	cfg := &GencamConfig{
		Common: CommonConfig{
			Interface:      "eth0",
			RequestTimeout: 250 * time.Millisecond,
		},
		Devices: []*DeviceConfig{
			{Name: "cam0"},
		},
	}

	ApplyDefaults(cfg)

	dev := cfg.Devices[0]
	assert.Equal(t, "eth0", dev.Interface)
	assert.Equal(t, 250*time.Millisecond, dev.RequestTimeout)
	assert.Equal(t, 4, dev.MaxAttempts, "package default should fill what common leaves unset")
	assert.Equal(t, 50*time.Millisecond, dev.GVSP.BlockDeadline)
	assert.Equal(t, "info", cfg.Logger.Level)
}

func TestApplyDefaultsDoesNotOverrideExplicitDeviceValues(t *testing.T) {
	cfg := &GencamConfig{
		Common: CommonConfig{RequestTimeout: 250 * time.Millisecond},
		Devices: []*DeviceConfig{
			{Name: "cam0", RequestTimeout: 900 * time.Millisecond},
		},
	}

	ApplyDefaults(cfg)

	assert.Equal(t, 900*time.Millisecond, cfg.Devices[0].RequestTimeout)
}
