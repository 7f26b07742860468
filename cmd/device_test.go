package cmd

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDeviceConfigFromFlags_AppliesDefaults(t *testing.T) {
	origAddr, origIface, origTimeout := deviceAddress, ifaceName, controlTimeout
	defer func() {
		deviceAddress, ifaceName, controlTimeout = origAddr, origIface, origTimeout
	}()

	deviceAddress = "192.168.1.10"
	ifaceName = "eth0"
	controlTimeout = 0

	cfg := deviceConfigFromFlags()

	assert.Equal(t, "192.168.1.10", cfg.Address)
	assert.Equal(t, "eth0", cfg.Interface)
	assert.NotZero(t, cfg.RequestTimeout, "ApplyDefaults should fill in a zero timeout")
}

func TestDeviceConfigFromFlags_PreservesExplicitTimeout(t *testing.T) {
	origAddr, origTimeout := deviceAddress, controlTimeout
	defer func() { deviceAddress, controlTimeout = origAddr, origTimeout }()

	deviceAddress = "192.168.1.10"
	controlTimeout = 2 * time.Second

	cfg := deviceConfigFromFlags()

	assert.Equal(t, 2*time.Second, cfg.RequestTimeout)
}

func TestOpenDevice_RequiresAddress(t *testing.T) {
	origAddr := deviceAddress
	defer func() { deviceAddress = origAddr }()
	deviceAddress = ""

	_, err := openDevice(context.Background())

	assert.ErrorContains(t, err, "--address")
}
