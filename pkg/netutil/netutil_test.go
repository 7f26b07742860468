package netutil

import (
	"net"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBestPacketSizeRespectsHeaders(t *testing.T) {
	require.EqualValues(t, 1500-(14+20+8), BestPacketSize(1500))
}

func TestBestPacketSizeSaturatesAtZero(t *testing.T) {
	require.EqualValues(t, 0, BestPacketSize(10))
}

func TestBindUDPEphemeralPort(t *testing.T) {
	conn, err := BindUDP(nil, 0, true, DefaultRecvBufferBytes)
	require.NoError(t, err)
	defer conn.Close()
	require.NotEqual(t, 0, conn.LocalAddr().(*net.UDPAddr).Port)
}
