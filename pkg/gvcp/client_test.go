package gvcp

import (
	"context"
	"encoding/binary"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// fakeDevice emulates a GVCP control endpoint backed by an in-memory
// register file, honoring ReadMem/WriteMem chunking and echoing
// request ids (spec.md §8 scenario 4).
type fakeDevice struct {
	conn *net.UDPConn
	regs map[uint64][]byte
	stop chan struct{}
}

func newFakeDevice(t *testing.T) (*fakeDevice, string) {
	t.Helper()
	conn, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.ParseIP("127.0.0.1")})
	require.NoError(t, err)
	fd := &fakeDevice{conn: conn, regs: make(map[uint64][]byte), stop: make(chan struct{})}
	go fd.serve()
	return fd, conn.LocalAddr().(*net.UDPAddr).String()
}

func (fd *fakeDevice) close() {
	close(fd.stop)
	fd.conn.Close()
}

func (fd *fakeDevice) serve() {
	buf := make([]byte, 4096)
	for {
		n, addr, err := fd.conn.ReadFromUDP(buf)
		if err != nil {
			select {
			case <-fd.stop:
				return
			default:
				continue
			}
		}
		fd.handle(buf[:n], addr)
	}
}

func (fd *fakeDevice) handle(buf []byte, from *net.UDPAddr) {
	if len(buf) < HeaderSize {
		return
	}
	flags := binary.BigEndian.Uint16(buf[0:2])
	command := binary.BigEndian.Uint16(buf[2:4])
	length := binary.BigEndian.Uint16(buf[4:6])
	requestID := binary.BigEndian.Uint16(buf[6:8])
	_ = flags
	payload := buf[HeaderSize : HeaderSize+int(length)]

	switch command {
	case OpReadMemCmd:
		addr := binary.BigEndian.Uint64(payload[0:8])
		count := binary.BigEndian.Uint32(payload[8:12])
		data := fd.readBytes(addr, int(count))
		fd.reply(OpReadMemAck, requestID, StatusSuccess, data, from)
	case OpWriteMemCmd:
		addr := binary.BigEndian.Uint64(payload[0:8])
		fd.writeBytes(addr, payload[8:])
		fd.reply(OpWriteMemAck, requestID, StatusSuccess, nil, from)
	case OpPacketResendCmd:
		fd.reply(OpPacketResendAck, requestID, StatusSuccess, nil, from)
	}
}

func (fd *fakeDevice) reply(command, requestID uint16, status StatusCode, body []byte, to *net.UDPAddr) {
	ack := AckHeader{Status: status, Command: command, Length: uint16(len(body)), RequestID: requestID}
	buf := make([]byte, HeaderSize+len(body))
	binary.BigEndian.PutUint16(buf[0:2], uint16(ack.Status))
	binary.BigEndian.PutUint16(buf[2:4], ack.Command)
	binary.BigEndian.PutUint16(buf[4:6], ack.Length)
	binary.BigEndian.PutUint16(buf[6:8], ack.RequestID)
	copy(buf[8:], body)
	fd.conn.WriteToUDP(buf, to)
}

func (fd *fakeDevice) readBytes(addr uint64, n int) []byte {
	out := make([]byte, n)
	for i := 0; i < n; i++ {
		b, ok := fd.regs[addr+uint64(i)]
		if ok && len(b) > 0 {
			out[i] = b[0]
		}
	}
	return out
}

func (fd *fakeDevice) writeBytes(addr uint64, data []byte) {
	for i, b := range data {
		fd.regs[addr+uint64(i)] = []byte{b}
	}
}

func dialFakeDevice(t *testing.T, addr string) *Device {
	t.Helper()
	remote, err := net.ResolveUDPAddr("udp4", addr)
	require.NoError(t, err)
	conn, err := net.ListenUDP("udp4", nil)
	require.NoError(t, err)

	d := &Device{
		conn:           conn,
		remote:         remote,
		controlTimeout: 200 * time.Millisecond,
		maxAttempts:    3,
		backoffBase:    5 * time.Millisecond,
		backoffCap:     4,
		jitterMax:      2 * time.Millisecond,
	}
	d.requestID.Store(1)
	return d
}

func TestReadMemWriteMemChunked(t *testing.T) {
	fd, addr := newFakeDevice(t)
	defer fd.close()

	d := dialFakeDevice(t, addr)
	defer d.Close()

	data := make([]byte, GenCPMaxBlock+37)
	for i := range data {
		data[i] = byte(i % 251)
	}

	ctx := context.Background()
	require.NoError(t, d.WriteMem(ctx, 0x1000, data))

	got, err := d.ReadMem(ctx, 0x1000, len(data))
	require.NoError(t, err)
	require.Equal(t, data, got)
}

func TestRequestIDWrapsAndSkipsZero(t *testing.T) {
	d := &Device{}
	d.requestID.Store(0xFFFF)
	first := d.nextRequestID()
	require.NotEqual(t, uint16(0), first)
	second := d.nextRequestID()
	require.NotEqual(t, first, second)
}

func TestBackoffScheduleCapsMultiplier(t *testing.T) {
	d := &Device{backoffBase: 20 * time.Millisecond, backoffCap: 8, jitterMax: 0}
	require.Equal(t, 20*time.Millisecond, d.backoff(1))
	require.Equal(t, 40*time.Millisecond, d.backoff(2))
	require.Equal(t, 160*time.Millisecond, d.backoff(4))
	require.Equal(t, 160*time.Millisecond, d.backoff(6)) // capped at 8x base
}

func TestRequestResend(t *testing.T) {
	fd, addr := newFakeDevice(t)
	defer fd.close()

	d := dialFakeDevice(t, addr)
	defer d.Close()

	require.NoError(t, d.RequestResend(context.Background(), 42, 3, 7))
}
