package gvcp

import (
	"context"
	"encoding/binary"
	"math/rand"
	"net"
	"sync"
	"time"

	"github.com/tevino/abool"
	"go.uber.org/atomic"

	"gencam.dev/gencam/internal/log"
)

// Device is a control-channel connection to a single GigE Vision
// device. It implements genapi.RegisterIO so a NodeMap can read and
// write registers directly through it. Grounded on
// original_source/crates/tl-gige/src/gvcp.rs's Device/transact_with_retry.
type Device struct {
	conn   *net.UDPConn
	remote *net.UDPAddr

	requestID atomic.Uint32 // low 16 bits used; wraps, skips 0

	controlTimeout time.Duration
	maxAttempts    int
	backoffBase    time.Duration
	backoffCap     int
	jitterMax      time.Duration

	logger log.Logger

	mu     sync.Mutex // serializes transactions on the single control channel
	closed abool.AtomicBool
}

// Option configures a Device at Open time.
type Option func(*Device)

// WithTimeouts overrides the per-attempt timeout and retry schedule
// (defaults come from consts.go, matching internal/config.DeviceConfig).
func WithTimeouts(controlTimeout time.Duration, maxAttempts int, backoffBase time.Duration, backoffCap int, jitterMax time.Duration) Option {
	return func(d *Device) {
		d.controlTimeout = controlTimeout
		d.maxAttempts = maxAttempts
		d.backoffBase = backoffBase
		d.backoffCap = backoffCap
		d.jitterMax = jitterMax
	}
}

// WithLogger attaches a structured logger to the device.
func WithLogger(l log.Logger) Option {
	return func(d *Device) { d.logger = l }
}

// Open binds a local control socket and targets addr:Port.
func Open(ctx context.Context, addr string, opts ...Option) (*Device, error) {
	remote, err := net.ResolveUDPAddr("udp4", net.JoinHostPort(addr, "3956"))
	if err != nil {
		return nil, ioErr(err)
	}
	conn, err := net.ListenUDP("udp4", nil)
	if err != nil {
		return nil, ioErr(err)
	}
	d := &Device{
		conn:           conn,
		remote:         remote,
		controlTimeout: DefaultControlTimeout,
		maxAttempts:    DefaultMaxAttempts,
		backoffBase:    DefaultBackoffBase,
		backoffCap:     DefaultBackoffCap,
		jitterMax:      DefaultJitterMax,
		logger:         log.GetLogger(),
	}
	d.requestID.Store(1)
	for _, opt := range opts {
		opt(d)
	}
	return d, nil
}

// Close releases the control socket. Safe to call more than once; only
// the first call closes the underlying connection.
func (d *Device) Close() error {
	if !d.closed.SetToIf(false, true) {
		return nil
	}
	return d.conn.Close()
}

// Closed reports whether Close has already been called.
func (d *Device) Closed() bool {
	return d.closed.IsSet()
}

// nextRequestID returns a monotonically increasing request id,
// wrapping at 0xFFFF and skipping 0 (spec.md §4.4).
func (d *Device) nextRequestID() uint16 {
	for {
		v := d.requestID.Add(1)
		id := uint16(v)
		if id != 0 {
			return id
		}
		// wrapped onto zero; bump again to skip it
	}
}

// ackOpcodeFor returns the ack opcode a device replies with for
// command: every GVCP command/ack pair in consts.go differs only in
// the low bit (spec.md §4.4 step 4's opcode check).
func ackOpcodeFor(command uint16) uint16 {
	return command | 0x0001
}

// backoff computes the delay after failed attempt n (1-indexed), i.e.
// the wait before attempt n+1, per
// spec.md §4.4.4: base * min(2^(attempt-1), cap) + jitter[0, jitterMax).
func (d *Device) backoff(attempt int) time.Duration {
	shift := attempt - 1
	mult := 1
	for i := 0; i < shift && mult < d.backoffCap; i++ {
		mult *= 2
	}
	if mult > d.backoffCap {
		mult = d.backoffCap
	}
	delay := time.Duration(mult) * d.backoffBase
	if d.jitterMax > 0 {
		delay += time.Duration(rand.Int63n(int64(d.jitterMax)))
	}
	return delay
}

// transact sends payload under command and retries per the backoff
// schedule until an ack with a matching request id arrives, a
// non-busy error status is reported, or attempts are exhausted
// (spec.md §4.4.4 steps 1-6).
func (d *Device) transact(ctx context.Context, command uint16, flags uint16, payload []byte) (AckHeader, []byte, error) {
	if d.closed.IsSet() {
		return AckHeader{}, nil, protocolErr("control channel is closed")
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	requestID := d.nextRequestID()
	header := RequestHeader{Flags: flags | FlagAckRequired, Command: command, Length: uint16(len(payload)), RequestID: requestID}
	packet := header.Encode(payload)

	var lastErr error
	for attempt := 1; attempt <= d.maxAttempts; attempt++ {
		if attempt > 1 {
			select {
			case <-ctx.Done():
				return AckHeader{}, nil, ctx.Err()
			case <-time.After(d.backoff(attempt - 1)):
			}
		}

		if _, err := d.conn.WriteToUDP(packet, d.remote); err != nil {
			lastErr = ioErr(err)
			continue
		}
		if err := d.conn.SetReadDeadline(time.Now().Add(d.controlTimeout)); err != nil {
			lastErr = ioErr(err)
			continue
		}

		buf := make([]byte, GenCPMaxBlock+HeaderSize+64)
		n, err := d.conn.Read(buf)
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				lastErr = timeoutErr()
				d.logger.WithField("attempt", attempt).WithField("command", command).Debug("gvcp transaction timed out, retrying")
				continue
			}
			lastErr = ioErr(err)
			continue
		}

		ack, err := DecodeAckHeader(buf[:n])
		if err != nil {
			lastErr = err
			continue
		}
		if ack.RequestID != requestID {
			// reply to an earlier request: repeat this attempt (resend and
			// wait afresh) without counting it against maxAttempts
			attempt--
			continue
		}
		if ack.Command != ackOpcodeFor(command) {
			return ack, nil, protocolErr("unexpected ack opcode 0x%04x for command 0x%04x", ack.Command, command)
		}
		if ack.Status == StatusDeviceBusy {
			lastErr = statusErr(ack.Status)
			continue
		}
		if ack.Status != StatusSuccess {
			return ack, nil, statusErr(ack.Status)
		}

		body := buf[HeaderSize:n]
		if len(body) < int(ack.Length) {
			return ack, nil, protocolErr("ack body truncated: want %d have %d", ack.Length, len(body))
		}
		return ack, body[:ack.Length], nil
	}
	if lastErr == nil {
		lastErr = timeoutErr()
	}
	return AckHeader{}, nil, lastErr
}

// ReadMem reads length bytes at addr, chunking into GenCPMaxBlock-sized
// transactions (spec.md §4.4.2).
func (d *Device) ReadMem(ctx context.Context, addr uint64, length int) ([]byte, error) {
	out := make([]byte, 0, length)
	for remaining := length; remaining > 0; {
		chunk := remaining
		if chunk > GenCPMaxBlock {
			chunk = GenCPMaxBlock
		}
		offset := uint64(len(out))
		payload := make([]byte, 8)
		binary.BigEndian.PutUint64(payload, addr+offset)
		payload = append(payload, make([]byte, 4)...)
		binary.BigEndian.PutUint32(payload[8:12], uint32(chunk))

		_, body, err := d.transact(ctx, OpReadMemCmd, 0, payload)
		if err != nil {
			return nil, err
		}
		out = append(out, body...)
		remaining -= chunk
	}
	return out, nil
}

// WriteMem writes data at addr, chunking into (GenCPMaxBlock-GenCPWriteOverhead)
// byte transactions (spec.md §4.4.3).
func (d *Device) WriteMem(ctx context.Context, addr uint64, data []byte) error {
	maxPayload := GenCPMaxBlock - GenCPWriteOverhead
	written := 0
	for written < len(data) {
		chunk := len(data) - written
		if chunk > maxPayload {
			chunk = maxPayload
		}
		payload := make([]byte, 8+chunk)
		binary.BigEndian.PutUint64(payload[:8], addr+uint64(written))
		copy(payload[8:], data[written:written+chunk])

		if _, _, err := d.transact(ctx, OpWriteMemCmd, 0, payload); err != nil {
			return err
		}
		written += chunk
	}
	return nil
}

// Read implements genapi.RegisterIO.
func (d *Device) Read(ctx context.Context, address uint64, length uint32) ([]byte, error) {
	return d.ReadMem(ctx, address, int(length))
}

// Write implements genapi.RegisterIO.
func (d *Device) Write(ctx context.Context, address uint64, data []byte) error {
	return d.WriteMem(ctx, address, data)
}

// SetMessageDestination configures where the device sends event/message
// channel packets (spec.md §4.4.6).
func (d *Device) SetMessageDestination(ctx context.Context, ip net.IP, port uint16) error {
	ip4 := ip.To4()
	if ip4 == nil {
		return protocolErr("message destination must be IPv4")
	}
	if err := d.WriteMem(ctx, RegMessageDestinationAddress, ip4); err != nil {
		return err
	}
	portBytes := make([]byte, 4)
	binary.BigEndian.PutUint32(portBytes, uint32(port))
	return d.WriteMem(ctx, RegMessageDestinationPort, portBytes)
}

// EnableEvent sets or clears the notification bit for eventID in the
// per-32-event notification mask register (spec.md §4.4.6).
func (d *Device) EnableEvent(ctx context.Context, eventID uint32, enable bool) error {
	regIndex := uint64(eventID / 32)
	bit := eventID % 32
	addr := RegEventNotificationBase + regIndex*RegEventNotificationStride

	body, err := d.ReadMem(ctx, addr, 4)
	if err != nil {
		return err
	}
	mask := binary.BigEndian.Uint32(body)
	if enable {
		mask |= 1 << bit
	} else {
		mask &^= 1 << bit
	}
	out := make([]byte, 4)
	binary.BigEndian.PutUint32(out, mask)
	return d.WriteMem(ctx, addr, out)
}

// streamChannelAddr returns the register address of offset within
// stream channel index.
func streamChannelAddr(index int, offset uint64) uint64 {
	return RegStreamChannelBase + uint64(index)*RegStreamChannelStride + offset
}

// SetStreamDestination configures the host IP/port that stream channel
// index should deliver GVSP packets to (spec.md §4.4.5).
func (d *Device) SetStreamDestination(ctx context.Context, index int, ip net.IP, port uint16) error {
	ip4 := ip.To4()
	if ip4 == nil {
		return protocolErr("stream destination must be IPv4")
	}
	if err := d.WriteMem(ctx, streamChannelAddr(index, OffsetStreamHostIP), ip4); err != nil {
		return err
	}
	portBytes := make([]byte, 4)
	binary.BigEndian.PutUint32(portBytes, uint32(port))
	return d.WriteMem(ctx, streamChannelAddr(index, OffsetStreamHostPort), portBytes)
}

// SetStreamPacketSize sets the negotiated GVSP packet size for channel index.
func (d *Device) SetStreamPacketSize(ctx context.Context, index int, size uint32) error {
	out := make([]byte, 4)
	binary.BigEndian.PutUint32(out, size)
	return d.WriteMem(ctx, streamChannelAddr(index, OffsetStreamPacketSize), out)
}

// SetStreamPacketDelay sets the inter-packet delay (device ticks) for channel index.
func (d *Device) SetStreamPacketDelay(ctx context.Context, index int, delay uint32) error {
	out := make([]byte, 4)
	binary.BigEndian.PutUint32(out, delay)
	return d.WriteMem(ctx, streamChannelAddr(index, OffsetStreamPacketDelay), out)
}

// NegotiateStream configures destination, packet size and delay for a
// stream channel in one call, the sequence spec.md §4.4.5 requires
// before a GVSP reassembler starts listening.
func (d *Device) NegotiateStream(ctx context.Context, index int, ip net.IP, port uint16, packetSize, packetDelay uint32) error {
	if err := d.SetStreamDestination(ctx, index, ip, port); err != nil {
		return err
	}
	if err := d.SetStreamPacketSize(ctx, index, packetSize); err != nil {
		return err
	}
	return d.SetStreamPacketDelay(ctx, index, packetDelay)
}

// RequestResend asks the device to retransmit packets firstPacketID
// through lastPacketID (inclusive) of blockID (spec.md §4.4.7). Payload
// is `[block_id: u16, 0: u16, first_packet: u16, last_packet: u16]`;
// the ack carries no payload beyond the header.
func (d *Device) RequestResend(ctx context.Context, blockID uint16, firstPacketID, lastPacketID uint16) error {
	payload := make([]byte, 8)
	binary.BigEndian.PutUint16(payload[0:2], blockID)
	binary.BigEndian.PutUint16(payload[4:6], firstPacketID)
	binary.BigEndian.PutUint16(payload[6:8], lastPacketID)
	_, _, err := d.transact(ctx, OpPacketResendCmd, 0, payload)
	return err
}

// LatchTimestamp triggers the device to latch its free-running
// timestamp counter and returns the latched value (spec.md §4.5's
// calibration sample source).
func (d *Device) LatchTimestamp(ctx context.Context) (uint64, error) {
	latch := make([]byte, 4)
	binary.BigEndian.PutUint32(latch, TimestampLatchBit)
	if err := d.WriteMem(ctx, RegTimestampControl, latch); err != nil {
		return 0, err
	}
	body, err := d.ReadMem(ctx, RegTimestampValue, 8)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint64(body), nil
}

// TimestampTickFrequency reads the device's timestamp tick rate in Hz.
func (d *Device) TimestampTickFrequency(ctx context.Context) (uint64, error) {
	body, err := d.ReadMem(ctx, RegTimestampTickFreq, 8)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint64(body), nil
}
