package gencam

import (
	"context"
	"fmt"
	"net"
	"time"

	"gencam.dev/gencam/internal/config"
	"gencam.dev/gencam/pkg/gvsp"
	"gencam.dev/gencam/pkg/netutil"
	"gencam.dev/gencam/pkg/stats"
)

// Stream wraps stream-channel negotiation, a bound GVSP socket, and
// the reassembler draining it, grounded on
// original_source/crates/genicam/src/stream.rs.
type Stream struct {
	dev    *Device
	index  int
	reasm  *gvsp.Reassembler
	cancel context.CancelFunc
	done   chan struct{}
}

// OpenStream negotiates stream channel index to deliver packets to a
// socket bound on iface, then starts the reassembler loop in the
// background. dev's control channel doubles as the Resender that
// issues packet-resend requests for gaps (spec.md §4.4.5, §4.5).
func OpenStream(ctx context.Context, dev *Device, index int, iface netutil.Iface, cfg config.GVSPConfig) (*Stream, error) {
	reasmCfg := gvsp.Config{
		ResendMaxRange:     cfg.ResendMaxRange,
		ResendMaxRetries:   cfg.ResendMaxRetries,
		ResendBaseDelay:    cfg.ResendBaseDelay,
		ResendJitterMax:    10 * time.Millisecond,
		CompletionCapacity: cfg.CompletionCapacity,
	}
	reasm, err := gvsp.NewReassembler(net.JoinHostPort(iface.IPv4.String(), "0"), dev.control, reasmCfg)
	if err != nil {
		return nil, fmt.Errorf("gencam: bind GVSP socket: %w", err)
	}

	packetSize, packetDelay := negotiatePacketTiming(iface)
	localAddr := reasm.Addr()
	if err := dev.control.NegotiateStream(ctx, index, localAddr.IP, uint16(localAddr.Port), packetSize, packetDelay); err != nil {
		reasm.Close()
		return nil, fmt.Errorf("gencam: negotiate stream channel: %w", err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := reasm.Run(runCtx); err != nil && runCtx.Err() == nil {
			dev.logger.WithError(err).WithField("channel", index).Warn("gencam: stream reassembly loop exited")
		}
	}()

	return &Stream{dev: dev, index: index, reasm: reasm, cancel: cancel, done: done}, nil
}

// negotiatePacketTiming implements spec.md §4.4.5's Negotiate: the
// packet size is the largest GVSP payload that fits the link's MTU
// after Ethernet/IPv4/UDP overhead; the packet delay only kicks in
// below the jumbo-frame threshold.
func negotiatePacketTiming(iface netutil.Iface) (packetSize, packetDelay uint32) {
	mtu := netutil.MTU(iface)
	packetSize = netutil.BestPacketSize(mtu)
	if mtu <= 1500 {
		packetDelay = 2000 / 80
	}
	return packetSize, packetDelay
}

// Next blocks until a frame completes, ctx is cancelled, or the
// stream is closed.
func (s *Stream) Next(ctx context.Context) (*Frame, error) {
	for {
		if cf, ok := s.reasm.Queue().Pop(); ok {
			return newFrame(cf, s.dev.mapper), nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-s.done:
			return nil, fmt.Errorf("gencam: stream closed")
		case <-time.After(5 * time.Millisecond):
		}
	}
}

// Stats exposes the stream channel's atomic counters (spec.md §5).
func (s *Stream) Stats() stats.StreamSnapshot { return s.reasm.Stats().Snapshot() }

// Close stops the reassembler loop, which releases its socket as part
// of shutting down.
func (s *Stream) Close() error {
	s.cancel()
	<-s.done
	return nil
}
