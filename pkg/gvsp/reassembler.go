package gvsp

import (
	"context"
	"net"
	"time"

	"github.com/tevino/abool"

	"gencam.dev/gencam/internal/log"
	"gencam.dev/gencam/pkg/stats"
)

// Resender issues a GVCP packet-resend request for one block's
// missing range. Satisfied by *gvcp.Device in production.
type Resender interface {
	RequestResend(ctx context.Context, blockID uint16, firstPacketID, lastPacketID uint16) error
}

// Config tunes the reassembler's resend and queueing behavior,
// mirroring internal/config.GVSPConfig.
type Config struct {
	ResendMaxRange     int
	ResendMaxRetries   int
	ResendBaseDelay    time.Duration
	ResendJitterMax    time.Duration
	CompletionCapacity int
}

// Reassembler owns one stream channel's socket and in-flight block
// state. Ingestion is single-threaded relative to a given block;
// concurrent blocks require one Reassembler per channel (spec.md §5).
type Reassembler struct {
	conn     *net.UDPConn
	resender Resender
	cfg      Config

	pool    *BufferPool
	queue   *FrameQueue
	stats   *stats.StreamStats
	logger  log.Logger
	stopped abool.AtomicBool

	current *block // the block currently receiving, if any
}

// NewReassembler binds a UDP listener on addr for GVSP traffic.
func NewReassembler(addr string, resender Resender, cfg Config) (*Reassembler, error) {
	udpAddr, err := net.ResolveUDPAddr("udp4", addr)
	if err != nil {
		return nil, err
	}
	conn, err := net.ListenUDP("udp4", udpAddr)
	if err != nil {
		return nil, err
	}
	return &Reassembler{
		conn:     conn,
		resender: resender,
		cfg:      cfg,
		pool:     NewBufferPool(4),
		queue:    NewFrameQueue(cfg.CompletionCapacity),
		stats:    &stats.StreamStats{},
		logger:   log.GetLogger(),
	}, nil
}

// Addr reports the bound local address.
func (r *Reassembler) Addr() *net.UDPAddr {
	return r.conn.LocalAddr().(*net.UDPAddr)
}

// Queue exposes the bounded completion queue consumers drain.
func (r *Reassembler) Queue() *FrameQueue { return r.queue }

// Stats exposes the channel's atomic counters.
func (r *Reassembler) Stats() *stats.StreamStats { return r.stats }

// Close releases the stream socket.
func (r *Reassembler) Close() error { return r.conn.Close() }

// Stopped reports whether the receive loop has exited, either because
// its context was cancelled or because setting the socket's read
// deadline failed (for example after Close). Read errors themselves
// do not end the loop.
func (r *Reassembler) Stopped() bool { return r.stopped.IsSet() }

// Run drives the receive loop until ctx is cancelled, dispatching
// packets as they arrive and sweeping for expired/planner-due blocks
// on a fixed tick (spec.md §4.5.2, §4.5.4).
func (r *Reassembler) Run(ctx context.Context) error {
	defer r.stopped.Set()

	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()

	done := make(chan struct{})
	go func() {
		<-ctx.Done()
		r.conn.Close()
		close(done)
	}()

	buf := make([]byte, 65536)
	for {
		if err := r.conn.SetReadDeadline(time.Now().Add(10 * time.Millisecond)); err != nil {
			select {
			case <-done:
				return ctx.Err()
			default:
				return err
			}
		}
		n, err := r.conn.Read(buf)
		if err != nil {
			select {
			case <-done:
				return ctx.Err()
			default:
			}
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				r.sweep(ctx)
				continue
			}
			continue
		}
		r.stats.PacketsReceived.Add(1)
		r.dispatch(ctx, append([]byte(nil), buf[:n]...))
		r.sweep(ctx)
	}
}

func (r *Reassembler) dispatch(ctx context.Context, raw []byte) {
	header, body, err := ParsePacket(raw)
	if err != nil {
		return
	}

	switch header.Format() {
	case FormatLeader:
		r.onLeader(header, body)
	case FormatPayload:
		r.onPayload(header, body)
	case FormatTrailer:
		r.onTrailer(ctx, header, body)
	}
}

func (r *Reassembler) onLeader(header PacketHeader, body []byte) {
	now := time.Now()
	if r.current != nil && r.current.id != header.BlockID && r.current.state == BlockReceiving {
		r.current.state = BlockSuperseded
		r.stats.FramesSuperseded.Add(1)
	}
	leader, err := ParseLeaderPayload(header.PayloadTypeHigh(), body)
	if err != nil {
		r.logger.WithError(err).Debug("gvsp: dropping leader with unexpected payload type")
		return
	}
	b := newBlock(header.BlockID, now)
	b.onLeader(leader, 0, r.pool)
	r.current = b
}

func (r *Reassembler) onPayload(header PacketHeader, body []byte) {
	if r.current == nil || r.current.id != header.BlockID || r.current.state != BlockReceiving {
		return
	}
	r.current.onPayload(int(header.PacketID), body, r.pool)
}

func (r *Reassembler) onTrailer(ctx context.Context, header PacketHeader, body []byte) {
	if r.current == nil || r.current.id != header.BlockID || r.current.state != BlockReceiving {
		return
	}
	trailer, err := ParseTrailerPayload(body)
	if err != nil {
		return
	}
	b := r.current
	// the trailer's packet_id conventionally equals expected_packets
	b.bitmap.growTo(int(header.PacketID))

	if b.bitmap.IsComplete() {
		r.completeBlock(b, trailer.ChunkData)
		return
	}
	r.planResend(ctx, b)
}

func (r *Reassembler) completeBlock(b *block, trailerChunks []byte) {
	frame := b.freeze(trailerChunks)
	r.queue.Push(frame)
	r.stats.FramesCompleted.Add(1)
	if r.queue.DroppedCount() > 0 {
		r.stats.BackpressureDrops.Store(r.queue.DroppedCount())
	}
	if r.current == b {
		r.current = nil
	}
}

// planResend issues resend requests for a block's missing ranges,
// creating planners for newly-seen ranges and re-issuing for those
// whose deadline is due (spec.md §4.5.4).
func (r *Reassembler) planResend(ctx context.Context, b *block) {
	ranges := CoalesceMissing(b.bitmap, r.cfg.ResendMaxRange)
	now := time.Now()

	stillTracked := make([]*ResendPlanner, 0, len(ranges))
	for _, rng := range ranges {
		planner := b.plannerFor(rng)
		if planner == nil {
			planner = NewResendPlanner(rng, r.cfg.ResendMaxRetries, r.cfg.ResendBaseDelay, r.cfg.ResendJitterMax)
			b.planners = append(b.planners, planner)
		}
		if planner.State() == PlannerExhausted {
			continue
		}
		if planner.Due(now) {
			if r.resender != nil {
				if err := r.resender.RequestResend(ctx, b.id, rng.Start, rng.End); err != nil {
					r.logger.WithError(err).WithField("block", b.id).Debug("gvsp: resend request failed")
				} else {
					r.stats.ResendsIssued.Add(1)
				}
			}
			planner.RecordAttempt(now)
		}
		stillTracked = append(stillTracked, planner)
	}
	b.planners = stillTracked
}

func (b *block) plannerFor(rng Range) *ResendPlanner {
	for _, p := range b.planners {
		if p.Range == rng {
			return p
		}
	}
	return nil
}

// sweep expires blocks past their deadline and retries due resends
// for blocks still awaiting packets.
func (r *Reassembler) sweep(ctx context.Context) {
	b := r.current
	if b == nil || b.state != BlockReceiving {
		return
	}
	now := time.Now()
	if now.After(b.deadline) {
		allExhausted := len(b.planners) > 0
		for _, p := range b.planners {
			if p.State() != PlannerExhausted {
				allExhausted = false
				break
			}
		}
		if b.bitmap.IsComplete() {
			r.completeBlock(b, nil)
			return
		}
		b.state = BlockExpired
		r.stats.FramesExpired.Add(1)
		if allExhausted {
			r.stats.FramesDropped.Add(1)
		}
		r.current = nil
		return
	}
	if len(b.planners) > 0 {
		r.planResend(ctx, b)
	}
}
