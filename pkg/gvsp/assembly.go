package gvsp

import (
	"time"

	"gencam.dev/gencam/pkg/chunks"
)

// BlockState is a block's position in the lifecycle described by
// spec.md §4.5.2.
type BlockState int

const (
	BlockIdle BlockState = iota
	BlockReceiving
	BlockCompleted
	BlockExpired
	BlockSuperseded
)

// blockDeadline is how long a block may remain in Receiving after its
// Leader before it is declared Expired (spec.md §5).
const blockDeadline = 50 * time.Millisecond

// block tracks one in-flight frame's reassembly state.
type block struct {
	id              uint16
	state           BlockState
	buf             []byte
	pooled          bool
	bitmap          *PacketBitmap
	packetPayload   int
	leader          LeaderPayload
	haveLeader      bool
	deadline        time.Time
	planners        []*ResendPlanner
}

func newBlock(id uint16, now time.Time) *block {
	return &block{
		id:       id,
		state:    BlockReceiving,
		bitmap:   NewPacketBitmap(0),
		deadline: now.Add(blockDeadline),
	}
}

// onLeader records frame metadata and establishes the packet-payload
// size this block will use to index the arena.
func (b *block) onLeader(leader LeaderPayload, packetPayload int, pool *BufferPool) {
	b.leader = leader
	b.haveLeader = true
	b.packetPayload = packetPayload
}

// ensureCapacity grows the arena and bitmap so packetID is addressable
// (spec.md §4.5.2: "growing buffer and bitmap on demand").
func (b *block) ensureCapacity(packetID int, pool *BufferPool) {
	needed := (packetID + 1) * b.packetPayload
	if needed <= len(b.buf) {
		b.bitmap.growTo(packetID + 1)
		return
	}
	grown, ok := pool.Acquire(needed)
	if !ok {
		grown = make([]byte, needed)
	}
	copy(grown, b.buf)
	if b.pooled {
		pool.Release(b.buf)
	}
	b.buf = grown
	b.pooled = ok
	b.bitmap.growTo(packetID + 1)
}

// onPayload writes a Payload packet's body into the arena at
// packetID's slot, growing the arena on demand. Negative indices and
// bodies longer than packetPayload (which would overrun the slot) are
// silently dropped.
func (b *block) onPayload(packetID int, data []byte, pool *BufferPool) {
	if b.packetPayload == 0 {
		b.packetPayload = len(data)
	}
	if packetID < 0 {
		return
	}
	b.ensureCapacity(packetID, pool)
	offset := packetID * b.packetPayload
	if offset+len(data) > len(b.buf) {
		return
	}
	copy(b.buf[offset:offset+len(data)], data)
	b.bitmap.Set(packetID)
}

// freeze finalizes a completed block into a CompletedFrame, decoding
// any trailing chunk bytes.
func (b *block) freeze(trailerChunks []byte) CompletedFrame {
	b.state = BlockCompleted
	frame := CompletedFrame{
		BlockID:     b.id,
		Timestamp:   b.leader.Timestamp,
		Width:       b.leader.Width,
		Height:      b.leader.Height,
		PixelFormat: b.leader.PixelFormat,
		Data:        b.buf,
	}
	if len(trailerChunks) > 0 {
		if set, err := chunks.Decode(trailerChunks); err == nil {
			frame.Chunks = &set
		}
	}
	return frame
}
