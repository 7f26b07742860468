package gvsp

// PacketBitmap tracks which packet indices of a block have arrived,
// bit-packed into 64-bit words (spec.md §4.5.3). It grows on demand as
// higher packet ids are observed, since expected_packets is not known
// a priori.
type PacketBitmap struct {
	words []uint64
	count int // number of indices this bitmap currently spans
	set_  int // number of bits set
}

// NewPacketBitmap creates a bitmap spanning count indices, all unset.
func NewPacketBitmap(count int) *PacketBitmap {
	b := &PacketBitmap{}
	b.growTo(count)
	return b
}

func (b *PacketBitmap) growTo(count int) {
	if count <= b.count {
		return
	}
	needWords := (count + 63) / 64
	if needWords > len(b.words) {
		grown := make([]uint64, needWords)
		copy(grown, b.words)
		b.words = grown
	}
	b.count = count
}

// Len reports how many indices this bitmap currently spans.
func (b *PacketBitmap) Len() int { return b.count }

// Set marks index as present, growing the bitmap if needed, and
// reports whether the bit was previously unset.
func (b *PacketBitmap) Set(index int) bool {
	if index < 0 {
		return false
	}
	if index+1 > b.count {
		b.growTo(index + 1)
	}
	word, bit := index/64, uint(index%64)
	mask := uint64(1) << bit
	if b.words[word]&mask != 0 {
		return false
	}
	b.words[word] |= mask
	b.set_++
	return true
}

// Get reports whether index is present.
func (b *PacketBitmap) Get(index int) bool {
	if index < 0 || index >= b.count {
		return false
	}
	word, bit := index/64, uint(index%64)
	return b.words[word]&(uint64(1)<<bit) != 0
}

// IsComplete reports whether every index in [0, Len) is set.
func (b *PacketBitmap) IsComplete() bool {
	return b.count > 0 && b.set_ == b.count
}

// SetCount reports how many indices are currently marked present.
func (b *PacketBitmap) SetCount() int { return b.set_ }

// Range is an inclusive [Start, End] span of packet indices.
type Range struct {
	Start, End uint16
}

// MissingRanges returns the maximal runs of unset bits in ascending
// order, disjoint, as inclusive ranges (spec.md §4.5.3/§8).
func (b *PacketBitmap) MissingRanges() []Range {
	var ranges []Range
	inRun := false
	var runStart int
	for i := 0; i < b.count; i++ {
		if !b.Get(i) {
			if !inRun {
				inRun = true
				runStart = i
			}
		} else if inRun {
			ranges = append(ranges, Range{Start: uint16(runStart), End: uint16(i - 1)})
			inRun = false
		}
	}
	if inRun {
		ranges = append(ranges, Range{Start: uint16(runStart), End: uint16(b.count - 1)})
	}
	return ranges
}

// CoalesceMissing splits MissingRanges() so that no returned range
// spans more than maxRange packets (spec.md §4.5.4/§8).
func CoalesceMissing(b *PacketBitmap, maxRange int) []Range {
	if maxRange <= 0 {
		maxRange = 1
	}
	var out []Range
	for _, r := range b.MissingRanges() {
		out = append(out, splitRange(r, maxRange)...)
	}
	return out
}

func splitRange(r Range, maxRange int) []Range {
	var out []Range
	start := int(r.Start)
	end := int(r.End)
	for start <= end {
		span := end - start + 1
		if span > maxRange {
			span = maxRange
		}
		out = append(out, Range{Start: uint16(start), End: uint16(start + span - 1)})
		start += span
	}
	return out
}
