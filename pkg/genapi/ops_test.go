package genapi

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gencam.dev/gencam/pkg/bitops"
	"gencam.dev/gencam/pkg/genxml"
)

// fakeRegisters is a RegisterIO backed by an in-memory map, counting
// reads per address so tests can assert on cache-hit behavior.
type fakeRegisters struct {
	mu    sync.Mutex
	regs  map[uint64][]byte
	reads map[uint64]int
}

func newFakeRegisters() *fakeRegisters {
	return &fakeRegisters{regs: make(map[uint64][]byte), reads: make(map[uint64]int)}
}

func (f *fakeRegisters) set(addr uint64, data []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.regs[addr] = append([]byte(nil), data...)
}

func (f *fakeRegisters) readCount(addr uint64) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.reads[addr]
}

func (f *fakeRegisters) Read(ctx context.Context, addr uint64, length uint32) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reads[addr]++
	data, ok := f.regs[addr]
	if !ok {
		data = make([]byte, length)
	}
	out := make([]byte, length)
	copy(out, data)
	return out, nil
}

func (f *fakeRegisters) Write(ctx context.Context, addr uint64, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.regs[addr] = append([]byte(nil), data...)
	return nil
}

func be16(v uint16) []byte { return []byte{byte(v >> 8), byte(v)} }

// TestIntegerReadWithSelectorSwitch mirrors spec.md §8 scenario 1.
func TestIntegerReadWithSelectorSwitch(t *testing.T) {
	regs := newFakeRegisters()
	regs.set(0x300, be16(0)) // GainSelector = All
	regs.set(0x310, be16(10))
	regs.set(0x314, be16(24))

	model := &genxml.Model{Nodes: []genxml.NodeDecl{
		{
			Kind: genxml.KindEnum, Name: "GainSelector", Access: genxml.RW,
			Addressing: genxml.Addressing{Kind: genxml.AddrFixed, Address: 0x300, Len: 2},
			Entries: []genxml.EnumEntry{
				{Name: "All", ValueKind: genxml.EnumLiteral, Literal: 0},
				{Name: "Red", ValueKind: genxml.EnumLiteral, Literal: 1},
				{Name: "Blue", ValueKind: genxml.EnumLiteral, Literal: 2},
			},
		},
		{
			Kind: genxml.KindInteger, Name: "Gain", Access: genxml.RW,
			Min: 0, Max: 0xFFFF,
			Addressing: genxml.Addressing{
				Kind:     genxml.AddrBySelector,
				Selector: "GainSelector",
				Bindings: []genxml.SelectorBinding{
					{Value: "All", Address: 0x310, Len: 2},
					{Value: "Red", Address: 0x314, Len: 2},
				},
			},
		},
	}}

	nm := New(model, regs, nil)
	ctx := context.Background()

	v, err := nm.GetInteger(ctx, "Gain")
	require.NoError(t, err)
	assert.Equal(t, int64(10), v)

	_, err = nm.GetInteger(ctx, "Gain")
	require.NoError(t, err)
	assert.Equal(t, 1, regs.readCount(0x310), "second read must hit cache")

	require.NoError(t, nm.SetEnum(ctx, "GainSelector", "Red"))
	v, err = nm.GetInteger(ctx, "Gain")
	require.NoError(t, err)
	assert.Equal(t, int64(24), v)

	require.NoError(t, nm.SetEnum(ctx, "GainSelector", "Blue"))
	_, err = nm.GetInteger(ctx, "Gain")
	require.Error(t, err)
	gerr, ok := err.(*Error)
	require.True(t, ok)
	assert.Equal(t, ErrUnavailable, gerr.Kind)
	assert.Equal(t, 1, regs.readCount(0x314), "Blue has no binding, so 0x314 is not read again")
}

// TestBitfieldBigEndianInteger mirrors spec.md §8 scenario 2.
func TestBitfieldBigEndianInteger(t *testing.T) {
	regs := newFakeRegisters()
	regs.set(0x5004, []byte{0b10100000, 0b00000000})

	model := &genxml.Model{Nodes: []genxml.NodeDecl{
		{
			Kind: genxml.KindInteger, Name: "BeBits", Access: genxml.RW,
			Min: 0, Max: 7,
			Addressing: genxml.Addressing{Kind: genxml.AddrFixed, Address: 0x5004, Len: 2},
			HasBitfield: true,
			Bitfield:    &bitops.Field{BitOffset: 0, BitLength: 3, ByteOrder: bitops.BigEndian},
		},
	}}
	nm := New(model, regs, nil)
	ctx := context.Background()

	v, err := nm.GetInteger(ctx, "BeBits")
	require.NoError(t, err)
	assert.Equal(t, int64(0b101), v)

	require.NoError(t, nm.SetInteger(ctx, "BeBits", 0b010))
	raw, _ := regs.Read(ctx, 0x5004, 2)
	assert.Equal(t, []byte{0b01000000, 0b00000000}, raw)

	err = nm.SetInteger(ctx, "BeBits", 0b1000)
	require.Error(t, err)
}

// TestIndirectAddressing mirrors spec.md §8 scenario 3.
func TestIndirectAddressing(t *testing.T) {
	regs := newFakeRegisters()
	regs.set(0x2000, []byte{0, 0, 0x30, 0x00})
	regs.set(0x3000, []byte{0, 0, 0, 123})
	regs.set(0x3100, []byte{0, 0, 0, 77})

	model := &genxml.Model{Nodes: []genxml.NodeDecl{
		{
			Kind: genxml.KindInteger, Name: "RegAddr", Access: genxml.RW,
			Min: 0, Max: 0xFFFFFFFF,
			Addressing: genxml.Addressing{Kind: genxml.AddrFixed, Address: 0x2000, Len: 4},
		},
		{
			Kind: genxml.KindInteger, Name: "Gain", Access: genxml.RO,
			Min: 0, Max: 0xFFFFFFFF,
			Addressing: genxml.Addressing{Kind: genxml.AddrIndirect, PAddressNode: "RegAddr", Len: 4},
		},
	}}
	nm := New(model, regs, nil)
	ctx := context.Background()

	v, err := nm.GetInteger(ctx, "Gain")
	require.NoError(t, err)
	assert.Equal(t, int64(123), v)
	assert.Equal(t, 1, regs.readCount(0x2000))
	assert.Equal(t, 1, regs.readCount(0x3000))

	require.NoError(t, nm.SetInteger(ctx, "RegAddr", 0x3100))
	v, err = nm.GetInteger(ctx, "Gain")
	require.NoError(t, err)
	assert.Equal(t, int64(77), v)
	assert.Equal(t, 1, regs.readCount(0x3100))

	require.NoError(t, nm.SetInteger(ctx, "RegAddr", 0))
	_, err = nm.GetInteger(ctx, "Gain")
	require.Error(t, err)
	gerr := err.(*Error)
	assert.Equal(t, ErrBadIndirectAddress, gerr.Kind)
}

// TestEnumWithProviderNode mirrors spec.md §8 scenario 6.
func TestEnumWithProviderNode(t *testing.T) {
	regs := newFakeRegisters()
	regs.set(0x4000, []byte{0, 0, 0, 42})
	regs.set(0x4100, []byte{0, 0, 0, 42})

	model := &genxml.Model{Nodes: []genxml.NodeDecl{
		{
			Kind: genxml.KindInteger, Name: "RegModeVal", Access: genxml.RW,
			Min: 0, Max: 0xFFFFFFFF,
			Addressing: genxml.Addressing{Kind: genxml.AddrFixed, Address: 0x4100, Len: 4},
		},
		{
			Kind: genxml.KindEnum, Name: "Mode", Access: genxml.RW,
			Addressing: genxml.Addressing{Kind: genxml.AddrFixed, Address: 0x4000, Len: 4},
			Entries: []genxml.EnumEntry{
				{Name: "Fixed10", ValueKind: genxml.EnumLiteral, Literal: 10},
				{Name: "DynFromReg", ValueKind: genxml.EnumFromNode, ProviderRef: "RegModeVal"},
			},
		},
	}}
	nm := New(model, regs, nil)
	ctx := context.Background()

	v, err := nm.GetEnum(ctx, "Mode")
	require.NoError(t, err)
	assert.Equal(t, "DynFromReg", v)

	require.NoError(t, nm.SetInteger(ctx, "RegModeVal", 17))
	require.NoError(t, nm.SetEnum(ctx, "Mode", "DynFromReg"))
	raw, _ := regs.Read(ctx, 0x4000, 4)
	assert.Equal(t, int64(17), mustSignedBE(raw))
}

func mustSignedBE(raw []byte) int64 {
	v, err := bytesToSignedBE(raw)
	if err != nil {
		panic(err)
	}
	return v
}

func TestEnumValueCollisionFirstDeclarationWins(t *testing.T) {
	regs := newFakeRegisters()
	regs.set(0x10, []byte{0, 0, 0, 5})
	model := &genxml.Model{Nodes: []genxml.NodeDecl{
		{
			Kind: genxml.KindEnum, Name: "E", Access: genxml.RW,
			Addressing: genxml.Addressing{Kind: genxml.AddrFixed, Address: 0x10, Len: 4},
			Entries: []genxml.EnumEntry{
				{Name: "First", ValueKind: genxml.EnumLiteral, Literal: 5},
				{Name: "Second", ValueKind: genxml.EnumLiteral, Literal: 5},
			},
		},
	}}
	nm := New(model, regs, nil)
	ctx := context.Background()

	v, err := nm.GetEnum(ctx, "E")
	require.NoError(t, err)
	assert.Equal(t, "First", v)

	require.NoError(t, nm.SetEnum(ctx, "E", "Second"))
	raw, _ := regs.Read(ctx, 0x10, 4)
	assert.Equal(t, int64(5), mustSignedBE(raw))

	entries, err := nm.ListEnumEntries("E")
	require.NoError(t, err)
	assert.Equal(t, []string{"First", "Second"}, entries)
}

func TestCommandExecute(t *testing.T) {
	regs := newFakeRegisters()
	model := &genxml.Model{Nodes: []genxml.NodeDecl{
		{Kind: genxml.KindCommand, Name: "Start", CommandAddress: 0x900, CommandLen: 4},
	}}
	nm := New(model, regs, nil)
	require.NoError(t, nm.Execute(context.Background(), "Start"))
	raw, _ := regs.Read(context.Background(), 0x900, 4)
	assert.Equal(t, []byte{0, 0, 0, 1}, raw)
}

func TestAccessEnforcement(t *testing.T) {
	regs := newFakeRegisters()
	model := &genxml.Model{Nodes: []genxml.NodeDecl{
		{Kind: genxml.KindInteger, Name: "RO", Access: genxml.RO, Min: 0, Max: 10,
			Addressing: genxml.Addressing{Kind: genxml.AddrFixed, Address: 0x1, Len: 2}},
		{Kind: genxml.KindInteger, Name: "WO", Access: genxml.WO, Min: 0, Max: 10,
			Addressing: genxml.Addressing{Kind: genxml.AddrFixed, Address: 0x2, Len: 2}},
	}}
	nm := New(model, regs, nil)
	ctx := context.Background()

	err := nm.SetInteger(ctx, "RO", 1)
	require.Error(t, err)
	assert.Equal(t, ErrAccess, err.(*Error).Kind)

	_, err = nm.GetInteger(ctx, "WO")
	require.Error(t, err)
	assert.Equal(t, ErrAccess, err.(*Error).Kind)
}

func TestFloatScaleRoundTrip(t *testing.T) {
	regs := newFakeRegisters()
	model := &genxml.Model{Nodes: []genxml.NodeDecl{
		{
			Kind: genxml.KindFloat, Name: "ExposureMs", Access: genxml.RW,
			FMin: 0, FMax: 1000,
			HasScale: true, ScaleNum: 1, ScaleDen: 1000,
			Addressing: genxml.Addressing{Kind: genxml.AddrFixed, Address: 0x50, Len: 4},
		},
	}}
	nm := New(model, regs, nil)
	ctx := context.Background()

	require.NoError(t, nm.SetFloat(ctx, "ExposureMs", 12.0))
	v, err := nm.GetFloat(ctx, "ExposureMs")
	require.NoError(t, err)
	assert.InDelta(t, 12.0, v, 1e-9)
}

func TestNodeNotFound(t *testing.T) {
	regs := newFakeRegisters()
	nm := New(&genxml.Model{}, regs, nil)
	_, err := nm.GetInteger(context.Background(), "Missing")
	require.Error(t, err)
	assert.Equal(t, ErrNodeNotFound, err.(*Error).Kind)
}
