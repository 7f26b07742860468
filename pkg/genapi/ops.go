package genapi

import (
	"context"
	"fmt"
	"sort"

	"gencam.dev/gencam/pkg/bitops"
	"gencam.dev/gencam/pkg/genxml"
)

// requireReadable/requireWritable implement spec.md §3.3's access
// enforcement: reads reject WO nodes, writes reject RO nodes.
func requireReadable(decl genxml.NodeDecl) error {
	if decl.Access == genxml.WO {
		return newErr(ErrAccess, decl.Name, "node is write-only")
	}
	return nil
}

func requireWritable(decl genxml.NodeDecl) error {
	if decl.Access == genxml.RO {
		return newErr(ErrAccess, decl.Name, "node is read-only")
	}
	return nil
}

func (nm *NodeMap) bumpVersion() {
	nm.version++
}

// --- Integer -----------------------------------------------------------

// GetInteger implements spec.md §4.3.1.
func (nm *NodeMap) GetInteger(ctx context.Context, name string) (int64, error) {
	nm.mu.Lock()
	defer nm.mu.Unlock()
	return nm.getIntegerLocked(ctx, name)
}

func (nm *NodeMap) getIntegerLocked(ctx context.Context, name string) (int64, error) {
	n, err := nm.getNode(name)
	if err != nil {
		return 0, err
	}
	if n.integer == nil {
		return 0, newErr(ErrType, name, "node is not an integer")
	}
	in := n.integer
	decl := in.decl
	if err := requireReadable(decl); err != nil {
		return 0, err
	}
	if err := nm.enforceSelectors(ctx, decl); err != nil {
		return 0, err
	}
	if in.cachedValue != nil {
		return *in.cachedValue, nil
	}
	addr, length, err := nm.resolveAddress(ctx, decl)
	if err != nil {
		return 0, err
	}
	raw, err := nm.io.Read(ctx, addr, length)
	if err != nil {
		return 0, wrapIOErr(name, err)
	}
	var value int64
	if decl.HasBitfield {
		extracted, err := bitops.Extract(raw, *decl.Bitfield)
		if err != nil {
			return 0, bitopsErr(name, err)
		}
		if decl.Min < 0 {
			value = signExtend(extracted, decl.Bitfield.BitLength)
		} else {
			value = int64(extracted)
		}
	} else {
		value, err = bytesToSignedBE(raw)
		if err != nil {
			return 0, bitopsErr(name, err)
		}
	}
	in.cachedValue = &value
	in.cachedRaw = raw
	return value, nil
}

// SetInteger implements spec.md §4.3.2.
func (nm *NodeMap) SetInteger(ctx context.Context, name string, value int64) error {
	nm.mu.Lock()
	defer nm.mu.Unlock()
	n, err := nm.getNode(name)
	if err != nil {
		return err
	}
	if n.integer == nil {
		return newErr(ErrType, name, "node is not an integer")
	}
	in := n.integer
	decl := in.decl
	if err := requireWritable(decl); err != nil {
		return err
	}
	if err := nm.enforceSelectors(ctx, decl); err != nil {
		return err
	}
	if err := checkIntegerRange(decl, value); err != nil {
		return err
	}
	addr, length, err := nm.resolveAddress(ctx, decl)
	if err != nil {
		return err
	}
	if decl.HasBitfield {
		raw := in.cachedRaw
		if raw == nil || uint32(len(raw)) != length {
			raw, err = nm.io.Read(ctx, addr, length)
			if err != nil {
				return wrapIOErr(name, err)
			}
		} else {
			raw = append([]byte(nil), raw...)
		}
		encoded, err := encodeBitfieldValue(*decl.Bitfield, value, decl.Min < 0)
		if err != nil {
			return err
		}
		if err := bitops.Insert(raw, *decl.Bitfield, encoded); err != nil {
			return bitopsErr(name, err)
		}
		if err := nm.io.Write(ctx, addr, raw); err != nil {
			return wrapIOErr(name, err)
		}
		in.cachedRaw = raw
		in.cachedValue = &value
	} else {
		payload, err := signedToBytesBE(value, length)
		if err != nil {
			return rangeErr(name, "value %d does not fit in %d bytes", value, length)
		}
		if err := nm.io.Write(ctx, addr, payload); err != nil {
			return wrapIOErr(name, err)
		}
		in.cachedRaw = payload
		in.cachedValue = &value
	}
	nm.invalidateDependents(name)
	nm.bumpVersion()
	return nil
}

func checkIntegerRange(decl genxml.NodeDecl, value int64) error {
	if value < decl.Min || value > decl.Max {
		return rangeErr(decl.Name, "value %d outside [%d,%d]", value, decl.Min, decl.Max)
	}
	if decl.Inc != nil && *decl.Inc != 0 {
		if mod64(value-decl.Min, *decl.Inc) != 0 {
			return rangeErr(decl.Name, "value %d violates increment %d from min %d", value, *decl.Inc, decl.Min)
		}
	}
	return nil
}

func mod64(a, m int64) int64 {
	r := a % m
	if r < 0 {
		r += abs64(m)
	}
	return r
}

func abs64(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}

// encodeBitfieldValue implements spec.md §4.1's "value too wide": an
// unsigned field rejects value > mask; a signed field (node min < 0)
// accepts the two's-complement range and encodes into the mask width.
func encodeBitfieldValue(f bitops.Field, value int64, signed bool) (uint64, error) {
	mask := bitMask(f.BitLength)
	if !signed {
		if value < 0 || uint64(value) > mask {
			return 0, &Error{Kind: ErrValueTooWide, Msg: fmt.Sprintf("value %d too wide for %d-bit field", value, f.BitLength)}
		}
		return uint64(value), nil
	}
	lo := -(int64(1) << (f.BitLength - 1))
	hi := (int64(1) << (f.BitLength - 1)) - 1
	if value < lo || value > hi {
		return 0, &Error{Kind: ErrValueTooWide, Msg: fmt.Sprintf("value %d too wide for %d-bit signed field", value, f.BitLength)}
	}
	return uint64(value) & mask, nil
}

func bitMask(bitLength uint16) uint64 {
	if bitLength >= 64 {
		return ^uint64(0)
	}
	return (uint64(1) << bitLength) - 1
}

func bitopsErr(name string, err error) error {
	if be, ok := err.(*bitops.Error); ok {
		return &Error{Kind: ErrBitfieldOutOfRange, Node: name, Msg: be.Error(), Err: be}
	}
	return &Error{Kind: ErrBitfieldOutOfRange, Node: name, Msg: err.Error(), Err: err}
}

func rangeErr(name, format string, args ...interface{}) error {
	return newErr(ErrRange, name, format, args...)
}

// --- Float ---------------------------------------------------------------

// GetFloat implements spec.md §4.3.3.
func (nm *NodeMap) GetFloat(ctx context.Context, name string) (float64, error) {
	nm.mu.Lock()
	defer nm.mu.Unlock()
	n, err := nm.getNode(name)
	if err != nil {
		return 0, err
	}
	if n.float == nil {
		return 0, newErr(ErrType, name, "node is not a float")
	}
	fn := n.float
	decl := fn.decl
	if err := requireReadable(decl); err != nil {
		return 0, err
	}
	if err := nm.enforceSelectors(ctx, decl); err != nil {
		return 0, err
	}
	if fn.cachedValue != nil {
		return *fn.cachedValue, nil
	}
	addr, length, err := nm.resolveAddress(ctx, decl)
	if err != nil {
		return 0, err
	}
	raw, err := nm.io.Read(ctx, addr, length)
	if err != nil {
		return 0, wrapIOErr(name, err)
	}
	rawValue, err := bytesToSignedBE(raw)
	if err != nil {
		return 0, bitopsErr(name, err)
	}
	num, den := scaleOf(decl)
	value := float64(rawValue)*float64(num)/float64(den) + decl.Offset
	fn.cachedValue = &value
	fn.cachedRaw = raw
	return value, nil
}

// SetFloat implements spec.md §4.3.3's write inverse.
func (nm *NodeMap) SetFloat(ctx context.Context, name string, value float64) error {
	nm.mu.Lock()
	defer nm.mu.Unlock()
	n, err := nm.getNode(name)
	if err != nil {
		return err
	}
	if n.float == nil {
		return newErr(ErrType, name, "node is not a float")
	}
	fn := n.float
	decl := fn.decl
	if err := requireWritable(decl); err != nil {
		return err
	}
	if err := nm.enforceSelectors(ctx, decl); err != nil {
		return err
	}
	if value < decl.FMin || value > decl.FMax {
		return rangeErr(name, "value %g outside [%g,%g]", value, decl.FMin, decl.FMax)
	}
	num, den := scaleOf(decl)
	if num == 0 {
		return newErr(ErrParse, name, "scale numerator is zero")
	}
	rawFloat := (value - decl.Offset) * float64(den) / float64(num)
	rounded := roundHalfAwayFromZero(rawFloat)
	if absFloat(rawFloat-rounded) > 1e-6 {
		return rangeErr(name, "value %g does not round-trip through scale", value)
	}
	addr, length, err := nm.resolveAddress(ctx, decl)
	if err != nil {
		return err
	}
	payload, err := signedToBytesBE(int64(rounded), length)
	if err != nil {
		return rangeErr(name, "encoded raw %d does not fit in %d bytes", int64(rounded), length)
	}
	if err := nm.io.Write(ctx, addr, payload); err != nil {
		return wrapIOErr(name, err)
	}
	fn.cachedRaw = payload
	fn.cachedValue = &value
	nm.invalidateDependents(name)
	nm.bumpVersion()
	return nil
}

func scaleOf(decl genxml.NodeDecl) (int64, int64) {
	if decl.HasScale {
		return decl.ScaleNum, decl.ScaleDen
	}
	return 1, 1
}

func roundHalfAwayFromZero(v float64) float64 {
	if v < 0 {
		return -roundHalfAwayFromZero(-v)
	}
	frac := v - float64(int64(v))
	if frac >= 0.5 {
		return float64(int64(v) + 1)
	}
	return float64(int64(v))
}

func absFloat(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

// --- Boolean ---------------------------------------------------------------

// GetBool implements spec.md §4.3.5.
func (nm *NodeMap) GetBool(ctx context.Context, name string) (bool, error) {
	nm.mu.Lock()
	defer nm.mu.Unlock()
	return nm.getBoolLocked(ctx, name)
}

func (nm *NodeMap) getBoolLocked(ctx context.Context, name string) (bool, error) {
	n, err := nm.getNode(name)
	if err != nil {
		return false, err
	}
	if n.boolean == nil {
		return false, newErr(ErrType, name, "node is not a boolean")
	}
	bn := n.boolean
	decl := bn.decl
	if err := requireReadable(decl); err != nil {
		return false, err
	}
	if err := nm.enforceSelectors(ctx, decl); err != nil {
		return false, err
	}
	if bn.cachedValue != nil {
		return *bn.cachedValue, nil
	}
	if !decl.HasBitfield {
		return false, newErr(ErrParse, name, "boolean node has no bitfield")
	}
	addr, length, err := nm.resolveAddress(ctx, decl)
	if err != nil {
		return false, err
	}
	raw, err := nm.io.Read(ctx, addr, length)
	if err != nil {
		return false, wrapIOErr(name, err)
	}
	extracted, err := bitops.Extract(raw, *decl.Bitfield)
	if err != nil {
		return false, bitopsErr(name, err)
	}
	value := extracted != 0
	bn.cachedValue = &value
	bn.cachedRaw = raw
	return value, nil
}

// SetBool implements spec.md §4.3.5's write (read-modify-write).
func (nm *NodeMap) SetBool(ctx context.Context, name string, value bool) error {
	nm.mu.Lock()
	defer nm.mu.Unlock()
	n, err := nm.getNode(name)
	if err != nil {
		return err
	}
	if n.boolean == nil {
		return newErr(ErrType, name, "node is not a boolean")
	}
	bn := n.boolean
	decl := bn.decl
	if err := requireWritable(decl); err != nil {
		return err
	}
	if err := nm.enforceSelectors(ctx, decl); err != nil {
		return err
	}
	if !decl.HasBitfield {
		return newErr(ErrParse, decl.Name, "boolean node has no bitfield")
	}
	addr, length, err := nm.resolveAddress(ctx, decl)
	if err != nil {
		return err
	}
	raw := bn.cachedRaw
	if raw == nil || uint32(len(raw)) != length {
		raw, err = nm.io.Read(ctx, addr, length)
		if err != nil {
			return wrapIOErr(decl.Name, err)
		}
	} else {
		raw = append([]byte(nil), raw...)
	}
	var bit uint64
	if value {
		bit = 1
	}
	if err := bitops.Insert(raw, *decl.Bitfield, bit); err != nil {
		return bitopsErr(decl.Name, err)
	}
	if err := nm.io.Write(ctx, addr, raw); err != nil {
		return wrapIOErr(decl.Name, err)
	}
	bn.cachedRaw = raw
	bn.cachedValue = &value
	nm.invalidateDependents(decl.Name)
	nm.bumpVersion()
	return nil
}

// --- Enum ---------------------------------------------------------------

// ensureEnumMapping lazily builds the value<->name mapping per spec.md
// §4.3.4: first declaration wins on value collisions for value->name,
// but every name is retained for name->value.
func (nm *NodeMap) ensureEnumMapping(ctx context.Context, en *enumNode) error {
	if en.mapping != nil {
		return nil
	}
	mapping := make(map[int64]string, len(en.decl.Entries))
	reverse := make(map[string]int64, len(en.decl.Entries))
	for _, entry := range en.decl.Entries {
		var value int64
		switch entry.ValueKind {
		case genxml.EnumLiteral:
			value = entry.Literal
		case genxml.EnumFromNode:
			v, err := nm.getIntegerLocked(ctx, entry.ProviderRef)
			if err != nil {
				return err
			}
			value = v
		}
		if _, exists := mapping[value]; !exists {
			mapping[value] = entry.Name
		}
		reverse[entry.Name] = value
	}
	en.mapping = mapping
	en.reverse = reverse
	return nil
}

// GetEnum implements spec.md §4.3.4.
func (nm *NodeMap) GetEnum(ctx context.Context, name string) (string, error) {
	nm.mu.Lock()
	defer nm.mu.Unlock()
	return nm.getEnumLocked(ctx, name)
}

func (nm *NodeMap) getEnumLocked(ctx context.Context, name string) (string, error) {
	n, err := nm.getNode(name)
	if err != nil {
		return "", err
	}
	if n.enum == nil {
		return "", newErr(ErrType, name, "node is not an enum")
	}
	en := n.enum
	decl := en.decl
	if err := requireReadable(decl); err != nil {
		return "", err
	}
	if err := nm.enforceSelectors(ctx, decl); err != nil {
		return "", err
	}
	if en.cached != nil {
		return *en.cached, nil
	}
	addr, length, err := nm.resolveAddress(ctx, decl)
	if err != nil {
		return "", err
	}
	raw, err := nm.io.Read(ctx, addr, length)
	if err != nil {
		return "", wrapIOErr(name, err)
	}
	rawValue, err := bytesToSignedBE(raw)
	if err != nil {
		return "", bitopsErr(name, err)
	}
	if err := nm.ensureEnumMapping(ctx, en); err != nil {
		return "", err
	}
	label, ok := en.mapping[rawValue]
	if !ok {
		return "", newErr(ErrEnumValueUnknown, name, "raw value %d has no matching enum entry", rawValue)
	}
	en.cached = &label
	return label, nil
}

// SetEnum implements spec.md §4.3.4's write.
func (nm *NodeMap) SetEnum(ctx context.Context, name string, entryName string) error {
	nm.mu.Lock()
	defer nm.mu.Unlock()
	n, err := nm.getNode(name)
	if err != nil {
		return err
	}
	if n.enum == nil {
		return newErr(ErrType, name, "node is not an enum")
	}
	en := n.enum
	decl := en.decl
	if err := requireWritable(decl); err != nil {
		return err
	}
	if err := nm.enforceSelectors(ctx, decl); err != nil {
		return err
	}
	if err := nm.ensureEnumMapping(ctx, en); err != nil {
		return err
	}
	value, ok := en.reverse[entryName]
	if !ok {
		return newErr(ErrEnumNoSuchEntry, name, "no entry named %q", entryName)
	}
	addr, length, err := nm.resolveAddress(ctx, decl)
	if err != nil {
		return err
	}
	payload, err := signedToBytesBE(value, length)
	if err != nil {
		return rangeErr(name, "entry %q value %d does not fit in %d bytes", entryName, value, length)
	}
	if err := nm.io.Write(ctx, addr, payload); err != nil {
		return wrapIOErr(name, err)
	}
	cached := entryName
	en.cached = &cached
	nm.invalidateDependents(name)
	nm.bumpVersion()
	return nil
}

// ListEnumEntries returns the node's entry names, sorted lexically
// (spec.md §4.3.4 "Listing entries").
func (nm *NodeMap) ListEnumEntries(name string) ([]string, error) {
	nm.mu.Lock()
	defer nm.mu.Unlock()
	n, err := nm.getNode(name)
	if err != nil {
		return nil, err
	}
	if n.enum == nil {
		return nil, newErr(ErrType, name, "node is not an enum")
	}
	names := make([]string, 0, len(n.enum.decl.Entries))
	seen := make(map[string]bool, len(n.enum.decl.Entries))
	for _, entry := range n.enum.decl.Entries {
		if seen[entry.Name] {
			continue
		}
		seen[entry.Name] = true
		names = append(names, entry.Name)
	}
	sort.Strings(names)
	return names, nil
}

// --- Command ---------------------------------------------------------------

// Execute implements spec.md §3.1/§4.3.6: writes a payload where every
// byte is 0x00 except the last, which is 0x01.
func (nm *NodeMap) Execute(ctx context.Context, name string) error {
	nm.mu.Lock()
	defer nm.mu.Unlock()
	n, err := nm.getNode(name)
	if err != nil {
		return err
	}
	if n.command == nil {
		return newErr(ErrType, name, "node is not a command")
	}
	decl := n.command.decl
	if decl.CommandLen == 0 {
		return newErr(ErrParse, name, "command length is zero")
	}
	payload := make([]byte, decl.CommandLen)
	payload[len(payload)-1] = 0x01
	if err := nm.io.Write(ctx, decl.CommandAddress, payload); err != nil {
		return wrapIOErr(name, err)
	}
	nm.invalidateDependents(name)
	nm.bumpVersion()
	return nil
}

// Kind reports the GenApi node kind for a declared node.
func (nm *NodeMap) Kind(name string) (genxml.NodeKind, error) {
	nm.mu.Lock()
	defer nm.mu.Unlock()
	n, err := nm.getNode(name)
	if err != nil {
		return 0, err
	}
	return n.decl().Kind, nil
}
