package genxml

import (
	"encoding/xml"

	"gencam.dev/gencam/pkg/bitops"
)

// parseIntegerLike handles both <Integer> and <Boolean>, which share
// every child element except that Boolean has no Min/Max/Inc/Unit.
func parseIntegerLike(dec *xml.Decoder, start xml.StartElement, kind NodeKind) (NodeDecl, error) {
	decl := NodeDecl{Kind: kind}
	if name, ok := attr(start, "Name"); ok {
		decl.Name = name
	}

	var bindings []SelectorBinding
	var selectorName string
	var curSelectorValue string

	for {
		tok, err := dec.Token()
		if err != nil {
			return decl, xmlErr(err)
		}
		switch t := tok.(type) {
		case xml.EndElement:
			if t.Name.Local == start.Name.Local {
				decl.Addressing = buildAddressing(decl.Addressing, selectorName, bindings)
				return decl, nil
			}
		case xml.StartElement:
			switch t.Name.Local {
			case "Address":
				text, err := readText(dec)
				if err != nil {
					return decl, err
				}
				v, err := parseNumber(text)
				if err != nil {
					return decl, err
				}
				if curSelectorValue != "" {
					bindings = append(bindings, SelectorBinding{Value: curSelectorValue, Address: uint64(v), Len: decl.Addressing.Len})
				} else {
					decl.Addressing.Kind = AddrFixed
					decl.Addressing.Address = uint64(v)
				}
			case "Length":
				text, err := readText(dec)
				if err != nil {
					return decl, err
				}
				v, err := parseNumber(text)
				if err != nil {
					return decl, err
				}
				decl.Addressing.Len = uint32(v)
			case "pAddress":
				text, err := readText(dec)
				if err != nil {
					return decl, err
				}
				decl.Addressing.Kind = AddrIndirect
				decl.Addressing.PAddressNode = text
			case "Selected":
				// <Selected Selector="X">value</Selected> marks which
				// selector value the immediately following Address
				// belongs to, for BySelector addressing.
				sel, _ := attr(t, "Selector")
				if sel != "" {
					selectorName = sel
					decl.Addressing.Selector = sel
				}
				text, err := readText(dec)
				if err != nil {
					return decl, err
				}
				curSelectorValue = text
			case "SelectedIf":
				sel, _ := attr(t, "Selector")
				text, err := readText(dec)
				if err != nil {
					return decl, err
				}
				decl.SelectedIf = append(decl.SelectedIf, SelectedIf{Selector: sel, Allowed: splitCSV(text)})
			case "Selector":
				text, err := readText(dec)
				if err != nil {
					return decl, err
				}
				decl.Selectors = append(decl.Selectors, text)
			case "AccessMode":
				text, err := readText(dec)
				if err != nil {
					return decl, err
				}
				mode, err := parseAccessMode(text)
				if err != nil {
					return decl, err
				}
				decl.Access = mode
			case "Min":
				text, err := readText(dec)
				if err != nil {
					return decl, err
				}
				v, err := parseNumber(text)
				if err != nil {
					return decl, err
				}
				decl.Min = v
			case "Max":
				text, err := readText(dec)
				if err != nil {
					return decl, err
				}
				v, err := parseNumber(text)
				if err != nil {
					return decl, err
				}
				decl.Max = v
			case "Inc":
				text, err := readText(dec)
				if err != nil {
					return decl, err
				}
				v, err := parseNumber(text)
				if err != nil {
					return decl, err
				}
				decl.Inc = &v
			case "Unit":
				text, err := readText(dec)
				if err != nil {
					return decl, err
				}
				decl.Unit = text
			case "Bit", "Mask", "Lsb", "Msb", "Endianness":
				if err := parseBitfieldAttr(dec, t, &decl); err != nil {
					return decl, err
				}
			default:
				if err := skipElement(dec); err != nil {
					return decl, err
				}
			}
		}
	}
}

// buildAddressing finalizes the Addressing variant once the element
// closes: a BySelector node accumulates its Selected/Address pairs
// into Bindings rather than a single Address.
func buildAddressing(addr Addressing, selectorName string, bindings []SelectorBinding) Addressing {
	if len(bindings) > 0 {
		for i := range bindings {
			bindings[i].Len = addr.Len
		}
		addr.Kind = AddrBySelector
		addr.Selector = selectorName
		addr.Bindings = bindings
	}
	return addr
}

func splitCSV(s string) []string {
	var out []string
	cur := ""
	for _, r := range s {
		if r == ',' {
			out = append(out, trimSpace(cur))
			cur = ""
			continue
		}
		cur += string(r)
	}
	if cur != "" {
		out = append(out, trimSpace(cur))
	}
	return out
}

func trimSpace(s string) string {
	start, end := 0, len(s)
	for start < end && isSpace(s[start]) {
		start++
	}
	for end > start && isSpace(s[end-1]) {
		end--
	}
	return s[start:end]
}

func isSpace(b byte) bool { return b == ' ' || b == '\t' || b == '\n' || b == '\r' }

// parseBitfieldAttr handles Bit/Mask/Lsb+Msb bitfield declarations,
// each implying LittleEndian unless an explicit Endianness child is
// also present (spec.md §4.2 bitfield grammar).
func parseBitfieldAttr(dec *xml.Decoder, start xml.StartElement, decl *NodeDecl) error {
	text, err := readText(dec)
	if err != nil {
		return err
	}
	if decl.Bitfield == nil {
		decl.Bitfield = &bitops.Field{ByteOrder: bitops.LittleEndian}
	}
	decl.HasBitfield = true
	switch start.Name.Local {
	case "Bit":
		v, err := parseNumber(text)
		if err != nil {
			return err
		}
		decl.Bitfield.BitOffset = uint16(v)
		decl.Bitfield.BitLength = 1
	case "Lsb":
		v, err := parseNumber(text)
		if err != nil {
			return err
		}
		decl.Bitfield.BitOffset = uint16(v)
	case "Msb":
		v, err := parseNumber(text)
		if err != nil {
			return err
		}
		msb := uint16(v)
		if msb >= decl.Bitfield.BitOffset {
			decl.Bitfield.BitLength = msb - decl.Bitfield.BitOffset + 1
		}
	case "Mask":
		v, err := parseNumber(text)
		if err != nil {
			return err
		}
		mask := uint64(v)
		lsb, msb, ok := maskBounds(mask)
		if !ok {
			return invalid("mask %q is not a contiguous bitfield", text)
		}
		decl.Bitfield.BitOffset = lsb
		decl.Bitfield.BitLength = msb - lsb + 1
	case "Endianness":
		decl.Bitfield.ByteOrder = parseEndianness(text)
	}
	return nil
}

// maskBounds returns the lsb/msb bit indices of a contiguous set-bit
// run in mask, or ok=false if mask is zero or its set bits aren't
// contiguous.
func maskBounds(mask uint64) (lsb, msb uint16, ok bool) {
	if mask == 0 {
		return 0, 0, false
	}
	for lsb = 0; mask&(1<<lsb) == 0; lsb++ {
	}
	m := mask >> lsb
	for msb = lsb; m&1 == 1; msb++ {
		m >>= 1
	}
	msb--
	if m != 0 {
		return 0, 0, false
	}
	return lsb, msb, true
}

func parseFloat(dec *xml.Decoder, start xml.StartElement) (NodeDecl, error) {
	decl := NodeDecl{Kind: KindFloat}
	if name, ok := attr(start, "Name"); ok {
		decl.Name = name
	}
	for {
		tok, err := dec.Token()
		if err != nil {
			return decl, xmlErr(err)
		}
		switch t := tok.(type) {
		case xml.EndElement:
			if t.Name.Local == start.Name.Local {
				return decl, nil
			}
		case xml.StartElement:
			switch t.Name.Local {
			case "Address":
				text, err := readText(dec)
				if err != nil {
					return decl, err
				}
				v, err := parseNumber(text)
				if err != nil {
					return decl, err
				}
				decl.Addressing.Kind = AddrFixed
				decl.Addressing.Address = uint64(v)
			case "pAddress":
				text, err := readText(dec)
				if err != nil {
					return decl, err
				}
				decl.Addressing.Kind = AddrIndirect
				decl.Addressing.PAddressNode = text
			case "Length":
				text, err := readText(dec)
				if err != nil {
					return decl, err
				}
				v, err := parseNumber(text)
				if err != nil {
					return decl, err
				}
				decl.Addressing.Len = uint32(v)
			case "AccessMode":
				text, err := readText(dec)
				if err != nil {
					return decl, err
				}
				mode, err := parseAccessMode(text)
				if err != nil {
					return decl, err
				}
				decl.Access = mode
			case "Min":
				text, err := readText(dec)
				if err != nil {
					return decl, err
				}
				v, err := parseFloat64(text)
				if err != nil {
					return decl, err
				}
				decl.FMin = v
			case "Max":
				text, err := readText(dec)
				if err != nil {
					return decl, err
				}
				v, err := parseFloat64(text)
				if err != nil {
					return decl, err
				}
				decl.FMax = v
			case "Unit":
				text, err := readText(dec)
				if err != nil {
					return decl, err
				}
				decl.Unit = text
			case "Representation":
				if err := skipElement(dec); err != nil {
					return decl, err
				}
			default:
				if err := skipElement(dec); err != nil {
					return decl, err
				}
			}
		}
	}
}

func parseEnum(dec *xml.Decoder, start xml.StartElement) (NodeDecl, error) {
	decl := NodeDecl{Kind: KindEnum}
	if name, ok := attr(start, "Name"); ok {
		decl.Name = name
	}
	for {
		tok, err := dec.Token()
		if err != nil {
			return decl, xmlErr(err)
		}
		switch t := tok.(type) {
		case xml.EndElement:
			if t.Name.Local == start.Name.Local {
				return decl, nil
			}
		case xml.StartElement:
			switch t.Name.Local {
			case "Address":
				text, err := readText(dec)
				if err != nil {
					return decl, err
				}
				v, err := parseNumber(text)
				if err != nil {
					return decl, err
				}
				decl.Addressing.Kind = AddrFixed
				decl.Addressing.Address = uint64(v)
			case "Length":
				text, err := readText(dec)
				if err != nil {
					return decl, err
				}
				v, err := parseNumber(text)
				if err != nil {
					return decl, err
				}
				decl.Addressing.Len = uint32(v)
			case "AccessMode":
				text, err := readText(dec)
				if err != nil {
					return decl, err
				}
				mode, err := parseAccessMode(text)
				if err != nil {
					return decl, err
				}
				decl.Access = mode
			case "EnumEntry":
				entry, err := parseEnumEntry(dec, t)
				if err != nil {
					return decl, err
				}
				decl.Entries = append(decl.Entries, entry)
			case "Value":
				text, err := readText(dec)
				if err != nil {
					return decl, err
				}
				decl.Default = text
			default:
				if err := skipElement(dec); err != nil {
					return decl, err
				}
			}
		}
	}
}

func parseEnumEntry(dec *xml.Decoder, start xml.StartElement) (EnumEntry, error) {
	entry := EnumEntry{}
	if name, ok := attr(start, "Name"); ok {
		entry.Name = name
	}
	for {
		tok, err := dec.Token()
		if err != nil {
			return entry, xmlErr(err)
		}
		switch t := tok.(type) {
		case xml.EndElement:
			if t.Name.Local == start.Name.Local {
				return entry, nil
			}
		case xml.StartElement:
			switch t.Name.Local {
			case "Value":
				text, err := readText(dec)
				if err != nil {
					return entry, err
				}
				v, err := parseNumber(text)
				if err != nil {
					return entry, err
				}
				entry.ValueKind = EnumLiteral
				entry.Literal = v
			case "pValue":
				text, err := readText(dec)
				if err != nil {
					return entry, err
				}
				entry.ValueKind = EnumFromNode
				entry.ProviderRef = text
			default:
				if err := skipElement(dec); err != nil {
					return entry, err
				}
			}
		}
	}
}

func parseCommand(dec *xml.Decoder, start xml.StartElement) (NodeDecl, error) {
	decl := NodeDecl{Kind: KindCommand}
	if name, ok := attr(start, "Name"); ok {
		decl.Name = name
	}
	for {
		tok, err := dec.Token()
		if err != nil {
			return decl, xmlErr(err)
		}
		switch t := tok.(type) {
		case xml.EndElement:
			if t.Name.Local == start.Name.Local {
				return decl, nil
			}
		case xml.StartElement:
			switch t.Name.Local {
			case "Address":
				text, err := readText(dec)
				if err != nil {
					return decl, err
				}
				v, err := parseNumber(text)
				if err != nil {
					return decl, err
				}
				decl.Addressing.Kind = AddrFixed
				decl.Addressing.Address = uint64(v)
				decl.CommandAddress = uint64(v)
			case "Length":
				text, err := readText(dec)
				if err != nil {
					return decl, err
				}
				v, err := parseNumber(text)
				if err != nil {
					return decl, err
				}
				decl.Addressing.Len = uint32(v)
				decl.CommandLen = uint32(v)
			case "CommandValue":
				text, err := readText(dec)
				if err != nil {
					return decl, err
				}
				v, err := parseNumber(text)
				if err != nil {
					return decl, err
				}
				decl.Min = v
			default:
				if err := skipElement(dec); err != nil {
					return decl, err
				}
			}
		}
	}
}

func parseCategory(dec *xml.Decoder, start xml.StartElement) (NodeDecl, error) {
	decl := NodeDecl{Kind: KindCategory}
	if name, ok := attr(start, "Name"); ok {
		decl.Name = name
	}
	for {
		tok, err := dec.Token()
		if err != nil {
			return decl, xmlErr(err)
		}
		switch t := tok.(type) {
		case xml.EndElement:
			if t.Name.Local == start.Name.Local {
				return decl, nil
			}
		case xml.StartElement:
			switch t.Name.Local {
			case "pFeature":
				text, err := readText(dec)
				if err != nil {
					return decl, err
				}
				decl.Children = append(decl.Children, text)
			default:
				if err := skipElement(dec); err != nil {
					return decl, err
				}
			}
		}
	}
}
