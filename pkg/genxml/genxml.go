// Package genxml parses a GenICam "register description" XML document
// into a flat sequence of node declarations. Grounded on
// genapi-xml/src/lib.rs's streaming, depth-tracking event loop (here
// re-expressed over encoding/xml.Decoder.Token instead of quick-xml)
// and on spec.md §4.2's element/attribute grammar.
package genxml

import (
	"encoding/xml"
	"fmt"
	"io"
	"strconv"
	"strings"

	"gencam.dev/gencam/pkg/bitops"
)

// AccessMode is a node's declared access privilege.
type AccessMode int

const (
	RO AccessMode = iota
	WO
	RW
)

func parseAccessMode(s string) (AccessMode, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "RO":
		return RO, nil
	case "WO":
		return WO, nil
	case "RW":
		return RW, nil
	default:
		return 0, fmt.Errorf("genxml: unknown access mode %q", s)
	}
}

// AddressingKind discriminates the three Addressing forms in spec.md §3.1.
type AddressingKind int

const (
	AddrFixed AddressingKind = iota
	AddrBySelector
	AddrIndirect
)

// SelectorBinding is one (selector value -> address,len) entry of a
// BySelector addressing map.
type SelectorBinding struct {
	Value   string
	Address uint64
	Len     uint32
}

// Addressing is exactly one of Fixed / BySelector / Indirect, per
// spec.md §3.1.
type Addressing struct {
	Kind AddressingKind

	// Fixed
	Address uint64
	Len     uint32

	// BySelector
	Selector string
	Bindings []SelectorBinding

	// Indirect
	PAddressNode string
}

// SelectedIf is a (selector_name, allowed_values) gating rule.
type SelectedIf struct {
	Selector string
	Allowed  []string
}

// EnumValueKind discriminates an enum entry's value source.
type EnumValueKind int

const (
	EnumLiteral EnumValueKind = iota
	EnumFromNode
)

// EnumEntry is one declared entry of an Enumeration node.
type EnumEntry struct {
	Name        string
	ValueKind   EnumValueKind
	Literal     int64
	ProviderRef string
}

// NodeKind discriminates the six declaration kinds in spec.md §3.1.
type NodeKind int

const (
	KindInteger NodeKind = iota
	KindFloat
	KindEnum
	KindBoolean
	KindCommand
	KindCategory
)

// NodeDecl is a single parsed node declaration. Fields not applicable
// to Kind are left zero-valued, mirroring the Rust enum's per-variant
// fields collapsed into one struct for a Go-idiomatic flat representation.
type NodeDecl struct {
	Kind NodeKind
	Name string

	Addressing Addressing

	Access AccessMode

	Min, Max int64
	Inc      *int64
	Unit     string

	FMin, FMax   float64
	ScaleNum     int64
	ScaleDen     int64
	HasScale     bool
	Offset       float64
	HasOffset    bool

	Bitfield    *bitops.Field
	HasBitfield bool

	Entries []EnumEntry
	Default string

	Selectors  []string
	SelectedIf []SelectedIf

	CommandAddress uint64
	CommandLen     uint32

	Children []string
}

// Model is the parsed document: schema version plus the flat node list.
type Model struct {
	Version string
	Nodes   []NodeDecl
}

// Error kinds mirror XmlError in genapi-xml/src/lib.rs.
type Error struct {
	Kind string // "xml" | "invalid" | "unsupported"
	Msg  string
}

func (e *Error) Error() string { return fmt.Sprintf("genxml: %s: %s", e.Kind, e.Msg) }

func invalid(format string, args ...interface{}) error {
	return &Error{Kind: "invalid", Msg: fmt.Sprintf(format, args...)}
}

func xmlErr(err error) error {
	return &Error{Kind: "xml", Msg: err.Error()}
}

// Parse parses a GenICam XML document into a Model. Unknown child
// elements are skipped as opaque subtrees (spec.md §4.2).
func Parse(data []byte) (*Model, error) {
	dec := xml.NewDecoder(strings.NewReader(string(data)))
	model := &Model{Version: "0.0.0"}

	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, xmlErr(err)
		}
		start, ok := tok.(xml.StartElement)
		if !ok {
			continue
		}
		switch start.Name.Local {
		case "RegisterDescription":
			model.Version = schemaVersion(start)
		case "Integer":
			decl, err := parseIntegerLike(dec, start, KindInteger)
			if err != nil {
				return nil, err
			}
			model.Nodes = append(model.Nodes, decl)
		case "Float":
			decl, err := parseFloat(dec, start)
			if err != nil {
				return nil, err
			}
			model.Nodes = append(model.Nodes, decl)
		case "Enumeration":
			decl, err := parseEnum(dec, start)
			if err != nil {
				return nil, err
			}
			model.Nodes = append(model.Nodes, decl)
		case "Boolean":
			decl, err := parseIntegerLike(dec, start, KindBoolean)
			if err != nil {
				return nil, err
			}
			model.Nodes = append(model.Nodes, decl)
		case "Command":
			decl, err := parseCommand(dec, start)
			if err != nil {
				return nil, err
			}
			model.Nodes = append(model.Nodes, decl)
		case "Category":
			decl, err := parseCategory(dec, start)
			if err != nil {
				return nil, err
			}
			model.Nodes = append(model.Nodes, decl)
		default:
			if err := dec.Skip(); err != nil {
				return nil, xmlErr(err)
			}
		}
	}
	return model, nil
}

func attr(start xml.StartElement, name string) (string, bool) {
	for _, a := range start.Attr {
		if a.Name.Local == name {
			return a.Value, true
		}
	}
	return "", false
}

func schemaVersion(start xml.StartElement) string {
	major, _ := attr(start, "SchemaMajorVersion")
	minor, _ := attr(start, "SchemaMinorVersion")
	sub, _ := attr(start, "SchemaSubMinorVersion")
	if major == "" {
		major = "0"
	}
	if minor == "" {
		minor = "0"
	}
	if sub == "" {
		sub = "0"
	}
	return fmt.Sprintf("%s.%s.%s", major, minor, sub)
}

// parseNumber accepts decimal or 0x-prefixed hexadecimal, with
// underscores stripped, per spec.md §4.2.
func parseNumber(text string) (int64, error) {
	t := strings.ReplaceAll(strings.TrimSpace(text), "_", "")
	neg := false
	if strings.HasPrefix(t, "-") {
		neg = true
		t = t[1:]
	}
	var v uint64
	var err error
	if strings.HasPrefix(t, "0x") || strings.HasPrefix(t, "0X") {
		v, err = strconv.ParseUint(t[2:], 16, 64)
	} else {
		v, err = strconv.ParseUint(t, 10, 64)
	}
	if err != nil {
		return 0, invalid("malformed integer %q", text)
	}
	signed := int64(v)
	if neg {
		signed = -signed
	}
	return signed, nil
}

func parseFloat64(text string) (float64, error) {
	v, err := strconv.ParseFloat(strings.TrimSpace(text), 64)
	if err != nil {
		return 0, invalid("malformed float %q", text)
	}
	return v, nil
}

// readText consumes character data up to the matching end element for
// the element just opened (start), returning its text content. Used
// for simple scalar child elements like <Address>0x100</Address>.
func readText(dec *xml.Decoder) (string, error) {
	var sb strings.Builder
	depth := 0
	for {
		tok, err := dec.Token()
		if err != nil {
			return "", xmlErr(err)
		}
		switch t := tok.(type) {
		case xml.CharData:
			sb.Write(t)
		case xml.StartElement:
			depth++
			if err := skipElement(dec); err != nil {
				return "", err
			}
			depth--
		case xml.EndElement:
			if depth == 0 {
				return sb.String(), nil
			}
		}
	}
}

func skipElement(dec *xml.Decoder) error {
	depth := 1
	for depth > 0 {
		tok, err := dec.Token()
		if err != nil {
			return xmlErr(err)
		}
		switch tok.(type) {
		case xml.StartElement:
			depth++
		case xml.EndElement:
			depth--
		}
	}
	return nil
}

func parseEndianness(text string) bitops.ByteOrder {
	if strings.EqualFold(strings.TrimSpace(text), "BigEndian") {
		return bitops.BigEndian
	}
	return bitops.LittleEndian
}

// parseScale accepts "num/den" or a bare decimal, approximated per
// spec.md §4.2 as round(x*1e6)/1e6 (DESIGN.md Open Question 4).
func parseScale(text string) (num, den int64, err error) {
	t := strings.TrimSpace(text)
	if idx := strings.IndexByte(t, '/'); idx >= 0 {
		n, err1 := parseNumber(t[:idx])
		d, err2 := parseNumber(t[idx+1:])
		if err1 != nil || err2 != nil {
			return 0, 0, invalid("malformed scale %q", text)
		}
		return n, d, nil
	}
	f, err := parseFloat64(t)
	if err != nil {
		return 0, 0, err
	}
	const denom = 1_000_000
	return int64(f*denom + sign(f)*0.5), denom, nil
}

func sign(f float64) float64 {
	if f < 0 {
		return -1
	}
	return 1
}
