package genxml

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const fixture = `
<RegisterDescription SchemaMajorVersion="1" SchemaMinorVersion="1" SchemaSubMinorVersion="0">
  <Category Name="Root">
    <pFeature>Width</pFeature>
    <pFeature>PixelFormat</pFeature>
  </Category>
  <Integer Name="Width">
    <Address>0x100</Address>
    <Length>4</Length>
    <AccessMode>RW</AccessMode>
    <Min>1</Min>
    <Max>4096</Max>
    <Inc>4</Inc>
  </Integer>
  <Boolean Name="TriggerEnable">
    <Address>0x200</Address>
    <Length>4</Length>
    <AccessMode>RW</AccessMode>
    <Bit>0</Bit>
  </Boolean>
  <Enumeration Name="PixelFormat">
    <Address>0x300</Address>
    <Length>4</Length>
    <AccessMode>RW</AccessMode>
    <EnumEntry Name="Mono8"><Value>0</Value></EnumEntry>
    <EnumEntry Name="RGB8"><Value>1</Value></EnumEntry>
  </Enumeration>
  <Command Name="AcquisitionStart">
    <Address>0x400</Address>
    <Length>4</Length>
    <CommandValue>1</CommandValue>
  </Command>
</RegisterDescription>
`

func findNode(m *Model, name string) *NodeDecl {
	for i := range m.Nodes {
		if m.Nodes[i].Name == name {
			return &m.Nodes[i]
		}
	}
	return nil
}

func TestParseSchemaVersion(t *testing.T) {
	m, err := Parse([]byte(fixture))
	require.NoError(t, err)
	assert.Equal(t, "1.1.0", m.Version)
}

func TestParseCategoryChildren(t *testing.T) {
	m, err := Parse([]byte(fixture))
	require.NoError(t, err)
	cat := findNode(m, "Root")
	require.NotNil(t, cat)
	assert.Equal(t, KindCategory, cat.Kind)
	assert.Equal(t, []string{"Width", "PixelFormat"}, cat.Children)
}

func TestParseIntegerFixedAddressing(t *testing.T) {
	m, err := Parse([]byte(fixture))
	require.NoError(t, err)
	width := findNode(m, "Width")
	require.NotNil(t, width)
	assert.Equal(t, AddrFixed, width.Addressing.Kind)
	assert.EqualValues(t, 0x100, width.Addressing.Address)
	assert.EqualValues(t, 4, width.Addressing.Len)
	assert.Equal(t, RW, width.Access)
	assert.EqualValues(t, 1, width.Min)
	assert.EqualValues(t, 4096, width.Max)
	require.NotNil(t, width.Inc)
	assert.EqualValues(t, 4, *width.Inc)
}

func TestParseBooleanBitfield(t *testing.T) {
	m, err := Parse([]byte(fixture))
	require.NoError(t, err)
	trig := findNode(m, "TriggerEnable")
	require.NotNil(t, trig)
	require.True(t, trig.HasBitfield)
	assert.EqualValues(t, 0, trig.Bitfield.BitOffset)
	assert.EqualValues(t, 1, trig.Bitfield.BitLength)
}

func TestParseEnumLiteralEntries(t *testing.T) {
	m, err := Parse([]byte(fixture))
	require.NoError(t, err)
	pf := findNode(m, "PixelFormat")
	require.NotNil(t, pf)
	require.Len(t, pf.Entries, 2)
	assert.Equal(t, "Mono8", pf.Entries[0].Name)
	assert.Equal(t, EnumLiteral, pf.Entries[0].ValueKind)
	assert.EqualValues(t, 0, pf.Entries[0].Literal)
	assert.EqualValues(t, 1, pf.Entries[1].Literal)
}

func TestParseCommand(t *testing.T) {
	m, err := Parse([]byte(fixture))
	require.NoError(t, err)
	cmd := findNode(m, "AcquisitionStart")
	require.NotNil(t, cmd)
	assert.Equal(t, KindCommand, cmd.Kind)
	assert.EqualValues(t, 0x400, cmd.CommandAddress)
	assert.EqualValues(t, 4, cmd.CommandLen)
}

func TestParseIndirectAddressing(t *testing.T) {
	doc := `<RegisterDescription>
      <Integer Name="Indirect"><pAddress>Base</pAddress><Length>4</Length></Integer>
    </RegisterDescription>`
	m, err := Parse([]byte(doc))
	require.NoError(t, err)
	n := findNode(m, "Indirect")
	require.NotNil(t, n)
	assert.Equal(t, AddrIndirect, n.Addressing.Kind)
	assert.Equal(t, "Base", n.Addressing.PAddressNode)
}

func TestParseBySelectorAddressing(t *testing.T) {
	doc := `<RegisterDescription>
      <Integer Name="Gain">
        <Selector>GainSelector</Selector>
        <Selected Selector="GainSelector">All</Selected>
        <Address>0x10</Address>
        <Selected Selector="GainSelector">Red</Selected>
        <Address>0x20</Address>
        <Length>4</Length>
      </Integer>
    </RegisterDescription>`
	m, err := Parse([]byte(doc))
	require.NoError(t, err)
	n := findNode(m, "Gain")
	require.NotNil(t, n)
	require.Equal(t, AddrBySelector, n.Addressing.Kind)
	require.Len(t, n.Addressing.Bindings, 2)
	assert.Equal(t, "All", n.Addressing.Bindings[0].Value)
	assert.EqualValues(t, 0x10, n.Addressing.Bindings[0].Address)
	assert.Equal(t, "Red", n.Addressing.Bindings[1].Value)
	assert.EqualValues(t, 0x20, n.Addressing.Bindings[1].Address)
}

func TestParseEnumProviderEntry(t *testing.T) {
	doc := `<RegisterDescription>
      <Enumeration Name="Source">
        <Address>0x10</Address><Length>4</Length>
        <EnumEntry Name="Dynamic"><pValue>DynamicValueNode</pValue></EnumEntry>
      </Enumeration>
    </RegisterDescription>`
	m, err := Parse([]byte(doc))
	require.NoError(t, err)
	n := findNode(m, "Source")
	require.NotNil(t, n)
	require.Len(t, n.Entries, 1)
	assert.Equal(t, EnumFromNode, n.Entries[0].ValueKind)
	assert.Equal(t, "DynamicValueNode", n.Entries[0].ProviderRef)
}

func TestParseSelectedIfGating(t *testing.T) {
	doc := `<RegisterDescription>
      <Integer Name="BlackLevel">
        <SelectedIf Selector="PixelFormat">Mono8, RGB8</SelectedIf>
        <Address>0x50</Address><Length>4</Length>
      </Integer>
    </RegisterDescription>`
	m, err := Parse([]byte(doc))
	require.NoError(t, err)
	n := findNode(m, "BlackLevel")
	require.NotNil(t, n)
	require.Len(t, n.SelectedIf, 1)
	assert.Equal(t, "PixelFormat", n.SelectedIf[0].Selector)
	assert.Equal(t, []string{"Mono8", "RGB8"}, n.SelectedIf[0].Allowed)
}

func TestParseFloatNode(t *testing.T) {
	doc := `<RegisterDescription>
      <Float Name="ExposureTime">
        <Address>0x60</Address><Length>4</Length>
        <AccessMode>RW</AccessMode>
        <Min>10.0</Min><Max>1000000.0</Max><Unit>us</Unit>
      </Float>
    </RegisterDescription>`
	m, err := Parse([]byte(doc))
	require.NoError(t, err)
	n := findNode(m, "ExposureTime")
	require.NotNil(t, n)
	assert.Equal(t, KindFloat, n.Kind)
	assert.Equal(t, 10.0, n.FMin)
	assert.Equal(t, 1000000.0, n.FMax)
	assert.Equal(t, "us", n.Unit)
}

func TestParseUnknownElementSkipped(t *testing.T) {
	doc := `<RegisterDescription>
      <StructReg Name="Ignored"><Weird><Nested/></Weird></StructReg>
      <Integer Name="Width"><Address>0x1</Address><Length>4</Length></Integer>
    </RegisterDescription>`
	m, err := Parse([]byte(doc))
	require.NoError(t, err)
	require.Len(t, m.Nodes, 1)
	assert.Equal(t, "Width", m.Nodes[0].Name)
}

func TestParseMaskDerivesBitfield(t *testing.T) {
	doc := `<RegisterDescription>
      <Boolean Name="Flag"><Address>0x1</Address><Length>4</Length><Mask>0x0C</Mask></Boolean>
    </RegisterDescription>`
	m, err := Parse([]byte(doc))
	require.NoError(t, err)
	n := findNode(m, "Flag")
	require.NotNil(t, n)
	require.True(t, n.HasBitfield)
	assert.EqualValues(t, 2, n.Bitfield.BitOffset)
	assert.EqualValues(t, 2, n.Bitfield.BitLength)
}

func TestParseNumberHexAndDecimal(t *testing.T) {
	v, err := parseNumber("0x1F")
	require.NoError(t, err)
	assert.EqualValues(t, 31, v)

	v, err = parseNumber("42")
	require.NoError(t, err)
	assert.EqualValues(t, 42, v)
}

func TestParseNumberRejectsMalformed(t *testing.T) {
	_, err := parseNumber("not-a-number")
	require.Error(t, err)
}

func TestParseMalformedXMLReturnsError(t *testing.T) {
	_, err := Parse([]byte(`<RegisterDescription><Integer>`))
	require.Error(t, err)
}
