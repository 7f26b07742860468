package genxml

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

type fakeReader struct {
	regs map[uint64][]byte
}

func (f fakeReader) Read(ctx context.Context, address uint64, length uint32) ([]byte, error) {
	return f.regs[address][:length], nil
}

func TestFetchDocumentLocalScheme(t *testing.T) {
	locationURL := []byte("local:address=1000;length=14\x00")
	padded := make([]byte, MaxLocationURLLength)
	copy(padded, locationURL)

	xmlBytes := make([]byte, 20)
	copy(xmlBytes, []byte("<RegisterDescription"))

	r := fakeReader{regs: map[uint64][]byte{
		DocumentLocationAddress: padded,
		0x1000:                  xmlBytes,
	}}

	got, err := FetchDocument(context.Background(), r)
	require.NoError(t, err)
	require.Equal(t, xmlBytes, got)
}

func TestParseLocalURLAliases(t *testing.T) {
	addr, length, err := parseLocalURL("local:addr=0x2000;size=0x40")
	require.NoError(t, err)
	require.EqualValues(t, 0x2000, addr)
	require.EqualValues(t, 0x40, length)
}

func TestParseLocalURLUnsupportedScheme(t *testing.T) {
	_, _, err := parseLocalURL("http://example.com/genapi.xml")
	require.Error(t, err)
}
