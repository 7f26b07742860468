package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"gencam.dev/gencam/pkg/genapi"
)

// exitCodeFor maps each genapi.ErrorKind to a distinct process exit
// code, per spec.md §7. Errors outside the genapi taxonomy (flag
// validation, transport setup) exit 1.
func exitCodeFor(err error) int {
	var gerr *genapi.Error
	if ge, ok := err.(*genapi.Error); ok {
		gerr = ge
	} else {
		return 1
	}
	switch gerr.Kind {
	case genapi.ErrNodeNotFound:
		return 10
	case genapi.ErrType:
		return 11
	case genapi.ErrAccess:
		return 12
	case genapi.ErrRange:
		return 13
	case genapi.ErrUnavailable:
		return 14
	case genapi.ErrIO:
		return 15
	case genapi.ErrParse:
		return 16
	case genapi.ErrEnumValueUnknown:
		return 17
	case genapi.ErrEnumNoSuchEntry:
		return 18
	case genapi.ErrBadIndirectAddress:
		return 19
	case genapi.ErrBitfieldOutOfRange:
		return 20
	case genapi.ErrValueTooWide:
		return 21
	default:
		return 1
	}
}

// errorKindName gives the JSON-serialized name for a genapi.ErrorKind,
// used by failf's --json error envelope.
func errorKindName(kind genapi.ErrorKind) string {
	switch kind {
	case genapi.ErrNodeNotFound:
		return "node_not_found"
	case genapi.ErrType:
		return "type"
	case genapi.ErrAccess:
		return "access"
	case genapi.ErrRange:
		return "range"
	case genapi.ErrUnavailable:
		return "unavailable"
	case genapi.ErrIO:
		return "io"
	case genapi.ErrParse:
		return "parse"
	case genapi.ErrEnumValueUnknown:
		return "enum_value_unknown"
	case genapi.ErrEnumNoSuchEntry:
		return "enum_no_such_entry"
	case genapi.ErrBadIndirectAddress:
		return "bad_indirect_address"
	case genapi.ErrBitfieldOutOfRange:
		return "bitfield_out_of_range"
	case genapi.ErrValueTooWide:
		return "value_too_wide"
	default:
		return "unknown"
	}
}

// failf reports err in the format --json selects, then exits with the
// code exitCodeFor maps it to (spec.md §7's error contract).
func failf(err error) {
	if jsonOutput {
		kind := "unknown"
		if gerr, ok := err.(*genapi.Error); ok {
			kind = errorKindName(gerr.Kind)
		}
		out, _ := json.Marshal(struct {
			Error struct {
				Kind    string `json:"kind"`
				Message string `json:"message"`
			} `json:"error"`
		}{
			Error: struct {
				Kind    string `json:"kind"`
				Message string `json:"message"`
			}{Kind: kind, Message: err.Error()},
		})
		fmt.Fprintln(os.Stderr, string(out))
	} else {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	}
	os.Exit(exitCodeFor(err))
}
