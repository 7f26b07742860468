package genapi

import "context"

// RegisterIO is the register transport a NodeMap reads and writes
// through — satisfied by pkg/gvcp's control-channel client in
// production and by a fake in tests, mirroring genapi-core's
// RegisterIo trait.
type RegisterIO interface {
	Read(ctx context.Context, address uint64, length uint32) ([]byte, error)
	Write(ctx context.Context, address uint64, data []byte) error
}
