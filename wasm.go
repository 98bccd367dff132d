package worldwasm

import "context"

// Memory represents WASM linear memory.
//
// Implementations must resolve the backing storage on every access: the
// engine may grow its memory during any export call, which invalidates
// previously obtained byte slices.
type Memory interface {
	Read(offset uint32, length uint32) ([]byte, error)
	Write(offset uint32, data []byte) error
	ReadU8(offset uint32) (uint8, error)
	ReadU32(offset uint32) (uint32, error)
	ReadU64(offset uint32) (uint64, error)
	WriteU8(offset uint32, value uint8) error
	WriteU32(offset uint32, value uint32) error
	WriteU64(offset uint32, value uint64) error
}

// MemorySizer provides the current size of WASM linear memory in bytes.
type MemorySizer interface {
	Size() uint32
}

// Guest is one instantiated engine module. Numbers cross the boundary as
// float64 and are coerced to each export's declared parameter types.
// A Guest is not safe for concurrent use.
type Guest interface {
	Call(ctx context.Context, name string, args ...float64) (float64, error)
	HasExport(name string) bool
	Memory() Memory
	Close(ctx context.Context) error
}

// Source produces fresh guests, each with its own linear memory.
type Source interface {
	Instantiate(ctx context.Context) (Guest, error)
}
