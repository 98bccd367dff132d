package engine

import (
	"github.com/tetratelabs/wazero/api"

	worldwasm "github.com/wippyai/world-wasm"
	"github.com/wippyai/world-wasm/errors"
)

// WazeroMemory wraps wazero memory to implement worldwasm.Memory.
// Every access goes through api.Memory, which always sees the current
// buffer, so growth between accesses is safe. A WazeroMemory without a
// backing memory has size 0 and fails every access as out of bounds.
type WazeroMemory struct {
	mem api.Memory
}

// NewMemory wraps mem, which may be nil.
func NewMemory(mem api.Memory) *WazeroMemory {
	return &WazeroMemory{mem: mem}
}

// exportedMemory returns the module's "memory" export or a true nil.
// api.Module.Memory returns a typed nil for modules without memory.
func exportedMemory(m api.Module) api.Memory {
	return m.ExportedMemory("memory")
}

func outOfBounds(offset, length uint32, size uint32) error {
	return errors.New(errors.PhaseMarshal, errors.KindOutOfBounds).
		Value(offset).
		Detail("access [%d, %d) outside memory of %d bytes", offset, uint64(offset)+uint64(length), size).
		Build()
}

func (m *WazeroMemory) Read(offset uint32, length uint32) ([]byte, error) {
	if m.mem == nil {
		return nil, outOfBounds(offset, length, 0)
	}
	data, ok := m.mem.Read(offset, length)
	if !ok {
		return nil, outOfBounds(offset, length, m.mem.Size())
	}
	return data, nil
}

func (m *WazeroMemory) Write(offset uint32, data []byte) error {
	if m.mem == nil {
		return outOfBounds(offset, uint32(len(data)), 0)
	}
	if !m.mem.Write(offset, data) {
		return outOfBounds(offset, uint32(len(data)), m.mem.Size())
	}
	return nil
}

func (m *WazeroMemory) ReadU8(offset uint32) (uint8, error) {
	if m.mem == nil {
		return 0, outOfBounds(offset, 1, 0)
	}
	v, ok := m.mem.ReadByte(offset)
	if !ok {
		return 0, outOfBounds(offset, 1, m.mem.Size())
	}
	return v, nil
}

func (m *WazeroMemory) ReadU32(offset uint32) (uint32, error) {
	if m.mem == nil {
		return 0, outOfBounds(offset, 4, 0)
	}
	v, ok := m.mem.ReadUint32Le(offset)
	if !ok {
		return 0, outOfBounds(offset, 4, m.mem.Size())
	}
	return v, nil
}

func (m *WazeroMemory) ReadU64(offset uint32) (uint64, error) {
	if m.mem == nil {
		return 0, outOfBounds(offset, 8, 0)
	}
	v, ok := m.mem.ReadUint64Le(offset)
	if !ok {
		return 0, outOfBounds(offset, 8, m.mem.Size())
	}
	return v, nil
}

func (m *WazeroMemory) WriteU8(offset uint32, value uint8) error {
	if m.mem == nil {
		return outOfBounds(offset, 1, 0)
	}
	if !m.mem.WriteByte(offset, value) {
		return outOfBounds(offset, 1, m.mem.Size())
	}
	return nil
}

func (m *WazeroMemory) WriteU32(offset uint32, value uint32) error {
	if m.mem == nil {
		return outOfBounds(offset, 4, 0)
	}
	if !m.mem.WriteUint32Le(offset, value) {
		return outOfBounds(offset, 4, m.mem.Size())
	}
	return nil
}

func (m *WazeroMemory) WriteU64(offset uint32, value uint64) error {
	if m.mem == nil {
		return outOfBounds(offset, 8, 0)
	}
	if !m.mem.WriteUint64Le(offset, value) {
		return outOfBounds(offset, 8, m.mem.Size())
	}
	return nil
}

// Size returns the current memory size in bytes.
func (m *WazeroMemory) Size() uint32 {
	if m.mem == nil {
		return 0
	}
	return m.mem.Size()
}

var (
	_ worldwasm.Memory      = (*WazeroMemory)(nil)
	_ worldwasm.MemorySizer = (*WazeroMemory)(nil)
)
