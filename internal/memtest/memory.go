// Package memtest provides an in-process linear memory for tests that drive
// host functions without a real WebAssembly instance.
package memtest

import (
	"encoding/binary"
	"math"

	"github.com/wippyai/world-wasm/errors"
)

const PageSize = 64 << 10

// Memory implements worldwasm.Memory over a growable byte slice with a bump
// allocator. Grow replaces the backing slice, like wasm memory.grow.
type Memory struct {
	data []byte
	next uint32
}

// New returns a memory of the given number of pages. Allocation starts at
// 1024 so that zero is never a valid pointer.
func New(pages int) *Memory {
	return &Memory{data: make([]byte, pages*PageSize), next: 1024}
}

func (m *Memory) check(offset, length uint32) error {
	if uint64(offset)+uint64(length) > uint64(len(m.data)) {
		return errors.OutOfBounds(errors.PhaseMarshal, []string{"memory"}, int(offset)+int(length), len(m.data))
	}
	return nil
}

func (m *Memory) Read(offset uint32, length uint32) ([]byte, error) {
	if err := m.check(offset, length); err != nil {
		return nil, err
	}
	return m.data[offset : offset+length : offset+length], nil
}

func (m *Memory) Write(offset uint32, data []byte) error {
	if err := m.check(offset, uint32(len(data))); err != nil {
		return err
	}
	copy(m.data[offset:], data)
	return nil
}

func (m *Memory) ReadU8(offset uint32) (uint8, error) {
	if err := m.check(offset, 1); err != nil {
		return 0, err
	}
	return m.data[offset], nil
}

func (m *Memory) ReadU32(offset uint32) (uint32, error) {
	if err := m.check(offset, 4); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(m.data[offset:]), nil
}

func (m *Memory) ReadU64(offset uint32) (uint64, error) {
	if err := m.check(offset, 8); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(m.data[offset:]), nil
}

func (m *Memory) WriteU8(offset uint32, value uint8) error {
	if err := m.check(offset, 1); err != nil {
		return err
	}
	m.data[offset] = value
	return nil
}

func (m *Memory) WriteU32(offset uint32, value uint32) error {
	if err := m.check(offset, 4); err != nil {
		return err
	}
	binary.LittleEndian.PutUint32(m.data[offset:], value)
	return nil
}

func (m *Memory) WriteU64(offset uint32, value uint64) error {
	if err := m.check(offset, 8); err != nil {
		return err
	}
	binary.LittleEndian.PutUint64(m.data[offset:], value)
	return nil
}

// Size returns the memory size in bytes.
func (m *Memory) Size() uint32 {
	return uint32(len(m.data))
}

// Grow adds pages and returns the previous page count. Slices returned by
// Read before Grow no longer alias memory.
func (m *Memory) Grow(pages int) int {
	prev := len(m.data) / PageSize
	data := make([]byte, len(m.data)+pages*PageSize)
	copy(data, m.data)
	m.data = data
	return prev
}

// Alloc reserves size bytes aligned to 8 and returns the pointer. Memory
// grows when the allocation does not fit.
func (m *Memory) Alloc(size uint32) uint32 {
	ptr := (m.next + 7) &^ 7
	end := uint64(ptr) + uint64(size)
	if end > uint64(len(m.data)) {
		m.Grow(int((end-uint64(len(m.data))+PageSize-1) / PageSize))
	}
	m.next = uint32(end)
	return ptr
}

// PutFloat64s writes xs at ptr.
func (m *Memory) PutFloat64s(ptr uint32, xs []float64) error {
	for i, x := range xs {
		if err := m.WriteU64(ptr+uint32(i)*8, math.Float64bits(x)); err != nil {
			return err
		}
	}
	return nil
}

// Float64s reads n float64 values at ptr.
func (m *Memory) Float64s(ptr uint32, n int) ([]float64, error) {
	out := make([]float64, n)
	for i := range out {
		v, err := m.ReadU64(ptr + uint32(i)*8)
		if err != nil {
			return nil, err
		}
		out[i] = math.Float64frombits(v)
	}
	return out, nil
}

// PutIovecs writes {ptr, len} pairs for regions at iovs.
func (m *Memory) PutIovecs(iovs uint32, regions ...[2]uint32) error {
	for i, r := range regions {
		base := iovs + uint32(i)*8
		if err := m.WriteU32(base, r[0]); err != nil {
			return err
		}
		if err := m.WriteU32(base+4, r[1]); err != nil {
			return err
		}
	}
	return nil
}
