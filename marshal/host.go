package marshal

import (
	"context"
	"math"

	worldwasm "github.com/wippyai/world-wasm"
	"github.com/wippyai/world-wasm/errors"
	"github.com/wippyai/world-wasm/ndarray"
)

// ModuleName is the import module of the slot functions.
const ModuleName = "env"

// Import names in ModuleName.
const (
	ImportConstructNotify  = "constructNotify"
	ImportReadArray        = "readFloat64Array"
	ImportWriteArray       = "writeFloat64Array"
	ImportReadArray2D      = "readFloat64Array2D"
	ImportWriteArray2D     = "writeFloat64Array2D"
	ImportNotifyMemoryGrow = "emscripten_notify_memory_growth"
)

func memoryError(h Handle, err error) error {
	return errors.New(errors.PhaseMarshal, errors.KindOutOfBounds).
		Path(h.String()).
		Cause(err).
		Detail("linear memory access failed").
		Build()
}

// checkSpan rejects count elements of size bytes at ptr that do not fit in
// memory. Engine-supplied lengths pass through it before anything is
// allocated for them.
func checkSpan(mem worldwasm.Memory, h Handle, ptr uint32, count, size uint64) error {
	limit := uint64(math.MaxUint32) + 1
	if s, ok := mem.(worldwasm.MemorySizer); ok {
		limit = uint64(s.Size())
	}
	if count > limit/size || uint64(ptr)+count*size > limit {
		return errors.New(errors.PhaseMarshal, errors.KindOutOfBounds).
			Path(h.String()).
			Value(ptr).
			Detail("%d elements of %d bytes at %d exceed memory of %d bytes", count, size, ptr, limit).
			Build()
	}
	return nil
}

func readFloat64s(mem worldwasm.Memory, h Handle, ptr uint32, dst []float64) error {
	if len(dst) == 0 {
		return nil
	}
	if err := checkSpan(mem, h, ptr, uint64(len(dst)), 8); err != nil {
		return err
	}
	b, err := mem.Read(ptr, uint32(len(dst)*8))
	if err != nil {
		return memoryError(h, err)
	}
	copy(ndarray.FromSlice(dst).Bytes(), b)
	return nil
}

func writeFloat64s(mem worldwasm.Memory, h Handle, ptr uint32, src []float64) error {
	if len(src) == 0 {
		return nil
	}
	if err := checkSpan(mem, h, ptr, uint64(len(src)), 8); err != nil {
		return err
	}
	if err := mem.Write(ptr, ndarray.FromSlice(src).Bytes()); err != nil {
		return memoryError(h, err)
	}
	return nil
}

func rowPointers(mem worldwasm.Memory, h Handle, ptr, rows uint32) ([]uint32, error) {
	if err := checkSpan(mem, h, ptr, uint64(rows), 4); err != nil {
		return nil, err
	}
	ptrs := make([]uint32, rows)
	for i := range ptrs {
		p, err := mem.ReadU32(ptr + uint32(i)*4)
		if err != nil {
			return nil, memoryError(h, err)
		}
		ptrs[i] = p
	}
	return ptrs, nil
}

// ConstructNotify implements constructNotify(ptr).
func ConstructNotify(ctx context.Context, ptr uint32) error {
	call, err := activeCall(ctx)
	if err != nil {
		return err
	}
	call.Notify(ptr)
	return nil
}

// WriteFloat64Array implements writeFloat64Array(h, ptr, len): the engine
// pushes n values into slot h.
func WriteFloat64Array(ctx context.Context, mem worldwasm.Memory, handle, ptr, n uint32) error {
	call, err := activeCall(ctx)
	if err != nil {
		return err
	}
	h := Handle(handle)
	if err := checkSpan(mem, h, ptr, uint64(n), 8); err != nil {
		return err
	}
	out := make([]float64, n)
	if err := readFloat64s(mem, h, ptr, out); err != nil {
		return err
	}
	return call.Slots.Store(h, Float64s(out))
}

// ReadFloat64Array implements readFloat64Array(h, ptr, len): the engine
// pulls the first n values of slot h.
func ReadFloat64Array(ctx context.Context, mem worldwasm.Memory, handle, ptr, n uint32) error {
	call, err := activeCall(ctx)
	if err != nil {
		return err
	}
	h := Handle(handle)
	s, err := call.Slots.Pull(h)
	if err != nil {
		return err
	}
	if s.kind != SlotVector {
		return errors.InvalidSlot(handle, "%s holds %s, want vector", h, s.kind)
	}
	if s.Len() < int(n) {
		return errors.InvalidSlot(handle, "%s holds %d values, engine wants %d", h, s.Len(), n)
	}
	src, err := ndarray.ToFloat64(s.vec)
	if err != nil {
		return err
	}
	return writeFloat64s(mem, h, ptr, src[:n])
}

// WriteFloat64Array2D implements writeFloat64Array2D(h, ptr, x, y): ptr
// holds x row pointers of y values each.
func WriteFloat64Array2D(ctx context.Context, mem worldwasm.Memory, handle, ptr, x, y uint32) error {
	call, err := activeCall(ctx)
	if err != nil {
		return err
	}
	h := Handle(handle)
	// rows are distinct engine allocations, so together they fit in memory
	if err := checkSpan(mem, h, 0, uint64(x)*uint64(y), 8); err != nil {
		return err
	}
	rows, err := rowPointers(mem, h, ptr, x)
	if err != nil {
		return err
	}
	m, err := ndarray.New[float64](int(x), int(y))
	if err != nil {
		return err
	}
	for i, rp := range rows {
		if err := readFloat64s(mem, h, rp, m.Row(i)); err != nil {
			return err
		}
	}
	s, err := Matrix(m)
	if err != nil {
		return err
	}
	return call.Slots.Store(h, s)
}

// ReadFloat64Array2D implements readFloat64Array2D(h, ptr, x, y): the
// engine pulls x rows of y values from the matrix in slot h.
func ReadFloat64Array2D(ctx context.Context, mem worldwasm.Memory, handle, ptr, x, y uint32) error {
	call, err := activeCall(ctx)
	if err != nil {
		return err
	}
	h := Handle(handle)
	s, err := call.Slots.Pull(h)
	if err != nil {
		return err
	}
	if s.kind != SlotMatrix {
		return errors.InvalidSlot(handle, "%s holds %s, want matrix", h, s.kind)
	}
	shape := s.mat.Shape()
	if shape[0] < int(x) || shape[1] < int(y) {
		return errors.InvalidSlot(handle, "%s has shape %v, engine wants [%d %d]", h, shape, x, y)
	}
	rows, err := rowPointers(mem, h, ptr, x)
	if err != nil {
		return err
	}
	for i, rp := range rows {
		if err := writeFloat64s(mem, h, rp, s.mat.Row(i)[:y]); err != nil {
			return err
		}
	}
	return nil
}

// NotifyMemoryGrowth implements emscripten_notify_memory_growth. Memory is
// resolved on every access, so growth only needs counting. Growth outside a
// call is not an error and returns 0.
func NotifyMemoryGrowth(ctx context.Context, _ uint32) int {
	call := CallFrom(ctx)
	if call == nil {
		return 0
	}
	return call.Grew()
}
