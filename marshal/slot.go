package marshal

import (
	"fmt"

	"github.com/wippyai/world-wasm/errors"
	"github.com/wippyai/world-wasm/ndarray"
)

// Handle indexes a slot.
type Handle uint32

const (
	HandleSignal       Handle = 0
	HandleTimeAxis     Handle = 1
	HandleF0           Handle = 2
	HandleSpectrogram  Handle = 3
	HandleAperiodicity Handle = 4

	// HandleMeta holds [fs, nbit] after a WAV decode.
	HandleMeta = HandleTimeAxis

	numHandles = 5
)

var handleNames = [numHandles]string{"signal", "time_axis", "f0", "spectrogram", "aperiodicity"}

func (h Handle) Valid() bool { return h < numHandles }

func (h Handle) String() string {
	if !h.Valid() {
		return fmt.Sprintf("handle(%d)", uint32(h))
	}
	return handleNames[h]
}

// SlotKind tags the contents of a Slot.
type SlotKind uint8

const (
	SlotEmpty SlotKind = iota
	SlotVector
	SlotMatrix
)

func (k SlotKind) String() string {
	switch k {
	case SlotVector:
		return "vector"
	case SlotMatrix:
		return "matrix"
	default:
		return "empty"
	}
}

// Slot is empty, a 1-D numeric vector or a 2-D float64 matrix.
type Slot struct {
	kind SlotKind
	vec  ndarray.Array
	mat  *ndarray.View[float64]
}

// Vector wraps a 1-D float32 or float64 array.
func Vector(a ndarray.Array) (Slot, error) {
	if a == nil {
		return Slot{}, errors.InvalidInput(errors.PhaseMarshal, "nil vector")
	}
	if a.NDim() != 1 {
		return Slot{}, errors.New(errors.PhaseMarshal, errors.KindShapeMismatch).
			Value(a.Shape()).
			Detail("vector must be 1-D, got %d dimensions", a.NDim()).
			Build()
	}
	if dt := a.DType(); dt != ndarray.Float64 && dt != ndarray.Float32 {
		return Slot{}, errors.New(errors.PhaseMarshal, errors.KindUnsupported).
			DType(string(dt)).
			Detail("vector must be float32 or float64").
			Build()
	}
	return Slot{kind: SlotVector, vec: a}, nil
}

// Float64s wraps xs as a vector slot.
func Float64s(xs []float64) Slot {
	return Slot{kind: SlotVector, vec: ndarray.FromSlice(xs)}
}

// Matrix wraps a 2-D float64 view.
func Matrix(v *ndarray.View[float64]) (Slot, error) {
	if v == nil {
		return Slot{}, errors.InvalidInput(errors.PhaseMarshal, "nil matrix")
	}
	if v.NDim() != 2 {
		return Slot{}, errors.New(errors.PhaseMarshal, errors.KindShapeMismatch).
			Value(v.Shape()).
			Detail("matrix must be 2-D, got %d dimensions", v.NDim()).
			Build()
	}
	return Slot{kind: SlotMatrix, mat: v}, nil
}

func (s Slot) Kind() SlotKind { return s.kind }

// Len returns the element count of a vector or the row count of a matrix.
func (s Slot) Len() int {
	switch s.kind {
	case SlotVector:
		return s.vec.Size()
	case SlotMatrix:
		return s.mat.Len()
	}
	return 0
}

// Array returns the vector contents, or nil.
func (s Slot) Array() ndarray.Array { return s.vec }

// View returns the matrix contents, or nil.
func (s Slot) View() *ndarray.View[float64] { return s.mat }
