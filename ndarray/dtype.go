package ndarray

import (
	"math"
	"unsafe"

	"github.com/wippyai/world-wasm/errors"
)

// DType names the element type of a typed buffer. It is fixed at creation.
type DType string

const (
	Int8    DType = "int8"
	Uint8   DType = "uint8"
	Int16   DType = "int16"
	Uint16  DType = "uint16"
	Int32   DType = "int32"
	Uint32  DType = "uint32"
	Int64   DType = "int64"
	Uint64  DType = "uint64"
	Float32 DType = "float32"
	Float64 DType = "float64"
)

var dtypeSizes = map[DType]int{
	Int8:    1,
	Uint8:   1,
	Int16:   2,
	Uint16:  2,
	Int32:   4,
	Uint32:  4,
	Int64:   8,
	Uint64:  8,
	Float32: 4,
	Float64: 8,
}

// Size returns the element size in bytes, or 0 for an unknown dtype.
func (d DType) Size() int {
	return dtypeSizes[d]
}

// Valid reports whether d is one of the supported element types.
func (d DType) Valid() bool {
	_, ok := dtypeSizes[d]
	return ok
}

func (d DType) String() string {
	return string(d)
}

// ParseDType validates a dtype tag.
func ParseDType(s string) (DType, error) {
	d := DType(s)
	if !d.Valid() {
		return "", errors.New(errors.PhaseView, errors.KindUnsupported).
			DType(s).
			Detail("unknown dtype").
			Build()
	}
	return d, nil
}

// Number is the set of element types a View can hold.
type Number interface {
	int8 | uint8 | int16 | uint16 | int32 | uint32 | int64 | uint64 | float32 | float64
}

// DTypeOf returns the dtype tag for T.
func DTypeOf[T Number]() DType {
	var zero T
	switch any(zero).(type) {
	case int8:
		return Int8
	case uint8:
		return Uint8
	case int16:
		return Int16
	case uint16:
		return Uint16
	case int32:
		return Int32
	case uint32:
		return Uint32
	case int64:
		return Int64
	case uint64:
		return Uint64
	case float32:
		return Float32
	default:
		return Float64
	}
}

// asBytes reinterprets s as its backing bytes without copying.
// Byte order is the host's; wasm and every supported Go target are little-endian.
func asBytes[T Number](s []T) []byte {
	if len(s) == 0 {
		return []byte{}
	}
	var zero T
	return unsafe.Slice((*byte)(unsafe.Pointer(unsafe.SliceData(s))), len(s)*int(unsafe.Sizeof(zero)))
}

// fromBytes reinterprets b as []T without copying. b must be aligned for T.
func fromBytes[T Number](b []byte) []T {
	var zero T
	n := len(b) / int(unsafe.Sizeof(zero))
	if n == 0 {
		return []T{}
	}
	return unsafe.Slice((*T)(unsafe.Pointer(unsafe.SliceData(b))), n)
}

func aligned[T Number](b []byte) bool {
	if len(b) == 0 {
		return true
	}
	var zero T
	return uintptr(unsafe.Pointer(unsafe.SliceData(b)))%unsafe.Alignof(zero) == 0
}

// product is the element count of shape. Callers validate shape with
// checkShape first, so the result is known not to overflow.
func product(shape []int) int {
	n, _ := checkedProduct(shape)
	return n
}

// checkedProduct multiplies non-negative dims, reporting false on int overflow.
func checkedProduct(shape []int) (int, bool) {
	n := 1
	for _, d := range shape {
		if d != 0 && n > math.MaxInt/d {
			return 0, false
		}
		n *= d
	}
	return n, true
}
