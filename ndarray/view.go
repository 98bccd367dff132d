package ndarray

import (
	"fmt"
	"iter"

	"github.com/wippyai/world-wasm/errors"
)

// Array is the dtype-erased face of a View.
type Array interface {
	DType() DType
	Shape() []int
	NDim() int
	Size() int
	Offset() int
	// Bytes returns the view's elements as bytes aliasing the shared buffer.
	Bytes() []byte
}

// View is a read-only shaped window over a flat typed buffer.
//
// Views derived through Reshape, Subarray and At share the buffer of their
// source. Only Slice, Clone and Unpack copy.
type View[T Number] struct {
	buf    []T
	shape  []int
	offset int
}

// Create wraps buf with the given shape starting at element offset.
// It fails when the shape needs more elements than buf holds past offset.
func Create[T Number](buf []T, shape []int, offset int) (*View[T], error) {
	if err := checkShape(shape, offset, len(buf)); err != nil {
		return nil, err
	}
	return &View[T]{
		buf:    buf,
		shape:  append([]int(nil), shape...),
		offset: offset,
	}, nil
}

// FromSlice returns a 1-D view spanning all of buf.
func FromSlice[T Number](buf []T) *View[T] {
	return &View[T]{buf: buf, shape: []int{len(buf)}}
}

// New allocates a zeroed buffer for shape.
func New[T Number](shape ...int) (*View[T], error) {
	if err := checkShape(shape, 0, -1); err != nil {
		return nil, err
	}
	return Create(make([]T, product(shape)), shape, 0)
}

// Make allocates a zeroed array of the dtype named by tag.
func Make(dtype DType, shape ...int) (Array, error) {
	switch dtype {
	case Int8:
		return makeArray[int8](shape)
	case Uint8:
		return makeArray[uint8](shape)
	case Int16:
		return makeArray[int16](shape)
	case Uint16:
		return makeArray[uint16](shape)
	case Int32:
		return makeArray[int32](shape)
	case Uint32:
		return makeArray[uint32](shape)
	case Int64:
		return makeArray[int64](shape)
	case Uint64:
		return makeArray[uint64](shape)
	case Float32:
		return makeArray[float32](shape)
	case Float64:
		return makeArray[float64](shape)
	}
	_, err := ParseDType(string(dtype))
	return nil, err
}

func makeArray[T Number](shape []int) (Array, error) {
	v, err := New[T](shape...)
	if err != nil {
		return nil, err
	}
	return v, nil
}

// checkShape validates shape against available elements; available < 0 skips the bound.
func checkShape(shape []int, offset, available int) error {
	if len(shape) == 0 {
		return errors.InvalidInput(errors.PhaseView, "shape must have at least one dimension")
	}
	for i, d := range shape {
		if d < 0 {
			return errors.New(errors.PhaseView, errors.KindInvalidInput).
				Path("shape", fmt.Sprint(i)).
				Value(d).
				Detail("negative dimension %d", d).
				Build()
		}
	}
	n, ok := checkedProduct(shape)
	if !ok {
		return errors.New(errors.PhaseView, errors.KindOutOfBounds).
			Path("shape").
			Value(shape).
			Detail("shape %v overflows the element count", shape).
			Build()
	}
	if offset < 0 {
		return errors.OutOfBounds(errors.PhaseView, []string{"offset"}, offset, available)
	}
	if available >= 0 && n > available-offset {
		return errors.OutOfBounds(errors.PhaseView, []string{"shape"}, offset+n, available)
	}
	return nil
}

func (v *View[T]) DType() DType { return DTypeOf[T]() }

// Shape returns a copy of the dimension sizes.
func (v *View[T]) Shape() []int { return append([]int(nil), v.shape...) }

func (v *View[T]) NDim() int { return len(v.shape) }

// Len returns the size of the leading dimension.
func (v *View[T]) Len() int { return v.shape[0] }

// Size returns the number of elements covered by the view.
func (v *View[T]) Size() int { return product(v.shape) }

func (v *View[T]) Offset() int { return v.offset }

// Buffer returns the whole backing buffer shared by every derived view.
func (v *View[T]) Buffer() []T { return v.buf }

// Data returns the view's elements as a contiguous window of the shared
// buffer. A view spanning the full buffer from offset 0 returns the buffer
// itself.
func (v *View[T]) Data() []T {
	n := v.Size()
	if v.offset == 0 && n == len(v.buf) {
		return v.buf
	}
	return v.buf[v.offset : v.offset+n : v.offset+n]
}

// Bytes returns Data reinterpreted as bytes without copying.
func (v *View[T]) Bytes() []byte {
	return asBytes(v.Data())
}

func (v *View[T]) stride() int {
	return product(v.shape[1:])
}

// At returns the child view i along the leading dimension. It panics when
// the view is 1-D or i is out of range, like slice indexing.
func (v *View[T]) At(i int) *View[T] {
	if len(v.shape) < 2 {
		panic("ndarray: At called on a 1-D view")
	}
	if i < 0 || i >= v.shape[0] {
		panic(fmt.Sprintf("ndarray: index %d out of range [0:%d]", i, v.shape[0]))
	}
	return &View[T]{
		buf:    v.buf,
		shape:  v.shape[1:len(v.shape):len(v.shape)],
		offset: v.offset + i*v.stride(),
	}
}

// Row returns the elements of row i of a 2-D view.
func (v *View[T]) Row(i int) []T {
	return v.At(i).Data()
}

// Rows lazily yields the child views along the leading dimension.
func (v *View[T]) Rows() iter.Seq2[int, *View[T]] {
	return func(yield func(int, *View[T]) bool) {
		if len(v.shape) < 2 {
			return
		}
		for i := 0; i < v.shape[0]; i++ {
			if !yield(i, v.At(i)) {
				return
			}
		}
	}
}

// Reshape reinterprets the view's buffer from its offset with a new shape.
func (v *View[T]) Reshape(shape ...int) (*View[T], error) {
	return Create(v.buf, shape, v.offset)
}

// Subarray returns a zero-copy view of [begin, end) along the leading
// dimension. Negative indices count from the end.
func (v *View[T]) Subarray(begin, end int) *View[T] {
	n := v.shape[0]
	begin = clampIndex(begin, n)
	end = clampIndex(end, n)
	if end < begin {
		end = begin
	}
	shape := append([]int(nil), v.shape...)
	shape[0] = end - begin
	return &View[T]{
		buf:    v.buf,
		shape:  shape,
		offset: v.offset + begin*v.stride(),
	}
}

// Slice is Subarray compacted into a fresh buffer at offset 0; the result
// no longer aliases the source.
func (v *View[T]) Slice(begin, end int) *View[T] {
	return v.Subarray(begin, end).Clone()
}

// Clone copies the view's elements into a new buffer.
func (v *View[T]) Clone() *View[T] {
	buf := make([]T, v.Size())
	copy(buf, v.Data())
	return &View[T]{buf: buf, shape: v.Shape()}
}

func (v *View[T]) String() string {
	return fmt.Sprintf("ndarray.View[%s](shape=%v, offset=%d)", v.DType(), v.shape, v.offset)
}

func clampIndex(i, n int) int {
	if i < 0 {
		i += n
		if i < 0 {
			return 0
		}
		return i
	}
	if i > n {
		return n
	}
	return i
}
