package ndarray

import (
	"math"

	"github.com/wippyai/world-wasm/errors"
)

// Packed is the self-describing wire form of an array. Data is in host
// byte order, C ordering.
type Packed struct {
	DType DType  `json:"dtype" yaml:"dtype"`
	Shape []int  `json:"shape" yaml:"shape"`
	Data  []byte `json:"data" yaml:"data"`
}

// Pack returns the wire form of a. Data aliases a's storage.
func Pack(a Array) Packed {
	return Packed{
		DType: a.DType(),
		Shape: a.Shape(),
		Data:  a.Bytes(),
	}
}

// Validate checks the dtype and that len(Data) matches the shape.
func (p *Packed) Validate() error {
	if !p.DType.Valid() {
		_, err := ParseDType(string(p.DType))
		return err
	}
	if err := checkShape(p.Shape, 0, -1); err != nil {
		return err
	}
	n := product(p.Shape)
	if n > math.MaxInt/p.DType.Size() {
		return errors.New(errors.PhaseView, errors.KindOutOfBounds).
			DType(string(p.DType)).
			Path("shape").
			Value(p.Shape).
			Detail("shape %v overflows the byte length", p.Shape).
			Build()
	}
	if want := n * p.DType.Size(); len(p.Data) != want {
		return errors.New(errors.PhaseView, errors.KindShapeMismatch).
			DType(string(p.DType)).
			Value(len(p.Data)).
			Detail("packed data is %d bytes, shape %v needs %d", len(p.Data), p.Shape, want).
			Build()
	}
	return nil
}

// Detached reports whether Data was moved out by Detach.
func (p *Packed) Detached() bool {
	return p.Data == nil
}

// Detach moves Data out of p. After a transfer the sender's copy is invalid.
func (p *Packed) Detach() []byte {
	data := p.Data
	p.Data = nil
	return data
}

// Clone returns a deep copy of p.
func (p *Packed) Clone() Packed {
	data := make([]byte, len(p.Data))
	copy(data, p.Data)
	return Packed{
		DType: p.DType,
		Shape: append([]int(nil), p.Shape...),
		Data:  data,
	}
}

// Unpack rebuilds a view from p. The result owns a fresh copy of the data.
func Unpack[T Number](p Packed) (*View[T], error) {
	if err := checkDType[T](p); err != nil {
		return nil, err
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	buf := make([]T, product(p.Shape))
	copy(asBytes(buf), p.Data)
	return Create(buf, p.Shape, 0)
}

// Adopt rebuilds a view that takes ownership of p's bytes, detaching p.
// Aligned data is reinterpreted in place; misaligned data is copied.
func Adopt[T Number](p *Packed) (*View[T], error) {
	if err := checkDType[T](*p); err != nil {
		return nil, err
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	data := p.Detach()
	var buf []T
	if aligned[T](data) {
		buf = fromBytes[T](data)
	} else {
		buf = make([]T, product(p.Shape))
		copy(asBytes(buf), data)
	}
	return Create(buf, p.Shape, 0)
}

// UnpackArray rebuilds a copied array choosing the element type from p.DType.
func UnpackArray(p Packed) (Array, error) {
	switch p.DType {
	case Int8:
		return unpackArray[int8](p)
	case Uint8:
		return unpackArray[uint8](p)
	case Int16:
		return unpackArray[int16](p)
	case Uint16:
		return unpackArray[uint16](p)
	case Int32:
		return unpackArray[int32](p)
	case Uint32:
		return unpackArray[uint32](p)
	case Int64:
		return unpackArray[int64](p)
	case Uint64:
		return unpackArray[uint64](p)
	case Float32:
		return unpackArray[float32](p)
	case Float64:
		return unpackArray[float64](p)
	}
	_, err := ParseDType(string(p.DType))
	return nil, err
}

func unpackArray[T Number](p Packed) (Array, error) {
	v, err := Unpack[T](p)
	if err != nil {
		return nil, err
	}
	return v, nil
}

func checkDType[T Number](p Packed) error {
	if want := DTypeOf[T](); p.DType != want {
		return errors.New(errors.PhaseView, errors.KindUnsupported).
			DType(string(p.DType)).
			Detail("cannot unpack into %s", want).
			Build()
	}
	return nil
}

// ToFloat64 flattens a into float64 elements. A float64 array is returned
// without copying; other dtypes are converted.
func ToFloat64(a Array) ([]float64, error) {
	switch v := a.(type) {
	case *View[float64]:
		return v.Data(), nil
	case *View[float32]:
		return convert(v), nil
	case *View[int8]:
		return convert(v), nil
	case *View[uint8]:
		return convert(v), nil
	case *View[int16]:
		return convert(v), nil
	case *View[uint16]:
		return convert(v), nil
	case *View[int32]:
		return convert(v), nil
	case *View[uint32]:
		return convert(v), nil
	case *View[int64]:
		return convert(v), nil
	case *View[uint64]:
		return convert(v), nil
	case nil:
		return nil, errors.InvalidInput(errors.PhaseView, "nil array")
	}
	return nil, errors.New(errors.PhaseView, errors.KindUnsupported).
		DType(string(a.DType())).
		Detail("array type %T cannot be converted", a).
		Build()
}

func convert[T Number](v *View[T]) []float64 {
	src := v.Data()
	out := make([]float64, len(src))
	for i, x := range src {
		out[i] = float64(x)
	}
	return out
}
