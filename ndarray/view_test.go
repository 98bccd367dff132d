package ndarray

import (
	"bytes"
	stderrors "errors"
	"testing"

	"github.com/wippyai/world-wasm/errors"
)

func sameBuffer[T Number](a, b []T) bool {
	if len(a) == 0 || len(b) == 0 {
		return len(a) == len(b)
	}
	return &a[0] == &b[0] && len(a) == len(b)
}

func seq(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = float64(i)
	}
	return out
}

func TestCreate_Shapes(t *testing.T) {
	tests := []struct {
		name    string
		shape   []int
		offset  int
		wantErr bool
	}{
		{"1d full", []int{12}, 0, false},
		{"2d full", []int{3, 4}, 0, false},
		{"3d full", []int{2, 3, 2}, 0, false},
		{"2d with offset", []int{2, 4}, 4, false},
		{"too many elements", []int{4, 4}, 0, true},
		{"offset pushes past end", []int{3, 4}, 1, true},
		{"empty shape", []int{}, 0, true},
		{"negative dim", []int{-1, 4}, 0, true},
		{"negative offset", []int{2}, -1, true},
		{"overflowing product", []int{1 << 32, 1 << 32}, 0, true},
		{"overflowing product with zero dim", []int{1 << 62, 0, 1 << 62}, 0, false},
	}

	buf := seq(12)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, err := Create(buf, tt.shape, tt.offset)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("Create(%v, %d) = %v, want error", tt.shape, tt.offset, v)
				}
				return
			}
			if err != nil {
				t.Fatalf("Create(%v, %d) failed: %v", tt.shape, tt.offset, err)
			}
			if v.NDim() != len(tt.shape) {
				t.Errorf("NDim = %d, want %d", v.NDim(), len(tt.shape))
			}
			if v.Offset() != tt.offset {
				t.Errorf("Offset = %d, want %d", v.Offset(), tt.offset)
			}
		})
	}
}

func TestCreate_OutOfBoundsKind(t *testing.T) {
	_, err := Create(seq(4), []int{5}, 0)
	if !stderrors.Is(err, &errors.Error{Phase: errors.PhaseView, Kind: errors.KindOutOfBounds}) {
		t.Errorf("err = %v, want view out_of_bounds", err)
	}
}

func TestView_ReshapeOverflow(t *testing.T) {
	v := FromSlice(seq(4))
	_, err := v.Reshape(1<<32, 1<<32)
	if !stderrors.Is(err, &errors.Error{Phase: errors.PhaseView, Kind: errors.KindOutOfBounds}) {
		t.Errorf("err = %v, want view out_of_bounds", err)
	}
	if _, err := New[float64](1<<40, 1<<40); err == nil {
		t.Error("New with an overflowing shape should fail")
	}
}

func TestView_DataFullBufferIsIdentity(t *testing.T) {
	buf := seq(6)
	v := FromSlice(buf)
	if !sameBuffer(v.Data(), buf) {
		t.Error("1-D full view Data should return the buffer itself")
	}

	v2, err := Create(buf, []int{2, 3}, 0)
	if err != nil {
		t.Fatal(err)
	}
	if !sameBuffer(v2.Data(), buf) {
		t.Error("full 2-D view Data should return the buffer itself")
	}
}

func TestView_AtAndRows(t *testing.T) {
	v, err := Create(seq(12), []int{3, 4}, 0)
	if err != nil {
		t.Fatal(err)
	}

	row := v.Row(1)
	want := []float64{4, 5, 6, 7}
	for i := range want {
		if row[i] != want[i] {
			t.Fatalf("Row(1) = %v, want %v", row, want)
		}
	}
	if &row[0] != &v.Buffer()[4] {
		t.Error("Row should alias the backing buffer")
	}

	count := 0
	for i, child := range v.Rows() {
		if child.NDim() != 1 || child.Len() != 4 {
			t.Errorf("row %d shape = %v, want [4]", i, child.Shape())
		}
		if child.Offset() != i*4 {
			t.Errorf("row %d offset = %d, want %d", i, child.Offset(), i*4)
		}
		count++
	}
	if count != 3 {
		t.Errorf("Rows yielded %d children, want 3", count)
	}
}

func TestView_RowsStopsEarly(t *testing.T) {
	v, _ := Create(seq(12), []int{3, 4}, 0)
	seen := 0
	for range v.Rows() {
		seen++
		break
	}
	if seen != 1 {
		t.Errorf("seen = %d, want 1", seen)
	}
}

func TestView_At3D(t *testing.T) {
	v, err := Create(seq(24), []int{2, 3, 4}, 0)
	if err != nil {
		t.Fatal(err)
	}
	leaf := v.At(1).At(2)
	if leaf.Offset() != 12+8 {
		t.Errorf("offset = %d, want 20", leaf.Offset())
	}
	if leaf.Data()[0] != 20 {
		t.Errorf("first element = %v, want 20", leaf.Data()[0])
	}
}

func TestView_AtPanics(t *testing.T) {
	t.Run("1-D", func(t *testing.T) {
		defer func() {
			if recover() == nil {
				t.Error("At on 1-D view should panic")
			}
		}()
		FromSlice(seq(3)).At(0)
	})
	t.Run("out of range", func(t *testing.T) {
		defer func() {
			if recover() == nil {
				t.Error("At out of range should panic")
			}
		}()
		v, _ := Create(seq(4), []int{2, 2}, 0)
		v.At(2)
	})
}

func TestView_ReshapeNeverCopies(t *testing.T) {
	buf := seq(12)
	v, _ := Create(buf, []int{12}, 0)

	r, err := v.Reshape(3, 4)
	if err != nil {
		t.Fatalf("Reshape failed: %v", err)
	}
	if !sameBuffer(r.Buffer(), buf) {
		t.Error("Reshape should share the backing buffer")
	}
	if got := r.Shape(); got[0] != 3 || got[1] != 4 {
		t.Errorf("Shape = %v, want [3 4]", got)
	}

	if _, err := v.Reshape(5, 3); err == nil {
		t.Error("Reshape past buffer end should fail")
	}
}

func TestView_ReshapeFromOffset(t *testing.T) {
	v, _ := Create(seq(12), []int{3, 4}, 0)
	sub := v.Subarray(1, 3)
	r, err := sub.Reshape(8)
	if err != nil {
		t.Fatalf("Reshape failed: %v", err)
	}
	if r.Offset() != 4 || r.Data()[0] != 4 {
		t.Errorf("reshaped offset = %d first = %v, want 4/4", r.Offset(), r.Data()[0])
	}
	if _, err := sub.Reshape(9); err == nil {
		t.Error("Reshape needing more elements than remain from offset should fail")
	}
}

func TestView_Subarray(t *testing.T) {
	buf := seq(12)
	v, _ := Create(buf, []int{4, 3}, 0)

	tests := []struct {
		name       string
		begin, end int
		wantLen    int
		wantOffset int
	}{
		{"middle", 1, 3, 2, 3},
		{"negative begin", -1, 4, 1, 9},
		{"end clamped", 2, 10, 2, 6},
		{"empty", 3, 1, 0, 9},
		{"whole", 0, 4, 4, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := v.Subarray(tt.begin, tt.end)
			if s.Len() != tt.wantLen {
				t.Errorf("Len = %d, want %d", s.Len(), tt.wantLen)
			}
			if s.Offset() != tt.wantOffset {
				t.Errorf("Offset = %d, want %d", s.Offset(), tt.wantOffset)
			}
			if !sameBuffer(s.Buffer(), buf) {
				t.Error("Subarray should share the backing buffer")
			}
		})
	}
}

func TestView_SliceBreaksAliasing(t *testing.T) {
	buf := seq(12)
	v, _ := Create(buf, []int{4, 3}, 0)

	s := v.Slice(1, 3)
	if s.Offset() != 0 {
		t.Errorf("Offset = %d, want 0", s.Offset())
	}
	if sameBuffer(s.Buffer(), buf) {
		t.Error("Slice should not share the source buffer")
	}
	if s.Data()[0] != 3 || s.Size() != 6 {
		t.Errorf("Slice data = %v, want [3..8]", s.Data())
	}

	buf[3] = 100
	if s.Data()[0] != 3 {
		t.Error("Slice must not observe writes to the source")
	}
}

func TestView_DataOfOffsetView(t *testing.T) {
	buf := seq(12)
	v, _ := Create(buf, []int{4, 3}, 0)
	d := v.Subarray(2, 4).Data()
	if len(d) != 6 || d[0] != 6 {
		t.Errorf("Data = %v, want [6..11]", d)
	}
	if &d[0] != &buf[6] {
		t.Error("Data should be a window over the shared buffer")
	}
	if cap(d) != 6 {
		t.Errorf("cap = %d, want 6", cap(d))
	}
}

func TestMake(t *testing.T) {
	for dt := range dtypeSizes {
		t.Run(string(dt), func(t *testing.T) {
			a, err := Make(dt, 2, 3)
			if err != nil {
				t.Fatalf("Make(%s) failed: %v", dt, err)
			}
			if a.DType() != dt {
				t.Errorf("DType = %v, want %v", a.DType(), dt)
			}
			if len(a.Bytes()) != 6*dt.Size() {
				t.Errorf("byte length = %d, want %d", len(a.Bytes()), 6*dt.Size())
			}
		})
	}

	a, err := Make("complex128", 2)
	if err == nil || a != nil {
		t.Errorf("Make(complex128) = %v, %v; want nil, error", a, err)
	}

	a, err = Make(Float64, -2)
	if err == nil || a != nil {
		t.Errorf("Make(negative) = %v, %v; want nil, error", a, err)
	}
}

func TestParseDType(t *testing.T) {
	if d, err := ParseDType("float32"); err != nil || d != Float32 {
		t.Errorf("ParseDType(float32) = %v, %v", d, err)
	}
	if _, err := ParseDType("uint8clamped"); err == nil {
		t.Error("ParseDType(uint8clamped) should fail")
	}
}

func TestDTypeOf(t *testing.T) {
	if DTypeOf[int16]() != Int16 {
		t.Errorf("DTypeOf[int16] = %v", DTypeOf[int16]())
	}
	if DTypeOf[uint64]() != Uint64 {
		t.Errorf("DTypeOf[uint64] = %v", DTypeOf[uint64]())
	}
	if DTypeOf[float64]() != Float64 {
		t.Errorf("DTypeOf[float64] = %v", DTypeOf[float64]())
	}
}

func TestView_BytesAlias(t *testing.T) {
	buf := []uint16{0x0102, 0x0304}
	b := FromSlice(buf).Bytes()
	if len(b) != 4 {
		t.Fatalf("len = %d, want 4", len(b))
	}
	b[0] = 0xff
	if buf[0]&0xff != 0xff {
		t.Error("Bytes should alias the typed buffer")
	}
	if !bytes.Equal(FromSlice([]uint8{1, 2}).Bytes(), []byte{1, 2}) {
		t.Error("uint8 bytes mismatch")
	}
}
