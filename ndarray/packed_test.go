package ndarray

import (
	"bytes"
	"encoding/json"
	stderrors "errors"
	"testing"

	"github.com/wippyai/world-wasm/errors"
)

func TestPackUnpack_RoundTrip(t *testing.T) {
	buf := seq(12)
	v, err := Create(buf, []int{3, 4}, 0)
	if err != nil {
		t.Fatal(err)
	}

	p := Pack(v)
	if p.DType != Float64 {
		t.Errorf("DType = %v, want float64", p.DType)
	}
	if len(p.Data) != 12*8 {
		t.Errorf("len(Data) = %d, want 96", len(p.Data))
	}

	u, err := Unpack[float64](p)
	if err != nil {
		t.Fatalf("Unpack failed: %v", err)
	}
	if got := u.Shape(); len(got) != 2 || got[0] != 3 || got[1] != 4 {
		t.Errorf("Shape = %v, want [3 4]", got)
	}
	if !bytes.Equal(u.Bytes(), v.Bytes()) {
		t.Error("unpacked bytes differ from source")
	}
	if sameBuffer(u.Buffer(), buf) {
		t.Error("Unpack should copy")
	}
}

func TestPack_AliasesView(t *testing.T) {
	buf := []int32{1, 2, 3, 4, 5, 6}
	v, _ := Create(buf, []int{3, 2}, 0)
	p := Pack(v.Subarray(1, 3))
	if len(p.Data) != 4*4 {
		t.Fatalf("len(Data) = %d, want 16", len(p.Data))
	}
	buf[2] = 99
	u, err := Unpack[int32](p)
	if err != nil {
		t.Fatal(err)
	}
	if u.Data()[0] != 99 {
		t.Errorf("first = %d, want 99 (Pack should alias)", u.Data()[0])
	}
}

func TestPacked_JSON(t *testing.T) {
	v := FromSlice([]float32{1.5, -2})
	p := Pack(v)

	raw, err := json.Marshal(p)
	if err != nil {
		t.Fatal(err)
	}
	var back Packed
	if err := json.Unmarshal(raw, &back); err != nil {
		t.Fatal(err)
	}
	u, err := Unpack[float32](back)
	if err != nil {
		t.Fatalf("Unpack after JSON failed: %v", err)
	}
	if u.Data()[0] != 1.5 || u.Data()[1] != -2 {
		t.Errorf("Data = %v, want [1.5 -2]", u.Data())
	}
}

func TestPacked_Validate(t *testing.T) {
	tests := []struct {
		name    string
		p       Packed
		wantErr bool
	}{
		{"ok", Packed{DType: Uint8, Shape: []int{2, 2}, Data: make([]byte, 4)}, false},
		{"empty array", Packed{DType: Float64, Shape: []int{0}, Data: nil}, false},
		{"short data", Packed{DType: Float64, Shape: []int{2}, Data: make([]byte, 8)}, true},
		{"unknown dtype", Packed{DType: "bool", Shape: []int{1}, Data: make([]byte, 1)}, true},
		{"no shape", Packed{DType: Int8, Data: make([]byte, 1)}, true},
		{"overflowing shape", Packed{DType: Float64, Shape: []int{1 << 32, 1 << 32}}, true},
		{"overflowing byte length", Packed{DType: Float64, Shape: []int{1 << 61}}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.p.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestPacked_ValidateShapeMismatchKind(t *testing.T) {
	p := Packed{DType: Int16, Shape: []int{3}, Data: make([]byte, 4)}
	err := p.Validate()
	if !stderrors.Is(err, &errors.Error{Phase: errors.PhaseView, Kind: errors.KindShapeMismatch}) {
		t.Errorf("err = %v, want view shape_mismatch", err)
	}
}

func TestAdopt_OverflowingShape(t *testing.T) {
	p := Packed{DType: Float64, Shape: []int{1 << 32, 1 << 32}}
	if _, err := Adopt[float64](&p); err == nil {
		t.Fatal("Adopt of an overflowing shape should fail")
	}
}

func TestUnpack_WrongDType(t *testing.T) {
	p := Pack(FromSlice([]float32{1}))
	if _, err := Unpack[float64](p); err == nil {
		t.Error("Unpack[float64] of float32 data should fail")
	}
}

func TestAdopt_DetachesSource(t *testing.T) {
	src := FromSlice(seq(8))
	p := Pack(src)
	data := p.Data

	v, err := Adopt[float64](&p)
	if err != nil {
		t.Fatalf("Adopt failed: %v", err)
	}
	if !p.Detached() {
		t.Error("Adopt should detach the packed source")
	}
	if &v.Bytes()[0] != &data[0] {
		t.Error("Adopt of aligned data should not copy")
	}
	if v.Data()[7] != 7 {
		t.Errorf("Data[7] = %v, want 7", v.Data()[7])
	}

	if _, err := Adopt[float64](&p); err == nil {
		t.Error("adopting a detached packed array should fail")
	}
}

func TestAdopt_Misaligned(t *testing.T) {
	raw := make([]byte, 17)
	want := FromSlice([]float64{3.25, -1}).Bytes()
	copy(raw[1:], want)
	p := Packed{DType: Float64, Shape: []int{2}, Data: raw[1:]}

	v, err := Adopt[float64](&p)
	if err != nil {
		t.Fatalf("Adopt failed: %v", err)
	}
	if v.Data()[0] != 3.25 || v.Data()[1] != -1 {
		t.Errorf("Data = %v, want [3.25 -1]", v.Data())
	}
}

func TestPacked_DetachAndClone(t *testing.T) {
	p := Pack(FromSlice([]uint8{1, 2, 3}))
	c := p.Clone()
	moved := p.Detach()

	if !p.Detached() {
		t.Error("Detach should nil the source data")
	}
	if len(moved) != 3 {
		t.Errorf("moved %d bytes, want 3", len(moved))
	}
	if c.Detached() || !bytes.Equal(c.Data, []byte{1, 2, 3}) {
		t.Errorf("clone data = %v, want [1 2 3]", c.Data)
	}
	moved[0] = 9
	if c.Data[0] != 1 {
		t.Error("Clone should not share storage")
	}
}

func TestUnpackArray(t *testing.T) {
	for dt := range dtypeSizes {
		t.Run(string(dt), func(t *testing.T) {
			a, err := Make(dt, 4)
			if err != nil {
				t.Fatal(err)
			}
			u, err := UnpackArray(Pack(a))
			if err != nil {
				t.Fatalf("UnpackArray failed: %v", err)
			}
			if u.DType() != dt || u.Size() != 4 {
				t.Errorf("got %s size %d, want %s size 4", u.DType(), u.Size(), dt)
			}
		})
	}

	a, err := UnpackArray(Packed{DType: "bogus", Shape: []int{1}})
	if err == nil || a != nil {
		t.Errorf("UnpackArray(bogus) = %v, %v; want nil, error", a, err)
	}
}

func TestToFloat64(t *testing.T) {
	t.Run("float64 is zero-copy", func(t *testing.T) {
		buf := []float64{1, 2, 3}
		got, err := ToFloat64(FromSlice(buf))
		if err != nil {
			t.Fatal(err)
		}
		if &got[0] != &buf[0] {
			t.Error("float64 input should not be copied")
		}
	})

	tests := []struct {
		name string
		in   Array
		want []float64
	}{
		{"float32", FromSlice([]float32{0.5, -1}), []float64{0.5, -1}},
		{"int16", FromSlice([]int16{-3, 7}), []float64{-3, 7}},
		{"uint8", FromSlice([]uint8{0, 255}), []float64{0, 255}},
		{"int64", FromSlice([]int64{1 << 40}), []float64{1 << 40}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ToFloat64(tt.in)
			if err != nil {
				t.Fatal(err)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("got %v, want %v", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("got %v, want %v", got, tt.want)
				}
			}
		})
	}

	if _, err := ToFloat64(nil); err == nil {
		t.Error("ToFloat64(nil) should fail")
	}
}
