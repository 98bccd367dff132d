package engine

import (
	"context"
	"math"
	"testing"

	"github.com/tetratelabs/wazero/api"

	"github.com/wippyai/world-wasm/marshal"
)

// (module
//
//	(import "env" "constructNotify" (func (param i32)))
//	(memory (export "memory") 1)
//	(func (export "_initialize") i32.const 42 call 0))
var notifyModule = []byte{
	0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00,
	0x01, 0x08, 0x02, 0x60, 0x01, 0x7f, 0x00, 0x60, 0x00, 0x00,
	0x02, 0x17, 0x01, 0x03, 0x65, 0x6e, 0x76, 0x0f,
	0x63, 0x6f, 0x6e, 0x73, 0x74, 0x72, 0x75, 0x63, 0x74, 0x4e, 0x6f, 0x74, 0x69, 0x66, 0x79,
	0x00, 0x00,
	0x03, 0x02, 0x01, 0x01,
	0x05, 0x03, 0x01, 0x00, 0x01,
	0x07, 0x18, 0x02,
	0x06, 0x6d, 0x65, 0x6d, 0x6f, 0x72, 0x79, 0x02, 0x00,
	0x0b, 0x5f, 0x69, 0x6e, 0x69, 0x74, 0x69, 0x61, 0x6c, 0x69, 0x7a, 0x65, 0x00, 0x01,
	0x0a, 0x08, 0x01, 0x06, 0x00, 0x41, 0x2a, 0x10, 0x00, 0x0b,
}

// (module (func (export "neg") (param i32) (result i32) i32.const 0 local.get 0 i32.sub))
var negModule = []byte{
	0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00,
	0x01, 0x06, 0x01, 0x60, 0x01, 0x7f, 0x01, 0x7f,
	0x03, 0x02, 0x01, 0x00,
	0x07, 0x07, 0x01, 0x03, 0x6e, 0x65, 0x67, 0x00, 0x00,
	0x0a, 0x09, 0x01, 0x07, 0x00, 0x41, 0x00, 0x20, 0x00, 0x6b, 0x0b,
}

func newTestEngine(t *testing.T, cfg *Config) *Engine {
	t.Helper()
	ctx := context.Background()
	e, err := New(ctx, cfg)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	t.Cleanup(func() { _ = e.Close(ctx) })
	return e
}

func TestNew(t *testing.T) {
	tests := []struct {
		cfg  *Config
		name string
	}{
		{nil, "nil config"},
		{&Config{}, "default config"},
		{&Config{MemoryLimitPages: 256}, "16MB limit"},
		{&Config{CompilationCacheDir: t.TempDir()}, "compilation cache"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			e := newTestEngine(t, tc.cfg)
			if e.runtime == nil {
				t.Error("engine runtime should not be nil")
			}
		})
	}
}

func TestConstructNotifyThroughContext(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t, nil)

	mod, err := e.Compile(ctx, notifyModule)
	if err != nil {
		t.Fatalf("Compile failed: %v", err)
	}
	inst, err := mod.NewInstance(ctx)
	if err != nil {
		t.Fatalf("NewInstance failed: %v", err)
	}
	defer inst.Close(ctx)

	call := marshal.NewCall(nil, nil)
	if _, err := inst.Call(marshal.WithCall(ctx, call), "_initialize"); err != nil {
		t.Fatalf("_initialize failed: %v", err)
	}
	ptrs := call.Pointers()
	if len(ptrs) != 1 || ptrs[0] != 42 {
		t.Errorf("pointers = %v, want [42]", ptrs)
	}

	if inst.MemorySize() != 65536 {
		t.Errorf("MemorySize = %d, want 65536", inst.MemorySize())
	}
	if inst.Memory() == nil {
		t.Error("Memory should not be nil")
	}
}

func TestImportOutsideCallAborts(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t, nil)

	mod, err := e.Compile(ctx, notifyModule)
	if err != nil {
		t.Fatal(err)
	}
	inst, err := mod.NewInstance(ctx)
	if err != nil {
		t.Fatal(err)
	}
	defer inst.Close(ctx)

	if _, err := inst.Call(ctx, "_initialize"); err == nil {
		t.Error("constructNotify without a call should abort the export")
	}
}

func TestInstancesShareHostModules(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t, nil)

	mod, err := e.Compile(ctx, notifyModule)
	if err != nil {
		t.Fatal(err)
	}
	a, err := mod.NewInstance(ctx)
	if err != nil {
		t.Fatal(err)
	}
	defer a.Close(ctx)
	b, err := mod.NewInstance(ctx)
	if err != nil {
		t.Fatal(err)
	}
	defer b.Close(ctx)

	ca, cb := marshal.NewCall(nil, nil), marshal.NewCall(nil, nil)
	if _, err := a.Call(marshal.WithCall(ctx, ca), "_initialize"); err != nil {
		t.Fatal(err)
	}
	if _, err := b.Call(marshal.WithCall(ctx, cb), "_initialize"); err != nil {
		t.Fatal(err)
	}
	if len(ca.Pointers()) != 1 || len(cb.Pointers()) != 1 {
		t.Errorf("each call should see only its own pointers: %v %v", ca.Pointers(), cb.Pointers())
	}
}

func TestCallCoercesArguments(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t, nil)

	mod, err := e.Compile(ctx, negModule)
	if err != nil {
		t.Fatal(err)
	}
	g, err := mod.Instantiate(ctx)
	if err != nil {
		t.Fatal(err)
	}
	defer g.Close(ctx)

	tests := []struct {
		in   float64
		want float64
	}{
		{5, -5},
		{2.9, -2},
		{-2.9, 2},
		{4294967297, -1},
		{math.NaN(), 0},
	}
	for _, tt := range tests {
		got, err := g.Call(ctx, "neg", tt.in)
		if err != nil {
			t.Fatalf("neg(%v) failed: %v", tt.in, err)
		}
		if got != tt.want {
			t.Errorf("neg(%v) = %v, want %v", tt.in, got, tt.want)
		}
	}

	if !g.HasExport("neg") || g.HasExport("_dio") {
		t.Error("HasExport mismatch")
	}
	if _, err := g.Call(ctx, "_dio"); err == nil {
		t.Error("calling a missing export should fail")
	}
	if g.Memory() != nil {
		t.Error("module without memory should report nil Memory")
	}
	inst, ok := g.(*Instance)
	if !ok {
		t.Fatalf("guest is %T, want *Instance", g)
	}
	if inst.MemorySize() != 0 {
		t.Errorf("MemorySize = %d, want 0", inst.MemorySize())
	}
}

func TestWazeroMemory_Nil(t *testing.T) {
	m := NewMemory(nil)
	if m.Size() != 0 {
		t.Errorf("Size = %d, want 0", m.Size())
	}
	if _, err := m.ReadU32(0); err == nil {
		t.Error("ReadU32 without memory should fail")
	}
	if err := m.Write(0, []byte{1}); err == nil {
		t.Error("Write without memory should fail")
	}
}

func TestInstanceClose(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t, nil)

	mod, err := e.Compile(ctx, negModule)
	if err != nil {
		t.Fatal(err)
	}
	inst, err := mod.NewInstance(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if err := inst.Close(ctx); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if err := inst.Close(ctx); err != nil {
		t.Errorf("second Close failed: %v", err)
	}
	if _, err := inst.Call(ctx, "neg", 1); err == nil {
		t.Error("Call after Close should fail")
	}
}

func TestCompileInvalid(t *testing.T) {
	e := newTestEngine(t, nil)
	if _, err := e.Compile(context.Background(), []byte("not wasm")); err == nil {
		t.Error("Compile should reject garbage")
	}
}

func TestModuleExports(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t, nil)
	mod, err := e.Compile(ctx, notifyModule)
	if err != nil {
		t.Fatal(err)
	}
	names := mod.Exports()
	if len(names) != 1 || names[0] != "_initialize" {
		t.Errorf("Exports = %v, want [_initialize]", names)
	}
}

func TestMemoryLimit(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t, &Config{MemoryLimitPages: 1})

	// (module (memory 1))
	wasmWith1Page := []byte{
		0x00, 0x61, 0x73, 0x6d,
		0x01, 0x00, 0x00, 0x00,
		0x05, 0x03, 0x01, 0x00, 0x01,
	}
	mod, err := e.Compile(ctx, wasmWith1Page)
	if err != nil {
		t.Fatalf("Compile failed: %v", err)
	}
	inst, err := mod.NewInstance(ctx)
	if err != nil {
		t.Fatalf("NewInstance failed: %v", err)
	}
	defer inst.Close(ctx)
}

func TestToInt32(t *testing.T) {
	tests := []struct {
		in   float64
		want int32
	}{
		{0, 0},
		{1.9, 1},
		{-1.9, -1},
		{2147483648, -2147483648},
		{4294967295, -1},
		{-4294967297, -1},
		{math.Inf(1), 0},
		{math.NaN(), 0},
	}
	for _, tt := range tests {
		if got := toInt32(tt.in); got != tt.want {
			t.Errorf("toInt32(%v) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestCoerceParams(t *testing.T) {
	types := []api.ValueType{api.ValueTypeI32, api.ValueTypeF64, api.ValueTypeF32, api.ValueTypeI64}
	params, err := coerceParams(types, []float64{3.7, 5.5, 0.25})
	if err != nil {
		t.Fatal(err)
	}
	if api.DecodeI32(params[0]) != 3 {
		t.Errorf("i32 = %d, want 3", api.DecodeI32(params[0]))
	}
	if api.DecodeF64(params[1]) != 5.5 {
		t.Errorf("f64 = %v, want 5.5", api.DecodeF64(params[1]))
	}
	if api.DecodeF32(params[2]) != 0.25 {
		t.Errorf("f32 = %v, want 0.25", api.DecodeF32(params[2]))
	}
	if params[3] != 0 {
		t.Errorf("missing i64 = %d, want 0", params[3])
	}

	if decodeResult(api.ValueTypeI32, api.EncodeI32(-7)) != -7 {
		t.Error("i32 result should be sign-extended")
	}
}
