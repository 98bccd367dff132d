package engine

import (
	"context"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"go.uber.org/zap"

	"github.com/wippyai/world-wasm/marshal"
	"github.com/wippyai/world-wasm/wasi/preview1"
)

var (
	i32 = api.ValueTypeI32
	i64 = api.ValueTypeI64
)

// hostFunc is one import exported by a host module.
type hostFunc struct {
	name    string
	fn      api.GoModuleFunc
	params  []api.ValueType
	results []api.ValueType
}

func instantiateHostModule(ctx context.Context, r wazero.Runtime, name string, funcs []hostFunc) (api.Module, error) {
	builder := r.NewHostModuleBuilder(name)
	for _, f := range funcs {
		builder = builder.NewFunctionBuilder().
			WithGoModuleFunction(f.fn, f.params, f.results).
			WithName(f.name).
			Export(f.name)
	}
	return builder.Instantiate(ctx)
}

// mem resolves the calling module's memory for one host call.
func mem(m api.Module) *WazeroMemory {
	return NewMemory(exportedMemory(m))
}

// abortOn stops the guest when a host import fails. The error is recorded
// on the call so the export returns it instead of a wazero trap.
func abortOn(ctx context.Context, name string, err error) {
	if err == nil {
		return
	}
	Logger().Debug("host import failed", zap.String("import", name), zap.Error(err))
	marshal.Abort(ctx, err)
}

func u32(v uint64) uint32 { return api.DecodeU32(v) }

func errno(rc int32) uint64 { return api.EncodeI32(rc) }

// envFuncs are the slot transfer imports of module env.
func envFuncs() []hostFunc {
	return []hostFunc{
		{
			name: marshal.ImportConstructNotify,
			fn: func(ctx context.Context, _ api.Module, stack []uint64) {
				abortOn(ctx, marshal.ImportConstructNotify, marshal.ConstructNotify(ctx, u32(stack[0])))
			},
			params: []api.ValueType{i32},
		},
		{
			name: marshal.ImportReadArray,
			fn: func(ctx context.Context, m api.Module, stack []uint64) {
				err := marshal.ReadFloat64Array(ctx, mem(m), u32(stack[0]), u32(stack[1]), u32(stack[2]))
				abortOn(ctx, marshal.ImportReadArray, err)
			},
			params: []api.ValueType{i32, i32, i32},
		},
		{
			name: marshal.ImportWriteArray,
			fn: func(ctx context.Context, m api.Module, stack []uint64) {
				err := marshal.WriteFloat64Array(ctx, mem(m), u32(stack[0]), u32(stack[1]), u32(stack[2]))
				abortOn(ctx, marshal.ImportWriteArray, err)
			},
			params: []api.ValueType{i32, i32, i32},
		},
		{
			name: marshal.ImportReadArray2D,
			fn: func(ctx context.Context, m api.Module, stack []uint64) {
				err := marshal.ReadFloat64Array2D(ctx, mem(m), u32(stack[0]), u32(stack[1]), u32(stack[2]), u32(stack[3]))
				abortOn(ctx, marshal.ImportReadArray2D, err)
			},
			params: []api.ValueType{i32, i32, i32, i32},
		},
		{
			name: marshal.ImportWriteArray2D,
			fn: func(ctx context.Context, m api.Module, stack []uint64) {
				err := marshal.WriteFloat64Array2D(ctx, mem(m), u32(stack[0]), u32(stack[1]), u32(stack[2]), u32(stack[3]))
				abortOn(ctx, marshal.ImportWriteArray2D, err)
			},
			params: []api.ValueType{i32, i32, i32, i32},
		},
		{
			name: marshal.ImportNotifyMemoryGrow,
			fn: func(ctx context.Context, m api.Module, stack []uint64) {
				n := marshal.NotifyMemoryGrowth(ctx, u32(stack[0]))
				Logger().Debug("memory grew",
					zap.Uint32("index", u32(stack[0])),
					zap.Uint32("size", mem(m).Size()),
					zap.Int("growths", n))
			},
			params: []api.ValueType{i32},
		},
	}
}

// wasiFuncs are the preview1 calls the engine imports, served from the
// descriptor table of the current call.
func wasiFuncs() []hostFunc {
	return []hostFunc{
		{
			name: "fd_read",
			fn: func(ctx context.Context, m api.Module, stack []uint64) {
				stack[0] = errno(preview1.FdRead(ctx, mem(m), u32(stack[0]), u32(stack[1]), u32(stack[2]), u32(stack[3])))
			},
			params:  []api.ValueType{i32, i32, i32, i32},
			results: []api.ValueType{i32},
		},
		{
			name: "fd_write",
			fn: func(ctx context.Context, m api.Module, stack []uint64) {
				stack[0] = errno(preview1.FdWrite(ctx, mem(m), u32(stack[0]), u32(stack[1]), u32(stack[2]), u32(stack[3])))
			},
			params:  []api.ValueType{i32, i32, i32, i32},
			results: []api.ValueType{i32},
		},
		{
			name: "fd_seek",
			fn: func(ctx context.Context, m api.Module, stack []uint64) {
				stack[0] = errno(preview1.FdSeek(ctx, mem(m), u32(stack[0]), int64(stack[1]), u32(stack[2]), u32(stack[3])))
			},
			params:  []api.ValueType{i32, i64, i32, i32},
			results: []api.ValueType{i32},
		},
		{
			name: "fd_close",
			fn: func(ctx context.Context, _ api.Module, stack []uint64) {
				stack[0] = errno(preview1.FdClose(ctx, u32(stack[0])))
			},
			params:  []api.ValueType{i32},
			results: []api.ValueType{i32},
		},
		{
			name: "fd_fdstat_get",
			fn: func(ctx context.Context, m api.Module, stack []uint64) {
				stack[0] = errno(preview1.FdFdstatGet(ctx, mem(m), u32(stack[0]), u32(stack[1])))
			},
			params:  []api.ValueType{i32, i32},
			results: []api.ValueType{i32},
		},
		{
			name: "fd_fdstat_set_flags",
			fn: func(ctx context.Context, _ api.Module, stack []uint64) {
				stack[0] = errno(preview1.FdFdstatSetFlags(ctx, u32(stack[0]), u32(stack[1])))
			},
			params:  []api.ValueType{i32, i32},
			results: []api.ValueType{i32},
		},
		{
			name: "proc_exit",
			fn: func(ctx context.Context, _ api.Module, stack []uint64) {
				abortOn(ctx, "proc_exit", preview1.ProcExit(u32(stack[0])))
			},
			params: []api.ValueType{i32},
		},
	}
}
