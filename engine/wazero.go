package engine

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"go.uber.org/zap"

	worldwasm "github.com/wippyai/world-wasm"
	"github.com/wippyai/world-wasm/errors"
	"github.com/wippyai/world-wasm/marshal"
	"github.com/wippyai/world-wasm/wasi/preview1"
)

// Engine owns a wazero runtime and the host modules the WORLD engine imports.
// It is safe for concurrent use.
type Engine struct {
	runtime    wazero.Runtime
	cache      wazero.CompilationCache
	hostInitMu sync.Mutex
	hostDone   atomic.Bool
}

// Config holds configuration for engine creation
type Config struct {
	// MemoryLimitPages sets the maximum memory per instance in pages (64KB each).
	// 0 means default (65536 pages = 4GB).
	// 256 = 16MB, 1024 = 64MB, 4096 = 256MB
	MemoryLimitPages uint32

	// CompilationCacheDir persists compiled machine code across processes.
	// Empty disables the on-disk cache.
	CompilationCacheDir string
}

// New creates an engine. A nil cfg uses defaults.
func New(ctx context.Context, cfg *Config) (*Engine, error) {
	runtimeCfg := wazero.NewRuntimeConfig()
	var cache wazero.CompilationCache

	if cfg != nil {
		if cfg.MemoryLimitPages > 0 {
			runtimeCfg = runtimeCfg.WithMemoryLimitPages(cfg.MemoryLimitPages)
		}
		if cfg.CompilationCacheDir != "" {
			c, err := wazero.NewCompilationCacheWithDir(cfg.CompilationCacheDir)
			if err != nil {
				return nil, errors.Load("open compilation cache", err)
			}
			cache = c
			runtimeCfg = runtimeCfg.WithCompilationCache(cache)
		}
	}

	return &Engine{
		runtime: wazero.NewRuntimeWithConfig(ctx, runtimeCfg),
		cache:   cache,
	}, nil
}

// Close releases the runtime, every module compiled by it and the cache.
func (e *Engine) Close(ctx context.Context) error {
	err := e.runtime.Close(ctx)
	if e.cache != nil {
		if cerr := e.cache.Close(ctx); err == nil {
			err = cerr
		}
	}
	return err
}

// initHostModules instantiates env and wasi_snapshot_preview1 once per
// runtime. Host functions find per-call state in the context, so every
// instance shares them.
func (e *Engine) initHostModules(ctx context.Context) error {
	if e.hostDone.Load() {
		return nil
	}

	e.hostInitMu.Lock()
	defer e.hostInitMu.Unlock()

	if e.hostDone.Load() {
		return nil
	}

	if e.runtime.Module(marshal.ModuleName) == nil {
		if _, err := instantiateHostModule(ctx, e.runtime, marshal.ModuleName, envFuncs()); err != nil {
			return errors.Load("instantiate env host module", err)
		}
	}
	if e.runtime.Module(preview1.ModuleName) == nil {
		if _, err := instantiateHostModule(ctx, e.runtime, preview1.ModuleName, wasiFuncs()); err != nil {
			return errors.Load("instantiate WASI host module", err)
		}
	}

	e.hostDone.Store(true)
	return nil
}

// Compile validates and compiles wasmBytes.
func (e *Engine) Compile(ctx context.Context, wasmBytes []byte) (*Module, error) {
	if err := e.initHostModules(ctx); err != nil {
		return nil, err
	}
	compiled, err := e.runtime.CompileModule(ctx, wasmBytes)
	if err != nil {
		return nil, errors.Load("compile module", err)
	}
	Logger().Debug("module compiled",
		zap.Int("bytes", len(wasmBytes)),
		zap.Int("exports", len(compiled.ExportedFunctions())))
	return &Module{engine: e, compiled: compiled}, nil
}

// Module is a compiled engine module. Each Instantiate creates an
// independent instance with its own linear memory. It is safe for
// concurrent use.
type Module struct {
	engine   *Engine
	compiled wazero.CompiledModule
}

// Exports returns the names of the exported functions.
func (m *Module) Exports() []string {
	defs := m.compiled.ExportedFunctions()
	names := make([]string, 0, len(defs))
	for name := range defs {
		names = append(names, name)
	}
	return names
}

// NewInstance instantiates the module without calling any export.
func (m *Module) NewInstance(ctx context.Context) (*Instance, error) {
	if err := m.engine.initHostModules(ctx); err != nil {
		return nil, err
	}
	// anonymous for parallel instantiation
	modConfig := wazero.NewModuleConfig().WithName("").WithStartFunctions()
	mod, err := m.engine.runtime.InstantiateModule(ctx, m.compiled, modConfig)
	if err != nil {
		return nil, errors.Instantiation(err)
	}
	return &Instance{module: mod, funcs: make(map[string]api.Function)}, nil
}

// Instantiate implements worldwasm.Source.
func (m *Module) Instantiate(ctx context.Context) (worldwasm.Guest, error) {
	inst, err := m.NewInstance(ctx)
	if err != nil {
		return nil, err
	}
	return inst, nil
}

// Close releases the compiled code.
func (m *Module) Close(ctx context.Context) error {
	return m.compiled.Close(ctx)
}

// Instance is a running engine module.
// It is NOT safe for concurrent use from multiple goroutines.
type Instance struct {
	module api.Module
	funcs  map[string]api.Function
	closed bool
}

func (i *Instance) function(name string) api.Function {
	if fn, ok := i.funcs[name]; ok {
		return fn
	}
	fn := i.module.ExportedFunction(name)
	if fn != nil {
		i.funcs[name] = fn
	}
	return fn
}

// HasExport reports whether the instance exports a function called name.
func (i *Instance) HasExport(name string) bool {
	return i.function(name) != nil
}

// Call invokes an export. Arguments are coerced to the declared parameter
// types and the single result, if any, is returned as float64. A call that
// a host import aborted returns the import's error.
func (i *Instance) Call(ctx context.Context, name string, args ...float64) (float64, error) {
	if i.closed {
		return 0, errors.Closed("instance")
	}
	fn := i.function(name)
	if fn == nil {
		return 0, errors.NotFound(errors.PhaseEngine, "export", name)
	}
	def := fn.Definition()

	params, err := coerceParams(def.ParamTypes(), args)
	if err != nil {
		return 0, errors.New(errors.PhaseEngine, errors.KindInvalidInput).
			Path(name).
			Cause(err).
			Detail("coerce arguments").
			Build()
	}

	results, err := fn.Call(ctx, params...)
	if err != nil {
		if call := marshal.CallFrom(ctx); call != nil && call.Err() != nil {
			return 0, call.Err()
		}
		return 0, errors.Wrap(errors.PhaseEngine, errors.KindInvalidInput, err, "call "+name)
	}
	if len(results) == 0 {
		return 0, nil
	}
	return decodeResult(def.ResultTypes()[0], results[0]), nil
}

// Memory returns the instance's linear memory, or nil when it exports none.
func (i *Instance) Memory() worldwasm.Memory {
	m := exportedMemory(i.module)
	if m == nil {
		return nil
	}
	return NewMemory(m)
}

// MemorySize returns the current linear memory size in bytes, or 0 if no memory.
func (i *Instance) MemorySize() uint32 {
	if m := exportedMemory(i.module); m != nil {
		return m.Size()
	}
	return 0
}

// Close releases the instance. It is safe to call more than once.
func (i *Instance) Close(ctx context.Context) error {
	if i.closed {
		return nil
	}
	i.closed = true
	return i.module.Close(ctx)
}
