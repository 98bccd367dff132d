// Package worldwasm drives the WORLD vocoder compiled to WebAssembly from Go.
//
// The engine only speaks a linear-memory calling convention: integer slot
// handles, raw pointers and WASI preview1 file descriptors. This module is
// the bridge that turns that convention into typed Go calls.
//
// # Architecture Overview
//
//	worldwasm/           Root package with the Memory, Guest and Source interfaces
//	├── ndarray/         Shaped zero-copy views over typed buffers, packed wire form
//	├── wasi/preview1/   Virtual files, descriptor table, fd_* host calls
//	├── marshal/         Per-call slot table and the env host imports
//	├── engine/          wazero integration: runtime, compiled module, instance
//	├── world/           Typed WORLD operations over one engine instance
//	├── dispatch/        One-shot background tasks on fresh instances
//	├── config/          YAML configuration
//	├── errors/          Structured error types
//	└── cmd/world/       Command line and interactive front end
//
// # Quick Start
//
//	eng, err := engine.New(ctx, nil)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer eng.Close(ctx)
//
//	mod, err := eng.Compile(ctx, wasmBytes)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	w, err := world.Open(ctx, mod)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer w.Close(ctx)
//
//	audio, err := w.ReadWAV(ctx, wavBytes)
//	a, err := w.Analyze(ctx, ndarray.FromSlice(audio.Samples), audio.SampleRate)
//	y, err := w.Synthesize(ctx, a.F0, a.Spectrogram, a.Aperiodicity, audio.SampleRate, a.FramePeriod)
//
// # Thread Safety
//
// Engine and Module are safe for concurrent use. A World serializes its own
// calls; for parallel work use the dispatch package, which runs every task
// on its own instance.
//
// # Memory Model
//
// WASM linear memory can only grow. Arrays produced by the engine are copied
// into Go-owned buffers before the call returns, so results stay valid after
// the engine frees or reuses its memory.
package worldwasm
