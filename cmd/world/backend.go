package main

import (
	"context"
	"fmt"
	"os"

	"go.uber.org/zap"

	worldwasm "github.com/wippyai/world-wasm"
	"github.com/wippyai/world-wasm/config"
	"github.com/wippyai/world-wasm/dispatch"
	"github.com/wippyai/world-wasm/engine"
	"github.com/wippyai/world-wasm/ndarray"
	"github.com/wippyai/world-wasm/world"
)

// backend is the subset of World the commands use. It is served either by
// one World or by dispatched tasks.
type backend interface {
	Describe(ctx context.Context) (string, error)
	ReadWAV(ctx context.Context, data []byte) (*world.Audio, error)
	WriteWAV(ctx context.Context, x ndarray.Array, fs int) ([]byte, error)
	Analyze(ctx context.Context, x ndarray.Array, fs int) (*world.Analysis, error)
	Synthesize(ctx context.Context, f0 []float64, sp, ap *ndarray.View[float64], fs int, framePeriod float64) ([]float64, error)
	Close(ctx context.Context) error
}

// session owns the wazero engine and the compiled module.
type session struct {
	eng     *engine.Engine
	mod     *engine.Module
	backend backend
}

func openSession(ctx context.Context, cfg *config.Config) (*session, error) {
	data, err := os.ReadFile(cfg.Engine.Wasm)
	if err != nil {
		return nil, fmt.Errorf("read engine module: %w", err)
	}
	ec := cfg.EngineConfig()
	eng, err := engine.New(ctx, &ec)
	if err != nil {
		return nil, err
	}
	mod, err := eng.Compile(ctx, data)
	if err != nil {
		_ = eng.Close(ctx)
		return nil, err
	}
	s := &session{eng: eng, mod: mod}
	if s.backend, err = newBackend(ctx, cfg, mod); err != nil {
		_ = s.Close(ctx)
		return nil, err
	}
	return s, nil
}

func newBackend(ctx context.Context, cfg *config.Config, src worldwasm.Source) (backend, error) {
	if cfg.Dispatch.Background {
		c, err := dispatch.NewClient(src, dispatch.WithTransfer(true))
		if err != nil {
			return nil, err
		}
		return &taskBackend{client: c, params: cfg.Params()}, nil
	}
	w, err := world.Open(ctx, src)
	if err != nil {
		return nil, err
	}
	return &directBackend{w: w, opts: cfg.Options()}, nil
}

func (s *session) Close(ctx context.Context) error {
	if s.backend != nil {
		if err := s.backend.Close(ctx); err != nil {
			world.Logger().Warn("close backend", zap.Error(err))
		}
	}
	if s.mod != nil {
		_ = s.mod.Close(ctx)
	}
	return s.eng.Close(ctx)
}

type directBackend struct {
	w    *world.World
	opts []world.Option
}

func (b *directBackend) Describe(ctx context.Context) (string, error) { return b.w.Describe(ctx) }

func (b *directBackend) ReadWAV(ctx context.Context, data []byte) (*world.Audio, error) {
	return b.w.ReadWAV(ctx, data)
}

func (b *directBackend) WriteWAV(ctx context.Context, x ndarray.Array, fs int) ([]byte, error) {
	return b.w.WriteWAV(ctx, x, fs)
}

func (b *directBackend) Analyze(ctx context.Context, x ndarray.Array, fs int) (*world.Analysis, error) {
	return b.w.Analyze(ctx, x, fs, b.opts...)
}

func (b *directBackend) Synthesize(ctx context.Context, f0 []float64, sp, ap *ndarray.View[float64], fs int, fp float64) ([]float64, error) {
	return b.w.Synthesize(ctx, f0, sp, ap, fs, fp)
}

func (b *directBackend) Close(ctx context.Context) error { return b.w.Close(ctx) }

type taskBackend struct {
	client *dispatch.Client
	params dispatch.Params
}

func (b *taskBackend) Describe(ctx context.Context) (string, error) { return b.client.Describe(ctx) }

func (b *taskBackend) ReadWAV(ctx context.Context, data []byte) (*world.Audio, error) {
	return b.client.ReadWAV(ctx, data)
}

func (b *taskBackend) WriteWAV(ctx context.Context, x ndarray.Array, fs int) ([]byte, error) {
	return b.client.WriteWAV(ctx, x, fs)
}

func (b *taskBackend) Analyze(ctx context.Context, x ndarray.Array, fs int) (*world.Analysis, error) {
	return b.client.Analyze(ctx, x, fs, b.params)
}

func (b *taskBackend) Synthesize(ctx context.Context, f0 []float64, sp, ap *ndarray.View[float64], fs int, fp float64) ([]float64, error) {
	return b.client.Synthesize(ctx, f0, sp, ap, fs, fp)
}

func (b *taskBackend) Close(context.Context) error { return nil }
