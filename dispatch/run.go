package dispatch

import (
	"context"
	"runtime/debug"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	worldwasm "github.com/wippyai/world-wasm"
	"github.com/wippyai/world-wasm/errors"
	"github.com/wippyai/world-wasm/ndarray"
	"github.com/wippyai/world-wasm/world"
)

// Run executes req on a new goroutine against a fresh instance of src and
// waits for its response.
//
// A task failure is returned both in Response.Err and as the rebuilt error.
// If ctx is done first Run returns ctx.Err(); the task runs to completion
// and its response is dropped.
func Run(ctx context.Context, src worldwasm.Source, req *Request) (*Response, error) {
	if src == nil {
		return nil, errors.InvalidInput(errors.PhaseDispatch, "nil module source")
	}
	if req == nil {
		return nil, errors.InvalidInput(errors.PhaseDispatch, "nil request")
	}
	msg, err := req.seal()
	if err != nil {
		return nil, err
	}

	out := make(chan *Response, 1)
	go func() {
		out <- work(context.WithoutCancel(ctx), src, msg)
	}()

	select {
	case resp := <-out:
		if resp.Err != nil {
			return resp, resp.Err.Err()
		}
		return resp, nil
	case <-ctx.Done():
		Logger().Debug("task abandoned",
			zap.String("id", msg.ID.String()),
			zap.String("op", string(msg.Op)),
			zap.Error(ctx.Err()))
		return nil, ctx.Err()
	}
}

// RunAll runs every request as an independent task. Responses are in
// request order; the error is the first failure observed.
func RunAll(ctx context.Context, src worldwasm.Source, reqs []*Request) ([]*Response, error) {
	resps := make([]*Response, len(reqs))
	var g errgroup.Group
	for i, req := range reqs {
		g.Go(func() error {
			resp, err := Run(ctx, src, req)
			resps[i] = resp
			return err
		})
	}
	return resps, g.Wait()
}

func work(ctx context.Context, src worldwasm.Source, req *Request) (resp *Response) {
	start := time.Now()
	resp = &Response{ID: req.ID, Op: req.Op}
	var w *world.World

	defer func() {
		if r := recover(); r != nil {
			resp.Result = Result{}
			resp.Transfer = nil
			resp.Err = normalize(r, debug.Stack())
		}
		if w != nil {
			if err := w.Close(ctx); err != nil {
				Logger().Warn("close worker instance", zap.String("id", req.ID.String()), zap.Error(err))
			}
		}
		fields := []zap.Field{
			zap.String("id", req.ID.String()),
			zap.String("op", string(req.Op)),
			zap.Duration("elapsed", time.Since(start)),
		}
		if resp.Err != nil {
			fields = append(fields, zap.Stringer("failure", resp.Err))
		}
		Logger().Debug("task done", fields...)
	}()

	var err error
	if w, err = world.Open(ctx, src); err != nil {
		resp.Err = normalize(err, nil)
		return resp
	}
	result, err := execute(ctx, w, req)
	if err != nil {
		resp.Err = normalize(err, nil)
		return resp
	}
	resp.Result = result
	for name := range result.Arrays {
		resp.Transfer = append(resp.Transfer, name)
	}
	return resp
}

// args gives typed, zero-copy access to a sealed request's arrays.
type args struct{ Args }

func (a args) packed(name string) (*ndarray.Packed, error) {
	p, ok := a.Arrays[name]
	if !ok {
		return nil, errors.New(errors.PhaseDispatch, errors.KindInvalidInput).
			Path("args", name).
			Detail("missing argument").
			Build()
	}
	return &p, nil
}

func (a args) signal() (ndarray.Array, error) {
	p, err := a.packed(ArraySignal)
	if err != nil {
		return nil, err
	}
	if p.DType == ndarray.Float32 {
		return ndarray.Adopt[float32](p)
	}
	return ndarray.Adopt[float64](p)
}

func (a args) view(name string) (*ndarray.View[float64], error) {
	p, err := a.packed(name)
	if err != nil {
		return nil, err
	}
	return ndarray.Adopt[float64](p)
}

func (a args) float64s(name string) ([]float64, error) {
	v, err := a.view(name)
	if err != nil {
		return nil, err
	}
	return v.Data(), nil
}

// track returns the signal, f0 and time axis used by the refinement and
// spectral operations.
func (a args) track() (ndarray.Array, []float64, []float64, error) {
	x, err := a.signal()
	if err != nil {
		return nil, nil, nil, err
	}
	f0, err := a.float64s(ArrayF0)
	if err != nil {
		return nil, nil, nil, err
	}
	t, err := a.float64s(ArrayTimeAxis)
	if err != nil {
		return nil, nil, nil, err
	}
	return x, f0, t, nil
}

func execute(ctx context.Context, w *world.World, req *Request) (Result, error) {
	var res Result
	a := args{req.Args}
	fs := a.SampleRate

	switch req.Op {
	case OpDio, OpHarvest:
		x, err := a.signal()
		if err != nil {
			return res, err
		}
		run := w.Dio
		if req.Op == OpHarvest {
			run = w.Harvest
		}
		p, err := run(ctx, x, fs, a.options()...)
		if err != nil {
			return res, err
		}
		res.put(ArrayF0, ndarray.FromSlice(p.F0))
		res.put(ArrayTimeAxis, ndarray.FromSlice(p.TimeAxis))

	case OpStoneMask:
		x, f0, t, err := a.track()
		if err != nil {
			return res, err
		}
		refined, err := w.StoneMask(ctx, x, f0, t, fs)
		if err != nil {
			return res, err
		}
		res.put(ArrayF0, ndarray.FromSlice(refined))

	case OpCheapTrick:
		x, f0, t, err := a.track()
		if err != nil {
			return res, err
		}
		spec, err := w.CheapTrick(ctx, x, f0, t, fs, a.options()...)
		if err != nil {
			return res, err
		}
		res.put(ArraySpectrogram, spec.Spectrogram)
		res.FFTSize = spec.FFTSize

	case OpD4C:
		x, f0, t, err := a.track()
		if err != nil {
			return res, err
		}
		ap, err := w.D4C(ctx, x, f0, t, fs, a.FFTSize, a.options()...)
		if err != nil {
			return res, err
		}
		res.put(ArrayAperiodicity, ap)

	case OpAnalyze:
		x, err := a.signal()
		if err != nil {
			return res, err
		}
		an, err := w.Analyze(ctx, x, fs, a.options()...)
		if err != nil {
			return res, err
		}
		res.put(ArrayF0, ndarray.FromSlice(an.F0))
		res.put(ArrayTimeAxis, ndarray.FromSlice(an.TimeAxis))
		res.put(ArraySpectrogram, an.Spectrogram)
		res.put(ArrayAperiodicity, an.Aperiodicity)
		res.FFTSize = an.FFTSize
		res.FramePeriod = an.FramePeriod

	case OpSynthesize:
		f0, err := a.float64s(ArrayF0)
		if err != nil {
			return res, err
		}
		sp, err := a.view(ArraySpectrogram)
		if err != nil {
			return res, err
		}
		ap, err := a.view(ArrayAperiodicity)
		if err != nil {
			return res, err
		}
		fp := a.FramePeriod
		if fp == 0 {
			fp = world.DefaultFramePeriod
		}
		y, err := w.Synthesize(ctx, f0, sp, ap, fs, fp)
		if err != nil {
			return res, err
		}
		res.put(ArrayWaveform, ndarray.FromSlice(y))

	case OpReadWAV:
		p, err := a.packed(ArrayWAV)
		if err != nil {
			return res, err
		}
		data, err := ndarray.Adopt[uint8](p)
		if err != nil {
			return res, err
		}
		audio, err := w.ReadWAV(ctx, data.Data())
		if err != nil {
			return res, err
		}
		res.put(ArraySignal, ndarray.FromSlice(audio.Samples))
		res.SampleRate = audio.SampleRate
		res.BitDepth = audio.BitDepth

	case OpWriteWAV:
		x, err := a.signal()
		if err != nil {
			return res, err
		}
		data, err := w.WriteWAV(ctx, x, fs)
		if err != nil {
			return res, err
		}
		res.put(ArrayWAV, ndarray.FromSlice(data))

	case OpDescribe:
		info, err := w.Describe(ctx)
		if err != nil {
			return res, err
		}
		res.Text = info

	default:
		return res, errors.Unsupported(errors.PhaseDispatch, "operation "+string(req.Op))
	}
	return res, nil
}
