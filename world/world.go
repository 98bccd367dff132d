package world

import (
	"bytes"
	"context"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	worldwasm "github.com/wippyai/world-wasm"
	"github.com/wippyai/world-wasm/errors"
	"github.com/wippyai/world-wasm/marshal"
	"github.com/wippyai/world-wasm/ndarray"
	"github.com/wippyai/world-wasm/wasi/preview1"
)

// Engine exports.
const (
	ExportInitialize    = "_initialize"
	ExportInitWorld     = "_init_world"
	ExportDio           = "_dio"
	ExportHarvest       = "_harvest"
	ExportStoneMask     = "_stonemask"
	ExportCheapTrick    = "_cheaptrick"
	ExportD4C           = "_d4c"
	ExportSynthesis     = "_synthesis"
	ExportWavReadLength = "_wavreadlength"
	ExportWavRead       = "_wavread"
	ExportWavWrite      = "_wavwrite"
	ExportGetInfo       = "_get_info"
	ExportDestruct      = "_destruct"
)

// RequiredExports lists every export Open checks for.
var RequiredExports = []string{
	ExportInitialize, ExportInitWorld, ExportDio, ExportHarvest, ExportStoneMask,
	ExportCheapTrick, ExportD4C, ExportSynthesis, ExportWavReadLength,
	ExportWavRead, ExportWavWrite, ExportGetInfo, ExportDestruct,
}

// diagnosticCapacity is the initial size of the diagnostic output file.
const diagnosticCapacity = 8

// wavOutputCapacity is the initial size of the encoded WAV file.
const wavOutputCapacity = 256

// World is one engine instance exposing the WORLD operations.
//
// A World must be created with Open. Calls are serialized; use the
// dispatch package to run work in parallel.
type World struct {
	guest  worldwasm.Guest
	mu     sync.Mutex
	opened bool
	closed bool
}

// Open instantiates src and initializes the engine runtime.
func Open(ctx context.Context, src worldwasm.Source) (*World, error) {
	if src == nil {
		return nil, errors.InvalidInput(errors.PhaseLoad, "nil module source")
	}
	guest, err := src.Instantiate(ctx)
	if err != nil {
		return nil, err
	}

	var missing []string
	for _, name := range RequiredExports {
		if !guest.HasExport(name) {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		_ = guest.Close(ctx)
		return nil, errors.NewMissingExportsError(missing)
	}

	w := &World{guest: guest, opened: true}
	files := preview1.NewTable(map[uint32]*preview1.File{
		preview1.FDDiagnostic: preview1.NewFile(diagnosticCapacity),
	})
	call := marshal.NewCall(nil, files)
	if err := w.run(ctx, "initialize", call, func(ctx context.Context) error {
		_, err := guest.Call(ctx, ExportInitialize)
		return err
	}); err != nil {
		_ = guest.Close(ctx)
		return nil, err
	}
	return w, nil
}

func (w *World) lock() error {
	if w == nil || !w.opened {
		return errors.IllegalConstructor("World")
	}
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return errors.Closed("world")
	}
	return nil
}

// run executes fn with call installed in ctx and releases every pointer the
// engine registered, whether fn failed or not.
func (w *World) run(ctx context.Context, op string, call *marshal.Call, fn func(ctx context.Context) error) error {
	start := time.Now()
	ctx = marshal.WithCall(ctx, call)

	err := fn(ctx)
	if err == nil {
		err = call.Err()
	}

	n := len(call.Pointers())
	rerr := call.Release(func(ptr uint32) error {
		_, err := w.guest.Call(ctx, ExportDestruct, float64(ptr))
		return err
	})
	if rerr != nil {
		Logger().Warn("release engine pointers", zap.String("op", op), zap.Error(rerr))
		if err == nil {
			err = rerr
		}
	}

	fields := []zap.Field{
		zap.String("op", op),
		zap.Duration("elapsed", time.Since(start)),
		zap.Int("released", n),
	}
	if g := call.Growths(); g > 0 {
		fields = append(fields, zap.Int("memory_growths", g))
	}
	if err != nil {
		Logger().Debug("engine call failed", append(fields, zap.Error(err))...)
		return err
	}
	Logger().Debug("engine call", fields...)
	return nil
}

// check turns a negative native return code into an invalid-parameter error.
func check(export string, ret float64) error {
	if ret < 0 {
		return errors.InvalidParameter(export, int32(ret))
	}
	return nil
}

func boolArg(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

func validateRate(fs int) error {
	if fs <= 0 {
		return errors.New(errors.PhaseValidate, errors.KindInvalidInput).
			Path("fs").
			Value(fs).
			Detail("sample rate must be positive").
			Build()
	}
	return nil
}

func signalSlot(x ndarray.Array) (marshal.Slot, error) {
	s, err := marshal.Vector(x)
	if err != nil {
		return marshal.Slot{}, errors.New(errors.PhaseValidate, errors.KindInvalidInput).
			Path("x").
			Cause(err).
			Detail("signal must be a 1-D float32 or float64 array").
			Build()
	}
	return s, nil
}

func (w *World) initWorld(ctx context.Context, fs int, o options) error {
	ret, err := w.guest.Call(ctx, ExportInitWorld, float64(fs), o.f0Floor, o.f0Ceil)
	if err != nil {
		return err
	}
	return check(ExportInitWorld, ret)
}

// Dio estimates F0 with the fast DIO estimator.
func (w *World) Dio(ctx context.Context, x ndarray.Array, fs int, opts ...Option) (*PitchResult, error) {
	if err := w.lock(); err != nil {
		return nil, err
	}
	defer w.mu.Unlock()
	return w.pitch(ctx, EstimatorDio, x, fs, buildOptions(false, opts))
}

// Harvest estimates F0 with the slower, more robust Harvest estimator.
func (w *World) Harvest(ctx context.Context, x ndarray.Array, fs int, opts ...Option) (*PitchResult, error) {
	if err := w.lock(); err != nil {
		return nil, err
	}
	defer w.mu.Unlock()
	return w.pitch(ctx, EstimatorHarvest, x, fs, buildOptions(false, opts))
}

func (w *World) pitch(ctx context.Context, est Estimator, x ndarray.Array, fs int, o options) (*PitchResult, error) {
	if err := o.validate(); err != nil {
		return nil, err
	}
	if err := validateRate(fs); err != nil {
		return nil, err
	}
	sig, err := signalSlot(x)
	if err != nil {
		return nil, err
	}

	export := ExportDio
	if est == EstimatorHarvest {
		export = ExportHarvest
	}

	slots := marshal.NewContext().
		Bind(marshal.HandleSignal, sig).
		Expect(marshal.HandleTimeAxis, marshal.HandleF0)
	call := marshal.NewCall(slots, nil)
	err = w.run(ctx, string(est), call, func(ctx context.Context) error {
		if err := w.initWorld(ctx, fs, o); err != nil {
			return err
		}
		ret, err := w.guest.Call(ctx, export, float64(sig.Len()), float64(fs), o.framePeriod, boolArg(o.refine))
		if err != nil {
			return err
		}
		return check(export, ret)
	})
	if err != nil {
		return nil, err
	}

	f0, err := slots.Float64s(marshal.HandleF0)
	if err != nil {
		return nil, err
	}
	t, err := slots.Float64s(marshal.HandleTimeAxis)
	if err != nil {
		return nil, err
	}
	return &PitchResult{F0: f0, TimeAxis: t}, nil
}

func validateTrack(f0, t []float64) error {
	if len(f0) != len(t) {
		return errors.ShapeMismatch([]string{"time_axis"},
			"time axis has %d frames, f0 has %d", len(t), len(f0))
	}
	return nil
}

// StoneMask refines an F0 track. The result has the same length as f0.
func (w *World) StoneMask(ctx context.Context, x ndarray.Array, f0, t []float64, fs int) ([]float64, error) {
	if err := w.lock(); err != nil {
		return nil, err
	}
	defer w.mu.Unlock()
	return w.stoneMask(ctx, x, f0, t, fs)
}

func (w *World) stoneMask(ctx context.Context, x ndarray.Array, f0, t []float64, fs int) ([]float64, error) {
	if err := validateRate(fs); err != nil {
		return nil, err
	}
	if err := validateTrack(f0, t); err != nil {
		return nil, err
	}
	sig, err := signalSlot(x)
	if err != nil {
		return nil, err
	}

	slots := marshal.NewContext().
		Bind(marshal.HandleSignal, sig).
		Bind(marshal.HandleTimeAxis, marshal.Float64s(t)).
		Bind(marshal.HandleF0, marshal.Float64s(f0)).
		Expect(marshal.HandleF0)
	call := marshal.NewCall(slots, nil)
	err = w.run(ctx, "stonemask", call, func(ctx context.Context) error {
		ret, err := w.guest.Call(ctx, ExportStoneMask, float64(sig.Len()), float64(fs), float64(len(f0)))
		if err != nil {
			return err
		}
		return check(ExportStoneMask, ret)
	})
	if err != nil {
		return nil, err
	}
	return slots.Float64s(marshal.HandleF0)
}

// CheapTrick estimates the spectral envelope.
func (w *World) CheapTrick(ctx context.Context, x ndarray.Array, f0, t []float64, fs int, opts ...Option) (*SpectralResult, error) {
	if err := w.lock(); err != nil {
		return nil, err
	}
	defer w.mu.Unlock()
	return w.cheapTrick(ctx, x, f0, t, fs, buildOptions(false, opts))
}

func (w *World) cheapTrick(ctx context.Context, x ndarray.Array, f0, t []float64, fs int, o options) (*SpectralResult, error) {
	if err := o.validate(); err != nil {
		return nil, err
	}
	if err := validateRate(fs); err != nil {
		return nil, err
	}
	if err := validateTrack(f0, t); err != nil {
		return nil, err
	}
	sig, err := signalSlot(x)
	if err != nil {
		return nil, err
	}

	slots := marshal.NewContext().
		Bind(marshal.HandleSignal, sig).
		Bind(marshal.HandleTimeAxis, marshal.Float64s(t)).
		Bind(marshal.HandleF0, marshal.Float64s(f0)).
		Expect(marshal.HandleSpectrogram)
	call := marshal.NewCall(slots, nil)
	var fftSize float64
	err = w.run(ctx, "cheaptrick", call, func(ctx context.Context) error {
		if err := w.initWorld(ctx, fs, o); err != nil {
			return err
		}
		ret, err := w.guest.Call(ctx, ExportCheapTrick, float64(sig.Len()), float64(fs), float64(len(f0)))
		if err != nil {
			return err
		}
		fftSize = ret
		return check(ExportCheapTrick, ret)
	})
	if err != nil {
		return nil, err
	}

	sp, err := slots.Matrix(marshal.HandleSpectrogram)
	if err != nil {
		return nil, err
	}
	return &SpectralResult{Spectrogram: sp, FFTSize: int(fftSize)}, nil
}

// D4C estimates band aperiodicity. fftSize 0 lets the engine choose the
// size CheapTrick would use.
func (w *World) D4C(ctx context.Context, x ndarray.Array, f0, t []float64, fs, fftSize int, opts ...Option) (*ndarray.View[float64], error) {
	if err := w.lock(); err != nil {
		return nil, err
	}
	defer w.mu.Unlock()
	o := buildOptions(false, opts)
	o.fftSize = fftSize
	return w.d4c(ctx, x, f0, t, fs, o)
}

func (w *World) d4c(ctx context.Context, x ndarray.Array, f0, t []float64, fs int, o options) (*ndarray.View[float64], error) {
	if err := o.validate(); err != nil {
		return nil, err
	}
	if err := validateRate(fs); err != nil {
		return nil, err
	}
	if err := validateTrack(f0, t); err != nil {
		return nil, err
	}
	sig, err := signalSlot(x)
	if err != nil {
		return nil, err
	}

	slots := marshal.NewContext().
		Bind(marshal.HandleSignal, sig).
		Bind(marshal.HandleTimeAxis, marshal.Float64s(t)).
		Bind(marshal.HandleF0, marshal.Float64s(f0)).
		Expect(marshal.HandleAperiodicity)
	call := marshal.NewCall(slots, nil)
	err = w.run(ctx, "d4c", call, func(ctx context.Context) error {
		if err := w.initWorld(ctx, fs, o); err != nil {
			return err
		}
		ret, err := w.guest.Call(ctx, ExportD4C, float64(sig.Len()), float64(fs), float64(len(f0)), float64(o.fftSize))
		if err != nil {
			return err
		}
		return check(ExportD4C, ret)
	})
	if err != nil {
		return nil, err
	}
	return slots.Matrix(marshal.HandleAperiodicity)
}

// Analyze runs the full analysis: pitch estimation, StoneMask refinement,
// spectral envelope and aperiodicity. Refinement is on unless disabled
// with WithRefine(false).
func (w *World) Analyze(ctx context.Context, x ndarray.Array, fs int, opts ...Option) (*Analysis, error) {
	if err := w.lock(); err != nil {
		return nil, err
	}
	defer w.mu.Unlock()

	o := buildOptions(true, opts)
	if err := o.validate(); err != nil {
		return nil, err
	}

	coarse := o
	coarse.refine = false
	p, err := w.pitch(ctx, o.estimator, x, fs, coarse)
	if err != nil {
		return nil, err
	}
	f0 := p.F0
	if o.refine {
		if f0, err = w.stoneMask(ctx, x, p.F0, p.TimeAxis, fs); err != nil {
			return nil, err
		}
	}
	spec, err := w.cheapTrick(ctx, x, f0, p.TimeAxis, fs, o)
	if err != nil {
		return nil, err
	}
	if o.fftSize == 0 {
		o.fftSize = spec.FFTSize
	}
	ap, err := w.d4c(ctx, x, f0, p.TimeAxis, fs, o)
	if err != nil {
		return nil, err
	}

	return &Analysis{
		F0:           f0,
		TimeAxis:     p.TimeAxis,
		Spectrogram:  spec.Spectrogram,
		Aperiodicity: ap,
		FFTSize:      spec.FFTSize,
		FramePeriod:  o.framePeriod,
	}, nil
}

// Synthesize renders a waveform from F0, spectrogram and aperiodicity.
// Frame counts and spectral widths are checked before the engine runs.
func (w *World) Synthesize(ctx context.Context, f0 []float64, sp, ap *ndarray.View[float64], fs int, framePeriod float64) ([]float64, error) {
	if err := w.lock(); err != nil {
		return nil, err
	}
	defer w.mu.Unlock()

	spSlot, err := marshal.Matrix(sp)
	if err != nil {
		return nil, errors.New(errors.PhaseValidate, errors.KindShapeMismatch).Path("spectrogram").Cause(err).Build()
	}
	apSlot, err := marshal.Matrix(ap)
	if err != nil {
		return nil, errors.New(errors.PhaseValidate, errors.KindShapeMismatch).Path("aperiodicity").Cause(err).Build()
	}
	spShape, apShape := sp.Shape(), ap.Shape()
	if len(f0) != spShape[0] || len(f0) != apShape[0] {
		return nil, errors.ShapeMismatch([]string{"f0"},
			"mismatched number of frames between f0 (%d), spectrogram (%d) and aperiodicity (%d)",
			len(f0), spShape[0], apShape[0])
	}
	if spShape[1] != apShape[1] {
		return nil, errors.ShapeMismatch([]string{"spectrogram"},
			"mismatched spectral width between spectrogram (%d) and aperiodicity (%d)",
			spShape[1], apShape[1])
	}
	if err := validateRate(fs); err != nil {
		return nil, err
	}
	o := buildOptions(false, []Option{WithFramePeriod(framePeriod)})
	if err := o.validate(); err != nil {
		return nil, err
	}

	fftSize := (spShape[1] - 1) * 2
	slots := marshal.NewContext().
		Bind(marshal.HandleF0, marshal.Float64s(f0)).
		Bind(marshal.HandleSpectrogram, spSlot).
		Bind(marshal.HandleAperiodicity, apSlot).
		Expect(marshal.HandleSignal)
	call := marshal.NewCall(slots, nil)
	err = w.run(ctx, "synthesis", call, func(ctx context.Context) error {
		ret, err := w.guest.Call(ctx, ExportSynthesis, float64(len(f0)), float64(fftSize), float64(fs), framePeriod)
		if err != nil {
			return err
		}
		return check(ExportSynthesis, ret)
	})
	if err != nil {
		return nil, err
	}
	return slots.Float64s(marshal.HandleSignal)
}

func diagnostic(files *preview1.Table) string {
	f, ok := files.Get(preview1.FDDiagnostic)
	if !ok {
		return ""
	}
	return strings.TrimSpace(f.Text())
}

// ReadWAV decodes a RIFF/WAVE file. The engine works on a copy of data.
func (w *World) ReadWAV(ctx context.Context, data []byte) (*Audio, error) {
	if err := w.lock(); err != nil {
		return nil, err
	}
	defer w.mu.Unlock()

	files := preview1.NewTable(map[uint32]*preview1.File{
		preview1.FDDiagnostic: preview1.NewFile(diagnosticCapacity),
		preview1.FDData:       preview1.OpenFile(bytes.Clone(data)),
	})
	slots := marshal.NewContext().Expect(marshal.HandleSignal, marshal.HandleMeta)
	call := marshal.NewCall(slots, files)

	var fs float64
	err := w.run(ctx, "wavread", call, func(ctx context.Context) error {
		n, err := w.guest.Call(ctx, ExportWavReadLength)
		if err != nil {
			return err
		}
		if n > 0 {
			if fs, err = w.guest.Call(ctx, ExportWavRead, n); err != nil {
				return err
			}
		}
		if n <= 0 || fs <= 0 {
			return errors.Decode(diagnostic(files))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	x, err := slots.Float64s(marshal.HandleSignal)
	if err != nil {
		return nil, err
	}
	audio := &Audio{Samples: x, SampleRate: int(fs)}
	if meta, err := slots.Float64s(marshal.HandleMeta); err == nil && len(meta) >= 2 {
		audio.BitDepth = int(meta[1])
	}
	return audio, nil
}

// WriteWAV encodes x as a 16-bit PCM RIFF/WAVE file.
func (w *World) WriteWAV(ctx context.Context, x ndarray.Array, fs int) ([]byte, error) {
	if err := w.lock(); err != nil {
		return nil, err
	}
	defer w.mu.Unlock()

	if err := validateRate(fs); err != nil {
		return nil, err
	}
	sig, err := signalSlot(x)
	if err != nil {
		return nil, err
	}

	out := preview1.NewFile(wavOutputCapacity)
	files := preview1.NewTable(map[uint32]*preview1.File{
		preview1.FDDiagnostic: preview1.NewFile(diagnosticCapacity),
		preview1.FDData:       out,
	})
	slots := marshal.NewContext().Bind(marshal.HandleSignal, sig)
	call := marshal.NewCall(slots, files)

	err = w.run(ctx, "wavwrite", call, func(ctx context.Context) error {
		if _, err := w.guest.Call(ctx, ExportWavWrite, float64(sig.Len()), float64(fs)); err != nil {
			return err
		}
		if out.Size() == 0 {
			return errors.Encode(diagnostic(files))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out.Data(), nil
}

// Describe returns the engine's build information.
func (w *World) Describe(ctx context.Context) (string, error) {
	if err := w.lock(); err != nil {
		return "", err
	}
	defer w.mu.Unlock()

	files := preview1.NewTable(map[uint32]*preview1.File{
		preview1.FDDiagnostic: preview1.NewFile(diagnosticCapacity),
	})
	call := marshal.NewCall(nil, files)
	err := w.run(ctx, "get_info", call, func(ctx context.Context) error {
		_, err := w.guest.Call(ctx, ExportGetInfo)
		return err
	})
	if err != nil {
		return "", err
	}
	return diagnostic(files), nil
}

// MemorySize returns the engine's current linear memory size in bytes.
func (w *World) MemorySize() (uint32, error) {
	if err := w.lock(); err != nil {
		return 0, err
	}
	defer w.mu.Unlock()

	if s, ok := w.guest.Memory().(worldwasm.MemorySizer); ok {
		return s.Size(), nil
	}
	return 0, nil
}

// Close releases the engine instance. Later calls fail.
func (w *World) Close(ctx context.Context) error {
	if err := w.lock(); err != nil {
		if w != nil && w.opened {
			return nil
		}
		return err
	}
	defer w.mu.Unlock()
	w.closed = true
	return w.guest.Close(ctx)
}
