package dispatch

import (
	"slices"

	"github.com/google/uuid"

	"github.com/wippyai/world-wasm/errors"
	"github.com/wippyai/world-wasm/ndarray"
	"github.com/wippyai/world-wasm/world"
)

// Op names a WORLD operation a worker can run.
type Op string

const (
	OpDio        Op = "dio"
	OpHarvest    Op = "harvest"
	OpStoneMask  Op = "stonemask"
	OpCheapTrick Op = "cheaptrick"
	OpD4C        Op = "d4c"
	OpAnalyze    Op = "analyze"
	OpSynthesize Op = "synthesize"
	OpReadWAV    Op = "wavread"
	OpWriteWAV   Op = "wavwrite"
	OpDescribe   Op = "describe"
)

// Ops lists every supported operation.
var Ops = []Op{
	OpDio, OpHarvest, OpStoneMask, OpCheapTrick, OpD4C,
	OpAnalyze, OpSynthesize, OpReadWAV, OpWriteWAV, OpDescribe,
}

func (o Op) Valid() bool {
	return slices.Contains(Ops, o)
}

// Array names used in Args.Arrays and Result.Arrays.
const (
	ArraySignal       = "x"
	ArrayF0           = "f0"
	ArrayTimeAxis     = "t"
	ArraySpectrogram  = "sp"
	ArrayAperiodicity = "ap"
	ArrayWaveform     = "y"
	ArrayWAV          = "wav"
)

// Params are the scalar analysis settings. Zero values keep the defaults.
type Params struct {
	FramePeriod float64 `json:"frame_period,omitempty"`
	Refine      *bool   `json:"refine,omitempty"`
	F0Floor     float64 `json:"f0_floor,omitempty"`
	F0Ceil      float64 `json:"f0_ceil,omitempty"`
	Estimator   string  `json:"estimator,omitempty"`
	FFTSize     int     `json:"fft_size,omitempty"`
}

func (p Params) options() []world.Option {
	var opts []world.Option
	if p.FramePeriod != 0 {
		opts = append(opts, world.WithFramePeriod(p.FramePeriod))
	}
	if p.Refine != nil {
		opts = append(opts, world.WithRefine(*p.Refine))
	}
	if p.F0Floor != 0 || p.F0Ceil != 0 {
		opts = append(opts, world.WithF0Range(p.F0Floor, p.F0Ceil))
	}
	if p.Estimator != "" {
		opts = append(opts, world.WithEstimator(world.Estimator(p.Estimator)))
	}
	if p.FFTSize != 0 {
		opts = append(opts, world.WithFFTSize(p.FFTSize))
	}
	return opts
}

// Args are a request's inputs.
type Args struct {
	Arrays     map[string]ndarray.Packed `json:"arrays,omitempty"`
	SampleRate int                       `json:"fs,omitempty"`
	Params
}

// Request is one task sent to a worker.
type Request struct {
	ID   uuid.UUID `json:"id"`
	Op   Op        `json:"op"`
	Args Args      `json:"args"`
	// Transfer names the arrays moved rather than cloned.
	Transfer []string `json:"transfer,omitempty"`
}

// NewRequest returns a request with a fresh time-ordered id.
func NewRequest(op Op, args Args) *Request {
	return &Request{ID: uuid.Must(uuid.NewV7()), Op: op, Args: args}
}

// Set packs a into the named argument. The packed form aliases a.
func (r *Request) Set(name string, a ndarray.Array) *Request {
	if r.Args.Arrays == nil {
		r.Args.Arrays = make(map[string]ndarray.Packed)
	}
	r.Args.Arrays[name] = ndarray.Pack(a)
	return r
}

// Move marks the named arguments for transfer.
func (r *Request) Move(names ...string) *Request {
	r.Transfer = append(r.Transfer, names...)
	return r
}

// seal returns the worker's copy of r. Transferred arrays are detached from
// r; the rest are cloned. Nothing is detached if any array is invalid.
func (r *Request) seal() (*Request, error) {
	if !r.Op.Valid() {
		return nil, errors.Unsupported(errors.PhaseDispatch, "operation "+string(r.Op))
	}
	moved := make(map[string]bool, len(r.Transfer))
	for _, name := range r.Transfer {
		if _, ok := r.Args.Arrays[name]; !ok {
			return nil, errors.New(errors.PhaseDispatch, errors.KindInvalidInput).
				Path("transfer", name).
				Detail("transfer names an argument that is not set").
				Build()
		}
		moved[name] = true
	}
	for name, p := range r.Args.Arrays {
		if err := p.Validate(); err != nil {
			return nil, errors.New(errors.PhaseDispatch, errors.KindInvalidInput).
				Path("args", name).
				Cause(err).
				Build()
		}
	}

	out := &Request{
		ID:       r.ID,
		Op:       r.Op,
		Args:     Args{SampleRate: r.Args.SampleRate, Params: r.Args.Params},
		Transfer: slices.Clone(r.Transfer),
	}
	if r.Args.Params.Refine != nil {
		refine := *r.Args.Params.Refine
		out.Args.Refine = &refine
	}
	out.Args.Arrays = make(map[string]ndarray.Packed, len(r.Args.Arrays))
	for name, p := range r.Args.Arrays {
		if !moved[name] {
			out.Args.Arrays[name] = p.Clone()
			continue
		}
		data := p.Detach()
		r.Args.Arrays[name] = p
		out.Args.Arrays[name] = ndarray.Packed{DType: p.DType, Shape: slices.Clone(p.Shape), Data: data}
	}
	return out, nil
}

// Result holds a completed task's outputs.
type Result struct {
	Arrays      map[string]ndarray.Packed `json:"arrays,omitempty"`
	FFTSize     int                       `json:"fft_size,omitempty"`
	FramePeriod float64                   `json:"frame_period,omitempty"`
	SampleRate  int                       `json:"fs,omitempty"`
	BitDepth    int                       `json:"bit_depth,omitempty"`
	Text        string                    `json:"text,omitempty"`
}

func (r *Result) put(name string, a ndarray.Array) {
	if r.Arrays == nil {
		r.Arrays = make(map[string]ndarray.Packed)
	}
	r.Arrays[name] = ndarray.Pack(a)
}

// View adopts the named float64 result array. The packed entry is detached,
// so each array can be taken once.
func (r *Result) View(name string) (*ndarray.View[float64], error) {
	p, ok := r.Arrays[name]
	if !ok {
		return nil, errors.NotFound(errors.PhaseDispatch, "result array", name)
	}
	v, err := ndarray.Adopt[float64](&p)
	r.Arrays[name] = p
	return v, err
}

// Float64s adopts the named result array as a flat slice.
func (r *Result) Float64s(name string) ([]float64, error) {
	v, err := r.View(name)
	if err != nil {
		return nil, err
	}
	return v.Data(), nil
}

// Bytes takes the named uint8 result array.
func (r *Result) Bytes(name string) ([]byte, error) {
	p, ok := r.Arrays[name]
	if !ok {
		return nil, errors.NotFound(errors.PhaseDispatch, "result array", name)
	}
	v, err := ndarray.Adopt[uint8](&p)
	r.Arrays[name] = p
	if err != nil {
		return nil, err
	}
	return v.Data(), nil
}

// Response is a worker's answer to one Request.
type Response struct {
	ID     uuid.UUID `json:"id"`
	Op     Op        `json:"op"`
	Result Result    `json:"result"`
	// Transfer names the result arrays moved back.
	Transfer []string `json:"transfer,omitempty"`
	Err      *Failure `json:"error,omitempty"`
}
