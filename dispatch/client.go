package dispatch

import (
	"context"

	worldwasm "github.com/wippyai/world-wasm"
	"github.com/wippyai/world-wasm/errors"
	"github.com/wippyai/world-wasm/ndarray"
	"github.com/wippyai/world-wasm/world"
)

// Client runs World operations as dispatched tasks, one fresh instance per
// call. Create it with NewClient.
type Client struct {
	src      worldwasm.Source
	transfer bool
	opened   bool
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithTransfer moves input arrays to the worker instead of cloning them.
// Moved arrays must not be modified by the caller while the task runs.
func WithTransfer(move bool) ClientOption {
	return func(c *Client) { c.transfer = move }
}

// NewClient returns a Client that instantiates src for every task.
func NewClient(src worldwasm.Source, opts ...ClientOption) (*Client, error) {
	if src == nil {
		return nil, errors.InvalidInput(errors.PhaseDispatch, "nil module source")
	}
	c := &Client{src: src, opened: true}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func (c *Client) check() error {
	if c == nil || !c.opened {
		return errors.IllegalConstructor("Client")
	}
	return nil
}

func (c *Client) do(ctx context.Context, req *Request) (*Result, error) {
	if err := c.check(); err != nil {
		return nil, err
	}
	if c.transfer {
		for name := range req.Args.Arrays {
			req.Move(name)
		}
	}
	resp, err := Run(ctx, c.src, req)
	if err != nil {
		return nil, err
	}
	return &resp.Result, nil
}

func trackRequest(op Op, x ndarray.Array, f0, t []float64, fs int, p Params) *Request {
	return NewRequest(op, Args{SampleRate: fs, Params: p}).
		Set(ArraySignal, x).
		Set(ArrayF0, ndarray.FromSlice(f0)).
		Set(ArrayTimeAxis, ndarray.FromSlice(t))
}

func (c *Client) pitch(ctx context.Context, op Op, x ndarray.Array, fs int, p Params) (*world.PitchResult, error) {
	if x == nil {
		return nil, errors.InvalidInput(errors.PhaseValidate, "nil signal")
	}
	res, err := c.do(ctx, NewRequest(op, Args{SampleRate: fs, Params: p}).Set(ArraySignal, x))
	if err != nil {
		return nil, err
	}
	f0, err := res.Float64s(ArrayF0)
	if err != nil {
		return nil, err
	}
	t, err := res.Float64s(ArrayTimeAxis)
	if err != nil {
		return nil, err
	}
	return &world.PitchResult{F0: f0, TimeAxis: t}, nil
}

// Dio runs World.Dio in a task.
func (c *Client) Dio(ctx context.Context, x ndarray.Array, fs int, p Params) (*world.PitchResult, error) {
	return c.pitch(ctx, OpDio, x, fs, p)
}

// Harvest runs World.Harvest in a task.
func (c *Client) Harvest(ctx context.Context, x ndarray.Array, fs int, p Params) (*world.PitchResult, error) {
	return c.pitch(ctx, OpHarvest, x, fs, p)
}

func (c *Client) StoneMask(ctx context.Context, x ndarray.Array, f0, t []float64, fs int) ([]float64, error) {
	if x == nil {
		return nil, errors.InvalidInput(errors.PhaseValidate, "nil signal")
	}
	res, err := c.do(ctx, trackRequest(OpStoneMask, x, f0, t, fs, Params{}))
	if err != nil {
		return nil, err
	}
	return res.Float64s(ArrayF0)
}

func (c *Client) CheapTrick(ctx context.Context, x ndarray.Array, f0, t []float64, fs int, p Params) (*world.SpectralResult, error) {
	if x == nil {
		return nil, errors.InvalidInput(errors.PhaseValidate, "nil signal")
	}
	res, err := c.do(ctx, trackRequest(OpCheapTrick, x, f0, t, fs, p))
	if err != nil {
		return nil, err
	}
	sp, err := res.View(ArraySpectrogram)
	if err != nil {
		return nil, err
	}
	return &world.SpectralResult{Spectrogram: sp, FFTSize: res.FFTSize}, nil
}

func (c *Client) D4C(ctx context.Context, x ndarray.Array, f0, t []float64, fs, fftSize int, p Params) (*ndarray.View[float64], error) {
	if x == nil {
		return nil, errors.InvalidInput(errors.PhaseValidate, "nil signal")
	}
	p.FFTSize = fftSize
	res, err := c.do(ctx, trackRequest(OpD4C, x, f0, t, fs, p))
	if err != nil {
		return nil, err
	}
	return res.View(ArrayAperiodicity)
}

// Analyze runs the full analysis pipeline in one task.
func (c *Client) Analyze(ctx context.Context, x ndarray.Array, fs int, p Params) (*world.Analysis, error) {
	if x == nil {
		return nil, errors.InvalidInput(errors.PhaseValidate, "nil signal")
	}
	res, err := c.do(ctx, NewRequest(OpAnalyze, Args{SampleRate: fs, Params: p}).Set(ArraySignal, x))
	if err != nil {
		return nil, err
	}
	out := &world.Analysis{FFTSize: res.FFTSize, FramePeriod: res.FramePeriod}
	if out.F0, err = res.Float64s(ArrayF0); err != nil {
		return nil, err
	}
	if out.TimeAxis, err = res.Float64s(ArrayTimeAxis); err != nil {
		return nil, err
	}
	if out.Spectrogram, err = res.View(ArraySpectrogram); err != nil {
		return nil, err
	}
	if out.Aperiodicity, err = res.View(ArrayAperiodicity); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) Synthesize(ctx context.Context, f0 []float64, sp, ap *ndarray.View[float64], fs int, framePeriod float64) ([]float64, error) {
	if sp == nil || ap == nil {
		return nil, errors.ShapeMismatch([]string{"spectrogram"}, "spectrogram and aperiodicity are required")
	}
	req := NewRequest(OpSynthesize, Args{SampleRate: fs, Params: Params{FramePeriod: framePeriod}}).
		Set(ArrayF0, ndarray.FromSlice(f0)).
		Set(ArraySpectrogram, sp).
		Set(ArrayAperiodicity, ap)
	res, err := c.do(ctx, req)
	if err != nil {
		return nil, err
	}
	return res.Float64s(ArrayWaveform)
}

func (c *Client) ReadWAV(ctx context.Context, data []byte) (*world.Audio, error) {
	res, err := c.do(ctx, NewRequest(OpReadWAV, Args{}).Set(ArrayWAV, ndarray.FromSlice(data)))
	if err != nil {
		return nil, err
	}
	x, err := res.Float64s(ArraySignal)
	if err != nil {
		return nil, err
	}
	return &world.Audio{Samples: x, SampleRate: res.SampleRate, BitDepth: res.BitDepth}, nil
}

func (c *Client) WriteWAV(ctx context.Context, x ndarray.Array, fs int) ([]byte, error) {
	if x == nil {
		return nil, errors.InvalidInput(errors.PhaseValidate, "nil signal")
	}
	res, err := c.do(ctx, NewRequest(OpWriteWAV, Args{SampleRate: fs}).Set(ArraySignal, x))
	if err != nil {
		return nil, err
	}
	return res.Bytes(ArrayWAV)
}

func (c *Client) Describe(ctx context.Context) (string, error) {
	res, err := c.do(ctx, NewRequest(OpDescribe, Args{}))
	if err != nil {
		return "", err
	}
	return res.Text, nil
}
