package world

import (
	"github.com/wippyai/world-wasm/errors"
)

// DefaultFramePeriod is the analysis hop in milliseconds.
const DefaultFramePeriod = 5.0

// Estimator selects the pitch estimator used by Analyze.
type Estimator string

const (
	// EstimatorDio is fast and coarse.
	EstimatorDio Estimator = "dio"
	// EstimatorHarvest is slower and more robust.
	EstimatorHarvest Estimator = "harvest"
)

// ParseEstimator validates an estimator name.
func ParseEstimator(s string) (Estimator, error) {
	switch Estimator(s) {
	case EstimatorDio, EstimatorHarvest:
		return Estimator(s), nil
	}
	return "", errors.New(errors.PhaseValidate, errors.KindInvalidInput).
		Value(s).
		Detail("unknown pitch estimator %q", s).
		Build()
}

type options struct {
	framePeriod float64
	refine      bool
	f0Floor     float64
	f0Ceil      float64
	estimator   Estimator
	fftSize     int
}

// Option configures an analysis call.
type Option func(*options)

func buildOptions(refine bool, opts []Option) options {
	o := options{
		framePeriod: DefaultFramePeriod,
		refine:      refine,
		estimator:   EstimatorDio,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// WithFramePeriod sets the frame period in milliseconds.
func WithFramePeriod(ms float64) Option {
	return func(o *options) { o.framePeriod = ms }
}

// WithRefine enables or disables StoneMask refinement of the pitch track.
func WithRefine(refine bool) Option {
	return func(o *options) { o.refine = refine }
}

// WithF0Range bounds the pitch search. Zero keeps the engine default.
func WithF0Range(floor, ceil float64) Option {
	return func(o *options) {
		o.f0Floor = floor
		o.f0Ceil = ceil
	}
}

// WithEstimator selects the pitch estimator used by Analyze.
func WithEstimator(e Estimator) Option {
	return func(o *options) { o.estimator = e }
}

// WithFFTSize overrides the FFT size D4C uses inside Analyze. Zero lets
// the engine choose.
func WithFFTSize(n int) Option {
	return func(o *options) { o.fftSize = n }
}

func (o options) validate() error {
	if !(o.framePeriod > 0) {
		return errors.New(errors.PhaseValidate, errors.KindInvalidInput).
			Path("frame_period").
			Value(o.framePeriod).
			Detail("frame period must be positive").
			Build()
	}
	if o.f0Floor < 0 || o.f0Ceil < 0 || (o.f0Ceil > 0 && o.f0Floor > o.f0Ceil) {
		return errors.New(errors.PhaseValidate, errors.KindInvalidInput).
			Path("f0_range").
			Detail("invalid f0 range [%g, %g]", o.f0Floor, o.f0Ceil).
			Build()
	}
	if _, err := ParseEstimator(string(o.estimator)); err != nil {
		return err
	}
	if o.fftSize < 0 {
		return errors.New(errors.PhaseValidate, errors.KindInvalidInput).
			Path("fft_size").
			Value(o.fftSize).
			Detail("fft size must not be negative").
			Build()
	}
	return nil
}
