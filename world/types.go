package world

import "github.com/wippyai/world-wasm/ndarray"

// PitchResult is the output of Dio and Harvest.
type PitchResult struct {
	F0       []float64
	TimeAxis []float64
}

// SpectralResult is the output of CheapTrick.
type SpectralResult struct {
	// Spectrogram is [frames, FFTSize/2+1].
	Spectrogram *ndarray.View[float64]
	FFTSize     int
}

// Analysis holds every parameter needed to resynthesize a signal.
type Analysis struct {
	F0           []float64
	TimeAxis     []float64
	Spectrogram  *ndarray.View[float64]
	Aperiodicity *ndarray.View[float64]
	FFTSize      int
	FramePeriod  float64
}

// Frames returns the number of analysis frames.
func (a *Analysis) Frames() int {
	return len(a.F0)
}

// Audio is a decoded WAV file.
type Audio struct {
	Samples    []float64
	SampleRate int
	// BitDepth is 0 when the engine did not report it.
	BitDepth int
}

// Duration returns the signal length in seconds.
func (a *Audio) Duration() float64 {
	if a.SampleRate <= 0 {
		return 0
	}
	return float64(len(a.Samples)) / float64(a.SampleRate)
}
