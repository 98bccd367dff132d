package main

import (
	"fmt"
	"io"
	"math"

	"github.com/wippyai/world-wasm/world"
)

// summary is what analyze and resynth print per file.
type summary struct {
	File        string
	SampleRate  int
	BitDepth    int
	Samples     int
	Frames      int
	FramePeriod float64
	FFTSize     int
	Voiced      int
	F0Min       float64
	F0Mean      float64
	F0Max       float64
	Output      string
	OutSamples  int
}

func summarize(file string, audio *world.Audio, a *world.Analysis) summary {
	s := summary{
		File:        file,
		SampleRate:  audio.SampleRate,
		BitDepth:    audio.BitDepth,
		Samples:     len(audio.Samples),
		Frames:      a.Frames(),
		FramePeriod: a.FramePeriod,
		FFTSize:     a.FFTSize,
		F0Min:       math.Inf(1),
	}
	var sum float64
	for _, f := range a.F0 {
		if f <= 0 {
			continue
		}
		s.Voiced++
		sum += f
		s.F0Min = math.Min(s.F0Min, f)
		s.F0Max = math.Max(s.F0Max, f)
	}
	if s.Voiced == 0 {
		s.F0Min = 0
	} else {
		s.F0Mean = sum / float64(s.Voiced)
	}
	return s
}

func (s summary) duration() float64 {
	if s.SampleRate == 0 {
		return 0
	}
	return float64(s.Samples) / float64(s.SampleRate)
}

func renderSummary(w io.Writer, s summary) error {
	bits := "unknown"
	if s.BitDepth > 0 {
		bits = fmt.Sprintf("%d-bit", s.BitDepth)
	}
	lines := []string{
		fmt.Sprintf("file:          %s", s.File),
		fmt.Sprintf("format:        %d Hz, %s", s.SampleRate, bits),
		fmt.Sprintf("duration:      %.3f s (%d samples)", s.duration(), s.Samples),
		fmt.Sprintf("frames:        %d x %g ms", s.Frames, s.FramePeriod),
		fmt.Sprintf("fft size:      %d (%d bins)", s.FFTSize, s.FFTSize/2+1),
		fmt.Sprintf("voiced:        %d/%d frames", s.Voiced, s.Frames),
		fmt.Sprintf("f0:            min %.1f  mean %.1f  max %.1f Hz", s.F0Min, s.F0Mean, s.F0Max),
	}
	if s.Output != "" {
		lines = append(lines, fmt.Sprintf("output:        %s (%d samples)", s.Output, s.OutSamples))
	}
	for _, line := range lines {
		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
	}
	return nil
}
