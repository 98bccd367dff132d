package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"slices"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/wippyai/world-wasm/ndarray"
	"github.com/wippyai/world-wasm/world"
)

func newInfoCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "info",
		Short: "Print engine build information and exports",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			s, err := openSession(ctx, a.cfg)
			if err != nil {
				return err
			}
			defer s.Close(ctx)

			info, err := s.backend.Describe(ctx)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Module: %s\n", a.cfg.Engine.Wasm)
			fmt.Fprintln(out, info)

			exports := s.mod.Exports()
			slices.Sort(exports)
			fmt.Fprintf(out, "\nExports (%d):\n", len(exports))
			for _, name := range exports {
				fmt.Fprintf(out, "  %s\n", name)
			}
			return nil
		},
	}
}

func newAnalyzeCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "analyze <file.wav>...",
		Short: "Analyze WAV files and print a parameter summary",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, files []string) error {
			ctx := cmd.Context()
			s, err := openSession(ctx, a.cfg)
			if err != nil {
				return err
			}
			defer s.Close(ctx)

			sums, err := analyzeAll(ctx, s.backend, files, a.cfg.Dispatch.Background)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for i, sum := range sums {
				if i > 0 {
					fmt.Fprintln(out)
				}
				if err := renderSummary(out, sum); err != nil {
					return err
				}
			}
			return nil
		},
	}
}

func newResynthCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "resynth <in.wav> <out.wav>",
		Short: "Analyze a WAV file and write the resynthesized signal",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			s, err := openSession(ctx, a.cfg)
			if err != nil {
				return err
			}
			defer s.Close(ctx)

			sum, err := resynthFile(ctx, s.backend, args[0], args[1])
			if err != nil {
				return err
			}
			return renderSummary(cmd.OutOrStdout(), sum)
		},
	}
}

// analyzeAll keeps summaries in argument order. Files run concurrently only
// when each operation gets its own instance.
func analyzeAll(ctx context.Context, b backend, files []string, parallel bool) ([]summary, error) {
	sums := make([]summary, len(files))
	g, ctx := errgroup.WithContext(ctx)
	if parallel {
		g.SetLimit(runtime.NumCPU())
	} else {
		g.SetLimit(1)
	}
	for i, file := range files {
		g.Go(func() error {
			audio, a, err := analyzeFile(ctx, b, file)
			if err != nil {
				return fmt.Errorf("%s: %w", file, err)
			}
			sums[i] = summarize(file, audio, a)
			return nil
		})
	}
	return sums, g.Wait()
}

func analyzeFile(ctx context.Context, b backend, file string) (*world.Audio, *world.Analysis, error) {
	data, err := os.ReadFile(file)
	if err != nil {
		return nil, nil, err
	}
	audio, err := b.ReadWAV(ctx, data)
	if err != nil {
		return nil, nil, err
	}
	a, err := b.Analyze(ctx, ndarray.FromSlice(audio.Samples), audio.SampleRate)
	if err != nil {
		return nil, nil, err
	}
	world.Logger().Info("analyzed",
		zap.String("file", file),
		zap.Int("frames", a.Frames()),
		zap.Int("fft_size", a.FFTSize))
	return audio, a, nil
}

func resynthFile(ctx context.Context, b backend, in, out string) (summary, error) {
	audio, a, err := analyzeFile(ctx, b, in)
	if err != nil {
		return summary{}, err
	}
	y, err := b.Synthesize(ctx, a.F0, a.Spectrogram, a.Aperiodicity, audio.SampleRate, a.FramePeriod)
	if err != nil {
		return summary{}, err
	}
	data, err := b.WriteWAV(ctx, ndarray.FromSlice(y), audio.SampleRate)
	if err != nil {
		return summary{}, err
	}
	if err := os.WriteFile(out, data, 0o644); err != nil {
		return summary{}, err
	}
	sum := summarize(in, audio, a)
	sum.Output = out
	sum.OutSamples = len(y)
	return sum, nil
}

func isWAV(name string) bool {
	return strings.EqualFold(filepath.Ext(name), ".wav")
}
