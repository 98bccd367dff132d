// Package config loads the YAML settings shared by the CLI and embedders.
package config

import (
	"bytes"
	stderrors "errors"
	"io"
	"io/fs"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"

	"github.com/wippyai/world-wasm/dispatch"
	"github.com/wippyai/world-wasm/engine"
	"github.com/wippyai/world-wasm/errors"
	"github.com/wippyai/world-wasm/world"
)

// Config is the root of the configuration file.
type Config struct {
	Engine   Engine   `yaml:"engine"`
	Analysis Analysis `yaml:"analysis"`
	Dispatch Dispatch `yaml:"dispatch"`
	Log      Log      `yaml:"log"`
}

type Engine struct {
	// Wasm is the path of the compiled engine module.
	Wasm             string `yaml:"wasm"`
	MemoryLimitPages uint32 `yaml:"memory_limit_pages"`
	CompilationCache string `yaml:"compilation_cache"`
}

type Analysis struct {
	Estimator   string  `yaml:"estimator"`
	FramePeriod float64 `yaml:"frame_period"`
	F0Floor     float64 `yaml:"f0_floor"`
	F0Ceil      float64 `yaml:"f0_ceil"`
	Refine      bool    `yaml:"refine"`
}

type Dispatch struct {
	// Background routes work through the dispatch protocol.
	Background bool `yaml:"background"`
}

type Log struct {
	Level       string `yaml:"level"`
	Development bool   `yaml:"development"`
}

// Default returns the built-in settings.
func Default() *Config {
	return &Config{
		Engine: Engine{Wasm: "world.wasm"},
		Analysis: Analysis{
			Estimator:   string(world.EstimatorDio),
			FramePeriod: world.DefaultFramePeriod,
			Refine:      true,
		},
		Log: Log{Level: "info"},
	}
}

// Load reads path over the defaults. A missing file yields the defaults;
// unknown keys are rejected.
func Load(path string) (*Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if stderrors.Is(err, fs.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return nil, errors.Wrap(errors.PhaseConfig, errors.KindInvalidInput, err, "read "+path)
	}
	if err := cfg.decode(data); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Parse decodes YAML over the defaults.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := cfg.decode(data); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) decode(data []byte) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil && !stderrors.Is(err, io.EOF) {
		return errors.Wrap(errors.PhaseConfig, errors.KindInvalidInput, err, "parse configuration")
	}
	return c.Validate()
}

// Validate checks value ranges.
func (c *Config) Validate() error {
	if c.Engine.Wasm == "" {
		return invalid("engine.wasm", c.Engine.Wasm, "module path is required")
	}
	if _, err := world.ParseEstimator(c.Analysis.Estimator); err != nil {
		return invalid("analysis.estimator", c.Analysis.Estimator, "must be dio or harvest")
	}
	if !(c.Analysis.FramePeriod > 0) {
		return invalid("analysis.frame_period", c.Analysis.FramePeriod, "must be positive")
	}
	if c.Analysis.F0Floor < 0 || c.Analysis.F0Ceil < 0 {
		return invalid("analysis.f0_floor", c.Analysis.F0Floor, "f0 bounds must not be negative")
	}
	if c.Analysis.F0Ceil > 0 && c.Analysis.F0Floor > c.Analysis.F0Ceil {
		return invalid("analysis.f0_ceil", c.Analysis.F0Ceil, "must not be below f0_floor")
	}
	if _, err := zapcore.ParseLevel(c.Log.Level); err != nil {
		return invalid("log.level", c.Log.Level, "unknown level")
	}
	return nil
}

func invalid(path string, value any, detail string) error {
	return errors.New(errors.PhaseConfig, errors.KindInvalidInput).
		Path(path).
		Value(value).
		Detail("%s", detail).
		Build()
}

// EngineConfig returns the wazero runtime settings.
func (c *Config) EngineConfig() engine.Config {
	return engine.Config{
		MemoryLimitPages:    c.Engine.MemoryLimitPages,
		CompilationCacheDir: c.Engine.CompilationCache,
	}
}

// Options returns the analysis options for world calls.
func (c *Config) Options() []world.Option {
	return []world.Option{
		world.WithEstimator(world.Estimator(c.Analysis.Estimator)),
		world.WithFramePeriod(c.Analysis.FramePeriod),
		world.WithF0Range(c.Analysis.F0Floor, c.Analysis.F0Ceil),
		world.WithRefine(c.Analysis.Refine),
	}
}

// Params returns the same settings in dispatch form.
func (c *Config) Params() dispatch.Params {
	refine := c.Analysis.Refine
	return dispatch.Params{
		FramePeriod: c.Analysis.FramePeriod,
		Refine:      &refine,
		F0Floor:     c.Analysis.F0Floor,
		F0Ceil:      c.Analysis.F0Ceil,
		Estimator:   c.Analysis.Estimator,
	}
}

// Logger builds a zap logger from the log section.
func (c *Config) Logger() (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(c.Log.Level)
	if err != nil {
		return nil, invalid("log.level", c.Log.Level, "unknown level")
	}
	zc := zap.NewProductionConfig()
	if c.Log.Development {
		zc = zap.NewDevelopmentConfig()
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	return zc.Build()
}
