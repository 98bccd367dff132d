package config

import (
	stderrors "errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wippyai/world-wasm/errors"
)

var invalidConfig = &errors.Error{Phase: errors.PhaseConfig, Kind: errors.KindInvalidInput}

func TestDefault(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "world.wasm", cfg.Engine.Wasm)
	assert.Equal(t, "dio", cfg.Analysis.Estimator)
	assert.Equal(t, 5.0, cfg.Analysis.FramePeriod)
	assert.True(t, cfg.Analysis.Refine)
	assert.False(t, cfg.Dispatch.Background)
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoad_OverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "world.yaml")
	data := `
engine:
  wasm: build/world.wasm
  memory_limit_pages: 1024
  compilation_cache: /tmp/world-cache
analysis:
  estimator: harvest
  frame_period: 10
  f0_floor: 60
  f0_ceil: 500
dispatch:
  background: true
log:
  level: debug
  development: true
`
	require.NoError(t, os.WriteFile(path, []byte(data), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "build/world.wasm", cfg.Engine.Wasm)
	assert.Equal(t, "harvest", cfg.Analysis.Estimator)
	assert.Equal(t, 10.0, cfg.Analysis.FramePeriod)
	assert.True(t, cfg.Analysis.Refine, "unset keys keep their defaults")
	assert.True(t, cfg.Dispatch.Background)

	ec := cfg.EngineConfig()
	assert.EqualValues(t, 1024, ec.MemoryLimitPages)
	assert.Equal(t, "/tmp/world-cache", ec.CompilationCacheDir)

	p := cfg.Params()
	require.NotNil(t, p.Refine)
	assert.True(t, *p.Refine)
	assert.Equal(t, 60.0, p.F0Floor)
	assert.Len(t, cfg.Options(), 4)

	logger, err := cfg.Logger()
	require.NoError(t, err)
	assert.NotNil(t, logger)
}

func TestParse_Rejects(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		path string
	}{
		{"unknown key", "analysis:\n  hop: 5\n", ""},
		{"bad estimator", "analysis:\n  estimator: yin\n", "analysis.estimator"},
		{"zero frame period", "analysis:\n  frame_period: 0\n", "analysis.frame_period"},
		{"negative floor", "analysis:\n  f0_floor: -1\n", "analysis.f0_floor"},
		{"inverted range", "analysis:\n  f0_floor: 400\n  f0_ceil: 100\n", "analysis.f0_ceil"},
		{"empty wasm", "engine:\n  wasm: \"\"\n", "engine.wasm"},
		{"bad level", "log:\n  level: loud\n", "log.level"},
		{"not yaml", "engine: [", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			require.Error(t, err)
			assert.True(t, stderrors.Is(err, invalidConfig), "err = %v", err)
			if tt.path != "" {
				var e *errors.Error
				require.ErrorAs(t, err, &e)
				assert.Equal(t, []string{tt.path}, e.Path)
			}
		})
	}
}

func TestParse_Empty(t *testing.T) {
	cfg, err := Parse(nil)
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestInvalid_DetailVerbatim(t *testing.T) {
	var e *errors.Error
	require.ErrorAs(t, invalid("analysis.f0_ceil", 1.5, "must exceed 100% of f0_floor"), &e)
	assert.Equal(t, "must exceed 100% of f0_floor", e.Detail)
	assert.Equal(t, 1.5, e.Value)
}
