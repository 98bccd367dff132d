package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/wippyai/world-wasm/config"
	"github.com/wippyai/world-wasm/dispatch"
	"github.com/wippyai/world-wasm/engine"
	"github.com/wippyai/world-wasm/world"
)

type rootFlags struct {
	config     string
	wasm       string
	background bool
	logLevel   string
}

type app struct {
	flags  rootFlags
	cfg    *config.Config
	logger *zap.Logger
}

func newRootCmd() *cobra.Command {
	a := &app{}
	cmd := &cobra.Command{
		Use:           "world",
		Short:         "Analyze and resynthesize speech with the WORLD vocoder",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.setup(cmd)
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			if a.logger != nil {
				_ = a.logger.Sync()
			}
		},
	}

	f := cmd.PersistentFlags()
	f.StringVarP(&a.flags.config, "config", "c", "world.yaml", "configuration file")
	f.StringVar(&a.flags.wasm, "wasm", "", "engine module (overrides engine.wasm)")
	f.BoolVar(&a.flags.background, "background", false, "run each operation as a dispatched task")
	f.StringVar(&a.flags.logLevel, "log-level", "", "log level (overrides log.level)")

	cmd.AddCommand(
		newInfoCmd(a),
		newAnalyzeCmd(a),
		newResynthCmd(a),
		newInteractiveCmd(a),
	)
	return cmd
}

func (a *app) setup(cmd *cobra.Command) error {
	cfg, err := config.Load(a.flags.config)
	if err != nil {
		return err
	}
	if a.flags.wasm != "" {
		cfg.Engine.Wasm = a.flags.wasm
	}
	if cmd.Flags().Changed("background") {
		cfg.Dispatch.Background = a.flags.background
	}
	if a.flags.logLevel != "" {
		cfg.Log.Level = a.flags.logLevel
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger, err := cfg.Logger()
	if err != nil {
		return err
	}
	engine.SetLogger(logger.Named("engine"))
	world.SetLogger(logger.Named("world"))
	dispatch.SetLogger(logger.Named("dispatch"))

	a.cfg = cfg
	a.logger = logger
	return nil
}
