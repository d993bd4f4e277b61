package main

import (
	"context"
	"fmt"

	"github.com/rahul/webpilot/internal/engine"
	"github.com/rahul/webpilot/internal/observability"
	"github.com/rahul/webpilot/pkg/config"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Version is set at build time with -ldflags "-X main.Version=...".
var Version = "0.1.0"

// app carries what PersistentPreRunE prepared for the subcommands.
type app struct {
	cfgFile string
	cfg     *config.Config
	logger  *zap.Logger
	// engineOpts is extended by tests.
	engineOpts []engine.Option
}

func newRootCmd() *cobra.Command {
	return newRootCmdWith(&app{})
}

func newRootCmdWith(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:           "webpilot",
		Short:         "Natural language browser automation.",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig(a.cfgFile)
			if err != nil {
				observability.InitializeLogger(config.LoggerConfig{Level: "info", Format: "console", ServiceName: "webpilot"})
				return err
			}
			observability.Initialize(cfg.Logger, zapcore.AddSync(observability.NewTermWriter()))
			a.cfg = cfg
			a.logger = observability.GetLogger()
			a.logger.Debug("configuration loaded", zap.String("version", Version), zap.String("memory", cfg.Memory.Type))
			return nil
		},
	}
	root.PersistentFlags().StringVarP(&a.cfgFile, "config", "c", "", "config file (default is ./config.yaml or ~/.webpilot/config.yaml)")
	root.SetVersionTemplate("{{printf \"%s\\n\" .Version}}")

	root.AddCommand(
		newServeCmd(a),
		newRunCmd(a),
		newExecCmd(a),
		newCacheCmd(a),
	)
	return root
}

func (a *app) engine(ctx context.Context, opts ...engine.Option) (*engine.Engine, error) {
	e, err := engine.New(ctx, a.cfg, a.logger, append(a.engineOpts, opts...)...)
	if err != nil {
		return nil, fmt.Errorf("failed to start engine: %w", err)
	}
	return e, nil
}
