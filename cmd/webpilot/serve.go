package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rahul/webpilot/internal/api"
	"github.com/rahul/webpilot/internal/engine"
	"github.com/rahul/webpilot/internal/gateway"
	"github.com/rahul/webpilot/internal/notify"
	"github.com/rahul/webpilot/internal/observability"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newServeCmd(a *app) *cobra.Command {
	var (
		addr      string
		dashboard bool
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API, the event stream and the chat gateways.",
		RunE: func(cmd *cobra.Command, args []string) error {
			if addr != "" {
				a.cfg.Server.Addr = addr
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return a.serve(ctx, dashboard)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides server.addr)")
	cmd.Flags().BoolVar(&dashboard, "dashboard", true, "draw the live status line when attached to a terminal")
	return cmd
}

func (a *app) serve(ctx context.Context, dashboard bool) error {
	if dashboard {
		observability.PrintBanner()
		observability.InitializeTerminal()
		defer observability.CleanupTerminal()
	}

	eng, err := a.engine(ctx)
	if err != nil {
		return err
	}
	gateways, sinks := a.gateways(eng)
	// Sinks close after the engine so the last events of running queries
	// still reach their chats.
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
		defer cancel()
		if err := eng.Close(closeCtx); err != nil {
			a.logger.Warn("engine did not close cleanly", zap.Error(err))
		}
		for _, sink := range sinks {
			if err := sink.Close(closeCtx); err != nil {
				a.logger.Warn("chat messages left unsent", zap.Error(err))
			}
		}
	}()
	for _, gw := range gateways {
		defer gw.Stop()
		go func(gw gateway.Messenger) {
			if err := gw.Start(); err != nil {
				a.logger.Error("gateway stopped", zap.Error(err))
			}
		}(gw)
	}

	go eng.Sweeper.Start(ctx)
	go a.heartbeat(ctx, eng.Status(), dashboard)

	return api.NewServer(eng, a.logger).ListenAndServe(ctx, a.cfg.Server.Addr)
}

// gateways builds the enabled chat gateways and attaches their sinks to
// the engine. A gateway that fails to start is logged and skipped.
func (a *app) gateways(eng *engine.Engine) ([]gateway.Messenger, []*notify.MessengerSink) {
	var (
		out   []gateway.Messenger
		sinks []*notify.MessengerSink
	)
	routes := notify.NewRoutes()
	if tg, ok := a.cfg.GetTelegramConfig(); ok {
		gw, err := gateway.NewTelegramGateway(tg.Token, eng, nil, a.logger)
		if err != nil {
			a.logger.Error("telegram gateway unavailable", zap.Error(err))
		} else {
			sink := notify.NewMessengerSink(gw, tg.ChatID, tg.Verbose, routes, a.logger)
			gw.Routes = sink
			eng.AddPublisher(sink)
			out = append(out, gw)
			sinks = append(sinks, sink)
		}
	}
	if dc, ok := a.cfg.GetDiscordConfig(); ok {
		gw, err := gateway.NewDiscordGateway(dc.Token, eng, nil, a.logger)
		if err != nil {
			a.logger.Error("discord gateway unavailable", zap.Error(err))
		} else {
			sink := notify.NewMessengerSink(gw, dc.ChatID, dc.Verbose, routes, a.logger)
			gw.Routes = sink
			eng.AddPublisher(sink)
			out = append(out, gw)
			sinks = append(sinks, sink)
		}
	}
	return out, sinks
}

func (a *app) heartbeat(ctx context.Context, status *observability.Status, dashboard bool) {
	status.Heartbeat()
	redraw := time.NewTicker(time.Second)
	defer redraw.Stop()
	beat := time.NewTicker(30 * time.Second)
	defer beat.Stop()

	frame := 0
	for {
		select {
		case <-ctx.Done():
			return
		case <-beat.C:
			status.Heartbeat()
		case <-redraw.C:
			if dashboard {
				frame++
				observability.PrintLiveStatus(status, frame)
			}
		}
	}
}
