package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v3"

	"github.com/desertthunder/vidx/internal/server"
)

// Serve keeps the realtime channel and reconciliation running and exposes their state on
// /healthz and /metrics until interrupted.
func (r *Runner) Serve(ctx context.Context, cmd *cli.Command) error {
	engine, err := r.Realtime(ctx)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	r.runEngine(ctx, engine)

	cfg := r.config.Server
	if cmd.IsSet("host") {
		cfg.Host = cmd.String("host")
	}
	if cmd.IsSet("port") {
		cfg.Port = cmd.Int("port")
	}

	// Updates are only reported through metrics here.
	go func() {
		for {
			select {
			case <-r.updates:
			case <-ctx.Done():
				return
			}
		}
	}()

	health := server.NewHealthHandler(r.store, r.channel, engine)
	srv := server.New(cfg, server.NewDiagnosticsRouter(health, r.logger), r.logger)
	return srv.ListenAndServe(ctx)
}
