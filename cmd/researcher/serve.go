package main

import (
	"context"
	"time"

	"github.com/mohammad-safakhou/researcher/internal/server"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func serveCmd(cfgPath *string) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx, *cfgPath)
			if err != nil {
				return err
			}
			defer a.close()
			if addr == "" {
				addr = a.cfg.Server.Address
			}

			orch, err := a.orchestrator(orchestratorOptions{})
			if err != nil {
				return err
			}
			hub := server.NewHub(orch.Progress(), orch.Results(), a.cfg.Research.EventBuffer, a.logger)
			srv, err := server.New(orch, hub, server.Options{
				Server:  a.cfg.Server,
				Metrics: a.telemetry.MetricsHandler(),
			}, a.logger)
			if err != nil {
				_ = orch.Close()
				return err
			}

			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() error { return hub.Run(context.WithoutCancel(gctx)) })
			g.Go(func() error { return srv.Start(addr) })
			g.Go(func() error {
				<-gctx.Done()
				a.logger.Info("Shutting down.")
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				if err := srv.Shutdown(shutdownCtx); err != nil {
					a.logger.Warn("HTTP shutdown incomplete.", zap.Error(err))
				}
				// Closing the orchestrator closes its streams, which ends the hub.
				return orch.Close()
			})
			return g.Wait()
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default server.address)")
	return cmd
}
