// Package dcld runs the simulation HTTP service.
package dcld

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"dclbond/api"
	"dclbond/config"
	"dclbond/internal/logger"
	"dclbond/internal/metrics"
	"dclbond/store"
)

// Command returns the serve subcommand.
func Command() *cobra.Command {
	var (
		configPath string
		noStore    bool
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve simulations over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			if noStore {
				cfg.Database.DSN = ""
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return Serve(ctx, cfg)
		},
	}
	cmd.Flags().StringVar(&configPath, "service-config", "", "service configuration file (default ./dcl.yaml)")
	cmd.Flags().BoolVar(&noStore, "no-store", false, "disable run persistence")
	return cmd
}

// Serve blocks until ctx is cancelled, then shuts the server down within
// the configured timeout.
func Serve(ctx context.Context, cfg *config.Config) error {
	logger.Init(cfg.Logging.Env, cfg.Logging.Level)
	log := logger.Get()
	defer logger.Sync()

	var runs api.RunStore
	if cfg.Database.DSN != "" {
		st, err := store.Open(cfg.Database.Driver, cfg.Database.DSN)
		if err != nil {
			return fmt.Errorf("open store: %w", err)
		}
		defer st.Close()
		runs = st
		log.Infow("run store ready", "driver", cfg.Database.Driver)
	} else {
		log.Info("run persistence disabled")
	}

	m := metrics.NewRegistry()
	h := api.NewHandler(runs, m, api.Options{
		SweepConcurrency: cfg.Sweep.Concurrency,
		MaxSweepRuns:     cfg.Sweep.MaxRuns,
	})
	server := api.NewServer(cfg.Server, h, m)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(server.Start)
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down")
		sctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		return server.Shutdown(sctx)
	})

	if err := g.Wait(); err != nil {
		return err
	}
	log.Info("server stopped")
	return nil
}
