package main

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/sawpanic/pairsarb/internal/artifacts"
	"github.com/sawpanic/pairsarb/internal/config"
	"github.com/sawpanic/pairsarb/internal/infrastructure/db"
	httpserver "github.com/sawpanic/pairsarb/internal/interfaces/http"
	"github.com/sawpanic/pairsarb/internal/metrics"
)

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the latest run over HTTP",
		Long:  "Starts a read-only HTTP server with /health, /metrics, /pairs/scored and /pairs/selected",
		RunE:  runServe,
	}
	cmd.Flags().String("addr", "", "Listen address (overrides http.addr)")
	return cmd
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if addr, _ := cmd.Flags().GetString("addr"); addr != "" {
		cfg.HTTP.Addr = addr
	}

	mgr, err := db.NewManager(cfg.Database)
	if err != nil {
		return fmt.Errorf("database: %w", err)
	}
	defer mgr.Close()

	return serve(cfg, metrics.New(), mgr)
}

// serve blocks until SIGINT/SIGTERM or a listener error
func serve(cfg config.Config, reg *metrics.Registry, mgr *db.Manager) error {
	server := httpserver.NewServer(httpserver.ServerConfig{
		Addr:         cfg.HTTP.Addr,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  60 * time.Second,
		RateLimit:    cfg.HTTP.RateLimit,
		Burst:        cfg.HTTP.Burst,
	}, httpserver.Deps{
		Artifacts: artifacts.NewReader(cfg.Output.Dir),
		DBHealth:  mgr.Health(),
		Metrics:   reg,
	})

	serverErr := make(chan error, 1)
	go func() {
		log.Info().
			Str("health", fmt.Sprintf("http://%s/health", cfg.HTTP.Addr)).
			Str("selected", fmt.Sprintf("http://%s/pairs/selected", cfg.HTTP.Addr)).
			Msg("Endpoints available")
		serverErr <- server.Start()
	}()

	ctx, stop := signalContext()
	defer stop()

	select {
	case <-ctx.Done():
		log.Info().Msg("Shutdown signal received")
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server shutdown error")
		return err
	}
	log.Info().Msg("Server shutdown complete")
	return nil
}
