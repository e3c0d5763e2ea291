package main

import (
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/sawpanic/pairsarb/internal/cache"
	"github.com/sawpanic/pairsarb/internal/config"
	"github.com/sawpanic/pairsarb/internal/data"
	"github.com/sawpanic/pairsarb/internal/export"
	"github.com/sawpanic/pairsarb/internal/infrastructure/db"
	"github.com/sawpanic/pairsarb/internal/metrics"
	"github.com/sawpanic/pairsarb/internal/pipeline"
)

// app holds the collaborators shared by the run commands
type app struct {
	cfg      config.Config
	metrics  *metrics.Registry
	db       *db.Manager
	pipeline *pipeline.Pipeline
}

func loadConfig(cmd *cobra.Command) (config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return cfg, err
	}
	if cmd.Flags().Lookup("workers") != nil && cmd.Flags().Changed("workers") {
		cfg.Scoring.Workers, _ = cmd.Flags().GetInt("workers")
	}
	if cmd.Flags().Lookup("output") != nil && cmd.Flags().Changed("output") {
		cfg.Output.Dir, _ = cmd.Flags().GetString("output")
	}
	return cfg, nil
}

func newApp(cmd *cobra.Command) (*app, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}

	a := &app{cfg: cfg, metrics: metrics.New()}
	opts := pipeline.Options{Metrics: a.metrics}

	if c := cache.NewAuto(cache.Options{
		Enabled:   cfg.Cache.Enabled,
		RedisAddr: cfg.Cache.RedisAddr,
		RedisDB:   cfg.Cache.RedisDB,
	}); c != nil {
		opts.Cache = cache.NewScores(c, cfg.Cache.TTL)
		log.Info().Str("redis", cfg.Cache.RedisAddr).Msg("Score cache enabled")
	}

	mgr, err := db.NewManager(cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("database: %w", err)
	}
	a.db = mgr
	if mgr.IsEnabled() {
		opts.Exporter = export.New(*mgr.Repository(), nil)
		log.Info().Msg("Database export enabled")
	}

	a.pipeline = pipeline.New(cfg, data.NewLoader(cfg.Data.Dir), opts)
	return a, nil
}

func (a *app) Close() {
	if err := a.db.Close(); err != nil {
		log.Warn().Err(err).Msg("Failed to close database")
	}
}

func addRunFlags(fs *pflag.FlagSet) {
	fs.Int("workers", 0, "Scoring workers (overrides scoring.workers; 0 = one per CPU)")
	fs.String("output", "", "Artifact root (overrides output.dir)")
	fs.Bool("serve", false, "Keep serving the HTTP surface with this run's metrics after it completes")
}

func logResult(res pipeline.Result) {
	log.Info().
		Str("run_id", res.RunID).
		Str("dir", res.Dir).
		Int("pairs", len(res.Report.Scored)).
		Int("selected", len(res.Report.Selected)).
		Int("backtests", len(res.Backtests)).
		Int("trades", res.Portfolio.Trades).
		Float64("net_pnl", res.Portfolio.NetPnL).
		Msg("Artifacts written")
	if res.ExportErr != nil {
		log.Warn().Err(res.ExportErr).Msg("Run was not exported; artifacts are complete")
	}
}

func (a *app) serveIfRequested(cmd *cobra.Command) error {
	if ok, _ := cmd.Flags().GetBool("serve"); !ok {
		return nil
	}
	return serve(a.cfg, a.metrics, a.db)
}
