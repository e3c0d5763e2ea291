package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/sawpanic/pairsarb/internal/config"
)

const (
	appName = "pairsarb"
	version = "v0.4.0"
)

func main() {
	zerolog.TimeFieldFormat = time.RFC3339
	if term.IsTerminal(int(os.Stderr.Fd())) {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
	}

	rootCmd := &cobra.Command{
		Use:     appName,
		Short:   "Statistical-arbitrage pair discovery and backtesting for ETF universes",
		Version: version,
		Long: `pairsarb scores every pair of a configured universe for co-movement and
mean reversion, selects the tradable ones and backtests a z-score strategy on them.

Artifacts are written under output.dir/<date>/<run_id>/.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			level, _ := cmd.Flags().GetString("log-level")
			return setLogLevel(level)
		},
	}

	rootCmd.PersistentFlags().String("config", config.DefaultPath, "Path to the YAML configuration")
	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug|info|warn|error)")

	rootCmd.AddCommand(newScoreCmd(), newBacktestCmd(), newRunCmd(), newValidateCmd(), newServeCmd())

	if err := rootCmd.Execute(); err != nil {
		log.Error().Err(err).Msg("Command failed")
		os.Exit(1)
	}
}

func setLogLevel(level string) error {
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil || lvl == zerolog.NoLevel {
		return fmt.Errorf("invalid --log-level %q", level)
	}
	zerolog.SetGlobalLevel(lvl)
	return nil
}
