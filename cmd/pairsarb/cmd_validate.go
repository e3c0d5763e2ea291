package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate the configuration file",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			path, _ := cmd.Flags().GetString("config")
			fmt.Fprintf(cmd.OutOrStdout(), "%s: ok (%d tickers, %d pairs, exit_mode=%s, stationarity=%s)\n",
				path, len(cfg.Universe.Tickers), pairCount(len(cfg.Universe.Tickers)),
				cfg.Thresholds.ExitMode, cfg.Stationarity.Method)
			return nil
		},
	}
}

func pairCount(n int) int { return n * (n - 1) / 2 }
