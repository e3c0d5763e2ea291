package main

import (
	"fmt"
	"math"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/sawpanic/pairsarb/internal/artifacts"
	"github.com/sawpanic/pairsarb/internal/domain"
	"github.com/sawpanic/pairsarb/internal/pipeline"
	"github.com/sawpanic/pairsarb/internal/scoring"
)

func newBacktestCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "backtest",
		Short: "Backtest pairs",
		Long: `Backtests the given pairs, or the selection of the latest scoring run when
--pairs is not set. Pairs from the latest selection keep their half-life for the
z-score window; explicit pairs use lookbacks.zscore_days.`,
		RunE: runBacktest,
	}
	addRunFlags(cmd.Flags())
	cmd.Flags().StringSlice("pairs", nil, "Pairs to backtest as A/B (comma-separated)")
	return cmd
}

func runBacktest(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	explicit, _ := cmd.Flags().GetStringSlice("pairs")
	pairs, err := backtestPairs(a.cfg.Output.Dir, explicit)
	if err != nil {
		return err
	}
	if len(pairs) == 0 {
		log.Warn().Msg("No pairs to backtest")
		return nil
	}

	ctx, stop := signalContext()
	defer stop()

	res, err := a.pipeline.Execute(ctx, pipeline.Plan{Backtest: true, Pairs: pairs})
	if err != nil {
		return err
	}
	logResult(res)
	return a.serveIfRequested(cmd)
}

func backtestPairs(outputDir string, explicit []string) ([]scoring.PairScore, error) {
	if len(explicit) > 0 {
		out := make([]scoring.PairScore, 0, len(explicit))
		for _, s := range explicit {
			pair, err := domain.ParsePairID(s)
			if err != nil {
				return nil, err
			}
			out = append(out, scoring.PairScore{Pair: pair, HalfLife: math.Inf(1)})
		}
		return out, nil
	}

	latest, selected, err := artifacts.NewReader(outputDir).Selected()
	if err != nil {
		return nil, fmt.Errorf("no --pairs given and no latest selection under %s: %w", outputDir, err)
	}
	log.Info().Str("run_id", latest.RunID).Int("pairs", len(selected)).Msg("Backtesting latest selection")
	return selected, nil
}
