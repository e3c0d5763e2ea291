package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/sawpanic/pairsarb/internal/pipeline"
)

func newScoreCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "score",
		Short: "Score and select pairs",
		Long:  "Scores every pair of the universe, writes pairs_scored.json and pairs_selected.json and marks the run as latest",
		RunE: func(cmd *cobra.Command, args []string) error {
			return execute(cmd, pipeline.Plan{Score: true})
		},
	}
	addRunFlags(cmd.Flags())
	return cmd
}

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Score, select and backtest",
		Long:  "Runs the full pipeline: scoring, selection and a backtest of every selected pair",
		RunE: func(cmd *cobra.Command, args []string) error {
			return execute(cmd, pipeline.Plan{Score: true, Backtest: true})
		},
	}
	addRunFlags(cmd.Flags())
	return cmd
}

func execute(cmd *cobra.Command, plan pipeline.Plan) error {
	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, stop := signalContext()
	defer stop()

	res, err := a.pipeline.Execute(ctx, plan)
	if err != nil {
		return err
	}
	logResult(res)
	return a.serveIfRequested(cmd)
}

// signalContext cancels on SIGINT/SIGTERM; scoring stops between pairs
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}
