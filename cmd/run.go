package main

import (
	"fmt"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/vendmatch/leadgen-cli/internal/model"
)

var runCmd = &cobra.Command{
	Use:   "run <run-id>",
	Short: "Process one queued run to completion",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initPipeline(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		runID := args[0]
		if err := env.Orch.ProcessRun(ctx, runID); err != nil {
			return eris.Wrap(err, "run")
		}

		run, err := env.Store.GetRun(ctx, runID)
		if err != nil {
			return eris.Wrap(err, "run")
		}

		fmt.Fprintf(os.Stdout, "%s: %s (%d leads)\n", run.ID, run.Status, run.Progress.Total)
		if run.Status == model.RunStatusFailed {
			fmt.Fprintln(os.Stderr, run.Progress.Message)
			os.Exit(1)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(runCmd)
}
