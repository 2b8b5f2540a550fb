package main

import (
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/robfig/cron/v3"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var schedulerCmd = &cobra.Command{
	Use:   "scheduler",
	Short: "Run the guardrail scheduler",
	Long:  "Times out overdue runs and promotes queued runs into free worker slots.",
}

var schedulerCycleCmd = &cobra.Command{
	Use:   "cycle",
	Short: "Run one scheduler pass and exit",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		env, err := initPipeline(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		launcher, local := initLauncher(ctx, env)
		sched := initScheduler(env.Store, launcher)

		result, err := sched.Cycle(ctx)
		if err != nil {
			return eris.Wrap(err, "scheduler cycle")
		}
		if local != nil {
			if err := local.Wait(); err != nil {
				return eris.Wrap(err, "scheduler cycle")
			}
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	},
}

var schedulerWatchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Run scheduler passes on an interval until interrupted",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initPipeline(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		launcher, local := initLauncher(ctx, env)
		sched := initScheduler(env.Store, launcher)

		every := cfg.Worker.WatchEverySecs
		if v, _ := cmd.Flags().GetInt("every"); v > 0 {
			every = v
		}

		c := cron.New()
		_, err = c.AddFunc(fmt.Sprintf("@every %ds", every), func() {
			result, err := sched.Cycle(ctx)
			if err != nil {
				zap.L().Error("scheduler cycle failed", zap.Error(err))
				return
			}
			if len(result.TimedOut) > 0 || len(result.Triggered) > 0 {
				zap.L().Info("scheduler cycle",
					zap.Strings("timed_out", result.TimedOut),
					zap.Strings("triggered", result.Triggered),
					zap.Int("running", result.Running))
			}
		})
		if err != nil {
			return eris.Wrap(err, "scheduler watch")
		}

		zap.L().Info("scheduler watching", zap.Int("every_secs", every))
		c.Start()
		<-ctx.Done()
		<-c.Stop().Done()

		if local != nil {
			if err := local.Wait(); err != nil {
				return eris.Wrap(err, "scheduler watch")
			}
		}
		return nil
	},
}

func init() {
	schedulerWatchCmd.Flags().Int("every", 0, "seconds between passes (overrides config)")

	schedulerCmd.AddCommand(schedulerCycleCmd)
	schedulerCmd.AddCommand(schedulerWatchCmd)
	rootCmd.AddCommand(schedulerCmd)
}
