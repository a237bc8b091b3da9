package main

import (
	"context"
	"fmt"

	"github.com/fgeck/gorestic-retention/internal/scheduler"
	"github.com/fgeck/gorestic-retention/internal/services/runner"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var scheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "Run the backup workflow on schedule.cron until interrupted",
	RunE:  runSchedule,
}

func runSchedule(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if cfg.Schedule.Cron == "" {
		return fmt.Errorf("schedule.cron is not set in %s", configFile)
	}

	ctx, cancel := signalContext()
	defer cancel()

	runnerSvc := runner.New(log.Logger)
	sched := scheduler.New(log.Logger)
	if err := sched.Add(ctx, cfg.Schedule.Cron, func(ctx context.Context) error {
		return runnerSvc.Run(ctx, *cfg)
	}); err != nil {
		return err
	}

	sched.Run(ctx)
	return nil
}
