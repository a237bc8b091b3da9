package main

import (
	"errors"

	"github.com/fgeck/gorestic-retention/internal/services/runner"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var errConfigRequired = errors.New("config file is required")

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Execute the backup workflow",
	Long: `Execute the complete backup workflow:
1. Select the backend (backend.name or first configured by priority)
2. Probe the repository host (if preflight is enabled)
3. Initialize restic repository (if needed)
4. Backup to restic repository
5. Apply the retention policy resolved for the backend
6. Repository check (if enabled)
7. Write metrics textfile (if configured)`,
	RunE: runBackup,
}

func runBackup(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	runnerSvc := runner.New(log.Logger)
	if err := runnerSvc.Run(ctx, *cfg); err != nil {
		return err
	}

	log.Info().Msg("backup completed successfully")
	return nil
}
