package main

import (
	"github.com/fgeck/gorestic-retention/internal/services/runner"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var preflightCmd = &cobra.Command{
	Use:   "preflight",
	Short: "Check that the repository host is reachable",
	Long: `Probe the selected backend without touching the repository:
SFTP backends open an SSH session, S3-compatible backends check the bucket.`,
	RunE: runPreflight,
}

func runPreflight(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	if err := runner.New(log.Logger).Preflight(ctx, *cfg); err != nil {
		return err
	}

	log.Info().Msg("preflight passed")
	return nil
}
