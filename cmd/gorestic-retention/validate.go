package main

import (
	"fmt"
	"os"

	"github.com/fgeck/gorestic-retention/internal/backend"
	"github.com/fgeck/gorestic-retention/internal/config"
	"github.com/fgeck/gorestic-retention/internal/models"
	"github.com/fgeck/gorestic-retention/internal/retention"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration file",
	Long: `Validate the configuration file and the retention policy files
without executing any backup operations.`,
	RunE: validateConfig,
}

func validateConfig(cmd *cobra.Command, args []string) error {
	if configFile == "" {
		log.Error().Msg("config file is required")
		return cmd.Help()
	}

	// Check if file exists
	if _, err := os.Stat(configFile); os.IsNotExist(err) {
		log.Error().Str("file", configFile).Msg("config file not found")
		return fmt.Errorf("config file not found: %s", configFile)
	}

	cfg, err := config.NewParser().LoadFile(configFile)
	if err != nil {
		log.Error().Err(err).Str("file", configFile).Msg("configuration validation failed")
		return err
	}

	reg, err := backend.Default().Select(cfg.Backend)
	if err != nil {
		return err
	}
	resticCfg, err := reg.Backend.ResticConfig(cfg.Backend, cfg.Backup.Host)
	if err != nil {
		return fmt.Errorf("backend %s: %w", reg.ShortName, err)
	}

	policy, err := describePolicy(cfg.Retention, reg)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, "Configuration is valid!")
	fmt.Fprintln(out)
	fmt.Fprintln(out, "Summary:")
	fmt.Fprintf(out, "  Backend: %s\n", reg.ShortName)
	fmt.Fprintf(out, "  Repository: %s\n", resticCfg.Repository)
	fmt.Fprintf(out, "  Host: %s\n", cfg.Backup.Host)
	fmt.Fprintf(out, "  Paths: %v\n", cfg.Backup.Paths)
	fmt.Fprintf(out, "  Tags: %v\n", cfg.Backup.Tags)
	fmt.Fprintln(out)
	fmt.Fprintln(out, "Retention:")
	fmt.Fprintf(out, "  Policy: %s\n", policy)
	fmt.Fprintf(out, "  Dry run: %v\n", cfg.Retention.DryRun)
	fmt.Fprintln(out)
	fmt.Fprintln(out, "Optional Features:")
	fmt.Fprintf(out, "  Preflight: %v\n", cfg.Preflight)
	fmt.Fprintf(out, "  Repository Check: %v\n", cfg.Check.Enabled)
	fmt.Fprintf(out, "  Metrics Textfile: %s\n", cfg.Metrics.Textfile)
	fmt.Fprintf(out, "  Schedule: %s\n", cfg.Schedule.Cron)

	return nil
}

// describePolicy reports the policy "run" would apply without writing the
// defaults into the active file.
func describePolicy(settings models.RetentionSettings, reg backend.Registration) (string, error) {
	if settings.Policy != "" {
		p, err := retention.ParseArgs(settings.Policy)
		if err != nil {
			return "", fmt.Errorf("retention.policy: %w", err)
		}
		return p.String() + " (override)", nil
	}

	store, err := retention.NewStore(settings.File, settings.DefaultFile, log.Logger)
	if err != nil {
		return "", err
	}
	res, err := store.Lookup(reg.ShortName, reg.Aliases...)
	if err != nil {
		return "", err
	}
	if res == nil {
		return "(none)", nil
	}

	switch res.Tier {
	case retention.TierActive:
		return fmt.Sprintf("%s (from [restic.forget.%s] in %s)", res.Policy, res.Subkey, store.Path), nil
	default:
		return fmt.Sprintf("%s (%s from %s, copied to [restic.forget.%s] on first run)",
			res.Policy, res.Tier, store.DefaultPath, res.Subkey), nil
	}
}
