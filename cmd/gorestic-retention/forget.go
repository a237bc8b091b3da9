package main

import (
	"fmt"
	"strings"

	"github.com/fgeck/gorestic-retention/internal/services/runner"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var (
	forgetDryRun  bool
	forgetPolicy  string
	forgetBackend string
)

var forgetCmd = &cobra.Command{
	Use:   "forget",
	Short: "Apply the retention policy without backing up",
	Long: `Resolve the retention policy for the selected backend and run restic forget.
With --dry-run restic only reports which snapshots would be removed.`,
	RunE: runForget,
}

func init() {
	forgetCmd.Flags().BoolVar(&forgetDryRun, "dry-run", false, "only show what would be removed")
	forgetCmd.Flags().StringVar(&forgetPolicy, "policy", "", "policy arguments overriding the policy files")
	forgetCmd.Flags().StringVar(&forgetBackend, "backend", "", "backend short name or alias overriding backend.name")
}

func runForget(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if forgetPolicy != "" {
		cfg.Retention.Policy = forgetPolicy
	}
	if forgetBackend != "" {
		cfg.Backend.Name = strings.ToLower(forgetBackend)
	}

	ctx, cancel := signalContext()
	defer cancel()

	result, err := runner.New(log.Logger).Forget(ctx, *cfg, forgetDryRun)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if result == nil {
		fmt.Fprintln(out, "No retention policy configured.")
		return nil
	}

	fmt.Fprintf(out, "Policy: %s\n", strings.Join(result.Args, " "))
	if result.DryRun {
		fmt.Fprintln(out, "Dry run, nothing was removed.")
	}
	fmt.Fprintf(out, "Kept: %d\n", result.SnapshotsKept)
	fmt.Fprintf(out, "Removed: %d\n", result.SnapshotsRemoved)
	for _, id := range result.RemovedIDs {
		fmt.Fprintf(out, "  %s\n", id)
	}
	return nil
}
