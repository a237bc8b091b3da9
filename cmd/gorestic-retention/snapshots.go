package main

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/fgeck/gorestic-retention/internal/models"
	"github.com/fgeck/gorestic-retention/internal/services/runner"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var (
	snapshotsTags     []string
	snapshotsLatest   int
	snapshotsHost     string
	snapshotsAllHosts bool
	snapshotsBackend  string
)

var snapshotsCmd = &cobra.Command{
	Use:   "snapshots",
	Short: "List the latest snapshots of the selected backend",
	Long: `List snapshots of the selected backend's repository, newest last.
By default only snapshots of backup.host are shown, the latest one per path set.`,
	Example: `  gorestic-retention snapshots -c config.yaml
  gorestic-retention snapshots -c config.yaml --tag files --tag stream -n 5
  gorestic-retention snapshots -c config.yaml --all-hosts -n 0`,
	RunE: runSnapshots,
}

func init() {
	snapshotsCmd.Flags().StringSliceVar(&snapshotsTags, "tag", nil, "only snapshots with one of these tags")
	snapshotsCmd.Flags().IntVarP(&snapshotsLatest, "latest", "n", 1, "latest n snapshots per host and path set (0 for all)")
	snapshotsCmd.Flags().StringVar(&snapshotsHost, "host", "", "host to list instead of backup.host")
	snapshotsCmd.Flags().BoolVar(&snapshotsAllHosts, "all-hosts", false, "list snapshots of every host")
	snapshotsCmd.Flags().StringVar(&snapshotsBackend, "backend", "", "backend short name or alias overriding backend.name")
	snapshotsCmd.MarkFlagsMutuallyExclusive("host", "all-hosts")
}

func runSnapshots(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if snapshotsBackend != "" {
		cfg.Backend.Name = strings.ToLower(snapshotsBackend)
	}
	if snapshotsLatest < 0 {
		return fmt.Errorf("--latest must not be negative")
	}

	filter := models.SnapshotFilter{
		Host:   snapshotsHost,
		Tags:   snapshotsTags,
		Latest: snapshotsLatest,
	}
	if snapshotsAllHosts {
		cfg.Backup.Host = ""
	}

	ctx, cancel := signalContext()
	defer cancel()

	snapshots, err := runner.New(log.Logger).Snapshots(ctx, *cfg, filter)
	if err != nil {
		return err
	}
	return printSnapshots(cmd.OutOrStdout(), snapshots)
}

func printSnapshots(out io.Writer, snapshots []models.Snapshot) error {
	if len(snapshots) == 0 {
		fmt.Fprintln(out, "No snapshots found.")
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tTIME\tHOST\tTAGS\tPATHS")
	for _, snap := range snapshots {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			snap.ShortID,
			snap.Time.Local().Format("2006-01-02 15:04:05"),
			snap.Hostname,
			strings.Join(snap.Tags, ","),
			strings.Join(snap.Paths, ","),
		)
	}
	return w.Flush()
}
