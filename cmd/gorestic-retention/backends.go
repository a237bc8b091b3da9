package main

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/fgeck/gorestic-retention/internal/backend"
	"github.com/fgeck/gorestic-retention/internal/config"
	"github.com/fgeck/gorestic-retention/internal/models"
	"github.com/spf13/cobra"
)

var backendsCmd = &cobra.Command{
	Use:   "backends",
	Short: "List supported backends in selection order",
	RunE:  listBackends,
}

func listBackends(cmd *cobra.Command, args []string) error {
	var settings *models.BackendSettings
	if configFile != "" {
		cfg, err := config.NewParser().LoadFile(configFile)
		if err != nil {
			return err
		}
		settings = &cfg.Backend
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tALIASES\tPRIORITY\tCONFIGURED")
	for _, reg := range backend.Default().All() {
		priority := "-"
		if reg.Priority > 0 {
			priority = fmt.Sprint(reg.Priority)
		}
		configured := "-"
		if settings != nil {
			configured = fmt.Sprint(reg.Backend.Configured(*settings))
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", reg.ShortName, strings.Join(reg.Aliases, ","), priority, configured)
	}
	return w.Flush()
}
