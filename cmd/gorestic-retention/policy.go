package main

import (
	"fmt"

	"github.com/fgeck/gorestic-retention/internal/backend"
	"github.com/fgeck/gorestic-retention/internal/config"
	"github.com/fgeck/gorestic-retention/internal/retention"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var (
	policyFile     string
	policyDefaults string
)

var policyCmd = &cobra.Command{
	Use:   "policy",
	Short: "Inspect and edit retention policy files",
	Long: `Inspect and edit the TOML files holding retention policies.
Without --file the active file is .toml in the working directory (or
retention.file from --config), and the defaults file is default.toml next to it.`,
}

var policyShowCmd = &cobra.Command{
	Use:   "show [subkey]",
	Short: "Print policies from the active file",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runPolicyShow,
}

var policySetCmd = &cobra.Command{
	Use:   "set <subkey> -- <restic forget flags>",
	Short: "Write a policy into the active file",
	Example: `  gorestic-retention policy set b2 -- --keep-daily 7 --keep-weekly 4
  gorestic-retention policy set default -- --keep-within 30d --keep-tag "don't delete"`,
	Args: cobra.MinimumNArgs(1),
	RunE: runPolicySet,
}

var policyResolveCmd = &cobra.Command{
	Use:   "resolve <backend> [alias...]",
	Short: "Resolve a policy with defaults fallback, copying it into the active file",
	Long: `Resolve the policy for a backend the way "run" does. Registered backend names
pick up their aliases automatically. A policy found in the defaults file is
copied into the active file.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runPolicyResolve,
}

func init() {
	policyCmd.PersistentFlags().StringVar(&policyFile, "file", "", "active policy file")
	policyCmd.PersistentFlags().StringVar(&policyDefaults, "defaults", "", "defaults policy file")

	policyCmd.AddCommand(policyShowCmd)
	policyCmd.AddCommand(policySetCmd)
	policyCmd.AddCommand(policyResolveCmd)
}

func policyStore() (*retention.Store, error) {
	file, defaults := policyFile, policyDefaults
	if configFile != "" {
		cfg, err := config.NewParser().LoadFile(configFile)
		if err != nil {
			return nil, err
		}
		if file == "" {
			file = cfg.Retention.File
		}
		if defaults == "" {
			defaults = cfg.Retention.DefaultFile
		}
	}
	return retention.NewStore(file, defaults, log.Logger)
}

func runPolicyShow(cmd *cobra.Command, args []string) error {
	store, err := policyStore()
	if err != nil {
		return err
	}

	doc, err := retention.LoadDocument(store.Path)
	if err != nil {
		return err
	}

	subkeys := doc.Subkeys()
	if len(args) == 1 {
		subkeys = args
	}

	out := cmd.OutOrStdout()
	for _, subkey := range subkeys {
		p, err := doc.Policy(subkey)
		if err != nil {
			return err
		}
		if p == nil {
			if len(args) == 1 {
				return fmt.Errorf("no policy %q in %s", subkey, store.Path)
			}
			continue
		}
		fmt.Fprintf(out, "%s: %s\n", subkey, p)
	}
	return nil
}

func runPolicySet(cmd *cobra.Command, args []string) error {
	store, err := policyStore()
	if err != nil {
		return err
	}

	p, err := retention.ParseArgs(args[1:]...)
	if err != nil {
		return err
	}
	if err := store.Set(args[0], p); err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", args[0], p)
	return nil
}

func runPolicyResolve(cmd *cobra.Command, args []string) error {
	store, err := policyStore()
	if err != nil {
		return err
	}

	name, aliases := args[0], args[1:]
	if reg, ok := backend.Default().Get(name); ok && len(aliases) == 0 {
		name, aliases = reg.ShortName, reg.Aliases
	}

	res, err := store.Resolve(name, aliases...)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if res == nil {
		fmt.Fprintf(out, "No policy found for %s.\n", name)
		return nil
	}
	fmt.Fprintf(out, "%s (%s): %s\n", res.Subkey, res.Tier, res.Policy)
	return nil
}
