// Package commands defines all Cobra CLI commands for the adab binary.
package commands

import (
	"github.com/spf13/cobra"

	"github.com/adab-ai/adab-go/internal/audit"
	"github.com/adab-ai/adab-go/internal/config"
	"github.com/adab-ai/adab-go/internal/logging"
)

// configPath holds the --config flag value for YAML config file override.
var configPath string

// loadedConfigPath stores the resolved config file path for audit logging.
var loadedConfigPath string

// NewRootCmd constructs the root Cobra command that all subcommands attach to.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "adab",
		Short: "Adab — a culturally-aware AI parenting coach service",
		Long: `Adab is a retrieval-backed AI parenting coach.

It serves persona-driven coaching conversations over HTTP, grounding every
reply in curated guidelines, parenting book excerpts scoped to the user's
cultural background, and per-persona examples of responses to avoid.

Model provider is selected via the MODEL_PROVIDER environment variable
or a YAML config file (~/.adab/config.yaml).
See 'adab --help' for available commands.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			log := logging.New()

			// Load YAML config (env vars always override YAML values).
			path, err := config.Load(configPath, log)
			if err != nil {
				return err
			}
			loadedConfigPath = path

			// Emit structured audit log for every command invocation.
			audit.LogCommandStart(log, cmd.Name(), loadedConfigPath)

			return nil
		},
	}

	root.PersistentFlags().StringVar(&configPath, "config", "", "Path to YAML config file (default: ~/.adab/config.yaml)")

	root.AddCommand(
		NewServeCmd(),
		NewIngestCmd(),
		NewKeysCmd(),
		NewPersonaCmd(),
		NewVersionCmd(),
	)

	return root
}
