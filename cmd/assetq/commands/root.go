// Package commands defines all Cobra CLI commands for the assetq binary.
package commands

import (
	"github.com/spf13/cobra"

	"github.com/prodkit/assetq-go/internal/audit"
	"github.com/prodkit/assetq-go/internal/config"
	"github.com/prodkit/assetq-go/internal/logging"
)

// configPath holds the --config flag value for YAML config file override.
var configPath string

// loadedConfigPath stores the resolved config file path for audit logging.
var loadedConfigPath string

// NewRootCmd constructs the root Cobra command that all subcommands attach to.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "assetq",
		Short: "assetq — natural language search over the CG asset database",
		Long: `assetq is an agentic chat interface to the studio's production asset
database. It turns natural language questions into SQL, runs them read-only
against Postgres, and judges whether the results answer the question —
retrying with feedback when they do not.

Similarity search uses pgvector embeddings: text queries go through the
metadata embedding space, and image uploads through the CLIP visual space.

Model provider is selected via the MODEL_PROVIDER environment variable
or a YAML config file (~/.assetq/config.yaml).
See 'assetq --help' for available commands.`,
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

	root.PersistentFlags().StringVar(&configPath, "config", "", "Path to YAML config file (default: ~/.assetq/config.yaml)")

	root.AddCommand(
		NewAskCmd(),
		NewServeCmd(),
		NewWarmCmd(),
		NewVersionCmd(),
	)

	return root
}
