// Package commands defines all Cobra CLI commands for the studyai binary.
package commands

import (
	"github.com/spf13/cobra"

	"github.com/54b3r/studyai-go/internal/audit"
	"github.com/54b3r/studyai-go/internal/config"
	"github.com/54b3r/studyai-go/internal/logging"
)

// configPath holds the --config flag value for YAML config file override.
var configPath string

// envFile holds the --env-file flag value.
var envFile string

// loadedConfigPath stores the resolved config file path for audit logging.
var loadedConfigPath string

// NewRootCmd constructs the root Cobra command that all subcommands attach to.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "studyai",
		Short: "studyai — a study assistant that explains your course PDFs",
		Long: `studyai ingests a session folder of course PDFs (text, tables and
images) into a vector store, then answers student questions in simple
language using only that material.

Settings come from a .env file, a YAML config file (~/.studyai/config.yaml)
and environment variables, in increasing order of precedence.
See 'studyai --help' for available commands.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			log := logging.New()

			// .env never overrides variables already set in the environment.
			if _, err := config.LoadDotEnv(envFile, log); err != nil {
				return err
			}

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

	root.PersistentFlags().StringVar(&configPath, "config", "", "Path to YAML config file (default: ~/.studyai/config.yaml)")
	root.PersistentFlags().StringVar(&envFile, "env-file", ".env", "Path to a dotenv file; missing files are ignored")

	root.AddCommand(
		NewIngestCmd(),
		NewAskCmd(),
		NewStatusCmd(),
		NewServeCmd(),
		NewVersionCmd(),
	)

	return root
}
