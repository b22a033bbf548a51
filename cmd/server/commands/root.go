package commands

import (
	"os"

	"github.com/spf13/cobra"

	"leaveflow/internal/platform/config"
	"leaveflow/internal/platform/logging"
)

type rootOptions struct {
	logLevel   string
	configPath string
	cfg        config.Config
}

// NewRootCmd creates the leaveflow command tree. Running it without a
// subcommand serves HTTP.
func NewRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:          "leaveflow",
		Short:        "Leaveflow - leave request approval service",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return opts.load()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), opts.cfg)
		},
	}

	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "Override log level (debug|info|warn|error)")
	cmd.PersistentFlags().StringVar(&opts.configPath, "config", "", "Config file (yaml, json or toml); defaults to $LEAVEFLOW_CONFIG")

	cmd.AddCommand(
		newServeCmd(opts),
		newMigrateCmd(opts),
		newSeedCmd(opts),
		newCleanupTokensCmd(opts),
	)
	return cmd
}

func (o *rootOptions) load() error {
	path := o.configPath
	if path == "" {
		path = os.Getenv("LEAVEFLOW_CONFIG")
	}
	cfg, err := config.LoadFile(path)
	if err != nil {
		return err
	}
	if _, err := logging.Configure(os.Stderr, cfg.LogLevel, o.logLevel, cfg.LogFormat); err != nil {
		return err
	}
	o.cfg = cfg
	return nil
}
