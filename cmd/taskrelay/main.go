// Package main is the taskrelay command. It serves the dispatch API and
// carries the operator commands around it: schema migrations, journal
// inspection, token issuance and task type listing.
package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/phrazzld/taskrelay/internal/config"
	"github.com/phrazzld/taskrelay/internal/platform/logger"
	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

// rootOptions holds the persistent flags shared by every subcommand.
type rootOptions struct {
	configPath string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:           "taskrelay",
		Short:         "taskrelay dispatches background work and relays its callbacks",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	cmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "",
		"config file (defaults to ./config.yaml when present)")

	cmd.AddCommand(
		newServeCmd(opts),
		newMigrateCmd(opts),
		newJournalCmd(opts),
		newTokenCmd(opts),
		newTypesCmd(),
	)
	return cmd
}

// load reads the configuration and installs the process logger writing to
// logs.
func (o *rootOptions) load(logs io.Writer) (*config.Config, *slog.Logger, error) {
	cfg, err := config.LoadFile(o.configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	log, err := logger.SetupWithWriter(cfg.Server, logs)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to set up logger: %w", err)
	}
	return cfg, log, nil
}
