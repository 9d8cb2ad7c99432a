package main

import (
	"fmt"
	"strings"

	"github.com/phrazzld/taskrelay/internal/platform/postgres"
	"github.com/spf13/cobra"
)

func newMigrateCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:       "migrate [" + strings.Join(postgres.MigrationCommands, "|") + "]",
		Short:     "Manage the journal database schema",
		Long:      "Runs goose against the embedded journal migrations. The command defaults to up.",
		Args:      cobra.MatchAll(cobra.MaximumNArgs(1), cobra.OnlyValidArgs),
		ValidArgs: postgres.MigrationCommands,
		RunE: func(cmd *cobra.Command, args []string) error {
			command := "up"
			if len(args) == 1 {
				command = args[0]
			}

			cfg, logger, err := opts.load(cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			db, err := openDatabase(cmd.Context(), cfg.Database, logger)
			if err != nil {
				return err
			}
			defer func() { _ = db.Close() }()

			if err := postgres.Migrate(cmd.Context(), db, command, logger); err != nil {
				return fmt.Errorf("migrate %s: %w", command, err)
			}
			return nil
		},
	}
}
