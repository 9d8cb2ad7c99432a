package main

import (
	"errors"
	"fmt"
	"text/tabwriter"

	"github.com/google/uuid"
	"github.com/phrazzld/taskrelay/internal/platform/postgres"
	"github.com/spf13/cobra"
)

func newJournalCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "journal",
		Short: "Inspect and prune units waiting for redelivery",
	}
	cmd.AddCommand(newJournalListCmd(opts), newJournalDropCmd(opts))
	return cmd
}

func newJournalListCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List journalled units in submission order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := opts.load(cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			db, err := openDatabase(cmd.Context(), cfg.Database, logger)
			if err != nil {
				return err
			}
			defer func() { _ = db.Close() }()

			pending, err := postgres.NewPostgresJournal(db).Pending(cmd.Context())
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "WORK ID\tTASK TYPE\tGROUP\tARGS")
			for _, desc := range pending {
				fmt.Fprintf(w, "%s\t%s\t%d\t%d\n", desc.WorkID, desc.TaskType, desc.GroupID, len(desc.Args))
			}
			return w.Flush()
		},
	}
}

func newJournalDropCmd(opts *rootOptions) *cobra.Command {
	var all bool

	cmd := &cobra.Command{
		Use:   "drop [work-id...]",
		Short: "Remove units from the journal so they are not redelivered",
		RunE: func(cmd *cobra.Command, args []string) error {
			if all == (len(args) > 0) {
				return errors.New("pass either work ids or --all")
			}
			ids, err := parseWorkIDs(args)
			if err != nil {
				return err
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

			if all {
				pending, err := postgres.NewPostgresJournal(db).Pending(cmd.Context())
				if err != nil {
					return err
				}
				for _, desc := range pending {
					ids = append(ids, desc.WorkID)
				}
			}

			n, err := postgres.Drop(cmd.Context(), db, ids)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "dropped %d of %d journalled units\n", n, len(ids))
			return nil
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "drop every journalled unit")
	return cmd
}

func parseWorkIDs(args []string) ([]uuid.UUID, error) {
	ids := make([]uuid.UUID, 0, len(args))
	for _, arg := range args {
		id, err := uuid.Parse(arg)
		if err != nil {
			return nil, fmt.Errorf("invalid work id %q: %w", arg, err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}
