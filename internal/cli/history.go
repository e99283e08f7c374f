package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/brandon/outlook-email/internal/journal"
	"github.com/brandon/outlook-email/internal/reconcile"
)

func newHistoryCmd(flags *rootFlags) *cobra.Command {
	var (
		limit  int
		id     string
		failed bool
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show what previous apply runs sent",
		Args:  cobra.NoArgs,
		RunE: flags.run(func(cmd *cobra.Command, args []string, a *app) error {
			if err := a.openJournal(); err != nil {
				return err
			}

			opts := journal.HistoryOptions{StoredID: id, Limit: limit}
			if failed {
				opts.Status = reconcile.StateFailed.String()
			}
			entries, err := a.manager.History(opts)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if len(entries) == 0 {
				fmt.Fprintln(out, "No apply history.")
				return nil
			}

			table := newTable(out, "WHEN", "RUN", "ID", "OPERATION", "STATUS", "SUBJECT")
			for _, e := range entries {
				status := okStyle.Render(e.Status)
				if e.Status == reconcile.StateFailed.String() {
					status = alertStyle.Render(e.Status) + " " + mutedStyle.Render(truncate(e.Error, 40))
				}
				table.Append([]string{
					relativeTime(e.CreatedAt),
					shortRun(e.RunID),
					shortIDs([]string{e.StoredID})[0],
					e.Operation,
					status,
					truncate(e.Subject, 40),
				})
			}
			table.Render()
			return nil
		}),
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum number of entries")
	cmd.Flags().StringVar(&id, "id", "", "Only entries for this email id or prefix")
	cmd.Flags().BoolVar(&failed, "failed", false, "Only failed operations")
	return cmd
}

func shortRun(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
