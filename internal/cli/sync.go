package cli

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/brandon/outlook-email/internal/email"
	"github.com/brandon/outlook-email/internal/folders"
	"github.com/brandon/outlook-email/internal/reconcile"
	"github.com/brandon/outlook-email/pkg/types"
)

func newPullCmd(flags *rootFlags) *cobra.Command {
	var (
		since     string
		limit     int
		noArchive bool
	)

	cmd := &cobra.Command{
		Use:   "pull",
		Short: "Cache unread emails and archive them in the mailbox",
		Args:  cobra.NoArgs,
		RunE: flags.run(func(cmd *cobra.Command, args []string, a *app) error {
			sinceDate, err := email.ParseSince(since, time.Now())
			if err != nil {
				return err
			}
			if limit < 0 {
				return fmt.Errorf("--limit must be a positive number")
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Fetching unread emails since: %s\n", sinceDate.Format("2006-01-02"))
			if limit > 0 {
				fmt.Fprintf(out, "Processing limit: %d\n", limit)
			}

			opts := email.PullOptions{Since: sinceDate, Limit: limit, NoArchive: noArchive}
			result, err := a.manager.Pull(cmd.Context(), opts, func(item email.PullItem) {
				switch {
				case item.Err != nil:
					fmt.Fprintf(out, "%s Failed: %s: %v\n", alertStyle.Render("✗"), ref(item.Email), item.Err)
				case item.Stored:
					fmt.Fprintf(out, "%s Stored: %s\n", okStyle.Render("✓"), ref(item.Email))
				default:
					fmt.Fprintf(out, "%s Skipped (exists): %s\n", warnStyle.Render("⊘"), ref(item.Email))
				}
			})
			if err != nil {
				return err
			}

			if result.Available == 0 {
				fmt.Fprintln(out, "No unread emails found.")
				return nil
			}
			fmt.Fprintln(out)
			fmt.Fprintln(out, headingStyle.Render("Summary:"))
			fmt.Fprintf(out, "  Available:  %d\n", result.Available)
			fmt.Fprintf(out, "  Processed:  %d\n", result.Processed)
			fmt.Fprintf(out, "  Written:    %d\n", result.Written)
			fmt.Fprintf(out, "  Skipped:    %d\n", result.Skipped)
			if result.Failed > 0 {
				fmt.Fprintf(out, "  Failed:     %s\n", alertStyle.Render(fmt.Sprint(result.Failed)))
				return fmt.Errorf("%d %s could not be pulled", result.Failed, plural(result.Failed, "email", "emails"))
			}
			return nil
		}),
	}

	cmd.Flags().StringVar(&since, "since", "", "Fetch unread emails received since YYYY-MM-DD, yesterday or \"N days ago\"")
	cmd.Flags().IntVar(&limit, "limit", 0, "Maximum number of emails to process")
	cmd.Flags().BoolVar(&noArchive, "no-archive", false, "Cache only; leave the messages unread in place")
	_ = cmd.MarkFlagRequired("since")
	return cmd
}

func newSearchCmd(flags *rootFlags) *cobra.Command {
	var (
		folder string
		limit  int
		since  string
		store  bool
	)

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search the mailbox",
		Args:  cobra.MinimumNArgs(1),
		RunE: flags.run(func(cmd *cobra.Command, args []string, a *app) error {
			opts := email.SearchOptions{
				Query:  strings.Join(args, " "),
				Folder: folder,
				Limit:  limit,
				Store:  store,
			}
			if limit < 1 || limit > a.config.Search.MaxLimit {
				return fmt.Errorf("--limit must be between 1 and %d", a.config.Search.MaxLimit)
			}
			if since != "" {
				t, err := email.ParseSince(since, time.Now())
				if err != nil {
					return err
				}
				opts.Since = t
			}

			result, err := a.manager.Search(cmd.Context(), opts)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if len(result.Emails) == 0 {
				fmt.Fprintln(out, "No emails found.")
				return nil
			}
			fmt.Fprintf(out, "%s %s for %q:\n\n", countStyle.Render(fmt.Sprint(len(result.Emails))), plural(len(result.Emails), "result", "results"), opts.Query)
			renderMessages(out, result.Emails, true)
			if store {
				fmt.Fprintf(out, "\nStored %d new %s.\n", result.Stored, plural(result.Stored, "email", "emails"))
			}
			return nil
		}),
	}

	cmd.Flags().StringVar(&folder, "folder", "", "Only search this folder")
	cmd.Flags().IntVar(&limit, "limit", 10, "Maximum number of results")
	cmd.Flags().StringVar(&since, "since", "", "Only results received since YYYY-MM-DD, yesterday or \"N days ago\"")
	cmd.Flags().BoolVar(&store, "store", false, "Cache results that are not cached yet")
	return cmd
}

func renderMessages(w io.Writer, messages []types.Email, withID bool) {
	headers := []string{"RECEIVED", "FROM", "SUBJECT"}
	if withID {
		headers = append([]string{"ID"}, headers...)
	}
	table := newTable(w, headers...)
	for i := range messages {
		m := &messages[i]
		row := []string{
			relativeTime(m.ReceivedDateTime),
			truncate(m.SenderAddress(), senderWidth),
			truncate(m.DisplaySubject(), subjectWidth),
		}
		if withID {
			row = append([]string{m.ShortID()}, row...)
		}
		table.Append(row)
	}
	table.Render()
}

func newFoldersCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "folders",
		Short: "Show the mailbox folder tree",
		Args:  cobra.NoArgs,
		RunE: flags.run(func(cmd *cobra.Command, args []string, a *app) error {
			tree, err := a.manager.FolderTree(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(tree) == 0 {
				fmt.Fprintln(out, "No folders found.")
				return nil
			}
			printTree(out, tree, "")
			return nil
		}),
	}
}

func printTree(w io.Writer, nodes []*folders.Node, prefix string) {
	for i, node := range nodes {
		last := i == len(nodes)-1
		branch, next := "├── ", "│   "
		if last {
			branch, next = "└── ", "    "
		}

		f := node.Folder
		counts := mutedStyle.Render(fmt.Sprintf("(%d/%d)", f.UnreadItemCount, f.TotalItemCount))
		if f.UnreadItemCount > 0 {
			counts = countStyle.Render(fmt.Sprintf("(%d/%d)", f.UnreadItemCount, f.TotalItemCount))
		}
		fmt.Fprintf(w, "%s%s%s %s\n", prefix, branch, f.DisplayName, counts)
		printTree(w, node.Children, prefix+next)
	}
}

func newFolderCmd(flags *rootFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "folder",
		Short: "Inspect a mailbox folder",
	}
	cmd.AddCommand(newFolderListCmd(flags))
	return cmd
}

func newFolderListCmd(flags *rootFlags) *cobra.Command {
	var (
		folder string
		limit  int
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List the newest messages of a folder",
		Args:  cobra.NoArgs,
		RunE: flags.run(func(cmd *cobra.Command, args []string, a *app) error {
			if limit < 1 {
				return fmt.Errorf("--limit must be a positive number")
			}
			messages, err := a.manager.FolderMessages(cmd.Context(), folder, limit)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if len(messages) == 0 {
				fmt.Fprintf(out, "No emails found in folder: %s\n", folder)
				return nil
			}
			fmt.Fprintf(out, "Recent emails in folder: %s\n", headingStyle.Render(folder))
			fmt.Fprintf(out, "Showing %d %s:\n\n", len(messages), plural(len(messages), "email", "emails"))
			renderMessages(out, messages, false)
			return nil
		}),
	}

	cmd.Flags().StringVar(&folder, "folder", "", "Folder name or path")
	cmd.Flags().IntVar(&limit, "limit", 10, "Maximum number of messages")
	_ = cmd.MarkFlagRequired("folder")
	return cmd
}

func newPlanCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "plan",
		Short: "Show the queued changes apply would send",
		Args:  cobra.NoArgs,
		RunE: flags.run(func(cmd *cobra.Command, args []string, a *app) error {
			plan, err := a.manager.Plan()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(plan.Items) == 0 {
				fmt.Fprintln(out, "No pending changes.")
				return nil
			}
			printPlan(out, plan)
			fmt.Fprintln(out)
			fmt.Fprintln(out, mutedStyle.Render(`Run "outlook-email apply" to push these changes.`))
			return nil
		}),
	}
}

func printPlan(w io.Writer, plan reconcile.Plan) {
	fmt.Fprintln(w, headingStyle.Render("Planned changes:"))
	fmt.Fprintln(w)
	for _, item := range plan.Items {
		marker := okStyle.Render("~")
		if item.Ops.Delete {
			marker = alertStyle.Render("-")
		}
		fmt.Fprintf(w, "%s %s\n", marker, ref(item.Email))
		if item.Ops.Delete {
			fmt.Fprintf(w, "    %s → removed from mailbox\n", alertStyle.Render("delete"))
		}
		if item.Ops.Read != nil {
			fmt.Fprintf(w, "    read: %s → %s\n", alertStyle.Render(fmt.Sprint(item.Ops.Read.From)), okStyle.Render(fmt.Sprint(item.Ops.Read.To)))
		}
		if item.Ops.Move != nil {
			fmt.Fprintf(w, "    move: %s → %s\n", mutedStyle.Render("(current)"), okStyle.Render(item.Ops.Move.Folder))
		}
	}

	t := plan.Tally
	fmt.Fprintln(w)
	fmt.Fprintf(w, "Plan: %s %s with changes\n", countStyle.Render(fmt.Sprint(len(plan.Items))), plural(len(plan.Items), "email", "emails"))
	fmt.Fprintf(w, "      %d mark-read, %d mark-unread, %d move, %d delete\n", t.MarkRead, t.MarkUnread, t.Move, t.Delete)
}

func newApplyCmd(flags *rootFlags) *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "apply",
		Short: "Send every queued change to the mailbox",
		Args:  cobra.NoArgs,
		RunE: flags.run(func(cmd *cobra.Command, args []string, a *app) error {
			plan, err := a.manager.Plan()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(plan.Items) == 0 {
				fmt.Fprintln(out, "No pending changes to apply.")
				return nil
			}

			printPlan(out, plan)
			fmt.Fprintln(out)
			if !yes {
				ok, err := confirm(fmt.Sprintf("Apply changes to %d %s?", len(plan.Items), plural(len(plan.Items), "email", "emails")))
				if err != nil {
					return err
				}
				if !ok {
					fmt.Fprintln(out, "Aborted.")
					return nil
				}
			}

			if err := a.openJournal(); err != nil {
				a.logger.WithError(err).Warn("Apply journal unavailable, continuing without it")
			}

			ctx, stop := interruptContext(cmd.Context())
			defer stop()

			result, err := a.manager.Apply(ctx, plan, func(o reconcile.Outcome) {
				switch o.State {
				case reconcile.StateApplied:
					if o.Ops.Delete {
						fmt.Fprintf(out, "%s Deleted: %s\n", alertStyle.Render("✓"), ref(o.Email))
					} else {
						fmt.Fprintf(out, "%s Applied: %s\n", okStyle.Render("✓"), ref(o.Email))
					}
				case reconcile.StateFailed:
					fmt.Fprintf(out, "%s Error: %s: %v\n", alertStyle.Render("✗"), ref(o.Email), o.Err)
				}
			})
			if err != nil {
				return err
			}

			fmt.Fprintln(out)
			fmt.Fprintln(out, headingStyle.Render("Summary:"))
			fmt.Fprintf(out, "  Applied: %s\n", okStyle.Render(fmt.Sprint(result.Applied)))
			fmt.Fprintf(out, "  Errors:  %d\n", result.Failed)
			if result.Skipped > 0 {
				fmt.Fprintf(out, "  Skipped: %d\n", result.Skipped)
			}
			if result.Failed > 0 {
				return fmt.Errorf("%d %s failed to apply", result.Failed, plural(result.Failed, "change", "changes"))
			}
			return nil
		}),
	}

	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Apply without asking for confirmation")
	return cmd
}

func newCleanCmd(flags *rootFlags) *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "clean",
		Short: "Remove every cached email",
		Args:  cobra.NoArgs,
		RunE: flags.run(func(cmd *cobra.Command, args []string, a *app) error {
			out := cmd.OutOrStdout()
			if !yes {
				ok, err := confirm("Remove every cached email, including queued changes?")
				if err != nil {
					return err
				}
				if !ok {
					fmt.Fprintln(out, "Aborted.")
					return nil
				}
			}

			removed, err := a.manager.Clean()
			if err != nil {
				return err
			}
			if removed == 0 {
				fmt.Fprintln(out, "Storage is already empty.")
				return nil
			}
			fmt.Fprintf(out, "%s Cleared local cache: removed %d %s\n", okStyle.Render("✓"), removed, plural(removed, "email", "emails"))
			return nil
		}),
	}

	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Skip the confirmation prompt")
	return cmd
}

func confirm(title string) (bool, error) {
	var ok bool
	err := huh.NewConfirm().
		Title(title).
		Affirmative("Yes").
		Negative("No").
		Value(&ok).
		Run()
	if errors.Is(err, huh.ErrUserAborted) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to read confirmation (use --yes to skip it): %w", err)
	}
	return ok, nil
}
