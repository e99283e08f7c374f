package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/jaytaylor/html2text"
	"github.com/spf13/cobra"

	"github.com/brandon/outlook-email/internal/email"
	"github.com/brandon/outlook-email/internal/pending"
	"github.com/brandon/outlook-email/internal/storage"
	"github.com/brandon/outlook-email/pkg/types"
)

func newListCmd(flags *rootFlags) *cobra.Command {
	var (
		limit  int
		since  string
		folder string
		all    bool
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List cached emails, newest first",
		Args:  cobra.NoArgs,
		RunE: flags.run(func(cmd *cobra.Command, args []string, a *app) error {
			opts := email.ListOptions{Folder: folder, All: all, Limit: limit}
			if opts.Limit == 0 {
				opts.Limit = a.config.List.DefaultLimit
			}
			if opts.Limit < 0 {
				return fmt.Errorf("--limit must be a positive number")
			}
			if since != "" {
				t, err := email.ParseSince(since, time.Now())
				if err != nil {
					return err
				}
				opts.Since = t
			}

			listing, err := a.manager.List(opts)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if len(listing.Emails) == 0 {
				fmt.Fprintln(out, "No emails found.")
				return nil
			}

			header := fmt.Sprintf("%s %s", countStyle.Render(fmt.Sprint(listing.Matched)), plural(listing.Matched, "email", "emails"))
			if len(listing.Emails) < listing.Matched {
				header += " " + mutedStyle.Render(fmt.Sprintf("(showing %d)", len(listing.Emails)))
			}
			fmt.Fprintln(out, header+":")
			fmt.Fprintln(out)

			table := newTable(out, "", "ID", "RECEIVED", "FROM", "SUBJECT")
			for _, e := range listing.Emails {
				table.Append([]string{
					stateMarker(e),
					e.ShortID(),
					relativeTime(e.ReceivedDateTime),
					truncate(e.SenderAddress(), senderWidth),
					truncate(e.DisplaySubject(), subjectWidth),
				})
			}
			table.Render()

			if remaining := listing.Matched - len(listing.Emails); remaining > 0 {
				fmt.Fprintln(out, mutedStyle.Render(fmt.Sprintf("... and %d more", remaining)))
			}
			if hidden := listing.Total - listing.Matched; hidden > 0 {
				fmt.Fprintln(out, mutedStyle.Render(fmt.Sprintf("%d hidden by filters", hidden)))
			}
			return nil
		}),
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "Maximum number of emails to show (default from list.default_limit)")
	cmd.Flags().StringVar(&since, "since", "", "Only emails received since YYYY-MM-DD, yesterday or \"N days ago\"")
	cmd.Flags().StringVar(&folder, "folder", "", "Only emails pulled from or filed in this folder")
	cmd.Flags().BoolVar(&all, "all", false, "Include emails flagged as processed")
	return cmd
}

func newViewCmd(flags *rootFlags) *cobra.Command {
	var asText, asYAML bool

	cmd := &cobra.Command{
		Use:   "view <id>",
		Short: "Show a cached email",
		Args:  cobra.ExactArgs(1),
		RunE: flags.run(func(cmd *cobra.Command, args []string, a *app) error {
			if asText && asYAML {
				return fmt.Errorf("--text and --yaml are mutually exclusive")
			}
			e, err := a.manager.Find(args[0])
			if err != nil {
				return describeLookupError(err, args[0])
			}

			out := cmd.OutOrStdout()
			if !asText {
				data, err := storage.Encode(e)
				if err != nil {
					return err
				}
				_, err = out.Write(data)
				return err
			}

			fmt.Fprint(out, renderText(e))
			return nil
		}),
	}

	cmd.Flags().BoolVar(&asYAML, "yaml", false, "Print the stored record (default)")
	cmd.Flags().BoolVar(&asText, "text", false, "Print headers and a plain-text body")
	return cmd
}

func renderText(e *types.Email) string {
	var b strings.Builder
	from := e.SenderAddress()
	fmt.Fprintf(&b, "From:    %s\n", from)
	fmt.Fprintf(&b, "To:      %s\n", recipients(e.ToRecipients))
	if cc := recipients(e.CcRecipients); cc != "" {
		fmt.Fprintf(&b, "Cc:      %s\n", cc)
	}
	if bcc := recipients(e.BccRecipients); bcc != "" {
		fmt.Fprintf(&b, "Bcc:     %s\n", bcc)
	}
	fmt.Fprintf(&b, "Subject: %s\n", e.DisplaySubject())
	if !e.ReceivedDateTime.IsZero() {
		fmt.Fprintf(&b, "Date:    %s (%s)\n", e.ReceivedDateTime.Local().Format(time.RFC1123), relativeTime(e.ReceivedDateTime))
	}
	b.WriteString("\n")

	if e.Body == nil {
		return b.String()
	}
	body := strings.TrimSpace(e.Body.Content)
	if e.Body.IsHTML() {
		if text, err := html2text.FromString(body, html2text.Options{PrettyTables: true}); err == nil {
			body = text
		}
	}
	b.WriteString(body)
	b.WriteString("\n")
	return b.String()
}

func newReadCmd(flags *rootFlags, read bool) *cobra.Command {
	use, short := "read <id>", "Queue marking an email as read"
	if !read {
		use, short = "unread <id>", "Queue marking an email as unread"
	}

	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: flags.run(func(cmd *cobra.Command, args []string, a *app) error {
			change, err := a.manager.MarkRead(args[0], read)
			if err != nil {
				return describeLookupError(err, args[0])
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s: %s\n", readOutcomeMessage(change.Outcome, read), ref(change.Email))
			return nil
		}),
	}
}

func newDeleteCmd(flags *rootFlags) *cobra.Command {
	var undo bool

	cmd := &cobra.Command{
		Use:   "delete <id>",
		Short: "Queue an email for deletion",
		Args:  cobra.ExactArgs(1),
		RunE: flags.run(func(cmd *cobra.Command, args []string, a *app) error {
			var (
				change email.Change
				err    error
			)
			if undo {
				change, err = a.manager.ClearDelete(args[0])
			} else {
				change, err = a.manager.QueueDelete(args[0])
			}
			if err != nil {
				return describeLookupError(err, args[0])
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s: %s\n", deleteOutcomeMessage(change.Outcome, undo), ref(change.Email))
			if !undo && change.Outcome == pending.Queued {
				fmt.Fprintln(out, mutedStyle.Render(`  Run "outlook-email apply" to delete it from the mailbox.`))
			}
			return nil
		}),
	}

	cmd.Flags().BoolVar(&undo, "clear", false, "Remove the deletion marker instead")
	return cmd
}

func newMoveCmd(flags *rootFlags) *cobra.Command {
	var (
		folder string
		undo   bool
	)

	cmd := &cobra.Command{
		Use:   "move <id>",
		Short: "Queue moving an email to another folder",
		Args:  cobra.ExactArgs(1),
		RunE: flags.run(func(cmd *cobra.Command, args []string, a *app) error {
			var (
				change email.Change
				err    error
			)
			switch {
			case undo:
				change, err = a.manager.ClearMove(args[0])
			case strings.TrimSpace(folder) == "":
				return fmt.Errorf("--folder is required")
			default:
				change, err = a.manager.QueueMove(args[0], folder)
			}
			if err != nil {
				return describeLookupError(err, args[0])
			}

			fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", moveOutcomeMessage(change.Outcome, strings.TrimSpace(folder), undo), ref(change.Email))
			return nil
		}),
	}

	cmd.Flags().StringVar(&folder, "folder", "", "Destination folder name")
	cmd.Flags().BoolVar(&undo, "clear", false, "Drop the queued move instead")
	return cmd
}

func newProcessedCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "processed <id>",
		Short: "Toggle the local processed flag",
		Args:  cobra.ExactArgs(1),
		RunE: flags.run(func(cmd *cobra.Command, args []string, a *app) error {
			e, processed, err := a.manager.ToggleProcessed(args[0])
			if err != nil {
				return describeLookupError(err, args[0])
			}
			state := "unprocessed"
			if processed {
				state = "processed"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s Marked as %s: %s\n", okStyle.Render("✓"), state, ref(e))
			return nil
		}),
	}
}

func newSummaryCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "summary",
		Short: "Count cached emails by folder",
		Args:  cobra.NoArgs,
		RunE: flags.run(func(cmd *cobra.Command, args []string, a *app) error {
			summary, err := a.manager.Summary()
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if summary.Overall.Total == 0 {
				fmt.Fprintln(out, "No emails cached.")
				return nil
			}

			table := newTable(out, "FOLDER", "UNREAD", "READ", "PROCESSED", "PENDING", "TOTAL")
			row := func(c email.FolderCount) []string {
				return []string{
					c.Folder,
					fmt.Sprint(c.Unread),
					fmt.Sprint(c.Read),
					fmt.Sprint(c.Processed),
					fmt.Sprint(c.Pending),
					fmt.Sprint(c.Total),
				}
			}
			for _, c := range summary.Folders {
				table.Append(row(c))
			}
			overall := summary.Overall
			overall.Folder = "Overall"
			table.Append(row(overall))
			table.Render()
			return nil
		}),
	}
}
