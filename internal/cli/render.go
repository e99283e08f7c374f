package cli

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
	"github.com/olekukonko/tablewriter"

	"github.com/brandon/outlook-email/internal/pending"
	"github.com/brandon/outlook-email/internal/storage"
	"github.com/brandon/outlook-email/pkg/types"
)

// palette
var (
	hashStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#c4a7e7"))
	subjectStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#e0def4"))
	countStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#f6c177"))
	mutedStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#6e6a86"))
	okStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("#9ccfd8"))
	warnStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#f6c177"))
	alertStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#eb6f92"))
	headingStyle = lipgloss.NewStyle().Bold(true)
)

const (
	subjectWidth = 60
	senderWidth  = 26
)

func newTable(w io.Writer, headers ...string) *tablewriter.Table {
	table := tablewriter.NewWriter(w)
	table.SetHeader(headers)
	table.SetAutoFormatHeaders(false)
	table.SetAutoWrapText(false)
	table.SetBorder(false)
	table.SetHeaderLine(false)
	table.SetColumnSeparator("")
	table.SetCenterSeparator("")
	table.SetRowSeparator("")
	table.SetTablePadding("  ")
	table.SetNoWhiteSpace(true)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	return table
}

func truncate(s string, width int) string {
	s = strings.Join(strings.Fields(s), " ")
	runes := []rune(s)
	if len(runes) <= width {
		return s
	}
	return string(runes[:width-1]) + "…"
}

func relativeTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return humanize.Time(t)
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}

// ref renders "<short id> / <subject>"
func ref(e *types.Email) string {
	return hashStyle.Render(e.ShortID()) + " / " + subjectStyle.Render(e.DisplaySubject())
}

// stateMarker flags unread, queued and processed records in listings
func stateMarker(e *types.Email) string {
	var marks []string
	if !pending.IsRead(e) {
		marks = append(marks, "●")
	}
	if pending.IsDeleteQueued(e) {
		marks = append(marks, "✗")
	} else if pending.HasPending(e) {
		marks = append(marks, "~")
	}
	if pending.IsProcessed(e) {
		marks = append(marks, "✓")
	}
	return strings.Join(marks, "")
}

func readOutcomeMessage(outcome pending.Outcome, read bool) string {
	word, opposite := "read", "unread"
	if !read {
		word, opposite = "unread", "read"
	}
	switch outcome {
	case pending.Queued:
		return okStyle.Render("✓") + " Marked as " + word
	case pending.Cancelled:
		return okStyle.Render("✓") + " Cancelled pending " + opposite
	default:
		return warnStyle.Render("⊘") + " Already marked as " + word
	}
}

func deleteOutcomeMessage(outcome pending.Outcome, undo bool) string {
	if undo {
		if outcome == pending.Unchanged {
			return warnStyle.Render("⊘") + " Not marked for deletion"
		}
		return okStyle.Render("✓") + " Cleared deletion marker"
	}
	if outcome == pending.Unchanged {
		return warnStyle.Render("⊘") + " Already marked for deletion"
	}
	return alertStyle.Render("✓") + " Marked for deletion"
}

func moveOutcomeMessage(outcome pending.Outcome, folder string, undo bool) string {
	switch {
	case undo && outcome == pending.Unchanged:
		return warnStyle.Render("⊘") + " No move queued"
	case undo:
		return okStyle.Render("✓") + " Cleared queued move"
	case outcome == pending.Queued:
		return okStyle.Render("✓") + " Queued move to " + folder
	default:
		return warnStyle.Render("⊘") + " Already queued to move to " + folder
	}
}

// describeLookupError adds the candidates to an ambiguous id error
func describeLookupError(err error, id string) error {
	var ambiguous *storage.AmbiguousIDError
	if errors.As(err, &ambiguous) {
		return fmt.Errorf("id %q matches %d emails (%s); use a longer prefix", id, len(ambiguous.Matches), strings.Join(shortIDs(ambiguous.Matches), ", "))
	}
	if errors.Is(err, storage.ErrNotFound) {
		return fmt.Errorf("email not found: %s", id)
	}
	return err
}

func shortIDs(ids []string) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		if len(id) > 8 {
			id = id[:8]
		}
		out[i] = id
	}
	return out
}

func recipients(list []types.Recipient) string {
	parts := make([]string, 0, len(list))
	for _, r := range list {
		parts = append(parts, r.String())
	}
	return strings.Join(parts, ", ")
}
