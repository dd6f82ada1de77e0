package cli

import (
	"fmt"
	"sort"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/Veraticus/spice-import/internal/importer"
	"github.com/Veraticus/spice-import/internal/model"
	"github.com/Veraticus/spice-import/internal/parser"
)

const maxDescriptionWidth = 40

// RenderPreview renders the preview as a table, one row per transaction, followed by any
// validation warnings.
func RenderPreview(p importer.Preview) string {
	header := []string{"#", "", "Date", "Amount", "Description", "Category", "Source", "Status"}
	rows := make([][]string, 0, len(p.Transactions))
	for _, r := range p.Transactions {
		rows = append(rows, previewRow(r))
	}

	var b strings.Builder
	b.WriteString(FormatTitle(fmt.Sprintf("Import preview (%s, account %s)", p.DocumentType, p.AccountID)))
	b.WriteString("\n")
	b.WriteString(renderTable(header, rows, func(i int) lipgloss.Style {
		r := p.Transactions[i]
		switch {
		case !r.IsSelected:
			return SubtleStyle
		case r.Categorization != nil && r.Categorization.RequiresUserConfirmation():
			return WarningStyle
		default:
			return lipgloss.NewStyle()
		}
	}))

	fmt.Fprintf(&b, "\n%d of %d selected", p.SelectedCount(), len(p.Transactions))
	if p.DuplicateCount > 0 {
		fmt.Fprintf(&b, ", %d possible duplicates", p.DuplicateCount)
	}
	if p.NeedsConfirmationCount > 0 {
		fmt.Fprintf(&b, ", %d need confirmation", p.NeedsConfirmationCount)
	}
	b.WriteString("\n")

	for _, w := range p.ValidationWarnings {
		b.WriteString(FormatWarning(fmt.Sprintf("row %d: %s", w.Index+1, w.Message)))
		b.WriteString("\n")
	}
	return b.String()
}

func previewRow(r model.ReviewableTransaction) []string {
	mark := " "
	if r.IsSelected {
		mark = SuccessIcon
	}

	category, source := "", ""
	if r.Categorization != nil {
		category = r.Categorization.CategoryID
		source = fmt.Sprintf("%s %.0f%%", r.Categorization.Source, r.Categorization.Confidence*100)
	}
	if r.CategoryOverride != nil {
		category = *r.CategoryOverride
		source = model.SourceUser.String()
	}

	txn := r.Transaction
	return []string{
		fmt.Sprintf("%d", r.Index+1),
		mark,
		txn.Date.Format("2006-01-02"),
		parser.FormatMinor(txn.AmountMinor, txn.Currency) + " " + txn.Currency,
		truncate(txn.Description, maxDescriptionWidth),
		category,
		source,
		DuplicateLabel(r.DuplicateStatus),
	}
}

// DuplicateLabel describes a duplicate status in a few words.
func DuplicateLabel(s model.DuplicateStatus) string {
	switch d := s.(type) {
	case model.ExactDuplicate:
		return "duplicate"
	case model.ProbableDuplicate:
		return fmt.Sprintf("probable duplicate (%.0f%%)", d.Similarity*100)
	default:
		return "new"
	}
}

func truncate(s string, width int) string {
	r := []rune(s)
	if len(r) <= width {
		return s
	}
	return string(r[:width-1]) + "…"
}

// renderTable lays out cells in padded columns. style picks the style of each body row.
func renderTable(header []string, rows [][]string, style func(row int) lipgloss.Style) string {
	widths := make([]int, len(header))
	for i, h := range header {
		widths[i] = lipgloss.Width(h)
	}
	for _, row := range rows {
		for i, cell := range row {
			widths[i] = max(widths[i], lipgloss.Width(cell))
		}
	}

	line := func(cells []string, st lipgloss.Style) string {
		parts := make([]string, len(cells))
		for i, cell := range cells {
			parts[i] = TableCellStyle.Width(widths[i] + 3).Render(cell)
		}
		return st.Render(lipgloss.JoinHorizontal(lipgloss.Top, parts...))
	}

	out := make([]string, 0, len(rows)+1)
	out = append(out, line(header, TableHeaderStyle))
	for i, row := range rows {
		out = append(out, line(row, style(i)))
	}
	return lipgloss.JoinVertical(lipgloss.Left, out...)
}

// RenderCompleted renders the outcome of a confirmed import.
func RenderCompleted(c importer.Completed) string {
	body := fmt.Sprintf("Saved: %d\nSkipped: %d\nDuplicates skipped: %d", c.SavedCount, c.SkippedCount, c.DuplicateCount)
	return RenderBox(SpiceIcon+" Import complete", body)
}

// RenderSourceBreakdown summarises how many rows each categorization tier produced.
func RenderSourceBreakdown(p importer.Preview) string {
	counts := make(map[model.CategorizationSource]int)
	fallback := 0
	for _, r := range p.Transactions {
		if r.Categorization == nil {
			continue
		}
		if r.Categorization.Fallback {
			fallback++
			continue
		}
		counts[r.Categorization.Source]++
	}

	sources := make([]model.CategorizationSource, 0, len(counts))
	for s := range counts {
		sources = append(sources, s)
	}
	sort.Slice(sources, func(i, j int) bool { return sources[i] < sources[j] })

	var b strings.Builder
	for _, s := range sources {
		icon := LocalIcon
		if !s.IsLocal() {
			icon = CloudIcon
		}
		fmt.Fprintf(&b, "%s %-18s %d\n", icon, s, counts[s])
	}
	if fallback > 0 {
		fmt.Fprintf(&b, "%s %-18s %d\n", WarningIcon, "fallback ("+model.OtherCategoryID+")", fallback)
	}
	return b.String()
}
