package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/Veraticus/spice-import/internal/model"
	"github.com/Veraticus/spice-import/internal/parser"
)

const (
	descriptionWidth = 32
	categoryWidth    = 18
)

// View implements tea.Model.
func (m Model) View() string {
	if m.quitting {
		return ""
	}

	p := m.preview
	title := m.theme.Title.Render(fmt.Sprintf("🌶️  Review import · %s · account %s", p.DocumentType, p.AccountID))
	summary := m.theme.Subtitle.Render(fmt.Sprintf("%d of %d selected · %d possible duplicates · %d need confirmation",
		p.SelectedCount(), len(p.Transactions), p.DuplicateCount, p.NeedsConfirmationCount))

	sections := []string{title, summary, m.renderTable()}

	switch {
	case m.editing:
		sections = append(sections, m.theme.RoundedBox.Render("Category: "+m.input.View()))
	case m.err != nil:
		sections = append(sections, m.theme.StatusError.Render("✗ "+m.err.Error()))
	case len(p.ValidationWarnings) > 0:
		sections = append(sections, m.theme.StatusWarning.Render(fmt.Sprintf("⚠️  %d validation warnings", len(p.ValidationWarnings))))
	}

	sections = append(sections, m.help.View(m.keymap))
	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

func (m Model) renderTable() string {
	header := m.theme.Header.Render(fmt.Sprintf("    %-10s %12s  %-*s %-*s %s",
		"Date", "Amount", descriptionWidth, "Description", categoryWidth, "Category", "Status"))

	rows := m.preview.Transactions
	if len(rows) == 0 {
		return header + "\n" + m.theme.Subtitle.Render("No transactions.")
	}

	end := min(m.offset+m.pageSize(), len(rows))
	lines := make([]string, 0, end-m.offset+1)
	lines = append(lines, header)
	for i := m.offset; i < end; i++ {
		lines = append(lines, m.renderRow(i, rows[i]))
	}
	return strings.Join(lines, "\n")
}

func (m Model) renderRow(i int, r model.ReviewableTransaction) string {
	check := "[ ]"
	if r.IsSelected {
		check = "[x]"
	}

	category := r.EffectiveCategoryID()
	switch {
	case r.CategoryOverride != nil:
		category += " *"
	case r.Categorization != nil && r.Categorization.RequiresUserConfirmation():
		category += " ?"
	}

	txn := r.Transaction
	line := fmt.Sprintf("%s %-10s %12s  %-*s %-*s %s",
		check,
		txn.Date.Format("2006-01-02"),
		parser.FormatMinor(txn.AmountMinor, txn.Currency)+" "+txn.Currency,
		descriptionWidth, clip(txn.Description, descriptionWidth),
		categoryWidth, clip(category, categoryWidth),
		statusLabel(r.DuplicateStatus),
	)

	switch {
	case i == m.cursor:
		return m.theme.Cursor.Render(line)
	case !r.IsSelected:
		return m.theme.Deselected.Render(line)
	case r.DuplicateStatus != nil && r.DuplicateStatus.IsDuplicate():
		return m.theme.StatusWarning.Render(line)
	default:
		return m.theme.Normal.Render(line)
	}
}

func statusLabel(s model.DuplicateStatus) string {
	switch d := s.(type) {
	case model.ExactDuplicate:
		return "duplicate"
	case model.ProbableDuplicate:
		return fmt.Sprintf("probable (%.0f%%)", d.Similarity*100)
	default:
		return ""
	}
}

func clip(s string, width int) string {
	r := []rune(s)
	if len(r) <= width {
		return s
	}
	return string(r[:width-1]) + "…"
}
