package tui

import (
	"errors"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Veraticus/spice-import/internal/importer"
	"github.com/Veraticus/spice-import/internal/model"
)

// fakeSession applies edits to an in-memory preview the way the orchestrator does.
type fakeSession struct {
	err     error
	preview importer.Preview
}

func (f *fakeSession) Preview() (*importer.Preview, error) {
	if f.err != nil {
		return nil, f.err
	}
	out := f.preview
	out.Transactions = append([]model.ReviewableTransaction(nil), f.preview.Transactions...)
	return &out, nil
}

func (f *fakeSession) ToggleSelection(i int) error {
	f.preview.Transactions[i].IsSelected = !f.preview.Transactions[i].IsSelected
	return nil
}

func (f *fakeSession) SelectAll() error {
	for i := range f.preview.Transactions {
		f.preview.Transactions[i].IsSelected = true
	}
	return nil
}

func (f *fakeSession) DeselectDuplicates() error {
	for i, r := range f.preview.Transactions {
		if r.DuplicateStatus.IsDuplicate() {
			f.preview.Transactions[i].IsSelected = false
		}
	}
	return nil
}

func (f *fakeSession) SetCategoryOverride(i int, id *string) error {
	f.preview.Transactions[i].CategoryOverride = id
	return nil
}

func newSession() *fakeSession {
	day := time.Date(2026, 1, 8, 0, 0, 0, 0, time.UTC)
	row := func(i int, desc string, amount int64, status model.DuplicateStatus, category string) model.ReviewableTransaction {
		r := model.NewReviewableTransaction(i, model.ImportedTransaction{
			Date: day, Description: desc, AmountMinor: amount, Currency: "EUR",
		}, status)
		r.Categorization = &model.CategorizationResult{CategoryID: category, Source: model.SourceRuleBased, Confidence: 0.9}
		return r
	}
	return &fakeSession{preview: importer.Preview{
		AccountID:    "checking",
		DocumentType: model.DocumentCSV,
		Transactions: []model.ReviewableTransaction{
			row(0, "Blorptastic Emporium", -2599, model.Unique{}, "shopping"),
			row(1, "Coffee Shop", -5000, model.ExactDuplicate{MatchingID: "t-1"}, "dining"),
			row(2, "Zephyr Widgets", -1200, model.Unique{}, "shopping"),
		},
		DuplicateCount: 1,
	}}
}

var testCategories = []model.Category{
	{ID: "shopping", Name: "Shopping"},
	{ID: "dining", Name: "Dining"},
	{ID: "groceries", Name: "Groceries"},
}

func keyMsg(s string) tea.KeyMsg {
	switch s {
	case "enter":
		return tea.KeyMsg{Type: tea.KeyEnter}
	case "esc":
		return tea.KeyMsg{Type: tea.KeyEsc}
	case "down":
		return tea.KeyMsg{Type: tea.KeyDown}
	case "space":
		return tea.KeyMsg{Type: tea.KeySpace, Runes: []rune{' '}}
	case "ctrl+c":
		return tea.KeyMsg{Type: tea.KeyCtrlC}
	case "backspace":
		return tea.KeyMsg{Type: tea.KeyBackspace}
	default:
		return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
	}
}

func press(t *testing.T, m Model, keys ...string) (Model, tea.Cmd) {
	t.Helper()
	var cmd tea.Cmd
	for _, k := range keys {
		var next tea.Model
		next, cmd = m.Update(keyMsg(k))
		m = next.(Model)
	}
	return m, cmd
}

func typeText(t *testing.T, m Model, text string) Model {
	t.Helper()
	for _, r := range text {
		next, _ := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{r}})
		m = next.(Model)
	}
	return m
}

func newTestModel(t *testing.T, s *fakeSession) Model {
	t.Helper()
	m, err := NewModel(s, testCategories, defaultConfig())
	require.NoError(t, err)
	return m
}

func TestModel_Selection(t *testing.T) {
	s := newSession()
	m := newTestModel(t, s)
	assert.Equal(t, 2, m.Preview().SelectedCount())

	m, _ = press(t, m, "space")
	assert.False(t, s.preview.Transactions[0].IsSelected)
	assert.Equal(t, 1, m.Preview().SelectedCount())

	m, _ = press(t, m, "a")
	assert.Equal(t, 3, m.Preview().SelectedCount())

	m, _ = press(t, m, "d")
	assert.False(t, s.preview.Transactions[1].IsSelected)
	assert.Equal(t, 2, m.Preview().SelectedCount())

	m, _ = press(t, m, "j", "x")
	assert.True(t, s.preview.Transactions[1].IsSelected)
	assert.Equal(t, 1, m.cursor)
}

func TestModel_Navigation(t *testing.T) {
	m := newTestModel(t, newSession())

	m, _ = press(t, m, "down", "down", "down")
	assert.Equal(t, 2, m.cursor)

	m, _ = press(t, m, "g")
	assert.Equal(t, 0, m.cursor)

	m, _ = press(t, m, "G")
	assert.Equal(t, 2, m.cursor)

	m, _ = press(t, m, "k")
	assert.Equal(t, 1, m.cursor)
}

func TestModel_CategoryOverride(t *testing.T) {
	s := newSession()
	m := newTestModel(t, s)

	m, _ = press(t, m, "c")
	require.True(t, m.editing)
	assert.Equal(t, "shopping", m.input.Value())

	m.input.SetValue("")
	m = typeText(t, m, "groceries")
	m, _ = press(t, m, "enter")
	assert.False(t, m.editing)
	require.NotNil(t, s.preview.Transactions[0].CategoryOverride)
	assert.Equal(t, "groceries", *s.preview.Transactions[0].CategoryOverride)
	assert.Contains(t, m.View(), "groceries *")

	m, _ = press(t, m, "u")
	assert.Nil(t, s.preview.Transactions[0].CategoryOverride)
}

func TestModel_CategoryOverrideRejectsUnknown(t *testing.T) {
	s := newSession()
	m := newTestModel(t, s)

	m, _ = press(t, m, "c")
	m.input.SetValue("")
	m = typeText(t, m, "spaceships")
	m, _ = press(t, m, "enter")

	assert.Nil(t, s.preview.Transactions[0].CategoryOverride)
	require.Error(t, m.err)
	assert.Contains(t, m.View(), `unknown category "spaceships"`)
}

func TestModel_CategoryOverrideEscapeKeepsRow(t *testing.T) {
	s := newSession()
	m := newTestModel(t, s)

	m, _ = press(t, m, "c")
	m = typeText(t, m, "x")
	m, _ = press(t, m, "esc")

	assert.False(t, m.editing)
	assert.Nil(t, s.preview.Transactions[0].CategoryOverride)
}

func TestModel_TypingDoesNotTriggerShortcuts(t *testing.T) {
	s := newSession()
	m := newTestModel(t, s)

	m, _ = press(t, m, "c")
	m = typeText(t, m, "qadx")

	assert.True(t, m.editing)
	assert.False(t, m.quitting)
	assert.Equal(t, 2, m.Preview().SelectedCount())
}

func TestModel_Confirm(t *testing.T) {
	m := newTestModel(t, newSession())

	m, cmd := press(t, m, "enter")
	assert.Equal(t, OutcomeConfirmed, m.Outcome())
	require.NotNil(t, cmd)
	assert.IsType(t, tea.QuitMsg{}, cmd())
	assert.Empty(t, m.View())
}

func TestModel_ConfirmNeedsSelection(t *testing.T) {
	s := newSession()
	m := newTestModel(t, s)

	m, _ = press(t, m, "space", "j", "j", "space")
	require.Equal(t, 0, m.Preview().SelectedCount())

	m, cmd := press(t, m, "enter")
	assert.Nil(t, cmd)
	assert.False(t, m.quitting)
	assert.Contains(t, m.View(), "nothing selected")
}

func TestModel_Cancel(t *testing.T) {
	for _, k := range []string{"q", "esc", "ctrl+c"} {
		t.Run(k, func(t *testing.T) {
			m := newTestModel(t, newSession())
			m, cmd := press(t, m, k)
			assert.Equal(t, OutcomeCancelled, m.Outcome())
			assert.True(t, m.quitting)
			require.NotNil(t, cmd)
		})
	}
}

func TestModel_SessionErrors(t *testing.T) {
	s := newSession()
	s.err = errors.New("no active import session")

	_, err := NewModel(s, testCategories, defaultConfig())
	require.Error(t, err)
}

func TestModel_View(t *testing.T) {
	m := newTestModel(t, newSession())
	next, _ := m.Update(tea.WindowSizeMsg{Width: 120, Height: 20})
	m = next.(Model)

	view := m.View()
	for _, want := range []string{
		"Review import · CSV · account checking",
		"2 of 3 selected",
		"Blorptastic Emporium",
		"-25.99 EUR",
		"duplicate",
		"[x]",
		"[ ]",
	} {
		assert.Contains(t, view, want)
	}
}

func TestModel_ScrollsWithCursor(t *testing.T) {
	s := newSession()
	for i := 3; i < 40; i++ {
		s.preview.Transactions = append(s.preview.Transactions, s.preview.Transactions[2])
		s.preview.Transactions[i].Index = i
	}
	m := newTestModel(t, s)
	next, _ := m.Update(tea.WindowSizeMsg{Width: 120, Height: 12})
	m = next.(Model)

	m, _ = press(t, m, "G")
	assert.Equal(t, 39, m.cursor)
	assert.Equal(t, 39-m.pageSize()+1, m.offset)
	assert.NotContains(t, m.View(), "Blorptastic Emporium")

	m, _ = press(t, m, "g")
	assert.Equal(t, 0, m.offset)
	assert.Contains(t, m.View(), "Blorptastic Emporium")
}
