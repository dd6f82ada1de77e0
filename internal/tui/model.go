// Package tui implements the interactive review screen shown before an import is saved.
package tui

import (
	"fmt"
	"sort"
	"strings"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/Veraticus/spice-import/internal/importer"
	"github.com/Veraticus/spice-import/internal/model"
	"github.com/Veraticus/spice-import/internal/tui/themes"
)

// Session is the part of the import orchestrator the review screen edits.
type Session interface {
	Preview() (*importer.Preview, error)
	ToggleSelection(index int) error
	SelectAll() error
	DeselectDuplicates() error
	SetCategoryOverride(index int, categoryID *string) error
}

// Outcome is how the user left the review screen.
type Outcome int

// Review outcomes.
const (
	OutcomeCancelled Outcome = iota
	OutcomeConfirmed
)

func (o Outcome) String() string {
	if o == OutcomeConfirmed {
		return "confirmed"
	}
	return "cancelled"
}

// Model is the bubbletea model of the review screen.
type Model struct {
	session  Session
	err      error
	known    map[string]bool
	help     help.Model
	input    textinput.Model
	theme    themes.Theme
	keymap   KeyMap
	preview  importer.Preview
	cursor   int
	offset   int
	width    int
	height   int
	outcome  Outcome
	editing  bool
	quitting bool
}

// NewModel creates a review model over the session's current preview.
func NewModel(session Session, categories []model.Category, cfg Config) (Model, error) {
	preview, err := session.Preview()
	if err != nil {
		return Model{}, fmt.Errorf("failed to load preview: %w", err)
	}

	known := make(map[string]bool, len(categories))
	for _, c := range categories {
		known[c.ID] = true
	}

	input := textinput.New()
	input.Placeholder = "category id"
	input.CharLimit = 64
	input.ShowSuggestions = true
	suggestions := make([]string, 0, len(categories))
	for _, c := range categories {
		suggestions = append(suggestions, c.ID)
	}
	sort.Strings(suggestions)
	input.SetSuggestions(suggestions)

	return Model{
		session: session,
		preview: *preview,
		known:   known,
		keymap:  DefaultKeyMap(),
		help:    help.New(),
		input:   input,
		theme:   cfg.Theme,
		width:   cfg.Width,
		height:  cfg.Height,
	}, nil
}

// Outcome reports how the screen was left.
func (m Model) Outcome() Outcome {
	return m.outcome
}

// Preview returns the preview as last shown.
func (m Model) Preview() importer.Preview {
	return m.preview
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	return nil
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.help.Width = msg.Width
		m.clampOffset()
		return m, nil

	case tea.KeyMsg:
		if key.Matches(msg, m.keymap.ForceQuit) {
			return m.quit(OutcomeCancelled)
		}
		if m.editing {
			return m.updateEditing(msg)
		}
		return m.updateBrowsing(msg)
	}
	return m, nil
}

func (m Model) updateBrowsing(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	m.err = nil
	switch {
	case key.Matches(msg, m.keymap.Up):
		m.moveCursor(-1)
	case key.Matches(msg, m.keymap.Down):
		m.moveCursor(1)
	case key.Matches(msg, m.keymap.PageUp):
		m.moveCursor(-m.pageSize())
	case key.Matches(msg, m.keymap.PageDown):
		m.moveCursor(m.pageSize())
	case key.Matches(msg, m.keymap.Home):
		m.moveCursor(-len(m.preview.Transactions))
	case key.Matches(msg, m.keymap.End):
		m.moveCursor(len(m.preview.Transactions))

	case key.Matches(msg, m.keymap.ToggleSelect):
		if m.hasRows() {
			m.apply(m.session.ToggleSelection(m.cursor))
		}
	case key.Matches(msg, m.keymap.SelectAll):
		m.apply(m.session.SelectAll())
	case key.Matches(msg, m.keymap.DeselectDuplicates):
		m.apply(m.session.DeselectDuplicates())

	case key.Matches(msg, m.keymap.Override):
		if !m.hasRows() {
			return m, nil
		}
		m.editing = true
		m.input.SetValue(m.preview.Transactions[m.cursor].EffectiveCategoryID())
		m.input.CursorEnd()
		return m, m.input.Focus()
	case key.Matches(msg, m.keymap.ClearOverride):
		if m.hasRows() {
			m.apply(m.session.SetCategoryOverride(m.cursor, nil))
		}

	case key.Matches(msg, m.keymap.Confirm):
		if m.preview.SelectedCount() == 0 {
			m.err = fmt.Errorf("nothing selected: press a to select all or q to cancel")
			return m, nil
		}
		return m.quit(OutcomeConfirmed)
	case key.Matches(msg, m.keymap.Quit):
		return m.quit(OutcomeCancelled)
	case key.Matches(msg, m.keymap.ToggleHelp):
		m.help.ShowAll = !m.help.ShowAll
	}
	return m, nil
}

func (m Model) updateEditing(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyEsc:
		m.editing = false
		m.input.Blur()
		return m, nil
	case tea.KeyEnter:
		value := strings.TrimSpace(m.input.Value())
		m.editing = false
		m.input.Blur()
		if value == "" || value == m.suggested(m.cursor) {
			m.apply(m.session.SetCategoryOverride(m.cursor, nil))
			return m, nil
		}
		if !m.known[value] {
			m.err = fmt.Errorf("unknown category %q", value)
			return m, nil
		}
		m.apply(m.session.SetCategoryOverride(m.cursor, &value))
		return m, nil
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// suggested is the engine's category for row i.
func (m Model) suggested(i int) string {
	if c := m.preview.Transactions[i].Categorization; c != nil {
		return c.CategoryID
	}
	return ""
}

// apply records err or reloads the preview after a successful edit.
func (m *Model) apply(err error) {
	if err != nil {
		m.err = err
		return
	}
	preview, err := m.session.Preview()
	if err != nil {
		m.err = err
		return
	}
	m.preview = *preview
}

func (m Model) quit(outcome Outcome) (tea.Model, tea.Cmd) {
	m.outcome = outcome
	m.quitting = true
	return m, tea.Quit
}

func (m Model) hasRows() bool {
	return len(m.preview.Transactions) > 0
}

func (m *Model) moveCursor(delta int) {
	n := len(m.preview.Transactions)
	if n == 0 {
		return
	}
	m.cursor = min(max(m.cursor+delta, 0), n-1)
	m.clampOffset()
}

// pageSize is the number of table rows that fit on screen.
func (m Model) pageSize() int {
	// title, summary, header, status line and help
	return max(m.height-8, 3)
}

func (m *Model) clampOffset() {
	page := m.pageSize()
	if m.cursor < m.offset {
		m.offset = m.cursor
	}
	if m.cursor >= m.offset+page {
		m.offset = m.cursor - page + 1
	}
	m.offset = max(m.offset, 0)
}
