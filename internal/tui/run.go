package tui

import (
	"context"
	"errors"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/Veraticus/spice-import/internal/model"
)

// RunReview shows the review screen for the session's preview and returns how the user left it.
// Edits are applied to the session as they are made; saving is left to the caller.
func RunReview(ctx context.Context, session Session, categories []model.Category, opts ...Option) (Outcome, error) {
	if session == nil {
		return OutcomeCancelled, errors.New("session is required")
	}

	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	m, err := NewModel(session, categories, cfg)
	if err != nil {
		return OutcomeCancelled, err
	}

	program := tea.NewProgram(m, tea.WithContext(ctx), tea.WithAltScreen())
	final, err := program.Run()
	if err != nil {
		if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
			return OutcomeCancelled, ctx.Err()
		}
		return OutcomeCancelled, fmt.Errorf("review screen failed: %w", err)
	}

	result, ok := final.(Model)
	if !ok {
		return OutcomeCancelled, fmt.Errorf("unexpected model type %T", final)
	}
	return result.Outcome(), nil
}
