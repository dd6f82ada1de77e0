package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/Veraticus/spice-import/internal/common"
	"github.com/Veraticus/spice-import/internal/model"
)

const modelColumns = `id, name, path, sha256, size_bytes, status, selected, installed_at`

func scanModel(row interface{ Scan(...any) error }) (model.InstalledModel, error) {
	var m model.InstalledModel
	var status string
	if err := row.Scan(&m.ID, &m.Name, &m.Path, &m.SHA256, &m.SizeBytes, &status, &m.Selected, &m.InstalledAt); err != nil {
		return model.InstalledModel{}, err
	}
	m.Status = model.ModelStatus(status)
	return m, nil
}

// ListInstalledModels returns every known model ordered by name.
func (s *SQLiteStorage) ListInstalledModels(ctx context.Context) ([]model.InstalledModel, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, `SELECT `+modelColumns+` FROM installed_models ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("failed to query installed models: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var models []model.InstalledModel
	for rows.Next() {
		m, err := scanModel(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan installed model: %w", err)
		}
		models = append(models, m)
	}
	return models, rows.Err()
}

// GetInstalledModel returns one model by ID.
func (s *SQLiteStorage) GetInstalledModel(ctx context.Context, id string) (*model.InstalledModel, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	m, err := scanModel(s.db.QueryRowContext(ctx, `SELECT `+modelColumns+` FROM installed_models WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("model %s: %w", id, common.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query installed model: %w", err)
	}
	return &m, nil
}

// GetSelectedModel returns the model chosen for on-device inference.
func (s *SQLiteStorage) GetSelectedModel(ctx context.Context) (*model.InstalledModel, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	m, err := scanModel(s.db.QueryRowContext(ctx, `SELECT `+modelColumns+` FROM installed_models WHERE selected = 1 LIMIT 1`))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("selected model: %w", common.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query selected model: %w", err)
	}
	return &m, nil
}

// SaveInstalledModel inserts or updates a model row. The selection flag is managed by SelectModel.
func (s *SQLiteStorage) SaveInstalledModel(ctx context.Context, m *model.InstalledModel) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateInstalledModel(m); err != nil {
		return err
	}
	if m.InstalledAt.IsZero() {
		m.InstalledAt = s.clock.Now()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO installed_models (`+modelColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, 0, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			path = excluded.path,
			sha256 = excluded.sha256,
			size_bytes = excluded.size_bytes,
			status = excluded.status`,
		m.ID, m.Name, m.Path, m.SHA256, m.SizeBytes, string(m.Status), m.InstalledAt)
	if err != nil {
		return fmt.Errorf("failed to save installed model: %w", err)
	}
	return nil
}

// SelectModel marks one model as selected and clears the flag on all others.
func (s *SQLiteStorage) SelectModel(ctx context.Context, id string) error {
	return s.RunInTx(ctx, func(tx *Tx) error {
		var found int
		if err := tx.tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM installed_models WHERE id = ?`, id).Scan(&found); err != nil {
			return fmt.Errorf("failed to verify model: %w", err)
		}
		if found == 0 {
			return fmt.Errorf("model %s: %w", id, common.ErrNotFound)
		}
		if _, err := tx.tx.ExecContext(ctx, `UPDATE installed_models SET selected = (id = ?)`, id); err != nil {
			return fmt.Errorf("failed to select model: %w", err)
		}
		return nil
	})
}

// DeleteInstalledModel removes a model row.
func (s *SQLiteStorage) DeleteInstalledModel(ctx context.Context, id string) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, `DELETE FROM installed_models WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete installed model: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("model %s: %w", id, common.ErrNotFound)
	}
	return nil
}
