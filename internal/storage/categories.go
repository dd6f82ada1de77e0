package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/Veraticus/spice-import/internal/common"
	"github.com/Veraticus/spice-import/internal/model"
)

const categoryColumns = `id, name, description, type, is_active, created_at`

func scanCategory(row interface{ Scan(...any) error }) (model.Category, error) {
	var cat model.Category
	var catType string
	if err := row.Scan(&cat.ID, &cat.Name, &cat.Description, &catType, &cat.IsActive, &cat.CreatedAt); err != nil {
		return model.Category{}, err
	}
	cat.Type = model.CategoryType(catType)
	return cat, nil
}

// GetCategories returns all active categories.
func (s *SQLiteStorage) GetCategories(ctx context.Context) ([]model.Category, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+categoryColumns+`
		FROM categories
		WHERE is_active = 1
		ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("failed to query categories: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var categories []model.Category
	for rows.Next() {
		cat, err := scanCategory(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan category: %w", err)
		}
		categories = append(categories, cat)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating categories: %w", err)
	}

	s.logger.Debug("retrieved categories", "count", len(categories))
	return categories, nil
}

// GetCategory returns a category by ID, active or not.
func (s *SQLiteStorage) GetCategory(ctx context.Context, id string) (*model.Category, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(id, "id"); err != nil {
		return nil, err
	}
	return s.getCategory(ctx, s.db, id)
}

func (s *SQLiteStorage) getCategory(ctx context.Context, q queryable, id string) (*model.Category, error) {
	cat, err := scanCategory(q.QueryRowContext(ctx, `SELECT `+categoryColumns+` FROM categories WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("category %s: %w", id, common.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query category: %w", err)
	}
	return &cat, nil
}

// CreateCategory creates a category, or reactivates it when a row with the same ID exists.
func (s *SQLiteStorage) CreateCategory(ctx context.Context, cat model.Category) (*model.Category, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	return s.createCategory(ctx, s.db, cat)
}

func (s *SQLiteStorage) createCategory(ctx context.Context, q queryable, cat model.Category) (*model.Category, error) {
	if err := validateString(cat.ID, "category id"); err != nil {
		return nil, err
	}
	if cat.Name == "" {
		cat.Name = cat.ID
	}
	if cat.Type == "" {
		cat.Type = model.CategoryTypeExpense
	}

	existing, err := s.getCategory(ctx, q, cat.ID)
	switch {
	case err == nil:
		if !existing.IsActive {
			if _, err := q.ExecContext(ctx, `UPDATE categories SET is_active = 1 WHERE id = ?`, existing.ID); err != nil {
				return nil, fmt.Errorf("failed to reactivate category: %w", err)
			}
			existing.IsActive = true
			s.logger.Info("reactivated existing category", "id", existing.ID)
		}
		return existing, nil
	case !errors.Is(err, common.ErrNotFound):
		return nil, err
	}

	cat.CreatedAt = s.clock.Now()
	cat.IsActive = true
	if _, err := q.ExecContext(ctx, `
		INSERT INTO categories (id, name, description, type, is_active, created_at)
		VALUES (?, ?, ?, ?, 1, ?)`,
		cat.ID, cat.Name, cat.Description, string(cat.Type), cat.CreatedAt); err != nil {
		return nil, fmt.Errorf("failed to create category: %w", err)
	}

	s.logger.Info("created new category", "id", cat.ID, "name", cat.Name)
	return &cat, nil
}

// EnsureExists guarantees that categoryID names an active category and returns a usable ID.
// Missing categories are created from the built-in metadata; unknown IDs resolve to "other",
// which is itself created on demand.
func (s *SQLiteStorage) EnsureExists(ctx context.Context, categoryID string) (string, error) {
	if err := validateContext(ctx); err != nil {
		return "", err
	}
	return s.ensureExists(ctx, s.db, categoryID)
}

func (s *SQLiteStorage) ensureExists(ctx context.Context, q queryable, categoryID string) (string, error) {
	if categoryID != "" {
		if cat, err := s.getCategory(ctx, q, categoryID); err == nil {
			if !cat.IsActive {
				if _, err := s.createCategory(ctx, q, *cat); err != nil {
					return "", err
				}
			}
			return cat.ID, nil
		} else if !errors.Is(err, common.ErrNotFound) {
			return "", err
		}

		if known, ok := knownCategory(categoryID); ok {
			cat, err := s.createCategory(ctx, q, known)
			if err != nil {
				return "", err
			}
			return cat.ID, nil
		}
		s.logger.Warn("unknown category, falling back", "category", categoryID, "fallback", model.OtherCategoryID)
	}

	other, _ := knownCategory(model.OtherCategoryID)
	cat, err := s.createCategory(ctx, q, other)
	if err != nil {
		return "", err
	}
	return cat.ID, nil
}

func knownCategory(id string) (model.Category, bool) {
	for _, c := range model.DefaultCategories() {
		if c.ID == id {
			return c, true
		}
	}
	return model.Category{}, false
}

// DeactivateCategory hides a category from listings. The catch-all category cannot be removed.
func (s *SQLiteStorage) DeactivateCategory(ctx context.Context, id string) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if id == model.OtherCategoryID {
		return fmt.Errorf("category %s cannot be deactivated", id)
	}
	res, err := s.db.ExecContext(ctx, `UPDATE categories SET is_active = 0 WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to deactivate category: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("category %s: %w", id, common.ErrNotFound)
	}
	return nil
}

// EnsureExists is the transactional variant of SQLiteStorage.EnsureExists.
func (t *Tx) EnsureExists(ctx context.Context, categoryID string) (string, error) {
	return t.s.ensureExists(ctx, t.tx, categoryID)
}
