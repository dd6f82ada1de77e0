package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/Veraticus/spice-import/internal/common"
	"github.com/Veraticus/spice-import/internal/model"
)

const learnedColumns = `id, merchant_pattern, category_id, source, sample_count, confidence, created_at, last_used_at`

func scanLearned(row interface{ Scan(...any) error }) (model.LearnedMerchant, error) {
	var m model.LearnedMerchant
	var source string
	if err := row.Scan(&m.ID, &m.MerchantPattern, &m.CategoryID, &source, &m.SampleCount, &m.Confidence,
		&m.CreatedAt, &m.LastUsedAt); err != nil {
		return model.LearnedMerchant{}, err
	}
	m.Source = model.LearnedSource(source)
	return m, nil
}

// GetLearnedMerchant returns the mapping for an exact normalized pattern.
func (s *SQLiteStorage) GetLearnedMerchant(ctx context.Context, pattern string) (*model.LearnedMerchant, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(pattern, "pattern"); err != nil {
		return nil, err
	}

	m, err := scanLearned(s.db.QueryRowContext(ctx,
		`SELECT `+learnedColumns+` FROM learned_merchants WHERE merchant_pattern = ?`, pattern))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("learned merchant %q: %w", pattern, common.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query learned merchant: %w", err)
	}
	return &m, nil
}

// ListLearnedMerchants returns all mappings, longest pattern first so that the most specific
// pattern wins a containment match.
func (s *SQLiteStorage) ListLearnedMerchants(ctx context.Context) ([]model.LearnedMerchant, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+learnedColumns+`
		FROM learned_merchants
		ORDER BY length(merchant_pattern) DESC, merchant_pattern`)
	if err != nil {
		return nil, fmt.Errorf("failed to query learned merchants: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var merchants []model.LearnedMerchant
	for rows.Next() {
		m, err := scanLearned(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan learned merchant: %w", err)
		}
		merchants = append(merchants, m)
	}
	return merchants, rows.Err()
}

// SaveLearnedMerchant inserts or replaces the mapping for m.MerchantPattern.
func (s *SQLiteStorage) SaveLearnedMerchant(ctx context.Context, m *model.LearnedMerchant) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateLearnedMerchant(m); err != nil {
		return err
	}

	now := s.clock.Now()
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = now
	}
	if m.LastUsedAt.IsZero() {
		m.LastUsedAt = now
	}
	if m.Source == "" {
		m.Source = model.LearnedByUser
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO learned_merchants (`+learnedColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(merchant_pattern) DO UPDATE SET
			category_id = excluded.category_id,
			source = excluded.source,
			sample_count = excluded.sample_count,
			confidence = excluded.confidence,
			last_used_at = excluded.last_used_at`,
		m.ID, m.MerchantPattern, m.CategoryID, string(m.Source), m.SampleCount, m.Confidence, m.CreatedAt, m.LastUsedAt)
	if err != nil {
		return fmt.Errorf("failed to save learned merchant: %w", err)
	}
	return nil
}

// DeleteLearnedMerchant removes the mapping for a pattern.
func (s *SQLiteStorage) DeleteLearnedMerchant(ctx context.Context, pattern string) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, `DELETE FROM learned_merchants WHERE merchant_pattern = ?`, pattern)
	if err != nil {
		return fmt.Errorf("failed to delete learned merchant: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("learned merchant %q: %w", pattern, common.ErrNotFound)
	}
	return nil
}

// SaveCorrection appends a correction to the audit log.
func (s *SQLiteStorage) SaveCorrection(ctx context.Context, c *model.CategoryCorrection) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateCorrection(c); err != nil {
		return err
	}
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = s.clock.Now()
	}

	var original sql.NullString
	if c.OriginalCategoryID != nil {
		original = sql.NullString{String: *c.OriginalCategoryID, Valid: true}
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO category_corrections
			(id, transaction_id, original_category_id, corrected_category_id, merchant_name, merchant_normalized, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.TransactionID, original, c.CorrectedCategoryID, c.MerchantName, c.MerchantNormalized, c.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to save correction: %w", err)
	}
	return nil
}

// CountCorrections counts corrections of a normalized merchant to a category.
func (s *SQLiteStorage) CountCorrections(ctx context.Context, merchantNormalized, categoryID string) (int, error) {
	if err := validateContext(ctx); err != nil {
		return 0, err
	}
	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM category_corrections
		WHERE merchant_normalized = ? AND corrected_category_id = ?`, merchantNormalized, categoryID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count corrections: %w", err)
	}
	return count, nil
}
