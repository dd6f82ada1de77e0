package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/Veraticus/spice-import/internal/model"
)

// ExpectedSchemaVersion is the latest schema version that the application expects.
// If the database cannot be migrated to this version, it's a fatal error.
const ExpectedSchemaVersion = 4

// Migration represents a database schema migration.
type Migration struct {
	Up          func(*sql.Tx) error
	Description string
	Version     int
}

func execAll(tx *sql.Tx, queries []string) error {
	for _, query := range queries {
		if _, err := tx.Exec(query); err != nil {
			return fmt.Errorf("failed to execute query: %w", err)
		}
	}
	return nil
}

var migrations = []Migration{
	{
		Version:     1,
		Description: "Initial schema",
		Up: func(tx *sql.Tx) error {
			return execAll(tx, []string{
				`CREATE TABLE IF NOT EXISTS categories (
					id TEXT PRIMARY KEY,
					name TEXT NOT NULL,
					description TEXT NOT NULL DEFAULT '',
					type TEXT NOT NULL DEFAULT 'expense',
					is_active INTEGER NOT NULL DEFAULT 1,
					created_at DATETIME NOT NULL
				)`,

				`CREATE TABLE IF NOT EXISTS transactions (
					id TEXT PRIMARY KEY,
					account_id TEXT NOT NULL,
					hash TEXT NOT NULL,
					date DATETIME NOT NULL,
					description TEXT NOT NULL,
					amount_minor INTEGER NOT NULL,
					currency TEXT NOT NULL DEFAULT '',
					category_id TEXT,
					category_source TEXT,
					confidence REAL NOT NULL DEFAULT 0,
					created_at DATETIME NOT NULL
				)`,
				`CREATE INDEX idx_transactions_account_date ON transactions(account_id, date)`,
				`CREATE INDEX idx_transactions_hash ON transactions(hash)`,
				`CREATE INDEX idx_transactions_category ON transactions(category_id)`,
			})
		},
	},
	{
		Version:     2,
		Description: "Learned merchants and correction audit log",
		Up: func(tx *sql.Tx) error {
			return execAll(tx, []string{
				`CREATE TABLE IF NOT EXISTS learned_merchants (
					id TEXT PRIMARY KEY,
					merchant_pattern TEXT NOT NULL UNIQUE,
					category_id TEXT NOT NULL,
					source TEXT NOT NULL DEFAULT 'USER',
					sample_count INTEGER NOT NULL DEFAULT 1,
					confidence REAL NOT NULL,
					created_at DATETIME NOT NULL,
					last_used_at DATETIME NOT NULL
				)`,

				`CREATE TABLE IF NOT EXISTS category_corrections (
					id TEXT PRIMARY KEY,
					transaction_id TEXT NOT NULL,
					original_category_id TEXT,
					corrected_category_id TEXT NOT NULL,
					merchant_name TEXT NOT NULL DEFAULT '',
					merchant_normalized TEXT NOT NULL DEFAULT '',
					created_at DATETIME NOT NULL
				)`,
				`CREATE INDEX idx_corrections_merchant ON category_corrections(merchant_normalized, corrected_category_id)`,
			})
		},
	},
	{
		Version:     3,
		Description: "Installed on-device models",
		Up: func(tx *sql.Tx) error {
			return execAll(tx, []string{
				`CREATE TABLE IF NOT EXISTS installed_models (
					id TEXT PRIMARY KEY,
					name TEXT NOT NULL,
					path TEXT NOT NULL,
					sha256 TEXT NOT NULL DEFAULT '',
					size_bytes INTEGER NOT NULL DEFAULT 0,
					status TEXT NOT NULL,
					selected INTEGER NOT NULL DEFAULT 0,
					installed_at DATETIME NOT NULL
				)`,
			})
		},
	},
	{
		Version:     4,
		Description: "Seed default categories",
		Up: func(tx *sql.Tx) error {
			stmt, err := tx.Prepare(`
				INSERT OR IGNORE INTO categories (id, name, description, type, is_active, created_at)
				VALUES (?, ?, ?, ?, 1, ?)`)
			if err != nil {
				return fmt.Errorf("failed to prepare statement: %w", err)
			}
			defer func() { _ = stmt.Close() }()

			now := time.Now()
			for _, c := range model.DefaultCategories() {
				if _, err := stmt.Exec(c.ID, c.Name, c.Description, string(c.Type), now); err != nil {
					return fmt.Errorf("failed to seed category %s: %w", c.ID, err)
				}
			}
			slog.Info("Seeded default categories", "count", len(model.DefaultCategories()))
			return nil
		},
	},
}

// Migrate applies all pending database migrations.
func (s *SQLiteStorage) Migrate(ctx context.Context) error {
	if err := validateContext(ctx); err != nil {
		return err
	}

	var currentVersion int
	err := s.db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&currentVersion)
	if err != nil {
		return fmt.Errorf("failed to get schema version: %w", err)
	}

	for _, migration := range migrations {
		if migration.Version <= currentVersion {
			continue
		}

		tx, txErr := s.db.BeginTx(ctx, nil)
		if txErr != nil {
			return fmt.Errorf("failed to begin transaction: %w", txErr)
		}

		if upErr := migration.Up(tx); upErr != nil {
			_ = tx.Rollback()
			return fmt.Errorf("migration %d failed: %w", migration.Version, upErr)
		}

		if _, execErr := tx.Exec(fmt.Sprintf("PRAGMA user_version = %d", migration.Version)); execErr != nil {
			_ = tx.Rollback()
			return fmt.Errorf("failed to update schema version: %w", execErr)
		}

		if commitErr := tx.Commit(); commitErr != nil {
			return fmt.Errorf("failed to commit migration %d: %w", migration.Version, commitErr)
		}

		s.logger.Info("Applied migration",
			"version", migration.Version,
			"description", migration.Description)
	}

	var finalVersion int
	err = s.db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&finalVersion)
	if err != nil {
		return fmt.Errorf("failed to verify final schema version: %w", err)
	}

	if finalVersion != ExpectedSchemaVersion {
		return fmt.Errorf("database schema version mismatch: expected %d, got %d", ExpectedSchemaVersion, finalVersion)
	}

	return nil
}

// SchemaVersion returns the current PRAGMA user_version.
func (s *SQLiteStorage) SchemaVersion(ctx context.Context) (int, error) {
	var v int
	if err := s.db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&v); err != nil {
		return 0, fmt.Errorf("failed to get schema version: %w", err)
	}
	return v, nil
}
