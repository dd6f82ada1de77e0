// Package testutil provides shared test fixtures backed by an in-memory database.
package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/Veraticus/spice-import/internal/common"
	"github.com/Veraticus/spice-import/internal/model"
	"github.com/Veraticus/spice-import/internal/storage"
)

// TestDB wraps a migrated in-memory store.
type TestDB struct {
	Storage *storage.SQLiteStorage
	t       *testing.T
}

// SetupTestDB creates a new in-memory database with the default categories. It automatically
// handles migrations and cleanup.
func SetupTestDB(t *testing.T) *TestDB {
	t.Helper()
	return SetupTestDBWithClock(t, common.SystemClock{})
}

// SetupTestDBWithClock is SetupTestDB with a pinned clock for created_at columns.
func SetupTestDBWithClock(t *testing.T, clock common.Clock) *TestDB {
	t.Helper()

	store, err := storage.NewSQLiteStorage(":memory:", storage.WithClock(clock))
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}

	if err := store.Migrate(context.Background()); err != nil {
		t.Fatalf("failed to run migrations: %v", err)
	}

	t.Cleanup(func() {
		_ = store.Close()
	})

	return &TestDB{Storage: store, t: t}
}

// SeedTransactions stores the given rows for an account and returns them with IDs assigned.
func (db *TestDB) SeedTransactions(accountID string, txns ...model.Transaction) []model.Transaction {
	db.t.Helper()
	out := make([]model.Transaction, 0, len(txns))
	for _, txn := range txns {
		txn.AccountID = accountID
		if err := db.Storage.CreateTransaction(context.Background(), &txn); err != nil {
			db.t.Fatalf("failed to seed transaction %q: %v", txn.Description, err)
		}
		out = append(out, txn)
	}
	return out
}

// Day returns midnight UTC of the given date.
func Day(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}
