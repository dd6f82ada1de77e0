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

const transactionColumns = `id, account_id, hash, date, description, amount_minor, currency,
	category_id, category_source, confidence, created_at`

func scanTransaction(row interface{ Scan(...any) error }) (model.Transaction, error) {
	var txn model.Transaction
	var categoryID, source sql.NullString
	if err := row.Scan(&txn.ID, &txn.AccountID, &txn.Hash, &txn.Date, &txn.Description, &txn.AmountMinor,
		&txn.Currency, &categoryID, &source, &txn.Confidence, &txn.CreatedAt); err != nil {
		return model.Transaction{}, err
	}
	txn.CategoryID = categoryID.String
	if source.Valid && source.String != "" {
		parsed, err := model.ParseSource(source.String)
		if err != nil {
			return model.Transaction{}, fmt.Errorf("transaction %s: %w", txn.ID, err)
		}
		txn.CategorySource = parsed
	}
	return txn, nil
}

// CreateTransaction stores a transaction, assigning an ID, hash and creation time when missing.
func (s *SQLiteStorage) CreateTransaction(ctx context.Context, txn *model.Transaction) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	return s.createTransaction(ctx, s.db, txn)
}

func (s *SQLiteStorage) createTransaction(ctx context.Context, q queryable, txn *model.Transaction) error {
	if err := validateTransaction(txn); err != nil {
		return err
	}
	if txn.ID == "" {
		txn.ID = uuid.NewString()
	}
	if txn.Hash == "" {
		txn.Hash = txn.GenerateHash()
	}
	if txn.CreatedAt.IsZero() {
		txn.CreatedAt = s.clock.Now()
	}

	var categoryID, source sql.NullString
	if txn.CategoryID != "" {
		categoryID = sql.NullString{String: txn.CategoryID, Valid: true}
		source = sql.NullString{String: txn.CategorySource.String(), Valid: true}
	}

	_, err := q.ExecContext(ctx, `
		INSERT INTO transactions (`+transactionColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		txn.ID, txn.AccountID, txn.Hash, txn.Date, txn.Description, txn.AmountMinor, txn.Currency,
		categoryID, source, txn.Confidence, txn.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert transaction %s: %w", txn.ID, err)
	}
	return nil
}

// CreateTransaction is the transactional variant of SQLiteStorage.CreateTransaction.
func (t *Tx) CreateTransaction(ctx context.Context, txn *model.Transaction) error {
	return t.s.createTransaction(ctx, t.tx, txn)
}

// GetTransactionsByAccount returns every transaction of an account, oldest first.
func (s *SQLiteStorage) GetTransactionsByAccount(ctx context.Context, accountID string) ([]model.Transaction, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(accountID, "accountID"); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+transactionColumns+`
		FROM transactions
		WHERE account_id = ?
		ORDER BY date ASC, created_at ASC`, accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to query transactions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var transactions []model.Transaction
	for rows.Next() {
		txn, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		transactions = append(transactions, txn)
	}
	return transactions, rows.Err()
}

// GetTransactionByID returns a single transaction.
func (s *SQLiteStorage) GetTransactionByID(ctx context.Context, id string) (*model.Transaction, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(id, "id"); err != nil {
		return nil, err
	}

	txn, err := scanTransaction(s.db.QueryRowContext(ctx, `SELECT `+transactionColumns+` FROM transactions WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("transaction %s: %w", id, common.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query transaction: %w", err)
	}
	return &txn, nil
}

// UpdateTransactionCategory reassigns a stored transaction's category.
func (s *SQLiteStorage) UpdateTransactionCategory(ctx context.Context, id, categoryID string, source model.CategorizationSource, confidence float64) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateString(categoryID, "categoryID"); err != nil {
		return err
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE transactions SET category_id = ?, category_source = ?, confidence = ?
		WHERE id = ?`, categoryID, source.String(), confidence, id)
	if err != nil {
		return fmt.Errorf("failed to update transaction category: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("transaction %s: %w", id, common.ErrNotFound)
	}
	return nil
}

// GetTransactionCount returns the total number of stored transactions.
func (s *SQLiteStorage) GetTransactionCount(ctx context.Context) (int, error) {
	if err := validateContext(ctx); err != nil {
		return 0, err
	}
	var count int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM transactions`).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count transactions: %w", err)
	}
	return count, nil
}
