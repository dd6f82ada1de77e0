// Package service defines the aggregate persistence contract shared by the CLI and tests.
package service

import (
	"context"

	"github.com/Veraticus/spice-import/internal/model"
)

// TransactionStore reads account history and writes confirmed transactions.
type TransactionStore interface {
	GetTransactionsByAccount(ctx context.Context, accountID string) ([]model.Transaction, error)
	GetTransactionByID(ctx context.Context, id string) (*model.Transaction, error)
	CreateTransaction(ctx context.Context, txn *model.Transaction) error
	UpdateTransactionCategory(ctx context.Context, id, categoryID string, source model.CategorizationSource, confidence float64) error
	GetTransactionCount(ctx context.Context) (int, error)
}

// CategoryStore manages the category taxonomy.
type CategoryStore interface {
	GetCategories(ctx context.Context) ([]model.Category, error)
	GetCategory(ctx context.Context, id string) (*model.Category, error)
	CreateCategory(ctx context.Context, cat model.Category) (*model.Category, error)
	EnsureExists(ctx context.Context, categoryID string) (string, error)
}

// LearningStore holds learned merchants and the correction audit log.
type LearningStore interface {
	GetLearnedMerchant(ctx context.Context, pattern string) (*model.LearnedMerchant, error)
	ListLearnedMerchants(ctx context.Context) ([]model.LearnedMerchant, error)
	SaveLearnedMerchant(ctx context.Context, m *model.LearnedMerchant) error
	SaveCorrection(ctx context.Context, c *model.CategoryCorrection) error
	CountCorrections(ctx context.Context, merchantNormalized, categoryID string) (int, error)
}

// ModelStore persists installed on-device models.
type ModelStore interface {
	ListInstalledModels(ctx context.Context) ([]model.InstalledModel, error)
	GetInstalledModel(ctx context.Context, id string) (*model.InstalledModel, error)
	GetSelectedModel(ctx context.Context) (*model.InstalledModel, error)
	SaveInstalledModel(ctx context.Context, m *model.InstalledModel) error
	SelectModel(ctx context.Context, id string) error
	DeleteInstalledModel(ctx context.Context, id string) error
}

// Storage defines the contract for our persistence layer.
type Storage interface {
	TransactionStore
	CategoryStore
	LearningStore
	ModelStore

	Migrate(ctx context.Context) error
	Close() error
}
