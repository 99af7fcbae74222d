package storage

import (
	"context"
	"database/sql"
	"time"

	"github.com/intellicook/recipe-search/pkg/types"
)

// Storage defines the interface for persisting and querying recipe data
type Storage interface {
	// Recipe operations
	AddRecipes(ctx context.Context, recipes []*types.Recipe) error
	GetRecipe(ctx context.Context, id int64) (*types.Recipe, error)
	GetRecipes(ctx context.Context, ids []int64) ([]*types.Recipe, error)
	ListRecipes(ctx context.Context, limit int) ([]*types.Recipe, error)
	CountRecipes(ctx context.Context) (int, error)
	DeleteAllRecipes(ctx context.Context) error

	// User profile operations
	UpsertProfile(ctx context.Context, profile *types.UserProfile) error
	GetProfile(ctx context.Context, username string) (*types.UserProfile, error)

	// Index metadata operations
	SetIndexMeta(ctx context.Context, meta *IndexMeta) error
	GetIndexMeta(ctx context.Context) (*IndexMeta, error)
	DeleteIndexMeta(ctx context.Context) error

	// Database operations
	Ping(ctx context.Context) error
	Close() error
	BeginTx(ctx context.Context) (Tx, error)
}

// Tx represents a database transaction
type Tx interface {
	Commit() error
	Rollback() error
	// SQLTx exposes the underlying transaction for components that manage
	// their own tables in the same database, like the text collection.
	SQLTx() *sql.Tx
	Storage // Embed Storage interface for transaction operations
}

// IndexMeta records the single active vector index. The schema enforces at
// most one row; replacing it is a delete plus insert in one transaction.
type IndexMeta struct {
	Path        string
	RecipeCount int
	Dimension   int
	Model       string
	BuiltAt     time.Time
}
