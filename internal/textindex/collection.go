// Package textindex manages the full-text recipe collection. It owns its own
// FTS5 tables inside the shared SQLite database and exposes a collection
// style API: schema management, bulk import, weighted search, health.
package textindex

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/intellicook/recipe-search/pkg/types"
)

var (
	// ErrSchemaDrift is returned when the live collection schema no longer
	// matches the expected one and recreation was not permitted
	ErrSchemaDrift = errors.New("text collection schema drift")
)

// Field describes one declared collection field
type Field struct {
	Name string
	Type string
}

// ExpectedFields is the schema this service requires of the collection
var ExpectedFields = []Field{
	{Name: "title", Type: "string"},
	{Name: "description", Type: "string"},
	{Name: "ingredients", Type: "string[]"},
}

// Document is one recipe as the collection stores it
type Document struct {
	RecipeID    int64
	Title       string
	Description string
	Ingredients []string
}

// Hit is one search match with its relevance score and field highlights.
// Lower score is a better match (FTS5 bm25 convention).
type Hit struct {
	RecipeID   int64
	Score      float64
	Highlights []types.Highlight
}

// Options configures collection behavior
type Options struct {
	// RecreateOnDrift drops and rebuilds the collection when the declared
	// schema no longer matches ExpectedFields. All imported documents are
	// lost and must be re-imported by the caller.
	RecreateOnDrift bool
}

// Collection is the managed text search collection over recipes
type Collection struct {
	db     *sql.DB
	logger *zap.Logger
	opts   Options
}

// NewCollection creates a collection handle. EnsureSchema must be called
// before searching or importing.
func NewCollection(db *sql.DB, logger *zap.Logger, opts Options) *Collection {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Collection{db: db, logger: logger, opts: opts}
}

const createCollectionSQL = `
CREATE TABLE IF NOT EXISTS recipe_collection_schema (
    field TEXT PRIMARY KEY,
    type TEXT NOT NULL
);

CREATE VIRTUAL TABLE IF NOT EXISTS recipe_collection USING fts5(
    recipe_id UNINDEXED,
    title,
    description,
    ingredients
);
`

const dropCollectionSQL = `
DROP TABLE IF EXISTS recipe_collection;
DROP TABLE IF EXISTS recipe_collection_schema;
`

// EnsureSchema creates the collection if missing and verifies the declared
// field set against ExpectedFields. On drift it either recreates the
// collection (losing its contents) or fails, depending on Options.
func (c *Collection) EnsureSchema(ctx context.Context) error {
	live, err := c.liveFields(ctx)
	if err != nil {
		return err
	}

	if live == nil {
		c.logger.Info("creating text collection")
		return c.create(ctx)
	}

	if fieldsEqual(live, ExpectedFields) {
		return nil
	}

	if !c.opts.RecreateOnDrift {
		return fmt.Errorf("%w: have %v, want %v", ErrSchemaDrift, live, ExpectedFields)
	}

	c.logger.Warn("text collection schema drifted, dropping and recreating; all imported documents are lost",
		zap.Any("have", live),
		zap.Any("want", ExpectedFields))

	if _, err := c.db.ExecContext(ctx, dropCollectionSQL); err != nil {
		return fmt.Errorf("failed to drop drifted collection: %w", err)
	}
	return c.create(ctx)
}

// liveFields returns the declared schema, or nil when the collection does
// not exist yet.
func (c *Collection) liveFields(ctx context.Context) ([]Field, error) {
	var name string
	err := c.db.QueryRowContext(ctx,
		"SELECT name FROM sqlite_master WHERE type='table' AND name='recipe_collection_schema'").Scan(&name)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to check collection schema table: %w", err)
	}

	rows, err := c.db.QueryContext(ctx, "SELECT field, type FROM recipe_collection_schema ORDER BY field")
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	fields := make([]Field, 0, len(ExpectedFields))
	for rows.Next() {
		var f Field
		if err := rows.Scan(&f.Name, &f.Type); err != nil {
			return nil, err
		}
		fields = append(fields, f)
	}
	return fields, rows.Err()
}

func (c *Collection) create(ctx context.Context) error {
	if _, err := c.db.ExecContext(ctx, createCollectionSQL); err != nil {
		return fmt.Errorf("failed to create collection: %w", err)
	}
	for _, f := range ExpectedFields {
		_, err := c.db.ExecContext(ctx,
			"INSERT INTO recipe_collection_schema (field, type) VALUES (?, ?)", f.Name, f.Type)
		if err != nil {
			return fmt.Errorf("failed to record collection field %s: %w", f.Name, err)
		}
	}
	return nil
}

// fieldsEqual compares field name+type sets, ignoring order
func fieldsEqual(a, b []Field) bool {
	if len(a) != len(b) {
		return false
	}
	set := make(map[Field]bool, len(a))
	for _, f := range a {
		set[f] = true
	}
	for _, f := range b {
		if !set[f] {
			return false
		}
	}
	return true
}

// Execer runs statements against the collection's tables. Both *sql.DB and
// *sql.Tx satisfy it.
type Execer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

// Import adds documents to the collection in one transaction. Existing
// entries for the same recipe id are replaced.
func (c *Collection) Import(ctx context.Context, docs []Document) error {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := c.ImportTx(ctx, tx, docs); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

// ImportTx imports documents through a transaction the caller owns, so the
// import can commit or roll back together with other writes to the shared
// database. The caller commits.
func (c *Collection) ImportTx(ctx context.Context, exec Execer, docs []Document) error {
	for _, doc := range docs {
		if _, err := exec.ExecContext(ctx,
			"DELETE FROM recipe_collection WHERE recipe_id = ?", doc.RecipeID); err != nil {
			return fmt.Errorf("failed to replace document %d: %w", doc.RecipeID, err)
		}
		ingredients, err := json.Marshal(doc.Ingredients)
		if err != nil {
			return fmt.Errorf("failed to marshal ingredients for %d: %w", doc.RecipeID, err)
		}
		_, err = exec.ExecContext(ctx, `
			INSERT INTO recipe_collection (recipe_id, title, description, ingredients)
			VALUES (?, ?, ?, ?)
		`, doc.RecipeID, doc.Title, doc.Description, string(ingredients))
		if err != nil {
			return fmt.Errorf("failed to import document %d: %w", doc.RecipeID, err)
		}
	}
	return nil
}

// DeleteAll removes every document but keeps the schema
func (c *Collection) DeleteAll(ctx context.Context) error {
	_, err := c.db.ExecContext(ctx, "DELETE FROM recipe_collection")
	if err != nil {
		return fmt.Errorf("failed to clear collection: %w", err)
	}
	return nil
}

// Count returns the number of documents in the collection
func (c *Collection) Count(ctx context.Context) (int, error) {
	var count int
	err := c.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM recipe_collection").Scan(&count)
	if err != nil {
		return 0, err
	}
	return count, nil
}

// Health probes the collection with a trivial query
func (c *Collection) Health(ctx context.Context) error {
	var one int
	err := c.db.QueryRowContext(ctx, "SELECT 1 FROM recipe_collection LIMIT 1").Scan(&one)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %v", types.ErrBackendUnavailable, err)
	}
	return nil
}

// documentIngredients unmarshals the stored ingredient list
func documentIngredients(raw string) []string {
	var out []string
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		// Stored by Import, should never happen
		return strings.Fields(raw)
	}
	return out
}
