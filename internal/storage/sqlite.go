package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/intellicook/recipe-search/pkg/types"
)

// SQLiteStorage implements the Storage interface using SQLite
type SQLiteStorage struct {
	db *sql.DB
}

// openDatabase opens a SQLite database with appropriate settings
func openDatabase(dbPath string) (*sql.DB, error) {
	db, err := sql.Open(DriverName, dbPath)
	if err != nil {
		return nil, err
	}

	// Enable WAL mode for better concurrency
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	// SQLite benefits from a single writer
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	return db, nil
}

// NewSQLiteStorage creates a new SQLite storage instance
func NewSQLiteStorage(dbPath string) (*SQLiteStorage, error) {
	db, err := openDatabase(dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := ApplyMigrations(context.Background(), db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to apply migrations: %w", err)
	}

	return &SQLiteStorage{db: db}, nil
}

// DB exposes the underlying handle for components that manage their own
// tables in the same database, like the text collection.
func (s *SQLiteStorage) DB() *sql.DB {
	return s.db
}

// Close closes the database connection
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

// Ping verifies the database is reachable
func (s *SQLiteStorage) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// BeginTx starts a new transaction
func (s *SQLiteStorage) BeginTx(ctx context.Context) (Tx, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	return &sqliteTx{tx: tx, storage: s}, nil
}

// querier is an interface that both *sql.DB and *sql.Tx implement
type querier interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// sqliteTx wraps a SQL transaction
type sqliteTx struct {
	tx      *sql.Tx
	storage *SQLiteStorage
}

func (t *sqliteTx) Commit() error {
	return t.tx.Commit()
}

func (t *sqliteTx) Rollback() error {
	return t.tx.Rollback()
}

// querier returns the transaction querier
func (t *sqliteTx) querier() querier {
	return t.tx
}

// SQLTx returns the underlying transaction
func (t *sqliteTx) SQLTx() *sql.Tx {
	return t.tx
}

// querier returns the DB querier
func (s *SQLiteStorage) querier() querier {
	return s.db
}

// Recipe operations

const recipeColumns = `id, title, description, ingredients, directions, tips, utensils,
       nutrition_calories, nutrition_fat, nutrition_protein, nutrition_carbs`

// addRecipesWithQuerier is the internal implementation that uses a querier
func (s *SQLiteStorage) addRecipesWithQuerier(ctx context.Context, q querier, recipes []*types.Recipe) error {
	query := `
		INSERT INTO recipes (
			title, description, ingredients, directions, tips, utensils,
			nutrition_calories, nutrition_fat, nutrition_protein, nutrition_carbs,
			created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	now := time.Now()
	for _, recipe := range recipes {
		ingredients, err := json.Marshal(recipe.Ingredients)
		if err != nil {
			return fmt.Errorf("failed to marshal ingredients: %w", err)
		}
		directions, err := json.Marshal(recipe.Directions)
		if err != nil {
			return fmt.Errorf("failed to marshal directions: %w", err)
		}
		tips, err := json.Marshal(recipe.Tips)
		if err != nil {
			return fmt.Errorf("failed to marshal tips: %w", err)
		}
		utensils, err := json.Marshal(recipe.Utensils)
		if err != nil {
			return fmt.Errorf("failed to marshal utensils: %w", err)
		}

		result, err := q.ExecContext(ctx, query,
			recipe.Title, recipe.Description, string(ingredients), string(directions),
			string(tips), string(utensils),
			string(recipe.Nutrition.Calories), string(recipe.Nutrition.Fat),
			string(recipe.Nutrition.Protein), string(recipe.Nutrition.Carbs),
			now, now)
		if err != nil {
			return fmt.Errorf("failed to insert recipe %q: %w", recipe.Title, err)
		}

		id, err := result.LastInsertId()
		if err != nil {
			return err
		}
		recipe.ID = id
	}
	return nil
}

func (s *SQLiteStorage) AddRecipes(ctx context.Context, recipes []*types.Recipe) error {
	return s.addRecipesWithQuerier(ctx, s.querier(), recipes)
}

// scanRecipe decodes one recipe row
func scanRecipe(scan func(dest ...interface{}) error) (*types.Recipe, error) {
	var recipe types.Recipe
	var ingredients, directions, tips, utensils string
	err := scan(
		&recipe.ID, &recipe.Title, &recipe.Description,
		&ingredients, &directions, &tips, &utensils,
		&recipe.Nutrition.Calories, &recipe.Nutrition.Fat,
		&recipe.Nutrition.Protein, &recipe.Nutrition.Carbs,
	)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(ingredients), &recipe.Ingredients); err != nil {
		return nil, fmt.Errorf("failed to unmarshal ingredients: %w", err)
	}
	if err := json.Unmarshal([]byte(directions), &recipe.Directions); err != nil {
		return nil, fmt.Errorf("failed to unmarshal directions: %w", err)
	}
	if err := json.Unmarshal([]byte(tips), &recipe.Tips); err != nil {
		return nil, fmt.Errorf("failed to unmarshal tips: %w", err)
	}
	if err := json.Unmarshal([]byte(utensils), &recipe.Utensils); err != nil {
		return nil, fmt.Errorf("failed to unmarshal utensils: %w", err)
	}
	return &recipe, nil
}

// getRecipeWithQuerier is the internal implementation that uses a querier
func (s *SQLiteStorage) getRecipeWithQuerier(ctx context.Context, q querier, id int64) (*types.Recipe, error) {
	query := `SELECT ` + recipeColumns + ` FROM recipes WHERE id = ?`
	row := q.QueryRowContext(ctx, query, id)
	recipe, err := scanRecipe(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("recipe %d: %w", id, types.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return recipe, nil
}

func (s *SQLiteStorage) GetRecipe(ctx context.Context, id int64) (*types.Recipe, error) {
	return s.getRecipeWithQuerier(ctx, s.querier(), id)
}

// getRecipesWithQuerier is the internal implementation that uses a querier.
// Results come back in no particular order; missing ids are skipped.
func (s *SQLiteStorage) getRecipesWithQuerier(ctx context.Context, q querier, ids []int64) ([]*types.Recipe, error) {
	if len(ids) == 0 {
		return []*types.Recipe{}, nil
	}

	placeholders := make([]string, len(ids))
	args := make([]interface{}, len(ids))
	for i, id := range ids {
		placeholders[i] = "?"
		args[i] = id
	}

	query := `SELECT ` + recipeColumns + ` FROM recipes WHERE id IN (` + strings.Join(placeholders, ",") + `)`
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	recipes := make([]*types.Recipe, 0, len(ids))
	for rows.Next() {
		recipe, err := scanRecipe(rows.Scan)
		if err != nil {
			return nil, err
		}
		recipes = append(recipes, recipe)
	}
	return recipes, rows.Err()
}

func (s *SQLiteStorage) GetRecipes(ctx context.Context, ids []int64) ([]*types.Recipe, error) {
	return s.getRecipesWithQuerier(ctx, s.querier(), ids)
}

// listRecipesWithQuerier is the internal implementation that uses a querier.
// Insertion order. A limit <= 0 returns everything.
func (s *SQLiteStorage) listRecipesWithQuerier(ctx context.Context, q querier, limit int) ([]*types.Recipe, error) {
	query := `SELECT ` + recipeColumns + ` FROM recipes ORDER BY id`
	args := []interface{}{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	recipes := make([]*types.Recipe, 0)
	for rows.Next() {
		recipe, err := scanRecipe(rows.Scan)
		if err != nil {
			return nil, err
		}
		recipes = append(recipes, recipe)
	}
	return recipes, rows.Err()
}

func (s *SQLiteStorage) ListRecipes(ctx context.Context, limit int) ([]*types.Recipe, error) {
	return s.listRecipesWithQuerier(ctx, s.querier(), limit)
}

// countRecipesWithQuerier is the internal implementation that uses a querier
func (s *SQLiteStorage) countRecipesWithQuerier(ctx context.Context, q querier) (int, error) {
	var count int
	err := q.QueryRowContext(ctx, "SELECT COUNT(*) FROM recipes").Scan(&count)
	if err != nil {
		return 0, err
	}
	return count, nil
}

func (s *SQLiteStorage) CountRecipes(ctx context.Context) (int, error) {
	return s.countRecipesWithQuerier(ctx, s.querier())
}

// deleteAllRecipesWithQuerier deletes every recipe and restarts the id
// sequence so the next insert gets id 1 again.
func (s *SQLiteStorage) deleteAllRecipesWithQuerier(ctx context.Context, q querier) error {
	if _, err := q.ExecContext(ctx, "DELETE FROM recipes"); err != nil {
		return fmt.Errorf("failed to delete recipes: %w", err)
	}
	if _, err := q.ExecContext(ctx, "DELETE FROM sqlite_sequence WHERE name = 'recipes'"); err != nil {
		return fmt.Errorf("failed to reset recipe id sequence: %w", err)
	}
	return nil
}

func (s *SQLiteStorage) DeleteAllRecipes(ctx context.Context) error {
	return s.deleteAllRecipesWithQuerier(ctx, s.querier())
}

// User profile operations

// upsertProfileWithQuerier is the internal implementation that uses a querier
func (s *SQLiteStorage) upsertProfileWithQuerier(ctx context.Context, q querier, profile *types.UserProfile) error {
	prefer, err := json.Marshal(profile.Prefer)
	if err != nil {
		return fmt.Errorf("failed to marshal prefer terms: %w", err)
	}
	dislike, err := json.Marshal(profile.Dislike)
	if err != nil {
		return fmt.Errorf("failed to marshal dislike terms: %w", err)
	}

	var embedding []byte
	if len(profile.Embedding) > 0 {
		embedding = serializeVector(profile.Embedding)
	}

	query := `
		INSERT INTO user_profiles (username, veggie_identity, prefer, dislike, embedding, dimension, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(username) DO UPDATE SET
			veggie_identity = excluded.veggie_identity,
			prefer = excluded.prefer,
			dislike = excluded.dislike,
			embedding = excluded.embedding,
			dimension = excluded.dimension,
			updated_at = excluded.updated_at
	`
	now := time.Now()
	_, err = q.ExecContext(ctx, query,
		profile.Username, string(profile.VeggieIdentity), string(prefer), string(dislike),
		embedding, len(profile.Embedding), now, now)
	if err != nil {
		return fmt.Errorf("failed to upsert profile: %w", err)
	}
	return nil
}

func (s *SQLiteStorage) UpsertProfile(ctx context.Context, profile *types.UserProfile) error {
	return s.upsertProfileWithQuerier(ctx, s.querier(), profile)
}

// getProfileWithQuerier is the internal implementation that uses a querier
func (s *SQLiteStorage) getProfileWithQuerier(ctx context.Context, q querier, username string) (*types.UserProfile, error) {
	query := `
		SELECT username, veggie_identity, prefer, dislike, embedding
		FROM user_profiles
		WHERE username = ?
	`
	var profile types.UserProfile
	var prefer, dislike string
	var embedding []byte
	err := q.QueryRowContext(ctx, query, username).Scan(
		&profile.Username, &profile.VeggieIdentity, &prefer, &dislike, &embedding,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("profile %q: %w", username, types.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(prefer), &profile.Prefer); err != nil {
		return nil, fmt.Errorf("failed to unmarshal prefer terms: %w", err)
	}
	if err := json.Unmarshal([]byte(dislike), &profile.Dislike); err != nil {
		return nil, fmt.Errorf("failed to unmarshal dislike terms: %w", err)
	}
	if len(embedding) > 0 {
		profile.Embedding = deserializeVector(embedding)
	}
	return &profile, nil
}

func (s *SQLiteStorage) GetProfile(ctx context.Context, username string) (*types.UserProfile, error) {
	return s.getProfileWithQuerier(ctx, s.querier(), username)
}

// Index metadata operations

// setIndexMetaWithQuerier replaces the singleton row
func (s *SQLiteStorage) setIndexMetaWithQuerier(ctx context.Context, q querier, meta *IndexMeta) error {
	if _, err := q.ExecContext(ctx, "DELETE FROM index_meta"); err != nil {
		return fmt.Errorf("failed to clear index metadata: %w", err)
	}
	query := `
		INSERT INTO index_meta (singleton, path, recipe_count, dimension, model, built_at)
		VALUES (1, ?, ?, ?, ?, ?)
	`
	_, err := q.ExecContext(ctx, query, meta.Path, meta.RecipeCount, meta.Dimension, meta.Model, meta.BuiltAt)
	if err != nil {
		return fmt.Errorf("failed to insert index metadata: %w", err)
	}
	return nil
}

// SetIndexMeta replaces the active index record. The delete and insert run
// in one transaction so a reader never sees zero or two rows.
func (s *SQLiteStorage) SetIndexMeta(ctx context.Context, meta *IndexMeta) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := s.setIndexMetaWithQuerier(ctx, tx, meta); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

// getIndexMetaWithQuerier is the internal implementation that uses a querier
func (s *SQLiteStorage) getIndexMetaWithQuerier(ctx context.Context, q querier) (*IndexMeta, error) {
	query := `SELECT path, recipe_count, dimension, model, built_at FROM index_meta WHERE singleton = 1`
	var meta IndexMeta
	err := q.QueryRowContext(ctx, query).Scan(
		&meta.Path, &meta.RecipeCount, &meta.Dimension, &meta.Model, &meta.BuiltAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("index metadata: %w", types.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &meta, nil
}

func (s *SQLiteStorage) GetIndexMeta(ctx context.Context) (*IndexMeta, error) {
	return s.getIndexMetaWithQuerier(ctx, s.querier())
}

// deleteIndexMetaWithQuerier is the internal implementation that uses a querier
func (s *SQLiteStorage) deleteIndexMetaWithQuerier(ctx context.Context, q querier) error {
	_, err := q.ExecContext(ctx, "DELETE FROM index_meta")
	return err
}

func (s *SQLiteStorage) DeleteIndexMeta(ctx context.Context) error {
	return s.deleteIndexMetaWithQuerier(ctx, s.querier())
}

// Transaction implementations

func (t *sqliteTx) AddRecipes(ctx context.Context, recipes []*types.Recipe) error {
	return t.storage.addRecipesWithQuerier(ctx, t.querier(), recipes)
}

func (t *sqliteTx) GetRecipe(ctx context.Context, id int64) (*types.Recipe, error) {
	return t.storage.getRecipeWithQuerier(ctx, t.querier(), id)
}

func (t *sqliteTx) GetRecipes(ctx context.Context, ids []int64) ([]*types.Recipe, error) {
	return t.storage.getRecipesWithQuerier(ctx, t.querier(), ids)
}

func (t *sqliteTx) ListRecipes(ctx context.Context, limit int) ([]*types.Recipe, error) {
	return t.storage.listRecipesWithQuerier(ctx, t.querier(), limit)
}

func (t *sqliteTx) CountRecipes(ctx context.Context) (int, error) {
	return t.storage.countRecipesWithQuerier(ctx, t.querier())
}

func (t *sqliteTx) DeleteAllRecipes(ctx context.Context) error {
	return t.storage.deleteAllRecipesWithQuerier(ctx, t.querier())
}

func (t *sqliteTx) UpsertProfile(ctx context.Context, profile *types.UserProfile) error {
	return t.storage.upsertProfileWithQuerier(ctx, t.querier(), profile)
}

func (t *sqliteTx) GetProfile(ctx context.Context, username string) (*types.UserProfile, error) {
	return t.storage.getProfileWithQuerier(ctx, t.querier(), username)
}

func (t *sqliteTx) SetIndexMeta(ctx context.Context, meta *IndexMeta) error {
	return t.storage.setIndexMetaWithQuerier(ctx, t.querier(), meta)
}

func (t *sqliteTx) GetIndexMeta(ctx context.Context) (*IndexMeta, error) {
	return t.storage.getIndexMetaWithQuerier(ctx, t.querier())
}

func (t *sqliteTx) DeleteIndexMeta(ctx context.Context) error {
	return t.storage.deleteIndexMetaWithQuerier(ctx, t.querier())
}

func (t *sqliteTx) Ping(ctx context.Context) error {
	return t.storage.Ping(ctx)
}

func (t *sqliteTx) Close() error {
	// Transactions don't close the underlying connection
	return nil
}

func (t *sqliteTx) BeginTx(ctx context.Context) (Tx, error) {
	// SQLite does not support true nested transactions
	return nil, errors.New("nested transactions not supported")
}
