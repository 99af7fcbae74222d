// Command indexbuild rebuilds the recipe vector index from the command line.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/intellicook/recipe-search/internal/config"
	"github.com/intellicook/recipe-search/internal/embedder"
	"github.com/intellicook/recipe-search/internal/encoder"
	"github.com/intellicook/recipe-search/internal/indexer"
	"github.com/intellicook/recipe-search/internal/storage"
)

func main() {
	var (
		path  = flag.String("path", "", "index file to write (default <index dir>/recipes.vidx)")
		count = flag.Int("count", 0, "cap on how many recipes to index, 0 for all")
		model = flag.String("model", "", "model name recorded with the index (default embedder model)")
	)
	flag.Parse()

	logger, err := zap.NewProduction()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	if err := run(logger, *path, *count, *model); err != nil {
		logger.Fatal("rebuild failed", zap.Error(err))
	}
}

func run(logger *zap.Logger, path string, count int, model string) error {
	cfg, err := config.FromEnv()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	store, err := storage.NewSQLiteStorage(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}
	defer func() { _ = store.Close() }()

	emb, err := embedder.New(embedder.Config{
		Provider:  cfg.EmbedProvider,
		Model:     cfg.EmbedModel,
		BaseURL:   cfg.EmbedBaseURL,
		APIKey:    cfg.EmbedAPIKey,
		CacheSize: cfg.EmbedCacheSize,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize embedder: %w", err)
	}
	defer func() { _ = emb.Close() }()

	if path == "" {
		if err := os.MkdirAll(cfg.IndexDir, 0o755); err != nil {
			return fmt.Errorf("failed to create index directory: %w", err)
		}
		path = filepath.Join(cfg.IndexDir, "recipes.vidx")
	}

	enc := encoder.New(emb, logger)
	builder := indexer.New(store, enc, logger, cfg.SearchWorkers)

	params := indexer.Params{Count: count, Model: model, Path: path}
	if err := builder.Rebuild(context.Background(), params, nil); err != nil {
		return err
	}

	status := builder.Status()
	logger.Info("index built",
		zap.String("path", path),
		zap.Int("recipes", status.Count),
		zap.String("model", status.Model))
	return nil
}
