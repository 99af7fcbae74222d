// Command recipesearch runs the recipe search MCP server on stdio.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"go.uber.org/zap"

	"github.com/intellicook/recipe-search/internal/chat"
	"github.com/intellicook/recipe-search/internal/config"
	"github.com/intellicook/recipe-search/internal/embedder"
	"github.com/intellicook/recipe-search/internal/encoder"
	"github.com/intellicook/recipe-search/internal/indexer"
	"github.com/intellicook/recipe-search/internal/mcp"
	"github.com/intellicook/recipe-search/internal/searcher"
	"github.com/intellicook/recipe-search/internal/service"
	"github.com/intellicook/recipe-search/internal/storage"
	"github.com/intellicook/recipe-search/internal/textindex"
)

var (
	version   = "dev"
	buildTime = "unknown"
)

func main() {
	if len(os.Args) > 1 && os.Args[1] == "--version" {
		fmt.Printf("Recipe Search MCP Server\n")
		fmt.Printf("Version: %s\n", version)
		fmt.Printf("Build Time: %s\n", buildTime)
		fmt.Printf("Build Mode: %s\n", storage.BuildMode)
		fmt.Printf("SQLite Driver: %s\n", storage.DriverName)
		os.Exit(0)
	}

	// Log to stderr, stdout is reserved for the MCP protocol
	logger, err := newLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	if err := run(logger); err != nil {
		logger.Fatal("server error", zap.Error(err))
	}
}

func newLogger() (*zap.Logger, error) {
	zcfg := zap.NewProductionConfig()
	zcfg.OutputPaths = []string{"stderr"}
	zcfg.ErrorOutputPaths = []string{"stderr"}
	return zcfg.Build()
}

func run(logger *zap.Logger) error {
	cfg, err := config.FromEnv()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	logger.Info("recipe search server starting",
		zap.String("version", version),
		zap.String("build_mode", storage.BuildMode),
		zap.String("driver", storage.DriverName))

	store, err := storage.NewSQLiteStorage(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}
	defer func() { _ = store.Close() }()

	collection := textindex.NewCollection(store.DB(), logger, textindex.Options{
		RecreateOnDrift: cfg.RecreateOnDrift,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := collection.EnsureSchema(ctx); err != nil {
		return fmt.Errorf("failed to prepare text index: %w", err)
	}

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

	enc := encoder.New(emb, logger)
	builder := indexer.New(store, enc, logger, cfg.SearchWorkers)
	model := searcher.NewHandle()

	var assistant chat.Assistant
	if cfg.ChatAPIKey != "" {
		assistant, err = chat.NewOpenAI(chat.Config{
			APIKey:  cfg.ChatAPIKey,
			BaseURL: cfg.ChatBaseURL,
			Model:   cfg.ChatModel,
		}, logger)
		if err != nil {
			return fmt.Errorf("failed to initialize chat assistant: %w", err)
		}
	} else {
		logger.Info("no chat API key configured, chat_by_recipe disabled")
	}

	if err := os.MkdirAll(cfg.IndexDir, 0o755); err != nil {
		return fmt.Errorf("failed to create index directory: %w", err)
	}
	indexPath := filepath.Join(cfg.IndexDir, "recipes.vidx")

	svc := service.New(store, collection, enc, builder, model, assistant, indexPath, logger)
	if err := svc.LoadActiveIndex(ctx); err != nil {
		return fmt.Errorf("failed to load active index: %w", err)
	}

	server := mcp.NewServer(svc, logger)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	errChan := make(chan error, 1)
	go func() {
		logger.Info("mcp server ready, listening on stdio")
		errChan <- server.Serve(ctx)
	}()

	select {
	case sig := <-sigChan:
		logger.Info("shutting down", zap.String("signal", sig.String()))
		cancel()
		return nil
	case err := <-errChan:
		return err
	}
}
