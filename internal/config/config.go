// Package config loads service configuration from the environment.
package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Config holds the full service configuration.
type Config struct {
	// DBPath is the SQLite database file. ":memory:" is accepted for tests.
	DBPath string

	// IndexDir is where serialized vector index files live.
	IndexDir string

	// EmbedProvider selects the embedding backend (ollama, openai, local).
	EmbedProvider  string
	EmbedModel     string
	EmbedBaseURL   string
	EmbedAPIKey    string
	EmbedCacheSize int

	// ChatModel is the model used by the recipe chat assistant.
	ChatModel   string
	ChatBaseURL string
	ChatAPIKey  string

	// SearchWorkers bounds concurrent embedding calls during a rebuild.
	SearchWorkers int

	// RecreateOnDrift controls whether a text index schema mismatch is
	// resolved by dropping and recreating the collection.
	RecreateOnDrift bool
}

// FromEnv builds a Config from the environment. A .env file in the working
// directory is loaded first if present.
func FromEnv() (Config, error) {
	_ = godotenv.Load()

	cfg := Config{
		DBPath:          envOrDefault("RECIPE_SEARCH_DB", "recipes.db"),
		IndexDir:        envOrDefault("RECIPE_SEARCH_INDEX_DIR", "index"),
		EmbedProvider:   envOrDefault("RECIPE_SEARCH_EMBED_PROVIDER", ""),
		EmbedModel:      envOrDefault("RECIPE_SEARCH_EMBED_MODEL", ""),
		EmbedBaseURL:    os.Getenv("RECIPE_SEARCH_EMBED_BASE_URL"),
		EmbedAPIKey:     os.Getenv("OPENAI_API_KEY"),
		ChatModel:       envOrDefault("RECIPE_SEARCH_CHAT_MODEL", "gpt-4o-mini"),
		ChatBaseURL:     os.Getenv("RECIPE_SEARCH_CHAT_BASE_URL"),
		ChatAPIKey:      os.Getenv("OPENAI_API_KEY"),
		RecreateOnDrift: true,
	}

	var err error
	if cfg.EmbedCacheSize, err = envOrDefaultInt("RECIPE_SEARCH_EMBED_CACHE", 10000); err != nil {
		return Config{}, err
	}
	if cfg.SearchWorkers, err = envOrDefaultInt("RECIPE_SEARCH_WORKERS", 4); err != nil {
		return Config{}, err
	}
	if v := os.Getenv("RECIPE_SEARCH_RECREATE_ON_DRIFT"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid RECIPE_SEARCH_RECREATE_ON_DRIFT: %w", err)
		}
		cfg.RecreateOnDrift = b
	}

	return cfg, nil
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envOrDefaultInt(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}
