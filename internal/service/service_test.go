package service

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/intellicook/recipe-search/internal/chat"
	"github.com/intellicook/recipe-search/internal/embedder"
	"github.com/intellicook/recipe-search/internal/encoder"
	"github.com/intellicook/recipe-search/internal/indexer"
	"github.com/intellicook/recipe-search/internal/searcher"
	"github.com/intellicook/recipe-search/internal/storage"
	"github.com/intellicook/recipe-search/internal/textindex"
	"github.com/intellicook/recipe-search/pkg/types"
)

// mapEmbedder returns fixed vectors for known texts and a default vector
// otherwise. dim overrides the dimension; zero means 2.
type mapEmbedder struct {
	vectors map[string][]float32
	dim     int
}

func (m *mapEmbedder) Embed(ctx context.Context, req embedder.Request) (*embedder.Embedding, error) {
	vec, ok := m.vectors[req.Text]
	if !ok {
		vec = make([]float32, m.Dimension())
		vec[0] = 1
	}
	return &embedder.Embedding{Vector: vec, Dimension: len(vec)}, nil
}

func (m *mapEmbedder) EmbedBatch(ctx context.Context, req embedder.BatchRequest) (*embedder.BatchResponse, error) {
	embeddings := make([]*embedder.Embedding, len(req.Texts))
	for i, text := range req.Texts {
		emb, _ := m.Embed(ctx, embedder.Request{Text: text})
		embeddings[i] = emb
	}
	return &embedder.BatchResponse{Embeddings: embeddings}, nil
}

func (m *mapEmbedder) Dimension() int {
	if m.dim != 0 {
		return m.dim
	}
	return 2
}
func (m *mapEmbedder) Provider() string { return "map" }
func (m *mapEmbedder) Model() string    { return "map-model" }
func (m *mapEmbedder) Close() error     { return nil }

func setupService(t *testing.T, vectors map[string][]float32, assistant chat.Assistant) (*Service, storage.Storage) {
	store, err := storage.NewSQLiteStorage(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	logger := zap.NewNop()
	collection := textindex.NewCollection(store.DB(), logger, textindex.Options{})
	require.NoError(t, collection.EnsureSchema(context.Background()))

	enc := encoder.New(&mapEmbedder{vectors: vectors}, logger)
	builder := indexer.New(store, enc, logger, 2)
	handle := searcher.NewHandle()
	indexPath := filepath.Join(t.TempDir(), "recipes.vidx")

	svc := New(store, collection, enc, builder, handle, assistant, indexPath, logger)
	return svc, store
}

func addTestRecipes(t *testing.T, svc *Service) []*types.Recipe {
	recipes := []*types.Recipe{
		{
			Title:       "Tomato Soup",
			Description: "a simple soup",
			Ingredients: []types.Ingredient{{Name: "tomato"}, {Name: "onion"}},
			Directions:  []string{"simmer"},
		},
		{
			Title:       "Tomato Salad",
			Description: "fresh salad",
			Ingredients: []types.Ingredient{{Name: "tomato"}, {Name: "cucumber"}},
		},
	}
	require.NoError(t, svc.AddRecipes(context.Background(), recipes))
	return recipes
}

func waitForJob(t *testing.T, svc *Service, want indexer.State) indexer.Status {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		status := svc.IndexJobStatus()
		if status.State == want {
			return status
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("job never reached state %s, last %s", want, svc.IndexJobStatus().State)
	return indexer.Status{}
}

func TestAddRecipesValidation(t *testing.T) {
	svc, _ := setupService(t, nil, nil)
	ctx := context.Background()

	err := svc.AddRecipes(ctx, nil)
	assert.ErrorIs(t, err, types.ErrInvalidArgument)

	err = svc.AddRecipes(ctx, []*types.Recipe{{Ingredients: []types.Ingredient{{Name: "salt"}}}})
	assert.ErrorIs(t, err, types.ErrInvalidArgument)

	err = svc.AddRecipes(ctx, []*types.Recipe{{Title: "Water"}})
	assert.ErrorIs(t, err, types.ErrInvalidArgument)
}

func TestAddRecipesRollsBackOnImportFailure(t *testing.T) {
	svc, store := setupService(t, nil, nil)
	ctx := context.Background()

	// Break the collection so the text import inside AddRecipes fails
	_, err := store.(*storage.SQLiteStorage).DB().ExecContext(ctx, "DROP TABLE recipe_collection")
	require.NoError(t, err)

	err = svc.AddRecipes(ctx, []*types.Recipe{{
		Title:       "Orphan Stew",
		Ingredients: []types.Ingredient{{Name: "salt"}},
	}})
	require.Error(t, err)

	// The store insert rolled back with the failed import, so no recipe
	// exists that text search cannot find
	count, err := store.CountRecipes(ctx)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestAddAndGetRecipe(t *testing.T) {
	svc, _ := setupService(t, nil, nil)
	recipes := addTestRecipes(t, svc)

	got, err := svc.GetRecipe(context.Background(), recipes[0].ID)
	require.NoError(t, err)
	assert.Equal(t, "Tomato Soup", got.Title)

	_, err = svc.GetRecipe(context.Background(), 0)
	assert.ErrorIs(t, err, types.ErrInvalidArgument)

	_, err = svc.GetRecipe(context.Background(), 999)
	assert.ErrorIs(t, err, types.ErrNotFound)
}

func TestSearchRecipesLexical(t *testing.T) {
	svc, _ := setupService(t, nil, nil)
	addTestRecipes(t, svc)

	results, err := svc.SearchRecipes(context.Background(), SearchParams{
		Ingredients: []string{"tomato"},
		Page:        1,
		PerPage:     10,
	})
	require.NoError(t, err)
	assert.Len(t, results, 2)
	for _, r := range results {
		assert.Nil(t, r.Distance)
	}
}

func TestSearchRecipesUnknownUsername(t *testing.T) {
	svc, _ := setupService(t, nil, nil)
	addTestRecipes(t, svc)

	// An unknown username searches without a profile vector
	results, err := svc.SearchRecipes(context.Background(), SearchParams{
		Username:    "stranger",
		Ingredients: []string{"tomato"},
		Page:        1,
		PerPage:     10,
	})
	require.NoError(t, err)
	assert.Len(t, results, 2)
	assert.Nil(t, results[0].Distance)
}

func TestSetUserProfile(t *testing.T) {
	svc, store := setupService(t, nil, nil)
	ctx := context.Background()

	profile := &types.UserProfile{
		Username: "ada",
		Prefer:   []string{"basil"},
	}
	require.NoError(t, svc.SetUserProfile(ctx, profile))

	// Empty identity defaults to omnivore, preferences derive an embedding
	stored, err := store.GetProfile(ctx, "ada")
	require.NoError(t, err)
	assert.Equal(t, types.VeggieOmnivore, stored.VeggieIdentity)
	assert.Len(t, stored.Embedding, 2)

	got, err := svc.GetUserProfile(ctx, "ada")
	require.NoError(t, err)
	assert.Equal(t, []string{"basil"}, got.Prefer)
}

func TestSetUserProfileValidation(t *testing.T) {
	svc, _ := setupService(t, nil, nil)
	ctx := context.Background()

	err := svc.SetUserProfile(ctx, &types.UserProfile{Username: "  "})
	assert.ErrorIs(t, err, types.ErrInvalidArgument)

	err = svc.SetUserProfile(ctx, &types.UserProfile{Username: "ada", VeggieIdentity: "carnivore"})
	assert.ErrorIs(t, err, types.ErrInvalidArgument)
}

func TestSetUserProfileNoSignal(t *testing.T) {
	svc, store := setupService(t, nil, nil)
	ctx := context.Background()

	require.NoError(t, svc.SetUserProfile(ctx, &types.UserProfile{Username: "ada"}))
	stored, err := store.GetProfile(ctx, "ada")
	require.NoError(t, err)
	assert.Nil(t, stored.Embedding)
}

func TestGetUserProfileNotFound(t *testing.T) {
	svc, _ := setupService(t, nil, nil)

	_, err := svc.GetUserProfile(context.Background(), "nobody")
	assert.ErrorIs(t, err, types.ErrNotFound)

	_, err = svc.GetUserProfile(context.Background(), "")
	assert.ErrorIs(t, err, types.ErrInvalidArgument)
}

func TestRebuildIndexActivatesModel(t *testing.T) {
	svc, _ := setupService(t, nil, nil)
	addTestRecipes(t, svc)
	ctx := context.Background()

	assert.Equal(t, indexer.StateUninitialized, svc.IndexJobStatus().State)

	jobID, err := svc.RebuildIndex(indexer.Params{})
	require.NoError(t, err)
	assert.NotEmpty(t, jobID)

	status := waitForJob(t, svc, indexer.StateCompleted)
	assert.Equal(t, jobID, status.JobID)
	assert.Equal(t, 2, status.Count)

	// Personalized search works once the model is active
	require.NoError(t, svc.SetUserProfile(ctx, &types.UserProfile{
		Username: "ada",
		Prefer:   []string{"basil"},
	}))
	results, err := svc.SearchRecipes(ctx, SearchParams{
		Username:    "ada",
		Ingredients: []string{"tomato"},
		Page:        1,
		PerPage:     10,
	})
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.NotNil(t, results[0].Distance)
}

func TestSearchWithProfileBeforeRebuild(t *testing.T) {
	svc, _ := setupService(t, nil, nil)
	addTestRecipes(t, svc)
	ctx := context.Background()

	require.NoError(t, svc.SetUserProfile(ctx, &types.UserProfile{
		Username: "ada",
		Prefer:   []string{"basil"},
	}))

	_, err := svc.SearchRecipes(ctx, SearchParams{
		Username:    "ada",
		Ingredients: []string{"tomato"},
		Page:        1,
		PerPage:     10,
	})
	assert.ErrorIs(t, err, types.ErrNotInitialized)
}

func TestAddRecipesUpdatesLiveIndex(t *testing.T) {
	svc, _ := setupService(t, nil, nil)
	addTestRecipes(t, svc)
	ctx := context.Background()

	_, err := svc.RebuildIndex(indexer.Params{})
	require.NoError(t, err)
	waitForJob(t, svc, indexer.StateCompleted)

	// Recipes added after the rebuild are searchable with a profile vector
	require.NoError(t, svc.AddRecipes(ctx, []*types.Recipe{{
		Title:       "Tomato Tart",
		Ingredients: []types.Ingredient{{Name: "tomato"}, {Name: "pastry"}},
	}}))
	require.NoError(t, svc.SetUserProfile(ctx, &types.UserProfile{
		Username: "ada",
		Prefer:   []string{"basil"},
	}))

	results, err := svc.SearchRecipes(ctx, SearchParams{
		Username:    "ada",
		Ingredients: []string{"tomato"},
		Page:        1,
		PerPage:     10,
	})
	require.NoError(t, err)
	assert.Len(t, results, 3)
	for _, r := range results {
		assert.NotNil(t, r.Distance)
	}
}

func TestLoadActiveIndex(t *testing.T) {
	svc, store := setupService(t, nil, nil)
	addTestRecipes(t, svc)
	ctx := context.Background()

	// Nothing persisted yet: stays uninitialized without error
	require.NoError(t, svc.LoadActiveIndex(ctx))

	_, err := svc.RebuildIndex(indexer.Params{})
	require.NoError(t, err)
	waitForJob(t, svc, indexer.StateCompleted)

	// A fresh service over the same store restores the persisted index
	logger := zap.NewNop()
	collection := textindex.NewCollection(store.(*storage.SQLiteStorage).DB(), logger, textindex.Options{})
	enc := encoder.New(&mapEmbedder{}, logger)
	builder := indexer.New(store, enc, logger, 2)
	handle := searcher.NewHandle()
	fresh := New(store, collection, enc, builder, handle, nil, "", logger)

	require.NoError(t, fresh.LoadActiveIndex(ctx))
	require.NoError(t, fresh.SetUserProfile(ctx, &types.UserProfile{
		Username: "ada",
		Prefer:   []string{"basil"},
	}))

	results, err := fresh.SearchRecipes(ctx, SearchParams{
		Username:    "ada",
		Ingredients: []string{"tomato"},
		Page:        1,
		PerPage:     10,
	})
	require.NoError(t, err)
	assert.Len(t, results, 2)
}

func TestLoadActiveIndexDimensionMismatch(t *testing.T) {
	svc, store := setupService(t, nil, nil)
	addTestRecipes(t, svc)
	ctx := context.Background()

	_, err := svc.RebuildIndex(indexer.Params{})
	require.NoError(t, err)
	waitForJob(t, svc, indexer.StateCompleted)

	// Restart with an embedding provider of a different dimension: the
	// stale persisted index must be rejected at load time, not at the
	// first profile search
	logger := zap.NewNop()
	collection := textindex.NewCollection(store.(*storage.SQLiteStorage).DB(), logger, textindex.Options{})
	enc := encoder.New(&mapEmbedder{dim: 3}, logger)
	builder := indexer.New(store, enc, logger, 2)
	handle := searcher.NewHandle()
	fresh := New(store, collection, enc, builder, handle, nil, "", logger)

	err = fresh.LoadActiveIndex(ctx)
	assert.ErrorIs(t, err, types.ErrDimensionMismatch)
	assert.Nil(t, handle.Load())
}

func TestResetData(t *testing.T) {
	svc, store := setupService(t, nil, nil)
	addTestRecipes(t, svc)
	ctx := context.Background()

	_, err := svc.RebuildIndex(indexer.Params{})
	require.NoError(t, err)
	waitForJob(t, svc, indexer.StateCompleted)

	require.NoError(t, svc.ResetData(ctx))

	count, err := store.CountRecipes(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, count)

	_, err = store.GetIndexMeta(ctx)
	assert.ErrorIs(t, err, types.ErrNotFound)

	results, err := svc.SearchRecipes(ctx, SearchParams{
		Ingredients: []string{"tomato"},
		Page:        1,
		PerPage:     10,
	})
	require.NoError(t, err)
	assert.Empty(t, results)

	// Ids restart from 1
	fresh := []*types.Recipe{{
		Title:       "New Bread",
		Ingredients: []types.Ingredient{{Name: "flour"}},
	}}
	require.NoError(t, svc.AddRecipes(ctx, fresh))
	assert.Equal(t, int64(1), fresh[0].ID)
}

func TestChatByRecipeWithoutAssistant(t *testing.T) {
	svc, _ := setupService(t, nil, nil)
	recipes := addTestRecipes(t, svc)

	_, err := svc.ChatByRecipe(context.Background(), "ada", recipes[0].ID, []chat.Message{
		{Role: chat.RoleUser, Text: "hi"},
	})
	assert.ErrorIs(t, err, types.ErrBackendUnavailable)
}

// cannedAssistant replies with a fixed message
type cannedAssistant struct {
	lastRecipe *types.Recipe
}

func (c *cannedAssistant) ChatByRecipe(ctx context.Context, username string, recipe *types.Recipe, messages []chat.Message) (chat.Message, error) {
	c.lastRecipe = recipe
	return chat.Message{Role: chat.RoleAssistant, Text: "sure"}, nil
}

func TestChatByRecipe(t *testing.T) {
	assistant := &cannedAssistant{}
	svc, _ := setupService(t, nil, assistant)
	recipes := addTestRecipes(t, svc)

	reply, err := svc.ChatByRecipe(context.Background(), "ada", recipes[0].ID, []chat.Message{
		{Role: chat.RoleUser, Text: "hi"},
	})
	require.NoError(t, err)
	assert.Equal(t, "sure", reply.Text)
	require.NotNil(t, assistant.lastRecipe)
	assert.Equal(t, "Tomato Soup", assistant.lastRecipe.Title)

	// Chat about a missing recipe surfaces not found
	_, err = svc.ChatByRecipe(context.Background(), "ada", 999, []chat.Message{
		{Role: chat.RoleUser, Text: "hi"},
	})
	assert.ErrorIs(t, err, types.ErrNotFound)
}

func TestHealth(t *testing.T) {
	svc, _ := setupService(t, nil, nil)

	health := svc.Health(context.Background())
	assert.Equal(t, HealthHealthy, health.Status)
	require.Len(t, health.Checks, 2)
	for _, check := range health.Checks {
		assert.True(t, check.OK)
	}
}
