// Package service wires storage, text collection, encoder, vector index
// and chat into the operations the API surface exposes.
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/intellicook/recipe-search/internal/chat"
	"github.com/intellicook/recipe-search/internal/encoder"
	"github.com/intellicook/recipe-search/internal/indexer"
	"github.com/intellicook/recipe-search/internal/searcher"
	"github.com/intellicook/recipe-search/internal/storage"
	"github.com/intellicook/recipe-search/internal/textindex"
	"github.com/intellicook/recipe-search/internal/vectorindex"
	"github.com/intellicook/recipe-search/pkg/types"
)

// Service is the orchestration layer over the domain components
type Service struct {
	store      storage.Storage
	collection *textindex.Collection
	enc        *encoder.Encoder
	builder    *indexer.Builder
	engine     *searcher.Engine
	model      *searcher.Handle
	assistant  chat.Assistant // Nil when no chat backend is configured
	logger     *zap.Logger

	indexPath string
}

// New creates the service. assistant may be nil; chat requests then fail
// with ErrBackendUnavailable.
func New(
	store storage.Storage,
	collection *textindex.Collection,
	enc *encoder.Encoder,
	builder *indexer.Builder,
	model *searcher.Handle,
	assistant chat.Assistant,
	indexPath string,
	logger *zap.Logger,
) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		store:      store,
		collection: collection,
		enc:        enc,
		builder:    builder,
		engine:     searcher.New(store, collection, model, logger),
		model:      model,
		assistant:  assistant,
		logger:     logger,
		indexPath:  indexPath,
	}
}

// LoadActiveIndex restores the active model from the persisted index file
// named by the index metadata. Missing metadata is not an error; the
// service starts uninitialized.
func (s *Service) LoadActiveIndex(ctx context.Context) error {
	meta, err := s.store.GetIndexMeta(ctx)
	if errors.Is(err, types.ErrNotFound) {
		s.logger.Info("no active index recorded, starting uninitialized")
		return nil
	}
	if err != nil {
		return err
	}

	// The persisted index must match the encoder this process runs with,
	// not the encoder that built it. A provider switch across restarts is
	// caught here instead of erroring on every profile search.
	idx, err := vectorindex.Load(meta.Path, s.enc.Dimension())
	if err != nil {
		return fmt.Errorf("failed to load index %s: %w", meta.Path, err)
	}
	if meta.Model != s.enc.Model() {
		s.logger.Warn("persisted index was built by a different model",
			zap.String("index_model", meta.Model),
			zap.String("encoder_model", s.enc.Model()))
	}

	s.model.Swap(&searcher.Model{Name: meta.Model, Index: idx})
	s.logger.Info("active index loaded",
		zap.String("path", meta.Path),
		zap.String("model", meta.Model),
		zap.Int("vectors", idx.Count()))
	return nil
}

// AddRecipes stores recipes, imports them into the text collection and,
// when a model is active, adds their vectors to the live index.
func (s *Service) AddRecipes(ctx context.Context, recipes []*types.Recipe) error {
	if len(recipes) == 0 {
		return fmt.Errorf("%w: no recipes given", types.ErrInvalidArgument)
	}
	for i, recipe := range recipes {
		if strings.TrimSpace(recipe.Title) == "" {
			return fmt.Errorf("%w: recipe %d has no title", types.ErrInvalidArgument, i)
		}
		if len(recipe.Ingredients) == 0 {
			return fmt.Errorf("%w: recipe %d has no ingredients", types.ErrInvalidArgument, i)
		}
	}

	// Store rows and collection documents commit together; a failed
	// import never leaves recipes that text search cannot find.
	tx, err := s.store.BeginTx(ctx)
	if err != nil {
		return err
	}
	if err := tx.AddRecipes(ctx, recipes); err != nil {
		_ = tx.Rollback()
		return err
	}

	docs := make([]textindex.Document, len(recipes))
	for i, recipe := range recipes {
		docs[i] = textindex.Document{
			RecipeID:    recipe.ID,
			Title:       recipe.Title,
			Description: recipe.Description,
			Ingredients: recipe.IngredientNames(),
		}
	}
	if err := s.collection.ImportTx(ctx, tx.SQLTx(), docs); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}

	// Keep the live index current so new recipes are searchable without a
	// full rebuild
	if model := s.model.Load(); model != nil {
		for _, recipe := range recipes {
			vec, err := s.enc.EncodeRecipe(ctx, recipe)
			if err != nil {
				return fmt.Errorf("failed to encode recipe %d: %w", recipe.ID, err)
			}
			if err := model.Index.Add(recipe.ID, vec); err != nil {
				return err
			}
		}
	}

	s.logger.Info("recipes added", zap.Int("count", len(recipes)))
	return nil
}

// GetRecipe returns one recipe by id
func (s *Service) GetRecipe(ctx context.Context, id int64) (*types.Recipe, error) {
	if id <= 0 {
		return nil, fmt.Errorf("%w: recipe id must be positive", types.ErrInvalidArgument)
	}
	return s.store.GetRecipe(ctx, id)
}

// SearchParams describes a search request
type SearchParams struct {
	Username      string
	Ingredients   []string
	ExtraTerms    []string
	Page          int
	PerPage       int
	IncludeDetail bool
}

// SearchRecipes runs a hybrid search. A username selects that user's
// profile for the vector leg; an unknown username searches without one.
func (s *Service) SearchRecipes(ctx context.Context, params SearchParams) ([]types.SearchResult, error) {
	var profile *types.UserProfile
	if params.Username != "" {
		p, err := s.store.GetProfile(ctx, params.Username)
		if err != nil && !errors.Is(err, types.ErrNotFound) {
			return nil, err
		}
		profile = p
	}

	var profileVector []float32
	if profile != nil || len(params.ExtraTerms) > 0 {
		vec, err := s.enc.EncodeProfile(ctx, profile, params.ExtraTerms)
		if err != nil {
			return nil, err
		}
		profileVector = vec
	}

	return s.engine.Search(ctx, searcher.Request{
		Ingredients:   params.Ingredients,
		ProfileVector: profileVector,
		Page:          params.Page,
		PerPage:       params.PerPage,
		IncludeDetail: params.IncludeDetail,
	})
}

// SetUserProfile upserts the whole profile record, re-deriving its
// embedding from the preference lists.
func (s *Service) SetUserProfile(ctx context.Context, profile *types.UserProfile) error {
	if profile == nil || strings.TrimSpace(profile.Username) == "" {
		return fmt.Errorf("%w: username is required", types.ErrInvalidArgument)
	}
	switch profile.VeggieIdentity {
	case types.VeggieOmnivore, types.VeggieVegetarian, types.VeggieVegan:
	case "":
		profile.VeggieIdentity = types.VeggieOmnivore
	default:
		return fmt.Errorf("%w: unknown veggie identity %q", types.ErrInvalidArgument, profile.VeggieIdentity)
	}

	vec, err := s.enc.EncodeProfile(ctx, profile, nil)
	if err != nil {
		return err
	}
	profile.Embedding = vec

	if err := s.store.UpsertProfile(ctx, profile); err != nil {
		return err
	}
	s.logger.Info("user profile set", zap.String("username", profile.Username))
	return nil
}

// GetUserProfile returns the stored profile for username
func (s *Service) GetUserProfile(ctx context.Context, username string) (*types.UserProfile, error) {
	if strings.TrimSpace(username) == "" {
		return nil, fmt.Errorf("%w: username is required", types.ErrInvalidArgument)
	}
	return s.store.GetProfile(ctx, username)
}

// RebuildIndex launches a background rebuild. Returns the job id, or
// ErrRebuildInProgress when one is already running.
func (s *Service) RebuildIndex(params indexer.Params) (string, error) {
	if params.Path == "" {
		params.Path = s.indexPath
	}
	jobID, started := s.builder.StartRebuild(params, s.activateModel)
	if !started {
		return "", types.ErrRebuildInProgress
	}
	return jobID, nil
}

// activateModel swaps the freshly built index in as the active model.
// Runs inside the builder's completion callback, only on success.
func (s *Service) activateModel(result indexer.Result) {
	s.model.Swap(&searcher.Model{Name: result.Meta.Model, Index: result.Index})
	s.logger.Info("active model swapped",
		zap.String("model", result.Meta.Model),
		zap.Int("vectors", result.Index.Count()))
}

// IndexJobStatus returns the rebuild job status snapshot
func (s *Service) IndexJobStatus() indexer.Status {
	return s.builder.Status()
}

// ChatByRecipe forwards the chat to the assistant with the recipe as
// context.
func (s *Service) ChatByRecipe(ctx context.Context, username string, recipeID int64, messages []chat.Message) (chat.Message, error) {
	if s.assistant == nil {
		return chat.Message{}, fmt.Errorf("%w: no chat backend configured", types.ErrBackendUnavailable)
	}
	recipe, err := s.store.GetRecipe(ctx, recipeID)
	if err != nil {
		return chat.Message{}, err
	}
	return s.assistant.ChatByRecipe(ctx, username, recipe, messages)
}

// ResetData deletes all recipes, restarts the id sequence, clears the text
// collection and index metadata, and deactivates the model.
func (s *Service) ResetData(ctx context.Context) error {
	if err := s.store.DeleteAllRecipes(ctx); err != nil {
		return err
	}
	if err := s.collection.DeleteAll(ctx); err != nil {
		return err
	}
	if err := s.store.DeleteIndexMeta(ctx); err != nil {
		return err
	}
	s.model.Swap(nil)
	s.logger.Warn("all recipe data reset")
	return nil
}
