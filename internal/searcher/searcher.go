// Package searcher implements hybrid recipe search: a lexical leg over the
// text collection, optionally re-ranked by vector distance to a profile
// embedding from the active model.
package searcher

import (
	"context"
	"fmt"
	"math"
	"sort"

	"go.uber.org/zap"

	"github.com/intellicook/recipe-search/internal/storage"
	"github.com/intellicook/recipe-search/internal/textindex"
	"github.com/intellicook/recipe-search/pkg/types"
)

// Request describes one search
type Request struct {
	// Ingredients are the search terms; at least one is required
	Ingredients []string
	// ProfileVector re-ranks lexical candidates by vector distance when
	// non-empty. Empty means pure lexical order.
	ProfileVector []float32
	// Page is 1-indexed
	Page    int
	PerPage int
	// IncludeDetail returns full recipes instead of summaries
	IncludeDetail bool
}

// Engine runs hybrid searches
type Engine struct {
	store      storage.Storage
	collection *textindex.Collection
	model      *Handle
	logger     *zap.Logger
}

// New creates a search engine reading the active model from handle
func New(store storage.Storage, collection *textindex.Collection, model *Handle, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		store:      store,
		collection: collection,
		model:      model,
		logger:     logger,
	}
}

// ranked pairs a text hit with its vector distance for ordering
type ranked struct {
	hit      textindex.Hit
	lexRank  int
	distance float64
	inIndex  bool
}

// Search returns one page of ranked results.
//
// The lexical leg always runs. With a profile vector, the final order is
// vector distance ascending with lexical rank breaking ties; candidates
// missing from the vector index sort last. Without one, the order is
// purely lexical.
func (e *Engine) Search(ctx context.Context, req Request) ([]types.SearchResult, error) {
	if len(req.Ingredients) == 0 {
		return nil, fmt.Errorf("%w: ingredients are required", types.ErrInvalidArgument)
	}
	if req.Page < 1 {
		return nil, fmt.Errorf("%w: page must be >= 1", types.ErrInvalidArgument)
	}
	if req.PerPage < 1 {
		return nil, fmt.Errorf("%w: per_page must be >= 1", types.ErrInvalidArgument)
	}

	useVector := len(req.ProfileVector) > 0
	var model *Model
	if useVector {
		model = e.model.Load()
		if model == nil {
			return nil, fmt.Errorf("vector search requested: %w", types.ErrNotInitialized)
		}
	}

	// Without a vector leg the lexical order is final, so the pool only
	// needs to cover every page up to the requested one. With one, the
	// whole match set must be re-ranked before any page can be sliced,
	// otherwise lexical rank would decide page membership.
	limit := req.Page * req.PerPage
	if useVector {
		total, err := e.store.CountRecipes(ctx)
		if err != nil {
			return nil, err
		}
		if total > limit {
			limit = total
		}
	}
	hits, err := e.collection.Search(ctx, req.Ingredients, limit)
	if err != nil {
		return nil, err
	}
	if len(hits) == 0 {
		return []types.SearchResult{}, nil
	}

	candidates := make([]ranked, len(hits))
	for i, hit := range hits {
		candidates[i] = ranked{hit: hit, lexRank: i, distance: math.Inf(1)}
	}

	if useVector {
		for i := range candidates {
			dist, ok, err := model.Index.DistanceTo(req.ProfileVector, candidates[i].hit.RecipeID)
			if err != nil {
				return nil, err
			}
			candidates[i].distance = dist
			candidates[i].inIndex = ok
			if !ok {
				candidates[i].distance = math.Inf(1)
			}
		}
		sort.SliceStable(candidates, func(i, j int) bool {
			if candidates[i].distance != candidates[j].distance {
				return candidates[i].distance < candidates[j].distance
			}
			return candidates[i].lexRank < candidates[j].lexRank
		})
	}

	// Slice the requested page
	start := (req.Page - 1) * req.PerPage
	if start >= len(candidates) {
		return []types.SearchResult{}, nil
	}
	end := start + req.PerPage
	if end > len(candidates) {
		end = len(candidates)
	}
	page := candidates[start:end]

	return e.assemble(ctx, page, req.IncludeDetail, useVector)
}

// assemble joins the ranked page with recipe rows, preserving rank order
func (e *Engine) assemble(ctx context.Context, page []ranked, includeDetail, useVector bool) ([]types.SearchResult, error) {
	ids := make([]int64, len(page))
	for i, c := range page {
		ids[i] = c.hit.RecipeID
	}

	recipes, err := e.store.GetRecipes(ctx, ids)
	if err != nil {
		return nil, err
	}
	byID := make(map[int64]*types.Recipe, len(recipes))
	for _, r := range recipes {
		byID[r.ID] = r
	}

	results := make([]types.SearchResult, 0, len(page))
	for _, c := range page {
		recipe, ok := byID[c.hit.RecipeID]
		if !ok {
			// Indexed but deleted since; drop it
			e.logger.Debug("search hit without stored recipe", zap.Int64("recipe_id", c.hit.RecipeID))
			continue
		}

		result := types.SearchResult{
			Recipe:     *recipe,
			Highlights: c.hit.Highlights,
		}
		if !includeDetail {
			result.Recipe = recipe.Summary()
		}
		if useVector && c.inIndex {
			dist := c.distance
			result.Distance = &dist
		}
		results = append(results, result)
	}
	return results, nil
}
