package searcher

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/intellicook/recipe-search/internal/storage"
	"github.com/intellicook/recipe-search/internal/textindex"
	"github.com/intellicook/recipe-search/internal/vectorindex"
	"github.com/intellicook/recipe-search/pkg/types"
)

func setupEngine(t *testing.T) (*Engine, storage.Storage, *Handle) {
	store, err := storage.NewSQLiteStorage(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	collection := textindex.NewCollection(store.DB(), zap.NewNop(), textindex.Options{})
	ctx := context.Background()
	require.NoError(t, collection.EnsureSchema(ctx))

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
			Directions:  []string{"chop"},
		},
		{
			Title:       "Tomato Pasta",
			Description: "weeknight pasta",
			Ingredients: []types.Ingredient{{Name: "tomato"}, {Name: "pasta"}},
			Directions:  []string{"boil"},
		},
	}
	require.NoError(t, store.AddRecipes(ctx, recipes))

	docs := make([]textindex.Document, len(recipes))
	for i, r := range recipes {
		docs[i] = textindex.Document{
			RecipeID:    r.ID,
			Title:       r.Title,
			Description: r.Description,
			Ingredients: r.IngredientNames(),
		}
	}
	require.NoError(t, collection.Import(ctx, docs))

	handle := NewHandle()
	return New(store, collection, handle, zap.NewNop()), store, handle
}

// activateIndex installs a 2-dimensional index over the given id->vector map
func activateIndex(t *testing.T, handle *Handle, vectors map[int64][]float32) {
	idx, err := vectorindex.New(2)
	require.NoError(t, err)
	for id, vec := range vectors {
		require.NoError(t, idx.Add(id, vec))
	}
	handle.Swap(&Model{Name: "test-model", Index: idx})
}

func TestSearchValidation(t *testing.T) {
	engine, _, _ := setupEngine(t)
	ctx := context.Background()

	_, err := engine.Search(ctx, Request{Page: 1, PerPage: 10})
	assert.ErrorIs(t, err, types.ErrInvalidArgument)

	_, err = engine.Search(ctx, Request{Ingredients: []string{"tomato"}, Page: 0, PerPage: 10})
	assert.ErrorIs(t, err, types.ErrInvalidArgument)

	_, err = engine.Search(ctx, Request{Ingredients: []string{"tomato"}, Page: 1, PerPage: 0})
	assert.ErrorIs(t, err, types.ErrInvalidArgument)
}

func TestSearchLexicalOnly(t *testing.T) {
	engine, _, _ := setupEngine(t)

	results, err := engine.Search(context.Background(), Request{
		Ingredients: []string{"tomato"},
		Page:        1,
		PerPage:     10,
	})
	require.NoError(t, err)
	assert.Len(t, results, 3)

	for _, r := range results {
		assert.Nil(t, r.Distance)
		assert.NotEmpty(t, r.Highlights)
	}
}

func TestSearchVectorWithoutModel(t *testing.T) {
	engine, _, _ := setupEngine(t)

	_, err := engine.Search(context.Background(), Request{
		Ingredients:   []string{"tomato"},
		ProfileVector: []float32{1, 0},
		Page:          1,
		PerPage:       10,
	})
	assert.ErrorIs(t, err, types.ErrNotInitialized)
}

func TestSearchVectorReranks(t *testing.T) {
	engine, _, handle := setupEngine(t)

	// Recipe 3 is closest to the profile, then 1, then 2
	activateIndex(t, handle, map[int64][]float32{
		1: {0.8, 0.6},
		2: {0, 1},
		3: {1, 0},
	})

	results, err := engine.Search(context.Background(), Request{
		Ingredients:   []string{"tomato"},
		ProfileVector: []float32{1, 0},
		Page:          1,
		PerPage:       10,
	})
	require.NoError(t, err)
	require.Len(t, results, 3)

	assert.Equal(t, int64(3), results[0].Recipe.ID)
	assert.Equal(t, int64(1), results[1].Recipe.ID)
	assert.Equal(t, int64(2), results[2].Recipe.ID)

	require.NotNil(t, results[0].Distance)
	assert.InDelta(t, 0.0, *results[0].Distance, 1e-6)
	require.NotNil(t, results[2].Distance)
	assert.InDelta(t, 1.0, *results[2].Distance, 1e-6)
}

func TestSearchUnindexedCandidatesSortLast(t *testing.T) {
	engine, _, handle := setupEngine(t)

	// Recipe 2 is missing from the vector index
	activateIndex(t, handle, map[int64][]float32{
		1: {0, 1},
		3: {1, 0},
	})

	results, err := engine.Search(context.Background(), Request{
		Ingredients:   []string{"tomato"},
		ProfileVector: []float32{1, 0},
		Page:          1,
		PerPage:       10,
	})
	require.NoError(t, err)
	require.Len(t, results, 3)

	assert.Equal(t, int64(3), results[0].Recipe.ID)
	assert.Equal(t, int64(1), results[1].Recipe.ID)
	assert.Equal(t, int64(2), results[2].Recipe.ID)

	// No distance is reported for a hit outside the index
	assert.Nil(t, results[2].Distance)
}

func TestSearchPagination(t *testing.T) {
	engine, _, _ := setupEngine(t)
	ctx := context.Background()

	first, err := engine.Search(ctx, Request{Ingredients: []string{"tomato"}, Page: 1, PerPage: 2})
	require.NoError(t, err)
	assert.Len(t, first, 2)

	second, err := engine.Search(ctx, Request{Ingredients: []string{"tomato"}, Page: 2, PerPage: 2})
	require.NoError(t, err)
	assert.Len(t, second, 1)

	// Pages do not overlap
	assert.NotEqual(t, first[0].Recipe.ID, second[0].Recipe.ID)
	assert.NotEqual(t, first[1].Recipe.ID, second[0].Recipe.ID)

	// A page past the end is empty, not an error
	third, err := engine.Search(ctx, Request{Ingredients: []string{"tomato"}, Page: 3, PerPage: 2})
	require.NoError(t, err)
	assert.Empty(t, third)
}

func TestSearchVectorPaginationCoversFullMatchSet(t *testing.T) {
	engine, _, handle := setupEngine(t)
	ctx := context.Background()

	// Vector order over the whole match set is 3, 1, 2
	activateIndex(t, handle, map[int64][]float32{
		1: {0.8, 0.6},
		2: {0, 1},
		3: {1, 0},
	})
	profile := []float32{1, 0}

	var paged []int64
	for page := 1; page <= 3; page++ {
		results, err := engine.Search(ctx, Request{
			Ingredients:   []string{"tomato"},
			ProfileVector: profile,
			Page:          page,
			PerPage:       1,
		})
		require.NoError(t, err)
		require.Len(t, results, 1)
		paged = append(paged, results[0].Recipe.ID)
	}

	// Vector distance decides page membership even when a page is smaller
	// than the match set: the closest recipe lands on page one, pages are
	// disjoint, and walking them reproduces the unpaginated order
	assert.Equal(t, []int64{3, 1, 2}, paged)

	all, err := engine.Search(ctx, Request{
		Ingredients:   []string{"tomato"},
		ProfileVector: profile,
		Page:          1,
		PerPage:       10,
	})
	require.NoError(t, err)
	unpaginated := make([]int64, len(all))
	for i, r := range all {
		unpaginated[i] = r.Recipe.ID
	}
	assert.Equal(t, paged, unpaginated)
}

func TestSearchSummaryVsDetail(t *testing.T) {
	engine, _, _ := setupEngine(t)
	ctx := context.Background()

	summaries, err := engine.Search(ctx, Request{Ingredients: []string{"soup"}, Page: 1, PerPage: 10})
	require.NoError(t, err)
	require.Len(t, summaries, 1)
	assert.Empty(t, summaries[0].Recipe.Directions)
	assert.NotEmpty(t, summaries[0].Recipe.Ingredients)

	detailed, err := engine.Search(ctx, Request{
		Ingredients:   []string{"soup"},
		Page:          1,
		PerPage:       10,
		IncludeDetail: true,
	})
	require.NoError(t, err)
	require.Len(t, detailed, 1)
	assert.Equal(t, []string{"simmer"}, detailed[0].Recipe.Directions)
}

func TestSearchDropsDeletedRecipes(t *testing.T) {
	engine, store, _ := setupEngine(t)
	ctx := context.Background()

	// Wipe the store but leave the text collection populated
	require.NoError(t, store.DeleteAllRecipes(ctx))

	results, err := engine.Search(ctx, Request{Ingredients: []string{"tomato"}, Page: 1, PerPage: 10})
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestSearchNoMatches(t *testing.T) {
	engine, _, _ := setupEngine(t)

	results, err := engine.Search(context.Background(), Request{
		Ingredients: []string{"durian"},
		Page:        1,
		PerPage:     10,
	})
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestHandleSwap(t *testing.T) {
	handle := NewHandle()
	assert.Nil(t, handle.Load())

	idx, err := vectorindex.New(2)
	require.NoError(t, err)
	model := &Model{Name: "m", Index: idx}
	handle.Swap(model)
	assert.Same(t, model, handle.Load())

	handle.Swap(nil)
	assert.Nil(t, handle.Load())
}
