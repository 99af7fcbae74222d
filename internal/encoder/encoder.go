// Package encoder turns recipes, profiles and ingredient queries into
// embedding vectors using a configurable strategy over an embedder.
package encoder

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/intellicook/recipe-search/internal/embedder"
	"github.com/intellicook/recipe-search/pkg/types"
)

// Strategy selects how a list of terms becomes one vector
type Strategy string

const (
	// CommaJoined embeds the comma-joined term list as one text
	CommaJoined Strategy = "comma_joined"
	// QueriedCommaJoined wraps the comma-joined list in the query template
	// before embedding. Query-side only; degrades to CommaJoined with a
	// warning on the document side.
	QueriedCommaJoined Strategy = "queried_comma_joined"
	// AverageVec embeds each term separately and averages the vectors
	AverageVec Strategy = "average_vec"
	// AverageQueriedVec wraps each term in the query template, embeds each
	// separately and averages. Query-side only, like QueriedCommaJoined.
	AverageQueriedVec Strategy = "average_queried_vec"
)

// QueryTemplate phrases an ingredient list as a retrieval question
const QueryTemplate = "Which food ingredient lists contain %s?"

// Defaults per side
const (
	DefaultDocumentStrategy = CommaJoined
	DefaultQueryStrategy    = QueriedCommaJoined
)

// Encoder encodes terms, recipes and profiles into L2-normalized vectors
type Encoder struct {
	emb    embedder.Embedder
	logger *zap.Logger

	docStrategy   Strategy
	queryStrategy Strategy
}

// Option configures an Encoder
type Option func(*Encoder)

// WithDocumentStrategy overrides the document-side strategy
func WithDocumentStrategy(s Strategy) Option {
	return func(e *Encoder) { e.docStrategy = s }
}

// WithQueryStrategy overrides the query-side strategy
func WithQueryStrategy(s Strategy) Option {
	return func(e *Encoder) { e.queryStrategy = s }
}

// New creates an Encoder over the given embedder
func New(emb embedder.Embedder, logger *zap.Logger, opts ...Option) *Encoder {
	if logger == nil {
		logger = zap.NewNop()
	}
	e := &Encoder{
		emb:           emb,
		logger:        logger,
		docStrategy:   DefaultDocumentStrategy,
		queryStrategy: DefaultQueryStrategy,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Dimension returns the embedding dimension of the underlying embedder
func (e *Encoder) Dimension() int {
	return e.emb.Dimension()
}

// Model returns the underlying embedding model name
func (e *Encoder) Model() string {
	return e.emb.Model()
}

// EncodeTerms encodes a term list into one L2-normalized vector with the
// given strategy. Queried strategies are only meaningful on the query side;
// invoked with isQuery=false they log a warning and fall back to their
// non-queried counterpart.
func (e *Encoder) EncodeTerms(ctx context.Context, terms []string, isQuery bool, strategy Strategy) ([]float32, error) {
	if len(terms) == 0 {
		return nil, fmt.Errorf("%w: no terms to encode", types.ErrInvalidArgument)
	}

	strategy = e.effectiveStrategy(strategy, isQuery)

	switch strategy {
	case CommaJoined:
		return e.embedText(ctx, strings.Join(terms, ", "))
	case QueriedCommaJoined:
		return e.embedText(ctx, fmt.Sprintf(QueryTemplate, strings.Join(terms, ", ")))
	case AverageVec:
		return e.embedAverage(ctx, terms)
	case AverageQueriedVec:
		queried := make([]string, len(terms))
		for i, term := range terms {
			queried[i] = fmt.Sprintf(QueryTemplate, term)
		}
		return e.embedAverage(ctx, queried)
	default:
		return nil, fmt.Errorf("%w: unknown strategy %q", types.ErrInvalidArgument, strategy)
	}
}

// effectiveStrategy demotes queried strategies on the document side
func (e *Encoder) effectiveStrategy(strategy Strategy, isQuery bool) Strategy {
	if isQuery {
		return strategy
	}
	switch strategy {
	case QueriedCommaJoined:
		e.logger.Warn("queried strategy on document side, using comma_joined",
			zap.String("strategy", string(strategy)))
		return CommaJoined
	case AverageQueriedVec:
		e.logger.Warn("queried strategy on document side, using average_vec",
			zap.String("strategy", string(strategy)))
		return AverageVec
	default:
		return strategy
	}
}

// EncodeRecipe encodes a recipe from its ingredient names with the
// document-side strategy.
func (e *Encoder) EncodeRecipe(ctx context.Context, recipe *types.Recipe) ([]float32, error) {
	names := recipe.IngredientNames()
	if len(names) == 0 {
		return nil, fmt.Errorf("%w: recipe %d has no ingredients", types.ErrInvalidArgument, recipe.ID)
	}
	return e.EncodeTerms(ctx, names, false, e.docStrategy)
}

// EncodeQuery encodes search terms with the query-side strategy
func (e *Encoder) EncodeQuery(ctx context.Context, terms []string) ([]float32, error) {
	return e.EncodeTerms(ctx, terms, true, e.queryStrategy)
}

// EncodeProfile encodes a user profile plus optional extra search terms
// into one vector. The text is composed of PREFER and AVOID clauses from
// the profile and a trailing clause of extra terms. A profile with no
// preferences, no dislikes and no extra terms has no signal; the vector is
// nil and the error is nil.
func (e *Encoder) EncodeProfile(ctx context.Context, profile *types.UserProfile, extraTerms []string) ([]float32, error) {
	var clauses []string
	if profile != nil && len(profile.Prefer) > 0 {
		clauses = append(clauses, "PREFER "+strings.Join(profile.Prefer, ", ")+".")
	}
	if profile != nil && len(profile.Dislike) > 0 {
		clauses = append(clauses, "AVOID "+strings.Join(profile.Dislike, ", ")+".")
	}
	if len(extraTerms) > 0 {
		clauses = append(clauses, strings.Join(extraTerms, ", "))
	}
	if len(clauses) == 0 {
		return nil, nil
	}
	return e.embedText(ctx, strings.Join(clauses, " "))
}

// embedText embeds one text and normalizes the result
func (e *Encoder) embedText(ctx context.Context, text string) ([]float32, error) {
	emb, err := e.emb.Embed(ctx, embedder.Request{Text: text})
	if err != nil {
		return nil, fmt.Errorf("encode %q: %w", text, err)
	}
	return embedder.NormalizeVector(emb.Vector), nil
}

// embedAverage embeds each text, averages element-wise and normalizes
func (e *Encoder) embedAverage(ctx context.Context, texts []string) ([]float32, error) {
	resp, err := e.emb.EmbedBatch(ctx, embedder.BatchRequest{Texts: texts})
	if err != nil {
		return nil, fmt.Errorf("encode batch: %w", err)
	}
	if len(resp.Embeddings) == 0 {
		return nil, fmt.Errorf("%w: empty batch response", types.ErrInvalidArgument)
	}

	dim := len(resp.Embeddings[0].Vector)
	avg := make([]float32, dim)
	for _, emb := range resp.Embeddings {
		if len(emb.Vector) != dim {
			return nil, fmt.Errorf("%w: got %d and %d", types.ErrDimensionMismatch, dim, len(emb.Vector))
		}
		for i, v := range emb.Vector {
			avg[i] += v
		}
	}
	n := float32(len(resp.Embeddings))
	for i := range avg {
		avg[i] /= n
	}
	return embedder.NormalizeVector(avg), nil
}
