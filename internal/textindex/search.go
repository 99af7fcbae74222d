package textindex

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"go.uber.org/zap"
)

// Field weights for bm25 ranking. Title and ingredients count double since
// they carry far more signal than free-form descriptions. The leading zero
// is the unindexed recipe_id column.
const (
	weightTitle       = 2.0
	weightDescription = 1.0
	weightIngredients = 2.0
)

// maxTokenDrop bounds how many tokens the fallback can drop from each end
// of the query before giving up.
const maxTokenDrop = 3

// Search runs a weighted multi-field match for the given terms.
//
// Terms are ANDed. When the full query matches nothing and there is more
// than one token, tokens are dropped progressively from the ends, up to
// maxTokenDrop per side. Fewer dropped tokens is tried first, and within
// the same total, dropping from the right before the left; the first
// non-empty result set wins. Dropping from both ends at once is allowed,
// so a single matching token in the middle can still be found.
func (c *Collection) Search(ctx context.Context, terms []string, limit int) ([]Hit, error) {
	tokens := tokenize(terms)
	if len(tokens) == 0 {
		return []Hit{}, nil
	}
	if limit <= 0 {
		return []Hit{}, nil
	}

	hits, err := c.matchTokens(ctx, tokens, limit)
	if err != nil {
		return nil, err
	}
	if len(hits) > 0 || len(tokens) == 1 {
		return hits, nil
	}

	for total := 1; total <= 2*maxTokenDrop; total++ {
		right := total
		if right > maxTokenDrop {
			right = maxTokenDrop
		}
		for ; right >= 0; right-- {
			left := total - right
			if left > maxTokenDrop {
				continue
			}
			if left+right >= len(tokens) {
				continue
			}
			hits, err = c.matchTokens(ctx, tokens[left:len(tokens)-right], limit)
			if err != nil {
				return nil, err
			}
			if len(hits) > 0 {
				c.logger.Debug("token drop fallback matched",
					zap.Int("dropped_left", left),
					zap.Int("dropped_right", right))
				return hits, nil
			}
		}
	}

	return []Hit{}, nil
}

// matchTokens runs one FTS match and extracts highlights for each hit
func (c *Collection) matchTokens(ctx context.Context, tokens []string, limit int) ([]Hit, error) {
	match := buildMatchQuery(tokens)
	if match == "" {
		return []Hit{}, nil
	}

	query := `
		SELECT recipe_id, title, description, ingredients,
		       bm25(recipe_collection, 0, ?, ?, ?) AS score
		FROM recipe_collection
		WHERE recipe_collection MATCH ?
		ORDER BY score
		LIMIT ?
	`
	rows, err := c.db.QueryContext(ctx, query,
		weightTitle, weightDescription, weightIngredients, match, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to execute text search: %w", err)
	}
	defer func() { _ = rows.Close() }()

	hits := make([]Hit, 0, limit)
	for rows.Next() {
		var hit Hit
		var title, description, ingredientsRaw string
		if err := rows.Scan(&hit.RecipeID, &title, &description, &ingredientsRaw, &hit.Score); err != nil {
			return nil, err
		}
		hit.Highlights = extractHighlights(title, description, documentIngredients(ingredientsRaw), tokens)
		hits = append(hits, hit)
	}
	return hits, rows.Err()
}

// tokenize splits terms into lowercase word tokens
func tokenize(terms []string) []string {
	tokens := make([]string, 0, len(terms))
	for _, term := range terms {
		for _, word := range strings.Fields(term) {
			word = strings.ToLower(strings.Trim(word, ".,;:!?\"'()"))
			if word != "" {
				tokens = append(tokens, word)
			}
		}
	}
	return tokens
}

var ftsTokenPattern = regexp.MustCompile(`^[\p{L}\p{N}_]+$`)

// buildMatchQuery quotes each token so FTS5 operators in user input are
// treated as literals, not syntax.
func buildMatchQuery(tokens []string) string {
	quoted := make([]string, 0, len(tokens))
	for _, tok := range tokens {
		if !ftsTokenPattern.MatchString(tok) {
			tok = strings.ReplaceAll(tok, `"`, ``)
			if tok == "" {
				continue
			}
		}
		quoted = append(quoted, `"`+tok+`"`)
	}
	return strings.Join(quoted, " ")
}
