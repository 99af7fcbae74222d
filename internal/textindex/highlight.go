package textindex

import (
	"strings"

	"github.com/intellicook/recipe-search/pkg/types"
)

// extractHighlights reports which query tokens matched which fields of a
// hit. Ingredient matches carry the element index within the list.
func extractHighlights(title, description string, ingredients []string, tokens []string) []types.Highlight {
	highlights := make([]types.Highlight, 0, 2+len(ingredients))

	if matched := matchedTokens(title, tokens); len(matched) > 0 {
		highlights = append(highlights, types.Highlight{
			Field:  types.HighlightTitle,
			Tokens: matched,
		})
	}
	if matched := matchedTokens(description, tokens); len(matched) > 0 {
		highlights = append(highlights, types.Highlight{
			Field:  types.HighlightDescription,
			Tokens: matched,
		})
	}
	for i, ingredient := range ingredients {
		if matched := matchedTokens(ingredient, tokens); len(matched) > 0 {
			idx := i
			highlights = append(highlights, types.Highlight{
				Field:  types.HighlightIngredients,
				Tokens: matched,
				Index:  &idx,
			})
		}
	}
	return highlights
}

// matchedTokens returns the query tokens present as whole words in text,
// preserving query order.
func matchedTokens(text string, tokens []string) []string {
	words := make(map[string]bool)
	for _, w := range strings.Fields(strings.ToLower(text)) {
		words[strings.Trim(w, ".,;:!?\"'()")] = true
	}

	var matched []string
	for _, tok := range tokens {
		if words[tok] {
			matched = append(matched, tok)
		}
	}
	return matched
}
