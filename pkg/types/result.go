package types

// HighlightField names the recipe field a search match occurred in.
type HighlightField string

const (
	HighlightTitle       HighlightField = "title"
	HighlightDescription HighlightField = "description"
	HighlightIngredients HighlightField = "ingredients"
)

// Highlight describes one matched field of a search hit. Index is only set
// for list-valued fields (ingredients) and is the position of the matched
// element within the list.
type Highlight struct {
	Field  HighlightField `json:"field"`
	Tokens []string       `json:"tokens"`
	Index  *int           `json:"index,omitempty"`
}

// SearchResult is one ranked search hit. Distance is set only when the hit
// was ranked against a profile vector; lower means closer.
type SearchResult struct {
	Recipe     Recipe      `json:"recipe"`
	Highlights []Highlight `json:"highlights"`
	Distance   *float64    `json:"distance,omitempty"`
}
