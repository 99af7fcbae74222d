package types

// NutritionValue is a categorical nutrition level.
type NutritionValue string

const (
	NutritionHigh   NutritionValue = "high"
	NutritionMedium NutritionValue = "medium"
	NutritionLow    NutritionValue = "low"
	NutritionNone   NutritionValue = "none"
)

// Nutrition holds the categorical nutrition levels of a recipe.
type Nutrition struct {
	Calories NutritionValue `json:"calories"`
	Fat      NutritionValue `json:"fat"`
	Protein  NutritionValue `json:"protein"`
	Carbs    NutritionValue `json:"carbs"`
}

// Ingredient is a single entry in a recipe's ingredient list.
// Quantity and Unit are optional free-form strings ("2", "cups").
type Ingredient struct {
	Name     string `json:"name"`
	Quantity string `json:"quantity,omitempty"`
	Unit     string `json:"unit,omitempty"`
}

// Recipe is the stored recipe record. ID is assigned by the store on
// creation; everything else is caller-supplied.
type Recipe struct {
	ID          int64        `json:"id"`
	Title       string       `json:"title"`
	Description string       `json:"description"`
	Ingredients []Ingredient `json:"ingredients"`
	Directions  []string     `json:"directions,omitempty"`
	Tips        []string     `json:"tips,omitempty"`
	Utensils    []string     `json:"utensils,omitempty"`
	Nutrition   Nutrition    `json:"nutrition"`
}

// IngredientNames returns the ingredient names in list order.
func (r *Recipe) IngredientNames() []string {
	names := make([]string, len(r.Ingredients))
	for i, ing := range r.Ingredients {
		names[i] = ing.Name
	}
	return names
}

// Summary returns a copy stripped to identity and summary fields
// (id, title, description, ingredients). Used when search results are
// returned without detail.
func (r *Recipe) Summary() Recipe {
	return Recipe{
		ID:          r.ID,
		Title:       r.Title,
		Description: r.Description,
		Ingredients: r.Ingredients,
	}
}
