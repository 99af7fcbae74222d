package mcp

import (
	"github.com/mark3labs/mcp-go/mcp"
)

// addRecipesTool returns the tool definition for add_recipes
func addRecipesTool() mcp.Tool {
	return mcp.Tool{
		Name:        "add_recipes",
		Description: "Add recipes to the store and make them searchable",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"recipes": map[string]interface{}{
					"type":        "array",
					"description": "Recipes to add",
					"items": map[string]interface{}{
						"type": "object",
						"properties": map[string]interface{}{
							"title":       map[string]interface{}{"type": "string"},
							"description": map[string]interface{}{"type": "string"},
							"ingredients": map[string]interface{}{
								"type": "array",
								"items": map[string]interface{}{
									"type": "object",
									"properties": map[string]interface{}{
										"name":     map[string]interface{}{"type": "string"},
										"quantity": map[string]interface{}{"type": "string"},
										"unit":     map[string]interface{}{"type": "string"},
									},
									"required": []string{"name"},
								},
							},
							"directions": map[string]interface{}{
								"type":  "array",
								"items": map[string]interface{}{"type": "string"},
							},
							"tips": map[string]interface{}{
								"type":  "array",
								"items": map[string]interface{}{"type": "string"},
							},
							"utensils": map[string]interface{}{
								"type":  "array",
								"items": map[string]interface{}{"type": "string"},
							},
							"nutrition": map[string]interface{}{
								"type": "object",
								"properties": map[string]interface{}{
									"calories": nutritionValueSchema(),
									"fat":      nutritionValueSchema(),
									"protein":  nutritionValueSchema(),
									"carbs":    nutritionValueSchema(),
								},
							},
						},
						"required": []string{"title", "ingredients"},
					},
				},
			},
			Required: []string{"recipes"},
		},
	}
}

func nutritionValueSchema() map[string]interface{} {
	return map[string]interface{}{
		"type": "string",
		"enum": []string{"high", "medium", "low", "none"},
	}
}

// getRecipeTool returns the tool definition for get_recipe
func getRecipeTool() mcp.Tool {
	return mcp.Tool{
		Name:        "get_recipe",
		Description: "Fetch one recipe by id",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"id": map[string]interface{}{
					"type":        "integer",
					"description": "Recipe id",
					"minimum":     1,
				},
			},
			Required: []string{"id"},
		},
	}
}

// searchRecipesTool returns the tool definition for search_recipes
func searchRecipesTool() mcp.Tool {
	return mcp.Tool{
		Name:        "search_recipes",
		Description: "Search recipes by ingredients, personalized by user profile when a username is given",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"ingredients": map[string]interface{}{
					"type":        "array",
					"description": "Ingredient search terms",
					"items":       map[string]interface{}{"type": "string"},
				},
				"username": map[string]interface{}{
					"type":        "string",
					"description": "Rank with this user's profile when set",
				},
				"extra_terms": map[string]interface{}{
					"type":        "array",
					"description": "Additional terms folded into the profile vector",
					"items":       map[string]interface{}{"type": "string"},
				},
				"page": map[string]interface{}{
					"type":        "integer",
					"description": "1-indexed page",
					"default":     1,
					"minimum":     1,
				},
				"per_page": map[string]interface{}{
					"type":        "integer",
					"description": "Results per page",
					"default":     10,
					"minimum":     1,
					"maximum":     100,
				},
				"include_detail": map[string]interface{}{
					"type":        "boolean",
					"description": "Return full recipes instead of summaries",
					"default":     false,
				},
			},
			Required: []string{"ingredients"},
		},
	}
}

// setUserProfileTool returns the tool definition for set_user_profile
func setUserProfileTool() mcp.Tool {
	return mcp.Tool{
		Name:        "set_user_profile",
		Description: "Set a user's profile, replacing the entire record",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"username": map[string]interface{}{"type": "string"},
				"veggie_identity": map[string]interface{}{
					"type":        "string",
					"description": "Dietary identity",
					"enum":        []string{"omnivore", "vegetarian", "vegan"},
					"default":     "omnivore",
				},
				"prefer": map[string]interface{}{
					"type":        "array",
					"description": "Ingredients or foods the user prefers",
					"items":       map[string]interface{}{"type": "string"},
				},
				"dislike": map[string]interface{}{
					"type":        "array",
					"description": "Ingredients or foods the user dislikes",
					"items":       map[string]interface{}{"type": "string"},
				},
			},
			Required: []string{"username"},
		},
	}
}

// getUserProfileTool returns the tool definition for get_user_profile
func getUserProfileTool() mcp.Tool {
	return mcp.Tool{
		Name:        "get_user_profile",
		Description: "Fetch a user's profile",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"username": map[string]interface{}{"type": "string"},
			},
			Required: []string{"username"},
		},
	}
}

// rebuildIndexTool returns the tool definition for rebuild_index
func rebuildIndexTool() mcp.Tool {
	return mcp.Tool{
		Name:        "rebuild_index",
		Description: "Rebuild the vector index in the background",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"count": map[string]interface{}{
					"type":        "integer",
					"description": "Cap on how many recipes to index, 0 for all",
					"default":     0,
					"minimum":     0,
				},
				"model": map[string]interface{}{
					"type":        "string",
					"description": "Embedding model name recorded with the index",
				},
			},
		},
	}
}

// indexJobStatusTool returns the tool definition for index_job_status
func indexJobStatusTool() mcp.Tool {
	return mcp.Tool{
		Name:        "index_job_status",
		Description: "Query the status of the index rebuild job",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{},
		},
	}
}

// chatByRecipeTool returns the tool definition for chat_by_recipe
func chatByRecipeTool() mcp.Tool {
	return mcp.Tool{
		Name:        "chat_by_recipe",
		Description: "Chat with the cooking assistant about one recipe",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"username":  map[string]interface{}{"type": "string"},
				"recipe_id": map[string]interface{}{"type": "integer", "minimum": 1},
				"messages": map[string]interface{}{
					"type":        "array",
					"description": "Chat history, oldest first",
					"items": map[string]interface{}{
						"type": "object",
						"properties": map[string]interface{}{
							"role": map[string]interface{}{
								"type": "string",
								"enum": []string{"user", "assistant"},
							},
							"text": map[string]interface{}{"type": "string"},
						},
						"required": []string{"role", "text"},
					},
				},
			},
			Required: []string{"username", "recipe_id", "messages"},
		},
	}
}

// resetDataTool returns the tool definition for reset_data
func resetDataTool() mcp.Tool {
	return mcp.Tool{
		Name:        "reset_data",
		Description: "Delete all recipes, restart the id sequence, clear the text collection and the index metadata",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"confirm": map[string]interface{}{
					"type":        "boolean",
					"description": "Must be true; this destroys all recipe data",
				},
			},
			Required: []string{"confirm"},
		},
	}
}

// getHealthTool returns the tool definition for get_health
func getHealthTool() mcp.Tool {
	return mcp.Tool{
		Name:        "get_health",
		Description: "Aggregate health of the database and the text index",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{},
		},
	}
}
