package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/intellicook/recipe-search/internal/chat"
	"github.com/intellicook/recipe-search/internal/indexer"
	"github.com/intellicook/recipe-search/internal/service"
	"github.com/intellicook/recipe-search/pkg/types"
)

// MCP error codes
const (
	ErrorCodeInvalidParams      = -32602 // Invalid method parameters
	ErrorCodeInternalError      = -32603 // Internal JSON-RPC error
	ErrorCodeNotFound           = -32001 // Recipe or profile does not exist
	ErrorCodeRebuildInProgress  = -32002 // Another index rebuild is already running
	ErrorCodeNotInitialized     = -32003 // No vector index has been built yet
	ErrorCodeDimensionMismatch  = -32004 // Index dimension does not match the embedding model
	ErrorCodeBackendUnavailable = -32005 // A backing service is unreachable
)

// handleAddRecipes handles the add_recipes tool invocation
func (s *Server) handleAddRecipes(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	var recipes []*types.Recipe
	if err := decodeArg(args["recipes"], &recipes); err != nil {
		return nil, newMCPError(ErrorCodeInvalidParams, "recipes parameter is malformed", map[string]interface{}{
			"param":  "recipes",
			"reason": err.Error(),
		})
	}
	if len(recipes) == 0 {
		return nil, newMCPError(ErrorCodeInvalidParams, "recipes parameter is required", map[string]interface{}{
			"param":  "recipes",
			"reason": "missing or empty",
		})
	}

	if err := s.service.AddRecipes(ctx, recipes); err != nil {
		return nil, toolError(err, "failed to add recipes")
	}

	ids := make([]int64, len(recipes))
	for i, recipe := range recipes {
		ids[i] = recipe.ID
	}

	return mcp.NewToolResultText(formatJSON(map[string]interface{}{
		"added": len(recipes),
		"ids":   ids,
	})), nil
}

// handleGetRecipe handles the get_recipe tool invocation
func (s *Server) handleGetRecipe(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	id := int64(getIntDefault(args, "id", 0))
	if id <= 0 {
		return nil, newMCPError(ErrorCodeInvalidParams, "id parameter is required", map[string]interface{}{
			"param":  "id",
			"reason": "missing or not positive",
		})
	}

	recipe, err := s.service.GetRecipe(ctx, id)
	if err != nil {
		return nil, toolError(err, "failed to get recipe")
	}

	return mcp.NewToolResultText(formatJSON(map[string]interface{}{
		"recipe": recipe,
	})), nil
}

// handleSearchRecipes handles the search_recipes tool invocation
func (s *Server) handleSearchRecipes(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	ingredients := getStringList(args, "ingredients")
	if len(ingredients) == 0 {
		return nil, newMCPError(ErrorCodeInvalidParams, "ingredients parameter is required", map[string]interface{}{
			"param":  "ingredients",
			"reason": "missing or empty",
		})
	}

	params := service.SearchParams{
		Username:      getStringDefault(args, "username", ""),
		Ingredients:   ingredients,
		ExtraTerms:    getStringList(args, "extra_terms"),
		Page:          getIntDefault(args, "page", 1),
		PerPage:       getIntDefault(args, "per_page", 10),
		IncludeDetail: getBoolDefault(args, "include_detail", false),
	}

	results, err := s.service.SearchRecipes(ctx, params)
	if err != nil {
		return nil, toolError(err, "search failed")
	}

	return mcp.NewToolResultText(formatJSON(map[string]interface{}{
		"results":  results,
		"count":    len(results),
		"page":     params.Page,
		"per_page": params.PerPage,
	})), nil
}

// handleSetUserProfile handles the set_user_profile tool invocation
func (s *Server) handleSetUserProfile(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	username := getStringDefault(args, "username", "")
	if username == "" {
		return nil, newMCPError(ErrorCodeInvalidParams, "username parameter is required", map[string]interface{}{
			"param":  "username",
			"reason": "missing or empty",
		})
	}

	profile := &types.UserProfile{
		Username:       username,
		VeggieIdentity: types.VeggieIdentity(getStringDefault(args, "veggie_identity", "")),
		Prefer:         getStringList(args, "prefer"),
		Dislike:        getStringList(args, "dislike"),
	}

	if err := s.service.SetUserProfile(ctx, profile); err != nil {
		return nil, toolError(err, "failed to set profile")
	}

	return mcp.NewToolResultText(formatJSON(map[string]interface{}{
		"username": profile.Username,
		"updated":  true,
	})), nil
}

// handleGetUserProfile handles the get_user_profile tool invocation
func (s *Server) handleGetUserProfile(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	username := getStringDefault(args, "username", "")
	if username == "" {
		return nil, newMCPError(ErrorCodeInvalidParams, "username parameter is required", map[string]interface{}{
			"param":  "username",
			"reason": "missing or empty",
		})
	}

	profile, err := s.service.GetUserProfile(ctx, username)
	if err != nil {
		return nil, toolError(err, "failed to get profile")
	}

	return mcp.NewToolResultText(formatJSON(map[string]interface{}{
		"profile": profile,
	})), nil
}

// handleRebuildIndex handles the rebuild_index tool invocation
func (s *Server) handleRebuildIndex(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, _ := request.Params.Arguments.(map[string]interface{})
	if args == nil {
		args = map[string]interface{}{}
	}

	params := indexer.Params{
		Count: getIntDefault(args, "count", 0),
		Model: getStringDefault(args, "model", ""),
	}

	jobID, err := s.service.RebuildIndex(params)
	if err != nil {
		return nil, toolError(err, "failed to start rebuild")
	}

	return mcp.NewToolResultText(formatJSON(map[string]interface{}{
		"job_id":  jobID,
		"started": true,
	})), nil
}

// handleIndexJobStatus handles the index_job_status tool invocation
func (s *Server) handleIndexJobStatus(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	status := s.service.IndexJobStatus()

	response := map[string]interface{}{
		"state":  string(status.State),
		"job_id": status.JobID,
	}
	if status.State != indexer.StateUninitialized {
		response["model"] = status.Model
		response["started_at"] = status.StartedAt
	}
	if status.State == indexer.StateCompleted {
		response["count"] = status.Count
		response["finished_at"] = status.FinishedAt
	}
	if status.State == indexer.StateFailed {
		response["error"] = status.Error
		response["finished_at"] = status.FinishedAt
	}

	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleChatByRecipe handles the chat_by_recipe tool invocation
func (s *Server) handleChatByRecipe(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	username := getStringDefault(args, "username", "")
	if username == "" {
		return nil, newMCPError(ErrorCodeInvalidParams, "username parameter is required", map[string]interface{}{
			"param":  "username",
			"reason": "missing or empty",
		})
	}

	recipeID := int64(getIntDefault(args, "recipe_id", 0))
	if recipeID <= 0 {
		return nil, newMCPError(ErrorCodeInvalidParams, "recipe_id parameter is required", map[string]interface{}{
			"param":  "recipe_id",
			"reason": "missing or not positive",
		})
	}

	var messages []chat.Message
	if err := decodeArg(args["messages"], &messages); err != nil {
		return nil, newMCPError(ErrorCodeInvalidParams, "messages parameter is malformed", map[string]interface{}{
			"param":  "messages",
			"reason": err.Error(),
		})
	}
	if len(messages) == 0 {
		return nil, newMCPError(ErrorCodeInvalidParams, "messages parameter is required", map[string]interface{}{
			"param":  "messages",
			"reason": "missing or empty",
		})
	}

	reply, err := s.service.ChatByRecipe(ctx, username, recipeID, messages)
	if err != nil {
		return nil, toolError(err, "chat failed")
	}

	return mcp.NewToolResultText(formatJSON(map[string]interface{}{
		"message": reply,
	})), nil
}

// handleResetData handles the reset_data tool invocation
func (s *Server) handleResetData(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	if !getBoolDefault(args, "confirm", false) {
		return nil, newMCPError(ErrorCodeInvalidParams, "confirm must be true", map[string]interface{}{
			"param":  "confirm",
			"reason": "reset_data deletes all recipe data",
		})
	}

	if err := s.service.ResetData(ctx); err != nil {
		return nil, toolError(err, "reset failed")
	}

	return mcp.NewToolResultText(formatJSON(map[string]interface{}{
		"reset": true,
	})), nil
}

// handleGetHealth handles the get_health tool invocation
func (s *Server) handleGetHealth(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	health := s.service.Health(ctx)

	return mcp.NewToolResultText(formatJSON(map[string]interface{}{
		"status": health.Status,
		"checks": health.Checks,
	})), nil
}

// toolError maps domain sentinel errors to MCP error codes
func toolError(err error, message string) error {
	code := ErrorCodeInternalError
	switch {
	case errors.Is(err, types.ErrInvalidArgument):
		code = ErrorCodeInvalidParams
	case errors.Is(err, types.ErrNotFound):
		code = ErrorCodeNotFound
	case errors.Is(err, types.ErrRebuildInProgress):
		code = ErrorCodeRebuildInProgress
	case errors.Is(err, types.ErrNotInitialized):
		code = ErrorCodeNotInitialized
	case errors.Is(err, types.ErrDimensionMismatch):
		code = ErrorCodeDimensionMismatch
	case errors.Is(err, types.ErrBackendUnavailable):
		code = ErrorCodeBackendUnavailable
	}
	return newMCPError(code, message, map[string]interface{}{
		"error": err.Error(),
	})
}

func newMCPError(code int, message string, data interface{}) error {
	// MCP errors are returned as regular errors, the framework handles encoding
	return &MCPError{
		Code:    code,
		Message: message,
		Data:    data,
	}
}

// MCPError represents an MCP protocol error
type MCPError struct {
	Code    int
	Message string
	Data    interface{}
}

func (e *MCPError) Error() string {
	return fmt.Sprintf("MCP error %d: %s", e.Code, e.Message)
}

// decodeArg round-trips a decoded JSON argument into a typed value
func decodeArg(raw interface{}, out interface{}) error {
	if raw == nil {
		return nil
	}
	bytes, err := json.Marshal(raw)
	if err != nil {
		return err
	}
	return json.Unmarshal(bytes, out)
}

func formatJSON(data map[string]interface{}) string {
	bytes, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Sprintf("%v", data)
	}
	return string(bytes)
}

// getBoolDefault extracts a boolean parameter with a default value
func getBoolDefault(args map[string]interface{}, key string, defaultValue bool) bool {
	if val, ok := args[key].(bool); ok {
		return val
	}
	return defaultValue
}

// getIntDefault extracts an integer parameter with a default value
func getIntDefault(args map[string]interface{}, key string, defaultValue int) int {
	if val, ok := args[key].(float64); ok {
		return int(val)
	}
	if val, ok := args[key].(int); ok {
		return val
	}
	return defaultValue
}

// getStringDefault extracts a string parameter with a default value
func getStringDefault(args map[string]interface{}, key string, defaultValue string) string {
	if val, ok := args[key].(string); ok {
		return val
	}
	return defaultValue
}

// getStringList extracts a string array parameter, dropping non-strings
func getStringList(args map[string]interface{}, key string) []string {
	raw, ok := args[key].([]interface{})
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, item := range raw {
		if s, ok := item.(string); ok && s != "" {
			out = append(out, s)
		}
	}
	return out
}
