package chat

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	openai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/intellicook/recipe-search/pkg/types"
)

func testRecipe() *types.Recipe {
	return &types.Recipe{
		ID:          1,
		Title:       "Tomato Soup",
		Description: "a simple soup",
		Ingredients: []types.Ingredient{{Name: "tomato"}, {Name: "onion"}},
	}
}

// mockChatServer fakes an OpenAI-compatible chat completion endpoint and
// captures the last request it received.
func mockChatServer(t *testing.T, reply string) (*httptest.Server, *openai.ChatCompletionRequest) {
	var captured openai.ChatCompletionRequest

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))

		resp := openai.ChatCompletionResponse{
			Choices: []openai.ChatCompletionChoice{{
				Message: openai.ChatCompletionMessage{
					Role:    openai.ChatMessageRoleAssistant,
					Content: reply,
				},
			}},
		}
		w.Header().Set("Content-Type", "application/json")
		require.NoError(t, json.NewEncoder(w).Encode(resp))
	}))
	t.Cleanup(server.Close)
	return server, &captured
}

func newTestAssistant(t *testing.T, baseURL string, limit int) *OpenAIAssistant {
	assistant, err := NewOpenAI(Config{
		APIKey:       "test-key",
		BaseURL:      baseURL + "/v1",
		MessageLimit: limit,
	}, zap.NewNop())
	require.NoError(t, err)
	return assistant
}

func TestNewOpenAIRequiresAPIKey(t *testing.T) {
	_, err := NewOpenAI(Config{}, nil)
	assert.ErrorIs(t, err, types.ErrInvalidArgument)
}

func TestChatByRecipe(t *testing.T) {
	server, captured := mockChatServer(t, "Use ripe tomatoes.")
	assistant := newTestAssistant(t, server.URL, 0)

	reply, err := assistant.ChatByRecipe(context.Background(), "ada", testRecipe(), []Message{
		{Role: RoleUser, Text: "Any tips?"},
	})
	require.NoError(t, err)
	assert.Equal(t, RoleAssistant, reply.Role)
	assert.Equal(t, "Use ripe tomatoes.", reply.Text)

	// System prompt names the user and carries the recipe
	require.NotEmpty(t, captured.Messages)
	system := captured.Messages[0]
	assert.Equal(t, openai.ChatMessageRoleSystem, system.Role)
	assert.Contains(t, system.Content, "ada")
	assert.Contains(t, system.Content, "Tomato Soup")
	assert.Contains(t, system.Content, "cooking assistant")

	last := captured.Messages[len(captured.Messages)-1]
	assert.Equal(t, openai.ChatMessageRoleUser, last.Role)
	assert.Equal(t, "Any tips?", last.Content)
}

func TestChatByRecipeMessageLimit(t *testing.T) {
	server, captured := mockChatServer(t, "ok")
	assistant := newTestAssistant(t, server.URL, 2)

	messages := []Message{
		{Role: RoleUser, Text: "first"},
		{Role: RoleAssistant, Text: "second"},
		{Role: RoleUser, Text: "third"},
	}
	_, err := assistant.ChatByRecipe(context.Background(), "ada", testRecipe(), messages)
	require.NoError(t, err)

	// System prompt plus the newest two turns
	require.Len(t, captured.Messages, 3)
	assert.Equal(t, "second", captured.Messages[1].Content)
	assert.Equal(t, openai.ChatMessageRoleAssistant, captured.Messages[1].Role)
	assert.Equal(t, "third", captured.Messages[2].Content)
}

func TestChatByRecipeValidation(t *testing.T) {
	server, _ := mockChatServer(t, "ok")
	assistant := newTestAssistant(t, server.URL, 0)
	ctx := context.Background()

	_, err := assistant.ChatByRecipe(ctx, "ada", nil, []Message{{Role: RoleUser, Text: "hi"}})
	assert.ErrorIs(t, err, types.ErrInvalidArgument)

	_, err = assistant.ChatByRecipe(ctx, "ada", testRecipe(), nil)
	assert.ErrorIs(t, err, types.ErrInvalidArgument)
}

func TestChatByRecipeBackendDown(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	t.Cleanup(server.Close)

	assistant := newTestAssistant(t, server.URL, 0)
	_, err := assistant.ChatByRecipe(context.Background(), "ada", testRecipe(), []Message{
		{Role: RoleUser, Text: "hi"},
	})
	assert.ErrorIs(t, err, types.ErrBackendUnavailable)
}

func TestSystemPromptStaysOnTopic(t *testing.T) {
	prompt, err := systemPrompt("ada", testRecipe())
	require.NoError(t, err)

	assert.True(t, strings.Contains(prompt, "only help with cooking-related queries"))
	assert.Contains(t, prompt, `"title":"Tomato Soup"`)
}
