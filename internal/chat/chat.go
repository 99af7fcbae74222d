// Package chat implements the cooking assistant that answers questions
// about a specific recipe.
package chat

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/intellicook/recipe-search/pkg/types"
)

// DefaultMessageLimit caps how much chat history is forwarded to the model
const DefaultMessageLimit = 20

// Role identifies who authored a chat message
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one chat turn
type Message struct {
	Role Role   `json:"role"`
	Text string `json:"text"`
}

// Assistant answers user messages about a recipe
type Assistant interface {
	ChatByRecipe(ctx context.Context, username string, recipe *types.Recipe, messages []Message) (Message, error)
}

// Config configures the OpenAI-backed assistant
type Config struct {
	APIKey       string
	BaseURL      string // Optional: any OpenAI-compatible endpoint
	Model        string
	MessageLimit int
}

// OpenAIAssistant implements Assistant against an OpenAI-compatible chat API
type OpenAIAssistant struct {
	client       *openai.Client
	model        string
	messageLimit int
	logger       *zap.Logger
}

// NewOpenAI creates the assistant
func NewOpenAI(cfg Config, logger *zap.Logger) (*OpenAIAssistant, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%w: chat API key not set", types.ErrInvalidArgument)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Model == "" {
		cfg.Model = openai.GPT4oMini
	}
	if cfg.MessageLimit <= 0 {
		cfg.MessageLimit = DefaultMessageLimit
	}

	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}

	return &OpenAIAssistant{
		client:       openai.NewClientWithConfig(clientCfg),
		model:        cfg.Model,
		messageLimit: cfg.MessageLimit,
		logger:       logger,
	}, nil
}

// ChatByRecipe replies to the latest user message with the recipe as
// read-only context. Only the newest messageLimit turns are forwarded.
func (a *OpenAIAssistant) ChatByRecipe(ctx context.Context, username string, recipe *types.Recipe, messages []Message) (Message, error) {
	if recipe == nil {
		return Message{}, fmt.Errorf("%w: recipe is required", types.ErrInvalidArgument)
	}
	if len(messages) == 0 {
		return Message{}, fmt.Errorf("%w: at least one message is required", types.ErrInvalidArgument)
	}

	if len(messages) > a.messageLimit {
		messages = messages[len(messages)-a.messageLimit:]
	}

	system, err := systemPrompt(username, recipe)
	if err != nil {
		return Message{}, err
	}

	chatMessages := make([]openai.ChatCompletionMessage, 0, len(messages)+1)
	chatMessages = append(chatMessages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleSystem,
		Content: system,
	})
	for _, msg := range messages {
		role := openai.ChatMessageRoleUser
		if msg.Role == RoleAssistant {
			role = openai.ChatMessageRoleAssistant
		}
		chatMessages = append(chatMessages, openai.ChatCompletionMessage{
			Role:    role,
			Content: msg.Text,
		})
	}

	a.logger.Debug("chat by recipe",
		zap.String("username", username),
		zap.Int64("recipe_id", recipe.ID),
		zap.Int("messages", len(messages)))

	resp, err := a.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:    a.model,
		Messages: chatMessages,
	})
	if err != nil {
		return Message{}, fmt.Errorf("%w: chat completion: %v", types.ErrBackendUnavailable, err)
	}
	if len(resp.Choices) == 0 {
		return Message{}, fmt.Errorf("%w: chat completion returned no choices", types.ErrBackendUnavailable)
	}

	return Message{
		Role: RoleAssistant,
		Text: resp.Choices[0].Message.Content,
	}, nil
}

// systemPrompt grounds the model in the user and the recipe and keeps it
// on topic.
func systemPrompt(username string, recipe *types.Recipe) (string, error) {
	detail, err := json.Marshal(recipe)
	if err != nil {
		return "", fmt.Errorf("failed to marshal recipe: %w", err)
	}

	parts := []string{
		"You are a cooking assistant who helps users with their queries." +
			" Talk and act like a normal human with a friendly and helpful" +
			" tone, but remember that you are a cooking assistant AI.",
		fmt.Sprintf("You are chatting with the user whose name is %s.", username),
		fmt.Sprintf("You are chatting with the user about a recipe. The recipe"+
			" is %s. The recipe's details are %s.", recipe.Title, string(detail)),
		"You will only talk about things related to the above recipe or" +
			" cooking in general. If the user tries to talk about something" +
			" else, remind them that you are a cooking assistant and that you" +
			" can only help with cooking-related queries.",
	}
	return strings.Join(parts, " "), nil
}
