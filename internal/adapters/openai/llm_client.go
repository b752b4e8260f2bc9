package openai

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/mikey/mail-notifier/internal/core"
	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
)

// OpenAIClient is an implementation of the LLMClient interface for any
// OpenAI-compatible chat completion endpoint (OpenAI, OpenRouter, ...)
type OpenAIClient struct {
	client      *openai.Client
	modelName   string
	maxTokens   int
	temperature float32
	logger      *zap.Logger
}

// NewOpenAIClient creates a new OpenAI client
func NewOpenAIClient(
	client *openai.Client,
	modelName string,
	maxTokens int,
	temperature float32,
	logger *zap.Logger,
) *OpenAIClient {
	return &OpenAIClient{
		client:      client,
		modelName:   modelName,
		maxTokens:   maxTokens,
		temperature: temperature,
		logger:      logger,
	}
}

// Complete sends the prompt as a chat completion and returns the first choice
func (c *OpenAIClient) Complete(ctx context.Context, prompt *core.Prompt) (*core.Completion, error) {
	req := openai.ChatCompletionRequest{
		Model:       c.modelName,
		Messages:    buildMessages(prompt),
		MaxTokens:   c.maxTokens,
		Temperature: c.temperature,
	}
	// A zero temperature is dropped from the request body by omitempty
	if req.Temperature == 0 {
		req.Temperature = math.SmallestNonzeroFloat32
	}

	c.logger.Debug("Sending chat completion",
		zap.String("model", c.modelName),
		zap.Int("messages", len(req.Messages)))

	resp, err := c.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("failed to create chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, errors.New("empty response from OpenAI")
	}

	model := resp.Model
	if model == "" {
		model = c.modelName
	}
	return &core.Completion{
		Text:  resp.Choices[0].Message.Content,
		Model: model,
	}, nil
}

func buildMessages(prompt *core.Prompt) []openai.ChatCompletionMessage {
	messages := make([]openai.ChatCompletionMessage, 0, 2+2*len(prompt.Examples))
	if prompt.System != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: prompt.System,
		})
	}
	for _, ex := range prompt.Examples {
		messages = append(messages,
			openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: ex.User},
			openai.ChatCompletionMessage{Role: openai.ChatMessageRoleAssistant, Content: ex.Assistant},
		)
	}
	return append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: prompt.Input,
	})
}
