package bedrock

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
	"github.com/mikey/mail-notifier/internal/core"
	"go.uber.org/zap"
)

// ConverseAPI is the subset of the Bedrock runtime client used here
type ConverseAPI interface {
	Converse(ctx context.Context, params *bedrockruntime.ConverseInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseOutput, error)
}

// BedrockClient is an implementation of the LLMClient interface using Amazon Bedrock
type BedrockClient struct {
	client      ConverseAPI
	modelID     string
	maxTokens   int
	temperature float32
	logger      *zap.Logger
}

// NewBedrockClient creates a new Bedrock client
func NewBedrockClient(
	client ConverseAPI,
	modelID string,
	maxTokens int,
	temperature float32,
	logger *zap.Logger,
) *BedrockClient {
	return &BedrockClient{
		client:      client,
		modelID:     modelID,
		maxTokens:   maxTokens,
		temperature: temperature,
		logger:      logger,
	}
}

// Complete sends the prompt through the Converse API
func (c *BedrockClient) Complete(ctx context.Context, prompt *core.Prompt) (*core.Completion, error) {
	input := &bedrockruntime.ConverseInput{
		ModelId:  aws.String(c.modelID),
		Messages: buildMessages(prompt),
		InferenceConfig: &types.InferenceConfiguration{
			Temperature: aws.Float32(c.temperature),
		},
	}
	if c.maxTokens > 0 {
		input.InferenceConfig.MaxTokens = aws.Int32(int32(c.maxTokens))
	}
	if prompt.System != "" {
		input.System = []types.SystemContentBlock{
			&types.SystemContentBlockMemberText{Value: prompt.System},
		}
	}

	c.logger.Debug("Invoking Bedrock model",
		zap.String("model", c.modelID),
		zap.Int("messages", len(input.Messages)))

	out, err := c.client.Converse(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("failed to invoke Bedrock model: %w", err)
	}

	msg, ok := out.Output.(*types.ConverseOutputMemberMessage)
	if !ok {
		return nil, errors.New("unexpected Bedrock output type")
	}

	var sb strings.Builder
	for _, block := range msg.Value.Content {
		if text, ok := block.(*types.ContentBlockMemberText); ok {
			sb.WriteString(text.Value)
		}
	}
	if sb.Len() == 0 {
		return nil, errors.New("empty response from Bedrock")
	}

	return &core.Completion{Text: sb.String(), Model: c.modelID}, nil
}

func buildMessages(prompt *core.Prompt) []types.Message {
	messages := make([]types.Message, 0, 1+2*len(prompt.Examples))
	for _, ex := range prompt.Examples {
		messages = append(messages,
			textMessage(types.ConversationRoleUser, ex.User),
			textMessage(types.ConversationRoleAssistant, ex.Assistant),
		)
	}
	return append(messages, textMessage(types.ConversationRoleUser, prompt.Input))
}

func textMessage(role types.ConversationRole, text string) types.Message {
	return types.Message{
		Role:    role,
		Content: []types.ContentBlock{&types.ContentBlockMemberText{Value: text}},
	}
}
