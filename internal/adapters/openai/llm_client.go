package openai

import (
	"context"
	"errors"
	"fmt"

	"github.com/mikey/llm-email-analyzer/internal/core"
	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
)

// chatAPI is the subset of the go-openai client the gateway uses
type chatAPI interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
	ListModels(ctx context.Context) (openai.ModelsList, error)
}

// OpenAIClient is an implementation of the ModelGateway interface using the
// OpenAI chat completions API or any server compatible with it
type OpenAIClient struct {
	client    chatAPI
	modelName string
	jsonMode  bool
	logger    *zap.Logger
}

// NewOpenAIClient creates a new OpenAI client
func NewOpenAIClient(client chatAPI, modelName string, jsonMode bool, logger *zap.Logger) *OpenAIClient {
	return &OpenAIClient{
		client:    client,
		modelName: modelName,
		jsonMode:  jsonMode,
		logger:    logger,
	}
}

// Generate sends the system and user prompts as one chat completion
func (c *OpenAIClient) Generate(ctx context.Context, req core.GenerateRequest) (string, error) {
	model := req.Model
	if model == "" {
		model = c.modelName
	}

	chatReq := openai.ChatCompletionRequest{
		Model: model,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleSystem,
				Content: req.System,
			},
			{
				Role:    openai.ChatMessageRoleUser,
				Content: req.Prompt,
			},
		},
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
		TopP:        req.TopP,
	}
	if c.jsonMode {
		chatReq.ResponseFormat = &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		}
	}

	resp, err := c.client.CreateChatCompletion(ctx, chatReq)
	if err != nil {
		return "", classify("create chat completion", err)
	}
	if len(resp.Choices) == 0 {
		return "", core.NewServiceError("create chat completion", errors.New("empty response from OpenAI"))
	}

	c.logger.Debug("OpenAI completion received",
		zap.String("model", model),
		zap.String("id", resp.ID),
		zap.Int("total_tokens", resp.Usage.TotalTokens))

	return resp.Choices[0].Message.Content, nil
}

// Ping lists the available models to verify the endpoint and credentials
func (c *OpenAIClient) Ping(ctx context.Context) error {
	if _, err := c.client.ListModels(ctx); err != nil {
		return classify("list models", err)
	}
	return nil
}

// classify reports API-level failures as service errors and leaves
// transport failures to the shared classification
func classify(detail string, err error) *core.GatewayError {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return core.NewServiceError(fmt.Sprintf("%s: status %d", detail, apiErr.HTTPStatusCode), err)
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return core.NewServiceError(fmt.Sprintf("%s: status %d", detail, reqErr.HTTPStatusCode), err)
	}
	return core.ClassifyGatewayError(detail, err)
}
