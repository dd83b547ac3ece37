package gemini

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"github.com/mikey/llm-email-analyzer/internal/core"
	"go.uber.org/zap"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

// GeminiClient is an implementation of the ModelGateway interface using Google Gemini
type GeminiClient struct {
	client    *genai.Client
	modelName string
	logger    *zap.Logger
}

// NewGeminiClient creates a new Gemini client
func NewGeminiClient(ctx context.Context, apiKey, modelName string, logger *zap.Logger) (*GeminiClient, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	return &GeminiClient{
		client:    client,
		modelName: modelName,
		logger:    logger,
	}, nil
}

// Close closes the Gemini client
func (c *GeminiClient) Close() error {
	if c.client != nil {
		return c.client.Close()
	}
	return nil
}

// model returns a model handle carrying the sampling settings of one request
func (c *GeminiClient) model(req core.GenerateRequest) *genai.GenerativeModel {
	name := req.Model
	if name == "" {
		name = c.modelName
	}

	model := c.client.GenerativeModel(name)
	model.SetTemperature(req.Temperature)
	if req.TopP > 0 {
		model.SetTopP(req.TopP)
	}
	if req.MaxTokens > 0 {
		model.SetMaxOutputTokens(int32(req.MaxTokens))
	}
	if req.System != "" {
		model.SystemInstruction = &genai.Content{
			Parts: []genai.Part{genai.Text(req.System)},
		}
	}
	return model
}

// Generate sends the prompt and returns the concatenated text parts of the first candidate
func (c *GeminiClient) Generate(ctx context.Context, req core.GenerateRequest) (string, error) {
	resp, err := c.model(req).GenerateContent(ctx, genai.Text(req.Prompt))
	if err != nil {
		return "", classify("generate content", err)
	}

	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		reason := "no candidates"
		if resp.PromptFeedback != nil {
			reason = fmt.Sprintf("prompt blocked: %v", resp.PromptFeedback.BlockReason)
		}
		return "", core.NewServiceError("generate content", errors.New(reason))
	}

	var text strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if t, ok := part.(genai.Text); ok {
			text.WriteString(string(t))
		}
	}
	if text.Len() == 0 {
		return "", core.NewServiceError("generate content", errors.New("empty response from Gemini"))
	}

	c.logger.Debug("Gemini generation complete",
		zap.String("model", c.modelName),
		zap.Int("response_length", text.Len()))

	return text.String(), nil
}

// Ping fetches the model metadata to verify the key and model name
func (c *GeminiClient) Ping(ctx context.Context) error {
	if _, err := c.client.GenerativeModel(c.modelName).Info(ctx); err != nil {
		return classify("model info", err)
	}
	return nil
}

func classify(detail string, err error) *core.GatewayError {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		return core.NewServiceError(fmt.Sprintf("%s: status %d", detail, apiErr.Code), err)
	}
	return core.ClassifyGatewayError(detail, err)
}
