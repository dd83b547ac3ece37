package bedrock

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/smithy-go"
	"github.com/mikey/llm-email-analyzer/internal/core"
	"go.uber.org/zap"
)

// invoker is the subset of the Bedrock runtime client the gateway uses
type invoker interface {
	InvokeModel(ctx context.Context, params *bedrockruntime.InvokeModelInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.InvokeModelOutput, error)
}

// BedrockClient is an implementation of the ModelGateway interface using Amazon Bedrock
type BedrockClient struct {
	client  invoker
	modelID string
	logger  *zap.Logger
}

// NewBedrockClient creates a new Bedrock client
func NewBedrockClient(client invoker, modelID string, logger *zap.Logger) *BedrockClient {
	return &BedrockClient{
		client:  client,
		modelID: modelID,
		logger:  logger,
	}
}

// Generate invokes the model with a payload shaped for its family and
// extracts the generated text from the family-specific response
func (c *BedrockClient) Generate(ctx context.Context, req core.GenerateRequest) (string, error) {
	modelID := req.Model
	if modelID == "" {
		modelID = c.modelID
	}

	payload, err := buildPayload(modelID, req)
	if err != nil {
		return "", core.NewServiceError("encode request", err)
	}

	resp, err := c.client.InvokeModel(ctx, &bedrockruntime.InvokeModelInput{
		ModelId:     aws.String(modelID),
		Body:        payload,
		Accept:      aws.String("application/json"),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return "", classify("invoke model", err)
	}

	text, err := parseResponse(modelID, resp.Body)
	if err != nil {
		return "", core.NewServiceError("decode response", err)
	}

	c.logger.Debug("Bedrock invocation complete",
		zap.String("model_id", modelID),
		zap.Int("response_length", len(text)))

	return text, nil
}

func buildPayload(modelID string, req core.GenerateRequest) ([]byte, error) {
	switch {
	case isClaudeMessagesModel(modelID):
		return json.Marshal(map[string]any{
			"anthropic_version": "bedrock-2023-05-31",
			"system":            req.System,
			"max_tokens":        maxTokens(req.MaxTokens),
			"temperature":       req.Temperature,
			"top_p":             req.TopP,
			"messages": []map[string]any{
				{"role": "user", "content": req.Prompt},
			},
		})
	case isAnthropicModel(modelID):
		return json.Marshal(map[string]any{
			"prompt":               fmt.Sprintf("\n\nHuman: %s\n\n%s\n\nAssistant:", req.System, req.Prompt),
			"max_tokens_to_sample": maxTokens(req.MaxTokens),
			"temperature":          req.Temperature,
			"top_p":                req.TopP,
		})
	case isAmazonTitanModel(modelID):
		return json.Marshal(map[string]any{
			"inputText": req.System + "\n\n" + req.Prompt,
			"textGenerationConfig": map[string]any{
				"maxTokenCount": maxTokens(req.MaxTokens),
				"temperature":   req.Temperature,
				"topP":          req.TopP,
			},
		})
	default:
		return json.Marshal(map[string]any{
			"prompt":      req.System + "\n\n" + req.Prompt,
			"max_tokens":  maxTokens(req.MaxTokens),
			"temperature": req.Temperature,
			"top_p":       req.TopP,
		})
	}
}

func parseResponse(modelID string, body []byte) (string, error) {
	switch {
	case isClaudeMessagesModel(modelID):
		var resp struct {
			Content []struct {
				Type string `json:"type"`
				Text string `json:"text"`
			} `json:"content"`
		}
		if err := json.Unmarshal(body, &resp); err != nil {
			return "", fmt.Errorf("failed to unmarshal Claude response: %w", err)
		}
		var text strings.Builder
		for _, block := range resp.Content {
			if block.Type == "text" {
				text.WriteString(block.Text)
			}
		}
		return text.String(), nil
	case isAnthropicModel(modelID):
		var resp struct {
			Completion string `json:"completion"`
		}
		if err := json.Unmarshal(body, &resp); err != nil {
			return "", fmt.Errorf("failed to unmarshal Claude response: %w", err)
		}
		return resp.Completion, nil
	case isAmazonTitanModel(modelID):
		var resp struct {
			Results []struct {
				OutputText string `json:"outputText"`
			} `json:"results"`
		}
		if err := json.Unmarshal(body, &resp); err != nil {
			return "", fmt.Errorf("failed to unmarshal Titan response: %w", err)
		}
		if len(resp.Results) == 0 {
			return "", errors.New("empty response from Titan model")
		}
		return resp.Results[0].OutputText, nil
	default:
		var resp struct {
			Output     string `json:"output"`
			Text       string `json:"text"`
			Response   string `json:"response"`
			Generation string `json:"generation"`
		}
		if err := json.Unmarshal(body, &resp); err != nil {
			return "", fmt.Errorf("failed to unmarshal generic response: %w", err)
		}
		for _, candidate := range []string{resp.Output, resp.Text, resp.Response, resp.Generation} {
			if candidate != "" {
				return candidate, nil
			}
		}
		return string(body), nil
	}
}

func maxTokens(n int) int {
	if n <= 0 {
		return 1000
	}
	return n
}

// isAnthropicModel checks if the model is an Anthropic Claude model
func isAnthropicModel(modelID string) bool {
	return strings.Contains(modelID, "anthropic.claude")
}

// isClaudeMessagesModel checks if the model only accepts the messages API
func isClaudeMessagesModel(modelID string) bool {
	return isAnthropicModel(modelID) && !strings.Contains(modelID, "claude-v2") && !strings.Contains(modelID, "claude-instant")
}

// isAmazonTitanModel checks if the model is an Amazon Titan model
func isAmazonTitanModel(modelID string) bool {
	return strings.HasPrefix(modelID, "amazon.titan")
}

func classify(detail string, err error) *core.GatewayError {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		return core.NewServiceError(fmt.Sprintf("%s: %s", detail, apiErr.ErrorCode()), err)
	}
	return core.ClassifyGatewayError(detail, err)
}
