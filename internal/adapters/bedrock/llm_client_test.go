package bedrock

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/smithy-go"
	"github.com/mikey/llm-email-analyzer/internal/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeInvoker struct {
	input    *bedrockruntime.InvokeModelInput
	response string
	err      error
}

func (f *fakeInvoker) InvokeModel(_ context.Context, params *bedrockruntime.InvokeModelInput, _ ...func(*bedrockruntime.Options)) (*bedrockruntime.InvokeModelOutput, error) {
	f.input = params
	if f.err != nil {
		return nil, f.err
	}
	return &bedrockruntime.InvokeModelOutput{Body: []byte(f.response)}, nil
}

var request = core.GenerateRequest{
	System:      "system prompt",
	Prompt:      "user prompt",
	Temperature: 0.1,
	TopP:        0.9,
	MaxTokens:   300,
}

func decodePayload(t *testing.T, f *fakeInvoker) map[string]any {
	t.Helper()
	var payload map[string]any
	require.NoError(t, json.Unmarshal(f.input.Body, &payload))
	return payload
}

func TestGenerateClaudeMessages(t *testing.T) {
	fake := &fakeInvoker{response: `{"content":[{"type":"text","text":"{\"sentiment\":"},{"type":"text","text":"\"Neutral\"}"}]}`}
	client := NewBedrockClient(fake, "anthropic.claude-3-haiku-20240307-v1:0", zap.NewNop())

	text, err := client.Generate(context.Background(), request)
	require.NoError(t, err)
	assert.Equal(t, `{"sentiment":"Neutral"}`, text)

	payload := decodePayload(t, fake)
	assert.Equal(t, "bedrock-2023-05-31", payload["anthropic_version"])
	assert.Equal(t, "system prompt", payload["system"])
	assert.Equal(t, float64(300), payload["max_tokens"])
	assert.Equal(t, "anthropic.claude-3-haiku-20240307-v1:0", *fake.input.ModelId)
}

func TestGenerateClaudeLegacy(t *testing.T) {
	fake := &fakeInvoker{response: `{"completion":" {\"sentiment\":\"Positive\"}"}`}
	client := NewBedrockClient(fake, "anthropic.claude-v2", zap.NewNop())

	text, err := client.Generate(context.Background(), request)
	require.NoError(t, err)
	assert.Equal(t, ` {"sentiment":"Positive"}`, text)

	payload := decodePayload(t, fake)
	assert.Contains(t, payload["prompt"], "\n\nHuman: system prompt")
	assert.Contains(t, payload["prompt"], "\n\nAssistant:")
	assert.Equal(t, float64(300), payload["max_tokens_to_sample"])
}

func TestGenerateTitan(t *testing.T) {
	fake := &fakeInvoker{response: `{"results":[{"outputText":"titan says hi"}]}`}
	client := NewBedrockClient(fake, "amazon.titan-text-express-v1", zap.NewNop())

	text, err := client.Generate(context.Background(), request)
	require.NoError(t, err)
	assert.Equal(t, "titan says hi", text)

	payload := decodePayload(t, fake)
	generation := payload["textGenerationConfig"].(map[string]any)
	assert.Equal(t, float64(300), generation["maxTokenCount"])

	fake.response = `{"results":[]}`
	_, err = client.Generate(context.Background(), request)
	assert.Error(t, err)
}

func TestGenerateGenericModel(t *testing.T) {
	fake := &fakeInvoker{response: `{"generation":"llama output"}`}
	client := NewBedrockClient(fake, "meta.llama3-8b-instruct-v1:0", zap.NewNop())

	text, err := client.Generate(context.Background(), request)
	require.NoError(t, err)
	assert.Equal(t, "llama output", text)
}

func TestGenerateAPIError(t *testing.T) {
	fake := &fakeInvoker{err: &smithy.GenericAPIError{Code: "ThrottlingException", Message: "slow down"}}
	client := NewBedrockClient(fake, "anthropic.claude-v2", zap.NewNop())

	_, err := client.Generate(context.Background(), request)
	var gwErr *core.GatewayError
	require.True(t, errors.As(err, &gwErr))
	assert.Equal(t, core.GatewayServiceError, gwErr.Kind)
	assert.Contains(t, gwErr.Detail, "ThrottlingException")
}
