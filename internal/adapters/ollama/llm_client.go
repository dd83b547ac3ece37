package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/mikey/llm-email-analyzer/internal/core"
	"go.uber.org/zap"
)

// maxErrorBody bounds how much of a failed response body ends up in an error
const maxErrorBody = 512

// OllamaClient is an implementation of the ModelGateway interface using the Ollama HTTP API
type OllamaClient struct {
	baseURL    string
	modelName  string
	httpClient *http.Client
	logger     *zap.Logger
}

type generateOptions struct {
	Temperature float32 `json:"temperature"`
	TopP        float32 `json:"top_p,omitempty"`
	NumPredict  int     `json:"num_predict,omitempty"`
}

type generateRequest struct {
	Model   string          `json:"model"`
	Prompt  string          `json:"prompt"`
	System  string          `json:"system,omitempty"`
	Stream  bool            `json:"stream"`
	Options generateOptions `json:"options"`
}

type generateResponse struct {
	Model    string `json:"model"`
	Response string `json:"response"`
	Done     bool   `json:"done"`
	Error    string `json:"error,omitempty"`
}

// ModelInfo describes one model installed on the Ollama server
type ModelInfo struct {
	Name  string `json:"name"`
	Model string `json:"model"`
	Size  int64  `json:"size"`
}

type tagsResponse struct {
	Models []ModelInfo `json:"models"`
}

// NewOllamaClient creates a new Ollama client. The HTTP client carries no
// timeout of its own; every call is bounded by its context.
func NewOllamaClient(baseURL, modelName string, httpClient *http.Client, logger *zap.Logger) *OllamaClient {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &OllamaClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		modelName:  modelName,
		httpClient: httpClient,
		logger:     logger,
	}
}

// Generate sends one non-streaming generation request and returns the generated text
func (c *OllamaClient) Generate(ctx context.Context, req core.GenerateRequest) (string, error) {
	model := req.Model
	if model == "" {
		model = c.modelName
	}

	body, err := json.Marshal(generateRequest{
		Model:  model,
		Prompt: req.Prompt,
		System: req.System,
		Stream: false,
		Options: generateOptions{
			Temperature: req.Temperature,
			TopP:        req.TopP,
			NumPredict:  req.MaxTokens,
		},
	})
	if err != nil {
		return "", core.NewServiceError("encode request", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return "", core.NewServiceError("build request", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", core.ClassifyGatewayError("POST /api/generate", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", core.NewServiceError(
			fmt.Sprintf("POST /api/generate returned status %d", resp.StatusCode),
			fmt.Errorf("%s", readErrorBody(resp.Body)))
	}

	var out generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		// A body cut off by the deadline surfaces here, not from Do
		return "", core.ClassifyGatewayError("decode /api/generate response", err)
	}
	if out.Error != "" {
		return "", core.NewServiceError("ollama error", fmt.Errorf("%s", out.Error))
	}

	c.logger.Debug("Ollama generation complete",
		zap.String("model", model),
		zap.Int("response_length", len(out.Response)))

	return out.Response, nil
}

// ListModels returns the models installed on the server
func (c *OllamaClient) ListModels(ctx context.Context) ([]ModelInfo, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/tags", nil)
	if err != nil {
		return nil, core.NewServiceError("build request", err)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, core.ClassifyGatewayError("GET /api/tags", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, core.NewServiceError(
			fmt.Sprintf("GET /api/tags returned status %d", resp.StatusCode),
			fmt.Errorf("%s", readErrorBody(resp.Body)))
	}

	var tags tagsResponse
	if err := json.NewDecoder(resp.Body).Decode(&tags); err != nil {
		return nil, core.ClassifyGatewayError("decode /api/tags response", err)
	}
	return tags.Models, nil
}

// Ping verifies the server is reachable and has the configured model installed
func (c *OllamaClient) Ping(ctx context.Context) error {
	models, err := c.ListModels(ctx)
	if err != nil {
		return err
	}

	names := make([]string, 0, len(models))
	for _, m := range models {
		if sameModel(m.Name, c.modelName) || sameModel(m.Model, c.modelName) {
			return nil
		}
		names = append(names, m.Name)
	}
	return core.NewServiceError(
		fmt.Sprintf("model %q is not installed", c.modelName),
		fmt.Errorf("available models: %s", strings.Join(names, ", ")))
}

// sameModel treats "llama3" and "llama3:latest" as the same model
func sameModel(a, b string) bool {
	if a == "" || b == "" {
		return false
	}
	return withTag(a) == withTag(b)
}

func withTag(name string) string {
	if strings.Contains(name, ":") {
		return name
	}
	return name + ":latest"
}

func readErrorBody(r io.Reader) string {
	b, _ := io.ReadAll(io.LimitReader(r, maxErrorBody))
	var payload struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(b, &payload) == nil && payload.Error != "" {
		return payload.Error
	}
	return strings.TrimSpace(string(b))
}
