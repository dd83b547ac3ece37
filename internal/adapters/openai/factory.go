package openai

import (
	"fmt"

	"github.com/mikey/llm-email-analyzer/internal/config"
	"github.com/mikey/llm-email-analyzer/internal/core"
	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
)

// Factory creates new instances of OpenAIClient
type Factory struct {
	cfg    *config.Config
	logger *zap.Logger
}

// NewFactory creates a new factory for OpenAIClient instances
func NewFactory(cfg *config.Config, logger *zap.Logger) *Factory {
	return &Factory{
		cfg:    cfg,
		logger: logger,
	}
}

// CreateGateway creates a new OpenAIClient
func (f *Factory) CreateGateway() (core.ModelGateway, error) {
	openaiCfg := f.cfg.GetOpenAI()

	// Local OpenAI-compatible servers such as Ollama's /v1 need no key
	if openaiCfg.APIKey == "" && openaiCfg.BaseURL == "" {
		return nil, fmt.Errorf("openai API key is required")
	}

	clientCfg := openai.DefaultConfig(openaiCfg.APIKey)
	if openaiCfg.BaseURL != "" {
		clientCfg.BaseURL = openaiCfg.BaseURL
	}

	f.logger.Info("Using OpenAI gateway",
		zap.String("base_url", clientCfg.BaseURL),
		zap.String("model", openaiCfg.ModelName))

	return NewOpenAIClient(
		openai.NewClientWithConfig(clientCfg),
		openaiCfg.ModelName,
		f.cfg.GetBool("openai.json_mode"),
		f.logger,
	), nil
}
