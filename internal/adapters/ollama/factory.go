package ollama

import (
	"fmt"
	"net/http"

	"github.com/mikey/llm-email-analyzer/internal/config"
	"github.com/mikey/llm-email-analyzer/internal/core"
	"go.uber.org/zap"
)

// Factory creates new instances of OllamaClient
type Factory struct {
	cfg    *config.Config
	logger *zap.Logger
}

// NewFactory creates a new factory for OllamaClient instances
func NewFactory(cfg *config.Config, logger *zap.Logger) *Factory {
	return &Factory{
		cfg:    cfg,
		logger: logger,
	}
}

// CreateGateway creates a new OllamaClient
func (f *Factory) CreateGateway() (core.ModelGateway, error) {
	ollamaCfg := f.cfg.GetOllama()
	if ollamaCfg.BaseURL == "" {
		return nil, fmt.Errorf("ollama base URL is required")
	}

	f.logger.Info("Using Ollama gateway",
		zap.String("base_url", ollamaCfg.BaseURL),
		zap.String("model", ollamaCfg.ModelName))

	return NewOllamaClient(ollamaCfg.BaseURL, ollamaCfg.ModelName, &http.Client{}, f.logger), nil
}
