package gemini

import (
	"context"
	"fmt"

	"github.com/mikey/llm-email-analyzer/internal/config"
	"github.com/mikey/llm-email-analyzer/internal/core"
	"go.uber.org/zap"
)

// Factory creates new instances of GeminiClient
type Factory struct {
	cfg    *config.Config
	logger *zap.Logger
}

// NewFactory creates a new factory for GeminiClient instances
func NewFactory(cfg *config.Config, logger *zap.Logger) *Factory {
	return &Factory{
		cfg:    cfg,
		logger: logger,
	}
}

// CreateGateway creates a new GeminiClient
func (f *Factory) CreateGateway() (core.ModelGateway, error) {
	geminiCfg := f.cfg.GetGemini()
	if geminiCfg.APIKey == "" {
		return nil, fmt.Errorf("gemini API key is required")
	}

	f.logger.Info("Using Gemini gateway", zap.String("model", geminiCfg.ModelName))

	client, err := NewGeminiClient(context.Background(), geminiCfg.APIKey, geminiCfg.ModelName, f.logger)
	if err != nil {
		return nil, err
	}
	return client, nil
}
