package factory

import (
	"fmt"

	"github.com/mikey/llm-email-analyzer/internal/adapters/bedrock"
	"github.com/mikey/llm-email-analyzer/internal/adapters/gemini"
	"github.com/mikey/llm-email-analyzer/internal/adapters/ollama"
	"github.com/mikey/llm-email-analyzer/internal/adapters/openai"
	"github.com/mikey/llm-email-analyzer/internal/config"
	"github.com/mikey/llm-email-analyzer/internal/core"
	"go.uber.org/zap"
)

// LLMFactory creates model gateways
type LLMFactory struct {
	cfg    *config.Config
	logger *zap.Logger
}

// NewLLMFactory creates a new LLM factory
func NewLLMFactory(cfg *config.Config, logger *zap.Logger) *LLMFactory {
	return &LLMFactory{
		cfg:    cfg,
		logger: logger,
	}
}

// CreateGateway creates the model gateway for the configured provider
func (f *LLMFactory) CreateGateway() (core.ModelGateway, error) {
	llmConfig := f.cfg.GetLLM()

	switch llmConfig.Provider {
	case "ollama":
		return ollama.NewFactory(f.cfg, f.logger).CreateGateway()
	case "openai":
		return openai.NewFactory(f.cfg, f.logger).CreateGateway()
	case "gemini":
		return gemini.NewFactory(f.cfg, f.logger).CreateGateway()
	case "bedrock":
		return bedrock.NewFactory(f.cfg, f.logger).CreateGateway()
	default:
		return nil, fmt.Errorf("unsupported LLM provider: %s", llmConfig.Provider)
	}
}
