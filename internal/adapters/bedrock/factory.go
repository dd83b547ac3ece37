package bedrock

import (
	"context"
	"fmt"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/mikey/llm-email-analyzer/internal/config"
	"github.com/mikey/llm-email-analyzer/internal/core"
	"go.uber.org/zap"
)

// Factory creates Bedrock clients
type Factory struct {
	cfg    *config.Config
	logger *zap.Logger
}

// NewFactory creates a new Bedrock factory
func NewFactory(cfg *config.Config, logger *zap.Logger) *Factory {
	return &Factory{
		cfg:    cfg,
		logger: logger,
	}
}

// CreateGateway creates a new Bedrock client
func (f *Factory) CreateGateway() (core.ModelGateway, error) {
	bedrockCfg := f.cfg.GetBedrock()

	awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(),
		awsconfig.WithRegion(bedrockCfg.Region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS configuration: %w", err)
	}

	f.logger.Info("Using Bedrock gateway",
		zap.String("region", bedrockCfg.Region),
		zap.String("model_id", bedrockCfg.ModelID))

	return NewBedrockClient(bedrockruntime.NewFromConfig(awsCfg), bedrockCfg.ModelID, f.logger), nil
}
