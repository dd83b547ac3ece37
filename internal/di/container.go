package di

import (
	"go.uber.org/dig"
	"go.uber.org/zap"

	"github.com/mikey/llm-email-analyzer/internal/config"
	"github.com/mikey/llm-email-analyzer/internal/core"
	"github.com/mikey/llm-email-analyzer/internal/exclusion"
	"github.com/mikey/llm-email-analyzer/internal/factory"
	"github.com/mikey/llm-email-analyzer/internal/logging"
	"github.com/mikey/llm-email-analyzer/internal/ports"
	"github.com/mikey/llm-email-analyzer/internal/utils"
)

// BuildContainer creates and configures a dependency injection container
// for the SMTP intake daemon
func BuildContainer(configFile string) (*dig.Container, error) {
	container := dig.New()

	// Register configuration
	if err := container.Provide(func() (*config.Config, error) {
		cfg, err := config.NewWithFile(configFile)
		if err != nil {
			return nil, err
		}
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
		return cfg, nil
	}); err != nil {
		return nil, err
	}

	// Register logger
	if err := container.Provide(logging.InitLogger); err != nil {
		return nil, err
	}

	if err := provideAnalysis(container); err != nil {
		return nil, err
	}

	// Register intake
	if err := container.Provide(factory.NewIntakeFactory); err != nil {
		return nil, err
	}
	if err := container.Provide(func(f *factory.IntakeFactory) (ports.EmailIntake, error) {
		return f.CreateEmailIntake()
	}); err != nil {
		return nil, err
	}

	return container, nil
}

// provideAnalysis registers everything between a config and a BatchRunner.
// It expects *config.Config and *zap.Logger to be provided already.
func provideAnalysis(container *dig.Container) error {
	// Register factories
	if err := container.Provide(factory.NewLLMFactory); err != nil {
		return err
	}
	if err := container.Provide(factory.NewStoreFactory); err != nil {
		return err
	}
	if err := container.Provide(factory.NewSourceFactory); err != nil {
		return err
	}
	if err := container.Provide(factory.NewTextProcessorFactory); err != nil {
		return err
	}

	// Register model gateway
	if err := container.Provide(func(f *factory.LLMFactory) (core.ModelGateway, error) {
		return f.CreateGateway()
	}); err != nil {
		return err
	}

	// Register record store
	if err := container.Provide(func(f *factory.StoreFactory) (core.RecordStore, error) {
		return f.CreateRecordStore()
	}); err != nil {
		return err
	}

	// Register email source
	if err := container.Provide(func(f *factory.SourceFactory) (ports.EmailSource, error) {
		return f.CreateEmailSource()
	}); err != nil {
		return err
	}

	// Register text processor
	if err := container.Provide(func(f *factory.TextProcessorFactory) *utils.TextProcessor {
		return f.CreateTextProcessor()
	}); err != nil {
		return err
	}

	// Register sender exclusion list
	if err := container.Provide(func(cfg *config.Config, logger *zap.Logger) *exclusion.Checker {
		return exclusion.NewChecker(cfg.GetSource().ExcludedDomains, logger)
	}); err != nil {
		return err
	}

	// Register analysis engine
	if err := container.Provide(func(
		cfg *config.Config,
		gateway core.ModelGateway,
		textProcessor *utils.TextProcessor,
		logger *zap.Logger,
	) (*core.AnalysisEngine, error) {
		engineCfg, err := cfg.GetEngine()
		if err != nil {
			return nil, err
		}
		return core.NewAnalysisEngine(gateway, textProcessor, engineCfg, logger)
	}); err != nil {
		return err
	}

	// Register batch runner
	if err := container.Provide(func(
		cfg *config.Config,
		engine *core.AnalysisEngine,
		store core.RecordStore,
		logger *zap.Logger,
	) (*core.BatchRunner, error) {
		batchCfg, err := cfg.GetBatch()
		if err != nil {
			return nil, err
		}
		return core.NewBatchRunner(engine, store, batchCfg, logger), nil
	}); err != nil {
		return err
	}

	return nil
}
