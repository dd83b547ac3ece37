package factory

import (
	"fmt"

	"github.com/mikey/llm-email-analyzer/internal/adapters/source"
	"github.com/mikey/llm-email-analyzer/internal/config"
	"github.com/mikey/llm-email-analyzer/internal/exclusion"
	"github.com/mikey/llm-email-analyzer/internal/ports"
	"go.uber.org/zap"
)

// SourceFactory creates email sources based on configuration
type SourceFactory struct {
	cfg     *config.Config
	logger  *zap.Logger
	checker *exclusion.Checker
}

// NewSourceFactory creates a new source factory
func NewSourceFactory(cfg *config.Config, logger *zap.Logger, checker *exclusion.Checker) *SourceFactory {
	return &SourceFactory{
		cfg:     cfg,
		logger:  logger,
		checker: checker,
	}
}

// CreateEmailSource creates an email source based on the configuration
func (f *SourceFactory) CreateEmailSource() (ports.EmailSource, error) {
	sourceCfg := f.cfg.GetSource()

	switch sourceCfg.Type {
	case "csv":
		if sourceCfg.CSVPath == "" {
			return nil, fmt.Errorf("sources.csv_path is required for the csv source")
		}
		return source.NewCSVSource(sourceCfg.CSVPath, f.checker, f.logger), nil
	case "eml":
		if sourceCfg.EMLDir == "" {
			return nil, fmt.Errorf("sources.eml_dir is required for the eml source")
		}
		return source.NewEMLSource(sourceCfg.EMLDir, f.checker, f.logger), nil
	default:
		return nil, fmt.Errorf("unsupported source type: %s", sourceCfg.Type)
	}
}
