package factory

import (
	"fmt"

	"github.com/mikey/llm-email-analyzer/internal/adapters/intake"
	"github.com/mikey/llm-email-analyzer/internal/config"
	"github.com/mikey/llm-email-analyzer/internal/core"
	"github.com/mikey/llm-email-analyzer/internal/exclusion"
	"github.com/mikey/llm-email-analyzer/internal/ports"
	"go.uber.org/zap"
)

// IntakeFactory creates the SMTP intake
type IntakeFactory struct {
	cfg     *config.Config
	logger  *zap.Logger
	runner  *core.BatchRunner
	checker *exclusion.Checker
}

// NewIntakeFactory creates a new intake factory
func NewIntakeFactory(cfg *config.Config, logger *zap.Logger, runner *core.BatchRunner, checker *exclusion.Checker) *IntakeFactory {
	return &IntakeFactory{
		cfg:     cfg,
		logger:  logger,
		runner:  runner,
		checker: checker,
	}
}

// CreateEmailIntake creates the intake listening on the configured address
func (f *IntakeFactory) CreateEmailIntake() (ports.EmailIntake, error) {
	intakeCfg := f.cfg.GetIntake()
	batchCfg, err := f.cfg.GetBatch()
	if err != nil {
		return nil, fmt.Errorf("invalid batch configuration: %w", err)
	}
	return intake.NewSMTPIntake(
		f.runner,
		f.checker,
		f.logger,
		intakeCfg.ListenAddress,
		intakeCfg.Domain,
		intakeCfg.QueueSize,
		intakeCfg.MaxMessageBytes,
		batchCfg.InterRequestDelay,
	), nil
}
