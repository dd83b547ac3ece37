package core

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mikey/llm-email-analyzer/internal/metrics"
	"go.uber.org/zap"
)

// EngineConfig holds the tunables of the analysis engine
type EngineConfig struct {
	Model       string
	Temperature float32
	TopP        float32
	MaxTokens   int

	ConfidenceThreshold float64
	MaxRetries          int
	RetryDelay          time.Duration
	RetryStrategy       RetryStrategy

	GatewayTimeout     time.Duration
	GatewayMaxAttempts int
	GatewayBackoff     time.Duration
}

// Validate checks the invariants the engine relies on
func (c EngineConfig) Validate() error {
	if c.ConfidenceThreshold < 0 || c.ConfidenceThreshold > 100 {
		return fmt.Errorf("%w: confidence threshold %.1f outside [0,100]", ErrValidation, c.ConfidenceThreshold)
	}
	if c.MaxRetries < 1 {
		return fmt.Errorf("%w: max retries must be at least 1, got %d", ErrValidation, c.MaxRetries)
	}
	if c.GatewayMaxAttempts < 1 {
		return fmt.Errorf("%w: gateway max attempts must be at least 1, got %d", ErrValidation, c.GatewayMaxAttempts)
	}
	if c.Model == "" {
		return fmt.Errorf("%w: model name is required", ErrValidation)
	}
	return nil
}

// AnalysisEngine is the core service turning one email into an AnalysisRecord
type AnalysisEngine struct {
	gateway      ModelGateway
	preprocessor Preprocessor
	prompts      *PromptBuilder
	cfg          EngineConfig
	logger       *zap.Logger

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// NewAnalysisEngine creates a new analysis engine
func NewAnalysisEngine(
	gateway ModelGateway,
	preprocessor Preprocessor,
	cfg EngineConfig,
	logger *zap.Logger,
) (*AnalysisEngine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &AnalysisEngine{
		gateway:      gateway,
		preprocessor: preprocessor,
		prompts:      NewPromptBuilder(cfg.RetryStrategy),
		cfg:          cfg,
		logger:       logger,
		now:          time.Now,
		sleep:        sleepContext,
	}, nil
}

// Analyze runs the confidence-gated retry loop for one email.
// The only per-email fatal error is a GatewayUnavailableError; malformed or
// low-confidence responses degrade the result instead.
func (e *AnalysisEngine) Analyze(ctx context.Context, email EmailInput) (*AnalysisRecord, error) {
	text := e.preprocessor.Preprocess(email.Subject, email.Body)
	logger := e.logger.With(zap.String("email_id", email.ID))

	attempts := make([]AnalysisAttempt, 0, e.cfg.MaxRetries)
	var previous *AnalysisAttempt

	for round := 1; round <= e.cfg.MaxRetries; round++ {
		if round > 1 && e.cfg.RetryDelay > 0 {
			if err := e.sleep(ctx, e.cfg.RetryDelay); err != nil {
				return nil, err
			}
		}

		raw, err := e.generate(ctx, e.prompts.Build(text, previous))
		if err != nil {
			return nil, err
		}

		attempt, err := ParseResponse(raw)
		if err != nil {
			logger.Warn("Model response carried no structured payload",
				zap.Int("round", round),
				zap.Int("response_length", len(raw)))
			attempt = FallbackAttempt(raw)
		} else if attempt.Coerced {
			logger.Warn("Model returned labels outside the taxonomy",
				zap.Int("round", round),
				zap.String("sentiment", attempt.RawSentiment),
				zap.String("classification", attempt.RawCategory))
		}
		attempt.Round = round
		attempts = append(attempts, attempt)
		previous = &attempts[len(attempts)-1]

		logger.Debug("Analysis round complete",
			zap.Int("round", round),
			zap.String("sentiment", string(attempt.Sentiment)),
			zap.String("classification", string(attempt.Category)),
			zap.Float64("confidence", attempt.Confidence))

		if attempt.Confidence >= e.cfg.ConfidenceThreshold {
			break
		}
	}

	best := SelectBestAttempt(attempts)
	record := e.buildRecord(email, best, len(attempts))
	metrics.ObserveAnalysisRounds(len(attempts))

	logger.Info("Email analyzed",
		zap.String("sentiment", string(record.Sentiment)),
		zap.String("classification", string(record.Classification)),
		zap.Float64("confidence", record.Confidence),
		zap.Int("attempt_count", record.AttemptCount),
		zap.Int("selected_round", best.Round))

	return record, nil
}

// SelectBestAttempt returns the attempt with the highest confidence,
// preferring the earliest round on ties
func SelectBestAttempt(attempts []AnalysisAttempt) AnalysisAttempt {
	best := attempts[0]
	for _, a := range attempts[1:] {
		if a.Confidence > best.Confidence {
			best = a
		}
	}
	return best
}

func (e *AnalysisEngine) buildRecord(email EmailInput, attempt AnalysisAttempt, rounds int) *AnalysisRecord {
	sentiment := attempt.Sentiment
	if !sentiment.Valid() {
		sentiment = NormalizeSentiment(attempt.RawSentiment)
	}
	category := attempt.Category
	if !category.Valid() {
		category = NormalizeCategory(attempt.RawCategory)
	}
	tags := attempt.Tags
	if tags == nil {
		tags = []string{}
	}

	return &AnalysisRecord{
		EmailID:        email.ID,
		EmailDate:      email.Date,
		Sentiment:      sentiment,
		Classification: category,
		Confidence:     clampConfidence(attempt.Confidence),
		Tags:           tags,
		AttemptCount:   rounds,
		CreatedAt:      e.now().UTC(),
	}
}

// generate calls the gateway with per-call timeouts and exponential backoff
// between failed calls
func (e *AnalysisEngine) generate(ctx context.Context, prompt string) (string, error) {
	req := GenerateRequest{
		Model:       e.cfg.Model,
		System:      e.prompts.System(),
		Prompt:      prompt,
		Temperature: e.cfg.Temperature,
		TopP:        e.cfg.TopP,
		MaxTokens:   e.cfg.MaxTokens,
	}

	var last *GatewayError
	for attempt := 1; attempt <= e.cfg.GatewayMaxAttempts; attempt++ {
		if attempt > 1 {
			backoff := e.cfg.GatewayBackoff << (attempt - 2)
			if err := e.sleep(ctx, backoff); err != nil {
				return "", err
			}
		}

		start := time.Now()
		text, err := e.callGateway(ctx, req)
		if err == nil {
			metrics.ObserveGatewayCall("ok", time.Since(start))
			return text, nil
		}
		if ctx.Err() != nil {
			return "", ctx.Err()
		}

		last = ClassifyGatewayError("generate", err)
		metrics.ObserveGatewayCall(string(last.Kind), time.Since(start))
		e.logger.Warn("Model gateway call failed",
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", e.cfg.GatewayMaxAttempts),
			zap.String("kind", string(last.Kind)),
			zap.Error(err))
	}

	return "", &GatewayUnavailableError{Attempts: e.cfg.GatewayMaxAttempts, Last: last}
}

func (e *AnalysisEngine) callGateway(ctx context.Context, req GenerateRequest) (string, error) {
	if e.cfg.GatewayTimeout <= 0 {
		return e.gateway.Generate(ctx, req)
	}
	callCtx, cancel := context.WithTimeout(ctx, e.cfg.GatewayTimeout)
	defer cancel()

	text, err := e.gateway.Generate(callCtx, req)
	if err != nil && errors.Is(callCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
		return "", &GatewayError{Kind: GatewayTimeout, Detail: "generate", Err: err}
	}
	return text, err
}

func clampConfidence(c float64) float64 {
	switch {
	case c < 0:
		return 0
	case c > 100:
		return 100
	default:
		return c
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
