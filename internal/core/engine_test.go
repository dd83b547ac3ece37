package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// scriptedGateway answers each Generate call through a caller-supplied function
type scriptedGateway struct {
	mu      sync.Mutex
	respond func(call int, req GenerateRequest) (string, error)
	calls   []GenerateRequest
}

func (g *scriptedGateway) Generate(ctx context.Context, req GenerateRequest) (string, error) {
	g.mu.Lock()
	g.calls = append(g.calls, req)
	call := len(g.calls)
	g.mu.Unlock()
	return g.respond(call, req)
}

func (g *scriptedGateway) callCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.calls)
}

// sequenceGateway returns the given responses in order, repeating the last one
func sequenceGateway(responses ...string) *scriptedGateway {
	return &scriptedGateway{respond: func(call int, _ GenerateRequest) (string, error) {
		if call > len(responses) {
			call = len(responses)
		}
		return responses[call-1], nil
	}}
}

type passthroughPreprocessor struct{}

func (passthroughPreprocessor) Preprocess(subject, body string) string {
	if subject == "" {
		return body
	}
	return subject + "\n\n" + body
}

func analysisJSON(sentiment Sentiment, category Category, confidence int, tags ...string) string {
	quoted := make([]string, len(tags))
	for i, t := range tags {
		quoted[i] = fmt.Sprintf("%q", t)
	}
	return fmt.Sprintf(`{"sentiment": %q, "classification": %q, "confidence": %d, "tags": [%s]}`,
		sentiment, category, confidence, strings.Join(quoted, ", "))
}

func testEngineConfig() EngineConfig {
	return EngineConfig{
		Model:               "test-model",
		Temperature:         0.1,
		TopP:                0.9,
		MaxTokens:           512,
		ConfidenceThreshold: 90,
		MaxRetries:          3,
		RetryStrategy:       RetryRepeat,
		GatewayTimeout:      time.Second,
		GatewayMaxAttempts:  3,
	}
}

func newTestEngine(t *testing.T, gateway ModelGateway, cfg EngineConfig) *AnalysisEngine {
	t.Helper()
	engine, err := NewAnalysisEngine(gateway, passthroughPreprocessor{}, cfg, zap.NewNop())
	require.NoError(t, err)
	engine.sleep = func(ctx context.Context, _ time.Duration) error { return ctx.Err() }
	engine.now = func() time.Time { return time.Date(2024, 7, 1, 12, 0, 0, 0, time.UTC) }
	return engine
}

var testEmail = EmailInput{
	ID:      "email-1",
	Date:    "2024-07-01",
	Subject: "Pepsi machine",
	Body:    "The Pepsi machine is still not cooling.",
}

func TestAnalyzeStopsWhenConfident(t *testing.T) {
	gateway := sequenceGateway(analysisJSON(SentimentNegative, CategoryMaintenanceRepairs, 95, "Pepsi machine"))
	engine := newTestEngine(t, gateway, testEngineConfig())

	record, err := engine.Analyze(context.Background(), testEmail)
	require.NoError(t, err)

	assert.Equal(t, 1, gateway.callCount())
	assert.Equal(t, 1, record.AttemptCount)
	assert.Equal(t, "email-1", record.EmailID)
	assert.Equal(t, "2024-07-01", record.EmailDate)
	assert.Equal(t, SentimentNegative, record.Sentiment)
	assert.Equal(t, CategoryMaintenanceRepairs, record.Classification)
	assert.Equal(t, 95.0, record.Confidence)
	assert.Equal(t, []string{"Pepsi machine"}, record.Tags)
	assert.Equal(t, time.Date(2024, 7, 1, 12, 0, 0, 0, time.UTC), record.CreatedAt)
}

func TestAnalyzeSelectsHighestConfidenceAttempt(t *testing.T) {
	gateway := sequenceGateway(
		analysisJSON(SentimentNeutral, CategoryGeneralFollowUps, 40),
		analysisJSON(SentimentNegative, CategoryMaintenanceRepairs, 85, "cooling issue"),
		analysisJSON(SentimentNeutral, CategoryOperationalLogistics, 60),
	)
	engine := newTestEngine(t, gateway, testEngineConfig())

	record, err := engine.Analyze(context.Background(), testEmail)
	require.NoError(t, err)

	assert.Equal(t, 3, gateway.callCount())
	assert.Equal(t, 3, record.AttemptCount)
	assert.Equal(t, 85.0, record.Confidence)
	assert.Equal(t, SentimentNegative, record.Sentiment)
	assert.Equal(t, CategoryMaintenanceRepairs, record.Classification)
	assert.Equal(t, []string{"cooling issue"}, record.Tags)
}

func TestAnalyzeNeverExceedsMaxRetries(t *testing.T) {
	for _, maxRetries := range []int{1, 2, 5} {
		t.Run(fmt.Sprintf("max_retries=%d", maxRetries), func(t *testing.T) {
			gateway := sequenceGateway(analysisJSON(SentimentNeutral, CategoryGeneralFollowUps, 10))
			cfg := testEngineConfig()
			cfg.MaxRetries = maxRetries
			engine := newTestEngine(t, gateway, cfg)

			record, err := engine.Analyze(context.Background(), testEmail)
			require.NoError(t, err)
			assert.Equal(t, maxRetries, gateway.callCount())
			assert.Equal(t, maxRetries, record.AttemptCount)
			assert.Equal(t, 10.0, record.Confidence)
		})
	}
}

func TestAnalyzeThresholdIsInclusive(t *testing.T) {
	gateway := sequenceGateway(analysisJSON(SentimentPositive, CategoryFeedbackComplaints, 90))
	engine := newTestEngine(t, gateway, testEngineConfig())

	record, err := engine.Analyze(context.Background(), testEmail)
	require.NoError(t, err)
	assert.Equal(t, 1, record.AttemptCount)
}

func TestAnalyzeRetriesMalformedResponse(t *testing.T) {
	gateway := sequenceGateway(
		"I am not sure, this looks like a broken machine.",
		analysisJSON(SentimentNegative, CategoryMaintenanceRepairs, 92),
	)
	engine := newTestEngine(t, gateway, testEngineConfig())

	record, err := engine.Analyze(context.Background(), testEmail)
	require.NoError(t, err)
	assert.Equal(t, 2, record.AttemptCount)
	assert.Equal(t, 92.0, record.Confidence)
	assert.Equal(t, CategoryMaintenanceRepairs, record.Classification)
}

func TestAnalyzeAllMalformedFallsBackToHeuristics(t *testing.T) {
	gateway := sequenceGateway("The invoice charge looks wrong and the customer has a problem with it.")
	engine := newTestEngine(t, gateway, testEngineConfig())

	record, err := engine.Analyze(context.Background(), testEmail)
	require.NoError(t, err)
	assert.Equal(t, 3, record.AttemptCount)
	assert.Zero(t, record.Confidence)
	assert.Equal(t, SentimentNegative, record.Sentiment)
	assert.Equal(t, CategoryBillingInvoices, record.Classification)
	assert.NotNil(t, record.Tags)
}

func TestAnalyzeResolvesCoercedLabels(t *testing.T) {
	cfg := testEngineConfig()
	cfg.MaxRetries = 1
	gateway := sequenceGateway(`{"sentiment": "very negative", "classification": "Repair request", "confidence": 97}`)
	engine := newTestEngine(t, gateway, cfg)

	record, err := engine.Analyze(context.Background(), testEmail)
	require.NoError(t, err)
	assert.Equal(t, SentimentNegative, record.Sentiment)
	assert.Equal(t, CategoryMaintenanceRepairs, record.Classification)
	assert.Zero(t, record.Confidence)
}

func TestAnalyzeSendsPromptAndSamplingParameters(t *testing.T) {
	gateway := sequenceGateway(analysisJSON(SentimentNegative, CategoryMaintenanceRepairs, 99))
	engine := newTestEngine(t, gateway, testEngineConfig())

	_, err := engine.Analyze(context.Background(), testEmail)
	require.NoError(t, err)

	req := gateway.calls[0]
	assert.Equal(t, "test-model", req.Model)
	assert.Equal(t, float32(0.1), req.Temperature)
	assert.Equal(t, float32(0.9), req.TopP)
	assert.Equal(t, 512, req.MaxTokens)
	assert.Contains(t, req.System, "Maintenance/Repairs")
	assert.Contains(t, req.System, "Respond *only* with a JSON object")
	assert.True(t, strings.HasPrefix(req.Prompt, "Analyze the following email text:\n\n"))
	assert.Contains(t, req.Prompt, "The Pepsi machine is still not cooling.")
}

func TestAnalyzeEmphasizeStrategyChangesRetryPrompt(t *testing.T) {
	gateway := sequenceGateway(
		analysisJSON(SentimentNeutral, CategoryGeneralFollowUps, 30),
		analysisJSON(SentimentNegative, CategoryMaintenanceRepairs, 95),
	)
	cfg := testEngineConfig()
	cfg.RetryStrategy = RetryEmphasize
	engine := newTestEngine(t, gateway, cfg)

	_, err := engine.Analyze(context.Background(), testEmail)
	require.NoError(t, err)
	require.Len(t, gateway.calls, 2)
	assert.NotContains(t, gateway.calls[0].Prompt, "previous analysis")
	assert.Contains(t, gateway.calls[1].Prompt, "A previous analysis of this email was not confident")
	assert.Contains(t, gateway.calls[1].Prompt, `classification "General Follow-ups", confidence 30`)
}

func TestAnalyzeRepeatStrategyResendsSamePrompt(t *testing.T) {
	gateway := sequenceGateway(
		analysisJSON(SentimentNeutral, CategoryGeneralFollowUps, 30),
		analysisJSON(SentimentNegative, CategoryMaintenanceRepairs, 95),
	)
	engine := newTestEngine(t, gateway, testEngineConfig())

	_, err := engine.Analyze(context.Background(), testEmail)
	require.NoError(t, err)
	require.Len(t, gateway.calls, 2)
	assert.Equal(t, gateway.calls[0].Prompt, gateway.calls[1].Prompt)
}

func TestAnalyzeRecoversFromTransientGatewayFailure(t *testing.T) {
	gateway := &scriptedGateway{respond: func(call int, _ GenerateRequest) (string, error) {
		if call == 1 {
			return "", NewServiceError("status 503", errors.New("model loading"))
		}
		return analysisJSON(SentimentPositive, CategoryFeedbackComplaints, 91), nil
	}}
	engine := newTestEngine(t, gateway, testEngineConfig())

	record, err := engine.Analyze(context.Background(), testEmail)
	require.NoError(t, err)
	assert.Equal(t, 2, gateway.callCount())
	assert.Equal(t, 1, record.AttemptCount)
	assert.Equal(t, SentimentPositive, record.Sentiment)
}

func TestAnalyzeGatewayUnavailable(t *testing.T) {
	gateway := &scriptedGateway{respond: func(int, GenerateRequest) (string, error) {
		return "", NewServiceError("status 500", errors.New("internal error"))
	}}
	engine := newTestEngine(t, gateway, testEngineConfig())

	record, err := engine.Analyze(context.Background(), testEmail)
	require.Error(t, err)
	assert.Nil(t, record)
	assert.True(t, errors.Is(err, ErrGatewayUnavailable))
	assert.Equal(t, 3, gateway.callCount())

	var unavailable *GatewayUnavailableError
	require.True(t, errors.As(err, &unavailable))
	assert.Equal(t, 3, unavailable.Attempts)
	assert.Equal(t, GatewayServiceError, unavailable.Last.Kind)
	assert.Equal(t, "gateway_unavailable:service_error", ErrorKind(err))
}

func TestAnalyzeGatewayTimeout(t *testing.T) {
	gateway := &scriptedGateway{respond: func(int, GenerateRequest) (string, error) {
		return "", context.DeadlineExceeded
	}}
	cfg := testEngineConfig()
	cfg.GatewayMaxAttempts = 2
	engine := newTestEngine(t, gateway, cfg)

	_, err := engine.Analyze(context.Background(), testEmail)
	require.Error(t, err)
	assert.Equal(t, 2, gateway.callCount())
	assert.Equal(t, "gateway_unavailable:timeout", ErrorKind(err))
}

func TestAnalyzePerCallTimeout(t *testing.T) {
	cfg := testEngineConfig()
	cfg.GatewayTimeout = 10 * time.Millisecond
	cfg.GatewayMaxAttempts = 1
	engine := newTestEngine(t, blockingGateway{}, cfg)

	_, err := engine.Analyze(context.Background(), testEmail)
	require.Error(t, err)

	var unavailable *GatewayUnavailableError
	require.True(t, errors.As(err, &unavailable))
	assert.Equal(t, GatewayTimeout, unavailable.Last.Kind)
}

// blockingGateway waits until its context is done
type blockingGateway struct{}

func (blockingGateway) Generate(ctx context.Context, _ GenerateRequest) (string, error) {
	<-ctx.Done()
	return "", ctx.Err()
}

func TestAnalyzeHonorsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	engine := newTestEngine(t, blockingGateway{}, testEngineConfig())
	_, err := engine.Analyze(ctx, testEmail)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSelectBestAttemptPrefersEarliestOnTie(t *testing.T) {
	best := SelectBestAttempt([]AnalysisAttempt{
		{Round: 1, Confidence: 70, Category: CategoryAdminCoordination},
		{Round: 2, Confidence: 80, Category: CategoryBillingInvoices},
		{Round: 3, Confidence: 80, Category: CategoryProductStocking},
	})
	assert.Equal(t, 2, best.Round)
	assert.Equal(t, CategoryBillingInvoices, best.Category)
}

func TestEngineConfigValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*EngineConfig)
	}{
		{"threshold above 100", func(c *EngineConfig) { c.ConfidenceThreshold = 101 }},
		{"negative threshold", func(c *EngineConfig) { c.ConfidenceThreshold = -1 }},
		{"zero retries", func(c *EngineConfig) { c.MaxRetries = 0 }},
		{"zero gateway attempts", func(c *EngineConfig) { c.GatewayMaxAttempts = 0 }},
		{"missing model", func(c *EngineConfig) { c.Model = "" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testEngineConfig()
			tt.mutate(&cfg)
			_, err := NewAnalysisEngine(sequenceGateway("{}"), passthroughPreprocessor{}, cfg, zap.NewNop())
			assert.ErrorIs(t, err, ErrValidation)
		})
	}

	assert.NoError(t, testEngineConfig().Validate())
}
