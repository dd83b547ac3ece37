package core

import (
	"context"
)

// GenerateRequest is a single prompt sent to the generation service
type GenerateRequest struct {
	Model       string
	System      string
	Prompt      string
	Temperature float32
	TopP        float32
	MaxTokens   int
}

// ModelGateway defines the interface for the text generation service
type ModelGateway interface {
	// Generate sends a prompt and returns the raw generated text.
	// Failures are reported as *GatewayError.
	Generate(ctx context.Context, req GenerateRequest) (string, error)
}

// HealthChecker is implemented by gateways that can verify reachability up front
type HealthChecker interface {
	Ping(ctx context.Context) error
}

// RecordStore defines the append-only persistence contract for analysis records
type RecordStore interface {
	// Insert persists a record and returns its id
	Insert(ctx context.Context, record *AnalysisRecord) (int64, error)

	// QueryAll returns every record in insertion order
	QueryAll(ctx context.Context) ([]AnalysisRecord, error)

	// QueryByFilter returns the records matching the filter in insertion order
	QueryByFilter(ctx context.Context, filter RecordFilter) ([]AnalysisRecord, error)
}

// Preprocessor normalizes raw email text into a prompt-ready string
type Preprocessor interface {
	Preprocess(subject, body string) string
}

// Analyzer turns one email into a finished record
type Analyzer interface {
	Analyze(ctx context.Context, email EmailInput) (*AnalysisRecord, error)
}
