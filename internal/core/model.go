package core

import (
	"time"
)

// EmailInput represents one client email read from a source
type EmailInput struct {
	ID      string
	Date    string
	Subject string
	Body    string
	Sender  string
	// Category is the source's own label, used for reporting only and never sent to the model
	Category string
}

// AnalysisAttempt is the interpreted result of one round-trip to the model gateway
type AnalysisAttempt struct {
	Round              int
	Sentiment          Sentiment
	Category           Category
	Confidence         float64
	ReportedConfidence float64
	Tags               []string
	RawModelText       string
	RawSentiment       string
	RawCategory        string
	Coerced            bool
	Malformed          bool
}

// AnalysisRecord is the finished, persisted analysis of one email
type AnalysisRecord struct {
	ID             int64
	EmailID        string
	EmailDate      string
	Sentiment      Sentiment
	Classification Category
	Confidence     float64
	Tags           []string
	AttemptCount   int
	CreatedAt      time.Time
}

// FailureRecord describes an email that could not be analyzed or stored
type FailureRecord struct {
	EmailID string
	Kind    string
	Message string
}

// RunStats accumulates the outcome of a single batch run
type RunStats struct {
	RunID                 string
	TotalProcessed        int
	Succeeded             int
	Failed                int
	SentimentDistribution map[Sentiment]int
	CategoryDistribution  map[Category]int
	ConfidenceSum         float64
	TotalRounds           int
	Failures              []FailureRecord
	StartedAt             time.Time
	FinishedAt            time.Time
}

// NewRunStats creates an empty RunStats for the given run
func NewRunStats(runID string, startedAt time.Time) *RunStats {
	return &RunStats{
		RunID:                 runID,
		SentimentDistribution: make(map[Sentiment]int),
		CategoryDistribution:  make(map[Category]int),
		StartedAt:             startedAt,
	}
}

// AverageConfidence returns the mean confidence over succeeded emails
func (s *RunStats) AverageConfidence() float64 {
	if s.Succeeded == 0 {
		return 0
	}
	return s.ConfidenceSum / float64(s.Succeeded)
}

// Duration returns the wall time of the run
func (s *RunStats) Duration() time.Duration {
	if s.FinishedAt.IsZero() {
		return 0
	}
	return s.FinishedAt.Sub(s.StartedAt)
}

func (s *RunStats) recordSuccess(record *AnalysisRecord) {
	s.TotalProcessed++
	s.Succeeded++
	s.SentimentDistribution[record.Sentiment]++
	s.CategoryDistribution[record.Classification]++
	s.ConfidenceSum += record.Confidence
	s.TotalRounds += record.AttemptCount
}

func (s *RunStats) recordFailure(emailID string, err error) {
	s.TotalProcessed++
	s.Failed++
	s.Failures = append(s.Failures, FailureRecord{
		EmailID: emailID,
		Kind:    ErrorKind(err),
		Message: err.Error(),
	})
}

// RecordFilter narrows a store query. Zero values are ignored.
type RecordFilter struct {
	Sentiment      Sentiment
	Classification Category
	MinConfidence  *float64
	MaxConfidence  *float64
	Since          time.Time
	Until          time.Time
	Tag            string
	// Predicate is applied after the store-side filtering
	Predicate func(AnalysisRecord) bool
}

// Match reports whether a record satisfies every set field of the filter
func (f RecordFilter) Match(r AnalysisRecord) bool {
	if f.Sentiment != "" && r.Sentiment != f.Sentiment {
		return false
	}
	if f.Classification != "" && r.Classification != f.Classification {
		return false
	}
	if f.MinConfidence != nil && r.Confidence < *f.MinConfidence {
		return false
	}
	if f.MaxConfidence != nil && r.Confidence > *f.MaxConfidence {
		return false
	}
	if !f.Since.IsZero() && r.CreatedAt.Before(f.Since) {
		return false
	}
	if !f.Until.IsZero() && r.CreatedAt.After(f.Until) {
		return false
	}
	if f.Tag != "" && !hasTag(r.Tags, f.Tag) {
		return false
	}
	if f.Predicate != nil && !f.Predicate(r) {
		return false
	}
	return true
}

func hasTag(tags []string, tag string) bool {
	for _, t := range tags {
		if foldEqual(t, tag) {
			return true
		}
	}
	return false
}
