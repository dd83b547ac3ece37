package core

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/mikey/llm-email-analyzer/internal/metrics"
	"go.uber.org/zap"
)

// Progress describes the state of a batch after one email has been handled
type Progress struct {
	RunID     string
	Processed int
	Total     int
	EmailID   string
	Record    *AnalysisRecord
	Err       error
}

// ProgressFunc receives a Progress update after every email
type ProgressFunc func(Progress)

// BatchConfig holds the tunables of a batch run
type BatchConfig struct {
	MaxEmails         int
	InterRequestDelay time.Duration
}

// BatchRunner drives a sequence of emails through an Analyzer one at a time
// and hands every finished record to the store as soon as it completes
type BatchRunner struct {
	analyzer Analyzer
	store    RecordStore
	cfg      BatchConfig
	logger   *zap.Logger
	progress []ProgressFunc

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
	newID func() string
}

// NewBatchRunner creates a new batch runner
func NewBatchRunner(analyzer Analyzer, store RecordStore, cfg BatchConfig, logger *zap.Logger) *BatchRunner {
	return &BatchRunner{
		analyzer: analyzer,
		store:    store,
		cfg:      cfg,
		logger:   logger,
		now:      time.Now,
		sleep:    sleepContext,
		newID:    uuid.NewString,
	}
}

// OnProgress registers a callback invoked after every email
func (r *BatchRunner) OnProgress(fn ProgressFunc) {
	r.progress = append(r.progress, fn)
}

// RunBatch analyzes the emails in order. Per-email failures are recorded in
// the returned RunStats and never stop the run; only context cancellation
// ends it early, in which case the stats so far are returned with the error.
func (r *BatchRunner) RunBatch(ctx context.Context, emails []EmailInput) (*RunStats, error) {
	if r.cfg.MaxEmails > 0 && len(emails) > r.cfg.MaxEmails {
		emails = emails[:r.cfg.MaxEmails]
	}

	stats := NewRunStats(r.newID(), r.now())
	total := len(emails)
	logger := r.logger.With(zap.String("run_id", stats.RunID))
	logger.Info("Starting batch", zap.Int("total", total))

	for i, email := range emails {
		if err := ctx.Err(); err != nil {
			stats.FinishedAt = r.now()
			logger.Warn("Batch interrupted", zap.Int("processed", stats.TotalProcessed), zap.Error(err))
			return stats, err
		}
		if i > 0 && r.cfg.InterRequestDelay > 0 {
			if err := r.sleep(ctx, r.cfg.InterRequestDelay); err != nil {
				stats.FinishedAt = r.now()
				return stats, err
			}
		}

		record, err := r.processOne(ctx, email)
		if err != nil {
			if ctx.Err() != nil {
				stats.FinishedAt = r.now()
				logger.Warn("Batch interrupted", zap.Int("processed", stats.TotalProcessed), zap.Error(err))
				return stats, ctx.Err()
			}
			stats.recordFailure(email.ID, err)
			metrics.ObserveEmailOutcome("failed", ErrorKind(err))
			logger.Error("Failed to analyze email",
				zap.String("email_id", email.ID),
				zap.String("kind", ErrorKind(err)),
				zap.Error(err))
		} else {
			stats.recordSuccess(record)
			metrics.ObserveEmailOutcome("succeeded", "")
		}

		r.notify(Progress{
			RunID:     stats.RunID,
			Processed: stats.TotalProcessed,
			Total:     total,
			EmailID:   email.ID,
			Record:    record,
			Err:       err,
		})
	}

	stats.FinishedAt = r.now()
	logger.Info("Batch complete",
		zap.Int("total_processed", stats.TotalProcessed),
		zap.Int("succeeded", stats.Succeeded),
		zap.Int("failed", stats.Failed),
		zap.Float64("average_confidence", stats.AverageConfidence()),
		zap.Duration("duration", stats.Duration()))

	return stats, nil
}

// processOne analyzes and stores a single email, converting panics from
// collaborators into errors so one bad email cannot end the run
func (r *BatchRunner) processOne(ctx context.Context, email EmailInput) (record *AnalysisRecord, err error) {
	defer func() {
		if p := recover(); p != nil {
			record = nil
			err = fmt.Errorf("panic while analyzing email: %v", p)
		}
	}()

	record, err = r.analyzer.Analyze(ctx, email)
	if err != nil {
		return nil, err
	}

	id, err := r.store.Insert(ctx, record)
	if err != nil {
		if !errors.Is(err, ErrStoreWrite) {
			err = fmt.Errorf("%w: %w", ErrStoreWrite, err)
		}
		return nil, err
	}
	record.ID = id
	return record, nil
}

func (r *BatchRunner) notify(p Progress) {
	for _, fn := range r.progress {
		fn(p)
	}
}
