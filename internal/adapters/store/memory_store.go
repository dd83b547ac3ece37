package store

import (
	"context"
	"sync"

	"github.com/mikey/llm-email-analyzer/internal/core"
	"go.uber.org/zap"
)

// MemoryStore is an in-memory implementation of the RecordStore interface
type MemoryStore struct {
	records []core.AnalysisRecord
	nextID  int64
	mu      sync.RWMutex
	logger  *zap.Logger
}

// NewMemoryStore creates a new in-memory store
func NewMemoryStore(logger *zap.Logger) *MemoryStore {
	return &MemoryStore{
		nextID: 1,
		logger: logger,
	}
}

// Insert appends a copy of the record and returns its id
func (s *MemoryStore) Insert(ctx context.Context, record *core.AnalysisRecord) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	stored := *record
	stored.ID = s.nextID
	stored.Tags = append([]string{}, record.Tags...)
	s.records = append(s.records, stored)
	s.nextID++

	s.logger.Debug("Stored analysis record",
		zap.Int64("id", stored.ID),
		zap.String("email_id", stored.EmailID))

	return stored.ID, nil
}

// QueryAll returns every record in insertion order
func (s *MemoryStore) QueryAll(ctx context.Context) ([]core.AnalysisRecord, error) {
	return s.QueryByFilter(ctx, core.RecordFilter{})
}

// QueryByFilter returns the records matching the filter in insertion order
func (s *MemoryStore) QueryByFilter(ctx context.Context, filter core.RecordFilter) ([]core.AnalysisRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]core.AnalysisRecord, 0, len(s.records))
	for _, r := range s.records {
		if filter.Match(r) {
			r.Tags = append([]string{}, r.Tags...)
			out = append(out, r)
		}
	}
	return out, nil
}

// Close releases nothing; it exists so every store can be closed the same way
func (s *MemoryStore) Close() error {
	return nil
}
