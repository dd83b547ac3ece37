package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/mikey/llm-email-analyzer/internal/core"
	"go.uber.org/zap"
)

var postgresDialect = dialect{
	placeholder: func(n int) string { return fmt.Sprintf("$%d", n) },
	timeValue:   func(t time.Time) any { return t.UTC() },
}

// PostgresStore is a PostgreSQL implementation of the RecordStore interface
type PostgresStore struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

// NewPostgresStore connects a pool to PostgreSQL and creates the schema if needed
func NewPostgresStore(ctx context.Context, dsn string, logger *zap.Logger) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to create PostgreSQL pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to connect to PostgreSQL database: %w", err)
	}

	_, err = pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS email_analysis (
			id BIGSERIAL PRIMARY KEY,
			email_id TEXT NOT NULL,
			email_date TEXT NOT NULL,
			sentiment TEXT NOT NULL,
			classification TEXT NOT NULL,
			confidence DOUBLE PRECISION NOT NULL,
			tags JSONB NOT NULL,
			attempt_count INTEGER NOT NULL,
			created_at TIMESTAMPTZ NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_email_analysis_classification ON email_analysis(classification);
	`)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to create table: %w", err)
	}

	return &PostgresStore{
		pool:   pool,
		logger: logger,
	}, nil
}

// Insert appends a record and returns its id
func (s *PostgresStore) Insert(ctx context.Context, record *core.AnalysisRecord) (int64, error) {
	tags, err := encodeTags(record.Tags)
	if err != nil {
		return 0, storeWriteError(err)
	}

	var id int64
	err = s.pool.QueryRow(ctx, `
		INSERT INTO email_analysis (email_id, email_date, sentiment, classification, confidence, tags, attempt_count, created_at)
		VALUES ($1, $2, $3, $4, $5, $6::jsonb, $7, $8)
		RETURNING id
	`, record.EmailID, record.EmailDate, string(record.Sentiment), string(record.Classification),
		record.Confidence, tags, record.AttemptCount, record.CreatedAt.UTC()).Scan(&id)
	if err != nil {
		s.logger.Error("Failed to insert analysis record", zap.Error(err), zap.String("email_id", record.EmailID))
		return 0, storeWriteError(err)
	}
	return id, nil
}

// QueryAll returns every record in insertion order
func (s *PostgresStore) QueryAll(ctx context.Context) ([]core.AnalysisRecord, error) {
	return s.QueryByFilter(ctx, core.RecordFilter{})
}

// QueryByFilter returns the records matching the filter in insertion order
func (s *PostgresStore) QueryByFilter(ctx context.Context, filter core.RecordFilter) ([]core.AnalysisRecord, error) {
	query, args := selectQuery(postgresDialect, filter)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query records: %w", err)
	}
	defer rows.Close()

	records := []core.AnalysisRecord{}
	for rows.Next() {
		r, err := scanRecord(rows, timeValue)
		if err != nil {
			return nil, err
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate records: %w", err)
	}
	return applyFilter(records, filter), nil
}

// Close closes every pooled connection
func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}
