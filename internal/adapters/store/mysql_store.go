package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/mikey/llm-email-analyzer/internal/core"
	"go.uber.org/zap"
)

var mysqlDialect = dialect{
	placeholder: func(int) string { return "?" },
	timeValue:   func(t time.Time) any { return t.UTC() },
}

// MySQLStore is a MySQL implementation of the RecordStore interface
type MySQLStore struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewMySQLStore connects to MySQL and creates the schema if needed
func NewMySQLStore(ctx context.Context, dsn string, logger *zap.Logger) (*MySQLStore, error) {
	cfg, err := mysql.ParseDSN(dsn)
	if err != nil {
		return nil, fmt.Errorf("invalid MySQL DSN: %w", err)
	}
	// Timestamps are written and read back as UTC time.Time values
	cfg.ParseTime = true
	cfg.Loc = time.UTC

	connector, err := mysql.NewConnector(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create MySQL connector: %w", err)
	}
	db := sql.OpenDB(connector)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to MySQL database: %w", err)
	}

	_, err = db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS email_analysis (
			id BIGINT AUTO_INCREMENT PRIMARY KEY,
			email_id VARCHAR(255) NOT NULL,
			email_date VARCHAR(64) NOT NULL,
			sentiment VARCHAR(32) NOT NULL,
			classification VARCHAR(64) NOT NULL,
			confidence DOUBLE NOT NULL,
			tags JSON NOT NULL,
			attempt_count INT NOT NULL,
			created_at DATETIME(6) NOT NULL,
			INDEX idx_email_analysis_classification (classification)
		)
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create table: %w", err)
	}

	return &MySQLStore{
		db:     db,
		logger: logger,
	}, nil
}

// Insert appends a record and returns its id
func (s *MySQLStore) Insert(ctx context.Context, record *core.AnalysisRecord) (int64, error) {
	tags, err := encodeTags(record.Tags)
	if err != nil {
		return 0, storeWriteError(err)
	}

	result, err := s.db.ExecContext(ctx, `
		INSERT INTO email_analysis (email_id, email_date, sentiment, classification, confidence, tags, attempt_count, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, record.EmailID, record.EmailDate, string(record.Sentiment), string(record.Classification),
		record.Confidence, tags, record.AttemptCount, record.CreatedAt.UTC())
	if err != nil {
		s.logger.Error("Failed to insert analysis record", zap.Error(err), zap.String("email_id", record.EmailID))
		return 0, storeWriteError(err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, storeWriteError(err)
	}
	return id, nil
}

// QueryAll returns every record in insertion order
func (s *MySQLStore) QueryAll(ctx context.Context) ([]core.AnalysisRecord, error) {
	return s.QueryByFilter(ctx, core.RecordFilter{})
}

// QueryByFilter returns the records matching the filter in insertion order
func (s *MySQLStore) QueryByFilter(ctx context.Context, filter core.RecordFilter) ([]core.AnalysisRecord, error) {
	query, args := selectQuery(mysqlDialect, filter)
	records, err := querySQL(ctx, s.db, query, args, timeValue)
	if err != nil {
		return nil, err
	}
	return applyFilter(records, filter), nil
}

// Close closes the database connection
func (s *MySQLStore) Close() error {
	if err := s.db.Close(); err != nil {
		s.logger.Error("Failed to close MySQL database", zap.Error(err))
		return err
	}
	return nil
}

func timeValue(v any) (time.Time, error) {
	t, ok := v.(time.Time)
	if !ok {
		return time.Time{}, fmt.Errorf("unexpected created_at type %T", v)
	}
	return t.UTC(), nil
}
