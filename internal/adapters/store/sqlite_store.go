package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/mikey/llm-email-analyzer/internal/core"
	"go.uber.org/zap"
)

// sqliteTimeLayout is fixed width so stored timestamps compare correctly as text
const sqliteTimeLayout = "2006-01-02T15:04:05.000000000Z"

var sqliteDialect = dialect{
	placeholder: func(int) string { return "?" },
	timeValue:   func(t time.Time) any { return t.UTC().Format(sqliteTimeLayout) },
}

// SQLiteStore is a SQLite implementation of the RecordStore interface
type SQLiteStore struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewSQLiteStore opens (or creates) the database file and its schema
func NewSQLiteStore(dbPath string, logger *zap.Logger) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite database: %w", err)
	}
	// A single writer keeps inserts ordered and avoids SQLITE_BUSY
	db.SetMaxOpenConns(1)

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS email_analysis (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			email_id TEXT NOT NULL,
			email_date TEXT NOT NULL,
			sentiment TEXT NOT NULL,
			classification TEXT NOT NULL,
			confidence REAL NOT NULL,
			tags TEXT NOT NULL,
			attempt_count INTEGER NOT NULL,
			created_at TEXT NOT NULL
		)
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create table: %w", err)
	}

	_, err = db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_email_analysis_classification ON email_analysis(classification)
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create index: %w", err)
	}

	return &SQLiteStore{
		db:     db,
		logger: logger,
	}, nil
}

// Insert appends a record and returns its id
func (s *SQLiteStore) Insert(ctx context.Context, record *core.AnalysisRecord) (int64, error) {
	tags, err := encodeTags(record.Tags)
	if err != nil {
		return 0, storeWriteError(err)
	}

	result, err := s.db.ExecContext(ctx, `
		INSERT INTO email_analysis (email_id, email_date, sentiment, classification, confidence, tags, attempt_count, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, record.EmailID, record.EmailDate, string(record.Sentiment), string(record.Classification),
		record.Confidence, tags, record.AttemptCount, record.CreatedAt.UTC().Format(sqliteTimeLayout))
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
func (s *SQLiteStore) QueryAll(ctx context.Context) ([]core.AnalysisRecord, error) {
	return s.QueryByFilter(ctx, core.RecordFilter{})
}

// QueryByFilter returns the records matching the filter in insertion order
func (s *SQLiteStore) QueryByFilter(ctx context.Context, filter core.RecordFilter) ([]core.AnalysisRecord, error) {
	query, args := selectQuery(sqliteDialect, filter)
	records, err := querySQL(ctx, s.db, query, args, parseSQLiteTime)
	if err != nil {
		return nil, err
	}
	return applyFilter(records, filter), nil
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		s.logger.Error("Failed to close SQLite database", zap.Error(err))
		return err
	}
	return nil
}

func parseSQLiteTime(v any) (time.Time, error) {
	var raw string
	switch t := v.(type) {
	case time.Time:
		return t.UTC(), nil
	case string:
		raw = t
	case []byte:
		raw = string(t)
	default:
		return time.Time{}, fmt.Errorf("unexpected created_at type %T", v)
	}
	ts, err := time.Parse(sqliteTimeLayout, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to parse created_at: %w", err)
	}
	return ts, nil
}

// querySQL runs a select built by selectQuery against a database/sql handle
func querySQL(ctx context.Context, db *sql.DB, query string, args []any, createdAt func(any) (time.Time, error)) ([]core.AnalysisRecord, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query records: %w", err)
	}
	defer rows.Close()

	records := []core.AnalysisRecord{}
	for rows.Next() {
		r, err := scanRecord(rows, createdAt)
		if err != nil {
			return nil, err
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate records: %w", err)
	}
	return records, nil
}
