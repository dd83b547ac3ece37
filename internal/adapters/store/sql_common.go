package store

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/mikey/llm-email-analyzer/internal/core"
)

// columns lists the email_analysis columns in scan order
const columns = "id, email_id, email_date, sentiment, classification, confidence, tags, attempt_count, created_at"

// dialect captures the differences between SQL backends
type dialect struct {
	placeholder func(n int) string
	timeValue   func(t time.Time) any
}

// whereClause renders the store-side part of a filter. Tag and Predicate
// are applied in Go after the query.
func whereClause(d dialect, f core.RecordFilter) (string, []any) {
	var conds []string
	var args []any
	add := func(cond string, arg any) {
		args = append(args, arg)
		conds = append(conds, fmt.Sprintf(cond, d.placeholder(len(args))))
	}

	if f.Sentiment != "" {
		add("sentiment = %s", string(f.Sentiment))
	}
	if f.Classification != "" {
		add("classification = %s", string(f.Classification))
	}
	if f.MinConfidence != nil {
		add("confidence >= %s", *f.MinConfidence)
	}
	if f.MaxConfidence != nil {
		add("confidence <= %s", *f.MaxConfidence)
	}
	if !f.Since.IsZero() {
		add("created_at >= %s", d.timeValue(f.Since))
	}
	if !f.Until.IsZero() {
		add("created_at <= %s", d.timeValue(f.Until))
	}

	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func selectQuery(d dialect, f core.RecordFilter) (string, []any) {
	where, args := whereClause(d, f)
	return "SELECT " + columns + " FROM email_analysis" + where + " ORDER BY id ASC", args
}

func encodeTags(tags []string) (string, error) {
	if tags == nil {
		tags = []string{}
	}
	b, err := json.Marshal(tags)
	if err != nil {
		return "", fmt.Errorf("failed to encode tags: %w", err)
	}
	return string(b), nil
}

func decodeTags(raw []byte) ([]string, error) {
	tags := []string{}
	if len(raw) == 0 {
		return tags, nil
	}
	if err := json.Unmarshal(raw, &tags); err != nil {
		return nil, fmt.Errorf("failed to decode tags: %w", err)
	}
	return tags, nil
}

// rowScanner is satisfied by *sql.Rows and pgx.Rows
type rowScanner interface {
	Scan(dest ...any) error
}

// scanRecord reads one row; createdAt converts the backend's timestamp value
func scanRecord(row rowScanner, createdAt func(any) (time.Time, error)) (core.AnalysisRecord, error) {
	var (
		r         core.AnalysisRecord
		sentiment string
		category  string
		rawTags   []byte
		created   any
	)
	if err := row.Scan(&r.ID, &r.EmailID, &r.EmailDate, &sentiment, &category,
		&r.Confidence, &rawTags, &r.AttemptCount, &created); err != nil {
		return core.AnalysisRecord{}, fmt.Errorf("failed to scan record: %w", err)
	}

	tags, err := decodeTags(rawTags)
	if err != nil {
		return core.AnalysisRecord{}, err
	}
	ts, err := createdAt(created)
	if err != nil {
		return core.AnalysisRecord{}, err
	}

	r.Sentiment = core.Sentiment(sentiment)
	r.Classification = core.Category(category)
	r.Tags = tags
	r.CreatedAt = ts
	return r, nil
}

// applyFilter re-checks every record against the full filter, covering
// the conditions the backend could not express
func applyFilter(records []core.AnalysisRecord, f core.RecordFilter) []core.AnalysisRecord {
	if f.Tag == "" && f.Predicate == nil {
		return records
	}
	out := records[:0]
	for _, r := range records {
		if f.Match(r) {
			out = append(out, r)
		}
	}
	return out
}

func storeWriteError(err error) error {
	return fmt.Errorf("%w: %w", core.ErrStoreWrite, err)
}
