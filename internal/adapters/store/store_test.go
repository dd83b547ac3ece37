package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/mikey/llm-email-analyzer/internal/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var base = time.Date(2024, 7, 1, 9, 30, 0, 0, time.UTC)

func sampleRecords() []core.AnalysisRecord {
	return []core.AnalysisRecord{
		{
			EmailID: "e1", EmailDate: "2024-07-01",
			Sentiment: core.SentimentNegative, Classification: core.CategoryMaintenanceRepairs,
			Confidence: 95, Tags: []string{"Pepsi machine", "cooling issue"}, AttemptCount: 1,
			CreatedAt: base,
		},
		{
			EmailID: "e2", EmailDate: "2024-07-02",
			Sentiment: core.SentimentNeutral, Classification: core.CategoryBillingInvoices,
			Confidence: 62.5, Tags: []string{}, AttemptCount: 3,
			CreatedAt: base.Add(time.Hour),
		},
		{
			EmailID: "e3", EmailDate: "2024-07-03",
			Sentiment: core.SentimentNegative, Classification: core.CategoryBillingInvoices,
			Confidence: 80, Tags: []string{"billing dispute"}, AttemptCount: 2,
			CreatedAt: base.Add(2*time.Hour + 500*time.Millisecond),
		},
	}
}

// testStores returns every backend that runs without external services
func testStores(t *testing.T) map[string]core.RecordStore {
	t.Helper()

	sqlite, err := NewSQLiteStore(filepath.Join(t.TempDir(), "analysis.db"), zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlite.Close() })

	return map[string]core.RecordStore{
		"memory": NewMemoryStore(zap.NewNop()),
		"sqlite": sqlite,
	}
}

func insertAll(t *testing.T, s core.RecordStore) {
	t.Helper()
	for i, r := range sampleRecords() {
		r := r
		id, err := s.Insert(context.Background(), &r)
		require.NoError(t, err)
		assert.Equal(t, int64(i+1), id)
	}
}

func TestStoreQueryAllPreservesInsertionOrder(t *testing.T) {
	for name, s := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			insertAll(t, s)

			records, err := s.QueryAll(context.Background())
			require.NoError(t, err)
			require.Len(t, records, 3)

			want := sampleRecords()
			for i, r := range records {
				assert.Equal(t, int64(i+1), r.ID)
				assert.Equal(t, want[i].EmailID, r.EmailID)
				assert.Equal(t, want[i].EmailDate, r.EmailDate)
				assert.Equal(t, want[i].Sentiment, r.Sentiment)
				assert.Equal(t, want[i].Classification, r.Classification)
				assert.Equal(t, want[i].Confidence, r.Confidence)
				assert.Equal(t, want[i].Tags, r.Tags)
				assert.Equal(t, want[i].AttemptCount, r.AttemptCount)
				assert.True(t, want[i].CreatedAt.Equal(r.CreatedAt), "created_at %v != %v", want[i].CreatedAt, r.CreatedAt)
			}
		})
	}
}

func TestStoreQueryByFilter(t *testing.T) {
	for name, s := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			insertAll(t, s)
			ctx := context.Background()

			ids := func(filter core.RecordFilter) []string {
				records, err := s.QueryByFilter(ctx, filter)
				require.NoError(t, err)
				out := []string{}
				for _, r := range records {
					out = append(out, r.EmailID)
				}
				return out
			}

			lo, hi := 70.0, 90.0
			assert.Equal(t, []string{"e2", "e3"}, ids(core.RecordFilter{Classification: core.CategoryBillingInvoices}))
			assert.Equal(t, []string{"e1", "e3"}, ids(core.RecordFilter{Sentiment: core.SentimentNegative}))
			assert.Equal(t, []string{"e3"}, ids(core.RecordFilter{MinConfidence: &lo, MaxConfidence: &hi}))
			assert.Equal(t, []string{"e2", "e3"}, ids(core.RecordFilter{Since: base.Add(time.Minute)}))
			assert.Equal(t, []string{"e1", "e2"}, ids(core.RecordFilter{Until: base.Add(time.Hour)}))
			assert.Equal(t, []string{"e1"}, ids(core.RecordFilter{Tag: "COOLING ISSUE"}))
			assert.Equal(t, []string{"e2"}, ids(core.RecordFilter{
				Predicate: func(r core.AnalysisRecord) bool { return r.AttemptCount == 3 },
			}))
			assert.Equal(t, []string{}, ids(core.RecordFilter{Sentiment: core.SentimentPositive}))
		})
	}
}

func TestStoreEmptyQuery(t *testing.T) {
	for name, s := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			records, err := s.QueryAll(context.Background())
			require.NoError(t, err)
			assert.Empty(t, records)
		})
	}
}

func TestMemoryStoreReturnsCopies(t *testing.T) {
	s := NewMemoryStore(zap.NewNop())
	record := sampleRecords()[0]
	_, err := s.Insert(context.Background(), &record)
	require.NoError(t, err)

	record.Tags[0] = "mutated"
	records, err := s.QueryAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Pepsi machine", records[0].Tags[0])

	records[0].Tags[0] = "mutated again"
	again, err := s.QueryAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Pepsi machine", again[0].Tags[0])
}

func TestSQLiteStoreReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "analysis.db")

	s, err := NewSQLiteStore(path, zap.NewNop())
	require.NoError(t, err)
	insertAll(t, s)
	require.NoError(t, s.Close())

	reopened, err := NewSQLiteStore(path, zap.NewNop())
	require.NoError(t, err)
	defer reopened.Close()

	records, err := reopened.QueryAll(context.Background())
	require.NoError(t, err)
	assert.Len(t, records, 3)

	record := sampleRecords()[0]
	id, err := reopened.Insert(context.Background(), &record)
	require.NoError(t, err)
	assert.Equal(t, int64(4), id)
}

func TestSQLiteStoreInsertFailureWrapsStoreWrite(t *testing.T) {
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "analysis.db"), zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, s.Close())

	record := sampleRecords()[0]
	_, err = s.Insert(context.Background(), &record)
	require.Error(t, err)
	assert.True(t, errors.Is(err, core.ErrStoreWrite))
}

func TestWhereClausePlaceholders(t *testing.T) {
	floor := 50.0
	filter := core.RecordFilter{Sentiment: core.SentimentNeutral, MinConfidence: &floor}

	query, args := selectQuery(postgresDialect, filter)
	assert.Contains(t, query, "WHERE sentiment = $1 AND confidence >= $2")
	assert.Contains(t, query, "ORDER BY id ASC")
	assert.Equal(t, []any{"Neutral", 50.0}, args)

	query, _ = selectQuery(mysqlDialect, filter)
	assert.Contains(t, query, "WHERE sentiment = ? AND confidence >= ?")

	query, args = selectQuery(sqliteDialect, core.RecordFilter{})
	assert.NotContains(t, query, "WHERE")
	assert.Empty(t, args)
}
