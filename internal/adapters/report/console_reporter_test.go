package report

import (
	"bytes"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/mikey/llm-email-analyzer/internal/core"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func TestProgress(t *testing.T) {
	var buf bytes.Buffer
	r := NewConsoleReporter(&buf, zap.NewNop(), true)

	r.Progress(core.Progress{
		Processed: 1, Total: 3, EmailID: "e1",
		Record: &core.AnalysisRecord{
			Sentiment: core.SentimentNegative, Classification: core.CategoryMaintenanceRepairs,
			Confidence: 92, AttemptCount: 2, Tags: []string{"coffee machine", "leak"},
		},
	})
	r.Progress(core.Progress{
		Processed: 2, Total: 3, EmailID: "e2",
		Err: fmt.Errorf("%w: disk full", core.ErrStoreWrite),
	})

	out := buf.String()
	assert.Contains(t, out, "[1/3] e1 Negative / Maintenance/Repairs (92%, 2 rounds)")
	assert.Contains(t, out, "tags: coffee machine, leak")
	assert.Contains(t, out, "[2/3] e2 failed (store_write)")
}

func TestSummary(t *testing.T) {
	start := time.Date(2024, 7, 1, 9, 0, 0, 0, time.UTC)
	stats := core.NewRunStats("run-1", start)
	stats.FinishedAt = start.Add(1500 * time.Millisecond)
	stats.TotalProcessed = 4
	stats.Succeeded = 3
	stats.Failed = 1
	stats.ConfidenceSum = 255
	stats.TotalRounds = 4
	stats.SentimentDistribution[core.SentimentNegative] = 2
	stats.SentimentDistribution[core.SentimentPositive] = 1
	stats.CategoryDistribution[core.CategoryBillingInvoices] = 3
	stats.Failures = []core.FailureRecord{{EmailID: "e4", Kind: "gateway_unavailable:timeout", Message: "boom"}}

	var buf bytes.Buffer
	NewConsoleReporter(&buf, zap.NewNop(), false).Summary(stats)
	out := buf.String()

	assert.Contains(t, out, "ANALYSIS SUMMARY")
	assert.Contains(t, out, "Total emails processed: 4")
	assert.Contains(t, out, "Successful analyses: 3")
	assert.Contains(t, out, "Failed analyses: 1")
	assert.Contains(t, out, "Processing time: 1.50 seconds")
	assert.Contains(t, out, "Average confidence: 85.0%")
	assert.Contains(t, out, "Billing/Invoices: 3 (100.0%)")
	assert.Contains(t, out, "Negative: 2 (66.7%)")
	assert.Contains(t, out, "Positive: 1 (33.3%)")
	assert.NotContains(t, out, "Neutral")
	assert.Contains(t, out, "e4 [gateway_unavailable:timeout]: boom")
}

func TestSummaryWithoutSuccesses(t *testing.T) {
	stats := core.NewRunStats("run-2", time.Now())
	stats.TotalProcessed = 1
	stats.Failed = 1
	stats.Failures = []core.FailureRecord{{EmailID: "e1", Kind: core.ErrorKind(errors.New("x")), Message: "x"}}

	var buf bytes.Buffer
	NewConsoleReporter(&buf, zap.NewNop(), false).Summary(stats)
	assert.Contains(t, buf.String(), "Average confidence: 0.0%")
	assert.NotContains(t, buf.String(), "Average rounds")
}

func TestRecords(t *testing.T) {
	var buf bytes.Buffer
	r := NewConsoleReporter(&buf, zap.NewNop(), false)

	r.Records(nil)
	assert.Contains(t, buf.String(), "No analysis records found")

	buf.Reset()
	r.Records([]core.AnalysisRecord{
		{ID: 1, EmailID: "e1", EmailDate: "2024-07-01", Sentiment: core.SentimentNeutral,
			Classification: core.CategoryBillingInvoices, Confidence: 70, AttemptCount: 1,
			Tags: []string{"invoice"}, CreatedAt: time.Date(2024, 7, 1, 10, 0, 0, 0, time.UTC)},
		{ID: 2, EmailID: "e2", EmailDate: "2024-07-02", Sentiment: core.SentimentPositive,
			Classification: core.CategoryBillingInvoices, Confidence: 95, AttemptCount: 1,
			CreatedAt: time.Date(2024, 7, 2, 10, 0, 0, 0, time.UTC)},
	})

	out := buf.String()
	assert.Contains(t, out, "#1 e1 2024-07-01 Neutral / Billing/Invoices 70% rounds=1 created=2024-07-01T10:00:00Z tags=[invoice]")
	assert.Contains(t, out, "#2 e2 2024-07-02 Positive / Billing/Invoices 95%")
	assert.Contains(t, out, "2 records")
	assert.Contains(t, out, "Billing/Invoices: 2")
}

func TestStats(t *testing.T) {
	var buf bytes.Buffer
	r := NewConsoleReporter(&buf, zap.NewNop(), false)

	created := time.Date(2024, 7, 5, 12, 0, 0, 0, time.UTC)
	records := []core.AnalysisRecord{
		{EmailDate: "2024-07-01T08:00:00Z", Sentiment: core.SentimentNegative, Classification: core.CategoryBillingInvoices, Confidence: 90, Tags: []string{"invoice", "refund"}, CreatedAt: created},
		{EmailDate: "2024-07-02T08:00:00Z", Sentiment: core.SentimentNegative, Classification: core.CategoryBillingInvoices, Confidence: 70, Tags: []string{"Invoice"}, CreatedAt: created},
		{EmailDate: "2024-07-02T09:00:00Z", Sentiment: core.SentimentPositive, Classification: core.CategoryMaintenanceRepairs, Confidence: 95, Tags: []string{"repair"}, CreatedAt: created},
		{EmailDate: "2024-07-04T09:00:00Z", Sentiment: core.SentimentNeutral, Classification: core.CategoryMaintenanceRepairs, Confidence: 85, CreatedAt: created},
	}

	r.Stats(core.SummarizeRecords(records, 2))

	out := buf.String()
	assert.Contains(t, out, "RECORD STATISTICS")
	assert.Contains(t, out, "Total emails: 4")
	assert.Contains(t, out, "Negative: 50.0%")
	assert.Contains(t, out, "Positive: 25.0%")
	assert.Contains(t, out, "Average confidence: 85.0%")
	assert.Contains(t, out, "Top classification: Billing/Invoices")
	assert.Contains(t, out, "Emails per day: 1.00 (2024-07-01 to 2024-07-04)")
	assert.Contains(t, out, "Top 2 Tags:\n  invoice: 2\n  refund: 1\n")
	assert.NotContains(t, out, "repair: 1")
	assert.Contains(t, out, "  Maintenance/Repairs: 90.0%")
	assert.Contains(t, out, "  Billing/Invoices: 80.0%")
	assert.Regexp(t, `Classification\s+Positive\s+Neutral\s+Negative`, out)
	assert.Regexp(t, `Maintenance/Repairs\s+1\s+1\s+0`, out)
	assert.Regexp(t, `Billing/Invoices\s+0\s+0\s+2`, out)
}

func TestStatsEmpty(t *testing.T) {
	var buf bytes.Buffer
	r := NewConsoleReporter(&buf, zap.NewNop(), false)

	r.Stats(core.SummarizeRecords(nil, 5))
	assert.Equal(t, "No analysis records found\n", buf.String())
}
