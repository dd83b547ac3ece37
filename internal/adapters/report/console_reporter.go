package report

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/mikey/llm-email-analyzer/internal/core"
	"go.uber.org/zap"
)

const rule = "============================================================"

// ConsoleReporter prints batch progress, run summaries and stored records
type ConsoleReporter struct {
	out     io.Writer
	logger  *zap.Logger
	verbose bool
}

// NewConsoleReporter creates a reporter writing to out, or stdout when out is nil
func NewConsoleReporter(out io.Writer, logger *zap.Logger, verbose bool) *ConsoleReporter {
	if out == nil {
		out = os.Stdout
	}
	return &ConsoleReporter{
		out:     out,
		logger:  logger,
		verbose: verbose,
	}
}

// Progress prints one line per handled email
func (r *ConsoleReporter) Progress(p core.Progress) {
	switch {
	case p.Err != nil:
		fmt.Fprintf(r.out, "[%d/%d] %s failed (%s): %v\n", p.Processed, p.Total, p.EmailID, core.ErrorKind(p.Err), p.Err)
	case p.Record != nil:
		fmt.Fprintf(r.out, "[%d/%d] %s %s / %s (%.0f%%, %d rounds)\n",
			p.Processed, p.Total, p.EmailID,
			p.Record.Sentiment, p.Record.Classification,
			p.Record.Confidence, p.Record.AttemptCount)
		if r.verbose && len(p.Record.Tags) > 0 {
			fmt.Fprintf(r.out, "        tags: %s\n", strings.Join(p.Record.Tags, ", "))
		}
	default:
		fmt.Fprintf(r.out, "[%d/%d] %s\n", p.Processed, p.Total, p.EmailID)
	}
}

// Summary prints totals and the sentiment and category distributions
func (r *ConsoleReporter) Summary(stats *core.RunStats) {
	if stats == nil {
		return
	}

	fmt.Fprintf(r.out, "\n%s\nANALYSIS SUMMARY\n%s\n", rule, rule)
	fmt.Fprintf(r.out, "Run ID: %s\n", stats.RunID)
	fmt.Fprintf(r.out, "Total emails processed: %d\n", stats.TotalProcessed)
	fmt.Fprintf(r.out, "Successful analyses: %d\n", stats.Succeeded)
	fmt.Fprintf(r.out, "Failed analyses: %d\n", stats.Failed)
	fmt.Fprintf(r.out, "Processing time: %.2f seconds\n", stats.Duration().Seconds())
	fmt.Fprintf(r.out, "Average confidence: %.1f%%\n", stats.AverageConfidence())
	if stats.Succeeded > 0 {
		fmt.Fprintf(r.out, "Average rounds: %.2f\n", float64(stats.TotalRounds)/float64(stats.Succeeded))
	}

	fmt.Fprintf(r.out, "\nClassification Distribution:\n")
	for _, category := range core.Categories {
		r.printShare(string(category), stats.CategoryDistribution[category], stats.Succeeded)
	}

	fmt.Fprintf(r.out, "\nSentiment Distribution:\n")
	for _, sentiment := range core.Sentiments {
		r.printShare(string(sentiment), stats.SentimentDistribution[sentiment], stats.Succeeded)
	}

	if len(stats.Failures) > 0 {
		fmt.Fprintf(r.out, "\nFailures:\n")
		for _, failure := range stats.Failures {
			fmt.Fprintf(r.out, "  %s [%s]: %s\n", failure.EmailID, failure.Kind, failure.Message)
		}
	}
}

func (r *ConsoleReporter) printShare(label string, count, total int) {
	if count == 0 {
		return
	}
	fmt.Fprintf(r.out, "  %s: %d (%.1f%%)\n", label, count, float64(count)/float64(total)*100)
}

// Records prints stored records, one per line, followed by a per-category count
func (r *ConsoleReporter) Records(records []core.AnalysisRecord) {
	if len(records) == 0 {
		fmt.Fprintln(r.out, "No analysis records found")
		return
	}

	counts := make(map[core.Category]int)
	for _, record := range records {
		counts[record.Classification]++
		fmt.Fprintf(r.out, "#%d %s %s %s / %s %.0f%% rounds=%d created=%s",
			record.ID, record.EmailID, record.EmailDate,
			record.Sentiment, record.Classification, record.Confidence,
			record.AttemptCount, record.CreatedAt.UTC().Format("2006-01-02T15:04:05Z"))
		if len(record.Tags) > 0 {
			fmt.Fprintf(r.out, " tags=[%s]", strings.Join(record.Tags, ", "))
		}
		fmt.Fprintln(r.out)
	}

	categories := make([]string, 0, len(counts))
	for category := range counts {
		categories = append(categories, string(category))
	}
	sort.Strings(categories)

	fmt.Fprintf(r.out, "\n%d records\n", len(records))
	for _, category := range categories {
		fmt.Fprintf(r.out, "  %s: %d\n", category, counts[core.Category(category)])
	}

	r.logger.Debug("Listed analysis records", zap.Int("count", len(records)))
}

// Stats prints headline figures, top tags, confidence per classification and
// a classification by sentiment count matrix
func (r *ConsoleReporter) Stats(insights *core.RecordInsights) {
	if insights == nil || insights.Total == 0 {
		fmt.Fprintln(r.out, "No analysis records found")
		return
	}

	fmt.Fprintf(r.out, "%s\nRECORD STATISTICS\n%s\n", rule, rule)
	fmt.Fprintf(r.out, "Total emails: %d\n", insights.Total)
	for _, sentiment := range insights.Sentiments {
		fmt.Fprintf(r.out, "%s: %.1f%%\n", sentiment, insights.SentimentShare[sentiment])
	}
	fmt.Fprintf(r.out, "Average confidence: %.1f%%\n", insights.AverageConfidence)
	fmt.Fprintf(r.out, "Top classification: %s\n", insights.TopClassification)
	fmt.Fprintf(r.out, "Emails per day: %.2f (%s to %s)\n",
		insights.EmailsPerDay,
		insights.FirstDay.Format("2006-01-02"),
		insights.LastDay.Format("2006-01-02"))

	if len(insights.TopTags) > 0 {
		fmt.Fprintf(r.out, "\nTop %d Tags:\n", len(insights.TopTags))
		for _, tc := range insights.TopTags {
			fmt.Fprintf(r.out, "  %s: %d\n", tc.Tag, tc.Count)
		}
	}

	fmt.Fprintf(r.out, "\nConfidence by Classification:\n")
	for _, category := range insights.Categories {
		fmt.Fprintf(r.out, "  %s: %.1f%%\n", category, insights.ConfidenceByCategory[category])
	}

	fmt.Fprintln(r.out)
	tw := tabwriter.NewWriter(r.out, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "Classification")
	for _, sentiment := range insights.Sentiments {
		fmt.Fprintf(tw, "\t%s", sentiment)
	}
	fmt.Fprintln(tw)
	for _, category := range insights.Categories {
		fmt.Fprintf(tw, "%s", category)
		for _, sentiment := range insights.Sentiments {
			fmt.Fprintf(tw, "\t%d", insights.Matrix[category][sentiment])
		}
		fmt.Fprintln(tw)
	}
	if err := tw.Flush(); err != nil {
		r.logger.Error("Failed to write statistics", zap.Error(err))
	}

	r.logger.Debug("Reported record statistics", zap.Int("count", insights.Total))
}
