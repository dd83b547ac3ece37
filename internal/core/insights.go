package core

import (
	"sort"
	"strings"
	"time"
)

// DefaultTopTags is the number of tags kept by SummarizeRecords when none is given
const DefaultTopTags = 20

var emailDateLayouts = []string{
	time.RFC3339,
	time.RFC1123Z,
	time.RFC1123,
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// TagCount is how often a tag occurs across records
type TagCount struct {
	Tag   string
	Count int
}

// RecordInsights aggregates stored analysis records for reporting
type RecordInsights struct {
	Total             int
	AverageConfidence float64
	TopClassification Category
	EmailsPerDay      float64
	FirstDay          time.Time
	LastDay           time.Time

	// Percentages of Total
	SentimentShare map[Sentiment]float64
	// Mean confidence of the records in each classification
	ConfidenceByCategory map[Category]float64
	// Record counts by classification, then sentiment
	Matrix map[Category]map[Sentiment]int

	// Labels seen, in display order
	Sentiments []Sentiment
	Categories []Category

	TopTags []TagCount
}

// SummarizeRecords computes totals, distributions, daily volume and the most
// frequent tags. Tags are counted case-insensitively and reported with the
// first spelling seen. The day of a record is its email date, or its
// creation time when the email date cannot be parsed.
func SummarizeRecords(records []AnalysisRecord, topTags int) *RecordInsights {
	if topTags <= 0 {
		topTags = DefaultTopTags
	}

	insights := &RecordInsights{
		Total:                len(records),
		SentimentShare:       make(map[Sentiment]float64),
		ConfidenceByCategory: make(map[Category]float64),
		Matrix:               make(map[Category]map[Sentiment]int),
	}
	if len(records) == 0 {
		return insights
	}

	var confidenceSum float64
	sentimentCounts := make(map[Sentiment]int)
	categoryCounts := make(map[Category]int)
	categoryConfidence := make(map[Category]float64)
	tagCounts := make(map[string]*TagCount)

	for _, r := range records {
		confidenceSum += r.Confidence
		sentimentCounts[r.Sentiment]++
		categoryCounts[r.Classification]++
		categoryConfidence[r.Classification] += r.Confidence

		row, ok := insights.Matrix[r.Classification]
		if !ok {
			row = make(map[Sentiment]int)
			insights.Matrix[r.Classification] = row
		}
		row[r.Sentiment]++

		day := recordDay(r)
		if insights.FirstDay.IsZero() || day.Before(insights.FirstDay) {
			insights.FirstDay = day
		}
		if day.After(insights.LastDay) {
			insights.LastDay = day
		}

		for _, tag := range r.Tags {
			tag = strings.TrimSpace(tag)
			if tag == "" {
				continue
			}
			key := fold(tag)
			if tc, ok := tagCounts[key]; ok {
				tc.Count++
			} else {
				tagCounts[key] = &TagCount{Tag: tag, Count: 1}
			}
		}
	}

	total := float64(len(records))
	insights.AverageConfidence = confidenceSum / total
	for sentiment, count := range sentimentCounts {
		insights.SentimentShare[sentiment] = float64(count) / total * 100
	}
	for category, count := range categoryCounts {
		insights.ConfidenceByCategory[category] = categoryConfidence[category] / float64(count)
	}

	days := int(insights.LastDay.Sub(insights.FirstDay).Hours()/24) + 1
	insights.EmailsPerDay = total / float64(days)

	insights.TopClassification = topCategory(categoryCounts)
	insights.Sentiments = presentSentiments(sentimentCounts)
	insights.Categories = presentCategories(categoryCounts)
	insights.TopTags = rankTags(tagCounts, topTags)

	return insights
}

func recordDay(r AnalysisRecord) time.Time {
	date := strings.TrimSpace(r.EmailDate)
	for _, layout := range emailDateLayouts {
		if t, err := time.Parse(layout, date); err == nil {
			return truncateDay(t)
		}
	}
	return truncateDay(r.CreatedAt)
}

func truncateDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// topCategory returns the most frequent classification, breaking ties by name
func topCategory(counts map[Category]int) Category {
	var top Category
	best := 0
	for category, count := range counts {
		if count > best || (count == best && category < top) {
			top = category
			best = count
		}
	}
	return top
}

func presentSentiments(counts map[Sentiment]int) []Sentiment {
	var out []Sentiment
	for _, s := range append(append([]Sentiment(nil), Sentiments...), SentimentUnknown) {
		if counts[s] > 0 {
			out = append(out, s)
		}
	}
	return out
}

func presentCategories(counts map[Category]int) []Category {
	var out []Category
	for _, c := range append(append([]Category(nil), Categories...), CategoryUnknown) {
		if counts[c] > 0 {
			out = append(out, c)
		}
	}
	return out
}

func rankTags(counts map[string]*TagCount, limit int) []TagCount {
	ranked := make([]TagCount, 0, len(counts))
	for _, tc := range counts {
		ranked = append(ranked, *tc)
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].Count != ranked[j].Count {
			return ranked[i].Count > ranked[j].Count
		}
		return fold(ranked[i].Tag) < fold(ranked[j].Tag)
	})
	if len(ranked) > limit {
		ranked = ranked[:limit]
	}
	return ranked
}
