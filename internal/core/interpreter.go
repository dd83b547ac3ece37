package core

import (
	"encoding/json"
	"math"
	"regexp"
	"strconv"
	"strings"
)

var (
	thinkPattern = regexp.MustCompile(`(?is)<think>.*?</think>`)
	fencePattern = regexp.MustCompile("(?s)```(?:json|JSON)?\\s*\\n(.*?)\\n?```")
)

// analysisPayload is the structured block the model is asked to emit
type analysisPayload struct {
	Sentiment      *string         `json:"sentiment"`
	Classification *string         `json:"classification"`
	Category       *string         `json:"category"`
	Confidence     json.RawMessage `json:"confidence"`
	Tags           json.RawMessage `json:"tags"`
}

func (p analysisPayload) usable() bool {
	return p.Sentiment != nil || p.Classification != nil || p.Category != nil || len(p.Confidence) > 0
}

// ParseResponse interprets raw generated text as an AnalysisAttempt.
// It returns ErrMalformedResponse when no structured block can be found.
// Labels outside the taxonomy are coerced to Unknown and force the
// attempt's confidence to 0.
func ParseResponse(raw string) (AnalysisAttempt, error) {
	payload, ok := extractPayload(raw)
	if !ok {
		return AnalysisAttempt{RawModelText: raw, Malformed: true}, ErrMalformedResponse
	}

	attempt := AnalysisAttempt{RawModelText: raw}

	if payload.Sentiment != nil {
		attempt.RawSentiment = *payload.Sentiment
	}
	sentiment, sentimentOK := MatchSentiment(attempt.RawSentiment)
	attempt.Sentiment = sentiment

	switch {
	case payload.Classification != nil:
		attempt.RawCategory = *payload.Classification
	case payload.Category != nil:
		attempt.RawCategory = *payload.Category
	}
	category, categoryOK := MatchCategory(attempt.RawCategory)
	attempt.Category = category

	attempt.ReportedConfidence = parseConfidence(payload.Confidence)
	attempt.Confidence = attempt.ReportedConfidence
	attempt.Tags = parseTags(payload.Tags)

	if !sentimentOK || !categoryOK {
		attempt.Coerced = true
		attempt.Confidence = 0
	}

	return attempt, nil
}

// extractPayload finds the first well-formed analysis object in the text
func extractPayload(raw string) (analysisPayload, bool) {
	text := strings.TrimSpace(thinkPattern.ReplaceAllString(raw, ""))
	if text == "" {
		return analysisPayload{}, false
	}

	candidates := []string{text}
	for _, m := range fencePattern.FindAllStringSubmatch(text, -1) {
		candidates = append(candidates, strings.TrimSpace(m[1]))
	}
	candidates = append(candidates, balancedObjects(text)...)

	for _, c := range candidates {
		var p analysisPayload
		if err := json.Unmarshal([]byte(c), &p); err != nil {
			continue
		}
		if p.usable() {
			return p, true
		}
	}
	return analysisPayload{}, false
}

// balancedObjects returns every balanced {...} span in s, ordered by start.
// Each opening brace is tried as a start, so nested objects are included and
// a stray brace or quote in surrounding prose cannot hide a later object.
func balancedObjects(s string) []string {
	var objects []string
	for i := 0; i < len(s); i++ {
		if s[i] != '{' {
			continue
		}
		if end, ok := matchingBrace(s, i); ok {
			objects = append(objects, s[i:end+1])
		}
	}
	return objects
}

// matchingBrace returns the index of the brace closing the one at start,
// skipping braces inside JSON strings
func matchingBrace(s string, start int) (int, bool) {
	depth := 0
	inString := false
	escaped := false

	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return i, true
			}
		}
	}
	return 0, false
}

// parseConfidence accepts a JSON number or numeric string (optionally with %).
// Anything non-numeric or outside [0,100] is treated as 0.
func parseConfidence(raw json.RawMessage) float64 {
	if len(raw) == 0 {
		return 0
	}

	var value float64
	var number float64
	var text string
	switch {
	case json.Unmarshal(raw, &number) == nil:
		value = number
	case json.Unmarshal(raw, &text) == nil:
		parsed, err := strconv.ParseFloat(strings.TrimSuffix(strings.TrimSpace(text), "%"), 64)
		if err != nil {
			return 0
		}
		value = parsed
	default:
		return 0
	}

	if math.IsNaN(value) || value < 0 || value > 100 {
		return 0
	}
	return value
}

func parseTags(raw json.RawMessage) []string {
	tags := []string{}
	if len(raw) == 0 {
		return tags
	}
	var items []any
	if err := json.Unmarshal(raw, &items); err != nil {
		return tags
	}
	for _, item := range items {
		s, ok := item.(string)
		if !ok {
			continue
		}
		if s = strings.TrimSpace(s); s != "" {
			tags = append(tags, s)
		}
	}
	return tags
}

var (
	sentimentHints = []struct {
		sentiment Sentiment
		words     []string
	}{
		{SentimentPositive, []string{"positive", "satisfaction", "gratitude", "thank", "great", "good"}},
		{SentimentNegative, []string{"negative", "dissatisfaction", "complaint", "issue", "problem", "broken", "urgent"}},
	}
	categoryHints = []struct {
		category Category
		words    []string
	}{
		{CategoryProductStocking, []string{"product", "stock", "carry", "available", "inquiry"}},
		{CategoryAdminCoordination, []string{"admin", "coordination", "schedule", "meeting", "access"}},
		{CategoryFeedbackComplaints, []string{"feedback", "complaint", "suggestion", "opinion"}},
		{CategoryMaintenanceRepairs, []string{"maintenance", "repair", "broken", "fix", "technician"}},
		{CategoryBillingInvoices, []string{"billing", "invoice", "charge", "payment", "bill"}},
		{CategoryOperationalLogistics, []string{"logistics", "delivery", "pickup", "installation", "removal"}},
	}
	tagHints = []string{"machine", "coffee", "delivery", "repair", "billing", "product", "schedule", "urgent"}
)

const maxFallbackTags = 5

// FallbackAttempt labels an unstructured response from keyword hints.
// The result always carries confidence 0 so the engine retries it.
func FallbackAttempt(raw string) AnalysisAttempt {
	lower := fold(raw)

	attempt := AnalysisAttempt{
		Sentiment:    SentimentNeutral,
		Category:     CategoryGeneralFollowUps,
		Tags:         []string{},
		RawModelText: raw,
		Malformed:    true,
	}
	for _, h := range sentimentHints {
		if containsAny(lower, h.words...) {
			attempt.Sentiment = h.sentiment
			break
		}
	}
	for _, h := range categoryHints {
		if containsAny(lower, h.words...) {
			attempt.Category = h.category
			break
		}
	}
	for _, t := range tagHints {
		if len(attempt.Tags) == maxFallbackTags {
			break
		}
		if strings.Contains(lower, t) {
			attempt.Tags = append(attempt.Tags, t)
		}
	}
	return attempt
}
