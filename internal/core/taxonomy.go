package core

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
)

// Sentiment is one of the fixed sentiment labels
type Sentiment string

// Category is one of the fixed classification labels
type Category string

const (
	SentimentPositive Sentiment = "Positive"
	SentimentNeutral  Sentiment = "Neutral"
	SentimentNegative Sentiment = "Negative"
	SentimentUnknown  Sentiment = "Unknown"
)

const (
	CategoryProductStocking      Category = "Product/Stocking Requests"
	CategoryAdminCoordination    Category = "Admin/Coordination"
	CategoryFeedbackComplaints   Category = "Feedback/Complaints"
	CategoryMaintenanceRepairs   Category = "Maintenance/Repairs"
	CategoryBillingInvoices      Category = "Billing/Invoices"
	CategoryGeneralFollowUps     Category = "General Follow-ups"
	CategoryOperationalLogistics Category = "Operational Logistics"
	CategoryUnknown              Category = "Unknown"
)

// Sentiments lists the valid sentiment labels in display order
var Sentiments = []Sentiment{
	SentimentPositive,
	SentimentNeutral,
	SentimentNegative,
}

// Categories lists the valid category labels in display order
var Categories = []Category{
	CategoryProductStocking,
	CategoryAdminCoordination,
	CategoryFeedbackComplaints,
	CategoryMaintenanceRepairs,
	CategoryBillingInvoices,
	CategoryGeneralFollowUps,
	CategoryOperationalLogistics,
}

// fold case-folds s. Casers are stateful, so one is built per call.
func fold(s string) string {
	return cases.Fold().String(s)
}

func foldEqual(a, b string) bool {
	return fold(strings.TrimSpace(a)) == fold(strings.TrimSpace(b))
}

// squash folds case and drops everything that is not a letter or digit,
// so "billing / invoices" and "Billing-Invoices" compare equal
func squash(s string) string {
	var b strings.Builder
	for _, r := range fold(s) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Valid reports whether s is one of the fixed sentiment labels
func (s Sentiment) Valid() bool {
	for _, v := range Sentiments {
		if s == v {
			return true
		}
	}
	return false
}

// Valid reports whether c is one of the fixed category labels
func (c Category) Valid() bool {
	for _, v := range Categories {
		if c == v {
			return true
		}
	}
	return false
}

// MatchSentiment maps a model-supplied label onto the taxonomy.
// Unrecognized labels yield SentimentUnknown and false.
func MatchSentiment(label string) (Sentiment, bool) {
	for _, s := range Sentiments {
		if foldEqual(label, string(s)) {
			return s, true
		}
	}
	return SentimentUnknown, false
}

// MatchCategory maps a model-supplied label onto the taxonomy, tolerating
// differences in case, spacing and punctuation.
// Unrecognized labels yield CategoryUnknown and false.
func MatchCategory(label string) (Category, bool) {
	key := squash(label)
	if key == "" {
		return CategoryUnknown, false
	}
	for _, c := range Categories {
		if squash(string(c)) == key {
			return c, true
		}
	}
	return CategoryUnknown, false
}

// NormalizeSentiment resolves a free-form label to a valid sentiment using
// keyword hints, defaulting to Neutral
func NormalizeSentiment(label string) Sentiment {
	if s, ok := MatchSentiment(label); ok {
		return s
	}
	lower := fold(label)
	switch {
	case strings.Contains(lower, "positive"):
		return SentimentPositive
	case strings.Contains(lower, "negative"):
		return SentimentNegative
	default:
		return SentimentNeutral
	}
}

// NormalizeCategory resolves a free-form label to a valid category using
// keyword hints, defaulting to General Follow-ups
func NormalizeCategory(label string) Category {
	if c, ok := MatchCategory(label); ok {
		return c
	}
	lower := fold(label)
	switch {
	case containsAny(lower, "product", "stock"):
		return CategoryProductStocking
	case containsAny(lower, "admin", "coordination"):
		return CategoryAdminCoordination
	case containsAny(lower, "feedback", "complaint"):
		return CategoryFeedbackComplaints
	case containsAny(lower, "maintenance", "repair"):
		return CategoryMaintenanceRepairs
	case containsAny(lower, "billing", "invoice"):
		return CategoryBillingInvoices
	case containsAny(lower, "logistics", "operational"):
		return CategoryOperationalLogistics
	default:
		return CategoryGeneralFollowUps
	}
}

func containsAny(s string, words ...string) bool {
	for _, w := range words {
		if strings.Contains(s, w) {
			return true
		}
	}
	return false
}
