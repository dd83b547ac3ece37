package utils

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func TestPreprocessCombinesSubjectAndBody(t *testing.T) {
	tp := NewTextProcessor(zap.NewNop(), 0)

	got := tp.Preprocess("Pepsi machine", "Is there an update?\n\n  It is still not cooling.")
	assert.Equal(t, "Pepsi machine Is there an update? It is still not cooling.", got)

	got = tp.Preprocess("   ", "Body only")
	assert.Equal(t, "Body only", got)
}

func TestPreprocessStripsSignatureAndLinks(t *testing.T) {
	tp := NewTextProcessor(zap.NewNop(), 0)

	body := "See https://example.com/ticket/42 for the follow-up request.\n\n-- \nJane Doe\nFacilities Manager\nhttps://example.com"
	got := tp.Preprocess("", body)
	assert.Equal(t, "See for the follow-up request.", got)
}

func TestPreprocessStripsHTML(t *testing.T) {
	tp := NewTextProcessor(zap.NewNop(), 0)

	body := `<html><head><style>p { color: red; }</style></head><body><p>Do you carry <b>cold brew</b>?</p><br/>Thanks &amp; regards</body></html>`
	got := tp.Preprocess("", body)
	assert.Equal(t, "Do you carry cold brew ? Thanks & regards", got)
}

func TestPreprocessNormalizesCompatibilityCharacters(t *testing.T) {
	tp := NewTextProcessor(zap.NewNop(), 0)

	got := tp.Preprocess("", "ﬁx the machine on the 7ᵗʰ floor")
	assert.Equal(t, "fix the machine on the 7th floor", got)
}

func TestPreprocessTruncates(t *testing.T) {
	tp := NewTextProcessor(zap.NewNop(), 10)

	got := tp.Preprocess("", strings.Repeat("a", 50))
	assert.Equal(t, strings.Repeat("a", 10)+TruncationMarker, got)
}

func TestTruncateTextKeepsValidUTF8(t *testing.T) {
	tp := NewTextProcessor(zap.NewNop(), 0)

	got := tp.TruncateText("héllo", 2)
	assert.True(t, utf8.ValidString(got))
	assert.Equal(t, "h"+TruncationMarker, got)

	assert.Equal(t, "short", tp.TruncateText("short", 10))
	assert.Equal(t, "unbounded", tp.TruncateText("unbounded", 0))
}

func TestSanitizeUTF8(t *testing.T) {
	tp := NewTextProcessor(zap.NewNop(), 0)

	assert.Equal(t, "valid", tp.SanitizeUTF8("valid"))
	assert.Equal(t, "ab", tp.SanitizeUTF8("a\xffb"))
}

func TestLooksLikeHTML(t *testing.T) {
	assert.True(t, LooksLikeHTML("<DIV>hello</DIV>"))
	assert.True(t, LooksLikeHTML("line one<br>line two"))
	assert.False(t, LooksLikeHTML("price < 5 and > 2"))
}
