package utils

import (
	"html"
	"regexp"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"
	"golang.org/x/text/unicode/norm"
)

var (
	htmlTagPattern    = regexp.MustCompile(`<[^>]+>`)
	htmlDropPattern   = regexp.MustCompile(`(?is)<(script|style|head)[^>]*>.*?</(script|style|head)>`)
	urlPattern        = regexp.MustCompile(`https?://\S+`)
	signaturePattern  = regexp.MustCompile(`(?m)^--+[ \t]*$[\s\S]*`)
	whitespacePattern = regexp.MustCompile(`\s+`)
)

// TruncationMarker is appended to text cut at the size limit
const TruncationMarker = " [... content truncated ...]"

// TextProcessor turns raw email subject and body into prompt-ready text
type TextProcessor struct {
	logger      *zap.Logger
	maxBodySize int
}

// NewTextProcessor creates a new TextProcessor. A maxBodySize of 0 disables truncation.
func NewTextProcessor(logger *zap.Logger, maxBodySize int) *TextProcessor {
	return &TextProcessor{
		logger:      logger,
		maxBodySize: maxBodySize,
	}
}

// Preprocess combines subject and body, strips markup, signatures and links,
// and bounds the result to the configured size
func (tp *TextProcessor) Preprocess(subject, body string) string {
	text := body
	if strings.TrimSpace(subject) != "" {
		text = subject + "\n\n" + body
	}

	text = tp.SanitizeUTF8(text)
	text = norm.NFKC.String(text)
	if LooksLikeHTML(text) {
		text = StripHTML(text)
	}
	text = signaturePattern.ReplaceAllString(text, "")
	text = urlPattern.ReplaceAllString(text, "")
	text = CollapseWhitespace(text)

	return tp.TruncateText(text, tp.maxBodySize)
}

// TruncateText safely truncates text to the specified maximum size
// and ensures the result is valid UTF-8
func (tp *TextProcessor) TruncateText(text string, maxSize int) string {
	if maxSize <= 0 || len(text) <= maxSize {
		return text
	}

	truncated := text[:maxSize]
	for !utf8.ValidString(truncated) && len(truncated) > 0 {
		truncated = truncated[:len(truncated)-1]
	}

	tp.logger.Debug("Text truncated",
		zap.Int("original_size", len(text)),
		zap.Int("truncated_size", len(truncated)),
		zap.Int("max_size", maxSize))

	return truncated + TruncationMarker
}

// SanitizeUTF8 drops invalid UTF-8 byte sequences
func (tp *TextProcessor) SanitizeUTF8(text string) string {
	if utf8.ValidString(text) {
		return text
	}

	sanitized := strings.ToValidUTF8(text, "")
	tp.logger.Debug("Text sanitized",
		zap.Int("original_size", len(text)),
		zap.Int("sanitized_size", len(sanitized)))

	return sanitized
}

// LooksLikeHTML reports whether text appears to be an HTML document or fragment
func LooksLikeHTML(text string) bool {
	lower := strings.ToLower(text)
	for _, marker := range []string{"<html", "<body", "<div", "<p>", "<p ", "<br", "<table", "<span"} {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}

// StripHTML removes tags and decodes entities, leaving plain text
func StripHTML(text string) string {
	text = htmlDropPattern.ReplaceAllString(text, " ")
	text = htmlTagPattern.ReplaceAllString(text, " ")
	return CollapseWhitespace(html.UnescapeString(text))
}

// CollapseWhitespace folds every whitespace run into one space and trims the ends
func CollapseWhitespace(text string) string {
	return strings.TrimSpace(whitespacePattern.ReplaceAllString(text, " "))
}
