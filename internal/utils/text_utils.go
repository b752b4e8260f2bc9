package utils

import (
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"
	"golang.org/x/text/unicode/norm"
)

// Ellipsis marks display-truncated text
const Ellipsis = "..."

// TextProcessor provides utilities for normalizing message text
type TextProcessor struct {
	logger       *zap.Logger
	displayLimit int
}

// NewTextProcessor creates a new TextProcessor that cuts display text
// to displayLimit characters
func NewTextProcessor(logger *zap.Logger, displayLimit int) *TextProcessor {
	return &TextProcessor{
		logger:       logger,
		displayLimit: displayLimit,
	}
}

// TruncateRunes cuts text to at most limit characters. A limit of zero or
// less disables truncation.
func TruncateRunes(text string, limit int) string {
	if limit <= 0 || utf8.RuneCountInString(text) <= limit {
		return text
	}

	n := 0
	for i := range text {
		if n == limit {
			return text[:i]
		}
		n++
	}
	return text
}

// CollapseWhitespace replaces every run of whitespace with one space and
// trims the ends
func CollapseWhitespace(text string) string {
	return strings.Join(strings.Fields(text), " ")
}

// SanitizeUTF8 replaces invalid UTF-8 sequences with the replacement character
func (tp *TextProcessor) SanitizeUTF8(text string) string {
	if utf8.ValidString(text) {
		return text
	}

	sanitized := strings.ToValidUTF8(text, "\uFFFD")
	tp.logger.Debug("Text sanitized",
		zap.Int("original_size", len(text)),
		zap.Int("sanitized_size", len(sanitized)))

	return sanitized
}

// Normalize makes text safe for display: valid UTF-8, NFC form, single spaces
func (tp *TextProcessor) Normalize(text string) string {
	return CollapseWhitespace(norm.NFC.String(tp.SanitizeUTF8(text)))
}

// TruncateDisplay cuts text to the display limit and appends an ellipsis
// when anything was removed
func (tp *TextProcessor) TruncateDisplay(text string) string {
	truncated := TruncateRunes(text, tp.displayLimit)
	if len(truncated) == len(text) {
		return text
	}
	return truncated + Ellipsis
}

// ProcessBody normalizes and display-truncates a message body in one operation
func (tp *TextProcessor) ProcessBody(text string) string {
	return tp.TruncateDisplay(tp.Normalize(text))
}
