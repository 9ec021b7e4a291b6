package query

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"
)

const maxQueryLength = 10000

// Validator rejects malformed queries before any state is created.
type Validator interface {
	Validate(text string, qctx Context) error
}

// maliciousPatterns reject obvious injection payloads before query
// text reaches downstream collaborators.
var maliciousPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)<\s*script\b`),
	regexp.MustCompile(`(?i)javascript\s*:`),
	regexp.MustCompile(`(?i);\s*(drop|delete|truncate)\s+table\b`),
	regexp.MustCompile(`\x00`),
}

type defaultValidator struct{}

// NewValidator returns the standard validator: non-empty after trim,
// at most 10,000 characters, no malicious patterns, threshold in [0,1].
func NewValidator() Validator {
	return defaultValidator{}
}

func (defaultValidator) Validate(text string, qctx Context) error {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return fmt.Errorf("%w: query text is empty", ErrValidation)
	}
	if utf8.RuneCountInString(text) > maxQueryLength {
		return fmt.Errorf("%w: query text exceeds %d characters", ErrValidation, maxQueryLength)
	}
	for _, p := range maliciousPatterns {
		if p.MatchString(text) {
			return fmt.Errorf("%w: query text contains a disallowed pattern", ErrValidation)
		}
	}
	if qctx.ConfidenceThreshold < 0 || qctx.ConfidenceThreshold > 1 {
		return fmt.Errorf("%w: confidence threshold must be in [0,1], got %v", ErrValidation, qctx.ConfidenceThreshold)
	}
	if qctx.MaxTokens < 0 {
		return fmt.Errorf("%w: max tokens cannot be negative", ErrValidation)
	}
	return nil
}
