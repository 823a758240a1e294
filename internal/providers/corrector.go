// Package providers wraps the external text-correction services used for
// AI-assisted revisions. Each Corrector is a plain (text, instructions) ->
// text transform with no availability guarantee.
package providers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"
)

var (
	// ErrEmptyResponse is returned when a service answers without text.
	ErrEmptyResponse = errors.New("providers: empty response")

	// ErrTruncated is returned when a service stopped at its output limit,
	// so the returned text is only part of the correction.
	ErrTruncated = errors.New("providers: response truncated")

	// ErrUnknownProvider is returned by New for an unsupported name.
	ErrUnknownProvider = errors.New("providers: unknown provider")
)

// Corrector rewrites text according to instructions.
type Corrector interface {
	// Name returns the provider identifier (e.g., "openai").
	Name() string

	// Correct returns the corrected text. It honors ctx cancellation.
	Correct(ctx context.Context, text, instructions string) (string, error)
}

// DefaultInstructions is the system prompt used when a request has none.
const DefaultInstructions = `You are correcting the text of a public-domain book that was cleaned by machine.
Fix OCR errors, broken words and obvious typos. Do not modernize spelling, grammar or archaic forms.
Do not add, remove or reorder sentences. Keep paragraph breaks exactly as given.
Return only the corrected text with no commentary.`

// APIError is a non-2xx answer from a provider.
type APIError struct {
	Provider   string
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%s error (status %d)", e.Provider, e.StatusCode)
	}
	return fmt.Sprintf("%s error (status %d): %s", e.Provider, e.StatusCode, e.Message)
}

// RateLimitError is a 429 answer. RetryAfter is zero when the provider did
// not say how long to wait.
type RateLimitError struct {
	Provider   string
	RetryAfter time.Duration
	StatusCode int
}

func (e *RateLimitError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("%s rate limited (retry after %s)", e.Provider, e.RetryAfter)
	}
	return fmt.Sprintf("%s rate limited", e.Provider)
}

// IsRateLimitError returns the RateLimitError in err's chain, if any.
func IsRateLimitError(err error) (*RateLimitError, bool) {
	var rle *RateLimitError
	if errors.As(err, &rle) {
		return rle, true
	}
	return nil, false
}

// Retryable reports whether a failed call may succeed if repeated.
// Rate limits, server errors and transport failures are retryable; client
// errors, truncation and cancellation are not.
func Retryable(err error) bool {
	switch {
	case err == nil:
		return false
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return false
	case errors.Is(err, ErrTruncated), errors.Is(err, ErrUnknownProvider):
		return false
	}
	if _, ok := IsRateLimitError(err); ok {
		return true
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode >= http.StatusInternalServerError
	}
	return true
}

// statusError converts an SDK error status into APIError or RateLimitError.
func statusError(provider string, status int, message string, header http.Header) error {
	if status == http.StatusTooManyRequests {
		var retryAfter time.Duration
		if header != nil {
			retryAfter = parseRetryAfter(header.Get("Retry-After"))
		}
		return &RateLimitError{Provider: provider, RetryAfter: retryAfter, StatusCode: status}
	}
	return &APIError{Provider: provider, StatusCode: status, Message: message}
}

func parseRetryAfter(v string) time.Duration {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}

func instructionsOrDefault(instructions string) string {
	if strings.TrimSpace(instructions) == "" {
		return DefaultInstructions
	}
	return instructions
}
