package llm

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"time"
)

// ErrTimeout marks a call that ran past the configured per-request deadline.
var ErrTimeout = errors.New("llm request timed out")

// ErrRateLimit indicates the provider rejected the call for quota or rate
// reasons (HTTP 429 or a quota message). It is the only error class the
// retry decorator backs off on.
type ErrRateLimit struct {
	RetryAfter time.Duration
	Err        error
}

func (e *ErrRateLimit) Error() string {
	return fmt.Sprintf("rate limited (retry after %s): %v", e.RetryAfter, e.Err)
}

func (e *ErrRateLimit) Unwrap() error { return e.Err }

// ErrInvalidResponse indicates the model returned content that does not
// conform to the requested schema.
type ErrInvalidResponse struct {
	Content json.RawMessage
	Err     error
}

func (e *ErrInvalidResponse) Error() string {
	return fmt.Sprintf("invalid LLM response: %v", e.Err)
}

func (e *ErrInvalidResponse) Unwrap() error { return e.Err }

// ErrProviderUnavailable indicates the provider is down, unreachable or
// did not answer in time.
type ErrProviderUnavailable struct {
	Err error
}

func (e *ErrProviderUnavailable) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("LLM provider unavailable: %v", e.Err)
	}
	return "LLM provider unavailable"
}

func (e *ErrProviderUnavailable) Unwrap() error { return e.Err }

// ErrMaxTokensExceeded indicates the response was truncated because it
// hit the MaxTokens limit.
type ErrMaxTokensExceeded struct {
	Content json.RawMessage
}

func (e *ErrMaxTokensExceeded) Error() string {
	return "LLM response truncated: max tokens exceeded"
}

var quotaPattern = regexp.MustCompile(`(?i)\b429\b|quota|rate.?limit|resource.?exhausted`)

// IsQuotaMessage reports whether an error message looks like a quota or
// rate-limit rejection. Some SDKs only surface these as plain text.
func IsQuotaMessage(msg string) bool {
	return quotaPattern.MatchString(msg)
}

// classifyFallback maps an SDK error that carried no usable status code.
func classifyFallback(err error) error {
	if IsQuotaMessage(err.Error()) {
		return &ErrRateLimit{Err: err}
	}
	return &ErrProviderUnavailable{Err: err}
}
