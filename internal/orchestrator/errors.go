package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/abhisek/qforge/internal/llm"
	"github.com/abhisek/qforge/internal/questiongen"
)

// ErrPolicyViolation is matched by every *PolicyViolationError.
var ErrPolicyViolation = errors.New("policy violation")

// PolicyViolationError rejects a request the course policy does not allow.
// It is raised before any retrieval or generation and is never retried.
type PolicyViolationError struct {
	Course       string
	Subject      string
	QuestionType string
	Allowed      []string
	Reason       string
}

func (e *PolicyViolationError) Error() string {
	if len(e.Allowed) == 0 {
		return fmt.Sprintf("policy violation for course %s: %s", e.Course, e.Reason)
	}
	return fmt.Sprintf("policy violation for course %s: %s (allowed: %s)", e.Course, e.Reason, strings.Join(e.Allowed, ", "))
}

func (e *PolicyViolationError) Is(target error) bool { return target == ErrPolicyViolation }

// AttemptsExhaustedError is returned when the final allowed attempt fails
// with an error rather than a validation failure.
type AttemptsExhaustedError struct {
	Attempts int
	Last     error
}

func (e *AttemptsExhaustedError) Error() string {
	return fmt.Sprintf("generation failed after %d attempt(s): %v", e.Attempts, e.Last)
}

func (e *AttemptsExhaustedError) Unwrap() error { return e.Last }

// ErrorKind names the class of err for metrics and CLI output.
func ErrorKind(err error) string {
	var (
		pv  *PolicyViolationError
		re  *questiongen.RequestError
		pe  *questiongen.ParseError
		rl  *llm.ErrRateLimit
		pu  *llm.ErrProviderUnavailable
		ir  *llm.ErrInvalidResponse
		mt  *llm.ErrMaxTokensExceeded
		gen *questiongen.GenerationError
	)
	switch {
	case errors.As(err, &pv):
		return "PolicyViolation"
	case errors.As(err, &re):
		return "InvalidRequest"
	case errors.As(err, &pe):
		return "ParseError"
	case errors.Is(err, llm.ErrTimeout):
		return "Timeout"
	case errors.As(err, &rl):
		return "RateLimit"
	case errors.As(err, &pu):
		return "ProviderUnavailable"
	case errors.As(err, &ir):
		return "InvalidResponse"
	case errors.As(err, &mt):
		return "MaxTokensExceeded"
	case errors.As(err, &gen):
		return "BackendError"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "Canceled"
	default:
		return "Error"
	}
}
