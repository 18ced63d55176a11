package orchestrator

import (
	"time"

	"github.com/abhisek/qforge/internal/content"
	"github.com/abhisek/qforge/internal/questiongen"
	"github.com/abhisek/qforge/internal/validation"
)

// State is a step of one generation request.
type State string

const (
	StateIdle       State = "idle"
	StateRetrieving State = "retrieving"
	StateGenerating State = "generating"
	StateValidating State = "validating"
	StateRetrying   State = "retrying"
	StateAccepted   State = "accepted"
	StateExhausted  State = "exhausted"
)

// Transition is one recorded state change.
type Transition struct {
	From    State     `json:"from"`
	To      State     `json:"to"`
	Round   int       `json:"round"`
	Attempt int       `json:"attempt,omitempty"`
	At      time.Time `json:"at"`
}

// Status is the terminal outcome of a request that returned questions.
type Status string

const (
	StatusAccepted  Status = "accepted"
	StatusExhausted Status = "exhausted"
)

// Attempt outcomes.
const (
	OutcomeAccepted         = "accepted"
	OutcomeValidationFailed = "validation_failed"
	OutcomeError            = "error"
)

// AttemptRecord describes one generate and validate cycle. Round 0 is the
// primary request; later rounds top up deduplicated questions.
type AttemptRecord struct {
	Round     int           `json:"round"`
	Number    int           `json:"number"`
	Outcome   string        `json:"outcome"`
	Generated int           `json:"generated"`
	Error     string        `json:"error,omitempty"`
	ErrorKind string        `json:"error_kind,omitempty"`
	Reasons   []string      `json:"reasons,omitempty"`
	Duration  time.Duration `json:"duration_ns"`
}

// Metadata summarizes a request.
type Metadata struct {
	RequestID             string  `json:"request_id"`
	Course                string  `json:"course"`
	Subject               string  `json:"subject"`
	Topic                 string  `json:"topic"`
	Subtopic              string  `json:"subtopic,omitempty"`
	QuestionType          string  `json:"question_type"`
	DescriptiveSubtype    string  `json:"descriptive_type,omitempty"`
	NumQuestions          int     `json:"num_questions"`
	Difficulty            string  `json:"difficulty"`
	EducationLevel        string  `json:"education_level"`
	Attempts              int     `json:"attempts"`
	MaxRetries            int     `json:"max_retries"`
	ValidationEnabled     bool    `json:"validation_enabled"`
	ContentChars          int     `json:"content_chars"`
	GenerationTimeSeconds float64 `json:"generation_time_seconds"`
	SavedToStore          bool    `json:"saved_to_store"`
	SavedCount            int     `json:"saved_count"`
	DuplicatesRemoved     int     `json:"duplicates_removed"`
	TopUpRounds           int     `json:"top_up_rounds"`
}

// Result is what a request returns. An exhausted result still carries the
// last generated questions together with the reasons they failed.
type Result struct {
	Status      Status                 `json:"status"`
	Questions   []questiongen.Question `json:"questions"`
	Validation  *validation.Report     `json:"validation"`
	Attempts    []AttemptRecord        `json:"attempts"`
	Metadata    Metadata               `json:"metadata"`
	Hierarchy   content.Hierarchy      `json:"hierarchy"`
	Warnings    []string               `json:"warnings,omitempty"`
	Transitions []Transition           `json:"transitions"`
}

// FailureReasons returns the validation failure reasons, if any.
func (r *Result) FailureReasons() []string {
	if r.Validation == nil || r.Validation.Passed() {
		return nil
	}
	return r.Validation.FailureReasons()
}
