// Package metrics records generation outcomes per course.
package metrics

import (
	"context"
	"time"
)

// Success is a request that returned questions, validated or not.
type Success struct {
	At               time.Time `json:"timestamp"`
	RequestID        string    `json:"request_id,omitempty"`
	Course           string    `json:"course"`
	Subject          string    `json:"subject"`
	Topic            string    `json:"topic"`
	QuestionType     string    `json:"question_type,omitempty"`
	NumQuestions     int       `json:"num_questions"`
	ValidationPassed bool      `json:"validation_passed"`
	Attempts         int       `json:"attempts"`
	Duration         float64   `json:"generation_time"`
}

// Failure is a request that ended in an error.
type Failure struct {
	At           time.Time `json:"timestamp"`
	RequestID    string    `json:"request_id,omitempty"`
	Course       string    `json:"course"`
	Subject      string    `json:"subject"`
	Topic        string    `json:"topic"`
	QuestionType string    `json:"question_type,omitempty"`
	NumQuestions int       `json:"num_questions,omitempty"`
	ErrorType    string    `json:"error_type"`
	Message      string    `json:"error_message"`
	Attempts     int       `json:"attempts"`
	Duration     float64   `json:"generation_time"`
}

// ValidationFailure is a request whose attempts were exhausted without a
// batch passing validation.
type ValidationFailure struct {
	At                 time.Time `json:"timestamp"`
	RequestID          string    `json:"request_id,omitempty"`
	Course             string    `json:"course"`
	Subject            string    `json:"subject"`
	Topic              string    `json:"topic"`
	QuestionType       string    `json:"question_type,omitempty"`
	Reasons            []string  `json:"reasons"`
	QuestionsAttempted int       `json:"questions_attempted"`
	Attempts           int       `json:"attempts"`
	Duration           float64   `json:"generation_time"`
}

// Recorder receives generation outcomes. Implementations must be safe for
// concurrent use and must not fail the caller.
type Recorder interface {
	RecordSuccess(ctx context.Context, s Success)
	RecordError(ctx context.Context, f Failure)
	RecordValidationFailure(ctx context.Context, v ValidationFailure)
}

// Multi fans every record out to all recorders in order.
func Multi(recorders ...Recorder) Recorder {
	var rs multi
	for _, r := range recorders {
		if r != nil {
			rs = append(rs, r)
		}
	}
	return rs
}

type multi []Recorder

func (m multi) RecordSuccess(ctx context.Context, s Success) {
	for _, r := range m {
		r.RecordSuccess(ctx, s)
	}
}

func (m multi) RecordError(ctx context.Context, f Failure) {
	for _, r := range m {
		r.RecordError(ctx, f)
	}
}

func (m multi) RecordValidationFailure(ctx context.Context, v ValidationFailure) {
	for _, r := range m {
		r.RecordValidationFailure(ctx, v)
	}
}

// Nop discards every record.
type Nop struct{}

func (Nop) RecordSuccess(context.Context, Success)                     {}
func (Nop) RecordError(context.Context, Failure)                       {}
func (Nop) RecordValidationFailure(context.Context, ValidationFailure) {}
