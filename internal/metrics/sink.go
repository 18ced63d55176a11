package metrics

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/abhisek/qforge/internal/store"
)

// GenerationEventAppender is the write side of store.EventRepo.
type GenerationEventAppender interface {
	AppendGenerationEvent(ctx context.Context, data store.GenerationEventData) error
}

// SQLiteSink persists outcomes as generation events. Write failures are
// logged and dropped.
type SQLiteSink struct {
	events GenerationEventAppender
	log    *zap.Logger
}

// NewSQLiteSink creates a sink over the local event store.
func NewSQLiteSink(events GenerationEventAppender, log *zap.Logger) *SQLiteSink {
	if log == nil {
		log = zap.NewNop()
	}
	return &SQLiteSink{events: events, log: log}
}

func (s *SQLiteSink) RecordSuccess(ctx context.Context, x Success) {
	s.append(ctx, successEvent(x))
}

func (s *SQLiteSink) RecordError(ctx context.Context, f Failure) {
	s.append(ctx, failureEvent(f))
}

func (s *SQLiteSink) RecordValidationFailure(ctx context.Context, v ValidationFailure) {
	s.append(ctx, validationEvent(v))
}

func (s *SQLiteSink) append(ctx context.Context, ev store.GenerationEventData) {
	if err := s.events.AppendGenerationEvent(context.WithoutCancel(ctx), ev); err != nil {
		s.log.Warn("failed to persist generation event",
			zap.String("course", ev.Course), zap.String("outcome", ev.Outcome), zap.Error(err))
	}
}

func retries(attempts int) int { return max(0, attempts-1) }

func successEvent(x Success) store.GenerationEventData {
	return store.GenerationEventData{
		Timestamp:         x.At,
		RequestID:         x.RequestID,
		Course:            x.Course,
		Subject:           x.Subject,
		Topic:             x.Topic,
		Outcome:           store.OutcomeSuccess,
		QuestionType:      x.QuestionType,
		NumQuestions:      x.NumQuestions,
		GeneratedCount:    x.NumQuestions,
		ValidationPassed:  x.ValidationPassed,
		RetryCount:        retries(x.Attempts),
		GenerationSeconds: x.Duration,
	}
}

func failureEvent(f Failure) store.GenerationEventData {
	return store.GenerationEventData{
		Timestamp:         f.At,
		RequestID:         f.RequestID,
		Course:            f.Course,
		Subject:           f.Subject,
		Topic:             f.Topic,
		Outcome:           store.OutcomeError,
		QuestionType:      f.QuestionType,
		NumQuestions:      f.NumQuestions,
		ErrorType:         f.ErrorType,
		ErrorMessage:      f.Message,
		RetryCount:        retries(f.Attempts),
		GenerationSeconds: f.Duration,
	}
}

func validationEvent(v ValidationFailure) store.GenerationEventData {
	return store.GenerationEventData{
		Timestamp:         v.At,
		RequestID:         v.RequestID,
		Course:            v.Course,
		Subject:           v.Subject,
		Topic:             v.Topic,
		Outcome:           store.OutcomeValidationFailure,
		QuestionType:      v.QuestionType,
		GeneratedCount:    v.QuestionsAttempted,
		ErrorMessage:      strings.Join(v.Reasons, "; "),
		RetryCount:        retries(v.Attempts),
		GenerationSeconds: v.Duration,
		Reasons:           v.Reasons,
	}
}

// Summarize rebuilds an aggregator from persisted events.
func Summarize(events []store.GenerationEventRecord) *Aggregator {
	a := NewAggregator()
	ctx := context.Background()
	for _, e := range events {
		attempts := e.RetryCount + 1
		switch e.Outcome {
		case store.OutcomeSuccess:
			a.RecordSuccess(ctx, Success{
				At: e.Timestamp, RequestID: e.RequestID, Course: e.Course, Subject: e.Subject, Topic: e.Topic,
				QuestionType: e.QuestionType, NumQuestions: e.GeneratedCount, ValidationPassed: e.ValidationPassed,
				Attempts: attempts, Duration: e.GenerationSeconds,
			})
		case store.OutcomeError:
			a.RecordError(ctx, Failure{
				At: e.Timestamp, RequestID: e.RequestID, Course: e.Course, Subject: e.Subject, Topic: e.Topic,
				QuestionType: e.QuestionType, NumQuestions: e.NumQuestions, ErrorType: e.ErrorType,
				Message: e.ErrorMessage, Attempts: attempts, Duration: e.GenerationSeconds,
			})
		case store.OutcomeValidationFailure:
			a.RecordValidationFailure(ctx, ValidationFailure{
				At: e.Timestamp, RequestID: e.RequestID, Course: e.Course, Subject: e.Subject, Topic: e.Topic,
				QuestionType: e.QuestionType, Reasons: e.Reasons, QuestionsAttempted: e.GeneratedCount,
				Attempts: attempts, Duration: e.GenerationSeconds,
			})
		}
	}
	return a
}
