package metrics

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/abhisek/qforge/internal/store"
)

const dbTimeout = 5 * time.Second

// PostgresSink persists outcomes to a shared PostgreSQL table so several
// workers report into one place.
type PostgresSink struct {
	pool *pgxpool.Pool
	log  *zap.Logger
}

// NewPostgresSink creates the sink. Call EnsureSchema once before use.
func NewPostgresSink(pool *pgxpool.Pool, log *zap.Logger) (*PostgresSink, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is nil")
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &PostgresSink{pool: pool, log: log}, nil
}

// EnsureSchema creates the generation_events table if missing.
func (s *PostgresSink) EnsureSchema(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS generation_events (
			id                 BIGSERIAL PRIMARY KEY,
			occurred_at        TIMESTAMPTZ NOT NULL DEFAULT now(),
			request_id         TEXT NOT NULL DEFAULT '',
			course             TEXT NOT NULL,
			subject            TEXT NOT NULL,
			topic              TEXT NOT NULL,
			outcome            TEXT NOT NULL,
			question_type      TEXT NOT NULL DEFAULT '',
			num_questions      INTEGER NOT NULL DEFAULT 0,
			generated_count    INTEGER NOT NULL DEFAULT 0,
			validation_passed  BOOLEAN NOT NULL DEFAULT false,
			error_type         TEXT NOT NULL DEFAULT '',
			error_message      TEXT NOT NULL DEFAULT '',
			retry_count        INTEGER NOT NULL DEFAULT 0,
			generation_seconds DOUBLE PRECISION NOT NULL DEFAULT 0,
			reasons            JSONB NOT NULL DEFAULT '[]'
		);
		CREATE INDEX IF NOT EXISTS idx_generation_events_course
			ON generation_events (course, outcome, occurred_at);`)
	if err != nil {
		return fmt.Errorf("create generation_events: %w", err)
	}
	return nil
}

func (s *PostgresSink) RecordSuccess(ctx context.Context, x Success) {
	s.insert(ctx, successEvent(x))
}

func (s *PostgresSink) RecordError(ctx context.Context, f Failure) {
	s.insert(ctx, failureEvent(f))
}

func (s *PostgresSink) RecordValidationFailure(ctx context.Context, v ValidationFailure) {
	s.insert(ctx, validationEvent(v))
}

func (s *PostgresSink) insert(ctx context.Context, ev store.GenerationEventData) {
	if err := s.Append(ctx, ev); err != nil {
		s.log.Warn("failed to persist generation event",
			zap.String("course", ev.Course), zap.String("outcome", ev.Outcome), zap.Error(err))
	}
}

// Append writes one event.
func (s *PostgresSink) Append(ctx context.Context, ev store.GenerationEventData) error {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), dbTimeout)
	defer cancel()

	reasons := ev.Reasons
	if reasons == nil {
		reasons = []string{}
	}
	reasonsJSON, err := json.Marshal(reasons)
	if err != nil {
		return fmt.Errorf("marshal reasons: %w", err)
	}
	at := ev.Timestamp
	if at.IsZero() {
		at = time.Now()
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO generation_events
			(occurred_at, request_id, course, subject, topic, outcome, question_type, num_questions,
			 generated_count, validation_passed, error_type, error_message, retry_count,
			 generation_seconds, reasons)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`,
		at, ev.RequestID, ev.Course, ev.Subject, ev.Topic, ev.Outcome, ev.QuestionType, ev.NumQuestions,
		ev.GeneratedCount, ev.ValidationPassed, ev.ErrorType, ev.ErrorMessage, ev.RetryCount,
		ev.GenerationSeconds, reasonsJSON)
	if err != nil {
		return fmt.Errorf("insert generation event: %w", err)
	}
	return nil
}

// Events returns persisted events for course (all courses when empty),
// oldest first.
func (s *PostgresSink) Events(ctx context.Context, course string) ([]store.GenerationEventRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	rows, err := s.pool.Query(ctx, `
		SELECT id, occurred_at, request_id, course, subject, topic, outcome, question_type,
		       num_questions, generated_count, validation_passed, error_type, error_message,
		       retry_count, generation_seconds, reasons
		FROM generation_events
		WHERE $1 = '' OR course = $1
		ORDER BY occurred_at, id`, course)
	if err != nil {
		return nil, fmt.Errorf("query generation events: %w", err)
	}
	defer rows.Close()

	var out []store.GenerationEventRecord
	for rows.Next() {
		var (
			rec     store.GenerationEventRecord
			id      int64
			reasons []byte
		)
		if err := rows.Scan(&id, &rec.Timestamp, &rec.RequestID, &rec.Course, &rec.Subject, &rec.Topic,
			&rec.Outcome, &rec.QuestionType, &rec.NumQuestions, &rec.GeneratedCount, &rec.ValidationPassed,
			&rec.ErrorType, &rec.ErrorMessage, &rec.RetryCount, &rec.GenerationSeconds, &reasons); err != nil {
			return nil, fmt.Errorf("scan generation event: %w", err)
		}
		rec.ID = int(id)
		rec.Sequence = id
		if err := json.Unmarshal(reasons, &rec.Reasons); err != nil {
			return nil, fmt.Errorf("decode reasons: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}
