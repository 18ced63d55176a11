package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

func (r *eventRepo) AppendGenerationEvent(ctx context.Context, data GenerationEventData) error {
	seqNum, err := r.seq.Next(ctx)
	if err != nil {
		return fmt.Errorf("next sequence: %w", err)
	}

	reasons := data.Reasons
	if reasons == nil {
		reasons = []string{}
	}
	reasonsJSON, err := json.Marshal(reasons)
	if err != nil {
		return fmt.Errorf("marshal reasons: %w", err)
	}

	_, err = r.db.ExecContext(ctx,
		`INSERT INTO generation_events
		 (sequence, timestamp, request_id, course, subject, topic, outcome, question_type,
		  num_questions, generated_count, validation_passed, error_type, error_message,
		  retry_count, generation_seconds, reasons)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		seqNum, stamp(data.Timestamp), data.RequestID, data.Course, data.Subject, data.Topic,
		data.Outcome, data.QuestionType, data.NumQuestions, data.GeneratedCount,
		boolInt(data.ValidationPassed), data.ErrorType, data.ErrorMessage, data.RetryCount,
		data.GenerationSeconds, string(reasonsJSON),
	)
	if err != nil {
		return fmt.Errorf("save generation event: %w", err)
	}
	return nil
}

func (r *eventRepo) QueryGenerationEvents(ctx context.Context, q GenerationQuery) ([]GenerationEventRecord, error) {
	var conds []string
	var args []any
	if q.Course != "" {
		conds = append(conds, "course = ?")
		args = append(args, q.Course)
	}
	if q.Outcome != "" {
		conds = append(conds, "outcome = ?")
		args = append(args, q.Outcome)
	}
	conds, args = whereOpts(conds, args, q.QueryOpts)

	query, args := buildQuery(
		`SELECT id, sequence, timestamp, request_id, course, subject, topic, outcome,
		        question_type, num_questions, generated_count, validation_passed, error_type,
		        error_message, retry_count, generation_seconds, reasons
		 FROM generation_events`, conds, args, q.Limit)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query generation events: %w", err)
	}
	defer rows.Close()

	var out []GenerationEventRecord
	for rows.Next() {
		var (
			rec     GenerationEventRecord
			ts      int64
			passed  int
			reasons string
		)
		if err := rows.Scan(&rec.ID, &rec.Sequence, &ts, &rec.RequestID, &rec.Course, &rec.Subject,
			&rec.Topic, &rec.Outcome, &rec.QuestionType, &rec.NumQuestions, &rec.GeneratedCount,
			&passed, &rec.ErrorType, &rec.ErrorMessage, &rec.RetryCount, &rec.GenerationSeconds,
			&reasons); err != nil {
			return nil, fmt.Errorf("scan generation event: %w", err)
		}
		rec.Timestamp = time.UnixMilli(ts).UTC()
		rec.ValidationPassed = passed == 1
		if err := json.Unmarshal([]byte(reasons), &rec.Reasons); err != nil {
			return nil, fmt.Errorf("decode reasons for event %d: %w", rec.ID, err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}
