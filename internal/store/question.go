package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

type questionRepo struct {
	db *sql.DB
}

func (r *questionRepo) Save(ctx context.Context, q StoredQuestion) (string, error) {
	if q.ID == "" {
		q.ID = uuid.NewString()
	}
	if len(q.Body) == 0 {
		return "", fmt.Errorf("question body is required")
	}
	if q.Status == "" {
		q.Status = StatusPending
	}
	if !ValidStatus(q.Status) {
		return "", fmt.Errorf("unknown question status %q", q.Status)
	}

	m := q.Meta
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO questions
		 (id, request_id, course, university, department, semester, paper_type, education_level,
		  source_type, subject, topic, subtopic, question_type, descriptive_subtype, difficulty,
		  question_text, body, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		q.ID, m.RequestID, m.Course, m.University, m.Department, m.Semester, m.PaperType,
		m.EducationLevel, m.SourceType, m.Subject, m.Topic, m.Subtopic, q.QuestionType,
		q.DescriptiveSubtype, q.Difficulty, q.Text, string(q.Body), stamp(q.CreatedAt),
	)
	if err != nil {
		return "", fmt.Errorf("save question: %w", err)
	}
	return q.ID, nil
}

func questionWhere(f QuestionFilter) (string, []any) {
	var conds []string
	var args []any
	add := func(col, v string) {
		if v != "" {
			conds = append(conds, col+" = ?")
			args = append(args, v)
		}
	}
	add("course", f.Course)
	add("subject", f.Subject)
	add("topic", f.Topic)
	add("question_type", f.QuestionType)
	add("status", f.Status)
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func (r *questionRepo) List(ctx context.Context, f QuestionFilter) ([]StoredQuestion, error) {
	where, args := questionWhere(f)
	query := `SELECT id, request_id, course, university, department, semester, paper_type,
	                 education_level, source_type, subject, topic, subtopic, question_type,
	                 descriptive_subtype, difficulty, question_text, body, created_at
	          FROM questions` + where + ` ORDER BY created_at DESC, rowid DESC`
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list questions: %w", err)
	}
	defer rows.Close()

	var out []StoredQuestion
	for rows.Next() {
		var (
			q    StoredQuestion
			body string
			ts   int64
		)
		m := &q.Meta
		if err := rows.Scan(&q.ID, &m.RequestID, &m.Course, &m.University, &m.Department,
			&m.Semester, &m.PaperType, &m.EducationLevel, &m.SourceType, &m.Subject, &m.Topic,
			&m.Subtopic, &q.QuestionType, &q.DescriptiveSubtype, &q.Difficulty, &q.Text, &q.Status,
			&body, &ts); err != nil {
			return nil, fmt.Errorf("scan question: %w", err)
		}
		q.Body = []byte(body)
		q.CreatedAt = time.UnixMilli(ts).UTC()
		out = append(out, q)
	}
	return out, rows.Err()
}

func (r *questionRepo) Count(ctx context.Context, f QuestionFilter) (int, error) {
	where, args := questionWhere(f)
	var n int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM questions`+where, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count questions: %w", err)
	}
	return n, nil
}

func (r *questionRepo) SetStatus(ctx context.Context, id, status string) error {
	if !ValidStatus(status) {
		return fmt.Errorf("unknown question status %q", status)
	}
	res, err := r.db.ExecContext(ctx, `UPDATE questions SET status = ? WHERE id = ?`, status, id)
	if err != nil {
		return fmt.Errorf("set question status: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("set question status: %w", err)
	}
	if n == 0 {
		return ErrQuestionNotFound
	}
	return nil
}
