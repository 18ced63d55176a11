package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

const dbTimeout = 5 * time.Second

// PostgresQuestionRepo is a QuestionRepo backed by PostgreSQL.
type PostgresQuestionRepo struct {
	pool *pgxpool.Pool
}

// NewPostgresQuestionRepo creates the repo. Call EnsureSchema once before use.
func NewPostgresQuestionRepo(pool *pgxpool.Pool) (*PostgresQuestionRepo, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is nil")
	}
	return &PostgresQuestionRepo{pool: pool}, nil
}

// EnsureSchema creates the generated_questions table if missing.
func (r *PostgresQuestionRepo) EnsureSchema(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	_, err := r.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS generated_questions (
			id                  UUID PRIMARY KEY,
			request_id          TEXT NOT NULL DEFAULT '',
			course              TEXT NOT NULL,
			university          TEXT NOT NULL DEFAULT '',
			department          TEXT NOT NULL DEFAULT '',
			semester            INTEGER NOT NULL DEFAULT 0,
			paper_type          TEXT NOT NULL DEFAULT '',
			education_level     TEXT NOT NULL DEFAULT '',
			source_type         TEXT NOT NULL DEFAULT '',
			subject             TEXT NOT NULL,
			topic               TEXT NOT NULL,
			subtopic            TEXT NOT NULL DEFAULT '',
			question_type       TEXT NOT NULL,
			descriptive_subtype TEXT NOT NULL DEFAULT '',
			difficulty          TEXT NOT NULL DEFAULT '',
			question_text       TEXT NOT NULL,
			status              TEXT NOT NULL DEFAULT 'pending',
			body                JSONB NOT NULL,
			created_at          TIMESTAMPTZ NOT NULL DEFAULT now()
		);
		CREATE INDEX IF NOT EXISTS idx_generated_questions_scope
			ON generated_questions (course, subject, topic, status);`)
	if err != nil {
		return fmt.Errorf("create generated_questions: %w", err)
	}
	return nil
}

func (r *PostgresQuestionRepo) Save(ctx context.Context, q StoredQuestion) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

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
	createdAt := q.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	m := q.Meta
	_, err := r.pool.Exec(ctx,
		`INSERT INTO generated_questions
		 (id, request_id, course, university, department, semester, paper_type, education_level,
		  source_type, subject, topic, subtopic, question_type, descriptive_subtype, difficulty,
		  question_text, status, body, created_at)
		 VALUES ($1::uuid, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18::jsonb, $19)`,
		q.ID, m.RequestID, m.Course, m.University, m.Department, m.Semester, m.PaperType,
		m.EducationLevel, m.SourceType, m.Subject, m.Topic, m.Subtopic, q.QuestionType,
		q.DescriptiveSubtype, q.Difficulty, q.Text, q.Status, string(q.Body), createdAt,
	)
	if err != nil {
		return "", fmt.Errorf("save question: %w", err)
	}
	return q.ID, nil
}

func pgQuestionWhere(f QuestionFilter) (string, []any) {
	where := ""
	var args []any
	add := func(col, v string) {
		if v == "" {
			return
		}
		args = append(args, v)
		if where == "" {
			where = " WHERE "
		} else {
			where += " AND "
		}
		where += fmt.Sprintf("%s = $%d", col, len(args))
	}
	add("course", f.Course)
	add("subject", f.Subject)
	add("topic", f.Topic)
	add("question_type", f.QuestionType)
	add("status", f.Status)
	return where, args
}

func (r *PostgresQuestionRepo) List(ctx context.Context, f QuestionFilter) ([]StoredQuestion, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	where, args := pgQuestionWhere(f)
	query := `SELECT id::text, request_id, course, university, department, semester, paper_type,
	                 education_level, source_type, subject, topic, subtopic, question_type,
	                 descriptive_subtype, difficulty, question_text, status, body::text, created_at
	          FROM generated_questions` + where + ` ORDER BY created_at DESC`
	if f.Limit > 0 {
		args = append(args, f.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list questions: %w", err)
	}
	defer rows.Close()

	var out []StoredQuestion
	for rows.Next() {
		var q StoredQuestion
		var body string
		m := &q.Meta
		if err := rows.Scan(&q.ID, &m.RequestID, &m.Course, &m.University, &m.Department,
			&m.Semester, &m.PaperType, &m.EducationLevel, &m.SourceType, &m.Subject, &m.Topic,
			&m.Subtopic, &q.QuestionType, &q.DescriptiveSubtype, &q.Difficulty, &q.Text, &q.Status,
			&body, &q.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan question: %w", err)
		}
		q.Body = []byte(body)
		out = append(out, q)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate questions: %w", err)
	}
	return out, nil
}

func (r *PostgresQuestionRepo) Count(ctx context.Context, f QuestionFilter) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	where, args := pgQuestionWhere(f)
	var n int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM generated_questions`+where, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count questions: %w", err)
	}
	return n, nil
}

func (r *PostgresQuestionRepo) SetStatus(ctx context.Context, id, status string) error {
	if !ValidStatus(status) {
		return fmt.Errorf("unknown question status %q", status)
	}
	if _, err := uuid.Parse(id); err != nil {
		return ErrQuestionNotFound
	}

	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	tag, err := r.pool.Exec(ctx, `UPDATE generated_questions SET status = $1 WHERE id = $2::uuid`, status, id)
	if err != nil {
		return fmt.Errorf("set question status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrQuestionNotFound
	}
	return nil
}
