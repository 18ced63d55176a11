package store

import (
	"database/sql"
	"fmt"
)

// Timestamps are stored as unix milliseconds so range filters stay integer
// comparisons.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS llm_request_events (
		id             INTEGER PRIMARY KEY AUTOINCREMENT,
		sequence       INTEGER NOT NULL UNIQUE,
		timestamp      INTEGER NOT NULL,
		provider       TEXT    NOT NULL,
		model          TEXT    NOT NULL,
		purpose        TEXT    NOT NULL,
		input_tokens   INTEGER NOT NULL DEFAULT 0,
		output_tokens  INTEGER NOT NULL DEFAULT 0,
		latency_ms     INTEGER NOT NULL DEFAULT 0,
		success        INTEGER NOT NULL,
		error_message  TEXT    NOT NULL DEFAULT '',
		cost_usd       REAL    NOT NULL DEFAULT 0,
		request_body   TEXT    NOT NULL DEFAULT '',
		response_body  TEXT    NOT NULL DEFAULT ''
	)`,
	`CREATE INDEX IF NOT EXISTS idx_llm_request_events_purpose ON llm_request_events (purpose)`,

	`CREATE TABLE IF NOT EXISTS generation_events (
		id                 INTEGER PRIMARY KEY AUTOINCREMENT,
		sequence           INTEGER NOT NULL UNIQUE,
		timestamp          INTEGER NOT NULL,
		request_id         TEXT    NOT NULL DEFAULT '',
		course             TEXT    NOT NULL,
		subject            TEXT    NOT NULL DEFAULT '',
		topic              TEXT    NOT NULL DEFAULT '',
		outcome            TEXT    NOT NULL,
		question_type      TEXT    NOT NULL DEFAULT '',
		num_questions      INTEGER NOT NULL DEFAULT 0,
		generated_count    INTEGER NOT NULL DEFAULT 0,
		validation_passed  INTEGER NOT NULL DEFAULT 0,
		error_type         TEXT    NOT NULL DEFAULT '',
		error_message      TEXT    NOT NULL DEFAULT '',
		retry_count        INTEGER NOT NULL DEFAULT 0,
		generation_seconds REAL    NOT NULL DEFAULT 0,
		reasons            TEXT    NOT NULL DEFAULT '[]'
	)`,
	`CREATE INDEX IF NOT EXISTS idx_generation_events_course ON generation_events (course, outcome)`,

	`CREATE TABLE IF NOT EXISTS questions (
		id                  TEXT    PRIMARY KEY,
		request_id          TEXT    NOT NULL DEFAULT '',
		course              TEXT    NOT NULL,
		university          TEXT    NOT NULL DEFAULT '',
		department          TEXT    NOT NULL DEFAULT '',
		semester            INTEGER NOT NULL DEFAULT 0,
		paper_type          TEXT    NOT NULL DEFAULT '',
		education_level     TEXT    NOT NULL DEFAULT '',
		source_type         TEXT    NOT NULL DEFAULT '',
		subject             TEXT    NOT NULL,
		topic               TEXT    NOT NULL,
		subtopic            TEXT    NOT NULL DEFAULT '',
		question_type       TEXT    NOT NULL,
		descriptive_subtype TEXT    NOT NULL DEFAULT '',
		difficulty          TEXT    NOT NULL DEFAULT '',
		question_text       TEXT    NOT NULL,
		status              TEXT    NOT NULL DEFAULT 'pending',
		body                TEXT    NOT NULL,
		created_at          INTEGER NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_questions_scope ON questions (course, subject, topic, status)`,
}

func migrate(db *sql.DB) error {
	for _, stmt := range schema {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("exec schema: %w", err)
		}
	}
	return nil
}
