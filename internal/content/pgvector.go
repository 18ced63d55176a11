package content

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
)

const dbTimeout = 5 * time.Second

// PGVectorStore is a Store on PostgreSQL with the pgvector extension.
// Similarity is 1 - cosine distance.
type PGVectorStore struct {
	pool *pgxpool.Pool
	dim  int
}

// NewPGVectorStore creates a store for embeddings of dimension dim. Call
// EnsureSchema once before use.
func NewPGVectorStore(pool *pgxpool.Pool, dim int) (*PGVectorStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is nil")
	}
	if dim <= 0 {
		return nil, fmt.Errorf("embedding dimension must be positive, got %d", dim)
	}
	return &PGVectorStore{pool: pool, dim: dim}, nil
}

// EnsureSchema creates the collection and chunk tables. The vector
// extension must already be installed.
func (s *PGVectorStore) EnsureSchema(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	_, err := s.pool.Exec(ctx, fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS content_collections (
			name       TEXT PRIMARY KEY,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);
		CREATE TABLE IF NOT EXISTS content_chunks (
			id              UUID PRIMARY KEY,
			collection      TEXT NOT NULL REFERENCES content_collections (name) ON DELETE CASCADE,
			content         TEXT NOT NULL,
			subject         TEXT NOT NULL,
			topic           TEXT NOT NULL,
			subtopic        TEXT NOT NULL DEFAULT '',
			type            TEXT NOT NULL DEFAULT 'book',
			source_document TEXT NOT NULL DEFAULT '',
			page_range      TEXT NOT NULL DEFAULT '',
			sequence_index  INTEGER NOT NULL,
			university      TEXT NOT NULL DEFAULT 'unknown',
			course          TEXT NOT NULL DEFAULT 'unknown',
			department      TEXT NOT NULL DEFAULT 'unknown',
			semester        INTEGER NOT NULL DEFAULT 0,
			paper_type      TEXT NOT NULL DEFAULT 'unknown',
			embedding       vector(%d),
			created_at      TIMESTAMPTZ NOT NULL DEFAULT now(),
			UNIQUE (collection, source_document, sequence_index)
		);
		CREATE INDEX IF NOT EXISTS idx_content_chunks_filter
			ON content_chunks (collection, subject, topic, type);`, s.dim))
	if err != nil {
		return fmt.Errorf("create content tables: %w", err)
	}
	return nil
}

func (s *PGVectorStore) EnsureCollection(ctx context.Context, name string) (string, error) {
	name = SanitizeName(name)
	if name == "" {
		return "", fmt.Errorf("collection name is empty")
	}

	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	if _, err := s.pool.Exec(ctx,
		`INSERT INTO content_collections (name) VALUES ($1) ON CONFLICT (name) DO NOTHING`, name); err != nil {
		return "", fmt.Errorf("create collection %s: %w", name, err)
	}
	return name, nil
}

const chunkColumns = `id::text, collection, content, subject, topic, subtopic, type, source_document,
	page_range, sequence_index, university, course, department, semester, paper_type, created_at`

func scanChunk(row pgx.Row, extra ...any) (Chunk, error) {
	var c Chunk
	h := &c.Hierarchy
	dest := []any{&c.ID, &c.Collection, &c.Content, &c.Subject, &c.Topic, &c.Subtopic, &c.Type,
		&c.SourceDocument, &c.PageRange, &c.SequenceIndex, &h.University, &h.Course,
		&h.Department, &h.Semester, &h.PaperType, &c.CreatedAt}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return Chunk{}, err
	}
	return c, nil
}

func (s *PGVectorStore) requireCollection(ctx context.Context, name string) error {
	var exists bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM content_collections WHERE name = $1)`, name).Scan(&exists)
	if err != nil {
		return fmt.Errorf("look up collection %s: %w", name, err)
	}
	if !exists {
		return fmt.Errorf("%w: %s", ErrCollectionNotFound, name)
	}
	return nil
}

func (s *PGVectorStore) Query(ctx context.Context, collection string, f Filter, limit int) ([]Chunk, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	if err := s.requireCollection(ctx, collection); err != nil {
		return nil, err
	}

	f = f.Normalized()
	query := `SELECT ` + chunkColumns + ` FROM content_chunks
		WHERE collection = $1 AND subject = $2 AND topic = $3 AND type = $4`
	args := []any{collection, f.Subject, f.Topic, f.Type}
	if f.Subtopic != "" {
		args = append(args, f.Subtopic)
		query += fmt.Sprintf(" AND subtopic = $%d", len(args))
	}
	query += " ORDER BY source_document, sequence_index"
	if limit > 0 {
		args = append(args, limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query chunks: %w", err)
	}
	defer rows.Close()

	var out []Chunk
	for rows.Next() {
		c, err := scanChunk(rows)
		if err != nil {
			return nil, fmt.Errorf("scan chunk: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate chunks: %w", err)
	}
	return out, nil
}

func (s *PGVectorStore) NearestNeighbors(ctx context.Context, collection string, vec []float32, limit int, minScore float64) ([]ScoredChunk, error) {
	if len(vec) != s.dim {
		return nil, fmt.Errorf("query vector has dimension %d, store expects %d", len(vec), s.dim)
	}
	if limit <= 0 {
		limit = 10
	}

	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	if err := s.requireCollection(ctx, collection); err != nil {
		return nil, err
	}

	rows, err := s.pool.Query(ctx, `
		SELECT `+chunkColumns+`, 1 - (embedding <=> $2::vector) AS score
		FROM content_chunks
		WHERE collection = $1 AND type = 'book' AND embedding IS NOT NULL
		  AND 1 - (embedding <=> $2::vector) >= $3
		ORDER BY embedding <=> $2::vector
		LIMIT $4`,
		collection, pgvector.NewVector(vec), minScore, limit)
	if err != nil {
		return nil, fmt.Errorf("similarity search: %w", err)
	}
	defer rows.Close()

	var out []ScoredChunk
	for rows.Next() {
		var score float64
		c, err := scanChunk(rows, &score)
		if err != nil {
			return nil, fmt.Errorf("scan chunk: %w", err)
		}
		out = append(out, ScoredChunk{Chunk: c, Score: score})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate chunks: %w", err)
	}
	return out, nil
}

func (s *PGVectorStore) ByIndexes(ctx context.Context, collection, source string, idx []int) ([]Chunk, error) {
	if len(idx) == 0 {
		return nil, nil
	}

	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	rows, err := s.pool.Query(ctx, `
		SELECT `+chunkColumns+` FROM content_chunks
		WHERE collection = $1 AND source_document = $2 AND type = 'book'
		  AND sequence_index = ANY($3)
		ORDER BY sequence_index`,
		collection, source, idx)
	if err != nil {
		return nil, fmt.Errorf("query neighbours: %w", err)
	}
	defer rows.Close()

	var out []Chunk
	for rows.Next() {
		c, err := scanChunk(rows)
		if err != nil {
			return nil, fmt.Errorf("scan chunk: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate chunks: %w", err)
	}
	return out, nil
}

func (s *PGVectorStore) Put(ctx context.Context, collection string, c Chunk) (string, error) {
	if len(c.Embedding) != s.dim {
		return "", fmt.Errorf("chunk embedding has dimension %d, store expects %d", len(c.Embedding), s.dim)
	}

	c = normalizeChunk(c)
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now()
	}

	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return "", fmt.Errorf("begin put: %w", err)
	}
	defer tx.Rollback(ctx)

	if c.SequenceIndex < 0 {
		if err := tx.QueryRow(ctx,
			`SELECT COUNT(*) FROM content_chunks WHERE collection = $1 AND source_document = $2`,
			collection, c.SourceDocument).Scan(&c.SequenceIndex); err != nil {
			return "", fmt.Errorf("next sequence index: %w", err)
		}
	}

	h := c.Hierarchy
	_, err = tx.Exec(ctx, `
		INSERT INTO content_chunks
		 (id, collection, content, subject, topic, subtopic, type, source_document, page_range,
		  sequence_index, university, course, department, semester, paper_type, embedding, created_at)
		VALUES ($1::uuid, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16::vector, $17)`,
		c.ID, collection, c.Content, c.Subject, c.Topic, c.Subtopic, c.Type, c.SourceDocument,
		c.PageRange, c.SequenceIndex, h.University, h.Course, h.Department, h.Semester, h.PaperType,
		pgvector.NewVector(c.Embedding), c.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23503" {
			return "", fmt.Errorf("%w: %s", ErrCollectionNotFound, collection)
		}
		return "", fmt.Errorf("insert chunk: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return "", fmt.Errorf("commit put: %w", err)
	}
	return c.ID, nil
}

func (s *PGVectorStore) Collections(ctx context.Context) ([]CollectionInfo, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	rows, err := s.pool.Query(ctx, `
		SELECT c.name, COUNT(ch.id)
		FROM content_collections c
		LEFT JOIN content_chunks ch ON ch.collection = c.name
		GROUP BY c.name
		ORDER BY c.name`)
	if err != nil {
		return nil, fmt.Errorf("list collections: %w", err)
	}
	defer rows.Close()

	var out []CollectionInfo
	for rows.Next() {
		var info CollectionInfo
		if err := rows.Scan(&info.Name, &info.Points); err != nil {
			return nil, fmt.Errorf("scan collection: %w", err)
		}
		out = append(out, info)
	}
	return out, rows.Err()
}

func (s *PGVectorStore) CollectionInfo(ctx context.Context, name string) (CollectionInfo, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	if err := s.requireCollection(ctx, name); err != nil {
		return CollectionInfo{}, err
	}
	info := CollectionInfo{Name: name}
	if err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM content_chunks WHERE collection = $1`, name).Scan(&info.Points); err != nil {
		return CollectionInfo{}, fmt.Errorf("count chunks: %w", err)
	}
	return info, nil
}
