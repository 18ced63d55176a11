package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/abhisek/qforge/internal/questiongen"
	"github.com/abhisek/qforge/internal/store"
)

// Sink persists one accepted question.
type Sink interface {
	Store(ctx context.Context, q questiongen.Question, meta store.QuestionMeta) error
}

// RepoSink stores questions through a store.QuestionRepo. It works with
// both the SQLite and the PostgreSQL repositories.
type RepoSink struct {
	repo store.QuestionRepo
}

// NewRepoSink wraps repo.
func NewRepoSink(repo store.QuestionRepo) *RepoSink {
	return &RepoSink{repo: repo}
}

func (s *RepoSink) Store(ctx context.Context, q questiongen.Question, meta store.QuestionMeta) error {
	body, err := json.Marshal(q)
	if err != nil {
		return fmt.Errorf("encode question: %w", err)
	}
	_, err = s.repo.Save(ctx, store.StoredQuestion{
		Meta:               meta,
		QuestionType:       q.Kind,
		DescriptiveSubtype: q.DescriptiveSubtype,
		Difficulty:         q.Metadata.Difficulty,
		Text:               q.Text,
		Status:             store.StatusPending,
		Body:               body,
	})
	return err
}
