package orchestrator

import (
	"context"

	"go.uber.org/zap"

	"github.com/abhisek/qforge/internal/embedding"
	"github.com/abhisek/qforge/internal/questiongen"
	"github.com/abhisek/qforge/internal/store"
)

const (
	// DefaultSimilarityThreshold is the cosine similarity above which two
	// questions count as duplicates.
	DefaultSimilarityThreshold = 0.9

	defaultApprovedLimit = 500
)

// ApprovedSource lists previously stored questions.
type ApprovedSource interface {
	List(ctx context.Context, f store.QuestionFilter) ([]store.StoredQuestion, error)
}

// Deduplicator drops questions that are near-copies of approved questions
// or of questions already collected in the same request.
type Deduplicator struct {
	embedder  embedding.Embedder
	approved  ApprovedSource
	threshold float64
	limit     int
	log       *zap.Logger
}

// NewDeduplicator creates a deduplicator. approved may be nil, in which
// case only questions within one request are compared.
func NewDeduplicator(embedder embedding.Embedder, approved ApprovedSource, log *zap.Logger) *Deduplicator {
	if log == nil {
		log = zap.NewNop()
	}
	return &Deduplicator{
		embedder:  embedder,
		approved:  approved,
		threshold: DefaultSimilarityThreshold,
		limit:     defaultApprovedLimit,
		log:       log,
	}
}

// WithThreshold returns a copy using t as the similarity cutoff.
func (d *Deduplicator) WithThreshold(t float64) *Deduplicator {
	c := *d
	c.threshold = t
	return &c
}

// dedupScope selects the approved questions a request is compared with.
type dedupScope struct {
	Course       string
	Subject      string
	Topic        string
	QuestionType string
}

// dedupSession holds the vectors one request compares against.
type dedupSession struct {
	d       *Deduplicator
	vectors [][]float32
}

// session loads and embeds the approved questions for scope. Failures
// leave the session without approved vectors.
func (d *Deduplicator) session(ctx context.Context, scope dedupScope) *dedupSession {
	s := &dedupSession{d: d}
	if d.approved == nil {
		return s
	}
	log := d.log.With(zap.String("course", scope.Course), zap.String("subject", scope.Subject), zap.String("topic", scope.Topic))

	stored, err := d.approved.List(ctx, store.QuestionFilter{
		Course:       scope.Course,
		Subject:      scope.Subject,
		Topic:        scope.Topic,
		QuestionType: scope.QuestionType,
		Status:       store.StatusApproved,
		Limit:        d.limit,
	})
	if err != nil {
		log.Warn("loading approved questions failed, skipping comparison", zap.Error(err))
		return s
	}
	for _, q := range stored {
		vec, err := d.embedder.Embed(ctx, q.Text)
		if err != nil {
			log.Warn("embedding approved question failed", zap.String("question_id", q.ID), zap.Error(err))
			continue
		}
		s.vectors = append(s.vectors, vec)
	}
	log.Debug("dedup session ready", zap.Int("approved", len(s.vectors)))
	return s
}

// filter returns the questions of qs that are not duplicates and the
// number dropped. Kept questions join the comparison set.
func (s *dedupSession) filter(ctx context.Context, qs []questiongen.Question) ([]questiongen.Question, int) {
	kept := make([]questiongen.Question, 0, len(qs))
	dropped := 0
	for _, q := range qs {
		vec, err := s.d.embedder.Embed(ctx, q.Text)
		if err != nil {
			s.d.log.Warn("embedding generated question failed, keeping it", zap.Error(err))
			kept = append(kept, q)
			continue
		}
		if s.isDuplicate(vec) {
			dropped++
			s.d.log.Debug("dropping near-duplicate question", zap.String("question", q.Text))
			continue
		}
		s.vectors = append(s.vectors, vec)
		kept = append(kept, q)
	}
	return kept, dropped
}

func (s *dedupSession) isDuplicate(vec []float32) bool {
	for _, v := range s.vectors {
		if embedding.Cosine(vec, v) > s.d.threshold {
			return true
		}
	}
	return false
}
