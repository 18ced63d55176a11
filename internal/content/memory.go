package content

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/abhisek/qforge/internal/embedding"
)

// MemoryStore is an in-process Store. It backs tests and runs without
// PostgreSQL.
type MemoryStore struct {
	mu          sync.RWMutex
	collections map[string][]Chunk
	now         func() time.Time
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		collections: make(map[string][]Chunk),
		now:         time.Now,
	}
}

func (s *MemoryStore) EnsureCollection(_ context.Context, name string) (string, error) {
	name = SanitizeName(name)
	if name == "" {
		return "", fmt.Errorf("collection name is empty")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.collections[name]; !ok {
		s.collections[name] = nil
	}
	return name, nil
}

func (s *MemoryStore) Query(_ context.Context, collection string, f Filter, limit int) ([]Chunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	chunks, ok := s.collections[collection]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrCollectionNotFound, collection)
	}

	f = f.Normalized()
	var out []Chunk
	for _, c := range chunks {
		if c.Subject != f.Subject || c.Topic != f.Topic || c.Type != f.Type {
			continue
		}
		if f.Subtopic != "" && c.Subtopic != f.Subtopic {
			continue
		}
		out = append(out, c)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (s *MemoryStore) NearestNeighbors(_ context.Context, collection string, vec []float32, limit int, minScore float64) ([]ScoredChunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	chunks, ok := s.collections[collection]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrCollectionNotFound, collection)
	}

	var hits []ScoredChunk
	for _, c := range chunks {
		if c.Type != TypeBook || len(c.Embedding) == 0 {
			continue
		}
		if score := embedding.Cosine(vec, c.Embedding); score >= minScore {
			hits = append(hits, ScoredChunk{Chunk: c, Score: score})
		}
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })
	if limit > 0 && len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}

func (s *MemoryStore) ByIndexes(_ context.Context, collection, source string, idx []int) ([]Chunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	chunks, ok := s.collections[collection]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrCollectionNotFound, collection)
	}

	var out []Chunk
	for _, c := range chunks {
		if c.Type == TypeBook && c.SourceDocument == source && slices.Contains(idx, c.SequenceIndex) {
			out = append(out, c)
		}
	}
	return out, nil
}

func (s *MemoryStore) Put(_ context.Context, collection string, c Chunk) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	chunks, ok := s.collections[collection]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrCollectionNotFound, collection)
	}

	c = normalizeChunk(c)
	c.Collection = collection
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = s.now()
	}

	count := 0
	for _, existing := range chunks {
		if existing.SourceDocument != c.SourceDocument {
			continue
		}
		count++
		if c.SequenceIndex >= 0 && existing.SequenceIndex == c.SequenceIndex {
			return "", fmt.Errorf("chunk %d of %s already exists in %s", c.SequenceIndex, c.SourceDocument, collection)
		}
	}
	if c.SequenceIndex < 0 {
		c.SequenceIndex = count
	}
	c.Embedding = slices.Clone(c.Embedding)

	chunks = append(chunks, c)
	slices.SortStableFunc(chunks, func(a, b Chunk) int {
		return cmp.Or(cmp.Compare(a.SourceDocument, b.SourceDocument), cmp.Compare(a.SequenceIndex, b.SequenceIndex))
	})
	s.collections[collection] = chunks
	return c.ID, nil
}

func (s *MemoryStore) Collections(_ context.Context) ([]CollectionInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]CollectionInfo, 0, len(s.collections))
	for name, chunks := range s.collections {
		out = append(out, CollectionInfo{Name: name, Points: len(chunks)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *MemoryStore) CollectionInfo(_ context.Context, name string) (CollectionInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	chunks, ok := s.collections[name]
	if !ok {
		return CollectionInfo{}, fmt.Errorf("%w: %s", ErrCollectionNotFound, name)
	}
	return CollectionInfo{Name: name, Points: len(chunks)}, nil
}
