package content

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"sort"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/abhisek/qforge/internal/embedding"
)

// DefaultMaxChars bounds the assembled context handed to the generator.
const DefaultMaxChars = 9000

// RetrieverConfig tunes a Retriever. Zero values take defaults.
type RetrieverConfig struct {
	MaxChars   int
	WindowSize int
}

// Retriever assembles prompt context and runs similarity searches.
type Retriever struct {
	store    Store
	embedder embedding.Embedder
	log      *zap.Logger
	maxChars int
	window   int
}

// NewRetriever creates a retriever. embedder may be nil when only Retrieve
// is used.
func NewRetriever(store Store, embedder embedding.Embedder, log *zap.Logger, cfg RetrieverConfig) *Retriever {
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.MaxChars <= 0 {
		cfg.MaxChars = DefaultMaxChars
	}
	if cfg.WindowSize < 0 {
		cfg.WindowSize = 0
	}
	return &Retriever{
		store:    store,
		embedder: embedder,
		log:      log,
		maxChars: cfg.MaxChars,
		window:   cfg.WindowSize,
	}
}

// Query describes the content wanted for one generation request.
type Query struct {
	Subject   string
	Topic     string
	Subtopic  string
	Hierarchy Hierarchy
	MaxChunks int
}

// Collection returns the collection the query reads from.
func (q Query) Collection() string {
	return CollectionName(q.Hierarchy.Course, q.Subject, q.Topic)
}

// Retrieve returns the matching chunk texts joined by blank lines and cut
// to the character budget. Store failures and empty results yield "".
func (r *Retriever) Retrieve(ctx context.Context, q Query) string {
	coll := q.Collection()
	log := r.log.With(zap.String("collection", coll), zap.String("subject", q.Subject), zap.String("topic", q.Topic))

	chunks, err := r.store.Query(ctx, coll, Filter{
		Subject:  q.Subject,
		Topic:    q.Topic,
		Subtopic: q.Subtopic,
		Type:     TypeBook,
	}, q.MaxChunks)
	if err != nil {
		log.Warn("content retrieval failed, continuing without context", zap.Error(err))
		return ""
	}
	if len(chunks) == 0 {
		log.Warn("no content chunks found")
		return ""
	}

	parts := make([]string, 0, len(chunks))
	for _, c := range chunks {
		if c.Content != "" {
			parts = append(parts, c.Content)
		}
	}
	text := truncate(strings.Join(parts, "\n\n"), r.maxChars)

	log.Info("content retrieved", zap.Int("chunks", len(chunks)), zap.Int("chars", utf8.RuneCountInString(text)))
	return text
}

// truncate cuts s to at most n characters.
func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}

// SearchQuery is a free-text similarity search within one collection.
type SearchQuery struct {
	Collection string
	Text       string
	Limit      int
	MinScore   float64
	// Window is the number of neighbours added on each side of a hit.
	// Negative uses the retriever's configured window.
	Window int
}

// SearchWindowed finds chunks similar to the query text and widens every
// hit with its neighbours from the same source document. Results are
// ordered by source document and sequence index.
func (r *Retriever) SearchWindowed(ctx context.Context, q SearchQuery) ([]ScoredChunk, error) {
	if r.embedder == nil {
		return nil, fmt.Errorf("similarity search needs an embedder")
	}
	window := q.Window
	if window < 0 {
		window = r.window
	}

	vec, err := r.embedder.Embed(ctx, q.Text)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	hits, err := r.store.NearestNeighbors(ctx, q.Collection, vec, q.Limit, q.MinScore)
	if err != nil {
		return nil, fmt.Errorf("similarity search in %s: %w", q.Collection, err)
	}

	type key struct {
		source string
		index  int
	}
	merged := make(map[key]ScoredChunk)
	wanted := make(map[string]map[int]bool)
	for _, h := range hits {
		merged[key{h.SourceDocument, h.SequenceIndex}] = h
		if wanted[h.SourceDocument] == nil {
			wanted[h.SourceDocument] = make(map[int]bool)
		}
		for i := max(0, h.SequenceIndex-window); i <= h.SequenceIndex+window; i++ {
			wanted[h.SourceDocument][i] = true
		}
	}

	for source, set := range wanted {
		var idx []int
		for i := range set {
			if _, ok := merged[key{source, i}]; !ok {
				idx = append(idx, i)
			}
		}
		if len(idx) == 0 {
			continue
		}
		slices.Sort(idx)
		neighbours, err := r.store.ByIndexes(ctx, q.Collection, source, idx)
		if err != nil {
			r.log.Warn("context chunk lookup failed", zap.String("collection", q.Collection),
				zap.String("source", source), zap.Error(err))
			continue
		}
		for _, c := range neighbours {
			k := key{c.SourceDocument, c.SequenceIndex}
			if _, ok := merged[k]; !ok {
				merged[k] = ScoredChunk{Chunk: c, IsContext: true}
			}
		}
	}

	out := make([]ScoredChunk, 0, len(merged))
	for _, c := range merged {
		out = append(out, c)
	}
	slices.SortFunc(out, func(a, b ScoredChunk) int {
		return cmp.Or(cmp.Compare(a.SourceDocument, b.SourceDocument), cmp.Compare(a.SequenceIndex, b.SequenceIndex))
	})
	return out, nil
}

// SearchAll runs a similarity search over one collection, or every
// collection when collection is empty, and returns the best hits overall.
// Collections that fail are skipped.
func (r *Retriever) SearchAll(ctx context.Context, text, collection string, limit int, minScore float64) ([]ScoredChunk, error) {
	if r.embedder == nil {
		return nil, fmt.Errorf("similarity search needs an embedder")
	}

	var names []string
	if collection != "" {
		names = []string{collection}
	} else {
		infos, err := r.store.Collections(ctx)
		if err != nil {
			return nil, fmt.Errorf("list collections: %w", err)
		}
		for _, info := range infos {
			names = append(names, info.Name)
		}
	}

	vec, err := r.embedder.Embed(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	var all []ScoredChunk
	for _, name := range names {
		hits, err := r.store.NearestNeighbors(ctx, name, vec, limit, minScore)
		if err != nil {
			r.log.Warn("search failed for collection", zap.String("collection", name), zap.Error(err))
			continue
		}
		all = append(all, hits...)
	}

	sort.SliceStable(all, func(i, j int) bool { return all[i].Score > all[j].Score })
	if limit > 0 && len(all) > limit {
		all = all[:limit]
	}
	return all, nil
}
