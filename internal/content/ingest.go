package content

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/abhisek/qforge/internal/embedding"
)

// Document describes a source text being ingested.
type Document struct {
	Subject   string
	Topic     string
	Subtopic  string
	Source    string
	PageRange string
	Hierarchy Hierarchy
}

// IngestResult reports what IngestText stored.
type IngestResult struct {
	Collection string
	ChunkIDs   []string
}

// Ingestor chunks, embeds and stores source text.
type Ingestor struct {
	store    Store
	embedder embedding.Embedder
	chunker  Chunker
	log      *zap.Logger
}

// NewIngestor creates an ingestor.
func NewIngestor(store Store, embedder embedding.Embedder, chunker Chunker, log *zap.Logger) *Ingestor {
	if log == nil {
		log = zap.NewNop()
	}
	return &Ingestor{store: store, embedder: embedder, chunker: chunker, log: log}
}

// IngestText stores text as book chunks of doc's collection. Chunks are
// numbered after any already stored for the same source. On error the
// chunks stored so far are reported alongside it.
func (in *Ingestor) IngestText(ctx context.Context, doc Document, text string) (IngestResult, error) {
	if doc.Subject == "" || doc.Topic == "" {
		return IngestResult{}, fmt.Errorf("subject and topic are required")
	}

	coll, err := in.store.EnsureCollection(ctx, CollectionName(doc.Hierarchy.Course, doc.Subject, doc.Topic))
	if err != nil {
		return IngestResult{}, err
	}
	res := IngestResult{Collection: coll}

	pieces := in.chunker.Split(text)
	for i, piece := range pieces {
		vec, err := in.embedder.Embed(ctx, piece)
		if err != nil {
			return res, fmt.Errorf("embed chunk %d of %d: %w", i+1, len(pieces), err)
		}
		id, err := in.store.Put(ctx, coll, Chunk{
			Content:        piece,
			Subject:        doc.Subject,
			Topic:          doc.Topic,
			Subtopic:       doc.Subtopic,
			Type:           TypeBook,
			SourceDocument: doc.Source,
			PageRange:      doc.PageRange,
			SequenceIndex:  -1,
			Hierarchy:      doc.Hierarchy,
			Embedding:      vec,
		})
		if err != nil {
			return res, fmt.Errorf("store chunk %d of %d: %w", i+1, len(pieces), err)
		}
		res.ChunkIDs = append(res.ChunkIDs, id)
	}

	in.log.Info("document ingested", zap.String("collection", coll), zap.String("source", doc.Source),
		zap.Int("chunks", len(res.ChunkIDs)))
	return res, nil
}
