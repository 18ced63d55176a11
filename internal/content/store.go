package content

import (
	"context"
	"errors"
)

// ErrCollectionNotFound is returned for operations on a missing collection.
var ErrCollectionNotFound = errors.New("collection not found")

// Store is a vector-indexed chunk store partitioned into collections.
type Store interface {
	// EnsureCollection creates the collection if needed and returns its
	// sanitized name.
	EnsureCollection(ctx context.Context, name string) (string, error)

	// Query returns up to limit chunks matching f, ordered by source
	// document and sequence index.
	Query(ctx context.Context, collection string, f Filter, limit int) ([]Chunk, error)

	// NearestNeighbors returns book chunks whose cosine similarity to vec is
	// at least minScore, best first.
	NearestNeighbors(ctx context.Context, collection string, vec []float32, limit int, minScore float64) ([]ScoredChunk, error)

	// ByIndexes returns the book chunks of source at the given positions.
	ByIndexes(ctx context.Context, collection, source string, idx []int) ([]Chunk, error)

	// Put stores c and returns its ID.
	Put(ctx context.Context, collection string, c Chunk) (string, error)

	Collections(ctx context.Context) ([]CollectionInfo, error)
	CollectionInfo(ctx context.Context, name string) (CollectionInfo, error)
}
