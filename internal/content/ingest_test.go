package content

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abhisek/qforge/internal/embedding"
)

type brokenEmbedder struct{ after, calls int }

func (b *brokenEmbedder) Embed(context.Context, string) ([]float32, error) {
	b.calls++
	if b.calls > b.after {
		return nil, errors.New("model not loaded")
	}
	return []float32{1}, nil
}

func (b *brokenEmbedder) Dimension() int { return 1 }

func TestIngestor_IngestText(t *testing.T) {
	s := NewMemoryStore()
	in := NewIngestor(s, embedding.NewHashEmbedder(32), Chunker{MaxChars: 25}, nil)
	ctx := context.Background()

	doc := Document{
		Subject:   "Financial Accounting",
		Topic:     "Trial Balance",
		Source:    "fa-unit3.pdf",
		Hierarchy: Hierarchy{Course: "bcom", Semester: 1},
	}
	res, err := in.IngestText(ctx, doc, "Debits equal credits.\n\nErrors of omission.\n\nSuspense account.")
	require.NoError(t, err)
	assert.Equal(t, "bcom_financial_accounting_trial_balance", res.Collection)
	assert.Len(t, res.ChunkIDs, 3)

	res2, err := in.IngestText(ctx, doc, "Rectification of errors.")
	require.NoError(t, err)
	require.Len(t, res2.ChunkIDs, 1)

	chunks, err := s.Query(ctx, res.Collection, Filter{Subject: doc.Subject, Topic: doc.Topic}, 0)
	require.NoError(t, err)
	require.Len(t, chunks, 4)
	assert.Equal(t, 3, chunks[3].SequenceIndex, "later ingests continue the numbering")
	assert.Equal(t, "Rectification of errors.", chunks[3].Content)
	assert.Equal(t, "bcom", chunks[0].Hierarchy.Course)
	assert.Equal(t, Unknown, chunks[0].Hierarchy.University)

	text := NewRetriever(s, nil, nil, RetrieverConfig{}).Retrieve(ctx, Query{
		Subject: doc.Subject, Topic: doc.Topic, Hierarchy: doc.Hierarchy,
	})
	assert.Contains(t, text, "Suspense account.")
}

func TestIngestor_PartialFailure(t *testing.T) {
	s := NewMemoryStore()
	in := NewIngestor(s, &brokenEmbedder{after: 1}, Chunker{MaxChars: 10}, nil)

	res, err := in.IngestText(context.Background(), Document{Subject: "S", Topic: "T", Source: "x"}, "aaaa\n\nbbbbbbbbb\n\ncccc")
	require.Error(t, err)
	assert.Len(t, res.ChunkIDs, 1)

	_, err = in.IngestText(context.Background(), Document{Subject: "S"}, "text")
	assert.Error(t, err)
}
