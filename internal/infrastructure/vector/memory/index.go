package memory

import (
	"context"
	"math"
	"sort"
	"sync"

	"github.com/closedesk/closedesk-backend/internal/core/domain"
)

type entry struct {
	transactionID string
	chunk         domain.DocumentChunk
}

// Index is an in-process vector index used when no qdrant endpoint is
// configured, mainly for local development and tests. Similarity is
// cosine similarity, so an exact embedding match scores 1.0.
type Index struct {
	mu      sync.RWMutex
	entries []entry
}

func NewIndex() *Index {
	return &Index{}
}

func (x *Index) IndexChunks(_ context.Context, transactionID string, chunks []domain.DocumentChunk) error {
	x.mu.Lock()
	defer x.mu.Unlock()
	for _, ch := range chunks {
		x.entries = append(x.entries, entry{transactionID: transactionID, chunk: ch})
	}
	return nil
}

func (x *Index) Search(
	_ context.Context,
	queryEmbedding []float32,
	topK, minContentLength int,
	filter domain.ChunkFilter,
) ([]domain.RetrievedChunk, error) {
	x.mu.RLock()
	defer x.mu.RUnlock()

	var out []domain.RetrievedChunk
	for _, e := range x.entries {
		if filter.TransactionID != "" && e.transactionID != filter.TransactionID {
			continue
		}
		if len(e.chunk.Content) < minContentLength {
			continue
		}
		if len(e.chunk.Embedding) != len(queryEmbedding) {
			continue
		}
		out = append(out, domain.RetrievedChunk{
			DocumentID: e.chunk.DocumentID,
			ChunkIndex: e.chunk.ChunkIndex,
			Content:    e.chunk.Content,
			Similarity: cosineSimilarity(queryEmbedding, e.chunk.Embedding),
		})
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Similarity != out[j].Similarity {
			return out[i].Similarity > out[j].Similarity
		}
		if out[i].ChunkIndex != out[j].ChunkIndex {
			return out[i].ChunkIndex < out[j].ChunkIndex
		}
		return out[i].DocumentID < out[j].DocumentID
	})

	if topK > 0 && len(out) > topK {
		out = out[:topK]
	}
	return out, nil
}

func cosineSimilarity(a, b []float32) float64 {
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
