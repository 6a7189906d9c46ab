package usecase

import (
	"context"
	"fmt"

	"github.com/closedesk/closedesk-backend/internal/core/domain"
	"github.com/closedesk/closedesk-backend/internal/core/ports"
)

const (
	defaultSearchTopK       = 20
	defaultMinContentLength = 20
)

// RetrievalService answers grounding-text queries: nearest-neighbor chunk
// search and the deterministic deal-facts document.
type RetrievalService struct {
	vectors       ports.VectorIndex
	transactions  ports.TransactionRepository
	documents     ports.DocumentRepository
	embeddingDim  int
	defaultTopK   int
	defaultMinLen int
}

func NewRetrievalService(
	vectors ports.VectorIndex,
	transactions ports.TransactionRepository,
	documents ports.DocumentRepository,
	embeddingDim int,
) *RetrievalService {
	return &RetrievalService{
		vectors:       vectors,
		transactions:  transactions,
		documents:     documents,
		embeddingDim:  embeddingDim,
		defaultTopK:   defaultSearchTopK,
		defaultMinLen: defaultMinContentLength,
	}
}

// WithSearchDefaults overrides the fallbacks applied when a caller passes
// zero for top-k or minimum content length.
func (s *RetrievalService) WithSearchDefaults(topK, minContentLength int) *RetrievalService {
	if topK > 0 {
		s.defaultTopK = topK
	}
	if minContentLength > 0 {
		s.defaultMinLen = minContentLength
	}
	return s
}

// SearchChunks returns up to topK chunks ranked by descending similarity.
// Chunks shorter than minContentLength are filtered out before ranking.
// Under an approximate index the caller gets a consistently ranked result
// set, not a guaranteed global top-k.
func (s *RetrievalService) SearchChunks(
	ctx context.Context,
	queryEmbedding []float32,
	topK, minContentLength int,
	filter domain.ChunkFilter,
) ([]domain.RetrievedChunk, error) {
	if err := s.validateEmbedding(queryEmbedding); err != nil {
		return nil, err
	}
	if topK <= 0 {
		topK = s.defaultTopK
	}
	if minContentLength <= 0 {
		minContentLength = s.defaultMinLen
	}

	chunks, err := s.vectors.Search(ctx, queryEmbedding, topK, minContentLength, filter)
	if err != nil {
		return nil, fmt.Errorf("search vector index: %w", err)
	}
	return chunks, nil
}

// DealFacts renders the stable grounding summary for a transaction. The
// output is a retrieval document whose identity is the transaction itself:
// same state in, byte-identical text out.
func (s *RetrievalService) DealFacts(ctx context.Context, transactionID string) (string, error) {
	tx, err := s.transactions.GetByID(ctx, transactionID)
	if err != nil {
		return "", fmt.Errorf("fetch transaction: %w", err)
	}
	return RenderDealFacts(tx), nil
}

// IndexChunks appends chunk embeddings for a document. A chunk is never
// written without its vector.
func (s *RetrievalService) IndexChunks(ctx context.Context, documentID string, chunks []domain.DocumentChunk) error {
	if len(chunks) == 0 {
		return nil
	}

	doc, err := s.documents.GetByID(ctx, documentID)
	if err != nil {
		return fmt.Errorf("fetch document: %w", err)
	}

	for i := range chunks {
		c := &chunks[i]
		if err := s.validateEmbedding(c.Embedding); err != nil {
			return err
		}
		if c.ChunkIndex < 0 {
			return domain.WrapError(domain.ErrInvalidInput, "index chunks",
				fmt.Errorf("chunk_index must be >= 0, got %d", c.ChunkIndex))
		}
		if c.Content == "" {
			return domain.WrapError(domain.ErrInvalidInput, "index chunks",
				fmt.Errorf("chunk %d has empty content", c.ChunkIndex))
		}
		c.DocumentID = doc.ID
	}

	if err := s.vectors.IndexChunks(ctx, doc.TransactionID, chunks); err != nil {
		return fmt.Errorf("index chunks in vector index: %w", err)
	}
	return nil
}

func (s *RetrievalService) validateEmbedding(embedding []float32) error {
	if len(embedding) == 0 {
		return domain.WrapError(domain.ErrInvalidInput, "validate embedding",
			fmt.Errorf("embedding is empty"))
	}
	if s.embeddingDim > 0 && len(embedding) != s.embeddingDim {
		return domain.WrapError(domain.ErrInvalidInput, "validate embedding",
			fmt.Errorf("embedding must have %d dimensions, got %d", s.embeddingDim, len(embedding)))
	}
	return nil
}
