package ports

import (
	"context"

	"github.com/closedesk/closedesk-backend/internal/core/domain"
)

// ComplianceEvaluator is the inbound contract for running compliance checks.
type ComplianceEvaluator interface {
	Evaluate(ctx context.Context, transactionID, checkKey string) (*domain.CheckResult, error)
	EvaluateAll(ctx context.Context, transactionID string) ([]domain.CheckResult, error)
}

// StatusRoller folds current check results into the transaction lifecycle
// status and applies the manual terminal transitions.
type StatusRoller interface {
	Rollup(ctx context.Context, transactionID string) (*domain.TransactionStatusRow, error)
	Close(ctx context.Context, transactionID string) (*domain.TransactionStatusRow, error)
	Void(ctx context.Context, transactionID string) (*domain.TransactionStatusRow, error)
}

// Retriever is the inbound contract for grounding-text retrieval.
type Retriever interface {
	SearchChunks(ctx context.Context, queryEmbedding []float32, topK, minContentLength int, filter domain.ChunkFilter) ([]domain.RetrievedChunk, error)
	DealFacts(ctx context.Context, transactionID string) (string, error)
	IndexChunks(ctx context.Context, documentID string, chunks []domain.DocumentChunk) error
}
