package ports

import (
	"context"
	"time"

	"github.com/closedesk/closedesk-backend/internal/core/domain"
)

// TransactionRepository persists and reads transactions and their parties.
type TransactionRepository interface {
	Create(ctx context.Context, tx *domain.Transaction) error
	GetByID(ctx context.Context, id string) (*domain.Transaction, error)
	AddParty(ctx context.Context, p *domain.Party) error
	ListParties(ctx context.Context, transactionID string) ([]domain.Party, error)
}

// DocumentRepository persists documents, their version chains and
// extracted fields.
type DocumentRepository interface {
	Create(ctx context.Context, doc *domain.Document) error
	GetByID(ctx context.Context, id string) (*domain.Document, error)
	ListByTransaction(ctx context.Context, transactionID string) ([]domain.Document, error)
	// HeadOfChain resolves the most recent version in the supersedes chain
	// containing the given document.
	HeadOfChain(ctx context.Context, documentID string) (*domain.Document, error)
	AddField(ctx context.Context, f *domain.DocField) error
	ListFieldsByTransaction(ctx context.Context, transactionID string) ([]domain.DocField, error)
}

// RuleCatalog reads check definitions and rule pack membership.
type RuleCatalog interface {
	GetCheck(ctx context.Context, key string) (*domain.CheckDefinition, error)
	ListPackChecks(ctx context.Context, packCode string) ([]domain.CheckDefinition, error)
	SeedCatalog(ctx context.Context, defs []domain.CheckDefinition, packs []domain.RulePack) error
}

// ResultStore is the append-only check result log. LatestPerCheck reads
// the current outcome per check key from one consistent snapshot.
type ResultStore interface {
	Append(ctx context.Context, r *domain.CheckResult) error
	LatestPerCheck(ctx context.Context, transactionID string) ([]domain.CheckResult, error)
}

// StatusStore holds the single rollup row per transaction. CompareAndSet
// replaces the row only when the stored status still equals prev, which
// serializes concurrent rollups without locks.
type StatusStore interface {
	Get(ctx context.Context, transactionID string) (*domain.TransactionStatusRow, error)
	Init(ctx context.Context, transactionID string, status domain.LifecycleStatus) error
	CompareAndSet(ctx context.Context, transactionID string, prev, next domain.LifecycleStatus) (bool, error)
}

// VectorIndex stores chunk embeddings and performs nearest-neighbor search.
// Inserts are append-only and never block concurrent searches.
type VectorIndex interface {
	IndexChunks(ctx context.Context, transactionID string, chunks []domain.DocumentChunk) error
	Search(ctx context.Context, queryEmbedding []float32, topK, minContentLength int, filter domain.ChunkFilter) ([]domain.RetrievedChunk, error)
}

// FactsChangedEvent announces that the durable facts of a transaction
// changed. PublishedAt is zero when the producer did not stamp it.
type FactsChangedEvent struct {
	TransactionID string
	PublishedAt   time.Time
}

// EventBus publishes/consumes facts-changed events that trigger
// re-evaluation of a transaction.
type EventBus interface {
	PublishFactsChanged(ctx context.Context, transactionID string) error
	SubscribeFactsChanged(ctx context.Context, handler func(context.Context, FactsChangedEvent) error) error
}
