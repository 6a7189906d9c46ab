package bootstrap

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/closedesk/closedesk-backend/internal/config"
	"github.com/closedesk/closedesk-backend/internal/core/ports"
	"github.com/closedesk/closedesk-backend/internal/core/rules"
	"github.com/closedesk/closedesk-backend/internal/core/usecase"
	"github.com/closedesk/closedesk-backend/internal/infrastructure/queue/nats"
	"github.com/closedesk/closedesk-backend/internal/infrastructure/repository/postgres"
	"github.com/closedesk/closedesk-backend/internal/infrastructure/resilience"
	"github.com/closedesk/closedesk-backend/internal/infrastructure/rulepacks"
	"github.com/closedesk/closedesk-backend/internal/infrastructure/vector/memory"
	"github.com/closedesk/closedesk-backend/internal/infrastructure/vector/qdrant"
)

type App struct {
	Config config.Config

	Bus          *nats.Bus
	Results      ports.ResultStore
	Transactions ports.TransactionRepository
	Documents    ports.DocumentRepository

	Evaluator ports.ComplianceEvaluator
	Roller    ports.StatusRoller
	Retriever ports.Retriever

	closeFn func()
}

// New wires the full dependency graph: Postgres fact store, rule catalog
// seeded from the YAML pack directory, vector index, NATS event bus and
// the three services. Config.QdrantURL empty selects the in-process index.
func New(ctx context.Context, cfg config.Config, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}

	db, err := postgres.OpenDB(cfg.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := postgres.EnsureSchema(ctx, db); err != nil {
		return nil, fmt.Errorf("ensure schema: %w", err)
	}

	transactions := postgres.NewTransactionRepository(db)
	documents := postgres.NewDocumentRepository(db)
	catalog := postgres.NewRuleRepository(db)
	results := postgres.NewResultRepository(db)
	status := postgres.NewStatusRepository(db)

	seed, err := rulepacks.LoadDir(cfg.RulePackDir)
	if err != nil {
		return nil, fmt.Errorf("load rule packs: %w", err)
	}
	if _, ok := seed.Pack(cfg.DefaultRulePack); !ok {
		return nil, fmt.Errorf("default rule pack %s not present in %s", cfg.DefaultRulePack, cfg.RulePackDir)
	}
	if err := catalog.SeedCatalog(ctx, seed.Checks, seed.Packs); err != nil {
		return nil, fmt.Errorf("seed rule catalog: %w", err)
	}

	var vectors ports.VectorIndex
	if cfg.QdrantURL != "" {
		vectors = qdrant.New(cfg.QdrantURL, cfg.QdrantCollection)
	} else {
		logger.Warn("no qdrant url configured, using in-process vector index")
		vectors = memory.NewIndex()
	}

	executor := resilience.NewExecutor(resilience.DefaultConfig(), logger)
	bus, err := nats.NewWithOptions(cfg.NATSURL, cfg.NATSSubject, nats.Options{
		ResilienceExecutor: executor,
	})
	if err != nil {
		return nil, fmt.Errorf("connect event bus: %w", err)
	}

	registry := rules.NewBuiltInRegistry()

	evaluator := usecase.NewEvaluateService(
		transactions, documents, catalog, results, registry,
		cfg.DefaultRulePack, cfg.EvaluateWorkers, logger,
	)
	roller := usecase.NewRollupService(transactions, results, status, cfg.RollupMaxAttempts, logger)
	retriever := usecase.NewRetrievalService(vectors, transactions, documents, cfg.EmbeddingDim).
		WithSearchDefaults(cfg.SearchTopK, cfg.SearchMinContentLength)

	return &App{
		Config: cfg,

		Bus:          bus,
		Results:      results,
		Transactions: transactions,
		Documents:    documents,

		Evaluator: evaluator,
		Roller:    roller,
		Retriever: retriever,

		closeFn: func() {
			bus.Close()
			_ = db.Close()
		},
	}, nil
}

func (a *App) Close() {
	if a.closeFn != nil {
		a.closeFn()
	}
}
