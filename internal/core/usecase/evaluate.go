package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/closedesk/closedesk-backend/internal/core/domain"
	"github.com/closedesk/closedesk-backend/internal/core/ports"
	"github.com/closedesk/closedesk-backend/internal/core/rules"
)

const defaultEvaluateWorkers = 4

// EvaluateService runs compliance checks against a transaction. Every run
// appends a new result row; re-evaluation is a deliberate audit event.
type EvaluateService struct {
	transactions ports.TransactionRepository
	documents    ports.DocumentRepository
	catalog      ports.RuleCatalog
	results      ports.ResultStore
	registry     *rules.Registry
	packCode     string
	workers      int
	now          func() time.Time
	logger       *slog.Logger
}

func NewEvaluateService(
	transactions ports.TransactionRepository,
	documents ports.DocumentRepository,
	catalog ports.RuleCatalog,
	results ports.ResultStore,
	registry *rules.Registry,
	packCode string,
	workers int,
	logger *slog.Logger,
) *EvaluateService {
	if workers <= 0 {
		workers = defaultEvaluateWorkers
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &EvaluateService{
		transactions: transactions,
		documents:    documents,
		catalog:      catalog,
		results:      results,
		registry:     registry,
		packCode:     packCode,
		workers:      workers,
		now:          time.Now,
		logger:       logger,
	}
}

// WithClock replaces the evaluation clock; date-sensitive checks read the
// snapshot time, never the wall clock directly.
func (s *EvaluateService) WithClock(now func() time.Time) *EvaluateService {
	s.now = now
	return s
}

func (s *EvaluateService) Evaluate(ctx context.Context, transactionID, checkKey string) (*domain.CheckResult, error) {
	def, err := s.catalog.GetCheck(ctx, checkKey)
	if err != nil {
		return nil, fmt.Errorf("load check definition: %w", err)
	}

	snap, err := s.loadSnapshot(ctx, transactionID)
	if err != nil {
		return nil, err
	}

	result := s.runCheck(snap, def)
	if err := s.results.Append(ctx, result); err != nil {
		return nil, fmt.Errorf("append check result: %w", err)
	}
	return result, nil
}

// EvaluateAll runs every check of the configured rule pack concurrently.
// Checks are independent: each reads the same snapshot and appends its own
// row, so a broken or cancelled check never blocks the rest of the batch.
func (s *EvaluateService) EvaluateAll(ctx context.Context, transactionID string) ([]domain.CheckResult, error) {
	defs, err := s.catalog.ListPackChecks(ctx, s.packCode)
	if err != nil {
		return nil, fmt.Errorf("list pack checks: %w", err)
	}
	if len(defs) == 0 {
		return nil, domain.WrapError(domain.ErrInconsistentState, "evaluate all",
			fmt.Errorf("rule pack %q has no checks", s.packCode))
	}

	snap, err := s.loadSnapshot(ctx, transactionID)
	if err != nil {
		return nil, err
	}

	var (
		mu      sync.Mutex
		results []domain.CheckResult
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)

	for i := range defs {
		def := defs[i]
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			result := s.runCheck(snap, &def)
			if err := s.results.Append(gctx, result); err != nil {
				s.logger.Error("append_check_result_failed",
					"transaction_id", transactionID,
					"check_key", def.Key,
					"error", err,
				)
				return nil
			}
			mu.Lock()
			results = append(results, *result)
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return results, err
		}
		return results, fmt.Errorf("evaluate batch: %w", err)
	}
	if len(results) == 0 {
		return nil, domain.WrapError(domain.ErrTemporary, "evaluate all",
			fmt.Errorf("no check result could be written"))
	}

	sort.Slice(results, func(i, j int) bool { return results[i].CheckKey < results[j].CheckKey })
	return results, nil
}

// runCheck never lets an evaluator break the batch: unknown evaluators,
// returned panics and malformed outcomes all degrade to a pending result
// with a reason.
func (s *EvaluateService) runCheck(snap *rules.Snapshot, def *domain.CheckDefinition) *domain.CheckResult {
	result := &domain.CheckResult{
		TransactionID: snap.Transaction.ID,
		CheckKey:      def.Key,
		Severity:      def.Severity,
		HITL:          def.HITL,
		CreatedAt:     snap.Now,
	}

	evaluator, ok := s.registry.Lookup(def.Key)
	if !ok {
		s.logger.Warn("no_evaluator_registered", "check_key", def.Key)
		result.Status = domain.CheckPending
		result.Details = map[string]any{"reason": "no evaluator registered for check key"}
		return result
	}

	outcome := s.evaluateSafely(evaluator, snap, def.Key)
	if !outcome.Status.Valid() {
		outcome = rules.Outcome{
			Status:  domain.CheckPending,
			Details: map[string]any{"reason": fmt.Sprintf("evaluator returned unknown status %q", outcome.Status)},
		}
	}

	result.Status = outcome.Status
	result.Details = outcome.Details
	result.DocumentID = outcome.DocumentID
	if result.Status != domain.CheckPass && len(result.Details) == 0 {
		result.Details = map[string]any{"reason": "no details provided"}
	}
	return result
}

func (s *EvaluateService) evaluateSafely(evaluator rules.Evaluator, snap *rules.Snapshot, key string) (out rules.Outcome) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("check_evaluator_panic", "check_key", key, "panic", fmt.Sprint(r))
			out = rules.Outcome{
				Status:  domain.CheckPending,
				Details: map[string]any{"reason": fmt.Sprintf("evaluator panic: %v", r)},
			}
		}
	}()
	return evaluator.Evaluate(snap)
}

// loadSnapshot reads the transaction, parties, documents and fields that
// every check in a batch shares. All reads happen before any evaluator
// runs, so checks never observe each other's output.
func (s *EvaluateService) loadSnapshot(ctx context.Context, transactionID string) (*rules.Snapshot, error) {
	tx, err := s.transactions.GetByID(ctx, transactionID)
	if err != nil {
		return nil, fmt.Errorf("fetch transaction: %w", err)
	}

	parties, err := s.transactions.ListParties(ctx, transactionID)
	if err != nil {
		return nil, fmt.Errorf("list parties: %w", err)
	}

	docs, err := s.documents.ListByTransaction(ctx, transactionID)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}

	fields, err := s.documents.ListFieldsByTransaction(ctx, transactionID)
	if err != nil {
		return nil, fmt.Errorf("list doc fields: %w", err)
	}

	return &rules.Snapshot{
		Transaction: *tx,
		Parties:     parties,
		Documents:   docs,
		Fields:      fields,
		Now:         s.now().UTC(),
	}, nil
}
