package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/closedesk/closedesk-backend/internal/core/domain"
	"github.com/closedesk/closedesk-backend/internal/core/ports"
)

const defaultRollupAttempts = 3

// RollupService folds the latest result per check into one lifecycle
// status. The fold always recomputes from scratch; there are no
// incremental transitions except the terminal guards.
type RollupService struct {
	transactions ports.TransactionRepository
	results      ports.ResultStore
	status       ports.StatusStore
	maxAttempts  int
	logger       *slog.Logger
}

func NewRollupService(
	transactions ports.TransactionRepository,
	results ports.ResultStore,
	status ports.StatusStore,
	maxAttempts int,
	logger *slog.Logger,
) *RollupService {
	if maxAttempts <= 0 {
		maxAttempts = defaultRollupAttempts
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &RollupService{
		transactions: transactions,
		results:      results,
		status:       status,
		maxAttempts:  maxAttempts,
		logger:       logger,
	}
}

func (s *RollupService) Rollup(ctx context.Context, transactionID string) (*domain.TransactionStatusRow, error) {
	tx, err := s.transactions.GetByID(ctx, transactionID)
	if err != nil {
		return nil, fmt.Errorf("fetch transaction: %w", err)
	}

	for attempt := 1; attempt <= s.maxAttempts; attempt++ {
		current, err := s.currentStatus(ctx, transactionID, tx.Status)
		if err != nil {
			return nil, err
		}

		// Terminal states are preserved; reporting a no-op keeps rollup
		// idempotent from the caller's perspective.
		if current == domain.StatusVoid || tx.Status == domain.StatusVoid {
			return s.noOp(transactionID, domain.StatusVoid), nil
		}
		if current == domain.StatusClosed {
			return s.noOp(transactionID, domain.StatusClosed), nil
		}

		latest, err := s.results.LatestPerCheck(ctx, transactionID)
		if err != nil {
			return nil, fmt.Errorf("load latest results: %w", err)
		}
		if len(latest) == 0 {
			s.logger.Warn("rollup_without_results", "transaction_id", transactionID, "status", current)
			return s.noOp(transactionID, current), nil
		}

		next, details := foldResults(latest)

		ok, err := s.status.CompareAndSet(ctx, transactionID, current, next)
		if err != nil {
			return nil, fmt.Errorf("write rollup status: %w", err)
		}
		if ok {
			return &domain.TransactionStatusRow{
				TransactionID: transactionID,
				Status:        next,
				Details:       details,
				UpdatedAt:     time.Now().UTC(),
			}, nil
		}

		s.logger.Warn("rollup_write_conflict",
			"transaction_id", transactionID,
			"attempt", attempt,
			"expected_status", current,
		)
	}

	return nil, domain.WrapError(domain.ErrConflict, "rollup",
		fmt.Errorf("lost %d consecutive conditional writes for transaction %s", s.maxAttempts, transactionID))
}

// Close is the manual terminal transition; rollup never computes it.
func (s *RollupService) Close(ctx context.Context, transactionID string) (*domain.TransactionStatusRow, error) {
	tx, err := s.transactions.GetByID(ctx, transactionID)
	if err != nil {
		return nil, fmt.Errorf("fetch transaction: %w", err)
	}
	current, err := s.currentStatus(ctx, transactionID, tx.Status)
	if err != nil {
		return nil, err
	}

	switch current {
	case domain.StatusClosed:
		return s.noOp(transactionID, domain.StatusClosed), nil
	case domain.StatusReadyToClose:
		ok, err := s.status.CompareAndSet(ctx, transactionID, current, domain.StatusClosed)
		if err != nil {
			return nil, fmt.Errorf("write closed status: %w", err)
		}
		if !ok {
			return nil, domain.WrapError(domain.ErrConflict, "close transaction",
				fmt.Errorf("status changed concurrently"))
		}
		return &domain.TransactionStatusRow{
			TransactionID: transactionID,
			Status:        domain.StatusClosed,
			UpdatedAt:     time.Now().UTC(),
		}, nil
	default:
		return nil, domain.WrapError(domain.ErrInconsistentState, "close transaction",
			fmt.Errorf("cannot close from status %s", current))
	}
}

// Void is permitted from any state, including closed.
func (s *RollupService) Void(ctx context.Context, transactionID string) (*domain.TransactionStatusRow, error) {
	tx, err := s.transactions.GetByID(ctx, transactionID)
	if err != nil {
		return nil, fmt.Errorf("fetch transaction: %w", err)
	}
	current, err := s.currentStatus(ctx, transactionID, tx.Status)
	if err != nil {
		return nil, err
	}
	if current == domain.StatusVoid {
		return s.noOp(transactionID, domain.StatusVoid), nil
	}

	ok, err := s.status.CompareAndSet(ctx, transactionID, current, domain.StatusVoid)
	if err != nil {
		return nil, fmt.Errorf("write void status: %w", err)
	}
	if !ok {
		return nil, domain.WrapError(domain.ErrConflict, "void transaction",
			fmt.Errorf("status changed concurrently"))
	}
	return &domain.TransactionStatusRow{
		TransactionID: transactionID,
		Status:        domain.StatusVoid,
		UpdatedAt:     time.Now().UTC(),
	}, nil
}

func (s *RollupService) currentStatus(ctx context.Context, transactionID string, fallback domain.LifecycleStatus) (domain.LifecycleStatus, error) {
	row, err := s.status.Get(ctx, transactionID)
	if err == nil {
		return row.Status, nil
	}
	if !domain.IsKind(err, domain.ErrTransactionNotFound) {
		return "", fmt.Errorf("load current status: %w", err)
	}
	// First rollup for this transaction: materialize the row.
	if err := s.status.Init(ctx, transactionID, fallback); err != nil {
		return "", fmt.Errorf("init status row: %w", err)
	}
	return fallback, nil
}

func (s *RollupService) noOp(transactionID string, status domain.LifecycleStatus) *domain.TransactionStatusRow {
	return &domain.TransactionStatusRow{
		TransactionID: transactionID,
		Status:        status,
		NoOp:          true,
		UpdatedAt:     time.Now().UTC(),
	}
}

// foldResults applies the aggregation precedence over the latest result per
// check. The status enum is closed; every variant is handled explicitly.
func foldResults(latest []domain.CheckResult) (domain.LifecycleStatus, map[string]any) {
	var (
		criticalFail bool
		anyFail      bool
		pendingHITL  bool
		anyWarn      bool
		otherPending bool
		failing      []string
	)

	for i := range latest {
		r := &latest[i]
		switch r.Status {
		case domain.CheckFail:
			anyFail = true
			failing = append(failing, r.CheckKey)
			if r.Severity == domain.SeverityCritical {
				criticalFail = true
			}
		case domain.CheckPending:
			if r.HITL {
				pendingHITL = true
				failing = append(failing, r.CheckKey)
			} else {
				otherPending = true
			}
		case domain.CheckWarn:
			anyWarn = true
		case domain.CheckPass, domain.CheckNA:
		}
	}

	details := map[string]any{"checks_considered": len(latest)}
	if len(failing) > 0 {
		details["attention_checks"] = failing
	}

	switch {
	case criticalFail:
		return domain.StatusBlocked, details
	case anyFail || pendingHITL:
		return domain.StatusPendingHITL, details
	case anyWarn || otherPending:
		return domain.StatusOpen, details
	default:
		return domain.StatusReadyToClose, details
	}
}
