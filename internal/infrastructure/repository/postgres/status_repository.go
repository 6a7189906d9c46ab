package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/closedesk/closedesk-backend/internal/core/domain"
)

// StatusRepository holds the single rollup row per transaction. The row is
// replaced in place; serialization against concurrent rollups comes from
// the conditional update on the prior status, not from locks.
type StatusRepository struct {
	db *sql.DB
}

func NewStatusRepository(db *sql.DB) *StatusRepository {
	return &StatusRepository{db: db}
}

func (r *StatusRepository) Get(ctx context.Context, transactionID string) (*domain.TransactionStatusRow, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT transaction_id, status, updated_at
FROM transaction_status
WHERE transaction_id = $1
`, transactionID)

	var out domain.TransactionStatusRow
	var status string
	if err := row.Scan(&out.TransactionID, &status, &out.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.WrapError(domain.ErrTransactionNotFound, "get status row",
				fmt.Errorf("transaction %s", transactionID))
		}
		return nil, fmt.Errorf("scan status row: %w", err)
	}
	out.Status = domain.LifecycleStatus(status)
	return &out, nil
}

func (r *StatusRepository) Init(ctx context.Context, transactionID string, status domain.LifecycleStatus) error {
	_, err := r.db.ExecContext(ctx, `
INSERT INTO transaction_status (transaction_id, status, updated_at)
VALUES ($1,$2,$3)
ON CONFLICT (transaction_id) DO NOTHING
`, transactionID, string(status), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("init status row: %w", err)
	}
	return nil
}

// CompareAndSet replaces the rollup row and mirrors the status onto the
// transaction, in one database transaction. Returns false without error
// when another writer got there first.
func (r *StatusRepository) CompareAndSet(ctx context.Context, transactionID string, prev, next domain.LifecycleStatus) (bool, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin status tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	now := time.Now().UTC()
	res, err := tx.ExecContext(ctx, `
UPDATE transaction_status
SET status = $3, updated_at = $4
WHERE transaction_id = $1 AND status = $2
`, transactionID, string(prev), string(next), now)
	if err != nil {
		return false, fmt.Errorf("conditional status update: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("status rows affected: %w", err)
	}
	if affected == 0 {
		return false, nil
	}

	if _, err := tx.ExecContext(ctx, `
UPDATE transactions SET status = $2, updated_at = $3 WHERE id = $1
`, transactionID, string(next), now); err != nil {
		return false, fmt.Errorf("mirror transaction status: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit status tx: %w", err)
	}
	return true, nil
}
