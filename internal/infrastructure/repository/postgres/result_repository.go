package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/closedesk/closedesk-backend/internal/core/domain"
)

// ResultRepository is the append-only check result log. Rows are never
// updated or deleted; the current outcome per (transaction, check) pair is
// the most recent row by created_at, ties broken by seq.
type ResultRepository struct {
	db *sql.DB
}

func NewResultRepository(db *sql.DB) *ResultRepository {
	return &ResultRepository{db: db}
}

func (r *ResultRepository) Append(ctx context.Context, result *domain.CheckResult) error {
	if err := result.Validate(); err != nil {
		return err
	}

	detailsJSON, err := json.Marshal(detailsOrEmpty(result.Details))
	if err != nil {
		return fmt.Errorf("marshal details: %w", err)
	}
	if result.CreatedAt.IsZero() {
		result.CreatedAt = time.Now().UTC()
	}

	row := r.db.QueryRowContext(ctx, `
INSERT INTO check_results (transaction_id, document_id, check_key, status, severity, hitl, details, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
RETURNING seq
`,
		result.TransactionID, nullString(result.DocumentID), result.CheckKey,
		string(result.Status), string(result.Severity), result.HITL,
		detailsJSON, result.CreatedAt,
	)
	if err := row.Scan(&result.Seq); err != nil {
		return fmt.Errorf("insert check result: %w", err)
	}
	return nil
}

// LatestPerCheck reads the current outcome for every check of one
// transaction in a single statement, which gives rollup its consistent
// snapshot: a concurrent evaluation batch is either entirely before or
// entirely after this read for each check.
func (r *ResultRepository) LatestPerCheck(ctx context.Context, transactionID string) ([]domain.CheckResult, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT DISTINCT ON (check_key)
	seq, transaction_id, COALESCE(document_id,''), check_key, status, severity, hitl, details, created_at
FROM check_results
WHERE transaction_id = $1
ORDER BY check_key, created_at DESC, seq DESC
`, transactionID)
	if err != nil {
		return nil, fmt.Errorf("query latest results: %w", err)
	}
	defer rows.Close()

	var results []domain.CheckResult
	for rows.Next() {
		var (
			result     domain.CheckResult
			status     string
			severity   string
			detailsRaw []byte
		)
		if err := rows.Scan(&result.Seq, &result.TransactionID, &result.DocumentID, &result.CheckKey,
			&status, &severity, &result.HITL, &detailsRaw, &result.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan check result: %w", err)
		}
		if err := json.Unmarshal(detailsRaw, &result.Details); err != nil {
			return nil, fmt.Errorf("unmarshal details: %w", err)
		}
		result.Status = domain.CheckStatus(status)
		result.Severity = domain.Severity(severity)
		results = append(results, result)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate check results: %w", err)
	}
	return results, nil
}

func detailsOrEmpty(d map[string]any) map[string]any {
	if d == nil {
		return map[string]any{}
	}
	return d
}
