package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/closedesk/closedesk-backend/internal/core/domain"
)

type TransactionRepository struct {
	db *sql.DB
}

func NewTransactionRepository(db *sql.DB) *TransactionRepository {
	return &TransactionRepository{db: db}
}

func (r *TransactionRepository) Create(ctx context.Context, t *domain.Transaction) error {
	if err := t.Validate(); err != nil {
		return err
	}

	stipsJSON, err := json.Marshal(stipulationsOrEmpty(t.SpecialStipulations))
	if err != nil {
		return fmt.Errorf("marshal stipulations: %w", err)
	}

	now := time.Now().UTC()
	if t.CreatedAt.IsZero() {
		t.CreatedAt = now
	}
	t.UpdatedAt = now

	_, err = r.db.ExecContext(ctx, `
INSERT INTO transactions (
	id, deal_code, address_line1, address_line2, city, state, postal_code,
	purchase_price, currency, financing, appraisal,
	earnest_money_amount, earnest_money_due_days, earnest_money_holder_name,
	binding_agreement_date, closing_date, form_name, form_version,
	special_stipulations, status, created_at, updated_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22)
`,
		t.ID, nullString(t.DealCode), t.AddressLine1, t.AddressLine2, t.City, t.State, t.PostalCode,
		t.PurchasePrice, nullString(t.Currency), string(t.Financing), string(t.Appraisal),
		t.EarnestMoneyAmount, t.EarnestMoneyDueDays, t.EarnestMoneyHolder,
		t.BindingAgreementDate, t.ClosingDate, t.FormName, t.FormVersion,
		stipsJSON, string(t.Status), t.CreatedAt, t.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert transaction: %w", err)
	}
	return nil
}

func (r *TransactionRepository) GetByID(ctx context.Context, id string) (*domain.Transaction, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT id, deal_code, address_line1, address_line2, city, state, postal_code,
	purchase_price, currency, financing, appraisal,
	earnest_money_amount, earnest_money_due_days, earnest_money_holder_name,
	binding_agreement_date, closing_date, form_name, form_version,
	special_stipulations, status, created_at, updated_at
FROM transactions
WHERE id = $1
`, id)

	var (
		t         domain.Transaction
		dealCode  sql.NullString
		currency  sql.NullString
		holder    sql.NullString
		formName  sql.NullString
		formVer   sql.NullString
		addr1     sql.NullString
		addr2     sql.NullString
		city      sql.NullString
		state     sql.NullString
		postal    sql.NullString
		stipsRaw  []byte
		financing string
		appraisal string
		status    string
	)

	err := row.Scan(
		&t.ID, &dealCode, &addr1, &addr2, &city, &state, &postal,
		&t.PurchasePrice, &currency, &financing, &appraisal,
		&t.EarnestMoneyAmount, &t.EarnestMoneyDueDays, &holder,
		&t.BindingAgreementDate, &t.ClosingDate, &formName, &formVer,
		&stipsRaw, &status, &t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.WrapError(domain.ErrTransactionNotFound, "get transaction", fmt.Errorf("id %s", id))
		}
		return nil, fmt.Errorf("scan transaction: %w", err)
	}

	if err := json.Unmarshal(stipsRaw, &t.SpecialStipulations); err != nil {
		return nil, fmt.Errorf("unmarshal stipulations: %w", err)
	}
	t.DealCode = dealCode.String
	t.AddressLine1 = addr1.String
	t.AddressLine2 = addr2.String
	t.City = city.String
	t.State = state.String
	t.PostalCode = postal.String
	t.Currency = currency.String
	t.EarnestMoneyHolder = holder.String
	t.FormName = formName.String
	t.FormVersion = formVer.String
	t.Financing = domain.FinancingType(financing)
	t.Appraisal = domain.AppraisalStatus(appraisal)
	t.Status = domain.LifecycleStatus(status)
	return &t, nil
}

func (r *TransactionRepository) AddParty(ctx context.Context, p *domain.Party) error {
	if err := p.Validate(); err != nil {
		return err
	}

	_, err := r.db.ExecContext(ctx, `
INSERT INTO parties (id, transaction_id, role, full_name, firm, license_no, email, phone, address)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
`, p.ID, p.TransactionID, string(p.Role), p.FullName, p.Firm, p.LicenseNo, p.Email, p.Phone, p.Address)
	if err != nil {
		if violatesForeignKey(err) {
			return domain.WrapError(domain.ErrTransactionNotFound, "insert party",
				fmt.Errorf("transaction %s", p.TransactionID))
		}
		return fmt.Errorf("insert party: %w", err)
	}
	return r.touch(ctx, p.TransactionID)
}

func (r *TransactionRepository) ListParties(ctx context.Context, transactionID string) ([]domain.Party, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT id, transaction_id, role, full_name, COALESCE(firm,''), COALESCE(license_no,''),
	COALESCE(email,''), COALESCE(phone,''), COALESCE(address,'')
FROM parties
WHERE transaction_id = $1
ORDER BY role, full_name
`, transactionID)
	if err != nil {
		return nil, fmt.Errorf("query parties: %w", err)
	}
	defer rows.Close()

	var parties []domain.Party
	for rows.Next() {
		var p domain.Party
		var role string
		if err := rows.Scan(&p.ID, &p.TransactionID, &role, &p.FullName, &p.Firm, &p.LicenseNo, &p.Email, &p.Phone, &p.Address); err != nil {
			return nil, fmt.Errorf("scan party: %w", err)
		}
		p.Role = domain.PartyRole(role)
		parties = append(parties, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate parties: %w", err)
	}
	return parties, nil
}

// touch keeps updated_at accurate on every mutation reaching the transaction.
func (r *TransactionRepository) touch(ctx context.Context, transactionID string) error {
	_, err := r.db.ExecContext(ctx, `
UPDATE transactions SET updated_at = $2 WHERE id = $1
`, transactionID, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("touch transaction: %w", err)
	}
	return nil
}

func stipulationsOrEmpty(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
