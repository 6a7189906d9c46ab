package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/closedesk/closedesk-backend/internal/core/domain"
)

func TestCreateTransactionRejectsNegativePriceBeforeWrite(t *testing.T) {
	db, mock, done := newMockDB(t)
	defer done()
	repo := NewTransactionRepository(db)

	price := -1.0
	err := repo.Create(context.Background(), &domain.Transaction{
		ID:            "tx-1",
		PurchasePrice: &price,
		Financing:     domain.FinancingCash,
		Appraisal:     domain.AppraisalWaived,
		Status:        domain.StatusDraft,
	})
	if !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("no SQL should run for invalid input: %v", err)
	}
}

func TestGetTransactionDecodesEnumsAndStipulations(t *testing.T) {
	db, mock, done := newMockDB(t)
	defer done()
	repo := NewTransactionRepository(db)

	now := time.Now().UTC()
	bindDate := now.Add(-72 * time.Hour)
	mock.ExpectQuery("SELECT (.+) FROM transactions").
		WithArgs("tx-1").
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "deal_code", "address_line1", "address_line2", "city", "state", "postal_code",
			"purchase_price", "currency", "financing", "appraisal",
			"earnest_money_amount", "earnest_money_due_days", "earnest_money_holder_name",
			"binding_agreement_date", "closing_date", "form_name", "form_version",
			"special_stipulations", "status", "created_at", "updated_at",
		}).AddRow(
			"tx-1", "GA-77", "12 Peachtree St", "", "Atlanta", "GA", "30303",
			450000.0, "USD", "conventional", "contingent",
			5000.0, 3, "Closer LLC",
			bindDate, nil, "GAR F201", "2024",
			[]byte(`["sold as-is"]`), "open", now, now,
		))

	tx, err := repo.GetByID(context.Background(), "tx-1")
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if tx.Financing != domain.FinancingConventional {
		t.Fatalf("expected conventional financing, got %s", tx.Financing)
	}
	if tx.Status != domain.StatusOpen {
		t.Fatalf("expected open status, got %s", tx.Status)
	}
	if len(tx.SpecialStipulations) != 1 || tx.SpecialStipulations[0] != "sold as-is" {
		t.Fatalf("expected stipulations decoded, got %v", tx.SpecialStipulations)
	}
	if tx.BindingAgreementDate == nil || !tx.BindingAgreementDate.Equal(bindDate) {
		t.Fatalf("expected binding agreement date %v, got %v", bindDate, tx.BindingAgreementDate)
	}
	if tx.ClosingDate != nil {
		t.Fatalf("expected nil closing date, got %v", tx.ClosingDate)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestGetTransactionUnknownIDIsNotFound(t *testing.T) {
	db, mock, done := newMockDB(t)
	defer done()
	repo := NewTransactionRepository(db)

	mock.ExpectQuery("SELECT (.+) FROM transactions").
		WithArgs("tx-missing").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err := repo.GetByID(context.Background(), "tx-missing")
	if !domain.IsKind(err, domain.ErrTransactionNotFound) {
		t.Fatalf("expected ErrTransactionNotFound, got %v", err)
	}
}

func TestAddPartyTouchesOwningTransaction(t *testing.T) {
	db, mock, done := newMockDB(t)
	defer done()
	repo := NewTransactionRepository(db)

	mock.ExpectExec("INSERT INTO parties").
		WithArgs("p-1", "tx-1", "buyer", "Ann Buyer", "", "", "", "", "").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE transactions SET updated_at").
		WithArgs("tx-1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.AddParty(context.Background(), &domain.Party{
		ID:            "p-1",
		TransactionID: "tx-1",
		Role:          domain.RoleBuyer,
		FullName:      "Ann Buyer",
	})
	if err != nil {
		t.Fatalf("AddParty() error = %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestAddPartyUnknownTransactionIsNotFound(t *testing.T) {
	db, mock, done := newMockDB(t)
	defer done()
	repo := NewTransactionRepository(db)

	mock.ExpectExec("INSERT INTO parties").
		WithArgs("p-1", "tx-missing", "buyer", "Ann Buyer", "", "", "", "", "").
		WillReturnError(&pgconn.PgError{
			Code:           "23503",
			ConstraintName: "parties_transaction_id_fkey",
		})

	err := repo.AddParty(context.Background(), &domain.Party{
		ID:            "p-1",
		TransactionID: "tx-missing",
		Role:          domain.RoleBuyer,
		FullName:      "Ann Buyer",
	})
	if !domain.IsKind(err, domain.ErrTransactionNotFound) {
		t.Fatalf("expected ErrTransactionNotFound, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestAddPartyRejectsUnknownRole(t *testing.T) {
	db, mock, done := newMockDB(t)
	defer done()
	repo := NewTransactionRepository(db)

	err := repo.AddParty(context.Background(), &domain.Party{
		ID:            "p-1",
		TransactionID: "tx-1",
		Role:          domain.PartyRole("landlord"),
		FullName:      "Ann Buyer",
	})
	if !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("no SQL should run for invalid input: %v", err)
	}
}
