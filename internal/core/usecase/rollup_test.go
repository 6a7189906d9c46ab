package usecase

import (
	"context"
	"testing"

	"github.com/closedesk/closedesk-backend/internal/core/domain"
)

func result(key string, status domain.CheckStatus, severity domain.Severity, hitl bool) domain.CheckResult {
	return domain.CheckResult{
		TransactionID: "tx-1",
		CheckKey:      key,
		Status:        status,
		Severity:      severity,
		HITL:          hitl,
	}
}

func newRollupService(tx *domain.Transaction, latest []domain.CheckResult, status *fakeStatus) *RollupService {
	return NewRollupService(
		&fakeTxRepo{tx: tx},
		&fakeResults{latest: latest},
		status,
		3,
		nil,
	)
}

func openDeal() *domain.Transaction {
	return &domain.Transaction{
		ID:        "tx-1",
		Financing: domain.FinancingConventional,
		Appraisal: domain.AppraisalWaived,
		Status:    domain.StatusOpen,
	}
}

func TestRollupCriticalFailForcesBlocked(t *testing.T) {
	latest := []domain.CheckResult{
		result("a", domain.CheckPass, domain.SeverityLow, false),
		result("b", domain.CheckFail, domain.SeverityCritical, false),
		result("c", domain.CheckWarn, domain.SeverityHigh, false),
		result("d", domain.CheckFail, domain.SeverityHigh, true),
	}
	status := newFakeStatus()
	status.rows["tx-1"] = domain.StatusOpen

	row, err := newRollupService(openDeal(), latest, status).Rollup(context.Background(), "tx-1")
	if err != nil {
		t.Fatalf("Rollup() error = %v", err)
	}
	if row.Status != domain.StatusBlocked {
		t.Fatalf("expected blocked, got %s", row.Status)
	}
}

func TestRollupHighFailIsPendingHITLNotBlocked(t *testing.T) {
	latest := []domain.CheckResult{
		result("emd_timeline", domain.CheckFail, domain.SeverityHigh, true),
		result("appraisal_marked", domain.CheckPass, domain.SeverityMedium, false),
	}
	status := newFakeStatus()
	status.rows["tx-1"] = domain.StatusOpen

	row, err := newRollupService(openDeal(), latest, status).Rollup(context.Background(), "tx-1")
	if err != nil {
		t.Fatalf("Rollup() error = %v", err)
	}
	if row.Status != domain.StatusPendingHITL {
		t.Fatalf("expected pending_hitl for high fail, got %s", row.Status)
	}
}

func TestRollupWarnKeepsOpen(t *testing.T) {
	latest := []domain.CheckResult{
		result("a", domain.CheckWarn, domain.SeverityMedium, false),
		result("b", domain.CheckPass, domain.SeverityLow, false),
	}
	status := newFakeStatus()
	status.rows["tx-1"] = domain.StatusOpen

	row, err := newRollupService(openDeal(), latest, status).Rollup(context.Background(), "tx-1")
	if err != nil {
		t.Fatalf("Rollup() error = %v", err)
	}
	if row.Status != domain.StatusOpen {
		t.Fatalf("expected open, got %s", row.Status)
	}
}

func TestRollupAllPassOrNAIsReadyToClose(t *testing.T) {
	latest := []domain.CheckResult{
		result("a", domain.CheckPass, domain.SeverityHigh, false),
		result("b", domain.CheckNA, domain.SeverityCritical, false),
	}
	status := newFakeStatus()
	status.rows["tx-1"] = domain.StatusOpen

	row, err := newRollupService(openDeal(), latest, status).Rollup(context.Background(), "tx-1")
	if err != nil {
		t.Fatalf("Rollup() error = %v", err)
	}
	if row.Status != domain.StatusReadyToClose {
		t.Fatalf("expected ready_to_close, got %s", row.Status)
	}
}

func TestRollupPendingNonHITLKeepsOpen(t *testing.T) {
	latest := []domain.CheckResult{
		result("a", domain.CheckPending, domain.SeverityLow, false),
		result("b", domain.CheckPass, domain.SeverityLow, false),
	}
	status := newFakeStatus()
	status.rows["tx-1"] = domain.StatusOpen

	row, err := newRollupService(openDeal(), latest, status).Rollup(context.Background(), "tx-1")
	if err != nil {
		t.Fatalf("Rollup() error = %v", err)
	}
	if row.Status != domain.StatusOpen {
		t.Fatalf("expected open for non-hitl pending, got %s", row.Status)
	}
}

func TestRollupIdempotent(t *testing.T) {
	latest := []domain.CheckResult{
		result("a", domain.CheckFail, domain.SeverityHigh, true),
	}
	status := newFakeStatus()
	status.rows["tx-1"] = domain.StatusOpen
	svc := newRollupService(openDeal(), latest, status)

	first, err := svc.Rollup(context.Background(), "tx-1")
	if err != nil {
		t.Fatalf("first Rollup() error = %v", err)
	}
	second, err := svc.Rollup(context.Background(), "tx-1")
	if err != nil {
		t.Fatalf("second Rollup() error = %v", err)
	}
	if first.Status != second.Status {
		t.Fatalf("rollup not idempotent: %s then %s", first.Status, second.Status)
	}
}

func TestRollupPreservesTerminalStates(t *testing.T) {
	latest := []domain.CheckResult{
		result("a", domain.CheckFail, domain.SeverityCritical, false),
	}

	for _, terminal := range []domain.LifecycleStatus{domain.StatusClosed, domain.StatusVoid} {
		status := newFakeStatus()
		status.rows["tx-1"] = terminal

		row, err := newRollupService(openDeal(), latest, status).Rollup(context.Background(), "tx-1")
		if err != nil {
			t.Fatalf("Rollup() on %s error = %v", terminal, err)
		}
		if !row.NoOp {
			t.Fatalf("expected no-op on terminal status %s", terminal)
		}
		if row.Status != terminal {
			t.Fatalf("expected %s preserved, got %s", terminal, row.Status)
		}
	}
}

func TestRollupVoidTransactionOverridesEverything(t *testing.T) {
	tx := openDeal()
	tx.Status = domain.StatusVoid
	latest := []domain.CheckResult{
		result("a", domain.CheckPass, domain.SeverityLow, false),
	}
	status := newFakeStatus()
	status.rows["tx-1"] = domain.StatusOpen

	row, err := newRollupService(tx, latest, status).Rollup(context.Background(), "tx-1")
	if err != nil {
		t.Fatalf("Rollup() error = %v", err)
	}
	if row.Status != domain.StatusVoid || !row.NoOp {
		t.Fatalf("expected void no-op, got %s no_op=%v", row.Status, row.NoOp)
	}
}

func TestRollupNoResultsIsNoOp(t *testing.T) {
	status := newFakeStatus()
	tx := openDeal()
	tx.Status = domain.StatusDraft

	row, err := newRollupService(tx, nil, status).Rollup(context.Background(), "tx-1")
	if err != nil {
		t.Fatalf("Rollup() error = %v", err)
	}
	if !row.NoOp || row.Status != domain.StatusDraft {
		t.Fatalf("expected draft no-op, got %s no_op=%v", row.Status, row.NoOp)
	}
}

func TestRollupRetriesConditionalWriteThenSurfacesConflict(t *testing.T) {
	latest := []domain.CheckResult{
		result("a", domain.CheckPass, domain.SeverityLow, false),
	}
	status := newFakeStatus()
	status.rows["tx-1"] = domain.StatusOpen
	status.casFails = 2
	svc := newRollupService(openDeal(), latest, status)

	row, err := svc.Rollup(context.Background(), "tx-1")
	if err != nil {
		t.Fatalf("expected success within retry bound, got %v", err)
	}
	if row.Status != domain.StatusReadyToClose {
		t.Fatalf("expected ready_to_close, got %s", row.Status)
	}
	if status.casCalls != 3 {
		t.Fatalf("expected 3 conditional writes, got %d", status.casCalls)
	}

	status.casFails = 5
	if _, err := svc.Rollup(context.Background(), "tx-1"); !domain.IsKind(err, domain.ErrConflict) {
		t.Fatalf("expected ErrConflict after exhausting retries, got %v", err)
	}
}

func TestCloseOnlyFromReadyToClose(t *testing.T) {
	status := newFakeStatus()
	status.rows["tx-1"] = domain.StatusOpen
	svc := newRollupService(openDeal(), nil, status)

	if _, err := svc.Close(context.Background(), "tx-1"); !domain.IsKind(err, domain.ErrInconsistentState) {
		t.Fatalf("expected ErrInconsistentState closing from open, got %v", err)
	}

	status.rows["tx-1"] = domain.StatusReadyToClose
	row, err := svc.Close(context.Background(), "tx-1")
	if err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if row.Status != domain.StatusClosed {
		t.Fatalf("expected closed, got %s", row.Status)
	}

	// Closing twice is a no-op, not an error.
	row, err = svc.Close(context.Background(), "tx-1")
	if err != nil {
		t.Fatalf("second Close() error = %v", err)
	}
	if !row.NoOp {
		t.Fatalf("expected no-op on second close")
	}
}

func TestVoidPermittedFromClosed(t *testing.T) {
	status := newFakeStatus()
	status.rows["tx-1"] = domain.StatusClosed
	svc := newRollupService(openDeal(), nil, status)

	row, err := svc.Void(context.Background(), "tx-1")
	if err != nil {
		t.Fatalf("Void() error = %v", err)
	}
	if row.Status != domain.StatusVoid {
		t.Fatalf("expected void, got %s", row.Status)
	}

	row, err = svc.Void(context.Background(), "tx-1")
	if err != nil {
		t.Fatalf("second Void() error = %v", err)
	}
	if !row.NoOp {
		t.Fatalf("expected no-op voiding a void transaction")
	}
}
