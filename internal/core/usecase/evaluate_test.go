package usecase

import (
	"context"
	"testing"
	"time"

	"github.com/closedesk/closedesk-backend/internal/core/domain"
	"github.com/closedesk/closedesk-backend/internal/core/rules"
)

func fixedClock() time.Time {
	return time.Date(2026, 3, 6, 12, 0, 0, 0, time.UTC)
}

func testDefs() map[string]domain.CheckDefinition {
	return map[string]domain.CheckDefinition{
		rules.KeyEMDTimeline: {
			Key: rules.KeyEMDTimeline, Title: "Earnest money timeline",
			Severity: domain.SeverityHigh, HITL: true,
		},
		rules.KeyCashProofLetter: {
			Key: rules.KeyCashProofLetter, Title: "Cash proof of funds",
			Severity: domain.SeverityHigh, HITL: true,
		},
		rules.KeyAppraisalMarked: {
			Key: rules.KeyAppraisalMarked, Title: "Appraisal contingency marked",
			Severity: domain.SeverityMedium,
		},
	}
}

func packFrom(defs map[string]domain.CheckDefinition) []domain.CheckDefinition {
	out := make([]domain.CheckDefinition, 0, len(defs))
	for _, d := range defs {
		out = append(out, d)
	}
	return out
}

func cashDeal() *domain.Transaction {
	return &domain.Transaction{
		ID:        "tx-1",
		Financing: domain.FinancingCash,
		Appraisal: domain.AppraisalWaived,
		Status:    domain.StatusOpen,
	}
}

func newEvaluateService(txRepo *fakeTxRepo, docRepo *fakeDocRepo, catalog *fakeCatalog, results *fakeResults) *EvaluateService {
	return NewEvaluateService(
		txRepo, docRepo, catalog, results,
		rules.NewBuiltInRegistry(), "ga-default", 2, nil,
	).WithClock(fixedClock)
}

func TestEvaluateAppendsNewRowEveryCall(t *testing.T) {
	defs := testDefs()
	results := &fakeResults{}
	svc := newEvaluateService(
		&fakeTxRepo{tx: cashDeal()},
		&fakeDocRepo{},
		&fakeCatalog{defs: defs},
		results,
	)

	first, err := svc.Evaluate(context.Background(), "tx-1", rules.KeyCashProofLetter)
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
	if first.Status != domain.CheckFail {
		t.Fatalf("expected fail without proof of funds, got %s", first.Status)
	}

	second, err := svc.Evaluate(context.Background(), "tx-1", rules.KeyCashProofLetter)
	if err != nil {
		t.Fatalf("second Evaluate() error = %v", err)
	}
	if results.count() != 2 {
		t.Fatalf("expected 2 appended rows, got %d", results.count())
	}
	if second.Seq == first.Seq {
		t.Fatalf("expected a new row, both have seq %d", first.Seq)
	}
	// Idempotent at definition level: same inputs, same outcome.
	if second.Status != first.Status {
		t.Fatalf("expected identical status on re-evaluation, got %s then %s", first.Status, second.Status)
	}
}

func TestEvaluateScenarioCashProofRecovers(t *testing.T) {
	defs := testDefs()
	docRepo := &fakeDocRepo{}
	results := &fakeResults{}
	svc := newEvaluateService(&fakeTxRepo{tx: cashDeal()}, docRepo, &fakeCatalog{defs: defs}, results)

	out, err := svc.Evaluate(context.Background(), "tx-1", rules.KeyCashProofLetter)
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
	if out.Status != domain.CheckFail {
		t.Fatalf("expected fail, got %s", out.Status)
	}

	docRepo.docs = []domain.Document{{ID: "doc-1", TransactionID: "tx-1", DocType: domain.DocDisclosure}}
	docRepo.fields = []domain.DocField{{
		DocumentID: "doc-1", FieldName: rules.FieldProofOfFunds, Kind: domain.FieldText, Confidence: 0.95,
	}}

	out, err = svc.Evaluate(context.Background(), "tx-1", rules.KeyCashProofLetter)
	if err != nil {
		t.Fatalf("Evaluate() after field added error = %v", err)
	}
	if out.Status != domain.CheckPass {
		t.Fatalf("expected pass after proof of funds added, got %s", out.Status)
	}
}

func TestEvaluateUnknownCheckKey(t *testing.T) {
	svc := newEvaluateService(
		&fakeTxRepo{tx: cashDeal()},
		&fakeDocRepo{},
		&fakeCatalog{defs: testDefs()},
		&fakeResults{},
	)
	_, err := svc.Evaluate(context.Background(), "tx-1", "nonexistent_check")
	if !domain.IsKind(err, domain.ErrCheckNotFound) {
		t.Fatalf("expected ErrCheckNotFound, got %v", err)
	}
}

func TestEvaluateUnregisteredEvaluatorYieldsPending(t *testing.T) {
	defs := testDefs()
	defs["custom_rule"] = domain.CheckDefinition{
		Key: "custom_rule", Severity: domain.SeverityLow,
	}
	svc := newEvaluateService(
		&fakeTxRepo{tx: cashDeal()},
		&fakeDocRepo{},
		&fakeCatalog{defs: defs},
		&fakeResults{},
	)

	out, err := svc.Evaluate(context.Background(), "tx-1", "custom_rule")
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
	if out.Status != domain.CheckPending {
		t.Fatalf("expected pending for unregistered evaluator, got %s", out.Status)
	}
	if out.Details["reason"] == nil {
		t.Fatalf("pending result must carry a reason")
	}
}

type panickingCheck struct{}

func (panickingCheck) Key() string                         { return "panicking_check" }
func (panickingCheck) Evaluate(*rules.Snapshot) rules.Outcome { panic("boom") }

func TestEvaluateAllSurvivesPanickingCheck(t *testing.T) {
	defs := testDefs()
	defs["panicking_check"] = domain.CheckDefinition{Key: "panicking_check", Severity: domain.SeverityLow}

	registry := rules.NewBuiltInRegistry()
	if err := registry.Register(panickingCheck{}); err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	results := &fakeResults{}
	svc := NewEvaluateService(
		&fakeTxRepo{tx: cashDeal()},
		&fakeDocRepo{},
		&fakeCatalog{defs: defs, pack: packFrom(defs)},
		results,
		registry, "ga-default", 2, nil,
	).WithClock(fixedClock)

	out, err := svc.EvaluateAll(context.Background(), "tx-1")
	if err != nil {
		t.Fatalf("EvaluateAll() error = %v", err)
	}
	if len(out) != len(defs) {
		t.Fatalf("expected %d results, got %d", len(defs), len(out))
	}
	for _, r := range out {
		if r.CheckKey == "panicking_check" && r.Status != domain.CheckPending {
			t.Fatalf("expected pending for panicking check, got %s", r.Status)
		}
	}
}

func TestEvaluateAllReturnsSortedResults(t *testing.T) {
	defs := testDefs()
	svc := newEvaluateService(
		&fakeTxRepo{tx: cashDeal()},
		&fakeDocRepo{},
		&fakeCatalog{defs: defs, pack: packFrom(defs)},
		&fakeResults{},
	)

	out, err := svc.EvaluateAll(context.Background(), "tx-1")
	if err != nil {
		t.Fatalf("EvaluateAll() error = %v", err)
	}
	for i := 1; i < len(out); i++ {
		if out[i-1].CheckKey > out[i].CheckKey {
			t.Fatalf("results not sorted by check key: %s before %s", out[i-1].CheckKey, out[i].CheckKey)
		}
	}
}

func TestEvaluateAllEmptyPack(t *testing.T) {
	svc := newEvaluateService(
		&fakeTxRepo{tx: cashDeal()},
		&fakeDocRepo{},
		&fakeCatalog{defs: testDefs()},
		&fakeResults{},
	)
	_, err := svc.EvaluateAll(context.Background(), "tx-1")
	if !domain.IsKind(err, domain.ErrInconsistentState) {
		t.Fatalf("expected ErrInconsistentState for empty pack, got %v", err)
	}
}

func TestEvaluateAllCancelledContext(t *testing.T) {
	defs := testDefs()
	results := &fakeResults{}
	svc := newEvaluateService(
		&fakeTxRepo{tx: cashDeal()},
		&fakeDocRepo{},
		&fakeCatalog{defs: defs, pack: packFrom(defs)},
		results,
	)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := svc.EvaluateAll(ctx, "tx-1")
	if err == nil {
		t.Fatalf("expected context error")
	}
}
