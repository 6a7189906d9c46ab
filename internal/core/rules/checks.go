package rules

import (
	"fmt"
	"time"

	"github.com/closedesk/closedesk-backend/internal/core/domain"
)

// Well-known check keys and extracted field names the built-in checks
// look for. Extractors (outside this system) emit fields under these names.
const (
	KeyEMDTimeline     = "emd_timeline"
	KeyCashProofLetter = "cash_proof_letter"
	KeyAppraisalMarked = "appraisal_marked"
	KeyEsignAuditTrail = "esign_audit_trail"

	FieldEarnestMoneyReceipt = "earnest_money_receipt"
	FieldProofOfFunds        = "proof_of_funds"

	EsignStatusCompleted = "completed"
)

// emdWarnWindow is how close to the earnest-money due date a missing
// receipt turns into a warning.
const emdWarnWindow = 48 * time.Hour

// EMDTimeline verifies the earnest money deposit was receipted before
// binding date + due days.
type EMDTimeline struct{}

func (c *EMDTimeline) Key() string { return KeyEMDTimeline }

func (c *EMDTimeline) Evaluate(s *Snapshot) Outcome {
	t := &s.Transaction

	if t.Financing == domain.FinancingUnspecified || t.Financing == "" ||
		(t.EarnestMoneyAmount == nil && t.EarnestMoneyDueDays == nil) {
		return Outcome{
			Status:  domain.CheckNA,
			Details: map[string]any{"reason": "financing or earnest money terms not set"},
		}
	}

	if t.BindingAgreementDate == nil || t.EarnestMoneyDueDays == nil {
		return Outcome{
			Status: domain.CheckPending,
			Details: map[string]any{
				"reason": "binding agreement date or due days missing, cannot compute deadline",
			},
		}
	}

	dueBy := t.BindingAgreementDate.AddDate(0, 0, *t.EarnestMoneyDueDays)
	details := map[string]any{
		"due_by": dueBy.Format("2006-01-02"),
		"holder": holderName(t),
	}

	if s.HasField(FieldEarnestMoneyReceipt) {
		return Outcome{Status: domain.CheckPass, Details: details}
	}

	now := s.Now
	switch {
	case now.After(dueBy):
		details["days_overdue"] = daysBetween(dueBy, now)
		details["reason"] = "earnest money receipt missing past due date"
		return Outcome{Status: domain.CheckFail, Details: details}
	case dueBy.Sub(now) <= emdWarnWindow:
		details["days_remaining"] = daysBetween(now, dueBy)
		details["reason"] = "earnest money due soon and no receipt on file"
		return Outcome{Status: domain.CheckWarn, Details: details}
	default:
		return Outcome{Status: domain.CheckPass, Details: details}
	}
}

func holderName(t *domain.Transaction) string {
	if t.EarnestMoneyHolder != "" {
		return t.EarnestMoneyHolder
	}
	return "unspecified"
}

func daysBetween(from, to time.Time) int {
	d := to.Sub(from)
	if d < 0 {
		d = -d
	}
	return int(d / (24 * time.Hour))
}

// CashProofLetter requires a proof-of-funds letter on cash deals.
type CashProofLetter struct{}

func (c *CashProofLetter) Key() string { return KeyCashProofLetter }

func (c *CashProofLetter) Evaluate(s *Snapshot) Outcome {
	if s.Transaction.Financing != domain.FinancingCash {
		return Outcome{
			Status:  domain.CheckNA,
			Details: map[string]any{"reason": "financing is not cash"},
		}
	}

	docID, found := s.FieldOnDocTypes(FieldProofOfFunds, domain.DocDisclosure, domain.DocOther)
	if !found {
		return Outcome{
			Status:  domain.CheckFail,
			Details: map[string]any{"reason": "no proof of funds letter on file for cash purchase"},
		}
	}
	return Outcome{Status: domain.CheckPass, DocumentID: docID}
}

// AppraisalMarked requires the appraisal contingency to be marked one way
// or the other.
type AppraisalMarked struct{}

func (c *AppraisalMarked) Key() string { return KeyAppraisalMarked }

func (c *AppraisalMarked) Evaluate(s *Snapshot) Outcome {
	if s.Transaction.Appraisal == domain.AppraisalUnspecified || s.Transaction.Appraisal == "" {
		return Outcome{
			Status:  domain.CheckFail,
			Details: map[string]any{"reason": "appraisal contingency not marked"},
		}
	}
	return Outcome{Status: domain.CheckPass}
}

// EsignAuditTrail requires a certificate-of-completion audit trail document
// once any document was signed through an e-sign provider.
type EsignAuditTrail struct{}

func (c *EsignAuditTrail) Key() string { return KeyEsignAuditTrail }

func (c *EsignAuditTrail) Evaluate(s *Snapshot) Outcome {
	var signed []string
	hasAuditTrail := false
	for i := range s.Documents {
		doc := &s.Documents[i]
		if doc.DocType == domain.DocAuditTrail {
			hasAuditTrail = true
		}
		if doc.ReceivedVia == domain.ReceivedEsign && doc.EsignStatus == EsignStatusCompleted {
			signed = append(signed, doc.ID)
		}
	}

	if len(signed) == 0 {
		return Outcome{
			Status:  domain.CheckNA,
			Details: map[string]any{"reason": "no completed e-sign envelopes"},
		}
	}
	if !hasAuditTrail {
		return Outcome{
			Status: domain.CheckFail,
			Details: map[string]any{
				"reason": fmt.Sprintf("%d completed e-sign document(s) without an audit trail document", len(signed)),
			},
			DocumentID: signed[0],
		}
	}
	return Outcome{Status: domain.CheckPass, DocumentID: signed[0]}
}
