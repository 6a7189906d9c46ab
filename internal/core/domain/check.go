package domain

import "time"

type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

func (s Severity) Valid() bool {
	switch s {
	case SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical:
		return true
	}
	return false
}

type CheckStatus string

const (
	CheckPass    CheckStatus = "pass"
	CheckFail    CheckStatus = "fail"
	CheckWarn    CheckStatus = "warn"
	CheckNA      CheckStatus = "na"
	CheckPending CheckStatus = "pending"
)

func (s CheckStatus) Valid() bool {
	switch s {
	case CheckPass, CheckFail, CheckWarn, CheckNA, CheckPending:
		return true
	}
	return false
}

// CheckDefinition is immutable reference data describing one compliance rule.
type CheckDefinition struct {
	Key          string   `json:"key"`
	Title        string   `json:"title"`
	Description  string   `json:"description,omitempty"`
	Severity     Severity `json:"severity"`
	HITL         bool     `json:"hitl"`
	ResolverHint string   `json:"resolver_hint,omitempty"`
}

func (d *CheckDefinition) Validate() error {
	if d.Key == "" {
		return WrapError(ErrInvalidInput, "validate check definition", errRequired("key"))
	}
	if !d.Severity.Valid() {
		return WrapError(ErrInvalidInput, "validate check definition", errEnum("severity", string(d.Severity)))
	}
	return nil
}

// RulePack is a named bundle of checks with per-check weights. Association
// of packs to transactions happens outside this system.
type RulePack struct {
	Code   string          `json:"code"`
	Title  string          `json:"title,omitempty"`
	Checks []RulePackCheck `json:"checks"`
}

type RulePackCheck struct {
	CheckKey string  `json:"check_key"`
	Weight   float64 `json:"weight"`
}

// CheckResult is one evaluation outcome. Results are append-only: every
// evaluation writes a new row, the current outcome for a (transaction,
// check) pair is the most recent row by created_at, ties broken by the
// highest insertion sequence.
type CheckResult struct {
	Seq           int64          `json:"seq,omitempty"`
	TransactionID string         `json:"transaction_id"`
	DocumentID    string         `json:"document_id,omitempty"`
	CheckKey      string         `json:"check_key"`
	Status        CheckStatus    `json:"status"`
	Severity      Severity       `json:"severity"`
	HITL          bool           `json:"hitl"`
	Details       map[string]any `json:"details,omitempty"`
	CreatedAt     time.Time      `json:"created_at"`
}

func (r *CheckResult) Validate() error {
	if r.TransactionID == "" {
		return WrapError(ErrInvalidInput, "validate check result", errRequired("transaction_id"))
	}
	if r.CheckKey == "" {
		return WrapError(ErrInvalidInput, "validate check result", errRequired("check_key"))
	}
	if !r.Status.Valid() {
		return WrapError(ErrInvalidInput, "validate check result", errEnum("status", string(r.Status)))
	}
	if r.Status != CheckPass && len(r.Details) == 0 {
		return WrapError(ErrInvalidInput, "validate check result", errRequired("details"))
	}
	return nil
}
