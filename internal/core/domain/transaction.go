package domain

import "time"

type LifecycleStatus string

const (
	StatusDraft        LifecycleStatus = "draft"
	StatusOpen         LifecycleStatus = "open"
	StatusPendingHITL  LifecycleStatus = "pending_hitl"
	StatusBlocked      LifecycleStatus = "blocked"
	StatusReadyToClose LifecycleStatus = "ready_to_close"
	StatusClosed       LifecycleStatus = "closed"
	StatusVoid         LifecycleStatus = "void"
)

// Terminal reports whether rollup must refuse to overwrite the status.
// Only the manual void transition may replace a terminal status.
func (s LifecycleStatus) Terminal() bool {
	return s == StatusClosed || s == StatusVoid
}

func (s LifecycleStatus) Valid() bool {
	switch s {
	case StatusDraft, StatusOpen, StatusPendingHITL, StatusBlocked,
		StatusReadyToClose, StatusClosed, StatusVoid:
		return true
	}
	return false
}

type FinancingType string

const (
	FinancingCash         FinancingType = "cash"
	FinancingConventional FinancingType = "conventional"
	FinancingFHA          FinancingType = "fha"
	FinancingVA           FinancingType = "va"
	FinancingUSDA         FinancingType = "usda"
	FinancingOther        FinancingType = "other"
	FinancingUnspecified  FinancingType = "unspecified"
)

func (f FinancingType) Valid() bool {
	switch f {
	case FinancingCash, FinancingConventional, FinancingFHA, FinancingVA,
		FinancingUSDA, FinancingOther, FinancingUnspecified:
		return true
	}
	return false
}

type AppraisalStatus string

const (
	AppraisalContingent  AppraisalStatus = "contingent"
	AppraisalWaived      AppraisalStatus = "waived"
	AppraisalUnspecified AppraisalStatus = "unspecified"
)

func (a AppraisalStatus) Valid() bool {
	switch a {
	case AppraisalContingent, AppraisalWaived, AppraisalUnspecified:
		return true
	}
	return false
}

type PartyRole string

const (
	RoleBuyer              PartyRole = "buyer"
	RoleSeller             PartyRole = "seller"
	RoleListingAgent       PartyRole = "listing_agent"
	RoleSellingAgent       PartyRole = "selling_agent"
	RoleClosingAgency      PartyRole = "closing_agency"
	RoleEarnestMoneyHolder PartyRole = "earnest_money_holder"
	RoleLender             PartyRole = "lender"
	RoleOtherParty         PartyRole = "other"
)

func (r PartyRole) Valid() bool {
	switch r {
	case RoleBuyer, RoleSeller, RoleListingAgent, RoleSellingAgent,
		RoleClosingAgency, RoleEarnestMoneyHolder, RoleLender, RoleOtherParty:
		return true
	}
	return false
}

// Transaction is a closing deal. Soft lifecycle only: a transaction is
// voided, never hard-deleted.
type Transaction struct {
	ID                    string          `json:"id"`
	DealCode              string          `json:"deal_code,omitempty"`
	AddressLine1          string          `json:"address_line1,omitempty"`
	AddressLine2          string          `json:"address_line2,omitempty"`
	City                  string          `json:"city,omitempty"`
	State                 string          `json:"state,omitempty"`
	PostalCode            string          `json:"postal_code,omitempty"`
	PurchasePrice         *float64        `json:"purchase_price,omitempty"`
	Currency              string          `json:"currency,omitempty"`
	Financing             FinancingType   `json:"financing"`
	Appraisal             AppraisalStatus `json:"appraisal"`
	EarnestMoneyAmount    *float64        `json:"earnest_money_amount,omitempty"`
	EarnestMoneyDueDays   *int            `json:"earnest_money_due_days,omitempty"`
	EarnestMoneyHolder    string          `json:"earnest_money_holder_name,omitempty"`
	BindingAgreementDate  *time.Time      `json:"binding_agreement_date,omitempty"`
	ClosingDate           *time.Time      `json:"closing_date,omitempty"`
	FormName              string          `json:"form_name,omitempty"`
	FormVersion           string          `json:"form_version,omitempty"`
	SpecialStipulations   []string        `json:"special_stipulations,omitempty"`
	Status                LifecycleStatus `json:"status"`
	CreatedAt             time.Time       `json:"created_at"`
	UpdatedAt             time.Time       `json:"updated_at"`
}

// Validate enforces write-time invariants. Violations are rejected before
// any row is written.
func (t *Transaction) Validate() error {
	if t.PurchasePrice != nil && *t.PurchasePrice < 0 {
		return WrapError(ErrInvalidInput, "validate transaction", errNegative("purchase_price"))
	}
	if t.EarnestMoneyAmount != nil && *t.EarnestMoneyAmount < 0 {
		return WrapError(ErrInvalidInput, "validate transaction", errNegative("earnest_money_amount"))
	}
	if t.EarnestMoneyDueDays != nil && *t.EarnestMoneyDueDays < 0 {
		return WrapError(ErrInvalidInput, "validate transaction", errNegative("earnest_money_due_days"))
	}
	if t.Currency != "" && len(t.Currency) != 3 {
		return WrapError(ErrInvalidInput, "validate transaction", errEnum("currency", t.Currency))
	}
	if !t.Financing.Valid() {
		return WrapError(ErrInvalidInput, "validate transaction", errEnum("financing", string(t.Financing)))
	}
	if !t.Appraisal.Valid() {
		return WrapError(ErrInvalidInput, "validate transaction", errEnum("appraisal", string(t.Appraisal)))
	}
	if !t.Status.Valid() {
		return WrapError(ErrInvalidInput, "validate transaction", errEnum("status", string(t.Status)))
	}
	return nil
}

type Party struct {
	ID            string    `json:"id"`
	TransactionID string    `json:"transaction_id"`
	Role          PartyRole `json:"role"`
	FullName      string    `json:"full_name"`
	Firm          string    `json:"firm,omitempty"`
	LicenseNo     string    `json:"license_no,omitempty"`
	Email         string    `json:"email,omitempty"`
	Phone         string    `json:"phone,omitempty"`
	Address       string    `json:"address,omitempty"`
}

func (p *Party) Validate() error {
	if !p.Role.Valid() {
		return WrapError(ErrInvalidInput, "validate party", errEnum("role", string(p.Role)))
	}
	if p.FullName == "" {
		return WrapError(ErrInvalidInput, "validate party", errRequired("full_name"))
	}
	return nil
}

// TransactionStatusRow is the single rollup row per transaction; replaced
// in place by rollup, never appended.
type TransactionStatusRow struct {
	TransactionID string          `json:"transaction_id"`
	Status        LifecycleStatus `json:"status"`
	NoOp          bool            `json:"no_op,omitempty"`
	Details       map[string]any  `json:"details,omitempty"`
	UpdatedAt     time.Time       `json:"updated_at"`
}
