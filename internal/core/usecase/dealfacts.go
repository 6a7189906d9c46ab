package usecase

import (
	"fmt"
	"strings"
	"time"

	"github.com/closedesk/closedesk-backend/internal/core/domain"
)

const (
	placeholderUnset = "unspecified"
	placeholderNone  = "(none)"
)

// RenderDealFacts produces the fixed-order deal summary. Every line is
// always present; null fields render a stable placeholder so the text can
// be treated as a stable retrieval document rather than a versioned
// snapshot.
func RenderDealFacts(t *domain.Transaction) string {
	var b strings.Builder

	writeLine(&b, "Deal", orPlaceholder(t.DealCode))
	writeLine(&b, "Address", renderAddress(t))
	writeLine(&b, "Purchase Price", renderMoney(t.PurchasePrice, t.Currency))
	writeLine(&b, "Financing", renderFinancing(t.Financing))
	writeLine(&b, "Appraisal Contingency", renderAppraisal(t.Appraisal))
	writeLine(&b, "Earnest Money", renderEarnestMoney(t))
	writeLine(&b, "Binding Agreement Date", renderDate(t.BindingAgreementDate))
	writeLine(&b, "Closing Date", renderDate(t.ClosingDate))
	writeLine(&b, "Form", renderForm(t))

	b.WriteString("Special Stipulations:\n")
	if len(t.SpecialStipulations) == 0 {
		b.WriteString(placeholderNone)
		b.WriteString("\n")
	} else {
		for i, stip := range t.SpecialStipulations {
			fmt.Fprintf(&b, "%d. %s\n", i+1, stip)
		}
	}

	return b.String()
}

func writeLine(b *strings.Builder, label, value string) {
	b.WriteString(label)
	b.WriteString(": ")
	b.WriteString(value)
	b.WriteString("\n")
}

func orPlaceholder(v string) string {
	if v == "" {
		return placeholderUnset
	}
	return v
}

func renderAddress(t *domain.Transaction) string {
	parts := make([]string, 0, 5)
	for _, p := range []string{t.AddressLine1, t.AddressLine2, t.City, t.State, t.PostalCode} {
		if p != "" {
			parts = append(parts, p)
		}
	}
	if len(parts) == 0 {
		return placeholderUnset
	}
	return strings.Join(parts, ", ")
}

func renderMoney(amount *float64, currency string) string {
	if amount == nil {
		return placeholderUnset
	}
	if currency == "" {
		return fmt.Sprintf("%.2f", *amount)
	}
	return fmt.Sprintf("%s %.2f", currency, *amount)
}

func renderFinancing(f domain.FinancingType) string {
	if f == "" {
		return placeholderUnset
	}
	return string(f)
}

func renderAppraisal(a domain.AppraisalStatus) string {
	if a == "" {
		return placeholderUnset
	}
	return string(a)
}

func renderEarnestMoney(t *domain.Transaction) string {
	amount := placeholderUnset
	if t.EarnestMoneyAmount != nil {
		amount = renderMoney(t.EarnestMoneyAmount, t.Currency)
	}
	holder := orPlaceholder(t.EarnestMoneyHolder)
	due := placeholderUnset
	if t.EarnestMoneyDueDays != nil {
		due = fmt.Sprintf("%d", *t.EarnestMoneyDueDays)
	}
	return fmt.Sprintf("%s held by %s, due within %s days of binding", amount, holder, due)
}

func renderDate(d *time.Time) string {
	if d == nil {
		return placeholderUnset
	}
	return d.Format("2006-01-02")
}

func renderForm(t *domain.Transaction) string {
	if t.FormName == "" && t.FormVersion == "" {
		return placeholderUnset
	}
	if t.FormVersion == "" {
		return t.FormName
	}
	if t.FormName == "" {
		return fmt.Sprintf("rev %s", t.FormVersion)
	}
	return fmt.Sprintf("%s rev %s", t.FormName, t.FormVersion)
}
