package notification

import (
	"fmt"
	"strings"

	"github.com/smallbiznis/payline/internal/ledger/domain"
)

// ComposeDunning builds the reminder content deterministically from the
// invoice fields. Formatting is intentionally plain; presentation polish is
// not a correctness concern here.
func ComposeDunning(invoice domain.Invoice, stage, customerName string) (subject, body string) {
	dueDate := "-"
	if invoice.DueDate != nil {
		dueDate = invoice.DueDate.Format("2 January 2006")
	}
	amount := formatAmount(invoice.Total)

	if strings.HasPrefix(stage, "T+") {
		subject = fmt.Sprintf("Invoice %s is overdue", invoice.InvoiceNumber)
		body = fmt.Sprintf(
			"Dear %s,\n\nInvoice %s for %s was due on %s and is still unpaid. Please settle it as soon as possible to avoid service interruption.\n\nThank you.",
			customerName, invoice.InvoiceNumber, amount, dueDate,
		)
		return subject, body
	}

	subject = fmt.Sprintf("Payment reminder for invoice %s", invoice.InvoiceNumber)
	body = fmt.Sprintf(
		"Dear %s,\n\nThis is a reminder that invoice %s for %s is due on %s.\n\nThank you.",
		customerName, invoice.InvoiceNumber, amount, dueDate,
	)
	return subject, body
}

// formatAmount renders a minor-unit amount with thousand separators, e.g.
// 150000 -> "Rp 150.000".
func formatAmount(amount int64) string {
	digits := fmt.Sprintf("%d", amount)
	negative := false
	if strings.HasPrefix(digits, "-") {
		negative = true
		digits = digits[1:]
	}

	var b strings.Builder
	for i, r := range digits {
		if i > 0 && (len(digits)-i)%3 == 0 {
			b.WriteByte('.')
		}
		b.WriteRune(r)
	}

	out := "Rp " + b.String()
	if negative {
		out = "-" + out
	}
	return out
}
