package notifier

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"invoice-relay-go/internal/model"
)

const maxListedFailures = 5

// Report titles
const (
	titleSuccess = "Invoice Processed Successfully"
	titleFailure = "Invoice Processing Failed"
	titleSummary = "Invoice Pipeline Run Summary"
)

// field is a labelled value rendered as "*Label:* value" in Slack and "Label: value" in text
type field struct {
	Label string
	Value string
}

func successFields(inv *model.Invoice) []field {
	po := inv.PONumber
	if po == "" {
		po = "N/A"
	}
	return []field{
		{"Invoice", inv.Number},
		{"Vendor", inv.VendorName},
		{"Amount", formatAmount(inv.TotalAmount) + " " + inv.Currency},
		{"PO", po},
		{"Date", inv.InvoiceDate.Format("2006-01-02")},
	}
}

func failureFields(filename, message, sender string) []field {
	if sender == "" {
		sender = "Unknown"
	}
	return []field{
		{"File", filename},
		{"From", sender},
		{"Error", message},
	}
}

func summaryFields(s model.Summary) []field {
	return []field{
		{"Total", fmt.Sprint(s.Total)},
		{"Successful", fmt.Sprint(s.Successful)},
		{"Failed", fmt.Sprint(s.Failed)},
	}
}

// failureLines itemizes at most five failures, then counts the rest
func failureLines(s model.Summary) []string {
	var lines []string
	for i, o := range s.Failures {
		if i == maxListedFailures {
			lines = append(lines, fmt.Sprintf("_...and %d more_", len(s.Failures)-maxListedFailures))
			break
		}
		msg := o.ErrorMessage
		if msg == "" {
			msg = "Unknown error"
		}
		lines = append(lines, fmt.Sprintf("- `%s`: %s", o.Attachment.Filename, msg))
	}
	return lines
}

// formatAmount renders d as $1,234.56
func formatAmount(d decimal.Decimal) string {
	s := d.Abs().StringFixed(2)
	intPart, frac, _ := strings.Cut(s, ".")

	var b strings.Builder
	for i, r := range intPart {
		if i > 0 && (len(intPart)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}

	sign := ""
	if d.IsNegative() {
		sign = "-"
	}
	return sign + "$" + b.String() + "." + frac
}

func plainText(title string, fields []field, extra ...string) string {
	var b strings.Builder
	b.WriteString(title)
	b.WriteString("\n\n")
	for _, f := range fields {
		fmt.Fprintf(&b, "%s: %s\n", f.Label, f.Value)
	}
	if len(extra) > 0 {
		b.WriteString("\n")
		b.WriteString(strings.Join(extra, "\n"))
		b.WriteString("\n")
	}
	return b.String()
}
