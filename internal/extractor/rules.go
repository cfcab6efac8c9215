package extractor

import (
	"regexp"
	"strings"
	"time"
)

// Patterns per field, most specific first. The first pattern that matches wins.
var (
	invoiceNumberRules = []*regexp.Regexp{
		regexp.MustCompile(`(?i)Invoice\s*(?:Number|No\.?|#)\s*:?\s*([A-Z0-9][\w-]+)`),
		regexp.MustCompile(`(?i)(INV[-/]\d{4}[-/]\d{3,6})`),
	}

	vendorRules = []*regexp.Regexp{
		regexp.MustCompile(`(?i)Vendor\s*:?\s*(.+?)(?:\n|$)`),
		regexp.MustCompile(`(?i)(?:From|Supplier|Company)\s*:?\s*(.+?)(?:\n|$)`),
		regexp.MustCompile(`(?i)Bill\s+From\s*:?\s*(.+?)(?:\n|$)`),
	}

	// "Subtotal" must not satisfy the plain Total rule
	totalRules = []*regexp.Regexp{
		regexp.MustCompile(`(?i)Grand\s+Total\s*:?\s*\$?([\d,]+\.\d{2})`),
		regexp.MustCompile(`(?i)Amount\s+Due\s*:?\s*\$?([\d,]+\.\d{2})`),
		regexp.MustCompile(`(?i)\bTotal\s*:?\s*\$?([\d,]+\.\d{2})`),
	}

	invoiceDateRules = []*regexp.Regexp{
		regexp.MustCompile(`(?i)(?:Invoice\s+)?Date\s*:?\s*(\d{1,2}[/-]\d{1,2}[/-]\d{2,4})`),
		regexp.MustCompile(`(?i)Date\s*:?\s*(\w+\s+\d{1,2},?\s+\d{4})`),
	}

	dueDateRules = []*regexp.Regexp{
		regexp.MustCompile(`(?i)Due\s*Date\s*:?\s*(\d{1,2}[/-]\d{1,2}[/-]\d{2,4})`),
		regexp.MustCompile(`(?i)Due\s*Date\s*:?\s*(\w+\s+\d{1,2},?\s+\d{4})`),
	}

	poNumberRules = []*regexp.Regexp{
		regexp.MustCompile(`(?i)\b(?:PO|Purchase\s+Order)\b\s*(?:Number|No\.?|#)?\s*:?\s*([A-Z0-9][\w-]+)`),
	}

	currencyRules = []*regexp.Regexp{
		regexp.MustCompile(`(?i)Currency\s*:?\s*([A-Z]{3})\b`),
	}

	// description, quantity, unit price, line total on one line
	lineItemRule = regexp.MustCompile(`(?m)^(.+?)[ \t]+(\d+)[ \t]+\$?([\d,]+\.\d{2})[ \t]+\$?([\d,]+\.\d{2})[ \t]*$`)
)

// Tried in order; day-first layouts only win when month-first fails.
var dateLayouts = []string{
	"1/2/2006",
	"1-2-2006",
	"2/1/2006",
	"2-1-2006",
	"1/2/06",
	"1-2-06",
	"January 2, 2006",
	"Jan 2, 2006",
	"January 2 2006",
	"Jan 2 2006",
}

// firstMatch returns the trimmed first capture group of the first matching pattern
func firstMatch(text string, rules []*regexp.Regexp) (string, bool) {
	for _, re := range rules {
		m := re.FindStringSubmatch(text)
		if m == nil {
			continue
		}
		if v := strings.TrimSpace(m[1]); v != "" {
			return v, true
		}
	}
	return "", false
}

// parseDate tries each layout in turn
func parseDate(s string) (time.Time, bool) {
	s = strings.Join(strings.Fields(s), " ")
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// normalizeAmount strips currency symbols, thousands separators and spaces
func normalizeAmount(s string) string {
	return strings.NewReplacer("$", "", ",", "", " ", "").Replace(strings.TrimSpace(s))
}
