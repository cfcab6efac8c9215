package model

// Verdict is the result of checking one invoice against the business rules.
// It starts valid; every added error makes it invalid, warnings never do.
type Verdict struct {
	Valid        bool     `json:"valid"`
	Errors       []string `json:"errors"`
	FailedChecks []string `json:"failed_checks"`
	Warnings     []string `json:"warnings"`
	MatchedPO    string   `json:"matched_po,omitempty"`
	Confidence   float64  `json:"confidence"`
}

// NewVerdict returns an empty, valid verdict
func NewVerdict() *Verdict {
	return &Verdict{Valid: true, Confidence: 1.0}
}

// AddError records a failed check and marks the verdict invalid
func (v *Verdict) AddError(check, message string) {
	v.Errors = append(v.Errors, message)
	v.FailedChecks = append(v.FailedChecks, check)
	v.Valid = false
}

// AddWarning records a non-fatal finding
func (v *Verdict) AddWarning(message string) {
	v.Warnings = append(v.Warnings, message)
}

// Score derives the confidence from the findings: 0 when invalid,
// otherwise 1.0 minus 0.1 per warning, never below 0.
func (v *Verdict) Score() {
	if !v.Valid {
		v.Confidence = 0
		return
	}
	c := 1.0 - 0.1*float64(len(v.Warnings))
	if c < 0 {
		c = 0
	}
	v.Confidence = c
}
