package model

// Summary aggregates the outcomes of one pipeline run
type Summary struct {
	Total            int        `json:"total"`
	Successful       int        `json:"successful"`
	Failed           int        `json:"failed"`
	Duplicates       int        `json:"duplicates"`
	ValidationFailed int        `json:"validation_failed"`
	Failures         []*Outcome `json:"-"`
}

// Summarize counts outcomes. Every outcome that is not a success counts as
// failed, duplicates included.
func Summarize(outcomes []*Outcome) Summary {
	s := Summary{Total: len(outcomes)}
	for _, o := range outcomes {
		if o.IsSuccess() {
			s.Successful++
			continue
		}
		s.Failures = append(s.Failures, o)
		switch o.Status {
		case StatusDuplicate:
			s.Duplicates++
		case StatusValidationFailed:
			s.ValidationFailed++
		}
	}
	s.Failed = s.Total - s.Successful
	return s
}
