package pipeline

import (
	"context"
	"time"

	"invoice-relay-go/internal/model"
)

// Report describes one finished run
type Report struct {
	model.Summary
	StartedAt  time.Time        `json:"started_at"`
	FinishedAt time.Time        `json:"finished_at"`
	DryRun     bool             `json:"dry_run"`
	Error      string           `json:"error,omitempty"`
	Outcomes   []*model.Outcome `json:"outcomes"`
}

// Duration returns how long the run took
func (r *Report) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

// Execute runs the pipeline and wraps the result in a Report. The run error
// is returned as well as recorded on the report.
func (p *Pipeline) Execute(ctx context.Context) (*Report, error) {
	started := p.now()
	outcomes, err := p.Run(ctx)

	r := &Report{
		Summary:    model.Summarize(outcomes),
		StartedAt:  started,
		FinishedAt: p.now(),
		DryRun:     p.dryRun,
		Outcomes:   outcomes,
	}
	if err != nil {
		r.Error = err.Error()
	}
	return r, err
}
