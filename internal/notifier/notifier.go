// Package notifier reports invoice outcomes to Slack, email and Kafka.
package notifier

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/sirupsen/logrus"

	"invoice-relay-go/config"
	"invoice-relay-go/internal/model"
)

// Sink receives outcome reports
type Sink interface {
	ReportSuccess(ctx context.Context, inv *model.Invoice) error
	ReportFailure(ctx context.Context, filename, message, sender string) error
	ReportSummary(ctx context.Context, outcomes []*model.Outcome) error
}

// NotificationError is a report that could not be delivered
type NotificationError struct {
	Sink string
	Err  error
}

func (e *NotificationError) Error() string {
	return fmt.Sprintf("%s notification failed: %v", e.Sink, e.Err)
}

func (e *NotificationError) Unwrap() error {
	return e.Err
}

// Multi fans every report out to all sinks. A failing sink does not stop the others.
type Multi []Sink

// ReportSuccess implements Sink
func (m Multi) ReportSuccess(ctx context.Context, inv *model.Invoice) error {
	return m.each(func(s Sink) error { return s.ReportSuccess(ctx, inv) })
}

// ReportFailure implements Sink
func (m Multi) ReportFailure(ctx context.Context, filename, message, sender string) error {
	return m.each(func(s Sink) error { return s.ReportFailure(ctx, filename, message, sender) })
}

// ReportSummary implements Sink
func (m Multi) ReportSummary(ctx context.Context, outcomes []*model.Outcome) error {
	return m.each(func(s Sink) error { return s.ReportSummary(ctx, outcomes) })
}

func (m Multi) each(fn func(Sink) error) error {
	var errs []error
	for _, s := range m {
		if err := fn(s); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Close closes every sink that holds resources
func (m Multi) Close() error {
	var errs []error
	for _, s := range m {
		if c, ok := s.(io.Closer); ok {
			if err := c.Close(); err != nil {
				logrus.Warnf("Failed to close notifier: %v", err)
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

// FromConfig builds the enabled sinks. Slack is always present and drops
// reports itself when disabled.
func FromConfig(cfg config.NotifierConfig) Multi {
	m := Multi{NewSlack(cfg.Slack)}
	if cfg.Email.Enabled {
		m = append(m, NewEmail(cfg.Email))
	}
	if cfg.Kafka.Enabled {
		m = append(m, NewKafka(cfg.Kafka))
	}
	return m
}
