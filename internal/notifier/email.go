package notifier

import (
	"context"
	"crypto/tls"
	"strings"

	"github.com/sirupsen/logrus"
	"gopkg.in/gomail.v2"

	"invoice-relay-go/config"
	"invoice-relay-go/internal/model"
)

// Email sends plain-text reports over SMTP
type Email struct {
	cfg  config.EmailConfig
	send func(msgs ...*gomail.Message) error
}

// NewEmail creates an SMTP notifier
func NewEmail(cfg config.EmailConfig) *Email {
	dialer := gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password)
	dialer.TLSConfig = &tls.Config{
		ServerName: cfg.Host,
		MinVersion: tls.VersionTLS12,
	}
	return &Email{cfg: cfg, send: dialer.DialAndSend}
}

// ReportSuccess implements Sink
func (e *Email) ReportSuccess(ctx context.Context, inv *model.Invoice) error {
	return e.deliver(ctx, "Invoice "+inv.Number+" processed", plainText(titleSuccess, successFields(inv)))
}

// ReportFailure implements Sink
func (e *Email) ReportFailure(ctx context.Context, filename, message, sender string) error {
	return e.deliver(ctx, "Invoice processing failed: "+filename, plainText(titleFailure, failureFields(filename, message, sender)))
}

// ReportSummary implements Sink
func (e *Email) ReportSummary(ctx context.Context, outcomes []*model.Outcome) error {
	summary := model.Summarize(outcomes)
	var extra []string
	if summary.Failed > 0 {
		extra = append([]string{"Failures:"}, failureLines(summary)...)
	}
	return e.deliver(ctx, titleSummary, plainText(titleSummary, summaryFields(summary), extra...))
}

func (e *Email) deliver(ctx context.Context, subject, body string) error {
	if err := ctx.Err(); err != nil {
		return &NotificationError{Sink: "email", Err: err}
	}

	msg := gomail.NewMessage(gomail.SetCharset("UTF-8"))
	msg.SetHeader("From", e.cfg.From)
	msg.SetHeader("To", e.cfg.To...)
	msg.SetHeader("Subject", subject)
	msg.SetBody("text/plain", body)

	if err := e.send(msg); err != nil {
		return &NotificationError{Sink: "email", Err: err}
	}
	logrus.Debugf("Sent email report %q to %s", subject, strings.Join(e.cfg.To, ", "))
	return nil
}
