package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/sirupsen/logrus"

	"invoice-relay-go/config"
	"invoice-relay-go/internal/model"
)

type slackText struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type slackBlock struct {
	Type   string      `json:"type"`
	Text   *slackText  `json:"text,omitempty"`
	Fields []slackText `json:"fields,omitempty"`
}

type slackPayload struct {
	Channel string       `json:"channel,omitempty"`
	Blocks  []slackBlock `json:"blocks"`
}

// Slack posts Block Kit messages to an incoming webhook
type Slack struct {
	cfg    config.SlackConfig
	client *retryablehttp.Client
}

// NewSlack creates a Slack notifier. Reports are dropped when the notifier
// is disabled or no webhook URL is configured.
func NewSlack(cfg config.SlackConfig) *Slack {
	client := retryablehttp.NewClient()
	client.RetryMax = cfg.MaxRetries
	client.RetryWaitMin = 500 * time.Millisecond
	client.RetryWaitMax = 5 * time.Second
	client.Logger = nil
	client.HTTPClient.Timeout = cfg.Timeout
	if cfg.Timeout <= 0 {
		client.HTTPClient.Timeout = 10 * time.Second
	}

	return &Slack{cfg: cfg, client: client}
}

// ReportSuccess implements Sink
func (s *Slack) ReportSuccess(ctx context.Context, inv *model.Invoice) error {
	if err := s.send(ctx, header(titleSuccess), fieldsBlock(successFields(inv))); err != nil {
		return err
	}
	logrus.Infof("Sent success notification for invoice %s", inv.Number)
	return nil
}

// ReportFailure implements Sink
func (s *Slack) ReportFailure(ctx context.Context, filename, message, sender string) error {
	if err := s.send(ctx, header(titleFailure), fieldsBlock(failureFields(filename, message, sender))); err != nil {
		return err
	}
	logrus.Infof("Sent failure notification for %s", filename)
	return nil
}

// ReportSummary implements Sink
func (s *Slack) ReportSummary(ctx context.Context, outcomes []*model.Outcome) error {
	summary := model.Summarize(outcomes)
	blocks := []slackBlock{header(titleSummary), fieldsBlock(summaryFields(summary))}
	if summary.Failed > 0 {
		blocks = append(blocks, slackBlock{
			Type: "section",
			Text: &slackText{Type: "mrkdwn", Text: "*Failures:*\n" + strings.Join(failureLines(summary), "\n")},
		})
	}

	if err := s.send(ctx, blocks...); err != nil {
		return err
	}
	logrus.Infof("Sent summary notification: %d total, %d successful, %d failed",
		summary.Total, summary.Successful, summary.Failed)
	return nil
}

func header(title string) slackBlock {
	return slackBlock{Type: "header", Text: &slackText{Type: "plain_text", Text: title}}
}

func fieldsBlock(fields []field) slackBlock {
	b := slackBlock{Type: "section"}
	for _, f := range fields {
		b.Fields = append(b.Fields, slackText{Type: "mrkdwn", Text: fmt.Sprintf("*%s:* %s", f.Label, f.Value)})
	}
	return b
}

func (s *Slack) send(ctx context.Context, blocks ...slackBlock) error {
	if !s.cfg.Enabled {
		logrus.Debug("Slack notifications disabled; skipping")
		return nil
	}
	if s.cfg.WebhookURL == "" {
		logrus.Warn("No Slack webhook URL configured")
		return nil
	}

	body, err := json.Marshal(slackPayload{Channel: s.cfg.Channel, Blocks: blocks})
	if err != nil {
		return &NotificationError{Sink: "slack", Err: err}
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, s.cfg.WebhookURL, bytes.NewReader(body))
	if err != nil {
		return &NotificationError{Sink: "slack", Err: err}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return &NotificationError{Sink: "slack", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		text, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return &NotificationError{
			Sink: "slack",
			Err:  fmt.Errorf("webhook returned %d: %s", resp.StatusCode, strings.TrimSpace(string(text))),
		}
	}
	return nil
}
