package notifier

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"

	"invoice-relay-go/config"
	"invoice-relay-go/internal/model"
)

// Event types published to the topic
const (
	EventInvoiceStored = "invoice.stored"
	EventInvoiceFailed = "invoice.failed"
	EventRunSummary    = "run.summary"
)

// Event is the JSON value of every published message
type Event struct {
	Type       string           `json:"type"`
	OccurredAt time.Time        `json:"occurred_at"`
	Invoice    *model.Invoice   `json:"invoice,omitempty"`
	Failure    *FailureDetail   `json:"failure,omitempty"`
	Summary    *model.Summary   `json:"summary,omitempty"`
	Outcomes   []*model.Outcome `json:"outcomes,omitempty"`
}

// FailureDetail describes an attachment that was not stored
type FailureDetail struct {
	Filename string `json:"filename"`
	Message  string `json:"message"`
	Sender   string `json:"sender,omitempty"`
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Kafka publishes outcome events to a topic
type Kafka struct {
	w   messageWriter
	now func() time.Time
}

// NewKafka creates a synchronous producer for cfg.Topic
func NewKafka(cfg config.KafkaConfig) *Kafka {
	timeout := cfg.WriteTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	w := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Topic:                  cfg.Topic,
		Balancer:               &kafka.Hash{},
		WriteTimeout:           timeout,
		RequiredAcks:           kafka.RequireOne,
		AllowAutoTopicCreation: true,
	}
	return &Kafka{w: w, now: time.Now}
}

// ReportSuccess implements Sink
func (k *Kafka) ReportSuccess(ctx context.Context, inv *model.Invoice) error {
	return k.publish(ctx, inv.Number, Event{Type: EventInvoiceStored, Invoice: inv})
}

// ReportFailure implements Sink
func (k *Kafka) ReportFailure(ctx context.Context, filename, message, sender string) error {
	return k.publish(ctx, filename, Event{
		Type:    EventInvoiceFailed,
		Failure: &FailureDetail{Filename: filename, Message: message, Sender: sender},
	})
}

// ReportSummary implements Sink
func (k *Kafka) ReportSummary(ctx context.Context, outcomes []*model.Outcome) error {
	summary := model.Summarize(outcomes)
	return k.publish(ctx, "", Event{Type: EventRunSummary, Summary: &summary, Outcomes: outcomes})
}

func (k *Kafka) publish(ctx context.Context, key string, e Event) error {
	e.OccurredAt = k.now().UTC()
	b, err := json.Marshal(e)
	if err != nil {
		return &NotificationError{Sink: "kafka", Err: err}
	}

	msg := kafka.Message{Value: b}
	if key != "" {
		msg.Key = []byte(key)
	}
	if err := k.w.WriteMessages(ctx, msg); err != nil {
		return &NotificationError{Sink: "kafka", Err: err}
	}
	return nil
}

// Close flushes and closes the producer
func (k *Kafka) Close() error {
	return k.w.Close()
}
