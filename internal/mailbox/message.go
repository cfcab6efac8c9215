package mailbox

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/emersion/go-message"
	"github.com/emersion/go-message/mail"
	"github.com/sirupsen/logrus"

	"invoice-relay-go/internal/model"
)

// readAttachments walks a raw RFC 822 message and returns every attachment
// whose filename passes the filter. All attachments share the message id.
func readAttachments(r io.Reader, id string, filter extensionFilter, now func() time.Time) ([]model.Attachment, error) {
	mr, err := mail.CreateReader(r)
	if err != nil && !message.IsUnknownCharset(err) {
		return nil, fmt.Errorf("failed to read message: %w", err)
	}
	defer mr.Close()

	subject, _ := mr.Header.Subject()
	sender, _ := mr.Header.Text("From")
	received, err := mr.Header.Date()
	if err != nil || received.IsZero() {
		received = now()
	}
	received = received.UTC()

	var attachments []model.Attachment
	for {
		p, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			if message.IsUnknownCharset(err) {
				logrus.WithField("message_id", id).Warnf("Skipping part with unknown charset: %v", err)
				continue
			}
			return nil, fmt.Errorf("failed to read part: %w", err)
		}

		h, ok := p.Header.(*mail.AttachmentHeader)
		if !ok {
			continue
		}
		filename, err := h.Filename()
		if err != nil || filename == "" || !filter.Match(filename) {
			continue
		}

		content, err := io.ReadAll(p.Body)
		if err != nil {
			return nil, fmt.Errorf("failed to read attachment %s: %w", filename, err)
		}
		if len(content) == 0 {
			continue
		}

		contentType, _, _ := h.ContentType()
		attachments = append(attachments, model.Attachment{
			ID:          id,
			Filename:    filename,
			ContentType: contentType,
			Content:     content,
			Subject:     subject,
			Sender:      sender,
			ReceivedAt:  received,
		})
		logrus.Debugf("Found invoice attachment: %s (message %s)", filename, id)
	}

	return attachments, nil
}
