package mailbox

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	gmail "google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"

	"invoice-relay-go/config"
	"invoice-relay-go/internal/model"
)

// GmailSession reads invoices through the Gmail API
type GmailSession struct {
	service *gmail.Service
	user    string
	query   string
	filter  extensionFilter
	now     func() time.Time
}

// DialGmail builds an API client from the OAuth2 refresh token
func DialGmail(ctx context.Context, cfg config.MailboxConfig) (*GmailSession, error) {
	oauth2Config := &oauth2.Config{
		ClientID:     cfg.Gmail.ClientID,
		ClientSecret: cfg.Gmail.ClientSecret,
		Scopes:       []string{gmail.GmailModifyScope},
		Endpoint:     google.Endpoint,
	}
	tokenSource := oauth2Config.TokenSource(ctx, &oauth2.Token{RefreshToken: cfg.Gmail.RefreshToken})

	return newGmailSession(ctx, cfg, option.WithTokenSource(tokenSource))
}

func newGmailSession(ctx context.Context, cfg config.MailboxConfig, opts ...option.ClientOption) (*GmailSession, error) {
	service, err := gmail.NewService(ctx, opts...)
	if err != nil {
		return nil, &ConnectionError{Provider: "gmail", Op: "connect", Err: err}
	}

	user := cfg.Gmail.UserEmail
	if user == "" {
		user = "me"
	}

	return &GmailSession{
		service: service,
		user:    user,
		query:   gmailQuery(cfg.SearchSubject),
		filter:  newExtensionFilter(cfg.AttachmentExtensions),
		now:     time.Now,
	}, nil
}

func gmailQuery(subject string) string {
	q := "is:unread has:attachment"
	if subject != "" {
		q += fmt.Sprintf(" subject:%q", subject)
	}
	return q
}

// FetchPending lists unread messages matching the query and downloads their attachments
func (s *GmailSession) FetchPending(ctx context.Context) ([]model.Attachment, error) {
	var ids []string
	err := s.service.Users.Messages.List(s.user).Q(s.query).Pages(ctx, func(resp *gmail.ListMessagesResponse) error {
		for _, m := range resp.Messages {
			ids = append(ids, m.Id)
		}
		return nil
	})
	if err != nil {
		return nil, &ConnectionError{Provider: "gmail", Op: "list messages", Err: err}
	}
	if len(ids) == 0 {
		logrus.Info("No matching emails found")
		return []model.Attachment{}, nil
	}
	logrus.Infof("Found %d matching email(s)", len(ids))

	attachments := []model.Attachment{}
	for _, id := range ids {
		msg, err := s.service.Users.Messages.Get(s.user, id).Format("full").Context(ctx).Do()
		if err != nil {
			return nil, &ConnectionError{Provider: "gmail", Op: "get message", Err: err}
		}
		found, err := s.messageAttachments(ctx, msg)
		if err != nil {
			return nil, err
		}
		attachments = append(attachments, found...)
	}

	logrus.Infof("Extracted %d attachment(s) total", len(attachments))
	return attachments, nil
}

func (s *GmailSession) messageAttachments(ctx context.Context, msg *gmail.Message) ([]model.Attachment, error) {
	if msg.Payload == nil {
		return nil, nil
	}

	var subject, sender string
	received := time.Time{}
	for _, h := range msg.Payload.Headers {
		switch strings.ToLower(h.Name) {
		case "subject":
			subject = h.Value
		case "from":
			sender = h.Value
		case "date":
			if t, err := mail.ParseDate(h.Value); err == nil {
				received = t
			}
		}
	}
	if received.IsZero() {
		received = s.now()
	}

	var attachments []model.Attachment
	var walk func(part *gmail.MessagePart) error
	walk = func(part *gmail.MessagePart) error {
		for _, child := range part.Parts {
			if err := walk(child); err != nil {
				return err
			}
		}
		if part.Filename == "" || part.Body == nil || !s.filter.Match(part.Filename) {
			return nil
		}

		data := part.Body.Data
		if part.Body.AttachmentId != "" {
			body, err := s.service.Users.Messages.Attachments.Get(s.user, msg.Id, part.Body.AttachmentId).Context(ctx).Do()
			if err != nil {
				return &ConnectionError{Provider: "gmail", Op: "get attachment", Err: err}
			}
			data = body.Data
		}
		content, err := decodeBase64URL(data)
		if err != nil {
			logrus.WithField("message_id", msg.Id).Warnf("Failed to decode attachment %s: %v", part.Filename, err)
			return nil
		}
		if len(content) == 0 {
			return nil
		}

		attachments = append(attachments, model.Attachment{
			ID:          msg.Id,
			Filename:    part.Filename,
			ContentType: part.MimeType,
			Content:     content,
			Subject:     subject,
			Sender:      sender,
			ReceivedAt:  received.UTC(),
		})
		return nil
	}

	if err := walk(msg.Payload); err != nil {
		return nil, err
	}
	return attachments, nil
}

// decodeBase64URL accepts padded and unpadded URL-safe base64
func decodeBase64URL(s string) ([]byte, error) {
	return base64.RawURLEncoding.DecodeString(strings.TrimRight(s, "="))
}

// MarkConsumed removes the UNREAD label from the message
func (s *GmailSession) MarkConsumed(ctx context.Context, id string) error {
	req := &gmail.ModifyMessageRequest{RemoveLabelIds: []string{"UNREAD"}}
	if _, err := s.service.Users.Messages.Modify(s.user, id, req).Context(ctx).Do(); err != nil {
		return &ConnectionError{Provider: "gmail", Op: "mark read", Err: err}
	}
	logrus.Debugf("Marked Gmail message %s as processed", id)
	return nil
}

// Close is a no-op; the API client holds no connection
func (s *GmailSession) Close() error {
	return nil
}
