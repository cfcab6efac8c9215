package mailbox

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"
	"github.com/sirupsen/logrus"

	"invoice-relay-go/config"
	"invoice-relay-go/internal/model"
)

// IMAPSession reads invoices from an IMAP folder over TLS
type IMAPSession struct {
	client  *client.Client
	folder  string
	subject string
	filter  extensionFilter
	now     func() time.Time
}

// imapDialer opens the transport to the server
type imapDialer func(addr string, timeout time.Duration) (*client.Client, error)

func dialTLS(addr string, timeout time.Duration) (*client.Client, error) {
	return client.DialWithDialerTLS(&net.Dialer{Timeout: timeout}, addr, nil)
}

// DialIMAP connects over TLS, logs in and selects the configured folder
func DialIMAP(ctx context.Context, cfg config.MailboxConfig) (*IMAPSession, error) {
	return dialIMAP(ctx, cfg, dialTLS)
}

func dialIMAP(ctx context.Context, cfg config.MailboxConfig, dial imapDialer) (*IMAPSession, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	ic := cfg.IMAP
	timeout := ic.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	addr := net.JoinHostPort(ic.Host, strconv.Itoa(ic.Port))

	logrus.Infof("Connecting to IMAP server %s", addr)
	c, err := dial(addr, timeout)
	if err != nil {
		return nil, &ConnectionError{Provider: "imap", Op: "connect", Err: err}
	}
	c.Timeout = timeout

	if err := c.Login(ic.User, ic.Password); err != nil {
		_ = c.Logout()
		return nil, &ConnectionError{Provider: "imap", Op: "login", Err: err}
	}

	folder := ic.Folder
	if folder == "" {
		folder = "INBOX"
	}
	if _, err := c.Select(folder, false); err != nil {
		_ = c.Logout()
		return nil, &ConnectionError{Provider: "imap", Op: "select " + folder, Err: err}
	}

	logrus.Infof("Connected to IMAP server as %s", ic.User)
	return &IMAPSession{
		client:  c,
		folder:  folder,
		subject: cfg.SearchSubject,
		filter:  newExtensionFilter(cfg.AttachmentExtensions),
		now:     time.Now,
	}, nil
}

// FetchPending returns the attachments of unseen messages whose subject
// contains the search string. Bodies are fetched with PEEK so the server
// does not set \Seen until MarkConsumed.
func (s *IMAPSession) FetchPending(ctx context.Context) ([]model.Attachment, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	criteria := imap.NewSearchCriteria()
	criteria.WithoutFlags = []string{imap.SeenFlag}
	if s.subject != "" {
		criteria.Header.Add("Subject", s.subject)
	}

	uids, err := s.client.UidSearch(criteria)
	if err != nil {
		return nil, &ConnectionError{Provider: "imap", Op: "search", Err: err}
	}
	if len(uids) == 0 {
		logrus.Info("No matching emails found")
		return []model.Attachment{}, nil
	}
	logrus.Infof("Found %d matching email(s)", len(uids))

	seqset := new(imap.SeqSet)
	seqset.AddNum(uids...)

	section := &imap.BodySectionName{Peek: true}
	items := []imap.FetchItem{section.FetchItem(), imap.FetchUid}

	messages := make(chan *imap.Message, len(uids))
	done := make(chan error, 1)
	go func() {
		done <- s.client.UidFetch(seqset, items, messages)
	}()

	attachments := []model.Attachment{}
	for msg := range messages {
		id := strconv.FormatUint(uint64(msg.Uid), 10)
		body := msg.GetBody(section)
		if body == nil {
			logrus.Warnf("Failed to fetch email UID %s", id)
			continue
		}
		found, err := readAttachments(body, id, s.filter, s.now)
		if err != nil {
			logrus.WithField("message_id", id).Warnf("Failed to parse email: %v", err)
			continue
		}
		attachments = append(attachments, found...)
	}

	if err := <-done; err != nil {
		return nil, &ConnectionError{Provider: "imap", Op: "fetch", Err: err}
	}

	logrus.Infof("Extracted %d attachment(s) total", len(attachments))
	return attachments, nil
}

// MarkConsumed sets \Seen on the message with the given UID
func (s *IMAPSession) MarkConsumed(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	uid, err := strconv.ParseUint(id, 10, 32)
	if err != nil {
		return fmt.Errorf("invalid IMAP UID %q: %w", id, err)
	}

	seqset := new(imap.SeqSet)
	seqset.AddNum(uint32(uid))
	flags := []interface{}{imap.SeenFlag}
	if err := s.client.UidStore(seqset, imap.FormatFlagsOp(imap.AddFlags, true), flags, nil); err != nil {
		return &ConnectionError{Provider: "imap", Op: "mark seen", Err: err}
	}
	logrus.Debugf("Marked email UID %s as processed", id)
	return nil
}

// Close logs out of the server
func (s *IMAPSession) Close() error {
	return s.client.Logout()
}
