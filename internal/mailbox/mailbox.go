// Package mailbox fetches invoice attachments from an IMAP server or the Gmail API.
package mailbox

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"invoice-relay-go/config"
	"invoice-relay-go/internal/model"
)

// Session is an open mailbox connection for one pipeline run
type Session interface {
	// FetchPending returns the attachments of every unread message matching the search subject
	FetchPending(ctx context.Context) ([]model.Attachment, error)
	// MarkConsumed flags the message an attachment came from as processed
	MarkConsumed(ctx context.Context, id string) error
	Close() error
}

// ConnectionError is a failure to reach or talk to the mailbox. It is always retryable.
type ConnectionError struct {
	Provider string
	Op       string
	Err      error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Provider, e.Op, e.Err)
}

func (e *ConnectionError) Unwrap() error {
	return e.Err
}

// Dial opens a session for the configured provider
func Dial(ctx context.Context, cfg config.MailboxConfig) (Session, error) {
	switch cfg.Provider {
	case "", "imap":
		return DialIMAP(ctx, cfg)
	case "gmail":
		return DialGmail(ctx, cfg)
	default:
		return nil, fmt.Errorf("unsupported mailbox provider: %q", cfg.Provider)
	}
}

// extensionFilter matches filenames against the configured attachment extensions
type extensionFilter []string

func newExtensionFilter(exts []string) extensionFilter {
	if len(exts) == 0 {
		exts = []string{".pdf"}
	}
	f := make(extensionFilter, 0, len(exts))
	for _, e := range exts {
		e = strings.ToLower(strings.TrimSpace(e))
		if e == "" {
			continue
		}
		if !strings.HasPrefix(e, ".") {
			e = "." + e
		}
		f = append(f, e)
	}
	return f
}

func (f extensionFilter) Match(filename string) bool {
	ext := strings.ToLower(filepath.Ext(filename))
	for _, e := range f {
		if ext == e {
			return true
		}
	}
	return false
}
