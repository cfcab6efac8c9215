package mailbox

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"

	"invoice-relay-go/config"
)

var fixedNow = func() time.Time { return time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC) }

const rawInvoiceEmail = "From: Acme Billing <billing@acme.example>\r\n" +
	"To: ap@example.com\r\n" +
	"Subject: Invoice INV-2024-001\r\n" +
	"Date: Mon, 15 Jan 2024 10:30:00 +0100\r\n" +
	"MIME-Version: 1.0\r\n" +
	"Content-Type: multipart/mixed; boundary=\"outer\"\r\n" +
	"\r\n" +
	"--outer\r\n" +
	"Content-Type: text/plain; charset=utf-8\r\n" +
	"\r\n" +
	"Please find the invoice attached.\r\n" +
	"--outer\r\n" +
	"Content-Type: application/pdf\r\n" +
	"Content-Disposition: attachment; filename=\"invoice.pdf\"\r\n" +
	"Content-Transfer-Encoding: base64\r\n" +
	"\r\n" +
	"JVBERi0xLjQKJcfsj6IK\r\n" +
	"--outer\r\n" +
	"Content-Type: image/png\r\n" +
	"Content-Disposition: attachment; filename=\"logo.png\"\r\n" +
	"Content-Transfer-Encoding: base64\r\n" +
	"\r\n" +
	"iVBORw0KGgo=\r\n" +
	"--outer\r\n" +
	"Content-Type: application/pdf\r\n" +
	"Content-Disposition: inline; filename=\"preview.pdf\"\r\n" +
	"\r\n" +
	"%PDF-inline\r\n" +
	"--outer--\r\n"

func TestReadAttachments(t *testing.T) {
	found, err := readAttachments(strings.NewReader(rawInvoiceEmail), "42", newExtensionFilter(nil), fixedNow)
	require.NoError(t, err)
	require.Len(t, found, 1)

	a := found[0]
	assert.Equal(t, "42", a.ID)
	assert.Equal(t, "invoice.pdf", a.Filename)
	assert.Equal(t, "application/pdf", a.ContentType)
	assert.True(t, strings.HasPrefix(string(a.Content), "%PDF-1.4"))
	assert.Equal(t, "Invoice INV-2024-001", a.Subject)
	assert.Contains(t, a.Sender, "billing@acme.example")
	assert.Equal(t, time.Date(2024, 1, 15, 9, 30, 0, 0, time.UTC), a.ReceivedAt)
}

func TestReadAttachmentsMissingDate(t *testing.T) {
	raw := strings.Replace(rawInvoiceEmail, "Date: Mon, 15 Jan 2024 10:30:00 +0100\r\n", "", 1)

	found, err := readAttachments(strings.NewReader(raw), "7", newExtensionFilter(nil), fixedNow)
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, fixedNow(), found[0].ReceivedAt)
}

func TestReadAttachmentsCustomExtensions(t *testing.T) {
	found, err := readAttachments(strings.NewReader(rawInvoiceEmail), "42", newExtensionFilter([]string{"png", ".PDF"}), fixedNow)
	require.NoError(t, err)
	require.Len(t, found, 2)
	assert.Equal(t, "invoice.pdf", found[0].Filename)
	assert.Equal(t, "logo.png", found[1].Filename)
}

func TestExtensionFilter(t *testing.T) {
	f := newExtensionFilter(nil)
	assert.True(t, f.Match("INVOICE.PDF"))
	assert.True(t, f.Match("scan.pdf"))
	assert.False(t, f.Match("invoice.pdf.exe"))
	assert.False(t, f.Match("notes.txt"))
	assert.False(t, f.Match(""))
}

func TestConnectionErrorUnwraps(t *testing.T) {
	cause := errors.New("connection refused")
	err := error(&ConnectionError{Provider: "imap", Op: "connect", Err: cause})

	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "imap connect: connection refused", err.Error())
}

func TestDialUnknownProvider(t *testing.T) {
	_, err := Dial(context.Background(), config.MailboxConfig{Provider: "pop3"})
	assert.Error(t, err)
}

func TestGmailQuery(t *testing.T) {
	assert.Equal(t, `is:unread has:attachment subject:"Invoice"`, gmailQuery("Invoice"))
	assert.Equal(t, "is:unread has:attachment", gmailQuery(""))
}

func TestGmailSession(t *testing.T) {
	pdf := base64.URLEncoding.EncodeToString([]byte("%PDF-1.4 invoice"))
	var modified []string

	mux := http.NewServeMux()
	mux.HandleFunc("/gmail/v1/users/me/messages", func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.URL.Query().Get("q"), "is:unread")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"messages": []map[string]string{{"id": "m1"}},
		})
	})
	mux.HandleFunc("/gmail/v1/users/me/messages/m1", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id": "m1",
			"payload": map[string]any{
				"mimeType": "multipart/mixed",
				"headers": []map[string]string{
					{"name": "Subject", "value": "Invoice March"},
					{"name": "From", "value": "billing@acme.example"},
					{"name": "Date", "value": "Fri, 01 Mar 2024 08:00:00 +0000"},
				},
				"parts": []map[string]any{
					{"mimeType": "text/plain", "body": map[string]any{"data": "aGVsbG8"}},
					{"mimeType": "application/pdf", "filename": "march.pdf", "body": map[string]any{"attachmentId": "att1"}},
					{"mimeType": "image/png", "filename": "logo.png", "body": map[string]any{"attachmentId": "att2"}},
				},
			},
		})
	})
	mux.HandleFunc("/gmail/v1/users/me/messages/m1/attachments/att1", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"data": pdf})
	})
	mux.HandleFunc("/gmail/v1/users/me/messages/m1/modify", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			RemoveLabelIds []string `json:"removeLabelIds"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)
		modified = append(modified, req.RemoveLabelIds...)
		_ = json.NewEncoder(w).Encode(map[string]any{"id": "m1"})
	})

	srv := httptest.NewServer(mux)
	defer srv.Close()

	cfg := config.MailboxConfig{Provider: "gmail", SearchSubject: "Invoice"}
	s, err := newGmailSession(context.Background(), cfg,
		option.WithEndpoint(srv.URL+"/"),
		option.WithHTTPClient(srv.Client()),
	)
	require.NoError(t, err)
	s.now = fixedNow

	found, err := s.FetchPending(context.Background())
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, "m1", found[0].ID)
	assert.Equal(t, "march.pdf", found[0].Filename)
	assert.Equal(t, "%PDF-1.4 invoice", string(found[0].Content))
	assert.Equal(t, "Invoice March", found[0].Subject)
	assert.Equal(t, "billing@acme.example", found[0].Sender)
	assert.Equal(t, time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC), found[0].ReceivedAt)

	require.NoError(t, s.MarkConsumed(context.Background(), "m1"))
	assert.Equal(t, []string{"UNREAD"}, modified)
	assert.NoError(t, s.Close())
}

func TestGmailSessionListFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"code":503,"message":"unavailable"}}`, http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	s, err := newGmailSession(context.Background(), config.MailboxConfig{},
		option.WithEndpoint(srv.URL+"/"),
		option.WithHTTPClient(srv.Client()),
	)
	require.NoError(t, err)

	_, err = s.FetchPending(context.Background())
	var connErr *ConnectionError
	require.ErrorAs(t, err, &connErr)
	assert.Equal(t, "list messages", connErr.Op)
}
