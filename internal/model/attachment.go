package model

import "time"

// Attachment represents one email-delivered document plus its source message metadata
type Attachment struct {
	ID          string    `json:"id"`
	Filename    string    `json:"filename"`
	ContentType string    `json:"content_type"`
	Content     []byte    `json:"-"`
	Subject     string    `json:"subject"`
	Sender      string    `json:"sender"`
	ReceivedAt  time.Time `json:"received_at"`
}

// Size returns the attachment size in bytes
func (a Attachment) Size() int {
	return len(a.Content)
}

// Source returns the metadata stored alongside an invoice taken from this attachment
func (a Attachment) Source() SourceMeta {
	return SourceMeta{
		AttachmentID: a.ID,
		Filename:     a.Filename,
		Sender:       a.Sender,
		Subject:      a.Subject,
		ReceivedAt:   a.ReceivedAt,
	}
}

// SourceMeta describes where a stored invoice came from
type SourceMeta struct {
	AttachmentID string
	Filename     string
	Sender       string
	Subject      string
	ReceivedAt   time.Time
}
