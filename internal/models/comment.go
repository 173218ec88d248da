package models

import (
	"time"
)

// ApprovalComment is a discussion entry on an approval request. Comments
// are append-only and remain writable after the request resolves.
type ApprovalComment struct {
	// ID is the unique identifier for the comment.
	ID string `json:"id"`

	// RequestID references the owning approval request.
	RequestID string `json:"request_id"`

	// AuthorID is the user who wrote the comment.
	AuthorID string `json:"author_id"`

	// AuthorName is the author's display name, joined by the query layer.
	AuthorName string `json:"author_name,omitempty"`

	// Content is the comment text.
	Content string `json:"content"`

	// Attachments are files attached to the comment.
	Attachments []Attachment `json:"attachments,omitempty"`

	// CreatedAt is when the comment was written.
	CreatedAt time.Time `json:"created_at"`

	// UpdatedAt is when the comment was last edited.
	UpdatedAt time.Time `json:"updated_at"`
}

// Validate checks the comment before insertion.
func (c *ApprovalComment) Validate() error {
	validation := &ValidationErrors{}
	if c.RequestID == "" {
		validation.AddMessage("request_id", "request id is required")
	}
	if c.AuthorID == "" {
		validation.AddMessage("author_id", "author is required")
	}
	if c.Content == "" {
		validation.AddMessage("content", "content is required")
	}
	return validation.Err()
}
