package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/mbakke/signoff/internal/models"
)

// CommentRepository handles approval comment persistence. Comments are
// append-only.
type CommentRepository struct {
	db *DB
}

// NewCommentRepository creates a new CommentRepository.
func NewCommentRepository(db *DB) *CommentRepository {
	return &CommentRepository{db: db}
}

// Create appends a comment to a request.
func (r *CommentRepository) Create(ctx context.Context, comment *models.ApprovalComment) error {
	return r.create(ctx, r.db, comment)
}

// CreateTx appends a comment on an existing transaction.
func (r *CommentRepository) CreateTx(ctx context.Context, tx *sql.Tx, comment *models.ApprovalComment) error {
	if tx == nil {
		return fmt.Errorf("transaction is required")
	}
	return r.create(ctx, tx, comment)
}

func (r *CommentRepository) create(ctx context.Context, q querier, comment *models.ApprovalComment) error {
	if err := comment.Validate(); err != nil {
		return err
	}

	if comment.ID == "" {
		comment.ID = uuid.New().String()
	}

	now := time.Now().UTC()
	comment.CreatedAt = now
	comment.UpdatedAt = now

	var attachmentsJSON *string
	if len(comment.Attachments) > 0 {
		data, err := json.Marshal(comment.Attachments)
		if err != nil {
			return fmt.Errorf("failed to marshal attachments: %w", err)
		}
		s := string(data)
		attachmentsJSON = &s
	}

	_, err := q.ExecContext(ctx, `
		INSERT INTO approval_comments (
			id, request_id, author_id, content, attachments_json, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?)
	`,
		comment.ID,
		comment.RequestID,
		comment.AuthorID,
		comment.Content,
		attachmentsJSON,
		comment.CreatedAt.UTC().Format(timeLayoutNano),
		comment.UpdatedAt.UTC().Format(timeLayoutNano),
	)
	if err != nil {
		return fmt.Errorf("failed to insert approval comment: %w", err)
	}
	return nil
}

// ListByRequest returns a request's comments in creation order, with the
// author's display name joined in.
func (r *CommentRepository) ListByRequest(ctx context.Context, requestID string) ([]*models.ApprovalComment, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT c.id, c.request_id, c.author_id, u.name, c.content, c.attachments_json, c.created_at, c.updated_at
		FROM approval_comments c
		JOIN users u ON u.id = c.author_id
		WHERE c.request_id = ?
		ORDER BY c.created_at, c.id
	`, requestID)
	if err != nil {
		return nil, fmt.Errorf("failed to query approval comments: %w", err)
	}
	defer rows.Close()

	var comments []*models.ApprovalComment
	for rows.Next() {
		var comment models.ApprovalComment
		var attachmentsJSON sql.NullString
		var createdAt, updatedAt string

		if err := rows.Scan(
			&comment.ID,
			&comment.RequestID,
			&comment.AuthorID,
			&comment.AuthorName,
			&comment.Content,
			&attachmentsJSON,
			&createdAt,
			&updatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan approval comment: %w", err)
		}

		if attachmentsJSON.Valid && attachmentsJSON.String != "" {
			if err := json.Unmarshal([]byte(attachmentsJSON.String), &comment.Attachments); err != nil {
				return nil, fmt.Errorf("failed to unmarshal attachments: %w", err)
			}
		}

		created, err := parseTime(createdAt)
		if err != nil {
			return nil, err
		}
		comment.CreatedAt = created

		updated, err := parseTime(updatedAt)
		if err != nil {
			return nil, err
		}
		comment.UpdatedAt = updated

		comments = append(comments, &comment)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating approval comments: %w", err)
	}
	return comments, nil
}
