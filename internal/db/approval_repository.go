// Package db provides SQLite database access for Signoff.
package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mbakke/signoff/internal/models"
)

// Approval repository errors.
var (
	ErrRequestNotFound = errors.New("approval request not found")
	ErrStepNotFound    = errors.New("approval step not found")
	ErrDuplicateStep   = errors.New("approver already has a step on this request")
)

// querier is satisfied by both *sql.Tx and *DB so repository reads and
// writes can join an enclosing transaction.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// ApprovalRepository handles approval request and step persistence.
type ApprovalRepository struct {
	db *DB
}

// NewApprovalRepository creates a new ApprovalRepository.
func NewApprovalRepository(db *DB) *ApprovalRepository {
	return &ApprovalRepository{db: db}
}

// ApprovalQuery defines filters for listing approval requests. Nil
// filters match everything.
type ApprovalQuery struct {
	Status      *models.ApprovalStatus
	ProjectID   *string
	RequesterID *string
	Limit       int
	Offset      int
}

// CreateRequest inserts a request together with its steps. Both are
// written on the supplied transaction so they exist atomically.
func (r *ApprovalRepository) CreateRequest(ctx context.Context, tx *sql.Tx, request *models.ApprovalRequest, steps []*models.ApprovalStep) error {
	if tx == nil {
		return fmt.Errorf("transaction is required")
	}
	if err := request.Validate(); err != nil {
		return err
	}

	if request.ID == "" {
		request.ID = uuid.New().String()
	}

	now := time.Now().UTC()
	request.CreatedAt = now
	request.UpdatedAt = now
	if request.Status == "" {
		request.Status = models.ApprovalStatusPending
	}

	var attachmentsJSON *string
	if len(request.Attachments) > 0 {
		data, err := json.Marshal(request.Attachments)
		if err != nil {
			return fmt.Errorf("failed to marshal attachments: %w", err)
		}
		s := string(data)
		attachmentsJSON = &s
	}

	_, err := tx.ExecContext(ctx, `
		INSERT INTO approval_requests (
			id, title, description, project_id, task_id, requester_id,
			type, mode, status, current_step_index, budget_amount,
			priority, attachments_json, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		request.ID,
		request.Title,
		nullEmpty(request.Description),
		nullEmpty(request.ProjectID),
		nullEmpty(request.TaskID),
		request.RequesterID,
		string(request.Type),
		string(request.Mode),
		string(request.Status),
		request.CurrentStepIndex,
		request.BudgetAmount,
		nullEmpty(string(request.Priority)),
		attachmentsJSON,
		request.CreatedAt.Format(time.RFC3339),
		request.UpdatedAt.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to insert approval request: %w", err)
	}

	for _, step := range steps {
		if err := r.createStep(ctx, tx, request, step, now); err != nil {
			return err
		}
	}
	return nil
}

func (r *ApprovalRepository) createStep(ctx context.Context, tx *sql.Tx, request *models.ApprovalRequest, step *models.ApprovalStep, now time.Time) error {
	if step.ApproverID == "" {
		return fmt.Errorf("step approver id is required")
	}

	if step.ID == "" {
		step.ID = uuid.New().String()
	}
	step.RequestID = request.ID
	step.CreatedAt = now
	if step.Status == "" {
		step.Status = models.StepStatusPending
	}

	_, err := tx.ExecContext(ctx, `
		INSERT INTO approval_steps (
			id, request_id, step_number, approver_id, status, comment, decided_at, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`,
		step.ID,
		step.RequestID,
		step.StepNumber,
		step.ApproverID,
		string(step.Status),
		nullEmpty(step.Comment),
		stringTimePtr(step.DecidedAt),
		step.CreatedAt.Format(time.RFC3339),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return ErrDuplicateStep
		}
		return fmt.Errorf("failed to insert approval step: %w", err)
	}
	return nil
}

// GetRequest fetches a request by ID without its steps.
func (r *ApprovalRepository) GetRequest(ctx context.Context, id string) (*models.ApprovalRequest, error) {
	return r.getRequest(ctx, r.db, id)
}

// GetRequestTx fetches a request by ID on an existing transaction.
func (r *ApprovalRepository) GetRequestTx(ctx context.Context, tx *sql.Tx, id string) (*models.ApprovalRequest, error) {
	return r.getRequest(ctx, tx, id)
}

func (r *ApprovalRepository) getRequest(ctx context.Context, q querier, id string) (*models.ApprovalRequest, error) {
	row := q.QueryRowContext(ctx, `
		SELECT
			id, title, description, project_id, task_id, requester_id,
			type, mode, status, current_step_index, budget_amount,
			priority, attachments_json, created_at, updated_at
		FROM approval_requests
		WHERE id = ?
	`, id)

	request, err := scanRequest(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrRequestNotFound
	}
	if err != nil {
		return nil, err
	}
	return request, nil
}

// List returns requests matching the query, newest first.
func (r *ApprovalRepository) List(ctx context.Context, query ApprovalQuery) ([]*models.ApprovalRequest, error) {
	var conditions []string
	var args []any

	if query.Status != nil {
		conditions = append(conditions, "status = ?")
		args = append(args, string(*query.Status))
	}
	if query.ProjectID != nil {
		conditions = append(conditions, "project_id = ?")
		args = append(args, *query.ProjectID)
	}
	if query.RequesterID != nil {
		conditions = append(conditions, "requester_id = ?")
		args = append(args, *query.RequesterID)
	}

	sqlQuery := `
		SELECT
			id, title, description, project_id, task_id, requester_id,
			type, mode, status, current_step_index, budget_amount,
			priority, attachments_json, created_at, updated_at
		FROM approval_requests
	`
	if len(conditions) > 0 {
		sqlQuery += " WHERE " + strings.Join(conditions, " AND ")
	}
	sqlQuery += " ORDER BY created_at DESC, id DESC"

	limit := query.Limit
	if limit <= 0 {
		limit = 100
	}
	sqlQuery += " LIMIT ? OFFSET ?"
	args = append(args, limit, query.Offset)

	rows, err := r.db.QueryContext(ctx, sqlQuery, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query approval requests: %w", err)
	}
	defer rows.Close()

	return scanRequests(rows)
}

// ListPendingForApprover returns every request holding a pending step
// assigned to the given user, newest first. Sequential turn order is not
// considered here; callers wanting only actionable work filter with
// ActionableSteps.
func (r *ApprovalRepository) ListPendingForApprover(ctx context.Context, approverID string) ([]*models.ApprovalRequest, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT
			ar.id, ar.title, ar.description, ar.project_id, ar.task_id, ar.requester_id,
			ar.type, ar.mode, ar.status, ar.current_step_index, ar.budget_amount,
			ar.priority, ar.attachments_json, ar.created_at, ar.updated_at
		FROM approval_requests ar
		JOIN approval_steps s ON s.request_id = ar.id
		WHERE s.approver_id = ? AND s.status = 'pending'
			AND ar.status NOT IN ('approved', 'rejected', 'cancelled')
		ORDER BY ar.created_at DESC, ar.id DESC
	`, approverID)
	if err != nil {
		return nil, fmt.Errorf("failed to query pending approvals: %w", err)
	}
	defer rows.Close()

	return scanRequests(rows)
}

// ListSteps fetches all steps for a request in step order.
func (r *ApprovalRepository) ListSteps(ctx context.Context, requestID string) ([]*models.ApprovalStep, error) {
	return r.listSteps(ctx, r.db, requestID)
}

// ListStepsTx fetches all steps for a request on an existing transaction.
func (r *ApprovalRepository) ListStepsTx(ctx context.Context, tx *sql.Tx, requestID string) ([]*models.ApprovalStep, error) {
	return r.listSteps(ctx, tx, requestID)
}

func (r *ApprovalRepository) listSteps(ctx context.Context, q querier, requestID string) ([]*models.ApprovalStep, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT id, request_id, step_number, approver_id, status, comment, decided_at, created_at
		FROM approval_steps
		WHERE request_id = ?
		ORDER BY step_number, created_at
	`, requestID)
	if err != nil {
		return nil, fmt.Errorf("failed to query approval steps: %w", err)
	}
	defer rows.Close()

	var steps []*models.ApprovalStep
	for rows.Next() {
		step, err := scanStep(rows)
		if err != nil {
			return nil, err
		}
		steps = append(steps, step)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating approval steps: %w", err)
	}
	return steps, nil
}

// GetStepForApprover fetches the step assigned to approverID on a
// request, on an existing transaction.
func (r *ApprovalRepository) GetStepForApprover(ctx context.Context, tx *sql.Tx, requestID, approverID string) (*models.ApprovalStep, error) {
	row := tx.QueryRowContext(ctx, `
		SELECT id, request_id, step_number, approver_id, status, comment, decided_at, created_at
		FROM approval_steps
		WHERE request_id = ? AND approver_id = ?
	`, requestID, approverID)

	step, err := scanStep(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrStepNotFound
	}
	if err != nil {
		return nil, err
	}
	return step, nil
}

// UpdateStepDecision records an approver's decision on a step.
func (r *ApprovalRepository) UpdateStepDecision(ctx context.Context, tx *sql.Tx, stepID string, status models.StepStatus, comment string, decidedAt time.Time) error {
	result, err := tx.ExecContext(ctx, `
		UPDATE approval_steps
		SET status = ?, comment = ?, decided_at = ?
		WHERE id = ?
	`, string(status), nullEmpty(comment), decidedAt.UTC().Format(time.RFC3339), stepID)
	if err != nil {
		return fmt.Errorf("failed to update approval step: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrStepNotFound
	}
	return nil
}

// ResetSteps returns every step of a request to pending and clears the
// decision metadata. This is the revision rewind; no other path mutates
// a decided step.
func (r *ApprovalRepository) ResetSteps(ctx context.Context, tx *sql.Tx, requestID string) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE approval_steps
		SET status = 'pending', comment = NULL, decided_at = NULL
		WHERE request_id = ?
	`, requestID)
	if err != nil {
		return fmt.Errorf("failed to reset approval steps: %w", err)
	}
	return nil
}

// UpdateRequestState updates a request's status and current step index.
func (r *ApprovalRepository) UpdateRequestState(ctx context.Context, tx *sql.Tx, requestID string, status models.ApprovalStatus, currentStepIndex int) error {
	now := time.Now().UTC().Format(time.RFC3339)

	result, err := tx.ExecContext(ctx, `
		UPDATE approval_requests
		SET status = ?, current_step_index = ?, updated_at = ?
		WHERE id = ?
	`, string(status), currentStepIndex, now, requestID)
	if err != nil {
		return fmt.Errorf("failed to update approval request: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrRequestNotFound
	}
	return nil
}

func scanRequests(rows *sql.Rows) ([]*models.ApprovalRequest, error) {
	var requests []*models.ApprovalRequest
	for rows.Next() {
		request, err := scanRequest(rows)
		if err != nil {
			return nil, err
		}
		requests = append(requests, request)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating approval requests: %w", err)
	}
	return requests, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRequest(row rowScanner) (*models.ApprovalRequest, error) {
	var request models.ApprovalRequest
	var description, projectID, taskID sql.NullString
	var requestType, mode, status string
	var budgetAmount sql.NullInt64
	var priority, attachmentsJSON sql.NullString
	var createdAt, updatedAt string

	if err := row.Scan(
		&request.ID,
		&request.Title,
		&description,
		&projectID,
		&taskID,
		&request.RequesterID,
		&requestType,
		&mode,
		&status,
		&request.CurrentStepIndex,
		&budgetAmount,
		&priority,
		&attachmentsJSON,
		&createdAt,
		&updatedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan approval request: %w", err)
	}

	request.Description = description.String
	request.ProjectID = projectID.String
	request.TaskID = taskID.String
	request.Type = models.ApprovalType(requestType)
	request.Mode = models.WorkflowMode(mode)
	request.Status = models.ApprovalStatus(status)
	request.Priority = models.Priority(priority.String)

	if budgetAmount.Valid {
		amount := budgetAmount.Int64
		request.BudgetAmount = &amount
	}

	if attachmentsJSON.Valid && attachmentsJSON.String != "" {
		if err := json.Unmarshal([]byte(attachmentsJSON.String), &request.Attachments); err != nil {
			return nil, fmt.Errorf("failed to unmarshal attachments: %w", err)
		}
	}

	created, err := parseTime(createdAt)
	if err != nil {
		return nil, err
	}
	request.CreatedAt = created

	updated, err := parseTime(updatedAt)
	if err != nil {
		return nil, err
	}
	request.UpdatedAt = updated

	return &request, nil
}

func scanStep(row rowScanner) (*models.ApprovalStep, error) {
	var step models.ApprovalStep
	var status string
	var comment, decidedAt sql.NullString
	var createdAt string

	if err := row.Scan(
		&step.ID,
		&step.RequestID,
		&step.StepNumber,
		&step.ApproverID,
		&status,
		&comment,
		&decidedAt,
		&createdAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan approval step: %w", err)
	}

	step.Status = models.StepStatus(status)
	step.Comment = comment.String

	if decidedAt.Valid && decidedAt.String != "" {
		parsed, err := parseTime(decidedAt.String)
		if err != nil {
			return nil, err
		}
		step.DecidedAt = &parsed
	}

	created, err := parseTime(createdAt)
	if err != nil {
		return nil, err
	}
	step.CreatedAt = created

	return &step, nil
}

func nullEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
