package workflow

import (
	"context"

	"github.com/mbakke/signoff/internal/db"
	"github.com/mbakke/signoff/internal/models"
)

// Get returns a request enriched with its full step list. For a rejected
// request, steps left undecided are labeled skipped in the returned
// view; the stored rows keep their pending status.
func (e *Engine) Get(ctx context.Context, requestID string) (*models.ApprovalRequest, error) {
	request, err := e.approvals.GetRequest(ctx, requestID)
	if err != nil {
		return nil, err
	}

	steps, err := e.approvals.ListSteps(ctx, requestID)
	if err != nil {
		return nil, err
	}

	if request.Status == models.ApprovalStatusRejected {
		for _, step := range steps {
			if step.Status == models.StepStatusPending {
				step.Status = models.StepStatusSkipped
			}
		}
	}

	request.Steps = steps
	return request, nil
}

// List returns requests matching the supplied filters, newest first.
func (e *Engine) List(ctx context.Context, query db.ApprovalQuery) ([]*models.ApprovalRequest, error) {
	return e.approvals.List(ctx, query)
}

// ListPendingForUser returns every request holding a pending step for
// the user, regardless of turn order. In sequential mode this can
// include requests where an earlier step is still undecided; use
// ListActionableForUser for strict turn filtering.
func (e *Engine) ListPendingForUser(ctx context.Context, userID string) ([]*models.ApprovalRequest, error) {
	return e.approvals.ListPendingForApprover(ctx, userID)
}

// ListActionableForUser returns only the requests the user can decide
// right now: the request is pending and the user's step is actionable
// under the request's workflow mode.
func (e *Engine) ListActionableForUser(ctx context.Context, userID string) ([]*models.ApprovalRequest, error) {
	candidates, err := e.approvals.ListPendingForApprover(ctx, userID)
	if err != nil {
		return nil, err
	}

	var actionable []*models.ApprovalRequest
	for _, request := range candidates {
		steps, err := e.approvals.ListSteps(ctx, request.ID)
		if err != nil {
			return nil, err
		}
		for _, step := range request.ActionableSteps(steps) {
			if step.ApproverID == userID {
				actionable = append(actionable, request)
				break
			}
		}
	}
	return actionable, nil
}

// GetComments returns a request's discussion thread in creation order.
func (e *Engine) GetComments(ctx context.Context, requestID string) ([]*models.ApprovalComment, error) {
	if _, err := e.approvals.GetRequest(ctx, requestID); err != nil {
		return nil, err
	}
	return e.comments.ListByRequest(ctx, requestID)
}

// AuditTrail returns the audit events recorded for a request.
func (e *Engine) AuditTrail(ctx context.Context, requestID string) ([]*models.Event, error) {
	if _, err := e.approvals.GetRequest(ctx, requestID); err != nil {
		return nil, err
	}
	entityType := models.EntityTypeApproval
	return e.audit.Query(ctx, db.EventQuery{
		EntityType: &entityType,
		EntityID:   &requestID,
	})
}
