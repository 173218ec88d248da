package models

import (
	"time"
)

// ApprovalStatus represents the lifecycle state of an approval request.
type ApprovalStatus string

const (
	ApprovalStatusPending   ApprovalStatus = "pending"
	ApprovalStatusApproved  ApprovalStatus = "approved"
	ApprovalStatusRejected  ApprovalStatus = "rejected"
	ApprovalStatusCancelled ApprovalStatus = "cancelled"
	ApprovalStatusRevision  ApprovalStatus = "revision"
)

// IsTerminal reports whether the status permits no further transitions.
// Revision is not terminal: the request logically re-enters pending once
// the requester has acted.
func (s ApprovalStatus) IsTerminal() bool {
	switch s {
	case ApprovalStatusApproved, ApprovalStatusRejected, ApprovalStatusCancelled:
		return true
	}
	return false
}

// ApprovalType categorizes what is being approved.
type ApprovalType string

const (
	ApprovalTypeDocument ApprovalType = "document"
	ApprovalTypeDecision ApprovalType = "decision"
	ApprovalTypeBudget   ApprovalType = "budget"
	ApprovalTypeOther    ApprovalType = "other"
)

// WorkflowMode determines how approver steps are sequenced.
type WorkflowMode string

const (
	// WorkflowSequential requires approvers to decide in order; only the
	// step matching CurrentStepIndex is actionable.
	WorkflowSequential WorkflowMode = "sequential"

	// WorkflowParallel makes every undecided step actionable at once.
	WorkflowParallel WorkflowMode = "parallel"
)

// Priority is an optional urgency hint on a request.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

// Attachment is a reference to an externally stored file.
type Attachment struct {
	// Name is the display name of the file.
	Name string `json:"name"`

	// URL points at the stored file.
	URL string `json:"url"`

	// MediaType is the MIME type of the file.
	MediaType string `json:"media_type,omitempty"`

	// UploadedAt is when the file was uploaded.
	UploadedAt time.Time `json:"uploaded_at"`
}

// ApprovalRequest is the aggregate root of the workflow engine. It owns
// its ApprovalStep and ApprovalComment children; all mutation happens
// through the engine.
type ApprovalRequest struct {
	// ID is the unique identifier for the request.
	ID string `json:"id"`

	// Title summarizes what is being approved.
	Title string `json:"title"`

	// Description holds optional free-form detail.
	Description string `json:"description,omitempty"`

	// ProjectID optionally links the request to a project.
	ProjectID string `json:"project_id,omitempty"`

	// TaskID optionally links the request to a task.
	TaskID string `json:"task_id,omitempty"`

	// RequesterID is the user who opened the request.
	RequesterID string `json:"requester_id"`

	// Type categorizes the request.
	Type ApprovalType `json:"type"`

	// Mode determines sequential or parallel step resolution.
	Mode WorkflowMode `json:"mode"`

	// Status is the current lifecycle state.
	Status ApprovalStatus `json:"status"`

	// CurrentStepIndex is the position of the actionable step. Only
	// meaningful in sequential mode; parallel mode never consults it.
	CurrentStepIndex int `json:"current_step_index"`

	// BudgetAmount is the amount under approval, in cents (budget type).
	BudgetAmount *int64 `json:"budget_amount,omitempty"`

	// Priority is an optional urgency hint.
	Priority Priority `json:"priority,omitempty"`

	// Attachments are files supporting the request.
	Attachments []Attachment `json:"attachments,omitempty"`

	// CreatedAt is when the request was created.
	CreatedAt time.Time `json:"created_at"`

	// UpdatedAt is when the request was last mutated.
	UpdatedAt time.Time `json:"updated_at"`

	// Steps is the full step list, populated by the query layer.
	Steps []*ApprovalStep `json:"steps,omitempty"`
}

// Validate checks the request before creation.
func (r *ApprovalRequest) Validate() error {
	validation := &ValidationErrors{}
	if r.Title == "" {
		validation.AddMessage("title", "title is required")
	}
	if r.RequesterID == "" {
		validation.AddMessage("requester_id", "requester is required")
	}
	switch r.Type {
	case ApprovalTypeDocument, ApprovalTypeDecision, ApprovalTypeBudget, ApprovalTypeOther:
	case "":
		validation.AddMessage("type", "type is required")
	default:
		validation.AddMessage("type", "unknown approval type: "+string(r.Type))
	}
	switch r.Mode {
	case WorkflowSequential, WorkflowParallel:
	case "":
		validation.AddMessage("mode", "workflow mode is required")
	default:
		validation.AddMessage("mode", "unknown workflow mode: "+string(r.Mode))
	}
	switch r.Priority {
	case "", PriorityLow, PriorityMedium, PriorityHigh, PriorityUrgent:
	default:
		validation.AddMessage("priority", "unknown priority: "+string(r.Priority))
	}
	return validation.Err()
}

// ActionableSteps returns the steps an approver may currently decide,
// computed purely from the workflow mode and step statuses. In parallel
// mode every pending step is actionable; in sequential mode only the
// pending step at CurrentStepIndex is.
func (r *ApprovalRequest) ActionableSteps(steps []*ApprovalStep) []*ApprovalStep {
	if r.Status != ApprovalStatusPending && r.Status != ApprovalStatusRevision {
		return nil
	}

	var actionable []*ApprovalStep
	for _, step := range steps {
		if step.Status != StepStatusPending {
			continue
		}
		if r.Mode == WorkflowSequential && step.StepNumber != r.CurrentStepIndex {
			continue
		}
		actionable = append(actionable, step)
	}
	return actionable
}
