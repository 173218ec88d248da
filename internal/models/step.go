package models

import (
	"time"
)

// StepStatus represents the decision state of a single approver step.
type StepStatus string

const (
	StepStatusPending  StepStatus = "pending"
	StepStatusApproved StepStatus = "approved"
	StepStatusRejected StepStatus = "rejected"

	// StepStatusSkipped labels steps made moot by a request-level
	// rejection. It is computed by the query layer and never stored.
	StepStatusSkipped StepStatus = "skipped"
)

// ApprovalStep is one approver's slot in a request's workflow. Exactly
// one step exists per (request, approver) pair. In parallel mode every
// step carries StepNumber 0; in sequential mode step i carries number i.
type ApprovalStep struct {
	// ID is the unique identifier for the step.
	ID string `json:"id"`

	// RequestID references the owning approval request.
	RequestID string `json:"request_id"`

	// StepNumber is the 0-based position in the approver order.
	StepNumber int `json:"step_number"`

	// ApproverID is the user expected to decide this step.
	ApproverID string `json:"approver_id"`

	// Status is the decision state of the step.
	Status StepStatus `json:"status"`

	// Comment is the approver's decision rationale.
	Comment string `json:"comment,omitempty"`

	// DecidedAt is when the approver decided, nil while pending.
	DecidedAt *time.Time `json:"decided_at,omitempty"`

	// CreatedAt is when the step was created.
	CreatedAt time.Time `json:"created_at"`
}

// Decided reports whether the step carries a recorded decision.
func (s *ApprovalStep) Decided() bool {
	return s.Status == StepStatusApproved || s.Status == StepStatusRejected
}
