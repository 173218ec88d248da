package models

import (
	"encoding/json"
	"time"
)

// EventType categorizes audit events in the system.
type EventType string

const (
	// Approval lifecycle events
	EventTypeApprovalCreated           EventType = "approval.created"
	EventTypeApprovalApproved          EventType = "approval.approved"
	EventTypeApprovalRejected          EventType = "approval.rejected"
	EventTypeApprovalRevisionRequested EventType = "approval.revision_requested"
	EventTypeApprovalCancelled         EventType = "approval.cancelled"

	// Step events
	EventTypeStepApproved EventType = "step.approved"
	EventTypeStepRejected EventType = "step.rejected"

	// Comment events
	EventTypeCommentAdded EventType = "comment.added"

	// Notification events
	EventTypeNotificationFailed EventType = "notification.failed"
)

// EntityType identifies the type of entity an event relates to.
type EntityType string

const (
	EntityTypeApproval EntityType = "approval"
	EntityTypeStep     EntityType = "step"
	EntityTypeComment  EntityType = "comment"
	EntityTypeSystem   EntityType = "system"
)

// Event represents an append-only audit log entry.
type Event struct {
	// ID is the unique identifier for the event.
	ID string `json:"id"`

	// Timestamp is when the event occurred.
	Timestamp time.Time `json:"timestamp"`

	// Type categorizes the event.
	Type EventType `json:"type"`

	// EntityType identifies what kind of entity this event relates to.
	EntityType EntityType `json:"entity_type"`

	// EntityID is the ID of the related entity.
	EntityID string `json:"entity_id"`

	// ActorID is the user who caused the event, when known.
	ActorID string `json:"actor_id,omitempty"`

	// Payload contains event-specific data.
	Payload json.RawMessage `json:"payload,omitempty"`
}

// StepDecidedPayload is the payload for step.approved and step.rejected
// events.
type StepDecidedPayload struct {
	StepID     string     `json:"step_id"`
	StepNumber int        `json:"step_number"`
	ApproverID string     `json:"approver_id"`
	Status     StepStatus `json:"status"`
	Comment    string     `json:"comment,omitempty"`
}

// StatusChangedPayload is the payload for approval lifecycle events.
type StatusChangedPayload struct {
	OldStatus ApprovalStatus `json:"old_status"`
	NewStatus ApprovalStatus `json:"new_status"`
	Reason    string         `json:"reason,omitempty"`
}

// NotificationFailedPayload is the payload for notification.failed events.
type NotificationFailedPayload struct {
	Recipients []string `json:"recipients"`
	Subject    string   `json:"subject"`
	Error      string   `json:"error"`
}
