package workflow

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/mbakke/signoff/internal/db"
	"github.com/mbakke/signoff/internal/events"
	"github.com/mbakke/signoff/internal/metrics"
	"github.com/mbakke/signoff/internal/models"
	"github.com/mbakke/signoff/internal/notify"
)

// Engine executes approval workflow operations. Every mutation runs as
// one transaction against the store; notifications and in-process event
// publication happen only after the transaction commits.
type Engine struct {
	store      *db.DB
	approvals  *db.ApprovalRepository
	comments   *db.CommentRepository
	users      *db.UserRepository
	audit      *db.EventRepository
	publisher  events.Publisher
	dispatcher *notify.Dispatcher
	logger     zerolog.Logger
}

// NewEngine wires an engine over the given store and collaborators.
// publisher may be nil when no in-process subscribers exist.
func NewEngine(store *db.DB, dispatcher *notify.Dispatcher, publisher events.Publisher, logger zerolog.Logger) *Engine {
	return &Engine{
		store:      store,
		approvals:  db.NewApprovalRepository(store),
		comments:   db.NewCommentRepository(store),
		users:      db.NewUserRepository(store),
		audit:      db.NewEventRepository(store),
		publisher:  publisher,
		dispatcher: dispatcher,
		logger:     logger,
	}
}

// CreateParams are the inputs for creating an approval request.
type CreateParams struct {
	Title        string
	Description  string
	ProjectID    string
	TaskID       string
	Type         models.ApprovalType
	Mode         models.WorkflowMode
	ApproverIDs  []string
	BudgetAmount *int64
	Priority     models.Priority
	Attachments  []models.Attachment
}

// Create inserts a request with its full step set in one transaction and
// schedules a notification to the immediately actionable approver(s).
func (e *Engine) Create(ctx context.Context, actorID string, params CreateParams) (*models.ApprovalRequest, error) {
	if actorID == "" {
		return nil, ErrUnauthenticated
	}

	validation := &models.ValidationErrors{}
	if len(params.ApproverIDs) == 0 {
		validation.AddMessage("approver_ids", "at least one approver is required")
	}
	seen := make(map[string]bool, len(params.ApproverIDs))
	for _, id := range params.ApproverIDs {
		if id == "" {
			validation.AddMessage("approver_ids", "approver id must not be empty")
			continue
		}
		if seen[id] {
			validation.AddMessage("approver_ids", "duplicate approver: "+id)
		}
		seen[id] = true
	}
	if err := validation.Err(); err != nil {
		return nil, err
	}

	// Approvers and the requester must resolve against the directory
	// before any state is touched.
	ids := append([]string{actorID}, params.ApproverIDs...)
	known, err := e.users.GetMany(ctx, ids)
	if err != nil {
		return nil, err
	}
	if _, ok := known[actorID]; !ok {
		return nil, db.ErrUserNotFound
	}
	for _, id := range params.ApproverIDs {
		if _, ok := known[id]; !ok {
			validation.AddMessage("approver_ids", "unknown approver: "+id)
		}
	}
	if err := validation.Err(); err != nil {
		return nil, err
	}

	request := &models.ApprovalRequest{
		Title:        params.Title,
		Description:  params.Description,
		ProjectID:    params.ProjectID,
		TaskID:       params.TaskID,
		RequesterID:  actorID,
		Type:         params.Type,
		Mode:         params.Mode,
		Status:       models.ApprovalStatusPending,
		BudgetAmount: params.BudgetAmount,
		Priority:     params.Priority,
		Attachments:  params.Attachments,
	}

	steps := make([]*models.ApprovalStep, len(params.ApproverIDs))
	for i, approverID := range params.ApproverIDs {
		stepNumber := 0
		if params.Mode == models.WorkflowSequential {
			stepNumber = i
		}
		steps[i] = &models.ApprovalStep{
			StepNumber: stepNumber,
			ApproverID: approverID,
			Status:     models.StepStatusPending,
		}
	}

	err = e.store.TransactionWithRetry(ctx, 0, 0, func(tx *sql.Tx) error {
		if err := e.approvals.CreateRequest(ctx, tx, request, steps); err != nil {
			return err
		}
		return e.appendAudit(ctx, tx, &models.Event{
			Type:       models.EventTypeApprovalCreated,
			EntityType: models.EntityTypeApproval,
			EntityID:   request.ID,
			ActorID:    actorID,
		})
	})
	if err != nil {
		return nil, err
	}

	metrics.RequestsCreated.WithLabelValues(string(request.Mode)).Inc()
	e.logger.Info().
		Str("request_id", request.ID).
		Str("mode", string(request.Mode)).
		Int("approvers", len(steps)).
		Msg("approval request created")

	e.publish(ctx, &models.Event{
		Type:       models.EventTypeApprovalCreated,
		EntityType: models.EntityTypeApproval,
		EntityID:   request.ID,
		ActorID:    actorID,
	})

	// Notify whoever can act right now: all approvers in parallel mode,
	// only the first in sequential mode.
	actionable := params.ApproverIDs
	if params.Mode == models.WorkflowSequential {
		actionable = params.ApproverIDs[:1]
	}
	e.notifyUsers(ctx, request.ID, actionable, approvalRequestedSubject(request), approvalRequestedBody(request, known[actorID]))

	request.Steps = steps
	return request, nil
}

// Approve records an approval decision by actorID and advances the
// workflow: the request resolves to approved once every step is
// approved; otherwise sequential mode moves the index to the earliest
// step still undecided.
func (e *Engine) Approve(ctx context.Context, actorID, requestID, comment string) error {
	return e.decide(ctx, actorID, requestID, comment, models.StepStatusApproved)
}

// Reject records a rejection by actorID. Rejection by any single
// approver is final in both modes: the request transitions to rejected
// and the remaining steps become moot.
func (e *Engine) Reject(ctx context.Context, actorID, requestID, comment string) error {
	return e.decide(ctx, actorID, requestID, comment, models.StepStatusRejected)
}

func (e *Engine) decide(ctx context.Context, actorID, requestID, comment string, decision models.StepStatus) error {
	if actorID == "" {
		return ErrUnauthenticated
	}

	var queued []notify.Message
	var published []*models.Event

	err := e.store.TransactionWithRetry(ctx, 0, 0, func(tx *sql.Tx) error {
		queued = queued[:0]
		published = published[:0]

		request, err := e.approvals.GetRequestTx(ctx, tx, requestID)
		if err != nil {
			return err
		}
		// A request in revision re-enters pending on the next decision;
		// terminal requests admit no further decisions.
		if request.Status != models.ApprovalStatusPending && request.Status != models.ApprovalStatusRevision {
			return fmt.Errorf("%w: request is %s", ErrInvalidState, request.Status)
		}

		step, err := e.approvals.GetStepForApprover(ctx, tx, requestID, actorID)
		if err != nil {
			return err
		}
		if step.Status != models.StepStatusPending {
			return fmt.Errorf("%w: step already %s", ErrInvalidState, step.Status)
		}

		now := time.Now().UTC()
		if err := e.approvals.UpdateStepDecision(ctx, tx, step.ID, decision, comment, now); err != nil {
			return err
		}
		step.Status = decision
		step.Comment = comment
		step.DecidedAt = &now

		stepEvent := models.EventTypeStepApproved
		if decision == models.StepStatusRejected {
			stepEvent = models.EventTypeStepRejected
		}
		payload, _ := json.Marshal(models.StepDecidedPayload{
			StepID:     step.ID,
			StepNumber: step.StepNumber,
			ApproverID: actorID,
			Status:     decision,
			Comment:    comment,
		})
		if err := e.appendAudit(ctx, tx, &models.Event{
			Type:       stepEvent,
			EntityType: models.EntityTypeStep,
			EntityID:   step.ID,
			ActorID:    actorID,
			Payload:    payload,
		}); err != nil {
			return err
		}
		published = append(published, &models.Event{
			Type:       stepEvent,
			EntityType: models.EntityTypeStep,
			EntityID:   step.ID,
			ActorID:    actorID,
			Payload:    payload,
		})

		if decision == models.StepStatusRejected {
			return e.resolve(ctx, tx, request, models.ApprovalStatusRejected, actorID, comment, &queued, &published)
		}

		// The just-decided step counts as approved in the check: evaluate
		// the step set as it exists after the patch.
		steps, err := e.approvals.ListStepsTx(ctx, tx, requestID)
		if err != nil {
			return err
		}
		allApproved := true
		for _, s := range steps {
			if s.Status != models.StepStatusApproved {
				allApproved = false
				break
			}
		}

		if allApproved {
			return e.resolve(ctx, tx, request, models.ApprovalStatusApproved, actorID, comment, &queued, &published)
		}

		// The index tracks the earliest undecided step. An out-of-turn
		// approval leaves it parked on the step still waiting.
		nextIndex := request.CurrentStepIndex
		if request.Mode == models.WorkflowSequential {
			for _, s := range steps {
				if s.Status == models.StepStatusPending {
					nextIndex = s.StepNumber
					break
				}
			}
		}
		if err := e.approvals.UpdateRequestState(ctx, tx, requestID, models.ApprovalStatusPending, nextIndex); err != nil {
			return err
		}

		if request.Mode == models.WorkflowSequential && nextIndex != request.CurrentStepIndex {
			// Hand the baton to the next approver. Parallel mode sends
			// nothing here: everyone was notified at creation.
			for _, s := range steps {
				if s.StepNumber == nextIndex {
					queued = append(queued, notify.Message{
						RequestID:  requestID,
						Recipients: []string{s.ApproverID},
						Subject:    approvalRequestedSubject(request),
						HTMLBody:   approvalTurnBody(request),
					})
					break
				}
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	metrics.Decisions.WithLabelValues(string(decision)).Inc()

	for _, event := range published {
		e.publish(ctx, event)
	}
	for _, msg := range queued {
		e.dispatchToUsers(ctx, msg)
	}
	return nil
}

// resolve transitions a request to a terminal status and queues the
// requester notification. Runs inside the decision transaction.
func (e *Engine) resolve(ctx context.Context, tx *sql.Tx, request *models.ApprovalRequest, status models.ApprovalStatus, actorID, comment string, queued *[]notify.Message, published *[]*models.Event) error {
	if err := e.approvals.UpdateRequestState(ctx, tx, request.ID, status, request.CurrentStepIndex); err != nil {
		return err
	}

	eventType := models.EventTypeApprovalApproved
	if status == models.ApprovalStatusRejected {
		eventType = models.EventTypeApprovalRejected
	}
	payload, _ := json.Marshal(models.StatusChangedPayload{
		OldStatus: request.Status,
		NewStatus: status,
		Reason:    comment,
	})
	event := &models.Event{
		Type:       eventType,
		EntityType: models.EntityTypeApproval,
		EntityID:   request.ID,
		ActorID:    actorID,
		Payload:    payload,
	}
	if err := e.appendAudit(ctx, tx, event); err != nil {
		return err
	}
	*published = append(*published, event)

	*queued = append(*queued, notify.Message{
		RequestID:  request.ID,
		Recipients: []string{request.RequesterID},
		Subject:    resolutionSubject(request, status),
		HTMLBody:   resolutionBody(request, status, comment),
	})

	metrics.Resolutions.WithLabelValues(string(status)).Inc()
	return nil
}

// RequestRevision resets the workflow: status becomes revision, the step
// index returns to 0 and every step loses its decision. Any
// authenticated user may call this; it is deliberately not restricted to
// assigned approvers.
func (e *Engine) RequestRevision(ctx context.Context, actorID, requestID, comment string) error {
	if actorID == "" {
		return ErrUnauthenticated
	}

	var requesterID string
	err := e.store.TransactionWithRetry(ctx, 0, 0, func(tx *sql.Tx) error {
		request, err := e.approvals.GetRequestTx(ctx, tx, requestID)
		if err != nil {
			return err
		}
		if request.Status.IsTerminal() {
			return fmt.Errorf("%w: request is %s", ErrInvalidState, request.Status)
		}
		requesterID = request.RequesterID

		if err := e.approvals.UpdateRequestState(ctx, tx, requestID, models.ApprovalStatusRevision, 0); err != nil {
			return err
		}
		if err := e.approvals.ResetSteps(ctx, tx, requestID); err != nil {
			return err
		}

		if comment != "" {
			revisionComment := &models.ApprovalComment{
				RequestID: requestID,
				AuthorID:  actorID,
				Content:   comment,
			}
			if err := e.comments.CreateTx(ctx, tx, revisionComment); err != nil {
				return err
			}
		}

		payload, _ := json.Marshal(models.StatusChangedPayload{
			OldStatus: request.Status,
			NewStatus: models.ApprovalStatusRevision,
			Reason:    comment,
		})
		return e.appendAudit(ctx, tx, &models.Event{
			Type:       models.EventTypeApprovalRevisionRequested,
			EntityType: models.EntityTypeApproval,
			EntityID:   requestID,
			ActorID:    actorID,
			Payload:    payload,
		})
	})
	if err != nil {
		return err
	}

	e.publish(ctx, &models.Event{
		Type:       models.EventTypeApprovalRevisionRequested,
		EntityType: models.EntityTypeApproval,
		EntityID:   requestID,
		ActorID:    actorID,
	})
	e.notifyUsers(ctx, requestID, []string{requesterID}, revisionSubject(requestID), revisionBody(comment))
	return nil
}

// Cancel terminates a pending request. Only the original requester may
// cancel.
func (e *Engine) Cancel(ctx context.Context, actorID, requestID string) error {
	if actorID == "" {
		return ErrUnauthenticated
	}

	err := e.store.TransactionWithRetry(ctx, 0, 0, func(tx *sql.Tx) error {
		request, err := e.approvals.GetRequestTx(ctx, tx, requestID)
		if err != nil {
			return err
		}
		if request.RequesterID != actorID {
			return fmt.Errorf("%w: only the requester may cancel", ErrUnauthorized)
		}
		if request.Status != models.ApprovalStatusPending {
			return fmt.Errorf("%w: request is %s", ErrInvalidState, request.Status)
		}

		if err := e.approvals.UpdateRequestState(ctx, tx, requestID, models.ApprovalStatusCancelled, request.CurrentStepIndex); err != nil {
			return err
		}

		payload, _ := json.Marshal(models.StatusChangedPayload{
			OldStatus: request.Status,
			NewStatus: models.ApprovalStatusCancelled,
		})
		return e.appendAudit(ctx, tx, &models.Event{
			Type:       models.EventTypeApprovalCancelled,
			EntityType: models.EntityTypeApproval,
			EntityID:   requestID,
			ActorID:    actorID,
			Payload:    payload,
		})
	})
	if err != nil {
		return err
	}

	metrics.Resolutions.WithLabelValues(string(models.ApprovalStatusCancelled)).Inc()
	e.publish(ctx, &models.Event{
		Type:       models.EventTypeApprovalCancelled,
		EntityType: models.EntityTypeApproval,
		EntityID:   requestID,
		ActorID:    actorID,
	})
	return nil
}

// AddComment appends a discussion comment. Allowed in every status;
// discussion may continue after resolution.
func (e *Engine) AddComment(ctx context.Context, actorID, requestID, content string, attachments []models.Attachment) (*models.ApprovalComment, error) {
	if actorID == "" {
		return nil, ErrUnauthenticated
	}

	comment := &models.ApprovalComment{
		RequestID:   requestID,
		AuthorID:    actorID,
		Content:     content,
		Attachments: attachments,
	}

	err := e.store.TransactionWithRetry(ctx, 0, 0, func(tx *sql.Tx) error {
		if _, err := e.approvals.GetRequestTx(ctx, tx, requestID); err != nil {
			return err
		}
		if err := e.comments.CreateTx(ctx, tx, comment); err != nil {
			return err
		}
		return e.appendAudit(ctx, tx, &models.Event{
			Type:       models.EventTypeCommentAdded,
			EntityType: models.EntityTypeComment,
			EntityID:   comment.ID,
			ActorID:    actorID,
		})
	})
	if err != nil {
		return nil, err
	}

	e.publish(ctx, &models.Event{
		Type:       models.EventTypeCommentAdded,
		EntityType: models.EntityTypeComment,
		EntityID:   comment.ID,
		ActorID:    actorID,
	})
	return comment, nil
}

func (e *Engine) appendAudit(ctx context.Context, tx *sql.Tx, event *models.Event) error {
	return e.audit.AppendTx(ctx, tx, event)
}

func (e *Engine) publish(ctx context.Context, event *models.Event) {
	if e.publisher == nil {
		return
	}
	event.Timestamp = time.Now().UTC()
	e.publisher.Publish(ctx, event)
}

// notifyUsers resolves user IDs to email addresses and hands the message
// to the dispatcher. Resolution failure is logged and dropped, like any
// other notification failure.
func (e *Engine) notifyUsers(ctx context.Context, requestID string, userIDs []string, subject, body string) {
	e.dispatchToUsers(ctx, notify.Message{
		RequestID:  requestID,
		Recipients: userIDs,
		Subject:    subject,
		HTMLBody:   body,
	})
}

func (e *Engine) dispatchToUsers(ctx context.Context, msg notify.Message) {
	if e.dispatcher == nil {
		return
	}

	users, err := e.users.GetMany(ctx, msg.Recipients)
	if err != nil {
		e.logger.Warn().Err(err).Msg("failed to resolve notification recipients")
		return
	}

	emails := make([]string, 0, len(msg.Recipients))
	for _, id := range msg.Recipients {
		if user, ok := users[id]; ok {
			emails = append(emails, user.Email)
		}
	}
	if len(emails) == 0 {
		return
	}

	metrics.NotificationsDispatched.Inc()
	e.dispatcher.Dispatch(notify.Message{
		RequestID:  msg.RequestID,
		Recipients: emails,
		Subject:    msg.Subject,
		HTMLBody:   msg.HTMLBody,
	})
}
