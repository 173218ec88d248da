package workflow

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/rs/zerolog"

	"github.com/mbakke/signoff/internal/db"
	"github.com/mbakke/signoff/internal/models"
	"github.com/mbakke/signoff/internal/notify"
)

// recorderNotifier captures dispatched messages for assertions.
type recorderNotifier struct {
	mu   sync.Mutex
	sent []notify.Message
}

func (r *recorderNotifier) Notify(ctx context.Context, recipients []string, subject, htmlBody string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, notify.Message{Recipients: recipients, Subject: subject, HTMLBody: htmlBody})
	return nil
}

func (r *recorderNotifier) messages() []notify.Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]notify.Message(nil), r.sent...)
}

func (r *recorderNotifier) recipientsSeen() map[string]bool {
	seen := make(map[string]bool)
	for _, msg := range r.messages() {
		for _, rcpt := range msg.Recipients {
			seen[rcpt] = true
		}
	}
	return seen
}

type engineFixture struct {
	db         *db.DB
	engine     *Engine
	recorder   *recorderNotifier
	dispatcher *notify.Dispatcher

	rita  *models.User
	alice *models.User
	bob   *models.User
	carol *models.User
}

func newEngineFixture(t *testing.T) *engineFixture {
	t.Helper()

	store, err := db.OpenInMemory()
	if err != nil {
		t.Fatalf("open in-memory database: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	if err := store.Migrate(context.Background()); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	recorder := &recorderNotifier{}
	dispatcher := notify.NewDispatcher(recorder, zerolog.Nop())

	f := &engineFixture{
		db:         store,
		engine:     NewEngine(store, dispatcher, nil, zerolog.Nop()),
		recorder:   recorder,
		dispatcher: dispatcher,
	}

	users := db.NewUserRepository(store)
	for _, u := range []struct {
		target **models.User
		name   string
		email  string
	}{
		{&f.rita, "Rita", "rita@example.com"},
		{&f.alice, "Alice", "alice@example.com"},
		{&f.bob, "Bob", "bob@example.com"},
		{&f.carol, "Carol", "carol@example.com"},
	} {
		user := &models.User{Name: u.name, Email: u.email}
		if err := users.Create(context.Background(), user); err != nil {
			t.Fatalf("create user %s: %v", u.name, err)
		}
		*u.target = user
	}
	return f
}

func (f *engineFixture) create(t *testing.T, mode models.WorkflowMode, approvers ...*models.User) *models.ApprovalRequest {
	t.Helper()

	ids := make([]string, len(approvers))
	for i, a := range approvers {
		ids[i] = a.ID
	}
	request, err := f.engine.Create(context.Background(), f.rita.ID, CreateParams{
		Title:       "Launch sign-off",
		Type:        models.ApprovalTypeDecision,
		Mode:        mode,
		ApproverIDs: ids,
	})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	return request
}

func (f *engineFixture) get(t *testing.T, id string) *models.ApprovalRequest {
	t.Helper()

	request, err := f.engine.Get(context.Background(), id)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	return request
}

func TestEngineCreate_Sequential(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()

	request := f.create(t, models.WorkflowSequential, f.alice, f.bob)
	if request.Status != models.ApprovalStatusPending {
		t.Errorf("status = %q, want pending", request.Status)
	}
	if request.CurrentStepIndex != 0 {
		t.Errorf("current step index = %d, want 0", request.CurrentStepIndex)
	}
	if len(request.Steps) != 2 {
		t.Fatalf("expected 2 steps, got %d", len(request.Steps))
	}
	if request.Steps[0].StepNumber != 0 || request.Steps[1].StepNumber != 1 {
		t.Errorf("step numbers = %d, %d; want 0, 1", request.Steps[0].StepNumber, request.Steps[1].StepNumber)
	}

	// Only the first approver hears about a new sequential request.
	f.dispatcher.Wait()
	seen := f.recorder.recipientsSeen()
	if !seen[f.alice.Email] {
		t.Error("expected alice to be notified")
	}
	if seen[f.bob.Email] {
		t.Error("bob should not be notified until it is his turn")
	}

	trail, err := f.engine.AuditTrail(ctx, request.ID)
	if err != nil {
		t.Fatalf("AuditTrail failed: %v", err)
	}
	if len(trail) != 1 || trail[0].Type != models.EventTypeApprovalCreated {
		t.Errorf("audit trail = %+v", trail)
	}
}

func TestEngineCreate_Parallel(t *testing.T) {
	f := newEngineFixture(t)

	request := f.create(t, models.WorkflowParallel, f.alice, f.bob, f.carol)
	for _, step := range request.Steps {
		if step.StepNumber != 0 {
			t.Errorf("parallel step number = %d, want 0", step.StepNumber)
		}
	}

	f.dispatcher.Wait()
	seen := f.recorder.recipientsSeen()
	for _, u := range []*models.User{f.alice, f.bob, f.carol} {
		if !seen[u.Email] {
			t.Errorf("expected %s to be notified at creation", u.Name)
		}
	}
}

func TestEngineCreate_Validation(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()

	_, err := f.engine.Create(ctx, "", CreateParams{
		Title: "x", Type: models.ApprovalTypeOther, Mode: models.WorkflowParallel, ApproverIDs: []string{f.alice.ID},
	})
	if !errors.Is(err, ErrUnauthenticated) {
		t.Errorf("empty actor: expected ErrUnauthenticated, got %v", err)
	}

	var validation *models.ValidationErrors

	_, err = f.engine.Create(ctx, f.rita.ID, CreateParams{
		Title: "x", Type: models.ApprovalTypeOther, Mode: models.WorkflowParallel,
	})
	if !errors.As(err, &validation) {
		t.Errorf("no approvers: expected validation error, got %v", err)
	}

	_, err = f.engine.Create(ctx, f.rita.ID, CreateParams{
		Title: "x", Type: models.ApprovalTypeOther, Mode: models.WorkflowParallel,
		ApproverIDs: []string{f.alice.ID, f.alice.ID},
	})
	if !errors.As(err, &validation) {
		t.Errorf("duplicate approver: expected validation error, got %v", err)
	}

	_, err = f.engine.Create(ctx, f.rita.ID, CreateParams{
		Title: "x", Type: models.ApprovalTypeOther, Mode: models.WorkflowParallel,
		ApproverIDs: []string{"nobody"},
	})
	if !errors.As(err, &validation) {
		t.Errorf("unknown approver: expected validation error, got %v", err)
	}

	_, err = f.engine.Create(ctx, f.rita.ID, CreateParams{
		Type: models.ApprovalTypeOther, Mode: models.WorkflowParallel, ApproverIDs: []string{f.alice.ID},
	})
	if !errors.As(err, &validation) {
		t.Errorf("missing title: expected validation error, got %v", err)
	}
}

func TestEngineSequentialApprovalFlow(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()

	request := f.create(t, models.WorkflowSequential, f.alice, f.bob)

	if err := f.engine.Approve(ctx, f.alice.ID, request.ID, "looks good"); err != nil {
		t.Fatalf("approve as alice: %v", err)
	}
	got := f.get(t, request.ID)
	if got.Status != models.ApprovalStatusPending {
		t.Errorf("status after first approval = %q, want pending", got.Status)
	}
	if got.CurrentStepIndex != 1 {
		t.Errorf("current step index = %d, want 1", got.CurrentStepIndex)
	}
	if got.Steps[0].Status != models.StepStatusApproved || got.Steps[0].Comment != "looks good" {
		t.Errorf("alice's step = %+v", got.Steps[0])
	}
	if got.Steps[0].DecidedAt == nil {
		t.Error("expected decided_at on alice's step")
	}

	// Alice's approval hands the baton to bob.
	f.dispatcher.Wait()
	if !f.recorder.recipientsSeen()[f.bob.Email] {
		t.Error("expected bob to be notified after alice approved")
	}

	if err := f.engine.Approve(ctx, f.bob.ID, request.ID, ""); err != nil {
		t.Fatalf("approve as bob: %v", err)
	}
	got = f.get(t, request.ID)
	if got.Status != models.ApprovalStatusApproved {
		t.Errorf("status after last approval = %q, want approved", got.Status)
	}

	// Terminal: alice deciding again fails.
	err := f.engine.Approve(ctx, f.alice.ID, request.ID, "")
	if !errors.Is(err, ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState, got %v", err)
	}

	// The requester hears about the resolution.
	f.dispatcher.Wait()
	if !f.recorder.recipientsSeen()[f.rita.Email] {
		t.Error("expected rita to be notified of the resolution")
	}
}

func TestEngineSequentialOutOfTurnApproval(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()

	request := f.create(t, models.WorkflowSequential, f.alice, f.bob, f.carol)
	f.dispatcher.Wait()
	before := len(f.recorder.messages())

	// Bob decides before his turn. The index stays parked on alice,
	// who is still the earliest undecided step.
	if err := f.engine.Approve(ctx, f.bob.ID, request.ID, ""); err != nil {
		t.Fatalf("approve as bob: %v", err)
	}
	got := f.get(t, request.ID)
	if got.CurrentStepIndex != 0 {
		t.Errorf("current step index = %d after out-of-turn approval, want 0", got.CurrentStepIndex)
	}

	actionable, err := f.engine.ListActionableForUser(ctx, f.alice.ID)
	if err != nil {
		t.Fatalf("ListActionableForUser failed: %v", err)
	}
	if len(actionable) != 1 {
		t.Errorf("actionable for alice = %d, want 1", len(actionable))
	}

	// No baton message goes out: the pending approver was already
	// notified at creation, and the decider must not be re-notified.
	f.dispatcher.Wait()
	if got := len(f.recorder.messages()); got != before {
		t.Errorf("messages after out-of-turn approval = %d, want %d", got, before)
	}

	// Alice decides; bob is already done, so the baton skips to carol.
	if err := f.engine.Approve(ctx, f.alice.ID, request.ID, ""); err != nil {
		t.Fatalf("approve as alice: %v", err)
	}
	got = f.get(t, request.ID)
	if got.CurrentStepIndex != 2 {
		t.Errorf("current step index = %d after alice approved, want 2", got.CurrentStepIndex)
	}
	f.dispatcher.Wait()
	if !f.recorder.recipientsSeen()[f.carol.Email] {
		t.Error("expected carol to be notified once the earlier steps are decided")
	}

	if err := f.engine.Approve(ctx, f.carol.ID, request.ID, ""); err != nil {
		t.Fatalf("approve as carol: %v", err)
	}
	if got := f.get(t, request.ID); got.Status != models.ApprovalStatusApproved {
		t.Errorf("status = %q, want approved", got.Status)
	}
}

func TestEngineParallelApproval_AnyOrder(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()

	request := f.create(t, models.WorkflowParallel, f.alice, f.bob, f.carol)

	for _, approver := range []*models.User{f.carol, f.alice} {
		if err := f.engine.Approve(ctx, approver.ID, request.ID, ""); err != nil {
			t.Fatalf("approve as %s: %v", approver.Name, err)
		}
		got := f.get(t, request.ID)
		if got.Status != models.ApprovalStatusPending {
			t.Fatalf("status = %q after %s, want pending", got.Status, approver.Name)
		}
		if got.CurrentStepIndex != 0 {
			t.Errorf("parallel mode advanced the step index to %d", got.CurrentStepIndex)
		}
	}

	if err := f.engine.Approve(ctx, f.bob.ID, request.ID, ""); err != nil {
		t.Fatalf("approve as bob: %v", err)
	}
	got := f.get(t, request.ID)
	if got.Status != models.ApprovalStatusApproved {
		t.Errorf("status = %q, want approved once all steps are approved", got.Status)
	}
}

func TestEngineReject_ShortCircuits(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()

	request := f.create(t, models.WorkflowParallel, f.alice, f.bob, f.carol)

	if err := f.engine.Reject(ctx, f.bob.ID, request.ID, "budget is wrong"); err != nil {
		t.Fatalf("reject as bob: %v", err)
	}
	got := f.get(t, request.ID)
	if got.Status != models.ApprovalStatusRejected {
		t.Fatalf("status = %q, want rejected", got.Status)
	}

	// Undecided steps surface as skipped in the enriched view.
	for _, step := range got.Steps {
		switch step.ApproverID {
		case f.bob.ID:
			if step.Status != models.StepStatusRejected {
				t.Errorf("bob's step = %q, want rejected", step.Status)
			}
		default:
			if step.Status != models.StepStatusSkipped {
				t.Errorf("undecided step = %q, want skipped", step.Status)
			}
		}
	}

	// Rejection is final: further decisions fail with InvalidState.
	if err := f.engine.Approve(ctx, f.carol.ID, request.ID, ""); !errors.Is(err, ErrInvalidState) {
		t.Errorf("approve after reject: expected ErrInvalidState, got %v", err)
	}
	if err := f.engine.Reject(ctx, f.alice.ID, request.ID, ""); !errors.Is(err, ErrInvalidState) {
		t.Errorf("second reject: expected ErrInvalidState, got %v", err)
	}

	// The rejected request leaves the other approvers' inboxes.
	inbox, err := f.engine.ListPendingForUser(ctx, f.carol.ID)
	if err != nil {
		t.Fatalf("ListPendingForUser failed: %v", err)
	}
	if len(inbox) != 0 {
		t.Errorf("expected empty inbox for carol, got %d requests", len(inbox))
	}
}

func TestEngineRequestRevision_RoundTrip(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()

	request := f.create(t, models.WorkflowSequential, f.alice, f.bob)

	if err := f.engine.Approve(ctx, f.alice.ID, request.ID, "ok"); err != nil {
		t.Fatalf("approve as alice: %v", err)
	}

	if err := f.engine.RequestRevision(ctx, f.bob.ID, request.ID, "needs more detail"); err != nil {
		t.Fatalf("RequestRevision failed: %v", err)
	}
	got := f.get(t, request.ID)
	if got.Status != models.ApprovalStatusRevision {
		t.Errorf("status = %q, want revision", got.Status)
	}
	if got.CurrentStepIndex != 0 {
		t.Errorf("current step index = %d, want 0 after reset", got.CurrentStepIndex)
	}
	for _, step := range got.Steps {
		if step.Status != models.StepStatusPending || step.Comment != "" || step.DecidedAt != nil {
			t.Errorf("step not fully reset: %+v", step)
		}
	}

	comments, err := f.engine.GetComments(ctx, request.ID)
	if err != nil {
		t.Fatalf("GetComments failed: %v", err)
	}
	if len(comments) != 1 || comments[0].Content != "needs more detail" {
		t.Fatalf("expected revision comment, got %+v", comments)
	}

	// Re-deciding all steps reproduces the fresh-request outcome.
	if err := f.engine.Approve(ctx, f.alice.ID, request.ID, ""); err != nil {
		t.Fatalf("re-approve as alice: %v", err)
	}
	got = f.get(t, request.ID)
	if got.Status != models.ApprovalStatusPending || got.CurrentStepIndex != 1 {
		t.Fatalf("after re-approval: status = %q index = %d", got.Status, got.CurrentStepIndex)
	}
	if err := f.engine.Approve(ctx, f.bob.ID, request.ID, ""); err != nil {
		t.Fatalf("re-approve as bob: %v", err)
	}
	if got = f.get(t, request.ID); got.Status != models.ApprovalStatusApproved {
		t.Errorf("status = %q, want approved", got.Status)
	}

	// Terminal requests cannot be sent back for revision.
	err = f.engine.RequestRevision(ctx, f.bob.ID, request.ID, "")
	if !errors.Is(err, ErrInvalidState) {
		t.Fatalf("revision on approved request: expected ErrInvalidState, got %v", err)
	}
}

func TestEngineCancel_Authorization(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()

	request := f.create(t, models.WorkflowParallel, f.alice)

	if err := f.engine.Cancel(ctx, f.alice.ID, request.ID); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("cancel by non-requester: expected ErrUnauthorized, got %v", err)
	}

	if err := f.engine.Cancel(ctx, f.rita.ID, request.ID); err != nil {
		t.Fatalf("cancel by requester: %v", err)
	}
	if got := f.get(t, request.ID); got.Status != models.ApprovalStatusCancelled {
		t.Errorf("status = %q, want cancelled", got.Status)
	}

	// Cancelled is terminal.
	if err := f.engine.Cancel(ctx, f.rita.ID, request.ID); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("second cancel: expected ErrInvalidState, got %v", err)
	}
	if err := f.engine.Approve(ctx, f.alice.ID, request.ID, ""); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("approve after cancel: expected ErrInvalidState, got %v", err)
	}
}

func TestEngineCancel_AfterResolutionFails(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()

	request := f.create(t, models.WorkflowParallel, f.alice)
	if err := f.engine.Approve(ctx, f.alice.ID, request.ID, ""); err != nil {
		t.Fatalf("approve: %v", err)
	}

	err := f.engine.Cancel(ctx, f.rita.ID, request.ID)
	if !errors.Is(err, ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState, got %v", err)
	}
}

func TestEngineDecide_NonApproverFails(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()

	request := f.create(t, models.WorkflowParallel, f.alice)

	err := f.engine.Approve(ctx, f.carol.ID, request.ID, "")
	if !errors.Is(err, db.ErrStepNotFound) {
		t.Fatalf("expected ErrStepNotFound, got %v", err)
	}

	// A decided step cannot be decided twice even while the request is
	// still pending.
	parallel := f.create(t, models.WorkflowParallel, f.alice, f.bob)
	if err := f.engine.Approve(ctx, f.alice.ID, parallel.ID, ""); err != nil {
		t.Fatalf("approve: %v", err)
	}
	if err := f.engine.Approve(ctx, f.alice.ID, parallel.ID, ""); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("double decision: expected ErrInvalidState, got %v", err)
	}
}

func TestEngineAddComment(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()

	request := f.create(t, models.WorkflowParallel, f.alice)

	comment, err := f.engine.AddComment(ctx, f.alice.ID, request.ID, "what is the deadline?", nil)
	if err != nil {
		t.Fatalf("AddComment failed: %v", err)
	}
	if comment.ID == "" {
		t.Fatal("expected comment ID to be assigned")
	}

	// Discussion continues after resolution.
	if err := f.engine.Cancel(ctx, f.rita.ID, request.ID); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if _, err := f.engine.AddComment(ctx, f.rita.ID, request.ID, "cancelled, superseded by v2", nil); err != nil {
		t.Fatalf("AddComment after cancel failed: %v", err)
	}

	comments, err := f.engine.GetComments(ctx, request.ID)
	if err != nil {
		t.Fatalf("GetComments failed: %v", err)
	}
	if len(comments) != 2 {
		t.Fatalf("expected 2 comments, got %d", len(comments))
	}
	if comments[0].AuthorName != "Alice" {
		t.Errorf("author name = %q, want Alice", comments[0].AuthorName)
	}

	_, err = f.engine.AddComment(ctx, f.rita.ID, "missing", "hello", nil)
	if !errors.Is(err, db.ErrRequestNotFound) {
		t.Fatalf("expected ErrRequestNotFound, got %v", err)
	}
}

func TestEngineListQueries(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()

	sequential := f.create(t, models.WorkflowSequential, f.alice, f.bob)
	parallel := f.create(t, models.WorkflowParallel, f.bob, f.carol)

	all, err := f.engine.List(ctx, db.ApprovalQuery{})
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("expected 2 requests, got %d", len(all))
	}

	// Permissive inbox: bob sees both, including the sequential request
	// where it is not yet his turn.
	pending, err := f.engine.ListPendingForUser(ctx, f.bob.ID)
	if err != nil {
		t.Fatalf("ListPendingForUser failed: %v", err)
	}
	if len(pending) != 2 {
		t.Fatalf("expected 2 pending requests for bob, got %d", len(pending))
	}

	// Strict inbox: only the parallel request is actionable for bob.
	actionable, err := f.engine.ListActionableForUser(ctx, f.bob.ID)
	if err != nil {
		t.Fatalf("ListActionableForUser failed: %v", err)
	}
	if len(actionable) != 1 || actionable[0].ID != parallel.ID {
		t.Fatalf("expected only the parallel request, got %+v", actionable)
	}

	// Once alice decides, the sequential request becomes actionable too.
	if err := f.engine.Approve(ctx, f.alice.ID, sequential.ID, ""); err != nil {
		t.Fatalf("approve: %v", err)
	}
	actionable, err = f.engine.ListActionableForUser(ctx, f.bob.ID)
	if err != nil {
		t.Fatalf("ListActionableForUser failed: %v", err)
	}
	if len(actionable) != 2 {
		t.Fatalf("expected 2 actionable requests for bob, got %d", len(actionable))
	}
}

func TestEngineAuditTrail(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()

	request := f.create(t, models.WorkflowParallel, f.alice, f.bob)
	if err := f.engine.Approve(ctx, f.alice.ID, request.ID, ""); err != nil {
		t.Fatalf("approve: %v", err)
	}
	if err := f.engine.Reject(ctx, f.bob.ID, request.ID, "no"); err != nil {
		t.Fatalf("reject: %v", err)
	}

	trail, err := f.engine.AuditTrail(ctx, request.ID)
	if err != nil {
		t.Fatalf("AuditTrail failed: %v", err)
	}

	var types []string
	for _, event := range trail {
		types = append(types, string(event.Type))
	}
	joined := strings.Join(types, ",")
	want := "approval.created,approval.rejected"
	if joined != want {
		t.Errorf("approval-level trail = %q, want %q", joined, want)
	}
}
