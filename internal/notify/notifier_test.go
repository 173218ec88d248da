package notify

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/mbakke/signoff/internal/models"
)

type fakeNotifier struct {
	mu    sync.Mutex
	calls []Message
	err   error
}

func (f *fakeNotifier) Notify(ctx context.Context, recipients []string, subject, htmlBody string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, Message{Recipients: recipients, Subject: subject, HTMLBody: htmlBody})
	return f.err
}

func (f *fakeNotifier) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func TestDispatcherDelivers(t *testing.T) {
	notifier := &fakeNotifier{}
	d := NewDispatcher(notifier, zerolog.Nop())

	d.Dispatch(Message{
		Recipients: []string{"alice@example.com"},
		Subject:    "Approval requested",
		HTMLBody:   "<p>please review</p>",
	})
	d.Wait()

	if notifier.count() != 1 {
		t.Fatalf("expected 1 delivery, got %d", notifier.count())
	}
	if notifier.calls[0].Subject != "Approval requested" {
		t.Errorf("subject = %q", notifier.calls[0].Subject)
	}
}

func TestDispatcherSkipsEmptyRecipients(t *testing.T) {
	notifier := &fakeNotifier{}
	d := NewDispatcher(notifier, zerolog.Nop())

	d.Dispatch(Message{Subject: "no one to tell"})
	d.Wait()

	if notifier.count() != 0 {
		t.Fatalf("expected no deliveries, got %d", notifier.count())
	}
}

func TestDispatcherFailureDoesNotPropagate(t *testing.T) {
	notifier := &fakeNotifier{err: errors.New("smtp: connection refused")}

	var mu sync.Mutex
	var failed []Message
	d := NewDispatcher(notifier, zerolog.Nop(),
		WithTimeout(time.Second),
		WithFailureHook(func(msg Message, err error) {
			mu.Lock()
			defer mu.Unlock()
			failed = append(failed, msg)
		}),
	)

	d.Dispatch(Message{Recipients: []string{"bob@example.com"}, Subject: "doomed"})
	d.Wait()

	mu.Lock()
	defer mu.Unlock()
	if len(failed) != 1 || failed[0].Subject != "doomed" {
		t.Fatalf("expected failure hook for the doomed message, got %+v", failed)
	}
}

func TestSMTPNotifierRejectsBadInput(t *testing.T) {
	ctx := context.Background()

	unconfigured := NewSMTPNotifier("", 0, "", "", "signoff@example.com")
	if err := unconfigured.Notify(ctx, []string{"a@example.com"}, "s", "b"); err == nil {
		t.Fatal("expected error for unconfigured notifier")
	}

	n := NewSMTPNotifier("localhost", 2525, "", "", "signoff@example.com")
	if err := n.Notify(ctx, []string{"not-an-address"}, "s", "b"); err == nil {
		t.Fatal("expected error for invalid recipient")
	}
}

func TestLogNotifier(t *testing.T) {
	n := NewLogNotifier(zerolog.Nop())
	err := n.Notify(context.Background(), []string{"a@example.com"}, "subject", "<p>body</p>")
	if err != nil {
		t.Fatalf("LogNotifier should never fail, got %v", err)
	}
}

type fakeAppender struct {
	mu     sync.Mutex
	events []*models.Event
}

func (f *fakeAppender) Append(ctx context.Context, event *models.Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, event)
	return nil
}

func (f *fakeAppender) appended() []*models.Event {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*models.Event(nil), f.events...)
}

func TestRecordFailuresAppendsAuditEvent(t *testing.T) {
	notifier := &fakeNotifier{err: errors.New("smtp down")}
	appender := &fakeAppender{}
	d := NewDispatcher(notifier, zerolog.Nop(),
		WithFailureHook(RecordFailures(appender, zerolog.Nop())))

	d.Dispatch(Message{
		RequestID:  "req-1",
		Recipients: []string{"alice@example.com"},
		Subject:    "Approval requested",
	})
	d.Wait()

	events := appender.appended()
	if len(events) != 1 {
		t.Fatalf("expected 1 audit event, got %d", len(events))
	}
	event := events[0]
	if event.Type != models.EventTypeNotificationFailed {
		t.Errorf("event type = %q, want %q", event.Type, models.EventTypeNotificationFailed)
	}
	if event.EntityType != models.EntityTypeApproval || event.EntityID != "req-1" {
		t.Errorf("event entity = %s/%s, want approval/req-1", event.EntityType, event.EntityID)
	}

	var payload models.NotificationFailedPayload
	if err := json.Unmarshal(event.Payload, &payload); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
	if payload.Error != "smtp down" {
		t.Errorf("payload error = %q", payload.Error)
	}
	if len(payload.Recipients) != 1 || payload.Recipients[0] != "alice@example.com" {
		t.Errorf("payload recipients = %v", payload.Recipients)
	}
}

func TestRecordFailuresWithoutRequestFallsBackToSystem(t *testing.T) {
	appender := &fakeAppender{}
	hook := RecordFailures(appender, zerolog.Nop())

	hook(Message{Recipients: []string{"ops@example.com"}}, errors.New("boom"))

	events := appender.appended()
	if len(events) != 1 {
		t.Fatalf("expected 1 audit event, got %d", len(events))
	}
	if events[0].EntityType != models.EntityTypeSystem || events[0].EntityID != "notifier" {
		t.Errorf("event entity = %s/%s, want system/notifier", events[0].EntityType, events[0].EntityID)
	}
}
