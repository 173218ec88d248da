package db

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/mbakke/signoff/internal/models"
)

func setupTestDB(t *testing.T) *DB {
	t.Helper()

	db, err := OpenInMemory()
	if err != nil {
		t.Fatalf("open in-memory database: %v", err)
	}
	if err := db.Migrate(context.Background()); err != nil {
		db.Close()
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func createTestUser(t *testing.T, db *DB, name, email string) *models.User {
	t.Helper()

	user := &models.User{Name: name, Email: email}
	if err := NewUserRepository(db).Create(context.Background(), user); err != nil {
		t.Fatalf("create user %s: %v", name, err)
	}
	return user
}

func createTestRequest(t *testing.T, db *DB, requester *models.User, mode models.WorkflowMode, approvers ...*models.User) (*models.ApprovalRequest, []*models.ApprovalStep) {
	t.Helper()

	request := &models.ApprovalRequest{
		Title:       "Deploy release",
		RequesterID: requester.ID,
		Type:        models.ApprovalTypeDecision,
		Mode:        mode,
		Status:      models.ApprovalStatusPending,
	}
	steps := make([]*models.ApprovalStep, len(approvers))
	for i, approver := range approvers {
		stepNumber := 0
		if mode == models.WorkflowSequential {
			stepNumber = i
		}
		steps[i] = &models.ApprovalStep{
			StepNumber: stepNumber,
			ApproverID: approver.ID,
			Status:     models.StepStatusPending,
		}
	}

	repo := NewApprovalRepository(db)
	err := db.Transaction(context.Background(), func(tx *sql.Tx) error {
		return repo.CreateRequest(context.Background(), tx, request, steps)
	})
	if err != nil {
		t.Fatalf("create request: %v", err)
	}
	return request, steps
}

func TestTimeLayoutNanoSortsLexically(t *testing.T) {
	base := time.Date(2026, 8, 29, 10, 0, 5, 0, time.UTC)
	times := []time.Time{
		base,                                // exact second
		base.Add(300 * time.Millisecond),    // trailing zeros after trim
		base.Add(999 * time.Nanosecond),     // sub-microsecond
		base.Add(time.Second),               // next second
	}

	formatted := make([]string, len(times))
	for i, ts := range times {
		formatted[i] = ts.Format(timeLayoutNano)
	}

	for i := 1; i < len(formatted); i++ {
		if formatted[i-1] >= formatted[i] {
			t.Errorf("%q does not sort before %q", formatted[i-1], formatted[i])
		}
	}

	for i, s := range formatted {
		parsed, err := parseTime(s)
		if err != nil {
			t.Fatalf("parse %q: %v", s, err)
		}
		if !parsed.Equal(times[i]) {
			t.Errorf("round trip of %v gave %v", times[i], parsed)
		}
	}
}
