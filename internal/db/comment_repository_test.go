package db

import (
	"context"
	"testing"

	"github.com/mbakke/signoff/internal/models"
)

func TestCommentRepository_CreateAndList(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	ctx := context.Background()
	repo := NewCommentRepository(db)

	requester := createTestUser(t, db, "Rita", "rita@example.com")
	alice := createTestUser(t, db, "Alice", "alice@example.com")
	request, _ := createTestRequest(t, db, requester, models.WorkflowParallel, alice)

	first := &models.ApprovalComment{
		RequestID: request.ID,
		AuthorID:  alice.ID,
		Content:   "Can you attach the quote?",
	}
	if err := repo.Create(ctx, first); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	second := &models.ApprovalComment{
		RequestID: request.ID,
		AuthorID:  requester.ID,
		Content:   "Done, see above.",
		Attachments: []models.Attachment{
			{Name: "quote.pdf", URL: "https://files.example.com/quote.pdf"},
		},
	}
	if err := repo.Create(ctx, second); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	comments, err := repo.ListByRequest(ctx, request.ID)
	if err != nil {
		t.Fatalf("ListByRequest failed: %v", err)
	}
	if len(comments) != 2 {
		t.Fatalf("expected 2 comments, got %d", len(comments))
	}
	if comments[0].Content != first.Content {
		t.Errorf("expected chronological order, first = %q", comments[0].Content)
	}
	if comments[0].AuthorName != "Alice" {
		t.Errorf("author name = %q, want Alice", comments[0].AuthorName)
	}
	if len(comments[1].Attachments) != 1 || comments[1].Attachments[0].Name != "quote.pdf" {
		t.Errorf("attachments = %+v", comments[1].Attachments)
	}
}

func TestCommentRepository_ValidatesContent(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	repo := NewCommentRepository(db)
	err := repo.Create(context.Background(), &models.ApprovalComment{
		RequestID: "req-1",
		AuthorID:  "user-1",
	})
	if err == nil {
		t.Fatal("expected validation error for empty content")
	}
}
