package models

import (
	"errors"
	"testing"
)

func TestValidationErrorsNestedFields(t *testing.T) {
	nested := &ValidationErrors{}
	nested.AddMessage("url", "url is required")

	validation := &ValidationErrors{}
	validation.Add("attachments", nested)

	err := validation.Err()
	if err == nil {
		t.Fatal("expected error")
	}

	list, ok := err.(*ValidationErrors)
	if !ok {
		t.Fatalf("expected ValidationErrors type, got %T", err)
	}
	if len(list.Errors) != 1 {
		t.Fatalf("expected 1 error, got %d", len(list.Errors))
	}
	if list.Errors[0].Field != "attachments.url" {
		t.Fatalf("expected field attachments.url, got %q", list.Errors[0].Field)
	}
}

func TestValidationErrorsEmpty(t *testing.T) {
	validation := &ValidationErrors{}
	if err := validation.Err(); err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	validation.AddMessage("field", "")
	if err := validation.Err(); err != nil {
		t.Fatalf("empty message should be ignored, got %v", err)
	}
}

func TestValidationErrorsMessageJoin(t *testing.T) {
	validation := &ValidationErrors{}
	validation.AddMessage("title", "title is required")
	validation.Add("mode", errors.New("unknown workflow mode"))

	got := validation.Error()
	want := "title: title is required; mode: unknown workflow mode"
	if got != want {
		t.Fatalf("Error() = %q, want %q", got, want)
	}
}
