package models

import (
	"strings"
	"time"
)

// User is a directory entry for an acting principal. The engine resolves
// approver and requester IDs against the directory to address
// notifications; it performs no authentication itself.
type User struct {
	// ID is the unique identifier for the user.
	ID string `json:"id"`

	// Name is the display name.
	Name string `json:"name"`

	// Email is where notifications are delivered.
	Email string `json:"email"`

	// CreatedAt is when the user was added to the directory.
	CreatedAt time.Time `json:"created_at"`
}

// Validate checks the user before insertion.
func (u *User) Validate() error {
	validation := &ValidationErrors{}
	if u.Name == "" {
		validation.AddMessage("name", "name is required")
	}
	if u.Email == "" {
		validation.AddMessage("email", "email is required")
	} else if !strings.Contains(u.Email, "@") {
		validation.AddMessage("email", "invalid email address: "+u.Email)
	}
	return validation.Err()
}
