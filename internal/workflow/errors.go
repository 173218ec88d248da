// Package workflow implements the approval workflow engine: the state
// machine that moves a request from creation through approver decisions
// to a terminal outcome.
package workflow

import (
	"errors"
)

// Engine errors. NotFound conditions are surfaced as the repository
// sentinels (db.ErrRequestNotFound, db.ErrStepNotFound, db.ErrUserNotFound).
var (
	// ErrUnauthenticated is returned when an operation has no acting
	// identity. The operation never starts.
	ErrUnauthenticated = errors.New("no acting identity")

	// ErrInvalidState is returned when a request or step is not in the
	// status the operation requires.
	ErrInvalidState = errors.New("operation not allowed in current state")

	// ErrUnauthorized is returned when the actor lacks the required
	// relationship to the request.
	ErrUnauthorized = errors.New("actor is not allowed to perform this operation")
)
