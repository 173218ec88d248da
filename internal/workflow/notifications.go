package workflow

import (
	"fmt"
	"html"

	"github.com/mbakke/signoff/internal/models"
)

// Notification payload construction. Bodies are small self-contained
// HTML fragments; layout and branding belong to the mail client.

func approvalRequestedSubject(request *models.ApprovalRequest) string {
	return fmt.Sprintf("Approval requested: %s", request.Title)
}

func approvalRequestedBody(request *models.ApprovalRequest, requester *models.User) string {
	requesterName := request.RequesterID
	if requester != nil {
		requesterName = requester.Name
	}

	body := fmt.Sprintf("<p><strong>%s</strong> requested your approval on <strong>%s</strong>.</p>",
		html.EscapeString(requesterName), html.EscapeString(request.Title))
	if request.Description != "" {
		body += fmt.Sprintf("<p>%s</p>", html.EscapeString(request.Description))
	}
	if request.BudgetAmount != nil {
		body += fmt.Sprintf("<p>Budget under approval: %.2f</p>", float64(*request.BudgetAmount)/100)
	}
	return body
}

func approvalTurnBody(request *models.ApprovalRequest) string {
	return fmt.Sprintf("<p>It is your turn to review <strong>%s</strong>.</p>",
		html.EscapeString(request.Title))
}

func resolutionSubject(request *models.ApprovalRequest, status models.ApprovalStatus) string {
	return fmt.Sprintf("Approval %s: %s", status, request.Title)
}

func resolutionBody(request *models.ApprovalRequest, status models.ApprovalStatus, comment string) string {
	body := fmt.Sprintf("<p>Your request <strong>%s</strong> has been %s.</p>",
		html.EscapeString(request.Title), status)
	if comment != "" {
		body += fmt.Sprintf("<p>Comment: %s</p>", html.EscapeString(comment))
	}
	return body
}

func revisionSubject(requestID string) string {
	return fmt.Sprintf("Revision requested on approval %s", requestID)
}

func revisionBody(comment string) string {
	body := "<p>A reviewer asked for changes before this request can proceed.</p>"
	if comment != "" {
		body += fmt.Sprintf("<p>Comment: %s</p>", html.EscapeString(comment))
	}
	return body
}
