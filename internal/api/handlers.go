package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/mbakke/signoff/internal/db"
	"github.com/mbakke/signoff/internal/models"
	"github.com/mbakke/signoff/internal/workflow"
)

const maxBodyBytes = 1 << 20

func decodeBody(r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(nil, r.Body, maxBodyBytes)
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		validation := &models.ValidationErrors{}
		validation.AddMessage("body", fmt.Sprintf("malformed request body: %v", err))
		return validation.Err()
	}
	return nil
}

type createRequest struct {
	Title        string              `json:"title"`
	Description  string              `json:"description,omitempty"`
	ProjectID    string              `json:"project_id,omitempty"`
	TaskID       string              `json:"task_id,omitempty"`
	Type         string              `json:"type"`
	Mode         string              `json:"mode"`
	ApproverIDs  []string            `json:"approver_ids"`
	BudgetAmount *int64              `json:"budget_amount,omitempty"`
	Priority     string              `json:"priority,omitempty"`
	Attachments  []models.Attachment `json:"attachments,omitempty"`
}

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	var body createRequest
	if err := decodeBody(r, &body); err != nil {
		respondError(w, r, err)
		return
	}

	request, err := s.engine.Create(r.Context(), ActorID(r.Context()), workflow.CreateParams{
		Title:        body.Title,
		Description:  body.Description,
		ProjectID:    body.ProjectID,
		TaskID:       body.TaskID,
		Type:         models.ApprovalType(body.Type),
		Mode:         models.WorkflowMode(body.Mode),
		ApproverIDs:  body.ApproverIDs,
		BudgetAmount: body.BudgetAmount,
		Priority:     models.Priority(body.Priority),
		Attachments:  body.Attachments,
	})
	if err != nil {
		respondError(w, r, err)
		return
	}

	respondJSON(w, http.StatusCreated, request)
}

type decisionRequest struct {
	Comment string `json:"comment,omitempty"`
}

type successResponse struct {
	Success bool `json:"success"`
}

func (s *Server) handleApprove(w http.ResponseWriter, r *http.Request) {
	s.handleDecision(w, r, s.engine.Approve)
}

func (s *Server) handleReject(w http.ResponseWriter, r *http.Request) {
	s.handleDecision(w, r, s.engine.Reject)
}

func (s *Server) handleRequestRevision(w http.ResponseWriter, r *http.Request) {
	s.handleDecision(w, r, s.engine.RequestRevision)
}

func (s *Server) handleDecision(w http.ResponseWriter, r *http.Request, op func(ctx context.Context, actorID, requestID, comment string) error) {
	var body decisionRequest
	if r.ContentLength != 0 {
		if err := decodeBody(r, &body); err != nil {
			respondError(w, r, err)
			return
		}
	}

	id := mux.Vars(r)["id"]
	if err := op(r.Context(), ActorID(r.Context()), id, body.Comment); err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, successResponse{Success: true})
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := s.engine.Cancel(r.Context(), ActorID(r.Context()), id); err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, successResponse{Success: true})
}

type addCommentRequest struct {
	Content     string              `json:"content"`
	Attachments []models.Attachment `json:"attachments,omitempty"`
}

func (s *Server) handleAddComment(w http.ResponseWriter, r *http.Request) {
	var body addCommentRequest
	if err := decodeBody(r, &body); err != nil {
		respondError(w, r, err)
		return
	}

	id := mux.Vars(r)["id"]
	comment, err := s.engine.AddComment(r.Context(), ActorID(r.Context()), id, body.Content, body.Attachments)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, comment)
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	request, err := s.engine.Get(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, request)
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	query := db.ApprovalQuery{}

	if v := r.URL.Query().Get("status"); v != "" {
		status := models.ApprovalStatus(v)
		query.Status = &status
	}
	if v := r.URL.Query().Get("project_id"); v != "" {
		query.ProjectID = &v
	}
	if v := r.URL.Query().Get("requester_id"); v != "" {
		query.RequesterID = &v
	}
	if v := r.URL.Query().Get("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil || limit < 0 {
			validation := &models.ValidationErrors{}
			validation.AddMessage("limit", "limit must be a non-negative integer")
			respondError(w, r, validation.Err())
			return
		}
		query.Limit = limit
	}
	if v := r.URL.Query().Get("offset"); v != "" {
		offset, err := strconv.Atoi(v)
		if err != nil || offset < 0 {
			validation := &models.ValidationErrors{}
			validation.AddMessage("offset", "offset must be a non-negative integer")
			respondError(w, r, validation.Err())
			return
		}
		query.Offset = offset
	}

	requests, err := s.engine.List(r.Context(), query)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, requests)
}

func (s *Server) handleGetComments(w http.ResponseWriter, r *http.Request) {
	comments, err := s.engine.GetComments(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, comments)
}

func (s *Server) handleAuditTrail(w http.ResponseWriter, r *http.Request) {
	events, err := s.engine.AuditTrail(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, events)
}

func (s *Server) handlePendingInbox(w http.ResponseWriter, r *http.Request) {
	requests, err := s.engine.ListPendingForUser(r.Context(), ActorID(r.Context()))
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, requests)
}

func (s *Server) handleActionableInbox(w http.ResponseWriter, r *http.Request) {
	requests, err := s.engine.ListActionableForUser(r.Context(), ActorID(r.Context()))
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, requests)
}
