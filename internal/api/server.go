// Package api exposes the approval workflow engine over HTTP.
package api

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/mbakke/signoff/internal/auth"
	"github.com/mbakke/signoff/internal/workflow"
)

// Server routes API requests to the workflow engine.
type Server struct {
	engine *workflow.Engine
	keys   *auth.APIKeyManager
	logger zerolog.Logger
	router *mux.Router
}

// NewServer creates the API server and builds its routes.
func NewServer(engine *workflow.Engine, keys *auth.APIKeyManager, logger zerolog.Logger) *Server {
	s := &Server{
		engine: engine,
		keys:   keys,
		logger: logger,
	}
	s.router = s.buildRouter()
	return s
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) buildRouter() *mux.Router {
	r := mux.NewRouter()

	r.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	api := r.PathPrefix("/api/v1").Subrouter()
	api.Use(s.requestIDMiddleware, s.loggingMiddleware, s.authMiddleware)

	api.HandleFunc("/approvals", s.handleCreate).Methods(http.MethodPost)
	api.HandleFunc("/approvals", s.handleList).Methods(http.MethodGet)
	api.HandleFunc("/approvals/{id}", s.handleGet).Methods(http.MethodGet)
	api.HandleFunc("/approvals/{id}/approve", s.handleApprove).Methods(http.MethodPost)
	api.HandleFunc("/approvals/{id}/reject", s.handleReject).Methods(http.MethodPost)
	api.HandleFunc("/approvals/{id}/revise", s.handleRequestRevision).Methods(http.MethodPost)
	api.HandleFunc("/approvals/{id}/cancel", s.handleCancel).Methods(http.MethodPost)
	api.HandleFunc("/approvals/{id}/comments", s.handleAddComment).Methods(http.MethodPost)
	api.HandleFunc("/approvals/{id}/comments", s.handleGetComments).Methods(http.MethodGet)
	api.HandleFunc("/approvals/{id}/events", s.handleAuditTrail).Methods(http.MethodGet)
	api.HandleFunc("/inbox/pending", s.handlePendingInbox).Methods(http.MethodGet)
	api.HandleFunc("/inbox/actionable", s.handleActionableInbox).Methods(http.MethodGet)

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
