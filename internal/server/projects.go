package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/ogulcanaydogan/ai-spend-guardian/pkg/costapi"
	"github.com/ogulcanaydogan/ai-spend-guardian/pkg/model"
	"github.com/ogulcanaydogan/ai-spend-guardian/pkg/secrets"
	"github.com/ogulcanaydogan/ai-spend-guardian/pkg/storage"
)

type validateRequest struct {
	TeamID    string `json:"team_id"`
	ProjectID string `json:"project_id"`
}

type spendResponse struct {
	ProjectID string `json:"project_id"`
	Period    string `json:"period"`
	From      string `json:"from"`
	To        string `json:"to"`
	Cost      string `json:"cost"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) handleValidateProject(w http.ResponseWriter, r *http.Request) {
	if !s.limiter.Allow() {
		writeJSON(w, http.StatusTooManyRequests, costapi.ValidationResult{Error: "Too many validation requests. Please wait."})
		return
	}

	var req validateRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 16<<10)).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, costapi.ValidationResult{Error: "invalid request body"})
		return
	}
	if req.TeamID == "" {
		writeJSON(w, http.StatusBadRequest, costapi.ValidationResult{Error: "team_id is required"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	credential, err := s.deps.Credentials.AdminCredential(ctx, req.TeamID)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		writeJSON(w, http.StatusNotFound, costapi.ValidationResult{Error: "team not found"})
		return
	case errors.Is(err, secrets.ErrCredentialMissing):
		writeJSON(w, http.StatusBadRequest, costapi.ValidationResult{Error: "Admin key not configured for this team"})
		return
	case err != nil:
		s.logger.Error("resolve admin credential", "team_id", req.TeamID, "error", err)
		writeJSON(w, http.StatusInternalServerError, costapi.ValidationResult{Error: costapi.MsgValidationFailed})
		return
	}

	writeJSON(w, http.StatusOK, s.deps.Validator.ValidateProjectID(ctx, credential, req.ProjectID))
}

func (s *Server) handleProjectSpend(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	period := model.ThresholdType(r.URL.Query().Get("period"))
	if period == "" {
		period = model.ThresholdDaily
	}
	if !period.Valid() {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "period must be daily or weekly"})
		return
	}

	project, err := s.deps.Store.GetProject(ctx, r.PathValue("id"))
	if errors.Is(err, storage.ErrNotFound) {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "project not found"})
		return
	}
	if err != nil {
		s.logger.Error("get project", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	from, to := model.ThresholdWindow(period, s.now())
	cost, err := s.deps.Store.SumProjectCost(ctx, project.ID, from, to)
	if err != nil {
		s.logger.Error("sum project cost", "project_id", project.ID, "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, spendResponse{
		ProjectID: project.ID,
		Period:    string(period),
		From:      from,
		To:        to,
		Cost:      cost.StringFixed(2),
	})
}
