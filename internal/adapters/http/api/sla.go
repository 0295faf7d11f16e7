package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/okian/rampart/internal/domain/types"
)

// SLADependencies defines the read and configuration operations behind /sla.
type SLADependencies interface {
	Summaries(ctx context.Context) (types.SLAOverview, error)
	TeamSummary(ctx context.Context, teamID int64) (types.TeamSummary, error)
	ServiceStatus(ctx context.Context, teamID, serviceID int64) (types.ServiceStatus, error)
	SLAConfig(ctx context.Context) (types.SLAConfig, error)
	UpdateSetting(ctx context.Context, name, value string) error
	DynamicScoring(ctx context.Context) (types.DynamicScoringInfo, error)
}

// SLAHandler serves penalty summaries and scoring configuration.
type SLAHandler struct {
	deps SLADependencies
}

// NewSLAHandler creates a new SLA handler.
func NewSLAHandler(deps SLADependencies) *SLAHandler {
	return &SLAHandler{deps: deps}
}

// HandleSummary handles GET /sla/summary.
func (h *SLAHandler) HandleSummary(w http.ResponseWriter, r *http.Request) {
	overview, err := h.deps.Summaries(r.Context())
	if err != nil {
		writeFailure(w, "api.sla_summary", err)
		return
	}
	writeJSON(w, http.StatusOK, overview)
}

// HandleTeam handles GET /sla/team/{id}.
func (h *SLAHandler) HandleTeam(w http.ResponseWriter, r *http.Request) {
	const op = "api.sla_team"
	id, err := pathID(r, "id")
	if err != nil {
		writeFailure(w, op, err)
		return
	}
	summary, err := h.deps.TeamSummary(r.Context(), id)
	if err != nil {
		writeFailure(w, op, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

// HandleService handles GET /sla/team/{id}/services/{service_id}.
func (h *SLAHandler) HandleService(w http.ResponseWriter, r *http.Request) {
	const op = "api.sla_service"
	teamID, err := pathID(r, "id")
	if err != nil {
		writeFailure(w, op, err)
		return
	}
	serviceID, err := pathID(r, "service_id")
	if err != nil {
		writeFailure(w, op, err)
		return
	}
	status, err := h.deps.ServiceStatus(r.Context(), teamID, serviceID)
	if err != nil {
		writeFailure(w, op, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

// HandleGetConfig handles GET /sla/config.
func (h *SLAHandler) HandleGetConfig(w http.ResponseWriter, r *http.Request) {
	cfg, err := h.deps.SLAConfig(r.Context())
	if err != nil {
		writeFailure(w, "api.sla_config", err)
		return
	}
	writeJSON(w, http.StatusOK, cfg)
}

type settingRequest struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

type settingResponse struct {
	Status string `json:"status"`
	Name   string `json:"name"`
	Value  string `json:"value"`
}

// HandleSetConfig handles POST /sla/config with a {"name","value"} body.
func (h *SLAHandler) HandleSetConfig(w http.ResponseWriter, r *http.Request) {
	const op = "api.sla_set_config"
	var req settingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeFailure(w, op, WrapKind(op, ErrBadRequest, err))
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		writeFailure(w, op, WrapKind(op, ErrBadRequest, errors.New("missing name")))
		return
	}
	if err := h.deps.UpdateSetting(r.Context(), req.Name, req.Value); err != nil {
		writeFailure(w, op, err)
		return
	}
	writeJSON(w, http.StatusOK, settingResponse{Status: "updated", Name: req.Name, Value: req.Value})
}

// HandleDynamicScoring handles GET /sla/dynamic-scoring.
func (h *SLAHandler) HandleDynamicScoring(w http.ResponseWriter, r *http.Request) {
	info, err := h.deps.DynamicScoring(r.Context())
	if err != nil {
		writeFailure(w, "api.dynamic_scoring", err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}
