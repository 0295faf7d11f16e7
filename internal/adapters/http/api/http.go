// Package api exposes the scoring core over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/okian/rampart/internal/adapters/mq/queue"
	"github.com/okian/rampart/internal/adapters/repository"
	"github.com/okian/rampart/internal/adapters/settings"
	service "github.com/okian/rampart/internal/app"
	"github.com/okian/rampart/internal/domain/scoring"
	"github.com/okian/rampart/internal/domain/sla"
)

// Dependencies required by HTTP handlers. Using an interface bundle keeps
// the handler layer loosely coupled to implementations in other packages.
type Dependencies interface {
	StatsProvider
	SLADependencies
	ScoreDependencies
}

// Server wires HTTP routes for the scoring API.
type Server struct {
	opsHandler    *OpsHandler
	slaHandler    *SLAHandler
	scoresHandler *ScoresHandler
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies) *Server {
	return &Server{
		opsHandler:    NewOpsHandler(deps),
		slaHandler:    NewSLAHandler(deps),
		scoresHandler: NewScoresHandler(deps),
	}
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(_ context.Context, mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", MetricsMiddleware(s.opsHandler.HandleHealth, "healthz"))
	mux.Handle("GET /metrics", s.opsHandler.MetricsHandler())
	mux.HandleFunc("GET /stats", MetricsMiddleware(s.opsHandler.HandleStats, "stats"))

	mux.HandleFunc("GET /sla/summary", MetricsMiddleware(s.slaHandler.HandleSummary, "sla_summary"))
	mux.HandleFunc("GET /sla/team/{id}", MetricsMiddleware(s.slaHandler.HandleTeam, "sla_team"))
	mux.HandleFunc("GET /sla/team/{id}/services/{service_id}", MetricsMiddleware(s.slaHandler.HandleService, "sla_service"))
	mux.HandleFunc("GET /sla/config", MetricsMiddleware(s.slaHandler.HandleGetConfig, "sla_config"))
	mux.HandleFunc("POST /sla/config", MetricsMiddleware(s.slaHandler.HandleSetConfig, "sla_config"))
	mux.HandleFunc("GET /sla/dynamic-scoring", MetricsMiddleware(s.slaHandler.HandleDynamicScoring, "dynamic_scoring"))

	mux.HandleFunc("GET /scores/{team_id}", MetricsMiddleware(s.scoresHandler.HandleGetScores, "scores"))
	mux.HandleFunc("POST /scores/recompute", MetricsMiddleware(s.scoresHandler.HandleRecompute, "recompute"))
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}

// writeFailure maps a domain error to its HTTP status.
func writeFailure(w http.ResponseWriter, op string, err error) {
	var kind *KindError
	if !errors.As(err, &kind) {
		err = Wrap(op, err)
	}
	switch {
	case errors.Is(err, ErrBadRequest),
		errors.Is(err, sla.ErrInvalidSetting),
		errors.Is(err, sla.ErrUnknownSetting),
		errors.Is(err, sla.ErrUnknownPenaltyMode):
		writeError(w, http.StatusBadRequest, "bad_request", err)
	case errors.Is(err, repository.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", err)
	case errors.Is(err, scoring.ErrPreconditionFailed):
		writeError(w, http.StatusConflict, "precondition_failed", err)
	case errors.Is(err, settings.ErrReadOnly):
		writeError(w, http.StatusConflict, "read_only", err)
	case errors.Is(err, queue.ErrFull):
		writeError(w, http.StatusTooManyRequests, "backpressure", err)
	case errors.Is(err, service.ErrNotStarted), errors.Is(err, queue.ErrClosed):
		writeError(w, http.StatusServiceUnavailable, "unavailable", err)
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", err)
	}
}

// pathID parses a positive integer path parameter.
func pathID(r *http.Request, name string) (int64, error) {
	raw := r.PathValue(name)
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id < 1 {
		return 0, WrapKind("api.path", ErrBadRequest, errors.New("invalid "+name+" "+strconv.Quote(raw)))
	}
	return id, nil
}
