package api

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"net/http"

	"github.com/okian/rampart/internal/domain/model"
)

// ScoreDependencies defines the materialized-score operations behind /scores.
type ScoreDependencies interface {
	TeamScores(ctx context.Context, teamID int64) ([]model.RoundTotal, error)
	RequestRecompute(ctx context.Context, teamID int64, fromRound int) (model.RecomputeJob, bool, error)
	RecomputeNow(ctx context.Context, teamID int64, first, last int) ([]model.RoundTotal, error)
}

// ScoresHandler serves per-round team totals and recompute requests.
type ScoresHandler struct {
	deps ScoreDependencies
}

// NewScoresHandler creates a new scores handler.
func NewScoresHandler(deps ScoreDependencies) *ScoresHandler {
	return &ScoresHandler{deps: deps}
}

type scoresResponse struct {
	TeamID int64              `json:"team_id"`
	Rounds []model.RoundTotal `json:"rounds"`
}

// HandleGetScores handles GET /scores/{team_id}.
func (h *ScoresHandler) HandleGetScores(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_scores"
	id, err := pathID(r, "team_id")
	if err != nil {
		writeFailure(w, op, err)
		return
	}
	totals, err := h.deps.TeamScores(r.Context(), id)
	if err != nil {
		writeFailure(w, op, err)
		return
	}
	if totals == nil {
		totals = []model.RoundTotal{}
	}
	writeJSON(w, http.StatusOK, scoresResponse{TeamID: id, Rounds: totals})
}

// recomputeRequest asks for a replay. ToRound is only honored for synchronous
// requests; queued replays always run to the latest round.
type recomputeRequest struct {
	TeamID    int64 `json:"team_id"`
	FromRound int   `json:"from_round"`
	ToRound   int   `json:"to_round"`
	Sync      bool  `json:"sync"`
}

type recomputeAck struct {
	Status    string `json:"status"`
	JobID     string `json:"job_id,omitempty"`
	TeamID    int64  `json:"team_id"`
	FromRound int    `json:"from_round"`
}

// HandleRecompute handles POST /scores/recompute.
func (h *ScoresHandler) HandleRecompute(w http.ResponseWriter, r *http.Request) {
	const op = "api.recompute"
	var req recomputeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeFailure(w, op, WrapKind(op, ErrBadRequest, err))
		return
	}
	if req.TeamID < 1 {
		writeFailure(w, op, WrapKind(op, ErrBadRequest, errors.New("missing team_id")))
		return
	}

	if req.Sync {
		last := req.ToRound
		if last < 1 {
			last = math.MaxInt
		}
		totals, err := h.deps.RecomputeNow(r.Context(), req.TeamID, req.FromRound, last)
		if err != nil {
			writeFailure(w, op, err)
			return
		}
		writeJSON(w, http.StatusOK, scoresResponse{TeamID: req.TeamID, Rounds: totals})
		return
	}

	job, coalesced, err := h.deps.RequestRecompute(r.Context(), req.TeamID, req.FromRound)
	if err != nil {
		writeFailure(w, op, err)
		return
	}
	ack := recomputeAck{Status: "queued", JobID: job.ID, TeamID: job.TeamID, FromRound: job.FromRound}
	if coalesced {
		ack.Status = "coalesced"
	}
	writeJSON(w, http.StatusAccepted, ack)
}
