// Package api exposes research runs over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/yourusername/limni-research/internal/models"
	"github.com/yourusername/limni-research/internal/research"
	"github.com/yourusername/limni-research/internal/service"
)

const maxBodyBytes = 1 << 20

// ResearchRunner is the service surface the handlers need
type ResearchRunner interface {
	RunOrGetCached(ctx context.Context, cfg models.ResearchConfig) (*service.RunOutcome, error)
	GetRun(ctx context.Context, id uuid.UUID) (*models.ResearchRun, error)
	Prepare(cfg models.ResearchConfig) (models.ResearchConfig, string, error)
}

// RunResponse is the body returned for a run
type RunResponse struct {
	OK        bool                      `json:"ok"`
	Cached    bool                      `json:"cached"`
	RunID     string                    `json:"runId"`
	Status    models.RunStatus          `json:"status"`
	Result    *models.ResearchRunResult `json:"result"`
	Error     *string                   `json:"error,omitempty"`
	CreatedAt string                    `json:"createdAt"`
}

// ConfigResponse is the body returned by the config preview endpoint
type ConfigResponse struct {
	OK         bool                  `json:"ok"`
	Config     models.ResearchConfig `json:"config"`
	ConfigHash string                `json:"configHash"`
}

// ErrorResponse is the body returned for failures
type ErrorResponse struct {
	OK      bool     `json:"ok"`
	Error   string   `json:"error"`
	Reasons []string `json:"reasons,omitempty"`
}

// Handler serves the research API
type Handler struct {
	runner ResearchRunner
	logger *logrus.Entry
}

// NewHandler creates the research API handler
func NewHandler(runner ResearchRunner, logger *logrus.Logger) *Handler {
	if logger == nil {
		logger = logrus.New()
		logger.SetOutput(io.Discard)
	}
	return &Handler{runner: runner, logger: logger.WithField("component", "api")}
}

// Routes returns a mux with the research endpoints registered
func (h *Handler) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /research/runs", h.handleCreateRun)
	mux.HandleFunc("GET /research/runs/{id}", h.handleGetRun)
	mux.HandleFunc("GET /research/config", h.handlePreviewConfig)
	return mux
}

func (h *Handler) handleCreateRun(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, err, nil)
		return
	}
	cfg, err := DecodeConfig(body)
	if err != nil {
		writeError(w, http.StatusBadRequest, err, nil)
		return
	}

	outcome, err := h.runner.RunOrGetCached(r.Context(), cfg)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, NewRunResponse(outcome.Run, outcome.Cached))
}

func (h *Handler) handleGetRun(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, models.ErrInvalidID, nil)
		return
	}
	run, err := h.runner.GetRun(r.Context(), id)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, NewRunResponse(run, true))
}

func (h *Handler) handlePreviewConfig(w http.ResponseWriter, r *http.Request) {
	cfg := ConfigFromQuery(r.URL.Query(), DefaultConfig())
	resolved, hash, err := h.runner.Prepare(cfg)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ConfigResponse{OK: true, Config: resolved, ConfigHash: hash})
}

func (h *Handler) writeServiceError(w http.ResponseWriter, err error) {
	var verr *research.ValidationError
	var perr *service.PersistenceError
	switch {
	case errors.As(err, &verr):
		writeError(w, http.StatusBadRequest, err, verr.Reasons)
	case errors.Is(err, models.ErrNotFound):
		writeError(w, http.StatusNotFound, err, nil)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		writeError(w, http.StatusServiceUnavailable, err, nil)
	case errors.As(err, &perr):
		h.logger.WithError(err).WithField("op", perr.Op).Error("Run store failed")
		writeError(w, http.StatusInternalServerError, err, nil)
	default:
		h.logger.WithError(err).Error("Research run failed")
		writeError(w, http.StatusInternalServerError, err, nil)
	}
}

// NewRunResponse renders a run for clients
func NewRunResponse(run *models.ResearchRun, cached bool) RunResponse {
	return RunResponse{
		OK:        run.Status != models.RunStatusError,
		Cached:    cached,
		RunID:     run.ID.String(),
		Status:    run.Status,
		Result:    run.Result,
		Error:     run.Error,
		CreatedAt: run.CreatedAt.UTC().Format("2006-01-02T15:04:05.000Z07:00"),
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error, reasons []string) {
	writeJSON(w, status, ErrorResponse{OK: false, Error: err.Error(), Reasons: reasons})
}
