package performance

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"show-orchestrator/internal/platform/metrics"

	"github.com/go-chi/chi/v5"
)

// Handler exposes the choreography engine's HTTP endpoints using go-chi.
type Handler struct {
	svc     *Service
	log     *slog.Logger
	metrics *metrics.Metrics
}

// NewHandler returns a Handler over the given Service, Logger, and optional
// Metrics. Metrics may be nil to disable metric recording (e.g. in tests).
func NewHandler(svc *Service, log *slog.Logger, m *metrics.Metrics) *Handler {
	return &Handler{svc: svc, log: log, metrics: m}
}

// Routes mounts the engine's endpoints on r.
func (h *Handler) Routes(r chi.Router) {
	r.Post("/choreographies", h.ComposeChoreography)
	r.Route("/performances", func(r chi.Router) {
		r.Post("/", h.StartPerformance)
		r.Route("/{run_id}", func(r chi.Router) {
			r.Get("/", h.GetRun)
			r.Post("/cancel", h.CancelRun)
		})
	})
}

// ComposeChoreography handles POST /choreographies.
// Body: a MusicAnalysis; response: the validated plan.
func (h *Handler) ComposeChoreography(w http.ResponseWriter, r *http.Request) {
	var analysis MusicAnalysis
	if err := json.NewDecoder(r.Body).Decode(&analysis); err != nil {
		h.log.Debug("invalid analysis body", slog.String("error", err.Error()))
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	if len(analysis.Segments) == 0 {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	plan, err := h.svc.ComposeChoreography(analysis)
	if err != nil {
		h.writeValidationError(w, err)
		return
	}

	h.log.Info("choreography composed",
		slog.String("plan_id", plan.ID),
		slog.Int("actions", len(plan.Actions)),
		slog.Float64("duration", plan.TotalDuration))
	writeJSON(w, http.StatusOK, plan)
}

// StartPerformance handles POST /performances.
// Body: a plan (total duration plus actions); response: 202 with the run id.
func (h *Handler) StartPerformance(w http.ResponseWriter, r *http.Request) {
	var plan Plan
	if err := json.NewDecoder(r.Body).Decode(&plan); err != nil {
		h.log.Debug("invalid plan body", slog.String("error", err.Error()))
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	if len(plan.Actions) == 0 || plan.TotalDuration <= 0 {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	runID, err := h.svc.StartPerformance(plan)
	if err != nil {
		h.writeValidationError(w, err)
		return
	}

	h.log.Info("performance started", slog.String("run_id", runID), slog.String("plan_id", plan.ID))
	if h.metrics != nil {
		h.metrics.IncRunsStarted()
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"run_id": runID})
}

// GetRun handles GET /performances/{run_id}.
func (h *Handler) GetRun(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "run_id")
	if runID == "" {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	rec, ok := h.svc.Run(runID)
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// CancelRun handles POST /performances/{run_id}/cancel. Cancelling never
// errors: the run winds down and its partial report lands on the record.
func (h *Handler) CancelRun(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "run_id")
	if runID == "" {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	if !h.svc.CancelRun(runID) {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	h.log.Info("performance cancel requested", slog.String("run_id", runID))
	writeJSON(w, http.StatusOK, map[string]bool{"cancelled": true})
}

// writeValidationError maps a ValidationError to 422 with the offending
// action ids; anything else is a 500.
func (h *Handler) writeValidationError(w http.ResponseWriter, err error) {
	var verr *ValidationError
	if errors.As(err, &verr) {
		h.log.Info("plan rejected",
			slog.String("kind", string(verr.Kind)),
			slog.Any("action_ids", verr.ActionIDs))
		if h.metrics != nil {
			h.metrics.IncPlansRejected()
		}
		writeJSON(w, http.StatusUnprocessableEntity, verr)
		return
	}
	h.log.Error("unexpected error", slog.String("error", err.Error()))
	w.WriteHeader(http.StatusInternalServerError)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
