package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/outfitly/stylescout/internal/queue"
	"github.com/outfitly/stylescout/internal/service"
)

type Handlers struct {
	svc    *service.Service
	logger *slog.Logger
}

func NewHandlers(svc *service.Service, logger *slog.Logger) *Handlers {
	return &Handlers{
		svc:    svc,
		logger: logger.With("component", "api"),
	}
}

type AddJobRequest struct {
	URL        string `json:"url"`
	Brand      string `json:"brand"`
	Priority   int    `json:"priority"`
	MaxRetries int    `json:"max_retries"`
}

type AddJobResponse struct {
	JobID string `json:"job_id"`
}

func (h *Handlers) AddJob(w http.ResponseWriter, r *http.Request) {
	var req AddJobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.MaxRetries == 0 {
		req.MaxRetries = 3
	}

	jobID, err := h.svc.AddJob(r.Context(), req.URL, req.Brand, req.Priority, req.MaxRetries)
	if err != nil {
		h.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	h.respondJSON(w, http.StatusAccepted, AddJobResponse{JobID: jobID})
}

type BulkJobsRequest struct {
	Items      []service.BulkItem `json:"items"`
	Priority   int                `json:"priority"`
	MaxRetries int                `json:"max_retries"`
}

type BulkJobsResponse struct {
	JobIDs []string          `json:"job_ids"`
	Errors []queue.BulkError `json:"errors,omitempty"`
}

func (h *Handlers) AddBulkJobs(w http.ResponseWriter, r *http.Request) {
	var req BulkJobsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(req.Items) == 0 {
		h.respondError(w, http.StatusBadRequest, "items is required")
		return
	}
	if req.MaxRetries == 0 {
		req.MaxRetries = 3
	}

	ids, errs := h.svc.AddBulkJobs(r.Context(), req.Items, req.Priority, req.MaxRetries)
	h.respondJSON(w, http.StatusAccepted, BulkJobsResponse{JobIDs: ids, Errors: errs})
}

type CatalogRequest struct {
	URLs     []string `json:"urls"`
	Priority int      `json:"priority"`
}

func (h *Handlers) ScheduleCatalog(w http.ResponseWriter, r *http.Request) {
	brand := chi.URLParam(r, "brand")
	var req CatalogRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(req.URLs) == 0 {
		h.respondError(w, http.StatusBadRequest, "urls is required")
		return
	}

	ids, errs := h.svc.ScheduleBrandCatalog(r.Context(), brand, req.URLs, req.Priority)
	h.respondJSON(w, http.StatusAccepted, BulkJobsResponse{JobIDs: ids, Errors: errs})
}

func (h *Handlers) GetStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.svc.GetQueueStats(r.Context())
	if err != nil {
		h.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	h.respondJSON(w, http.StatusOK, map[string]interface{}{
		"queue":   stats,
		"workers": h.svc.WorkerStats(),
	})
}

func (h *Handlers) GetJobs(w http.ResponseWriter, r *http.Request) {
	status := queue.Status(r.URL.Query().Get("status"))
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			limit = n
		}
	}

	jobs, err := h.svc.GetJobsByStatus(r.Context(), status, limit)
	if err != nil {
		h.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	h.respondJSON(w, http.StatusOK, map[string]interface{}{"jobs": jobs})
}

type RetryFailedRequest struct {
	Limit int `json:"limit"`
}

func (h *Handlers) RetryFailed(w http.ResponseWriter, r *http.Request) {
	req := RetryFailedRequest{Limit: 20}
	if r.Body != nil && r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			h.respondError(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}

	retried, err := h.svc.RetryFailedJobs(r.Context(), req.Limit)
	if err != nil {
		h.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	h.respondJSON(w, http.StatusOK, map[string]int{"retried": retried})
}

func (h *Handlers) RemoveJob(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.RemoveJob(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.respondError(w, http.StatusNotFound, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	health := h.svc.HealthCheck(r.Context())
	status := http.StatusOK
	if !health.Healthy {
		status = http.StatusServiceUnavailable
	}
	h.respondJSON(w, status, health)
}

func (h *Handlers) respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}

func (h *Handlers) respondError(w http.ResponseWriter, status int, message string) {
	h.respondJSON(w, status, map[string]string{"error": message})
}
