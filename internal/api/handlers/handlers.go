package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/dvloznov/ccd-tax-export/internal/api/middleware"
	"github.com/dvloznov/ccd-tax-export/internal/bigquery"
	"github.com/dvloznov/ccd-tax-export/internal/domain"
	"github.com/dvloznov/ccd-tax-export/internal/export"
	"github.com/dvloznov/ccd-tax-export/internal/jobs"
	"github.com/dvloznov/ccd-tax-export/internal/logger"
)

// maxAccountsPerExport bounds the fan-out a single request can trigger.
const maxAccountsPerExport = 100

// ExportsHandler handles export job endpoints.
type ExportsHandler struct {
	publisher jobs.Publisher
	store     jobs.JobStore
}

// NewExportsHandler creates a new exports handler.
func NewExportsHandler(publisher jobs.Publisher, store jobs.JobStore) *ExportsHandler {
	return &ExportsHandler{
		publisher: publisher,
		store:     store,
	}
}

// CreateExport handles POST /api/exports
func (h *ExportsHandler) CreateExport(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.FromContext(ctx)

	var req struct {
		Accounts   []string `json:"accounts"`
		MaxRetries *int     `json:"max_retries"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	accounts := make([]string, 0, len(req.Accounts))
	for _, a := range req.Accounts {
		if a = strings.TrimSpace(a); a != "" {
			accounts = append(accounts, a)
		}
	}
	if len(accounts) == 0 {
		middleware.WriteError(w, http.StatusBadRequest, "At least one account is required")
		return
	}
	if len(accounts) > maxAccountsPerExport {
		middleware.WriteError(w, http.StatusBadRequest, "Too many accounts")
		return
	}
	maxRetries := jobs.DefaultMaxRetries
	if req.MaxRetries != nil {
		if *req.MaxRetries < 0 {
			middleware.WriteError(w, http.StatusBadRequest, "max_retries must not be negative")
			return
		}
		maxRetries = *req.MaxRetries
	}

	job := &jobs.ExportJob{
		Accounts:   accounts,
		MaxRetries: maxRetries,
	}
	if err := h.publisher.PublishExport(ctx, job); err != nil {
		log.Error().Err(err).Msg("Failed to enqueue export job")
		middleware.WriteError(w, http.StatusServiceUnavailable, "Failed to enqueue export")
		return
	}

	jobID := job.JobID
	log.Info().
		Str("job_id", jobID).
		Strs("accounts", accounts).
		Msg("Export job enqueued")

	// The queue owns job from here on; respond with the stored snapshot.
	stored, err := h.store.GetJob(ctx, jobID)
	if err != nil {
		middleware.WriteJSON(w, http.StatusAccepted, map[string]string{"job_id": jobID, "status": string(jobs.JobStatusPending)})
		return
	}
	middleware.WriteJSON(w, http.StatusAccepted, stored)
}

// ListExports handles GET /api/exports
func (h *ExportsHandler) ListExports(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	query := r.URL.Query()
	filter := jobs.JobFilter{
		Account: query.Get("account"),
		Status:  jobs.JobStatus(query.Get("status")),
	}

	if limitStr := query.Get("limit"); limitStr != "" {
		if limit, err := strconv.Atoi(limitStr); err == nil {
			filter.Limit = limit
		}
	}

	if offsetStr := query.Get("offset"); offsetStr != "" {
		if offset, err := strconv.Atoi(offsetStr); err == nil {
			filter.Offset = offset
		}
	}

	jobsList, err := h.store.ListJobs(ctx, filter)
	if err != nil {
		log := logger.FromContext(ctx)
		log.Error().Err(err).Msg("Failed to list export jobs")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to list exports")
		return
	}
	if jobsList == nil {
		jobsList = []*jobs.ExportJob{}
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"exports": jobsList,
		"count":   len(jobsList),
	})
}

// GetExport handles GET /api/exports/{id}
func (h *ExportsHandler) GetExport(w http.ResponseWriter, r *http.Request) {
	job, ok := h.lookup(w, r)
	if !ok {
		return
	}
	middleware.WriteJSON(w, http.StatusOK, job)
}

// GetExportRows handles GET /api/exports/{id}/rows
// The rows are returned as JSON unless format=csv is requested.
func (h *ExportsHandler) GetExportRows(w http.ResponseWriter, r *http.Request) {
	job, ok := h.lookup(w, r)
	if !ok {
		return
	}
	if job.Status != jobs.JobStatusCompleted {
		middleware.WriteError(w, http.StatusConflict, "Export is not completed (status: "+string(job.Status)+")")
		return
	}
	writeRows(w, r, job.JobID, job.Rows)
}

func (h *ExportsHandler) lookup(w http.ResponseWriter, r *http.Request) (*jobs.ExportJob, bool) {
	ctx := r.Context()
	jobID := r.PathValue("id")

	job, err := h.store.GetJob(ctx, jobID)
	if err != nil {
		if errors.Is(err, jobs.ErrJobNotFound) {
			middleware.WriteError(w, http.StatusNotFound, "Export not found")
			return nil, false
		}
		log := logger.FromContext(ctx)
		log.Error().Err(err).Str("job_id", jobID).Msg("Failed to get export job")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to get export")
		return nil, false
	}
	return job, true
}

// RunReader is the read side of the BigQuery export store.
type RunReader interface {
	ListExportRuns(ctx context.Context, limit int) ([]*bigquery.ExportRunRow, error)
	QueryExportRowsByRun(ctx context.Context, runID string) ([]*bigquery.ExportRowRecord, error)
}

// RunsHandler serves export runs stored in BigQuery.
type RunsHandler struct {
	repo RunReader
}

// NewRunsHandler creates a new runs handler.
func NewRunsHandler(repo RunReader) *RunsHandler {
	return &RunsHandler{repo: repo}
}

// ListRuns handles GET /api/runs
func (h *RunsHandler) ListRuns(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	limit := 0
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if l, err := strconv.Atoi(limitStr); err == nil {
			limit = l
		}
	}

	runs, err := h.repo.ListExportRuns(ctx, limit)
	if err != nil {
		log := logger.FromContext(ctx)
		log.Error().Err(err).Msg("Failed to list export runs")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to list runs")
		return
	}
	if runs == nil {
		runs = []*bigquery.ExportRunRow{}
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"runs":  runs,
		"count": len(runs),
	})
}

// GetRunRows handles GET /api/runs/{id}/rows
func (h *RunsHandler) GetRunRows(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.FromContext(ctx)
	runID := r.PathValue("id")

	records, err := h.repo.QueryExportRowsByRun(ctx, runID)
	if err != nil {
		log.Error().Err(err).Str("run_id", runID).Msg("Failed to query export rows")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to query rows")
		return
	}
	if len(records) == 0 {
		middleware.WriteError(w, http.StatusNotFound, "Run not found or empty")
		return
	}

	rows := make([]domain.ExportRow, 0, len(records))
	for _, rec := range records {
		row, err := rec.ExportRow()
		if err != nil {
			log.Error().Err(err).Str("run_id", runID).Msg("Failed to convert export row")
			middleware.WriteError(w, http.StatusInternalServerError, "Failed to read rows")
			return
		}
		rows = append(rows, row)
	}
	writeRows(w, r, runID, rows)
}

// writeRows renders rows as CSV when format=csv, otherwise as JSON.
func writeRows(w http.ResponseWriter, r *http.Request, name string, rows []domain.ExportRow) {
	switch r.URL.Query().Get("format") {
	case "", "json":
		if rows == nil {
			rows = []domain.ExportRow{}
		}
		middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
			"rows":  rows,
			"count": len(rows),
		})
	case "csv":
		w.Header().Set("Content-Type", "text/csv; charset=utf-8")
		w.Header().Set("Content-Disposition", `attachment; filename="ccd-export-`+name+`.csv"`)
		w.WriteHeader(http.StatusOK)
		if err := export.WriteCSV(w, rows); err != nil {
			log := logger.FromContext(r.Context())
			log.Error().Err(err).Msg("Failed to write CSV response")
		}
	default:
		middleware.WriteError(w, http.StatusBadRequest, "Unsupported format")
	}
}

// Health handles GET /healthz
func Health(w http.ResponseWriter, r *http.Request) {
	middleware.WriteJSON(w, http.StatusOK, map[string]string{
		"status": "healthy",
		"time":   time.Now().Format(time.RFC3339),
	})
}

// Register mounts all endpoints on mux. runs may be nil when BigQuery is not configured.
func Register(mux *http.ServeMux, exports *ExportsHandler, runs *RunsHandler) {
	mux.HandleFunc("POST /api/exports", exports.CreateExport)
	mux.HandleFunc("GET /api/exports", exports.ListExports)
	mux.HandleFunc("GET /api/exports/{id}", exports.GetExport)
	mux.HandleFunc("GET /api/exports/{id}/rows", exports.GetExportRows)

	if runs != nil {
		mux.HandleFunc("GET /api/runs", runs.ListRuns)
		mux.HandleFunc("GET /api/runs/{id}/rows", runs.GetRunRows)
	}

	mux.HandleFunc("GET /healthz", Health)
}
