// Package handlers implements the HTTP API surface of the statement engine.
package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"github.com/dvloznov/statement-engine/internal/api/middleware"
	"github.com/dvloznov/statement-engine/internal/domain"
	"github.com/dvloznov/statement-engine/internal/export"
	"github.com/dvloznov/statement-engine/internal/filestore"
	"github.com/dvloznov/statement-engine/internal/jobs"
	"github.com/dvloznov/statement-engine/internal/reprocess"
	"github.com/dvloznov/statement-engine/internal/store"
)

// allowedUploadTypes lists the Content-Type values accepted for statement
// uploads. Anything else is rejected before a statement record exists.
var allowedUploadTypes = map[string]bool{
	"application/pdf": true,
	"text/plain":      true,
	"text/csv":        true,
}

// StatementsHandler handles statement upload and lookup endpoints.
type StatementsHandler struct {
	store     *store.Store
	files     *filestore.Store
	publisher jobs.Publisher
	maxBytes  int64
	log       zerolog.Logger
}

// NewStatementsHandler creates a new statements handler.
func NewStatementsHandler(st *store.Store, files *filestore.Store, publisher jobs.Publisher, maxBytes int64, log zerolog.Logger) *StatementsHandler {
	return &StatementsHandler{
		store:     st,
		files:     files,
		publisher: publisher,
		maxBytes:  maxBytes,
		log:       log,
	}
}

// Upload handles POST /api/statements
// Accepts either a multipart form with a "file" field or a raw request body.
func (h *StatementsHandler) Upload(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	data, filename, ok := h.readUpload(w, r)
	if !ok {
		return
	}

	// The file must be on disk before the statement row exists, otherwise a
	// worker could claim a statement whose bytes are not readable yet.
	statementID := uuid.NewString()
	if _, err := h.files.Save(statementID, data); err != nil {
		h.log.Error().Err(err).Str("statement_id", statementID).Msg("Failed to save upload")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to save upload")
		return
	}

	stmt, err := h.store.CreateStatement(ctx, statementID, filename)
	if err != nil {
		h.log.Error().Err(err).Str("statement_id", statementID).Msg("Failed to create statement")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to create statement")
		return
	}

	job := &jobs.ProcessStatementJob{
		StatementID: statementID,
		Filename:    filename,
	}
	if err := h.publisher.PublishProcessStatement(ctx, job); err != nil {
		h.log.Error().Err(err).Str("statement_id", statementID).Msg("Failed to enqueue processing job")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to enqueue processing job")
		return
	}

	h.log.Info().
		Str("statement_id", statementID).
		Str("job_id", job.JobID).
		Str("filename", filename).
		Int("bytes", len(data)).
		Msg("Statement accepted")

	middleware.WriteJSON(w, http.StatusAccepted, map[string]interface{}{
		"statement": stmt,
		"job_id":    job.JobID,
	})
}

// readUpload extracts the statement bytes and filename from the request,
// enforcing the content-type allowlist and the size cap before any statement
// record exists. It writes the error response itself and reports ok=false on
// rejection.
func (h *StatementsHandler) readUpload(w http.ResponseWriter, r *http.Request) ([]byte, string, bool) {
	if contentMediaType(r.Header.Get("Content-Type")) == "multipart/form-data" {
		return h.readMultipartUpload(w, r)
	}
	return h.readRawUpload(w, r)
}

func (h *StatementsHandler) readRawUpload(w http.ResponseWriter, r *http.Request) ([]byte, string, bool) {
	mediaType := contentMediaType(r.Header.Get("Content-Type"))
	if !allowedUploadTypes[mediaType] {
		middleware.WriteError(w, http.StatusUnsupportedMediaType, fmt.Sprintf("Unsupported content type %q", mediaType))
		return nil, "", false
	}

	body := http.MaxBytesReader(w, r.Body, h.maxBytes)
	data, err := io.ReadAll(body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			middleware.WriteError(w, http.StatusRequestEntityTooLarge, fmt.Sprintf("Upload exceeds %d bytes", h.maxBytes))
			return nil, "", false
		}
		middleware.WriteError(w, http.StatusBadRequest, "Failed to read request body")
		return nil, "", false
	}
	if len(data) == 0 {
		middleware.WriteError(w, http.StatusBadRequest, "Empty upload")
		return nil, "", false
	}

	return data, uploadFilename(r.URL.Query().Get("filename")), true
}

func (h *StatementsHandler) readMultipartUpload(w http.ResponseWriter, r *http.Request) ([]byte, string, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxBytes)
	if err := r.ParseMultipartForm(h.maxBytes); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			middleware.WriteError(w, http.StatusRequestEntityTooLarge, fmt.Sprintf("Upload exceeds %d bytes", h.maxBytes))
			return nil, "", false
		}
		middleware.WriteError(w, http.StatusBadRequest, "Invalid multipart form")
		return nil, "", false
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		middleware.WriteError(w, http.StatusBadRequest, `Multipart field "file" is required`)
		return nil, "", false
	}
	defer file.Close()

	partType := contentMediaType(header.Header.Get("Content-Type"))
	if !allowedUploadTypes[partType] {
		middleware.WriteError(w, http.StatusUnsupportedMediaType, fmt.Sprintf("Unsupported content type %q", partType))
		return nil, "", false
	}

	data, err := io.ReadAll(file)
	if err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Failed to read uploaded file")
		return nil, "", false
	}
	if len(data) == 0 {
		middleware.WriteError(w, http.StatusBadRequest, "Empty upload")
		return nil, "", false
	}

	filename := header.Filename
	if filename == "" {
		filename = r.URL.Query().Get("filename")
	}
	return data, uploadFilename(filename), true
}

// contentMediaType returns the media type of a Content-Type header without
// its parameters, lowercased.
func contentMediaType(header string) string {
	mediaType, _, err := mime.ParseMediaType(header)
	if err != nil {
		return strings.ToLower(strings.TrimSpace(header))
	}
	return mediaType
}

func uploadFilename(name string) string {
	name = filepath.Base(name)
	if name == "" || name == "." || name == string(filepath.Separator) {
		return "statement"
	}
	return name
}

// List handles GET /api/statements
func (h *StatementsHandler) List(w http.ResponseWriter, r *http.Request) {
	statements, err := h.store.ListStatements(r.Context())
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list statements")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to list statements")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"statements": statements,
		"count":      len(statements),
	})
}

// Get handles GET /api/statements/{id}
func (h *StatementsHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	stmt, err := h.store.GetStatement(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			middleware.WriteError(w, http.StatusNotFound, "Statement not found")
			return
		}
		h.log.Error().Err(err).Str("statement_id", id).Msg("Failed to get statement")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to get statement")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, stmt)
}

// TransactionsHandler handles transaction listing and export endpoints.
type TransactionsHandler struct {
	store *store.Store
	log   zerolog.Logger
}

// NewTransactionsHandler creates a new transactions handler.
func NewTransactionsHandler(st *store.Store, log zerolog.Logger) *TransactionsHandler {
	return &TransactionsHandler{store: st, log: log}
}

// List handles GET /api/transactions
// Supports ?statement_id= filtering and ?export=csv|xlsx downloads.
func (h *TransactionsHandler) List(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	query := r.URL.Query()

	var (
		txns []domain.Transaction
		err  error
	)
	if statementID := query.Get("statement_id"); statementID != "" {
		txns, err = h.store.ListTransactionsByStatement(ctx, statementID)
	} else {
		txns, err = h.store.ListTransactions(ctx)
	}
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list transactions")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to list transactions")
		return
	}

	switch format := query.Get("export"); format {
	case "":
		middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
			"transactions": txns,
			"count":        len(txns),
		})
	case "csv":
		w.Header().Set("Content-Type", "text/csv")
		w.Header().Set("Content-Disposition", exportFilename("csv"))
		if err := export.WriteCSV(w, txns); err != nil {
			h.log.Error().Err(err).Msg("Failed to write CSV export")
		}
	case "xlsx":
		w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
		w.Header().Set("Content-Disposition", exportFilename("xlsx"))
		if err := export.WriteXLSX(w, txns); err != nil {
			h.log.Error().Err(err).Msg("Failed to write XLSX export")
		}
	default:
		middleware.WriteError(w, http.StatusBadRequest, fmt.Sprintf("Unknown export format %q", format))
	}
}

func exportFilename(ext string) string {
	return fmt.Sprintf(`attachment; filename="transactions-%s.%s"`, time.Now().Format("20060102"), ext)
}

// RulesHandler handles categorization rule endpoints.
type RulesHandler struct {
	store *store.Store
	log   zerolog.Logger
}

// NewRulesHandler creates a new rules handler.
func NewRulesHandler(st *store.Store, log zerolog.Logger) *RulesHandler {
	return &RulesHandler{store: st, log: log}
}

// List handles GET /api/rules
func (h *RulesHandler) List(w http.ResponseWriter, r *http.Request) {
	rules, err := h.store.ListRules(r.Context())
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list rules")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to list rules")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"rules": rules,
		"count": len(rules),
	})
}

// Create handles POST /api/rules
func (h *RulesHandler) Create(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req struct {
		Keyword     string `json:"keyword"`
		Category    string `json:"category"`
		Subcategory string `json:"subcategory"`
		Priority    *int   `json:"priority"`
		Status      string `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if strings.TrimSpace(req.Keyword) == "" {
		middleware.WriteError(w, http.StatusBadRequest, "Keyword must not be blank")
		return
	}

	if req.Category != "" {
		ok, err := h.store.HasCategory(ctx, req.Category)
		if err != nil {
			h.log.Error().Err(err).Msg("Failed to check category")
			middleware.WriteError(w, http.StatusInternalServerError, "Failed to create rule")
			return
		}
		if !ok {
			middleware.WriteError(w, http.StatusBadRequest, fmt.Sprintf("Unknown category %q", req.Category))
			return
		}
	}

	rule := domain.Rule{
		Keyword:     req.Keyword,
		Category:    req.Category,
		Subcategory: req.Subcategory,
		Priority:    100,
		Status:      domain.RuleStatus(req.Status),
	}
	if req.Priority != nil {
		// An explicit 0 is a valid priority, so the default only applies
		// when the field is absent from the payload.
		rule.Priority = *req.Priority
	}

	created, err := h.store.CreateRule(ctx, rule)
	if err != nil {
		if errors.Is(err, store.ErrBlankKeyword) {
			middleware.WriteError(w, http.StatusBadRequest, "Keyword must not be blank")
			return
		}
		h.log.Error().Err(err).Msg("Failed to create rule")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to create rule")
		return
	}

	h.log.Info().Int64("rule_id", created.ID).Str("keyword", created.Keyword).Msg("Rule created")

	middleware.WriteJSON(w, http.StatusCreated, created)
}

// Delete handles DELETE /api/rules/{id}
func (h *RulesHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid rule id")
		return
	}

	if err := h.store.DeleteRule(r.Context(), id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			middleware.WriteError(w, http.StatusNotFound, "Rule not found")
			return
		}
		h.log.Error().Err(err).Int64("rule_id", id).Msg("Failed to delete rule")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to delete rule")
		return
	}

	h.log.Info().Int64("rule_id", id).Msg("Rule deleted")

	w.WriteHeader(http.StatusNoContent)
}

// CategoriesHandler handles category endpoints.
type CategoriesHandler struct {
	store *store.Store
	log   zerolog.Logger
}

// NewCategoriesHandler creates a new categories handler.
func NewCategoriesHandler(st *store.Store, log zerolog.Logger) *CategoriesHandler {
	return &CategoriesHandler{store: st, log: log}
}

// List handles GET /api/categories
func (h *CategoriesHandler) List(w http.ResponseWriter, r *http.Request) {
	categories, err := h.store.ListCategories(r.Context())
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list categories")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to list categories")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"categories": categories,
		"count":      len(categories),
	})
}

// ReprocessHandler triggers bulk recategorization of stored transactions.
type ReprocessHandler struct {
	coordinator *reprocess.Coordinator
	log         zerolog.Logger
}

// NewReprocessHandler creates a new reprocess handler.
func NewReprocessHandler(c *reprocess.Coordinator, log zerolog.Logger) *ReprocessHandler {
	return &ReprocessHandler{coordinator: c, log: log}
}

// Trigger handles POST /api/reprocess
func (h *ReprocessHandler) Trigger(w http.ResponseWriter, r *http.Request) {
	result, err := h.coordinator.ReprocessAll(r.Context())
	if err != nil {
		if errors.Is(err, reprocess.ErrAlreadyRunning) {
			middleware.WriteError(w, http.StatusConflict, "Reprocess already running")
			return
		}
		h.log.Error().Err(err).Msg("Reprocess failed")
		middleware.WriteError(w, http.StatusInternalServerError, "Reprocess failed")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, result)
}

// JobsHandler handles job status endpoints.
type JobsHandler struct {
	store jobs.JobStore
	log   zerolog.Logger
}

// NewJobsHandler creates a new jobs handler.
func NewJobsHandler(store jobs.JobStore, log zerolog.Logger) *JobsHandler {
	return &JobsHandler{store: store, log: log}
}

// Get handles GET /api/jobs/{id}
func (h *JobsHandler) Get(w http.ResponseWriter, r *http.Request) {
	jobID := mux.Vars(r)["id"]

	job, err := h.store.GetJob(r.Context(), jobID)
	if err != nil {
		middleware.WriteError(w, http.StatusNotFound, "Job not found")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, job)
}

// List handles GET /api/jobs
func (h *JobsHandler) List(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	filter := jobs.JobFilter{
		StatementID: query.Get("statement_id"),
		Status:      jobs.JobStatus(query.Get("status")),
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

	jobsList, err := h.store.ListJobs(r.Context(), filter)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list jobs")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to list jobs")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"jobs":  jobsList,
		"count": len(jobsList),
	})
}

// Health handles GET /health
func Health(w http.ResponseWriter, r *http.Request) {
	middleware.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
