package http

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/pkg/errors"

	"github.com/Zereker/docstore/internal/docstore"
	"github.com/Zereker/docstore/pkg/log"
)

// Handler handles HTTP API requests
type Handler struct {
	logger *slog.Logger
	repo   *docstore.Repository
}

// NewHandler creates a new HTTP handler
func NewHandler(repo *docstore.Repository) *Handler {
	return &Handler{
		logger: log.Logger("http.handler"),
		repo:   repo,
	}
}

// Response represents a standard API response
type Response struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

// QueryRequest is the body of find, find_one, count and delete.
type QueryRequest struct {
	Query map[string]any `json:"query"`
}

// UpdateRequest is the body of update.
type UpdateRequest struct {
	Query map[string]any   `json:"query"`
	Patch docstore.Record `json:"patch"`
}

// CountResult reports how many records an operation touched.
type CountResult struct {
	Count int `json:"count"`
}

// RegisterRoutes registers all HTTP routes
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/v1/collections/{name}/records", h.Set)
	mux.HandleFunc("POST /api/v1/collections/{name}/find", h.Find)
	mux.HandleFunc("POST /api/v1/collections/{name}/find_one", h.FindOne)
	mux.HandleFunc("POST /api/v1/collections/{name}/count", h.Count)
	mux.HandleFunc("POST /api/v1/collections/{name}/update", h.Update)
	mux.HandleFunc("POST /api/v1/collections/{name}/delete", h.Delete)

	// Health check
	mux.HandleFunc("GET /health", h.Health)
	mux.HandleFunc("GET /api/v1/health", h.Health)
}

// Set handles POST /api/v1/collections/{name}/records[?ttl=30s]
func (h *Handler) Set(w http.ResponseWriter, r *http.Request) {
	coll, ok := h.collection(w, r)
	if !ok {
		return
	}

	var rec docstore.Record
	if err := json.NewDecoder(r.Body).Decode(&rec); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	var opts []docstore.SetOption
	if raw := r.URL.Query().Get("ttl"); raw != "" {
		ttl, err := time.ParseDuration(raw)
		if err != nil {
			h.writeError(w, http.StatusBadRequest, "invalid ttl: "+err.Error())
			return
		}
		opts = append(opts, docstore.WithTTL(ttl))
	}

	stored, err := coll.Set(r.Context(), rec, opts...)
	if err != nil {
		h.fail(w, "set", err)
		return
	}

	h.writeJSON(w, http.StatusOK, Response{Success: true, Data: stored})
}

// Find handles POST /api/v1/collections/{name}/find
func (h *Handler) Find(w http.ResponseWriter, r *http.Request) {
	coll, q, ok := h.queryRequest(w, r)
	if !ok {
		return
	}

	records, err := coll.Find(r.Context(), q)
	if err != nil {
		h.fail(w, "find", err)
		return
	}

	h.writeJSON(w, http.StatusOK, Response{Success: true, Data: records})
}

// FindOne handles POST /api/v1/collections/{name}/find_one
// A miss answers 404.
func (h *Handler) FindOne(w http.ResponseWriter, r *http.Request) {
	coll, q, ok := h.queryRequest(w, r)
	if !ok {
		return
	}

	rec, err := coll.FindOne(r.Context(), q)
	if err != nil {
		h.fail(w, "find_one", err)
		return
	}
	if rec == nil {
		h.writeError(w, http.StatusNotFound, "no matching record")
		return
	}

	h.writeJSON(w, http.StatusOK, Response{Success: true, Data: rec})
}

// Count handles POST /api/v1/collections/{name}/count
func (h *Handler) Count(w http.ResponseWriter, r *http.Request) {
	coll, q, ok := h.queryRequest(w, r)
	if !ok {
		return
	}

	n, err := coll.Count(r.Context(), q)
	if err != nil {
		h.fail(w, "count", err)
		return
	}

	h.writeJSON(w, http.StatusOK, Response{Success: true, Data: CountResult{Count: n}})
}

// Update handles POST /api/v1/collections/{name}/update
func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	coll, ok := h.collection(w, r)
	if !ok {
		return
	}

	var req UpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	q, err := docstore.ParseQuery(req.Query)
	if err != nil {
		h.fail(w, "update", err)
		return
	}

	n, err := coll.Update(r.Context(), q, req.Patch)
	h.writeCount(w, "update", n, err)
}

// Delete handles POST /api/v1/collections/{name}/delete
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	coll, q, ok := h.queryRequest(w, r)
	if !ok {
		return
	}

	n, err := coll.Delete(r.Context(), q)
	h.writeCount(w, "delete", n, err)
}

// Health handles GET /health
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, Response{
		Success: true,
		Data: map[string]string{
			"status": "healthy",
		},
	})
}

func (h *Handler) collection(w http.ResponseWriter, r *http.Request) (*docstore.Collection, bool) {
	coll, err := h.repo.Collection(r.PathValue("name"))
	if err != nil {
		h.fail(w, "collection", err)
		return nil, false
	}
	return coll, true
}

func (h *Handler) queryRequest(w http.ResponseWriter, r *http.Request) (*docstore.Collection, docstore.Query, bool) {
	coll, ok := h.collection(w, r)
	if !ok {
		return nil, nil, false
	}

	var req QueryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return nil, nil, false
	}

	q, err := docstore.ParseQuery(req.Query)
	if err != nil {
		h.fail(w, "parse query", err)
		return nil, nil, false
	}
	return coll, q, true
}

// writeCount answers update and delete. A partial failure still reports the
// number of records that were processed.
func (h *Handler) writeCount(w http.ResponseWriter, op string, n int, err error) {
	if err == nil {
		h.writeJSON(w, http.StatusOK, Response{Success: true, Data: CountResult{Count: n}})
		return
	}

	var batchErr *docstore.BatchError
	if errors.As(err, &batchErr) {
		h.logger.Error(op+" partially failed", "count", n, "failures", len(batchErr.Failures))
		h.writeJSON(w, http.StatusInternalServerError, Response{
			Success: false,
			Data:    CountResult{Count: n},
			Error:   err.Error(),
		})
		return
	}

	h.fail(w, op, err)
}

// fail maps err onto a status code and writes it.
func (h *Handler) fail(w http.ResponseWriter, op string, err error) {
	if errors.Is(err, docstore.ErrValidation) || errors.Is(err, docstore.ErrInvalidQuery) {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	h.logger.Error(op+" failed", "error", err)
	h.writeError(w, http.StatusInternalServerError, err.Error())
}

// writeJSON writes a JSON response
func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// writeError writes an error response
func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, Response{
		Success: false,
		Error:   message,
	})
}
