package main

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/stashbase/stashbase"
	"github.com/stashbase/stashbase/internal"
	"github.com/stashbase/stashbase/internal/metrics"
	"github.com/stashbase/stashbase/transform"
)

// Server is the HTTP adapter over the document handler surface. Every
// response body is the uniform tool-result envelope; HTTP status only
// distinguishes success from failure.
type Server struct {
	handlers stashbase.Handlers
	conns    *internal.ConnManager
	cfg      *stashbase.Config
}

// NewServer creates the HTTP adapter.
func NewServer(handlers stashbase.Handlers, conns *internal.ConnManager, cfg *stashbase.Config) *Server {
	return &Server{handlers: handlers, conns: conns, cfg: cfg}
}

// Router builds the chi route tree.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.Recoverer)
	r.Use(metrics.Middleware())

	r.Get("/healthz", s.handleHealthz)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/collections", s.handleListCollections)
		r.Post("/collections", s.handleCreateCollection)
		r.Get("/collections/{collection}/schema", s.handleGetSchema)
		r.Patch("/collections/{collection}/schema", s.handleUpdateSchema)
		r.Post("/collections/{collection}/documents", s.handleInsertDocument)
		r.Post("/collections/{collection}/query", s.handleQueryCollection)
		r.Patch("/collections/{collection}/documents/{id}", s.handleUpdateDocument)
		r.Delete("/collections/{collection}/documents/{id}", s.handleDeleteDocument)
		r.Post("/transforms/apply", s.handleApplyTransforms)
	})
	return r
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	pool, err := s.conns.Acquire(ctx)
	if err == nil {
		err = internal.CheckDatabase(ctx, pool, 5*time.Second)
	}
	if err != nil {
		zap.S().Warnw("health check failed", "error", err)
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unhealthy", "error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleListCollections(w http.ResponseWriter, r *http.Request) {
	writeResult(w, "list_collections", s.handlers.ListCollections(r.Context()))
}

type createCollectionRequest struct {
	Name        string                      `json:"name"`
	Description string                      `json:"description"`
	Fields      []stashbase.FieldDefinition `json:"fields"`
}

func (s *Server) handleCreateCollection(w http.ResponseWriter, r *http.Request) {
	var req createCollectionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeResult(w, "create_collection", stashbase.ErrorResult("invalid request body: "+err.Error()))
		return
	}
	writeResult(w, "create_collection",
		s.handlers.CreateCollection(r.Context(), req.Name, req.Description, req.Fields))
}

func (s *Server) handleGetSchema(w http.ResponseWriter, r *http.Request) {
	collection := chi.URLParam(r, "collection")
	writeResult(w, "get_collection_schema", s.handlers.GetCollectionSchema(r.Context(), collection))
}

type updateSchemaRequest struct {
	NewFields []stashbase.FieldDefinition `json:"new_fields"`
}

func (s *Server) handleUpdateSchema(w http.ResponseWriter, r *http.Request) {
	collection := chi.URLParam(r, "collection")
	var req updateSchemaRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeResult(w, "update_collection_schema", stashbase.ErrorResult("invalid request body: "+err.Error()))
		return
	}
	writeResult(w, "update_collection_schema",
		s.handlers.UpdateCollectionSchema(r.Context(), collection, req.NewFields))
}

func (s *Server) handleInsertDocument(w http.ResponseWriter, r *http.Request) {
	collection := chi.URLParam(r, "collection")
	var data stashbase.Document
	if err := json.NewDecoder(r.Body).Decode(&data); err != nil {
		writeResult(w, "insert_document", stashbase.ErrorResult("invalid request body: "+err.Error()))
		return
	}
	writeResult(w, "insert_document", s.handlers.InsertDocument(r.Context(), collection, data))
}

type queryRequest struct {
	Filters   map[string]any      `json:"filters"`
	SortBy    string              `json:"sort_by"`
	SortOrder stashbase.SortOrder `json:"sort_order"`
	Limit     *float64            `json:"limit"`
}

func (s *Server) handleQueryCollection(w http.ResponseWriter, r *http.Request) {
	collection := chi.URLParam(r, "collection")
	var req queryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeResult(w, "query_collection", stashbase.ErrorResult("invalid request body: "+err.Error()))
		return
	}
	writeResult(w, "query_collection", s.handlers.QueryCollection(r.Context(), &stashbase.QueryRequest{
		Collection: collection,
		Filters:    req.Filters,
		SortBy:     req.SortBy,
		SortOrder:  req.SortOrder,
		Limit:      req.Limit,
	}))
}

func (s *Server) handleUpdateDocument(w http.ResponseWriter, r *http.Request) {
	collection := chi.URLParam(r, "collection")
	id := chi.URLParam(r, "id")
	var data stashbase.Document
	if err := json.NewDecoder(r.Body).Decode(&data); err != nil {
		writeResult(w, "update_document", stashbase.ErrorResult("invalid request body: "+err.Error()))
		return
	}
	writeResult(w, "update_document", s.handlers.UpdateDocument(r.Context(), collection, id, data))
}

func (s *Server) handleDeleteDocument(w http.ResponseWriter, r *http.Request) {
	collection := chi.URLParam(r, "collection")
	id := chi.URLParam(r, "id")
	writeResult(w, "delete_document", s.handlers.DeleteDocument(r.Context(), collection, id))
}

type applyTransformsRequest struct {
	Datasets   map[string][]transform.Row `json:"datasets"`
	Transforms []transform.Transform      `json:"transforms"`
}

// handleApplyTransforms evaluates a transform pipeline server-side for
// callers that cannot run it locally.
func (s *Server) handleApplyTransforms(w http.ResponseWriter, r *http.Request) {
	var req applyTransformsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeResult(w, "apply_transforms", stashbase.ErrorResult("invalid request body: "+err.Error()))
		return
	}
	derived, err := transform.Apply(req.Datasets, req.Transforms)
	if err != nil {
		writeResult(w, "apply_transforms", stashbase.ErrorResult(err.Error()))
		return
	}
	writeResult(w, "apply_transforms", stashbase.TextResult(derived))
}

// writeResult serializes the tool-result envelope; error envelopes map to
// 400 and bump the per-operation error counter.
func writeResult(w http.ResponseWriter, op string, result stashbase.ToolResult) {
	status := http.StatusOK
	if result.IsError {
		status = http.StatusBadRequest
		metrics.OperationErrorsTotal.WithLabelValues(op).Inc()
	}
	writeJSON(w, status, result)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		zap.S().Errorw("failed to encode response", "error", err)
	}
}
