package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/hyperengineering/ridelake/internal/chat"
	"github.com/hyperengineering/ridelake/internal/store"
	"github.com/hyperengineering/ridelake/internal/types"
	"github.com/hyperengineering/ridelake/internal/vector"
)

// Ingestor accepts uploads into the pipeline and resumes failed batches.
type Ingestor interface {
	Enqueue(ctx context.Context, src io.Reader) (uuid.UUID, error)
	Resume(ctx context.Context, batchID uuid.UUID) error
}

// ChatService answers natural-language questions over curated rides.
type ChatService interface {
	Ask(ctx context.Context, question string) (*chat.Answer, error)
}

// QueryEmbedder embeds free-text search queries.
type QueryEmbedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// HandlerOptions carries the dependencies for a Handler. Chat, Embedder
// and Index are optional; their endpoints return 503 when absent.
type HandlerOptions struct {
	Store          store.Store
	Ingestor       Ingestor
	Chat           ChatService
	Embedder       QueryEmbedder
	Index          vector.Index
	Version        string
	MaxUploadBytes int64
	SearchLimit    int
}

// Handler implements the API handlers
type Handler struct {
	store          store.Store
	ingestor       Ingestor
	chat           ChatService
	embedder       QueryEmbedder
	index          vector.Index
	version        string
	maxUploadBytes int64
	searchLimit    int
}

// NewHandler creates a new Handler from its dependencies.
func NewHandler(opts HandlerOptions) *Handler {
	searchLimit := opts.SearchLimit
	if searchLimit <= 0 {
		searchLimit = 5
	}
	return &Handler{
		store:          opts.Store,
		ingestor:       opts.Ingestor,
		chat:           opts.Chat,
		embedder:       opts.Embedder,
		index:          opts.Index,
		version:        opts.Version,
		maxUploadBytes: opts.MaxUploadBytes,
		searchLimit:    searchLimit,
	}
}

// Health returns the health status
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	count, err := h.store.CountRides(r.Context())
	if err != nil {
		WriteProblem(w, r, http.StatusInternalServerError, "Internal Server Error")
		return
	}

	writeJSON(w, http.StatusOK, types.HealthResponse{
		Status:       "healthy",
		Version:      h.version,
		CuratedRides: count,
	})
}

// UploadResponse acknowledges an accepted ingestion upload.
type UploadResponse struct {
	BatchID uuid.UUID `json:"batchId"`
	Status  string    `json:"status"`
}

// Upload handles POST /api/v1/ingestion/upload. The multipart file is
// staged and the batch is queued; processing happens asynchronously.
func (h *Handler) Upload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes)

	file, header, err := r.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			WriteProblem(w, r, http.StatusRequestEntityTooLarge,
				fmt.Sprintf("Upload exceeds %d bytes", tooLarge.Limit))
			return
		}
		WriteProblem(w, r, http.StatusBadRequest, "Multipart form must include a \"file\" part")
		return
	}
	defer file.Close()

	if !strings.EqualFold(filepath.Ext(header.Filename), ".csv") {
		WriteProblem(w, r, http.StatusBadRequest, "Only .csv files are accepted")
		return
	}
	if header.Size == 0 {
		WriteProblem(w, r, http.StatusBadRequest, "Uploaded file is empty")
		return
	}

	batchID, err := h.ingestor.Enqueue(r.Context(), file)
	if err != nil {
		slog.Error("upload enqueue failed", "error", err, "filename", header.Filename)
		MapStoreError(w, r, err)
		return
	}

	writeJSON(w, http.StatusAccepted, UploadResponse{
		BatchID: batchID,
		Status:  string(types.StatusProcessing),
	})
}

// Resume handles POST /api/v1/ingestion/resume/{batchId}.
func (h *Handler) Resume(w http.ResponseWriter, r *http.Request) {
	batchID, err := uuid.Parse(chi.URLParam(r, "batchId"))
	if err != nil {
		WriteProblem(w, r, http.StatusBadRequest, "batchId must be a UUID")
		return
	}

	if err := h.ingestor.Resume(r.Context(), batchID); err != nil {
		MapStoreError(w, r, err)
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]string{"batchId": batchID.String()})
}

// BatchStatus handles GET /api/v1/ingestion/status/{batchId}.
func (h *Handler) BatchStatus(w http.ResponseWriter, r *http.Request) {
	batchID, err := uuid.Parse(chi.URLParam(r, "batchId"))
	if err != nil {
		WriteProblem(w, r, http.StatusBadRequest, "batchId must be a UUID")
		return
	}

	status, err := h.store.LatestStage(r.Context(), batchID)
	if err != nil {
		MapStoreError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, status)
}

// History handles GET /api/v1/ingestion/history.
func (h *Handler) History(w http.ResponseWriter, r *http.Request) {
	page, pageSize := pagination(r)

	result, err := h.store.PageStatus(r.Context(), page, pageSize)
	if err != nil {
		MapStoreError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// Chat handles POST /api/v1/chat.
func (h *Handler) Chat(w http.ResponseWriter, r *http.Request) {
	if h.chat == nil {
		WriteProblem(w, r, http.StatusServiceUnavailable, "Chat assistant is not configured")
		return
	}

	var req struct {
		Question string `json:"question"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteProblem(w, r, http.StatusBadRequest, fmt.Sprintf("Invalid JSON: %s", err.Error()))
		return
	}

	answer, err := h.chat.Ask(r.Context(), req.Question)
	if err != nil {
		slog.Error("chat request failed", "error", err)
		WriteProblem(w, r, http.StatusBadRequest, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, answer)
}

// pagination reads page and pageSize query parameters, applying defaults
// and clamping pageSize to 100.
func pagination(r *http.Request) (page, pageSize int) {
	page = 1
	pageSize = 20

	if v := r.URL.Query().Get("page"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			page = n
		}
	}
	if v := r.URL.Query().Get("pageSize"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			pageSize = n
		}
	}
	if pageSize > 100 {
		pageSize = 100
	}
	return page, pageSize
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}
