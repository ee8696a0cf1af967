package api

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hyperengineering/ridelake/internal/types"
	"github.com/hyperengineering/ridelake/internal/validation"
)

// ListRides handles GET /api/v1/rides. When a q parameter is present the
// curated rides are narrowed to the nearest cancellation reasons from the
// vector index.
func (h *Handler) ListRides(w http.ResponseWriter, r *http.Request) {
	page, pageSize := pagination(r)
	q := r.URL.Query()

	filter := types.RideFilter{
		Status:     q.Get("status"),
		Vehicle:    q.Get("vehicle"),
		CustomerID: q.Get("customerId"),
		Page:       page,
		PageSize:   pageSize,
	}

	if query := q.Get("q"); query != "" {
		bookingIDs, ok := h.semanticBookingIDs(w, r, query)
		if !ok {
			return // response already written
		}
		if len(bookingIDs) == 0 {
			writeJSON(w, http.StatusOK, &types.PagedResult[types.GoldRide]{
				Items:    []types.GoldRide{},
				Page:     page,
				PageSize: pageSize,
			})
			return
		}
		filter.BookingIDs = bookingIDs
	}

	result, err := h.store.ListRides(r.Context(), filter)
	if err != nil {
		MapStoreError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// semanticBookingIDs embeds the query and returns the booking IDs of the
// nearest indexed cancellation reasons. On failure the problem response is
// written and ok is false.
func (h *Handler) semanticBookingIDs(w http.ResponseWriter, r *http.Request, query string) (ids []string, ok bool) {
	if h.embedder == nil || h.index == nil {
		WriteProblem(w, r, http.StatusServiceUnavailable, "Semantic search is not configured")
		return nil, false
	}

	embedding, err := h.embedder.Embed(r.Context(), query)
	if err != nil {
		slog.Error("query embedding failed", "error", err)
		WriteProblem(w, r, http.StatusServiceUnavailable, "Embedding service unavailable")
		return nil, false
	}

	hits, err := h.index.Search(r.Context(), embedding, h.searchLimit)
	if err != nil {
		slog.Error("vector search failed", "error", err)
		WriteProblem(w, r, http.StatusServiceUnavailable, "Vector index unavailable")
		return nil, false
	}

	for _, hit := range hits {
		if id, found := hit.Payload["booking_id"].(string); found {
			ids = append(ids, id)
		}
	}
	return ids, true
}

// CreateRide handles POST /api/v1/rides.
func (h *Handler) CreateRide(w http.ResponseWriter, r *http.Request) {
	var req types.NewRide
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteProblem(w, r, http.StatusBadRequest, fmt.Sprintf("Invalid JSON: %s", err.Error()))
		return
	}

	if errs := validation.ValidateNewRide(req); len(errs) > 0 {
		WriteProblemWithErrors(w, r, "Request contains invalid fields", errs)
		return
	}

	bookingID, err := h.store.CreateRide(r.Context(), req)
	if err != nil {
		slog.Error("ride creation failed", "error", err)
		MapStoreError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]string{"bookingId": bookingID})
}

// UpdateRideStatus handles PATCH /api/v1/rides/{bookingId}/status.
func (h *Handler) UpdateRideStatus(w http.ResponseWriter, r *http.Request) {
	bookingID := chi.URLParam(r, "bookingId")

	var req struct {
		Status string  `json:"status"`
		Reason *string `json:"reason,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteProblem(w, r, http.StatusBadRequest, fmt.Sprintf("Invalid JSON: %s", err.Error()))
		return
	}

	if err := validation.ValidateBookingStatus("status", req.Status); err != nil {
		WriteProblemWithErrors(w, r, "Request contains invalid fields", []validation.ValidationError{*err})
		return
	}

	if err := h.store.UpdateRideStatus(r.Context(), bookingID, req.Status, req.Reason); err != nil {
		MapStoreError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"bookingId": bookingID, "status": req.Status})
}

// DeleteRide handles DELETE /api/v1/rides/{bookingId}.
func (h *Handler) DeleteRide(w http.ResponseWriter, r *http.Request) {
	bookingID := chi.URLParam(r, "bookingId")

	if err := h.store.DeleteRide(r.Context(), bookingID); err != nil {
		MapStoreError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
