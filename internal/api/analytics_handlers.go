package api

import (
	"net/http"
	"time"

	"github.com/hyperengineering/ridelake/internal/types"
)

// analyticsFilter reads the shared dashboard query parameters. Start and
// end accept either a date or RFC 3339 timestamp.
func analyticsFilter(r *http.Request) (types.AnalyticsFilter, *string) {
	q := r.URL.Query()
	f := types.AnalyticsFilter{Vehicle: q.Get("vehicle")}

	for _, p := range []struct {
		name string
		dst  **time.Time
	}{
		{"start", &f.Start},
		{"end", &f.End},
	} {
		raw := q.Get(p.name)
		if raw == "" {
			continue
		}
		t, err := parseTimestamp(raw)
		if err != nil {
			msg := p.name + " must be a date (2006-01-02) or RFC 3339 timestamp"
			return f, &msg
		}
		*p.dst = &t
	}
	return f, nil
}

func parseTimestamp(raw string) (time.Time, error) {
	if t, err := time.Parse("2006-01-02", raw); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339, raw)
}

// KPIs handles GET /api/v1/analytics/kpis.
func (h *Handler) KPIs(w http.ResponseWriter, r *http.Request) {
	f, errMsg := analyticsFilter(r)
	if errMsg != nil {
		WriteProblem(w, r, http.StatusBadRequest, *errMsg)
		return
	}

	kpis, err := h.store.KPIs(r.Context(), f)
	if err != nil {
		MapStoreError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, kpis)
}

// Cancellations handles GET /api/v1/analytics/cancellations.
func (h *Handler) Cancellations(w http.ResponseWriter, r *http.Request) {
	f, errMsg := analyticsFilter(r)
	if errMsg != nil {
		WriteProblem(w, r, http.StatusBadRequest, *errMsg)
		return
	}

	counts, err := h.store.CancellationBreakdown(r.Context(), f)
	if err != nil {
		MapStoreError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, counts)
}

// VehiclePerformance handles GET /api/v1/analytics/vehicles.
func (h *Handler) VehiclePerformance(w http.ResponseWriter, r *http.Request) {
	f, errMsg := analyticsFilter(r)
	if errMsg != nil {
		WriteProblem(w, r, http.StatusBadRequest, *errMsg)
		return
	}

	perf, err := h.store.VehiclePerformance(r.Context(), f)
	if err != nil {
		MapStoreError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, perf)
}

// HourlyTraffic handles GET /api/v1/analytics/hourly.
func (h *Handler) HourlyTraffic(w http.ResponseWriter, r *http.Request) {
	f, errMsg := analyticsFilter(r)
	if errMsg != nil {
		WriteProblem(w, r, http.StatusBadRequest, *errMsg)
		return
	}

	traffic, err := h.store.HourlyTraffic(r.Context(), f)
	if err != nil {
		MapStoreError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, traffic)
}
