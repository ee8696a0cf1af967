package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/hyperengineering/ridelake/internal/types"
)

// analyticsFilterClause builds the shared WHERE clause for dashboard
// queries over the gold layer.
func analyticsFilterClause(f types.AnalyticsFilter) (string, []any) {
	conds := []string{"1=1"}
	var args []any

	if f.Vehicle != "" {
		args = append(args, f.Vehicle)
		conds = append(conds, fmt.Sprintf("vehicle_type = $%d", len(args)))
	}
	if f.Start != nil {
		args = append(args, *f.Start)
		conds = append(conds, fmt.Sprintf("ride_timestamp >= $%d", len(args)))
	}
	if f.End != nil {
		args = append(args, *f.End)
		conds = append(conds, fmt.Sprintf("ride_timestamp <= $%d", len(args)))
	}

	return " WHERE " + strings.Join(conds, " AND "), args
}

// KPIs returns the headline dashboard aggregate over the curated layer.
func (s *PostgresStore) KPIs(ctx context.Context, f types.AnalyticsFilter) (*types.DashboardKPIs, error) {
	where, args := analyticsFilterClause(f)

	var k types.DashboardKPIs
	err := s.pool.QueryRow(ctx, `
		SELECT COUNT(*),
		       COUNT(*) FILTER (WHERE booking_status = 'Completed'),
		       COALESCE(SUM(booking_value), 0),
		       CASE WHEN COUNT(*) > 0
		            THEN ROUND((COUNT(*) FILTER (WHERE booking_status = 'Completed')::numeric / COUNT(*)) * 100, 2)
		            ELSE 0 END
		FROM gold.rides`+where, args...).
		Scan(&k.TotalBookings, &k.SuccessfulBookings, &k.TotalRevenue, &k.SuccessRate)
	if err != nil {
		return nil, fmt.Errorf("dashboard kpis: %w", err)
	}
	return &k, nil
}

// CancellationBreakdown groups cancelled rides by unified reason.
func (s *PostgresStore) CancellationBreakdown(ctx context.Context, f types.AnalyticsFilter) ([]types.CancellationCount, error) {
	where, args := analyticsFilterClause(f)

	rows, err := s.pool.Query(ctx, `
		SELECT unified_cancellation_reason, COUNT(*)
		FROM gold.rides`+where+`
		  AND unified_cancellation_reason <> 'Not Cancelled'
		GROUP BY unified_cancellation_reason
		ORDER BY COUNT(*) DESC`, args...)
	if err != nil {
		return nil, fmt.Errorf("cancellation breakdown: %w", err)
	}
	defer rows.Close()

	out := []types.CancellationCount{}
	for rows.Next() {
		var c types.CancellationCount
		if err := rows.Scan(&c.Reason, &c.Count); err != nil {
			return nil, fmt.Errorf("scan cancellation count: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// VehiclePerformance aggregates ride counts and average customer rating
// per vehicle type.
func (s *PostgresStore) VehiclePerformance(ctx context.Context, f types.AnalyticsFilter) ([]types.VehiclePerformance, error) {
	where, args := analyticsFilterClause(f)

	rows, err := s.pool.Query(ctx, `
		SELECT vehicle_type, COUNT(*), ROUND(AVG(customer_rating)::numeric, 2)
		FROM gold.rides`+where+`
		GROUP BY vehicle_type
		ORDER BY vehicle_type`, args...)
	if err != nil {
		return nil, fmt.Errorf("vehicle performance: %w", err)
	}
	defer rows.Close()

	out := []types.VehiclePerformance{}
	for rows.Next() {
		var v types.VehiclePerformance
		if err := rows.Scan(&v.VehicleType, &v.TotalRides, &v.AvgRating); err != nil {
			return nil, fmt.Errorf("scan vehicle performance: %w", err)
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// HourlyTraffic returns ride counts bucketed by hour of day.
func (s *PostgresStore) HourlyTraffic(ctx context.Context, f types.AnalyticsFilter) ([]types.HourlyTraffic, error) {
	where, args := analyticsFilterClause(f)

	rows, err := s.pool.Query(ctx, `
		SELECT EXTRACT(HOUR FROM ride_timestamp)::int, COUNT(*)
		FROM gold.rides`+where+`
		GROUP BY 1
		ORDER BY 1`, args...)
	if err != nil {
		return nil, fmt.Errorf("hourly traffic: %w", err)
	}
	defer rows.Close()

	out := []types.HourlyTraffic{}
	for rows.Next() {
		var h types.HourlyTraffic
		if err := rows.Scan(&h.Hour, &h.RideCount); err != nil {
			return nil, fmt.Errorf("scan hourly traffic: %w", err)
		}
		out = append(out, h)
	}
	return out, rows.Err()
}
