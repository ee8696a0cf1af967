// Package types defines the domain types shared across the ingestion
// pipeline, the store, and the API layer.
package types

import (
	"time"

	"github.com/google/uuid"
)

// Stage identifies one step of the medallion pipeline.
type Stage string

const (
	StageBronze Stage = "Bronze"
	StageSilver Stage = "Silver"
	StageGold   Stage = "Gold"
)

// Valid reports whether s is a known pipeline stage.
func (s Stage) Valid() bool {
	switch s {
	case StageBronze, StageSilver, StageGold:
		return true
	}
	return false
}

// Next returns the stage that follows s, or "" for the terminal stage.
func (s Stage) Next() Stage {
	switch s {
	case StageBronze:
		return StageSilver
	case StageSilver:
		return StageGold
	}
	return ""
}

// StageStatus is the execution state of one (batch, stage) attempt.
type StageStatus string

const (
	StatusProcessing StageStatus = "Processing"
	StatusSuccess    StageStatus = "Success"
	StatusFailed     StageStatus = "Failed"
)

// Terminal reports whether the status ends a stage attempt.
func (s StageStatus) Terminal() bool {
	return s == StatusSuccess || s == StatusFailed
}

// PipelineStatus is the durable record of one (batch, stage) attempt.
// At most one row exists per (batch, stage) pair; retries update in place.
type PipelineStatus struct {
	BatchID      uuid.UUID   `json:"batchId"`
	Step         Stage       `json:"step"`
	Status       StageStatus `json:"status"`
	StartTime    time.Time   `json:"startTime"`
	EndTime      *time.Time  `json:"endTime,omitempty"`
	RowsImported int64       `json:"rowsImported"`
	ErrorMessage *string     `json:"errorMessage,omitempty"`
}

// RawRide is one bronze-layer row: a source-file line with minimal
// coercion applied. Every field is nullable; absent values stay nil so the
// source representation is preserved as closely as possible.
type RawRide struct {
	RideDate            *time.Time
	RideTime            *string
	BookingID           *string
	BookingStatus       *string
	CustomerID          *string
	VehicleType         *string
	CancelledByCustomer *bool
	CustomerReason      *string
	CancelledByDriver   *bool
	DriverReason        *string
	IncompleteRide      *bool
	IncompleteReason    *string
	BookingValue        *float64
	RideDistance        *float64
	DriverRating        *float64
	CustomerRating      *float64
	PaymentMethod       *string
}

// GoldRide is one curated (gold-layer) ride, the authoritative record for
// external consumption. BookingID is globally unique.
type GoldRide struct {
	BookingID                 string    `json:"bookingId"`
	RideTimestamp             time.Time `json:"rideTimestamp"`
	BookingStatus             string    `json:"bookingStatus"`
	CustomerID                string    `json:"customerId"`
	VehicleType               string    `json:"vehicleType"`
	UnifiedCancellationReason string    `json:"unifiedCancellationReason"`
	BookingValue              float64   `json:"bookingValue"`
	RideDistance              float64   `json:"rideDistance"`
	RevenuePerKm              float64   `json:"revenuePerKm"`
	DriverRating              *float64  `json:"driverRatings,omitempty"`
	CustomerRating            *float64  `json:"customerRating,omitempty"`
	PaymentMethod             *string   `json:"paymentMethod,omitempty"`
}

// RideFilter narrows a curated ride listing. BookingIDs, when non-nil,
// restricts results to that set (populated by semantic search).
type RideFilter struct {
	Status     string
	Vehicle    string
	CustomerID string
	BookingIDs []string
	Page       int
	PageSize   int
}

// NewRide is the payload for creating a curated ride directly.
type NewRide struct {
	CustomerID     string     `json:"customerId"`
	VehicleType    string     `json:"vehicleType"`
	BookingValue   float64    `json:"bookingValue"`
	RideDistance   float64    `json:"rideDistance"`
	RideTimestamp  *time.Time `json:"rideTimestamp,omitempty"`
	DriverRating   *float64   `json:"driverRatings,omitempty"`
	CustomerRating *float64   `json:"customerRating,omitempty"`
	PaymentMethod  *string    `json:"paymentMethod,omitempty"`
}

// PagedResult is a window over a larger result set.
type PagedResult[T any] struct {
	Items      []T   `json:"items"`
	TotalCount int64 `json:"totalCount"`
	Page       int   `json:"page"`
	PageSize   int   `json:"pageSize"`
}

// AnalyticsFilter scopes dashboard queries.
type AnalyticsFilter struct {
	Vehicle string
	Start   *time.Time
	End     *time.Time
}

// DashboardKPIs are the headline dashboard numbers over the gold layer.
type DashboardKPIs struct {
	TotalBookings      int64   `json:"totalBookings"`
	SuccessfulBookings int64   `json:"successfulBookings"`
	TotalRevenue       float64 `json:"totalRevenue"`
	SuccessRate        float64 `json:"successRate"`
}

// CancellationCount is one slice of the cancellation-reason breakdown.
type CancellationCount struct {
	Reason string `json:"reason"`
	Count  int64  `json:"count"`
}

// VehiclePerformance aggregates rides per vehicle type.
type VehiclePerformance struct {
	VehicleType string   `json:"vehicleType"`
	TotalRides  int64    `json:"totalRides"`
	AvgRating   *float64 `json:"avgRating,omitempty"`
}

// HourlyTraffic is the ride count for one hour of day.
type HourlyTraffic struct {
	Hour      int   `json:"hour"`
	RideCount int64 `json:"rideCount"`
}

// HealthResponse is returned by GET /api/v1/health.
type HealthResponse struct {
	Status       string `json:"status"`
	Version      string `json:"version"`
	CuratedRides int64  `json:"curatedRides"`
}
