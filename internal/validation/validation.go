// Package validation provides field-level request validation with
// accumulated errors for RFC 7807 responses.
package validation

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/hyperengineering/ridelake/internal/types"
)

// ValidationError represents a single field validation failure.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// Collector accumulates validation errors without failing on first.
type Collector struct {
	errors []ValidationError
}

// Add appends a validation error to the collector if non-nil.
func (c *Collector) Add(err *ValidationError) {
	if err != nil {
		c.errors = append(c.errors, *err)
	}
}

// HasErrors returns true if the collector has accumulated any errors.
func (c *Collector) HasErrors() bool {
	return len(c.errors) > 0
}

// Errors returns all accumulated validation errors.
func (c *Collector) Errors() []ValidationError {
	return c.errors
}

// BookingStatuses are the statuses a curated ride may carry.
var BookingStatuses = []string{
	"Completed",
	"Cancelled by Customer",
	"Cancelled by Driver",
	"Incomplete",
}

// ValidateRequired returns an error if the value is blank.
func ValidateRequired(field, value string) *ValidationError {
	if strings.TrimSpace(value) == "" {
		return &ValidationError{Field: field, Message: "is required"}
	}
	return nil
}

// ValidateUTF8 returns an error if the value is not valid UTF-8.
func ValidateUTF8(field, value string) *ValidationError {
	if !utf8.ValidString(value) {
		return &ValidationError{Field: field, Message: "must be valid UTF-8"}
	}
	return nil
}

// ValidateMaxLength returns an error if the value exceeds max runes.
func ValidateMaxLength(field, value string, max int) *ValidationError {
	if utf8.RuneCountInString(value) > max {
		return &ValidationError{
			Field:   field,
			Message: fmt.Sprintf("must be at most %d characters", max),
		}
	}
	return nil
}

// ValidateNonNegative returns an error if the value is negative.
func ValidateNonNegative(field string, value float64) *ValidationError {
	if value < 0 {
		return &ValidationError{Field: field, Message: "must not be negative"}
	}
	return nil
}

// ValidateRating returns an error if a provided rating is outside [0, 5].
func ValidateRating(field string, value *float64) *ValidationError {
	if value == nil {
		return nil
	}
	if *value < 0 || *value > 5 {
		return &ValidationError{Field: field, Message: "must be between 0 and 5"}
	}
	return nil
}

// ValidateBookingStatus returns an error if the status is not a known
// booking status.
func ValidateBookingStatus(field, value string) *ValidationError {
	for _, s := range BookingStatuses {
		if value == s {
			return nil
		}
	}
	return &ValidationError{
		Field:   field,
		Message: fmt.Sprintf("must be one of: %s", strings.Join(BookingStatuses, ", ")),
	}
}

// ValidateNewRide validates a direct ride-creation payload.
func ValidateNewRide(ride types.NewRide) []ValidationError {
	var c Collector
	c.Add(ValidateRequired("customerId", ride.CustomerID))
	c.Add(ValidateUTF8("customerId", ride.CustomerID))
	c.Add(ValidateMaxLength("customerId", ride.CustomerID, 64))
	c.Add(ValidateRequired("vehicleType", ride.VehicleType))
	c.Add(ValidateMaxLength("vehicleType", ride.VehicleType, 64))
	c.Add(ValidateNonNegative("bookingValue", ride.BookingValue))
	c.Add(ValidateNonNegative("rideDistance", ride.RideDistance))
	c.Add(ValidateRating("driverRatings", ride.DriverRating))
	c.Add(ValidateRating("customerRating", ride.CustomerRating))
	return c.Errors()
}
