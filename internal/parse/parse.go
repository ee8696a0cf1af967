// Package parse reads delimited ride exports into typed raw rows.
//
// The reader is forward-only and lazy: rows are produced one at a time and
// the underlying source is never rewound. Callers that need to replay a
// file reopen it and construct a new Reader.
package parse

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/hyperengineering/ridelake/internal/types"
)

// FieldCount is the expected number of columns in a ride export.
const FieldCount = 17

// ErrHeaderMismatch is returned when the header row does not have the
// expected column arity. Column names are deliberately not validated; only
// the shape of the file is checked.
var ErrHeaderMismatch = fmt.Errorf("header row does not have %d columns", FieldCount)

// Reader produces typed raw rides from a CSV byte stream.
type Reader struct {
	csv  *csv.Reader
	line int
}

// NewReader wraps r and consumes the header row. The header's column count
// must match the expected schema arity; its names are discarded.
func NewReader(r io.Reader) (*Reader, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = FieldCount
	cr.LazyQuotes = true

	if _, err := cr.Read(); err != nil {
		if err == io.EOF {
			return nil, fmt.Errorf("read header: empty input")
		}
		if isFieldCountError(err) {
			return nil, ErrHeaderMismatch
		}
		return nil, fmt.Errorf("read header: %w", err)
	}

	return &Reader{csv: cr, line: 1}, nil
}

// Next returns the next raw ride. It returns io.EOF at end of input. A row
// with the wrong field count or broken quoting is a structural error and
// terminates the sequence; malformed field values never do.
func (r *Reader) Next() (types.RawRide, error) {
	rec, err := r.csv.Read()
	if err != nil {
		if err == io.EOF {
			return types.RawRide{}, io.EOF
		}
		return types.RawRide{}, fmt.Errorf("line %d: %w", r.line+1, err)
	}
	r.line++

	return types.RawRide{
		RideDate:            parseDate(rec[0]),
		RideTime:            parseString(rec[1]),
		BookingID:           parseString(rec[2]),
		BookingStatus:       parseString(rec[3]),
		CustomerID:          parseString(rec[4]),
		VehicleType:         parseString(rec[5]),
		CancelledByCustomer: parseBool(rec[6]),
		CustomerReason:      parseString(rec[7]),
		CancelledByDriver:   parseBool(rec[8]),
		DriverReason:        parseString(rec[9]),
		IncompleteRide:      parseBool(rec[10]),
		IncompleteReason:    parseString(rec[11]),
		BookingValue:        parseFloat(rec[12]),
		RideDistance:        parseFloat(rec[13]),
		DriverRating:        parseFloat(rec[14]),
		CustomerRating:      parseFloat(rec[15]),
		PaymentMethod:       parseString(rec[16]),
	}, nil
}

// absent reports whether a field value represents a missing value: blank,
// whitespace-only, or the literal token "null" in any case.
func absent(s string) bool {
	t := strings.TrimSpace(s)
	return t == "" || strings.EqualFold(t, "null")
}

func parseString(s string) *string {
	if absent(s) {
		return nil
	}
	return &s
}

// parseBool maps "1" to true and any other present value to false.
func parseBool(s string) *bool {
	if absent(s) {
		return nil
	}
	b := strings.TrimSpace(s) == "1"
	return &b
}

// parseFloat degrades unparseable values to absent rather than failing the
// row; a bad number is a data defect, not a load failure.
func parseFloat(s string) *float64 {
	if absent(s) {
		return nil
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return nil
	}
	return &f
}

var dateLayouts = []string{"2006-01-02", "2006/01/02", "01/02/2006"}

func parseDate(s string) *time.Time {
	if absent(s) {
		return nil
	}
	t := strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		if d, err := time.Parse(layout, t); err == nil {
			return &d
		}
	}
	return nil
}

func isFieldCountError(err error) bool {
	var perr *csv.ParseError
	return errors.As(err, &perr) && errors.Is(perr.Err, csv.ErrFieldCount)
}
