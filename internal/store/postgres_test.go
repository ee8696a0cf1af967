package store

import (
	"context"
	"errors"
	"io"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/hyperengineering/ridelake/internal/types"
)

// testStore connects to the database named by RIDELAKE_TEST_DATABASE_URL,
// skipping the test when the variable is unset. Each test works in its own
// batch, so tests can share one database.
func testStore(t *testing.T) *PostgresStore {
	t.Helper()
	dsn := os.Getenv("RIDELAKE_TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("RIDELAKE_TEST_DATABASE_URL not set")
	}

	s, err := NewPostgresStore(context.Background(), dsn)
	if err != nil {
		t.Fatalf("connect test store: %v", err)
	}
	t.Cleanup(s.Close)
	return s
}

// sliceSource yields rides from a slice, optionally failing after n rows.
type sliceSource struct {
	rides    []types.RawRide
	pos      int
	failAt   int
	failWith error
}

func (s *sliceSource) Next() (types.RawRide, error) {
	if s.failWith != nil && s.pos == s.failAt {
		return types.RawRide{}, s.failWith
	}
	if s.pos >= len(s.rides) {
		return types.RawRide{}, io.EOF
	}
	r := s.rides[s.pos]
	s.pos++
	return r, nil
}

func strp(s string) *string   { return &s }
func f64p(f float64) *float64 { return &f }
func boolp(b bool) *bool      { return &b }

func datep(s string) *time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return &t
}

// completedRide builds a loadable raw ride with the given booking ID.
func completedRide(bookingID string) types.RawRide {
	return types.RawRide{
		RideDate:      datep("2024-03-15"),
		RideTime:      strp("18:30:00"),
		BookingID:     strp(bookingID),
		BookingStatus: strp("Completed"),
		CustomerID:    strp("CID1"),
		VehicleType:   strp("Auto"),
		BookingValue:  f64p(200),
		RideDistance:  f64p(8),
		DriverRating:  f64p(4.5),
		PaymentMethod: strp("UPI"),
	}
}

func TestStatusLifecycle(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	batchID := uuid.New()

	// Begin bronze, fail it with a partial count.
	if err := s.BeginStage(ctx, batchID, types.StageBronze); err != nil {
		t.Fatalf("BeginStage: %v", err)
	}
	if err := s.CompleteStage(ctx, batchID, types.StageBronze, types.StatusFailed, 3, "copy broken"); err != nil {
		t.Fatalf("CompleteStage: %v", err)
	}

	st, err := s.LatestStage(ctx, batchID)
	if err != nil {
		t.Fatalf("LatestStage: %v", err)
	}
	if st.Step != types.StageBronze || st.Status != types.StatusFailed {
		t.Errorf("latest = %+v", st)
	}
	if st.RowsImported != 3 || st.ErrorMessage == nil || *st.ErrorMessage != "copy broken" {
		t.Errorf("failure details = %+v", st)
	}
	if st.EndTime == nil {
		t.Error("terminal status should carry an end time")
	}

	// Re-running the stage upserts in place and clears failure fields.
	if err := s.BeginStage(ctx, batchID, types.StageBronze); err != nil {
		t.Fatalf("re-BeginStage: %v", err)
	}
	st, err = s.LatestStage(ctx, batchID)
	if err != nil {
		t.Fatalf("LatestStage after retry: %v", err)
	}
	if st.Status != types.StatusProcessing || st.ErrorMessage != nil || st.EndTime != nil {
		t.Errorf("retried status = %+v, want clean Processing row", st)
	}
}

func TestLatestStageUnknownBatch(t *testing.T) {
	s := testStore(t)

	_, err := s.LatestStage(context.Background(), uuid.New())
	if !errors.Is(err, ErrBatchNotFound) {
		t.Errorf("error = %v, want ErrBatchNotFound", err)
	}
}

func TestPipelineStagesEndToEnd(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	batchID := uuid.New()
	prefix := "BOK-" + batchID.String()[:8]

	// Bronze: bulk load three rows, one of them junk.
	src := &sliceSource{rides: []types.RawRide{
		completedRide(prefix + "-1"),
		{BookingID: strp("null")}, // filtered out by the silver stage
		func() types.RawRide {
			r := completedRide(prefix + "-2")
			r.BookingStatus = strp("  Cancelled by Driver  ")
			r.CancelledByDriver = boolp(true)
			r.DriverReason = strp("Vehicle breakdown")
			return r
		}(),
	}}

	n, err := s.BulkLoadRaw(ctx, batchID, src)
	if err != nil {
		t.Fatalf("BulkLoadRaw: %v", err)
	}
	if n != 3 {
		t.Errorf("bronze rows = %d, want 3", n)
	}

	// Silver: cleans, trims, and drops the row without a booking ID.
	cleaned, err := s.TransformSilver(ctx, batchID)
	if err != nil {
		t.Fatalf("TransformSilver: %v", err)
	}
	if cleaned != 2 {
		t.Errorf("silver rows = %d, want 2", cleaned)
	}

	// Silver re-run is idempotent.
	cleaned, err = s.TransformSilver(ctx, batchID)
	if err != nil {
		t.Fatalf("TransformSilver re-run: %v", err)
	}
	if cleaned != 2 {
		t.Errorf("silver re-run rows = %d, want 2", cleaned)
	}

	// Gold: curates both rows.
	curated, err := s.TransformGold(ctx, batchID)
	if err != nil {
		t.Fatalf("TransformGold: %v", err)
	}
	if curated != 2 {
		t.Errorf("gold rows = %d, want 2", curated)
	}

	// The curated rows carry derived values.
	page, err := s.ListRides(ctx, types.RideFilter{
		BookingIDs: []string{prefix + "-1", prefix + "-2"},
		Page:       1,
		PageSize:   10,
	})
	if err != nil {
		t.Fatalf("ListRides: %v", err)
	}
	if page.TotalCount != 2 {
		t.Fatalf("curated count = %d, want 2", page.TotalCount)
	}
	for _, ride := range page.Items {
		switch ride.BookingID {
		case prefix + "-1":
			if ride.RevenuePerKm != 25 {
				t.Errorf("revenue per km = %v, want 25", ride.RevenuePerKm)
			}
			if ride.UnifiedCancellationReason != "Not Cancelled" {
				t.Errorf("reason = %q", ride.UnifiedCancellationReason)
			}
		case prefix + "-2":
			if ride.BookingStatus != "Cancelled by Driver" {
				t.Errorf("status not trimmed: %q", ride.BookingStatus)
			}
			if ride.UnifiedCancellationReason != "Vehicle breakdown" {
				t.Errorf("reason = %q", ride.UnifiedCancellationReason)
			}
		}
	}

	// A same-batch re-run is a clean rewrite: the batch's rows are
	// deleted and re-inserted, so both count as affected again.
	curated, err = s.TransformGold(ctx, batchID)
	if err != nil {
		t.Fatalf("TransformGold re-run: %v", err)
	}
	if curated != 2 {
		t.Errorf("gold re-run rows = %d, want 2", curated)
	}
	page, err = s.ListRides(ctx, types.RideFilter{
		BookingIDs: []string{prefix + "-1", prefix + "-2"},
		Page:       1,
		PageSize:   10,
	})
	if err != nil {
		t.Fatalf("ListRides after re-run: %v", err)
	}
	if page.TotalCount != 2 {
		t.Errorf("curated count after re-run = %d, want 2", page.TotalCount)
	}
}

func TestGoldKeepsFirstCuratorAcrossBatches(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	batchA := uuid.New()
	bookingID := "BOK-" + batchA.String()[:8] + "-dup"

	// Given batch A has curated a booking
	first := completedRide(bookingID)
	if _, err := s.BulkLoadRaw(ctx, batchA, &sliceSource{rides: []types.RawRide{first}}); err != nil {
		t.Fatalf("BulkLoadRaw A: %v", err)
	}
	if _, err := s.TransformSilver(ctx, batchA); err != nil {
		t.Fatalf("TransformSilver A: %v", err)
	}
	if curated, err := s.TransformGold(ctx, batchA); err != nil || curated != 1 {
		t.Fatalf("TransformGold A = (%d, %v), want (1, nil)", curated, err)
	}

	// When batch B curates the same booking with different values
	batchB := uuid.New()
	second := completedRide(bookingID)
	second.BookingValue = f64p(999)
	if _, err := s.BulkLoadRaw(ctx, batchB, &sliceSource{rides: []types.RawRide{second}}); err != nil {
		t.Fatalf("BulkLoadRaw B: %v", err)
	}
	if _, err := s.TransformSilver(ctx, batchB); err != nil {
		t.Fatalf("TransformSilver B: %v", err)
	}
	curated, err := s.TransformGold(ctx, batchB)
	if err != nil {
		t.Fatalf("TransformGold B: %v", err)
	}

	// Then the conflicting booking is dropped, not overwritten
	if curated != 0 {
		t.Errorf("gold rows from batch B = %d, want 0", curated)
	}
	page, err := s.ListRides(ctx, types.RideFilter{
		BookingIDs: []string{bookingID},
		Page:       1,
		PageSize:   10,
	})
	if err != nil {
		t.Fatalf("ListRides: %v", err)
	}
	if page.TotalCount != 1 {
		t.Fatalf("curated count = %d, want 1", page.TotalCount)
	}
	if page.Items[0].BookingValue != 200 {
		t.Errorf("booking value = %v, want batch A's 200", page.Items[0].BookingValue)
	}
}

func TestBulkLoadRawReportsPartialRowsOnFailure(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	batchID := uuid.New()

	src := &sliceSource{
		rides: []types.RawRide{
			completedRide("BOK-partial-1"),
			completedRide("BOK-partial-2"),
		},
		failAt:   2,
		failWith: errors.New("source truncated"),
	}

	n, err := s.BulkLoadRaw(ctx, batchID, src)
	if err == nil {
		t.Fatal("expected load error")
	}
	// Rows read before the failure are flushed and stay durable.
	if n != 2 {
		t.Errorf("durable rows = %d, want 2", n)
	}
}

func TestRideCRUD(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	bookingID, err := s.CreateRide(ctx, types.NewRide{
		CustomerID:   "CID-crud",
		VehicleType:  "Bike",
		BookingValue: 150,
		RideDistance: 6,
	})
	if err != nil {
		t.Fatalf("CreateRide: %v", err)
	}
	if len(bookingID) != 14 || bookingID[:4] != "BOK-" {
		t.Errorf("booking id = %q, want BOK- plus 10 characters", bookingID)
	}

	reason := "Wrong address"
	if err := s.UpdateRideStatus(ctx, bookingID, "Cancelled by Customer", &reason); err != nil {
		t.Fatalf("UpdateRideStatus: %v", err)
	}

	page, err := s.ListRides(ctx, types.RideFilter{BookingIDs: []string{bookingID}, Page: 1, PageSize: 1})
	if err != nil {
		t.Fatalf("ListRides: %v", err)
	}
	if len(page.Items) != 1 {
		t.Fatalf("ride not found after update")
	}
	if page.Items[0].BookingStatus != "Cancelled by Customer" || page.Items[0].UnifiedCancellationReason != reason {
		t.Errorf("updated ride = %+v", page.Items[0])
	}

	if err := s.DeleteRide(ctx, bookingID); err != nil {
		t.Fatalf("DeleteRide: %v", err)
	}
	if err := s.DeleteRide(ctx, bookingID); !errors.Is(err, ErrRideNotFound) {
		t.Errorf("second delete = %v, want ErrRideNotFound", err)
	}
	if err := s.UpdateRideStatus(ctx, bookingID, "Completed", nil); !errors.Is(err, ErrRideNotFound) {
		t.Errorf("update after delete = %v, want ErrRideNotFound", err)
	}
}

func TestQueryDynamicReturnsTypedRows(t *testing.T) {
	s := testStore(t)

	rows, err := s.QueryDynamic(context.Background(), "SELECT 1 AS n, 'x' AS label, NULL AS missing LIMIT 1")
	if err != nil {
		t.Fatalf("QueryDynamic: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("rows = %d, want 1", len(rows))
	}
	row := rows[0]
	if len(row.Columns) != 3 || row.Columns[0] != "n" || row.Columns[2] != "missing" {
		t.Errorf("columns = %v", row.Columns)
	}
	if row.Values[0].Kind != types.KindInt || row.Values[0].Int != 1 {
		t.Errorf("first value = %+v", row.Values[0])
	}
	if row.Values[2].Kind != types.KindNull {
		t.Errorf("null value = %+v", row.Values[2])
	}
}

func TestAnalyticsSmoke(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	if _, err := s.KPIs(ctx, types.AnalyticsFilter{}); err != nil {
		t.Errorf("KPIs: %v", err)
	}
	if _, err := s.CancellationBreakdown(ctx, types.AnalyticsFilter{}); err != nil {
		t.Errorf("CancellationBreakdown: %v", err)
	}
	if _, err := s.VehiclePerformance(ctx, types.AnalyticsFilter{Vehicle: "Auto"}); err != nil {
		t.Errorf("VehiclePerformance: %v", err)
	}
	if _, err := s.HourlyTraffic(ctx, types.AnalyticsFilter{}); err != nil {
		t.Errorf("HourlyTraffic: %v", err)
	}
}
