package core_test

import (
	"errors"
	"testing"

	"tiletrack/internal/core"
)

func TestBookingDispatch_ConsumesReservation(t *testing.T) {
	pool, ctx := setupTestDB(t)
	seq := core.NewSequenceService(pool)
	bookings := core.NewBookingService(pool, seq)
	dispatches := core.NewBookingDispatchService(pool, seq)

	seedFactoryPallets(t, ctx, pool, 1, 1, 5, 10) // 50 boxes

	b, err := bookings.CreateBooking(ctx, "Al Noor Trading", "", []core.BookingItemInput{
		{TileID: 1, Quantity: 10},
	})
	if err != nil {
		t.Fatalf("CreateBooking failed: %v", err)
	}
	// available 40 / booked 10 after reservation.

	d, err := dispatches.CreateBookingDispatch(ctx, b.ID, "first lot", []core.BookingDispatchItemInput{
		{TileID: 1, Quantity: 6},
	}, 0, "tester")
	if err != nil {
		t.Fatalf("CreateBookingDispatch failed: %v", err)
	}
	if d.DispatchNumber != "DD-00001" {
		t.Errorf("Expected dispatch number DD-00001, got %s", d.DispatchNumber)
	}

	// Dispatching consumes the reservation: both buckets drop.
	stock := getTileStock(t, ctx, pool, 1)
	if stock.Available != 34 || stock.Booked != 4 {
		t.Errorf("Expected available 34 / booked 4, got %+v", stock)
	}

	got, err := bookings.GetBooking(ctx, b.ID)
	if err != nil {
		t.Fatalf("GetBooking failed: %v", err)
	}
	if got.Status != core.BookingPartiallyDispatched {
		t.Errorf("Expected Partially Dispatched, got %s", got.Status)
	}

	// The remaining 4 complete the booking.
	if _, err := dispatches.CreateBookingDispatch(ctx, b.ID, "final lot", []core.BookingDispatchItemInput{
		{TileID: 1, Quantity: 4},
	}, 0, "tester"); err != nil {
		t.Fatalf("Second CreateBookingDispatch failed: %v", err)
	}
	got, err = bookings.GetBooking(ctx, b.ID)
	if err != nil {
		t.Fatalf("GetBooking failed: %v", err)
	}
	if got.Status != core.BookingCompleted {
		t.Errorf("Expected Completed, got %s", got.Status)
	}
}

func TestBookingDispatch_OversellGuard(t *testing.T) {
	pool, ctx := setupTestDB(t)
	seq := core.NewSequenceService(pool)
	bookings := core.NewBookingService(pool, seq)
	dispatches := core.NewBookingDispatchService(pool, seq)

	seedFactoryPallets(t, ctx, pool, 1, 1, 5, 10)

	b, err := bookings.CreateBooking(ctx, "Gulf Ceramics", "", []core.BookingItemInput{
		{TileID: 1, Quantity: 10},
	})
	if err != nil {
		t.Fatalf("CreateBooking failed: %v", err)
	}
	if _, err := dispatches.CreateBookingDispatch(ctx, b.ID, "", []core.BookingDispatchItemInput{
		{TileID: 1, Quantity: 6},
	}, 0, "tester"); err != nil {
		t.Fatalf("CreateBookingDispatch failed: %v", err)
	}

	// 6 already dispatched + 5 requested > 10 booked.
	_, err = dispatches.CreateBookingDispatch(ctx, b.ID, "", []core.BookingDispatchItemInput{
		{TileID: 1, Quantity: 5},
	}, 0, "tester")
	if !errors.Is(err, core.ErrOverBooked) {
		t.Fatalf("Expected ErrOverBooked, got %v", err)
	}

	// The rejected dispatch must not have moved stock.
	stock := getTileStock(t, ctx, pool, 1)
	if stock.Available != 34 || stock.Booked != 4 {
		t.Errorf("Expected available 34 / booked 4 untouched, got %+v", stock)
	}
}

func TestBookingDispatch_UpdateAppliesDifference(t *testing.T) {
	pool, ctx := setupTestDB(t)
	seq := core.NewSequenceService(pool)
	bookings := core.NewBookingService(pool, seq)
	dispatches := core.NewBookingDispatchService(pool, seq)

	seedFactoryPallets(t, ctx, pool, 1, 1, 5, 10)

	b, err := bookings.CreateBooking(ctx, "Gulf Ceramics", "", []core.BookingItemInput{
		{TileID: 1, Quantity: 10},
	})
	if err != nil {
		t.Fatalf("CreateBooking failed: %v", err)
	}
	d, err := dispatches.CreateBookingDispatch(ctx, b.ID, "", []core.BookingDispatchItemInput{
		{TileID: 1, Quantity: 6},
	}, 0, "tester")
	if err != nil {
		t.Fatalf("CreateBookingDispatch failed: %v", err)
	}

	// Shrinking 6 → 2 hands 4 boxes back to the reservation.
	if _, err := dispatches.UpdateItems(ctx, d.ID, []core.BookingDispatchItemInput{
		{TileID: 1, Quantity: 2},
	}); err != nil {
		t.Fatalf("UpdateItems failed: %v", err)
	}
	stock := getTileStock(t, ctx, pool, 1)
	if stock.Available != 38 || stock.Booked != 8 {
		t.Errorf("Expected available 38 / booked 8, got %+v", stock)
	}

	// Growing past the booked quantity is rejected.
	if _, err := dispatches.UpdateItems(ctx, d.ID, []core.BookingDispatchItemInput{
		{TileID: 1, Quantity: 11},
	}); !errors.Is(err, core.ErrOverBooked) {
		t.Errorf("Expected ErrOverBooked, got %v", err)
	}
}

func TestBookingDispatch_DeleteRevertsAndRecomputesStatus(t *testing.T) {
	pool, ctx := setupTestDB(t)
	seq := core.NewSequenceService(pool)
	bookings := core.NewBookingService(pool, seq)
	dispatches := core.NewBookingDispatchService(pool, seq)

	seedFactoryPallets(t, ctx, pool, 1, 1, 5, 10)

	b, err := bookings.CreateBooking(ctx, "Gulf Ceramics", "", []core.BookingItemInput{
		{TileID: 1, Quantity: 10},
	})
	if err != nil {
		t.Fatalf("CreateBooking failed: %v", err)
	}
	d, err := dispatches.CreateBookingDispatch(ctx, b.ID, "", []core.BookingDispatchItemInput{
		{TileID: 1, Quantity: 10},
	}, 0, "tester")
	if err != nil {
		t.Fatalf("CreateBookingDispatch failed: %v", err)
	}

	got, err := bookings.GetBooking(ctx, b.ID)
	if err != nil {
		t.Fatalf("GetBooking failed: %v", err)
	}
	if got.Status != core.BookingCompleted {
		t.Fatalf("Expected Completed, got %s", got.Status)
	}

	if err := dispatches.DeleteBookingDispatch(ctx, d.ID, "tester"); err != nil {
		t.Fatalf("DeleteBookingDispatch failed: %v", err)
	}
	stock := getTileStock(t, ctx, pool, 1)
	if stock.Available != 40 || stock.Booked != 10 {
		t.Errorf("Expected full reservation back, got %+v", stock)
	}
	got, err = bookings.GetBooking(ctx, b.ID)
	if err != nil {
		t.Fatalf("GetBooking failed: %v", err)
	}
	if got.Status != core.BookingBooked {
		t.Errorf("Expected status back to Booked, got %s", got.Status)
	}
}

func TestBookingDispatch_StatusFlowAndImageConsumption(t *testing.T) {
	pool, ctx := setupTestDB(t)
	seq := core.NewSequenceService(pool)
	bookings := core.NewBookingService(pool, seq)
	dispatches := core.NewBookingDispatchService(pool, seq)

	seedFactoryPallets(t, ctx, pool, 1, 1, 5, 10)

	b, err := bookings.CreateBooking(ctx, "Gulf Ceramics", "", []core.BookingItemInput{
		{TileID: 1, Quantity: 10},
	})
	if err != nil {
		t.Fatalf("CreateBooking failed: %v", err)
	}
	img, err := bookings.AttachImage(ctx, b.ID, "uploads/evidence-001.jpg")
	if err != nil {
		t.Fatalf("AttachImage failed: %v", err)
	}

	d, err := dispatches.CreateBookingDispatch(ctx, b.ID, "", []core.BookingDispatchItemInput{
		{TileID: 1, Quantity: 5},
	}, img.ID, "tester")
	if err != nil {
		t.Fatalf("CreateBookingDispatch failed: %v", err)
	}

	// Evidence is consumed: no longer listed as unprocessed.
	got, err := bookings.GetBooking(ctx, b.ID)
	if err != nil {
		t.Fatalf("GetBooking failed: %v", err)
	}
	if len(got.UnprocessedImages) != 0 {
		t.Errorf("Expected no unprocessed images, got %d", len(got.UnprocessedImages))
	}

	// Status changes never move stock.
	before := getTileStock(t, ctx, pool, 1)
	if _, err := dispatches.ChangeStatus(ctx, d.ID, core.BookingDispatchVerified, "tester", "checked"); err != nil {
		t.Fatalf("ChangeStatus failed: %v", err)
	}
	if _, err := dispatches.ChangeStatus(ctx, d.ID, core.BookingDispatchComplete, "tester", ""); err != nil {
		t.Fatalf("ChangeStatus failed: %v", err)
	}
	if after := getTileStock(t, ctx, pool, 1); after != before {
		t.Errorf("Status change moved stock: %+v → %+v", before, after)
	}

	final, err := dispatches.GetBookingDispatch(ctx, d.ID)
	if err != nil {
		t.Fatalf("GetBookingDispatch failed: %v", err)
	}
	if len(final.StatusHistory) != 3 { // created + 2 transitions
		t.Errorf("Expected 3 history entries, got %d", len(final.StatusHistory))
	}
}
