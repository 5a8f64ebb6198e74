package core_test

import (
	"errors"
	"testing"

	"tiletrack/internal/core"
)

func TestBooking_ReserveAndCancel(t *testing.T) {
	pool, ctx := setupTestDB(t)
	seq := core.NewSequenceService(pool)
	bookings := core.NewBookingService(pool, seq)

	seedFactoryPallets(t, ctx, pool, 1, 1, 5, 10) // 50 boxes available

	b, err := bookings.CreateBooking(ctx, "Al Noor Trading", "", []core.BookingItemInput{
		{TileID: 1, Quantity: 10},
	})
	if err != nil {
		t.Fatalf("CreateBooking failed: %v", err)
	}
	if b.BookingNumber != "BK-00001" {
		t.Errorf("Expected booking number BK-00001, got %s", b.BookingNumber)
	}
	if b.Status != core.BookingBooked {
		t.Errorf("Expected Booked, got %s", b.Status)
	}

	stock := getTileStock(t, ctx, pool, 1)
	if stock.Available != 40 || stock.Booked != 10 {
		t.Errorf("Expected available 40 / booked 10, got %+v", stock)
	}

	if err := bookings.CancelBooking(ctx, b.ID); err != nil {
		t.Fatalf("CancelBooking failed: %v", err)
	}
	stock = getTileStock(t, ctx, pool, 1)
	if stock.Available != 50 || stock.Booked != 0 {
		t.Errorf("Expected reservation fully reverted, got %+v", stock)
	}

	// Cancelling twice is an invalid state.
	if err := bookings.CancelBooking(ctx, b.ID); !errors.Is(err, core.ErrInvalidState) {
		t.Errorf("Expected ErrInvalidState, got %v", err)
	}
}

func TestBooking_LineKeepsTileNameSnapshot(t *testing.T) {
	pool, ctx := setupTestDB(t)
	seq := core.NewSequenceService(pool)
	bookings := core.NewBookingService(pool, seq)

	seedFactoryPallets(t, ctx, pool, 1, 1, 2, 10)

	b, err := bookings.CreateBooking(ctx, "Al Noor Trading", "", []core.BookingItemInput{
		{TileID: 1, Quantity: 5},
	})
	if err != nil {
		t.Fatalf("CreateBooking failed: %v", err)
	}
	if len(b.Tiles) != 1 {
		t.Fatalf("Expected one booking line, got %d", len(b.Tiles))
	}
	if b.Tiles[0].TileName != "Glacier White" {
		t.Fatalf("Expected line name Glacier White, got %q", b.Tiles[0].TileName)
	}

	// Renaming the tile must not rewrite history on the booking line.
	if _, err := pool.Exec(ctx, `UPDATE tiles SET name = 'Glacier White II' WHERE id = 1`); err != nil {
		t.Fatalf("Failed to rename tile: %v", err)
	}
	got, err := bookings.GetBooking(ctx, b.ID)
	if err != nil {
		t.Fatalf("GetBooking failed: %v", err)
	}
	if got.Tiles[0].TileName != "Glacier White" {
		t.Errorf("Expected snapshotted name Glacier White, got %q", got.Tiles[0].TileName)
	}
}

func TestBooking_InsufficientStockIsAllOrNothing(t *testing.T) {
	pool, ctx := setupTestDB(t)
	seq := core.NewSequenceService(pool)
	bookings := core.NewBookingService(pool, seq)

	seedFactoryPallets(t, ctx, pool, 1, 1, 5, 10) // tile 1: 50 boxes
	seedFactoryPallets(t, ctx, pool, 2, 1, 1, 5)  // tile 2: 5 boxes

	// Tile 1 could be reserved, but tile 2 cannot, so nothing may move.
	_, err := bookings.CreateBooking(ctx, "Al Noor Trading", "", []core.BookingItemInput{
		{TileID: 1, Quantity: 20},
		{TileID: 2, Quantity: 6},
	})
	if !errors.Is(err, core.ErrInsufficientStock) {
		t.Fatalf("Expected ErrInsufficientStock, got %v", err)
	}

	for _, tileID := range []int{1, 2} {
		stock := getTileStock(t, ctx, pool, tileID)
		if stock.Booked != 0 {
			t.Errorf("Tile %d: expected no partial reservation, got booked %d", tileID, stock.Booked)
		}
	}
}

func TestBooking_CancelBlockedByDispatches(t *testing.T) {
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
		{TileID: 1, Quantity: 4},
	}, 0, "tester"); err != nil {
		t.Fatalf("CreateBookingDispatch failed: %v", err)
	}

	if err := bookings.CancelBooking(ctx, b.ID); !errors.Is(err, core.ErrInvalidState) {
		t.Errorf("Expected ErrInvalidState while dispatches exist, got %v", err)
	}
}
