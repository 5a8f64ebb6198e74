package core_test

import (
	"io"
	"testing"

	"github.com/sirupsen/logrus"

	"tiletrack/internal/core"
)

func TestReconcile_DetectsAndRepairsDrift(t *testing.T) {
	pool, ctx := setupTestDB(t)
	log := logrus.New()
	log.SetOutput(io.Discard)

	seq := core.NewSequenceService(pool)
	bookings := core.NewBookingService(pool, seq)
	reconciler := core.NewReconcileService(pool, log)

	seedFactoryPallets(t, ctx, pool, 1, 1, 3, 20)
	if _, err := bookings.CreateBooking(ctx, "Al Noor Trading", "", []core.BookingItemInput{
		{TileID: 1, Quantity: 10},
	}); err != nil {
		t.Fatalf("CreateBooking failed: %v", err)
	}

	// A healthy ledger reports nothing.
	issues, err := reconciler.CheckStock(ctx)
	if err != nil {
		t.Fatalf("CheckStock failed: %v", err)
	}
	if len(issues) != 0 {
		t.Fatalf("Expected clean check, got %d issues: %+v", len(issues), issues)
	}

	// Corrupt the counters the way a lost update would.
	if _, err := pool.Exec(ctx, `
		UPDATE tiles SET available_stock = -5, booked_stock = 99 WHERE id = 1
	`); err != nil {
		t.Fatalf("Failed to corrupt tile counters: %v", err)
	}

	issues, err = reconciler.CheckStock(ctx)
	if err != nil {
		t.Fatalf("CheckStock failed: %v", err)
	}
	severities := map[string]string{}
	for _, issue := range issues {
		severities[issue.Field] = issue.Severity
	}
	if severities["available_stock"] != core.SeverityCritical {
		t.Errorf("Expected CRITICAL for negative available, got %q", severities["available_stock"])
	}
	if severities["booked_stock"] != core.SeverityHigh {
		t.Errorf("Expected HIGH for booked mismatch, got %q", severities["booked_stock"])
	}

	report, err := reconciler.ReconcileStock(ctx)
	if err != nil {
		t.Fatalf("ReconcileStock failed: %v", err)
	}
	if report.TilesRepaired != 1 {
		t.Fatalf("Expected 1 repaired tile, got %d", report.TilesRepaired)
	}
	entry := report.Entries[0]
	if entry.After != (core.StockCounts{Available: 50, Booked: 10, InFactory: 60}) {
		t.Errorf("Unexpected repaired counters: %+v", entry.After)
	}

	stock := getTileStock(t, ctx, pool, 1)
	if stock.Available != 50 || stock.Booked != 10 || stock.InFactory != 60 {
		t.Errorf("Expected 50/10/60 after repair, got %+v", stock)
	}

	// A second run finds nothing left to fix.
	report, err = reconciler.ReconcileStock(ctx)
	if err != nil {
		t.Fatalf("ReconcileStock failed: %v", err)
	}
	if report.TilesRepaired != 0 {
		t.Errorf("Expected idempotent second run, repaired %d", report.TilesRepaired)
	}
}

func TestReconcile_OversoldTileClampsAvailable(t *testing.T) {
	pool, ctx := setupTestDB(t)
	log := logrus.New()
	log.SetOutput(io.Discard)

	seq := core.NewSequenceService(pool)
	bookings := core.NewBookingService(pool, seq)
	reconciler := core.NewReconcileService(pool, log)

	seedFactoryPallets(t, ctx, pool, 1, 1, 2, 10)
	if _, err := bookings.CreateBooking(ctx, "Marble Palace", "", []core.BookingItemInput{
		{TileID: 1, Quantity: 15},
	}); err != nil {
		t.Fatalf("CreateBooking failed: %v", err)
	}

	// Pallets vanish out from under the booking: physical truth 10 boxes,
	// reservation 15. Available must clamp to zero, never go negative.
	if _, err := pool.Exec(ctx, `
		UPDATE pallets SET deleted = TRUE WHERE tile_id = 1 AND id = (
			SELECT MIN(id) FROM pallets WHERE tile_id = 1
		)
	`); err != nil {
		t.Fatalf("Failed to remove pallet: %v", err)
	}

	report, err := reconciler.ReconcileStock(ctx)
	if err != nil {
		t.Fatalf("ReconcileStock failed: %v", err)
	}
	if report.TilesRepaired != 1 {
		t.Fatalf("Expected 1 repaired tile, got %d", report.TilesRepaired)
	}
	stock := getTileStock(t, ctx, pool, 1)
	if stock.Available != 0 || stock.Booked != 15 || stock.InFactory != 10 {
		t.Errorf("Expected 0/15/10 after repair, got %+v", stock)
	}
}
