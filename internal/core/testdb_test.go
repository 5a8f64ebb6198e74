package core_test

import (
	"context"
	"os"
	"testing"

	"tiletrack/internal/core"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
)

// setupTestDB connects to the dedicated test database, truncates every
// table, and seeds one factory and two tiles. Skips when TEST_DATABASE_URL
// is not set so a plain `go test ./...` never touches a live database.
func setupTestDB(t *testing.T) (*pgxpool.Pool, context.Context) {
	t.Helper()
	_ = godotenv.Load("../../.env")

	dbURL := os.Getenv("TEST_DATABASE_URL")
	if dbURL == "" {
		t.Skip("TEST_DATABASE_URL not set — skipping integration test to protect live database")
	}

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, dbURL)
	if err != nil {
		t.Fatalf("Failed to connect to test database: %v", err)
	}
	t.Cleanup(pool.Close)

	_, err = pool.Exec(ctx, `
		TRUNCATE TABLE status_history, booking_dispatch_items, booking_dispatches,
			booking_images, booking_tiles, bookings,
			dispatch_summaries, dispatch_items, dispatch_orders,
			pallets, containers,
			purchase_order_lines, purchase_orders, restock_requests,
			tiles, factories, sequences
		RESTART IDENTITY CASCADE;

		INSERT INTO factories (code, name, city) VALUES
			('F1', 'Morbi Unit One', 'Morbi'),
			('F2', 'Morbi Unit Two', 'Morbi');

		INSERT INTO tiles (code, name, size, surface, conversion_factor, restock_threshold) VALUES
			('TL-00001', 'Glacier White', '600x1200', 'Glossy', 1.44, 100),
			('TL-00002', 'Basalt Grey',  '600x600',  'Matt',   1.08, 50);
	`)
	if err != nil {
		t.Fatalf("Failed to seed test database: %v", err)
	}

	return pool, ctx
}

// tileStock reads a tile's bucket counters directly.
type tileStock struct {
	Available, Booked, InFactory, InTransit, Delivered, Restocking int
}

func getTileStock(t *testing.T, ctx context.Context, pool *pgxpool.Pool, tileID int) tileStock {
	t.Helper()
	var s tileStock
	err := pool.QueryRow(ctx, `
		SELECT available_stock, booked_stock, in_factory_stock,
			in_transit_stock, delivered_stock, restocking_stock
		FROM tiles WHERE id = $1
	`, tileID).Scan(&s.Available, &s.Booked, &s.InFactory, &s.InTransit, &s.Delivered, &s.Restocking)
	if err != nil {
		t.Fatalf("Failed to read tile %d stock: %v", tileID, err)
	}
	return s
}

// getFactoryPhase reads one phase's pallets/khatlis/boxes aggregate.
func getFactoryPhase(t *testing.T, ctx context.Context, pool *pgxpool.Pool, factoryID int, phase string) core.PhaseStock {
	t.Helper()
	var ps core.PhaseStock
	err := pool.QueryRow(ctx, `
		SELECT `+phase+`_pallets, `+phase+`_khatlis, `+phase+`_boxes
		FROM factories WHERE id = $1
	`, factoryID).Scan(&ps.Pallets, &ps.Khatlis, &ps.TotalBoxes)
	if err != nil {
		t.Fatalf("Failed to read factory %d %s stock: %v", factoryID, phase, err)
	}
	return ps
}

// seedFactoryPallets creates count pallets of boxCount boxes through the
// pallet service, so the tile and factory buckets move the same way they do
// in production.
func seedFactoryPallets(t *testing.T, ctx context.Context, pool *pgxpool.Pool, tileID, factoryID, count, boxCount int) []int {
	t.Helper()
	svc := core.NewPalletService(pool)
	ids := make([]int, 0, count)
	for i := 0; i < count; i++ {
		p, err := svc.CreatePallet(ctx, core.UnitPallet, tileID, factoryID, boxCount)
		if err != nil {
			t.Fatalf("Failed to seed pallet: %v", err)
		}
		ids = append(ids, p.ID)
	}
	return ids
}
