package core

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PurchaseService runs the production-demand pipeline: restock requests are
// demand signals, purchase orders place them with a factory, and recorded
// arrivals become pallet units in factory stock.
type PurchaseService interface {
	CreateRestockRequest(ctx context.Context, tileID, quantity int, notes string) (*RestockRequest, error)
	ListOpenRestockRequests(ctx context.Context) ([]RestockRequest, error)

	// CreatePurchaseOrder places an order with a factory and moves the
	// ordered quantities into each tile's restocking bucket. Any restock
	// requests passed are marked Ordered in the same transaction.
	CreatePurchaseOrder(ctx context.Context, factoryID int, lines []PurchaseOrderLineInput, restockRequestIDs []int) (*PurchaseOrder, error)
	GetPurchaseOrder(ctx context.Context, poID int) (*PurchaseOrder, error)

	// RecordArrival converts produced units into pallets: each unit enters
	// InFactoryStock, the tile's restocking bucket shrinks and its
	// in-factory and available buckets grow, and the factory aggregates
	// follow. Closes the order once every line has fully arrived.
	RecordArrival(ctx context.Context, poID, tileID int, unitType UnitType, units, boxesPerUnit int) ([]int, error)
}

// PurchaseOrderLineInput is one ordered line of a new purchase order.
type PurchaseOrderLineInput struct {
	TileID       int
	OrderedBoxes int
}

type purchaseService struct {
	pool *pgxpool.Pool
	seq  SequenceService
}

func NewPurchaseService(pool *pgxpool.Pool, seq SequenceService) PurchaseService {
	return &purchaseService{pool: pool, seq: seq}
}

func (s *purchaseService) CreateRestockRequest(ctx context.Context, tileID, quantity int, notes string) (*RestockRequest, error) {
	if quantity <= 0 {
		return nil, fmt.Errorf("restock quantity must be positive, got %d: %w", quantity, ErrValidation)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := getTileQ(ctx, tx, tileID); err != nil {
		return nil, err
	}

	number, err := s.seq.NextTx(ctx, tx, PrefixRestockRequest)
	if err != nil {
		return nil, err
	}

	var r RestockRequest
	err = tx.QueryRow(ctx, `
		INSERT INTO restock_requests (request_number, tile_id, quantity, notes)
		VALUES ($1, $2, $3, $4)
		RETURNING id, request_number, tile_id, quantity, status, notes, created_at
	`, number, tileID, quantity, notes).Scan(
		&r.ID, &r.RequestNumber, &r.TileID, &r.Quantity, &r.Status, &r.Notes, &r.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create restock request: %w", classifyPgError(err))
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit restock request: %w", err)
	}
	return &r, nil
}

func (s *purchaseService) ListOpenRestockRequests(ctx context.Context) ([]RestockRequest, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT rr.id, rr.request_number, rr.tile_id, t.name, rr.quantity, rr.status, rr.notes, rr.created_at
		FROM restock_requests rr
		JOIN tiles t ON t.id = rr.tile_id
		WHERE rr.status = 'Open'
		ORDER BY rr.id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query restock requests: %w", err)
	}
	defer rows.Close()

	var requests []RestockRequest
	for rows.Next() {
		var r RestockRequest
		if err := rows.Scan(&r.ID, &r.RequestNumber, &r.TileID, &r.TileName, &r.Quantity, &r.Status, &r.Notes, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan restock request: %w", err)
		}
		requests = append(requests, r)
	}
	return requests, rows.Err()
}

func (s *purchaseService) CreatePurchaseOrder(ctx context.Context, factoryID int, lines []PurchaseOrderLineInput, restockRequestIDs []int) (*PurchaseOrder, error) {
	if len(lines) == 0 {
		return nil, fmt.Errorf("purchase order must have at least one line: %w", ErrValidation)
	}
	for i, line := range lines {
		if line.OrderedBoxes <= 0 {
			return nil, fmt.Errorf("line %d: ordered boxes must be positive: %w", i+1, ErrValidation)
		}
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	var exists bool
	if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM factories WHERE id = $1)`, factoryID).Scan(&exists); err != nil {
		return nil, fmt.Errorf("failed to check factory %d: %w", factoryID, err)
	}
	if !exists {
		return nil, fmt.Errorf("factory %d: %w", factoryID, ErrNotFound)
	}

	number, err := s.seq.NextTx(ctx, tx, PrefixPurchaseOrder)
	if err != nil {
		return nil, err
	}

	var poID int
	err = tx.QueryRow(ctx, `
		INSERT INTO purchase_orders (po_number, factory_id)
		VALUES ($1, $2)
		RETURNING id
	`, number, factoryID).Scan(&poID)
	if err != nil {
		return nil, fmt.Errorf("failed to insert purchase order: %w", classifyPgError(err))
	}

	for i, line := range lines {
		if _, err := getTileQ(ctx, tx, line.TileID); err != nil {
			return nil, fmt.Errorf("line %d: %w", i+1, err)
		}
		if _, err := tx.Exec(ctx, `
			INSERT INTO purchase_order_lines (po_id, tile_id, ordered_boxes)
			VALUES ($1, $2, $3)
		`, poID, line.TileID, line.OrderedBoxes); err != nil {
			return nil, fmt.Errorf("failed to insert purchase order line %d: %w", i+1, err)
		}
		if _, err := tx.Exec(ctx, `
			UPDATE tiles SET restocking_stock = restocking_stock + $1, updated_at = NOW()
			WHERE id = $2
		`, line.OrderedBoxes, line.TileID); err != nil {
			return nil, fmt.Errorf("failed to raise restocking stock for tile %d: %w", line.TileID, err)
		}
	}

	for _, reqID := range restockRequestIDs {
		tag, err := tx.Exec(ctx, `
			UPDATE restock_requests SET status = 'Ordered'
			WHERE id = $1 AND status = 'Open'
		`, reqID)
		if err != nil {
			return nil, fmt.Errorf("failed to mark restock request %d ordered: %w", reqID, err)
		}
		if tag.RowsAffected() == 0 {
			return nil, fmt.Errorf("restock request %d is not open: %w", reqID, ErrInvalidState)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit purchase order: %w", err)
	}
	return s.GetPurchaseOrder(ctx, poID)
}

func (s *purchaseService) GetPurchaseOrder(ctx context.Context, poID int) (*PurchaseOrder, error) {
	var po PurchaseOrder
	err := s.pool.QueryRow(ctx, `
		SELECT id, po_number, factory_id, status, created_at
		FROM purchase_orders
		WHERE id = $1 AND NOT deleted
	`, poID).Scan(&po.ID, &po.PONumber, &po.FactoryID, &po.Status, &po.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("purchase order %d: %w", poID, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to fetch purchase order %d: %w", poID, err)
	}

	rows, err := s.pool.Query(ctx, `
		SELECT l.id, l.tile_id, t.name, l.ordered_boxes, l.arrived_boxes
		FROM purchase_order_lines l
		JOIN tiles t ON t.id = l.tile_id
		WHERE l.po_id = $1
		ORDER BY l.id
	`, poID)
	if err != nil {
		return nil, fmt.Errorf("failed to query purchase order lines: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var l PurchaseOrderLine
		if err := rows.Scan(&l.ID, &l.TileID, &l.TileName, &l.OrderedBoxes, &l.ArrivedBoxes); err != nil {
			return nil, fmt.Errorf("failed to scan purchase order line: %w", err)
		}
		po.Lines = append(po.Lines, l)
	}
	return &po, rows.Err()
}

func (s *purchaseService) RecordArrival(ctx context.Context, poID, tileID int, unitType UnitType, units, boxesPerUnit int) ([]int, error) {
	if units <= 0 || boxesPerUnit <= 0 {
		return nil, fmt.Errorf("units and boxes per unit must be positive: %w", ErrValidation)
	}
	if unitType != UnitPallet && unitType != UnitKhatli {
		return nil, fmt.Errorf("unknown unit type %q: %w", unitType, ErrValidation)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	var factoryID int
	var status string
	err = tx.QueryRow(ctx, `
		SELECT factory_id, status FROM purchase_orders
		WHERE id = $1 AND NOT deleted
		FOR UPDATE
	`, poID).Scan(&factoryID, &status)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("purchase order %d: %w", poID, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to lock purchase order %d: %w", poID, err)
	}
	if status != "Open" {
		return nil, fmt.Errorf("purchase order %d is %s, arrivals need Open: %w", poID, status, ErrInvalidState)
	}

	totalBoxes := units * boxesPerUnit

	// The line caps how much may arrive against it.
	var lineID, ordered, arrived int
	err = tx.QueryRow(ctx, `
		SELECT id, ordered_boxes, arrived_boxes FROM purchase_order_lines
		WHERE po_id = $1 AND tile_id = $2
		FOR UPDATE
	`, poID, tileID).Scan(&lineID, &ordered, &arrived)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("purchase order %d has no line for tile %d: %w", poID, tileID, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to lock purchase order line: %w", err)
	}
	if arrived+totalBoxes > ordered {
		return nil, fmt.Errorf("arrival of %d boxes exceeds ordered %d (already arrived %d): %w",
			totalBoxes, ordered, arrived, ErrValidation)
	}

	palletIDs := make([]int, 0, units)
	for i := 0; i < units; i++ {
		var id int
		err = tx.QueryRow(ctx, `
			INSERT INTO pallets (unit_type, tile_id, factory_id, purchase_order_id, box_count, status)
			VALUES ($1, $2, $3, $4, $5, $6)
			RETURNING id
		`, unitType, tileID, factoryID, poID, boxesPerUnit, PalletInFactoryStock).Scan(&id)
		if err != nil {
			return nil, fmt.Errorf("failed to insert pallet: %w", classifyPgError(err))
		}
		palletIDs = append(palletIDs, id)
	}

	if _, err := tx.Exec(ctx, `
		UPDATE purchase_order_lines SET arrived_boxes = arrived_boxes + $1 WHERE id = $2
	`, totalBoxes, lineID); err != nil {
		return nil, fmt.Errorf("failed to update arrived boxes: %w", err)
	}

	// restocking → in-factory; available keeps pace with in-factory.
	if _, err := tx.Exec(ctx, `
		UPDATE tiles SET
			restocking_stock = GREATEST(restocking_stock - $1, 0),
			in_factory_stock = in_factory_stock + $1,
			available_stock  = available_stock + $1,
			updated_at = NOW()
		WHERE id = $2
	`, totalBoxes, tileID); err != nil {
		return nil, fmt.Errorf("failed to move tile %d stock restocking→in-factory: %w", tileID, classifyPgError(err))
	}

	if err := bumpFactoryPhase(ctx, tx, factoryID, phaseInFactory, unitType, units, totalBoxes); err != nil {
		return nil, err
	}

	// Close the order once everything ordered has arrived.
	var open int
	if err := tx.QueryRow(ctx, `
		SELECT COUNT(*) FROM purchase_order_lines
		WHERE po_id = $1 AND arrived_boxes < ordered_boxes
	`, poID).Scan(&open); err != nil {
		return nil, fmt.Errorf("failed to count open purchase order lines: %w", err)
	}
	if open == 0 {
		if _, err := tx.Exec(ctx, `UPDATE purchase_orders SET status = 'Completed' WHERE id = $1`, poID); err != nil {
			return nil, fmt.Errorf("failed to complete purchase order %d: %w", poID, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit arrival: %w", err)
	}
	return palletIDs, nil
}

// bumpFactoryPhase adjusts one factory phase bucket by a signed unit count.
// phase is one of the phase column prefixes from stock_delta.go.
func bumpFactoryPhase(ctx context.Context, tx pgx.Tx, factoryID int, phase string, unitType UnitType, units, boxes int) error {
	pallets, khatlis := units, 0
	if unitType == UnitKhatli {
		pallets, khatlis = 0, units
	}
	_, err := tx.Exec(ctx, fmt.Sprintf(`
		UPDATE factories SET
			%[1]s_pallets = %[1]s_pallets + $1,
			%[1]s_khatlis = %[1]s_khatlis + $2,
			%[1]s_boxes   = %[1]s_boxes + $3
		WHERE id = $4
	`, phase), pallets, khatlis, boxes, factoryID)
	if err != nil {
		return fmt.Errorf("failed to adjust factory %d %s stock: %w", factoryID, phase, classifyPgError(err))
	}
	return nil
}
