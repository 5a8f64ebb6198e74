package core

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const entityDispatch = "dispatch"

// DispatchService runs container-based dispatch orders. Every stock-moving
// step here is a single transaction: either all containers move and every
// affected factory and tile bucket moves with them, or nothing does.
type DispatchService interface {
	// CreateDispatch attaches the given containers to a new Pending order.
	// Each container must hold at least one item, be Loaded or Ready to
	// Dispatch, and not belong to another order.
	CreateDispatch(ctx context.Context, destination, vehicleNumber, remarks string, containerIDs []int, actor string) (*DispatchOrder, error)
	GetDispatch(ctx context.Context, dispatchID int) (*DispatchOrder, error)
	ListDispatches(ctx context.Context, status DispatchStatus) ([]DispatchOrder, error)

	// EditContainers adds and removes containers while the order is still
	// Pending, reversing or applying the factory stock deltas and
	// recomputing the stock summary.
	EditContainers(ctx context.Context, dispatchID int, addIDs, removeIDs []int) (*DispatchOrder, error)

	// AdvanceStatus walks the order along the transition table and fires
	// the bucket moves tied to each edge.
	AdvanceStatus(ctx context.Context, dispatchID int, to DispatchStatus, actor, note string) (*DispatchOrder, error)

	// SoftDeleteDispatch removes a Pending or Cancelled order. The reason
	// is mandatory; a Pending delete reverses stock first.
	SoftDeleteDispatch(ctx context.Context, dispatchID int, reason, actor string) error
}

type dispatchService struct {
	pool *pgxpool.Pool
	seq  SequenceService
}

func NewDispatchService(pool *pgxpool.Pool, seq SequenceService) DispatchService {
	return &dispatchService{pool: pool, seq: seq}
}

// lockDispatch fetches the order header FOR UPDATE.
func lockDispatch(ctx context.Context, tx pgx.Tx, dispatchID int) (*DispatchOrder, error) {
	var d DispatchOrder
	err := tx.QueryRow(ctx, `
		SELECT id, dispatch_number, destination, vehicle_number, remarks, status, delete_reason, created_at, updated_at
		FROM dispatch_orders
		WHERE id = $1 AND NOT deleted
		FOR UPDATE
	`, dispatchID).Scan(&d.ID, &d.DispatchNumber, &d.Destination, &d.VehicleNumber,
		&d.Remarks, &d.Status, &d.DeleteReason, &d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("dispatch order %d: %w", dispatchID, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to lock dispatch order %d: %w", dispatchID, classifyPgError(err))
	}
	return &d, nil
}

// attachContainerTx snapshots a container's items onto the order, flips the
// container and its pallets to Dispatched, and accumulates the factory move.
func attachContainerTx(ctx context.Context, tx pgx.Tx, dispatchID, containerID int, deltas factoryDeltas) error {
	c, err := getContainerQ(ctx, tx, containerID, true)
	if err != nil {
		return err
	}
	if c.DispatchOrderID != nil {
		return fmt.Errorf("container %d already belongs to dispatch order %d: %w",
			containerID, *c.DispatchOrderID, ErrAlreadyDispatched)
	}
	if c.Status != ContainerLoaded && c.Status != ContainerReadyToDispatch {
		return fmt.Errorf("container %d is %s, needs Loaded or Ready to Dispatch: %w",
			containerID, c.Status, ErrInvalidState)
	}

	pallets, err := loadContainerPallets(ctx, tx, containerID)
	if err != nil {
		return err
	}
	if len(pallets) == 0 {
		return fmt.Errorf("container %d is empty, not eligible for dispatch: %w", containerID, ErrInvalidState)
	}

	for _, p := range pallets {
		if _, err := tx.Exec(ctx, `
			INSERT INTO dispatch_items (dispatch_order_id, container_id, item_id, item_type, tile_id, tile_name, box_count)
			SELECT $1, $2, $3, $4, t.id, t.name, $5
			FROM tiles t WHERE t.id = $6
		`, dispatchID, containerID, p.ID, p.UnitType, p.BoxCount, p.TileID); err != nil {
			return fmt.Errorf("failed to snapshot pallet %d: %w", p.ID, err)
		}
		deltas.add(p.FactoryID, p.UnitType, p.BoxCount)
	}

	if _, err := tx.Exec(ctx, `
		UPDATE pallets SET status = $1, dispatch_order_id = $2 WHERE container_id = $3 AND NOT deleted
	`, PalletDispatched, dispatchID, containerID); err != nil {
		return fmt.Errorf("failed to dispatch container %d pallets: %w", containerID, err)
	}
	if _, err := tx.Exec(ctx, `
		UPDATE containers SET status = $1, dispatch_order_id = $2, dispatched_quantity = $3 WHERE id = $4
	`, ContainerDispatched, dispatchID, len(pallets), containerID); err != nil {
		return fmt.Errorf("failed to dispatch container %d: %w", containerID, err)
	}
	return nil
}

// detachContainerTx reverses attachContainerTx: the snapshot rows go, the
// container returns to Loaded with its pallets, and the factory move is
// accumulated for reversal by the caller.
func detachContainerTx(ctx context.Context, tx pgx.Tx, dispatchID, containerID int, deltas factoryDeltas) error {
	rows, err := tx.Query(ctx, `
		SELECT di.item_type, di.box_count, c.factory_id
		FROM dispatch_items di
		JOIN containers c ON c.id = di.container_id
		WHERE di.dispatch_order_id = $1 AND di.container_id = $2
	`, dispatchID, containerID)
	if err != nil {
		return fmt.Errorf("failed to read dispatch items for container %d: %w", containerID, err)
	}
	found := false
	for rows.Next() {
		var itemType UnitType
		var boxCount, factoryID int
		if err := rows.Scan(&itemType, &boxCount, &factoryID); err != nil {
			rows.Close()
			return fmt.Errorf("failed to scan dispatch item: %w", err)
		}
		deltas.add(factoryID, itemType, boxCount)
		found = true
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("container %d is not on dispatch order %d: %w", containerID, dispatchID, ErrNotFound)
	}

	if _, err := tx.Exec(ctx, `
		DELETE FROM dispatch_items WHERE dispatch_order_id = $1 AND container_id = $2
	`, dispatchID, containerID); err != nil {
		return fmt.Errorf("failed to remove dispatch items for container %d: %w", containerID, err)
	}
	if _, err := tx.Exec(ctx, `
		UPDATE pallets SET status = $1, dispatch_order_id = NULL WHERE container_id = $2 AND NOT deleted
	`, PalletLoadedInContainer, containerID); err != nil {
		return fmt.Errorf("failed to revert container %d pallets: %w", containerID, err)
	}
	if _, err := tx.Exec(ctx, `
		UPDATE containers SET status = $1, dispatch_order_id = NULL, dispatched_quantity = 0 WHERE id = $2
	`, ContainerLoaded, containerID); err != nil {
		return fmt.Errorf("failed to revert container %d: %w", containerID, err)
	}
	return nil
}

// recomputeSummaryTx rebuilds the per-tile summary from the item snapshots.
// Square meters come from each tile's conversion factor at recompute time.
func recomputeSummaryTx(ctx context.Context, tx pgx.Tx, dispatchID int) error {
	if _, err := tx.Exec(ctx, `DELETE FROM dispatch_summaries WHERE dispatch_order_id = $1`, dispatchID); err != nil {
		return fmt.Errorf("failed to clear dispatch summary: %w", err)
	}
	_, err := tx.Exec(ctx, `
		INSERT INTO dispatch_summaries (dispatch_order_id, tile_id, tile_name, pallets, khatlis, total_boxes, square_meters)
		SELECT di.dispatch_order_id, di.tile_id, di.tile_name,
			COUNT(*) FILTER (WHERE di.item_type = $2),
			COUNT(*) FILTER (WHERE di.item_type = $3),
			SUM(di.box_count),
			SUM(di.box_count) * t.conversion_factor
		FROM dispatch_items di
		JOIN tiles t ON t.id = di.tile_id
		WHERE di.dispatch_order_id = $1
		GROUP BY di.dispatch_order_id, di.tile_id, di.tile_name, t.conversion_factor
	`, dispatchID, UnitPallet, UnitKhatli)
	if err != nil {
		return fmt.Errorf("failed to rebuild dispatch summary: %w", err)
	}
	return nil
}

// dispatchFactoryDeltas aggregates the order's items per source factory.
func dispatchFactoryDeltas(ctx context.Context, tx pgx.Tx, dispatchID int) (factoryDeltas, error) {
	rows, err := tx.Query(ctx, `
		SELECT di.item_type, di.box_count, c.factory_id
		FROM dispatch_items di
		JOIN containers c ON c.id = di.container_id
		WHERE di.dispatch_order_id = $1
	`, dispatchID)
	if err != nil {
		return nil, fmt.Errorf("failed to read dispatch items: %w", err)
	}
	defer rows.Close()

	deltas := factoryDeltas{}
	for rows.Next() {
		var itemType UnitType
		var boxCount, factoryID int
		if err := rows.Scan(&itemType, &boxCount, &factoryID); err != nil {
			return nil, fmt.Errorf("failed to scan dispatch item: %w", err)
		}
		deltas.add(factoryID, itemType, boxCount)
	}
	return deltas, rows.Err()
}

// dispatchTileDeltas aggregates the order's item boxes per tile, for the
// tile-level bucket moves on transit and delivery.
func dispatchTileDeltas(ctx context.Context, tx pgx.Tx, dispatchID int) (tileDeltas, error) {
	rows, err := tx.Query(ctx, `
		SELECT tile_id, SUM(box_count) FROM dispatch_items
		WHERE dispatch_order_id = $1
		GROUP BY tile_id
	`, dispatchID)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate dispatch items: %w", err)
	}
	defer rows.Close()

	deltas := tileDeltas{}
	for rows.Next() {
		var tileID, boxes int
		if err := rows.Scan(&tileID, &boxes); err != nil {
			return nil, fmt.Errorf("failed to scan tile aggregate: %w", err)
		}
		deltas.add(tileID, boxes)
	}
	return deltas, rows.Err()
}

func (s *dispatchService) CreateDispatch(ctx context.Context, destination, vehicleNumber, remarks string, containerIDs []int, actor string) (*DispatchOrder, error) {
	if strings.TrimSpace(destination) == "" {
		return nil, fmt.Errorf("destination is required: %w", ErrValidation)
	}
	if len(containerIDs) == 0 {
		return nil, fmt.Errorf("dispatch order needs at least one container: %w", ErrValidation)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	number, err := s.seq.NextTx(ctx, tx, PrefixDispatch)
	if err != nil {
		return nil, err
	}

	var dispatchID int
	err = tx.QueryRow(ctx, `
		INSERT INTO dispatch_orders (dispatch_number, destination, vehicle_number, remarks, status)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id
	`, number, destination, vehicleNumber, remarks, DispatchPending).Scan(&dispatchID)
	if err != nil {
		return nil, fmt.Errorf("failed to insert dispatch order: %w", classifyPgError(err))
	}

	deltas := factoryDeltas{}
	for _, containerID := range containerIDs {
		if err := attachContainerTx(ctx, tx, dispatchID, containerID, deltas); err != nil {
			return nil, err
		}
	}
	if err := applyFactoryMove(ctx, tx, deltas, phaseInFactory, phaseDispatch); err != nil {
		return nil, err
	}
	if err := recomputeSummaryTx(ctx, tx, dispatchID); err != nil {
		return nil, err
	}
	if err := recordStatusChange(ctx, tx, entityDispatch, dispatchID, "", string(DispatchPending), actor, "created"); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit dispatch order: %w", err)
	}
	return s.GetDispatch(ctx, dispatchID)
}

func (s *dispatchService) GetDispatch(ctx context.Context, dispatchID int) (*DispatchOrder, error) {
	var d DispatchOrder
	err := s.pool.QueryRow(ctx, `
		SELECT id, dispatch_number, destination, vehicle_number, remarks, status, deleted, delete_reason, created_at, updated_at
		FROM dispatch_orders
		WHERE id = $1
	`, dispatchID).Scan(&d.ID, &d.DispatchNumber, &d.Destination, &d.VehicleNumber, &d.Remarks,
		&d.Status, &d.Deleted, &d.DeleteReason, &d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("dispatch order %d: %w", dispatchID, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to fetch dispatch order %d: %w", dispatchID, err)
	}

	rows, err := s.pool.Query(ctx, `
		SELECT id, container_id, item_id, item_type, tile_id, tile_name, box_count
		FROM dispatch_items
		WHERE dispatch_order_id = $1
		ORDER BY container_id, id
	`, dispatchID)
	if err != nil {
		return nil, fmt.Errorf("failed to query dispatch items: %w", err)
	}
	for rows.Next() {
		var it DispatchItem
		if err := rows.Scan(&it.ID, &it.ContainerID, &it.ItemID, &it.ItemType, &it.TileID, &it.TileName, &it.BoxCount); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan dispatch item: %w", err)
		}
		d.Items = append(d.Items, it)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	rows, err = s.pool.Query(ctx, `
		SELECT tile_id, tile_name, pallets, khatlis, total_boxes, square_meters
		FROM dispatch_summaries
		WHERE dispatch_order_id = $1
		ORDER BY tile_id
	`, dispatchID)
	if err != nil {
		return nil, fmt.Errorf("failed to query dispatch summary: %w", err)
	}
	for rows.Next() {
		var l DispatchSummaryLine
		if err := rows.Scan(&l.TileID, &l.TileName, &l.Pallets, &l.Khatlis, &l.TotalBoxes, &l.SquareMeters); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan summary line: %w", err)
		}
		d.StockSummary = append(d.StockSummary, l)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	d.StatusHistory, err = fetchStatusHistory(ctx, s.pool, entityDispatch, dispatchID)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func (s *dispatchService) ListDispatches(ctx context.Context, status DispatchStatus) ([]DispatchOrder, error) {
	query := `
		SELECT id, dispatch_number, destination, vehicle_number, remarks, status, deleted, delete_reason, created_at, updated_at
		FROM dispatch_orders
		WHERE NOT deleted`
	args := []any{}
	if status != "" {
		args = append(args, status)
		query += " AND status = $1"
	}
	query += " ORDER BY id DESC"

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query dispatch orders: %w", err)
	}
	defer rows.Close()

	var orders []DispatchOrder
	for rows.Next() {
		var d DispatchOrder
		if err := rows.Scan(&d.ID, &d.DispatchNumber, &d.Destination, &d.VehicleNumber, &d.Remarks,
			&d.Status, &d.Deleted, &d.DeleteReason, &d.CreatedAt, &d.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan dispatch order: %w", err)
		}
		orders = append(orders, d)
	}
	return orders, rows.Err()
}

func (s *dispatchService) EditContainers(ctx context.Context, dispatchID int, addIDs, removeIDs []int) (*DispatchOrder, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	d, err := lockDispatch(ctx, tx, dispatchID)
	if err != nil {
		return nil, err
	}
	if d.Status != DispatchPending {
		return nil, fmt.Errorf("dispatch order %d is %s, edits need Pending: %w", dispatchID, d.Status, ErrInvalidState)
	}

	removed := factoryDeltas{}
	for _, containerID := range removeIDs {
		if err := detachContainerTx(ctx, tx, dispatchID, containerID, removed); err != nil {
			return nil, err
		}
	}
	if err := applyFactoryMove(ctx, tx, removed, phaseDispatch, phaseInFactory); err != nil {
		return nil, err
	}

	added := factoryDeltas{}
	for _, containerID := range addIDs {
		if err := attachContainerTx(ctx, tx, dispatchID, containerID, added); err != nil {
			return nil, err
		}
	}
	if err := applyFactoryMove(ctx, tx, added, phaseInFactory, phaseDispatch); err != nil {
		return nil, err
	}

	// An order cannot be edited down to nothing.
	var itemCount int
	if err := tx.QueryRow(ctx, `SELECT COUNT(*) FROM dispatch_items WHERE dispatch_order_id = $1`, dispatchID).Scan(&itemCount); err != nil {
		return nil, fmt.Errorf("failed to count dispatch items: %w", err)
	}
	if itemCount == 0 {
		return nil, fmt.Errorf("dispatch order %d would be left empty: %w", dispatchID, ErrValidation)
	}

	if err := recomputeSummaryTx(ctx, tx, dispatchID); err != nil {
		return nil, err
	}
	if _, err := tx.Exec(ctx, `UPDATE dispatch_orders SET updated_at = NOW() WHERE id = $1`, dispatchID); err != nil {
		return nil, fmt.Errorf("failed to touch dispatch order: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit dispatch edit: %w", err)
	}
	return s.GetDispatch(ctx, dispatchID)
}

// dispatchContainerIDs lists the order's attached containers.
func dispatchContainerIDs(ctx context.Context, tx pgx.Tx, dispatchID int) ([]int, error) {
	rows, err := tx.Query(ctx, `
		SELECT id FROM containers WHERE dispatch_order_id = $1 AND NOT deleted ORDER BY id
	`, dispatchID)
	if err != nil {
		return nil, fmt.Errorf("failed to query dispatch containers: %w", err)
	}
	defer rows.Close()

	var ids []int
	for rows.Next() {
		var id int
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// cancelStockTx reverses the create-time stock effects while the containers
// stay attached, so the order can be reopened. Containers drop back to
// Loaded and their pallets to LoadedInContainer.
func cancelStockTx(ctx context.Context, tx pgx.Tx, dispatchID int) error {
	deltas, err := dispatchFactoryDeltas(ctx, tx, dispatchID)
	if err != nil {
		return err
	}
	if err := applyFactoryMove(ctx, tx, deltas, phaseDispatch, phaseInFactory); err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, `
		UPDATE pallets SET status = $1, dispatch_order_id = NULL
		WHERE dispatch_order_id = $2 AND NOT deleted
	`, PalletLoadedInContainer, dispatchID); err != nil {
		return fmt.Errorf("failed to revert dispatch pallets: %w", err)
	}
	if _, err := tx.Exec(ctx, `
		UPDATE containers SET status = $1 WHERE dispatch_order_id = $2 AND NOT deleted
	`, ContainerLoaded, dispatchID); err != nil {
		return fmt.Errorf("failed to revert dispatch containers: %w", err)
	}
	return nil
}

// reopenStockTx re-applies the create-time effects for a Cancelled order,
// re-validating each attached container first.
func reopenStockTx(ctx context.Context, tx pgx.Tx, dispatchID int) error {
	containerIDs, err := dispatchContainerIDs(ctx, tx, dispatchID)
	if err != nil {
		return err
	}
	if len(containerIDs) == 0 {
		return fmt.Errorf("dispatch order %d has no containers left: %w", dispatchID, ErrInvalidState)
	}

	deltas := factoryDeltas{}
	for _, containerID := range containerIDs {
		c, err := getContainerQ(ctx, tx, containerID, true)
		if err != nil {
			return err
		}
		if c.Status != ContainerLoaded {
			return fmt.Errorf("container %d is %s, reopen needs Loaded: %w", containerID, c.Status, ErrInvalidState)
		}
		pallets, err := loadContainerPallets(ctx, tx, containerID)
		if err != nil {
			return err
		}
		if len(pallets) == 0 {
			return fmt.Errorf("container %d is empty, not eligible for dispatch: %w", containerID, ErrInvalidState)
		}
		for _, p := range pallets {
			deltas.add(p.FactoryID, p.UnitType, p.BoxCount)
		}
		if _, err := tx.Exec(ctx, `
			UPDATE pallets SET status = $1, dispatch_order_id = $2 WHERE container_id = $3 AND NOT deleted
		`, PalletDispatched, dispatchID, containerID); err != nil {
			return fmt.Errorf("failed to re-dispatch container %d pallets: %w", containerID, err)
		}
		if _, err := tx.Exec(ctx, `
			UPDATE containers SET status = $1, dispatched_quantity = $2 WHERE id = $3
		`, ContainerDispatched, len(pallets), containerID); err != nil {
			return fmt.Errorf("failed to re-dispatch container %d: %w", containerID, err)
		}
	}
	return applyFactoryMove(ctx, tx, deltas, phaseInFactory, phaseDispatch)
}

func (s *dispatchService) AdvanceStatus(ctx context.Context, dispatchID int, to DispatchStatus, actor, note string) (*DispatchOrder, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	d, err := lockDispatch(ctx, tx, dispatchID)
	if err != nil {
		return nil, err
	}
	if !CanTransition(d.Status, to) {
		return nil, fmt.Errorf("dispatch order %d cannot go %s → %s: %w", dispatchID, d.Status, to, ErrInvalidTransition)
	}

	switch {
	case d.Status == DispatchReady && to == DispatchInTransit:
		deltas, err := dispatchFactoryDeltas(ctx, tx, dispatchID)
		if err != nil {
			return nil, err
		}
		if err := applyFactoryMove(ctx, tx, deltas, phaseDispatch, phaseInTransit); err != nil {
			return nil, err
		}
		tiles, err := dispatchTileDeltas(ctx, tx, dispatchID)
		if err != nil {
			return nil, err
		}
		if err := applyTileMove(ctx, tx, tiles, "in_factory_stock", "in_transit_stock"); err != nil {
			return nil, err
		}
		if _, err := tx.Exec(ctx, `
			UPDATE pallets SET status = $1 WHERE dispatch_order_id = $2 AND NOT deleted
		`, PalletInTransit, dispatchID); err != nil {
			return nil, fmt.Errorf("failed to mark pallets in transit: %w", err)
		}
		if _, err := tx.Exec(ctx, `
			UPDATE containers SET status = $1 WHERE dispatch_order_id = $2 AND NOT deleted
		`, ContainerInTransit, dispatchID); err != nil {
			return nil, fmt.Errorf("failed to mark containers in transit: %w", err)
		}

	case d.Status == DispatchInTransit && to == DispatchDelivered:
		deltas, err := dispatchFactoryDeltas(ctx, tx, dispatchID)
		if err != nil {
			return nil, err
		}
		if err := applyFactoryMove(ctx, tx, deltas, phaseInTransit, phaseDelivered); err != nil {
			return nil, err
		}
		// Delivered stock is consumed; the tile in-transit contribution is
		// subtracted and not re-added anywhere.
		tiles, err := dispatchTileDeltas(ctx, tx, dispatchID)
		if err != nil {
			return nil, err
		}
		if err := applyTileSubtract(ctx, tx, tiles, "in_transit_stock"); err != nil {
			return nil, err
		}
		if _, err := tx.Exec(ctx, `
			UPDATE pallets SET status = $1 WHERE dispatch_order_id = $2 AND NOT deleted
		`, PalletDelivered, dispatchID); err != nil {
			return nil, fmt.Errorf("failed to mark pallets delivered: %w", err)
		}
		if _, err := tx.Exec(ctx, `
			UPDATE containers SET status = $1 WHERE dispatch_order_id = $2 AND NOT deleted
		`, ContainerDelivered, dispatchID); err != nil {
			return nil, fmt.Errorf("failed to mark containers delivered: %w", err)
		}

	case d.Status == DispatchPending && to == DispatchCancelled:
		if err := cancelStockTx(ctx, tx, dispatchID); err != nil {
			return nil, err
		}

	case d.Status == DispatchCancelled && to == DispatchPending:
		if err := reopenStockTx(ctx, tx, dispatchID); err != nil {
			return nil, err
		}
	}

	if _, err := tx.Exec(ctx, `
		UPDATE dispatch_orders SET status = $1, updated_at = NOW() WHERE id = $2
	`, to, dispatchID); err != nil {
		return nil, fmt.Errorf("failed to update dispatch status: %w", err)
	}
	if err := recordStatusChange(ctx, tx, entityDispatch, dispatchID, string(d.Status), string(to), actor, note); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit status change: %w", err)
	}
	return s.GetDispatch(ctx, dispatchID)
}

func (s *dispatchService) SoftDeleteDispatch(ctx context.Context, dispatchID int, reason, actor string) error {
	if strings.TrimSpace(reason) == "" {
		return fmt.Errorf("delete reason is required: %w", ErrValidation)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	d, err := lockDispatch(ctx, tx, dispatchID)
	if err != nil {
		return err
	}
	if d.Status != DispatchPending && d.Status != DispatchCancelled {
		return fmt.Errorf("dispatch order %d is %s, delete needs Pending or Cancelled: %w",
			dispatchID, d.Status, ErrInvalidState)
	}

	// A Pending delete reverses stock the same way cancel does; Cancelled
	// has already been reversed.
	if d.Status == DispatchPending {
		if err := cancelStockTx(ctx, tx, dispatchID); err != nil {
			return err
		}
	}
	if _, err := tx.Exec(ctx, `
		UPDATE containers SET dispatch_order_id = NULL, dispatched_quantity = 0
		WHERE dispatch_order_id = $1 AND NOT deleted
	`, dispatchID); err != nil {
		return fmt.Errorf("failed to detach dispatch containers: %w", err)
	}
	if _, err := tx.Exec(ctx, `
		UPDATE dispatch_orders SET deleted = TRUE, delete_reason = $1, updated_at = NOW() WHERE id = $2
	`, reason, dispatchID); err != nil {
		return fmt.Errorf("failed to delete dispatch order %d: %w", dispatchID, err)
	}
	if err := recordStatusChange(ctx, tx, entityDispatch, dispatchID, string(d.Status), "Deleted", actor, reason); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit dispatch delete: %w", err)
	}
	return nil
}
