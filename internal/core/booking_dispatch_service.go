package core

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const entityBookingDispatch = "booking_dispatch"

// BookingDispatchService fulfills bookings directly, bypassing containers.
// Stock moves at create, update, and delete time; status changes are pure
// audit trail.
type BookingDispatchService interface {
	// CreateBookingDispatch consumes part of a booking's reservation.
	// Each item is checked against the booked quantity minus what sibling
	// dispatches already took; exceeding it fails with ErrOverBooked.
	// imageID, when non-zero, marks that evidence image processed.
	CreateBookingDispatch(ctx context.Context, bookingID int, remarks string, items []BookingDispatchItemInput, imageID int, actor string) (*BookingDispatch, error)
	GetBookingDispatch(ctx context.Context, dispatchID int) (*BookingDispatch, error)
	ListBookingDispatches(ctx context.Context, bookingID int) ([]BookingDispatch, error)

	// UpdateItems replaces the dispatch's item list, applying only the
	// difference to the tile buckets after re-validating the oversell
	// guard against sibling dispatches.
	UpdateItems(ctx context.Context, dispatchID int, items []BookingDispatchItemInput) (*BookingDispatch, error)

	// DeleteBookingDispatch soft-deletes the dispatch and hands its
	// quantities back to the booking's reservation.
	DeleteBookingDispatch(ctx context.Context, dispatchID int, actor string) error

	// ChangeStatus walks the verification flow. No stock moves here.
	ChangeStatus(ctx context.Context, dispatchID int, to BookingDispatchStatus, actor, note string) (*BookingDispatch, error)
}

// BookingDispatchItemInput is one (tile, quantity) line of a booking dispatch.
type BookingDispatchItemInput struct {
	TileID   int
	Quantity int
}

type bookingDispatchService struct {
	pool *pgxpool.Pool
	seq  SequenceService
}

func NewBookingDispatchService(pool *pgxpool.Pool, seq SequenceService) BookingDispatchService {
	return &bookingDispatchService{pool: pool, seq: seq}
}

func validateDispatchItems(items []BookingDispatchItemInput) error {
	if len(items) == 0 {
		return fmt.Errorf("dispatch needs at least one item: %w", ErrValidation)
	}
	seen := make(map[int]bool, len(items))
	for i, item := range items {
		if item.Quantity <= 0 {
			return fmt.Errorf("item %d: quantity must be positive: %w", i+1, ErrValidation)
		}
		if seen[item.TileID] {
			return fmt.Errorf("item %d: duplicate tile %d: %w", i+1, item.TileID, ErrValidation)
		}
		seen[item.TileID] = true
	}
	return nil
}

// bookedQuantities maps tile → quantity reserved by the booking.
func bookedQuantities(ctx context.Context, tx pgx.Tx, bookingID int) (map[int]int, error) {
	tiles, err := loadBookingTiles(ctx, tx, bookingID)
	if err != nil {
		return nil, err
	}
	booked := make(map[int]int, len(tiles))
	for _, bt := range tiles {
		booked[bt.TileID] += bt.Quantity
	}
	return booked, nil
}

// dispatchedQuantities maps tile → quantity already taken by the booking's
// non-deleted dispatches, optionally excluding one dispatch.
func dispatchedQuantities(ctx context.Context, tx pgx.Tx, bookingID, excludeDispatchID int) (map[int]int, error) {
	rows, err := tx.Query(ctx, `
		SELECT i.tile_id, SUM(i.quantity)
		FROM booking_dispatch_items i
		JOIN booking_dispatches d ON d.id = i.booking_dispatch_id
		WHERE d.booking_id = $1 AND NOT d.deleted AND d.id <> $2
		GROUP BY i.tile_id
	`, bookingID, excludeDispatchID)
	if err != nil {
		return nil, fmt.Errorf("failed to sum dispatched quantities: %w", err)
	}
	defer rows.Close()

	dispatched := map[int]int{}
	for rows.Next() {
		var tileID, qty int
		if err := rows.Scan(&tileID, &qty); err != nil {
			return nil, fmt.Errorf("failed to scan dispatched quantity: %w", err)
		}
		dispatched[tileID] = qty
	}
	return dispatched, rows.Err()
}

// recomputeBookingStatusTx re-derives the booking status from its dispatches:
// Completed once everything booked has shipped, Partially Dispatched while
// some has, Booked when none has.
func recomputeBookingStatusTx(ctx context.Context, tx pgx.Tx, bookingID int) error {
	booked, err := bookedQuantities(ctx, tx, bookingID)
	if err != nil {
		return err
	}
	dispatched, err := dispatchedQuantities(ctx, tx, bookingID, 0)
	if err != nil {
		return err
	}

	totalBooked, totalDispatched := 0, 0
	for _, q := range booked {
		totalBooked += q
	}
	for _, q := range dispatched {
		totalDispatched += q
	}

	status := BookingBooked
	switch {
	case totalDispatched >= totalBooked:
		status = BookingCompleted
	case totalDispatched > 0:
		status = BookingPartiallyDispatched
	}

	if _, err := tx.Exec(ctx, `
		UPDATE bookings SET status = $1, updated_at = NOW() WHERE id = $2
	`, status, bookingID); err != nil {
		return fmt.Errorf("failed to update booking %d status: %w", bookingID, err)
	}
	return nil
}

// checkOversell enforces the per-tile guard: previously dispatched plus the
// new quantity must stay within the booked quantity.
func checkOversell(items []BookingDispatchItemInput, booked, dispatched map[int]int) error {
	for _, item := range items {
		bookedQty, ok := booked[item.TileID]
		if !ok {
			return fmt.Errorf("tile %d is not part of the booking: %w", item.TileID, ErrValidation)
		}
		if prev := dispatched[item.TileID]; prev+item.Quantity > bookedQty {
			return fmt.Errorf("tile %d: %d already dispatched + %d requested exceeds %d booked: %w",
				item.TileID, prev, item.Quantity, bookedQty, ErrOverBooked)
		}
	}
	return nil
}

// consumeReservation moves the booking's reserved boxes out of the tile
// buckets. Negative quantities hand stock back.
func consumeReservation(ctx context.Context, tx pgx.Tx, tileID, quantity int) error {
	_, err := tx.Exec(ctx, `
		UPDATE tiles SET
			available_stock = available_stock - $1,
			booked_stock    = booked_stock - $1,
			updated_at = NOW()
		WHERE id = $2
	`, quantity, tileID)
	if err != nil {
		return fmt.Errorf("failed to consume tile %d reservation: %w", tileID, classifyPgError(err))
	}
	return nil
}

func (s *bookingDispatchService) CreateBookingDispatch(ctx context.Context, bookingID int, remarks string, items []BookingDispatchItemInput, imageID int, actor string) (*BookingDispatch, error) {
	if err := validateDispatchItems(items); err != nil {
		return nil, err
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	b, err := getBookingQ(ctx, tx, bookingID, true)
	if err != nil {
		return nil, err
	}
	if b.Status == BookingCancelled || b.Status == BookingCompleted {
		return nil, fmt.Errorf("booking %d is %s: %w", bookingID, b.Status, ErrInvalidState)
	}

	booked, err := bookedQuantities(ctx, tx, bookingID)
	if err != nil {
		return nil, err
	}
	dispatched, err := dispatchedQuantities(ctx, tx, bookingID, 0)
	if err != nil {
		return nil, err
	}
	if err := checkOversell(items, booked, dispatched); err != nil {
		return nil, err
	}

	number, err := s.seq.NextTx(ctx, tx, PrefixBookingDispatch)
	if err != nil {
		return nil, err
	}

	var dispatchID int
	err = tx.QueryRow(ctx, `
		INSERT INTO booking_dispatches (dispatch_number, booking_id, remarks, status)
		VALUES ($1, $2, $3, $4)
		RETURNING id
	`, number, bookingID, remarks, BookingDispatchPending).Scan(&dispatchID)
	if err != nil {
		return nil, fmt.Errorf("failed to insert booking dispatch: %w", classifyPgError(err))
	}

	for _, item := range items {
		if _, err := tx.Exec(ctx, `
			INSERT INTO booking_dispatch_items (booking_dispatch_id, tile_id, tile_name, quantity)
			SELECT $1, t.id, t.name, $2 FROM tiles t WHERE t.id = $3
		`, dispatchID, item.Quantity, item.TileID); err != nil {
			return nil, fmt.Errorf("failed to insert dispatch item: %w", err)
		}
		if err := consumeReservation(ctx, tx, item.TileID, item.Quantity); err != nil {
			return nil, err
		}
	}

	if imageID != 0 {
		tag, err := tx.Exec(ctx, `
			UPDATE booking_images SET processed = TRUE
			WHERE id = $1 AND booking_id = $2 AND NOT processed
		`, imageID, bookingID)
		if err != nil {
			return nil, fmt.Errorf("failed to process booking image %d: %w", imageID, err)
		}
		if tag.RowsAffected() == 0 {
			return nil, fmt.Errorf("image %d is not an unprocessed image of booking %d: %w", imageID, bookingID, ErrNotFound)
		}
	}

	if err := recomputeBookingStatusTx(ctx, tx, bookingID); err != nil {
		return nil, err
	}
	if err := recordStatusChange(ctx, tx, entityBookingDispatch, dispatchID, "", string(BookingDispatchPending), actor, "created"); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit booking dispatch: %w", err)
	}
	return s.GetBookingDispatch(ctx, dispatchID)
}

func lockBookingDispatch(ctx context.Context, tx pgx.Tx, dispatchID int) (*BookingDispatch, error) {
	var d BookingDispatch
	err := tx.QueryRow(ctx, `
		SELECT id, dispatch_number, booking_id, remarks, status, created_at, updated_at
		FROM booking_dispatches
		WHERE id = $1 AND NOT deleted
		FOR UPDATE
	`, dispatchID).Scan(&d.ID, &d.DispatchNumber, &d.BookingID, &d.Remarks, &d.Status, &d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("booking dispatch %d: %w", dispatchID, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to lock booking dispatch %d: %w", dispatchID, classifyPgError(err))
	}
	return &d, nil
}

func loadBookingDispatchItems(ctx context.Context, q pgxRowQuerier, dispatchID int) ([]BookingDispatchItem, error) {
	rows, err := q.Query(ctx, `
		SELECT id, tile_id, tile_name, quantity
		FROM booking_dispatch_items
		WHERE booking_dispatch_id = $1
		ORDER BY id
	`, dispatchID)
	if err != nil {
		return nil, fmt.Errorf("failed to query booking dispatch items: %w", err)
	}
	defer rows.Close()

	var items []BookingDispatchItem
	for rows.Next() {
		var it BookingDispatchItem
		if err := rows.Scan(&it.ID, &it.TileID, &it.TileName, &it.Quantity); err != nil {
			return nil, fmt.Errorf("failed to scan booking dispatch item: %w", err)
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

func (s *bookingDispatchService) GetBookingDispatch(ctx context.Context, dispatchID int) (*BookingDispatch, error) {
	var d BookingDispatch
	err := s.pool.QueryRow(ctx, `
		SELECT id, dispatch_number, booking_id, remarks, status, created_at, updated_at
		FROM booking_dispatches
		WHERE id = $1 AND NOT deleted
	`, dispatchID).Scan(&d.ID, &d.DispatchNumber, &d.BookingID, &d.Remarks, &d.Status, &d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("booking dispatch %d: %w", dispatchID, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to fetch booking dispatch %d: %w", dispatchID, err)
	}

	if d.Items, err = loadBookingDispatchItems(ctx, s.pool, dispatchID); err != nil {
		return nil, err
	}
	if d.StatusHistory, err = fetchStatusHistory(ctx, s.pool, entityBookingDispatch, dispatchID); err != nil {
		return nil, err
	}
	return &d, nil
}

func (s *bookingDispatchService) ListBookingDispatches(ctx context.Context, bookingID int) ([]BookingDispatch, error) {
	query := `
		SELECT id, dispatch_number, booking_id, remarks, status, created_at, updated_at
		FROM booking_dispatches
		WHERE NOT deleted`
	args := []any{}
	if bookingID != 0 {
		args = append(args, bookingID)
		query += " AND booking_id = $1"
	}
	query += " ORDER BY id DESC"

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query booking dispatches: %w", err)
	}
	defer rows.Close()

	var dispatches []BookingDispatch
	for rows.Next() {
		var d BookingDispatch
		if err := rows.Scan(&d.ID, &d.DispatchNumber, &d.BookingID, &d.Remarks, &d.Status, &d.CreatedAt, &d.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan booking dispatch: %w", err)
		}
		dispatches = append(dispatches, d)
	}
	return dispatches, rows.Err()
}

func (s *bookingDispatchService) UpdateItems(ctx context.Context, dispatchID int, items []BookingDispatchItemInput) (*BookingDispatch, error) {
	if err := validateDispatchItems(items); err != nil {
		return nil, err
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	d, err := lockBookingDispatch(ctx, tx, dispatchID)
	if err != nil {
		return nil, err
	}
	if d.Status == BookingDispatchComplete {
		return nil, fmt.Errorf("booking dispatch %d is %s: %w", dispatchID, d.Status, ErrInvalidState)
	}
	if _, err := getBookingQ(ctx, tx, d.BookingID, true); err != nil {
		return nil, err
	}

	booked, err := bookedQuantities(ctx, tx, d.BookingID)
	if err != nil {
		return nil, err
	}
	// Validate against siblings only; this dispatch's old quantities are
	// being replaced.
	dispatched, err := dispatchedQuantities(ctx, tx, d.BookingID, dispatchID)
	if err != nil {
		return nil, err
	}
	if err := checkOversell(items, booked, dispatched); err != nil {
		return nil, err
	}

	oldItems, err := loadBookingDispatchItems(ctx, tx, dispatchID)
	if err != nil {
		return nil, err
	}

	// Old quantities added back, new quantities taken: apply the net
	// difference per tile in one pass.
	delta := tileDeltas{}
	for _, it := range oldItems {
		delta.add(it.TileID, -it.Quantity)
	}
	for _, item := range items {
		delta.add(item.TileID, item.Quantity)
	}
	for tileID, qty := range delta {
		if qty == 0 {
			continue
		}
		if err := consumeReservation(ctx, tx, tileID, qty); err != nil {
			return nil, err
		}
	}

	if _, err := tx.Exec(ctx, `DELETE FROM booking_dispatch_items WHERE booking_dispatch_id = $1`, dispatchID); err != nil {
		return nil, fmt.Errorf("failed to clear dispatch items: %w", err)
	}
	for _, item := range items {
		if _, err := tx.Exec(ctx, `
			INSERT INTO booking_dispatch_items (booking_dispatch_id, tile_id, tile_name, quantity)
			SELECT $1, t.id, t.name, $2 FROM tiles t WHERE t.id = $3
		`, dispatchID, item.Quantity, item.TileID); err != nil {
			return nil, fmt.Errorf("failed to insert dispatch item: %w", err)
		}
	}

	if _, err := tx.Exec(ctx, `UPDATE booking_dispatches SET updated_at = NOW() WHERE id = $1`, dispatchID); err != nil {
		return nil, fmt.Errorf("failed to touch booking dispatch: %w", err)
	}
	if err := recomputeBookingStatusTx(ctx, tx, d.BookingID); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit dispatch update: %w", err)
	}
	return s.GetBookingDispatch(ctx, dispatchID)
}

func (s *bookingDispatchService) DeleteBookingDispatch(ctx context.Context, dispatchID int, actor string) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	d, err := lockBookingDispatch(ctx, tx, dispatchID)
	if err != nil {
		return err
	}
	if _, err := getBookingQ(ctx, tx, d.BookingID, true); err != nil {
		return err
	}

	items, err := loadBookingDispatchItems(ctx, tx, dispatchID)
	if err != nil {
		return err
	}
	for _, it := range items {
		if err := consumeReservation(ctx, tx, it.TileID, -it.Quantity); err != nil {
			return err
		}
	}

	if _, err := tx.Exec(ctx, `
		UPDATE booking_dispatches SET deleted = TRUE, updated_at = NOW() WHERE id = $1
	`, dispatchID); err != nil {
		return fmt.Errorf("failed to delete booking dispatch %d: %w", dispatchID, err)
	}
	if err := recomputeBookingStatusTx(ctx, tx, d.BookingID); err != nil {
		return err
	}
	if err := recordStatusChange(ctx, tx, entityBookingDispatch, dispatchID, string(d.Status), "Deleted", actor, ""); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit dispatch delete: %w", err)
	}
	return nil
}

func (s *bookingDispatchService) ChangeStatus(ctx context.Context, dispatchID int, to BookingDispatchStatus, actor, note string) (*BookingDispatch, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	d, err := lockBookingDispatch(ctx, tx, dispatchID)
	if err != nil {
		return nil, err
	}
	if !CanTransitionBookingDispatch(d.Status, to) {
		return nil, fmt.Errorf("booking dispatch %d cannot go %s → %s: %w", dispatchID, d.Status, to, ErrInvalidTransition)
	}

	if _, err := tx.Exec(ctx, `
		UPDATE booking_dispatches SET status = $1, updated_at = NOW() WHERE id = $2
	`, to, dispatchID); err != nil {
		return nil, fmt.Errorf("failed to update dispatch status: %w", err)
	}
	if err := recordStatusChange(ctx, tx, entityBookingDispatch, dispatchID, string(d.Status), string(to), actor, note); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit status change: %w", err)
	}
	return s.GetBookingDispatch(ctx, dispatchID)
}
