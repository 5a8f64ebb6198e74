package core

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// BookingService manages demand reservations. A booking holds tile stock:
// reserving moves available into booked on every tile at once or not at all.
type BookingService interface {
	// CreateBooking reserves the requested quantity of every tile. If any
	// single tile lacks available stock the whole reservation is rejected
	// with ErrInsufficientStock.
	CreateBooking(ctx context.Context, partyName, notes string, items []BookingItemInput) (*Booking, error)
	GetBooking(ctx context.Context, bookingID int) (*Booking, error)
	ListBookings(ctx context.Context, status BookingStatus) ([]Booking, error)

	// CancelBooking reverts the reservation. Not permitted once the
	// booking is Completed, Cancelled, or referenced by dispatches.
	CancelBooking(ctx context.Context, bookingID int) error

	// AttachImage files dispatch evidence against the booking; it stays
	// unprocessed until a booking dispatch consumes it.
	AttachImage(ctx context.Context, bookingID int, imageRef string) (*BookingImage, error)
}

// BookingItemInput is one reserved line of a new booking.
type BookingItemInput struct {
	TileID   int
	Quantity int
}

type bookingService struct {
	pool *pgxpool.Pool
	seq  SequenceService
}

func NewBookingService(pool *pgxpool.Pool, seq SequenceService) BookingService {
	return &bookingService{pool: pool, seq: seq}
}

func (s *bookingService) CreateBooking(ctx context.Context, partyName, notes string, items []BookingItemInput) (*Booking, error) {
	if partyName == "" {
		return nil, fmt.Errorf("party name is required: %w", ErrValidation)
	}
	if len(items) == 0 {
		return nil, fmt.Errorf("booking needs at least one tile: %w", ErrValidation)
	}
	for i, item := range items {
		if item.Quantity <= 0 {
			return nil, fmt.Errorf("item %d: quantity must be positive: %w", i+1, ErrValidation)
		}
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	// Lock and check every tile before touching any of them, so a failed
	// line leaves no partial reservation behind. Locks are taken in tile ID
	// order to keep concurrent reservations off each other's toes.
	locked := make([]BookingItemInput, len(items))
	copy(locked, items)
	sort.Slice(locked, func(i, j int) bool { return locked[i].TileID < locked[j].TileID })
	for i, item := range locked {
		var available int
		err := tx.QueryRow(ctx, `
			SELECT available_stock FROM tiles WHERE id = $1 AND NOT deleted FOR UPDATE
		`, item.TileID).Scan(&available)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return nil, fmt.Errorf("item %d: tile %d: %w", i+1, item.TileID, ErrNotFound)
			}
			return nil, fmt.Errorf("failed to lock tile %d: %w", item.TileID, classifyPgError(err))
		}
		if available < item.Quantity {
			return nil, fmt.Errorf("tile %d has %d boxes available, booking needs %d: %w",
				item.TileID, available, item.Quantity, ErrInsufficientStock)
		}
	}

	number, err := s.seq.NextTx(ctx, tx, PrefixBooking)
	if err != nil {
		return nil, err
	}

	var bookingID int
	err = tx.QueryRow(ctx, `
		INSERT INTO bookings (booking_number, party_name, notes, status)
		VALUES ($1, $2, $3, $4)
		RETURNING id
	`, number, partyName, notes, BookingBooked).Scan(&bookingID)
	if err != nil {
		return nil, fmt.Errorf("failed to insert booking: %w", classifyPgError(err))
	}

	for _, item := range items {
		// The tile name is snapshotted onto the line, so the booking still
		// reads correctly after the tile is renamed or soft-deleted.
		if _, err := tx.Exec(ctx, `
			INSERT INTO booking_tiles (booking_id, tile_id, tile_name, quantity)
			SELECT $1, t.id, t.name, $2 FROM tiles t WHERE t.id = $3
		`, bookingID, item.Quantity, item.TileID); err != nil {
			return nil, fmt.Errorf("failed to insert booking line: %w", err)
		}
		if _, err := tx.Exec(ctx, `
			UPDATE tiles SET
				booked_stock    = booked_stock + $1,
				available_stock = available_stock - $1,
				updated_at = NOW()
			WHERE id = $2
		`, item.Quantity, item.TileID); err != nil {
			return nil, fmt.Errorf("failed to reserve tile %d stock: %w", item.TileID, classifyPgError(err))
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit booking: %w", err)
	}
	return s.GetBooking(ctx, bookingID)
}

func getBookingQ(ctx context.Context, q pgxQuerier, bookingID int, forUpdate bool) (*Booking, error) {
	query := `
		SELECT id, booking_number, party_name, notes, status, created_at, updated_at
		FROM bookings WHERE id = $1`
	if forUpdate {
		query += " FOR UPDATE"
	}
	var b Booking
	err := q.QueryRow(ctx, query, bookingID).Scan(
		&b.ID, &b.BookingNumber, &b.PartyName, &b.Notes, &b.Status, &b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("booking %d: %w", bookingID, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to fetch booking %d: %w", bookingID, classifyPgError(err))
	}
	return &b, nil
}

func loadBookingTiles(ctx context.Context, q pgxRowQuerier, bookingID int) ([]BookingTile, error) {
	rows, err := q.Query(ctx, `
		SELECT id, tile_id, tile_name, quantity
		FROM booking_tiles
		WHERE booking_id = $1
		ORDER BY id
	`, bookingID)
	if err != nil {
		return nil, fmt.Errorf("failed to query booking tiles: %w", err)
	}
	defer rows.Close()

	var tiles []BookingTile
	for rows.Next() {
		var bt BookingTile
		if err := rows.Scan(&bt.ID, &bt.TileID, &bt.TileName, &bt.Quantity); err != nil {
			return nil, fmt.Errorf("failed to scan booking tile: %w", err)
		}
		tiles = append(tiles, bt)
	}
	return tiles, rows.Err()
}

func (s *bookingService) GetBooking(ctx context.Context, bookingID int) (*Booking, error) {
	b, err := getBookingQ(ctx, s.pool, bookingID, false)
	if err != nil {
		return nil, err
	}
	if b.Tiles, err = loadBookingTiles(ctx, s.pool, bookingID); err != nil {
		return nil, err
	}

	rows, err := s.pool.Query(ctx, `
		SELECT id, image_ref, processed, created_at FROM booking_images
		WHERE booking_id = $1 AND NOT processed
		ORDER BY id
	`, bookingID)
	if err != nil {
		return nil, fmt.Errorf("failed to query booking images: %w", err)
	}
	for rows.Next() {
		var img BookingImage
		if err := rows.Scan(&img.ID, &img.ImageRef, &img.Processed, &img.CreatedAt); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan booking image: %w", err)
		}
		b.UnprocessedImages = append(b.UnprocessedImages, img)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	rows, err = s.pool.Query(ctx, `
		SELECT id FROM booking_dispatches
		WHERE booking_id = $1 AND NOT deleted
		ORDER BY id
	`, bookingID)
	if err != nil {
		return nil, fmt.Errorf("failed to query booking dispatches: %w", err)
	}
	for rows.Next() {
		var id int
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, err
		}
		b.DispatchOrderIDs = append(b.DispatchOrderIDs, id)
	}
	rows.Close()
	return b, rows.Err()
}

func (s *bookingService) ListBookings(ctx context.Context, status BookingStatus) ([]Booking, error) {
	query := `
		SELECT id, booking_number, party_name, notes, status, created_at, updated_at
		FROM bookings`
	args := []any{}
	if status != "" {
		args = append(args, status)
		query += " WHERE status = $1"
	}
	query += " ORDER BY id DESC"

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query bookings: %w", err)
	}
	defer rows.Close()

	var bookings []Booking
	for rows.Next() {
		var b Booking
		if err := rows.Scan(&b.ID, &b.BookingNumber, &b.PartyName, &b.Notes, &b.Status, &b.CreatedAt, &b.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan booking: %w", err)
		}
		bookings = append(bookings, b)
	}
	return bookings, rows.Err()
}

func (s *bookingService) CancelBooking(ctx context.Context, bookingID int) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	b, err := getBookingQ(ctx, tx, bookingID, true)
	if err != nil {
		return err
	}
	if b.Status == BookingCompleted || b.Status == BookingCancelled {
		return fmt.Errorf("booking %d is %s: %w", bookingID, b.Status, ErrInvalidState)
	}

	var dispatchCount int
	if err := tx.QueryRow(ctx, `
		SELECT COUNT(*) FROM booking_dispatches WHERE booking_id = $1 AND NOT deleted
	`, bookingID).Scan(&dispatchCount); err != nil {
		return fmt.Errorf("failed to count booking dispatches: %w", err)
	}
	if dispatchCount > 0 {
		return fmt.Errorf("booking %d has %d dispatch orders, cancel them first: %w",
			bookingID, dispatchCount, ErrInvalidState)
	}

	tiles, err := loadBookingTiles(ctx, tx, bookingID)
	if err != nil {
		return err
	}
	for _, bt := range tiles {
		if _, err := tx.Exec(ctx, `
			UPDATE tiles SET
				booked_stock    = booked_stock - $1,
				available_stock = available_stock + $1,
				updated_at = NOW()
			WHERE id = $2
		`, bt.Quantity, bt.TileID); err != nil {
			return fmt.Errorf("failed to release tile %d reservation: %w", bt.TileID, classifyPgError(err))
		}
	}

	if _, err := tx.Exec(ctx, `
		UPDATE bookings SET status = $1, updated_at = NOW() WHERE id = $2
	`, BookingCancelled, bookingID); err != nil {
		return fmt.Errorf("failed to cancel booking %d: %w", bookingID, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit booking cancel: %w", err)
	}
	return nil
}

func (s *bookingService) AttachImage(ctx context.Context, bookingID int, imageRef string) (*BookingImage, error) {
	if imageRef == "" {
		return nil, fmt.Errorf("image reference is required: %w", ErrValidation)
	}
	if _, err := getBookingQ(ctx, s.pool, bookingID, false); err != nil {
		return nil, err
	}

	var img BookingImage
	err := s.pool.QueryRow(ctx, `
		INSERT INTO booking_images (booking_id, image_ref)
		VALUES ($1, $2)
		RETURNING id, image_ref, processed, created_at
	`, bookingID, imageRef).Scan(&img.ID, &img.ImageRef, &img.Processed, &img.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to attach booking image: %w", classifyPgError(err))
	}
	return &img, nil
}
