package core

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// pgxQuerier is satisfied by both *pgxpool.Pool and pgx.Tx, enabling shared
// query helpers.
type pgxQuerier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// pgxRowQuerier is satisfied by both *pgxpool.Pool and pgx.Tx (for Query).
type pgxRowQuerier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// TileService manages tile master data and read access to the stock buckets.
// Bucket mutation happens inside the booking/dispatch/pallet services, always
// within their transactions.
type TileService interface {
	CreateTile(ctx context.Context, name, size, surface string, conversionFactor decimal.Decimal, restockThreshold int) (*Tile, error)
	GetTile(ctx context.Context, tileID int) (*Tile, error)
	GetTileByCode(ctx context.Context, code string) (*Tile, error)
	ListTiles(ctx context.Context) ([]Tile, error)
	// ListLowStock returns non-deleted tiles whose available stock is at or
	// below their restock threshold, feeding the restock pipeline.
	ListLowStock(ctx context.Context) ([]Tile, error)
	SoftDeleteTile(ctx context.Context, tileID int) error

	CreateFactory(ctx context.Context, code, name, city string) (*Factory, error)
	GetFactory(ctx context.Context, factoryID int) (*Factory, error)
	ListFactories(ctx context.Context) ([]Factory, error)
}

type tileService struct {
	pool *pgxpool.Pool
	seq  SequenceService
}

func NewTileService(pool *pgxpool.Pool, seq SequenceService) TileService {
	return &tileService{pool: pool, seq: seq}
}

const tileColumns = `
	id, code, name, size, surface, conversion_factor, restock_threshold,
	available_stock, booked_stock, in_factory_stock, in_transit_stock,
	delivered_stock, restocking_stock, deleted, created_at, updated_at`

func scanTile(row pgx.Row) (*Tile, error) {
	var t Tile
	err := row.Scan(
		&t.ID, &t.Code, &t.Name, &t.Size, &t.Surface, &t.ConversionFactor, &t.RestockThreshold,
		&t.AvailableStock, &t.BookedStock, &t.InFactoryStock, &t.InTransitStock,
		&t.DeliveredStock, &t.RestockingStock, &t.Deleted, &t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (s *tileService) CreateTile(ctx context.Context, name, size, surface string, conversionFactor decimal.Decimal, restockThreshold int) (*Tile, error) {
	if strings.TrimSpace(name) == "" {
		return nil, fmt.Errorf("tile name is required: %w", ErrValidation)
	}
	if conversionFactor.IsNegative() || conversionFactor.IsZero() {
		return nil, fmt.Errorf("conversion factor must be positive, got %s: %w", conversionFactor, ErrValidation)
	}
	if restockThreshold < 0 {
		return nil, fmt.Errorf("restock threshold cannot be negative: %w", ErrValidation)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	code, err := s.seq.NextTx(ctx, tx, PrefixTile)
	if err != nil {
		return nil, err
	}

	tile, err := scanTile(tx.QueryRow(ctx, `
		INSERT INTO tiles (code, name, size, surface, conversion_factor, restock_threshold)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING`+tileColumns,
		code, name, size, surface, conversionFactor, restockThreshold))
	if err != nil {
		return nil, fmt.Errorf("failed to create tile: %w", classifyPgError(err))
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit tile creation: %w", err)
	}
	return tile, nil
}

func getTileQ(ctx context.Context, q pgxQuerier, tileID int) (*Tile, error) {
	tile, err := scanTile(q.QueryRow(ctx,
		`SELECT`+tileColumns+` FROM tiles WHERE id = $1 AND NOT deleted`, tileID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("tile %d: %w", tileID, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to fetch tile %d: %w", tileID, err)
	}
	return tile, nil
}

func (s *tileService) GetTile(ctx context.Context, tileID int) (*Tile, error) {
	return getTileQ(ctx, s.pool, tileID)
}

func (s *tileService) GetTileByCode(ctx context.Context, code string) (*Tile, error) {
	tile, err := scanTile(s.pool.QueryRow(ctx,
		`SELECT`+tileColumns+` FROM tiles WHERE code = $1 AND NOT deleted`, code))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("tile %s: %w", code, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to fetch tile %s: %w", code, err)
	}
	return tile, nil
}

func (s *tileService) ListTiles(ctx context.Context) ([]Tile, error) {
	return s.listTilesWhere(ctx, "NOT deleted", nil)
}

func (s *tileService) ListLowStock(ctx context.Context) ([]Tile, error) {
	return s.listTilesWhere(ctx, "NOT deleted AND available_stock <= restock_threshold", nil)
}

func (s *tileService) listTilesWhere(ctx context.Context, where string, args []any) ([]Tile, error) {
	rows, err := s.pool.Query(ctx, `SELECT`+tileColumns+` FROM tiles WHERE `+where+` ORDER BY code`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query tiles: %w", err)
	}
	defer rows.Close()

	var tiles []Tile
	for rows.Next() {
		tile, err := scanTile(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan tile: %w", err)
		}
		tiles = append(tiles, *tile)
	}
	return tiles, rows.Err()
}

// SoftDeleteTile hides a tile from every read path. Refused while the tile
// still holds live stock or reservations.
func (s *tileService) SoftDeleteTile(ctx context.Context, tileID int) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	var inFactory, booked, inTransit, restocking int
	err = tx.QueryRow(ctx, `
		SELECT in_factory_stock, booked_stock, in_transit_stock, restocking_stock
		FROM tiles WHERE id = $1 AND NOT deleted
		FOR UPDATE
	`, tileID).Scan(&inFactory, &booked, &inTransit, &restocking)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("tile %d: %w", tileID, ErrNotFound)
		}
		return fmt.Errorf("failed to lock tile %d: %w", tileID, classifyPgError(err))
	}
	if inFactory != 0 || booked != 0 || inTransit != 0 || restocking != 0 {
		return fmt.Errorf("tile %d still carries stock: %w", tileID, ErrInvalidState)
	}

	if _, err := tx.Exec(ctx, `UPDATE tiles SET deleted = TRUE, updated_at = NOW() WHERE id = $1`, tileID); err != nil {
		return fmt.Errorf("failed to soft delete tile %d: %w", tileID, err)
	}
	return tx.Commit(ctx)
}

const factoryColumns = `
	id, code, name, city,
	in_factory_pallets, in_factory_khatlis, in_factory_boxes,
	dispatched_pallets, dispatched_khatlis, dispatched_boxes,
	in_transit_pallets, in_transit_khatlis, in_transit_boxes,
	delivered_pallets, delivered_khatlis, delivered_boxes,
	created_at`

func scanFactory(row pgx.Row) (*Factory, error) {
	var f Factory
	err := row.Scan(
		&f.ID, &f.Code, &f.Name, &f.City,
		&f.InFactoryStock.Pallets, &f.InFactoryStock.Khatlis, &f.InFactoryStock.TotalBoxes,
		&f.DispatchedStock.Pallets, &f.DispatchedStock.Khatlis, &f.DispatchedStock.TotalBoxes,
		&f.InTransitStock.Pallets, &f.InTransitStock.Khatlis, &f.InTransitStock.TotalBoxes,
		&f.DeliveredStock.Pallets, &f.DeliveredStock.Khatlis, &f.DeliveredStock.TotalBoxes,
		&f.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &f, nil
}

func (s *tileService) CreateFactory(ctx context.Context, code, name, city string) (*Factory, error) {
	if strings.TrimSpace(code) == "" || strings.TrimSpace(name) == "" {
		return nil, fmt.Errorf("factory code and name are required: %w", ErrValidation)
	}

	factory, err := scanFactory(s.pool.QueryRow(ctx, `
		INSERT INTO factories (code, name, city)
		VALUES ($1, $2, $3)
		RETURNING`+factoryColumns,
		code, name, city))
	if err != nil {
		return nil, fmt.Errorf("failed to create factory: %w", classifyPgError(err))
	}
	return factory, nil
}

func (s *tileService) GetFactory(ctx context.Context, factoryID int) (*Factory, error) {
	factory, err := scanFactory(s.pool.QueryRow(ctx,
		`SELECT`+factoryColumns+` FROM factories WHERE id = $1`, factoryID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("factory %d: %w", factoryID, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to fetch factory %d: %w", factoryID, err)
	}
	return factory, nil
}

func (s *tileService) ListFactories(ctx context.Context) ([]Factory, error) {
	rows, err := s.pool.Query(ctx, `SELECT`+factoryColumns+` FROM factories ORDER BY code`)
	if err != nil {
		return nil, fmt.Errorf("failed to query factories: %w", err)
	}
	defer rows.Close()

	var factories []Factory
	for rows.Next() {
		f, err := scanFactory(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan factory: %w", err)
		}
		factories = append(factories, *f)
	}
	return factories, rows.Err()
}

// recordStatusChange appends to the audit trail. Append-only: nothing ever
// updates or deletes these rows.
func recordStatusChange(ctx context.Context, tx pgx.Tx, entityType string, entityID int, from, to, actor, note string) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO status_history (entity_type, entity_id, from_status, to_status, actor, note)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, entityType, entityID, from, to, actor, note)
	if err != nil {
		return fmt.Errorf("failed to record status change for %s %d: %w", entityType, entityID, err)
	}
	return nil
}

func fetchStatusHistory(ctx context.Context, q pgxRowQuerier, entityType string, entityID int) ([]StatusChange, error) {
	rows, err := q.Query(ctx, `
		SELECT from_status, to_status, actor, note, changed_at
		FROM status_history
		WHERE entity_type = $1 AND entity_id = $2
		ORDER BY id
	`, entityType, entityID)
	if err != nil {
		return nil, fmt.Errorf("failed to query status history: %w", err)
	}
	defer rows.Close()

	var history []StatusChange
	for rows.Next() {
		var sc StatusChange
		if err := rows.Scan(&sc.FromStatus, &sc.ToStatus, &sc.Actor, &sc.Note, &sc.ChangedAt); err != nil {
			return nil, fmt.Errorf("failed to scan status change: %w", err)
		}
		history = append(history, sc)
	}
	return history, rows.Err()
}
