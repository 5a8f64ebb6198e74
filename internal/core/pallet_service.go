package core

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PalletService manages manual pallet and khatli units. Units created or
// adjusted here move the tile and factory buckets in the same transaction;
// anything past InFactoryStock belongs to the dispatch flow and is
// read-only from here.
type PalletService interface {
	CreatePallet(ctx context.Context, unitType UnitType, tileID, factoryID, boxCount int) (*Pallet, error)
	GetPallet(ctx context.Context, palletID int) (*Pallet, error)
	ListPallets(ctx context.Context, filter PalletFilter) ([]Pallet, error)

	// UpdateBoxCount changes a unit's box count while it is still in
	// factory stock; the tile and factory box totals shift by the
	// difference.
	UpdateBoxCount(ctx context.Context, palletID, boxCount int) (*Pallet, error)

	// DeletePallet soft-deletes a unit still in factory stock and backs
	// its quantities out of the tile and factory buckets.
	DeletePallet(ctx context.Context, palletID int) error
}

// PalletFilter narrows ListPallets. Zero values mean "any".
type PalletFilter struct {
	TileID    int
	FactoryID int
	Status    PalletStatus
}

type palletService struct {
	pool *pgxpool.Pool
}

func NewPalletService(pool *pgxpool.Pool) PalletService {
	return &palletService{pool: pool}
}

const palletColumns = `id, unit_type, tile_id, factory_id, purchase_order_id, box_count, status, container_id, dispatch_order_id, created_at, updated_at`

func scanPallet(row pgx.Row) (*Pallet, error) {
	var p Pallet
	err := row.Scan(&p.ID, &p.UnitType, &p.TileID, &p.FactoryID, &p.PurchaseOrderID,
		&p.BoxCount, &p.Status, &p.ContainerID, &p.DispatchOrderID, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *palletService) CreatePallet(ctx context.Context, unitType UnitType, tileID, factoryID, boxCount int) (*Pallet, error) {
	if boxCount <= 0 {
		return nil, fmt.Errorf("box count must be positive, got %d: %w", boxCount, ErrValidation)
	}
	if unitType != UnitPallet && unitType != UnitKhatli {
		return nil, fmt.Errorf("unknown unit type %q: %w", unitType, ErrValidation)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := getTileQ(ctx, tx, tileID); err != nil {
		return nil, err
	}
	var exists bool
	if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM factories WHERE id = $1)`, factoryID).Scan(&exists); err != nil {
		return nil, fmt.Errorf("failed to check factory %d: %w", factoryID, err)
	}
	if !exists {
		return nil, fmt.Errorf("factory %d: %w", factoryID, ErrNotFound)
	}

	var palletID int
	err = tx.QueryRow(ctx, `
		INSERT INTO pallets (unit_type, tile_id, factory_id, box_count, status)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id
	`, unitType, tileID, factoryID, boxCount, PalletInFactoryStock).Scan(&palletID)
	if err != nil {
		return nil, fmt.Errorf("failed to insert pallet: %w", classifyPgError(err))
	}

	if _, err := tx.Exec(ctx, `
		UPDATE tiles SET
			in_factory_stock = in_factory_stock + $1,
			available_stock  = available_stock + $1,
			updated_at = NOW()
		WHERE id = $2
	`, boxCount, tileID); err != nil {
		return nil, fmt.Errorf("failed to raise tile %d stock: %w", tileID, classifyPgError(err))
	}

	if err := bumpFactoryPhase(ctx, tx, factoryID, phaseInFactory, unitType, 1, boxCount); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit pallet: %w", err)
	}
	return s.GetPallet(ctx, palletID)
}

func (s *palletService) GetPallet(ctx context.Context, palletID int) (*Pallet, error) {
	p, err := scanPallet(s.pool.QueryRow(ctx, `
		SELECT `+palletColumns+` FROM pallets WHERE id = $1 AND NOT deleted
	`, palletID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("pallet %d: %w", palletID, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to fetch pallet %d: %w", palletID, err)
	}
	return p, nil
}

func (s *palletService) ListPallets(ctx context.Context, filter PalletFilter) ([]Pallet, error) {
	query := `SELECT ` + palletColumns + ` FROM pallets WHERE NOT deleted`
	args := []any{}
	if filter.TileID != 0 {
		args = append(args, filter.TileID)
		query += fmt.Sprintf(" AND tile_id = $%d", len(args))
	}
	if filter.FactoryID != 0 {
		args = append(args, filter.FactoryID)
		query += fmt.Sprintf(" AND factory_id = $%d", len(args))
	}
	if filter.Status != "" {
		args = append(args, filter.Status)
		query += fmt.Sprintf(" AND status = $%d", len(args))
	}
	query += " ORDER BY id"

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query pallets: %w", err)
	}
	defer rows.Close()

	var pallets []Pallet
	for rows.Next() {
		p, err := scanPallet(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan pallet: %w", err)
		}
		pallets = append(pallets, *p)
	}
	return pallets, rows.Err()
}

// lockPalletInFactory fetches a pallet FOR UPDATE and rejects units that
// have moved beyond factory stock.
func lockPalletInFactory(ctx context.Context, tx pgx.Tx, palletID int) (*Pallet, error) {
	p, err := scanPallet(tx.QueryRow(ctx, `
		SELECT `+palletColumns+` FROM pallets WHERE id = $1 AND NOT deleted FOR UPDATE
	`, palletID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("pallet %d: %w", palletID, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to lock pallet %d: %w", palletID, classifyPgError(err))
	}
	if p.Status != PalletInFactoryStock {
		return nil, fmt.Errorf("pallet %d is %s, only factory stock can be changed: %w",
			palletID, p.Status, ErrInvalidState)
	}
	return p, nil
}

func (s *palletService) UpdateBoxCount(ctx context.Context, palletID, boxCount int) (*Pallet, error) {
	if boxCount <= 0 {
		return nil, fmt.Errorf("box count must be positive, got %d: %w", boxCount, ErrValidation)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	p, err := lockPalletInFactory(ctx, tx, palletID)
	if err != nil {
		return nil, err
	}

	diff := boxCount - p.BoxCount
	if diff != 0 {
		if _, err := tx.Exec(ctx, `UPDATE pallets SET box_count = $1 WHERE id = $2`, boxCount, palletID); err != nil {
			return nil, fmt.Errorf("failed to update pallet %d: %w", palletID, err)
		}
		if _, err := tx.Exec(ctx, `
			UPDATE tiles SET
				in_factory_stock = in_factory_stock + $1,
				available_stock  = available_stock + $1,
				updated_at = NOW()
			WHERE id = $2
		`, diff, p.TileID); err != nil {
			return nil, fmt.Errorf("failed to adjust tile %d stock: %w", p.TileID, classifyPgError(err))
		}
		if err := bumpFactoryPhase(ctx, tx, p.FactoryID, phaseInFactory, p.UnitType, 0, diff); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit pallet update: %w", err)
	}
	return s.GetPallet(ctx, palletID)
}

func (s *palletService) DeletePallet(ctx context.Context, palletID int) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	p, err := lockPalletInFactory(ctx, tx, palletID)
	if err != nil {
		return err
	}

	if _, err := tx.Exec(ctx, `UPDATE pallets SET deleted = TRUE WHERE id = $1`, palletID); err != nil {
		return fmt.Errorf("failed to delete pallet %d: %w", palletID, err)
	}

	if _, err := tx.Exec(ctx, `
		UPDATE tiles SET
			in_factory_stock = in_factory_stock - $1,
			available_stock  = available_stock - $1,
			updated_at = NOW()
		WHERE id = $2
	`, p.BoxCount, p.TileID); err != nil {
		return fmt.Errorf("failed to lower tile %d stock: %w", p.TileID, classifyPgError(err))
	}

	if err := bumpFactoryPhase(ctx, tx, p.FactoryID, phaseInFactory, p.UnitType, -1, -p.BoxCount); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit pallet delete: %w", err)
	}
	return nil
}
