package core

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ContainerService builds loading plans. Loading a pallet into a container
// changes only pallet status; the stock buckets do not move until the
// container goes on a dispatch order.
type ContainerService interface {
	// CreateLoadingPlan opens a container against a factory and loads the
	// given pallets in one transaction. At least one pallet is required
	// and every pallet must be factory stock of that factory.
	CreateLoadingPlan(ctx context.Context, containerNumber, truckNumber string, factoryID int, palletIDs []int) (*Container, error)
	GetContainer(ctx context.Context, containerID int) (*Container, error)
	ListContainers(ctx context.Context, factoryID int) ([]Container, error)

	AddPallet(ctx context.Context, containerID, palletID int) error
	// RemovePallet puts a pallet back into factory stock. Removing the
	// last pallet leaves the container Empty.
	RemovePallet(ctx context.Context, containerID, palletID int) error
	MarkReady(ctx context.Context, containerID int) error

	SoftDeleteContainer(ctx context.Context, containerID int) error
}

type containerService struct {
	pool *pgxpool.Pool
}

func NewContainerService(pool *pgxpool.Pool) ContainerService {
	return &containerService{pool: pool}
}

const containerColumns = `id, container_number, truck_number, factory_id, status, dispatch_order_id, dispatched_quantity, created_at`

func scanContainer(row pgx.Row) (*Container, error) {
	var c Container
	err := row.Scan(&c.ID, &c.ContainerNumber, &c.TruckNumber, &c.FactoryID,
		&c.Status, &c.DispatchOrderID, &c.DispatchedQuantity, &c.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func getContainerQ(ctx context.Context, q pgxQuerier, containerID int, forUpdate bool) (*Container, error) {
	query := `SELECT ` + containerColumns + ` FROM containers WHERE id = $1 AND NOT deleted`
	if forUpdate {
		query += " FOR UPDATE"
	}
	c, err := scanContainer(q.QueryRow(ctx, query, containerID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("container %d: %w", containerID, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to fetch container %d: %w", containerID, classifyPgError(err))
	}
	return c, nil
}

func loadContainerPallets(ctx context.Context, q pgxRowQuerier, containerID int) ([]Pallet, error) {
	rows, err := q.Query(ctx, `
		SELECT `+palletColumns+` FROM pallets
		WHERE container_id = $1 AND NOT deleted
		ORDER BY id
	`, containerID)
	if err != nil {
		return nil, fmt.Errorf("failed to query container %d pallets: %w", containerID, err)
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

// loadPalletTx moves one factory-stock pallet into a container.
func loadPalletTx(ctx context.Context, tx pgx.Tx, c *Container, palletID int) error {
	p, err := lockPalletInFactory(ctx, tx, palletID)
	if err != nil {
		return err
	}
	if p.FactoryID != c.FactoryID {
		return fmt.Errorf("pallet %d belongs to factory %d, container %d loads from factory %d: %w",
			palletID, p.FactoryID, c.ID, c.FactoryID, ErrValidation)
	}
	_, err = tx.Exec(ctx, `
		UPDATE pallets SET status = $1, container_id = $2 WHERE id = $3
	`, PalletLoadedInContainer, c.ID, palletID)
	if err != nil {
		return fmt.Errorf("failed to load pallet %d: %w", palletID, err)
	}
	return nil
}

func (s *containerService) CreateLoadingPlan(ctx context.Context, containerNumber, truckNumber string, factoryID int, palletIDs []int) (*Container, error) {
	if containerNumber == "" || truckNumber == "" {
		return nil, fmt.Errorf("container number and truck number are required: %w", ErrValidation)
	}
	if len(palletIDs) == 0 {
		return nil, fmt.Errorf("loading plan needs at least one pallet: %w", ErrValidation)
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

	var containerID int
	err = tx.QueryRow(ctx, `
		INSERT INTO containers (container_number, truck_number, factory_id, status)
		VALUES ($1, $2, $3, $4)
		RETURNING id
	`, containerNumber, truckNumber, factoryID, ContainerLoaded).Scan(&containerID)
	if err != nil {
		return nil, fmt.Errorf("failed to insert container: %w", classifyPgError(err))
	}

	c := &Container{ID: containerID, FactoryID: factoryID}
	for _, palletID := range palletIDs {
		if err := loadPalletTx(ctx, tx, c, palletID); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit loading plan: %w", err)
	}
	return s.GetContainer(ctx, containerID)
}

func (s *containerService) GetContainer(ctx context.Context, containerID int) (*Container, error) {
	c, err := getContainerQ(ctx, s.pool, containerID, false)
	if err != nil {
		return nil, err
	}
	units, err := loadContainerPallets(ctx, s.pool, containerID)
	if err != nil {
		return nil, err
	}
	for _, p := range units {
		if p.UnitType == UnitKhatli {
			c.Khatlis = append(c.Khatlis, p)
		} else {
			c.Pallets = append(c.Pallets, p)
		}
	}
	return c, nil
}

func (s *containerService) ListContainers(ctx context.Context, factoryID int) ([]Container, error) {
	query := `SELECT ` + containerColumns + ` FROM containers WHERE NOT deleted`
	args := []any{}
	if factoryID != 0 {
		args = append(args, factoryID)
		query += " AND factory_id = $1"
	}
	query += " ORDER BY id"

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query containers: %w", err)
	}
	defer rows.Close()

	var containers []Container
	for rows.Next() {
		c, err := scanContainer(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan container: %w", err)
		}
		containers = append(containers, *c)
	}
	return containers, rows.Err()
}

func (s *containerService) AddPallet(ctx context.Context, containerID, palletID int) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	c, err := getContainerQ(ctx, tx, containerID, true)
	if err != nil {
		return err
	}
	// An attached container's contents are the dispatch order's snapshot and
	// must not change while the order holds it, cancelled or not.
	if c.DispatchOrderID != nil {
		return fmt.Errorf("container %d is attached to dispatch order %d: %w", containerID, *c.DispatchOrderID, ErrInvalidState)
	}
	if c.Status != ContainerEmpty && c.Status != ContainerLoading && c.Status != ContainerLoaded {
		return fmt.Errorf("container %d is %s, loading is closed: %w", containerID, c.Status, ErrInvalidState)
	}

	if err := loadPalletTx(ctx, tx, c, palletID); err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, `UPDATE containers SET status = $1 WHERE id = $2`, ContainerLoaded, containerID); err != nil {
		return fmt.Errorf("failed to update container %d: %w", containerID, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit pallet load: %w", err)
	}
	return nil
}

func (s *containerService) RemovePallet(ctx context.Context, containerID, palletID int) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	c, err := getContainerQ(ctx, tx, containerID, true)
	if err != nil {
		return err
	}
	if c.DispatchOrderID != nil {
		return fmt.Errorf("container %d is attached to dispatch order %d: %w", containerID, *c.DispatchOrderID, ErrInvalidState)
	}
	if c.Status != ContainerLoading && c.Status != ContainerLoaded && c.Status != ContainerReadyToDispatch {
		return fmt.Errorf("container %d is %s, cannot unload: %w", containerID, c.Status, ErrInvalidState)
	}

	tag, err := tx.Exec(ctx, `
		UPDATE pallets SET status = $1, container_id = NULL
		WHERE id = $2 AND container_id = $3 AND status = $4 AND NOT deleted
	`, PalletInFactoryStock, palletID, containerID, PalletLoadedInContainer)
	if err != nil {
		return fmt.Errorf("failed to unload pallet %d: %w", palletID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("pallet %d is not loaded in container %d: %w", palletID, containerID, ErrInvalidState)
	}

	var remaining int
	if err := tx.QueryRow(ctx, `
		SELECT COUNT(*) FROM pallets WHERE container_id = $1 AND NOT deleted
	`, containerID).Scan(&remaining); err != nil {
		return fmt.Errorf("failed to count container %d pallets: %w", containerID, err)
	}
	if remaining == 0 {
		if _, err := tx.Exec(ctx, `UPDATE containers SET status = $1 WHERE id = $2`, ContainerEmpty, containerID); err != nil {
			return fmt.Errorf("failed to update container %d: %w", containerID, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit pallet unload: %w", err)
	}
	return nil
}

func (s *containerService) MarkReady(ctx context.Context, containerID int) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	c, err := getContainerQ(ctx, tx, containerID, true)
	if err != nil {
		return err
	}
	if c.Status != ContainerLoaded {
		return fmt.Errorf("container %d is %s, only Loaded can be marked ready: %w", containerID, c.Status, ErrInvalidState)
	}

	if _, err := tx.Exec(ctx, `UPDATE containers SET status = $1 WHERE id = $2`, ContainerReadyToDispatch, containerID); err != nil {
		return fmt.Errorf("failed to mark container %d ready: %w", containerID, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit container ready: %w", err)
	}
	return nil
}

func (s *containerService) SoftDeleteContainer(ctx context.Context, containerID int) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	c, err := getContainerQ(ctx, tx, containerID, true)
	if err != nil {
		return err
	}
	if c.DispatchOrderID != nil {
		return fmt.Errorf("container %d is attached to a dispatch order: %w", containerID, ErrInvalidState)
	}

	// Unload everything back into factory stock before the container goes.
	if _, err := tx.Exec(ctx, `
		UPDATE pallets SET status = $1, container_id = NULL
		WHERE container_id = $2 AND NOT deleted
	`, PalletInFactoryStock, containerID); err != nil {
		return fmt.Errorf("failed to unload container %d: %w", containerID, err)
	}
	if _, err := tx.Exec(ctx, `UPDATE containers SET deleted = TRUE WHERE id = $1`, containerID); err != nil {
		return fmt.Errorf("failed to delete container %d: %w", containerID, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit container delete: %w", err)
	}
	return nil
}
