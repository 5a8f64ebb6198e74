package core

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// Factory aggregate phases, as column prefixes. Only these names are ever
// interpolated into SQL.
const (
	phaseInFactory = "in_factory"
	phaseDispatch  = "dispatched"
	phaseInTransit = "in_transit"
	phaseDelivered = "delivered"
)

// unitDelta is an accumulated pallets/khatlis/boxes movement.
type unitDelta struct {
	Pallets int
	Khatlis int
	Boxes   int
}

func (d *unitDelta) add(t UnitType, boxes int) {
	switch t {
	case UnitKhatli:
		d.Khatlis++
	default:
		d.Pallets++
	}
	d.Boxes += boxes
}

// factoryDeltas accumulates movements per factory before applying them, so
// two containers from the same factory in one operation produce a single
// consolidated UPDATE instead of conflicting partial writes.
type factoryDeltas map[int]*unitDelta

func (fd factoryDeltas) add(factoryID int, t UnitType, boxes int) {
	d := fd[factoryID]
	if d == nil {
		d = &unitDelta{}
		fd[factoryID] = d
	}
	d.add(t, boxes)
}

// tileDeltas accumulates box counts per tile.
type tileDeltas map[int]int

func (td tileDeltas) add(tileID, boxes int) {
	td[tileID] += boxes
}

// applyFactoryMove moves each factory's accumulated quantities from one phase
// bucket to another, one UPDATE per factory. Pass the phases swapped to
// reverse a prior move.
func applyFactoryMove(ctx context.Context, tx pgx.Tx, deltas factoryDeltas, from, to string) error {
	query := fmt.Sprintf(`
		UPDATE factories SET
			%[1]s_pallets = %[1]s_pallets - $1,
			%[1]s_khatlis = %[1]s_khatlis - $2,
			%[1]s_boxes   = %[1]s_boxes   - $3,
			%[2]s_pallets = %[2]s_pallets + $1,
			%[2]s_khatlis = %[2]s_khatlis + $2,
			%[2]s_boxes   = %[2]s_boxes   + $3
		WHERE id = $4
	`, from, to)

	for factoryID, d := range deltas {
		if _, err := tx.Exec(ctx, query, d.Pallets, d.Khatlis, d.Boxes, factoryID); err != nil {
			return fmt.Errorf("failed to move factory %d stock %s→%s: %w", factoryID, from, to, classifyPgError(err))
		}
	}
	return nil
}

// applyTileMove moves each tile's accumulated boxes between two tile buckets.
// Column names come from the callers' fixed set, never from input.
func applyTileMove(ctx context.Context, tx pgx.Tx, deltas tileDeltas, fromCol, toCol string) error {
	query := fmt.Sprintf(`
		UPDATE tiles SET
			%[1]s = %[1]s - $1,
			%[2]s = %[2]s + $1,
			updated_at = NOW()
		WHERE id = $2
	`, fromCol, toCol)

	for tileID, boxes := range deltas {
		if _, err := tx.Exec(ctx, query, boxes, tileID); err != nil {
			return fmt.Errorf("failed to move tile %d stock %s→%s: %w", tileID, fromCol, toCol, classifyPgError(err))
		}
	}
	return nil
}

// applyTileSubtract decreases a single tile bucket without a receiving
// bucket (delivered stock is consumed, not re-tracked per tile).
func applyTileSubtract(ctx context.Context, tx pgx.Tx, deltas tileDeltas, col string) error {
	query := fmt.Sprintf(`
		UPDATE tiles SET %[1]s = %[1]s - $1, updated_at = NOW()
		WHERE id = $2
	`, col)

	for tileID, boxes := range deltas {
		if _, err := tx.Exec(ctx, query, boxes, tileID); err != nil {
			return fmt.Errorf("failed to reduce tile %d %s: %w", tileID, col, classifyPgError(err))
		}
	}
	return nil
}
