package core

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"
)

// Issue severities reported by the stock checker.
const (
	SeverityCritical = "CRITICAL"
	SeverityHigh     = "HIGH"
)

// StockIssue is one divergence between a tile's recorded counters and the
// values recomputed from pallet and booking ground truth.
type StockIssue struct {
	TileID   int    `json:"tile_id"`
	TileCode string `json:"tile_code"`
	Field    string `json:"field"`
	Recorded int    `json:"recorded"`
	Expected int    `json:"expected"`
	Severity string `json:"severity"`
}

// ReconcileEntry records one repaired tile, before and after.
type ReconcileEntry struct {
	TileID   int          `json:"tile_id"`
	TileCode string       `json:"tile_code"`
	Issues   []StockIssue `json:"issues"`
	Before   StockCounts  `json:"before"`
	After    StockCounts  `json:"after"`
}

// StockCounts is the reconcilable subset of a tile's buckets.
type StockCounts struct {
	Available int `json:"available"`
	Booked    int `json:"booked"`
	InFactory int `json:"in_factory"`
}

// ReconcileReport summarizes one reconciliation run.
type ReconcileReport struct {
	TilesChecked  int              `json:"tiles_checked"`
	TilesRepaired int              `json:"tiles_repaired"`
	Entries       []ReconcileEntry `json:"entries"`
}

// ReconcileService repairs drift between the cached tile counters and the
// ground truth held in pallets and bookings. The counters are caches: any
// value here must be re-derivable, and this service is the deriver.
type ReconcileService interface {
	// CheckStock recomputes every tile's counters and reports divergences
	// without writing anything. Negative recorded values are CRITICAL,
	// plain mismatches HIGH.
	CheckStock(ctx context.Context) ([]StockIssue, error)

	// ReconcileStock overwrites divergent counters with the recomputed
	// values. Validation is bypassed on purpose: the fix may be moving a
	// counter away from an invalid negative state.
	ReconcileStock(ctx context.Context) (*ReconcileReport, error)
}

type reconcileService struct {
	pool *pgxpool.Pool
	log  logrus.FieldLogger
}

func NewReconcileService(pool *pgxpool.Pool, log logrus.FieldLogger) ReconcileService {
	return &reconcileService{pool: pool, log: log}
}

// tileTruth is one tile's recorded and recomputed counters.
type tileTruth struct {
	TileID   int
	TileCode string
	Recorded StockCounts
	Actual   StockCounts
}

// computeTruth recomputes every non-deleted tile's counters from ground
// truth: in-factory from pallets still in factory stock, booked from active
// bookings minus what their dispatches already took, available as the
// clamped difference.
func computeTruth(ctx context.Context, q pgxRowQuerier) ([]tileTruth, error) {
	rows, err := q.Query(ctx, `
		SELECT t.id, t.code,
			t.available_stock, t.booked_stock, t.in_factory_stock,
			COALESCE(p.boxes, 0),
			COALESCE(b.booked, 0) - COALESCE(bd.dispatched, 0)
		FROM tiles t
		LEFT JOIN (
			SELECT tile_id, SUM(box_count) AS boxes
			FROM pallets
			WHERE status = 'InFactoryStock' AND NOT deleted
			GROUP BY tile_id
		) p ON p.tile_id = t.id
		LEFT JOIN (
			SELECT bt.tile_id, SUM(bt.quantity) AS booked
			FROM booking_tiles bt
			JOIN bookings bk ON bk.id = bt.booking_id
			WHERE bk.status IN ('Booked', 'Partially Dispatched')
			GROUP BY bt.tile_id
		) b ON b.tile_id = t.id
		LEFT JOIN (
			SELECT i.tile_id, SUM(i.quantity) AS dispatched
			FROM booking_dispatch_items i
			JOIN booking_dispatches d ON d.id = i.booking_dispatch_id
			JOIN bookings bk ON bk.id = d.booking_id
			WHERE NOT d.deleted AND bk.status IN ('Booked', 'Partially Dispatched')
			GROUP BY i.tile_id
		) bd ON bd.tile_id = t.id
		WHERE NOT t.deleted
		ORDER BY t.id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to recompute stock truth: %w", err)
	}
	defer rows.Close()

	var truths []tileTruth
	for rows.Next() {
		var tt tileTruth
		var actualInFactory, actualBooked int
		if err := rows.Scan(&tt.TileID, &tt.TileCode,
			&tt.Recorded.Available, &tt.Recorded.Booked, &tt.Recorded.InFactory,
			&actualInFactory, &actualBooked); err != nil {
			return nil, fmt.Errorf("failed to scan stock truth: %w", err)
		}
		if actualBooked < 0 {
			actualBooked = 0
		}
		tt.Actual.InFactory = actualInFactory
		tt.Actual.Booked = actualBooked
		// Oversold tiles clamp to zero rather than going negative.
		tt.Actual.Available = actualInFactory - actualBooked
		if tt.Actual.Available < 0 {
			tt.Actual.Available = 0
		}
		truths = append(truths, tt)
	}
	return truths, rows.Err()
}

func (tt *tileTruth) issues() []StockIssue {
	fields := []struct {
		name               string
		recorded, expected int
	}{
		{"available_stock", tt.Recorded.Available, tt.Actual.Available},
		{"booked_stock", tt.Recorded.Booked, tt.Actual.Booked},
		{"in_factory_stock", tt.Recorded.InFactory, tt.Actual.InFactory},
	}

	var issues []StockIssue
	for _, f := range fields {
		if f.recorded == f.expected && f.recorded >= 0 {
			continue
		}
		severity := SeverityHigh
		if f.recorded < 0 {
			severity = SeverityCritical
		}
		issues = append(issues, StockIssue{
			TileID:   tt.TileID,
			TileCode: tt.TileCode,
			Field:    f.name,
			Recorded: f.recorded,
			Expected: f.expected,
			Severity: severity,
		})
	}
	return issues
}

func (s *reconcileService) CheckStock(ctx context.Context) ([]StockIssue, error) {
	truths, err := computeTruth(ctx, s.pool)
	if err != nil {
		return nil, err
	}

	var issues []StockIssue
	for i := range truths {
		issues = append(issues, truths[i].issues()...)
	}
	s.log.WithFields(logrus.Fields{
		"tiles":  len(truths),
		"issues": len(issues),
	}).Info("stock check complete")
	return issues, nil
}

func (s *reconcileService) ReconcileStock(ctx context.Context) (*ReconcileReport, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	// Serialize against concurrent stock movement for the whole run.
	if _, err := tx.Exec(ctx, `LOCK TABLE tiles IN SHARE ROW EXCLUSIVE MODE`); err != nil {
		return nil, fmt.Errorf("failed to lock tiles for reconciliation: %w", err)
	}

	truths, err := computeTruth(ctx, tx)
	if err != nil {
		return nil, err
	}

	report := &ReconcileReport{TilesChecked: len(truths)}
	for i := range truths {
		tt := &truths[i]
		issues := tt.issues()
		if len(issues) == 0 {
			continue
		}

		if _, err := tx.Exec(ctx, `
			UPDATE tiles SET
				available_stock  = $1,
				booked_stock     = $2,
				in_factory_stock = $3,
				updated_at = NOW()
			WHERE id = $4
		`, tt.Actual.Available, tt.Actual.Booked, tt.Actual.InFactory, tt.TileID); err != nil {
			return nil, fmt.Errorf("failed to repair tile %d: %w", tt.TileID, err)
		}

		s.log.WithFields(logrus.Fields{
			"tile":   tt.TileCode,
			"before": tt.Recorded,
			"after":  tt.Actual,
		}).Warn("repaired stock drift")

		report.TilesRepaired++
		report.Entries = append(report.Entries, ReconcileEntry{
			TileID:   tt.TileID,
			TileCode: tt.TileCode,
			Issues:   issues,
			Before:   tt.Recorded,
			After:    tt.Actual,
		})
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit reconciliation: %w", err)
	}
	s.log.WithFields(logrus.Fields{
		"checked":  report.TilesChecked,
		"repaired": report.TilesRepaired,
	}).Info("reconciliation complete")
	return report, nil
}
