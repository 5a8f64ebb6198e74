package core_test

import (
	"errors"
	"testing"

	"tiletrack/internal/core"

	"github.com/shopspring/decimal"
)

func TestDispatch_TwoContainerScenario(t *testing.T) {
	pool, ctx := setupTestDB(t)
	seq := core.NewSequenceService(pool)
	containers := core.NewContainerService(pool)
	dispatches := core.NewDispatchService(pool, seq)

	// Two containers from factory 1, each 5 pallets of 20 boxes.
	p1 := seedFactoryPallets(t, ctx, pool, 1, 1, 5, 20)
	p2 := seedFactoryPallets(t, ctx, pool, 1, 1, 5, 20)

	c1, err := containers.CreateLoadingPlan(ctx, "CONT-001", "GJ-01-XX-1234", 1, p1)
	if err != nil {
		t.Fatalf("CreateLoadingPlan failed: %v", err)
	}
	c2, err := containers.CreateLoadingPlan(ctx, "CONT-002", "GJ-01-XX-5678", 1, p2)
	if err != nil {
		t.Fatalf("CreateLoadingPlan failed: %v", err)
	}

	d, err := dispatches.CreateDispatch(ctx, "Mundra Port", "GJ-12-AB-0001", "", []int{c1.ID, c2.ID}, "tester")
	if err != nil {
		t.Fatalf("CreateDispatch failed: %v", err)
	}
	if d.DispatchNumber != "DO-00001" {
		t.Errorf("Expected dispatch number DO-00001, got %s", d.DispatchNumber)
	}
	if d.Status != core.DispatchPending {
		t.Errorf("Expected Pending, got %s", d.Status)
	}
	if len(d.Items) != 10 {
		t.Errorf("Expected 10 item snapshots, got %d", len(d.Items))
	}

	// Factory: 10 pallets / 200 boxes moved in-factory → dispatched.
	inFactory := getFactoryPhase(t, ctx, pool, 1, "in_factory")
	dispatched := getFactoryPhase(t, ctx, pool, 1, "dispatched")
	if inFactory.Pallets != 0 || inFactory.TotalBoxes != 0 {
		t.Errorf("Expected empty in-factory aggregate, got %+v", inFactory)
	}
	if dispatched.Pallets != 10 || dispatched.TotalBoxes != 200 {
		t.Errorf("Expected dispatched {10 pallets, 200 boxes}, got %+v", dispatched)
	}

	// Summary: one line for tile 1 with 10 pallets, 200 boxes, 288 m².
	if len(d.StockSummary) != 1 {
		t.Fatalf("Expected 1 summary line, got %d", len(d.StockSummary))
	}
	line := d.StockSummary[0]
	if line.Pallets != 10 || line.TotalBoxes != 200 {
		t.Errorf("Summary = %+v, want 10 pallets / 200 boxes", line)
	}
	if !line.SquareMeters.Equal(decimal.NewFromInt(288)) {
		t.Errorf("Expected 288 m² (200 × 1.44), got %s", line.SquareMeters)
	}

	// Ready → In Transit moves factory dispatched → in-transit and tile
	// in-factory → in-transit by the same 200 boxes.
	if _, err := dispatches.AdvanceStatus(ctx, d.ID, core.DispatchReady, "tester", ""); err != nil {
		t.Fatalf("Advance to Ready failed: %v", err)
	}
	if _, err := dispatches.AdvanceStatus(ctx, d.ID, core.DispatchInTransit, "tester", ""); err != nil {
		t.Fatalf("Advance to In Transit failed: %v", err)
	}

	inTransit := getFactoryPhase(t, ctx, pool, 1, "in_transit")
	if inTransit.Pallets != 10 || inTransit.TotalBoxes != 200 {
		t.Errorf("Expected in-transit {10 pallets, 200 boxes}, got %+v", inTransit)
	}
	stock := getTileStock(t, ctx, pool, 1)
	if stock.InFactory != 0 || stock.InTransit != 200 {
		t.Errorf("Expected tile in-factory 0 / in-transit 200, got %+v", stock)
	}

	// In Transit → Delivered consumes the tile's in-transit contribution.
	if _, err := dispatches.AdvanceStatus(ctx, d.ID, core.DispatchDelivered, "tester", ""); err != nil {
		t.Fatalf("Advance to Delivered failed: %v", err)
	}
	delivered := getFactoryPhase(t, ctx, pool, 1, "delivered")
	if delivered.Pallets != 10 || delivered.TotalBoxes != 200 {
		t.Errorf("Expected delivered {10 pallets, 200 boxes}, got %+v", delivered)
	}
	stock = getTileStock(t, ctx, pool, 1)
	if stock.InTransit != 0 {
		t.Errorf("Expected tile in-transit 0 after delivery, got %d", stock.InTransit)
	}

	d, err = dispatches.AdvanceStatus(ctx, d.ID, core.DispatchCompleted, "tester", "closed out")
	if err != nil {
		t.Fatalf("Advance to Completed failed: %v", err)
	}
	if len(d.StatusHistory) != 5 { // created + 4 transitions
		t.Errorf("Expected 5 history entries, got %d", len(d.StatusHistory))
	}
}

func TestDispatch_InvalidTransition(t *testing.T) {
	pool, ctx := setupTestDB(t)
	seq := core.NewSequenceService(pool)
	containers := core.NewContainerService(pool)
	dispatches := core.NewDispatchService(pool, seq)

	palletIDs := seedFactoryPallets(t, ctx, pool, 1, 1, 2, 10)
	c, err := containers.CreateLoadingPlan(ctx, "CONT-010", "TRK-1", 1, palletIDs)
	if err != nil {
		t.Fatalf("CreateLoadingPlan failed: %v", err)
	}
	d, err := dispatches.CreateDispatch(ctx, "Surat", "", "", []int{c.ID}, "tester")
	if err != nil {
		t.Fatalf("CreateDispatch failed: %v", err)
	}

	// Pending cannot jump straight to In Transit.
	if _, err := dispatches.AdvanceStatus(ctx, d.ID, core.DispatchInTransit, "tester", ""); !errors.Is(err, core.ErrInvalidTransition) {
		t.Errorf("Expected ErrInvalidTransition, got %v", err)
	}
}

func TestDispatch_AlreadyDispatchedContainer(t *testing.T) {
	pool, ctx := setupTestDB(t)
	seq := core.NewSequenceService(pool)
	containers := core.NewContainerService(pool)
	dispatches := core.NewDispatchService(pool, seq)

	palletIDs := seedFactoryPallets(t, ctx, pool, 1, 1, 2, 10)
	c, err := containers.CreateLoadingPlan(ctx, "CONT-020", "TRK-2", 1, palletIDs)
	if err != nil {
		t.Fatalf("CreateLoadingPlan failed: %v", err)
	}
	if _, err := dispatches.CreateDispatch(ctx, "Rajkot", "", "", []int{c.ID}, "tester"); err != nil {
		t.Fatalf("CreateDispatch failed: %v", err)
	}

	// The same container cannot back a second order, and the failed create
	// must leave no phantom stock movement behind.
	before := getFactoryPhase(t, ctx, pool, 1, "dispatched")
	if _, err := dispatches.CreateDispatch(ctx, "Rajkot", "", "", []int{c.ID}, "tester"); !errors.Is(err, core.ErrAlreadyDispatched) {
		t.Fatalf("Expected ErrAlreadyDispatched, got %v", err)
	}
	after := getFactoryPhase(t, ctx, pool, 1, "dispatched")
	if before != after {
		t.Errorf("Failed create moved stock: %+v → %+v", before, after)
	}
}

func TestDispatch_CancelReopenSymmetry(t *testing.T) {
	pool, ctx := setupTestDB(t)
	seq := core.NewSequenceService(pool)
	containers := core.NewContainerService(pool)
	dispatches := core.NewDispatchService(pool, seq)

	palletIDs := seedFactoryPallets(t, ctx, pool, 1, 1, 3, 25)
	c, err := containers.CreateLoadingPlan(ctx, "CONT-030", "TRK-3", 1, palletIDs)
	if err != nil {
		t.Fatalf("CreateLoadingPlan failed: %v", err)
	}

	baseline := getFactoryPhase(t, ctx, pool, 1, "in_factory")
	baseStock := getTileStock(t, ctx, pool, 1)

	d, err := dispatches.CreateDispatch(ctx, "Ahmedabad", "", "", []int{c.ID}, "tester")
	if err != nil {
		t.Fatalf("CreateDispatch failed: %v", err)
	}
	afterCreate := getFactoryPhase(t, ctx, pool, 1, "dispatched")

	// Cancel must restore the pre-create factory aggregates bit for bit.
	if _, err := dispatches.AdvanceStatus(ctx, d.ID, core.DispatchCancelled, "tester", "vehicle broke down"); err != nil {
		t.Fatalf("Cancel failed: %v", err)
	}
	if got := getFactoryPhase(t, ctx, pool, 1, "in_factory"); got != baseline {
		t.Errorf("Cancel did not restore in-factory aggregate: %+v, want %+v", got, baseline)
	}
	if got := getTileStock(t, ctx, pool, 1); got != baseStock {
		t.Errorf("Cancel did not restore tile stock: %+v, want %+v", got, baseStock)
	}
	gotC, err := containers.GetContainer(ctx, c.ID)
	if err != nil {
		t.Fatalf("GetContainer failed: %v", err)
	}
	if gotC.Status != core.ContainerLoaded {
		t.Errorf("Expected container Loaded after cancel, got %s", gotC.Status)
	}
	if gotC.DispatchOrderID == nil {
		t.Error("Expected container to stay attached after cancel")
	}

	// Reopen must re-apply the same forward deltas.
	if _, err := dispatches.AdvanceStatus(ctx, d.ID, core.DispatchPending, "tester", "reopened"); err != nil {
		t.Fatalf("Reopen failed: %v", err)
	}
	if got := getFactoryPhase(t, ctx, pool, 1, "dispatched"); got != afterCreate {
		t.Errorf("Reopen did not re-apply dispatched aggregate: %+v, want %+v", got, afterCreate)
	}
}

func TestDispatch_CancelledContainerRejectsLoadChanges(t *testing.T) {
	pool, ctx := setupTestDB(t)
	seq := core.NewSequenceService(pool)
	containers := core.NewContainerService(pool)
	dispatches := core.NewDispatchService(pool, seq)

	palletIDs := seedFactoryPallets(t, ctx, pool, 1, 1, 2, 25)
	spare := seedFactoryPallets(t, ctx, pool, 1, 1, 1, 25)[0]

	c, err := containers.CreateLoadingPlan(ctx, "CONT-035", "TRK-9", 1, palletIDs)
	if err != nil {
		t.Fatalf("CreateLoadingPlan failed: %v", err)
	}
	d, err := dispatches.CreateDispatch(ctx, "Ahmedabad", "", "", []int{c.ID}, "tester")
	if err != nil {
		t.Fatalf("CreateDispatch failed: %v", err)
	}
	afterCreate := getFactoryPhase(t, ctx, pool, 1, "dispatched")

	if _, err := dispatches.AdvanceStatus(ctx, d.ID, core.DispatchCancelled, "tester", "on hold"); err != nil {
		t.Fatalf("Cancel failed: %v", err)
	}

	// The container stays attached through the cancel, so its contents are
	// still the order's snapshot and must not change underneath it.
	if err := containers.AddPallet(ctx, c.ID, spare); !errors.Is(err, core.ErrInvalidState) {
		t.Errorf("Expected ErrInvalidState loading into an attached container, got %v", err)
	}
	if err := containers.RemovePallet(ctx, c.ID, palletIDs[0]); !errors.Is(err, core.ErrInvalidState) {
		t.Errorf("Expected ErrInvalidState unloading an attached container, got %v", err)
	}

	// With the contents locked, reopen re-applies exactly the create-time deltas.
	if _, err := dispatches.AdvanceStatus(ctx, d.ID, core.DispatchPending, "tester", "reopened"); err != nil {
		t.Fatalf("Reopen failed: %v", err)
	}
	if got := getFactoryPhase(t, ctx, pool, 1, "dispatched"); got != afterCreate {
		t.Errorf("Reopen dispatched aggregate %+v, want %+v", got, afterCreate)
	}
}

func TestDispatch_DeleteRequiresReason(t *testing.T) {
	pool, ctx := setupTestDB(t)
	seq := core.NewSequenceService(pool)
	containers := core.NewContainerService(pool)
	dispatches := core.NewDispatchService(pool, seq)

	palletIDs := seedFactoryPallets(t, ctx, pool, 1, 1, 2, 10)
	c, err := containers.CreateLoadingPlan(ctx, "CONT-040", "TRK-4", 1, palletIDs)
	if err != nil {
		t.Fatalf("CreateLoadingPlan failed: %v", err)
	}
	d, err := dispatches.CreateDispatch(ctx, "Vapi", "", "", []int{c.ID}, "tester")
	if err != nil {
		t.Fatalf("CreateDispatch failed: %v", err)
	}

	if err := dispatches.SoftDeleteDispatch(ctx, d.ID, "   ", "tester"); !errors.Is(err, core.ErrValidation) {
		t.Errorf("Expected ErrValidation for whitespace reason, got %v", err)
	}

	baseline := getFactoryPhase(t, ctx, pool, 1, "in_factory")
	if err := dispatches.SoftDeleteDispatch(ctx, d.ID, "duplicate entry", "tester"); err != nil {
		t.Fatalf("SoftDeleteDispatch failed: %v", err)
	}

	// A Pending delete reverses stock and releases the containers.
	after := getFactoryPhase(t, ctx, pool, 1, "in_factory")
	if after.TotalBoxes != baseline.TotalBoxes+20 {
		t.Errorf("Expected in-factory boxes %d after delete, got %d", baseline.TotalBoxes+20, after.TotalBoxes)
	}
	gotC, err := containers.GetContainer(ctx, c.ID)
	if err != nil {
		t.Fatalf("GetContainer failed: %v", err)
	}
	if gotC.DispatchOrderID != nil {
		t.Error("Expected container detached after delete")
	}

	if _, err := dispatches.GetDispatch(ctx, d.ID); err != nil {
		t.Fatalf("Deleted dispatch should remain readable: %v", err)
	}
}

func TestDispatch_EditContainers(t *testing.T) {
	pool, ctx := setupTestDB(t)
	seq := core.NewSequenceService(pool)
	containers := core.NewContainerService(pool)
	dispatches := core.NewDispatchService(pool, seq)

	p1 := seedFactoryPallets(t, ctx, pool, 1, 1, 2, 10)
	p2 := seedFactoryPallets(t, ctx, pool, 2, 2, 3, 15)
	c1, err := containers.CreateLoadingPlan(ctx, "CONT-050", "TRK-5", 1, p1)
	if err != nil {
		t.Fatalf("CreateLoadingPlan failed: %v", err)
	}
	c2, err := containers.CreateLoadingPlan(ctx, "CONT-051", "TRK-6", 2, p2)
	if err != nil {
		t.Fatalf("CreateLoadingPlan failed: %v", err)
	}

	d, err := dispatches.CreateDispatch(ctx, "Jamnagar", "", "", []int{c1.ID}, "tester")
	if err != nil {
		t.Fatalf("CreateDispatch failed: %v", err)
	}

	// Swap container 1 for container 2 across factories.
	d, err = dispatches.EditContainers(ctx, d.ID, []int{c2.ID}, []int{c1.ID})
	if err != nil {
		t.Fatalf("EditContainers failed: %v", err)
	}
	if len(d.Items) != 3 {
		t.Errorf("Expected 3 items after edit, got %d", len(d.Items))
	}

	// Factory 1 got its stock back, factory 2 gave its up.
	f1 := getFactoryPhase(t, ctx, pool, 1, "dispatched")
	f2 := getFactoryPhase(t, ctx, pool, 2, "dispatched")
	if f1.TotalBoxes != 0 {
		t.Errorf("Expected factory 1 dispatched 0 boxes, got %d", f1.TotalBoxes)
	}
	if f2.Pallets != 3 || f2.TotalBoxes != 45 {
		t.Errorf("Expected factory 2 dispatched {3, 45}, got %+v", f2)
	}

	// Editing down to an empty order is rejected.
	if _, err := dispatches.EditContainers(ctx, d.ID, nil, []int{c2.ID}); !errors.Is(err, core.ErrValidation) {
		t.Errorf("Expected ErrValidation for empty order, got %v", err)
	}
}
