package core_test

import (
	"errors"
	"testing"

	"tiletrack/internal/core"
)

func TestPurchasePipeline_OrderToArrival(t *testing.T) {
	pool, ctx := setupTestDB(t)
	seq := core.NewSequenceService(pool)
	purchases := core.NewPurchaseService(pool, seq)

	rr, err := purchases.CreateRestockRequest(ctx, 1, 100, "running low before Eid season")
	if err != nil {
		t.Fatalf("CreateRestockRequest failed: %v", err)
	}
	if rr.RequestNumber != "RR-00001" {
		t.Errorf("Expected request number RR-00001, got %s", rr.RequestNumber)
	}

	po, err := purchases.CreatePurchaseOrder(ctx, 1, []core.PurchaseOrderLineInput{
		{TileID: 1, OrderedBoxes: 100},
	}, []int{rr.ID})
	if err != nil {
		t.Fatalf("CreatePurchaseOrder failed: %v", err)
	}
	if po.PONumber != "PO-00001" {
		t.Errorf("Expected PO-00001, got %s", po.PONumber)
	}

	// Ordering raises the restocking bucket only.
	stock := getTileStock(t, ctx, pool, 1)
	if stock.Restocking != 100 || stock.InFactory != 0 {
		t.Errorf("Expected restocking 100 / in-factory 0, got %+v", stock)
	}

	open, err := purchases.ListOpenRestockRequests(ctx)
	if err != nil {
		t.Fatalf("ListOpenRestockRequests failed: %v", err)
	}
	if len(open) != 0 {
		t.Errorf("Expected request marked Ordered, still open: %d", len(open))
	}

	// 4 pallets of 20 arrive: restocking → in-factory, available follows.
	palletIDs, err := purchases.RecordArrival(ctx, po.ID, 1, core.UnitPallet, 4, 20)
	if err != nil {
		t.Fatalf("RecordArrival failed: %v", err)
	}
	if len(palletIDs) != 4 {
		t.Fatalf("Expected 4 pallets, got %d", len(palletIDs))
	}
	stock = getTileStock(t, ctx, pool, 1)
	if stock.Restocking != 20 || stock.InFactory != 80 || stock.Available != 80 {
		t.Errorf("Expected restocking 20 / in-factory 80 / available 80, got %+v", stock)
	}
	phase := getFactoryPhase(t, ctx, pool, 1, "in_factory")
	if phase.Pallets != 4 || phase.TotalBoxes != 80 {
		t.Errorf("Expected factory {4 pallets, 80 boxes}, got %+v", phase)
	}

	// Arrivals cannot exceed the ordered quantity.
	if _, err := purchases.RecordArrival(ctx, po.ID, 1, core.UnitKhatli, 3, 10); !errors.Is(err, core.ErrValidation) {
		t.Errorf("Expected ErrValidation for over-arrival, got %v", err)
	}

	// The final khatli closes the order.
	if _, err := purchases.RecordArrival(ctx, po.ID, 1, core.UnitKhatli, 1, 20); err != nil {
		t.Fatalf("Final RecordArrival failed: %v", err)
	}
	po, err = purchases.GetPurchaseOrder(ctx, po.ID)
	if err != nil {
		t.Fatalf("GetPurchaseOrder failed: %v", err)
	}
	if po.Status != "Completed" {
		t.Errorf("Expected Completed purchase order, got %s", po.Status)
	}
}

func TestPallet_ManualAdjustments(t *testing.T) {
	pool, ctx := setupTestDB(t)
	pallets := core.NewPalletService(pool)

	p, err := pallets.CreatePallet(ctx, core.UnitKhatli, 1, 1, 30)
	if err != nil {
		t.Fatalf("CreatePallet failed: %v", err)
	}
	stock := getTileStock(t, ctx, pool, 1)
	if stock.InFactory != 30 || stock.Available != 30 {
		t.Errorf("Expected 30/30 after create, got %+v", stock)
	}
	phase := getFactoryPhase(t, ctx, pool, 1, "in_factory")
	if phase.Khatlis != 1 || phase.TotalBoxes != 30 {
		t.Errorf("Expected factory {1 khatli, 30 boxes}, got %+v", phase)
	}

	// Editing the box count moves only the difference.
	if _, err := pallets.UpdateBoxCount(ctx, p.ID, 25); err != nil {
		t.Fatalf("UpdateBoxCount failed: %v", err)
	}
	stock = getTileStock(t, ctx, pool, 1)
	if stock.InFactory != 25 || stock.Available != 25 {
		t.Errorf("Expected 25/25 after edit, got %+v", stock)
	}

	if err := pallets.DeletePallet(ctx, p.ID); err != nil {
		t.Fatalf("DeletePallet failed: %v", err)
	}
	stock = getTileStock(t, ctx, pool, 1)
	if stock.InFactory != 0 || stock.Available != 0 {
		t.Errorf("Expected empty stock after delete, got %+v", stock)
	}
	phase = getFactoryPhase(t, ctx, pool, 1, "in_factory")
	if phase.Khatlis != 0 || phase.TotalBoxes != 0 {
		t.Errorf("Expected empty factory aggregate, got %+v", phase)
	}
}

func TestPallet_DispatchedUnitIsImmutable(t *testing.T) {
	pool, ctx := setupTestDB(t)
	seq := core.NewSequenceService(pool)
	pallets := core.NewPalletService(pool)
	containers := core.NewContainerService(pool)
	dispatches := core.NewDispatchService(pool, seq)

	ids := seedFactoryPallets(t, ctx, pool, 1, 1, 1, 20)
	c, err := containers.CreateLoadingPlan(ctx, "CONT-100", "TRK-9", 1, ids)
	if err != nil {
		t.Fatalf("CreateLoadingPlan failed: %v", err)
	}
	if _, err := dispatches.CreateDispatch(ctx, "Surat", "", "", []int{c.ID}, "tester"); err != nil {
		t.Fatalf("CreateDispatch failed: %v", err)
	}

	if _, err := pallets.UpdateBoxCount(ctx, ids[0], 5); !errors.Is(err, core.ErrInvalidState) {
		t.Errorf("Expected ErrInvalidState editing dispatched pallet, got %v", err)
	}
	if err := pallets.DeletePallet(ctx, ids[0]); !errors.Is(err, core.ErrInvalidState) {
		t.Errorf("Expected ErrInvalidState deleting dispatched pallet, got %v", err)
	}
}

func TestContainer_RemovePalletReverts(t *testing.T) {
	pool, ctx := setupTestDB(t)
	containers := core.NewContainerService(pool)

	ids := seedFactoryPallets(t, ctx, pool, 1, 1, 2, 15)
	c, err := containers.CreateLoadingPlan(ctx, "CONT-110", "TRK-10", 1, ids)
	if err != nil {
		t.Fatalf("CreateLoadingPlan failed: %v", err)
	}

	if err := containers.RemovePallet(ctx, c.ID, ids[0]); err != nil {
		t.Fatalf("RemovePallet failed: %v", err)
	}
	got, err := containers.GetContainer(ctx, c.ID)
	if err != nil {
		t.Fatalf("GetContainer failed: %v", err)
	}
	if got.ItemCount() != 1 {
		t.Errorf("Expected 1 item left, got %d", got.ItemCount())
	}

	// Removing the last pallet empties the container.
	if err := containers.RemovePallet(ctx, c.ID, ids[1]); err != nil {
		t.Fatalf("RemovePallet failed: %v", err)
	}
	got, err = containers.GetContainer(ctx, c.ID)
	if err != nil {
		t.Fatalf("GetContainer failed: %v", err)
	}
	if got.Status != core.ContainerEmpty {
		t.Errorf("Expected Empty container, got %s", got.Status)
	}
}
