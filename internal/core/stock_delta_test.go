package core

import "testing"

func TestFactoryDeltaAccumulation(t *testing.T) {
	deltas := factoryDeltas{}

	// Two containers from factory 1 and one from factory 2 must collapse
	// into one consolidated delta per factory.
	deltas.add(1, UnitPallet, 20)
	deltas.add(1, UnitPallet, 20)
	deltas.add(1, UnitKhatli, 8)
	deltas.add(2, UnitPallet, 30)

	d1 := deltas[1]
	if d1 == nil {
		t.Fatal("Expected delta for factory 1")
	}
	if d1.Pallets != 2 || d1.Khatlis != 1 || d1.Boxes != 48 {
		t.Errorf("Factory 1 delta = %+v, want {Pallets:2 Khatlis:1 Boxes:48}", *d1)
	}

	d2 := deltas[2]
	if d2 == nil {
		t.Fatal("Expected delta for factory 2")
	}
	if d2.Pallets != 1 || d2.Khatlis != 0 || d2.Boxes != 30 {
		t.Errorf("Factory 2 delta = %+v, want {Pallets:1 Khatlis:0 Boxes:30}", *d2)
	}
}

func TestTileDeltaAccumulation(t *testing.T) {
	deltas := tileDeltas{}
	deltas.add(7, 100)
	deltas.add(7, 100)
	deltas.add(9, -40)

	if deltas[7] != 200 {
		t.Errorf("Tile 7 delta = %d, want 200", deltas[7])
	}
	if deltas[9] != -40 {
		t.Errorf("Tile 9 delta = %d, want -40", deltas[9])
	}
}
