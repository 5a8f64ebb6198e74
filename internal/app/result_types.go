package app

import "tiletrack/internal/core"

// TileResult wraps a single tile.
type TileResult struct {
	Tile *core.Tile `json:"tile"`
}

// TileListResult wraps a tile listing.
type TileListResult struct {
	Tiles []core.Tile `json:"tiles"`
	Count int         `json:"count"`
}

// FactoryResult wraps a single factory with its aggregate stock.
type FactoryResult struct {
	Factory *core.Factory `json:"factory"`
}

// FactoryListResult wraps a factory listing.
type FactoryListResult struct {
	Factories []core.Factory `json:"factories"`
	Count     int            `json:"count"`
}

// RestockResult wraps a restock request.
type RestockResult struct {
	Request *core.RestockRequest `json:"request"`
}

// RestockListResult wraps a listing of open restock requests.
type RestockListResult struct {
	Requests []core.RestockRequest `json:"requests"`
	Count    int                   `json:"count"`
}

// PurchaseOrderResult wraps a purchase order with its lines.
type PurchaseOrderResult struct {
	Order *core.PurchaseOrder `json:"order"`
}

// ArrivalResult reports the pallets created by one recorded arrival.
type ArrivalResult struct {
	PurchaseOrderID int   `json:"purchase_order_id"`
	PalletIDs       []int `json:"pallet_ids"`
}

// PalletResult wraps a single pallet or khatli unit.
type PalletResult struct {
	Pallet *core.Pallet `json:"pallet"`
}

// PalletListResult wraps a pallet listing.
type PalletListResult struct {
	Pallets []core.Pallet `json:"pallets"`
	Count   int           `json:"count"`
}

// ContainerResult wraps a container with its loaded units.
type ContainerResult struct {
	Container *core.Container `json:"container"`
}

// ContainerListResult wraps a container listing.
type ContainerListResult struct {
	Containers []core.Container `json:"containers"`
	Count      int              `json:"count"`
}

// DispatchResult wraps a dispatch order with items, summary and history.
type DispatchResult struct {
	Dispatch *core.DispatchOrder `json:"dispatch"`
}

// DispatchListResult wraps a dispatch order listing.
type DispatchListResult struct {
	Dispatches []core.DispatchOrder `json:"dispatches"`
	Count      int                  `json:"count"`
}

// BookingResult wraps a booking with its lines and references.
type BookingResult struct {
	Booking *core.Booking `json:"booking"`
}

// BookingListResult wraps a booking listing.
type BookingListResult struct {
	Bookings []core.Booking `json:"bookings"`
	Count    int            `json:"count"`
}

// BookingDispatchResult wraps a booking-based dispatch.
type BookingDispatchResult struct {
	Dispatch *core.BookingDispatch `json:"dispatch"`
}

// BookingDispatchListResult wraps a booking's dispatch listing.
type BookingDispatchListResult struct {
	Dispatches []core.BookingDispatch `json:"dispatches"`
	Count      int                    `json:"count"`
}

// StockCheckResult wraps a read-only reconciliation check.
type StockCheckResult struct {
	Issues []core.StockIssue `json:"issues"`
	Count  int               `json:"count"`
}
