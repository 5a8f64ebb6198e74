package core

import (
	"time"

	"github.com/shopspring/decimal"
)

// UnitType distinguishes the two physical packing units. A Khatli is a
// smaller bundle than a Pallet but is tracked identically.
type UnitType string

const (
	UnitPallet UnitType = "Pallet"
	UnitKhatli UnitType = "Khatli"
)

// PalletStatus is the lifecycle state of one physical pallet/khatli unit.
type PalletStatus string

const (
	PalletInProduction      PalletStatus = "InProduction"
	PalletInFactoryStock    PalletStatus = "InFactoryStock"
	PalletLoadedInContainer PalletStatus = "LoadedInContainer"
	PalletDispatched        PalletStatus = "Dispatched"
	PalletInTransit         PalletStatus = "InTransit"
	PalletDelivered         PalletStatus = "Delivered"
)

type ContainerStatus string

const (
	ContainerEmpty           ContainerStatus = "Empty"
	ContainerLoading         ContainerStatus = "Loading"
	ContainerLoaded          ContainerStatus = "Loaded"
	ContainerReadyToDispatch ContainerStatus = "Ready to Dispatch"
	ContainerDispatched      ContainerStatus = "Dispatched"
	ContainerInTransit       ContainerStatus = "In Transit"
	ContainerDelivered       ContainerStatus = "Delivered"
)

// DispatchStatus is the status of a container-based dispatch order.
type DispatchStatus string

const (
	DispatchPending   DispatchStatus = "Pending"
	DispatchReady     DispatchStatus = "Ready"
	DispatchInTransit DispatchStatus = "In Transit"
	DispatchDelivered DispatchStatus = "Delivered"
	DispatchCompleted DispatchStatus = "Completed"
	DispatchCancelled DispatchStatus = "Cancelled"
)

// dispatchTransitions is the full edge table of the container dispatch state
// machine. Anything not listed fails with ErrInvalidTransition.
var dispatchTransitions = map[DispatchStatus][]DispatchStatus{
	DispatchPending:   {DispatchReady, DispatchCancelled},
	DispatchReady:     {DispatchInTransit, DispatchPending},
	DispatchInTransit: {DispatchDelivered},
	DispatchDelivered: {DispatchCompleted},
	DispatchCancelled: {DispatchPending},
	DispatchCompleted: {},
}

// CanTransition reports whether from → to is a legal dispatch status edge.
func CanTransition(from, to DispatchStatus) bool {
	for _, next := range dispatchTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// BookingDispatchStatus is the status of a booking-based (Dubai) dispatch.
type BookingDispatchStatus string

const (
	BookingDispatchPending  BookingDispatchStatus = "Pending"
	BookingDispatchVerified BookingDispatchStatus = "Verified"
	BookingDispatchComplete BookingDispatchStatus = "Completed"
	BookingDispatchDisputed BookingDispatchStatus = "Disputed"
)

// bookingDispatchTransitions: Disputed is reachable before completion and can
// recover to Verified. None of these edges moves stock.
var bookingDispatchTransitions = map[BookingDispatchStatus][]BookingDispatchStatus{
	BookingDispatchPending:  {BookingDispatchVerified, BookingDispatchDisputed},
	BookingDispatchVerified: {BookingDispatchComplete, BookingDispatchDisputed},
	BookingDispatchDisputed: {BookingDispatchVerified},
	BookingDispatchComplete: {},
}

// CanTransitionBookingDispatch reports whether from → to is a legal booking
// dispatch status edge.
func CanTransitionBookingDispatch(from, to BookingDispatchStatus) bool {
	for _, next := range bookingDispatchTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

type BookingStatus string

const (
	BookingBooked              BookingStatus = "Booked"
	BookingPartiallyDispatched BookingStatus = "Partially Dispatched"
	BookingCompleted           BookingStatus = "Completed"
	BookingCancelled           BookingStatus = "Cancelled"
)

// Sequence prefixes for human-readable IDs (BK-00001, DO-00042, ...).
const (
	PrefixBooking         = "BK"
	PrefixDispatch        = "DO"
	PrefixBookingDispatch = "DD"
	PrefixPurchaseOrder   = "PO"
	PrefixRestockRequest  = "RR"
	PrefixTile            = "TL"
)

// Tile is a SKU. The six stock buckets are denormalized caches; pallet and
// booking rows are the truth they are reconciled against. At rest,
// AvailableStock = InFactoryStock − BookedStock.
type Tile struct {
	ID               int             `json:"id"`
	Code             string          `json:"code"`
	Name             string          `json:"name"`
	Size             string          `json:"size"`
	Surface          string          `json:"surface"`
	ConversionFactor decimal.Decimal `json:"conversion_factor"` // boxes → m²
	RestockThreshold int             `json:"restock_threshold"`

	AvailableStock  int `json:"available_stock"`
	BookedStock     int `json:"booked_stock"`
	InFactoryStock  int `json:"in_factory_stock"`
	InTransitStock  int `json:"in_transit_stock"`
	DeliveredStock  int `json:"delivered_stock"`
	RestockingStock int `json:"restocking_stock"`

	Deleted   bool      `json:"deleted,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// PhaseStock is one factory aggregate bucket (pallets/khatlis/boxes).
type PhaseStock struct {
	Pallets    int `json:"pallets"`
	Khatlis    int `json:"khatlis"`
	TotalBoxes int `json:"total_boxes"`
}

// Factory carries per-phase aggregates mirroring the pallets currently
// attributed to it. Pure cache: always re-derivable by summing pallet rows.
type Factory struct {
	ID   int    `json:"id"`
	Code string `json:"code"`
	Name string `json:"name"`
	City string `json:"city"`

	InFactoryStock  PhaseStock `json:"in_factory_stock"`
	DispatchedStock PhaseStock `json:"dispatched_stock"`
	InTransitStock  PhaseStock `json:"in_transit_stock"`
	DeliveredStock  PhaseStock `json:"delivered_stock"`

	CreatedAt time.Time `json:"created_at"`
}

// Pallet is one physical carrier of boxes of exactly one tile from exactly
// one factory. At most one container and one dispatch order may reference it.
type Pallet struct {
	ID              int          `json:"id"`
	UnitType        UnitType     `json:"unit_type"`
	TileID          int          `json:"tile_id"`
	TileName        string       `json:"tile_name,omitempty"` // joined
	FactoryID       int          `json:"factory_id"`
	PurchaseOrderID *int         `json:"purchase_order_id,omitempty"`
	BoxCount        int          `json:"box_count"`
	Status          PalletStatus `json:"status"`
	ContainerID     *int         `json:"container_id,omitempty"`
	DispatchOrderID *int         `json:"dispatch_order_id,omitempty"`
	CreatedAt       time.Time    `json:"created_at"`
	UpdatedAt       time.Time    `json:"updated_at"`
}

type Container struct {
	ID                 int             `json:"id"`
	ContainerNumber    string          `json:"container_number"`
	TruckNumber        string          `json:"truck_number"`
	FactoryID          int             `json:"factory_id"`
	Status             ContainerStatus `json:"status"`
	DispatchOrderID    *int            `json:"dispatch_order_id,omitempty"`
	DispatchedQuantity int             `json:"dispatched_quantity"`
	Pallets            []Pallet        `json:"pallets,omitempty"`
	Khatlis            []Pallet        `json:"khatlis,omitempty"`
	CreatedAt          time.Time       `json:"created_at"`
}

// ItemCount is the container's combined pallet+khatli item count.
func (c *Container) ItemCount() int {
	return len(c.Pallets) + len(c.Khatlis)
}

// DispatchItem is the denormalized snapshot of one pallet taken when its
// container was attached to a dispatch order.
type DispatchItem struct {
	ID          int      `json:"id"`
	ContainerID int      `json:"container_id"`
	ItemID      int      `json:"item_id"`
	ItemType    UnitType `json:"item_type"`
	TileID      int      `json:"tile_id"`
	TileName    string   `json:"tile_name"`
	BoxCount    int      `json:"box_count"`
}

// DispatchSummaryLine aggregates a dispatch order's items per tile.
type DispatchSummaryLine struct {
	TileID       int             `json:"tile_id"`
	TileName     string          `json:"tile_name"`
	Pallets      int             `json:"pallets"`
	Khatlis      int             `json:"khatlis"`
	TotalBoxes   int             `json:"total_boxes"`
	SquareMeters decimal.Decimal `json:"square_meters"`
}

type StatusChange struct {
	FromStatus string    `json:"from_status"`
	ToStatus   string    `json:"to_status"`
	Actor      string    `json:"actor"`
	Note       string    `json:"note,omitempty"`
	ChangedAt  time.Time `json:"changed_at"`
}

// DispatchOrder is a container-based shipment (India-side flow).
type DispatchOrder struct {
	ID             int                   `json:"id"`
	DispatchNumber string                `json:"dispatch_number"`
	Destination    string                `json:"destination"`
	VehicleNumber  string                `json:"vehicle_number"`
	Remarks        string                `json:"remarks"`
	Status         DispatchStatus        `json:"status"`
	Items          []DispatchItem        `json:"items"`
	StockSummary   []DispatchSummaryLine `json:"stock_summary"`
	StatusHistory  []StatusChange        `json:"status_history"`
	Deleted        bool                  `json:"deleted,omitempty"`
	DeleteReason   *string               `json:"delete_reason,omitempty"`
	CreatedAt      time.Time             `json:"created_at"`
	UpdatedAt      time.Time             `json:"updated_at"`
}

// BookingTile is one reserved line of a booking.
type BookingTile struct {
	ID       int    `json:"id"`
	TileID   int    `json:"tile_id"`
	TileName string `json:"tile_name"`
	Quantity int    `json:"quantity"`
}

type BookingImage struct {
	ID        int       `json:"id"`
	ImageRef  string    `json:"image_ref"`
	Processed bool      `json:"processed"`
	CreatedAt time.Time `json:"created_at"`
}

// Booking is a demand-side reservation against tile stock.
type Booking struct {
	ID                int            `json:"id"`
	BookingNumber     string         `json:"booking_number"`
	PartyName         string         `json:"party_name"`
	Notes             string         `json:"notes"`
	Status            BookingStatus  `json:"status"`
	Tiles             []BookingTile  `json:"tiles"`
	UnprocessedImages []BookingImage `json:"unprocessed_images,omitempty"`
	DispatchOrderIDs  []int          `json:"dispatch_order_ids,omitempty"`
	CreatedAt         time.Time      `json:"created_at"`
	UpdatedAt         time.Time      `json:"updated_at"`
}

type BookingDispatchItem struct {
	ID       int    `json:"id"`
	TileID   int    `json:"tile_id"`
	TileName string `json:"tile_name"`
	Quantity int    `json:"quantity"`
}

// BookingDispatch fulfills a booking directly from available stock,
// bypassing containers (Dubai-side flow). Stock moves only at
// create/update/delete time, never on status change.
type BookingDispatch struct {
	ID             int                   `json:"id"`
	DispatchNumber string                `json:"dispatch_number"`
	BookingID      int                   `json:"booking_id"`
	Remarks        string                `json:"remarks"`
	Status         BookingDispatchStatus `json:"status"`
	Items          []BookingDispatchItem `json:"items"`
	StatusHistory  []StatusChange        `json:"status_history"`
	CreatedAt      time.Time             `json:"created_at"`
	UpdatedAt      time.Time             `json:"updated_at"`
}

// RestockRequest is a demand signal for more stock of one tile, resolved via
// a purchase order.
type RestockRequest struct {
	ID            int       `json:"id"`
	RequestNumber string    `json:"request_number"`
	TileID        int       `json:"tile_id"`
	TileName      string    `json:"tile_name,omitempty"`
	Quantity      int       `json:"quantity"`
	Status        string    `json:"status"` // Open | Ordered | Closed
	Notes         string    `json:"notes"`
	CreatedAt     time.Time `json:"created_at"`
}

type PurchaseOrderLine struct {
	ID           int    `json:"id"`
	TileID       int    `json:"tile_id"`
	TileName     string `json:"tile_name,omitempty"`
	OrderedBoxes int    `json:"ordered_boxes"`
	ArrivedBoxes int    `json:"arrived_boxes"`
}

// PurchaseOrder is an order placed with a factory; arrivals against it
// create pallet units.
type PurchaseOrder struct {
	ID        int                 `json:"id"`
	PONumber  string              `json:"po_number"`
	FactoryID int                 `json:"factory_id"`
	Status    string              `json:"status"` // Open | Completed | Cancelled
	Lines     []PurchaseOrderLine `json:"lines"`
	CreatedAt time.Time           `json:"created_at"`
}
