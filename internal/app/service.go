package app

import (
	"context"

	"tiletrack/internal/core"
)

// ApplicationService is the single interface all adapters (CLI, Web) call.
// It decouples presentation from business logic. Implementations must contain
// no fmt.Println and no display logic of any kind.
type ApplicationService interface {
	// CreateTile registers a new SKU with its conversion factor and
	// restock threshold.
	CreateTile(ctx context.Context, req CreateTileRequest) (*TileResult, error)

	// GetTile returns one tile by numeric ID or tile code.
	GetTile(ctx context.Context, ref string) (*TileResult, error)

	// ListTiles returns all non-deleted tiles with their stock buckets.
	ListTiles(ctx context.Context) (*TileListResult, error)

	// ListLowStock returns tiles at or below their restock threshold.
	ListLowStock(ctx context.Context) (*TileListResult, error)

	// DeleteTile soft-deletes a tile that holds no live stock.
	DeleteTile(ctx context.Context, tileID int) error

	// CreateFactory registers a production site.
	CreateFactory(ctx context.Context, req CreateFactoryRequest) (*FactoryResult, error)

	// GetFactory returns one factory with its aggregate stock.
	GetFactory(ctx context.Context, factoryID int) (*FactoryResult, error)

	// ListFactories returns all factories with their aggregate stock.
	ListFactories(ctx context.Context) (*FactoryListResult, error)

	// CreateRestockRequest files a demand signal for a tile.
	CreateRestockRequest(ctx context.Context, req CreateRestockRequest) (*RestockResult, error)

	// ListOpenRestockRequests returns demand not yet placed on an order.
	ListOpenRestockRequests(ctx context.Context) (*RestockListResult, error)

	// CreatePurchaseOrder places open restock demand with a factory.
	CreatePurchaseOrder(ctx context.Context, req CreatePurchaseOrderRequest) (*PurchaseOrderResult, error)

	// GetPurchaseOrder returns one purchase order with its lines.
	GetPurchaseOrder(ctx context.Context, poID int) (*PurchaseOrderResult, error)

	// RecordArrival turns produced units into factory-stock pallets.
	RecordArrival(ctx context.Context, req RecordArrivalRequest) (*ArrivalResult, error)

	// CreatePallet records a manually counted unit into factory stock.
	CreatePallet(ctx context.Context, req CreatePalletRequest) (*PalletResult, error)

	// GetPallet returns one pallet or khatli unit.
	GetPallet(ctx context.Context, palletID int) (*PalletResult, error)

	// ListPallets returns units matching the filter fields that are set.
	ListPallets(ctx context.Context, req ListPalletsRequest) (*PalletListResult, error)

	// UpdatePallet changes a factory-stock unit's box count.
	UpdatePallet(ctx context.Context, palletID, boxCount int) (*PalletResult, error)

	// DeletePallet removes a factory-stock unit and its quantities.
	DeletePallet(ctx context.Context, palletID int) error

	// CreateLoadingPlan opens a container and loads pallets into it.
	CreateLoadingPlan(ctx context.Context, req CreateLoadingPlanRequest) (*ContainerResult, error)

	// GetContainer returns one container with its loaded units.
	GetContainer(ctx context.Context, containerID int) (*ContainerResult, error)

	// ListContainers returns containers, optionally for one factory.
	ListContainers(ctx context.Context, factoryID int) (*ContainerListResult, error)

	// AddContainerPallet loads one more factory-stock pallet.
	AddContainerPallet(ctx context.Context, containerID, palletID int) error

	// RemoveContainerPallet unloads one pallet back into factory stock.
	RemoveContainerPallet(ctx context.Context, containerID, palletID int) error

	// MarkContainerReady closes loading and flags the container dispatchable.
	MarkContainerReady(ctx context.Context, containerID int) error

	// DeleteContainer soft-deletes an unattached container, unloading it first.
	DeleteContainer(ctx context.Context, containerID int) error

	// CreateDispatch attaches loaded containers to a new Pending order.
	CreateDispatch(ctx context.Context, req CreateDispatchRequest) (*DispatchResult, error)

	// GetDispatch returns one dispatch order with items, summary and history.
	GetDispatch(ctx context.Context, dispatchID int) (*DispatchResult, error)

	// ListDispatches returns dispatch orders, optionally by status.
	ListDispatches(ctx context.Context, status string) (*DispatchListResult, error)

	// EditDispatch adds and removes containers on a Pending order.
	EditDispatch(ctx context.Context, req EditDispatchRequest) (*DispatchResult, error)

	// AdvanceDispatch moves a dispatch order along its status machine.
	AdvanceDispatch(ctx context.Context, req AdvanceDispatchRequest) (*DispatchResult, error)

	// DeleteDispatch soft-deletes a Pending or Cancelled order; the
	// reason is mandatory.
	DeleteDispatch(ctx context.Context, dispatchID int, reason, actor string) error

	// CreateBooking reserves tile stock for a party, all lines or none.
	CreateBooking(ctx context.Context, req CreateBookingRequest) (*BookingResult, error)

	// GetBooking returns one booking with lines, images and dispatch refs.
	GetBooking(ctx context.Context, bookingID int) (*BookingResult, error)

	// ListBookings returns bookings, optionally by status.
	ListBookings(ctx context.Context, status string) (*BookingListResult, error)

	// CancelBooking releases an undispatched booking's reservation.
	CancelBooking(ctx context.Context, bookingID int) error

	// AttachBookingImage files dispatch evidence against a booking.
	AttachBookingImage(ctx context.Context, bookingID int, imageRef string) (*BookingResult, error)

	// CreateBookingDispatch consumes part of a booking's reservation.
	CreateBookingDispatch(ctx context.Context, req CreateBookingDispatchRequest) (*BookingDispatchResult, error)

	// GetBookingDispatch returns one booking dispatch with its history.
	GetBookingDispatch(ctx context.Context, dispatchID int) (*BookingDispatchResult, error)

	// ListBookingDispatches returns a booking's non-deleted dispatches.
	ListBookingDispatches(ctx context.Context, bookingID int) (*BookingDispatchListResult, error)

	// UpdateBookingDispatch replaces a dispatch's item list.
	UpdateBookingDispatch(ctx context.Context, req UpdateBookingDispatchRequest) (*BookingDispatchResult, error)

	// DeleteBookingDispatch reverts a dispatch's consumption.
	DeleteBookingDispatch(ctx context.Context, dispatchID int, actor string) error

	// ChangeBookingDispatchStatus walks the verification flow.
	ChangeBookingDispatchStatus(ctx context.Context, req ChangeBookingDispatchStatusRequest) (*BookingDispatchResult, error)

	// CheckStock reports tile counter drift without writing.
	CheckStock(ctx context.Context) (*StockCheckResult, error)

	// ReconcileStock repairs tile counter drift from ground truth.
	ReconcileStock(ctx context.Context) (*core.ReconcileReport, error)
}
