package app

import (
	"context"
	"fmt"
	"strconv"

	"tiletrack/internal/core"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

type appService struct {
	validate        *validator.Validate
	tiles           core.TileService
	purchases       core.PurchaseService
	pallets         core.PalletService
	containers      core.ContainerService
	dispatches      core.DispatchService
	bookings        core.BookingService
	bookingDispatch core.BookingDispatchService
	reconcile       core.ReconcileService
}

// Services bundles the core services an appService delegates to.
type Services struct {
	Tiles           core.TileService
	Purchases       core.PurchaseService
	Pallets         core.PalletService
	Containers      core.ContainerService
	Dispatches      core.DispatchService
	Bookings        core.BookingService
	BookingDispatch core.BookingDispatchService
	Reconcile       core.ReconcileService
}

// NewAppService constructs an appService that satisfies ApplicationService.
func NewAppService(svcs Services) ApplicationService {
	return &appService{
		validate:        validator.New(validator.WithRequiredStructEnabled()),
		tiles:           svcs.Tiles,
		purchases:       svcs.Purchases,
		pallets:         svcs.Pallets,
		containers:      svcs.Containers,
		dispatches:      svcs.Dispatches,
		bookings:        svcs.Bookings,
		bookingDispatch: svcs.BookingDispatch,
		reconcile:       svcs.Reconcile,
	}
}

// check runs struct validation and maps failures onto the core error taxonomy
// so adapters classify them like any other validation failure.
func (s *appService) check(req any) error {
	if err := s.validate.Struct(req); err != nil {
		return fmt.Errorf("%s: %w", err.Error(), core.ErrValidation)
	}
	return nil
}

func (s *appService) CreateTile(ctx context.Context, req CreateTileRequest) (*TileResult, error) {
	if err := s.check(req); err != nil {
		return nil, err
	}
	factor, err := decimal.NewFromString(req.ConversionFactor)
	if err != nil {
		return nil, fmt.Errorf("conversion factor %q is not a decimal: %w", req.ConversionFactor, core.ErrValidation)
	}
	if !factor.IsPositive() {
		return nil, fmt.Errorf("conversion factor must be positive: %w", core.ErrValidation)
	}
	tile, err := s.tiles.CreateTile(ctx, req.Name, req.Size, req.Surface, factor, req.RestockThreshold)
	if err != nil {
		return nil, err
	}
	return &TileResult{Tile: tile}, nil
}

// GetTile accepts a numeric ID or a tile code.
func (s *appService) GetTile(ctx context.Context, ref string) (*TileResult, error) {
	var tile *core.Tile
	var err error
	if id, convErr := strconv.Atoi(ref); convErr == nil {
		tile, err = s.tiles.GetTile(ctx, id)
	} else {
		tile, err = s.tiles.GetTileByCode(ctx, ref)
	}
	if err != nil {
		return nil, err
	}
	return &TileResult{Tile: tile}, nil
}

func (s *appService) ListTiles(ctx context.Context) (*TileListResult, error) {
	tiles, err := s.tiles.ListTiles(ctx)
	if err != nil {
		return nil, err
	}
	return &TileListResult{Tiles: tiles, Count: len(tiles)}, nil
}

func (s *appService) ListLowStock(ctx context.Context) (*TileListResult, error) {
	tiles, err := s.tiles.ListLowStock(ctx)
	if err != nil {
		return nil, err
	}
	return &TileListResult{Tiles: tiles, Count: len(tiles)}, nil
}

func (s *appService) DeleteTile(ctx context.Context, tileID int) error {
	return s.tiles.SoftDeleteTile(ctx, tileID)
}

func (s *appService) CreateFactory(ctx context.Context, req CreateFactoryRequest) (*FactoryResult, error) {
	if err := s.check(req); err != nil {
		return nil, err
	}
	factory, err := s.tiles.CreateFactory(ctx, req.Code, req.Name, req.City)
	if err != nil {
		return nil, err
	}
	return &FactoryResult{Factory: factory}, nil
}

func (s *appService) GetFactory(ctx context.Context, factoryID int) (*FactoryResult, error) {
	factory, err := s.tiles.GetFactory(ctx, factoryID)
	if err != nil {
		return nil, err
	}
	return &FactoryResult{Factory: factory}, nil
}

func (s *appService) ListFactories(ctx context.Context) (*FactoryListResult, error) {
	factories, err := s.tiles.ListFactories(ctx)
	if err != nil {
		return nil, err
	}
	return &FactoryListResult{Factories: factories, Count: len(factories)}, nil
}

func (s *appService) CreateRestockRequest(ctx context.Context, req CreateRestockRequest) (*RestockResult, error) {
	if err := s.check(req); err != nil {
		return nil, err
	}
	request, err := s.purchases.CreateRestockRequest(ctx, req.TileID, req.Quantity, req.Notes)
	if err != nil {
		return nil, err
	}
	return &RestockResult{Request: request}, nil
}

func (s *appService) ListOpenRestockRequests(ctx context.Context) (*RestockListResult, error) {
	requests, err := s.purchases.ListOpenRestockRequests(ctx)
	if err != nil {
		return nil, err
	}
	return &RestockListResult{Requests: requests, Count: len(requests)}, nil
}

func (s *appService) CreatePurchaseOrder(ctx context.Context, req CreatePurchaseOrderRequest) (*PurchaseOrderResult, error) {
	if err := s.check(req); err != nil {
		return nil, err
	}
	lines := make([]core.PurchaseOrderLineInput, len(req.Lines))
	for i, l := range req.Lines {
		lines[i] = core.PurchaseOrderLineInput{TileID: l.TileID, OrderedBoxes: l.OrderedBoxes}
	}
	order, err := s.purchases.CreatePurchaseOrder(ctx, req.FactoryID, lines, req.RestockRequestIDs)
	if err != nil {
		return nil, err
	}
	return &PurchaseOrderResult{Order: order}, nil
}

func (s *appService) GetPurchaseOrder(ctx context.Context, poID int) (*PurchaseOrderResult, error) {
	order, err := s.purchases.GetPurchaseOrder(ctx, poID)
	if err != nil {
		return nil, err
	}
	return &PurchaseOrderResult{Order: order}, nil
}

func (s *appService) RecordArrival(ctx context.Context, req RecordArrivalRequest) (*ArrivalResult, error) {
	if err := s.check(req); err != nil {
		return nil, err
	}
	palletIDs, err := s.purchases.RecordArrival(ctx, req.PurchaseOrderID, req.TileID,
		core.UnitType(req.UnitType), req.Units, req.BoxesPerUnit)
	if err != nil {
		return nil, err
	}
	return &ArrivalResult{PurchaseOrderID: req.PurchaseOrderID, PalletIDs: palletIDs}, nil
}

func (s *appService) CreatePallet(ctx context.Context, req CreatePalletRequest) (*PalletResult, error) {
	if err := s.check(req); err != nil {
		return nil, err
	}
	pallet, err := s.pallets.CreatePallet(ctx, core.UnitType(req.UnitType), req.TileID, req.FactoryID, req.BoxCount)
	if err != nil {
		return nil, err
	}
	return &PalletResult{Pallet: pallet}, nil
}

func (s *appService) GetPallet(ctx context.Context, palletID int) (*PalletResult, error) {
	pallet, err := s.pallets.GetPallet(ctx, palletID)
	if err != nil {
		return nil, err
	}
	return &PalletResult{Pallet: pallet}, nil
}

func (s *appService) ListPallets(ctx context.Context, req ListPalletsRequest) (*PalletListResult, error) {
	filter := core.PalletFilter{
		TileID:    req.TileID,
		FactoryID: req.FactoryID,
		Status:    core.PalletStatus(req.Status),
	}
	pallets, err := s.pallets.ListPallets(ctx, filter)
	if err != nil {
		return nil, err
	}
	return &PalletListResult{Pallets: pallets, Count: len(pallets)}, nil
}

func (s *appService) UpdatePallet(ctx context.Context, palletID, boxCount int) (*PalletResult, error) {
	pallet, err := s.pallets.UpdateBoxCount(ctx, palletID, boxCount)
	if err != nil {
		return nil, err
	}
	return &PalletResult{Pallet: pallet}, nil
}

func (s *appService) DeletePallet(ctx context.Context, palletID int) error {
	return s.pallets.DeletePallet(ctx, palletID)
}

func (s *appService) CreateLoadingPlan(ctx context.Context, req CreateLoadingPlanRequest) (*ContainerResult, error) {
	if err := s.check(req); err != nil {
		return nil, err
	}
	container, err := s.containers.CreateLoadingPlan(ctx, req.ContainerNumber, req.TruckNumber, req.FactoryID, req.PalletIDs)
	if err != nil {
		return nil, err
	}
	return &ContainerResult{Container: container}, nil
}

func (s *appService) GetContainer(ctx context.Context, containerID int) (*ContainerResult, error) {
	container, err := s.containers.GetContainer(ctx, containerID)
	if err != nil {
		return nil, err
	}
	return &ContainerResult{Container: container}, nil
}

func (s *appService) ListContainers(ctx context.Context, factoryID int) (*ContainerListResult, error) {
	containers, err := s.containers.ListContainers(ctx, factoryID)
	if err != nil {
		return nil, err
	}
	return &ContainerListResult{Containers: containers, Count: len(containers)}, nil
}

func (s *appService) AddContainerPallet(ctx context.Context, containerID, palletID int) error {
	return s.containers.AddPallet(ctx, containerID, palletID)
}

func (s *appService) RemoveContainerPallet(ctx context.Context, containerID, palletID int) error {
	return s.containers.RemovePallet(ctx, containerID, palletID)
}

func (s *appService) MarkContainerReady(ctx context.Context, containerID int) error {
	return s.containers.MarkReady(ctx, containerID)
}

func (s *appService) DeleteContainer(ctx context.Context, containerID int) error {
	return s.containers.SoftDeleteContainer(ctx, containerID)
}

func (s *appService) CreateDispatch(ctx context.Context, req CreateDispatchRequest) (*DispatchResult, error) {
	if err := s.check(req); err != nil {
		return nil, err
	}
	dispatch, err := s.dispatches.CreateDispatch(ctx, req.Destination, req.VehicleNumber, req.Remarks, req.ContainerIDs, req.Actor)
	if err != nil {
		return nil, err
	}
	return &DispatchResult{Dispatch: dispatch}, nil
}

func (s *appService) GetDispatch(ctx context.Context, dispatchID int) (*DispatchResult, error) {
	dispatch, err := s.dispatches.GetDispatch(ctx, dispatchID)
	if err != nil {
		return nil, err
	}
	return &DispatchResult{Dispatch: dispatch}, nil
}

func (s *appService) ListDispatches(ctx context.Context, status string) (*DispatchListResult, error) {
	dispatches, err := s.dispatches.ListDispatches(ctx, core.DispatchStatus(status))
	if err != nil {
		return nil, err
	}
	return &DispatchListResult{Dispatches: dispatches, Count: len(dispatches)}, nil
}

func (s *appService) EditDispatch(ctx context.Context, req EditDispatchRequest) (*DispatchResult, error) {
	if err := s.check(req); err != nil {
		return nil, err
	}
	dispatch, err := s.dispatches.EditContainers(ctx, req.DispatchID, req.AddIDs, req.RemoveIDs)
	if err != nil {
		return nil, err
	}
	return &DispatchResult{Dispatch: dispatch}, nil
}

func (s *appService) AdvanceDispatch(ctx context.Context, req AdvanceDispatchRequest) (*DispatchResult, error) {
	if err := s.check(req); err != nil {
		return nil, err
	}
	dispatch, err := s.dispatches.AdvanceStatus(ctx, req.DispatchID, core.DispatchStatus(req.ToStatus), req.Actor, req.Note)
	if err != nil {
		return nil, err
	}
	return &DispatchResult{Dispatch: dispatch}, nil
}

func (s *appService) DeleteDispatch(ctx context.Context, dispatchID int, reason, actor string) error {
	return s.dispatches.SoftDeleteDispatch(ctx, dispatchID, reason, actor)
}

func (s *appService) CreateBooking(ctx context.Context, req CreateBookingRequest) (*BookingResult, error) {
	if err := s.check(req); err != nil {
		return nil, err
	}
	items := make([]core.BookingItemInput, len(req.Items))
	for i, it := range req.Items {
		items[i] = core.BookingItemInput{TileID: it.TileID, Quantity: it.Quantity}
	}
	booking, err := s.bookings.CreateBooking(ctx, req.PartyName, req.Notes, items)
	if err != nil {
		return nil, err
	}
	return &BookingResult{Booking: booking}, nil
}

func (s *appService) GetBooking(ctx context.Context, bookingID int) (*BookingResult, error) {
	booking, err := s.bookings.GetBooking(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	return &BookingResult{Booking: booking}, nil
}

func (s *appService) ListBookings(ctx context.Context, status string) (*BookingListResult, error) {
	bookings, err := s.bookings.ListBookings(ctx, core.BookingStatus(status))
	if err != nil {
		return nil, err
	}
	return &BookingListResult{Bookings: bookings, Count: len(bookings)}, nil
}

func (s *appService) CancelBooking(ctx context.Context, bookingID int) error {
	return s.bookings.CancelBooking(ctx, bookingID)
}

func (s *appService) AttachBookingImage(ctx context.Context, bookingID int, imageRef string) (*BookingResult, error) {
	if _, err := s.bookings.AttachImage(ctx, bookingID, imageRef); err != nil {
		return nil, err
	}
	return s.GetBooking(ctx, bookingID)
}

func (s *appService) CreateBookingDispatch(ctx context.Context, req CreateBookingDispatchRequest) (*BookingDispatchResult, error) {
	if err := s.check(req); err != nil {
		return nil, err
	}
	items := make([]core.BookingDispatchItemInput, len(req.Items))
	for i, it := range req.Items {
		items[i] = core.BookingDispatchItemInput{TileID: it.TileID, Quantity: it.Quantity}
	}
	dispatch, err := s.bookingDispatch.CreateBookingDispatch(ctx, req.BookingID, req.Remarks, items, req.ImageID, req.Actor)
	if err != nil {
		return nil, err
	}
	return &BookingDispatchResult{Dispatch: dispatch}, nil
}

func (s *appService) GetBookingDispatch(ctx context.Context, dispatchID int) (*BookingDispatchResult, error) {
	dispatch, err := s.bookingDispatch.GetBookingDispatch(ctx, dispatchID)
	if err != nil {
		return nil, err
	}
	return &BookingDispatchResult{Dispatch: dispatch}, nil
}

func (s *appService) ListBookingDispatches(ctx context.Context, bookingID int) (*BookingDispatchListResult, error) {
	dispatches, err := s.bookingDispatch.ListBookingDispatches(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	return &BookingDispatchListResult{Dispatches: dispatches, Count: len(dispatches)}, nil
}

func (s *appService) UpdateBookingDispatch(ctx context.Context, req UpdateBookingDispatchRequest) (*BookingDispatchResult, error) {
	if err := s.check(req); err != nil {
		return nil, err
	}
	items := make([]core.BookingDispatchItemInput, len(req.Items))
	for i, it := range req.Items {
		items[i] = core.BookingDispatchItemInput{TileID: it.TileID, Quantity: it.Quantity}
	}
	dispatch, err := s.bookingDispatch.UpdateItems(ctx, req.DispatchID, items)
	if err != nil {
		return nil, err
	}
	return &BookingDispatchResult{Dispatch: dispatch}, nil
}

func (s *appService) DeleteBookingDispatch(ctx context.Context, dispatchID int, actor string) error {
	return s.bookingDispatch.DeleteBookingDispatch(ctx, dispatchID, actor)
}

func (s *appService) ChangeBookingDispatchStatus(ctx context.Context, req ChangeBookingDispatchStatusRequest) (*BookingDispatchResult, error) {
	if err := s.check(req); err != nil {
		return nil, err
	}
	dispatch, err := s.bookingDispatch.ChangeStatus(ctx, req.DispatchID, core.BookingDispatchStatus(req.ToStatus), req.Actor, req.Note)
	if err != nil {
		return nil, err
	}
	return &BookingDispatchResult{Dispatch: dispatch}, nil
}

func (s *appService) CheckStock(ctx context.Context) (*StockCheckResult, error) {
	issues, err := s.reconcile.CheckStock(ctx)
	if err != nil {
		return nil, err
	}
	return &StockCheckResult{Issues: issues, Count: len(issues)}, nil
}

func (s *appService) ReconcileStock(ctx context.Context) (*core.ReconcileReport, error) {
	return s.reconcile.ReconcileStock(ctx)
}
