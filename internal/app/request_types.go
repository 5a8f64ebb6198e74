package app

// CreateTileRequest is the input for registering a new SKU.
type CreateTileRequest struct {
	Name             string `json:"name" validate:"required"`
	Size             string `json:"size" validate:"required"`
	Surface          string `json:"surface"`
	ConversionFactor string `json:"conversion_factor" validate:"required"` // m² per box, decimal string
	RestockThreshold int    `json:"restock_threshold" validate:"gte=0"`
}

// CreateFactoryRequest is the input for registering a production site.
type CreateFactoryRequest struct {
	Code string `json:"code" validate:"required"`
	Name string `json:"name" validate:"required"`
	City string `json:"city"`
}

// CreateRestockRequest is the input for filing a demand signal.
type CreateRestockRequest struct {
	TileID   int    `json:"tile_id" validate:"required"`
	Quantity int    `json:"quantity" validate:"gt=0"`
	Notes    string `json:"notes"`
}

// PurchaseLineInput is a single ordered line of a purchase order.
type PurchaseLineInput struct {
	TileID       int `json:"tile_id" validate:"required"`
	OrderedBoxes int `json:"ordered_boxes" validate:"gt=0"`
}

// CreatePurchaseOrderRequest is the input for placing a purchase order.
type CreatePurchaseOrderRequest struct {
	FactoryID         int                 `json:"factory_id" validate:"required"`
	Lines             []PurchaseLineInput `json:"lines" validate:"required,min=1,dive"`
	RestockRequestIDs []int               `json:"restock_request_ids"`
}

// RecordArrivalRequest is the input for recording produced units.
type RecordArrivalRequest struct {
	PurchaseOrderID int    `json:"purchase_order_id" validate:"required"`
	TileID          int    `json:"tile_id" validate:"required"`
	UnitType        string `json:"unit_type" validate:"required,oneof=Pallet Khatli"`
	Units           int    `json:"units" validate:"gt=0"`
	BoxesPerUnit    int    `json:"boxes_per_unit" validate:"gt=0"`
}

// CreatePalletRequest is the input for a manually counted unit.
type CreatePalletRequest struct {
	UnitType  string `json:"unit_type" validate:"required,oneof=Pallet Khatli"`
	TileID    int    `json:"tile_id" validate:"required"`
	FactoryID int    `json:"factory_id" validate:"required"`
	BoxCount  int    `json:"box_count" validate:"gt=0"`
}

// ListPalletsRequest filters a pallet listing; zero fields are ignored.
type ListPalletsRequest struct {
	TileID    int    `json:"tile_id"`
	FactoryID int    `json:"factory_id"`
	Status    string `json:"status"`
}

// CreateLoadingPlanRequest is the input for opening a container.
type CreateLoadingPlanRequest struct {
	ContainerNumber string `json:"container_number" validate:"required"`
	TruckNumber     string `json:"truck_number" validate:"required"`
	FactoryID       int    `json:"factory_id" validate:"required"`
	PalletIDs       []int  `json:"pallet_ids" validate:"required,min=1"`
}

// CreateDispatchRequest is the input for a container-based dispatch order.
type CreateDispatchRequest struct {
	Destination   string `json:"destination" validate:"required"`
	VehicleNumber string `json:"vehicle_number"`
	Remarks       string `json:"remarks"`
	ContainerIDs  []int  `json:"container_ids" validate:"required,min=1"`
	Actor         string `json:"actor"`
}

// EditDispatchRequest adds and removes containers on a Pending order.
type EditDispatchRequest struct {
	DispatchID   int   `json:"dispatch_id" validate:"required"`
	AddIDs       []int `json:"add_container_ids"`
	RemoveIDs    []int `json:"remove_container_ids"`
}

// AdvanceDispatchRequest moves a dispatch order to a new status.
type AdvanceDispatchRequest struct {
	DispatchID int    `json:"dispatch_id" validate:"required"`
	ToStatus   string `json:"to_status" validate:"required"`
	Actor      string `json:"actor"`
	Note       string `json:"note"`
}

// BookingLineInput is a single reserved line of a booking.
type BookingLineInput struct {
	TileID   int `json:"tile_id" validate:"required"`
	Quantity int `json:"quantity" validate:"gt=0"`
}

// CreateBookingRequest is the input for reserving tile stock.
type CreateBookingRequest struct {
	PartyName string             `json:"party_name" validate:"required"`
	Notes     string             `json:"notes"`
	Items     []BookingLineInput `json:"items" validate:"required,min=1,dive"`
}

// BookingDispatchLineInput is a single (tile, quantity) dispatch line.
type BookingDispatchLineInput struct {
	TileID   int `json:"tile_id" validate:"required"`
	Quantity int `json:"quantity" validate:"gt=0"`
}

// CreateBookingDispatchRequest consumes part of a booking's reservation.
type CreateBookingDispatchRequest struct {
	BookingID int                        `json:"booking_id" validate:"required"`
	Remarks   string                     `json:"remarks"`
	Items     []BookingDispatchLineInput `json:"items" validate:"required,min=1,dive"`
	ImageID   int                        `json:"image_id"`
	Actor     string                     `json:"actor"`
}

// UpdateBookingDispatchRequest replaces a dispatch's item list.
type UpdateBookingDispatchRequest struct {
	DispatchID int                        `json:"dispatch_id" validate:"required"`
	Items      []BookingDispatchLineInput `json:"items" validate:"required,min=1,dive"`
}

// ChangeBookingDispatchStatusRequest walks the verification flow.
type ChangeBookingDispatchStatusRequest struct {
	DispatchID int    `json:"dispatch_id" validate:"required"`
	ToStatus   string `json:"to_status" validate:"required"`
	Actor      string `json:"actor"`
	Note       string `json:"note"`
}
