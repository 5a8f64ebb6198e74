package web

import (
	"encoding/json"
	"net/http"
	"strconv"

	"tiletrack/internal/app"

	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"
)

// Handler holds the ApplicationService and the chi router.
type Handler struct {
	svc app.ApplicationService
	log logrus.FieldLogger
}

// NewHandler creates and wires the chi router with all routes.
func NewHandler(svc app.ApplicationService, log logrus.FieldLogger, allowedOrigins string) http.Handler {
	h := &Handler{svc: svc, log: log}

	r := chi.NewRouter()
	r.Use(RequestID)
	r.Use(Logger(log))
	r.Use(Recoverer(log))
	r.Use(CORS(allowedOrigins))

	r.Get("/api/health", h.health)

	r.Route("/api/tiles", func(r chi.Router) {
		r.Post("/", h.createTile)
		r.Get("/", h.listTiles)
		r.Get("/low-stock", h.listLowStock)
		r.Get("/{ref}", h.getTile)
		r.Delete("/{ref}", h.deleteTile)
	})

	r.Route("/api/factories", func(r chi.Router) {
		r.Post("/", h.createFactory)
		r.Get("/", h.listFactories)
		r.Get("/{id}", h.getFactory)
	})

	r.Route("/api/restock-requests", func(r chi.Router) {
		r.Post("/", h.createRestockRequest)
		r.Get("/", h.listOpenRestockRequests)
	})

	r.Route("/api/purchase-orders", func(r chi.Router) {
		r.Post("/", h.createPurchaseOrder)
		r.Get("/{id}", h.getPurchaseOrder)
		r.Post("/{id}/arrivals", h.recordArrival)
	})

	r.Route("/api/pallets", func(r chi.Router) {
		r.Post("/", h.createPallet)
		r.Get("/", h.listPallets)
		r.Get("/{id}", h.getPallet)
		r.Patch("/{id}", h.updatePallet)
		r.Delete("/{id}", h.deletePallet)
	})

	r.Route("/api/containers", func(r chi.Router) {
		r.Post("/", h.createLoadingPlan)
		r.Get("/", h.listContainers)
		r.Get("/{id}", h.getContainer)
		r.Delete("/{id}", h.deleteContainer)
		r.Post("/{id}/ready", h.markContainerReady)
		r.Put("/{id}/pallets/{palletID}", h.addContainerPallet)
		r.Delete("/{id}/pallets/{palletID}", h.removeContainerPallet)
	})

	r.Route("/api/dispatches", func(r chi.Router) {
		r.Post("/", h.createDispatch)
		r.Get("/", h.listDispatches)
		r.Get("/{id}", h.getDispatch)
		r.Patch("/{id}/containers", h.editDispatch)
		r.Post("/{id}/status", h.advanceDispatch)
		r.Delete("/{id}", h.deleteDispatch)
	})

	r.Route("/api/bookings", func(r chi.Router) {
		r.Post("/", h.createBooking)
		r.Get("/", h.listBookings)
		r.Get("/{id}", h.getBooking)
		r.Post("/{id}/cancel", h.cancelBooking)
		r.Post("/{id}/images", h.attachBookingImage)
	})

	r.Route("/api/booking-dispatches", func(r chi.Router) {
		r.Post("/", h.createBookingDispatch)
		r.Get("/", h.listBookingDispatches)
		r.Get("/{id}", h.getBookingDispatch)
		r.Put("/{id}/items", h.updateBookingDispatch)
		r.Post("/{id}/status", h.changeBookingDispatchStatus)
		r.Delete("/{id}", h.deleteBookingDispatch)
	})

	r.Route("/api/stock", func(r chi.Router) {
		r.Get("/check", h.checkStock)
		r.Post("/reconcile", h.reconcileStock)
	})

	return r
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]string{"status": "ok"})
}

// decode reads a JSON request body into v.
func decode(r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, 1<<20))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

// idParam parses a numeric URL parameter; 0 means absent or malformed.
func idParam(r *http.Request, name string) int {
	id, _ := strconv.Atoi(chi.URLParam(r, name))
	return id
}

func (h *Handler) createTile(w http.ResponseWriter, r *http.Request) {
	var req app.CreateTileRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, "invalid request body", "BAD_REQUEST", http.StatusBadRequest)
		return
	}
	res, err := h.svc.CreateTile(r.Context(), req)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, res)
}

func (h *Handler) listTiles(w http.ResponseWriter, r *http.Request) {
	res, err := h.svc.ListTiles(r.Context())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, res)
}

func (h *Handler) listLowStock(w http.ResponseWriter, r *http.Request) {
	res, err := h.svc.ListLowStock(r.Context())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, res)
}

func (h *Handler) getTile(w http.ResponseWriter, r *http.Request) {
	res, err := h.svc.GetTile(r.Context(), chi.URLParam(r, "ref"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, res)
}

func (h *Handler) deleteTile(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(chi.URLParam(r, "ref"))
	if err != nil {
		writeError(w, r, "tile id must be numeric", "BAD_REQUEST", http.StatusBadRequest)
		return
	}
	if err := h.svc.DeleteTile(r.Context(), id); err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, map[string]string{"status": "deleted"})
}

func (h *Handler) createFactory(w http.ResponseWriter, r *http.Request) {
	var req app.CreateFactoryRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, "invalid request body", "BAD_REQUEST", http.StatusBadRequest)
		return
	}
	res, err := h.svc.CreateFactory(r.Context(), req)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, res)
}

func (h *Handler) listFactories(w http.ResponseWriter, r *http.Request) {
	res, err := h.svc.ListFactories(r.Context())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, res)
}

func (h *Handler) getFactory(w http.ResponseWriter, r *http.Request) {
	res, err := h.svc.GetFactory(r.Context(), idParam(r, "id"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, res)
}

func (h *Handler) createRestockRequest(w http.ResponseWriter, r *http.Request) {
	var req app.CreateRestockRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, "invalid request body", "BAD_REQUEST", http.StatusBadRequest)
		return
	}
	res, err := h.svc.CreateRestockRequest(r.Context(), req)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, res)
}

func (h *Handler) listOpenRestockRequests(w http.ResponseWriter, r *http.Request) {
	res, err := h.svc.ListOpenRestockRequests(r.Context())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, res)
}

func (h *Handler) createPurchaseOrder(w http.ResponseWriter, r *http.Request) {
	var req app.CreatePurchaseOrderRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, "invalid request body", "BAD_REQUEST", http.StatusBadRequest)
		return
	}
	res, err := h.svc.CreatePurchaseOrder(r.Context(), req)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, res)
}

func (h *Handler) getPurchaseOrder(w http.ResponseWriter, r *http.Request) {
	res, err := h.svc.GetPurchaseOrder(r.Context(), idParam(r, "id"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, res)
}

func (h *Handler) recordArrival(w http.ResponseWriter, r *http.Request) {
	var req app.RecordArrivalRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, "invalid request body", "BAD_REQUEST", http.StatusBadRequest)
		return
	}
	req.PurchaseOrderID = idParam(r, "id")
	res, err := h.svc.RecordArrival(r.Context(), req)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, res)
}

func (h *Handler) createPallet(w http.ResponseWriter, r *http.Request) {
	var req app.CreatePalletRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, "invalid request body", "BAD_REQUEST", http.StatusBadRequest)
		return
	}
	res, err := h.svc.CreatePallet(r.Context(), req)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, res)
}

func (h *Handler) listPallets(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	req := app.ListPalletsRequest{Status: q.Get("status")}
	req.TileID, _ = strconv.Atoi(q.Get("tile_id"))
	req.FactoryID, _ = strconv.Atoi(q.Get("factory_id"))
	res, err := h.svc.ListPallets(r.Context(), req)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, res)
}

func (h *Handler) getPallet(w http.ResponseWriter, r *http.Request) {
	res, err := h.svc.GetPallet(r.Context(), idParam(r, "id"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, res)
}

func (h *Handler) updatePallet(w http.ResponseWriter, r *http.Request) {
	var req struct {
		BoxCount int `json:"box_count"`
	}
	if err := decode(r, &req); err != nil {
		writeError(w, r, "invalid request body", "BAD_REQUEST", http.StatusBadRequest)
		return
	}
	res, err := h.svc.UpdatePallet(r.Context(), idParam(r, "id"), req.BoxCount)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, res)
}

func (h *Handler) deletePallet(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.DeletePallet(r.Context(), idParam(r, "id")); err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, map[string]string{"status": "deleted"})
}

func (h *Handler) createLoadingPlan(w http.ResponseWriter, r *http.Request) {
	var req app.CreateLoadingPlanRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, "invalid request body", "BAD_REQUEST", http.StatusBadRequest)
		return
	}
	res, err := h.svc.CreateLoadingPlan(r.Context(), req)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, res)
}

func (h *Handler) listContainers(w http.ResponseWriter, r *http.Request) {
	factoryID, _ := strconv.Atoi(r.URL.Query().Get("factory_id"))
	res, err := h.svc.ListContainers(r.Context(), factoryID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, res)
}

func (h *Handler) getContainer(w http.ResponseWriter, r *http.Request) {
	res, err := h.svc.GetContainer(r.Context(), idParam(r, "id"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, res)
}

func (h *Handler) addContainerPallet(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.AddContainerPallet(r.Context(), idParam(r, "id"), idParam(r, "palletID")); err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, map[string]string{"status": "loaded"})
}

func (h *Handler) removeContainerPallet(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.RemoveContainerPallet(r.Context(), idParam(r, "id"), idParam(r, "palletID")); err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, map[string]string{"status": "removed"})
}

func (h *Handler) markContainerReady(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.MarkContainerReady(r.Context(), idParam(r, "id")); err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, map[string]string{"status": "ready"})
}

func (h *Handler) deleteContainer(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.DeleteContainer(r.Context(), idParam(r, "id")); err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, map[string]string{"status": "deleted"})
}

func (h *Handler) createDispatch(w http.ResponseWriter, r *http.Request) {
	var req app.CreateDispatchRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, "invalid request body", "BAD_REQUEST", http.StatusBadRequest)
		return
	}
	res, err := h.svc.CreateDispatch(r.Context(), req)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, res)
}

func (h *Handler) listDispatches(w http.ResponseWriter, r *http.Request) {
	res, err := h.svc.ListDispatches(r.Context(), r.URL.Query().Get("status"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, res)
}

func (h *Handler) getDispatch(w http.ResponseWriter, r *http.Request) {
	res, err := h.svc.GetDispatch(r.Context(), idParam(r, "id"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, res)
}

func (h *Handler) editDispatch(w http.ResponseWriter, r *http.Request) {
	var req app.EditDispatchRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, "invalid request body", "BAD_REQUEST", http.StatusBadRequest)
		return
	}
	req.DispatchID = idParam(r, "id")
	res, err := h.svc.EditDispatch(r.Context(), req)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, res)
}

func (h *Handler) advanceDispatch(w http.ResponseWriter, r *http.Request) {
	var req app.AdvanceDispatchRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, "invalid request body", "BAD_REQUEST", http.StatusBadRequest)
		return
	}
	req.DispatchID = idParam(r, "id")
	res, err := h.svc.AdvanceDispatch(r.Context(), req)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, res)
}

func (h *Handler) deleteDispatch(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Reason string `json:"reason"`
		Actor  string `json:"actor"`
	}
	if err := decode(r, &req); err != nil {
		writeError(w, r, "invalid request body", "BAD_REQUEST", http.StatusBadRequest)
		return
	}
	if err := h.svc.DeleteDispatch(r.Context(), idParam(r, "id"), req.Reason, req.Actor); err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, map[string]string{"status": "deleted"})
}

func (h *Handler) createBooking(w http.ResponseWriter, r *http.Request) {
	var req app.CreateBookingRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, "invalid request body", "BAD_REQUEST", http.StatusBadRequest)
		return
	}
	res, err := h.svc.CreateBooking(r.Context(), req)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, res)
}

func (h *Handler) listBookings(w http.ResponseWriter, r *http.Request) {
	res, err := h.svc.ListBookings(r.Context(), r.URL.Query().Get("status"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, res)
}

func (h *Handler) getBooking(w http.ResponseWriter, r *http.Request) {
	res, err := h.svc.GetBooking(r.Context(), idParam(r, "id"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, res)
}

func (h *Handler) cancelBooking(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.CancelBooking(r.Context(), idParam(r, "id")); err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, map[string]string{"status": "cancelled"})
}

func (h *Handler) attachBookingImage(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ImageRef string `json:"image_ref"`
	}
	if err := decode(r, &req); err != nil {
		writeError(w, r, "invalid request body", "BAD_REQUEST", http.StatusBadRequest)
		return
	}
	res, err := h.svc.AttachBookingImage(r.Context(), idParam(r, "id"), req.ImageRef)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, res)
}

func (h *Handler) createBookingDispatch(w http.ResponseWriter, r *http.Request) {
	var req app.CreateBookingDispatchRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, "invalid request body", "BAD_REQUEST", http.StatusBadRequest)
		return
	}
	res, err := h.svc.CreateBookingDispatch(r.Context(), req)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, res)
}

func (h *Handler) listBookingDispatches(w http.ResponseWriter, r *http.Request) {
	bookingID, _ := strconv.Atoi(r.URL.Query().Get("booking_id"))
	res, err := h.svc.ListBookingDispatches(r.Context(), bookingID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, res)
}

func (h *Handler) getBookingDispatch(w http.ResponseWriter, r *http.Request) {
	res, err := h.svc.GetBookingDispatch(r.Context(), idParam(r, "id"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, res)
}

func (h *Handler) updateBookingDispatch(w http.ResponseWriter, r *http.Request) {
	var req app.UpdateBookingDispatchRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, "invalid request body", "BAD_REQUEST", http.StatusBadRequest)
		return
	}
	req.DispatchID = idParam(r, "id")
	res, err := h.svc.UpdateBookingDispatch(r.Context(), req)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, res)
}

func (h *Handler) changeBookingDispatchStatus(w http.ResponseWriter, r *http.Request) {
	var req app.ChangeBookingDispatchStatusRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, "invalid request body", "BAD_REQUEST", http.StatusBadRequest)
		return
	}
	req.DispatchID = idParam(r, "id")
	res, err := h.svc.ChangeBookingDispatchStatus(r.Context(), req)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, res)
}

func (h *Handler) deleteBookingDispatch(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Actor string `json:"actor"`
	}
	// Body is optional on this endpoint.
	_ = decode(r, &req)
	if err := h.svc.DeleteBookingDispatch(r.Context(), idParam(r, "id"), req.Actor); err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, map[string]string{"status": "deleted"})
}

func (h *Handler) checkStock(w http.ResponseWriter, r *http.Request) {
	res, err := h.svc.CheckStock(r.Context())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, res)
}

func (h *Handler) reconcileStock(w http.ResponseWriter, r *http.Request) {
	res, err := h.svc.ReconcileStock(r.Context())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, res)
}
