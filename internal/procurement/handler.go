package procurement

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/shopledger/shopledger/internal/platform/httpx"
	"github.com/shopledger/shopledger/internal/shared"
)

// Handler wires procurement HTTP endpoints.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
}

// NewHandler builds handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validator: validator.New()}
}

// MountRoutes registers purchase order and item routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/purchase-orders", func(r chi.Router) {
		r.Get("/", h.listOrders)
		r.Post("/", h.createOrder)
		r.Get("/{orderID}", h.getOrder)
		r.Delete("/{orderID}", h.deleteOrder)
		r.Post("/{orderID}/items", h.addItem)
		r.Post("/{orderID}/receive", h.receiveItems)
		r.Post("/{orderID}/send", h.changeStatus(POStatusSent))
		r.Post("/{orderID}/approve", h.changeStatus(POStatusApproved))
		r.Post("/{orderID}/cancel", h.changeStatus(POStatusCancelled))
	})
	r.Route("/purchase-order-items/{itemID}", func(r chi.Router) {
		r.Patch("/", h.updateItem)
		r.Delete("/", h.removeItem)
		r.Get("/inspections", h.listInspections)
		r.Post("/inspections", h.inspect)
	})
}

type itemRequest struct {
	ProductID int64           `json:"product_id" validate:"required,gt=0"`
	Quantity  float64         `json:"quantity_ordered" validate:"gt=0"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}

func (r itemRequest) toInput() ItemInput {
	return ItemInput{ProductID: r.ProductID, Quantity: r.Quantity, UnitPrice: r.UnitPrice}
}

type createOrderRequest struct {
	SupplierID           int64         `json:"supplier_id" validate:"required,gt=0"`
	ExpectedDeliveryDate string        `json:"expected_delivery_date" validate:"omitempty,datetime=2006-01-02"`
	Notes                string        `json:"notes" validate:"max=2000"`
	Items                []itemRequest `json:"items" validate:"dive"`
}

type updateItemRequest struct {
	ProductID *int64           `json:"product_id" validate:"omitempty,gt=0"`
	Quantity  *float64         `json:"quantity_ordered" validate:"omitempty,gt=0"`
	UnitPrice *decimal.Decimal `json:"unit_price"`
}

type receiveRequest struct {
	Items []struct {
		ItemID           int64   `json:"item_id" validate:"required,gt=0"`
		QuantityReceived float64 `json:"quantity_received" validate:"gte=0"`
	} `json:"items" validate:"required,min=1,dive"`
}

type inspectionRequest struct {
	InspectorID      string   `json:"inspector_id" validate:"required,max=120"`
	ApprovedQuantity float64  `json:"approved_quantity" validate:"gte=0"`
	RejectedQuantity float64  `json:"rejected_quantity" validate:"gte=0"`
	Notes            string   `json:"notes" validate:"max=2000"`
	DefectsFound     []string `json:"defects_found" validate:"dive,max=200"`
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, target any) bool {
	if err := httpx.DecodeJSON(r, target); err != nil {
		httpx.RespondError(w, err)
		return false
	}
	if err := httpx.Validate(h.validator, target); err != nil {
		httpx.RespondError(w, err)
		return false
	}
	return true
}

func (h *Handler) fail(w http.ResponseWriter, op string, err error) {
	if !shared.IsClientError(err) {
		h.logger.Error(op, slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}

func (h *Handler) listOrders(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page := shared.ParsePagination(q)
	supplierID, _ := strconv.ParseInt(q.Get("supplier_id"), 10, 64)
	orders, err := h.service.ListPurchaseOrders(r.Context(), ListFilter{
		SupplierID: supplierID,
		Status:     POStatus(q.Get("status")),
		Limit:      page.PerPage,
		Offset:     page.Offset(),
	})
	if err != nil {
		h.fail(w, "list purchase orders", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"items": orders, "page": page})
}

func (h *Handler) createOrder(w http.ResponseWriter, r *http.Request) {
	var req createOrderRequest
	if !h.decode(w, r, &req) {
		return
	}
	input := CreatePurchaseOrderInput{SupplierID: req.SupplierID, Notes: req.Notes}
	if req.ExpectedDeliveryDate != "" {
		d, _ := time.Parse(time.DateOnly, req.ExpectedDeliveryDate)
		input.ExpectedDeliveryDate = &d
	}
	var (
		po  PurchaseOrder
		err error
	)
	if len(req.Items) > 0 {
		items := make([]ItemInput, 0, len(req.Items))
		for _, it := range req.Items {
			items = append(items, it.toInput())
		}
		po, err = h.service.CreateCompletePurchaseOrder(r.Context(), input, items)
	} else {
		po, err = h.service.CreatePurchaseOrder(r.Context(), input)
	}
	if err != nil {
		h.fail(w, "create purchase order", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, po)
}

func (h *Handler) getOrder(w http.ResponseWriter, r *http.Request) {
	orderID, err := httpx.IDParam(r, "orderID")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	po, err := h.service.GetPurchaseOrder(r.Context(), orderID)
	if err != nil {
		h.fail(w, "get purchase order", err)
		return
	}
	httpx.JSON(w, http.StatusOK, po)
}

func (h *Handler) deleteOrder(w http.ResponseWriter, r *http.Request) {
	orderID, err := httpx.IDParam(r, "orderID")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.service.DeletePurchaseOrder(r.Context(), orderID); err != nil {
		h.fail(w, "delete purchase order", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) addItem(w http.ResponseWriter, r *http.Request) {
	orderID, err := httpx.IDParam(r, "orderID")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req itemRequest
	if !h.decode(w, r, &req) {
		return
	}
	item, err := h.service.AddItem(r.Context(), orderID, req.toInput())
	if err != nil {
		h.fail(w, "add item", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, item)
}

func (h *Handler) updateItem(w http.ResponseWriter, r *http.Request) {
	itemID, err := httpx.IDParam(r, "itemID")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req updateItemRequest
	if !h.decode(w, r, &req) {
		return
	}
	item, err := h.service.UpdateItem(r.Context(), itemID, ItemUpdate{ProductID: req.ProductID, Quantity: req.Quantity, UnitPrice: req.UnitPrice})
	if err != nil {
		h.fail(w, "update item", err)
		return
	}
	httpx.JSON(w, http.StatusOK, item)
}

func (h *Handler) removeItem(w http.ResponseWriter, r *http.Request) {
	itemID, err := httpx.IDParam(r, "itemID")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.service.RemoveItem(r.Context(), itemID); err != nil {
		h.fail(w, "remove item", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) receiveItems(w http.ResponseWriter, r *http.Request) {
	orderID, err := httpx.IDParam(r, "orderID")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req receiveRequest
	if !h.decode(w, r, &req) {
		return
	}
	received := make([]ReceivedItem, 0, len(req.Items))
	for _, it := range req.Items {
		received = append(received, ReceivedItem{ItemID: it.ItemID, QuantityReceived: it.QuantityReceived})
	}
	result, err := h.service.ReceiveItems(r.Context(), orderID, received)
	if err != nil {
		h.fail(w, "receive items", err)
		return
	}
	httpx.JSON(w, http.StatusOK, result)
}

func (h *Handler) changeStatus(to POStatus) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orderID, err := httpx.IDParam(r, "orderID")
		if err != nil {
			httpx.RespondError(w, err)
			return
		}
		var po PurchaseOrder
		switch to {
		case POStatusSent:
			po, err = h.service.SendPurchaseOrder(r.Context(), orderID)
		case POStatusApproved:
			po, err = h.service.ApprovePurchaseOrder(r.Context(), orderID)
		default:
			po, err = h.service.CancelPurchaseOrder(r.Context(), orderID)
		}
		if err != nil {
			h.fail(w, "change purchase order status", err)
			return
		}
		httpx.JSON(w, http.StatusOK, po)
	}
}

func (h *Handler) inspect(w http.ResponseWriter, r *http.Request) {
	itemID, err := httpx.IDParam(r, "itemID")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req inspectionRequest
	if !h.decode(w, r, &req) {
		return
	}
	result, err := h.service.PerformQualityControl(r.Context(), InspectionInput{
		ItemID:           itemID,
		InspectorID:      req.InspectorID,
		ApprovedQuantity: req.ApprovedQuantity,
		RejectedQuantity: req.RejectedQuantity,
		Notes:            req.Notes,
		Defects:          req.DefectsFound,
	})
	if err != nil {
		h.fail(w, "quality control", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, result)
}

func (h *Handler) listInspections(w http.ResponseWriter, r *http.Request) {
	itemID, err := httpx.IDParam(r, "itemID")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	records, err := h.service.ListInspections(r.Context(), itemID)
	if err != nil {
		h.fail(w, "list inspections", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"items": records})
}
