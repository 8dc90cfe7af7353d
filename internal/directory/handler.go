package directory

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/shopledger/shopledger/internal/platform/httpx"
	"github.com/shopledger/shopledger/internal/shared"
)

// Handler exposes directory lookups.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler constructs Handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers directory routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/suppliers", h.handleListSuppliers)
	r.Get("/suppliers/{supplierID}", h.handleGetSupplier)
	r.Get("/products/{productID}", h.handleGetProduct)
}

func (h *Handler) handleListSuppliers(w http.ResponseWriter, r *http.Request) {
	page := shared.ParsePagination(r.URL.Query())
	items, err := h.service.ListSuppliers(r.Context(), r.URL.Query().Get("q"), page.PerPage, page.Offset())
	if err != nil {
		h.logger.Error("list suppliers", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"items": items, "page": page})
}

func (h *Handler) handleGetSupplier(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "supplierID")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	sup, err := h.service.Supplier(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, sup)
}

func (h *Handler) handleGetProduct(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "productID")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	p, err := h.service.Product(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, p)
}
