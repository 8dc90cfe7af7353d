package inventory

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/shopledger/shopledger/internal/platform/httpx"
)

// Handler wires read-only HTTP endpoints for the stock ledger.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler constructs inventory handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers inventory routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/products/{productID}/stock", h.handleStockLevel)
	r.Get("/products/{productID}/movements", h.handleMovements)
}

func (h *Handler) handleStockLevel(w http.ResponseWriter, r *http.Request) {
	productID, err := httpx.IDParam(r, "productID")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	level, err := h.service.StockLevel(r.Context(), productID)
	if err != nil {
		h.logger.Warn("stock level", slog.Int64("product_id", productID), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, level)
}

func (h *Handler) handleMovements(w http.ResponseWriter, r *http.Request) {
	productID, err := httpx.IDParam(r, "productID")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	movements, err := h.service.Movements(r.Context(), productID, limit)
	if err != nil {
		h.logger.Error("list movements", slog.Int64("product_id", productID), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"items": movements})
}
