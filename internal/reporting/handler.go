package reporting

import (
	"bytes"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/shopledger/shopledger/internal/platform/httpx"
	"github.com/shopledger/shopledger/internal/shared"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// Handler exposes report endpoints.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler builds handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers report routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/reports", func(r chi.Router) {
		r.Get("/purchases/by-supplier", h.purchasesBySupplier)
		r.Get("/purchase-orders/overdue", h.overdueOrders)
		r.Get("/purchase-orders/stats", h.orderStats)
		r.Get("/payables/by-supplier", h.payablesBySupplier)
		r.Get("/payables/by-period", h.payablesByPeriod)
		r.Get("/payables/export.xlsx", h.exportPayables)
	})
}

func (h *Handler) fail(w http.ResponseWriter, op string, err error) {
	if !shared.IsClientError(err) {
		h.logger.Error(op, slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}

func parseRange(r *http.Request) (Range, error) {
	from, err := httpx.DateQuery(r, "from")
	if err != nil {
		return Range{}, err
	}
	to, err := httpx.DateQuery(r, "to")
	if err != nil {
		return Range{}, err
	}
	return Range{From: from, To: to}, nil
}

func (h *Handler) purchasesBySupplier(w http.ResponseWriter, r *http.Request) {
	rng, err := parseRange(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	rows, err := h.service.PurchasesBySupplier(r.Context(), rng)
	if err != nil {
		h.fail(w, "purchases by supplier", err)
		return
	}
	if r.URL.Query().Get("format") == "csv" {
		var buf bytes.Buffer
		if err := WritePurchasesCSV(&buf, rows); err != nil {
			h.fail(w, "purchases csv", err)
			return
		}
		w.Header().Set("Content-Type", "text/csv")
		w.Header().Set("Content-Disposition", `attachment; filename="purchases_by_supplier.csv"`)
		_, _ = w.Write(buf.Bytes())
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"items": rows})
}

func (h *Handler) overdueOrders(w http.ResponseWriter, r *http.Request) {
	asOf, err := httpx.DateQuery(r, "as_of")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	rows, err := h.service.OverduePurchaseOrders(r.Context(), asOf)
	if err != nil {
		h.fail(w, "overdue purchase orders", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"items": rows})
}

func (h *Handler) orderStats(w http.ResponseWriter, r *http.Request) {
	rows, err := h.service.PurchaseOrderStats(r.Context())
	if err != nil {
		h.fail(w, "purchase order stats", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"items": rows})
}

func (h *Handler) payablesBySupplier(w http.ResponseWriter, r *http.Request) {
	rng, err := parseRange(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	rows, err := h.service.PayablesBySupplier(r.Context(), rng)
	if err != nil {
		h.fail(w, "payables by supplier", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"items": rows})
}

func (h *Handler) payablesByPeriod(w http.ResponseWriter, r *http.Request) {
	rng, err := parseRange(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	rows, err := h.service.PayablesByPeriod(r.Context(), rng)
	if err != nil {
		h.fail(w, "payables by period", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"items": rows})
}

func (h *Handler) exportPayables(w http.ResponseWriter, r *http.Request) {
	rng, err := parseRange(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var buf bytes.Buffer
	if err := h.service.ExportPayablesXLSX(r.Context(), rng, &buf); err != nil {
		h.fail(w, "export payables", err)
		return
	}
	name := fmt.Sprintf("payables_%s_%s.xlsx", dateToken(rng.From), dateToken(rng.To))
	w.Header().Set("Content-Type", xlsxContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	_, _ = w.Write(buf.Bytes())
}
