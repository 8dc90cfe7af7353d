package payables

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

// IdempotencyHeader carries the client supplied key for payment registration.
const IdempotencyHeader = "Idempotency-Key"

// Handler wires payable HTTP endpoints.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
}

// NewHandler builds handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validator: validator.New()}
}

// MountRoutes registers payable routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/payables", func(r chi.Router) {
		r.Get("/", h.list)
		r.Post("/", h.create)
		r.Get("/summary", h.summary)
		r.Get("/reminders", h.reminders)
		r.Post("/mark-overdue", h.markOverdue)
		r.Get("/{payableID}", h.get)
		r.Patch("/{payableID}", h.update)
		r.Delete("/{payableID}", h.delete)
		r.Get("/{payableID}/payments", h.listPayments)
		r.Post("/{payableID}/payments", h.registerPayment)
		r.Post("/{payableID}/reversals", h.reversePayment)
	})
}

type createRequest struct {
	Description    string          `json:"description" validate:"required,max=500"`
	SupplierID     *int64          `json:"supplier_id" validate:"omitempty,gt=0"`
	Category       string          `json:"category" validate:"max=120"`
	Notes          string          `json:"notes" validate:"max=2000"`
	TotalAmountDue decimal.Decimal `json:"total_amount_due"`
	AmountPaid     decimal.Decimal `json:"amount_paid"`
	DueDate        string          `json:"due_date" validate:"required,datetime=2006-01-02"`
	Status         string          `json:"status" validate:"omitempty,oneof=open paid overdue"`
}

type updateRequest struct {
	Description    *string          `json:"description" validate:"omitempty,max=500"`
	SupplierID     *int64           `json:"supplier_id" validate:"omitempty,gt=0"`
	Category       *string          `json:"category" validate:"omitempty,max=120"`
	Notes          *string          `json:"notes" validate:"omitempty,max=2000"`
	TotalAmountDue *decimal.Decimal `json:"total_amount_due"`
	AmountPaid     *decimal.Decimal `json:"amount_paid"`
	DueDate        *string          `json:"due_date" validate:"omitempty,datetime=2006-01-02"`
	Status         *string          `json:"status" validate:"omitempty,oneof=open paid overdue"`
}

type paymentRequest struct {
	Amount      decimal.Decimal `json:"amount"`
	PaymentDate string          `json:"payment_date" validate:"omitempty,datetime=2006-01-02"`
	Description string          `json:"description" validate:"max=500"`
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

// parseDate assumes the value already passed the datetime validator.
func parseDate(raw string) *time.Time {
	if raw == "" {
		return nil
	}
	d, err := time.Parse(time.DateOnly, raw)
	if err != nil {
		return nil
	}
	return &d
}

func optionalDate(r *http.Request, name string) (*time.Time, error) {
	d, err := httpx.DateQuery(r, name)
	if err != nil || d.IsZero() {
		return nil, err
	}
	return &d, nil
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page := shared.ParsePagination(q)
	from, err := optionalDate(r, "due_from")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	to, err := optionalDate(r, "due_to")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	supplierID, _ := strconv.ParseInt(q.Get("supplier_id"), 10, 64)
	unpaid, _ := strconv.ParseBool(q.Get("unpaid"))
	rows, err := h.service.ListPayables(r.Context(), ListFilter{
		Status:     Status(q.Get("status")),
		SupplierID: supplierID,
		DueFrom:    from,
		DueTo:      to,
		UnpaidOnly: unpaid,
		Limit:      page.PerPage,
		Offset:     page.Offset(),
	})
	if err != nil {
		h.fail(w, "list payables", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"items": rows, "page": page})
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if !h.decode(w, r, &req) {
		return
	}
	p, err := h.service.CreatePayable(r.Context(), CreateInput{
		Description:    req.Description,
		SupplierID:     req.SupplierID,
		Category:       req.Category,
		Notes:          req.Notes,
		TotalAmountDue: req.TotalAmountDue,
		AmountPaid:     req.AmountPaid,
		DueDate:        parseDate(req.DueDate),
		Status:         Status(req.Status),
	})
	if err != nil {
		h.fail(w, "create payable", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, p)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "payableID")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	p, err := h.service.GetPayable(r.Context(), id)
	if err != nil {
		h.fail(w, "get payable", err)
		return
	}
	httpx.JSON(w, http.StatusOK, p)
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "payableID")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req updateRequest
	if !h.decode(w, r, &req) {
		return
	}
	update := Update{
		Description:    req.Description,
		SupplierID:     req.SupplierID,
		Category:       req.Category,
		Notes:          req.Notes,
		TotalAmountDue: req.TotalAmountDue,
		AmountPaid:     req.AmountPaid,
	}
	if req.DueDate != nil {
		update.DueDate = parseDate(*req.DueDate)
	}
	if req.Status != nil {
		status := Status(*req.Status)
		update.Status = &status
	}
	p, err := h.service.UpdatePayable(r.Context(), id, update)
	if err != nil {
		h.fail(w, "update payable", err)
		return
	}
	httpx.JSON(w, http.StatusOK, p)
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "payableID")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.service.DeletePayable(r.Context(), id); err != nil {
		h.fail(w, "delete payable", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) listPayments(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "payableID")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	rows, err := h.service.ListPayments(r.Context(), id)
	if err != nil {
		h.fail(w, "list payments", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"items": rows})
}

func (h *Handler) paymentInput(w http.ResponseWriter, r *http.Request) (PaymentInput, bool) {
	id, err := httpx.IDParam(r, "payableID")
	if err != nil {
		httpx.RespondError(w, err)
		return PaymentInput{}, false
	}
	var req paymentRequest
	if !h.decode(w, r, &req) {
		return PaymentInput{}, false
	}
	return PaymentInput{
		PayableID:   id,
		Amount:      req.Amount,
		PaymentDate: parseDate(req.PaymentDate),
		Description: req.Description,
	}, true
}

func (h *Handler) registerPayment(w http.ResponseWriter, r *http.Request) {
	input, ok := h.paymentInput(w, r)
	if !ok {
		return
	}
	input.IdempotencyKey = r.Header.Get(IdempotencyHeader)
	result, err := h.service.RegisterPayment(r.Context(), input)
	if err != nil {
		h.fail(w, "register payment", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, result)
}

func (h *Handler) reversePayment(w http.ResponseWriter, r *http.Request) {
	input, ok := h.paymentInput(w, r)
	if !ok {
		return
	}
	result, err := h.service.ReversePayment(r.Context(), input)
	if err != nil {
		h.fail(w, "reverse payment", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, result)
}

func (h *Handler) summary(w http.ResponseWriter, r *http.Request) {
	from, err := optionalDate(r, "from")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	to, err := optionalDate(r, "to")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	asOf, err := httpx.DateQuery(r, "as_of")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	summary, err := h.service.Summary(r.Context(), SummaryFilter{From: from, To: to, AsOf: asOf})
	if err != nil {
		h.fail(w, "payables summary", err)
		return
	}
	httpx.JSON(w, http.StatusOK, summary)
}

func (h *Handler) reminders(w http.ResponseWriter, r *http.Request) {
	asOf, err := httpx.DateQuery(r, "as_of")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	reminders, err := h.service.Reminders(r.Context(), asOf)
	if err != nil {
		h.fail(w, "payables reminders", err)
		return
	}
	httpx.JSON(w, http.StatusOK, reminders)
}

func (h *Handler) markOverdue(w http.ResponseWriter, r *http.Request) {
	asOf, err := httpx.DateQuery(r, "as_of")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	affected, err := h.service.MarkOverdue(r.Context(), asOf)
	if err != nil {
		h.fail(w, "mark overdue", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"affected": affected})
}
