package incoming

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/odyssey-erp/odyssey-stock/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-stock/internal/shared"
)

// Handler wires HTTP endpoints for incoming orders.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	location *time.Location
}

// NewHandler constructs incoming handler. Dates are read in loc.
func NewHandler(logger *slog.Logger, service *Service, loc *time.Location) *Handler {
	if loc == nil {
		loc = time.UTC
	}
	return &Handler{logger: logger, service: service, location: loc}
}

// MountRoutes registers incoming order routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/incoming-orders", h.list)
	r.Post("/incoming-orders", h.create)
	r.Get("/incoming-orders/overdue", h.overdue)
	r.Post("/incoming-orders/{id}/arrive", h.arrive)
	r.Post("/incoming-orders/{id}/cancel", h.cancel)
}

type orderRequest struct {
	ProductID           uuid.UUID `json:"product_id" validate:"required"`
	OrderedQuantity     float64   `json:"ordered_quantity" validate:"gt=0"`
	OrderDate           string    `json:"order_date" validate:"omitempty,datetime=2006-01-02"`
	ExpectedArrivalDate string    `json:"expected_arrival_date" validate:"omitempty,datetime=2006-01-02"`
	Notes               string    `json:"notes" validate:"max=1000"`
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var req orderRequest
	if !httpx.Bind(w, r, &req) {
		return
	}
	input := CreateInput{
		ProductID:       req.ProductID,
		OrderedQuantity: req.OrderedQuantity,
		Notes:           req.Notes,
		Actor:           shared.ActorFromContext(r.Context()),
	}
	input.OrderDate = h.date(req.OrderDate)
	input.ExpectedArrivalDate = h.date(req.ExpectedArrivalDate)
	order, err := h.service.Create(r.Context(), input)
	if err != nil {
		h.respondError(w, "create incoming order", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, order)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	orders, err := h.service.ListPending(r.Context())
	if err != nil {
		h.respondError(w, "list incoming orders", err)
		return
	}
	if orders == nil {
		orders = []Order{}
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"items": orders})
}

func (h *Handler) overdue(w http.ResponseWriter, r *http.Request) {
	orders, err := h.service.Overdue(r.Context(), time.Now())
	if err != nil {
		h.respondError(w, "list overdue orders", err)
		return
	}
	if orders == nil {
		orders = []Order{}
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"items": orders})
}

func (h *Handler) arrive(w http.ResponseWriter, r *http.Request) {
	id, ok := orderID(w, r)
	if !ok {
		return
	}
	arrival, err := h.service.MarkArrived(r.Context(), id, shared.ActorFromContext(r.Context()))
	if err != nil {
		h.respondError(w, "mark order arrived", err)
		return
	}
	httpx.JSON(w, http.StatusOK, arrival)
}

func (h *Handler) cancel(w http.ResponseWriter, r *http.Request) {
	id, ok := orderID(w, r)
	if !ok {
		return
	}
	order, err := h.service.Cancel(r.Context(), id, shared.ActorFromContext(r.Context()))
	if err != nil {
		h.respondError(w, "cancel order", err)
		return
	}
	httpx.JSON(w, http.StatusOK, order)
}

func orderID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid order id")
		return uuid.Nil, false
	}
	return id, true
}

// date parses an already validated YYYY-MM-DD value.
func (h *Handler) date(raw string) *time.Time {
	if raw == "" {
		return nil
	}
	t, err := time.ParseInLocation("2006-01-02", raw, h.location)
	if err != nil {
		return nil
	}
	return &t
}

func (h *Handler) respondError(w http.ResponseWriter, op string, err error) {
	if !errors.Is(err, shared.ErrValidation) && !errors.Is(err, shared.ErrNotFound) && !errors.Is(err, shared.ErrConflict) {
		h.logger.Error(op, slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}
