package inventory

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/odyssey-erp/odyssey-stock/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-stock/internal/shared"
)

// Handler wires HTTP endpoints for inventory module.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	location *time.Location
}

// NewHandler constructs inventory handler. Date-only query parameters are
// interpreted in loc.
func NewHandler(logger *slog.Logger, service *Service, loc *time.Location) *Handler {
	if loc == nil {
		loc = time.UTC
	}
	return &Handler{logger: logger, service: service, location: loc}
}

// MountRoutes registers inventory routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/inventory", h.handleOverview)
	r.Get("/movements", h.handleListMovements)
	r.Post("/movements", h.handlePostMovement)
	r.Get("/products/{id}/stock-card", h.handleStockCard)
}

type movementRequest struct {
	ProductID uuid.UUID    `json:"product_id" validate:"required"`
	Type      MovementType `json:"type" validate:"required,oneof=IN OUT"`
	Quantity  float64      `json:"quantity" validate:"gt=0"`
	Notes     string       `json:"notes" validate:"max=500"`
}

func (h *Handler) handlePostMovement(w http.ResponseWriter, r *http.Request) {
	var req movementRequest
	if !httpx.Bind(w, r, &req) {
		return
	}
	mv, err := h.service.PostMovement(r.Context(), PostMovementInput{
		ProductID:      req.ProductID,
		Type:           req.Type,
		Quantity:       req.Quantity,
		Notes:          req.Notes,
		Actor:          shared.ActorFromContext(r.Context()),
		IdempotencyKey: r.Header.Get("Idempotency-Key"),
	})
	if err != nil {
		h.respondError(w, "post movement", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, mv)
}

func (h *Handler) handleListMovements(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	errs := map[string]string{}
	filter := MovementFilter{
		Type:            MovementType(q.Get("type")),
		IncludeInactive: q.Get("include_inactive") == "true",
	}
	if raw := q.Get("product_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			errs["product_id"] = "invalid uuid"
		}
		filter.ProductID = id
	}
	if raw := q.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			errs["limit"] = "invalid limit"
		}
		filter.Limit = limit
	}
	filter.From, filter.To = h.parseRange(q.Get("from"), q.Get("to"), errs)
	if len(errs) > 0 {
		writeFieldErrors(w, errs)
		return
	}
	items, err := h.service.ListMovements(r.Context(), filter)
	if err != nil {
		h.respondError(w, "list movements", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"items": items})
}

func (h *Handler) handleStockCard(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid product id")
		return
	}
	errs := map[string]string{}
	from, to := h.parseRange(r.URL.Query().Get("from"), r.URL.Query().Get("to"), errs)
	if len(errs) > 0 {
		writeFieldErrors(w, errs)
		return
	}
	card, err := h.service.StockCard(r.Context(), StockCardFilter{ProductID: id, From: from, To: to})
	if err != nil {
		h.respondError(w, "stock card", err)
		return
	}
	httpx.JSON(w, http.StatusOK, card)
}

func (h *Handler) handleOverview(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	rows, err := h.service.Overview(r.Context(), OverviewFilter{
		Search:   q.Get("search"),
		Supplier: q.Get("supplier"),
		Nature:   q.Get("nature"),
	})
	if err != nil {
		h.respondError(w, "inventory overview", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"items": rows})
}

// parseRange reads YYYY-MM-DD bounds; to is extended to the end of its day.
func (h *Handler) parseRange(fromStr, toStr string, errs map[string]string) (time.Time, time.Time) {
	var from, to time.Time
	var err error
	if fromStr != "" {
		if from, err = time.ParseInLocation("2006-01-02", fromStr, h.location); err != nil {
			errs["from"] = "expected YYYY-MM-DD"
		}
	}
	if toStr != "" {
		if to, err = time.ParseInLocation("2006-01-02", toStr, h.location); err != nil {
			errs["to"] = "expected YYYY-MM-DD"
		}
	}
	return DayRange(from, to, h.location)
}

func (h *Handler) respondError(w http.ResponseWriter, op string, err error) {
	if short, ok := AsInsufficientStock(err); ok {
		httpx.WriteProblem(w, httpx.ProblemDetail{
			Title:  "Insufficient Stock",
			Status: http.StatusConflict,
			Detail: short.Error(),
			Extra: map[string]any{
				"product_id": short.ProductID,
				"unit":       short.Unit,
				"available":  short.Available,
				"requested":  short.Requested,
			},
		})
		return
	}
	if !errors.Is(err, shared.ErrValidation) && !errors.Is(err, shared.ErrNotFound) && !errors.Is(err, shared.ErrConflict) {
		h.logger.Error(op, slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}

func writeFieldErrors(w http.ResponseWriter, errs map[string]string) {
	httpx.WriteProblem(w, httpx.ProblemDetail{
		Title:  "Validation Failed",
		Status: http.StatusUnprocessableEntity,
		Errors: errs,
	})
}
