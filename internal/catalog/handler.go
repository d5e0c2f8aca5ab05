package catalog

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/odyssey-erp/odyssey-stock/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-stock/internal/shared"
	"github.com/odyssey-erp/odyssey-stock/internal/units"
)

// Handler wires HTTP endpoints for the product catalog.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler constructs catalog handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers catalog routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/units", h.listUnits)
	r.Get("/products", h.list)
	r.Post("/products", h.create)
	r.Get("/products/facets", h.facets)
	r.Get("/products/{id}", h.show)
	r.Put("/products/{id}", h.update)
	r.Patch("/products/{id}/stock", h.updateStock)
	r.Post("/products/{id}/activate", h.setActive(true))
	r.Post("/products/{id}/deactivate", h.setActive(false))
	r.Delete("/products/{id}", h.delete)
}

type productForm struct {
	SKU               string   `json:"sku" validate:"required,max=64"`
	Name              string   `json:"name" validate:"required,max=200"`
	Description       string   `json:"description" validate:"max=2000"`
	Nature            string   `json:"nature" validate:"max=100"`
	Supplier          string   `json:"supplier" validate:"max=200"`
	Location          string   `json:"location" validate:"max=100"`
	Unit              string   `json:"unit"`
	MinStock          *float64 `json:"min_stock" validate:"omitempty,gte=0"`
	InitialQuantity   float64  `json:"initial_quantity" validate:"gte=0"`
	ProductionPrice   *float64 `json:"production_price" validate:"omitempty,gte=0"`
	ClientPrice       *float64 `json:"client_price" validate:"omitempty,gte=0"`
	ProfessionalPrice *float64 `json:"professional_price" validate:"omitempty,gte=0"`
}

func (f productForm) details() Details {
	return Details{
		SKU:               f.SKU,
		Name:              f.Name,
		Description:       f.Description,
		Nature:            f.Nature,
		Supplier:          f.Supplier,
		Location:          f.Location,
		Unit:              f.Unit,
		MinStock:          f.MinStock,
		ProductionPrice:   f.ProductionPrice,
		ClientPrice:       f.ClientPrice,
		ProfessionalPrice: f.ProfessionalPrice,
	}
}

type stockForm struct {
	CurrentStock *float64 `json:"current_stock"`
	MinStock     *float64 `json:"min_stock" validate:"omitempty,gte=0"`
	Note         string   `json:"note" validate:"max=500"`
}

type listResponse struct {
	Items      []Product         `json:"items"`
	Pagination shared.Pagination `json:"pagination"`
}

func (h *Handler) listUnits(w http.ResponseWriter, _ *http.Request) {
	httpx.JSON(w, http.StatusOK, map[string]any{"items": units.All()})
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page, _ := strconv.Atoi(q.Get("page"))
	limit, _ := strconv.Atoi(q.Get("limit"))
	items, pagination, err := h.service.List(r.Context(), ListFilter{
		Search:   q.Get("search"),
		Status:   q.Get("status"),
		Supplier: q.Get("supplier"),
		Nature:   q.Get("nature"),
		SortBy:   q.Get("sort"),
		SortDir:  q.Get("dir"),
		Page:     page,
		PerPage:  limit,
	})
	if err != nil {
		h.respondError(w, "list products", err)
		return
	}
	httpx.JSON(w, http.StatusOK, listResponse{Items: items, Pagination: pagination})
}

func (h *Handler) facets(w http.ResponseWriter, r *http.Request) {
	facets, err := h.service.Facets(r.Context())
	if err != nil {
		h.respondError(w, "product facets", err)
		return
	}
	httpx.JSON(w, http.StatusOK, facets)
}

func (h *Handler) show(w http.ResponseWriter, r *http.Request) {
	id, ok := productID(w, r)
	if !ok {
		return
	}
	p, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.respondError(w, "get product", err)
		return
	}
	httpx.JSON(w, http.StatusOK, p)
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var form productForm
	if !httpx.Bind(w, r, &form) {
		return
	}
	p, err := h.service.Create(r.Context(), CreateInput{
		Details:         form.details(),
		InitialQuantity: form.InitialQuantity,
		Actor:           shared.ActorFromContext(r.Context()),
	})
	if err != nil {
		h.respondError(w, "create product", err)
		return
	}
	w.Header().Set("Location", "/api/products/"+p.ID.String())
	httpx.JSON(w, http.StatusCreated, p)
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	id, ok := productID(w, r)
	if !ok {
		return
	}
	var form productForm
	if !httpx.Bind(w, r, &form) {
		return
	}
	p, err := h.service.Update(r.Context(), id, form.details(), shared.ActorFromContext(r.Context()))
	if err != nil {
		h.respondError(w, "update product", err)
		return
	}
	httpx.JSON(w, http.StatusOK, p)
}

func (h *Handler) updateStock(w http.ResponseWriter, r *http.Request) {
	id, ok := productID(w, r)
	if !ok {
		return
	}
	var form stockForm
	if !httpx.Bind(w, r, &form) {
		return
	}
	p, err := h.service.UpdateStockLevels(r.Context(), id, StockLevelsInput{
		CurrentStock: form.CurrentStock,
		MinStock:     form.MinStock,
		Note:         form.Note,
		Actor:        shared.ActorFromContext(r.Context()),
	})
	if err != nil {
		h.respondError(w, "update stock levels", err)
		return
	}
	httpx.JSON(w, http.StatusOK, p)
}

func (h *Handler) setActive(active bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := productID(w, r)
		if !ok {
			return
		}
		p, err := h.service.SetActive(r.Context(), id, active, shared.ActorFromContext(r.Context()))
		if err != nil {
			h.respondError(w, "set product active", err)
			return
		}
		httpx.JSON(w, http.StatusOK, p)
	}
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request) {
	id, ok := productID(w, r)
	if !ok {
		return
	}
	if err := h.service.Delete(r.Context(), id, shared.ActorFromContext(r.Context())); err != nil {
		h.respondError(w, "delete product", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func productID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid product id")
		return uuid.Nil, false
	}
	return id, true
}

func (h *Handler) respondError(w http.ResponseWriter, op string, err error) {
	if !errors.Is(err, shared.ErrValidation) && !errors.Is(err, shared.ErrNotFound) &&
		!errors.Is(err, shared.ErrConflict) && !errors.Is(err, shared.ErrDuplicate) {
		h.logger.Error(op, slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}
