package bom

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/odyssey-erp/odyssey-stock/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-stock/internal/shared"
)

// Handler wires HTTP endpoints for BOM assembly.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler constructs bom handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers bom routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/bom/plan", h.plan)
	r.Post("/bom/assemblies", h.assemble)
	r.Get("/bom/recipes/{id}", h.recipe)
}

type lineRequest struct {
	MaterialID uuid.UUID `json:"material_id" validate:"required"`
	Quantity   float64   `json:"quantity" validate:"gt=0"`
	Unit       string    `json:"unit" validate:"max=8"`
}

type assemblyRequest struct {
	FinishedProductID uuid.UUID     `json:"finished_product_id" validate:"required"`
	QuantityToProduce float64       `json:"quantity_to_produce" validate:"gt=0"`
	Lines             []lineRequest `json:"lines" validate:"required,min=1,dive"`
}

func (req assemblyRequest) input(r *http.Request) AssemblyInput {
	lines := make([]Line, len(req.Lines))
	for i, l := range req.Lines {
		lines[i] = Line{MaterialID: l.MaterialID, Quantity: l.Quantity, Unit: l.Unit}
	}
	return AssemblyInput{
		FinishedProductID: req.FinishedProductID,
		QuantityToProduce: req.QuantityToProduce,
		Lines:             lines,
		Actor:             shared.ActorFromContext(r.Context()),
		IdempotencyKey:    r.Header.Get("Idempotency-Key"),
	}
}

func (h *Handler) plan(w http.ResponseWriter, r *http.Request) {
	var req assemblyRequest
	if !httpx.Bind(w, r, &req) {
		return
	}
	plan, err := h.service.Plan(r.Context(), req.input(r))
	if err != nil {
		h.respondError(w, "plan assembly", err)
		return
	}
	httpx.JSON(w, http.StatusOK, plan)
}

func (h *Handler) assemble(w http.ResponseWriter, r *http.Request) {
	var req assemblyRequest
	if !httpx.Bind(w, r, &req) {
		return
	}
	assembly, err := h.service.Assemble(r.Context(), req.input(r))
	if err != nil {
		h.respondError(w, "assemble", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, assembly)
}

func (h *Handler) recipe(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid product id")
		return
	}
	recipe, err := h.service.Recipe(r.Context(), id)
	if err != nil {
		h.respondError(w, "load recipe", err)
		return
	}
	httpx.JSON(w, http.StatusOK, recipe)
}

func (h *Handler) respondError(w http.ResponseWriter, op string, err error) {
	var shortage *ShortageError
	if errors.As(err, &shortage) {
		httpx.WriteProblem(w, httpx.ProblemDetail{
			Title:  "Insufficient Materials",
			Status: http.StatusConflict,
			Detail: shortage.Error(),
			Extra:  map[string]any{"shortages": shortage.Shortages},
		})
		return
	}
	if !errors.Is(err, shared.ErrValidation) && !errors.Is(err, shared.ErrNotFound) && !errors.Is(err, shared.ErrConflict) {
		h.logger.Error(op, slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}
