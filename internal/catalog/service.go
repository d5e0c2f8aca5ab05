package catalog

import (
	"context"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/odyssey-erp/odyssey-stock/internal/inventory"
	"github.com/odyssey-erp/odyssey-stock/internal/shared"
)

// RepositoryPort abstracts repository usage for service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	Get(ctx context.Context, id uuid.UUID) (Product, error)
	List(ctx context.Context, filter ListFilter) ([]Product, int, error)
	Facets(ctx context.Context) (Facets, error)
	Update(ctx context.Context, p Product) error
	SetActive(ctx context.Context, id uuid.UUID, active bool) error
	CountReferences(ctx context.Context, id uuid.UUID) (int, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// ServiceConfig groups optional settings.
type ServiceConfig struct {
	DefaultMinStock    float64
	AllowNegativeStock bool
	Metrics            inventory.MetricsPort
	Invalidator        shared.Invalidator
	Logger             *slog.Logger
}

// Service coordinates catalog operations.
type Service struct {
	repo        RepositoryPort
	audit       AuditPort
	ledger      inventory.Ledger
	defaultMin  float64
	metrics     inventory.MetricsPort
	invalidator shared.Invalidator
	logger      *slog.Logger
	now         func() time.Time
}

// NewService builds Service.
func NewService(repo RepositoryPort, audit AuditPort, cfg ServiceConfig) *Service {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:        repo,
		audit:       audit,
		ledger:      inventory.Ledger{AllowNegative: cfg.AllowNegativeStock},
		defaultMin:  cfg.DefaultMinStock,
		metrics:     cfg.Metrics,
		invalidator: cfg.Invalidator,
		logger:      logger,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// Create registers a product. A positive initial quantity is booked as an
// IN movement in the same transaction.
func (s *Service) Create(ctx context.Context, input CreateInput) (Product, error) {
	fields := map[string]string{}
	unit := input.Details.normalize(fields)
	if input.InitialQuantity < 0 || math.IsNaN(input.InitialQuantity) || math.IsInf(input.InitialQuantity, 0) {
		fields["initial_quantity"] = "must be >= 0"
	}
	if err := shared.NewValidationError(fields); err != nil {
		return Product{}, err
	}
	now := s.now()
	p := Product{
		ID:                uuid.New(),
		SKU:               input.SKU,
		Name:              input.Name,
		Description:       input.Description,
		Nature:            input.Nature,
		Supplier:          input.Supplier,
		Location:          input.Location,
		Unit:              unit,
		MinStock:          s.defaultMin,
		InitialQuantity:   input.InitialQuantity,
		ProductionPrice:   input.ProductionPrice,
		ClientPrice:       input.ClientPrice,
		ProfessionalPrice: input.ProfessionalPrice,
		Active:            true,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if input.MinStock != nil {
		p.MinStock = *input.MinStock
	}

	var opening *inventory.Movement
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if err := tx.InsertProduct(ctx, p); err != nil {
			return err
		}
		if p.InitialQuantity < inventory.Epsilon {
			return nil
		}
		item := inventory.StockItem{ID: p.ID, SKU: p.SKU, Name: p.Name, Unit: p.Unit, MinStock: p.MinStock, Active: true}
		mv, err := s.ledger.ApplyChange(ctx, tx, &item, inventory.StockChange{
			Type:        inventory.MovementIn,
			Delta:       p.InitialQuantity,
			Description: "Initial stock",
			RefModule:   "catalog",
			RefID:       p.ID.String(),
			Actor:       input.Actor,
			OccurredAt:  now,
		})
		if err != nil {
			return err
		}
		p.CurrentStock = item.CurrentStock
		opening = &mv
		return nil
	})
	if err != nil {
		return Product{}, err
	}
	p.StockStatus = inventory.StockStatus(p.CurrentStock, p.MinStock)
	if opening != nil && s.metrics != nil {
		s.metrics.RecordMovement(string(opening.Type))
	}
	s.record(ctx, input.Actor, "catalog:create", p.ID, map[string]any{"sku": p.SKU, "initial_quantity": p.InitialQuantity})
	s.bump(ctx)
	return p, nil
}

// Get returns a product with its stock status.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (Product, error) {
	p, err := s.repo.Get(ctx, id)
	if err != nil {
		return Product{}, err
	}
	p.StockStatus = inventory.StockStatus(p.CurrentStock, p.MinStock)
	return p, nil
}

// List returns one page of products.
func (s *Service) List(ctx context.Context, filter ListFilter) ([]Product, shared.Pagination, error) {
	switch filter.Status {
	case "":
		filter.Status = StatusActive
	case StatusActive, StatusInactive, StatusAll:
	default:
		return nil, shared.Pagination{}, &shared.ValidationError{Fields: map[string]string{"status": "must be active, inactive or all"}}
	}
	filter.Page, filter.PerPage = shared.NormalizePage(filter.Page, filter.PerPage)
	products, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	for i := range products {
		products[i].StockStatus = inventory.StockStatus(products[i].CurrentStock, products[i].MinStock)
	}
	return products, shared.NewPagination(filter.Page, filter.PerPage, total), nil
}

// Facets returns the supplier and nature filter values.
func (s *Service) Facets(ctx context.Context) (Facets, error) {
	return s.repo.Facets(ctx)
}

// Update edits descriptive fields. Stock is not touched, so the storage unit
// is only editable while the product is unused.
func (s *Service) Update(ctx context.Context, id uuid.UUID, details Details, actor string) (Product, error) {
	fields := map[string]string{}
	unit := details.normalize(fields)
	if err := shared.NewValidationError(fields); err != nil {
		return Product{}, err
	}
	p, err := s.repo.Get(ctx, id)
	if err != nil {
		return Product{}, err
	}
	if unit != p.Unit {
		// Stored quantities are in the old unit; converting them is a stock
		// correction, not an edit.
		refs, err := s.repo.CountReferences(ctx, id)
		if err != nil {
			return Product{}, err
		}
		if refs > 0 || p.CurrentStock != 0 {
			return Product{}, shared.NewValidationError(map[string]string{
				"unit": "cannot change the unit of a product with stock, movements or BOM lines",
			})
		}
	}
	p.SKU = details.SKU
	p.Name = details.Name
	p.Description = details.Description
	p.Nature = details.Nature
	p.Supplier = details.Supplier
	p.Location = details.Location
	p.Unit = unit
	if details.MinStock != nil {
		p.MinStock = *details.MinStock
	}
	p.ProductionPrice = details.ProductionPrice
	p.ClientPrice = details.ClientPrice
	p.ProfessionalPrice = details.ProfessionalPrice
	if err := s.repo.Update(ctx, p); err != nil {
		return Product{}, err
	}
	s.record(ctx, actor, "catalog:update", id, map[string]any{"sku": p.SKU})
	s.bump(ctx)
	return s.Get(ctx, id)
}

// UpdateStockLevels sets the minimum stock and books a change of current
// stock as an ADJUST movement, both in one transaction.
func (s *Service) UpdateStockLevels(ctx context.Context, id uuid.UUID, input StockLevelsInput) (Product, error) {
	fields := map[string]string{}
	if input.CurrentStock == nil && input.MinStock == nil {
		fields["current_stock"] = "current_stock or min_stock required"
	}
	checkNonNegative(fields, "min_stock", input.MinStock)
	if input.CurrentStock != nil && (math.IsNaN(*input.CurrentStock) || math.IsInf(*input.CurrentStock, 0)) {
		fields["current_stock"] = "invalid number"
	}
	if err := shared.NewValidationError(fields); err != nil {
		return Product{}, err
	}
	if _, err := s.repo.Get(ctx, id); err != nil {
		return Product{}, err
	}
	var adjusted *inventory.Movement
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		adjusted = nil
		if input.MinStock != nil {
			if err := tx.SetMinStock(ctx, id, *input.MinStock); err != nil {
				return err
			}
		}
		if input.CurrentStock == nil {
			return nil
		}
		mv, err := s.ledger.Adjust(ctx, tx, inventory.AdjustInput{
			ProductID: id,
			NewStock:  *input.CurrentStock,
			Note:      strings.TrimSpace(input.Note),
			Actor:     input.Actor,
		})
		adjusted = mv
		return err
	})
	if err != nil {
		return Product{}, err
	}
	meta := map[string]any{}
	if input.MinStock != nil {
		meta["min_stock"] = *input.MinStock
	}
	if adjusted != nil {
		meta["movement_id"] = adjusted.ID.String()
		meta["quantity"] = adjusted.Quantity
		meta["qty_after"] = adjusted.QtyAfter
		if s.metrics != nil {
			s.metrics.RecordMovement(string(adjusted.Type))
		}
	}
	s.record(ctx, input.Actor, "catalog:stock_levels", id, meta)
	s.bump(ctx)
	return s.Get(ctx, id)
}

// SetActive deactivates or reactivates a product.
func (s *Service) SetActive(ctx context.Context, id uuid.UUID, active bool, actor string) (Product, error) {
	if err := s.repo.SetActive(ctx, id, active); err != nil {
		return Product{}, err
	}
	action := "catalog:deactivate"
	if active {
		action = "catalog:activate"
	}
	s.record(ctx, actor, action, id, nil)
	s.bump(ctx)
	return s.Get(ctx, id)
}

// Delete removes a product that was never used.
func (s *Service) Delete(ctx context.Context, id uuid.UUID, actor string) error {
	p, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	refs, err := s.repo.CountReferences(ctx, id)
	if err != nil {
		return err
	}
	if refs > 0 {
		return ErrProductInUse
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	s.record(ctx, actor, "catalog:delete", id, map[string]any{"sku": p.SKU})
	s.bump(ctx)
	return nil
}

func (s *Service) record(ctx context.Context, actor, action string, id uuid.UUID, meta map[string]any) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Record(ctx, shared.AuditLog{Actor: actor, Action: action, Entity: "product", EntityID: id.String(), Meta: meta}); err != nil {
		s.logger.Warn("audit product change", slog.String("product_id", id.String()), slog.Any("error", err))
	}
}

func (s *Service) bump(ctx context.Context) {
	if s.invalidator == nil {
		return
	}
	if err := s.invalidator.Bump(ctx); err != nil {
		s.logger.Warn("invalidate dashboard cache", slog.Any("error", err))
	}
}
