package bom

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/odyssey-erp/odyssey-stock/internal/inventory"
	"github.com/odyssey-erp/odyssey-stock/internal/shared"
)

// RepositoryPort abstracts repository usage for service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	LoadProducts(ctx context.Context, ids ...uuid.UUID) (map[uuid.UUID]inventory.StockItem, error)
	Recipe(ctx context.Context, finishedID uuid.UUID) ([]RecipeLine, error)
}

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// MetricsPort counts assemblies and the movements they write.
type MetricsPort interface {
	RecordMovement(movementType string)
	RecordAssembly(outcome string)
}

// ServiceConfig groups optional settings.
type ServiceConfig struct {
	AllowNegativeStock bool
	Metrics            MetricsPort
	Invalidator        shared.Invalidator
	Logger             *slog.Logger
	Now                func() time.Time
}

// Service coordinates BOM planning and assembly.
type Service struct {
	repo        RepositoryPort
	audit       AuditPort
	idempotency inventory.IdempotencyPort
	ledger      inventory.Ledger
	metrics     MetricsPort
	invalidator shared.Invalidator
	logger      *slog.Logger
	now         func() time.Time
}

const idempotencyModule = "bom"

// NewService builds Service.
func NewService(repo RepositoryPort, audit AuditPort, idem inventory.IdempotencyPort, cfg ServiceConfig) *Service {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Service{
		repo:        repo,
		audit:       audit,
		idempotency: idem,
		ledger:      inventory.Ledger{AllowNegative: cfg.AllowNegativeStock, Now: now},
		metrics:     cfg.Metrics,
		invalidator: cfg.Invalidator,
		logger:      logger,
		now:         now,
	}
}

// Plan computes requirements and shortages without writing anything.
func (s *Service) Plan(ctx context.Context, input AssemblyInput) (Plan, error) {
	if err := validateInput(input.FinishedProductID, input.QuantityToProduce, input.Lines); err != nil {
		return Plan{}, err
	}
	items, err := s.repo.LoadProducts(ctx, productIDs(input.FinishedProductID, input.Lines)...)
	if err != nil {
		return Plan{}, err
	}
	finished, reqs, err := computeRequirements(input.FinishedProductID, input.QuantityToProduce, input.Lines, items)
	if err != nil {
		return Plan{}, err
	}
	shortages := shortagesOf(reqs)
	return Plan{
		FinishedProduct:   refOf(finished),
		QuantityToProduce: input.QuantityToProduce,
		Requirements:      reqs,
		Shortages:         shortages,
		Feasible:          len(shortages) == 0,
	}, nil
}

// Assemble consumes materials and produces the finished product atomically.
// When any material is short a *ShortageError listing all of them is
// returned and nothing is written.
func (s *Service) Assemble(ctx context.Context, input AssemblyInput) (Assembly, error) {
	if err := validateInput(input.FinishedProductID, input.QuantityToProduce, input.Lines); err != nil {
		s.recordOutcome(err)
		return Assembly{}, err
	}
	release, err := s.claim(ctx, input.IdempotencyKey)
	if err != nil {
		return Assembly{}, err
	}

	result := Assembly{ID: uuid.New(), QuantityProduced: input.QuantityToProduce}
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		result.Movements = nil
		items, err := tx.LockProducts(ctx, productIDs(input.FinishedProductID, input.Lines)...)
		if err != nil {
			return err
		}
		finished, reqs, err := computeRequirements(input.FinishedProductID, input.QuantityToProduce, input.Lines, items)
		if err != nil {
			return err
		}
		if shortages := shortagesOf(reqs); len(shortages) > 0 {
			return &ShortageError{Shortages: shortages}
		}
		if err := tx.ReplaceRecipe(ctx, finished.ID, input.Lines); err != nil {
			return fmt.Errorf("bom: replace recipe: %w", err)
		}

		occurred := s.now().UTC()
		ref := result.ID.String()
		for _, req := range reqs {
			material := items[req.MaterialID]
			mv, err := s.ledger.ApplyChange(ctx, tx, &material, inventory.StockChange{
				Type:        inventory.MovementOut,
				Delta:       -req.Required,
				Description: "Used for assembly of " + finished.Name,
				RefModule:   idempotencyModule,
				RefID:       ref,
				Actor:       input.Actor,
				OccurredAt:  occurred,
			})
			if err != nil {
				return err
			}
			result.Movements = append(result.Movements, mv)
		}
		mv, err := s.ledger.ApplyChange(ctx, tx, &finished, inventory.StockChange{
			Type:        inventory.MovementAssembly,
			Delta:       input.QuantityToProduce,
			Description: fmt.Sprintf("Assembled %s %s", formatQty(input.QuantityToProduce), finished.Name),
			RefModule:   idempotencyModule,
			RefID:       ref,
			Actor:       input.Actor,
			OccurredAt:  occurred,
		})
		if err != nil {
			return err
		}
		result.Movements = append(result.Movements, mv)
		result.FinishedProduct = refOf(finished)
		result.FinishedStock = finished.CurrentStock
		result.Requirements = reqs
		result.AssembledAt = occurred
		return nil
	})
	s.recordOutcome(err)
	if err != nil {
		release()
		return Assembly{}, err
	}
	s.afterAssembly(ctx, input.Actor, result)
	return result, nil
}

// Recipe returns the stored BOM of a finished product, used to prefill the
// next assembly. A product never assembled has an empty recipe.
func (s *Service) Recipe(ctx context.Context, finishedID uuid.UUID) (Recipe, error) {
	items, err := s.repo.LoadProducts(ctx, finishedID)
	if err != nil {
		return Recipe{}, err
	}
	finished, ok := items[finishedID]
	if !ok {
		return Recipe{}, inventory.ErrProductNotFound
	}
	lines, err := s.repo.Recipe(ctx, finishedID)
	if err != nil {
		return Recipe{}, err
	}
	return Recipe{FinishedProduct: refOf(finished), Lines: lines}, nil
}

func (s *Service) claim(ctx context.Context, key string) (func(), error) {
	if key == "" || s.idempotency == nil {
		return func() {}, nil
	}
	if err := s.idempotency.CheckAndInsert(ctx, key, idempotencyModule); err != nil {
		return nil, err
	}
	return func() {
		if err := s.idempotency.Delete(context.WithoutCancel(ctx), key, idempotencyModule); err != nil {
			s.logger.Warn("release idempotency key", slog.String("key", key), slog.Any("error", err))
		}
	}, nil
}

func (s *Service) recordOutcome(err error) {
	if s.metrics == nil {
		return
	}
	switch {
	case err == nil:
		s.metrics.RecordAssembly("success")
	case errors.Is(err, ErrInsufficientMaterials):
		s.metrics.RecordAssembly("shortage")
	case errors.Is(err, shared.ErrValidation):
		s.metrics.RecordAssembly("invalid")
	default:
		s.metrics.RecordAssembly("error")
	}
}

func (s *Service) afterAssembly(ctx context.Context, actor string, a Assembly) {
	if s.metrics != nil {
		for _, mv := range a.Movements {
			s.metrics.RecordMovement(string(mv.Type))
		}
	}
	s.logger.Info("assembly completed",
		slog.String("assembly_id", a.ID.String()),
		slog.String("finished_sku", a.FinishedProduct.SKU),
		slog.Float64("quantity", a.QuantityProduced),
		slog.Int("materials", len(a.Requirements)))
	if s.audit != nil {
		consumed := make(map[string]any, len(a.Requirements))
		for _, r := range a.Requirements {
			consumed[r.MaterialID.String()] = r.Required
		}
		if err := s.audit.Record(ctx, shared.AuditLog{
			Actor:    actor,
			Action:   "bom:assemble",
			Entity:   "product",
			EntityID: a.FinishedProduct.ID.String(),
			Meta: map[string]any{
				"assembly_id": a.ID.String(),
				"quantity":    a.QuantityProduced,
				"consumed":    consumed,
			},
			At: a.AssembledAt,
		}); err != nil {
			s.logger.Warn("audit assembly", slog.String("assembly_id", a.ID.String()), slog.Any("error", err))
		}
	}
	if s.invalidator != nil {
		if err := s.invalidator.Bump(ctx); err != nil {
			s.logger.Warn("invalidate dashboard cache", slog.Any("error", err))
		}
	}
}
