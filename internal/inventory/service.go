package inventory

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/odyssey-erp/odyssey-stock/internal/shared"
)

// RepositoryPort abstracts repository usage for service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetItem(ctx context.Context, id uuid.UUID) (StockItem, error)
	ListMovements(ctx context.Context, filter MovementFilter) ([]MovementView, error)
	StockCard(ctx context.Context, filter StockCardFilter) ([]StockCardEntry, error)
	Overview(ctx context.Context, filter OverviewFilter) ([]OverviewRow, error)
}

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// IdempotencyPort guards retried requests.
type IdempotencyPort interface {
	CheckAndInsert(ctx context.Context, key, module string) error
	Delete(ctx context.Context, key, module string) error
}

// MetricsPort counts ledger writes.
type MetricsPort interface {
	RecordMovement(movementType string)
}

// PendingSource reports quantities on order but not yet received.
type PendingSource interface {
	PendingByProduct(ctx context.Context) (map[uuid.UUID]float64, error)
}

// ServiceConfig groups optional settings and collaborators.
type ServiceConfig struct {
	AllowNegativeStock bool
	Pending            PendingSource
	Metrics            MetricsPort
	Invalidator        shared.Invalidator
	Logger             *slog.Logger
}

// Service coordinates inventory operations.
type Service struct {
	repo        RepositoryPort
	audit       AuditPort
	idempotency IdempotencyPort
	ledger      Ledger
	pending     PendingSource
	metrics     MetricsPort
	invalidator shared.Invalidator
	logger      *slog.Logger
}

const idempotencyModule = "inventory"

// NewService builds Service.
func NewService(repo RepositoryPort, audit AuditPort, idem IdempotencyPort, cfg ServiceConfig) *Service {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:        repo,
		audit:       audit,
		idempotency: idem,
		ledger:      Ledger{AllowNegative: cfg.AllowNegativeStock},
		pending:     cfg.Pending,
		metrics:     cfg.Metrics,
		invalidator: cfg.Invalidator,
		logger:      logger,
	}
}

// PostMovement records a manual load (IN) or unload (OUT).
func (s *Service) PostMovement(ctx context.Context, input PostMovementInput) (Movement, error) {
	if input.ProductID == uuid.Nil {
		return Movement{}, fmt.Errorf("%w: product required", shared.ErrValidation)
	}
	if input.Type != MovementIn && input.Type != MovementOut {
		return Movement{}, ErrInvalidMovementType
	}
	if input.Quantity <= 0 || math.IsNaN(input.Quantity) || math.IsInf(input.Quantity, 0) {
		return Movement{}, ErrInvalidQuantity
	}
	release, err := s.claim(ctx, input.IdempotencyKey)
	if err != nil {
		return Movement{}, err
	}

	var mv Movement
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		items, err := tx.LockProducts(ctx, input.ProductID)
		if err != nil {
			return err
		}
		item, ok := items[input.ProductID]
		if !ok {
			return ErrProductNotFound
		}
		if !item.Active {
			return ErrProductInactive
		}
		delta := input.Quantity
		verb := "load"
		if input.Type == MovementOut {
			delta = -input.Quantity
			verb = "unload"
		}
		description := input.Notes
		if description == "" {
			description = fmt.Sprintf("Manual %s - %s", verb, item.Name)
		}
		mv, err = s.ledger.ApplyChange(ctx, tx, &item, StockChange{
			Type:        input.Type,
			Delta:       delta,
			Description: description,
			RefModule:   "manual",
			Actor:       input.Actor,
		})
		return err
	})
	if err != nil {
		release()
		return Movement{}, err
	}
	s.afterWrite(ctx, "inventory:"+string(mv.Type), mv)
	return mv, nil
}

// Adjust sets a product stock to an absolute value. It returns nil when
// the stock already matches.
func (s *Service) Adjust(ctx context.Context, input AdjustInput) (*Movement, error) {
	var out *Movement
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		mv, err := s.ledger.Adjust(ctx, tx, input)
		out = mv
		return err
	})
	if err != nil {
		return nil, err
	}
	if out != nil {
		s.afterWrite(ctx, "inventory:ADJUST", *out)
	}
	return out, nil
}

// ListMovements lists movements newest first.
func (s *Service) ListMovements(ctx context.Context, filter MovementFilter) ([]MovementView, error) {
	if filter.Type != "" && !filter.Type.Valid() {
		return nil, ErrInvalidMovementType
	}
	if !filter.From.IsZero() && !filter.To.IsZero() && filter.To.Before(filter.From) {
		return nil, fmt.Errorf("%w: date range end before start", shared.ErrValidation)
	}
	filter.Limit = clampLimit(filter.Limit, DefaultMovementLimit)
	return s.repo.ListMovements(ctx, filter)
}

// StockCard returns the stock card of one product for an optional date range.
func (s *Service) StockCard(ctx context.Context, filter StockCardFilter) (StockCard, error) {
	if filter.ProductID == uuid.Nil {
		return StockCard{}, fmt.Errorf("%w: product required", shared.ErrValidation)
	}
	if !filter.From.IsZero() && !filter.To.IsZero() && filter.To.Before(filter.From) {
		return StockCard{}, fmt.Errorf("%w: date range end before start", shared.ErrValidation)
	}
	item, err := s.repo.GetItem(ctx, filter.ProductID)
	if err != nil {
		return StockCard{}, err
	}
	filter.Limit = clampLimit(filter.Limit, MaxMovementLimit)
	entries, err := s.repo.StockCard(ctx, filter)
	if err != nil {
		return StockCard{}, err
	}
	return StockCard{
		ProductID: item.ID,
		SKU:       item.SKU,
		Name:      item.Name,
		Unit:      item.Unit,
		Current:   item.CurrentStock,
		Entries:   entries,
	}, nil
}

// Overview lists active products with pending incoming quantity and stock status.
func (s *Service) Overview(ctx context.Context, filter OverviewFilter) ([]OverviewRow, error) {
	rows, err := s.repo.Overview(ctx, filter)
	if err != nil {
		return nil, err
	}
	var pending map[uuid.UUID]float64
	if s.pending != nil {
		pending, err = s.pending.PendingByProduct(ctx)
		if err != nil {
			return nil, err
		}
	}
	for i := range rows {
		rows[i].Incoming = pending[rows[i].ProductID]
		rows[i].Status = StockStatus(rows[i].CurrentStock, rows[i].MinStock)
	}
	return rows, nil
}

// claim reserves an idempotency key. The returned func releases it and must
// be called when processing fails.
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

func (s *Service) afterWrite(ctx context.Context, action string, mv Movement) {
	if s.metrics != nil {
		s.metrics.RecordMovement(string(mv.Type))
	}
	if s.audit != nil {
		if err := s.audit.Record(ctx, shared.AuditLog{
			Actor:    mv.Actor,
			Action:   action,
			Entity:   "movement",
			EntityID: mv.ID.String(),
			Meta: map[string]any{
				"product_id": mv.ProductID.String(),
				"quantity":   mv.Quantity,
				"qty_after":  mv.QtyAfter,
			},
			At: mv.OccurredAt,
		}); err != nil {
			s.logger.Warn("audit movement", slog.String("movement_id", mv.ID.String()), slog.Any("error", err))
		}
	}
	if s.invalidator != nil {
		if err := s.invalidator.Bump(ctx); err != nil {
			s.logger.Warn("invalidate dashboard cache", slog.Any("error", err))
		}
	}
}

func clampLimit(limit, fallback int) int {
	if limit <= 0 {
		return fallback
	}
	if limit > MaxMovementLimit {
		return MaxMovementLimit
	}
	return limit
}

// DayRange returns [start of from's day, end of to's day] in loc.
func DayRange(from, to time.Time, loc *time.Location) (time.Time, time.Time) {
	if loc == nil {
		loc = time.UTC
	}
	var start, end time.Time
	if !from.IsZero() {
		y, m, d := from.Date()
		start = time.Date(y, m, d, 0, 0, 0, 0, loc)
	}
	if !to.IsZero() {
		y, m, d := to.Date()
		end = time.Date(y, m, d, 0, 0, 0, 0, loc).Add(24*time.Hour - time.Nanosecond)
	}
	return start, end
}
