package incoming

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/odyssey-erp/odyssey-stock/internal/inventory"
	"github.com/odyssey-erp/odyssey-stock/internal/platform/cache"
	"github.com/odyssey-erp/odyssey-stock/internal/shared"
)

// RepositoryPort abstracts repository usage for service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	ListPending(ctx context.Context) ([]Order, error)
	Overdue(ctx context.Context, asOf time.Time) ([]Order, error)
	PendingByProduct(ctx context.Context) (map[uuid.UUID]float64, error)
}

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// LockPort hands out per-order locks.
type LockPort interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (*cache.Lock, error)
}

// MetricsPort counts arrivals and the movements they write.
type MetricsPort interface {
	RecordMovement(movementType string)
	RecordArrival()
}

// ServiceConfig groups optional settings.
type ServiceConfig struct {
	Location    *time.Location
	LockTTL     time.Duration
	Metrics     MetricsPort
	Invalidator shared.Invalidator
	Logger      *slog.Logger
	Now         func() time.Time
}

// Service coordinates incoming order operations.
type Service struct {
	repo        RepositoryPort
	audit       AuditPort
	locks       LockPort
	ledger      inventory.Ledger
	loc         *time.Location
	lockTTL     time.Duration
	metrics     MetricsPort
	invalidator shared.Invalidator
	logger      *slog.Logger
	now         func() time.Time
}

const defaultLockTTL = 30 * time.Second

// NewService builds Service.
func NewService(repo RepositoryPort, audit AuditPort, locks LockPort, cfg ServiceConfig) *Service {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	loc := cfg.Location
	if loc == nil {
		loc = time.UTC
	}
	ttl := cfg.LockTTL
	if ttl <= 0 {
		ttl = defaultLockTTL
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Service{
		repo:        repo,
		audit:       audit,
		locks:       locks,
		ledger:      inventory.Ledger{Now: now},
		loc:         loc,
		lockTTL:     ttl,
		metrics:     cfg.Metrics,
		invalidator: cfg.Invalidator,
		logger:      logger,
		now:         now,
	}
}

// Create registers a pending order for an active product.
func (s *Service) Create(ctx context.Context, input CreateInput) (Order, error) {
	fields := map[string]string{}
	if input.ProductID == uuid.Nil {
		fields["product_id"] = "required"
	}
	if !(input.OrderedQuantity > 0) || math.IsInf(input.OrderedQuantity, 0) {
		fields["ordered_quantity"] = "must be greater than 0"
	}
	now := s.now().UTC()
	orderDate := civilDate(now, s.loc)
	if input.OrderDate != nil {
		orderDate = civilDate(*input.OrderDate, s.loc)
	}
	var expected *time.Time
	if input.ExpectedArrivalDate != nil {
		d := civilDate(*input.ExpectedArrivalDate, s.loc)
		if d.Before(orderDate) {
			fields["expected_arrival_date"] = "cannot be before the order date"
		}
		expected = &d
	}
	if err := shared.NewValidationError(fields); err != nil {
		return Order{}, err
	}

	order := Order{
		ID:                  uuid.New(),
		ProductID:           input.ProductID,
		OrderedQuantity:     input.OrderedQuantity,
		OrderDate:           orderDate,
		ExpectedArrivalDate: expected,
		Notes:               strings.TrimSpace(input.Notes),
		Status:              StatusPending,
		CreatedAt:           now,
		UpdatedAt:           now,
	}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		items, err := tx.LockProducts(ctx, input.ProductID)
		if err != nil {
			return err
		}
		item, ok := items[input.ProductID]
		if !ok {
			return shared.NewValidationError(map[string]string{"product_id": "unknown product"})
		}
		if !item.Active {
			return shared.NewValidationError(map[string]string{"product_id": "product is inactive"})
		}
		order.ProductSKU, order.ProductName, order.ProductUnit = item.SKU, item.Name, item.Unit
		return tx.InsertOrder(ctx, order)
	})
	if err != nil {
		return Order{}, err
	}
	order = withLabel(order)
	s.afterWrite(ctx, input.Actor, "incoming:create", order, map[string]any{
		"product_id": order.ProductID.String(),
		"quantity":   order.OrderedQuantity,
	})
	return order, nil
}

// ListPending returns pending orders by expected arrival, undated last.
func (s *Service) ListPending(ctx context.Context) ([]Order, error) {
	orders, err := s.repo.ListPending(ctx)
	if err != nil {
		return nil, err
	}
	sortPending(orders)
	return orders, nil
}

// MarkArrived receives an order and loads its quantity into stock.
// Concurrent calls for one order fail fast with ErrOrderBusy.
func (s *Service) MarkArrived(ctx context.Context, id uuid.UUID, actor string) (Arrival, error) {
	lock, err := s.acquire(ctx, id)
	if err != nil {
		return Arrival{}, err
	}
	defer func() {
		if err := lock.Release(context.WithoutCancel(ctx)); err != nil {
			s.logger.Warn("release order lock", slog.String("order_id", id.String()), slog.Any("error", err))
		}
	}()

	var result Arrival
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		order, err := tx.LockOrder(ctx, id)
		if err != nil {
			return err
		}
		if order.Status != StatusPending {
			return ErrOrderNotPending
		}
		now := s.now().UTC()
		if err := tx.SetStatus(ctx, id, StatusArrived, &now, now); err != nil {
			return err
		}
		items, err := tx.LockProducts(ctx, order.ProductID)
		if err != nil {
			return err
		}
		item, ok := items[order.ProductID]
		if !ok {
			return inventory.ErrProductNotFound
		}
		mv, err := s.ledger.ApplyChange(ctx, tx, &item, inventory.StockChange{
			Type:        inventory.MovementIn,
			Delta:       order.OrderedQuantity,
			Description: "Arrival of ordered goods - " + item.Name,
			RefModule:   "incoming",
			RefID:       order.ID.String(),
			Actor:       actor,
			OccurredAt:  now,
		})
		if err != nil {
			return err
		}
		order.Status = StatusArrived
		order.ArrivedAt = &now
		order.UpdatedAt = now
		result = Arrival{Order: withLabel(order), Movement: mv}
		return nil
	})
	if err != nil {
		return Arrival{}, err
	}
	if s.metrics != nil {
		s.metrics.RecordArrival()
		s.metrics.RecordMovement(string(result.Movement.Type))
	}
	s.afterWrite(ctx, actor, "incoming:arrive", result.Order, map[string]any{
		"movement_id": result.Movement.ID.String(),
		"quantity":    result.Movement.Quantity,
		"stock_after": result.Movement.QtyAfter,
	})
	return result, nil
}

// Cancel moves a pending order to cancelled.
func (s *Service) Cancel(ctx context.Context, id uuid.UUID, actor string) (Order, error) {
	lock, err := s.acquire(ctx, id)
	if err != nil {
		return Order{}, err
	}
	defer func() {
		if err := lock.Release(context.WithoutCancel(ctx)); err != nil {
			s.logger.Warn("release order lock", slog.String("order_id", id.String()), slog.Any("error", err))
		}
	}()

	var order Order
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		order, err = tx.LockOrder(ctx, id)
		if err != nil {
			return err
		}
		if order.Status != StatusPending {
			return ErrOrderNotPending
		}
		now := s.now().UTC()
		order.Status = StatusCancelled
		order.UpdatedAt = now
		return tx.SetStatus(ctx, id, StatusCancelled, nil, now)
	})
	if err != nil {
		return Order{}, err
	}
	order = withLabel(order)
	s.afterWrite(ctx, actor, "incoming:cancel", order, nil)
	return order, nil
}

// PendingByProduct sums pending quantities per product.
func (s *Service) PendingByProduct(ctx context.Context) (map[uuid.UUID]float64, error) {
	return s.repo.PendingByProduct(ctx)
}

// Overdue returns pending orders whose expected date is before the day of asOf.
func (s *Service) Overdue(ctx context.Context, asOf time.Time) ([]Order, error) {
	return s.repo.Overdue(ctx, civilDate(asOf, s.loc))
}

func (s *Service) acquire(ctx context.Context, id uuid.UUID) (*cache.Lock, error) {
	if s.locks == nil {
		return &cache.Lock{}, nil
	}
	lock, err := s.locks.Acquire(ctx, shared.IncomingOrderLockKey(id.String()), s.lockTTL)
	if errors.Is(err, cache.ErrLockNotAcquired) {
		return nil, ErrOrderBusy
	}
	if err != nil {
		return nil, fmt.Errorf("incoming: acquire lock: %w", err)
	}
	return lock, nil
}

func (s *Service) afterWrite(ctx context.Context, actor, action string, o Order, meta map[string]any) {
	if s.audit != nil {
		if actor == "" {
			actor = shared.SystemActor
		}
		if err := s.audit.Record(ctx, shared.AuditLog{
			Actor:    actor,
			Action:   action,
			Entity:   "incoming_order",
			EntityID: o.ID.String(),
			Meta:     meta,
			At:       o.UpdatedAt,
		}); err != nil {
			s.logger.Warn("audit incoming order", slog.String("order_id", o.ID.String()), slog.Any("error", err))
		}
	}
	if s.invalidator != nil {
		if err := s.invalidator.Bump(ctx); err != nil {
			s.logger.Warn("invalidate dashboard cache", slog.Any("error", err))
		}
	}
}
