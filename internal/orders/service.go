package orders

import (
	"bytes"
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-orders/pkg/db/models"
	"github.com/angelmondragon/storefront-orders/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-orders/pkg/errors"
	"github.com/angelmondragon/storefront-orders/pkg/logger"
	"github.com/angelmondragon/storefront-orders/pkg/outbox"
	"github.com/angelmondragon/storefront-orders/pkg/outbox/payloads"
	"github.com/angelmondragon/storefront-orders/pkg/pagination"
)

// Service manages the order lifecycle after checkout.
type Service interface {
	Get(ctx context.Context, orderID uuid.UUID, actor Actor) (*models.Order, error)
	GetByNumber(ctx context.Context, orderNumber string, actor Actor) (*models.Order, error)
	ListMine(ctx context.Context, userID uuid.UUID, params pagination.Params) ([]models.Order, int64, error)
	CountMine(ctx context.Context, userID uuid.UUID) (int64, error)
	ListByStatus(ctx context.Context, status enums.OrderStatus, params pagination.Params) ([]models.Order, int64, error)
	Cancel(ctx context.Context, orderID uuid.UUID, actor Actor) (*models.Order, error)
	UpdateStatus(ctx context.Context, orderID uuid.UUID, next enums.OrderStatus, actor Actor) (*models.Order, error)
	HasPurchased(ctx context.Context, userID, productID uuid.UUID) (Purchase, error)
	ConfirmPayment(ctx context.Context, orderID uuid.UUID, reference string, confirmedAt time.Time) (*models.Order, error)
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type service struct {
	repo    Repository
	tx      txRunner
	stock   StockReleaser
	outbox  outbox.Emitter
	metrics transitionRecorder
	logg    *logger.Logger
	now     func() time.Time
}

// Option customises the order service.
type Option func(*service)

// WithMetrics records status transitions.
func WithMetrics(m transitionRecorder) Option {
	return func(s *service) { s.metrics = m }
}

// WithLogger attaches a logger.
func WithLogger(logg *logger.Logger) Option {
	return func(s *service) { s.logg = logg }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *service) { s.now = now }
}

// NewService builds an order service.
func NewService(repo Repository, tx txRunner, stock StockReleaser, emitter outbox.Emitter, opts ...Option) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if stock == nil {
		return nil, fmt.Errorf("stock releaser required")
	}
	if emitter == nil {
		return nil, fmt.Errorf("outbox emitter required")
	}
	s := &service{
		repo:   repo,
		tx:     tx,
		stock:  stock,
		outbox: emitter,
		now:    func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func (s *service) Get(ctx context.Context, orderID uuid.UUID, actor Actor) (*models.Order, error) {
	order, err := s.repo.FindByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if err := canView(order, actor); err != nil {
		return nil, err
	}
	return order, nil
}

func (s *service) GetByNumber(ctx context.Context, orderNumber string, actor Actor) (*models.Order, error) {
	orderNumber = strings.TrimSpace(orderNumber)
	if orderNumber == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order number is required")
	}
	order, err := s.repo.FindByNumber(ctx, orderNumber)
	if err != nil {
		return nil, err
	}
	if err := canView(order, actor); err != nil {
		return nil, err
	}
	return order, nil
}

func (s *service) ListMine(ctx context.Context, userID uuid.UUID, params pagination.Params) ([]models.Order, int64, error) {
	params = params.Normalize()
	total, err := s.repo.CountByUser(ctx, userID)
	if err != nil {
		return nil, 0, err
	}
	if total == 0 {
		return []models.Order{}, 0, nil
	}
	rows, err := s.repo.ListByUser(ctx, userID, params)
	if err != nil {
		return nil, 0, err
	}
	return rows, total, nil
}

func (s *service) CountMine(ctx context.Context, userID uuid.UUID) (int64, error) {
	return s.repo.CountByUser(ctx, userID)
}

// ListByStatus pages every customer's orders for back-office use. Callers
// gate it on the admin role.
func (s *service) ListByStatus(ctx context.Context, status enums.OrderStatus, params pagination.Params) ([]models.Order, int64, error) {
	if status != "" && !status.IsValid() {
		return nil, 0, pkgerrors.New(pkgerrors.CodeValidation, "unknown order status").
			WithDetails(map[string]string{"status": status.String()})
	}
	params = params.Normalize()
	total, err := s.repo.CountByStatus(ctx, status)
	if err != nil {
		return nil, 0, err
	}
	if total == 0 {
		return []models.Order{}, 0, nil
	}
	rows, err := s.repo.ListByStatus(ctx, status, params)
	if err != nil {
		return nil, 0, err
	}
	return rows, total, nil
}

// Cancel lets the owner cancel a PENDING or CONFIRMED order, returning its
// stock. The status guard and the release commit together, so a repeated
// cancel never releases twice.
func (s *service) Cancel(ctx context.Context, orderID uuid.UUID, actor Actor) (*models.Order, error) {
	var (
		result *models.Order
		from   enums.OrderStatus
	)
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		order, err := repo.FindByIDForUpdate(ctx, orderID)
		if err != nil {
			return err
		}
		if order.UserID != actor.UserID {
			return pkgerrors.New(pkgerrors.CodeForbidden, "order belongs to another customer")
		}
		if !order.Status.Cancellable() {
			return pkgerrors.InvalidTransition(order.Status.String(), enums.OrderStatusCancelled.String())
		}

		moved, err := repo.TransitionStatus(ctx, order.ID, []enums.OrderStatus{order.Status}, enums.OrderStatusCancelled)
		if err != nil {
			return err
		}
		if !moved {
			return pkgerrors.InvalidTransition(order.Status.String(), enums.OrderStatusCancelled.String())
		}

		lines := slices.Clone(order.Lines)
		slices.SortFunc(lines, func(a, b models.OrderLine) int {
			return bytes.Compare(a.ProductID[:], b.ProductID[:])
		})
		for _, line := range lines {
			if err := s.stock.Release(ctx, tx, line.ProductID, line.Quantity); err != nil {
				return err
			}
		}

		now := s.now()
		event := outbox.DomainEvent{
			EventType:     enums.EventOrderCanceled,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Actor:         &outbox.ActorRef{UserID: actor.UserID, Role: actor.Role.String()},
			Data: payloads.OrderCanceledEvent{
				OrderID:     order.ID,
				OrderNumber: order.OrderNumber,
				UserID:      order.UserID,
				CanceledAt:  now,
				Lines:       EventLines(order.Lines),
			},
			OccurredAt: now,
		}
		if err := s.outbox.Emit(ctx, tx, event); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "emit order canceled")
		}

		from = order.Status
		order.Status = enums.OrderStatusCancelled
		order.UpdatedAt = now
		result = order
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.recordTransition(ctx, result, from)
	return result, nil
}

// UpdateStatus applies an administrative forward move or DELIVERED to RETURNED.
func (s *service) UpdateStatus(ctx context.Context, orderID uuid.UUID, next enums.OrderStatus, actor Actor) (*models.Order, error) {
	if !actor.IsAdmin() {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "admin role required")
	}
	if !next.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "unknown order status").
			WithDetails(map[string]string{"status": next.String()})
	}

	var (
		result *models.Order
		from   enums.OrderStatus
	)
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		order, err := repo.FindByIDForUpdate(ctx, orderID)
		if err != nil {
			return err
		}
		if !order.Status.CanAdvanceTo(next) {
			return pkgerrors.InvalidTransition(order.Status.String(), next.String())
		}
		moved, err := repo.TransitionStatus(ctx, order.ID, []enums.OrderStatus{order.Status}, next)
		if err != nil {
			return err
		}
		if !moved {
			return pkgerrors.InvalidTransition(order.Status.String(), next.String())
		}
		now := s.now()
		if err := s.emitStatusChanged(ctx, tx, order, next, now, &outbox.ActorRef{UserID: actor.UserID, Role: actor.Role.String()}); err != nil {
			return err
		}
		from = order.Status
		order.Status = next
		order.UpdatedAt = now
		result = order
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.recordTransition(ctx, result, from)
	return result, nil
}

func (s *service) HasPurchased(ctx context.Context, userID, productID uuid.UUID) (Purchase, error) {
	rows, err := s.repo.FindDeliveredWithProduct(ctx, userID, productID)
	if err != nil {
		return Purchase{}, err
	}
	out := Purchase{Purchased: len(rows) > 0, Orders: make([]OrderSummary, 0, len(rows))}
	for _, row := range rows {
		out.Orders = append(out.Orders, newSummary(row))
	}
	return out, nil
}

// ConfirmPayment correlates a gateway payment with the order and moves a
// PENDING order to CONFIRMED. Replays with the same reference are no-ops.
func (s *service) ConfirmPayment(ctx context.Context, orderID uuid.UUID, reference string, confirmedAt time.Time) (*models.Order, error) {
	reference = strings.TrimSpace(reference)
	if reference == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payment reference is required")
	}
	if confirmedAt.IsZero() {
		confirmedAt = s.now()
	}

	var (
		result *models.Order
		from   enums.OrderStatus
	)
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		order, err := repo.FindByIDForUpdate(ctx, orderID)
		if err != nil {
			return err
		}
		if order.Status == enums.OrderStatusCancelled {
			return pkgerrors.InvalidTransition(order.Status.String(), enums.OrderStatusConfirmed.String())
		}
		if order.PaymentReference != nil {
			if *order.PaymentReference == reference {
				result = order
				return nil
			}
			return pkgerrors.New(pkgerrors.CodeConflict, "order already has a different payment reference")
		}

		if err := repo.RecordPayment(ctx, order.ID, reference, confirmedAt); err != nil {
			return err
		}
		ts := confirmedAt.UTC()
		order.PaymentReference = &reference
		order.PaymentConfirmedAt = &ts

		if order.Status != enums.OrderStatusPending {
			result = order
			return nil
		}
		moved, err := repo.TransitionStatus(ctx, order.ID, []enums.OrderStatus{enums.OrderStatusPending}, enums.OrderStatusConfirmed)
		if err != nil {
			return err
		}
		if !moved {
			return pkgerrors.InvalidTransition(order.Status.String(), enums.OrderStatusConfirmed.String())
		}
		if err := s.emitStatusChanged(ctx, tx, order, enums.OrderStatusConfirmed, s.now(), nil); err != nil {
			return err
		}
		from = order.Status
		order.Status = enums.OrderStatusConfirmed
		result = order
		return nil
	})
	if err != nil {
		return nil, err
	}
	if from != "" {
		s.recordTransition(ctx, result, from)
	}
	return result, nil
}

func (s *service) emitStatusChanged(ctx context.Context, tx *gorm.DB, order *models.Order, next enums.OrderStatus, at time.Time, actor *outbox.ActorRef) error {
	event := outbox.DomainEvent{
		EventType:     enums.EventOrderStatusChanged,
		AggregateType: enums.AggregateOrder,
		AggregateID:   order.ID,
		Actor:         actor,
		Data: payloads.OrderStatusChangedEvent{
			OrderID:     order.ID,
			OrderNumber: order.OrderNumber,
			From:        order.Status,
			To:          next,
			ChangedAt:   at,
		},
		OccurredAt: at,
	}
	if err := s.outbox.Emit(ctx, tx, event); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "emit order status changed")
	}
	return nil
}

func (s *service) recordTransition(ctx context.Context, order *models.Order, from enums.OrderStatus) {
	if s.metrics != nil {
		s.metrics.Transition(from.String(), order.Status.String())
	}
	if s.logg != nil {
		logCtx := s.logg.WithOrder(ctx, order.ID.String(), order.OrderNumber)
		logCtx = s.logg.WithFields(logCtx, map[string]any{"from": from.String(), "to": order.Status.String()})
		s.logg.Info(logCtx, "order status changed")
	}
}

func canView(order *models.Order, actor Actor) error {
	if actor.IsAdmin() || order.UserID == actor.UserID {
		return nil
	}
	return pkgerrors.New(pkgerrors.CodeForbidden, "order belongs to another customer")
}
