package checkout

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-orders/internal/cart"
	"github.com/angelmondragon/storefront-orders/internal/checkout/helpers"
	"github.com/angelmondragon/storefront-orders/internal/orders"
	"github.com/angelmondragon/storefront-orders/internal/stock"
	"github.com/angelmondragon/storefront-orders/pkg/config"
	dbpkg "github.com/angelmondragon/storefront-orders/pkg/db"
	"github.com/angelmondragon/storefront-orders/pkg/db/models"
	"github.com/angelmondragon/storefront-orders/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-orders/pkg/errors"
	"github.com/angelmondragon/storefront-orders/pkg/logger"
	"github.com/angelmondragon/storefront-orders/pkg/outbox"
	"github.com/angelmondragon/storefront-orders/pkg/outbox/payloads"
)

const tracerName = "github.com/angelmondragon/storefront-orders/internal/checkout"

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type stockReserver interface {
	TryReserve(ctx context.Context, tx *gorm.DB, productID uuid.UUID, qty int) (bool, error)
	Release(ctx context.Context, tx *gorm.DB, productID uuid.UUID, qty int) error
}

type outcomeRecorder interface {
	CheckoutOutcome(outcome string, attempts int)
}

// Service turns the caller's cart into an order.
type Service interface {
	Checkout(ctx context.Context, buyer orders.Actor, input Input) (*models.Order, error)
}

// Input captures the delivery details supplied at checkout.
type Input struct {
	ShippingAddress string `json:"shipping_address"`
	Phone           string `json:"phone"`
}

type service struct {
	tx          txRunner
	cartRepo    cart.Repository
	ordersRepo  orders.Repository
	stock       stockReserver
	outbox      outbox.Emitter
	metrics     outcomeRecorder
	logg        *logger.Logger
	maxAttempts int
	leadTime    time.Duration
	now         func() time.Time
	orderNumber func(time.Time) string
}

// Option customises the checkout service.
type Option func(*service)

func WithMetrics(m outcomeRecorder) Option {
	return func(s *service) { s.metrics = m }
}

func WithLogger(logg *logger.Logger) Option {
	return func(s *service) { s.logg = logg }
}

func WithClock(now func() time.Time) Option {
	return func(s *service) { s.now = now }
}

// WithOrderNumbers overrides how order numbers are minted.
func WithOrderNumbers(fn func(time.Time) string) Option {
	return func(s *service) { s.orderNumber = fn }
}

// NewService builds the checkout service.
func NewService(
	cfg config.CheckoutConfig,
	tx txRunner,
	cartRepo cart.Repository,
	ordersRepo orders.Repository,
	reserver stockReserver,
	emitter outbox.Emitter,
	opts ...Option,
) (Service, error) {
	if tx == nil {
		return nil, fmt.Errorf("tx runner required")
	}
	if cartRepo == nil {
		return nil, fmt.Errorf("cart repository required")
	}
	if ordersRepo == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if reserver == nil {
		return nil, fmt.Errorf("stock reserver required")
	}
	if emitter == nil {
		return nil, fmt.Errorf("outbox emitter required")
	}
	s := &service{
		tx:          tx,
		cartRepo:    cartRepo,
		ordersRepo:  ordersRepo,
		stock:       reserver,
		outbox:      emitter,
		maxAttempts: cfg.MaxAttempts,
		leadTime:    time.Duration(cfg.DeliveryLeadDays) * 24 * time.Hour,
		now:         func() time.Time { return time.Now().UTC() },
		orderNumber: helpers.NewOrderNumber,
	}
	if s.maxAttempts < 1 {
		s.maxAttempts = 1
	}
	if cfg.DeliveryLeadDays < 0 {
		s.leadTime = 0
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Checkout reserves every cart line, persists the order, clears the cart and
// queues OrderCreated in one transaction. Stock conflicts restart the whole
// transaction up to the configured number of attempts.
func (s *service) Checkout(ctx context.Context, buyer orders.Actor, input Input) (order *models.Order, err error) {
	address, phone, err := helpers.ValidateShipping(input.ShippingAddress, input.Phone)
	if err != nil {
		return nil, err
	}

	ctx, span := otel.Tracer(tracerName).Start(ctx, "checkout.Checkout")
	span.SetAttributes(attribute.String("user.id", buyer.UserID.String()))
	attempts := 0
	defer func() {
		outcome := outcomeFor(err)
		span.SetAttributes(attribute.Int("checkout.attempts", attempts), attribute.String("checkout.outcome", outcome))
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, outcome)
		}
		span.End()
		if s.metrics != nil {
			s.metrics.CheckoutOutcome(outcome, attempts)
		}
	}()

	var lastConflict error
	for attempts < s.maxAttempts {
		attempts++
		order, err = s.attempt(ctx, buyer, address, phone)
		if err == nil {
			s.logSuccess(ctx, order, attempts)
			return order, nil
		}
		if !retryable(err) {
			return nil, err
		}
		lastConflict = err
		s.logRetry(ctx, err, attempts)
	}
	return nil, exhausted(lastConflict)
}

func (s *service) attempt(ctx context.Context, buyer orders.Actor, address, phone string) (*models.Order, error) {
	userID := buyer.UserID
	var result *models.Order
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) (err error) {
		cartRepo := s.cartRepo.WithTx(tx)
		ordersRepo := s.ordersRepo.WithTx(tx)

		lines, err := cartRepo.ListByUser(ctx, userID)
		if err != nil {
			return err
		}
		if len(lines) == 0 {
			return pkgerrors.EmptyCart()
		}
		lines = helpers.SortByProduct(lines)

		comp := &compensator{stock: s.stock, tx: tx}
		defer func() {
			if err != nil {
				err = comp.rollback(ctx, err)
			}
		}()

		for _, line := range lines {
			ok, err := s.stock.TryReserve(ctx, tx, line.ProductID, line.Quantity)
			if err != nil {
				return err
			}
			if !ok {
				return pkgerrors.InsufficientStock(line.ProductID)
			}
			comp.granted(line.ProductID, line.Quantity)
		}

		now := s.now()
		orderLines, total := helpers.BuildOrderLines(lines)
		order := &models.Order{
			ID:                uuid.New(),
			UserID:            userID,
			OrderNumber:       s.orderNumber(now),
			Status:            enums.OrderStatusPending,
			TotalAmount:       total,
			ShippingAddress:   address,
			Phone:             phone,
			EstimatedDelivery: now.Add(s.leadTime),
			Lines:             orderLines,
		}
		if err := ordersRepo.Create(ctx, order); err != nil {
			if dbpkg.IsUniqueViolation(err, orders.UniqueOrderNumber) || dbpkg.IsUniqueViolation(err, "orders.order_number") {
				return &orderNumberTaken{number: order.OrderNumber, err: err}
			}
			if dbpkg.IsRetryableConflict(err) {
				return err
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create order")
		}

		if _, err := cartRepo.DeleteByUser(ctx, userID); err != nil {
			return err
		}

		event := outbox.DomainEvent{
			EventType:     enums.EventOrderCreated,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Actor:         &outbox.ActorRef{UserID: userID, Role: buyer.Role.String()},
			Data: payloads.OrderCreatedEvent{
				OrderID:           order.ID,
				OrderNumber:       order.OrderNumber,
				UserID:            userID,
				TotalAmount:       order.TotalAmount,
				EstimatedDelivery: order.EstimatedDelivery,
				Lines:             orders.EventLines(order.Lines),
			},
			OccurredAt: now,
		}
		if err := s.outbox.Emit(ctx, tx, event); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "emit order created")
		}

		order.CreatedAt = now
		order.UpdatedAt = now
		result = order
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

type orderNumberTaken struct {
	number string
	err    error
}

func (e *orderNumberTaken) Error() string {
	return fmt.Sprintf("order number %s already taken: %v", e.number, e.err)
}

func (e *orderNumberTaken) Unwrap() error { return e.err }

func retryable(err error) bool {
	if _, ok := stock.IsConflict(err); ok {
		return true
	}
	var taken *orderNumberTaken
	if errors.As(err, &taken) {
		return true
	}
	return pkgerrors.As(err) == nil && dbpkg.IsRetryableConflict(err)
}

// exhausted maps the last retryable failure to the error surfaced to callers.
func exhausted(last error) error {
	if conflict, ok := stock.IsConflict(last); ok {
		return pkgerrors.InsufficientStock(conflict.ProductID)
	}
	var taken *orderNumberTaken
	if errors.As(last, &taken) {
		return pkgerrors.Wrap(pkgerrors.CodeConflict, last, "could not allocate a unique order number")
	}
	return pkgerrors.Wrap(pkgerrors.CodeConflict, last, "checkout conflicted with concurrent writes")
}

func outcomeFor(err error) string {
	if err == nil {
		return "success"
	}
	if typed := pkgerrors.As(err); typed != nil {
		switch typed.Code() {
		case pkgerrors.CodeEmptyCart:
			return "empty_cart"
		case pkgerrors.CodeInsufficientStock:
			return "insufficient_stock"
		case pkgerrors.CodeValidation:
			return "invalid"
		case pkgerrors.CodeConflict:
			return "conflict"
		}
	}
	return "error"
}

func (s *service) logSuccess(ctx context.Context, order *models.Order, attempts int) {
	if s.logg == nil {
		return
	}
	logCtx := s.logg.WithOrder(ctx, order.ID.String(), order.OrderNumber)
	logCtx = s.logg.WithField(logCtx, "attempts", attempts)
	s.logg.Info(logCtx, "checkout completed")
}

func (s *service) logRetry(ctx context.Context, err error, attempt int) {
	if s.logg == nil {
		return
	}
	logCtx := s.logg.WithFields(ctx, map[string]any{
		"attempt": attempt,
		"reason":  err.Error(),
	})
	s.logg.Warn(logCtx, "checkout attempt conflicted, retrying")
}
