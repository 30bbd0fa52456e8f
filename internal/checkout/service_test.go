package checkout_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/storefront-orders/internal/cart"
	"github.com/angelmondragon/storefront-orders/internal/checkout"
	"github.com/angelmondragon/storefront-orders/internal/orders"
	"github.com/angelmondragon/storefront-orders/internal/stock"
	"github.com/angelmondragon/storefront-orders/pkg/config"
	"github.com/angelmondragon/storefront-orders/pkg/db"
	"github.com/angelmondragon/storefront-orders/pkg/db/dbtest"
	"github.com/angelmondragon/storefront-orders/pkg/db/models"
	"github.com/angelmondragon/storefront-orders/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-orders/pkg/errors"
	"github.com/angelmondragon/storefront-orders/pkg/outbox"
)

type outcomes struct {
	mu   sync.Mutex
	seen map[string]int
}

func (o *outcomes) CheckoutOutcome(outcome string, attempts int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.seen == nil {
		o.seen = map[string]int{}
	}
	o.seen[outcome]++
}

type harness struct {
	client   *db.Client
	cartRepo cart.Repository
	orders   orders.Repository
	metrics  *outcomes
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	return harnessOn(dbtest.NewSQLite(t))
}

func harnessOn(client *db.Client) *harness {
	return &harness{
		client:   client,
		cartRepo: cart.NewRepository(client.DB()),
		orders:   orders.NewRepository(client.DB()),
		metrics:  &outcomes{},
	}
}

func (h *harness) service(t *testing.T, opts ...checkout.Option) checkout.Service {
	t.Helper()
	opts = append([]checkout.Option{checkout.WithMetrics(h.metrics)}, opts...)
	svc, err := checkout.NewService(
		config.CheckoutConfig{MaxAttempts: 3, DeliveryLeadDays: 3},
		h.client,
		h.cartRepo,
		h.orders,
		stock.NewLedger(h.client, nil),
		outbox.NewService(outbox.NewRepository(h.client.DB()), nil),
		opts...,
	)
	require.NoError(t, err)
	return svc
}

func (h *harness) addLine(t *testing.T, user models.User, product models.Product, qty int) {
	t.Helper()
	line := &models.CartLine{UserID: user.ID, ProductID: product.ID, Quantity: qty, PriceAtAdd: product.Price}
	require.NoError(t, h.cartRepo.Create(context.Background(), line))
}

func (h *harness) cartSize(t *testing.T, user models.User) int {
	t.Helper()
	lines, err := h.cartRepo.ListByUser(context.Background(), user.ID)
	require.NoError(t, err)
	return len(lines)
}

func (h *harness) orderCount(t *testing.T) int64 {
	t.Helper()
	var n int64
	require.NoError(t, h.client.DB().Model(&models.Order{}).Count(&n).Error)
	return n
}

var shipping = checkout.Input{ShippingAddress: "1 Main St", Phone: "555-0100"}

func buyer(user models.User) orders.Actor {
	return orders.Actor{UserID: user.ID, Role: user.Role}
}

func TestCheckoutScenarioX(t *testing.T) {
	h := newHarness(t)
	conn := h.client.DB()
	now := time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)
	svc := h.service(t, checkout.WithClock(func() time.Time { return now }))
	ctx := context.Background()

	user := dbtest.SeedUser(t, conn, "x@example.com", enums.UserRoleCustomer)
	product := dbtest.SeedProduct(t, conn, "X", "10.00", 5)
	h.addLine(t, user, product, 2)

	order, err := svc.Checkout(ctx, buyer(user), shipping)
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStatusPending, order.Status)
	assert.True(t, order.TotalAmount.Equal(decimal.RequireFromString("20.00")), "total %s", order.TotalAmount)
	require.Len(t, order.Lines, 1)
	assert.True(t, order.Lines[0].Subtotal.Equal(decimal.RequireFromString("20.00")))
	assert.Equal(t, now.Add(72*time.Hour), order.EstimatedDelivery)
	assert.Regexp(t, `^ORD\d+$`, order.OrderNumber)

	assert.Equal(t, 3, dbtest.Stock(t, conn, product.ID))
	assert.Equal(t, 0, h.cartSize(t, user))

	var events []models.OutboxEvent
	require.NoError(t, conn.Find(&events).Error)
	require.Len(t, events, 1)
	assert.Equal(t, enums.EventOrderCreated, events[0].EventType)
	assert.Equal(t, order.ID, events[0].AggregateID)
	envelope, err := outbox.DecodeEnvelope(events[0].Payload)
	require.NoError(t, err)
	require.NotNil(t, envelope.Actor)
	assert.Equal(t, user.ID, envelope.Actor.UserID)
	assert.Equal(t, enums.UserRoleCustomer.String(), envelope.Actor.Role)

	ordersSvc, err := orders.NewService(h.orders, h.client, stock.NewLedger(h.client, nil), outbox.NewService(outbox.NewRepository(conn), nil))
	require.NoError(t, err)
	canceled, err := ordersSvc.Cancel(ctx, order.ID, buyer(user))
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStatusCancelled, canceled.Status)
	assert.Equal(t, 5, dbtest.Stock(t, conn, product.ID))
	assert.Equal(t, 1, h.metrics.seen["success"])
}

func TestCheckoutScenarioYLeavesEverything(t *testing.T) {
	h := newHarness(t)
	conn := h.client.DB()
	svc := h.service(t)

	user := dbtest.SeedUser(t, conn, "y@example.com", enums.UserRoleCustomer)
	product := dbtest.SeedProduct(t, conn, "Y", "3.00", 2)
	h.addLine(t, user, product, 3)

	_, err := svc.Checkout(context.Background(), buyer(user), shipping)
	require.Error(t, err)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeInsufficientStock))
	assert.Equal(t, map[string]string{"product_id": product.ID.String()}, pkgerrors.As(err).Details())

	assert.Equal(t, 2, dbtest.Stock(t, conn, product.ID))
	assert.Equal(t, 1, h.cartSize(t, user))
	assert.EqualValues(t, 0, h.orderCount(t))
	assert.Equal(t, 1, h.metrics.seen["insufficient_stock"])
}

func TestCheckoutAllOrNothing(t *testing.T) {
	h := newHarness(t)
	conn := h.client.DB()
	svc := h.service(t)

	user := dbtest.SeedUser(t, conn, "aon@example.com", enums.UserRoleCustomer)
	inStock := dbtest.SeedProduct(t, conn, "A", "5.00", 10)
	soldOut := dbtest.SeedProduct(t, conn, "B", "7.00", 0)
	h.addLine(t, user, inStock, 4)
	h.addLine(t, user, soldOut, 1)

	_, err := svc.Checkout(context.Background(), buyer(user), shipping)
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeInsufficientStock))
	assert.Equal(t, map[string]string{"product_id": soldOut.ID.String()}, pkgerrors.As(err).Details())

	assert.Equal(t, 10, dbtest.Stock(t, conn, inStock.ID))
	assert.Equal(t, 0, dbtest.Stock(t, conn, soldOut.ID))
	assert.Equal(t, 2, h.cartSize(t, user))
	assert.EqualValues(t, 0, h.orderCount(t))
}

func TestCheckoutEmptyCart(t *testing.T) {
	h := newHarness(t)
	svc := h.service(t)
	user := dbtest.SeedUser(t, h.client.DB(), "empty@example.com", enums.UserRoleCustomer)

	_, err := svc.Checkout(context.Background(), buyer(user), shipping)
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeEmptyCart))
	assert.Equal(t, 1, h.metrics.seen["empty_cart"])
}

func TestCheckoutRecordsCallerRoleOnEvent(t *testing.T) {
	h := newHarness(t)
	conn := h.client.DB()
	svc := h.service(t)

	admin := dbtest.SeedUser(t, conn, "ops@example.com", enums.UserRoleAdmin)
	product := dbtest.SeedProduct(t, conn, "Z", "4.00", 2)
	h.addLine(t, admin, product, 1)

	_, err := svc.Checkout(context.Background(), buyer(admin), shipping)
	require.NoError(t, err)

	var event models.OutboxEvent
	require.NoError(t, conn.Where("event_type = ?", enums.EventOrderCreated).First(&event).Error)
	envelope, err := outbox.DecodeEnvelope(event.Payload)
	require.NoError(t, err)
	require.NotNil(t, envelope.Actor)
	assert.Equal(t, enums.UserRoleAdmin.String(), envelope.Actor.Role)
}

func TestCheckoutValidatesShipping(t *testing.T) {
	h := newHarness(t)
	svc := h.service(t)

	_, err := svc.Checkout(context.Background(), orders.Actor{UserID: uuid.New()}, checkout.Input{Phone: "555"})
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestCheckoutRetriesOrderNumberCollision(t *testing.T) {
	h := newHarness(t)
	conn := h.client.DB()

	owner := dbtest.SeedUser(t, conn, "first@example.com", enums.UserRoleCustomer)
	require.NoError(t, conn.Create(&models.Order{
		UserID:            owner.ID,
		OrderNumber:       "ORD1",
		Status:            enums.OrderStatusPending,
		TotalAmount:       decimal.Zero,
		ShippingAddress:   "x",
		Phone:             "1",
		EstimatedDelivery: time.Now().UTC(),
	}).Error)

	numbers := []string{"ORD1", "ORD2"}
	var calls int
	svc := h.service(t, checkout.WithOrderNumbers(func(time.Time) string {
		n := numbers[calls]
		calls++
		return n
	}))

	user := dbtest.SeedUser(t, conn, "second@example.com", enums.UserRoleCustomer)
	product := dbtest.SeedProduct(t, conn, "X", "1.00", 3)
	h.addLine(t, user, product, 1)

	order, err := svc.Checkout(context.Background(), buyer(user), shipping)
	require.NoError(t, err)
	assert.Equal(t, "ORD2", order.OrderNumber)
	assert.Equal(t, 2, calls)
	assert.Equal(t, 2, dbtest.Stock(t, conn, product.ID))
}

func TestConcurrentCheckoutsNeverOversell(t *testing.T) {
	dbtest.Each(t, func(t *testing.T, client *db.Client) {
		checkoutRace(t, harnessOn(client))
	})
}

func checkoutRace(t *testing.T, h *harness) {
	const (
		buyers = 12
		units  = 5
	)
	conn := h.client.DB()
	svc := h.service(t)
	product := dbtest.SeedProduct(t, conn, "last-units", "9.99", units)

	users := make([]models.User, buyers)
	for i := range users {
		users[i] = dbtest.SeedUser(t, conn, fmt.Sprintf("buyer%d@example.com", i), enums.UserRoleCustomer)
		h.addLine(t, users[i], product, 1)
	}

	var (
		wg           sync.WaitGroup
		mu           sync.Mutex
		succeeded    int
		insufficient int
		other        []error
	)
	start := make(chan struct{})
	for _, user := range users {
		wg.Add(1)
		go func(user models.User) {
			defer wg.Done()
			<-start
			_, err := svc.Checkout(context.Background(), buyer(user), shipping)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				succeeded++
			case pkgerrors.IsCode(err, pkgerrors.CodeInsufficientStock):
				insufficient++
			default:
				other = append(other, err)
			}
		}(user)
	}
	close(start)
	wg.Wait()

	require.Empty(t, other)
	assert.Equal(t, units, succeeded)
	assert.Equal(t, buyers-units, insufficient)
	assert.Equal(t, 0, dbtest.Stock(t, conn, product.ID))
	assert.EqualValues(t, units, h.orderCount(t))
}
