package payloads

import (
	"time"

	"github.com/angelmondragon/storefront-orders/pkg/enums"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// OrderLine is the per-product slice of an order carried on events.
type OrderLine struct {
	ProductID uuid.UUID       `json:"product_id"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}

// OrderCreatedEvent is emitted once checkout has committed an order.
type OrderCreatedEvent struct {
	OrderID           uuid.UUID       `json:"order_id"`
	OrderNumber       string          `json:"order_number"`
	UserID            uuid.UUID       `json:"user_id"`
	TotalAmount       decimal.Decimal `json:"total_amount"`
	EstimatedDelivery time.Time       `json:"estimated_delivery"`
	Lines             []OrderLine     `json:"lines"`
}

// OrderCanceledEvent is emitted when an owner cancels and stock has been released.
type OrderCanceledEvent struct {
	OrderID     uuid.UUID   `json:"order_id"`
	OrderNumber string      `json:"order_number"`
	UserID      uuid.UUID   `json:"user_id"`
	CanceledAt  time.Time   `json:"canceled_at"`
	Lines       []OrderLine `json:"lines"`
}

// OrderStatusChangedEvent is emitted on every admin or payment driven transition.
type OrderStatusChangedEvent struct {
	OrderID     uuid.UUID         `json:"order_id"`
	OrderNumber string            `json:"order_number"`
	From        enums.OrderStatus `json:"from"`
	To          enums.OrderStatus `json:"to"`
	ChangedAt   time.Time         `json:"changed_at"`
}

// PaymentConfirmedEvent arrives from the payment gateway.
type PaymentConfirmedEvent struct {
	OrderID          uuid.UUID       `json:"order_id"`
	PaymentReference string          `json:"payment_reference"`
	Amount           decimal.Decimal `json:"amount"`
	ConfirmedAt      time.Time       `json:"confirmed_at"`
}
