package orders

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/storefront-orders/pkg/db/models"
	"github.com/angelmondragon/storefront-orders/pkg/enums"
	"github.com/angelmondragon/storefront-orders/pkg/outbox/payloads"
)

// LineView is the API shape of an order line.
type LineView struct {
	ProductID   uuid.UUID       `json:"product_id"`
	Quantity    int             `json:"quantity"`
	PriceAtTime decimal.Decimal `json:"price_at_time"`
	Subtotal    decimal.Decimal `json:"subtotal"`
}

// OrderView is the API shape of an order.
type OrderView struct {
	ID                 uuid.UUID         `json:"id"`
	OrderNumber        string            `json:"order_number"`
	UserID             uuid.UUID         `json:"user_id"`
	Status             enums.OrderStatus `json:"status"`
	TotalAmount        decimal.Decimal   `json:"total_amount"`
	ShippingAddress    string            `json:"shipping_address"`
	Phone              string            `json:"phone"`
	EstimatedDelivery  time.Time         `json:"estimated_delivery"`
	PaymentReference   *string           `json:"payment_reference,omitempty"`
	PaymentConfirmedAt *time.Time        `json:"payment_confirmed_at,omitempty"`
	CreatedAt          time.Time         `json:"created_at"`
	Lines              []LineView        `json:"lines"`
}

// OrderSummary is the compact form used in purchase lookups.
type OrderSummary struct {
	ID          uuid.UUID         `json:"id"`
	OrderNumber string            `json:"order_number"`
	Status      enums.OrderStatus `json:"status"`
	CreatedAt   time.Time         `json:"created_at"`
}

// Purchase answers whether an identity has received a product.
type Purchase struct {
	Purchased bool           `json:"purchased"`
	Orders    []OrderSummary `json:"orders"`
}

// Actor is the identity performing an order operation.
type Actor struct {
	UserID uuid.UUID
	Role   enums.UserRole
}

// IsAdmin reports whether the actor holds the admin role.
func (a Actor) IsAdmin() bool {
	return a.Role == enums.UserRoleAdmin
}

func NewOrderView(order models.Order) OrderView {
	lines := make([]LineView, 0, len(order.Lines))
	for _, line := range order.Lines {
		lines = append(lines, LineView{
			ProductID:   line.ProductID,
			Quantity:    line.Quantity,
			PriceAtTime: line.PriceAtTime,
			Subtotal:    line.Subtotal,
		})
	}
	return OrderView{
		ID:                 order.ID,
		OrderNumber:        order.OrderNumber,
		UserID:             order.UserID,
		Status:             order.Status,
		TotalAmount:        order.TotalAmount,
		ShippingAddress:    order.ShippingAddress,
		Phone:              order.Phone,
		EstimatedDelivery:  order.EstimatedDelivery,
		PaymentReference:   order.PaymentReference,
		PaymentConfirmedAt: order.PaymentConfirmedAt,
		CreatedAt:          order.CreatedAt,
		Lines:              lines,
	}
}

func NewOrderViews(orders []models.Order) []OrderView {
	views := make([]OrderView, 0, len(orders))
	for _, order := range orders {
		views = append(views, NewOrderView(order))
	}
	return views
}

func newSummary(order models.Order) OrderSummary {
	return OrderSummary{
		ID:          order.ID,
		OrderNumber: order.OrderNumber,
		Status:      order.Status,
		CreatedAt:   order.CreatedAt,
	}
}

// EventLines maps order lines onto the event payload shape.
func EventLines(lines []models.OrderLine) []payloads.OrderLine {
	out := make([]payloads.OrderLine, 0, len(lines))
	for _, line := range lines {
		out = append(out, payloads.OrderLine{
			ProductID: line.ProductID,
			Quantity:  line.Quantity,
			UnitPrice: line.PriceAtTime,
		})
	}
	return out
}
