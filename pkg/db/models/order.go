package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-orders/pkg/enums"
)

// Order is immutable after creation except for status and payment correlation.
type Order struct {
	ID                 uuid.UUID         `gorm:"column:id;type:uuid;primaryKey"`
	UserID             uuid.UUID         `gorm:"column:user_id;type:uuid;not null"`
	OrderNumber        string            `gorm:"column:order_number;not null;uniqueIndex"`
	Status             enums.OrderStatus `gorm:"column:status;type:text;not null"`
	TotalAmount        decimal.Decimal   `gorm:"column:total_amount;type:numeric(12,2);not null"`
	ShippingAddress    string            `gorm:"column:shipping_address;not null"`
	Phone              string            `gorm:"column:phone;not null"`
	EstimatedDelivery  time.Time         `gorm:"column:estimated_delivery;not null"`
	PaymentReference   *string           `gorm:"column:payment_reference"`
	PaymentConfirmedAt *time.Time        `gorm:"column:payment_confirmed_at"`
	CreatedAt          time.Time         `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt          time.Time         `gorm:"column:updated_at;autoUpdateTime"`

	Lines []OrderLine `gorm:"-"`
}

func (o *Order) BeforeCreate(*gorm.DB) error {
	ensureID(&o.ID)
	return nil
}
