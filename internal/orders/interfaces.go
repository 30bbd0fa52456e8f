package orders

import (
	"context"
	"time"

	"github.com/angelmondragon/storefront-orders/pkg/db/models"
	"github.com/angelmondragon/storefront-orders/pkg/enums"
	"github.com/angelmondragon/storefront-orders/pkg/pagination"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Repository defines persistence operations for orders and their lines.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, order *models.Order) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Order, error)
	FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.Order, error)
	FindByNumber(ctx context.Context, number string) (*models.Order, error)
	ListByUser(ctx context.Context, userID uuid.UUID, params pagination.Params) ([]models.Order, error)
	CountByUser(ctx context.Context, userID uuid.UUID) (int64, error)
	ListByStatus(ctx context.Context, status enums.OrderStatus, params pagination.Params) ([]models.Order, error)
	CountByStatus(ctx context.Context, status enums.OrderStatus) (int64, error)
	TransitionStatus(ctx context.Context, id uuid.UUID, from []enums.OrderStatus, to enums.OrderStatus) (bool, error)
	RecordPayment(ctx context.Context, id uuid.UUID, reference string, confirmedAt time.Time) error
	FindDeliveredWithProduct(ctx context.Context, userID, productID uuid.UUID) ([]models.Order, error)
}

// StockReleaser returns reserved units to the catalog.
type StockReleaser interface {
	Release(ctx context.Context, tx *gorm.DB, productID uuid.UUID, qty int) error
}

type transitionRecorder interface {
	Transition(from, to string)
}
