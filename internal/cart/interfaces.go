package cart

import (
	"context"

	"github.com/angelmondragon/storefront-orders/pkg/db/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Repository defines the persistence surface required by the cart service and checkout.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	ListByUser(ctx context.Context, userID uuid.UUID) ([]models.CartLine, error)
	FindByID(ctx context.Context, id uuid.UUID) (*models.CartLine, error)
	FindByUserAndProduct(ctx context.Context, userID, productID uuid.UUID) (*models.CartLine, error)
	Create(ctx context.Context, line *models.CartLine) error
	UpdateQuantity(ctx context.Context, id uuid.UUID, qty int) error
	IncrementQuantity(ctx context.Context, id uuid.UUID, delta int) (int, error)
	Delete(ctx context.Context, id uuid.UUID) error
	DeleteByUser(ctx context.Context, userID uuid.UUID) (int64, error)
}
